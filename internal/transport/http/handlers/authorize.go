package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/transport/http/middleware"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/usecase"
)

// AuthorizeHandler is the journey entry point. Every authorization request
// lands here: without a resolvable journey a fresh one is created, with one
// the request is validated against the journey's original snapshot. Complete
// journeys are handed to the protocol engine, everything else is redirected
// to the next verification step.
type AuthorizeHandler struct {
	journeys  *usecase.JourneyService
	decisions *usecase.DecisionEngine
	logger    *zap.Logger
}

// NewAuthorizeHandler constructs the handler.
func NewAuthorizeHandler(journeys *usecase.JourneyService, decisions *usecase.DecisionEngine, log *zap.Logger) *AuthorizeHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthorizeHandler{journeys: journeys, decisions: decisions, logger: log}
}

// Authorize handles GET /oauth2/authorize.
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	request := domain.AuthorizationRequest{
		ClientID:    strings.TrimSpace(c.Query("client_id")),
		RedirectURI: strings.TrimSpace(c.Query("redirect_uri")),
		Scopes:      splitScopes(c.Query("scope")),
	}

	if request.ClientID == "" || request.RedirectURI == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "client_id and redirect_uri are required"))
		return
	}
	if !request.HasScope(domain.ScopeOpenID) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "the openid scope is required"))
		return
	}

	journey, ok := middleware.JourneyFromContext(c)
	if ok {
		if err := h.journeys.Resume(c.Request.Context(), journey, request); err != nil {
			if errors.Is(err, usecase.ErrRequestMismatch) {
				h.logger.Warn("authorization request does not match journey",
					zap.String("journey_id", journey.ID.String()),
					zap.String("client_id", request.ClientID),
				)
				c.JSON(http.StatusBadRequest, NewErrorResponse(c, "this sign-in link does not match the original request"))
				return
			}
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authorization failed"))
			return
		}
		middleware.MarkJourneyDirty(c)
	} else {
		created, err := h.journeys.Begin(c.Request.Context(), request)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authorization failed"))
			return
		}
		journey = created
		middleware.AttachJourney(c, journey)
	}

	if h.decisions.NextStep(journey) == usecase.StepComplete {
		redirect, err := h.journeys.Complete(c.Request.Context(), journey)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "authorization could not be completed"))
			return
		}
		c.Redirect(http.StatusFound, redirect)
		return
	}

	c.Redirect(http.StatusFound, h.decisions.NextURL(journey))
}

// splitScopes parses the space-delimited OAuth2 scope parameter.
func splitScopes(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
