package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/repository"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/transport/http/middleware"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/usecase"
)

const dateOfBirthLayout = "2006-01-02"

// JourneyStepHandler drives the steps after email proof: resolving the
// professional registration number and the final confirmation.
type JourneyStepHandler struct {
	journeys  *usecase.JourneyService
	decisions *usecase.DecisionEngine
	logger    *zap.Logger
}

// NewJourneyStepHandler constructs the handler.
func NewJourneyStepHandler(journeys *usecase.JourneyService, decisions *usecase.DecisionEngine, log *zap.Logger) *JourneyStepHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &JourneyStepHandler{journeys: journeys, decisions: decisions, logger: log}
}

// SubmitRegistrationNumber handles POST /sign-in/registration-number. The
// user either states their number directly or provides the personal details
// used to look it up in the register.
func (h *JourneyStepHandler) SubmitRegistrationNumber(c *gin.Context) {
	journey, ok := middleware.JourneyFromContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "sign-in journey not found"))
		return
	}
	if !journey.EmailVerified {
		c.JSON(http.StatusConflict, JourneyStepResponse{
			Message: "confirm your email address first",
			Next:    h.decisions.NextURL(journey),
		})
		return
	}

	var req RegistrationNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	if number := strings.TrimSpace(req.RegistrationNumber); number != "" {
		journey.RegistrationNumber = number
		journey.LookupCompleted = true
		middleware.MarkJourneyDirty(c)
		c.JSON(http.StatusOK, JourneyStepResponse{Next: h.decisions.NextURL(journey)})
		return
	}

	query, err := lookupQuery(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
		return
	}

	journey.FirstName = query.FirstName
	journey.LastName = query.LastName
	journey.DateOfBirth = query.DateOfBirth
	middleware.MarkJourneyDirty(c)

	number, err := h.journeys.ResolveRegistrationNumber(c.Request.Context(), journey, query)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if journey.LookupCompleted {
				// Attempt budget exhausted: the journey moves on without a number.
				c.JSON(http.StatusOK, JourneyStepResponse{
					Message: "we could not find your record, you can continue without it",
					Next:    h.decisions.NextURL(journey),
				})
				return
			}
			c.JSON(http.StatusNotFound, JourneyStepResponse{
				Message: "no record matched those details, check them and try again",
				Next:    h.decisions.NextURL(journey),
			})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "registration number lookup failed"))
		return
	}

	h.logger.Info("registration number resolved",
		zap.String("journey_id", journey.ID.String()),
		zap.String("registration_number", number),
	)

	c.JSON(http.StatusOK, JourneyStepResponse{Next: h.decisions.NextURL(journey)})
}

// Confirm handles POST /sign-in/confirm, the explicit do-once acknowledgement
// that closes the journey.
func (h *JourneyStepHandler) Confirm(c *gin.Context) {
	journey, ok := middleware.JourneyFromContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "sign-in journey not found"))
		return
	}

	if step := h.decisions.NextStep(journey); step != usecase.StepConfirmation && step != usecase.StepComplete {
		c.JSON(http.StatusConflict, JourneyStepResponse{
			Message: "complete the earlier steps first",
			Next:    h.decisions.NextURL(journey),
		})
		return
	}

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request body"))
		return
	}

	if name := strings.TrimSpace(req.FirstName); name != "" {
		journey.FirstName = name
	}
	if name := strings.TrimSpace(req.LastName); name != "" {
		journey.LastName = name
	}
	if raw := strings.TrimSpace(req.DateOfBirth); raw != "" {
		dob, err := time.Parse(dateOfBirthLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "date_of_birth must use the YYYY-MM-DD layout"))
			return
		}
		journey.DateOfBirth = &dob
	}

	journey.Confirmed = true
	middleware.MarkJourneyDirty(c)

	c.JSON(http.StatusOK, JourneyStepResponse{
		Message: "details confirmed",
		Next:    h.decisions.NextURL(journey),
	})
}

func lookupQuery(req RegistrationNumberRequest) (port.RegistrationLookupQuery, error) {
	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	raw := strings.TrimSpace(req.DateOfBirth)

	if lastName == "" || raw == "" {
		return port.RegistrationLookupQuery{}, errors.New("last_name and date_of_birth are required to look up your record")
	}

	dob, err := time.Parse(dateOfBirthLayout, raw)
	if err != nil {
		return port.RegistrationLookupQuery{}, errors.New("date_of_birth must use the YYYY-MM-DD layout")
	}

	return port.RegistrationLookupQuery{
		FirstName:   firstName,
		LastName:    lastName,
		DateOfBirth: &dob,
	}, nil
}
