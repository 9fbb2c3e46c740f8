package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/config"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/logger"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/transport/http/middleware"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/usecase"
)

// VerificationHandler drives the email proof steps: collecting the address,
// sending the one-time code, and checking the submitted code.
type VerificationHandler struct {
	cfg           *config.AppConfig
	verifications *usecase.VerificationService
	decisions     *usecase.DecisionEngine
	logger        *zap.Logger
}

// NewVerificationHandler constructs the handler.
func NewVerificationHandler(cfg *config.AppConfig, verifications *usecase.VerificationService, decisions *usecase.DecisionEngine, log *zap.Logger) *VerificationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &VerificationHandler{cfg: cfg, verifications: verifications, decisions: decisions, logger: log}
}

// SubmitEmail handles POST /sign-in/email. The email lands on the journey
// unverified and a one-time code goes out to it.
func (h *VerificationHandler) SubmitEmail(c *gin.Context) {
	journey, ok := middleware.JourneyFromContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "sign-in journey not found"))
		return
	}

	var req EmailSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "a valid email address is required"))
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != journey.EmailAddress {
		journey.EmailAddress = email
		journey.EmailVerified = false
	}
	middleware.MarkJourneyDirty(c)

	result, err := h.verifications.IssueCode(c.Request.Context(), usecase.IssueCodeInput{
		IP:          c.ClientIP(),
		Destination: email,
		Delivery:    usecase.DeliveryEmail,
		JourneyID:   journey.ID.String(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrIssueRateLimited, Status: http.StatusTooManyRequests, Message: "too many codes requested, try again later"},
			{Err: usecase.ErrInvalidDestination, Status: http.StatusBadRequest, Message: "we cannot send a code to that email address"},
		}, http.StatusInternalServerError, "failed to send confirmation code")
		return
	}

	h.logger.Info("confirmation code issued",
		zap.String("journey_id", journey.ID.String()),
		zap.String("email", logger.MaskEmail(email)),
	)

	resp := EmailSignInResponse{
		Message:   "we have sent a confirmation code to your email address",
		ExpiresAt: result.ExpiresAt,
		Next:      h.decisions.NextURL(journey),
	}
	if h.isDev() {
		code := result.Code
		resp.DevCode = &code
	}

	c.JSON(http.StatusOK, resp)
}

// ConfirmEmail handles POST /sign-in/email/confirm. A correct code proves the
// address; a recently expired one triggers a silent reissue so the user only
// ever has to enter the latest code.
func (h *VerificationHandler) ConfirmEmail(c *gin.Context) {
	journey, ok := middleware.JourneyFromContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "sign-in journey not found"))
		return
	}
	if journey.EmailAddress == "" {
		c.JSON(http.StatusConflict, JourneyStepResponse{
			Message: "enter your email address first",
			Next:    h.decisions.NextURL(journey),
		})
		return
	}

	var req EmailConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "enter the code we sent you"))
		return
	}

	result, err := h.verifications.VerifyCode(c.Request.Context(), usecase.VerifyCodeInput{
		IP:          c.ClientIP(),
		Destination: journey.EmailAddress,
		Code:        req.Code,
		JourneyID:   journey.ID.String(),
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to check confirmation code"))
		return
	}

	switch result.Status {
	case domain.VerifySuccess:
		journey.EmailVerified = true
		middleware.MarkJourneyDirty(c)
		c.JSON(http.StatusOK, JourneyStepResponse{
			Message: "email address confirmed",
			Next:    h.decisions.NextURL(journey),
		})

	case domain.VerifyRateLimited:
		// Deliberately detail-free so the limiter cannot be probed.
		c.JSON(http.StatusTooManyRequests, NewErrorResponse(c, "too many attempts, try again later"))

	case domain.VerifyExpired:
		if result.ExpiredRecently {
			h.reissue(c, journey)
			return
		}
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "enter the code we sent you"))

	default:
		// Unknown and no-longer-active codes get the same answer.
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "enter the code we sent you"))
	}
}

// reissue replaces a recently expired code without the user asking: from
// their side the old code "did not work" and a fresh one arrives.
func (h *VerificationHandler) reissue(c *gin.Context, journey *domain.Journey) {
	_, err := h.verifications.IssueCode(c.Request.Context(), usecase.IssueCodeInput{
		IP:          c.ClientIP(),
		Destination: journey.EmailAddress,
		Delivery:    usecase.DeliveryEmail,
		JourneyID:   journey.ID.String(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrIssueRateLimited, Status: http.StatusTooManyRequests, Message: "too many attempts, try again later"},
		}, http.StatusInternalServerError, "failed to send confirmation code")
		return
	}

	c.JSON(http.StatusBadRequest, NewErrorResponse(c, "that code has expired, we have sent you a new one"))
}

func (h *VerificationHandler) isDev() bool {
	return h.cfg != nil && h.cfg.App.Env == "development"
}
