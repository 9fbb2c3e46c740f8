package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// EmailSignInRequest carries the email address that starts the verification
// flow.
type EmailSignInRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// EmailSignInResponse reports that a code was sent and where the flow goes
// next.
type EmailSignInResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
	Next      string    `json:"next"`
	// SECURITY: DevCode is ONLY exposed in development mode. In production the
	// code travels via the notification channel alone.
	DevCode *string `json:"dev_code,omitempty"`
}

// EmailConfirmRequest carries the one-time code the user received.
type EmailConfirmRequest struct {
	Code string `json:"code" binding:"required"`
}

// RegistrationNumberRequest either states the registration number directly or
// provides the personal details used to look it up.
type RegistrationNumberRequest struct {
	RegistrationNumber string `json:"registration_number"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	// DateOfBirth uses the YYYY-MM-DD layout.
	DateOfBirth string `json:"date_of_birth"`
}

// ConfirmRequest closes the journey, optionally completing personal details.
type ConfirmRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
}

// JourneyStepResponse points the client at the next page of the journey.
type JourneyStepResponse struct {
	Message string `json:"message,omitempty"`
	Next    string `json:"next"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
