package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, journeyID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("journey_id", journeyID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishJourneyStarted logs idp.journey.started events.
func (p *StubPublisher) PublishJourneyStarted(_ context.Context, event domain.JourneyStartedEvent) error {
	payload := map[string]any{
		"journey_id": event.JourneyID,
		"client_id":  event.ClientID,
		"scopes":     event.Scopes,
		"started_at": event.StartedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("idp.journey.started", event.JourneyID, event.StartedAt, payload)
	return nil
}

// PublishJourneyCompleted logs idp.journey.completed events.
func (p *StubPublisher) PublishJourneyCompleted(_ context.Context, event domain.JourneyCompletedEvent) error {
	payload := map[string]any{
		"journey_id":          event.JourneyID,
		"client_id":           event.ClientID,
		"user_id":             event.UserID,
		"email_verified":      event.EmailVerified,
		"registration_number": event.RegistrationNumber,
		"completed_at":        event.CompletedAt,
		"metadata":            event.Metadata,
	}
	p.logEvent("idp.journey.completed", event.JourneyID, event.CompletedAt, payload)
	return nil
}

// PublishJourneyReset logs idp.journey.reset events.
func (p *StubPublisher) PublishJourneyReset(_ context.Context, event domain.JourneyResetEvent) error {
	payload := map[string]any{
		"journey_id": event.JourneyID,
		"client_id":  event.ClientID,
		"reset_at":   event.ResetAt,
		"reason":     event.Reason,
		"metadata":   event.Metadata,
	}
	p.logEvent("idp.journey.reset", event.JourneyID, event.ResetAt, payload)
	return nil
}

// PublishCodeIssued logs idp.code.issued events.
func (p *StubPublisher) PublishCodeIssued(_ context.Context, event domain.CodeIssuedEvent) error {
	payload := map[string]any{
		"journey_id":         event.JourneyID,
		"masked_destination": event.MaskedDestination,
		"channel":            event.Channel,
		"expires_at":         event.ExpiresAt,
		"issued_at":          event.IssuedAt,
		"metadata":           event.Metadata,
	}
	p.logEvent("idp.code.issued", event.JourneyID, event.IssuedAt, payload)
	return nil
}

// PublishCodeVerified logs idp.code.verified events.
func (p *StubPublisher) PublishCodeVerified(_ context.Context, event domain.CodeVerifiedEvent) error {
	payload := map[string]any{
		"journey_id":         event.JourneyID,
		"masked_destination": event.MaskedDestination,
		"outcome":            event.Outcome,
		"verified_at":        event.VerifiedAt,
		"metadata":           event.Metadata,
	}
	p.logEvent("idp.code.verified", event.JourneyID, event.VerifiedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
