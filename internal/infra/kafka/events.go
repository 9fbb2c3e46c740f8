package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/config"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/logger"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	JourneyID string           `json:"journey_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, journeyID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if requestID, ok := ctx.Value(logger.RequestIDKey{}).(string); ok && requestID != "" {
		metadata["request_id"] = requestID
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		JourneyID: journeyID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishJourneyStarted publishes idp.journey.started events.
func (p *EventPublisher) PublishJourneyStarted(ctx context.Context, event domain.JourneyStartedEvent) error {
	payload := struct {
		JourneyID string         `json:"journey_id"`
		ClientID  string         `json:"client_id"`
		Scopes    []string       `json:"scopes,omitempty"`
		StartedAt time.Time      `json:"started_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		JourneyID: event.JourneyID,
		ClientID:  event.ClientID,
		Scopes:    event.Scopes,
		StartedAt: event.StartedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "idp.journey.started", event.JourneyID, event.StartedAt, payload)
}

// PublishJourneyCompleted publishes idp.journey.completed events.
func (p *EventPublisher) PublishJourneyCompleted(ctx context.Context, event domain.JourneyCompletedEvent) error {
	payload := struct {
		JourneyID          string         `json:"journey_id"`
		ClientID           string         `json:"client_id"`
		UserID             string         `json:"user_id"`
		EmailVerified      bool           `json:"email_verified"`
		RegistrationNumber string         `json:"registration_number,omitempty"`
		CompletedAt        time.Time      `json:"completed_at"`
		Metadata           map[string]any `json:"metadata,omitempty"`
	}{
		JourneyID:          event.JourneyID,
		ClientID:           event.ClientID,
		UserID:             event.UserID,
		EmailVerified:      event.EmailVerified,
		RegistrationNumber: event.RegistrationNumber,
		CompletedAt:        event.CompletedAt.UTC(),
		Metadata:           event.Metadata,
	}

	return p.publish(ctx, event.EventID, "idp.journey.completed", event.JourneyID, event.CompletedAt, payload)
}

// PublishJourneyReset publishes idp.journey.reset events.
func (p *EventPublisher) PublishJourneyReset(ctx context.Context, event domain.JourneyResetEvent) error {
	payload := struct {
		JourneyID string         `json:"journey_id"`
		ClientID  string         `json:"client_id"`
		ResetAt   time.Time      `json:"reset_at"`
		Reason    string         `json:"reason,omitempty"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		JourneyID: event.JourneyID,
		ClientID:  event.ClientID,
		ResetAt:   event.ResetAt.UTC(),
		Reason:    event.Reason,
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "idp.journey.reset", event.JourneyID, event.ResetAt, payload)
}

// PublishCodeIssued publishes idp.code.issued events. Destinations are
// masked upstream; the code value itself is never published.
func (p *EventPublisher) PublishCodeIssued(ctx context.Context, event domain.CodeIssuedEvent) error {
	payload := struct {
		JourneyID         string         `json:"journey_id,omitempty"`
		MaskedDestination string         `json:"masked_destination"`
		Channel           string         `json:"channel"`
		ExpiresAt         time.Time      `json:"expires_at"`
		IssuedAt          time.Time      `json:"issued_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		JourneyID:         event.JourneyID,
		MaskedDestination: event.MaskedDestination,
		Channel:           event.Channel,
		ExpiresAt:         event.ExpiresAt.UTC(),
		IssuedAt:          event.IssuedAt.UTC(),
		Metadata:          event.Metadata,
	}

	return p.publish(ctx, event.EventID, "idp.code.issued", event.JourneyID, event.IssuedAt, payload)
}

// PublishCodeVerified publishes idp.code.verified events.
func (p *EventPublisher) PublishCodeVerified(ctx context.Context, event domain.CodeVerifiedEvent) error {
	payload := struct {
		JourneyID         string         `json:"journey_id,omitempty"`
		MaskedDestination string         `json:"masked_destination"`
		Outcome           string         `json:"outcome"`
		VerifiedAt        time.Time      `json:"verified_at"`
		Metadata          map[string]any `json:"metadata,omitempty"`
	}{
		JourneyID:         event.JourneyID,
		MaskedDestination: event.MaskedDestination,
		Outcome:           event.Outcome,
		VerifiedAt:        event.VerifiedAt.UTC(),
		Metadata:          event.Metadata,
	}

	return p.publish(ctx, event.EventID, "idp.code.verified", event.JourneyID, event.VerifiedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
