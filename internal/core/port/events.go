package port

import (
	"context"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
)

// EventPublisher publishes journey lifecycle events to the message bus.
type EventPublisher interface {
	PublishJourneyStarted(ctx context.Context, event domain.JourneyStartedEvent) error
	PublishJourneyCompleted(ctx context.Context, event domain.JourneyCompletedEvent) error
	PublishJourneyReset(ctx context.Context, event domain.JourneyResetEvent) error
	PublishCodeIssued(ctx context.Context, event domain.CodeIssuedEvent) error
	PublishCodeVerified(ctx context.Context, event domain.CodeVerifiedEvent) error
}
