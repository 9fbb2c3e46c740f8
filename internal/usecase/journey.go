package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/config"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/repository"
)

const defaultLookupMaxAttempts = 3

var (
	// ErrJourneyUnavailable indicates the service is not properly configured.
	ErrJourneyUnavailable = errors.New("journey service unavailable")
	// ErrRequestMismatch indicates a journey was resumed with an authorization
	// request that differs from the one it was created for.
	ErrRequestMismatch = errors.New("authorization request does not match journey")
	// ErrJourneyIncomplete indicates completion was attempted before every
	// required attribute was present.
	ErrJourneyIncomplete = errors.New("journey is not complete")
)

// JourneyService coordinates journey creation, resumption, and completion
// around the decision engine and the external protocol engine.
type JourneyService struct {
	cfg      *config.AppConfig
	lookup   port.RegistrationLookup
	protocol port.ProtocolEngine
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewJourneyService constructs a JourneyService.
func NewJourneyService(cfg *config.AppConfig, lookup port.RegistrationLookup, protocol port.ProtocolEngine, events port.EventPublisher, log *zap.Logger) *JourneyService {
	if log == nil {
		log = zap.NewNop()
	}
	return &JourneyService{
		cfg:      cfg,
		lookup:   lookup,
		protocol: protocol,
		events:   events,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *JourneyService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Begin creates a journey for the authorization request, deriving its
// requirements from the requested scopes.
func (s *JourneyService) Begin(ctx context.Context, request domain.AuthorizationRequest) (*domain.Journey, error) {
	if request.ClientID == "" || request.RedirectURI == "" {
		return nil, errors.New("authorization request is incomplete")
	}

	journey := domain.NewJourney(request, s.now())

	s.publishStarted(ctx, journey)

	return journey, nil
}

// Resume validates that the presented authorization request matches the
// snapshot captured when the journey was created, and applies forced
// re-authentication when the force-login scope is present on a completed
// journey.
func (s *JourneyService) Resume(ctx context.Context, journey *domain.Journey, request domain.AuthorizationRequest) error {
	stored := journey.AuthRequest.WithoutScope(domain.ScopeForceLogin)
	presented := request.WithoutScope(domain.ScopeForceLogin)
	if !stored.Matches(presented) {
		return ErrRequestMismatch
	}

	if request.HasScope(domain.ScopeForceLogin) && journey.IsComplete() {
		journey.Reset(s.now())
		s.publishReset(ctx, journey, "force-login")
	}

	return nil
}

// Complete hands the enriched identity claims to the protocol engine and
// returns the redirect back to the client.
func (s *JourneyService) Complete(ctx context.Context, journey *domain.Journey) (string, error) {
	if s.protocol == nil {
		return "", ErrJourneyUnavailable
	}
	if !journey.IsComplete() {
		return "", ErrJourneyIncomplete
	}

	if journey.UserID == "" {
		// Subjects are keyed by proven email when no account matched.
		journey.UserID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+journey.EmailAddress)).String()
	}

	redirect, err := s.protocol.Complete(ctx, journey.AuthRequest, journey.Claims())
	if err != nil {
		return "", fmt.Errorf("complete authorization: %w", err)
	}

	s.publishCompleted(ctx, journey)

	return redirect, nil
}

// ResolveRegistrationNumber runs one lookup attempt against the external
// register. The requirement counts as finished once a number is found or the
// attempt budget is exhausted.
func (s *JourneyService) ResolveRegistrationNumber(ctx context.Context, journey *domain.Journey, query port.RegistrationLookupQuery) (string, error) {
	if s.lookup == nil {
		return "", ErrJourneyUnavailable
	}

	maxAttempts := defaultLookupMaxAttempts
	if s.cfg != nil && s.cfg.Journey.LookupMaxAttempts > 0 {
		maxAttempts = s.cfg.Journey.LookupMaxAttempts
	}

	journey.LookupAttempts++

	number, err := s.lookup.FindRegistrationNumber(ctx, query)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if journey.LookupAttempts >= maxAttempts {
				journey.LookupCompleted = true
			}
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("registration number lookup: %w", err)
	}

	journey.RegistrationNumber = strings.TrimSpace(number)
	journey.LookupCompleted = true

	return journey.RegistrationNumber, nil
}

func (s *JourneyService) publishStarted(ctx context.Context, journey *domain.Journey) {
	if s.events == nil {
		return
	}

	event := domain.JourneyStartedEvent{
		EventID:   uuid.NewString(),
		JourneyID: journey.ID.String(),
		ClientID:  journey.AuthRequest.ClientID,
		Scopes:    journey.AuthRequest.Scopes,
		StartedAt: journey.StartedAt,
	}
	if err := s.events.PublishJourneyStarted(ctx, event); err != nil {
		s.logger.Warn("publish journey started event failed", zap.Error(err))
	}
}

func (s *JourneyService) publishReset(ctx context.Context, journey *domain.Journey, reason string) {
	if s.events == nil {
		return
	}

	event := domain.JourneyResetEvent{
		EventID:   uuid.NewString(),
		JourneyID: journey.ID.String(),
		ClientID:  journey.AuthRequest.ClientID,
		ResetAt:   journey.StartedAt,
		Reason:    reason,
	}
	if err := s.events.PublishJourneyReset(ctx, event); err != nil {
		s.logger.Warn("publish journey reset event failed", zap.Error(err))
	}
}

func (s *JourneyService) publishCompleted(ctx context.Context, journey *domain.Journey) {
	if s.events == nil {
		return
	}

	event := domain.JourneyCompletedEvent{
		EventID:            uuid.NewString(),
		JourneyID:          journey.ID.String(),
		ClientID:           journey.AuthRequest.ClientID,
		UserID:             journey.UserID,
		EmailVerified:      journey.EmailVerified,
		RegistrationNumber: journey.RegistrationNumber,
		CompletedAt:        s.now().UTC(),
	}
	if err := s.events.PublishJourneyCompleted(ctx, event); err != nil {
		s.logger.Warn("publish journey completed event failed", zap.Error(err))
	}
}
