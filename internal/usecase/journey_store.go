package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/security"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/repository"
)

const journeyValueKeyPrefix = "journey:"

// EphemeralJourneyStore persists journeys in the request-scoped value store
// (a server-side session). Fast, but lost when the session layer is
// unavailable or expired.
type EphemeralJourneyStore struct {
	logger *zap.Logger
}

// NewEphemeralJourneyStore constructs the session-backed strategy.
func NewEphemeralJourneyStore(log *zap.Logger) *EphemeralJourneyStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &EphemeralJourneyStore{logger: log}
}

// Load reads the journey from the session namespace. A session failure or a
// corrupt payload reports no journey found.
func (s *EphemeralJourneyStore) Load(ctx context.Context, scope port.StoreScope, id uuid.UUID) (*domain.Journey, error) {
	if scope.Values == nil {
		return nil, nil
	}

	raw, ok, err := scope.Values.Get(ctx, journeyValueKeyPrefix+id.String())
	if err != nil {
		s.logger.Warn("session journey read failed", zap.String("journey_id", id.String()), zap.Error(err))
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	journey, err := unmarshalJourney(raw)
	if err != nil {
		s.logger.Warn("session journey payload corrupt", zap.String("journey_id", id.String()), zap.Error(err))
		return nil, nil
	}
	return journey, nil
}

// Save writes the journey into the session namespace.
func (s *EphemeralJourneyStore) Save(ctx context.Context, scope port.StoreScope, journey *domain.Journey) error {
	if scope.Values == nil {
		return errors.New("request values unavailable")
	}

	raw, err := marshalJourney(journey)
	if err != nil {
		return err
	}

	if err := scope.Values.Set(ctx, journeyValueKeyPrefix+journey.ID.String(), raw); err != nil {
		return fmt.Errorf("save journey to session: %w", err)
	}
	return nil
}

// DurableJourneyStore persists journeys in the relational store, guarded by a
// signed browser cookie listing the journey ids this browser created: a
// journey id supplied via query parameter cannot hijack another browser's
// journey.
type DurableJourneyStore struct {
	repo       port.JourneyRepository
	codec      *security.JourneyCookieCodec
	cookieName string
	logger     *zap.Logger
	now        func() time.Time
}

// NewDurableJourneyStore constructs the database-backed strategy.
func NewDurableJourneyStore(repo port.JourneyRepository, codec *security.JourneyCookieCodec, cookieName string, log *zap.Logger) *DurableJourneyStore {
	if log == nil {
		log = zap.NewNop()
	}
	if cookieName == "" {
		cookieName = "idp-journeys"
	}
	return &DurableJourneyStore{
		repo:       repo,
		codec:      codec,
		cookieName: cookieName,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *DurableJourneyStore) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Load verifies the requested id against the browser's allow-list cookie
// before querying the store. Missing records and corrupt payloads report no
// journey found.
func (s *DurableJourneyStore) Load(ctx context.Context, scope port.StoreScope, id uuid.UUID) (*domain.Journey, error) {
	if !s.allowListed(scope, id) {
		return nil, nil
	}

	record, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load journey record: %w", err)
	}

	journey, err := unmarshalJourney(record.Payload)
	if err != nil {
		s.logger.Warn("stored journey payload corrupt", zap.String("journey_id", id.String()), zap.Error(err))
		return nil, nil
	}
	return journey, nil
}

// Save upserts the serialized journey and refreshes the allow-list cookie.
// The allow-list only ever grows.
func (s *DurableJourneyStore) Save(ctx context.Context, scope port.StoreScope, journey *domain.Journey) error {
	raw, err := marshalJourney(journey)
	if err != nil {
		return err
	}

	record := domain.JourneyRecord{
		ID:             journey.ID,
		Payload:        raw,
		StartedAt:      journey.StartedAt,
		LastAccessedAt: s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return fmt.Errorf("upsert journey record: %w", err)
	}

	s.refreshAllowList(scope, journey.ID)
	return nil
}

func (s *DurableJourneyStore) allowListed(scope port.StoreScope, id uuid.UUID) bool {
	ids := s.allowList(scope)
	for _, known := range ids {
		if known == id {
			return true
		}
	}
	return false
}

func (s *DurableJourneyStore) allowList(scope port.StoreScope) []uuid.UUID {
	if scope.Cookies == nil || s.codec == nil {
		return nil
	}

	raw, ok := scope.Cookies.Cookie(s.cookieName)
	if !ok {
		return nil
	}

	ids, err := s.codec.Decode(raw)
	if err != nil {
		s.logger.Warn("journey allow-list cookie rejected", zap.Error(err))
		return nil
	}
	return ids
}

func (s *DurableJourneyStore) refreshAllowList(scope port.StoreScope, id uuid.UUID) {
	if scope.Cookies == nil || s.codec == nil {
		return
	}

	ids := s.allowList(scope)
	present := false
	for _, known := range ids {
		if known == id {
			present = true
			break
		}
	}
	if !present {
		ids = append(ids, id)
	}

	value, err := s.codec.Encode(ids)
	if err != nil {
		s.logger.Warn("journey allow-list cookie encode failed", zap.Error(err))
		return
	}
	scope.Cookies.SetCookie(s.cookieName, value, s.codec.TTL())
}

// FallbackJourneyStore composes the ephemeral and durable strategies for a
// single request. Load tries the ephemeral strategy first; a durable fallback
// pins subsequent saves to the durable strategy so a journey loaded from the
// database is never written back to a session the browser no longer has.
type FallbackJourneyStore struct {
	ephemeral port.JourneyStore
	durable   port.JourneyStore
	pinned    bool
}

// NewFallbackJourneyStore builds a request-scoped composition. A fresh
// instance must be created for every request.
func NewFallbackJourneyStore(ephemeral, durable port.JourneyStore) *FallbackJourneyStore {
	return &FallbackJourneyStore{ephemeral: ephemeral, durable: durable}
}

// Load tries the ephemeral strategy, then the durable one.
func (s *FallbackJourneyStore) Load(ctx context.Context, scope port.StoreScope, id uuid.UUID) (*domain.Journey, error) {
	if s.ephemeral != nil {
		journey, err := s.ephemeral.Load(ctx, scope, id)
		if err != nil {
			return nil, err
		}
		if journey != nil {
			return journey, nil
		}
	}

	if s.durable == nil {
		return nil, nil
	}

	journey, err := s.durable.Load(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if journey != nil {
		s.pinned = true
	}
	return journey, nil
}

// Save routes to the ephemeral strategy unless a durable load pinned this
// request to the durable strategy.
func (s *FallbackJourneyStore) Save(ctx context.Context, scope port.StoreScope, journey *domain.Journey) error {
	if s.pinned || s.ephemeral == nil {
		if s.durable == nil {
			return errors.New("no journey store available")
		}
		return s.durable.Save(ctx, scope, journey)
	}
	return s.ephemeral.Save(ctx, scope, journey)
}

func marshalJourney(journey *domain.Journey) ([]byte, error) {
	raw, err := json.Marshal(journey)
	if err != nil {
		return nil, fmt.Errorf("marshal journey: %w", err)
	}
	return raw, nil
}

func unmarshalJourney(raw []byte) (*domain.Journey, error) {
	var journey domain.Journey
	if err := json.Unmarshal(raw, &journey); err != nil {
		return nil, fmt.Errorf("unmarshal journey: %w", err)
	}
	if journey.ID == uuid.Nil {
		return nil, errors.New("journey payload missing id")
	}
	return &journey, nil
}

var (
	_ port.JourneyStore = (*EphemeralJourneyStore)(nil)
	_ port.JourneyStore = (*DurableJourneyStore)(nil)
	_ port.JourneyStore = (*FallbackJourneyStore)(nil)
)
