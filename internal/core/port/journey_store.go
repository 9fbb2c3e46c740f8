package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
)

// RequestValues is an explicit key-value store scoped to a single
// request/response round-trip, injected into journey storage rather than
// reached for as ambient state. The production implementation is backed by a
// redis session bound to a browser cookie; it may be absent or expired, in
// which case reads report not found.
type RequestValues interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// CookieAccess reads and writes browser cookies for the current request.
type CookieAccess interface {
	Cookie(name string) (string, bool)
	SetCookie(name, value string, maxAge time.Duration)
}

// StoreScope bundles the per-request state a journey storage strategy may
// need: request-scoped values for the ephemeral strategy and cookie access
// for the durable strategy's journey allow-list.
type StoreScope struct {
	Values  RequestValues
	Cookies CookieAccess
}

// JourneyStore is a pluggable persistence strategy for in-progress journeys.
// Load returns (nil, nil) when no journey is found, including when a stored
// payload is corrupt; corruption is logged, never raised, so the user simply
// restarts the journey.
type JourneyStore interface {
	Load(ctx context.Context, scope StoreScope, id uuid.UUID) (*domain.Journey, error)
	Save(ctx context.Context, scope StoreScope, journey *domain.Journey) error
}

// JourneyRepository persists durable journey records keyed by journey id with
// insert-or-update semantics.
type JourneyRepository interface {
	Upsert(ctx context.Context, record domain.JourneyRecord) error
	// Get returns the record or repository.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.JourneyRecord, error)
}

// SnapshotStore appends immutable journey snapshots for post-mortem
// diagnosis.
type SnapshotStore interface {
	Create(ctx context.Context, snapshot domain.JourneySnapshot) error
}
