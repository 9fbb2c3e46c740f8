package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	redisrepo "github.com/DFE-Digital/get-an-identity-sub003/internal/repository/redis"
)

const (
	journeyStateKey   = "journey_state"
	journeyHandledKey = "journey_handled"
	// SnapshotIDKey exposes the post-mortem snapshot id to the access log.
	SnapshotIDKey = "journey_snapshot_id"
	// JourneyIDKey carries a journey id established earlier in the pipeline.
	// It is consulted when the query parameter is absent.
	JourneyIDKey = "journey_id"
)

// JourneyStoreFactory builds a fresh request-scoped store composition.
// Fallback pinning is request-scoped, so the composition must never be
// shared between requests.
type JourneyStoreFactory func() port.JourneyStore

// ScopeBuilder derives the per-request store scope (session values and
// cookie access) from the gin context.
type ScopeBuilder func(c *gin.Context) port.StoreScope

type journeyState struct {
	journey *domain.Journey
	dirty   bool
	store   port.JourneyStore
	scope   port.StoreScope
	visited bool
}

// JourneyCorrelation resolves which journey applies to each request, loads
// its state before the handler runs, and persists mutations afterwards. On
// unhandled failure it snapshots the journey for post-mortem diagnosis.
type JourneyCorrelation struct {
	stores     JourneyStoreFactory
	scope      ScopeBuilder
	snapshots  port.SnapshotStore
	queryParam string
	logger     *zap.Logger
	now        func() time.Time
}

// NewJourneyCorrelation constructs the middleware helper.
func NewJourneyCorrelation(stores JourneyStoreFactory, scope ScopeBuilder, snapshots port.SnapshotStore, queryParam string, log *zap.Logger) *JourneyCorrelation {
	if log == nil {
		log = zap.NewNop()
	}
	if queryParam == "" {
		queryParam = "journey_id"
	}
	return &JourneyCorrelation{
		stores:     stores,
		scope:      scope,
		snapshots:  snapshots,
		queryParam: queryParam,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (m *JourneyCorrelation) WithClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Handle returns the gin middleware. It runs once per request; internal
// re-executions (error page rendering) skip journey handling entirely.
func (m *JourneyCorrelation) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(journeyHandledKey) {
			c.Next()
			return
		}
		c.Set(journeyHandledKey, true)

		state := &journeyState{
			store: m.stores(),
			scope: m.scope(c),
		}
		c.Set(journeyStateKey, state)

		m.resolve(c, state)

		defer func() {
			if r := recover(); r != nil {
				// Snapshot is best effort; the panic propagates unmodified.
				m.snapshot(c, state)
				panic(r)
			}
		}()

		c.Next()

		if len(c.Errors) > 0 {
			m.snapshot(c, state)
			return
		}

		m.persist(c, state)
	}
}

func (m *JourneyCorrelation) resolve(c *gin.Context, state *journeyState) {
	raw := c.Query(m.queryParam)
	if raw == "" {
		raw = c.GetString(JourneyIDKey)
	}
	if raw == "" {
		return
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		m.logger.Debug("malformed journey id", zap.String("raw", raw))
		return
	}

	journey, err := state.store.Load(c.Request.Context(), state.scope, id)
	if err != nil {
		m.logger.Warn("journey load failed", zap.String("journey_id", id.String()), zap.Error(err))
		return
	}
	if journey == nil {
		return
	}

	if !state.visited {
		journey.RecordVisit(c.Request.Method, c.Request.URL.Path)
		state.visited = true
	}
	journey.Touch(m.now())

	state.journey = journey
	state.dirty = true
}

func (m *JourneyCorrelation) persist(c *gin.Context, state *journeyState) {
	if state.journey == nil || !state.dirty {
		return
	}

	if state.journey.ID == uuid.Nil {
		err := errors.New("journey has no id at save time")
		m.logger.Error("refusing to persist journey", zap.Error(err))
		_ = c.Error(err)
		return
	}

	if err := state.store.Save(c.Request.Context(), state.scope, state.journey); err != nil {
		m.logger.Error("journey save failed",
			zap.String("journey_id", state.journey.ID.String()),
			zap.Error(err),
		)
		_ = c.Error(err)
	}
}

func (m *JourneyCorrelation) snapshot(c *gin.Context, state *journeyState) {
	if state.journey == nil || m.snapshots == nil {
		return
	}

	payload, err := state.journey.MarshalDiagnostic()
	if err != nil {
		m.logger.Error("journey snapshot marshal failed", zap.Error(err))
		return
	}

	snap := domain.JourneySnapshot{
		ID:         uuid.New(),
		JourneyID:  state.journey.ID,
		Payload:    payload,
		CapturedAt: m.now().UTC(),
	}

	if err := m.snapshots.Create(c.Request.Context(), snap); err != nil {
		m.logger.Error("journey snapshot write failed",
			zap.String("journey_id", state.journey.ID.String()),
			zap.Error(err),
		)
		return
	}

	c.Set(SnapshotIDKey, snap.ID.String())
	m.logger.Error("journey snapshot captured",
		zap.String("journey_id", state.journey.ID.String()),
		zap.String("snapshot_id", snap.ID.String()),
	)
}

// JourneyFromContext returns the journey resolved for this request, if any.
func JourneyFromContext(c *gin.Context) (*domain.Journey, bool) {
	state, ok := stateFromContext(c)
	if !ok || state.journey == nil {
		return nil, false
	}
	return state.journey, true
}

// AttachJourney associates a newly created journey with the request so the
// correlation middleware persists it after the handler completes. A journey
// without an id can never be saved, so attaching one is a programming error
// and fails the request on the spot.
func AttachJourney(c *gin.Context, journey *domain.Journey) {
	state, ok := stateFromContext(c)
	if !ok {
		return
	}
	if journey == nil || journey.ID == uuid.Nil {
		_ = c.Error(errors.New("journey has no id at save time"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "something went wrong, try again later",
		})
		return
	}
	state.journey = journey
	state.dirty = true
}

// MarkJourneyDirty flags the request's journey for persistence.
func MarkJourneyDirty(c *gin.Context) {
	if state, ok := stateFromContext(c); ok {
		state.dirty = true
	}
}

func stateFromContext(c *gin.Context) (*journeyState, bool) {
	value, ok := c.Get(journeyStateKey)
	if !ok {
		return nil, false
	}
	state, ok := value.(*journeyState)
	return state, ok
}

// NewSessionScopeBuilder derives the per-request store scope from a redis
// session bound to a browser cookie. A request without the cookie receives a
// fresh session id.
func NewSessionScopeBuilder(client *redis.Client, prefix string, ttl time.Duration, cookieName string) ScopeBuilder {
	if cookieName == "" {
		cookieName = "idp-session"
	}
	return func(c *gin.Context) port.StoreScope {
		cookies := ginCookieAccess{c: c}

		sid, ok := cookies.Cookie(cookieName)
		if !ok || sid == "" {
			sid = uuid.NewString()
			cookies.SetCookie(cookieName, sid, ttl)
		}

		return port.StoreScope{
			Values:  redisrepo.NewSessionValues(client, prefix, sid, ttl),
			Cookies: cookies,
		}
	}
}

type ginCookieAccess struct {
	c *gin.Context
}

func (a ginCookieAccess) Cookie(name string) (string, bool) {
	value, err := a.c.Cookie(name)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

func (a ginCookieAccess) SetCookie(name, value string, maxAge time.Duration) {
	secure := a.c.Request != nil && a.c.Request.TLS != nil
	a.c.SetCookie(name, value, int(maxAge.Seconds()), "/", "", secure, true)
}
