package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
)

type memJourneyStore struct {
	journeys map[uuid.UUID]*domain.Journey
	loadErr  error
	saves    int
}

func newMemJourneyStore() *memJourneyStore {
	return &memJourneyStore{journeys: make(map[uuid.UUID]*domain.Journey)}
}

func (s *memJourneyStore) Load(_ context.Context, _ port.StoreScope, id uuid.UUID) (*domain.Journey, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	journey, ok := s.journeys[id]
	if !ok {
		return nil, nil
	}
	copied := *journey
	return &copied, nil
}

func (s *memJourneyStore) Save(_ context.Context, _ port.StoreScope, journey *domain.Journey) error {
	s.saves++
	copied := *journey
	s.journeys[journey.ID] = &copied
	return nil
}

type memSnapshots struct {
	snapshots []domain.JourneySnapshot
}

func (s *memSnapshots) Create(_ context.Context, snapshot domain.JourneySnapshot) error {
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func emptyScope(*gin.Context) port.StoreScope {
	return port.StoreScope{}
}

func seedJourney(store *memJourneyStore) *domain.Journey {
	journey := domain.NewJourney(domain.AuthorizationRequest{
		ClientID:    "client",
		RedirectURI: "https://client.example/callback",
		Scopes:      []string{"openid"},
	}, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store.journeys[journey.ID] = journey
	return journey
}

func newTestRouter(store *memJourneyStore, snapshots port.SnapshotStore, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)

	correlation := NewJourneyCorrelation(
		func() port.JourneyStore { return store },
		emptyScope,
		snapshots,
		"journey_id",
		nil,
	)

	r := gin.New()
	r.GET("/step", correlation.Handle(), handler)
	return r
}

func TestJourneyMiddlewareLoadsAndPersists(t *testing.T) {
	store := newMemJourneyStore()
	journey := seedJourney(store)

	var seen *domain.Journey
	r := newTestRouter(store, nil, func(c *gin.Context) {
		loaded, ok := JourneyFromContext(c)
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		loaded.EmailAddress = "jo@example.com"
		MarkJourneyDirty(c)
		seen = loaded
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/step?journey_id="+journey.ID.String(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if seen == nil || seen.ID != journey.ID {
		t.Fatalf("expected the handler to see the journey")
	}
	if store.saves != 1 {
		t.Fatalf("expected exactly one save, got %d", store.saves)
	}
	if store.journeys[journey.ID].EmailAddress != "jo@example.com" {
		t.Fatalf("expected the mutation to be persisted")
	}
	if len(store.journeys[journey.ID].Visited) != 1 {
		t.Fatalf("expected one visit recorded, got %v", store.journeys[journey.ID].Visited)
	}
}

func TestJourneyMiddlewareIgnoresMalformedID(t *testing.T) {
	store := newMemJourneyStore()

	r := newTestRouter(store, nil, func(c *gin.Context) {
		if _, ok := JourneyFromContext(c); ok {
			t.Errorf("no journey should resolve for a malformed id")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/step?journey_id=not-a-uuid", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if store.saves != 0 {
		t.Fatalf("nothing should be saved without a journey")
	}
}

func TestJourneyMiddlewareDegradedStoreReadsAsMissing(t *testing.T) {
	store := newMemJourneyStore()
	journey := seedJourney(store)
	store.loadErr = errors.New("store unavailable")

	r := newTestRouter(store, nil, func(c *gin.Context) {
		if _, ok := JourneyFromContext(c); ok {
			t.Errorf("a failing store must present as no journey")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/step?journey_id="+journey.ID.String(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestJourneyMiddlewarePersistsAttachedJourney(t *testing.T) {
	store := newMemJourneyStore()

	var created *domain.Journey
	r := newTestRouter(store, nil, func(c *gin.Context) {
		created = domain.NewJourney(domain.AuthorizationRequest{
			ClientID:    "client",
			RedirectURI: "https://client.example/callback",
			Scopes:      []string{"openid"},
		}, time.Now())
		AttachJourney(c, created)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/step", nil)
	r.ServeHTTP(w, req)

	if store.saves != 1 {
		t.Fatalf("expected the attached journey to be saved, got %d saves", store.saves)
	}
	if _, ok := store.journeys[created.ID]; !ok {
		t.Fatalf("expected the new journey in the store")
	}
}

func TestJourneyMiddlewareRejectsAttachWithoutID(t *testing.T) {
	store := newMemJourneyStore()

	r := newTestRouter(store, nil, func(c *gin.Context) {
		AttachJourney(c, &domain.Journey{})
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/step", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when the journey id is unset at save time, got %d", w.Code)
	}
	if store.saves != 0 {
		t.Fatalf("a journey without an id must never be saved, got %d saves", store.saves)
	}
	if _, ok := store.journeys[uuid.Nil]; ok {
		t.Fatalf("the nil id must not appear in the store")
	}
}

func TestJourneyMiddlewareResolvesContextEstablishedID(t *testing.T) {
	store := newMemJourneyStore()
	journey := seedJourney(store)

	correlation := NewJourneyCorrelation(
		func() port.JourneyStore { return store },
		emptyScope,
		nil,
		"journey_id",
		nil,
	)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	establish := func(c *gin.Context) {
		c.Set(JourneyIDKey, journey.ID.String())
	}

	var seen *domain.Journey
	r.GET("/step", establish, correlation.Handle(), func(c *gin.Context) {
		seen, _ = JourneyFromContext(c)
		c.Status(http.StatusOK)
	})

	// No query parameter: the id set earlier in the pipeline must win.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/step", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if seen == nil || seen.ID != journey.ID {
		t.Fatalf("expected the context-established id to resolve the journey")
	}
	if store.saves != 1 {
		t.Fatalf("expected the resolved journey to persist, got %d saves", store.saves)
	}
}

func TestJourneyMiddlewareSnapshotsOnFailure(t *testing.T) {
	store := newMemJourneyStore()
	journey := seedJourney(store)
	snapshots := &memSnapshots{}

	r := newTestRouter(store, snapshots, func(c *gin.Context) {
		_ = c.Error(errors.New("downstream exploded"))
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/step?journey_id="+journey.ID.String(), nil)
	r.ServeHTTP(w, req)

	if len(snapshots.snapshots) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(snapshots.snapshots))
	}
	snap := snapshots.snapshots[0]
	if snap.JourneyID != journey.ID {
		t.Fatalf("snapshot bound to wrong journey: %s", snap.JourneyID)
	}
	if len(snap.Payload) == 0 {
		t.Fatalf("expected the snapshot to carry the serialized journey")
	}
	if store.saves != 0 {
		t.Fatalf("a failed request must not persist the journey")
	}
}

func TestJourneyMiddlewareSnapshotsOnPanic(t *testing.T) {
	store := newMemJourneyStore()
	journey := seedJourney(store)
	snapshots := &memSnapshots{}

	correlation := NewJourneyCorrelation(
		func() port.JourneyStore { return store },
		emptyScope,
		snapshots,
		"journey_id",
		nil,
	)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/step", correlation.Handle(), func(c *gin.Context) {
		panic("handler exploded")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/step?journey_id="+journey.ID.String(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from recovery, got %d", w.Code)
	}
	if len(snapshots.snapshots) != 1 {
		t.Fatalf("expected the panic to capture a snapshot, got %d", len(snapshots.snapshots))
	}
	if store.saves != 0 {
		t.Fatalf("a panicking request must not persist the journey")
	}
}
