package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/config"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/lookup"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/notify"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/protocol"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/repository"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/transport/http/middleware"
	httproutes "github.com/DFE-Digital/get-an-identity-sub003/internal/transport/http/routes"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/usecase"
)

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

// sharedValues persists across requests, standing in for the redis-backed
// browser session.
type sharedValues struct {
	data map[string][]byte
}

func (s *sharedValues) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, ok := s.data[key]
	return raw, ok, nil
}

func (s *sharedValues) Set(_ context.Context, key string, value []byte) error {
	s.data[key] = value
	return nil
}

func (s *sharedValues) Delete(_ context.Context, key string) error {
	delete(s.data, key)
	return nil
}

// memLedger implements the supersede-on-insert contract in memory.
type memLedger struct {
	codes []*domain.VerificationCode
}

func (m *memLedger) Insert(_ context.Context, code domain.VerificationCode) (domain.InsertOutcome, error) {
	for _, existing := range m.codes {
		if existing.Destination == code.Destination && existing.Code == code.Code {
			return domain.InsertConflict, nil
		}
	}
	for _, existing := range m.codes {
		if existing.Destination == code.Destination {
			existing.IsActive = false
		}
	}
	stored := code
	m.codes = append(m.codes, &stored)
	return domain.InsertAccepted, nil
}

func (m *memLedger) Find(_ context.Context, destination, code string) (*domain.VerificationCode, error) {
	for _, existing := range m.codes {
		if existing.Destination == destination && existing.Code == code {
			copied := *existing
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memLedger) Consume(_ context.Context, id uuid.UUID) (bool, error) {
	for _, existing := range m.codes {
		if existing.ID == id && existing.IsActive {
			existing.IsActive = false
			return true, nil
		}
	}
	return false, nil
}

func newJourneyRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	cfg := &config.AppConfig{
		App:     config.AppSettings{Env: "development"},
		Journey: config.JourneySettings{QueryParam: "journey_id"},
	}

	values := &sharedValues{data: make(map[string][]byte)}
	scope := func(_ *gin.Context) port.StoreScope {
		return port.StoreScope{Values: values}
	}
	stores := func() port.JourneyStore {
		return usecase.NewEphemeralJourneyStore(logger)
	}
	correlation := middleware.NewJourneyCorrelation(stores, scope, nil, "journey_id", logger)

	register := lookup.NewStaticRegistrationLookup(map[string]string{
		"smith|1990-06-15": "1234567",
	}, logger)
	engine := protocol.NewDevEngine("test-signing-key", "http://idp.test", logger)

	verifications := usecase.NewVerificationService(cfg, &memLedger{}, port.UnlimitedRateLimitStore{}, notify.NewLoggingNotifier(logger), nil, logger)
	journeys := usecase.NewJourneyService(cfg, register, engine, nil, logger)
	decisions := usecase.NewDecisionEngine("/oauth2/authorize", "journey_id")

	return httproutes.Register(httproutes.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Journeys: correlation,
		Services: httproutes.ServiceSet{
			Journeys:      journeys,
			Verifications: verifications,
			Decisions:     decisions,
		},
	})
}

func getRedirect(t *testing.T, r *gin.Engine, target string) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("GET %s: expected 302, got %d (%s)", target, w.Code, w.Body.String())
	}
	return w.Header().Get("Location")
}

func postJSON(t *testing.T, r *gin.Engine, target string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("POST %s: unmarshal response %q: %v", target, w.Body.String(), err)
		}
	}
	return w
}

func TestFullVerificationJourney(t *testing.T) {
	r := newJourneyRouter(t)

	// Entering the authorization endpoint starts a journey and redirects to
	// the first unmet step.
	location := getRedirect(t, r, "/oauth2/authorize?client_id=client&redirect_uri=https%3A%2F%2Fclient.example%2Fcallback&scope=openid+registration-number")
	if !strings.HasPrefix(location, "/sign-in/email?") {
		t.Fatalf("expected redirect to the email step, got %s", location)
	}

	parsed, err := url.Parse(location)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	journeyID := parsed.Query().Get("journey_id")
	if journeyID == "" {
		t.Fatalf("expected a journey id in the redirect, got %s", location)
	}
	suffix := "?journey_id=" + journeyID

	// Step 1: submit the email address, collect the dev-echoed code.
	var emailResp struct {
		Next    string  `json:"next"`
		DevCode *string `json:"dev_code"`
	}
	w := postJSON(t, r, "/sign-in/email"+suffix, map[string]string{"email": "jo@example.com"}, &emailResp)
	if w.Code != http.StatusOK {
		t.Fatalf("submit email: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if emailResp.DevCode == nil {
		t.Fatalf("expected the development code echo")
	}
	if !strings.HasPrefix(emailResp.Next, "/sign-in/email/confirm?") {
		t.Fatalf("expected the confirmation step next, got %s", emailResp.Next)
	}

	// A wrong code is rejected without detail.
	w = postJSON(t, r, "/sign-in/email/confirm"+suffix, map[string]string{"code": "00000"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong code: expected 400, got %d", w.Code)
	}

	// Step 2: prove the email with the real code.
	var confirmResp struct {
		Next string `json:"next"`
	}
	w = postJSON(t, r, "/sign-in/email/confirm"+suffix, map[string]string{"code": *emailResp.DevCode}, &confirmResp)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm email: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(confirmResp.Next, "/sign-in/registration-number?") {
		t.Fatalf("expected the registration step next, got %s", confirmResp.Next)
	}

	// Step 3: resolve the registration number from personal details.
	var regResp struct {
		Next string `json:"next"`
	}
	w = postJSON(t, r, "/sign-in/registration-number"+suffix, map[string]string{
		"last_name":     "Smith",
		"date_of_birth": "1990-06-15",
	}, &regResp)
	if w.Code != http.StatusOK {
		t.Fatalf("registration number: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(regResp.Next, "/sign-in/confirm?") {
		t.Fatalf("expected the confirmation step next, got %s", regResp.Next)
	}

	// Step 4: final confirmation routes back to the authorization endpoint.
	var finalResp struct {
		Next string `json:"next"`
	}
	w = postJSON(t, r, "/sign-in/confirm"+suffix, map[string]string{"first_name": "Jo"}, &finalResp)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(finalResp.Next, "/oauth2/authorize?") {
		t.Fatalf("expected to continue at the authorization endpoint, got %s", finalResp.Next)
	}

	// Step 5: the completed journey hands off to the protocol engine.
	location = getRedirect(t, r, finalResp.Next)
	redirect, err := url.Parse(location)
	if err != nil {
		t.Fatalf("parse final redirect: %v", err)
	}
	if redirect.Host != "client.example" {
		t.Fatalf("expected the client redirect uri, got %s", location)
	}
	if redirect.Query().Get("id_token") == "" {
		t.Fatalf("expected an id_token on the final redirect, got %s", location)
	}
}

func TestStepsRequireAJourney(t *testing.T) {
	r := newJourneyRouter(t)

	w := postJSON(t, r, "/sign-in/email", map[string]string{"email": "jo@example.com"}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a journey, got %d", w.Code)
	}
}

func TestAuthorizeRejectsIncompleteRequest(t *testing.T) {
	r := newJourneyRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?client_id=client", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a request without redirect_uri, got %d", w.Code)
	}
}

func TestAuthorizeRejectsTamperedResume(t *testing.T) {
	r := newJourneyRouter(t)

	location := getRedirect(t, r, "/oauth2/authorize?client_id=client&redirect_uri=https%3A%2F%2Fclient.example%2Fcallback&scope=openid")
	parsed, _ := url.Parse(location)
	journeyID := parsed.Query().Get("journey_id")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/oauth2/authorize?client_id=client&redirect_uri=https%3A%2F%2Fevil.example%2Fcallback&scope=openid&journey_id="+journeyID, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a mismatched resume, got %d", w.Code)
	}
}
