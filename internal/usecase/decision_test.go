package usecase

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
)

func newTestJourney(scopes ...string) *domain.Journey {
	return domain.NewJourney(domain.AuthorizationRequest{
		ClientID:    "client",
		RedirectURI: "https://client.example/callback",
		Scopes:      scopes,
	}, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestNextStepWalksEveryRequirement(t *testing.T) {
	engine := NewDecisionEngine("", "")
	journey := newTestJourney(domain.ScopeOpenID, domain.ScopeRegistrationNumber)

	if step := engine.NextStep(journey); step != StepEmail {
		t.Fatalf("expected email step first, got %v", step)
	}

	journey.EmailAddress = "jo@example.com"
	if step := engine.NextStep(journey); step != StepEmailConfirmation {
		t.Fatalf("expected email confirmation next, got %v", step)
	}

	journey.EmailVerified = true
	if step := engine.NextStep(journey); step != StepRegistrationNumber {
		t.Fatalf("expected registration number next, got %v", step)
	}

	journey.RegistrationNumber = "1234567"
	if step := engine.NextStep(journey); step != StepConfirmation {
		t.Fatalf("expected confirmation next, got %v", step)
	}

	journey.Confirmed = true
	if step := engine.NextStep(journey); step != StepComplete {
		t.Fatalf("expected complete, got %v", step)
	}

	// Re-evaluation without a mutation converges.
	if step := engine.NextStep(journey); step != StepComplete {
		t.Fatalf("expected the evaluation to be stable, got %v", step)
	}
}

func TestNextStepSkipsRegistrationNumberWhenNotRequested(t *testing.T) {
	engine := NewDecisionEngine("", "")
	journey := newTestJourney(domain.ScopeOpenID)

	journey.EmailAddress = "jo@example.com"
	journey.EmailVerified = true

	if step := engine.NextStep(journey); step != StepConfirmation {
		t.Fatalf("expected the registration step to be skipped, got %v", step)
	}
}

func TestNextStepTreatsExhaustedLookupAsResolved(t *testing.T) {
	engine := NewDecisionEngine("", "")
	journey := newTestJourney(domain.ScopeOpenID, domain.ScopeRegistrationNumber)

	journey.EmailAddress = "jo@example.com"
	journey.EmailVerified = true
	journey.LookupCompleted = true

	if step := engine.NextStep(journey); step != StepConfirmation {
		t.Fatalf("expected an exhausted lookup to move the journey on, got %v", step)
	}
}

func TestNextURLCarriesJourneyID(t *testing.T) {
	engine := NewDecisionEngine("", "journey_id")
	journey := newTestJourney(domain.ScopeOpenID)

	next := engine.NextURL(journey)
	if !strings.HasPrefix(next, "/sign-in/email?") {
		t.Fatalf("expected the email page, got %s", next)
	}
	if !strings.Contains(next, "journey_id="+journey.ID.String()) {
		t.Fatalf("expected the journey id to be reattached, got %s", next)
	}
}

func TestContinueURLStripsForceLogin(t *testing.T) {
	engine := NewDecisionEngine("/oauth2/authorize", "journey_id")
	journey := newTestJourney(domain.ScopeOpenID, domain.ScopeForceLogin)

	continueURL := engine.ContinueURL(journey)

	parsed, err := url.Parse(continueURL)
	if err != nil {
		t.Fatalf("continue URL did not parse: %v", err)
	}
	if parsed.Path != "/oauth2/authorize" {
		t.Fatalf("expected the authorize entry point, got %s", parsed.Path)
	}

	query := parsed.Query()
	if scope := query.Get("scope"); strings.Contains(scope, domain.ScopeForceLogin) {
		t.Fatalf("force-login must be stripped from the rebuilt request, got %q", scope)
	}
	if query.Get("journey_id") != journey.ID.String() {
		t.Fatalf("expected the journey id in the continue URL")
	}
	if query.Get("client_id") != "client" {
		t.Fatalf("expected the original client id, got %q", query.Get("client_id"))
	}
}
