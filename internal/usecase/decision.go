package usecase

import (
	"net/url"
	"strings"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
)

// Step identifies the next page of the verification journey.
type Step string

const (
	// StepEmail collects the user's email address.
	StepEmail Step = "email"
	// StepEmailConfirmation proves ownership via the one-time code.
	StepEmailConfirmation Step = "email-confirmation"
	// StepRegistrationNumber resolves the professional registration number.
	StepRegistrationNumber Step = "registration-number"
	// StepConfirmation is the final details confirmation page.
	StepConfirmation Step = "confirmation"
	// StepComplete hands control back to the protocol engine.
	StepComplete Step = "complete"
)

// DecisionEngine computes the next step of a journey as a pure function of
// the current journey state. Re-evaluation after any single mutation
// converges to the next unmet requirement; no separate "current step" is
// tracked.
type DecisionEngine struct {
	authorizePath string
	queryParam    string
	stepPaths     map[Step]string
}

// NewDecisionEngine constructs an engine routing to the given entry point and
// journey-id query parameter name.
func NewDecisionEngine(authorizePath, queryParam string) *DecisionEngine {
	if authorizePath == "" {
		authorizePath = "/oauth2/authorize"
	}
	if queryParam == "" {
		queryParam = "journey_id"
	}
	return &DecisionEngine{
		authorizePath: authorizePath,
		queryParam:    queryParam,
		stepPaths: map[Step]string{
			StepEmail:              "/sign-in/email",
			StepEmailConfirmation:  "/sign-in/email/confirm",
			StepRegistrationNumber: "/sign-in/registration-number",
			StepConfirmation:       "/sign-in/confirm",
		},
	}
}

// NextStep evaluates the fixed priority order: email missing, email not
// proven, registration number unresolved when required, confirmation not
// acknowledged, complete.
func (e *DecisionEngine) NextStep(journey *domain.Journey) Step {
	switch {
	case journey.EmailAddress == "":
		return StepEmail
	case !journey.EmailVerified:
		return StepEmailConfirmation
	case journey.Requirements.RegistrationNumber && journey.RegistrationNumber == "" && !journey.LookupCompleted:
		return StepRegistrationNumber
	case !journey.Confirmed:
		return StepConfirmation
	default:
		return StepComplete
	}
}

// NextURL maps the computed step to its page URL, always reattaching the
// journey id as a query parameter. StepComplete routes back to the engine's
// entry point via ContinueURL.
func (e *DecisionEngine) NextURL(journey *domain.Journey) string {
	step := e.NextStep(journey)
	if step == StepComplete {
		return e.ContinueURL(journey)
	}
	return e.stepPaths[step] + "?" + e.queryParam + "=" + journey.ID.String()
}

// ContinueURL rebuilds the authorization entry-point URL from the journey's
// original request. The force-login scope is stripped to avoid an infinite
// prompt loop, and the journey id is reattached.
func (e *DecisionEngine) ContinueURL(journey *domain.Journey) string {
	request := journey.AuthRequest.WithoutScope(domain.ScopeForceLogin)

	query := url.Values{}
	query.Set("client_id", request.ClientID)
	query.Set("redirect_uri", request.RedirectURI)
	if len(request.Scopes) > 0 {
		query.Set("scope", strings.Join(request.Scopes, " "))
	}
	query.Set(e.queryParam, journey.ID.String())

	return e.authorizePath + "?" + query.Encode()
}
