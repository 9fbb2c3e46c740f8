package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Scope constants understood by the journey engine. The protocol engine may
// request additional scopes; only these influence journey requirements.
const (
	// ScopeOpenID is the baseline OIDC scope every authorization request carries.
	ScopeOpenID = "openid"
	// ScopeRegistrationNumber requires the journey to resolve a professional
	// registration number before it can complete.
	ScopeRegistrationNumber = "registration-number"
	// ScopeForceLogin forces a fresh journey even when a completed one exists.
	// It is stripped when rebuilding the follow-up authorization URL so the
	// engine does not prompt in a loop.
	ScopeForceLogin = "force-login"
)

// AuthorizationRequest is the parsed OAuth2/OIDC authorization request handed
// to the journey engine by the protocol engine.
type AuthorizationRequest struct {
	ClientID    string   `json:"client_id"`
	RedirectURI string   `json:"redirect_uri"`
	Scopes      []string `json:"scopes"`
}

// HasScope reports whether the request carries the named scope.
func (r AuthorizationRequest) HasScope(scope string) bool {
	for _, s := range r.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// WithoutScope returns a copy of the request with the named scope removed.
func (r AuthorizationRequest) WithoutScope(scope string) AuthorizationRequest {
	scopes := make([]string, 0, len(r.Scopes))
	for _, s := range r.Scopes {
		if s != scope {
			scopes = append(scopes, s)
		}
	}
	out := r
	out.Scopes = scopes
	return out
}

// Matches reports whether two requests describe the same authorization
// attempt. A resumed journey presented alongside a different request is
// treated as tampered.
func (r AuthorizationRequest) Matches(other AuthorizationRequest) bool {
	if r.ClientID != other.ClientID || r.RedirectURI != other.RedirectURI {
		return false
	}
	if len(r.Scopes) != len(other.Scopes) {
		return false
	}
	seen := make(map[string]int, len(r.Scopes))
	for _, s := range r.Scopes {
		seen[s]++
	}
	for _, s := range other.Scopes {
		seen[s]--
		if seen[s] < 0 {
			return false
		}
	}
	return true
}

// Requirements captures what the completing user must prove, derived once at
// journey creation from the requested scopes.
type Requirements struct {
	ProvenEmail        bool `json:"proven_email"`
	RegistrationNumber bool `json:"registration_number"`
}

// RequirementsFromScopes derives journey requirements from the requested
// scopes. Every journey requires a proven email address.
func RequirementsFromScopes(scopes []string) Requirements {
	req := Requirements{ProvenEmail: true}
	for _, s := range scopes {
		if s == ScopeRegistrationNumber {
			req.RegistrationNumber = true
		}
	}
	return req
}

// Journey is the unit of work for one sign-in attempt. It accumulates
// identity attributes as the user progresses through the verification steps
// and is serialized to a journey store after every request that touched it.
type Journey struct {
	ID           uuid.UUID            `json:"journey_id"`
	Requirements Requirements         `json:"requirements"`
	AuthRequest  AuthorizationRequest `json:"oauth_request"`

	UserID             string     `json:"user_id,omitempty"`
	EmailAddress       string     `json:"email_address,omitempty"`
	EmailVerified      bool       `json:"email_verified"`
	FirstName          string     `json:"first_name,omitempty"`
	LastName           string     `json:"last_name,omitempty"`
	DateOfBirth        *time.Time `json:"date_of_birth,omitempty"`
	RegistrationNumber string     `json:"registration_number,omitempty"`
	// LookupCompleted is set once the registration-number lookup has finished,
	// whether it resolved a number or exhausted its attempt budget.
	LookupCompleted bool `json:"lookup_completed"`
	LookupAttempts  int  `json:"lookup_attempts"`
	// Confirmed tracks the final do-once confirmation step explicitly; every
	// other aspect of completeness is computed from the fields above.
	Confirmed bool `json:"confirmed"`

	StartedAt      time.Time `json:"started_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	// Visited records "METHOD /path" entries for diagnostics only.
	Visited []string `json:"visited,omitempty"`
}

// NewJourney creates a journey for the provided authorization request,
// deriving requirements from the requested scopes.
func NewJourney(req AuthorizationRequest, now time.Time) *Journey {
	now = now.UTC()
	return &Journey{
		ID:             uuid.New(),
		Requirements:   RequirementsFromScopes(req.Scopes),
		AuthRequest:    req,
		StartedAt:      now,
		LastAccessedAt: now,
	}
}

// IsComplete reports whether every attribute the journey's requirements
// demand is present. Completeness is a pure function of the current fields.
func (j *Journey) IsComplete() bool {
	if j.EmailAddress == "" || !j.EmailVerified {
		return false
	}
	if j.Requirements.RegistrationNumber && j.RegistrationNumber == "" && !j.LookupCompleted {
		return false
	}
	return j.Confirmed
}

// Reset clears accumulated identity attributes and refreshes started_at while
// keeping the same journey id, used when re-authentication is forced.
func (j *Journey) Reset(now time.Time) {
	j.UserID = ""
	j.EmailAddress = ""
	j.EmailVerified = false
	j.FirstName = ""
	j.LastName = ""
	j.DateOfBirth = nil
	j.RegistrationNumber = ""
	j.LookupCompleted = false
	j.LookupAttempts = 0
	j.Confirmed = false
	j.StartedAt = now.UTC()
}

// RecordVisit appends a "METHOD /path" entry to the diagnostic trail.
func (j *Journey) RecordVisit(method, path string) {
	j.Visited = append(j.Visited, method+" "+path)
}

// Touch refreshes last_accessed_at.
func (j *Journey) Touch(now time.Time) {
	j.LastAccessedAt = now.UTC()
}

// MarshalDiagnostic serializes the full journey state for snapshot capture.
func (j *Journey) MarshalDiagnostic() ([]byte, error) {
	return json.Marshal(j)
}

// IdentityClaims is the claim set handed back to the protocol engine when a
// journey completes. The engine mints tokens from it; the journey core never
// signs or encodes tokens itself.
type IdentityClaims struct {
	Subject            string     `json:"sub"`
	Email              string     `json:"email"`
	EmailVerified      bool       `json:"email_verified"`
	GivenName          string     `json:"given_name,omitempty"`
	FamilyName         string     `json:"family_name,omitempty"`
	BirthDate          *time.Time `json:"birthdate,omitempty"`
	RegistrationNumber string     `json:"registration_number,omitempty"`
}

// Claims builds the identity claims for a complete journey.
func (j *Journey) Claims() IdentityClaims {
	return IdentityClaims{
		Subject:            j.UserID,
		Email:              j.EmailAddress,
		EmailVerified:      j.EmailVerified,
		GivenName:          j.FirstName,
		FamilyName:         j.LastName,
		BirthDate:          j.DateOfBirth,
		RegistrationNumber: j.RegistrationNumber,
	}
}

// JourneyRecord is the durable-store representation of a journey: the id, an
// opaque serialized payload, and the store-maintained timestamps.
type JourneyRecord struct {
	ID             uuid.UUID
	Payload        []byte
	StartedAt      time.Time
	LastAccessedAt time.Time
}

// JourneySnapshot is an immutable timestamped copy of a journey's serialized
// state, captured when a request handling it fails unexpectedly.
type JourneySnapshot struct {
	ID         uuid.UUID
	JourneyID  uuid.UUID
	Payload    []byte
	CapturedAt time.Time
}
