package domain

import "time"

// JourneyStartedEvent represents the payload for idp.journey.started messages.
type JourneyStartedEvent struct {
	EventID   string
	JourneyID string
	ClientID  string
	Scopes    []string
	StartedAt time.Time
	Metadata  map[string]any
}

// JourneyCompletedEvent represents the payload for idp.journey.completed messages.
type JourneyCompletedEvent struct {
	EventID            string
	JourneyID          string
	ClientID           string
	UserID             string
	EmailVerified      bool
	RegistrationNumber string
	CompletedAt        time.Time
	Metadata           map[string]any
}

// JourneyResetEvent represents the payload for idp.journey.reset messages.
type JourneyResetEvent struct {
	EventID   string
	JourneyID string
	ClientID  string
	ResetAt   time.Time
	Reason    string
	Metadata  map[string]any
}

// CodeIssuedEvent represents the payload for idp.code.issued messages. The
// destination is masked before publication; the code value never leaves the
// service.
type CodeIssuedEvent struct {
	EventID           string
	JourneyID         string
	MaskedDestination string
	Channel           string
	ExpiresAt         time.Time
	IssuedAt          time.Time
	Metadata          map[string]any
}

// CodeVerifiedEvent represents the payload for idp.code.verified messages.
type CodeVerifiedEvent struct {
	EventID           string
	JourneyID         string
	MaskedDestination string
	Outcome           string
	VerifiedAt        time.Time
	Metadata          map[string]any
}
