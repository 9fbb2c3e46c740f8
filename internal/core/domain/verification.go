package domain

import (
	"time"

	"github.com/google/uuid"
)

// CodeLength is the number of digits in a verification code. Codes are drawn
// from [10000, 99999] so a leading zero never occurs.
const (
	CodeLength = 5
	CodeMin    = 10000
	CodeMax    = 99999
)

// VerificationCode is a short-lived numeric code bound to a destination
// (email address or phone number).
type VerificationCode struct {
	ID          uuid.UUID
	Destination string
	Code        string
	ExpiresAt   time.Time
	IsActive    bool
	VerifiedAt  *time.Time
	CreatedAt   time.Time
}

// Expired reports whether the code is past its expiry at the given instant.
func (c VerificationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// InsertOutcome is the explicit result of a ledger insert, so the issue-retry
// loop is a normal branch rather than driven by store-specific errors.
type InsertOutcome int

const (
	// InsertAccepted means the code row was stored and all other active codes
	// for the destination were deactivated in the same unit of work.
	InsertAccepted InsertOutcome = iota
	// InsertConflict means a row with the same destination and code value
	// already exists; the caller regenerates and retries.
	InsertConflict
)

// VerifyStatus enumerates the outcome of checking a submitted code.
type VerifyStatus int

const (
	// VerifyUnknown means no code matched the destination and value.
	VerifyUnknown VerifyStatus = iota
	// VerifyNotActive means the code matched but was already consumed or
	// superseded by a later issuance.
	VerifyNotActive
	// VerifyExpired means the code matched but is past its expiry.
	VerifyExpired
	// VerifySuccess means the code matched and was consumed atomically.
	VerifySuccess
	// VerifyRateLimited means the caller is throttled; the ledger was not
	// consulted.
	VerifyRateLimited
)

// String names the status for logs and tests.
func (s VerifyStatus) String() string {
	switch s {
	case VerifyUnknown:
		return "unknown"
	case VerifyNotActive:
		return "not_active"
	case VerifyExpired:
		return "expired"
	case VerifySuccess:
		return "success"
	case VerifyRateLimited:
		return "rate_limited"
	default:
		return "invalid"
	}
}

// VerifyResult is the full outcome of a verification attempt.
type VerifyResult struct {
	Status VerifyStatus
	// ExpiredRecently is set alongside VerifyExpired when the code expired
	// within the grace window, signalling the caller should silently reissue
	// a fresh code instead of surfacing a dead end.
	ExpiredRecently bool
}
