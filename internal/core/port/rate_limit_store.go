package port

import "context"

// RateLimitPurpose scopes abuse counters so issuance and verification are
// throttled independently for the same client IP.
type RateLimitPurpose string

const (
	// PurposeIssue throttles one-time-code issuance.
	PurposeIssue RateLimitPurpose = "issue"
	// PurposeVerify throttles verification attempts.
	PurposeVerify RateLimitPurpose = "verify"
)

// RateLimitStore keeps per-client-IP counters with automatic expiry. The
// increment-and-set-expiry-if-absent operation must be atomic with respect to
// concurrent callers on the same key; a counter's window is never extended by
// increments after the first.
type RateLimitStore interface {
	RecordEvent(ctx context.Context, ip string, purpose RateLimitPurpose) error
	// IsBlocked compares the current count against the configured maximum for
	// the purpose. A missing counter is never blocked.
	IsBlocked(ctx context.Context, ip string, purpose RateLimitPurpose) (bool, error)
}

// UnlimitedRateLimitStore is a no-op limiter for non-production environments.
// It discards events and never blocks, substitutable without changing callers.
type UnlimitedRateLimitStore struct{}

// RecordEvent discards the event.
func (UnlimitedRateLimitStore) RecordEvent(context.Context, string, RateLimitPurpose) error {
	return nil
}

// IsBlocked always reports unblocked.
func (UnlimitedRateLimitStore) IsBlocked(context.Context, string, RateLimitPurpose) (bool, error) {
	return false, nil
}
