package port

import (
	"context"
	"errors"
)

// ErrInvalidDestination is returned by a Notifier when the channel rejects
// the address or number itself, as opposed to a transport failure. It is the
// only notification-channel failure translated into a domain-level result.
var ErrInvalidDestination = errors.New("notifier: destination rejected")

// Notifier is the outbound notification channel. Implementing the transport
// is out of scope for this service.
type Notifier interface {
	SendEmail(ctx context.Context, destination, subject, body string) error
	SendSMS(ctx context.Context, destination, body string) error
}
