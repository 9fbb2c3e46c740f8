package port

import (
	"context"
	"time"
)

// RegistrationLookupQuery carries the attributes used to resolve a
// professional registration number for a user who does not know theirs.
type RegistrationLookupQuery struct {
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Email       string
}

// RegistrationLookup resolves professional registration numbers against the
// external register. Returns repository.ErrNotFound when no match exists.
type RegistrationLookup interface {
	FindRegistrationNumber(ctx context.Context, query RegistrationLookupQuery) (string, error)
}
