package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
)

// CodeLedger is the durable record of issued one-time codes.
type CodeLedger interface {
	// Insert stores the code and, in the same unit of work, deactivates every
	// other active code for the same destination. A unique-constraint clash on
	// (destination, code) is reported as domain.InsertConflict, not an error.
	Insert(ctx context.Context, code domain.VerificationCode) (domain.InsertOutcome, error)
	// Find returns the code bound to the destination and exact code value, or
	// repository.ErrNotFound.
	Find(ctx context.Context, destination, code string) (*domain.VerificationCode, error)
	// Consume atomically deactivates the code and stamps verified_at. It
	// reports false when the code was no longer active, which a verification
	// racing a concurrent re-issuance may legitimately observe.
	Consume(ctx context.Context, id uuid.UUID) (bool, error)
}
