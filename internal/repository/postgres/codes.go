package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/repository"
)

const uniqueViolationCode = "23505"

// txBeginner is satisfied by pgxpool.Pool and pgxmock pools alike.
type txBeginner interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CodeLedgerRepository implements port.CodeLedger using PostgreSQL.
type CodeLedgerRepository struct {
	exec    txBeginner
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewCodeLedgerRepository constructs a ledger backed by any executor that can
// open transactions.
func NewCodeLedgerRepository(exec txBeginner) *CodeLedgerRepository {
	return &CodeLedgerRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (r *CodeLedgerRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Insert stores the code and deactivates every other active code for the
// destination in the same transaction. A unique-constraint clash on
// (destination, code) is reported as domain.InsertConflict.
func (r *CodeLedgerRepository) Insert(ctx context.Context, code domain.VerificationCode) (domain.InsertOutcome, error) {
	tx, err := r.exec.Begin(ctx)
	if err != nil {
		return domain.InsertConflict, fmt.Errorf("begin insert code tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	insert, args, err := r.builder.Insert("idp.verification_codes").
		Columns("id", "destination", "code", "expires_at", "is_active", "verified_at", "created_at").
		Values(code.ID, code.Destination, code.Code, code.ExpiresAt, code.IsActive, code.VerifiedAt, code.CreatedAt).
		ToSql()
	if err != nil {
		return domain.InsertConflict, fmt.Errorf("build insert code sql: %w", err)
	}

	if _, err := tx.Exec(ctx, insert, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.InsertConflict, nil
		}
		return domain.InsertConflict, fmt.Errorf("insert verification code: %w", err)
	}

	deactivate, args, err := r.builder.Update("idp.verification_codes").
		Set("is_active", false).
		Where(squirrel.Eq{"destination": code.Destination, "is_active": true}).
		Where(squirrel.NotEq{"id": code.ID}).
		ToSql()
	if err != nil {
		return domain.InsertConflict, fmt.Errorf("build deactivate codes sql: %w", err)
	}

	if _, err := tx.Exec(ctx, deactivate, args...); err != nil {
		return domain.InsertConflict, fmt.Errorf("deactivate superseded codes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.InsertConflict, fmt.Errorf("commit insert code tx: %w", err)
	}

	return domain.InsertAccepted, nil
}

// Find returns the code bound to the destination and exact code value.
func (r *CodeLedgerRepository) Find(ctx context.Context, destination, code string) (*domain.VerificationCode, error) {
	stmt, args, err := r.builder.
		Select("id", "destination", "code", "expires_at", "is_active", "verified_at", "created_at").
		From("idp.verification_codes").
		Where(squirrel.Eq{"destination": destination, "code": code}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select code sql: %w", err)
	}

	var (
		record     domain.VerificationCode
		verifiedAt *time.Time
	)
	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(
		&record.ID,
		&record.Destination,
		&record.Code,
		&record.ExpiresAt,
		&record.IsActive,
		&verifiedAt,
		&record.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification code: %w", err)
	}

	record.VerifiedAt = verifiedAt
	return &record, nil
}

// Consume atomically deactivates the code and stamps verified_at, reporting
// whether the code was still active.
func (r *CodeLedgerRepository) Consume(ctx context.Context, id uuid.UUID) (bool, error) {
	stmt, args, err := r.builder.Update("idp.verification_codes").
		Set("is_active", false).
		Set("verified_at", r.now().UTC()).
		Where(squirrel.Eq{"id": id, "is_active": true}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build consume code sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

var _ port.CodeLedger = (*CodeLedgerRepository)(nil)
