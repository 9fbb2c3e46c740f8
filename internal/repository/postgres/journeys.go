package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/repository"
)

// JourneyRepository implements port.JourneyRepository using PostgreSQL. Rows
// hold the journey id, an opaque serialized payload, and timestamps; journeys
// are never deleted here and expire via the store's retention sweep.
type JourneyRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewJourneyRepository constructs a PostgreSQL-backed journey repository.
func NewJourneyRepository(exec pgExecutor) *JourneyRepository {
	return &JourneyRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Upsert inserts or updates the journey record keyed by its id, refreshing
// the payload and last_accessed_at on conflict.
func (r *JourneyRepository) Upsert(ctx context.Context, record domain.JourneyRecord) error {
	stmt, args, err := r.builder.Insert("idp.journeys").
		Columns("id", "payload", "started_at", "last_accessed_at").
		Values(record.ID, record.Payload, record.StartedAt, record.LastAccessedAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, last_accessed_at = EXCLUDED.last_accessed_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert journey sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert journey: %w", err)
	}

	return nil
}

// Get retrieves the journey record by id.
func (r *JourneyRepository) Get(ctx context.Context, id uuid.UUID) (*domain.JourneyRecord, error) {
	stmt, args, err := r.builder.
		Select("id", "payload", "started_at", "last_accessed_at").
		From("idp.journeys").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select journey sql: %w", err)
	}

	var record domain.JourneyRecord
	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(&record.ID, &record.Payload, &record.StartedAt, &record.LastAccessedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan journey: %w", err)
	}

	return &record, nil
}

var _ port.JourneyRepository = (*JourneyRepository)(nil)
