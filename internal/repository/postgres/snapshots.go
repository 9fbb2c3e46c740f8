package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/domain"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
)

// SnapshotRepository implements port.SnapshotStore using PostgreSQL. The
// snapshots table is append-only.
type SnapshotRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSnapshotRepository constructs a PostgreSQL-backed snapshot store.
func NewSnapshotRepository(exec pgExecutor) *SnapshotRepository {
	return &SnapshotRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create appends an immutable journey snapshot.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot domain.JourneySnapshot) error {
	stmt, args, err := r.builder.Insert("idp.journey_snapshots").
		Columns("id", "journey_id", "payload", "captured_at").
		Values(snapshot.ID, snapshot.JourneyID, snapshot.Payload, snapshot.CapturedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert snapshot sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert journey snapshot: %w", err)
	}

	return nil
}

var _ port.SnapshotStore = (*SnapshotRepository)(nil)
