package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgExecutor is satisfied by pgxpool.Pool, pgx.Tx, and pgxmock pools, so
// repositories can run against a pool, a transaction, or a test double.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Codes     *CodeLedgerRepository
	Journeys  *JourneyRepository
	Snapshots *SnapshotRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Codes:     NewCodeLedgerRepository(pool),
		Journeys:  NewJourneyRepository(pool),
		Snapshots: NewSnapshotRepository(pool),
	}
}
