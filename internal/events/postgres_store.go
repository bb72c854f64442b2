package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements ProcessedStore on a processed_events table.
// Useful when the service runs without Redis but with a shared database.
type PostgresStore struct {
	pool      rowQuerier
	retention time.Duration
}

func NewPostgresStore(pool *pgxpool.Pool, retention time.Duration) *PostgresStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newPostgresStoreWithExec(pool, retention)
}

func newPostgresStoreWithExec(exec rowQuerier, retention time.Duration) *PostgresStore {
	if exec == nil {
		panic("events: exec required")
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &PostgresStore{pool: exec, retention: retention}
}

// EnsureSchema creates the processed_events table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS processed_events (
			event_id TEXT PRIMARY KEY,
			seen_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("events: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) AlreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE event_id = $1 AND seen_at > $2`
	var exists int
	if err := s.pool.QueryRow(ctx, query, eventID, time.Now().Add(-s.retention)).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	// Expired rows are reclaimed opportunistically on insert so the table
	// stays bounded without a separate janitor.
	cutoff := time.Now().Add(-s.retention)
	if _, err := s.pool.Exec(ctx, `DELETE FROM processed_events WHERE seen_at <= $1`, cutoff); err != nil {
		return false, fmt.Errorf("events: prune processed: %w", err)
	}

	query := `
		INSERT INTO processed_events (event_id, seen_at)
		VALUES ($1, now())
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
