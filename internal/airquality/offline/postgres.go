package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/airstat/airstat/internal/airquality"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS offline_payloads (
    kind TEXT NOT NULL,
    id INTEGER NOT NULL,
    body BYTEA NOT NULL,
    fetched_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (kind, id)
);
`

// PostgresStore keeps payloads in a PostgreSQL table, one row per key, so
// several API replicas share one offline copy.
type PostgresStore struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewPostgresStore creates the offline_payloads table if needed. The caller
// keeps ownership of pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create offline schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Save upserts the payload for key.
func (s *PostgresStore) Save(ctx context.Context, key airquality.CacheKey, body []byte, fetchedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO offline_payloads (kind, id, body, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, id) DO UPDATE SET
			body = EXCLUDED.body,
			fetched_at = EXCLUDED.fetched_at`,
		string(key.Kind), key.ID, body, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Load returns the payload stored for key.
func (s *PostgresStore) Load(ctx context.Context, key airquality.CacheKey) (*airquality.CachedPayload, error) {
	payload := airquality.CachedPayload{Key: key}
	err := s.pool.QueryRow(ctx,
		`SELECT body, fetched_at FROM offline_payloads WHERE kind = $1 AND id = $2`,
		string(key.Kind), key.ID,
	).Scan(&payload.Body, &payload.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, airquality.ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return &payload, nil
}

// Ping checks the pool connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool if Open connected it.
func (s *PostgresStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
