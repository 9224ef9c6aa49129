package offline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/airstat/airstat/internal/airquality"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS offline_payloads (
    kind TEXT NOT NULL,
    id INTEGER NOT NULL,
    body BLOB NOT NULL,
    fetched_at INTEGER NOT NULL, -- unix milliseconds
    PRIMARY KEY (kind, id)
);
`

// SQLiteStore keeps payloads in a SQLite table, one row per key.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the offline_payloads table if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create offline schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts the payload for key.
func (s *SQLiteStore) Save(ctx context.Context, key airquality.CacheKey, body []byte, fetchedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offline_payloads (kind, id, body, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			body = excluded.body,
			fetched_at = excluded.fetched_at`,
		string(key.Kind), key.ID, body, fetchedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Load returns the payload stored for key.
func (s *SQLiteStore) Load(ctx context.Context, key airquality.CacheKey) (*airquality.CachedPayload, error) {
	var (
		body      []byte
		fetchedMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT body, fetched_at FROM offline_payloads WHERE kind = ? AND id = ?`,
		string(key.Kind), key.ID,
	).Scan(&body, &fetchedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, airquality.ErrNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	return &airquality.CachedPayload{
		Key:       key,
		Body:      body,
		FetchedAt: time.UnixMilli(fetchedMs),
	}, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
