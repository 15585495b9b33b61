package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/great-insider/insightshield/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the Postgres backend can be mocked in
// tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore is the shared cache backend for team deployments, where
// several analysts run against the same enrichment cache.
type PostgresStore struct {
	pool DBPool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS enrichment_cache (
	id         TEXT PRIMARY KEY,
	record     JSONB       NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);`

// OpenPostgres connects to the given database URL and ensures the cache
// table exists.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to cache database: %w", err)
	}
	store, err := NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgres wraps an existing pool, verifying connectivity and schema.
func NewPostgres(ctx context.Context, pool DBPool) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Get returns the stored entry for id, or (nil, nil) when absent.
func (s *PostgresStore) Get(ctx context.Context, id string) (*schemas.CacheEntry, error) {
	var (
		raw       []byte
		fetchedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT record, fetched_at FROM enrichment_cache WHERE id = $1;`, id,
	).Scan(&raw, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec schemas.EnrichmentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding cached record %s: %w", id, err)
	}
	return &schemas.CacheEntry{Record: rec, FetchedAt: fetchedAt.UTC()}, nil
}

// Put inserts or overwrites the entry for id with a single upsert.
func (s *PostgresStore) Put(ctx context.Context, id string, entry schemas.CacheEntry) error {
	raw, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", id, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO enrichment_cache (id, record, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			record = EXCLUDED.record,
			fetched_at = EXCLUDED.fetched_at;
	`, id, raw, entry.FetchedAt.UTC())
	return err
}

// Clear removes every cached entry.
func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM enrichment_cache;`)
	return err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
