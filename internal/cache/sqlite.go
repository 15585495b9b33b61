package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	"github.com/great-insider/insightshield/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sqliteSchema holds one row per identifier. The record column is the JSON
// encoding of the EnrichmentRecord; fetched_at is Unix seconds.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS enrichment_cache (
	id         TEXT PRIMARY KEY,
	record     TEXT    NOT NULL,
	fetched_at INTEGER NOT NULL
);`

// SQLiteStore is the default cache backend: a single local database file
// that survives process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the cache database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the stored entry for id, or (nil, nil) when absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*schemas.CacheEntry, error) {
	var (
		raw       []byte
		fetchedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT record, fetched_at FROM enrichment_cache WHERE id = ?;`, id,
	).Scan(&raw, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec schemas.EnrichmentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding cached record %s: %w", id, err)
	}
	return &schemas.CacheEntry{Record: rec, FetchedAt: time.Unix(fetchedAt, 0).UTC()}, nil
}

// Put inserts or overwrites the entry for id. The single-statement upsert
// keeps the row consistent: either the old record or the new one is visible,
// never a mix.
func (s *SQLiteStore) Put(ctx context.Context, id string, entry schemas.CacheEntry) error {
	raw, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrichment_cache (id, record, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			record = excluded.record,
			fetched_at = excluded.fetched_at;
	`, id, raw, entry.FetchedAt.Unix())
	return err
}

// Clear removes every cached entry.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM enrichment_cache;`)
	return err
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
