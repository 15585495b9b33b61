// Package cache provides the durable enrichment cache: a key to metadata
// store with TTL expiry and explicit whole-cache invalidation. Storage
// backends are pluggable; the TTL and failure policy live here.
package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/great-insider/insightshield/api/schemas"
	"github.com/great-insider/insightshield/internal/config"
)

// Store is the durable backend under the cache. Get returns (nil, nil) when
// no entry exists; expiry is not the store's concern.
type Store interface {
	Get(ctx context.Context, id string) (*schemas.CacheEntry, error)
	Put(ctx context.Context, id string, entry schemas.CacheEntry) error
	Clear(ctx context.Context) error
	Close() error
}

// lockStripes bounds the number of distinct write locks. Writes for the same
// identifier always hash to the same stripe, which serializes them without a
// global lock across keys.
const lockStripes = 64

// Cache applies TTL policy and failure semantics on top of a Store.
// Reads fail open (a storage error is a miss, forcing a re-fetch); write
// errors are logged and swallowed, since a lost write only costs one future
// re-fetch.
type Cache struct {
	store    Store
	ttl      time.Duration
	errorTTL time.Duration
	log      *zap.Logger
	locks    [lockStripes]sync.Mutex

	now func() time.Time // injectable clock for tests
}

// New wraps a store with the configured TTL policy.
func New(store Store, cfg config.CacheConfig, logger *zap.Logger) *Cache {
	return &Cache{
		store:    store,
		ttl:      cfg.TTL,
		errorTTL: cfg.ErrorTTL,
		log:      logger.Named("cache"),
		now:      time.Now,
	}
}

// Lookup returns the cached record for id if present and unexpired.
// Expired entries are left in place; the next Store call overwrites them.
func (c *Cache) Lookup(ctx context.Context, id string) (*schemas.EnrichmentRecord, bool) {
	entry, err := c.store.Get(ctx, id)
	if err != nil {
		c.log.Warn("Cache read failed, treating as miss",
			zap.String("id", id), zap.Error(err))
		return nil, false
	}
	if entry == nil || c.Expired(entry, c.now()) {
		return nil, false
	}
	rec := entry.Record
	return &rec, true
}

// Expired reports whether an entry has outlived its TTL at the given time.
// Error records use the short error TTL so a later run retries them.
func (c *Cache) Expired(entry *schemas.CacheEntry, now time.Time) bool {
	ttl := c.ttl
	if entry.Record.SourceStatus == schemas.StatusError {
		ttl = c.errorTTL
	}
	return now.After(entry.FetchedAt.Add(ttl))
}

// Store persists a freshly resolved record. Writes for the same identifier
// are serialized; a storage error is logged and swallowed.
func (c *Cache) Store(ctx context.Context, rec schemas.EnrichmentRecord) {
	lock := &c.locks[stripe(rec.ID)]
	lock.Lock()
	defer lock.Unlock()

	entry := schemas.CacheEntry{Record: rec, FetchedAt: c.now()}
	if err := c.store.Put(ctx, rec.ID, entry); err != nil {
		c.log.Warn("Cache write failed, result not persisted",
			zap.String("id", rec.ID), zap.Error(err))
	}
}

// Clear removes every entry. This is the explicit whole-cache invalidation
// control; unlike reads and writes, a failure here is reported because the
// caller asked for it directly.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func stripe(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % lockStripes)
}
