// Package nvd resolves vulnerability identifiers to enrichment metadata
// through the NVD-shaped CVE API, behind the durable cache, a shared rate
// limiter, and a bounded retry loop.
package nvd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/great-insider/insightshield/api/schemas"
	"github.com/great-insider/insightshield/internal/cache"
	"github.com/great-insider/insightshield/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// attemptOutcome classifies the result of one request attempt. Modeling the
// retry decision as data keeps the loop itself trivial.
type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeNotFound
	outcomeRetryable
	outcomeTerminal
)

// attempt is one request's classified result.
type attempt struct {
	outcome attemptOutcome
	item    *cveItem
	err     error
}

// Client resolves identifiers against the metadata source. The limiter is
// injected and shared across every identifier in the run; the source
// enforces a global request-rate ceiling, so the limiter must be too.
type Client struct {
	cfg     config.FetcherConfig
	http    *http.Client
	limiter *rate.Limiter
	cache   *cache.Cache
	log     *zap.Logger
	group   singleflight.Group

	// sleep is the backoff delay hook, replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New builds a client around the shared limiter and cache.
func New(cfg config.FetcherConfig, limiter *rate.Limiter, c *cache.Cache, logger *zap.Logger) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		cache:   c,
		log:     logger.Named("nvd"),
		sleep:   sleepCtx,
	}
}

// Resolve returns the enrichment record for an identifier. It never fails
// for "not found": terminal outcomes are encoded in the record's
// SourceStatus. Concurrent resolves of the same identifier collapse into a
// single fetch.
func (c *Client) Resolve(ctx context.Context, id string) schemas.EnrichmentRecord {
	id = schemas.NormalizeIdentifier(id)

	if rec, ok := c.cache.Lookup(ctx, id); ok {
		c.hits.Add(1)
		return *rec
	}
	c.misses.Add(1)

	v, _, _ := c.group.Do(id, func() (any, error) {
		// A concurrent caller may have fetched and cached the identifier
		// while this one waited on the flight group.
		if rec, ok := c.cache.Lookup(ctx, id); ok {
			return *rec, nil
		}
		return c.fetch(ctx, id), nil
	})
	return v.(schemas.EnrichmentRecord)
}

// Stats reports how many resolutions were served from the cache versus
// needing a fetch, for batch-level diagnostics.
func (c *Client) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// fetch runs the bounded retry loop and applies the cache policy: found and
// not-found results are cached with the normal TTL, exhaustion is cached as
// an error record with the short TTL, and a cancelled fetch is not cached
// at all.
func (c *Client) fetch(ctx context.Context, id string) schemas.EnrichmentRecord {
	now := time.Now().UTC()

	for att := 1; att <= c.cfg.RetryAttempts; att++ {
		if att > 1 {
			if err := c.sleep(ctx, Backoff(c.cfg.BackoffBase, c.cfg.BackoffCap, att-1)); err != nil {
				return errorRecord(id, now)
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			// Cancelled while queued; nothing happened, so cache nothing.
			return errorRecord(id, now)
		}

		res := c.do(ctx, id)
		switch res.outcome {
		case outcomeSuccess:
			rec := res.item.toRecord(id, now)
			c.cache.Store(ctx, rec)
			return rec
		case outcomeNotFound:
			// Stable negative result, safe to cache for the full TTL.
			rec := schemas.EnrichmentRecord{
				ID:           id,
				SourceStatus: schemas.StatusNotFound,
				LastModified: now,
			}
			c.cache.Store(ctx, rec)
			c.log.Debug("Identifier unknown to metadata source", zap.String("id", id))
			return rec
		case outcomeRetryable:
			c.log.Warn("Transient fetch failure",
				zap.String("id", id),
				zap.Int("attempt", att),
				zap.Error(res.err))
			if ctx.Err() != nil {
				return errorRecord(id, now)
			}
		case outcomeTerminal:
			c.log.Error("Unrecoverable fetch failure",
				zap.String("id", id), zap.Error(res.err))
			rec := errorRecord(id, now)
			c.cache.Store(ctx, rec)
			return rec
		}
	}

	c.log.Warn("Retries exhausted for identifier",
		zap.String("id", id),
		zap.Int("attempts", c.cfg.RetryAttempts))
	rec := errorRecord(id, now)
	// Cached with the short error TTL so a later run tries again instead of
	// treating the identifier as permanently unknown.
	c.cache.Store(ctx, rec)
	return rec
}

// do issues a single request and classifies the result.
func (c *Client) do(ctx context.Context, id string) attempt {
	u := fmt.Sprintf("%s?cveId=%s", c.cfg.BaseURL, url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return attempt{outcome: outcomeTerminal, err: err}
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("apiKey", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are worth retrying; a dead
		// context is not.
		if ctx.Err() != nil {
			return attempt{outcome: outcomeTerminal, err: ctx.Err()}
		}
		return attempt{outcome: outcomeRetryable, err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Fall through to decode.
	case resp.StatusCode == http.StatusNotFound:
		return attempt{outcome: outcomeNotFound}
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden, // NVD signals rate limiting with 403
		resp.StatusCode >= 500:
		return attempt{outcome: outcomeRetryable, err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return attempt{outcome: outcomeTerminal, err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return attempt{outcome: outcomeRetryable, err: fmt.Errorf("reading response: %w", err)}
	}
	var payload apiResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return attempt{outcome: outcomeRetryable, err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(payload.Vulnerabilities) == 0 {
		// The API answers 200 with an empty vulnerabilities array for
		// unknown identifiers.
		return attempt{outcome: outcomeNotFound}
	}
	return attempt{outcome: outcomeSuccess, item: &payload.Vulnerabilities[0].CVE}
}

// Backoff is the delay before retry number attempt (1-based): the base
// doubled per attempt, clamped at limit. A pure function of its inputs.
func Backoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

func errorRecord(id string, now time.Time) schemas.EnrichmentRecord {
	return schemas.EnrichmentRecord{
		ID:           id,
		SourceStatus: schemas.StatusError,
		LastModified: now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
