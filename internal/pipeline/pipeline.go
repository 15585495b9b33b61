// Package pipeline orchestrates a batch run: identifier resolution through
// the fetcher, catalog membership, classification, scoring, and the final
// deterministic ranking.
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/great-insider/insightshield/api/schemas"
	"github.com/great-insider/insightshield/internal/catalog"
	"github.com/great-insider/insightshield/internal/classify"
	"github.com/great-insider/insightshield/internal/scoring"
)

// Resolver is the identifier-to-metadata dependency, satisfied by the NVD
// client. Resolve never fails; degraded outcomes are encoded in the record.
type Resolver interface {
	Resolve(ctx context.Context, id string) schemas.EnrichmentRecord
}

// statser is optionally implemented by resolvers that track cache traffic.
type statser interface {
	Stats() (hits, misses uint64)
}

// Deps collects the pipeline's injected collaborators.
type Deps struct {
	Resolver    Resolver
	Catalog     *catalog.Catalog
	Scorer      *scoring.Engine
	Classifier  *classify.Classifier
	Concurrency int
	Logger      *zap.Logger

	// CatalogWarning carries the reason known-exploited detection is
	// degraded for the run (typically a feed that failed to load). Empty
	// means the catalog is healthy.
	CatalogWarning string
}

// Pipeline processes finding batches. One Pipeline serves one run; build a
// fresh one per run so stats and warnings do not leak between batches.
type Pipeline struct {
	deps Deps
	log  *zap.Logger
}

// New validates the dependency set and builds a pipeline.
func New(deps Deps) (*Pipeline, error) {
	if deps.Resolver == nil || deps.Catalog == nil || deps.Scorer == nil || deps.Classifier == nil {
		return nil, fmt.Errorf("cannot initialize pipeline with nil dependencies")
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 1
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, log: deps.Logger.Named("pipeline")}, nil
}

// Run enriches, scores, and ranks a whole batch. Every input finding yields
// exactly one scored finding; per-record degradation is carried in warnings,
// never by dropping records. The only error Run returns is cancellation.
func (p *Pipeline) Run(ctx context.Context, findings []schemas.Finding) (*schemas.BatchResult, error) {
	started := time.Now().UTC()
	runID := uuid.New().String()
	p.log.Info("Starting enrichment run",
		zap.String("runID", runID),
		zap.Int("findings", len(findings)))

	first := p.validate(findings)

	ids := distinctIdentifiers(findings, first)
	enrichment, err := p.resolveAll(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &schemas.BatchResult{
		RunID:     runID,
		StartedAt: started,
		Findings:  make([]schemas.ScoredFinding, 0, len(findings)),
	}
	result.Stats.Findings = len(findings)
	result.Stats.UniqueIDs = len(ids)
	if p.deps.CatalogWarning != "" {
		result.Warnings = append(result.Warnings, schemas.BatchWarning{
			Code:   schemas.BatchWarnCatalogUnavailable,
			Detail: p.deps.CatalogWarning,
		})
	}

	for _, rec := range enrichment {
		switch rec.SourceStatus {
		case schemas.StatusError:
			result.Stats.FetchErrors++
		case schemas.StatusNotFound:
			result.Stats.NotFound++
		}
	}

	for i := range findings {
		sf := p.scoreOne(&findings[i], !isInvalid(first, &findings[i], i), enrichment)
		p.tally(&result.Stats, &sf)
		result.Findings = append(result.Findings, sf)
	}

	if s, ok := p.deps.Resolver.(statser); ok {
		hits, misses := s.Stats()
		result.Stats.CacheHits = int(hits)
		result.Stats.CacheMisses = int(misses)
	}

	// Stable sort: equal-comparing findings keep input order, and the
	// comparator itself is a total order, so ranked output is reproducible
	// byte for byte.
	slices.SortStableFunc(result.Findings, func(a, b schemas.ScoredFinding) int {
		return scoring.Compare(&a, &b)
	})

	result.FinishedAt = time.Now().UTC()
	p.log.Info("Enrichment run complete",
		zap.String("runID", runID),
		zap.Int("unique_identifiers", result.Stats.UniqueIDs),
		zap.Int("cache_hits", result.Stats.CacheHits),
		zap.Int("fetch_errors", result.Stats.FetchErrors),
		zap.Duration("elapsed", result.FinishedAt.Sub(started)))
	return result, nil
}

// validate records batch invariants: the index of the first finding seen for
// each pluginID+host key. Later findings with the same key are invariant
// violations.
func (p *Pipeline) validate(findings []schemas.Finding) map[string]int {
	first := make(map[string]int, len(findings))
	for i := range findings {
		key := findings[i].Key()
		if prev, dup := first[key]; dup {
			p.log.Warn("Duplicate pluginID+host pair in batch",
				zap.String("key", key),
				zap.Int("first_row", prev),
				zap.Int("duplicate_row", i))
			continue
		}
		first[key] = i
	}
	return first
}

// isInvalid reports whether finding i is a duplicate occurrence of its key.
func isInvalid(first map[string]int, f *schemas.Finding, i int) bool {
	return first[f.Key()] != i
}

// distinctIdentifiers collects the deduplicated identifier set across the
// batch, skipping duplicate-key records, which are not enriched.
func distinctIdentifiers(findings []schemas.Finding, first map[string]int) []string {
	seen := make(map[string]struct{})
	var ids []string
	for i := range findings {
		if isInvalid(first, &findings[i], i) {
			continue
		}
		for _, raw := range findings[i].Identifiers {
			id := schemas.NormalizeIdentifier(raw)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// resolveAll fans out over the distinct identifiers with bounded
// concurrency. Each distinct identifier is resolved at most once per run;
// the resolver's own cache and flight-group collapse anything further.
// Cancellation stops scheduling new resolutions and propagates up.
func (p *Pipeline) resolveAll(ctx context.Context, ids []string) (map[string]*schemas.EnrichmentRecord, error) {
	out := make(map[string]*schemas.EnrichmentRecord, len(ids))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.deps.Concurrency)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := p.deps.Resolver.Resolve(ctx, id)
			mu.Lock()
			out[id] = &rec
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enrichment cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("enrichment cancelled: %w", err)
	}
	return out, nil
}

// scoreOne derives the scored finding for one input record. valid is false
// for records that violated batch invariants; those are not enriched or
// scored, only labeled.
func (p *Pipeline) scoreOne(f *schemas.Finding, valid bool, enrichment map[string]*schemas.EnrichmentRecord) schemas.ScoredFinding {
	sf := schemas.ScoredFinding{Finding: *f}

	if !valid {
		sf.Category = schemas.PriorityInformational
		sf.Warnings = append(sf.Warnings, schemas.RecordWarning{
			Code:   schemas.WarnDuplicateKey,
			Detail: fmt.Sprintf("pluginID+host %q appeared earlier in the batch", f.Key()),
		})
		return sf
	}

	if bad := invalidScores(f.RawScores); len(bad) > 0 {
		sf.Category = schemas.PriorityInformational
		for _, name := range bad {
			sf.Warnings = append(sf.Warnings, schemas.RecordWarning{
				Code:   schemas.WarnInvalidScore,
				Detail: fmt.Sprintf("raw score %q is out of range", name),
			})
		}
		return sf
	}

	severity, assigned := p.deps.Classifier.AssignSeverity(f.Name, f.Severity)
	sf.Severity = severity
	if assigned {
		sf.Warnings = append(sf.Warnings, schemas.RecordWarning{
			Code:   schemas.WarnSeverityAssigned,
			Detail: "reported severity missing or unusable; assigned from finding name",
		})
	}
	sf.Buckets = p.deps.Classifier.Buckets(f.Name)

	for _, raw := range f.Identifiers {
		id := schemas.NormalizeIdentifier(raw)
		rec, ok := enrichment[id]
		if !ok {
			continue
		}
		sf.Enrichment = append(sf.Enrichment, rec)
		switch rec.SourceStatus {
		case schemas.StatusError:
			sf.Warnings = append(sf.Warnings, schemas.RecordWarning{
				Code:   schemas.WarnEnrichmentError,
				Detail: fmt.Sprintf("metadata for %s unavailable after retries", id),
			})
		case schemas.StatusNotFound:
			sf.Warnings = append(sf.Warnings, schemas.RecordWarning{
				Code:   schemas.WarnEnrichmentMissing,
				Detail: fmt.Sprintf("%s unknown to metadata source", id),
			})
		}
	}

	sf.KnownExploited = p.deps.Catalog.IsKnownExploited(f.Identifiers...)
	sf.CompositeScore, sf.Category = p.deps.Scorer.Score(&sf.Finding, sf.Enrichment, sf.KnownExploited)
	return sf
}

// invalidScores returns the names of raw scores outside their documented
// ranges.
func invalidScores(scores schemas.RawScores) []string {
	var bad []string
	for name, v := range scores {
		limit := 10.0
		if name == schemas.ScoreEPSS {
			limit = 1.0
		}
		if v < 0 || v > limit {
			bad = append(bad, string(name))
		}
	}
	slices.Sort(bad)
	return bad
}

func (p *Pipeline) tally(stats *schemas.BatchStats, sf *schemas.ScoredFinding) {
	if sf.KnownExploited {
		stats.KnownExploited++
	}
	if len(sf.Warnings) > 0 {
		stats.DegradedRecords++
	}
}
