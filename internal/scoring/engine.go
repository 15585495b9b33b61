// Package scoring derives the composite prioritization score and triage
// category for findings. The engine is pure: the same inputs always produce
// the same outputs, and the induced ranking is a total order.
package scoring

import (
	"strings"

	"github.com/great-insider/insightshield/api/schemas"
	"github.com/great-insider/insightshield/internal/config"
)

// severityWeight maps reported severity onto [0,1].
var severityWeight = map[schemas.Severity]float64{
	schemas.SeverityCritical: 1.0,
	schemas.SeverityHigh:     0.75,
	schemas.SeverityMedium:   0.5,
	schemas.SeverityLow:      0.25,
	schemas.SeverityInfo:     0.0,
}

// Engine computes composite scores from up to four signals with
// configurable weights and category thresholds.
type Engine struct {
	weights    config.WeightsConfig
	thresholds config.ThresholdsConfig
}

// NewEngine builds an engine from validated configuration.
func NewEngine(cfg config.ScoringConfig) *Engine {
	return &Engine{weights: cfg.Weights, thresholds: cfg.Thresholds}
}

// Score combines the finding's reported severity, its raw scanner scores,
// the enrichment records for its identifiers, and catalog membership into a
// composite score in [0,1] plus a priority category.
//
// Missing signals are excluded and the weights renormalized over what is
// present, so a finding carrying only a reported severity still scores
// cleanly. Known exploitation overrides everything: the score is forced to
// 1.0 and the category to immediate.
func (e *Engine) Score(f *schemas.Finding, enrichment []*schemas.EnrichmentRecord, knownExploited bool) (float64, schemas.PriorityCategory) {
	if knownExploited {
		return 1.0, schemas.PriorityImmediate
	}

	var weightSum, total float64
	add := func(weight, normalized float64) {
		if weight <= 0 {
			return
		}
		weightSum += weight
		total += weight * normalized
	}

	if f.Severity.Valid() {
		add(e.weights.Severity, severityWeight[f.Severity])
	}
	if cvss, ok := bestCVSS(f, enrichment); ok {
		add(e.weights.CVSS, cvss/10)
	}
	if epss, ok := bestEPSS(f, enrichment); ok {
		add(e.weights.EPSS, epss)
	}
	if vpr, ok := f.RawScores.Get(schemas.ScoreVPR); ok && inRange(vpr, 10) {
		add(e.weights.VPR, vpr/10)
	}

	if weightSum == 0 {
		return 0, schemas.PriorityInformational
	}
	composite := total / weightSum
	return composite, e.categorize(composite)
}

// categorize maps a composite score to its threshold band. Immediate is
// reserved for the known-exploited override.
func (e *Engine) categorize(score float64) schemas.PriorityCategory {
	switch {
	case score >= e.thresholds.High:
		return schemas.PriorityHigh
	case score >= e.thresholds.Medium:
		return schemas.PriorityMedium
	case score >= e.thresholds.Low:
		return schemas.PriorityLow
	default:
		return schemas.PriorityInformational
	}
}

// bestCVSS prefers the scanner-reported base score and falls back to the
// highest enriched base score.
func bestCVSS(f *schemas.Finding, enrichment []*schemas.EnrichmentRecord) (float64, bool) {
	if v, ok := f.RawScores.Get(schemas.ScoreCVSSBase); ok && inRange(v, 10) {
		return v, true
	}
	best, found := 0.0, false
	for _, rec := range enrichment {
		if rec == nil || rec.BaseSeverityScore == nil {
			continue
		}
		if v := *rec.BaseSeverityScore; inRange(v, 10) && (!found || v > best) {
			best, found = v, true
		}
	}
	return best, found
}

// bestEPSS prefers the scanner-reported probability and falls back to the
// highest enriched one.
func bestEPSS(f *schemas.Finding, enrichment []*schemas.EnrichmentRecord) (float64, bool) {
	if v, ok := f.RawScores.Get(schemas.ScoreEPSS); ok && inRange(v, 1) {
		return v, true
	}
	best, found := 0.0, false
	for _, rec := range enrichment {
		if rec == nil || rec.ExploitProbability == nil {
			continue
		}
		if v := *rec.ExploitProbability; inRange(v, 1) && (!found || v > best) {
			best, found = v, true
		}
	}
	return best, found
}

func inRange(v, max float64) bool {
	return v >= 0 && v <= max
}

// Compare defines the ranking order between two scored findings: higher
// composite score first, then known-exploited, then reported severity, then
// identifier key lexical order. The final key comparison makes the order
// total, so ranked output is deterministic. Returns a negative value when a
// ranks before b.
func Compare(a, b *schemas.ScoredFinding) int {
	switch {
	case a.CompositeScore > b.CompositeScore:
		return -1
	case a.CompositeScore < b.CompositeScore:
		return 1
	}
	if a.KnownExploited != b.KnownExploited {
		if a.KnownExploited {
			return -1
		}
		return 1
	}
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return rb - ra
	}
	return strings.Compare(a.Key(), b.Key())
}
