package scoring

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/great-insider/insightshield/api/schemas"
	"github.com/great-insider/insightshield/internal/config"
)

func testEngine() *Engine {
	return NewEngine(config.ScoringConfig{
		Weights: config.WeightsConfig{
			Severity: 0.3,
			CVSS:     0.4,
			EPSS:     0.3,
			VPR:      0.0,
		},
		Thresholds: config.ThresholdsConfig{High: 0.75, Medium: 0.5, Low: 0.25},
	})
}

func ptr(v float64) *float64 { return &v }

func TestScoreWeightedCombination(t *testing.T) {
	e := testEngine()

	f := &schemas.Finding{
		Severity: schemas.SeverityHigh,
		RawScores: schemas.RawScores{
			schemas.ScoreCVSSBase: 9.8,
			schemas.ScoreEPSS:     0.6,
		},
	}
	score, cat := e.Score(f, nil, false)

	// 0.3*0.75 + 0.4*0.98 + 0.3*0.6 = 0.797
	assert.InDelta(t, 0.797, score, 1e-9)
	assert.Equal(t, schemas.PriorityHigh, cat)
}

func TestScoreRenormalizesOverPresentSignals(t *testing.T) {
	e := testEngine()

	t.Run("severity only", func(t *testing.T) {
		f := &schemas.Finding{Severity: schemas.SeverityHigh}
		score, cat := e.Score(f, nil, false)
		assert.InDelta(t, 0.75, score, 1e-9, "a lone signal scores at its own normalized value")
		assert.Equal(t, schemas.PriorityHigh, cat)
	})

	t.Run("severity and cvss", func(t *testing.T) {
		f := &schemas.Finding{
			Severity:  schemas.SeverityMedium,
			RawScores: schemas.RawScores{schemas.ScoreCVSSBase: 8.0},
		}
		score, _ := e.Score(f, nil, false)
		// (0.3*0.5 + 0.4*0.8) / 0.7
		assert.InDelta(t, 0.6714285714, score, 1e-9)
	})

	t.Run("no usable signals", func(t *testing.T) {
		f := &schemas.Finding{Severity: schemas.Severity("bogus")}
		score, cat := e.Score(f, nil, false)
		assert.Zero(t, score)
		assert.Equal(t, schemas.PriorityInformational, cat)
	})
}

func TestScoreKnownExploitedDominates(t *testing.T) {
	e := testEngine()
	f := &schemas.Finding{Severity: schemas.SeverityInfo}

	score, cat := e.Score(f, nil, true)
	assert.Equal(t, 1.0, score)
	assert.Equal(t, schemas.PriorityImmediate, cat)
}

func TestScoreUsesEnrichmentFallbacks(t *testing.T) {
	e := testEngine()

	f := &schemas.Finding{Severity: schemas.SeverityLow}
	enrichment := []*schemas.EnrichmentRecord{
		nil,
		{ID: "CVE-1", BaseSeverityScore: ptr(6.0), ExploitProbability: ptr(0.1)},
		{ID: "CVE-2", BaseSeverityScore: ptr(9.0), ExploitProbability: ptr(0.4)},
	}
	score, _ := e.Score(f, enrichment, false)
	// Highest enriched values back up absent raw scores:
	// (0.3*0.25 + 0.4*0.9 + 0.3*0.4) / 1.0
	assert.InDelta(t, 0.555, score, 1e-9)

	t.Run("raw scores take precedence", func(t *testing.T) {
		withRaw := &schemas.Finding{
			Severity:  schemas.SeverityLow,
			RawScores: schemas.RawScores{schemas.ScoreCVSSBase: 2.0, schemas.ScoreEPSS: 0.05},
		}
		score, _ := e.Score(withRaw, enrichment, false)
		assert.InDelta(t, (0.3*0.25+0.4*0.2+0.3*0.05)/1.0, score, 1e-9)
	})

	t.Run("out-of-range values are ignored", func(t *testing.T) {
		bad := &schemas.Finding{
			Severity:  schemas.SeverityLow,
			RawScores: schemas.RawScores{schemas.ScoreCVSSBase: 99, schemas.ScoreEPSS: -1},
		}
		junk := []*schemas.EnrichmentRecord{{ID: "X", BaseSeverityScore: ptr(11.0)}}
		score, _ := e.Score(bad, junk, false)
		assert.InDelta(t, 0.25, score, 1e-9, "only the severity signal remains")
	})
}

func TestScoreDeterminism(t *testing.T) {
	e := testEngine()
	f := &schemas.Finding{
		Severity:  schemas.SeverityCritical,
		RawScores: schemas.RawScores{schemas.ScoreCVSSBase: 9.1, schemas.ScoreEPSS: 0.97},
	}
	first, firstCat := e.Score(f, nil, false)
	for i := 0; i < 100; i++ {
		score, cat := e.Score(f, nil, false)
		assert.Equal(t, first, score)
		assert.Equal(t, firstCat, cat)
	}
}

func TestCategorizeBands(t *testing.T) {
	e := testEngine()
	cases := []struct {
		score float64
		want  schemas.PriorityCategory
	}{
		{1.0, schemas.PriorityHigh},
		{0.75, schemas.PriorityHigh},
		{0.7499, schemas.PriorityMedium},
		{0.5, schemas.PriorityMedium},
		{0.4999, schemas.PriorityLow},
		{0.25, schemas.PriorityLow},
		{0.2499, schemas.PriorityInformational},
		{0.0, schemas.PriorityInformational},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, e.categorize(tc.score), "score %v", tc.score)
	}
}

func TestCompareTotalOrder(t *testing.T) {
	scored := func(key string, score float64, kev bool, sev schemas.Severity) *schemas.ScoredFinding {
		return &schemas.ScoredFinding{
			Finding:        schemas.Finding{PluginID: key, Host: "h", Severity: sev},
			CompositeScore: score,
			KnownExploited: kev,
		}
	}

	t.Run("higher score first", func(t *testing.T) {
		assert.Negative(t, Compare(scored("a", 0.9, false, schemas.SeverityLow), scored("b", 0.5, false, schemas.SeverityCritical)))
	})

	t.Run("known-exploited breaks score ties", func(t *testing.T) {
		assert.Negative(t, Compare(scored("z", 0.5, true, schemas.SeverityLow), scored("a", 0.5, false, schemas.SeverityLow)))
	})

	t.Run("severity breaks remaining ties", func(t *testing.T) {
		assert.Negative(t, Compare(scored("z", 0.5, false, schemas.SeverityHigh), scored("a", 0.5, false, schemas.SeverityMedium)))
	})

	t.Run("key makes the order total", func(t *testing.T) {
		a := scored("a", 0.5, false, schemas.SeverityHigh)
		b := scored("b", 0.5, false, schemas.SeverityHigh)
		assert.Negative(t, Compare(a, b))
		assert.Positive(t, Compare(b, a))
		assert.Zero(t, Compare(a, a))
	})

	t.Run("sorting is deterministic regardless of input order", func(t *testing.T) {
		items := []*schemas.ScoredFinding{
			scored("c", 0.5, false, schemas.SeverityHigh),
			scored("a", 0.9, false, schemas.SeverityLow),
			scored("b", 0.5, true, schemas.SeverityLow),
			scored("d", 0.5, false, schemas.SeverityHigh),
		}
		reversed := []*schemas.ScoredFinding{items[3], items[2], items[1], items[0]}

		sortAll := func(s []*schemas.ScoredFinding) []string {
			sort.SliceStable(s, func(i, j int) bool { return Compare(s[i], s[j]) < 0 })
			keys := make([]string, len(s))
			for i, f := range s {
				keys[i] = f.PluginID
			}
			return keys
		}

		assert.Equal(t, sortAll(items), sortAll(reversed))
		assert.Equal(t, []string{"a", "b", "c", "d"}, sortAll(items))
	})
}
