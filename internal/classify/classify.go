// Package classify fills the gaps scanners leave: findings that arrive
// without a usable risk label get a severity from name heuristics, and
// every finding gets keyword-derived remediation buckets for reporting.
package classify

import (
	"sort"
	"strings"

	"github.com/great-insider/insightshield/api/schemas"
	"github.com/great-insider/insightshield/internal/config"
)

// miscBucket is the fallback for findings no keyword claims.
const miscBucket = "Miscellaneous"

// Classifier applies configured name patterns. Instances are immutable
// after construction and safe for concurrent use.
type Classifier struct {
	severityPatterns map[schemas.Severity][]string
	buckets          map[string][]string
}

// New builds a classifier from configuration. Severity keys that do not
// parse to a known level are dropped; pattern matching is case-insensitive
// substring matching, as the patterns come from human-maintained lists.
func New(cfg config.ClassifyConfig) *Classifier {
	sev := make(map[schemas.Severity][]string, len(cfg.SeverityPatterns))
	for label, patterns := range cfg.SeverityPatterns {
		s, err := schemas.ParseSeverity(label)
		if err != nil {
			continue
		}
		sev[s] = lowerAll(patterns)
	}
	buckets := make(map[string][]string, len(cfg.Buckets))
	for bucket, keywords := range cfg.Buckets {
		buckets[bucket] = lowerAll(keywords)
	}
	return &Classifier{severityPatterns: sev, buckets: buckets}
}

// severityOrder checks the most severe patterns first so a name matching
// several levels lands on the worst one.
var severityOrder = []schemas.Severity{
	schemas.SeverityCritical,
	schemas.SeverityHigh,
	schemas.SeverityMedium,
	schemas.SeverityLow,
}

// AssignSeverity resolves a finding's effective severity. A valid reported
// severity always wins. Otherwise the name patterns decide, and a finding
// matching nothing degrades to info. The second return is true when the
// severity had to be assigned rather than taken from the scanner.
func (c *Classifier) AssignSeverity(name string, reported schemas.Severity) (schemas.Severity, bool) {
	if reported.Valid() {
		return reported, false
	}
	lower := strings.ToLower(name)
	for _, s := range severityOrder {
		for _, pattern := range c.severityPatterns[s] {
			if strings.Contains(lower, pattern) {
				return s, true
			}
		}
	}
	return schemas.SeverityInfo, true
}

// Buckets returns the sorted set of remediation buckets whose keywords
// appear in the finding's name, or the miscellaneous fallback.
func (c *Classifier) Buckets(name string) []string {
	lower := strings.ToLower(name)
	var out []string
	for bucket, keywords := range c.buckets {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, bucket)
				break
			}
		}
	}
	if len(out) == 0 {
		return []string{miscBucket}
	}
	sort.Strings(out)
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.ToLower(strings.TrimSpace(s)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
