package schemas

import (
	"fmt"
	"strings"
)

// -- Finding Schemas --

// Severity represents the scanner-reported severity of a finding. The values
// are lowercase to keep them stable across report formats and config files.
type Severity string

// Constants defining the standard severity levels for findings.
const (
	SeverityCritical Severity = "critical" // Represents a critical vulnerability.
	SeverityHigh     Severity = "high"     // Represents a high-severity vulnerability.
	SeverityMedium   Severity = "medium"   // Represents a medium-severity vulnerability.
	SeverityLow      Severity = "low"      // Represents a low-severity vulnerability.
	SeverityInfo     Severity = "info"     // Represents an informational finding.
)

// severityRank orders severities from informational (0) to critical (4).
// Used for deterministic tie-breaking when composite scores are equal.
var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// Rank returns the ordinal position of the severity, info lowest.
// Unknown values rank below info.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether the severity is one of the defined levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// ParseSeverity normalizes a scanner's risk label into a Severity.
// Matching is case-insensitive and tolerates the common "informational"
// spelling. Unknown or empty labels return an error so callers can decide
// whether to degrade or reclassify.
func ParseSeverity(label string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "critical":
		return SeverityCritical, nil
	case "high":
		return SeverityHigh, nil
	case "medium":
		return SeverityMedium, nil
	case "low":
		return SeverityLow, nil
	case "info", "informational", "none":
		return SeverityInfo, nil
	}
	return "", fmt.Errorf("unknown severity label %q", label)
}

// NormalizeIdentifier canonicalizes a vulnerability identifier: trimmed and
// upper-cased. The normalized form is the join key between findings, the
// cache, the catalog, and the metadata source; matching is always exact.
func NormalizeIdentifier(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// ScoreName identifies one of the optional numeric signals a scanner may
// attach to a finding.
type ScoreName string

// Raw score signals carried by scan exports.
const (
	ScoreCVSSBase ScoreName = "cvss_base" // CVSS base score, 0-10.
	ScoreEPSS     ScoreName = "epss"      // Exploit probability, 0-1.
	ScoreVPR      ScoreName = "vpr"       // Vendor priority rating, 0-10.
)

// RawScores maps a score name to its reported value. Absence of a key means
// the scanner did not report that signal; a present key always holds a real
// parsed number. Explicit presence keeps the scoring engine free of nullable
// arithmetic.
type RawScores map[ScoreName]float64

// Get returns the named score and whether it is present.
func (r RawScores) Get(name ScoreName) (float64, bool) {
	v, ok := r[name]
	return v, ok
}

// Clone returns an independent copy of the score map.
func (r RawScores) Clone() RawScores {
	if r == nil {
		return nil
	}
	out := make(RawScores, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Finding is the canonical in-memory representation of one scan result.
// Instances are treated as immutable once a batch has been loaded; the
// pipeline derives ScoredFindings from them rather than mutating in place.
type Finding struct {
	// PluginID is the scanner-local check identifier.
	PluginID string `json:"plugin_id"`

	// Identifiers holds the CVE-style vulnerability identifiers attached to
	// the finding. May be empty; order is not significant.
	Identifiers []string `json:"identifiers,omitempty"`

	Host string `json:"host"` // Address or hostname the finding was observed on.
	Name string `json:"name"` // Human-readable vulnerability name.

	// Severity is the scanner-reported risk level.
	Severity Severity `json:"severity"`

	// RawScores carries the optional numeric signals (CVSS, EPSS, VPR).
	RawScores RawScores `json:"raw_scores,omitempty"`

	// Passthrough fields, untouched by the engine.
	Description  string `json:"description,omitempty"`
	Solution     string `json:"solution,omitempty"`
	PluginOutput string `json:"plugin_output,omitempty"`
}

// Key returns the batch-unique identity of a finding. PluginID and Host
// together are unique within a batch; re-processing the same pair must be
// idempotent.
func (f *Finding) Key() string {
	return f.PluginID + "|" + f.Host
}
