package schemas

import "time"

// -- Scored Output Schemas --

// PriorityCategory is the remediation triage label assigned to a scored
// finding.
type PriorityCategory string

const (
	PriorityImmediate     PriorityCategory = "immediate"
	PriorityHigh          PriorityCategory = "high"
	PriorityMedium        PriorityCategory = "medium"
	PriorityLow           PriorityCategory = "low"
	PriorityInformational PriorityCategory = "informational"
)

// WarningCode classifies why a finding's enrichment or validation degraded.
// Codes distinguish network-origin degradation from programming invariant
// violations, per-record, without ever dropping the record.
type WarningCode string

const (
	// WarnEnrichmentError means at least one identifier resolution exhausted
	// its retries.
	WarnEnrichmentError WarningCode = "enrichment_error"
	// WarnEnrichmentMissing means at least one identifier is unknown to the
	// metadata source.
	WarnEnrichmentMissing WarningCode = "enrichment_missing"
	// WarnDuplicateKey flags a pluginID+host pair that appeared more than
	// once in the batch, a producer-side invariant violation.
	WarnDuplicateKey WarningCode = "duplicate_key"
	// WarnInvalidScore flags a raw score outside its documented range.
	WarnInvalidScore WarningCode = "invalid_score"
	// WarnSeverityAssigned means the reported severity was missing or
	// unusable and one was assigned from the finding's name.
	WarnSeverityAssigned WarningCode = "severity_assigned"
)

// RecordWarning attaches a degradation reason to a single scored finding.
type RecordWarning struct {
	Code   WarningCode `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

// ScoredFinding is a Finding plus the outputs of enrichment and scoring.
// Instances are created once per finding per pipeline run and are immutable
// after creation.
type ScoredFinding struct {
	Finding

	// CompositeScore is the single weighted (or overridden) value used to
	// rank findings, in [0,1].
	CompositeScore float64 `json:"composite_score"`

	// Category is the triage label derived from the composite score, or
	// PriorityImmediate when the finding is known exploited.
	Category PriorityCategory `json:"category"`

	// KnownExploited is true when any identifier matched the reference
	// catalog.
	KnownExploited bool `json:"known_exploited"`

	// Buckets are the keyword-derived vulnerability classes for reporting.
	Buckets []string `json:"buckets,omitempty"`

	// Enrichment holds one record per identifier, in identifier order.
	Enrichment []*EnrichmentRecord `json:"enrichment,omitempty"`

	// Warnings carries per-record degradation and invariant diagnostics.
	Warnings []RecordWarning `json:"warnings,omitempty"`
}

// BatchWarning surfaces a batch-level degradation to the caller, such as a
// catalog that failed to load. Batch warnings are never fatal.
type BatchWarning struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Batch-level warning codes.
const (
	BatchWarnCatalogUnavailable = "catalog_unavailable"
)

// BatchStats summarizes the enrichment work performed during a run.
type BatchStats struct {
	Findings        int `json:"findings"`
	UniqueIDs       int `json:"unique_identifiers"`
	CacheHits       int `json:"cache_hits"`
	CacheMisses     int `json:"cache_misses"`
	FetchErrors     int `json:"fetch_errors"`
	NotFound        int `json:"not_found"`
	KnownExploited  int `json:"known_exploited"`
	DegradedRecords int `json:"degraded_records"`
}

// BatchResult is the complete output of one pipeline run: every input
// finding scored and ranked, plus run-level diagnostics. Ordering is a
// stable sort by composite score with deterministic tie-breaking.
type BatchResult struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Findings   []ScoredFinding `json:"findings"`
	Warnings   []BatchWarning  `json:"warnings,omitempty"`
	Stats      BatchStats      `json:"stats"`
}
