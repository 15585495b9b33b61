package schemas

import "time"

// -- Enrichment Schemas --

// SourceStatus records the outcome of resolving an identifier against the
// external metadata source.
type SourceStatus string

const (
	// StatusFound means the source returned metadata for the identifier.
	StatusFound SourceStatus = "found"
	// StatusNotFound means the source definitively does not know the
	// identifier. This is a stable negative result, not an error.
	StatusNotFound SourceStatus = "not_found"
	// StatusError means resolution failed after retries were exhausted.
	// Error records are cached only briefly so a later run retries.
	StatusError SourceStatus = "error"
)

// PatchStatus summarizes remediation availability derived from the source's
// reference metadata.
type PatchStatus string

const (
	PatchAvailable  PatchStatus = "available"
	PatchWorkaround PatchStatus = "workaround"
	PatchNotFound   PatchStatus = "not_found"
	PatchUnknown    PatchStatus = "unknown"
)

// EnrichmentRecord holds the metadata fetched for one vulnerability
// identifier. Records are owned by the enrichment cache; the fetcher and
// pipeline only borrow references and must not mutate them.
type EnrichmentRecord struct {
	// ID is the normalized (upper-cased) vulnerability identifier.
	ID string `json:"id"`

	// BaseSeverityScore is the CVSS-style base score in [0,10], if the
	// source reported one.
	BaseSeverityScore *float64 `json:"base_severity_score,omitempty"`

	// ExploitProbability is the EPSS-style probability in [0,1], if present.
	ExploitProbability *float64 `json:"exploit_probability,omitempty"`

	// PublishedDate is when the vulnerability was first published.
	PublishedDate *time.Time `json:"published_date,omitempty"`

	// LastModified is the source's modification timestamp for the record.
	LastModified time.Time `json:"last_modified"`

	// PatchStatus is derived from the source's reference tags.
	PatchStatus PatchStatus `json:"patch_status,omitempty"`

	// SourceStatus records how resolution concluded.
	SourceStatus SourceStatus `json:"source_status"`
}

// AgeDays returns the number of whole days since publication, relative to
// now. Returns -1 when the published date is unknown.
func (r *EnrichmentRecord) AgeDays(now time.Time) int {
	if r.PublishedDate == nil {
		return -1
	}
	return int(now.Sub(*r.PublishedDate).Hours() / 24)
}

// CacheEntry wraps an EnrichmentRecord with the time it was fetched.
// Entries are created on first successful or terminal-failure fetch and are
// read-only afterwards; expiry is computed from FetchedAt, and expired
// entries are overwritten by the next Put rather than deleted.
type CacheEntry struct {
	Record    EnrichmentRecord `json:"record"`
	FetchedAt time.Time        `json:"fetched_at"`
}
