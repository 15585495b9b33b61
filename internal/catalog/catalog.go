// Package catalog holds the known-exploited vulnerability reference set and
// answers membership queries for findings.
package catalog

import (
	"sync/atomic"

	"github.com/great-insider/insightshield/api/schemas"
)

// Catalog is an immutable set of known-exploited identifiers. The set is
// loaded wholesale at the start of a run and only ever replaced, never
// mutated, so lookups need no locking.
type Catalog struct {
	entries atomic.Pointer[map[string]struct{}]
}

// New returns an empty catalog. An empty catalog never matches and never
// errors; callers distinguish "not loaded" from "no match" through Len.
func New() *Catalog {
	c := &Catalog{}
	empty := make(map[string]struct{})
	c.entries.Store(&empty)
	return c
}

// Load replaces the catalog's contents with the given identifiers.
// Entries are normalized for exact, case-insensitive matching; blanks are
// dropped.
func (c *Catalog) Load(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if n := schemas.NormalizeIdentifier(id); n != "" {
			set[n] = struct{}{}
		}
	}
	c.entries.Store(&set)
}

// IsKnownExploited reports whether any of the given identifiers is in the
// catalog. A finding with multiple identifiers is known-exploited if any one
// matches.
func (c *Catalog) IsKnownExploited(ids ...string) bool {
	set := *c.entries.Load()
	if len(set) == 0 {
		return false
	}
	for _, id := range ids {
		if _, ok := set[schemas.NormalizeIdentifier(id)]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of loaded entries. Zero means the catalog is
// unloaded or empty; LoadCSV failures surface through logs and batch
// warnings, not through membership results.
func (c *Catalog) Len() int {
	return len(*c.entries.Load())
}
