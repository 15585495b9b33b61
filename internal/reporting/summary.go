package reporting

import (
	"slices"
	"strings"

	"github.com/great-insider/insightshield/api/schemas"
)

// criticalityWeight is the per-severity weight used for host criticality,
// critical counting four times a low.
var criticalityWeight = map[schemas.Severity]int{
	schemas.SeverityCritical: 4,
	schemas.SeverityHigh:     3,
	schemas.SeverityMedium:   2,
	schemas.SeverityLow:      1,
}

// topIdentifierCount bounds the "most seen identifiers" list.
const topIdentifierCount = 10

// Summary is the aggregate view of a batch that leads the JSON export.
type Summary struct {
	Categories     map[schemas.PriorityCategory]int `json:"categories"`
	KnownExploited int                              `json:"known_exploited"`
	TopIdentifiers []IdentifierCount                `json:"top_identifiers,omitempty"`
	Hosts          []HostCriticality                `json:"hosts,omitempty"`
}

// IdentifierCount is one identifier and how many findings reference it.
type IdentifierCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// HostCriticality ranks a host by its weighted finding counts.
type HostCriticality struct {
	Host        string `json:"host"`
	Findings    int    `json:"findings"`
	Criticality int    `json:"criticality"`
}

// Summarize derives the aggregate view from a ranked batch.
func Summarize(result *schemas.BatchResult) Summary {
	s := Summary{Categories: make(map[schemas.PriorityCategory]int)}
	idCounts := make(map[string]int)
	hosts := make(map[string]*HostCriticality)

	for i := range result.Findings {
		f := &result.Findings[i]
		s.Categories[f.Category]++
		if f.KnownExploited {
			s.KnownExploited++
		}
		for _, id := range f.Identifiers {
			idCounts[schemas.NormalizeIdentifier(id)]++
		}
		h := hosts[f.Host]
		if h == nil {
			h = &HostCriticality{Host: f.Host}
			hosts[f.Host] = h
		}
		h.Findings++
		h.Criticality += criticalityWeight[f.Severity]
	}

	for id, n := range idCounts {
		s.TopIdentifiers = append(s.TopIdentifiers, IdentifierCount{ID: id, Count: n})
	}
	slices.SortFunc(s.TopIdentifiers, func(a, b IdentifierCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.ID, b.ID)
	})
	if len(s.TopIdentifiers) > topIdentifierCount {
		s.TopIdentifiers = s.TopIdentifiers[:topIdentifierCount]
	}

	for _, h := range hosts {
		s.Hosts = append(s.Hosts, *h)
	}
	slices.SortFunc(s.Hosts, func(a, b HostCriticality) int {
		if a.Criticality != b.Criticality {
			return b.Criticality - a.Criticality
		}
		return strings.Compare(a.Host, b.Host)
	})

	return s
}
