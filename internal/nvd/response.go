package nvd

import (
	"strconv"
	"strings"
	"time"

	"github.com/great-insider/insightshield/api/schemas"
)

// The response model covers the slice of the NVD CVE API 2.0 payload the
// engine cares about. Everything is optional: a missing or malformed field
// degrades that one signal to absent, never the whole record.

type apiResponse struct {
	Vulnerabilities []struct {
		CVE cveItem `json:"cve"`
	} `json:"vulnerabilities"`
}

type cveItem struct {
	ID           string `json:"id"`
	Published    string `json:"published"`
	LastModified string `json:"lastModified"`
	Metrics      struct {
		CVSSMetricV31 []cvssMetric `json:"cvssMetricV31"`
		CVSSMetricV30 []cvssMetric `json:"cvssMetricV30"`
	} `json:"metrics"`
	// Some aggregator mirrors attach an EPSS block; the upstream API does
	// not, so treat it as best-effort.
	EPSS       *epssBlock  `json:"epss,omitempty"`
	References []reference `json:"references"`
	Workarounds []struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"workarounds"`
}

type cvssMetric struct {
	CVSSData struct {
		BaseScore *float64 `json:"baseScore"`
	} `json:"cvssData"`
}

type epssBlock struct {
	Score string `json:"score"`
}

type reference struct {
	URL    string   `json:"url"`
	Source string   `json:"source"`
	Tags   []string `json:"tags"`
}

// patchTags are the reference tags that indicate a fix or advisory exists.
var patchTags = map[string]bool{
	"patch":                true,
	"vendor advisory":      true,
	"third party advisory": true,
}

// nvdTimeLayouts are the timestamp formats observed in NVD payloads.
var nvdTimeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// toRecord converts a CVE item into an EnrichmentRecord, dropping any field
// that does not parse. fetchedAt stands in for the source's lastModified
// when the payload omits it.
func (v *cveItem) toRecord(id string, fetchedAt time.Time) schemas.EnrichmentRecord {
	rec := schemas.EnrichmentRecord{
		ID:           id,
		SourceStatus: schemas.StatusFound,
		LastModified: fetchedAt,
		PatchStatus:  schemas.PatchUnknown,
	}

	if score := v.baseScore(); score != nil {
		rec.BaseSeverityScore = score
	}
	if v.EPSS != nil {
		if p, err := strconv.ParseFloat(v.EPSS.Score, 64); err == nil && p >= 0 && p <= 1 {
			rec.ExploitProbability = &p
		}
	}
	if t, ok := parseNVDTime(v.Published); ok {
		rec.PublishedDate = &t
	}
	if t, ok := parseNVDTime(v.LastModified); ok {
		rec.LastModified = t
	}
	rec.PatchStatus = v.patchStatus()
	return rec
}

// baseScore prefers CVSS v3.1 over v3.0 and rejects out-of-range values.
func (v *cveItem) baseScore() *float64 {
	for _, metrics := range [][]cvssMetric{v.Metrics.CVSSMetricV31, v.Metrics.CVSSMetricV30} {
		for _, m := range metrics {
			if s := m.CVSSData.BaseScore; s != nil && *s >= 0 && *s <= 10 {
				return s
			}
		}
	}
	return nil
}

// patchStatus derives remediation availability from reference tags, falling
// back to the workaround list.
func (v *cveItem) patchStatus() schemas.PatchStatus {
	for _, ref := range v.References {
		for _, tag := range ref.Tags {
			if patchTags[strings.ToLower(tag)] {
				return schemas.PatchAvailable
			}
		}
	}
	if len(v.Workarounds) > 0 {
		return schemas.PatchWorkaround
	}
	return schemas.PatchNotFound
}

func parseNVDTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range nvdTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
