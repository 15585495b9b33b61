package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/great-insider/insightshield/api/schemas"
)

// csvHeader is the column layout of the tabular export, one row per scored
// finding in rank order.
var csvHeader = []string{
	"Rank", "Plugin ID", "Host", "Name", "Identifiers", "Severity",
	"Composite Score", "Category", "Known Exploited", "Patch Status",
	"Buckets", "Warnings",
}

// CSVReporter renders the ranked batch as a flat table.
type CSVReporter struct {
	w io.WriteCloser
}

// NewCSVReporter takes ownership of the writer.
func NewCSVReporter(w io.WriteCloser) *CSVReporter {
	return &CSVReporter{w: w}
}

// Write renders one row per finding, preserving batch order.
func (r *CSVReporter) Write(result *schemas.BatchResult) error {
	cw := csv.NewWriter(r.w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for i := range result.Findings {
		f := &result.Findings[i]
		row := []string{
			strconv.Itoa(i + 1),
			f.PluginID,
			f.Host,
			f.Name,
			strings.Join(f.Identifiers, ", "),
			string(f.Severity),
			strconv.FormatFloat(f.CompositeScore, 'f', 3, 64),
			string(f.Category),
			strconv.FormatBool(f.KnownExploited),
			patchStatus(f),
			strings.Join(f.Buckets, ", "),
			warningCodes(f),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Close closes the underlying writer.
func (r *CSVReporter) Close() error {
	return r.w.Close()
}

// patchStatus reports the most optimistic patch availability across the
// finding's enrichment records.
func patchStatus(f *schemas.ScoredFinding) string {
	best := schemas.PatchUnknown
	rank := map[schemas.PatchStatus]int{
		schemas.PatchAvailable:  3,
		schemas.PatchWorkaround: 2,
		schemas.PatchNotFound:   1,
		schemas.PatchUnknown:    0,
	}
	for _, rec := range f.Enrichment {
		if rank[rec.PatchStatus] > rank[best] {
			best = rec.PatchStatus
		}
	}
	return string(best)
}

func warningCodes(f *schemas.ScoredFinding) string {
	if len(f.Warnings) == 0 {
		return ""
	}
	codes := make([]string, len(f.Warnings))
	for i, w := range f.Warnings {
		codes[i] = string(w.Code)
	}
	return strings.Join(codes, ", ")
}
