package reporting

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/great-insider/insightshield/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonExport is the machine-readable envelope: the summary up front, then
// the full ranked batch.
type jsonExport struct {
	Summary Summary              `json:"summary"`
	Batch   *schemas.BatchResult `json:"batch"`
}

// JSONReporter renders the batch as a single indented JSON document.
type JSONReporter struct {
	w io.WriteCloser
}

// NewJSONReporter takes ownership of the writer.
func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	return &JSONReporter{w: w}
}

// Write encodes the batch and its summary.
func (r *JSONReporter) Write(result *schemas.BatchResult) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonExport{Summary: Summarize(result), Batch: result}); err != nil {
		return fmt.Errorf("encoding JSON report: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (r *JSONReporter) Close() error {
	return r.w.Close()
}
