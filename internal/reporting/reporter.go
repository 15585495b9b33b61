// Package reporting renders ranked batch results for downstream consumers:
// a machine-readable JSON export and a tabular CSV view.
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/great-insider/insightshield/api/schemas"
)

// Reporter writes one batch result to an output.
type Reporter interface {
	// Write renders the batch. The result's ordering is preserved.
	Write(result *schemas.BatchResult) error
	// Close finalizes the report and releases any underlying resources.
	Close() error
}

// nopWriteCloser wraps an io.Writer with a no-op Close.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the given format, writing to outputPath or
// stdout when the path is empty.
func New(format, outputPath string) (Reporter, error) {
	var writer io.WriteCloser
	isStdout := outputPath == "" || outputPath == "stdout"

	if isStdout {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "json":
		return NewJSONReporter(writer), nil
	case "csv":
		return NewCSVReporter(writer), nil
	default:
		if !isStdout {
			writer.Close()
		}
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
