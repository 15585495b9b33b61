package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
)

// kevIDColumn is the identifier column in the CISA KEV CSV export.
const kevIDColumn = "cveID"

// LoadCSV reads a KEV-style feed into the catalog, replacing its contents.
// The feed is a CSV with a header row containing a cveID column. The whole
// file is read before the catalog is swapped, so a parse error partway
// through leaves the previous contents in place.
func (c *Catalog) LoadCSV(path string, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening catalog feed: %w", err)
	}
	defer f.Close()

	ids, err := parseKEV(f)
	if err != nil {
		return fmt.Errorf("parsing catalog feed %s: %w", path, err)
	}

	c.Load(ids)
	logger.Info("Loaded known-exploited catalog",
		zap.String("path", path),
		zap.Int("entries", c.Len()))
	return nil
}

func parseKEV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idCol := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), kevIDColumn) {
			idCol = i
			break
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("feed has no %q column", kevIDColumn)
	}

	var ids []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		if idCol < len(rec) {
			ids = append(ids, rec[idCol])
		}
	}
	return ids, nil
}
