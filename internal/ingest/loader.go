// Package ingest parses scan exports into finding batches. It is an input
// collaborator of the enrichment engine: parsing problems degrade fields,
// they do not abort a load unless the file is structurally unusable.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/great-insider/insightshield/api/schemas"
)

// Column headers in the scan export, as Nessus-style CSVs name them.
const (
	colPluginID     = "Plugin ID"
	colCVE          = "CVE"
	colHost         = "Host"
	colName         = "Name"
	colRisk         = "Risk"
	colCVSS         = "CVSS v3.0 Base Score"
	colEPSS         = "EPSS Score"
	colVPR          = "VPR Score"
	colDescription  = "Description"
	colSolution     = "Solution"
	colPluginOutput = "Plugin Output"
)

// requiredColumns must all be present for a load to proceed.
var requiredColumns = []string{colPluginID, colCVE, colHost, colName, colRisk}

// LoadFindings reads a scan export CSV into a finding batch. Optional score
// cells that fail to parse become absent signals; an unparseable risk label
// leaves the severity empty for the classifier to assign.
func LoadFindings(path string, logger *zap.Logger) ([]schemas.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scan export: %w", err)
	}
	defer f.Close()

	findings, err := parseFindings(f, logger)
	if err != nil {
		return nil, fmt.Errorf("parsing scan export %s: %w", path, err)
	}
	logger.Info("Loaded scan export",
		zap.String("path", path),
		zap.Int("findings", len(findings)))
	return findings, nil
}

func parseFindings(r io.Reader, logger *zap.Logger) ([]schemas.Finding, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range requiredColumns {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("export is missing required column %q", required)
		}
	}

	cell := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var findings []schemas.Finding
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", line, err)
		}

		fd := schemas.Finding{
			PluginID:     cell(rec, colPluginID),
			Identifiers:  splitIdentifiers(cell(rec, colCVE)),
			Host:         cell(rec, colHost),
			Name:         cell(rec, colName),
			Description:  cell(rec, colDescription),
			Solution:     cell(rec, colSolution),
			PluginOutput: cell(rec, colPluginOutput),
		}
		if sev, err := schemas.ParseSeverity(cell(rec, colRisk)); err == nil {
			fd.Severity = sev
		}

		scores := schemas.RawScores{}
		addScore(scores, schemas.ScoreCVSSBase, cell(rec, colCVSS), line, logger)
		addScore(scores, schemas.ScoreEPSS, cell(rec, colEPSS), line, logger)
		addScore(scores, schemas.ScoreVPR, cell(rec, colVPR), line, logger)
		if len(scores) > 0 {
			fd.RawScores = scores
		}

		findings = append(findings, fd)
	}
	return findings, nil
}

// splitIdentifiers handles multi-CVE cells, which scanners separate with
// commas or semicolons.
func splitIdentifiers(cell string) []string {
	if cell == "" {
		return nil
	}
	fields := strings.FieldsFunc(cell, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var ids []string
	for _, f := range fields {
		if id := schemas.NormalizeIdentifier(f); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// addScore parses an optional numeric cell. Malformed values are logged and
// dropped; the signal simply stays absent.
func addScore(scores schemas.RawScores, name schemas.ScoreName, cell string, line int, logger *zap.Logger) {
	if cell == "" {
		return
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		logger.Debug("Dropping malformed score cell",
			zap.String("score", string(name)),
			zap.Int("row", line),
			zap.String("value", cell))
		return
	}
	scores[name] = v
}
