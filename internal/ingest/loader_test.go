package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/great-insider/insightshield/api/schemas"
)

const exportHeader = "Plugin ID,CVE,Host,Name,Risk,CVSS v3.0 Base Score,EPSS Score,VPR Score,Description,Solution,Plugin Output\n"

func TestParseFindings(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("full row", func(t *testing.T) {
		input := exportHeader +
			`19506,CVE-2021-44228,10.0.0.5,Apache Log4j RCE,Critical,9.8,0.97,9.2,Log4Shell,Upgrade log4j,"payload seen"` + "\n"
		findings, err := parseFindings(strings.NewReader(input), logger)
		require.NoError(t, err)
		require.Len(t, findings, 1)

		f := findings[0]
		assert.Equal(t, "19506", f.PluginID)
		assert.Equal(t, []string{"CVE-2021-44228"}, f.Identifiers)
		assert.Equal(t, "10.0.0.5", f.Host)
		assert.Equal(t, schemas.SeverityCritical, f.Severity)
		assert.Equal(t, "Upgrade log4j", f.Solution)

		cvss, ok := f.RawScores.Get(schemas.ScoreCVSSBase)
		require.True(t, ok)
		assert.InDelta(t, 9.8, cvss, 1e-9)
		vpr, ok := f.RawScores.Get(schemas.ScoreVPR)
		require.True(t, ok)
		assert.InDelta(t, 9.2, vpr, 1e-9)
	})

	t.Run("multi-identifier cells split on comma and semicolon", func(t *testing.T) {
		input := exportHeader +
			`100,"cve-2020-0001; CVE-2020-0002,cve-2020-0003",host1,Multi CVE Finding,High,,,,,,` + "\n"
		findings, err := parseFindings(strings.NewReader(input), logger)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, []string{"CVE-2020-0001", "CVE-2020-0002", "CVE-2020-0003"}, findings[0].Identifiers)
	})

	t.Run("malformed scores become absent signals", func(t *testing.T) {
		input := exportHeader +
			`100,,host1,Some Finding,High,not-a-number,0.5,,,,` + "\n"
		findings, err := parseFindings(strings.NewReader(input), logger)
		require.NoError(t, err)
		require.Len(t, findings, 1)

		_, ok := findings[0].RawScores.Get(schemas.ScoreCVSSBase)
		assert.False(t, ok, "unparseable cell degrades to absent, not zero")
		epss, ok := findings[0].RawScores.Get(schemas.ScoreEPSS)
		require.True(t, ok)
		assert.InDelta(t, 0.5, epss, 1e-9)
	})

	t.Run("unknown risk label leaves severity empty", func(t *testing.T) {
		input := exportHeader +
			`100,,host1,Odd Finding,Catastrophic,,,,,,` + "\n"
		findings, err := parseFindings(strings.NewReader(input), logger)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Empty(t, findings[0].Severity, "classifier assigns severity later")
	})

	t.Run("empty score row has nil RawScores", func(t *testing.T) {
		input := exportHeader + `100,,host1,Plain Finding,Low,,,,,,` + "\n"
		findings, err := parseFindings(strings.NewReader(input), logger)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Nil(t, findings[0].RawScores)
	})

	t.Run("missing required column aborts", func(t *testing.T) {
		_, err := parseFindings(strings.NewReader("Plugin ID,CVE,Host,Name\n1,,h,n\n"), logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Risk")
	})

	t.Run("empty file aborts", func(t *testing.T) {
		_, err := parseFindings(strings.NewReader(""), logger)
		require.Error(t, err)
	})

	t.Run("column order does not matter", func(t *testing.T) {
		input := "Risk,Host,Name,CVE,Plugin ID\nHigh,h1,Reordered,CVE-2020-0001,42\n"
		findings, err := parseFindings(strings.NewReader(input), logger)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, "42", findings[0].PluginID)
		assert.Equal(t, schemas.SeverityHigh, findings[0].Severity)
	})
}

func TestLoadFindings(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("reads a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scan.csv")
		content := exportHeader + `19506,,10.0.0.5,Nessus Scan Information,Info,,,,,,` + "\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		findings, err := LoadFindings(path, logger)
		require.NoError(t, err)
		assert.Len(t, findings, 1)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFindings(filepath.Join(t.TempDir(), "absent.csv"), logger)
		require.Error(t, err)
	})
}
