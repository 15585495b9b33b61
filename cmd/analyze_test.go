package cmd

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCommand executes the root command with the given arguments, capturing
// combined output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeCmd_MissingInputFile(t *testing.T) {
	t.Setenv("INSIGHTSHIELD_CACHE_PATH", filepath.Join(t.TempDir(), "cache.db"))

	_, err := runCommand(t, "analyze", filepath.Join(t.TempDir(), "absent.csv"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan export")
}

func TestAnalyzeCmd_RequiresExactlyOneArgument(t *testing.T) {
	_, err := runCommand(t, "analyze")
	require.Error(t, err)
}

func TestAnalyzeCmd_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INSIGHTSHIELD_CACHE_PATH", filepath.Join(dir, "cache.db"))

	// Identifier-free findings keep the run fully offline.
	input := filepath.Join(dir, "scan.csv")
	scan := "Plugin ID,CVE,Host,Name,Risk\n" +
		"101,,10.0.0.1,Microsoft Windows SEoL,Critical\n" +
		"102,,10.0.0.2,SSH Server Banner Retrieval,Low\n"
	require.NoError(t, os.WriteFile(input, []byte(scan), 0o644))

	kev := filepath.Join(dir, "kev.csv")
	require.NoError(t, os.WriteFile(kev, []byte("cveID\nCVE-2021-44228\n"), 0o644))

	output := filepath.Join(dir, "ranked.csv")
	_, err := runCommand(t, "analyze", input,
		"--kev", kev,
		"--format", "csv",
		"--output", output)
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus both findings")

	// The critical finding outranks the low one.
	assert.Equal(t, "101", rows[1][1])
	assert.Equal(t, "102", rows[2][1])
}
