package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCatalogMembership(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.IsKnownExploited("CVE-2021-44228"), "empty catalog never matches")

	c.Load([]string{"cve-2021-44228", " CVE-2023-4863 ", "", "   "})
	assert.Equal(t, 2, c.Len())

	assert.True(t, c.IsKnownExploited("CVE-2021-44228"))
	assert.True(t, c.IsKnownExploited("cve-2021-44228"), "matching is case-insensitive")
	assert.True(t, c.IsKnownExploited("CVE-0000-0000", "CVE-2023-4863"), "any identifier may match")
	assert.False(t, c.IsKnownExploited("CVE-2021-4422"), "matching is exact, not prefix")
	assert.False(t, c.IsKnownExploited())
}

func TestCatalogLoadReplaces(t *testing.T) {
	c := New()
	c.Load([]string{"CVE-2020-0001"})
	c.Load([]string{"CVE-2020-0002"})

	assert.False(t, c.IsKnownExploited("CVE-2020-0001"))
	assert.True(t, c.IsKnownExploited("CVE-2020-0002"))
}

func TestParseKEV(t *testing.T) {
	t.Run("standard feed", func(t *testing.T) {
		feed := "cveID,vendorProject,product\nCVE-2021-44228,Apache,Log4j\nCVE-2023-4863,Google,Chrome\n"
		ids, err := parseKEV(strings.NewReader(feed))
		require.NoError(t, err)
		assert.Equal(t, []string{"CVE-2021-44228", "CVE-2023-4863"}, ids)
	})

	t.Run("column order does not matter", func(t *testing.T) {
		feed := "vendorProject,cveID\nApache,CVE-2021-44228\n"
		ids, err := parseKEV(strings.NewReader(feed))
		require.NoError(t, err)
		assert.Equal(t, []string{"CVE-2021-44228"}, ids)
	})

	t.Run("missing identifier column", func(t *testing.T) {
		_, err := parseKEV(strings.NewReader("vendor,product\nApache,Log4j\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cveID")
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := parseKEV(strings.NewReader(""))
		require.Error(t, err)
	})
}

func TestLoadCSV(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("replaces contents", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kev.csv")
		require.NoError(t, os.WriteFile(path, []byte("cveID\nCVE-2021-44228\n"), 0o644))

		c := New()
		require.NoError(t, c.LoadCSV(path, logger))
		assert.Equal(t, 1, c.Len())
		assert.True(t, c.IsKnownExploited("CVE-2021-44228"))
	})

	t.Run("parse failure keeps previous contents", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.csv")
		require.NoError(t, os.WriteFile(path, []byte("vendor,product\nApache,Log4j\n"), 0o644))

		c := New()
		c.Load([]string{"CVE-2020-0001"})
		require.Error(t, c.LoadCSV(path, logger))
		assert.True(t, c.IsKnownExploited("CVE-2020-0001"))
	})

	t.Run("missing file", func(t *testing.T) {
		c := New()
		require.Error(t, c.LoadCSV(filepath.Join(t.TempDir(), "absent.csv"), logger))
	})
}
