package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	cases := []struct {
		label   string
		want    Severity
		wantErr bool
	}{
		{"Critical", SeverityCritical, false},
		{"HIGH", SeverityHigh, false},
		{" medium ", SeverityMedium, false},
		{"low", SeverityLow, false},
		{"Info", SeverityInfo, false},
		{"Informational", SeverityInfo, false},
		{"None", SeverityInfo, false},
		{"", "", true},
		{"catastrophic", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			got, err := ParseSeverity(tc.label)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Greater(t, SeverityLow.Rank(), SeverityInfo.Rank())
	assert.Equal(t, -1, Severity("bogus").Rank())
	assert.False(t, Severity("bogus").Valid())
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "CVE-2021-44228", NormalizeIdentifier("  cve-2021-44228 "))
	assert.Equal(t, "", NormalizeIdentifier("   "))
}

func TestFindingKey(t *testing.T) {
	f := Finding{PluginID: "19506", Host: "10.0.0.5"}
	assert.Equal(t, "19506|10.0.0.5", f.Key())
}

func TestRawScores(t *testing.T) {
	scores := RawScores{ScoreCVSSBase: 9.8}

	v, ok := scores.Get(ScoreCVSSBase)
	require.True(t, ok)
	assert.InDelta(t, 9.8, v, 1e-9)

	_, ok = scores.Get(ScoreEPSS)
	assert.False(t, ok, "absent signal must report absence, not zero")

	clone := scores.Clone()
	clone[ScoreEPSS] = 0.5
	_, ok = scores.Get(ScoreEPSS)
	assert.False(t, ok, "clone must be independent of the original")

	var nilScores RawScores
	assert.Nil(t, nilScores.Clone())
}
