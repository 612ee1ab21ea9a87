package scanreport

import (
	"testing"

	perr "mpak/internal/platform/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const v1Report = `{
	"version": "1.0.0",
	"risk_score": "HIGH",
	"compliance": {"level": 2, "level_name": "L2", "controls_passed": 10, "controls_failed": 2, "controls_total": 12},
	"findings": [
		{"id": "a", "severity": "critical"},
		{"id": "b", "severity": "HIGH"},
		{"id": "c", "severity": "high"},
		{"id": "d", "severity": "info"},
		{"id": "e", "severity": "weird"}
	],
	"sbom": {"format": "cyclonedx"}
}`

func TestDecode_V1Summary(t *testing.T) {
	r, err := Decode([]byte(v1Report))
	require.NoError(t, err)
	require.NotNil(t, r.V1)
	assert.True(t, r.Present())

	s := r.Summary()
	assert.Equal(t, "1.0.0", *s.ReportVersion)
	assert.Equal(t, 5, *s.FindingsTotal)
	assert.Equal(t, 1, *s.FindingsCritical)
	assert.Equal(t, 2, *s.FindingsHigh)
	assert.Equal(t, 0, *s.FindingsMedium)
	assert.Equal(t, 1, *s.FindingsInfo)
	assert.Equal(t, 2, *s.ComplianceLevel)
	assert.Equal(t, "L2", *s.ComplianceLevelName)
	assert.Equal(t, 10, *s.ControlsPassed)
	assert.Equal(t, 12, *s.ControlsTotal)
}

func TestDecode_UnversionedIsV1(t *testing.T) {
	r, err := Decode([]byte(`{"findings":[{"severity":"low"}]}`))
	require.NoError(t, err)
	require.NotNil(t, r.V1)
	s := r.Summary()
	assert.Nil(t, s.ReportVersion)
	assert.Equal(t, 1, *s.FindingsLow)
	assert.Nil(t, s.ComplianceLevel)
	assert.Nil(t, s.ControlsPassed)
}

func TestDecode_UnknownVersionKeepsRaw(t *testing.T) {
	r, err := Decode([]byte(`{"version":"2.0.0","whatever":true}`))
	require.NoError(t, err)
	assert.Nil(t, r.V1)
	assert.True(t, r.Present())
	assert.JSONEq(t, `{"version":"2.0.0","whatever":true}`, string(r.Raw))
	assert.Equal(t, Summary{}, r.Summary())
}

func TestDecode_Absent(t *testing.T) {
	for _, in := range []string{"", "null", "  "} {
		r, err := Decode([]byte(in))
		require.NoError(t, err)
		assert.False(t, r.Present())
		assert.Equal(t, Summary{}, r.Summary())
	}
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`[1]`))
	assert.True(t, perr.IsCode(err, perr.ErrorCodeJSON))
	_, err = Decode([]byte(`{"findings":"nope"}`))
	assert.True(t, perr.IsCode(err, perr.ErrorCodeJSON))
}

func TestNormalizeRisk(t *testing.T) {
	s, ok := NormalizeRisk(" high ")
	assert.True(t, ok)
	assert.Equal(t, "HIGH", s)
	_, ok = NormalizeRisk("spicy")
	assert.False(t, ok)
}
