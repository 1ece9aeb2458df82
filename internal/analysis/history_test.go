package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareNoRain(t *testing.T) {
	c := Compare(0)

	assert.Equal(t, SeverityNone, c.Severity)
	assert.Nil(t, c.NearestEvent)
	assert.Zero(t, c.Percentage)
}

func TestCompareLightRain(t *testing.T) {
	c := Compare(30)

	assert.Equal(t, SeverityLow, c.Severity)
	assert.Equal(t, "Well below any historical flood event.", c.Message)
	assert.InDelta(t, 3.5, c.Percentage, 0.1)
}

func TestCompareModerateRainNearest2022(t *testing.T) {
	c := Compare(250)

	require.NotNil(t, c.NearestEvent)
	assert.Equal(t, 2022, c.NearestEvent.Year)
	assert.Equal(t, SeverityModerate, c.Severity)
	assert.Contains(t, c.Message, "Approaching")
}

func TestCompareHighRain(t *testing.T) {
	c := Compare(400)

	require.NotNil(t, c.NearestEvent)
	assert.Equal(t, 2017, c.NearestEvent.Year)
	assert.Equal(t, SeverityHigh, c.Severity)
	assert.Contains(t, c.Message, "DANGER")
}

func TestCompareBenchmarkStorm(t *testing.T) {
	c := Compare(850)

	require.NotNil(t, c.NearestEvent)
	assert.Equal(t, 2010, c.NearestEvent.Year)
	assert.InDelta(t, 100.0, c.Percentage, 0.01)
	assert.Equal(t, SeverityCritical, c.Severity)
}

func TestSeverityLadder(t *testing.T) {
	cases := map[float64]Severity{
		-5:  SeverityNone,
		10:  SeverityLow,
		49:  SeverityLow,
		50:  SeverityMinor,
		149: SeverityMinor,
		150: SeverityModerate,
		299: SeverityModerate,
		300: SeverityHigh,
		499: SeverityHigh,
		500: SeverityCritical,
		900: SeverityCritical,
	}
	for rain, want := range cases {
		assert.Equalf(t, want, severityFor(rain), "rain=%v", rain)
	}
}
