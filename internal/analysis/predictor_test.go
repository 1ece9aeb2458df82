package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flood-watcher/internal/storage"
)

func testPredictorParams() PredictorParams {
	return PredictorParams{
		HistoryWindow: 168 * time.Hour,
		MaxLagHours:   12,
		MinRows:       5,
		ModelTTL:      30 * time.Minute,
		HorizonHours:  3,
	}
}

// laggedHistory builds an upstream pulse and a downstream copy shifted
// by lagHours with downstream = slope*upstream + intercept.
func laggedHistory(base time.Time, hours, lagHours int, slope, intercept float64) []storage.Reading {
	pulse := func(h int) float64 {
		// triangular bump between hour 10 and 18
		switch {
		case h < 10 || h > 18:
			return 1.0
		case h <= 14:
			return 1.0 + float64(h-10)
		default:
			return 1.0 + float64(18-h)
		}
	}

	var readings []storage.Reading
	for h := 0; h < hours; h++ {
		ts := base.Add(time.Duration(h) * time.Hour)
		readings = append(readings, storage.Reading{
			Timestamp: ts,
			StationID: "Sadao",
			LevelM:    pulse(h),
		})
		readings = append(readings, storage.Reading{
			Timestamp: ts,
			StationID: "HatYai",
			LevelM:    slope*pulse(h-lagHours) + intercept,
		})
	}
	return readings
}

func newTestPredictor(src ReadingSource, clock clockwork.Clock) *Predictor {
	return NewPredictor(src, "Sadao", "HatYai", testPredictorParams(), clock, zerolog.Nop())
}

func TestPredictorRecoversLag(t *testing.T) {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	src := &fakeReadingSource{readings: laggedHistory(base, 48, 3, 0.5, 2.0)}
	p := newTestPredictor(src, clockwork.NewFakeClock())

	model, err := p.Model(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, model.LagHours)
	assert.InDelta(t, 0.5, model.Slope, 1e-6)
	assert.InDelta(t, 2.0, model.Intercept, 1e-6)
	assert.InDelta(t, 1.0, model.Correlation, 1e-6)
	assert.GreaterOrEqual(t, model.Rows, 5)
}

func TestPredictorModelCachedUntilTTL(t *testing.T) {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	src := &fakeReadingSource{readings: laggedHistory(base, 48, 3, 0.5, 2.0)}
	clock := clockwork.NewFakeClock()
	p := newTestPredictor(src, clock)

	_, err := p.Model(context.Background())
	require.NoError(t, err)
	fits := src.calls

	_, err = p.Model(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fits, src.calls, "second call inside TTL must reuse the cached model")

	clock.Advance(31 * time.Minute)
	_, err = p.Model(context.Background())
	require.NoError(t, err)
	assert.Greater(t, src.calls, fits, "expired cache must refit")
}

func TestPredictorInvalidate(t *testing.T) {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	src := &fakeReadingSource{readings: laggedHistory(base, 48, 3, 0.5, 2.0)}
	p := newTestPredictor(src, clockwork.NewFakeClock())

	_, err := p.Model(context.Background())
	require.NoError(t, err)
	fits := src.calls

	p.Invalidate()
	_, err = p.Model(context.Background())
	require.NoError(t, err)
	assert.Greater(t, src.calls, fits)
}

func TestPredictorInsufficientHistory(t *testing.T) {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	src := &fakeReadingSource{readings: laggedHistory(base, 3, 1, 0.5, 2.0)}
	p := newTestPredictor(src, clockwork.NewFakeClock())

	_, err := p.Model(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestPredictorProjections(t *testing.T) {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	src := &fakeReadingSource{readings: laggedHistory(base, 48, 3, 0.5, 2.0)}
	p := newTestPredictor(src, clockwork.NewFakeClock())

	prediction, err := p.Predict(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "high", prediction.Confidence)
	require.Len(t, prediction.Projections, 3)

	// Quiet tail of the pulse: upstream is back at 1.0, so every
	// projected level is 0.5*1.0 + 2.0. With lag 3 every requested hour
	// is driven by an observed upstream value.
	for _, proj := range prediction.Projections {
		assert.InDelta(t, 2.5, proj.LevelM, 1e-9)
		assert.False(t, proj.Extrapolated)
	}
}

func TestPredictorProjectsFullHorizonPastLag(t *testing.T) {
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	src := &fakeReadingSource{readings: laggedHistory(base, 48, 1, 0.5, 2.0)}
	p := newTestPredictor(src, clockwork.NewFakeClock())

	prediction, err := p.Predict(context.Background())
	require.NoError(t, err)

	// Lag 1 with a 3-hour horizon: hours two and three have no observed
	// driver yet, so the latest upstream value stands in.
	require.Len(t, prediction.Projections, 3)
	assert.False(t, prediction.Projections[0].Extrapolated)
	assert.True(t, prediction.Projections[1].Extrapolated)
	assert.True(t, prediction.Projections[2].Extrapolated)
	for _, proj := range prediction.Projections {
		assert.InDelta(t, 2.5, proj.LevelM, 1e-9)
	}
}

func TestHourlySeriesNearestClamps(t *testing.T) {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	series := hourlySeries{Start: base, Values: []float64{1.0, 2.0, 3.0}}

	before, ok := series.nearest(base.Add(-5 * time.Hour))
	require.True(t, ok)
	assert.InDelta(t, 1.0, before, 1e-9)

	inside, ok := series.nearest(base.Add(1 * time.Hour))
	require.True(t, ok)
	assert.InDelta(t, 2.0, inside, 1e-9)

	after, ok := series.nearest(base.Add(9 * time.Hour))
	require.True(t, ok)
	assert.InDelta(t, 3.0, after, 1e-9)

	_, ok = hourlySeries{}.nearest(base)
	assert.False(t, ok)
}

func TestResampleHourlyInterpolatesGaps(t *testing.T) {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	readings := []storage.Reading{
		{Timestamp: base, StationID: "X", LevelM: 2.0},
		// hours 1 and 2 missing
		{Timestamp: base.Add(3 * time.Hour), StationID: "X", LevelM: 5.0},
	}

	series := resampleHourly(readings)

	require.Len(t, series.Values, 4)
	assert.InDelta(t, 2.0, series.Values[0], 1e-9)
	assert.InDelta(t, 3.0, series.Values[1], 1e-9)
	assert.InDelta(t, 4.0, series.Values[2], 1e-9)
	assert.InDelta(t, 5.0, series.Values[3], 1e-9)
}

func TestResampleHourlyAveragesWithinHour(t *testing.T) {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	readings := []storage.Reading{
		{Timestamp: base.Add(5 * time.Minute), StationID: "X", LevelM: 2.0},
		{Timestamp: base.Add(45 * time.Minute), StationID: "X", LevelM: 4.0},
	}

	series := resampleHourly(readings)

	require.Len(t, series.Values, 1)
	assert.InDelta(t, 3.0, series.Values[0], 1e-9)
}

func TestPearson(t *testing.T) {
	assert.InDelta(t, 1.0, pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, pearson([]float64{1, 2, 3}, []float64{6, 4, 2}), 1e-9)
	assert.Zero(t, pearson([]float64{1, 1, 1}, []float64{2, 4, 6}))
}

func TestLeastSquares(t *testing.T) {
	slope, intercept := leastSquares([]float64{0, 1, 2, 3}, []float64{2, 2.5, 3, 3.5})
	assert.InDelta(t, 0.5, slope, 1e-9)
	assert.InDelta(t, 2.0, intercept, 1e-9)
}
