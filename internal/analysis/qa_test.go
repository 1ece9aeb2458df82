package analysis

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flood-watcher/internal/config"
	"flood-watcher/internal/stations"
)

func qaRegistry(t *testing.T) *stations.Registry {
	t.Helper()
	r, err := stations.NewRegistry(config.BasinConfig{
		PrimaryStation:  "HatYai",
		UpstreamStation: "Sadao",
		Stations: []config.StationConfig{
			{ID: "HatYai", Code: "X.90", GroundLevel: 6.0, BankFullCapacity: 10.5, MinValidLevel: -2.0},
			{ID: "Sadao", Code: "X.173", GroundLevel: 14.0, BankFullCapacity: 9.0, MinValidLevel: -1.5},
			{ID: "Kallayanamit", Code: "X.44", GroundLevel: 9.0, BankFullCapacity: 10.0, MinValidLevel: -1.8},
		},
	})
	require.NoError(t, err)
	return r
}

func newTestValidator(t *testing.T, clock clockwork.Clock) *Validator {
	t.Helper()
	return NewValidator(QAParams{
		StaleAfter:       6 * time.Hour,
		JumpThresholdMPH: 2.0,
		DatumToleranceM:  0.5,
	}, qaRegistry(t), clock, zerolog.Nop())
}

func healthyInput(now time.Time, level float64) StationInput {
	return StationInput{
		Level:      &level,
		ObservedAt: now.Add(-10 * time.Minute),
		Rate:       Slope{MetersPerHour: 0.1, Known: true},
	}
}

func healthyInputs(now time.Time) map[string]StationInput {
	return map[string]StationInput{
		"HatYai":       healthyInput(now, 5.0),
		"Sadao":        healthyInput(now, 4.0),
		"Kallayanamit": healthyInput(now, 4.5),
	}
}

func TestValidateAllHealthy(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestValidator(t, clock)

	summary := v.Validate(healthyInputs(clock.Now()))

	assert.Equal(t, 100, summary.Confidence)
	assert.Equal(t, "ok", summary.Status)
	require.Len(t, summary.Stations, 3)
	for _, sq := range summary.Stations {
		require.Lenf(t, sq.Flags, 1, "station %s should carry exactly the ok flag", sq.StationID)
		assert.Equal(t, "ok", sq.Flags[0].Code)
		assert.Zero(t, sq.Flags[0].Penalty)
		assert.Equal(t, 100, sq.Confidence)
	}
}

func TestValidateOfflineShortCircuits(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestValidator(t, clock)

	inputs := healthyInputs(clock.Now())
	// Offline plus conditions that would raise every other flag: the
	// ladder must stop at offline.
	level := 50.0
	inputs["Sadao"] = StationInput{
		Level:      &level,
		Offline:    true,
		ObservedAt: clock.Now().Add(-24 * time.Hour),
		Rate:       Slope{MetersPerHour: 5.0, Known: true},
	}

	summary := v.Validate(inputs)

	var sadao StationQA
	for _, sq := range summary.Stations {
		if sq.StationID == "Sadao" {
			sadao = sq
		}
	}
	assert.Equal(t, 0, sadao.Confidence)
	require.Len(t, sadao.Flags, 1)
	assert.Equal(t, "offline", sadao.Flags[0].Code)
}

func TestValidateMissingLevelIsOffline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestValidator(t, clock)

	inputs := healthyInputs(clock.Now())
	inputs["HatYai"] = StationInput{}

	summary := v.Validate(inputs)

	for _, sq := range summary.Stations {
		if sq.StationID == "HatYai" {
			assert.Equal(t, 0, sq.Confidence)
			require.Len(t, sq.Flags, 1)
			assert.Equal(t, "offline", sq.Flags[0].Code)
		}
	}
}

func stationQA(t *testing.T, summary QASummary, id string) StationQA {
	t.Helper()
	for _, sq := range summary.Stations {
		if sq.StationID == id {
			return sq
		}
	}
	t.Fatalf("no QA entry for %s", id)
	return StationQA{}
}

func TestValidateStaleReading(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestValidator(t, clock)

	inputs := healthyInputs(clock.Now())
	in := inputs["HatYai"]
	in.ObservedAt = clock.Now().Add(-7 * time.Hour)
	inputs["HatYai"] = in

	summary := v.Validate(inputs)
	sq := stationQA(t, summary, "HatYai")

	assert.Equal(t, 70, sq.Confidence)
	require.Len(t, sq.Flags, 1)
	assert.Equal(t, "stale", sq.Flags[0].Code)
}

func TestValidateImplausibleJump(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestValidator(t, clock)

	inputs := healthyInputs(clock.Now())
	in := inputs["HatYai"]
	in.Rate = Slope{MetersPerHour: -2.5, Known: true}
	inputs["HatYai"] = in

	summary := v.Validate(inputs)
	sq := stationQA(t, summary, "HatYai")

	assert.Equal(t, 75, sq.Confidence)
	require.Len(t, sq.Flags, 1)
	assert.Equal(t, "jump", sq.Flags[0].Code)
}

func TestValidateOutOfRange(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestValidator(t, clock)

	inputs := healthyInputs(clock.Now())
	in := inputs["HatYai"]
	level := 16.0 // above bank-full 10.5 + 5m headroom
	in.Level = &level
	inputs["HatYai"] = in

	summary := v.Validate(inputs)
	sq := stationQA(t, summary, "HatYai")

	assert.Equal(t, 60, sq.Confidence)
	require.Len(t, sq.Flags, 1)
	assert.Equal(t, "out_of_range", sq.Flags[0].Code)
}

func TestValidateLogicConflict(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestValidator(t, clock)

	inputs := healthyInputs(clock.Now())
	in := inputs["HatYai"]
	situation := 1
	in.SituationLevel = &situation
	in.Rate = Slope{MetersPerHour: 0.6, Known: true}
	inputs["HatYai"] = in

	summary := v.Validate(inputs)
	sq := stationQA(t, summary, "HatYai")

	assert.Equal(t, 90, sq.Confidence)
	require.Len(t, sq.Flags, 1)
	assert.Equal(t, "logic_warn", sq.Flags[0].Code)
}

func TestValidateDatumMismatch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestValidator(t, clock)

	inputs := healthyInputs(clock.Now())
	in := inputs["HatYai"]
	ground := 7.0 // registry says 6.0, tolerance 0.5
	in.GroundLevel = &ground
	inputs["HatYai"] = in

	summary := v.Validate(inputs)
	sq := stationQA(t, summary, "HatYai")

	assert.Equal(t, 80, sq.Confidence)
	require.Len(t, sq.Flags, 1)
	assert.Equal(t, "datum_mismatch", sq.Flags[0].Code)
}

func TestValidateFlagsStack(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestValidator(t, clock)

	inputs := healthyInputs(clock.Now())
	level := 16.0
	inputs["HatYai"] = StationInput{
		Level:      &level,
		ObservedAt: clock.Now().Add(-8 * time.Hour),
		Rate:       Slope{MetersPerHour: 3.0, Known: true},
	}

	summary := v.Validate(inputs)
	sq := stationQA(t, summary, "HatYai")

	// stale 30 + jump 25 + out_of_range 40
	assert.Equal(t, 5, sq.Confidence)
	assert.Len(t, sq.Flags, 3)
}

func TestValidateAggregateBuckets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	v := newTestValidator(t, clock)

	inputs := healthyInputs(clock.Now())
	inputs["Sadao"] = StationInput{Offline: true}

	summary := v.Validate(inputs)

	// (100 + 0 + 100) / 3 = 66.67, rounded
	assert.Equal(t, 67, summary.Confidence)
	assert.Equal(t, "degraded", summary.Status)

	summary = v.Validate(map[string]StationInput{})
	assert.Equal(t, 0, summary.Confidence)
	assert.Equal(t, "critical", summary.Status)
}
