package analysis

import (
	"context"
	"sort"
	"time"

	"flood-watcher/internal/storage"
)

const (
	rateQueryWindow    = 2 * time.Hour
	rateTrailingWindow = 90 * time.Minute
	// Floor on elapsed time between the first and last point so two
	// near-simultaneous readings cannot blow the slope up.
	rateMinElapsedHours = 0.1
)

// Slope is a rate-of-change result. Known distinguishes a measured zero
// slope from "fewer than two points in the window", which the upstream
// system conflated into a bare 0.
type Slope struct {
	MetersPerHour float64
	Known         bool
}

// ReadingSource supplies windowed history from the time-series store.
type ReadingSource interface {
	ReadingsSince(ctx context.Context, window time.Duration) ([]storage.Reading, error)
}

// RateEstimator computes short-window level slopes per station.
type RateEstimator struct {
	src ReadingSource
}

// NewRateEstimator wires a reading source into the estimator.
func NewRateEstimator(src ReadingSource) *RateEstimator {
	return &RateEstimator{src: src}
}

// Rates returns the slope per station over the trailing window. Stations
// with fewer than two usable points yield an unknown slope. A store
// failure is returned as-is: callers must be able to tell "data layer
// down" from "flat river".
func (e *RateEstimator) Rates(ctx context.Context) (map[string]Slope, error) {
	readings, err := e.src.ReadingsSince(ctx, rateQueryWindow)
	if err != nil {
		return nil, err
	}

	rates := make(map[string]Slope)
	if len(readings) == 0 {
		return rates, nil
	}

	var latest time.Time
	byStation := make(map[string][]storage.Reading)
	for _, r := range readings {
		byStation[r.StationID] = append(byStation[r.StationID], r)
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}

	cutoff := latest.Add(-rateTrailingWindow)
	for station, series := range byStation {
		sort.Slice(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})

		recent := series[:0:0]
		for _, r := range series {
			if !r.Timestamp.Before(cutoff) {
				recent = append(recent, r)
			}
		}

		if len(recent) < 2 {
			rates[station] = Slope{}
			continue
		}

		first, last := recent[0], recent[len(recent)-1]
		elapsed := last.Timestamp.Sub(first.Timestamp).Hours()
		if elapsed < rateMinElapsedHours {
			elapsed = rateMinElapsedHours
		}
		rates[station] = Slope{
			MetersPerHour: (last.LevelM - first.LevelM) / elapsed,
			Known:         true,
		}
	}

	return rates, nil
}
