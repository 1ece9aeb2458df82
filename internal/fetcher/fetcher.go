package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// StationObservation is one normalized gauge observation. Level is nil
// when the station reported nothing usable (sentinel, malformed, absent).
type StationObservation struct {
	StationID string
	Level     *float64
	Timestamp time.Time
}

// GaugeResult is a normalized water-level fetch plus the raw payload for
// provenance fingerprinting.
type GaugeResult struct {
	Observations []StationObservation
	FetchedAt    time.Time
	RawPayload   []byte
}

// GaugeFetcher retrieves current water levels for the monitored
// stations. Endpoint reports the URL being called so every fetch can be
// attributed in the provenance log.
type GaugeFetcher interface {
	FetchLevels(ctx context.Context) (GaugeResult, error)
	Endpoint() string
}

// DailyRain is one day of forecast precipitation.
type DailyRain struct {
	Date time.Time
	MM   float64
}

// HourlyRain is one hour of forecast precipitation intensity.
type HourlyRain struct {
	Time time.Time
	MM   float64
}

// RainForecast is the 3-day outlook: a daily series plus the next 24
// hourly points, timestamped in basin-local time.
type RainForecast struct {
	Total3DMM float64
	Daily     []DailyRain
	Hourly    []HourlyRain
	UpdatedAt time.Time
}

// RainFetcher retrieves the precipitation forecast.
type RainFetcher interface {
	FetchForecast(ctx context.Context) (RainForecast, []byte, error)
	Endpoint() string
}

// OutageStatus reports sensor health for one station as cross-referenced
// from an independent signal.
type OutageStatus struct {
	StationID string
	Offline   bool
	Detail    string
}

// OutageFetcher retrieves station outage statuses.
type OutageFetcher interface {
	FetchOutages(ctx context.Context) (map[string]OutageStatus, error)
}

// Fingerprint returns a short sha256 digest of a raw payload, used for
// provenance dedup and integrity checks.
func Fingerprint(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}
