package analysis

import (
	"fmt"
	"math"
)

// Severity grades the historical comparison.
type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityLow      Severity = "LOW"
	SeverityMinor    Severity = "MINOR"
	SeverityModerate Severity = "MODERATE"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Event is one verified past flood of the basin.
type Event struct {
	Year      int
	Rain3DMM  float64
	Rain24HMM float64
	PeakLevel float64
	Label     string
	Severity  string
}

// Comparison contextualizes current rainfall against the event table.
type Comparison struct {
	NearestEvent *Event
	Percentage   float64
	Message      string
	Severity     Severity
}

// historicalEvents is a fixed table of verified basin floods, worst first.
var historicalEvents = []Event{
	{Year: 2010, Rain3DMM: 850, Rain24HMM: 520, PeakLevel: 12.5, Label: "2010 Great Flood", Severity: "CATASTROPHIC"},
	{Year: 2017, Rain3DMM: 420, Rain24HMM: 280, PeakLevel: 10.8, Label: "2017 Severe Flood", Severity: "SEVERE"},
	{Year: 2022, Rain3DMM: 250, Rain24HMM: 180, PeakLevel: 10.2, Label: "2022 Flash Flood", Severity: "MODERATE"},
}

// benchmarkEvent returns the worst event on record (the 2010 flood).
func benchmarkEvent() Event {
	return historicalEvents[0]
}

// Compare finds the past event numerically closest to the current 3-day
// rainfall and grades the situation against the worst on record. Pure
// function over the fixed table.
func Compare(currentRain3D float64) Comparison {
	if currentRain3D <= 0 {
		return Comparison{
			Percentage: 0,
			Message:    "No significant rainfall.",
			Severity:   SeverityNone,
		}
	}

	var nearest *Event
	minDiff := math.Inf(1)
	for i := range historicalEvents {
		diff := math.Abs(historicalEvents[i].Rain3DMM - currentRain3D)
		if diff < minDiff {
			minDiff = diff
			nearest = &historicalEvents[i]
		}
	}

	benchmark := benchmarkEvent()
	pct := round1(currentRain3D / benchmark.Rain3DMM * 100)

	var msg string
	switch {
	case currentRain3D < 50:
		msg = "Well below any historical flood event."
	case currentRain3D < 150:
		msg = fmt.Sprintf("~%.1f%% of %d event intensity.", pct, benchmark.Year)
	case currentRain3D < 300:
		msg = fmt.Sprintf("Approaching %s levels (%.1f%% of %d).", nearest.Label, pct, benchmark.Year)
	default:
		msg = fmt.Sprintf("DANGER: Exceeding %s! (%.1f%% of %d catastrophe)", nearest.Label, pct, benchmark.Year)
	}

	return Comparison{
		NearestEvent: nearest,
		Percentage:   pct,
		Message:      msg,
		Severity:     severityFor(currentRain3D),
	}
}

// severityFor buckets 3-day rainfall into the fixed severity ladder.
func severityFor(rain3D float64) Severity {
	switch {
	case rain3D <= 0:
		return SeverityNone
	case rain3D < 50:
		return SeverityLow
	case rain3D < 150:
		return SeverityMinor
	case rain3D < 300:
		return SeverityModerate
	case rain3D < 500:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}
