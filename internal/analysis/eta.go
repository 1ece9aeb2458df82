package analysis

import (
	"fmt"
	"math"
)

// Hydraulics pins the basin's channel geometry and flow parameters.
type Hydraulics struct {
	SinuosityFactor  float64
	StraightKM       float64
	BaseVelocityDry  float64
	BaseVelocityNorm float64
	BaseVelocityWet  float64
	MaxVelocity      float64
	RunoffLagHours   float64
}

// ETAEstimate is the time-to-impact of an upstream water pulse at the
// downstream station.
type ETAEstimate struct {
	HasData    bool
	ETAHours   float64
	Label      string
	VelocityMS float64
	Confidence string
	Rising     bool
}

// ETAEstimator converts an upstream level and rate-of-change into a
// travel-time estimate over the sinuosity-adjusted channel distance.
type ETAEstimator struct {
	h Hydraulics
}

// NewETAEstimator builds an estimator for the given hydraulics.
func NewETAEstimator(h Hydraulics) *ETAEstimator {
	return &ETAEstimator{h: h}
}

const minVelocityMS = 0.1

// Estimate computes the ETA for the current upstream state. A missing
// upstream level yields an explicit no-data result rather than an error:
// the risk report must always carry a well-formed ETA block.
func (e *ETAEstimator) Estimate(upstreamLevel *float64, upstreamRate Slope, bankFull float64) ETAEstimate {
	if upstreamLevel == nil {
		return ETAEstimate{
			Label:      "--",
			Confidence: "Low",
		}
	}

	level := *upstreamLevel
	velocity := e.hydraulicVelocity(level, bankFull)

	// Momentum: a rising pulse carries speed the pure depth relation
	// misses; a receding one sheds it.
	rate := 0.0
	if upstreamRate.Known {
		rate = upstreamRate.MetersPerHour
	}
	switch {
	case rate > 0.5:
		velocity *= 1.3
	case rate > 0.2:
		velocity *= 1.1
	case rate < -0.1:
		velocity *= 0.8
	}
	velocity = clamp(velocity, minVelocityMS, e.h.MaxVelocity)

	actualDistanceM := e.h.StraightKM * e.h.SinuosityFactor * 1000
	travelHours := (actualDistanceM / velocity) / 3600
	etaHours := travelHours + e.h.RunoffLagHours

	rising := upstreamRate.Known && rate > 0

	confidence := "Low"
	switch {
	case level > bankFull && rising:
		confidence = "High"
	case level > 0.8*bankFull:
		confidence = "Medium"
	}

	return ETAEstimate{
		HasData:    true,
		ETAHours:   etaHours,
		Label:      fmt.Sprintf("~%d hrs", int(etaHours)),
		VelocityMS: velocity,
		Confidence: confidence,
		Rising:     rising,
	}
}

// hydraulicVelocity applies the simplified Manning-style relation:
// depth ratio drives velocity via a square-root law, saturating at
// 1.5x bank-full so an off-scale reading cannot extrapolate unbounded.
func (e *ETAEstimator) hydraulicVelocity(level, bankFull float64) float64 {
	base := e.baseVelocity(level, bankFull)
	if level <= 0 {
		return base * 0.5
	}
	depthRatio := math.Min(level/bankFull, 1.5)
	return math.Min(base*math.Sqrt(depthRatio), e.h.MaxVelocity)
}

// baseVelocity picks the seasonal flow tier from how full the channel is.
func (e *ETAEstimator) baseVelocity(level, bankFull float64) float64 {
	switch {
	case level < 0.3*bankFull:
		return e.h.BaseVelocityDry
	case level < 0.7*bankFull:
		return e.h.BaseVelocityNorm
	default:
		return e.h.BaseVelocityWet
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
