package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"flood-watcher/internal/stations"
)

// QAParams tune the sensor health checks.
type QAParams struct {
	StaleAfter       time.Duration
	JumpThresholdMPH float64
	DatumToleranceM  float64
}

// QAFlag is a single raised health check.
type QAFlag struct {
	Code    string
	Detail  string
	Penalty int
}

// StationQA is the per-station verdict.
type StationQA struct {
	StationID  string
	Confidence int
	Flags      []QAFlag
}

// QASummary aggregates the basin-wide verdict.
type QASummary struct {
	Stations   []StationQA
	Confidence int
	Status     string
}

// StationInput carries what the validator needs to judge one station.
type StationInput struct {
	Level          *float64
	ObservedAt     time.Time
	Offline        bool
	OfflineDetail  string
	Rate           Slope
	SituationLevel *int
	GroundLevel    *float64
}

// flag penalties, in the order the ladder applies them.
const (
	penaltyOffline       = 100
	penaltyStale         = 30
	penaltyJump          = 25
	penaltyOutOfRange    = 40
	penaltyLogicConflict = 10
	penaltyDatum         = 20
)

// outOfRangeHeadroomM extends the plausible band above bank-full before
// a reading is written off as a sensor fault rather than a real flood.
const outOfRangeHeadroomM = 5.0

// Validator scores sensor trustworthiness per station and overall.
type Validator struct {
	params   QAParams
	registry *stations.Registry
	clock    clockwork.Clock
	logger   zerolog.Logger
}

func NewValidator(params QAParams, registry *stations.Registry, clock clockwork.Clock, logger zerolog.Logger) *Validator {
	return &Validator{
		params:   params,
		registry: registry,
		clock:    clock,
		logger:   logger.With().Str("component", "qa_validator").Logger(),
	}
}

// Validate runs the full flag ladder over every registered station and
// aggregates the results. An offline station scores zero and skips the
// remaining checks; everything else starts at 100 and loses points per
// raised flag, floored at zero.
func (v *Validator) Validate(inputs map[string]StationInput) QASummary {
	var summary QASummary
	total := 0

	for _, id := range v.registry.IDs() {
		in := inputs[id]
		st, _ := v.registry.Get(id)
		sq := v.validateStation(st, in)
		summary.Stations = append(summary.Stations, sq)
		total += sq.Confidence
	}

	n := len(summary.Stations)
	if n > 0 {
		summary.Confidence = int(math.Round(float64(total) / float64(n)))
	}
	summary.Status = statusFor(summary.Confidence)

	if summary.Status != "ok" {
		v.logger.Warn().
			Int("confidence", summary.Confidence).
			Str("status", summary.Status).
			Msg("sensor network degraded")
	}

	return summary
}

func (v *Validator) validateStation(st stations.Station, in StationInput) StationQA {
	sq := StationQA{StationID: st.ID, Confidence: 100}

	if in.Offline || in.Level == nil {
		detail := in.OfflineDetail
		if detail == "" {
			detail = "สถานีไม่ส่งข้อมูล (no telemetry received)"
		}
		sq.Flags = append(sq.Flags, QAFlag{Code: "offline", Detail: detail, Penalty: penaltyOffline})
		sq.Confidence = 0
		return sq
	}

	level := *in.Level
	now := v.clock.Now()

	if !in.ObservedAt.IsZero() && now.Sub(in.ObservedAt) > v.params.StaleAfter {
		age := now.Sub(in.ObservedAt).Round(time.Minute)
		sq.Flags = append(sq.Flags, QAFlag{
			Code:    "stale",
			Detail:  fmt.Sprintf("ข้อมูลเก่ากว่า %s (last update %s ago)", v.params.StaleAfter, age),
			Penalty: penaltyStale,
		})
	}

	if in.Rate.Known && abs(in.Rate.MetersPerHour) > v.params.JumpThresholdMPH {
		sq.Flags = append(sq.Flags, QAFlag{
			Code:    "jump",
			Detail:  fmt.Sprintf("ระดับน้ำเปลี่ยน %.2f ม./ชม. (physically implausible)", in.Rate.MetersPerHour),
			Penalty: penaltyJump,
		})
	}

	if level < st.MinValidLevel || level > st.BankFullCapacity+outOfRangeHeadroomM {
		sq.Flags = append(sq.Flags, QAFlag{
			Code:    "out_of_range",
			Detail:  fmt.Sprintf("ค่า %.2f ม. อยู่นอกช่วง %.1f..%.1f ม.", level, st.MinValidLevel, st.BankFullCapacity+outOfRangeHeadroomM),
			Penalty: penaltyOutOfRange,
		})
	}

	if in.SituationLevel != nil && *in.SituationLevel <= 1 && in.Rate.Known && in.Rate.MetersPerHour > 0.5 {
		sq.Flags = append(sq.Flags, QAFlag{
			Code:    "logic_warn",
			Detail:  fmt.Sprintf("สถานะ \"ปกติ\" แต่น้ำขึ้นเร็ว %.2f ม./ชม.", in.Rate.MetersPerHour),
			Penalty: penaltyLogicConflict,
		})
	}

	if in.GroundLevel != nil && abs(*in.GroundLevel-st.GroundLevel) > v.params.DatumToleranceM {
		sq.Flags = append(sq.Flags, QAFlag{
			Code:    "datum_mismatch",
			Detail:  fmt.Sprintf("datum ต่างจากค่าอ้างอิง %.2f ม.", *in.GroundLevel-st.GroundLevel),
			Penalty: penaltyDatum,
		})
	}

	if len(sq.Flags) == 0 {
		sq.Flags = append(sq.Flags, QAFlag{Code: "ok", Detail: "ข้อมูลปกติ (all checks passed)"})
	}

	for _, f := range sq.Flags {
		sq.Confidence -= f.Penalty
	}
	if sq.Confidence < 0 {
		sq.Confidence = 0
	}

	return sq
}

func statusFor(confidence int) string {
	switch {
	case confidence >= 80:
		return "ok"
	case confidence >= 50:
		return "degraded"
	default:
		return "critical"
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
