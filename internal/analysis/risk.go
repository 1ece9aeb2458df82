package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flood-watcher/internal/fetcher"
	"flood-watcher/internal/stations"
	"flood-watcher/internal/storage"
)

// Tier is the alert classification of a risk score.
type Tier string

const (
	TierNormal   Tier = "NORMAL"
	TierWarning  Tier = "WARNING"
	TierCritical Tier = "CRITICAL"
)

// RiskParams are the fusion constants.
type RiskParams struct {
	SigmoidK        float64
	SigmoidX0       float64
	WaterWeight     float64
	RainWeight      float64
	NormalMax       float64
	WarningMax      float64
	RainBenchmarkMM float64
}

// Outlook classifies the 3-day rainfall trend.
type Outlook struct {
	Trend          string
	MaxRainDay     string
	Summary        string
	DailyValues    []float64
	DailyLabels    []string
	DailyIntensity []string
}

// SituationSummary is the four-line narrative report.
type SituationSummary struct {
	HeadlineTH    string
	HeadlineEN    string
	RainContextTH string
	RainContextEN string
	UpstreamTH    string
	UpstreamEN    string
	ActionTH      string
	ActionEN      string
}

// RiskReport is the full analysis output handed to presentation.
type RiskReport struct {
	PrimaryRisk  float64
	AlertTier    Tier
	MessageEN    string
	MessageTH    string
	ChecklistEN  []string
	ChecklistTH  []string
	DataSource   string
	Confidence   int
	SensorActive bool
	RainSum3D    float64
	CurrentLevel *float64
	Color        string
	Outlook      Outlook
	ETA          ETAEstimate
	History      Comparison
	Summary      SituationSummary
	AssessedAt   time.Time
}

// AssessmentSink receives the audit-log append. Implemented by the
// storage layer; failures are swallowed here and surfaced via logs only.
type AssessmentSink interface {
	AppendAssessment(ctx context.Context, a storage.Assessment) (storage.Assessment, error)
}

// Engine fuses rainfall and water-level signals into one risk score.
type Engine struct {
	params   RiskParams
	eta      *ETAEstimator
	upstream stations.Station
	sink     AssessmentSink
	logger   zerolog.Logger
}

// NewEngine constructs the fusion engine. sink may be nil, in which case
// assessments are not logged.
func NewEngine(params RiskParams, eta *ETAEstimator, upstream stations.Station, sink AssessmentSink, logger zerolog.Logger) *Engine {
	return &Engine{
		params:   params,
		eta:      eta,
		upstream: upstream,
		sink:     sink,
		logger:   logger.With().Str("component", "risk_engine").Logger(),
	}
}

// Analyze produces a RiskReport from the current snapshot, forecast, and
// rate map. It never fails: with no sensor data it degrades to rain-only
// mode, and with no rain data the rain term is simply zero.
func (e *Engine) Analyze(ctx context.Context, snap Snapshot, rain fetcher.RainForecast, rates map[string]Slope) RiskReport {
	rainRisk := math.Min(rain.Total3DMM/e.params.RainBenchmarkMM*100, 100)

	var finalRisk float64
	var confidence int
	var source string
	if snap.HasPrimary() {
		waterRisk := e.sigmoidRisk(*snap.PrimaryLevel)
		finalRisk = rainRisk*e.params.RainWeight + waterRisk*e.params.WaterWeight
		confidence = 90
		source = fmt.Sprintf("Hybrid (%s)", snap.PrimaryCode)
	} else {
		finalRisk = rainRisk
		confidence = 65
		source = "Virtual (Rain Only)"
	}

	tier := e.classify(finalRisk)
	narrative := narrativeFor(tier)

	upstreamLevel := levelPtr(snap, e.upstream.ID)
	eta := e.eta.Estimate(upstreamLevel, rates[e.upstream.ID], e.upstream.BankFullCapacity)

	report := RiskReport{
		PrimaryRisk:  round1(finalRisk),
		AlertTier:    tier,
		MessageEN:    narrative.messageEN,
		MessageTH:    narrative.messageTH,
		ChecklistEN:  narrative.checklistEN,
		ChecklistTH:  narrative.checklistTH,
		DataSource:   source,
		Confidence:   confidence,
		SensorActive: snap.HasPrimary(),
		RainSum3D:    round1(rain.Total3DMM),
		CurrentLevel: snap.PrimaryLevel,
		Color:        narrative.color,
		Outlook:      buildOutlook(rain),
		ETA:          eta,
		History:      Compare(rain.Total3DMM),
		Summary:      e.situationSummary(rain.Total3DMM, snap, finalRisk, eta),
		AssessedAt:   time.Now().UTC(),
	}

	e.logAssessment(ctx, report)

	return report
}

// sigmoidRisk maps a water level to a bounded 0-100 risk with smooth
// transitions across the thresholds. Levels are normalized around the
// basin's 5-15m operating band before the logistic curve is applied.
func (e *Engine) sigmoidRisk(level float64) float64 {
	normalized := (level - 5.0) / 10.0
	risk := 100 / (1 + math.Exp(-e.params.SigmoidK*(normalized-e.params.SigmoidX0/10.0)))
	return clamp(risk, 0, 100)
}

func (e *Engine) classify(risk float64) Tier {
	switch {
	case risk > e.params.WarningMax:
		return TierCritical
	case risk > e.params.NormalMax:
		return TierWarning
	default:
		return TierNormal
	}
}

// logAssessment appends to the audit log fire-and-forget: a log write
// is not part of the transaction that produces a report.
func (e *Engine) logAssessment(ctx context.Context, r RiskReport) {
	if e.sink == nil {
		return
	}
	rec := storage.Assessment{
		AssessedAt: r.AssessedAt,
		Rain3DMM:   r.RainSum3D,
		LevelM:     r.CurrentLevel,
		RiskScore:  r.PrimaryRisk,
		AlertTier:  string(r.AlertTier),
		DataSource: r.DataSource,
	}
	if _, err := e.sink.AppendAssessment(ctx, rec); err != nil {
		e.logger.Warn().Err(err).Msg("failed to append risk assessment")
	}
}

type narrative struct {
	color       string
	messageEN   string
	messageTH   string
	checklistEN []string
	checklistTH []string
}

func narrativeFor(tier Tier) narrative {
	switch tier {
	case TierCritical:
		return narrative{
			color:     "#ff5252",
			messageEN: "CRITICAL: High flood probability",
			messageTH: "วิกฤต: ความเสี่ยงน้ำท่วมสูงมาก",
			checklistEN: []string{
				"Move vehicles to high ground immediately",
				"Cut ground-floor electricity",
				"Prepare emergency kit & medicine",
				"Evacuate elderly/disabled persons",
			},
			checklistTH: []string{
				"ย้ายรถไปที่สูงทันที (เช่น ตึกฟักทอง)",
				"ตัดไฟชั้นล่าง",
				"เตรียมชุดฉุกเฉินและยา",
				"อพยพผู้สูงอายุ/ผู้พิการ",
			},
		}
	case TierWarning:
		return narrative{
			color:     "#ffa726",
			messageEN: "WARNING: Elevated rain accumulation",
			messageTH: "เฝ้าระวัง: ฝนตกหนัก / ดินชุ่มน้ำ",
			checklistEN: []string{
				"Move belongings to 2nd floor",
				"Check ground-floor power outlets",
				"Fill vehicle fuel tank",
				"Monitor updates every hour",
			},
			checklistTH: []string{
				"ยกของขึ้นชั้น 2",
				"ตรวจสอบปลั๊กไฟชั้นล่าง",
				"เติมน้ำมันรถให้เต็ม",
				"ติดตามข่าวทุกชั่วโมง",
			},
		}
	default:
		return narrative{
			color:     "#66bb6a",
			messageEN: "NORMAL: All systems green",
			messageTH: "ปกติ: สถานการณ์ทั่วไป",
			checklistEN: []string{
				"Monitor daily news",
				"Check drains around home",
				"Keep flashlight & batteries ready",
			},
			checklistTH: []string{
				"ติดตามข่าวสารประจำวัน",
				"ดูแลรางระบายน้ำรอบบ้าน",
				"เตรียมไฟฉายและถ่านสำรอง",
			},
		}
	}
}

// outlookTrendDelta is the day-over-day change treated as a real trend
// rather than noise.
const outlookTrendDelta = 5.0

func buildOutlook(rain fetcher.RainForecast) Outlook {
	if len(rain.Daily) < 3 {
		return Outlook{
			Trend:      "Analyzing...",
			MaxRainDay: "N/A",
			Summary:    "Waiting for data...",
		}
	}

	d1, d2, d3 := rain.Daily[0].MM, rain.Daily[1].MM, rain.Daily[2].MM

	trend := "Stable"
	if d2 > d1+outlookTrendDelta {
		trend = "Rising"
	} else if d2 < d1-outlookTrendDelta {
		trend = "Falling"
	}

	labels := []string{"Tomorrow", "Day 2", "Day 3"}
	values := []float64{round1(d1), round1(d2), round1(d3)}
	intensity := make([]string, len(values))
	maxIdx := 0
	for i, v := range values {
		intensity[i] = rainIntensity(v)
		if v > values[maxIdx] {
			maxIdx = i
		}
	}

	var summary string
	switch total := rain.Total3DMM; {
	case total < 10:
		summary = "Dry spell, no flood risk."
	case total < 30:
		summary = "Light scattered rain."
	case total < 60:
		summary = "Moderate rain, drains should cope."
	case total < 120:
		summary = "Heavy rain ahead! Stay alert."
	default:
		summary = "EXTREME RAIN. FLOOD LIKELY."
	}

	return Outlook{
		Trend:          trend,
		MaxRainDay:     fmt.Sprintf("%s (%.1fmm)", labels[maxIdx], values[maxIdx]),
		Summary:        summary,
		DailyValues:    values,
		DailyLabels:    labels,
		DailyIntensity: intensity,
	}
}

// Daily rainfall intensity classes in mm/day.
const (
	lightDailyMM    = 10.0
	moderateDailyMM = 30.0
	extremeDailyMM  = 100.0
)

func rainIntensity(mm float64) string {
	switch {
	case mm < lightDailyMM:
		return "light"
	case mm < moderateDailyMM:
		return "moderate"
	case mm < extremeDailyMM:
		return "heavy"
	default:
		return "extreme"
	}
}

// rainContextBenchmarkMM is the 2010 storm's accumulation used for the
// narrative comparison line.
const rainContextBenchmarkMM = 350.0

func (e *Engine) situationSummary(rainSum float64, snap Snapshot, risk float64, eta ETAEstimate) SituationSummary {
	var s SituationSummary

	switch {
	case risk > e.params.WarningMax:
		s.HeadlineTH = "วิกฤต: น้ำท่วมสูงมาก เตรียมรับมือทันที"
		s.HeadlineEN = "CRITICAL: High flood risk. Immediate action."
	case risk > e.params.NormalMax:
		s.HeadlineTH = "เฝ้าระวัง: ฝนเริ่มสะสม ดินชุ่มน้ำ"
		s.HeadlineEN = "WATCH: Accumulating rain. Soil saturated."
	default:
		s.HeadlineTH = "สถานการณ์ปกติ: ไม่มีฝนหนักใน 3 วันนี้"
		s.HeadlineEN = "NORMAL: No heavy rain forecast in 3 days."
	}

	rainPct := rainSum / rainContextBenchmarkMM * 100
	switch {
	case rainPct < 10:
		s.RainContextTH = fmt.Sprintf("ฝนสะสม %.1f มม. (น้อยมากเมื่อเทียบกับปี 2010)", rainSum)
		s.RainContextEN = fmt.Sprintf("Rain %.1f mm (Low compared to 2010)", rainSum)
	case rainPct < 50:
		s.RainContextTH = fmt.Sprintf("ฝนสะสม %.1f มม. (ปานกลาง ต้องติดตาม)", rainSum)
		s.RainContextEN = fmt.Sprintf("Rain %.1f mm (Moderate, monitoring required)", rainSum)
	default:
		s.RainContextTH = fmt.Sprintf("ฝนสะสม %.1f มม. (สูง! ใกล้เคียงปีน้ำท่วมใหญ่)", rainSum)
		s.RainContextEN = fmt.Sprintf("Rain %.1f mm (HIGH! Approaching historic flood)", rainSum)
	}

	upLevel, upOK := snap.Level(e.upstream.ID)
	switch {
	case !upOK:
		s.UpstreamTH = fmt.Sprintf("ไม่สามารถอ่านค่าระดับน้ำต้นน้ำ (%s) ได้", e.upstream.Name)
		s.UpstreamEN = fmt.Sprintf("Upstream sensor (%s) offline.", e.upstream.Name)
	case upLevel < e.upstream.BankFullCapacity:
		s.UpstreamTH = fmt.Sprintf("ระดับน้ำ%sปกติ (%.2f ม.) การไหลระบายดี", e.upstream.Name, upLevel)
		s.UpstreamEN = fmt.Sprintf("Upstream flow normal at %s (%.2f m). Good drainage.", e.upstream.Name, upLevel)
	default:
		s.UpstreamTH = fmt.Sprintf("มวลน้ำก้อนใหญ่จาก%s (%.2f ม.) จะถึงเมืองใน %d ชม.", e.upstream.Name, upLevel, int(eta.ETAHours))
		s.UpstreamEN = fmt.Sprintf("CRITICAL: High water mass from %s (%.2f m) arriving in %d hrs.", e.upstream.Name, upLevel, int(eta.ETAHours))
	}

	upstreamCritical := upOK && upLevel >= e.upstream.BankFullCapacity
	switch {
	case risk > e.params.WarningMax || upstreamCritical:
		s.ActionTH = "ยกของขึ้นที่สูงและเตรียมย้ายรถทันที"
		s.ActionEN = "Move assets to high ground immediately."
	case risk > e.params.NormalMax:
		s.ActionTH = "ติดตามระดับน้ำทุกชั่วโมง เตรียมไฟฉาย"
		s.ActionEN = "Monitor hourly updates. Check emergency kit."
	default:
		s.ActionTH = "ติดตามข่าวสารพยากรณ์อากาศตามปกติ"
		s.ActionEN = "Monitor daily weather news."
	}

	return s
}

func levelPtr(snap Snapshot, stationID string) *float64 {
	if v, ok := snap.Levels[stationID]; ok {
		return &v
	}
	return nil
}

// round1 rounds to one decimal using fixed-precision arithmetic so
// report scores render stably.
func round1(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}
