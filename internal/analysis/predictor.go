package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"flood-watcher/internal/storage"
)

// ErrInsufficientHistory is returned when the stored history cannot
// support a lag-correlation fit.
var ErrInsufficientHistory = errors.New("not enough overlapping history to fit lag model")

// PredictorParams tune the lag-correlation model.
type PredictorParams struct {
	HistoryWindow time.Duration
	MaxLagHours   int
	MinRows       int
	ModelTTL      time.Duration
	HorizonHours  int
}

// LagModel is a fitted upstream-to-downstream transfer model:
// downstream(t) ≈ Slope*upstream(t-LagHours) + Intercept.
type LagModel struct {
	LagHours    int
	Slope       float64
	Intercept   float64
	Correlation float64
	Rows        int
	FittedAt    time.Time
}

// ProjectedLevel is one forecast point for the downstream station.
// Extrapolated marks hours beyond the fitted lag, where the driving
// upstream level has not been observed yet and the nearest recorded
// hour stands in; those points carry less weight.
type ProjectedLevel struct {
	Time         time.Time
	LevelM       float64
	Extrapolated bool
}

// Prediction is a fitted model plus its downstream projections.
type Prediction struct {
	Model       LagModel
	Projections []ProjectedLevel
	Confidence  string
}

// highConfidenceCorrelation separates a model worth acting on from one
// reported with a caveat.
const highConfidenceCorrelation = 0.7

// Predictor fits and caches the upstream lag model. Fits are expensive
// (a full history query plus a lag scan), so concurrent callers share a
// single in-flight fit and subsequent calls reuse the cached model until
// its TTL lapses.
type Predictor struct {
	source     ReadingSource
	upstream   string
	downstream string
	params     PredictorParams
	clock      clockwork.Clock
	logger     zerolog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	cached   *LagModel
	cachedAt time.Time
}

func NewPredictor(source ReadingSource, upstream, downstream string, params PredictorParams, clock clockwork.Clock, logger zerolog.Logger) *Predictor {
	return &Predictor{
		source:     source,
		upstream:   upstream,
		downstream: downstream,
		params:     params,
		clock:      clock,
		logger:     logger.With().Str("component", "predictor").Logger(),
	}
}

// Model returns the current lag model, fitting one if the cache is cold
// or expired. Concurrent cold-cache callers collapse onto one fit.
func (p *Predictor) Model(ctx context.Context) (LagModel, error) {
	p.mu.Lock()
	if p.cached != nil && p.clock.Since(p.cachedAt) < p.params.ModelTTL {
		m := *p.cached
		p.mu.Unlock()
		return m, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do("fit", func() (interface{}, error) {
		m, err := p.fit(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cached = &m
		p.cachedAt = p.clock.Now()
		p.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return LagModel{}, err
	}
	return v.(LagModel), nil
}

// Predict fits (or reuses) the lag model and projects the downstream
// level forward using the most recent upstream hours.
func (p *Predictor) Predict(ctx context.Context) (Prediction, error) {
	model, err := p.Model(ctx)
	if err != nil {
		return Prediction{}, err
	}

	readings, err := p.source.ReadingsSince(ctx, time.Duration(model.LagHours+p.params.HorizonHours)*time.Hour)
	if err != nil {
		return Prediction{}, fmt.Errorf("loading recent upstream readings: %w", err)
	}
	up := resampleHourly(filterStation(readings, p.upstream))
	if len(up.Values) == 0 {
		return Prediction{}, ErrInsufficientHistory
	}

	var projections []ProjectedLevel
	lastHour := up.Start.Add(time.Duration(len(up.Values)-1) * time.Hour)
	for h := 1; h <= p.params.HorizonHours; h++ {
		// The level h hours from now is driven by the upstream level
		// observed lag-h hours ago. Past the lag window that driver has
		// not been observed yet, so the nearest recorded hour stands in
		// and the point is marked extrapolated.
		driver := lastHour.Add(time.Duration(h-model.LagHours) * time.Hour)
		v, ok := up.nearest(driver)
		if !ok {
			continue
		}
		projections = append(projections, ProjectedLevel{
			Time:         lastHour.Add(time.Duration(h) * time.Hour),
			LevelM:       round1(model.Slope*v + model.Intercept),
			Extrapolated: h > model.LagHours,
		})
	}

	conf := "reduced"
	if abs(model.Correlation) >= highConfidenceCorrelation {
		conf = "high"
	}

	return Prediction{Model: model, Projections: projections, Confidence: conf}, nil
}

// Invalidate drops the cached model so the next call refits.
func (p *Predictor) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// fit loads a week of history, resamples both stations onto an hourly
// grid, scans candidate lags for the strongest correlation, and fits a
// least-squares line at that lag.
func (p *Predictor) fit(ctx context.Context) (LagModel, error) {
	readings, err := p.source.ReadingsSince(ctx, p.params.HistoryWindow)
	if err != nil {
		return LagModel{}, fmt.Errorf("loading history: %w", err)
	}

	up := resampleHourly(filterStation(readings, p.upstream))
	down := resampleHourly(filterStation(readings, p.downstream))
	if len(up.Values) < p.params.MinRows || len(down.Values) < p.params.MinRows {
		return LagModel{}, ErrInsufficientHistory
	}

	bestLag := 0
	bestCorr := 0.0
	var bestX, bestY []float64
	for lag := 1; lag <= p.params.MaxLagHours; lag++ {
		x, y := alignLagged(up, down, lag)
		if len(x) < p.params.MinRows {
			continue
		}
		corr := pearson(x, y)
		if abs(corr) > abs(bestCorr) {
			bestLag, bestCorr = lag, corr
			bestX, bestY = x, y
		}
	}
	if bestLag == 0 {
		return LagModel{}, ErrInsufficientHistory
	}

	slope, intercept := leastSquares(bestX, bestY)
	model := LagModel{
		LagHours:    bestLag,
		Slope:       slope,
		Intercept:   intercept,
		Correlation: bestCorr,
		Rows:        len(bestX),
		FittedAt:    p.clock.Now(),
	}

	p.logger.Info().
		Int("lag_hours", model.LagHours).
		Float64("correlation", model.Correlation).
		Int("rows", model.Rows).
		Msg("fitted upstream lag model")

	return model, nil
}

// alignLagged pairs up(t) with down(t+lag) for every hour both cover.
func alignLagged(up, down hourlySeries, lag int) (x, y []float64) {
	for i := range up.Values {
		t := up.Start.Add(time.Duration(i) * time.Hour)
		dv, ok := down.at(t.Add(time.Duration(lag) * time.Hour))
		if !ok {
			continue
		}
		x = append(x, up.Values[i])
		y = append(y, dv)
	}
	return x, y
}

func filterStation(readings []storage.Reading, stationID string) []storage.Reading {
	var out []storage.Reading
	for _, r := range readings {
		if r.StationID == stationID {
			out = append(out, r)
		}
	}
	return out
}
