package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"flood-watcher/internal/alerting"
	"flood-watcher/internal/analysis"
	"flood-watcher/internal/config"
	"flood-watcher/internal/fetcher"
	"flood-watcher/internal/observability"
	"flood-watcher/internal/scheduler"
	"flood-watcher/internal/stations"
	"flood-watcher/internal/storage"
)

// CycleResult is what one completed polling cycle produced.
type CycleResult struct {
	Report   analysis.RiskReport
	QA       analysis.QASummary
	Snapshot analysis.Snapshot
	Rain     fetcher.RainForecast
	Alerted  bool
}

// Service orchestrates fetching, persistence, analysis, and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	gauge      fetcher.GaugeFetcher
	rain       fetcher.RainFetcher
	outage     fetcher.OutageFetcher
	registry   *stations.Registry
	store      storage.ReadingStore
	provenance storage.ProvenanceStore
	engine     *analysis.Engine
	rates      *analysis.RateEstimator
	validator  *analysis.Validator
	dispatcher *alerting.Dispatcher
	metrics    *observability.Metrics
	clock      clockwork.Clock
	logger     zerolog.Logger

	locker      storage.AdvisoryLocker
	pruner      storage.ReadingPruner
	lockKey     int64
	cacheWindow time.Duration
	staleAfter  time.Duration
	retention   time.Duration

	mu          sync.Mutex
	cachedGauge fetcher.GaugeResult
	gaugeAt     time.Time
	last        *CycleResult
}

// Deps bundles the service collaborators.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Gauge      fetcher.GaugeFetcher
	Rain       fetcher.RainFetcher
	Outage     fetcher.OutageFetcher
	Registry   *stations.Registry
	Store      storage.ReadingStore
	Provenance storage.ProvenanceStore
	Engine     *analysis.Engine
	Rates      *analysis.RateEstimator
	Validator  *analysis.Validator
	Dispatcher *alerting.Dispatcher
	Metrics    *observability.Metrics
	Clock      clockwork.Clock
}

// New constructs the monitoring service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := deps.Store.(storage.AdvisoryLocker); ok {
		locker = l
	}
	var pruner storage.ReadingPruner
	if p, ok := deps.Store.(storage.ReadingPruner); ok {
		pruner = p
	}

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Service{
		scheduler:   deps.Scheduler,
		gauge:       deps.Gauge,
		rain:        deps.Rain,
		outage:      deps.Outage,
		registry:    deps.Registry,
		store:       deps.Store,
		provenance:  deps.Provenance,
		engine:      deps.Engine,
		rates:       deps.Rates,
		validator:   deps.Validator,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		clock:       clock,
		logger:      logger.With().Str("component", "service").Logger(),
		locker:      locker,
		pruner:      pruner,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
		cacheWindow: cfg.Sources.Gauge.CacheWindow,
		staleAfter:  cfg.QA.StaleAfter,
		retention:   cfg.Database.Retention,
	}
}

// Run begins the aligned polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket executes one polling cycle under the advisory lock.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if s.metrics != nil {
		s.metrics.CyclesTotal.Inc()
	}
	started := s.clock.Now()

	result, err := s.Evaluate(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CycleFailures.Inc()
		}
		return err
	}

	result.Alerted = s.dispatchAlert(ctx, result)

	if s.metrics != nil {
		s.metrics.CycleDuration.Observe(s.clock.Since(started).Seconds())
		s.metrics.RiskScore.Set(result.Report.PrimaryRisk)
		s.metrics.SensorConfidence.Set(float64(result.QA.Confidence))
		s.metrics.SetTier(string(result.Report.AlertTier))
		if result.Alerted {
			s.metrics.AlertsSent.Inc()
		}
	}

	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()

	s.pruneHistory(ctx)

	s.logger.Info().Time("bucket", bucket).
		Float64("risk", result.Report.PrimaryRisk).
		Str("tier", string(result.Report.AlertTier)).
		Str("source", result.Report.DataSource).
		Int("qa_confidence", result.QA.Confidence).
		Msg("cycle complete")

	return nil
}

// Evaluate runs one full fetch-store-analyze pass and returns the
// resulting assessment. Rain and outage failures degrade the result
// instead of failing the cycle; a gauge failure only fails the cycle
// when there is no cached result to fall back on.
func (s *Service) Evaluate(ctx context.Context) (CycleResult, error) {
	gauge, err := s.fetchGauge(ctx)
	if err != nil {
		return CycleResult{}, err
	}

	s.storeObservations(ctx, gauge)

	outages := s.fetchOutages(ctx)

	latest, err := s.store.LatestReadings(ctx, s.staleAfter)
	if err != nil {
		return CycleResult{}, fmt.Errorf("loading latest readings: %w", err)
	}

	snap := analysis.BuildSnapshot(s.registry, latest, outages)

	rain := s.fetchRain(ctx)

	rates, err := s.rates.Rates(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("rate-of-change query failed, slopes unknown this cycle")
		rates = map[string]analysis.Slope{}
	}

	report := s.engine.Analyze(ctx, snap, rain, rates)

	qa := s.validator.Validate(s.qaInputs(latest, outages, rates))

	return CycleResult{Report: report, QA: qa, Snapshot: snap, Rain: rain}, nil
}

// Last returns the most recent completed cycle, if any.
func (s *Service) Last() (CycleResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return CycleResult{}, false
	}
	return *s.last, true
}

// fetchGauge returns the cached gauge result while it is fresh, fetching
// and recording provenance otherwise. A fetch failure falls back to any
// cached result so one provider hiccup does not blind a cycle.
func (s *Service) fetchGauge(ctx context.Context) (fetcher.GaugeResult, error) {
	endpoint := s.gauge.Endpoint()

	s.mu.Lock()
	if !s.gaugeAt.IsZero() && s.clock.Since(s.gaugeAt) < s.cacheWindow {
		cached := s.cachedGauge
		s.mu.Unlock()
		s.recordProvenance(ctx, "thaiwater", endpoint, "cached", nil, cached.Observations)
		return cached, nil
	}
	s.mu.Unlock()

	started := s.clock.Now()
	result, err := s.gauge.FetchLevels(ctx)
	s.observeFetch("gauge", started, err)
	if err != nil {
		s.recordProvenance(ctx, "thaiwater", endpoint, "error", nil, nil)
		s.mu.Lock()
		cached, at := s.cachedGauge, s.gaugeAt
		s.mu.Unlock()
		if !at.IsZero() {
			s.logger.Warn().Err(err).Msg("gauge fetch failed, reusing cached result")
			return cached, nil
		}
		return fetcher.GaugeResult{}, fmt.Errorf("fetching water levels: %w", err)
	}

	s.recordProvenance(ctx, "thaiwater", endpoint, "ok", result.RawPayload, result.Observations)

	s.mu.Lock()
	s.cachedGauge = result
	s.gaugeAt = s.clock.Now()
	s.mu.Unlock()

	return result, nil
}

func (s *Service) storeObservations(ctx context.Context, gauge fetcher.GaugeResult) {
	stored := 0
	for _, obs := range gauge.Observations {
		if obs.Level == nil {
			continue
		}
		ts := obs.Timestamp
		if ts.IsZero() {
			ts = gauge.FetchedAt
		}
		r := storage.Reading{
			Timestamp: ts,
			StationID: obs.StationID,
			LevelM:    *obs.Level,
		}
		if err := s.store.RecordReading(ctx, r); err != nil {
			s.logger.Error().Err(err).Str("station", obs.StationID).Msg("failed to store reading")
			continue
		}
		stored++
	}
	if s.metrics != nil {
		s.metrics.ReadingsStored.Add(float64(stored))
	}
}

func (s *Service) fetchRain(ctx context.Context) fetcher.RainForecast {
	endpoint := s.rain.Endpoint()
	started := s.clock.Now()
	rain, payload, err := s.rain.FetchForecast(ctx)
	s.observeFetch("rain", started, err)
	if err != nil {
		s.recordProvenance(ctx, "open-meteo", endpoint, "error", nil, nil)
		s.logger.Warn().Err(err).Msg("rain forecast fetch failed, proceeding without rainfall signal")
		return fetcher.RainForecast{}
	}
	s.recordProvenance(ctx, "open-meteo", endpoint, "ok", payload, nil)
	return rain
}

func (s *Service) fetchOutages(ctx context.Context) map[string]fetcher.OutageStatus {
	if s.outage == nil {
		return nil
	}
	started := s.clock.Now()
	outages, err := s.outage.FetchOutages(ctx)
	s.observeFetch("outage", started, err)
	if err != nil {
		s.logger.Warn().Err(err).Msg("outage feed fetch failed, assuming all sensors online")
		return nil
	}
	return outages
}

func (s *Service) qaInputs(latest map[string]storage.Reading, outages map[string]fetcher.OutageStatus, rates map[string]analysis.Slope) map[string]analysis.StationInput {
	inputs := make(map[string]analysis.StationInput, len(latest))
	for _, id := range s.registry.IDs() {
		in := analysis.StationInput{Rate: rates[id]}
		if r, ok := latest[id]; ok {
			level := r.LevelM
			in.Level = &level
			in.ObservedAt = r.Timestamp
		}
		if o, ok := outages[id]; ok && o.Offline {
			in.Offline = true
			in.OfflineDetail = o.Detail
		}
		inputs[id] = in
	}
	return inputs
}

func (s *Service) dispatchAlert(ctx context.Context, result CycleResult) bool {
	if s.dispatcher == nil {
		return false
	}
	note := alerting.Notification{
		Tier:       result.Report.AlertTier,
		RiskScore:  result.Report.PrimaryRisk,
		RainSum3D:  result.Report.RainSum3D,
		LevelM:     result.Report.CurrentLevel,
		DataSource: result.Report.DataSource,
		Confidence: result.Report.Confidence,
		ETA:        result.Report.ETA,
		Summary:    result.Report.Summary,
		IssuedAt:   result.Report.AssessedAt,
	}
	return s.dispatcher.Dispatch(ctx, note)
}

func (s *Service) recordProvenance(ctx context.Context, source, endpoint, status string, payload []byte, observations []fetcher.StationObservation) {
	if s.provenance == nil {
		return
	}
	ids := make([]string, 0, len(observations))
	for _, obs := range observations {
		if obs.Level != nil {
			ids = append(ids, obs.StationID)
		}
	}
	p := storage.Provenance{
		Source:       source,
		Endpoint:     endpoint,
		StationIDs:   ids,
		FetchedAt:    s.clock.Now().UTC(),
		Status:       status,
		Fingerprint:  fetcher.Fingerprint(payload),
		PayloadBytes: len(payload),
	}
	if err := s.provenance.RecordProvenance(ctx, p); err != nil {
		s.logger.Warn().Err(err).Str("source", source).Msg("failed to record provenance")
	}
}

// pruneHistory trims readings older than the retention horizon. A prune
// failure never fails the cycle.
func (s *Service) pruneHistory(ctx context.Context) {
	if s.pruner == nil || s.retention <= 0 {
		return
	}
	cutoff := s.clock.Now().UTC().Add(-s.retention)
	if err := s.pruner.DeleteReadingsBefore(ctx, cutoff); err != nil {
		s.logger.Warn().Err(err).Msg("failed to prune reading history")
	}
}

func (s *Service) observeFetch(source string, started time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.FetchRequests.WithLabelValues(source, outcome).Inc()
	s.metrics.FetchDuration.WithLabelValues(source).Observe(s.clock.Since(started).Seconds())
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
