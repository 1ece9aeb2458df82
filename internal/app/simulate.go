package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"flood-watcher/internal/analysis"
	"flood-watcher/internal/fetcher"
	"flood-watcher/internal/service"
	"flood-watcher/internal/storage"
)

// SimulateAlert runs one full analysis cycle against a synthetic
// situation and pushes the result through the real alert channels.
// Useful for verifying LINE credentials and message formatting.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	clock := clockwork.NewRealClock()
	dispatcher := a.newDispatcher(clock)
	if dispatcher == nil {
		return errors.New("no alert channels configured")
	}

	registry, err := a.newRegistry()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	mem := newMemReadingStore()
	for _, id := range registry.IDs() {
		_ = mem.RecordReading(ctx, storage.Reading{
			Timestamp: now,
			StationID: id,
			LevelM:    opts.LevelM,
		})
	}

	gauge := &staticGaugeFetcher{level: opts.LevelM, stations: registry.IDs(), at: now}
	rain := &staticRainFetcher{total: opts.Rain3DMM, at: now}

	svc := service.New(a.Config, service.Deps{
		Gauge:      gauge,
		Rain:       rain,
		Registry:   registry,
		Store:      mem,
		Engine:     a.newEngine(registry, nil),
		Rates:      analysis.NewRateEstimator(mem),
		Validator:  analysis.NewValidator(a.qaParams(), registry, clock, a.Logger),
		Dispatcher: dispatcher,
		Clock:      clock,
	}, a.Logger)

	bucket := now.Truncate(a.Config.Scheduler.Interval)
	return svc.ProcessBucket(ctx, bucket)
}

type staticGaugeFetcher struct {
	level    float64
	stations []string
	at       time.Time
}

func (s *staticGaugeFetcher) FetchLevels(ctx context.Context) (fetcher.GaugeResult, error) {
	obs := make([]fetcher.StationObservation, 0, len(s.stations))
	for _, id := range s.stations {
		level := s.level
		obs = append(obs, fetcher.StationObservation{
			StationID: id,
			Level:     &level,
			Timestamp: s.at,
		})
	}
	return fetcher.GaugeResult{Observations: obs, FetchedAt: s.at, RawPayload: []byte("{}")}, nil
}

func (s *staticGaugeFetcher) Endpoint() string { return "simulated" }

type staticRainFetcher struct {
	total float64
	at    time.Time
}

func (s *staticRainFetcher) FetchForecast(ctx context.Context) (fetcher.RainForecast, []byte, error) {
	daily := make([]fetcher.DailyRain, 3)
	for i := range daily {
		daily[i] = fetcher.DailyRain{Date: s.at.AddDate(0, 0, i+1), MM: s.total / 3}
	}
	return fetcher.RainForecast{Total3DMM: s.total, Daily: daily, UpdatedAt: s.at}, []byte("{}"), nil
}

func (s *staticRainFetcher) Endpoint() string { return "simulated" }

var _ fetcher.GaugeFetcher = (*staticGaugeFetcher)(nil)
var _ fetcher.RainFetcher = (*staticRainFetcher)(nil)

// memReadingStore is an in-memory ReadingStore used by the dry-run.
type memReadingStore struct {
	mu       sync.Mutex
	readings []storage.Reading
}

func newMemReadingStore() *memReadingStore {
	return &memReadingStore{}
}

func (m *memReadingStore) RecordReading(ctx context.Context, r storage.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
	return nil
}

func (m *memReadingStore) ReadingsSince(ctx context.Context, window time.Duration) ([]storage.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-window)
	out := make([]storage.Reading, 0, len(m.readings))
	for _, r := range m.readings {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memReadingStore) LatestReadings(ctx context.Context, within time.Duration) (map[string]storage.Reading, error) {
	readings, err := m.ReadingsSince(ctx, within)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]storage.Reading)
	for _, r := range readings {
		if cur, ok := latest[r.StationID]; !ok || r.Timestamp.After(cur.Timestamp) {
			latest[r.StationID] = r
		}
	}
	return latest, nil
}

func (m *memReadingStore) CountReadings(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.readings)), nil
}

var _ storage.ReadingStore = (*memReadingStore)(nil)
