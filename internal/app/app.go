package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"flood-watcher/internal/alerting"
	"flood-watcher/internal/analysis"
	"flood-watcher/internal/config"
	"flood-watcher/internal/fetcher"
	"flood-watcher/internal/observability"
	"flood-watcher/internal/scheduler"
	"flood-watcher/internal/service"
	"flood-watcher/internal/stations"
	"flood-watcher/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newRegistry() (*stations.Registry, error) {
	return stations.NewRegistry(a.Config.Basin)
}

func (a *App) newFetchers(registry *stations.Registry) (fetcher.GaugeFetcher, fetcher.RainFetcher, fetcher.OutageFetcher) {
	src := a.Config.Sources
	loc := a.Config.Location()

	var gauge fetcher.GaugeFetcher = fetcher.NewGauge(fetcher.GaugeOptions{
		URL:       src.Gauge.URL,
		Timeout:   src.Gauge.Timeout,
		UserAgent: src.Gauge.UserAgent,
		Location:  loc,
	}, registry, a.Logger)

	var rain fetcher.RainFetcher = fetcher.NewRain(fetcher.RainOptions{
		URL:          src.Rain.URL,
		Latitude:     src.Rain.Latitude,
		Longitude:    src.Rain.Longitude,
		ForecastDays: src.Rain.ForecastDays,
		Timeout:      src.Rain.Timeout,
		Timezone:     a.Config.App.Timezone,
		Location:     loc,
	}, a.Logger)

	if src.RatePerM > 0 {
		gauge = fetcher.NewRateLimitedGauge(gauge, src.RatePerM)
		rain = fetcher.NewRateLimitedRain(rain, src.RatePerM)
	}

	var outage fetcher.OutageFetcher
	if src.Outage.Enabled {
		outage = fetcher.NewOutage(fetcher.OutageOptions{
			URL:     src.Outage.URL,
			Timeout: src.Outage.Timeout,
		}, a.Logger)
	}

	return gauge, rain, outage
}

func (a *App) newDispatcher(clock clockwork.Clock) *alerting.Dispatcher {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	var notifiers []alerting.Notifier
	if line := a.Config.Alerting.Line; line.Enabled {
		notifiers = append(notifiers, alerting.NewLineNotifier(line.Token, line.APIBase, 10*time.Second, a.Logger))
	}
	if len(notifiers) == 0 {
		a.Logger.Warn().Msg("alerting enabled but no channels configured")
		return nil
	}
	return alerting.NewDispatcher(notifiers, a.Config.Alerting.Cooldown, clock, a.Logger)
}

func (a *App) newEngine(registry *stations.Registry, sink analysis.AssessmentSink) *analysis.Engine {
	eta := analysis.NewETAEstimator(a.hydraulics())
	return analysis.NewEngine(a.riskParams(), eta, registry.Upstream(), sink, a.Logger)
}

func (a *App) hydraulics() analysis.Hydraulics {
	b := a.Config.Basin
	return analysis.Hydraulics{
		SinuosityFactor:  b.SinuosityFactor,
		StraightKM:       b.StraightKM,
		BaseVelocityDry:  b.BaseVelocityDry,
		BaseVelocityNorm: b.BaseVelocityNorm,
		BaseVelocityWet:  b.BaseVelocityWet,
		MaxVelocity:      b.MaxVelocity,
		RunoffLagHours:   b.RunoffLagHours,
	}
}

func (a *App) riskParams() analysis.RiskParams {
	r := a.Config.Risk
	return analysis.RiskParams{
		SigmoidK:        r.SigmoidK,
		SigmoidX0:       r.SigmoidX0,
		WaterWeight:     r.WaterWeight,
		RainWeight:      r.RainWeight,
		NormalMax:       r.NormalMax,
		WarningMax:      r.WarningMax,
		RainBenchmarkMM: r.RainBenchmarkMM,
	}
}

func (a *App) qaParams() analysis.QAParams {
	q := a.Config.QA
	return analysis.QAParams{
		StaleAfter:       q.StaleAfter,
		JumpThresholdMPH: q.MaxJumpPerHour,
		DatumToleranceM:  q.DatumTolerance,
	}
}

func (a *App) predictorParams() analysis.PredictorParams {
	p := a.Config.Predictor
	return analysis.PredictorParams{
		HistoryWindow: time.Duration(p.HistoryHours) * time.Hour,
		MaxLagHours:   p.MaxLagHours,
		MinRows:       p.MinRows,
		ModelTTL:      p.ModelTTL,
		HorizonHours:  p.Horizon,
	}
}

func (a *App) openStore(ctx context.Context, registry *stations.Registry) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool, registry.ValidLevel)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, err := a.newRegistry()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx, registry)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("database.dsn is required for the monitoring loop")
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	gauge, rain, outage := a.newFetchers(registry)
	clock := clockwork.NewRealClock()

	metrics := observability.NewMetrics()
	observability.Serve(ctx, a.Config.Metrics.ListenAddr, a.Logger)

	svc := service.New(a.Config, service.Deps{
		Scheduler:  sched,
		Gauge:      gauge,
		Rain:       rain,
		Outage:     outage,
		Registry:   registry,
		Store:      store,
		Provenance: store,
		Engine:     a.newEngine(registry, store),
		Rates:      analysis.NewRateEstimator(store),
		Validator:  analysis.NewValidator(a.qaParams(), registry, clock, a.Logger),
		Dispatcher: a.newDispatcher(clock),
		Metrics:    metrics,
		Clock:      clock,
	}, a.Logger)

	a.Logger.Info().
		Str("primary", registry.Primary().ID).
		Str("upstream", registry.Upstream().ID).
		Msg("starting flood monitoring service")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical readings.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions feed the alert dry-run with a synthetic situation.
type SimulateOptions struct {
	LevelM   float64
	Rain3DMM float64
}
