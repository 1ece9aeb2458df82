package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// monitoring service.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	CycleFailures prometheus.Counter
	CycleDuration prometheus.Histogram

	FetchRequests  *prometheus.CounterVec   // labels: source={gauge,rain,outage}, outcome={success,error}
	FetchDuration  *prometheus.HistogramVec // labels: source
	ReadingsStored prometheus.Counter

	RiskScore        prometheus.Gauge
	AlertTier        *prometheus.GaugeVec // labels: tier
	SensorConfidence prometheus.Gauge
	AlertsSent       prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatcher",
			Name:      "cycles_total",
			Help:      "Total polling cycles started.",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatcher",
			Name:      "cycle_failures_total",
			Help:      "Total polling cycles that ended in error.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "floodwatcher",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full fetch-store-analyze cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodwatcher",
			Name:      "fetch_requests_total",
			Help:      "Upstream fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floodwatcher",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch duration by source.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		ReadingsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatcher",
			Name:      "readings_stored_total",
			Help:      "Water-level readings persisted.",
		}),
		RiskScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodwatcher",
			Name:      "risk_score",
			Help:      "Latest fused flood risk score (0-100).",
		}),
		AlertTier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "floodwatcher",
			Name:      "alert_tier",
			Help:      "1 for the active alert tier, 0 for the others.",
		}, []string{"tier"}),
		SensorConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodwatcher",
			Name:      "sensor_confidence",
			Help:      "Aggregate sensor network confidence (0-100).",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodwatcher",
			Name:      "alerts_sent_total",
			Help:      "Alert notifications dispatched.",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleFailures,
		m.CycleDuration,
		m.FetchRequests,
		m.FetchDuration,
		m.ReadingsStored,
		m.RiskScore,
		m.AlertTier,
		m.SensorConfidence,
		m.AlertsSent,
	)

	return m
}

// SetTier flips the per-tier gauge so only the active tier reads 1.
func (m *Metrics) SetTier(active string) {
	for _, tier := range []string{"NORMAL", "WARNING", "CRITICAL"} {
		v := 0.0
		if tier == active {
			v = 1.0
		}
		m.AlertTier.WithLabelValues(tier).Set(v)
	}
}

// Serve exposes /metrics on addr until ctx is cancelled. A blank addr
// disables the listener.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()
}
