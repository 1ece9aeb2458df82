package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"flood-watcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Basin     BasinConfig     `mapstructure:"basin"`
	Risk      RiskConfig      `mapstructure:"risk"`
	QA        QAConfig        `mapstructure:"qa"`
	Predictor PredictorConfig `mapstructure:"predictor"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	Retention       time.Duration `mapstructure:"retention"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// SourcesConfig groups the external telemetry providers.
type SourcesConfig struct {
	Gauge    GaugeSourceConfig  `mapstructure:"gauge"`
	Rain     RainSourceConfig   `mapstructure:"rain"`
	Outage   OutageSourceConfig `mapstructure:"outage"`
	RatePerM int                `mapstructure:"requests_per_minute"`
}

// GaugeSourceConfig covers the ThaiWater water-level API.
type GaugeSourceConfig struct {
	URL         string        `mapstructure:"url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheWindow time.Duration `mapstructure:"cache_window"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// RainSourceConfig covers the Open-Meteo forecast API.
type RainSourceConfig struct {
	URL          string        `mapstructure:"url"`
	Latitude     float64       `mapstructure:"latitude"`
	Longitude    float64       `mapstructure:"longitude"`
	ForecastDays int           `mapstructure:"forecast_days"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// OutageSourceConfig covers the basin climate-site outage feed.
type OutageSourceConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StationConfig describes one monitored gauge station.
type StationConfig struct {
	ID                string  `mapstructure:"id"`
	Code              string  `mapstructure:"code"`
	Name              string  `mapstructure:"name"`
	ProviderID        int     `mapstructure:"provider_id"`
	Latitude          float64 `mapstructure:"latitude"`
	Longitude         float64 `mapstructure:"longitude"`
	GroundLevel       float64 `mapstructure:"ground_level"`
	BankFullCapacity  float64 `mapstructure:"bank_full_capacity"`
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
	WarningThreshold  float64 `mapstructure:"warning_threshold"`
	MinValidLevel     float64 `mapstructure:"min_valid_level"`
}

// BasinConfig pins the basin geometry and hydraulic parameters.
type BasinConfig struct {
	PrimaryStation   string          `mapstructure:"primary_station"`
	UpstreamStation  string          `mapstructure:"upstream_station"`
	Stations         []StationConfig `mapstructure:"stations"`
	SinuosityFactor  float64         `mapstructure:"sinuosity_factor"`
	StraightKM       float64         `mapstructure:"straight_distance_km"`
	BaseVelocityDry  float64         `mapstructure:"base_velocity_dry"`
	BaseVelocityNorm float64         `mapstructure:"base_velocity_normal"`
	BaseVelocityWet  float64         `mapstructure:"base_velocity_wet"`
	MaxVelocity      float64         `mapstructure:"max_velocity"`
	RunoffLagHours   float64         `mapstructure:"runoff_lag_hours"`
}

// RiskConfig holds the fusion parameters.
type RiskConfig struct {
	SigmoidK        float64 `mapstructure:"sigmoid_k"`
	SigmoidX0       float64 `mapstructure:"sigmoid_x0"`
	WaterWeight     float64 `mapstructure:"water_level_weight"`
	RainWeight      float64 `mapstructure:"rainfall_weight"`
	NormalMax       float64 `mapstructure:"normal_max"`
	WarningMax      float64 `mapstructure:"warning_max"`
	RainBenchmarkMM float64 `mapstructure:"rain_benchmark_mm"`
}

// QAConfig tunes the data-quality validator.
type QAConfig struct {
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	MaxJumpPerHour float64       `mapstructure:"max_jump_m_per_hour"`
	DatumTolerance float64       `mapstructure:"datum_tolerance_m"`
}

// PredictorConfig tunes the short-horizon regression model.
type PredictorConfig struct {
	HistoryHours int           `mapstructure:"history_hours"`
	MaxLagHours  int           `mapstructure:"max_lag_hours"`
	MinRows      int           `mapstructure:"min_rows"`
	ModelTTL     time.Duration `mapstructure:"model_ttl"`
	Horizon      int           `mapstructure:"horizon_hours"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Line     LineConfig    `mapstructure:"line"`
}

// LineConfig holds LINE Notify credentials.
type LineConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	APIBase string `mapstructure:"api_base"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOODWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "floodwatcher")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Asia/Bangkok")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "10m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x48594649))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("sources.requests_per_minute", 12)
	v.SetDefault("sources.gauge.url", "https://api-v3.thaiwater.net/api/v1/thaiwater30/public/waterlevel_load")
	v.SetDefault("sources.gauge.timeout", "5s")
	v.SetDefault("sources.gauge.cache_window", "15m")
	v.SetDefault("sources.gauge.user_agent", "floodwatcher/1.0")
	v.SetDefault("sources.rain.url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("sources.rain.latitude", 7.0084)
	v.SetDefault("sources.rain.longitude", 100.4767)
	v.SetDefault("sources.rain.forecast_days", 3)
	v.SetDefault("sources.rain.timeout", "3s")
	v.SetDefault("sources.outage.enabled", false)
	v.SetDefault("sources.outage.url", "https://www.hatyaicityclimate.org")
	v.SetDefault("sources.outage.timeout", "10s")

	v.SetDefault("basin.primary_station", "HatYai")
	v.SetDefault("basin.upstream_station", "Sadao")
	v.SetDefault("basin.stations", defaultStations())
	v.SetDefault("basin.sinuosity_factor", 1.4)
	v.SetDefault("basin.straight_distance_km", 60.0)
	v.SetDefault("basin.base_velocity_dry", 0.3)
	v.SetDefault("basin.base_velocity_normal", 0.8)
	v.SetDefault("basin.base_velocity_wet", 1.2)
	v.SetDefault("basin.max_velocity", 2.5)
	v.SetDefault("basin.runoff_lag_hours", 8.0)

	v.SetDefault("risk.sigmoid_k", 0.8)
	v.SetDefault("risk.sigmoid_x0", 9.5)
	v.SetDefault("risk.water_level_weight", 0.6)
	v.SetDefault("risk.rainfall_weight", 0.4)
	v.SetDefault("risk.normal_max", 30.0)
	v.SetDefault("risk.warning_max", 70.0)
	v.SetDefault("risk.rain_benchmark_mm", 250.0)

	v.SetDefault("qa.stale_after", "6h")
	v.SetDefault("qa.max_jump_m_per_hour", 2.0)
	v.SetDefault("qa.datum_tolerance_m", 0.5)

	v.SetDefault("predictor.history_hours", 168)
	v.SetDefault("predictor.max_lag_hours", 12)
	v.SetDefault("predictor.min_rows", 5)
	v.SetDefault("predictor.model_ttl", "30m")
	v.SetDefault("predictor.horizon_hours", 3)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.line.enabled", false)
	v.SetDefault("alerting.line.api_base", "https://notify-api.line.me")

	v.SetDefault("metrics.listen_addr", "")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.retention", "4320h")
}

// defaultStations carries the Khlong U-Tapao basin reference configuration.
func defaultStations() []map[string]any {
	return []map[string]any{
		{
			"id":                 "HatYai",
			"code":               "X.90",
			"name":               "Hat Yai City",
			"provider_id":        2585,
			"latitude":           7.0084,
			"longitude":          100.4767,
			"ground_level":       6.0,
			"bank_full_capacity": 10.5,
			"critical_threshold": 11.0,
			"warning_threshold":  9.5,
			"min_valid_level":    -2.0,
		},
		{
			"id":                 "Sadao",
			"code":               "X.173",
			"name":               "Sadao",
			"provider_id":        2590,
			"latitude":           6.8500,
			"longitude":          100.4200,
			"ground_level":       14.0,
			"bank_full_capacity": 9.0,
			"critical_threshold": 9.5,
			"warning_threshold":  8.0,
			"min_valid_level":    -1.5,
		},
		{
			"id":                 "Kallayanamit",
			"code":               "X.44",
			"name":               "Bang Sala",
			"provider_id":        2589,
			"latitude":           6.9500,
			"longitude":          100.4500,
			"ground_level":       9.0,
			"bank_full_capacity": 10.0,
			"critical_threshold": 10.5,
			"warning_threshold":  9.0,
			"min_valid_level":    -1.8,
		},
	}
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if len(c.Basin.Stations) == 0 {
		return fmt.Errorf("basin.stations must not be empty")
	}
	ids := make(map[string]struct{}, len(c.Basin.Stations))
	for _, st := range c.Basin.Stations {
		if st.ID == "" {
			return fmt.Errorf("basin.stations entries require an id")
		}
		if st.BankFullCapacity <= st.MinValidLevel {
			return fmt.Errorf("station %s: bank_full_capacity must exceed min_valid_level", st.ID)
		}
		ids[st.ID] = struct{}{}
	}
	if _, ok := ids[c.Basin.PrimaryStation]; !ok {
		return fmt.Errorf("basin.primary_station %q is not a configured station", c.Basin.PrimaryStation)
	}
	if _, ok := ids[c.Basin.UpstreamStation]; !ok {
		return fmt.Errorf("basin.upstream_station %q is not a configured station", c.Basin.UpstreamStation)
	}
	if c.Basin.SinuosityFactor < 1 {
		return fmt.Errorf("basin.sinuosity_factor cannot be below 1")
	}
	if c.Basin.MaxVelocity <= 0 {
		return fmt.Errorf("basin.max_velocity must be greater than zero")
	}
	if w := c.Risk.WaterWeight + c.Risk.RainWeight; w < 0.999 || w > 1.001 {
		return fmt.Errorf("risk weights must sum to 1, got %.3f", w)
	}
	if c.Risk.NormalMax >= c.Risk.WarningMax {
		return fmt.Errorf("risk.normal_max must be below risk.warning_max")
	}
	if c.Risk.RainBenchmarkMM <= 0 {
		return fmt.Errorf("risk.rain_benchmark_mm must be greater than zero")
	}
	if c.Predictor.MaxLagHours <= 0 || c.Predictor.MinRows < 2 {
		return fmt.Errorf("predictor.max_lag_hours and predictor.min_rows must be positive")
	}
	if c.Alerting.Line.Enabled && c.Alerting.Line.Token == "" {
		return fmt.Errorf("alerting.line.token is required when LINE notify is enabled")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// Location resolves the configured basin timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
