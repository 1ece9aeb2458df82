package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// RainOptions parameterise the Open-Meteo client.
type RainOptions struct {
	URL          string
	Latitude     float64
	Longitude    float64
	ForecastDays int
	Timeout      time.Duration
	Timezone     string
	Location     *time.Location
}

// Rain fetches the precipitation forecast from Open-Meteo.
type Rain struct {
	opts   RainOptions
	logger zerolog.Logger
	client *http.Client
}

// NewRain constructs a rain forecast fetcher.
func NewRain(opts RainOptions, logger zerolog.Logger) *Rain {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if opts.ForecastDays <= 0 {
		opts.ForecastDays = 3
	}
	if opts.Timezone == "" {
		opts.Timezone = "Asia/Bangkok"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	return &Rain{
		opts:   opts,
		logger: logger.With().Str("component", "rain_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the configured forecast API URL.
func (r *Rain) Endpoint() string {
	return r.opts.URL
}

// FetchForecast retrieves the daily totals and the next 24 hourly points.
// The 3-day total is the sum of the daily series; a provider-reported
// total that drifts from the series by more than rounding noise is logged.
func (r *Rain) FetchForecast(ctx context.Context) (RainForecast, []byte, error) {
	if r.opts.URL == "" {
		return RainForecast{}, nil, errors.New("rain forecast url not configured")
	}

	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(r.opts.Latitude, 'f', 4, 64))
	query.Set("longitude", strconv.FormatFloat(r.opts.Longitude, 'f', 4, 64))
	query.Set("daily", "precipitation_sum")
	query.Set("hourly", "precipitation")
	query.Set("timezone", r.opts.Timezone)
	query.Set("forecast_days", strconv.Itoa(r.opts.ForecastDays))

	endpoint := r.opts.URL + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return RainForecast{}, nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return RainForecast{}, nil, fmt.Errorf("request rain forecast: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return RainForecast{}, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return RainForecast{}, nil, fmt.Errorf("rain forecast api returned %d", resp.StatusCode)
	}

	var body struct {
		Daily struct {
			Time             []string  `json:"time"`
			PrecipitationSum []float64 `json:"precipitation_sum"`
		} `json:"daily"`
		Hourly struct {
			Time          []string  `json:"time"`
			Precipitation []float64 `json:"precipitation"`
		} `json:"hourly"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return RainForecast{}, nil, fmt.Errorf("decode rain forecast: %w", err)
	}

	forecast := RainForecast{UpdatedAt: time.Now().In(r.opts.Location)}

	for i, mm := range body.Daily.PrecipitationSum {
		day := DailyRain{MM: mm}
		if i < len(body.Daily.Time) {
			if d, err := time.ParseInLocation("2006-01-02", body.Daily.Time[i], r.opts.Location); err == nil {
				day.Date = d
			}
		}
		forecast.Daily = append(forecast.Daily, day)
		forecast.Total3DMM += mm
	}

	points := len(body.Hourly.Precipitation)
	if points > 24 {
		points = 24
	}
	for i := 0; i < points; i++ {
		hour := HourlyRain{MM: body.Hourly.Precipitation[i]}
		if i < len(body.Hourly.Time) {
			if t, err := time.ParseInLocation("2006-01-02T15:04", body.Hourly.Time[i], r.opts.Location); err == nil {
				hour.Time = t
			}
		}
		forecast.Hourly = append(forecast.Hourly, hour)
	}

	if drift := dailyHourlyDrift(forecast); drift > 5.0 {
		r.logger.Warn().Float64("drift_mm", drift).Msg("daily totals and hourly series disagree beyond rounding")
	}

	return forecast, payload, nil
}

// dailyHourlyDrift compares day-one's total against the sum of the
// hourly points that fall on the same date. Upstream rounding makes a
// small mismatch normal.
func dailyHourlyDrift(f RainForecast) float64 {
	if len(f.Daily) == 0 || len(f.Hourly) == 0 || f.Daily[0].Date.IsZero() {
		return 0
	}
	y, m, d := f.Daily[0].Date.Date()
	var hourlySum float64
	var counted bool
	for _, h := range f.Hourly {
		hy, hm, hd := h.Time.Date()
		if hy == y && hm == m && hd == d {
			hourlySum += h.MM
			counted = true
		}
	}
	if !counted {
		return 0
	}
	return math.Abs(f.Daily[0].MM - hourlySum)
}

var _ RainFetcher = (*Rain)(nil)
