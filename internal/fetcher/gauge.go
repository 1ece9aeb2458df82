package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flood-watcher/internal/stations"
)

// GaugeOptions parameterise the ThaiWater client.
type GaugeOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
	Location  *time.Location
}

// Gauge fetches water levels from the ThaiWater public API and
// normalizes them against the station registry. Payload-shape handling
// stops at this boundary; the core only ever sees clean observations.
type Gauge struct {
	opts     GaugeOptions
	registry *stations.Registry
	logger   zerolog.Logger
	client   *http.Client
}

// NewGauge constructs a gauge fetcher.
func NewGauge(opts GaugeOptions, registry *stations.Registry, logger zerolog.Logger) *Gauge {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	return &Gauge{
		opts:     opts,
		registry: registry,
		logger:   logger.With().Str("component", "gauge_fetcher").Logger(),
		client:   &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the configured gauge API URL.
func (g *Gauge) Endpoint() string {
	return g.opts.URL
}

// FetchLevels retrieves the current level per monitored station. A
// station missing from the payload, or carrying a sentinel value, yields
// an observation with a nil level rather than an error.
func (g *Gauge) FetchLevels(ctx context.Context) (GaugeResult, error) {
	if g.opts.URL == "" {
		return GaugeResult{}, errors.New("gauge url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.opts.URL, nil)
	if err != nil {
		return GaugeResult{}, err
	}
	if ua := strings.TrimSpace(g.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return GaugeResult{}, fmt.Errorf("request waterlevel feed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return GaugeResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return GaugeResult{}, fmt.Errorf("waterlevel api returned %d", resp.StatusCode)
	}

	entries, err := extractEntries(payload)
	if err != nil {
		return GaugeResult{}, err
	}

	now := time.Now().In(g.opts.Location)
	result := GaugeResult{FetchedAt: now, RawPayload: payload}

	seen := make(map[string]bool)
	for _, entry := range entries {
		st, ok := g.registry.ByProviderID(entry.Station.ID)
		if !ok {
			continue
		}

		obs := StationObservation{StationID: st.ID, Timestamp: now}
		if ts := entry.timestamp(g.opts.Location); !ts.IsZero() {
			obs.Timestamp = ts
		}

		if raw := entry.rawLevel(); raw != "" {
			if level, valid := g.registry.Sanitize(raw, st.ID); valid {
				obs.Level = &level
			} else {
				g.logger.Debug().Str("station", st.ID).Str("raw", raw).Msg("rejected gauge value")
			}
		}

		result.Observations = append(result.Observations, obs)
		seen[st.ID] = true
	}

	// Stations absent from the payload still get an explicit empty
	// observation so downstream QA can flag them offline.
	for _, id := range g.registry.IDs() {
		if !seen[id] {
			result.Observations = append(result.Observations, StationObservation{StationID: id, Timestamp: now})
		}
	}

	return result, nil
}

// flexNumber tolerates the provider emitting levels as JSON numbers,
// quoted strings, or null, depending on the station.
type flexNumber string

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexNumber(s)
	return nil
}

type gaugeEntry struct {
	Station struct {
		ID int `json:"id"`
	} `json:"station"`
	WaterLevelMSL flexNumber `json:"waterlevel_msl"`
	WaterLevel    flexNumber `json:"waterlevel"`
	Value         flexNumber `json:"value"`
	DateTime      string     `json:"waterlevel_datetime"`
	DateTimeAlt   string     `json:"datetime"`
}

func (e gaugeEntry) rawLevel() string {
	for _, v := range []flexNumber{e.WaterLevelMSL, e.WaterLevel, e.Value} {
		if s := strings.TrimSpace(string(v)); s != "" {
			// Reject non-numeric junk early; Sanitize re-parses per station.
			if _, err := decimal.NewFromString(s); err == nil {
				return s
			}
		}
	}
	return ""
}

func (e gaugeEntry) timestamp(loc *time.Location) time.Time {
	raw := strings.TrimSpace(e.DateTime)
	if raw == "" {
		raw = strings.TrimSpace(e.DateTimeAlt)
	}
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// extractEntries navigates the provider's nested and occasionally
// shape-shifting envelope: waterlevel_data.data, waterlevel_data as a
// bare array, or a top-level data array.
func extractEntries(payload []byte) ([]gaugeEntry, error) {
	var envelope struct {
		WaterlevelData json.RawMessage `json:"waterlevel_data"`
		Data           []gaugeEntry    `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		var direct []gaugeEntry
		if err2 := json.Unmarshal(payload, &direct); err2 == nil {
			return direct, nil
		}
		return nil, fmt.Errorf("decode waterlevel payload: %w", err)
	}

	if len(envelope.WaterlevelData) > 0 {
		var inner struct {
			Data []gaugeEntry `json:"data"`
		}
		if err := json.Unmarshal(envelope.WaterlevelData, &inner); err == nil && inner.Data != nil {
			return inner.Data, nil
		}
		var list []gaugeEntry
		if err := json.Unmarshal(envelope.WaterlevelData, &list); err == nil {
			return list, nil
		}
	}

	return envelope.Data, nil
}

var _ GaugeFetcher = (*Gauge)(nil)
