package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Thai/English phrases that indicate a station problem on the basin
// climate site.
var outageKeywords = []string{
	"ไฟฟ้าขัดข้อง", "ขัดข้อง", "ชำรุด", "ไม่ทำงาน",
	"offline", "error", "ปิดปรับปรุง", "งดใช้", "ซ่อมบำรุง",
}

// Local station aliases as they appear in site copy, mapped to registry ids.
var stationAliases = map[string]string{
	"ม่วงก็อง":    "Sadao",
	"muangkong":   "Sadao",
	"X.173":       "Sadao",
	"S1":          "Sadao",
	"บางศาลา":     "Kallayanamit",
	"bangsala":    "Kallayanamit",
	"กัลยาณมิตร":  "Kallayanamit",
	"kalyanamit":  "Kallayanamit",
	"X.44":        "Kallayanamit",
	"S2":          "Kallayanamit",
	"หาดใหญ่":     "HatYai",
	"อู่ตะเภา":    "HatYai",
	"utapao":      "HatYai",
	"คลองเตย":     "HatYai",
	"X.90":        "HatYai",
}

// OutageOptions parameterise the outage scanner.
type OutageOptions struct {
	URL     string
	Timeout time.Duration
}

// Outage scans the basin climate site for sensor-problem notices. A
// reading cross-referenced against a reported outage is zombie data and
// gets discarded before analysis.
type Outage struct {
	opts   OutageOptions
	logger zerolog.Logger
	client *http.Client
}

// NewOutage constructs the outage scanner.
func NewOutage(opts OutageOptions, logger zerolog.Logger) *Outage {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Outage{
		opts:   opts,
		logger: logger.With().Str("component", "outage_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchOutages fetches the site and keyword-scans each text line for an
// outage phrase near a station alias.
func (o *Outage) FetchOutages(ctx context.Context) (map[string]OutageStatus, error) {
	if o.opts.URL == "" {
		return nil, errors.New("outage url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.opts.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request outage feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("outage feed returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return ScanOutages(string(body)), nil
}

// ScanOutages applies the keyword scan to raw page text. Split out so
// the matching rules are testable without HTTP.
func ScanOutages(text string) map[string]OutageStatus {
	statuses := make(map[string]OutageStatus)
	for _, id := range []string{"HatYai", "Sadao", "Kallayanamit"} {
		statuses[id] = OutageStatus{StationID: id}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)

		hasOutage := false
		for _, kw := range outageKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				hasOutage = true
				break
			}
		}
		if !hasOutage {
			continue
		}

		for alias, stationID := range stationAliases {
			if strings.Contains(lower, strings.ToLower(alias)) {
				detail := truncateRunes(line, 200)
				statuses[stationID] = OutageStatus{StationID: stationID, Offline: true, Detail: detail}
			}
		}
	}

	return statuses
}

// truncateRunes caps s at max bytes without splitting a multi-byte
// rune. Site copy is mostly Thai, three bytes per rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

var _ OutageFetcher = (*Outage)(nil)
