package alerting

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"flood-watcher/internal/analysis"
)

// Notification carries the alert context rendered into outbound messages.
type Notification struct {
	Tier       analysis.Tier
	RiskScore  float64
	RainSum3D  float64
	LevelM     *float64
	DataSource string
	Confidence int
	ETA        analysis.ETAEstimate
	Summary    analysis.SituationSummary
	IssuedAt   time.Time
}

// Notifier delivers an alert to one channel.
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}

// LineNotifier pushes messages through the LINE Notify API.
type LineNotifier struct {
	token   string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewLineNotifier constructs a LINE Notify sender.
func NewLineNotifier(token, baseURL string, timeout time.Duration, logger zerolog.Logger) *LineNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://notify-api.line.me"
	}

	return &LineNotifier{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "alert_line").Logger(),
	}
}

// Notify posts the rendered message to the notify endpoint.
func (n *LineNotifier) Notify(ctx context.Context, note Notification) error {
	form := url.Values{"message": {renderMessage(note)}}

	endpoint := n.baseURL + "/api/notify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create line request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send line request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line notify status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	n.logger.Info().
		Str("tier", string(note.Tier)).
		Float64("risk", note.RiskScore).
		Msg("alert delivered (LINE)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("\n[%s] Hat Yai Flood Watch\n", note.Tier))
	builder.WriteString(note.Summary.HeadlineTH + "\n")
	builder.WriteString(fmt.Sprintf("ความเสี่ยง: %.1f/100 (ความเชื่อมั่น %d%%)\n", note.RiskScore, note.Confidence))
	builder.WriteString(fmt.Sprintf("ฝนสะสม 3 วัน: %.1f มม.\n", note.RainSum3D))
	if note.LevelM != nil {
		builder.WriteString(fmt.Sprintf("ระดับน้ำคลองอู่ตะเภา: %.2f ม.\n", *note.LevelM))
	} else {
		builder.WriteString("ระดับน้ำ: เซ็นเซอร์ออฟไลน์ (ประเมินจากฝนอย่างเดียว)\n")
	}
	if note.ETA.HasData && note.ETA.Rising {
		builder.WriteString(fmt.Sprintf("มวลน้ำถึงเมืองใน %s\n", note.ETA.Label))
	}
	builder.WriteString(note.Summary.ActionTH + "\n")
	builder.WriteString(fmt.Sprintf("ที่มา: %s | %s", note.DataSource, note.IssuedAt.Format("02 Jan 15:04")))
	return builder.String()
}

var _ Notifier = (*LineNotifier)(nil)
