package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"flood-watcher/internal/analysis"
)

// Dispatcher fans an alert out to every configured channel and applies
// the cooldown policy: a repeat of the same tier inside the cooldown
// window is suppressed, while an escalation always goes out.
type Dispatcher struct {
	notifiers []Notifier
	cooldown  time.Duration
	clock     clockwork.Clock
	logger    zerolog.Logger

	mu       sync.Mutex
	lastTier analysis.Tier
	lastSent time.Time
}

func NewDispatcher(notifiers []Notifier, cooldown time.Duration, clock clockwork.Clock, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		cooldown:  cooldown,
		clock:     clock,
		logger:    logger.With().Str("component", "alert_dispatcher").Logger(),
		lastTier:  analysis.TierNormal,
	}
}

// Dispatch evaluates the cooldown policy and, when the alert should go
// out, delivers it on every channel. A failing channel does not block
// the others. Returns true when a send was attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, note Notification) bool {
	if !d.shouldSend(note.Tier) {
		return false
	}

	for _, n := range d.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			d.logger.Error().Err(err).Str("tier", string(note.Tier)).Msg("alert delivery failed")
		}
	}
	return true
}

func (d *Dispatcher) shouldSend(tier analysis.Tier) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if tier == analysis.TierNormal {
		// Recovering to NORMAL resets the ladder silently.
		d.lastTier = tier
		return false
	}

	now := d.clock.Now()
	escalated := tierRank(tier) > tierRank(d.lastTier)
	if !escalated && now.Sub(d.lastSent) < d.cooldown {
		d.logger.Debug().Str("tier", string(tier)).Msg("alert suppressed by cooldown")
		return false
	}

	d.lastTier = tier
	d.lastSent = now
	return true
}

func tierRank(t analysis.Tier) int {
	switch t {
	case analysis.TierCritical:
		return 2
	case analysis.TierWarning:
		return 1
	default:
		return 0
	}
}
