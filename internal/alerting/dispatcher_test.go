package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"flood-watcher/internal/analysis"
)

type countingNotifier struct {
	sent int
	err  error
}

func (c *countingNotifier) Notify(ctx context.Context, note Notification) error {
	c.sent++
	return c.err
}

func note(tier analysis.Tier) Notification {
	return Notification{Tier: tier}
}

func TestDispatcherNormalNeverSends(t *testing.T) {
	n := &countingNotifier{}
	d := NewDispatcher([]Notifier{n}, 30*time.Minute, clockwork.NewFakeClock(), zerolog.Nop())

	if d.Dispatch(context.Background(), note(analysis.TierNormal)) {
		t.Fatal("NORMAL must not dispatch")
	}
	if n.sent != 0 {
		t.Fatalf("no sends expected, got %d", n.sent)
	}
}

func TestDispatcherCooldownSuppressesRepeat(t *testing.T) {
	n := &countingNotifier{}
	clock := clockwork.NewFakeClock()
	d := NewDispatcher([]Notifier{n}, 30*time.Minute, clock, zerolog.Nop())

	if !d.Dispatch(context.Background(), note(analysis.TierWarning)) {
		t.Fatal("first WARNING should dispatch")
	}

	clock.Advance(10 * time.Minute)
	if d.Dispatch(context.Background(), note(analysis.TierWarning)) {
		t.Fatal("repeat WARNING inside cooldown should be suppressed")
	}

	clock.Advance(25 * time.Minute)
	if !d.Dispatch(context.Background(), note(analysis.TierWarning)) {
		t.Fatal("WARNING after cooldown should dispatch again")
	}

	if n.sent != 2 {
		t.Fatalf("expected 2 sends, got %d", n.sent)
	}
}

func TestDispatcherEscalationBypassesCooldown(t *testing.T) {
	n := &countingNotifier{}
	clock := clockwork.NewFakeClock()
	d := NewDispatcher([]Notifier{n}, 30*time.Minute, clock, zerolog.Nop())

	d.Dispatch(context.Background(), note(analysis.TierWarning))
	clock.Advance(time.Minute)

	if !d.Dispatch(context.Background(), note(analysis.TierCritical)) {
		t.Fatal("escalation to CRITICAL must bypass the cooldown")
	}
	if n.sent != 2 {
		t.Fatalf("expected 2 sends, got %d", n.sent)
	}
}

func TestDispatcherRecoveryResetsLadder(t *testing.T) {
	n := &countingNotifier{}
	clock := clockwork.NewFakeClock()
	d := NewDispatcher([]Notifier{n}, 30*time.Minute, clock, zerolog.Nop())

	d.Dispatch(context.Background(), note(analysis.TierCritical))
	clock.Advance(time.Minute)
	d.Dispatch(context.Background(), note(analysis.TierNormal))
	clock.Advance(time.Minute)

	// WARNING is an escalation relative to the reset NORMAL state.
	if !d.Dispatch(context.Background(), note(analysis.TierWarning)) {
		t.Fatal("WARNING after recovery should dispatch")
	}
}

func TestDispatcherFanOutSurvivesChannelFailure(t *testing.T) {
	bad := &countingNotifier{err: errors.New("channel down")}
	good := &countingNotifier{}
	d := NewDispatcher([]Notifier{bad, good}, 30*time.Minute, clockwork.NewFakeClock(), zerolog.Nop())

	if !d.Dispatch(context.Background(), note(analysis.TierCritical)) {
		t.Fatal("dispatch should be attempted")
	}
	if good.sent != 1 {
		t.Fatal("failing channel must not block the healthy one")
	}
}
