package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"

	"flood-watcher/internal/analysis"
)

// Predict fits the upstream lag model against stored history and prints
// the downstream level projections.
func (a *App) Predict(ctx context.Context) error {
	registry, err := a.newRegistry()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx, registry)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot fit prediction model")
	}
	defer closeStore()

	predictor := analysis.NewPredictor(
		store,
		registry.Upstream().ID,
		registry.Primary().ID,
		a.predictorParams(),
		clockwork.NewRealClock(),
		a.Logger,
	)

	prediction, err := predictor.Predict(ctx)
	if err != nil {
		if errors.Is(err, analysis.ErrInsufficientHistory) {
			fmt.Fprintln(os.Stdout, "not enough stored history to fit the lag model yet")
			return nil
		}
		return err
	}

	m := prediction.Model
	fmt.Fprintf(os.Stdout, "Lag model %s -> %s: lag %dh, correlation %.3f, %d rows (confidence: %s)\n",
		registry.Upstream().ID, registry.Primary().ID, m.LagHours, m.Correlation, m.Rows, prediction.Confidence)

	if len(prediction.Projections) == 0 {
		fmt.Fprintln(os.Stdout, "no projections available for the requested horizon")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tProjected level (m)\tNote")
	for _, p := range prediction.Projections {
		note := ""
		if p.Extrapolated {
			note = "beyond lag window"
		}
		fmt.Fprintf(writer, "%s\t%.1f\t%s\n", p.Time.UTC().Format(time.RFC3339), p.LevelM, note)
	}
	writer.Flush()
	return nil
}
