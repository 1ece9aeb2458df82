package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints the most recent risk assessments from the audit log.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	registry, err := a.newRegistry()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx, registry)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show assessments")
	}
	defer closeStore()

	assessments, err := store.ListRecentAssessments(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(assessments) == 0 {
		fmt.Fprintln(os.Stdout, "no assessments found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Assessed (UTC)\tRain 3d (mm)\tLevel (m)\tRisk\tTier\tSource")

	for _, as := range assessments {
		level := "--"
		if as.LevelM != nil {
			level = fmt.Sprintf("%.2f", *as.LevelM)
		}
		fmt.Fprintf(
			writer,
			"%s\t%.1f\t%s\t%.1f\t%s\t%s\n",
			as.AssessedAt.UTC().Format(time.RFC3339),
			as.Rain3DMM,
			level,
			as.RiskScore,
			as.AlertTier,
			as.DataSource,
		)
	}

	writer.Flush()
	return nil
}
