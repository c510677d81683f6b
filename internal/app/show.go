package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent rate observations and alert audit rows.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	total, err := store.CountObservations(ctx)
	if err != nil {
		return err
	}

	observations, err := store.ListRecentObservations(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(os.Stdout, "no observations found")
	} else {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tDays\tType\tRate%")
		for _, obs := range observations {
			fmt.Fprintf(
				writer,
				"%s\t%d\t%s\t%s\n",
				obs.CapturedAt.UTC().Format(time.RFC3339),
				obs.Days,
				obs.RateType,
				obs.Rate.StringFixed(2),
			)
		}
		writer.Flush()
		fmt.Fprintf(os.Stdout, "(%d of %d stored)\n", len(observations), total)
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts recorded")
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tRule\tKind\tRate%\tCondition")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s %s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			sanitizeInline(alert.RuleID),
			alert.Kind,
			alert.Rate.StringFixed(2),
			alert.Condition,
			alert.TargetRate.StringFixed(2),
		)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
