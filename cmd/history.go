package main

import (
	"context"
	"fmt"

	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/urfave/cli/v3"
)

// HistoryList prints recent task outcomes, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	if r.store == nil {
		return fmt.Errorf("%w: task history database unavailable", shared.ErrMissingConfig)
	}

	entries, err := r.store.List(ctx, cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}

	if len(entries) == 0 {
		r.writePlain("No recorded task outcomes\n")
		return nil
	}

	r.writePlainHeader("Task History")
	for _, e := range entries {
		r.writePlain("%s  %-9s %-8s %5.1f%%  %s\n",
			e.RecordedAt.Local().Format("2006-01-02 15:04"),
			e.Outcome, e.TaskType, e.Progress, e.TaskID)
		if e.OutputRef != "" {
			r.writePlain("                  output: %s\n", e.OutputRef)
		}
		if e.Incomplete {
			r.writePlain("                  (incomplete)\n")
		}
	}
	return nil
}

// HistoryClear deletes all recorded task outcomes.
func (r *Runner) HistoryClear(ctx context.Context, cmd *cli.Command) error {
	if r.store == nil {
		return fmt.Errorf("%w: task history database unavailable", shared.ErrMissingConfig)
	}

	n, err := r.store.Clear(ctx)
	if err != nil {
		return err
	}
	r.writePlain("Removed %d entries\n", n)
	return nil
}
