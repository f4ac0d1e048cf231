package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/LosAICode/neurogen-client/internal/track"
	"github.com/urfave/cli/v3"
)

// TaskStart submits a new task and, by default, tracks it until it finishes.
func (r *Runner) TaskStart(ctx context.Context, cmd *cli.Command) error {
	tt, err := track.ParseTaskType(cmd.String("type"))
	if err != nil {
		return fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, cmd.String("type"))
	}

	var params map[string]any
	if data := cmd.String("data"); data != "" {
		if err := json.Unmarshal([]byte(data), &params); err != nil {
			return fmt.Errorf("%w: data is not valid JSON: %v", shared.ErrInvalidInput, err)
		}
	}

	r.logger.Info("submitting task", "type", tt)
	taskID, err := r.client.Submit(ctx, tt, params)
	if err != nil {
		return err
	}
	r.writePlain("Task submitted: %s\n", taskID)

	if !cmd.Bool("watch") {
		return nil
	}
	return r.watch(taskID, tt)
}

// TaskWatch tracks an already-running task until it reaches a terminal state.
func (r *Runner) TaskWatch(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("task_id")
	if taskID == "" {
		return fmt.Errorf("%w: task_id", shared.ErrMissingArgument)
	}
	tt, err := track.ParseTaskType(cmd.String("type"))
	if err != nil {
		return fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, cmd.String("type"))
	}

	return r.watch(taskID, tt)
}

// TaskStatus fetches and prints the raw server status for a task.
func (r *Runner) TaskStatus(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("task_id")
	if taskID == "" {
		return fmt.Errorf("%w: task_id", shared.ErrMissingArgument)
	}
	tt, err := track.ParseTaskType(cmd.String("type"))
	if err != nil {
		return fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, cmd.String("type"))
	}

	payload, err := r.client.TaskStatus(ctx, tt, taskID)
	if err != nil {
		return err
	}
	return r.writeJSON(payload, cmd.Bool("pretty"))
}

// TaskCancel requests server-side cancellation over REST. Cancellation of a
// task currently being watched goes through the engine instead (ctrl+c in
// watch, c in the TUI) so the push channel gets first try.
func (r *Runner) TaskCancel(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("task_id")
	if taskID == "" {
		return fmt.Errorf("%w: task_id", shared.ErrMissingArgument)
	}
	tt, err := track.ParseTaskType(cmd.String("type"))
	if err != nil {
		return fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, cmd.String("type"))
	}

	r.logger.Info("requesting cancellation", "task_id", taskID)
	if err := r.client.CancelTask(ctx, tt, taskID); err != nil {
		return err
	}
	r.writePlain("Cancellation requested for %s\n", taskID)
	return nil
}

// watch drives the engine for one task and streams progress lines until the
// terminal notice arrives. An interrupt requests cancellation instead of
// exiting; the task still resolves through the terminal notice.
func (r *Runner) watch(taskID string, tt track.TaskType) error {
	updates := make(chan track.Update, 64)
	terminal := make(chan track.TerminalNotice, 1)
	r.engine.Subscribe(func(u track.Update) {
		select {
		case updates <- u:
		default:
		}
	})
	r.engine.OnTerminal(func(n track.TerminalNotice) { terminal <- n })

	if err := r.engine.Start(taskID, tt); err != nil {
		return err
	}
	defer r.engine.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	r.writePlainHeader(fmt.Sprintf("Tracking task %s (%s)", taskID, tt))

	var lastLine string
	for {
		select {
		case u := <-updates:
			if u.Advisory != "" {
				r.writePlain("! %s\n", u.Advisory)
				continue
			}
			line := fmt.Sprintf("%-10s %5.1f%%  %s", u.Status, u.DisplayProgress, u.Message)
			if line != lastLine {
				r.writePlain("%s\n", line)
				lastLine = line
			}
		case <-sig:
			r.writePlain("\nInterrupt received, requesting cancellation...\n")
			if err := r.engine.Cancel(taskID); err != nil {
				r.logger.Warn("cancel request rejected", "task_id", taskID, "err", err)
			}
		case n := <-terminal:
			return r.printOutcome(n)
		}
	}
}

func (r *Runner) printOutcome(n track.TerminalNotice) error {
	var title string
	switch n.Outcome {
	case track.Completed:
		title = "Task Complete"
	case track.Cancelled:
		title = "Task Cancelled"
	default:
		title = "Task Failed"
	}

	r.writePlain("\n")
	r.writePlainHeader(title)
	r.writePlain("Task: %s (%s)\n", n.TaskID, n.TaskType)
	if n.Final.Message != "" {
		r.writePlain("Message: %s\n", n.Final.Message)
	}
	if n.Final.OutputRef != "" {
		r.writePlain("Output: %s\n", n.Final.OutputRef)
	}
	if n.Incomplete {
		r.writePlain("Resolved without a final server status; output may be incomplete.\n")
	}
	return nil
}
