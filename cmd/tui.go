package main

import (
	"context"
	"fmt"

	"github.com/LosAICode/neurogen-client/internal/shared"
	"github.com/LosAICode/neurogen-client/internal/track"
	"github.com/LosAICode/neurogen-client/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
)

// TUI tracks a task in the interactive terminal UI.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	taskID := cmd.StringArg("task_id")
	if taskID == "" {
		return fmt.Errorf("%w: task_id", shared.ErrMissingArgument)
	}
	tt, err := track.ParseTaskType(cmd.String("type"))
	if err != nil {
		return fmt.Errorf("%w: %q", shared.ErrInvalidTaskType, cmd.String("type"))
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/neurogen-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

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

	model := ui.NewModel(taskID, updates, terminal, r.engine.Cancel)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
