package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/iasync/internal/shared"
	"github.com/desertthunder/iasync/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for one batch.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	reqs, err := readRequests(cmd.String("file"), os.Stdin)
	if err != nil {
		return err
	}
	if len(reqs) != 1 {
		return fmt.Errorf("%w: the TUI runs one request at a time, got %d", shared.ErrInvalidArgument, len(reqs))
	}
	if err := reqs[0].Validate(); err != nil {
		return err
	}

	// Logs would corrupt the TUI, so they go to a file.
	logFile, err := os.OpenFile(cmd.String("log-file"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	r.SetLogger(shared.NewLogger(logFile))

	if err := r.init(ctx); err != nil {
		return err
	}

	model := ui.NewModel(ctx, r.engine, reqs[0])
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	if err := model.Err(); err != nil {
		return err
	}

	if s := model.Summary(); s != nil {
		r.writePlain("%d updated, %d skipped, %d failed item(s)\n", s.TotalUpdated, s.TotalSkipped, s.FailureCount)
	}
	return nil
}
