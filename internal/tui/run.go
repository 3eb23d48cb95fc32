package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"scancoord/internal/progress"
)

type Options struct {
	Events <-chan progress.Event
	Root   string
}

// Run shows the live watch view until the user quits or ctx is done.
func Run(ctx context.Context, opts Options) error {
	if opts.Events == nil {
		return fmt.Errorf("tui events channel is required")
	}
	if noColorEnabled() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	m := newModel(opts.Events, opts.Root)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
