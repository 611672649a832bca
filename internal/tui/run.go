package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vulntrack/vulntrack/internal/cache"
	"github.com/vulntrack/vulntrack/internal/types"
)

func newProgramModel(ctx context.Context, findings []types.Finding, opts Options) Model {
	if opts.Prefs == nil {
		prefs := LoadPrefs()
		opts.Prefs = &prefs
	}
	m := NewModel(findings, opts)
	if ctx != nil {
		m.ctx = ctx
	}
	return m
}

// start runs m full screen until the user quits or ctx is cancelled.
func start(ctx context.Context, m Model) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// Run starts the dashboard on freshly fetched findings.
func Run(ctx context.Context, findings []types.Finding, opts Options) error {
	return start(ctx, newProgramModel(ctx, findings, opts))
}

// RunCached starts the dashboard on the last cached fetch. Refresh still
// works when opts carries a backend.
func RunCached(ctx context.Context, res cache.Results, opts Options) error {
	if opts.Source == "" {
		opts.Source = res.Source
	}
	m := newProgramModel(ctx, res.Findings, opts)
	m.viewingCached = true
	m.lastRefresh = res.Timestamp
	return start(ctx, m)
}
