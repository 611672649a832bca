package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/vulntrack/vulntrack/internal/audit"
	"github.com/vulntrack/vulntrack/internal/client"
)

func TestView_Rendering(t *testing.T) {
	m := sized(NewModel(dashboardFixture(), Options{}))

	output := m.View()
	if !strings.Contains(output, "Crit: 1") {
		t.Errorf("expected summary cards in header, got %q", output)
	}

	m.showHelp = true
	if output = m.View(); !strings.Contains(output, "Keyboard Shortcuts") {
		t.Error("help popup not rendered")
	}
	m.showHelp = false

	m.showExportMenu = true
	if output = m.View(); !strings.Contains(output, "XLSX") {
		t.Error("export menu should offer XLSX")
	}
	m.showExportMenu = false

	m.showStatusMenu = true
	if output = m.View(); !strings.Contains(output, "Accepted Risk") {
		t.Error("status menu should list the internal vocabulary")
	}
	m.showStatusMenu = false

	m.busy = "Refreshing"
	if output = m.View(); !strings.Contains(output, "Refreshing...") {
		t.Error("busy popup not rendered")
	}
	m.busy = ""

	mEmpty := sized(NewModel(nil, Options{}))
	if output = mEmpty.View(); !strings.Contains(output, "No findings") {
		t.Errorf("empty view should say there is nothing to review, got %q", output)
	}
}

func TestView_Analytics(t *testing.T) {
	m := sized(NewModel(dashboardFixture(), Options{}))
	m.showAnalytics = true
	out := m.View()
	for _, want := range []string{"SLA & Analytics", "breached 2", "Top breaching assignees", "alice", "payments"} {
		if !strings.Contains(out, want) {
			t.Errorf("analytics popup missing %q", want)
		}
	}
}

func TestView_ErrorBanner(t *testing.T) {
	m := sized(NewModel(dashboardFixture(), Options{}))
	m.errBanner = "refresh failed: boom (r to retry, esc to dismiss)"
	if out := m.View(); !strings.Contains(out, "r to retry") {
		t.Error("error banner should carry the retry hint")
	}
}

func TestView_History(t *testing.T) {
	m := sized(NewModel(dashboardFixture(), Options{}))
	m.showHistory = true
	if out := m.View(); !strings.Contains(out, "No operation history") {
		t.Error("empty history should say so")
	}

	m.history = []audit.OperationRecord{{
		Timestamp: time.Now(), Kind: audit.KindRetest, Source: "internal", Items: 2, Succeeded: 1, Failed: 1,
		Errors: []audit.ItemError{{Name: "Apache Struts RCE", Host: "app-01", Error: "500"}},
	}}
	out := m.View()
	if !strings.Contains(out, "OPERATION HISTORY") || !strings.Contains(out, "Apache Struts RCE @ app-01: 500") {
		t.Errorf("history popup missing record details: %q", out)
	}
}

func TestView_RetestResults(t *testing.T) {
	fs := dashboardFixture()
	m := sized(NewModel(fs, Options{}))
	m.showRetestResults = true
	m.retestResults = []client.RetestResult{
		{Finding: fs[0], Success: true, Status: "Fixed", FindingsCount: 0},
		{Finding: fs[1], Error: "timeout"},
	}
	out := m.View()
	if !strings.Contains(out, "Retested 2: 1 succeeded, 1 failed") {
		t.Errorf("retest popup missing tally: %q", out)
	}
	if !strings.Contains(out, "timeout") {
		t.Error("retest popup should show the failure reason")
	}
}

func TestInit(t *testing.T) {
	m := NewModel(nil, Options{})
	if cmd := m.Init(); cmd == nil {
		t.Error("Init returned nil command")
	}
}

func TestFormatDuration_Coverage(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{48 * time.Hour, "2d"},
	}

	for _, tt := range tests {
		got := formatDuration(tt.d)
		if got != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.d, got, tt.expected)
		}
	}
}
