package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/vulntrack/vulntrack/internal/audit"
	"github.com/vulntrack/vulntrack/internal/cache"
	"github.com/vulntrack/vulntrack/internal/client"
	"github.com/vulntrack/vulntrack/internal/report"
	"github.com/vulntrack/vulntrack/internal/types"
)

// refresh refetches the active source with the server-side filter.
func (m *Model) refresh() tea.Cmd {
	if m.backend == nil {
		return func() tea.Msg { return statusMsg("Refresh not available (offline view)") }
	}
	ctx, backend, src, filter := m.ctx, m.backend, m.source, m.filter
	m.busy = "Refreshing"
	m.errBanner = ""
	return func() tea.Msg {
		res, err := backend.Findings(ctx, src, filter)
		if err != nil {
			return errMsg{op: "refresh", err: err}
		}
		return findingsMsg{findings: res.Findings, discarded: res.Discarded, excluded: res.Excluded}
	}
}

// applyStatus sends one bulk update setting status on every target.
func (m *Model) applyStatus(status types.Status) tea.Cmd {
	if m.backend == nil {
		return func() tea.Msg { return statusMsg("Updates not available (offline view)") }
	}
	targets := m.targets()
	if len(targets) == 0 {
		return func() tea.Msg { return statusMsg("No finding selected") }
	}

	updates := make([]types.Update, 0, len(targets))
	for _, idx := range targets {
		f := m.findings[idx]
		s := status
		updates = append(updates, types.Update{Name: f.Name, Host: f.Host, Status: &s})
	}
	change := "status=" + string(status)

	ctx, backend, src, log, logger := m.ctx, m.backend, m.source, m.auditLog, m.log
	m.busy = fmt.Sprintf("Updating %d findings", len(updates))
	return func() tea.Msg {
		_, err := backend.Update(ctx, src, updates)
		appendAudit(log, logger, audit.UpdateRecord(src, updates, change, err))
		if err != nil {
			return errMsg{op: "update", err: err}
		}
		return updatedMsg{updates: updates, change: change}
	}
}

// bulkRetest retests the targets one at a time and reports per-item results.
func (m *Model) bulkRetest() tea.Cmd {
	if m.backend == nil {
		return func() tea.Msg { return statusMsg("Retest not available (offline view)") }
	}
	targets := m.targets()
	if len(targets) == 0 {
		return func() tea.Msg { return statusMsg("No finding selected") }
	}
	findings := make([]types.Finding, len(targets))
	for i, idx := range targets {
		findings[i] = m.findings[idx]
	}

	ctx, backend, src, log, logger := m.ctx, m.backend, m.source, m.auditLog, m.log
	m.busy = fmt.Sprintf("Retesting %d findings", len(findings))
	return func() tea.Msg {
		results := backend.BulkRetest(ctx, src, findings)
		appendAudit(log, logger, audit.RetestRecord(src, results))
		return retestMsg(results)
	}
}

// retestUpdates turns reported statuses into local updates so the table
// reflects the retest without a refetch.
func retestUpdates(src types.Source, results []client.RetestResult) []types.Update {
	var out []types.Update
	for _, r := range results {
		if !r.Success {
			continue
		}
		s, ok := types.LookupStatus(src, r.Status)
		if !ok {
			continue
		}
		out = append(out, types.Update{Name: r.Finding.Name, Host: r.Finding.Host, Status: &s})
	}
	return out
}

func appendAudit(log *audit.AuditLog, logger *zap.Logger, r audit.OperationRecord) {
	if log == nil {
		return
	}
	if err := log.Append(r); err != nil {
		logger.Warn("audit append failed", zap.String("kind", string(r.Kind)), zap.Error(err))
	}
}

func errorBanner(msg errMsg) string {
	if errors.Is(msg.err, client.ErrUnauthorized) {
		return "Session expired. Run 'vulntrack login' and press r to retry"
	}
	return fmt.Sprintf("%s failed: %v (r to retry, esc to dismiss)", msg.op, msg.err)
}

func cacheDelta(prev, cur []types.Finding) string {
	d := cache.Compare(prev, cur)
	if d.Empty() {
		return "no changes"
	}
	return fmt.Sprintf("+%d new, -%d gone, %d changed", len(d.Added), len(d.Removed), len(d.Changed))
}

func (m *Model) saveCache() {
	if m.cacheDir == "" {
		return
	}
	if err := cache.SaveResults(m.cacheDir, m.source, m.apiURL, m.findings); err != nil {
		m.log.Warn("cache save failed", zap.Error(err))
	}
}

func (m *Model) loadHistory() {
	m.history = nil
	m.historySelection = 0
	if m.auditLog == nil {
		return
	}
	history, err := m.auditLog.LoadHistory()
	if err != nil {
		return
	}
	m.history = history
}

func (m *Model) deleteHistoryRecord() {
	if m.auditLog == nil || m.historySelection < 0 || m.historySelection >= len(m.history) {
		return
	}
	if err := m.auditLog.DeleteRecord(m.historySelection); err != nil {
		m.setStatus(fmt.Sprintf("Delete failed: %v", err), statusDuration)
		return
	}
	m.loadHistory()
}

// exportFindings writes the current view to the export directory
func (m *Model) exportFindings(format report.Format) tea.Cmd {
	displayFindings := m.displayFindings()
	if len(displayFindings) == 0 {
		return func() tea.Msg { return statusMsg("No findings to export") }
	}

	path, err := report.Export(m.exportDir, format, displayFindings)
	if err != nil {
		return func() tea.Msg { return statusMsg(fmt.Sprintf("Export error: %v", err)) }
	}

	absPath, _ := filepath.Abs(path)
	return func() tea.Msg {
		return statusMsg(fmt.Sprintf("Exported %d findings to %s", len(displayFindings), absPath))
	}
}

// copyKeyToClipboard copies the current finding's name and host to clipboard
func (m Model) copyKeyToClipboard() tea.Cmd {
	f := m.getSelectedFinding()
	if f == nil {
		return func() tea.Msg { return statusMsg("No finding selected") }
	}

	text := f.Name + " " + hostPort(*f)
	if err := clipboard.WriteAll(text); err != nil {
		return func() tea.Msg { return statusMsg(fmt.Sprintf("Clipboard error: %v", err)) }
	}

	return func() tea.Msg { return statusMsg(fmt.Sprintf("Copied: %s", text)) }
}

// copyFindingToClipboard copies full finding details to clipboard
func (m Model) copyFindingToClipboard() tea.Cmd {
	f := m.getSelectedFinding()
	if f == nil {
		return func() tea.Msg { return statusMsg("No finding selected") }
	}

	if err := clipboard.WriteAll(findingText(*f)); err != nil {
		return func() tea.Msg { return statusMsg(fmt.Sprintf("Clipboard error: %v", err)) }
	}

	return func() tea.Msg { return statusMsg("Copied finding details to clipboard") }
}

func findingText(f types.Finding) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Name: %s\n", f.Name))
	sb.WriteString(fmt.Sprintf("Host: %s\n", hostPort(f)))
	sb.WriteString(fmt.Sprintf("Severity: %s\n", f.Severity))
	sb.WriteString(fmt.Sprintf("Status: %s\n", f.Status))
	if f.Assignee != "" {
		sb.WriteString(fmt.Sprintf("Assignee: %s\n", f.Assignee))
	}
	if f.Owner != "" {
		sb.WriteString(fmt.Sprintf("Owner: %s\n", f.Owner))
	}
	if f.DaysOverdue > 0 {
		sb.WriteString(fmt.Sprintf("Days overdue: %d\n", f.DaysOverdue))
	}
	if f.Description != "" {
		sb.WriteString(fmt.Sprintf("\nDescription:\n%s\n", f.Description))
	}
	return sb.String()
}

// startNote opens the note editor for the finding under the cursor.
func (m *Model) startNote() tea.Cmd {
	if m.store == nil {
		return func() tea.Msg { return statusMsg("Notes not available") }
	}
	idx := m.cursorIndex()
	if idx < 0 {
		return func() tea.Msg { return statusMsg("No finding selected") }
	}
	m.noteTarget = idx
	m.noteInput.SetValue(m.notes[m.findings[idx].ID()].Text)
	m.noteMode = true
	return m.noteInput.Focus()
}

func (m *Model) saveNote(text string) tea.Cmd {
	if m.store == nil || m.noteTarget < 0 || m.noteTarget >= len(m.findings) {
		return nil
	}
	f := m.findings[m.noteTarget]
	m.noteTarget = -1
	text = strings.TrimSpace(text)
	if err := m.store.SetNote(f.ID(), f.Name, f.Host, text); err != nil {
		return func() tea.Msg { return statusMsg(fmt.Sprintf("Note error: %v", err)) }
	}
	m.notes = m.store.LoadNotes()
	m.updateViewportContent()
	if text == "" {
		return func() tea.Msg { return statusMsg("Note removed") }
	}
	return func() tea.Msg { return statusMsg("Note saved") }
}

func (m *Model) savePrefs() {
	if m.prefs == nil {
		return
	}
	m.prefs.GroupMode = m.groupMode
	m.prefs.OwnerSort = string(m.ownerSort)
	m.prefs.RawView = m.rawView
	m.prefs.Source = string(m.source)
	if err := SavePrefs(*m.prefs); err != nil {
		m.log.Debug("prefs save failed", zap.Error(err))
	}
}
