package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vulntrack/vulntrack/internal/audit"
	"github.com/vulntrack/vulntrack/internal/engine"
	"github.com/vulntrack/vulntrack/internal/types"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Initializing..."
	}

	if m.busy != "" {
		msgContent := fmt.Sprintf("%s  %s...\n\nPlease wait", m.spinner.View(), m.busy)
		popupBox := popupStyle.
			Width(55).
			Align(lipgloss.Center).
			Render(msgContent)
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, popupBox)
	}

	switch {
	case m.showHelp:
		return m.placePopup(m.helpView(), 50)
	case m.showExportMenu:
		return m.placePopup(m.exportView(), 44)
	case m.showStatusMenu:
		return m.placePopup(m.statusMenuView(), 44)
	case m.showAnalytics:
		return m.placePopup(m.analyticsView(), 76)
	case m.showHistory:
		return m.placePopup(m.historyView(), 80)
	case m.showRetestResults:
		return m.placePopup(m.retestView(), 80)
	}

	return m.mainView()
}

func (m Model) placePopup(content string, width int) string {
	box := popupStyle.Width(width).Padding(1, 3).Render(content)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) mainView() string {
	displayFindings := m.displayFindings()
	sum := engine.Summarize(displayFindings)

	var statsContent string
	if len(m.findings) == 0 {
		statsContent = okStyle.Render("[OK] No findings")
	} else {
		// Summary cards
		cards := []string{
			fmt.Sprintf("Total: %d", sum.Total),
			sevCritStyle.Render(fmt.Sprintf("Crit: %d", sum.Critical)),
			sevHighStyle.Render(fmt.Sprintf("High: %d", sum.High)),
			sevMedStyle.Render(fmt.Sprintf("Med: %d", sum.Medium)),
			sevLowStyle.Render(fmt.Sprintf("Low: %d", sum.Low)),
			fmt.Sprintf("Open: %d", sum.Open),
			fmt.Sprintf("Fixed: %d", sum.Fixed),
			fmt.Sprintf("Overdue: %d", sum.Overdue),
			fmt.Sprintf("Fix rate: %d%%", sum.FixRate),
		}
		statsContent = strings.Join(cards, "  |  ")

		if m.filtered() {
			var parts []string
			if m.searchQuery != "" {
				parts = append(parts, fmt.Sprintf("search:'%s'", m.searchQuery))
			}
			if m.severityFilter != "" {
				parts = append(parts, fmt.Sprintf("sev:%s", severityText(m.severityFilter)))
			}
			if m.statusFilter != "" {
				parts = append(parts, fmt.Sprintf("status:%s", m.statusFilter))
			}
			statsContent += fmt.Sprintf("  [%d/%d  FILTER: %s]", len(displayFindings), len(m.findings), strings.Join(parts, ", "))
		}
		if m.groupMode != GroupNone {
			statsContent += fmt.Sprintf("  [GROUP: %s", m.groupMode)
			if m.groupMode != GroupByHost {
				statsContent += fmt.Sprintf(", sort: %s", m.ownerSort)
			}
			statsContent += "]"
		}
		if len(m.selectedFindings) > 0 {
			statsContent += fmt.Sprintf("  [%d selected]", len(m.selectedFindings))
		}
	}

	statsHeader := lipgloss.NewStyle().
		Width(m.width).
		Padding(0, 2).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("237")).
		Render(statsContent)

	banner := ""
	if m.errBanner != "" {
		banner = bannerStyle.Width(m.width).Padding(0, 2).Render("! " + m.errBanner)
	}

	tableRender := tableBorderStyle.
		Width(m.width).
		Height(m.table.Height()).
		Render(m.table.View())

	var detailContent string
	if len(displayFindings) == 0 {
		emptyMsg := "No findings to review.\n\nPress 'r' to refresh\nPress '?' for help"
		if len(m.findings) > 0 {
			emptyMsg = "No findings match filter.\n\nPress 'Esc' to clear filter"
		}
		detailContent = lipgloss.Place(
			m.width,
			m.viewport.Height,
			lipgloss.Center,
			lipgloss.Center,
			emptyTextStyle.Render(emptyMsg),
		)
	} else {
		detailContent = m.viewport.View()
	}

	detailRender := detailPaneBorderStyle.
		Width(m.width).
		Height(m.viewport.Height).
		Render(detailContent)

	var timeInfo string
	if m.viewingCached {
		timeInfo = fmt.Sprintf("Cached: %s", m.lastRefresh.Format("Jan 2, 15:04"))
	} else if !m.lastRefresh.IsZero() {
		timeInfo = fmt.Sprintf("%s, refreshed %s ago", m.source, formatDuration(time.Since(m.lastRefresh)))
	}

	statusLeft := m.statusMessage
	spacer := m.width - 4 - lipgloss.Width(statusLeft) - lipgloss.Width(timeInfo)
	if spacer < 1 {
		spacer = 1
	}
	statusContent := statusLeft
	if timeInfo != "" {
		statusContent = statusLeft + strings.Repeat(" ", spacer) + timeInfo
	}

	var bottomBar string
	switch {
	case m.searchMode:
		searchBarStyle := lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("15")).
			Width(m.width).
			Padding(0, 1)
		bottomBar = searchBarStyle.Render(m.searchInput.View() + fmt.Sprintf(" (%d matches)", len(m.visible)))
	case m.noteMode:
		noteBarStyle := lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("15")).
			Width(m.width).
			Padding(0, 1)
		bottomBar = noteBarStyle.Render(m.noteInput.View())
	default:
		bottomBar = statusStyle.Width(m.width).Padding(0, 2).Render(statusContent)
	}

	parts := []string{statsHeader}
	if banner != "" {
		parts = append(parts, banner)
	}
	parts = append(parts, tableRender, detailRender, bottomBar)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

var (
	popupTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	sectionStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	popupKeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	descStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	highlightStyle  = lipgloss.NewStyle().
			Foreground(lipgloss.Color("232")).
			Background(lipgloss.Color("208")).
			Bold(true)
)

func (m Model) helpView() string {
	formatRow := func(key, desc string) string {
		padding := 12 - len(key)
		if padding < 1 {
			padding = 1
		}
		return "  " + popupKeyStyle.Render(key) + strings.Repeat(" ", padding) + descStyle.Render(desc)
	}

	lines := []string{
		popupTitleStyle.Render("Keyboard Shortcuts"),
		"",
		sectionStyle.Render("Navigation"),
		formatRow("j / k", "Move down / up"),
		formatRow("gg / G", "First / last row"),
		"",
		sectionStyle.Render("Search & Filter"),
		formatRow("/", "Search findings"),
		formatRow("1-5", "Critical / High / Medium / Low / Info"),
		formatRow("t", "Cycle status filter"),
		formatRow("Esc", "Clear filters"),
		"",
		sectionStyle.Render("Grouping"),
		formatRow("gh", "Group by host"),
		formatRow("ga", "Group by assignee"),
		formatRow("go", "Group by owner"),
		formatRow("s", "Cycle owner sort"),
		formatRow("Tab", "Expand/collapse group"),
		"",
		sectionStyle.Render("Selection & Bulk"),
		formatRow("v / V", "Select one / select all"),
		formatRow("u", "Set status"),
		formatRow("R", "Retest"),
		"",
		sectionStyle.Render("Views"),
		formatRow("A", "SLA & analytics"),
		formatRow("H", "Operation history"),
		formatRow("x", "Toggle raw JSON"),
		"",
		sectionStyle.Render("Export & Notes"),
		formatRow("e", "Export (CSV/XLSX/JSON)"),
		formatRow("y / Y", "Copy name / full finding"),
		formatRow("n", "Edit local note"),
		"",
		sectionStyle.Render("Other"),
		formatRow("r", "Refresh"),
		formatRow("?", "Toggle help"),
		formatRow("q", "Quit"),
		"",
		hintStyle.Render("Press any key to close"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) exportView() string {
	lines := []string{
		popupTitleStyle.Render("Export Findings"),
		"",
		fmt.Sprintf("  %s  CSV   (spreadsheet)", popupKeyStyle.Render("1/c")),
		fmt.Sprintf("  %s  XLSX  (Excel workbook)", popupKeyStyle.Render("2/x")),
		fmt.Sprintf("  %s  JSON  (machine readable)", popupKeyStyle.Render("3/j")),
		"",
		descStyle.Italic(true).Render(fmt.Sprintf("Exporting %d findings", len(m.visible))),
		"",
		hintStyle.Render("Esc to cancel"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) statusMenuView() string {
	lines := []string{
		popupTitleStyle.Render(fmt.Sprintf("Set status on %d findings", len(m.targets()))),
		"",
	}
	for i, s := range types.Statuses(m.source) {
		label := fmt.Sprintf("%d  %s", i+1, s)
		if i == m.statusSelection {
			lines = append(lines, highlightStyle.Render("> "+label))
		} else {
			lines = append(lines, "  "+label)
		}
	}
	lines = append(lines, "", hintStyle.Render("Enter: apply | Esc: cancel"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) analyticsView() string {
	display := m.displayFindings()
	var open []types.Finding
	for _, f := range display {
		if !f.Status.IsFixed() {
			open = append(open, f)
		}
	}
	r := engine.BuildSLAReport(open, m.sla)

	lines := []string{
		popupTitleStyle.Render("SLA & Analytics"),
		"",
		fmt.Sprintf("  %s  %s  %s",
			sevHighStyle.Render(fmt.Sprintf("breached %d", r.Breached)),
			sevMedStyle.Render(fmt.Sprintf("at-risk %d", r.AtRisk)),
			sevLowStyle.Render(fmt.Sprintf("on-track %d", r.OnTrack))),
		"",
		sectionStyle.Render("Top breaching assignees"),
	}
	breachers := r.TopBreachers(5)
	if len(breachers) == 0 {
		lines = append(lines, dimStyle.Render("  none"))
	}
	for _, a := range breachers {
		lines = append(lines, fmt.Sprintf("  %-24s %3d breached  %3d at-risk", a.Assignee, a.Breached, a.AtRisk))
	}

	lines = append(lines, "", sectionStyle.Render("Riskiest owners"))
	owners := engine.OwnerGroups(display, engine.SortTotal)
	for _, g := range engine.TopRisky(owners, 5) {
		lines = append(lines, fmt.Sprintf("  %-24s risk %4d  crit %d  high %d  open %d", g.Key, g.RiskScore(), g.Critical, g.High, g.Open))
	}

	lines = append(lines, "", sectionStyle.Render("Workload"))
	var loaded int
	for _, g := range engine.AssigneeGroups(display, engine.SortOverdue) {
		h := engine.WorkloadHealth(g, m.workload)
		if h == engine.HealthOK {
			continue
		}
		loaded++
		style := sevMedStyle
		if h == engine.HealthOverloaded {
			style = sevHighStyle
		}
		lines = append(lines, fmt.Sprintf("  %-24s %s  open %d  overdue %d", g.Key, style.Render(string(h)), g.Open, g.Overdue))
	}
	if loaded == 0 {
		lines = append(lines, okStyle.Render("  every assignee is within limits"))
	}

	lines = append(lines, "", hintStyle.Render("A or Esc to close"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) historyView() string {
	if len(m.history) == 0 {
		return dimStyle.Render("No operation history yet.\n\nStatus updates and retests are recorded here.")
	}

	lines := []string{popupTitleStyle.Render("OPERATION HISTORY"), ""}
	maxRecords := 12
	if len(m.history) < maxRecords {
		maxRecords = len(m.history)
	}
	for i := 0; i < maxRecords; i++ {
		rec := m.history[i]
		summary := fmt.Sprintf("%s  %-6s %-10s %d items (%d ok, %d failed)",
			rec.Timestamp.Local().Format("Jan 2, 15:04:05"), rec.Kind, rec.Source, rec.Items, rec.Succeeded, rec.Failed)
		if rec.Change != "" {
			summary += "  " + rec.Change
		}
		if i == m.historySelection {
			lines = append(lines, highlightStyle.Render("  > "+summary))
			continue
		}
		style := descStyle
		if rec.Failed > 0 {
			style = sevMedStyle
		}
		lines = append(lines, style.Render("    "+summary))
	}

	if sel := m.historySelection; sel >= 0 && sel < len(m.history) && len(m.history[sel].Errors) > 0 {
		lines = append(lines, "", sectionStyle.Render("Errors"))
		for _, e := range firstErrors(m.history[sel].Errors, 5) {
			lines = append(lines, sevHighStyle.Render(fmt.Sprintf("  %s @ %s: %s", e.Name, e.Host, e.Error)))
		}
	}

	lines = append(lines, "", hintStyle.Render("j/k: move | d: delete | H: close"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func firstErrors(errs []audit.ItemError, n int) []audit.ItemError {
	if len(errs) > n {
		return errs[:n]
	}
	return errs
}

func (m Model) retestView() string {
	ok, failed := 0, 0
	lines := []string{popupTitleStyle.Render("RETEST RESULTS"), ""}
	for i, r := range m.retestResults {
		if r.Success {
			ok++
		} else {
			failed++
		}
		if i >= 12 {
			continue
		}
		if r.Success {
			status := r.Status
			if status == "" {
				status = "ok"
			}
			lines = append(lines, okStyle.Render(fmt.Sprintf("  + %s @ %s  %s (%d findings)", r.Finding.Name, r.Finding.Host, status, r.FindingsCount)))
			continue
		}
		reason := r.Error
		if reason == "" {
			reason = "backend reported failure"
		}
		lines = append(lines, sevHighStyle.Render(fmt.Sprintf("  x %s @ %s  %s", r.Finding.Name, r.Finding.Host, reason)))
	}
	if len(m.retestResults) > 12 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("  ... and %d more", len(m.retestResults)-12)))
	}
	lines = append(lines, "",
		fmt.Sprintf("Retested %d: %d succeeded, %d failed", len(m.retestResults), ok, failed),
		"", hintStyle.Render("Enter or Esc to close"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
