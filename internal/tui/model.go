package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/vulntrack/vulntrack/internal/audit"
	"github.com/vulntrack/vulntrack/internal/client"
	"github.com/vulntrack/vulntrack/internal/engine"
	"github.com/vulntrack/vulntrack/internal/ingest"
	"github.com/vulntrack/vulntrack/internal/report"
	"github.com/vulntrack/vulntrack/internal/session"
	"github.com/vulntrack/vulntrack/internal/types"
)

var (
	tableBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))

	detailPaneBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	statusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("7"))

	bannerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("52")).
			Foreground(lipgloss.Color("15")).
			Bold(true)

	emptyTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Align(lipgloss.Center)

	popupStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(1, 4)

	sevCritStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	sevHighStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sevMedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	sevLowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// severityText returns plain text for severity (ANSI codes break table truncation).
func severityText(s types.Severity) string {
	switch s {
	case types.SevCritical:
		return "CRIT"
	case types.SevHigh:
		return "HIGH"
	case types.SevMedium:
		return "MED"
	case types.SevLow:
		return "LOW"
	case types.SevInfo:
		return "INFO"
	default:
		return "UNK"
	}
}

func overdueText(days int) string {
	if days <= 0 {
		return ""
	}
	return fmt.Sprintf("%dd", days)
}

func hostPort(f types.Finding) string {
	if f.Port == "" {
		return f.Host
	}
	return f.Host + ":" + f.Port
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// Backend is the part of the API client the dashboard drives.
// *client.Client satisfies it.
type Backend interface {
	Findings(ctx context.Context, src types.Source, f client.ServerFilter) (ingest.Result, error)
	Update(ctx context.Context, src types.Source, updates []types.Update) (client.UpdateResponse, error)
	BulkRetest(ctx context.Context, src types.Source, findings []types.Finding) []client.RetestResult
}

// Options wires the dashboard to its collaborators. Every field is optional;
// a nil Backend makes the view read-only.
type Options struct {
	Source    types.Source
	Backend   Backend
	Filter    client.ServerFilter
	Session   *session.Store
	Audit     *audit.AuditLog
	ExportDir string
	// CacheDir receives last_<source>.json after each refresh when set.
	CacheDir string
	APIURL   string
	SLA      engine.SLAThresholds
	Workload engine.WorkloadThresholds
	Logger   *zap.Logger
	// Prefs, when set, seeds the view and is persisted on change.
	Prefs *Prefs
}

// Model represents the main state of the TUI application.
type Model struct {
	ctx       context.Context
	backend   Backend
	source    types.Source
	filter    client.ServerFilter
	store     *session.Store
	auditLog  *audit.AuditLog
	prefs     *Prefs
	exportDir string
	cacheDir  string
	apiURL    string
	sla       engine.SLAThresholds
	workload  engine.WorkloadThresholds
	log       *zap.Logger

	table    table.Model
	viewport viewport.Model
	spinner  spinner.Model
	findings []types.Finding
	visible  []int // Original indices of findings passing the filters, in display order
	notes    session.Notes

	quitting      bool
	ready         bool   // Indicates if terminal dimensions are known
	busy          string // Non-empty while a backend call is in flight
	height        int
	width         int
	statusMessage string
	statusTimeout *time.Time // When to clear status message
	errBanner     string
	lastRefresh   time.Time
	viewingCached bool

	showHelp          bool
	showExportMenu    bool
	showAnalytics     bool
	showHistory       bool
	history           []audit.OperationRecord
	historySelection  int
	showStatusMenu    bool
	statusSelection   int
	showRetestResults bool
	retestResults     []client.RetestResult
	rawView           bool

	// Search & Filter state
	searchMode     bool
	searchInput    textinput.Model
	searchQuery    string
	severityFilter types.Severity
	statusFilter   types.Status

	// Note editing state
	noteMode   bool
	noteInput  textinput.Model
	noteTarget int

	// Selection state (original finding indices)
	selectedFindings map[int]bool

	// Grouping state
	groupMode       string
	ownerSort       engine.OwnerSort
	expandedGroups  map[string]bool
	groupedFindings []GroupedItem
	pendingKey      string // For multi-key sequences like "gh", "ga"
}

// GroupedItem represents either a group header or a finding in the grouped view
type GroupedItem struct {
	IsGroup  bool
	GroupKey string
	Group    *engine.Group // Set on headers
	Index    int           // Original finding index, -1 on headers
}

// GroupMode constants
const (
	GroupNone       = "none"
	GroupByHost     = "host"
	GroupByAssignee = "assignee"
	GroupByOwner    = "owner"
)

func validGroupMode(s string) bool {
	switch s {
	case GroupNone, GroupByHost, GroupByAssignee, GroupByOwner:
		return true
	}
	return false
}

// ownerSortCycle is the order `s` walks through.
var ownerSortCycle = []engine.OwnerSort{engine.SortTotal, engine.SortOverdue, engine.SortCompletion}

const defaultHint = "q: quit | ?: help | /: search | g: group | u: status | R: retest | r: refresh"

const statusDuration = 3 * time.Second

// NewModel initializes a new TUI model.
func NewModel(findings []types.Finding, opts Options) Model {
	columns := []table.Column{
		{Title: "Sev", Width: 8},
		{Title: "Status", Width: 14},
		{Title: "Name", Width: 40},
		{Title: "Host", Width: 28},
		{Title: "Assignee", Width: 14},
		{Title: "Overdue", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("15")).
		Bold(true).
		Padding(0, 1).
		Align(lipgloss.Left)

	s.Selected = lipgloss.NewStyle().
		Foreground(lipgloss.Color("232")).
		Background(lipgloss.Color("208")).
		Bold(true).
		Padding(0, 1)

	s.Cell = lipgloss.NewStyle().
		Padding(0, 1)

	t.SetStyles(s)

	// Line spinner avoids Braille characters that render poorly on some terminals
	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	ti := textinput.New()
	ti.Placeholder = "Search name, host, assignee, notes..."
	ti.CharLimit = 100
	ti.Width = 50
	ti.Prompt = "/ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))

	ni := textinput.New()
	ni.Placeholder = "Note (empty to delete)"
	ni.CharLimit = 500
	ni.Width = 60
	ni.Prompt = "note: "
	ni.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	src := opts.Source
	if src == "" {
		src = types.SourceInternal
	}
	sla := opts.SLA
	if sla == nil {
		sla = engine.DefaultSLA()
	}
	workload := opts.Workload
	if workload == (engine.WorkloadThresholds{}) {
		workload = engine.DefaultWorkload()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := Model{
		ctx:              context.Background(),
		backend:          opts.Backend,
		source:           src,
		filter:           opts.Filter,
		store:            opts.Session,
		auditLog:         opts.Audit,
		exportDir:        opts.ExportDir,
		cacheDir:         opts.CacheDir,
		apiURL:           opts.APIURL,
		sla:              sla,
		workload:         workload,
		log:              logger,
		table:            t,
		spinner:          sp,
		findings:         findings,
		lastRefresh:      time.Now(),
		searchInput:      ti,
		noteInput:        ni,
		noteTarget:       -1,
		selectedFindings: make(map[int]bool),
		groupMode:        GroupNone,
		ownerSort:        engine.SortTotal,
		expandedGroups:   make(map[string]bool),
		statusMessage:    defaultHint,
	}
	if m.store != nil {
		m.notes = m.store.LoadNotes()
	}
	if opts.Prefs != nil {
		p := *opts.Prefs
		p.Source = string(src)
		m.prefs = &p
		m.rawView = p.RawView
		if validGroupMode(p.GroupMode) {
			m.groupMode = p.GroupMode
		}
		if p.OwnerSort != "" {
			m.ownerSort = engine.ParseOwnerSort(p.OwnerSort)
		}
	}

	m.applyFilters()
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

type findingsMsg struct {
	findings  []types.Finding
	discarded int
	excluded  int
}

type updatedMsg struct {
	updates []types.Update
	change  string
}

type retestMsg []client.RetestResult

// errMsg reports a failed backend call. The banner offers a retry.
type errMsg struct {
	op  string
	err error
}

type statusMsg string

func (m *Model) criteria() engine.Criteria {
	var c engine.Criteria
	c.Search = m.searchQuery
	if m.severityFilter != "" {
		c.Severities = []types.Severity{m.severityFilter}
	}
	if m.statusFilter != "" {
		c.Statuses = []types.Status{m.statusFilter}
	}
	return c
}

func (m *Model) applyFilters() {
	c := m.criteria()
	visible := make([]int, 0, len(m.findings))
	for i, f := range m.findings {
		if engine.Match(f, c) {
			visible = append(visible, i)
		}
	}
	m.visible = visible
	m.rebuildTableRows()
}

func (m *Model) clearFilters() {
	m.searchQuery = ""
	m.searchInput.SetValue("")
	m.severityFilter = ""
	m.statusFilter = ""
	m.applyFilters()
}

func (m *Model) filtered() bool {
	return m.searchQuery != "" || m.severityFilter != "" || m.statusFilter != ""
}

// toggleSeverity filters to s, or clears the filter when s is already set.
func (m *Model) toggleSeverity(s types.Severity) {
	if m.severityFilter == s {
		m.severityFilter = ""
	} else {
		m.severityFilter = s
	}
	m.applyFilters()
}

// cycleStatusFilter walks "" then the source's status vocabulary.
func (m *Model) cycleStatusFilter() {
	cycle := append([]types.Status{""}, types.Statuses(m.source)...)
	next := 0
	for i, s := range cycle {
		if s == m.statusFilter {
			next = (i + 1) % len(cycle)
			break
		}
	}
	m.statusFilter = cycle[next]
	m.applyFilters()
}

func (m *Model) displayFindings() []types.Finding {
	out := make([]types.Finding, len(m.visible))
	for i, idx := range m.visible {
		out[i] = m.findings[idx]
	}
	return out
}

func (m *Model) rebuildTableRows() {
	var rows []table.Row
	if m.groupMode != GroupNone {
		m.buildGroupedFindings()
		rows = make([]table.Row, len(m.groupedFindings))
		for i, item := range m.groupedFindings {
			if item.IsGroup {
				rows[i] = m.groupRow(item)
			} else {
				rows[i] = m.findingRow(item.Index, "  ")
			}
		}
	} else {
		rows = make([]table.Row, len(m.visible))
		for i, idx := range m.visible {
			rows[i] = m.findingRow(idx, "")
		}
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(0)
	}
	m.updateViewportContent()
}

func (m *Model) findingRow(idx int, indent string) table.Row {
	f := m.findings[idx]
	sev := severityText(f.Severity)
	if len(m.selectedFindings) > 0 {
		if m.selectedFindings[idx] {
			sev = "[x] " + sev
		} else {
			sev = "[ ] " + sev
		}
	}
	assignee := f.Assignee
	if assignee == "" {
		assignee = "-"
	}
	return table.Row{indent + sev, string(f.Status), f.Name, hostPort(f), assignee, overdueText(f.DaysOverdue)}
}

// groupRow renders the header aggregates. Owner and assignee groups show
// workload health in the status column.
func (m *Model) groupRow(item GroupedItem) table.Row {
	g := item.Group
	icon := "+"
	if m.expandedGroups[item.GroupKey] {
		icon = "-"
	}
	health := ""
	if m.groupMode != GroupByHost {
		health = string(engine.WorkloadHealth(*g, m.workload))
	}
	return table.Row{
		icon,
		health,
		fmt.Sprintf("%s [%d]", g.Key, g.Total),
		fmt.Sprintf("C:%d H:%d M:%d L:%d", g.Critical, g.High, g.Medium, g.Low),
		fmt.Sprintf("open %d fix %d%%", g.Open, g.FixRate()),
		fmt.Sprintf("%d late", g.Overdue),
	}
}

func (m *Model) setGroupMode(mode string) {
	if m.groupMode == mode {
		m.groupMode = GroupNone
		m.groupedFindings = nil
	} else {
		m.groupMode = mode
	}
	m.expandedGroups = make(map[string]bool)
	m.table.SetCursor(0)
	m.rebuildTableRows()
	m.savePrefs()
}

func (m *Model) buildGroupedFindings() {
	if m.groupMode == GroupNone {
		m.groupedFindings = nil
		return
	}

	display := m.displayFindings()
	var groups []engine.Group
	var key engine.KeyFunc
	switch m.groupMode {
	case GroupByHost:
		groups, key = engine.HostGroups(display), engine.ByHost
	case GroupByAssignee:
		groups, key = engine.AssigneeGroups(display, m.ownerSort), engine.ByAssignee
	case GroupByOwner:
		groups, key = engine.OwnerGroups(display, m.ownerSort), engine.ByOwner
	default:
		m.groupedFindings = nil
		return
	}

	m.groupedFindings = nil
	for gi := range groups {
		g := &groups[gi]
		m.groupedFindings = append(m.groupedFindings, GroupedItem{
			IsGroup:  true,
			GroupKey: g.Key,
			Group:    g,
			Index:    -1,
		})
		if !m.expandedGroups[g.Key] {
			continue
		}
		for _, idx := range m.visible {
			if key(m.findings[idx]) == g.Key {
				m.groupedFindings = append(m.groupedFindings, GroupedItem{GroupKey: g.Key, Index: idx})
			}
		}
	}
}

func (m *Model) toggleGroupExpansion() {
	if m.groupMode == GroupNone || len(m.groupedFindings) == 0 {
		return
	}

	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.groupedFindings) {
		return
	}

	groupKey := m.groupedFindings[idx].GroupKey
	m.expandedGroups[groupKey] = !m.expandedGroups[groupKey]
	m.rebuildTableRows()

	// Keep the cursor on the header that was toggled
	for i, item := range m.groupedFindings {
		if item.IsGroup && item.GroupKey == groupKey {
			m.table.SetCursor(i)
			break
		}
	}
	m.updateViewportContent()
}

func (m *Model) cycleOwnerSort() {
	next := 0
	for i, s := range ownerSortCycle {
		if s == m.ownerSort {
			next = (i + 1) % len(ownerSortCycle)
			break
		}
	}
	m.ownerSort = ownerSortCycle[next]
	m.rebuildTableRows()
}

func (m *Model) currentItem() *GroupedItem {
	if m.groupMode == GroupNone {
		return nil
	}
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.groupedFindings) {
		return nil
	}
	return &m.groupedFindings[idx]
}

// cursorIndex returns the original index of the finding under the cursor,
// or -1 on a group header or an empty table.
func (m *Model) cursorIndex() int {
	if m.groupMode != GroupNone {
		if item := m.currentItem(); item != nil {
			return item.Index
		}
		return -1
	}
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.visible) {
		return -1
	}
	return m.visible[idx]
}

func (m *Model) getSelectedFinding() *types.Finding {
	idx := m.cursorIndex()
	if idx < 0 {
		return nil
	}
	return &m.findings[idx]
}

// targets are the selected findings, or the one under the cursor when
// nothing is selected.
func (m *Model) targets() []int {
	if len(m.selectedFindings) > 0 {
		out := make([]int, 0, len(m.selectedFindings))
		for idx := range m.selectedFindings {
			if idx >= 0 && idx < len(m.findings) {
				out = append(out, idx)
			}
		}
		sort.Ints(out)
		return out
	}
	if idx := m.cursorIndex(); idx >= 0 {
		return []int{idx}
	}
	return nil
}

// toggleSelection flips the finding under the cursor. On a group header it
// flips every member of the group.
func (m *Model) toggleSelection() {
	cursor := m.table.Cursor()
	if item := m.currentItem(); item != nil && item.IsGroup {
		members := m.groupMembers(item.GroupKey)
		all := len(members) > 0
		for _, idx := range members {
			if !m.selectedFindings[idx] {
				all = false
				break
			}
		}
		for _, idx := range members {
			if all {
				delete(m.selectedFindings, idx)
			} else {
				m.selectedFindings[idx] = true
			}
		}
	} else {
		idx := m.cursorIndex()
		if idx < 0 {
			return
		}
		if m.selectedFindings[idx] {
			delete(m.selectedFindings, idx)
		} else {
			m.selectedFindings[idx] = true
		}
	}
	m.rebuildTableRows()
	m.table.SetCursor(cursor)
}

func (m *Model) groupMembers(groupKey string) []int {
	var key engine.KeyFunc
	switch m.groupMode {
	case GroupByHost:
		key = engine.ByHost
	case GroupByAssignee:
		key = engine.ByAssignee
	case GroupByOwner:
		key = engine.ByOwner
	default:
		return nil
	}
	var out []int
	for _, idx := range m.visible {
		if key(m.findings[idx]) == groupKey {
			out = append(out, idx)
		}
	}
	return out
}

func (m *Model) toggleSelectAll() {
	allSelected := len(m.visible) > 0
	for _, idx := range m.visible {
		if !m.selectedFindings[idx] {
			allSelected = false
			break
		}
	}
	if allSelected {
		m.selectedFindings = make(map[int]bool)
	} else {
		for _, idx := range m.visible {
			m.selectedFindings[idx] = true
		}
	}
	m.rebuildTableRows()
}

func (m *Model) updateViewportContent() {
	if !m.ready {
		return
	}
	if item := m.currentItem(); item != nil && item.IsGroup {
		m.viewport.SetContent(m.groupDetail(*item))
		return
	}
	f := m.getSelectedFinding()
	if f == nil {
		m.viewport.SetContent("")
		return
	}
	if m.rawView {
		buf, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			m.viewport.SetContent(err.Error())
			return
		}
		m.viewport.SetContent(highlightCode(string(buf), "json"))
		return
	}
	m.viewport.SetContent(m.findingDetail(*f))
}

func (m *Model) groupDetail(item GroupedItem) string {
	g := item.Group
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s\n\n", titleStyle.Render("Group Summary")))
	b.WriteString(fmt.Sprintf("%s %s\n", keyStyle.Render("Group:"), g.Key))
	b.WriteString(fmt.Sprintf("%s %d  (critical %d, high %d, medium %d, low %d, info %d)\n",
		keyStyle.Render("Findings:"), g.Total, g.Critical, g.High, g.Medium, g.Low, g.Info))
	b.WriteString(fmt.Sprintf("%s %d open, %d fixed, %d overdue\n", keyStyle.Render("Status:"), g.Open, g.Fixed, g.Overdue))
	b.WriteString(fmt.Sprintf("%s %d%%\n", keyStyle.Render("Completion:"), g.CompletionRate()))
	b.WriteString(fmt.Sprintf("%s %d\n", keyStyle.Render("Risk score:"), g.RiskScore()))
	if m.groupMode != GroupByHost {
		b.WriteString(fmt.Sprintf("%s %s\n", keyStyle.Render("Workload:"), engine.WorkloadHealth(*g, m.workload)))
	}

	hint := "Press Tab to expand this group"
	if m.expandedGroups[item.GroupKey] {
		hint = "Press Tab to collapse this group"
	}
	b.WriteString(fmt.Sprintf("\n%s\n", dimStyle.Render(hint)))
	return b.String()
}

func (m *Model) findingDetail(f types.Finding) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s\n\n", titleStyle.Render(f.Name)))

	row := func(k, v string) {
		if v == "" {
			return
		}
		b.WriteString(fmt.Sprintf("%s %s\n", keyStyle.Render(k), v))
	}
	row("Severity:", string(f.Severity))
	row("Status:", string(f.Status))
	row("Host:", hostPort(f))
	row("Assignee:", f.Assignee)
	row("Owner:", f.Owner)
	row("First seen:", f.FirstSeen)
	row("Last seen:", f.LastSeen)

	class := engine.ClassifySLA(f, m.sla)
	sla := string(class)
	if th, ok := m.sla[f.Severity]; ok {
		sla = fmt.Sprintf("%s (%d days overdue, limit %d)", class, f.DaysOverdue, th)
	}
	row("SLA:", sla)

	if f.Description != "" {
		b.WriteString(fmt.Sprintf("\n%s\n%s\n", keyStyle.Render("Description"), f.Description))
	}
	if f.Notes != "" {
		b.WriteString(fmt.Sprintf("\n%s\n%s\n", keyStyle.Render("Notes"), f.Notes))
	}
	if n, ok := m.notes[f.ID()]; ok {
		b.WriteString(fmt.Sprintf("\n%s %s\n%s\n", keyStyle.Render("Local note"),
			dimStyle.Render(n.Updated.Format("Jan 2, 15:04")), n.Text))
	}
	return b.String()
}

func highlightCode(code string, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

func (m *Model) setStatus(msg string, d time.Duration) {
	timeout := time.Now().Add(d)
	m.statusTimeout = &timeout
	m.statusMessage = msg
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			m.savePrefs()
			return m, tea.Quit
		}

		if m.showHelp {
			m.showHelp = false
			return m, nil
		}

		if m.showRetestResults {
			switch msg.String() {
			case "esc", "q", "enter", "R":
				m.showRetestResults = false
			}
			return m, nil
		}

		if m.showAnalytics {
			switch msg.String() {
			case "esc", "q", "A":
				m.showAnalytics = false
			}
			return m, nil
		}

		if m.showHistory {
			switch msg.String() {
			case "q", "esc", "H":
				m.showHistory = false
				m.historySelection = 0
			case "up", "k":
				if m.historySelection > 0 {
					m.historySelection--
				}
			case "down", "j":
				if m.historySelection < len(m.history)-1 {
					m.historySelection++
				}
			case "d", "backspace", "delete":
				m.deleteHistoryRecord()
			}
			return m, nil
		}

		if m.showStatusMenu {
			options := types.Statuses(m.source)
			switch key := msg.String(); key {
			case "esc", "q", "u":
				m.showStatusMenu = false
			case "up", "k":
				if m.statusSelection > 0 {
					m.statusSelection--
				}
			case "down", "j":
				if m.statusSelection < len(options)-1 {
					m.statusSelection++
				}
			case "enter":
				m.showStatusMenu = false
				cmd = m.applyStatus(options[m.statusSelection])
				return m, cmd
			default:
				if len(key) == 1 && key[0] >= '1' && int(key[0]-'1') < len(options) {
					m.showStatusMenu = false
					cmd = m.applyStatus(options[key[0]-'1'])
					return m, cmd
				}
			}
			return m, nil
		}

		if m.showExportMenu {
			switch msg.String() {
			case "1", "c":
				m.showExportMenu = false
				cmd = m.exportFindings(report.FormatCSV)
				return m, cmd
			case "2", "x":
				m.showExportMenu = false
				cmd = m.exportFindings(report.FormatXLSX)
				return m, cmd
			case "3", "j":
				m.showExportMenu = false
				cmd = m.exportFindings(report.FormatJSON)
				return m, cmd
			case "esc", "q", "e":
				m.showExportMenu = false
			}
			return m, nil
		}

		if m.noteMode {
			switch msg.String() {
			case "enter":
				m.noteMode = false
				m.noteInput.Blur()
				cmd = m.saveNote(m.noteInput.Value())
				return m, cmd
			case "esc":
				m.noteMode = false
				m.noteInput.Blur()
				return m, nil
			default:
				m.noteInput, cmd = m.noteInput.Update(msg)
				return m, cmd
			}
		}

		if m.searchMode {
			switch msg.String() {
			case "enter":
				m.searchQuery = m.searchInput.Value()
				m.searchMode = false
				m.searchInput.Blur()
				return m, nil
			case "esc":
				m.searchMode = false
				m.searchInput.Blur()
				m.searchInput.SetValue(m.searchQuery)
				m.applyFilters()
				return m, nil
			default:
				m.searchInput, cmd = m.searchInput.Update(msg)
				m.searchQuery = m.searchInput.Value()
				m.applyFilters()
				return m, cmd
			}
		}

		if m.busy != "" {
			return m, nil
		}

		if m.pendingKey == "g" {
			m.pendingKey = ""
			switch msg.String() {
			case "h":
				m.setGroupMode(GroupByHost)
			case "a":
				m.setGroupMode(GroupByAssignee)
			case "o":
				m.setGroupMode(GroupByOwner)
			case "g":
				m.table.GotoTop()
				m.updateViewportContent()
			}
			return m, nil
		}

		switch msg.String() {
		case "q":
			m.quitting = true
			m.savePrefs()
			return m, tea.Quit
		case "?":
			m.showHelp = true
			return m, nil
		case "/":
			m.searchMode = true
			cmd = m.searchInput.Focus()
			return m, cmd
		case "esc":
			if m.errBanner != "" {
				m.errBanner = ""
				return m, nil
			}
			if len(m.selectedFindings) > 0 {
				m.selectedFindings = make(map[int]bool)
				m.rebuildTableRows()
				return m, nil
			}
			m.clearFilters()
			return m, nil
		case "1":
			m.toggleSeverity(types.SevCritical)
			return m, nil
		case "2":
			m.toggleSeverity(types.SevHigh)
			return m, nil
		case "3":
			m.toggleSeverity(types.SevMedium)
			return m, nil
		case "4":
			m.toggleSeverity(types.SevLow)
			return m, nil
		case "5":
			m.toggleSeverity(types.SevInfo)
			return m, nil
		case "t":
			m.cycleStatusFilter()
			return m, nil
		case "g":
			m.pendingKey = "g"
			return m, nil
		case "tab":
			m.toggleGroupExpansion()
			return m, nil
		case "s":
			m.cycleOwnerSort()
			m.setStatus(fmt.Sprintf("Owner sort: %s", m.ownerSort), statusDuration)
			return m, nil
		case "v":
			m.toggleSelection()
			return m, nil
		case "V":
			m.toggleSelectAll()
			return m, nil
		case "u":
			if len(m.targets()) == 0 {
				return m, func() tea.Msg { return statusMsg("No finding selected") }
			}
			m.showStatusMenu = true
			m.statusSelection = 0
			return m, nil
		case "R":
			cmd = m.bulkRetest()
			return m, cmd
		case "r":
			cmd = m.refresh()
			return m, cmd
		case "A":
			m.showAnalytics = true
			return m, nil
		case "H":
			m.loadHistory()
			m.showHistory = true
			return m, nil
		case "e":
			m.showExportMenu = true
			return m, nil
		case "y":
			cmd = m.copyKeyToClipboard()
			return m, cmd
		case "Y":
			cmd = m.copyFindingToClipboard()
			return m, cmd
		case "n":
			cmd = m.startNote()
			return m, cmd
		case "x":
			m.rawView = !m.rawView
			m.updateViewportContent()
			m.savePrefs()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		usableWidth := m.width - 14
		sevWidth := 9
		statusWidth := 16
		assigneeWidth := 16
		overdueWidth := 9
		remainingWidth := usableWidth - sevWidth - statusWidth - assigneeWidth - overdueWidth
		nameWidth := int(float64(remainingWidth) * 0.55)
		hostWidth := remainingWidth - nameWidth
		if nameWidth < 24 {
			nameWidth = 24
		}
		if hostWidth < 18 {
			hostWidth = 18
		}

		cols := m.table.Columns()
		cols[0].Width = sevWidth
		cols[1].Width = statusWidth
		cols[2].Width = nameWidth
		cols[3].Width = hostWidth
		cols[4].Width = assigneeWidth
		cols[5].Width = overdueWidth
		m.table.SetColumns(cols)

		// Stats header plus the error banner line
		headerHeight := 2
		availableHeight := m.height - lipgloss.Height(statusStyle.Render("")) - headerHeight
		tableHeight := int(float64(availableHeight) * 0.5)
		viewportHeight := availableHeight - tableHeight - detailPaneBorderStyle.GetVerticalFrameSize() - 1

		m.table.SetWidth(m.width)
		m.table.SetHeight(tableHeight)

		if m.viewport.Height == 0 {
			m.viewport = viewport.New(m.width, viewportHeight)
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.updateViewportContent()
		statusStyle = statusStyle.Width(m.width)
		return m, nil

	case findingsMsg:
		delta := cacheDelta(m.findings, msg.findings)
		m.findings = msg.findings
		m.busy = ""
		m.errBanner = ""
		m.viewingCached = false
		m.lastRefresh = time.Now()
		m.selectedFindings = make(map[int]bool)
		m.applyFilters()
		m.saveCache()

		status := fmt.Sprintf("Refreshed: %d findings (%s)", len(m.findings), delta)
		if msg.discarded > 0 || msg.excluded > 0 {
			status += fmt.Sprintf(" | %d discarded, %d excluded", msg.discarded, msg.excluded)
		}
		m.setStatus(status, 5*time.Second)
		return m, nil

	case updatedMsg:
		m.busy = ""
		m.findings = engine.ApplyUpdates(m.findings, msg.updates)
		m.selectedFindings = make(map[int]bool)
		m.applyFilters()
		m.setStatus(fmt.Sprintf("Updated %d findings: %s", len(msg.updates), msg.change), 5*time.Second)
		return m, nil

	case retestMsg:
		m.busy = ""
		m.retestResults = msg
		m.showRetestResults = true
		m.findings = engine.ApplyUpdates(m.findings, retestUpdates(m.source, msg))
		m.selectedFindings = make(map[int]bool)
		m.applyFilters()
		ok, failed := client.Tally(msg)
		m.setStatus(fmt.Sprintf("Retested %d: %d succeeded, %d failed", len(msg), ok, failed), 5*time.Second)
		return m, nil

	case errMsg:
		m.busy = ""
		m.errBanner = errorBanner(msg)
		return m, nil

	case statusMsg:
		m.setStatus(string(msg), statusDuration)
		return m, nil

	case spinner.TickMsg:
		var spinCmd tea.Cmd
		m.spinner, spinCmd = m.spinner.Update(msg)
		if m.statusTimeout != nil && time.Now().After(*m.statusTimeout) {
			m.statusTimeout = nil
			m.statusMessage = defaultHint
		}
		return m, spinCmd
	}

	if !m.quitting {
		m.table, cmd = m.table.Update(msg)
	}

	m.updateViewportContent()
	return m, cmd
}
