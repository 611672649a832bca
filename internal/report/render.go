package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/vulntrack/vulntrack/internal/client"
	"github.com/vulntrack/vulntrack/internal/engine"
	"github.com/vulntrack/vulntrack/internal/types"
)

type PrintOptions struct {
	NoColor  bool
	Workload engine.WorkloadThresholds
	// Limit caps table rows; 0 prints everything.
	Limit int
}

// PrintFindings renders findings as a table with a severity footer.
func PrintFindings(w io.Writer, findings []types.Finding, opts PrintOptions) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings match ✅")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("SEVERITY", "STATUS", "NAME", "HOST", "ASSIGNEE", "OVERDUE")
	for i, f := range findings {
		if opts.Limit > 0 && i >= opts.Limit {
			break
		}
		_ = table.Append([]string{
			colorSeverity(f.Severity, opts.NoColor),
			string(f.Status),
			truncate(f.Name, 60),
			hostPort(f),
			orDash(f.Assignee),
			strconv.Itoa(f.DaysOverdue),
		})
	}
	_ = table.Render()
	if opts.Limit > 0 && len(findings) > opts.Limit {
		fmt.Fprintf(w, "… %d more not shown\n", len(findings)-opts.Limit)
	}
	s := engine.Summarize(findings)
	fmt.Fprintf(w, "\nFindings: %d (critical: %d, high: %d, medium: %d, low: %d, info: %d) open: %d fixed: %d overdue: %d\n",
		s.Total, s.Critical, s.High, s.Medium, s.Low, s.Info, s.Open, s.Fixed, s.Overdue)
}

// PrintGroups renders one row per group with its aggregates.
func PrintGroups(w io.Writer, title string, groups []engine.Group, opts PrintOptions) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No groups")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header(title, "TOTAL", "CRIT", "HIGH", "MED", "LOW", "OPEN", "FIXED", "OVERDUE", "FIX %", "RISK", "HEALTH")
	for _, g := range groups {
		_ = table.Append([]string{
			g.Key,
			strconv.Itoa(g.Total),
			strconv.Itoa(g.Critical),
			strconv.Itoa(g.High),
			strconv.Itoa(g.Medium),
			strconv.Itoa(g.Low),
			strconv.Itoa(g.Open),
			strconv.Itoa(g.Fixed),
			strconv.Itoa(g.Overdue),
			strconv.Itoa(g.FixRate()) + "%",
			strconv.Itoa(g.RiskScore()),
			colorHealth(engine.WorkloadHealth(g, opts.Workload), opts.NoColor),
		})
	}
	_ = table.Render()
}

// PrintRisky lists the top groups by risk score.
func PrintRisky(w io.Writer, groups []engine.Group, opts PrintOptions) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No risky owners")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("#", "OWNER", "RISK", "CRIT", "HIGH", "OPEN")
	for i, g := range groups {
		_ = table.Append([]string{
			strconv.Itoa(i + 1), g.Key, strconv.Itoa(g.RiskScore()),
			strconv.Itoa(g.Critical), strconv.Itoa(g.High), strconv.Itoa(g.Open),
		})
	}
	_ = table.Render()
}

// PrintSLA renders SLA totals, the breached and at-risk findings, and the
// top breaching assignees.
func PrintSLA(w io.Writer, r engine.SLAReport, top int, opts PrintOptions) {
	fmt.Fprintf(w, "SLA: %s %d  %s %d  %s %d\n",
		colorClass(engine.SLABreached, opts.NoColor), r.Breached,
		colorClass(engine.SLAAtRisk, opts.NoColor), r.AtRisk,
		colorClass(engine.SLAOnTrack, opts.NoColor), r.OnTrack)

	var flagged []engine.SLAEntry
	flagged = append(flagged, r.Filter(engine.SLABreached)...)
	flagged = append(flagged, r.Filter(engine.SLAAtRisk)...)
	if len(flagged) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewWriter(w)
		table.Header("CLASS", "SEVERITY", "NAME", "HOST", "ASSIGNEE", "OVERDUE", "SLA DAYS")
		for i, e := range flagged {
			if opts.Limit > 0 && i >= opts.Limit {
				break
			}
			_ = table.Append([]string{
				colorClass(e.Class, opts.NoColor),
				colorSeverity(e.Finding.Severity, opts.NoColor),
				truncate(e.Finding.Name, 50),
				e.Finding.Host,
				orDash(e.Finding.Assignee),
				strconv.Itoa(e.Finding.DaysOverdue),
				strconv.Itoa(e.Threshold),
			})
		}
		_ = table.Render()
	}

	breachers := r.TopBreachers(top)
	if len(breachers) == 0 {
		return
	}
	fmt.Fprintln(w, "\nTop breaching assignees:")
	table := tablewriter.NewWriter(w)
	table.Header("ASSIGNEE", "BREACHED", "AT RISK", "ON TRACK")
	for _, a := range breachers {
		_ = table.Append([]string{a.Assignee, strconv.Itoa(a.Breached), strconv.Itoa(a.AtRisk), strconv.Itoa(a.OnTrack)})
	}
	_ = table.Render()
}

// PrintSummary renders the client-side summary cards.
func PrintSummary(w io.Writer, s engine.Summary) {
	table := tablewriter.NewWriter(w)
	table.Header("TOTAL", "OPEN", "FIXED", "FIX RATE", "OVERDUE", "CRITICAL", "HIGH", "MEDIUM", "LOW", "INFO")
	_ = table.Append([]string{
		strconv.Itoa(s.Total), strconv.Itoa(s.Open), strconv.Itoa(s.Fixed), strconv.Itoa(s.FixRate) + "%",
		strconv.Itoa(s.Overdue), strconv.Itoa(s.Critical), strconv.Itoa(s.High),
		strconv.Itoa(s.Medium), strconv.Itoa(s.Low), strconv.Itoa(s.Info),
	})
	_ = table.Render()
}

// PrintServerSummary renders the backend /summary counts.
func PrintServerSummary(w io.Writer, s client.ServerSummary) {
	table := tablewriter.NewWriter(w)
	table.Header("TOTAL", "OPEN", "FIXED", "CRITICAL", "HIGH", "MEDIUM", "LOW", "INFO")
	_ = table.Append([]string{
		strconv.Itoa(s.Total), strconv.Itoa(s.Open), strconv.Itoa(s.Fixed), strconv.Itoa(s.Critical),
		strconv.Itoa(s.High), strconv.Itoa(s.Medium), strconv.Itoa(s.Low), strconv.Itoa(s.Info),
	})
	_ = table.Render()
}

// PrintTrend renders weekly counts per severity, oldest first.
func PrintTrend(w io.Writer, buckets []engine.TrendBucket) {
	if len(buckets) == 0 {
		fmt.Fprintln(w, "No dated findings")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("WEEK", "CRITICAL", "HIGH", "MEDIUM", "LOW", "INFO", "TOTAL")
	for _, b := range buckets {
		_ = table.Append([]string{
			b.Label,
			strconv.Itoa(b.Counts[types.SevCritical]),
			strconv.Itoa(b.Counts[types.SevHigh]),
			strconv.Itoa(b.Counts[types.SevMedium]),
			strconv.Itoa(b.Counts[types.SevLow]),
			strconv.Itoa(b.Counts[types.SevInfo]),
			strconv.Itoa(b.Total),
		})
	}
	_ = table.Render()
}

// PrintRetestResults renders the per-item outcome of a bulk retest.
func PrintRetestResults(w io.Writer, results []client.RetestResult, opts PrintOptions) {
	table := tablewriter.NewWriter(w)
	table.Header("RESULT", "NAME", "HOST", "STATUS", "FINDINGS", "ERROR")
	for _, r := range results {
		mark := "ok"
		if !r.Success {
			mark = "failed"
		}
		if !opts.NoColor {
			if r.Success {
				mark = green(mark)
			} else {
				mark = red(mark)
			}
		}
		_ = table.Append([]string{mark, truncate(r.Finding.Name, 50), r.Finding.Host, orDash(r.Status), strconv.Itoa(r.FindingsCount), truncate(r.Error, 60)})
	}
	_ = table.Render()
	ok, failed := client.Tally(results)
	fmt.Fprintf(w, "\nRetested %d: %d succeeded, %d failed\n", len(results), ok, failed)
}

func hostPort(f types.Finding) string {
	if f.Port == "" {
		return f.Host
	}
	return f.Host + ":" + f.Port
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func red(s string) string    { return "\x1b[31m" + s + "\x1b[0m" }
func green(s string) string  { return "\x1b[32m" + s + "\x1b[0m" }
func yellow(s string) string { return "\x1b[33m" + s + "\x1b[0m" }

func colorSeverity(s types.Severity, noColor bool) string {
	if noColor {
		return string(s)
	}
	switch s {
	case types.SevCritical:
		return "\x1b[1;31m" + string(s) + "\x1b[0m" // bold red
	case types.SevHigh:
		return red(string(s))
	case types.SevMedium:
		return yellow(string(s))
	case types.SevLow:
		return "\x1b[36m" + string(s) + "\x1b[0m" // cyan
	default:
		return string(s)
	}
}

func colorHealth(h engine.Health, noColor bool) string {
	if noColor {
		return string(h)
	}
	switch h {
	case engine.HealthOverloaded:
		return red(string(h))
	case engine.HealthBusy:
		return yellow(string(h))
	default:
		return green(string(h))
	}
}

func colorClass(c engine.SLAClass, noColor bool) string {
	if noColor {
		return string(c)
	}
	switch c {
	case engine.SLABreached:
		return red(string(c))
	case engine.SLAAtRisk:
		return yellow(string(c))
	default:
		return green(string(c))
	}
}
