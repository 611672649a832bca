package vulntrack

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntrack/vulntrack/internal/cache"
	"github.com/vulntrack/vulntrack/internal/engine"
	"github.com/vulntrack/vulntrack/internal/report"
	"github.com/vulntrack/vulntrack/internal/types"
)

var (
	findingsFilter filterFlags

	flagGroup         string
	flagSort          string
	flagLimit         int
	flagBaseline      string
	flagWriteBaseline bool
	flagFailOn        string
	flagDelta         bool
)

func init() {
	cmd := &cobra.Command{
		Use:     "findings",
		Aliases: []string{"ls", "list"},
		Short:   "List findings with optional filters and grouping",
		Example: `  vulntrack findings --severity critical,high --status open
  vulntrack findings --source cloudflare --host example.com --group owner --sort overdue
  vulntrack findings --baseline .vulntrack-baseline.json --fail-on high`,
		RunE: runFindings,
	}
	findingsFilter.bind(cmd.Flags())
	cmd.Flags().StringVar(&flagGroup, "group", "", "group by host | assignee | owner")
	cmd.Flags().StringVar(&flagSort, "sort", "", "owner/assignee group order: total | overdue | completion | risk")
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "show at most N rows (0 = all)")
	cmd.Flags().StringVar(&flagBaseline, "baseline", "", "only report findings absent from this baseline file")
	cmd.Flags().BoolVar(&flagWriteBaseline, "write-baseline", false, "write the matching findings to --baseline and exit")
	cmd.Flags().StringVar(&flagFailOn, "fail-on", "", "exit 1 when an open finding is at or above this severity")
	cmd.Flags().BoolVar(&flagDelta, "delta", false, "print what changed since the previous fetch")
	rootCmd.AddCommand(cmd)
}

func runFindings(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}

	var prev []types.Finding
	if flagDelta && !flagCached {
		if dir, err := cache.DefaultDir(); err == nil {
			if res, err := cache.LoadResults(dir, s.Source); err == nil {
				prev = res.Findings
			}
		}
	}

	all, err := fetch(commandContext(cmd), cmd, s, store, findingsFilter.serverFilter())
	if err != nil {
		return err
	}
	findings, err := findingsFilter.apply(all, s.Source)
	if err != nil {
		return err
	}

	if flagBaseline != "" {
		if flagWriteBaseline {
			if err := report.SaveBaseline(flagBaseline, findings); err != nil {
				return fmt.Errorf("write baseline: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d findings)\n", flagBaseline, len(findings))
			return nil
		}
		base, err := report.LoadBaseline(flagBaseline)
		if err != nil {
			return fmt.Errorf("read baseline: %w", err)
		}
		if gone := base.Gone(findings); len(gone) > 0 && !flagJSON {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d baselined findings no longer reported\n", len(gone))
		}
		findings = report.FilterNewFindings(findings, base)
	} else if flagWriteBaseline {
		return fmt.Errorf("--write-baseline needs --baseline")
	}

	w := cmd.OutOrStdout()
	opts := printOptions(s)
	opts.Limit = flagLimit

	if flagGroup != "" {
		title, groups, err := groupFindings(flagGroup, flagSort, findings)
		if err != nil {
			return err
		}
		if flagJSON {
			if err := writeJSON(w, groupsJSON(groups, s.Workload)); err != nil {
				return err
			}
		} else {
			report.PrintGroups(w, title, groups, opts)
		}
	} else if flagJSON {
		if findings == nil {
			findings = []types.Finding{}
		}
		if err := writeJSON(w, findings); err != nil {
			return err
		}
	} else {
		report.PrintFindings(w, findings, opts)
	}

	if flagDelta && prev != nil && !flagJSON {
		printDelta(w, cache.Compare(prev, all))
	}

	if flagFailOn != "" && report.ShouldFail(findings, flagFailOn) {
		return exitError{code: 1}
	}
	return nil
}

// groupFindings builds the groups for one grouping mode, in view order.
func groupFindings(mode, sortBy string, findings []types.Finding) (string, []engine.Group, error) {
	by := engine.ParseOwnerSort(sortBy)
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "host", "domain":
		g := engine.HostGroups(findings)
		if sortBy != "" {
			engine.SortOwnerGroups(g, by)
		}
		return "HOST", g, nil
	case "assignee":
		return "ASSIGNEE", engine.AssigneeGroups(findings, by), nil
	case "owner":
		return "OWNER", engine.OwnerGroups(findings, by), nil
	default:
		return "", nil, fmt.Errorf("unknown group %q (want host|assignee|owner)", mode)
	}
}

type groupRow struct {
	Key            string        `json:"key"`
	Total          int           `json:"total"`
	Critical       int           `json:"critical"`
	High           int           `json:"high"`
	Medium         int           `json:"medium"`
	Low            int           `json:"low"`
	Info           int           `json:"info"`
	Open           int           `json:"open"`
	Fixed          int           `json:"fixed"`
	Overdue        int           `json:"overdue"`
	CompletionRate int           `json:"completion_rate"`
	RiskScore      int           `json:"risk_score"`
	Health         engine.Health `json:"health"`
}

func groupsJSON(groups []engine.Group, th engine.WorkloadThresholds) []groupRow {
	out := make([]groupRow, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupRow{
			Key:            g.Key,
			Total:          g.Total,
			Critical:       g.Critical,
			High:           g.High,
			Medium:         g.Medium,
			Low:            g.Low,
			Info:           g.Info,
			Open:           g.Open,
			Fixed:          g.Fixed,
			Overdue:        g.Overdue,
			CompletionRate: g.CompletionRate(),
			RiskScore:      g.RiskScore(),
			Health:         engine.WorkloadHealth(g, th),
		})
	}
	return out
}

func printDelta(w io.Writer, d cache.Delta) {
	if d.Empty() {
		fmt.Fprintln(w, "\nNo changes since the previous fetch")
		return
	}
	fmt.Fprintf(w, "\nSince the previous fetch: +%d new, -%d gone, %d changed\n", len(d.Added), len(d.Removed), len(d.Changed))
	for _, f := range d.Added {
		fmt.Fprintf(w, "  + [%s] %s on %s\n", f.Severity, f.Name, f.Host)
	}
	for _, f := range d.Removed {
		fmt.Fprintf(w, "  - [%s] %s on %s\n", f.Severity, f.Name, f.Host)
	}
	for _, f := range d.Changed {
		fmt.Fprintf(w, "  ~ [%s] %s on %s (%s)\n", f.Severity, f.Name, f.Host, f.Status)
	}
}
