package vulntrack

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulntrack/vulntrack/internal/engine"
	"github.com/vulntrack/vulntrack/internal/report"
	"github.com/vulntrack/vulntrack/internal/types"
)

var (
	analyticsFilter filterFlags

	flagGroupsSort string
	flagSLAClass   string
	flagSLAFixed   bool
	flagTop        int
	flagServerSumm bool
)

func init() {
	groupsCmd := &cobra.Command{
		Use:       "groups host|assignee|owner",
		Short:     "Aggregate findings per host, assignee or owner",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"host", "assignee", "owner"},
		RunE:      runGroups,
	}
	groupsCmd.Flags().StringVar(&flagGroupsSort, "sort", "", "order: total | overdue | completion | risk")

	slaCmd := &cobra.Command{
		Use:   "sla",
		Short: "Show SLA standing and the top breaching assignees",
		RunE:  runSLA,
	}
	slaCmd.Flags().StringVar(&flagSLAClass, "class", "", "only list findings in this class: on-track | at-risk | breached")
	slaCmd.Flags().BoolVar(&flagSLAFixed, "include-fixed", false, "include fixed findings")
	slaCmd.Flags().IntVar(&flagTop, "top", 0, "number of breaching assignees to show (default from config, 5)")

	riskyCmd := &cobra.Command{
		Use:   "risky",
		Short: "Rank owners by risk score",
		RunE:  runRisky,
	}
	riskyCmd.Flags().IntVar(&flagTop, "top", 0, "number of owners to show (default from config, 3)")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Print headline counts",
		RunE:  runSummary,
	}
	summaryCmd.Flags().BoolVar(&flagServerSumm, "server", false, "use the backend /summary endpoint instead of counting locally")

	trendCmd := &cobra.Command{
		Use:   "trend",
		Short: "Weekly counts of newly seen findings by severity",
		RunE:  runTrend,
	}

	for _, c := range []*cobra.Command{groupsCmd, slaCmd, riskyCmd, summaryCmd, trendCmd} {
		analyticsFilter.bind(c.Flags())
		rootCmd.AddCommand(c)
	}
}

// analyticsInput resolves settings and returns the filtered findings.
func analyticsInput(cmd *cobra.Command) (settings, []types.Finding, error) {
	s, err := loadSettings()
	if err != nil {
		return s, nil, err
	}
	store, err := openStore()
	if err != nil {
		return s, nil, err
	}
	all, err := fetch(commandContext(cmd), cmd, s, store, analyticsFilter.serverFilter())
	if err != nil {
		return s, nil, err
	}
	findings, err := analyticsFilter.apply(all, s.Source)
	return s, findings, err
}

func runGroups(cmd *cobra.Command, args []string) error {
	s, findings, err := analyticsInput(cmd)
	if err != nil {
		return err
	}
	title, groups, err := groupFindings(args[0], flagGroupsSort, findings)
	if err != nil {
		return err
	}
	if flagJSON {
		return writeJSON(cmd.OutOrStdout(), groupsJSON(groups, s.Workload))
	}
	report.PrintGroups(cmd.OutOrStdout(), title, groups, printOptions(s))
	return nil
}

func runSLA(cmd *cobra.Command, _ []string) error {
	s, findings, err := analyticsInput(cmd)
	if err != nil {
		return err
	}
	if !flagSLAFixed {
		findings = openOnly(findings)
	}
	r := engine.BuildSLAReport(findings, s.SLA)
	top := flagTop
	if top == 0 {
		top = s.BreachTop
	}

	if flagSLAClass != "" {
		class := engine.SLAClass(flagSLAClass)
		switch class {
		case engine.SLAOnTrack, engine.SLAAtRisk, engine.SLABreached:
		default:
			return fmt.Errorf("unknown class %q (want on-track|at-risk|breached)", flagSLAClass)
		}
		entries := r.Filter(class)
		if flagJSON {
			if entries == nil {
				entries = []engine.SLAEntry{}
			}
			return writeJSON(cmd.OutOrStdout(), entries)
		}
		picked := make([]types.Finding, len(entries))
		for i, e := range entries {
			picked[i] = e.Finding
		}
		report.PrintFindings(cmd.OutOrStdout(), picked, printOptions(s))
		return nil
	}

	if flagJSON {
		return writeJSON(cmd.OutOrStdout(), struct {
			engine.SLAReport
			TopBreachers []engine.AssigneeSLA `json:"top_breachers"`
		}{r, r.TopBreachers(top)})
	}
	report.PrintSLA(cmd.OutOrStdout(), r, top, printOptions(s))
	return nil
}

// openOnly drops fixed findings; the SLA clock has stopped for them.
func openOnly(findings []types.Finding) []types.Finding {
	out := make([]types.Finding, 0, len(findings))
	for _, f := range findings {
		if !f.Status.IsFixed() {
			out = append(out, f)
		}
	}
	return out
}

func runRisky(cmd *cobra.Command, _ []string) error {
	s, findings, err := analyticsInput(cmd)
	if err != nil {
		return err
	}
	top := flagTop
	if top == 0 {
		top = s.RiskyTop
	}
	ranked := engine.TopRisky(engine.OwnerGroups(findings, engine.SortRisk), top)
	if flagJSON {
		return writeJSON(cmd.OutOrStdout(), groupsJSON(ranked, s.Workload))
	}
	report.PrintRisky(cmd.OutOrStdout(), ranked, printOptions(s))
	return nil
}

func runSummary(cmd *cobra.Command, _ []string) error {
	if flagServerSumm {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		sum, err := newClient(s, store).Summary(commandContext(cmd))
		if err != nil {
			return loginHint(err)
		}
		if flagJSON {
			return writeJSON(cmd.OutOrStdout(), sum)
		}
		report.PrintServerSummary(cmd.OutOrStdout(), sum)
		return nil
	}

	_, findings, err := analyticsInput(cmd)
	if err != nil {
		return err
	}
	sum := engine.Summarize(findings)
	if flagJSON {
		return writeJSON(cmd.OutOrStdout(), sum)
	}
	report.PrintSummary(cmd.OutOrStdout(), sum)
	return nil
}

func runTrend(cmd *cobra.Command, _ []string) error {
	_, findings, err := analyticsInput(cmd)
	if err != nil {
		return err
	}
	buckets := engine.WeeklyTrend(findings)
	if flagJSON {
		if buckets == nil {
			buckets = []engine.TrendBucket{}
		}
		return writeJSON(cmd.OutOrStdout(), buckets)
	}
	report.PrintTrend(cmd.OutOrStdout(), buckets)
	return nil
}
