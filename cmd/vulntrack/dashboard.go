package vulntrack

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulntrack/vulntrack/internal/cache"
	"github.com/vulntrack/vulntrack/internal/tui"
	"github.com/vulntrack/vulntrack/internal/types"
)

var dashboardFilter filterFlags

func init() {
	cmd := &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"ui", "tui"},
		Short:   "Open the interactive dashboard",
		Long: "Opens a full-screen view of the findings with grouping, search, bulk status updates, " +
			"sequential retests, exports and SLA analytics. Press ? inside for key bindings.",
		RunE: runDashboard,
	}
	dashboardFilter.bind(cmd.Flags())
	rootCmd.AddCommand(cmd)
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	prefs := tui.LoadPrefs()
	if !s.SourceSet && prefs.Source != "" {
		if src, err := types.ParseSource(prefs.Source); err == nil {
			s.Source = src
		}
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	cacheDir, err := cache.DefaultDir()
	if err != nil {
		return err
	}

	opts := tui.Options{
		Source:    s.Source,
		Backend:   newClient(s, store),
		Filter:    dashboardFilter.serverFilter(),
		Session:   store,
		Audit:     openAudit(store),
		ExportDir: s.ExportDir,
		CacheDir:  cacheDir,
		APIURL:    s.APIURL,
		SLA:       s.SLA,
		Workload:  s.Workload,
		Logger:    logger,
		Prefs:     &prefs,
	}
	ctx := commandContext(cmd)

	if flagCached {
		res, err := cache.LoadResults(cacheDir, s.Source)
		if err != nil {
			return fmt.Errorf("no cached %s findings: %w", s.Source, err)
		}
		res.Findings, err = dashboardFilter.apply(res.Findings, s.Source)
		if err != nil {
			return err
		}
		return tui.RunCached(ctx, res, opts)
	}

	all, err := fetch(ctx, cmd, s, store, opts.Filter)
	if err != nil {
		return err
	}
	findings, err := dashboardFilter.apply(all, s.Source)
	if err != nil {
		return err
	}
	return tui.Run(ctx, findings, opts)
}
