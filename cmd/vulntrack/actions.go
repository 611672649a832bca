package vulntrack

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vulntrack/vulntrack/internal/audit"
	"github.com/vulntrack/vulntrack/internal/client"
	"github.com/vulntrack/vulntrack/internal/report"
	"github.com/vulntrack/vulntrack/internal/types"
)

var (
	statusFilter filterFlags
	retestFilter filterFlags

	flagSetStatus   string
	flagSetNotes    string
	flagSetAssignee string
	flagDryRun      bool
	flagAll         bool
)

func init() {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Bulk-update status, notes or assignee of the selected findings",
		Example: `  vulntrack status --name "OpenSSH user enumeration" --host 10.0.0.5 --set Fixed
  vulntrack status --assignee Unassigned --severity critical --set-assignee alice --all`,
		RunE: runStatus,
	}
	statusFilter.bind(statusCmd.Flags())
	statusCmd.Flags().StringVar(&flagSetStatus, "set", "", "new status (must belong to the source's vocabulary)")
	statusCmd.Flags().StringVar(&flagSetNotes, "set-notes", "", "replace notes/comments")
	statusCmd.Flags().StringVar(&flagSetAssignee, "set-assignee", "", "new assignee")
	statusCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "show what would change without calling the backend")
	statusCmd.Flags().BoolVar(&flagAll, "all", false, "allow acting on more than one finding")

	retestCmd := &cobra.Command{
		Use:   "retest",
		Short: "Retest the selected findings one at a time",
		Example: `  vulntrack retest --name "TLS 1.0 enabled" --host example.com --source cloudflare
  vulntrack retest --severity critical --status open --all`,
		RunE: runRetest,
	}
	retestFilter.bind(retestCmd.Flags())
	retestCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "list what would be retested")
	retestCmd.Flags().BoolVar(&flagAll, "all", false, "allow acting on more than one finding")

	rootCmd.AddCommand(statusCmd, retestCmd)
}

// selectTargets fetches and filters findings, refusing an empty selection
// and, without --all, a selection of more than one.
func selectTargets(cmd *cobra.Command, s settings, f *filterFlags) ([]types.Finding, *client.Client, error) {
	if f.isEmpty() {
		return nil, nil, fmt.Errorf("select findings with --name/--host or another filter")
	}
	if _, err := f.criteria(s.Source); err != nil {
		return nil, nil, err
	}
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	all, err := fetch(commandContext(cmd), cmd, s, store, f.serverFilter())
	if err != nil {
		return nil, nil, err
	}
	targets, err := f.apply(all, s.Source)
	if err != nil {
		return nil, nil, err
	}
	if len(targets) == 0 {
		return nil, nil, fmt.Errorf("no findings match the selection")
	}
	if len(targets) > 1 && !flagAll {
		return nil, nil, fmt.Errorf("%d findings match; pass --all to act on all of them", len(targets))
	}
	return targets, newClient(s, store), nil
}

func (f *filterFlags) isEmpty() bool {
	for _, v := range []string{f.severity, f.status, f.assignee, f.owner, f.host, f.name, f.search, f.since, f.until} {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func runStatus(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	var status *types.Status
	if flagSetStatus != "" {
		st, ok := types.LookupStatus(s.Source, flagSetStatus)
		if !ok {
			return fmt.Errorf("status %q is not valid for %s (want one of %s)", flagSetStatus, s.Source, statusList(s.Source))
		}
		status = &st
	}
	notesSet := cmd.Flags().Changed("set-notes")
	assigneeSet := cmd.Flags().Changed("set-assignee")
	if status == nil && !notesSet && !assigneeSet {
		return fmt.Errorf("nothing to change: pass --set, --set-notes or --set-assignee")
	}

	targets, c, err := selectTargets(cmd, s, &statusFilter)
	if err != nil {
		return err
	}

	var changes []string
	if status != nil {
		changes = append(changes, "status="+string(*status))
	}
	if notesSet {
		changes = append(changes, "notes")
	}
	if assigneeSet {
		changes = append(changes, "assignee="+flagSetAssignee)
	}
	change := strings.Join(changes, ", ")

	updates := make([]types.Update, 0, len(targets))
	for _, f := range targets {
		u := types.Update{Name: f.Name, Host: f.Host, Status: status}
		if notesSet {
			u.Notes = strPtr(flagSetNotes)
		}
		if assigneeSet {
			u.Assignee = strPtr(flagSetAssignee)
		}
		updates = append(updates, u)
	}

	w := cmd.OutOrStdout()
	if flagDryRun {
		fmt.Fprintf(w, "Would update %d findings (%s):\n", len(updates), change)
		for _, u := range updates {
			fmt.Fprintf(w, "  %s on %s\n", u.Name, u.Host)
		}
		return nil
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	resp, err := c.Update(commandContext(cmd), s.Source, updates)
	record := audit.UpdateRecord(s.Source, updates, change, err)
	if aerr := openAudit(store).Append(record); aerr != nil {
		logger.Warn("audit append failed", zap.Error(aerr))
	}
	if err != nil {
		return fmt.Errorf("update: %w", loginHint(err))
	}
	if flagJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Updated %d findings (%s)\n", len(updates), change)
	if resp.Message != "" {
		fmt.Fprintln(w, resp.Message)
	}
	return nil
}

func statusList(src types.Source) string {
	var names []string
	for _, st := range types.Statuses(src) {
		names = append(names, string(st))
	}
	return strings.Join(names, ", ")
}

func runRetest(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	targets, c, err := selectTargets(cmd, s, &retestFilter)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if flagDryRun {
		fmt.Fprintf(w, "Would retest %d findings:\n", len(targets))
		for _, f := range targets {
			fmt.Fprintf(w, "  %s on %s\n", f.Name, f.Host)
		}
		return nil
	}

	if !flagJSON && len(targets) > 1 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Retesting %d findings sequentially...\n", len(targets))
	}
	results := c.BulkRetest(commandContext(cmd), s.Source, targets)

	store, err := openStore()
	if err != nil {
		return err
	}
	if aerr := openAudit(store).Append(audit.RetestRecord(s.Source, results)); aerr != nil {
		logger.Warn("audit append failed", zap.Error(aerr))
	}

	if flagJSON {
		if err := writeJSON(w, results); err != nil {
			return err
		}
	} else {
		report.PrintRetestResults(w, results, printOptions(s))
	}
	if _, failed := client.Tally(results); failed > 0 {
		return exitError{code: 1}
	}
	return nil
}
