package vulntrack

import (
	"errors"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vulntrack/vulntrack/internal/audit"
)

var (
	flagHistoryLimit  int
	flagHistoryDelete int
)

func init() {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past bulk updates and retests, newest first",
		RunE:  runHistory,
	}
	cmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "show at most N records (0 = all)")
	cmd.Flags().IntVar(&flagHistoryDelete, "delete", -1, "delete the record at this index (as listed) and exit")
	rootCmd.AddCommand(cmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	log := openAudit(store)
	w := cmd.OutOrStdout()

	if flagHistoryDelete >= 0 {
		if err := log.DeleteRecord(flagHistoryDelete); err != nil {
			return err
		}
		fmt.Fprintf(w, "Deleted record %d\n", flagHistoryDelete)
		return nil
	}

	records, err := log.LoadHistory()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if flagHistoryLimit > 0 && len(records) > flagHistoryLimit {
		records = records[:flagHistoryLimit]
	}
	if flagJSON {
		if records == nil {
			records = []audit.OperationRecord{}
		}
		return writeJSON(w, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No operations recorded")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "WHEN", "KIND", "SOURCE", "ITEMS", "OK", "FAILED", "CHANGE")
	for i, r := range records {
		_ = table.Append([]string{
			fmt.Sprint(i),
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			string(r.Kind),
			string(r.Source),
			fmt.Sprint(r.Items),
			fmt.Sprint(r.Succeeded),
			fmt.Sprint(r.Failed),
			r.Change,
		})
	}
	_ = table.Render()
	for i, r := range records {
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  #%d %s on %s: %s\n", i, e.Name, e.Host, e.Error)
		}
	}
	return nil
}
