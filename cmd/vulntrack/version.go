package vulntrack

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/vulntrack/vulntrack/internal/update"
)

var flagCheckOnly bool

func init() {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the vulntrack version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "vulntrack", currentVersion())
			return nil
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update vulntrack to the latest release",
		RunE:  runUpdate,
	}
	updateCmd.Flags().BoolVar(&flagCheckOnly, "check", false, "only report whether a newer release exists")

	rootCmd.AddCommand(versionCmd, updateCmd)
}

// currentVersion prefers the linker-set version and falls back to the
// module version recorded by `go install`.
func currentVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "0.0.0"
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	if flagCheckOnly {
		latest, newer, err := update.Check(currentVersion(), false)
		if err != nil {
			return err
		}
		switch {
		case latest == "":
			fmt.Fprintln(w, "Could not determine the latest release")
		case newer:
			fmt.Fprintf(w, "vulntrack %s is available (current %s)\n", latest, currentVersion())
		default:
			fmt.Fprintf(w, "vulntrack %s is up to date\n", currentVersion())
		}
		return nil
	}
	installed, err := update.SelfUpdate(currentVersion())
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	fmt.Fprintln(w, "Updated to", installed)
	return nil
}
