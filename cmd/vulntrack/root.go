package vulntrack

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/vulntrack/vulntrack/internal/update"
)

var (
	flagAPIURL        string
	flagSource        string
	flagJSON          bool
	flagNoColor       bool
	flagDebug         bool
	flagLogFile       string
	flagCached        bool
	flagTimeout       time.Duration
	flagNoUpdateCheck bool

	version = "0.1.0"

	logger = zap.NewNop()
)

// rootCmd is the base Cobra command for the vulntrack CLI.
var rootCmd = &cobra.Command{
	Use:   "vulntrack",
	Short: "Triage vulnerability findings from the terminal",
	Long: "vulntrack pulls findings from the internal scanner or the Cloudflare feed, " +
		"slices them by host, assignee and owner, tracks SLA standing and drives bulk status updates and retests.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		notifyUpdate(cmd)
	},
}

// exitError carries a non-default exit code without an error message.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the vulntrack CLI. It should be called by the main package.
func Execute() {
	os.Exit(run())
}

// run executes the root command and maps its error to an exit code. The
// logger is flushed on every path, including failing RunE.
func run() int {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintln(rootCmd.ErrOrStderr(), "error:", err)
		return 2
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "backend base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&flagSource, "source", "", "findings source: internal | cloudflare")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit JSON")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colorized output")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "log requests to stderr")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "write JSON logs to this file")
	rootCmd.PersistentFlags().BoolVar(&flagCached, "cached", false, "read the last fetched findings instead of calling the backend")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "per-request timeout (default 30s)")
	rootCmd.PersistentFlags().BoolVar(&flagNoUpdateCheck, "no-update-check", false, "disable update check")
}

func setup(_ *cobra.Command, _ []string) error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	l, err := newLogger(flagDebug, flagLogFile)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	logger = l
	return nil
}

func newLogger(debug bool, logFile string) (*zap.Logger, error) {
	switch {
	case logFile != "":
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{logFile}
		if debug {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		return cfg.Build()
	case debug:
		return zap.NewDevelopment()
	default:
		return zap.NewNop(), nil
	}
}

func notifyUpdate(cmd *cobra.Command) {
	if flagJSON || flagNoUpdateCheck {
		return
	}
	switch cmd.Name() {
	case "update", "version", "completion", "dashboard":
		return
	}
	if latest, newer, _ := update.Check(currentVersion(), false); newer && latest != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "A new version of vulntrack is available: %s (current %s). Run 'vulntrack update'.\n", latest, currentVersion())
	}
}

// colorEnabled is false for --no-color, no_color in config, NO_COLOR or a
// non-terminal stdout.
func colorEnabled(s settings) bool {
	if s.NoColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
