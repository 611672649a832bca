package vulntrack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vulntrack/vulntrack/internal/audit"
	"github.com/vulntrack/vulntrack/internal/cache"
	"github.com/vulntrack/vulntrack/internal/client"
	"github.com/vulntrack/vulntrack/internal/config"
	"github.com/vulntrack/vulntrack/internal/engine"
	"github.com/vulntrack/vulntrack/internal/ingest"
	"github.com/vulntrack/vulntrack/internal/report"
	"github.com/vulntrack/vulntrack/internal/session"
	"github.com/vulntrack/vulntrack/internal/types"
)

const (
	defaultAPIURL  = "http://localhost:8080"
	defaultTimeout = 30 * time.Second
)

// settings is the resolved configuration for one command run.
type settings struct {
	APIURL         string
	Source         types.Source
	SourceSet      bool
	Timeout        time.Duration
	RetestInterval time.Duration
	ExportDir      string
	NoColor        bool
	RiskyTop       int
	BreachTop      int
	ExcludeHosts   []string
	SLA            engine.SLAThresholds
	Workload       engine.WorkloadThresholds
	S3             config.S3Config
}

// loadSettings layers CLI > env > local > global > defaults.
func loadSettings() (settings, error) {
	env := config.FromEnv()
	local, _ := config.LoadLocal(".")
	global, _ := config.LoadGlobal()

	var s settings
	s.APIURL = strings.TrimRight(pickString(flagAPIURL, env.APIURL, local.APIURL, global.APIURL), "/")

	rawSource := pickString(flagSource, env.Source, local.Source, global.Source)
	src, err := types.ParseSource(rawSource)
	if err != nil {
		return s, err
	}
	s.Source = src
	s.SourceSet = rawSource != ""

	s.Timeout = flagTimeout
	if s.Timeout == 0 {
		if s.Timeout, err = pickDuration(local.Timeout, global.Timeout); err != nil {
			return s, fmt.Errorf("timeout: %w", err)
		}
	}
	if s.Timeout == 0 {
		s.Timeout = defaultTimeout
	}
	if s.RetestInterval, err = pickDuration(local.RetestInterval, global.RetestInterval); err != nil {
		return s, fmt.Errorf("retest_interval: %w", err)
	}

	s.ExportDir = pickString("", local.ExportDir, global.ExportDir)
	if s.ExportDir == "" {
		s.ExportDir = "."
	}
	s.NoColor = pickBool(flagNoColor, local.NoColor, global.NoColor)
	s.RiskyTop = pickInt(0, local.RiskyTop, global.RiskyTop)
	if s.RiskyTop == 0 {
		s.RiskyTop = 3
	}
	s.BreachTop = pickInt(0, local.BreachTop, global.BreachTop)
	if s.BreachTop == 0 {
		s.BreachTop = 5
	}
	s.ExcludeHosts = local.ExcludeHosts
	if len(s.ExcludeHosts) == 0 {
		s.ExcludeHosts = global.ExcludeHosts
	}

	s.SLA = engine.DefaultSLA().Merge(global.SLAOverrides()).Merge(local.SLAOverrides())

	lw, gw := local.WorkloadLayer(), global.WorkloadLayer()
	def := engine.DefaultWorkload()
	s.Workload = engine.WorkloadThresholds{
		BusyOpen:          orInt(pickInt(0, lw.BusyOpen, gw.BusyOpen), def.BusyOpen),
		OverloadedOpen:    orInt(pickInt(0, lw.OverloadedOpen, gw.OverloadedOpen), def.OverloadedOpen),
		BusyOverdue:       orInt(pickInt(0, lw.BusyOverdue, gw.BusyOverdue), def.BusyOverdue),
		OverloadedOverdue: orInt(pickInt(0, lw.OverloadedOverdue, gw.OverloadedOverdue), def.OverloadedOverdue),
	}

	es, ls, gs := env.S3Layer(), local.S3Layer(), global.S3Layer()
	s.S3 = config.S3Config{
		Endpoint:  strPtr(pickString("", es.Endpoint, ls.Endpoint, gs.Endpoint)),
		Bucket:    strPtr(pickString("", es.Bucket, ls.Bucket, gs.Bucket)),
		AccessKey: strPtr(pickString("", es.AccessKey, ls.AccessKey, gs.AccessKey)),
		SecretKey: strPtr(pickString("", es.SecretKey, ls.SecretKey, gs.SecretKey)),
		UseSSL:    boolPtr(pickBool(false, ls.UseSSL, gs.UseSSL)),
	}
	return s, nil
}

func pickString(cli string, layers ...*string) string {
	if cli != "" {
		return cli
	}
	for _, l := range layers {
		if l != nil && strings.TrimSpace(*l) != "" {
			return strings.TrimSpace(*l)
		}
	}
	return ""
}

func pickInt(cli int, layers ...*int) int {
	if cli != 0 {
		return cli
	}
	for _, l := range layers {
		if l != nil && *l != 0 {
			return *l
		}
	}
	return 0
}

func pickBool(cli bool, layers ...*bool) bool {
	if cli {
		return true
	}
	for _, l := range layers {
		if l != nil {
			return *l
		}
	}
	return false
}

func pickDuration(layers ...*string) (time.Duration, error) {
	raw := pickString("", layers...)
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func strPtr(s string) *string { return &s }
func boolPtr(v bool) *bool    { return &v }

func openStore() (*session.Store, error) {
	return session.Open("")
}

func openAudit(store *session.Store) *audit.AuditLog {
	return audit.NewAuditLog(store.Dir)
}

// newClient wires the saved session into a backend client. VULNTRACK_TOKEN
// takes precedence over the saved token; a 401 clears the saved one.
func newClient(s settings, store *session.Store) *client.Client {
	token := config.Token()
	apiURL := s.APIURL
	if t, err := store.LoadToken(); err == nil {
		if token == "" {
			token = t.Value
		}
		if apiURL == "" {
			apiURL = t.APIURL
		}
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return client.New(apiURL,
		client.WithToken(token),
		client.WithTimeout(s.Timeout),
		client.WithLogger(logger),
		client.WithRetestInterval(s.RetestInterval),
		client.WithIngestOptions(ingest.Options{ExcludeHosts: s.ExcludeHosts}),
		client.WithOnUnauthorized(func() {
			if err := store.ClearToken(); err != nil {
				logger.Warn("clear token failed", zap.Error(err))
			}
		}),
	)
}

// loginHint decorates an unauthorized error with the way out.
func loginHint(err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		return fmt.Errorf("%w (run 'vulntrack login')", err)
	}
	return err
}

// fetch returns findings for the resolved source, either from the backend
// or from the last cached fetch when --cached is set. A live fetch refreshes
// the cache.
func fetch(ctx context.Context, cmd *cobra.Command, s settings, store *session.Store, filter client.ServerFilter) ([]types.Finding, error) {
	cacheDir, err := cache.DefaultDir()
	if err != nil {
		return nil, err
	}
	if flagCached {
		res, err := cache.LoadResults(cacheDir, s.Source)
		if err != nil {
			return nil, fmt.Errorf("no cached %s findings: %w", s.Source, err)
		}
		if !flagJSON {
			fmt.Fprintf(cmd.ErrOrStderr(), "Using cached findings from %s\n", res.Timestamp.Local().Format("2006-01-02 15:04"))
		}
		return res.Findings, nil
	}

	c := newClient(s, store)
	res, err := c.Findings(ctx, s.Source, filter)
	if err != nil {
		return nil, loginHint(err)
	}
	if res.Discarded > 0 || res.Excluded > 0 {
		logger.Info("records dropped", zap.Int("discarded", res.Discarded), zap.Int("excluded", res.Excluded))
	}
	if err := cache.SaveResults(cacheDir, s.Source, c.BaseURL(), res.Findings); err != nil {
		logger.Warn("cache save failed", zap.Error(err))
	}
	return res.Findings, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOptions(s settings) report.PrintOptions {
	return report.PrintOptions{NoColor: !colorEnabled(s), Workload: s.Workload}
}

// filterFlags are the selection flags shared by commands that act on a
// subset of findings.
type filterFlags struct {
	severity  string
	status    string
	assignee  string
	owner     string
	host      string
	name      string
	search    string
	since     string
	until     string
	dateField string
}

func (f *filterFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.severity, "severity", "", "comma-separated severities (critical,high,medium,low,info)")
	fs.StringVar(&f.status, "status", "", "comma-separated statuses")
	fs.StringVar(&f.assignee, "assignee", "", "comma-separated assignees (Unassigned matches empty)")
	fs.StringVar(&f.owner, "owner", "", "comma-separated owners (Unassigned matches empty)")
	fs.StringVar(&f.host, "host", "", "comma-separated hosts or domains")
	fs.StringVar(&f.name, "name", "", "exact finding name")
	fs.StringVar(&f.search, "search", "", "case-insensitive text search")
	fs.StringVar(&f.since, "since", "", "only findings seen on or after this date")
	fs.StringVar(&f.until, "until", "", "only findings seen on or before this date (whole day)")
	fs.StringVar(&f.dateField, "date-field", string(engine.DateFirstSeen), "date to filter on: first_seen | last_seen")
}

func (f *filterFlags) criteria(src types.Source) (engine.Criteria, error) {
	var c engine.Criteria
	for _, s := range splitList(f.severity) {
		sev := types.ParseSeverity(s)
		if sev == types.SevUnknown && !strings.EqualFold(s, string(types.SevUnknown)) {
			return c, fmt.Errorf("unknown severity %q", s)
		}
		c.Severities = append(c.Severities, sev)
	}
	for _, s := range splitList(f.status) {
		st, ok := types.LookupStatus(src, s)
		if !ok {
			return c, fmt.Errorf("unknown status %q for %s (want one of %s)", s, src, statusList(src))
		}
		c.Statuses = append(c.Statuses, st)
	}
	c.Assignees = splitList(f.assignee)
	c.Owners = splitList(f.owner)
	c.Hosts = splitList(f.host)
	c.Search = strings.TrimSpace(f.search)

	if f.since != "" || f.until != "" {
		r := engine.DateRange{Field: engine.DateField(f.dateField)}
		switch r.Field {
		case engine.DateFirstSeen, engine.DateLastSeen:
		default:
			return c, fmt.Errorf("unknown date field %q", f.dateField)
		}
		if f.since != "" {
			t, ok := engine.ParseTime(f.since)
			if !ok {
				return c, fmt.Errorf("invalid --since %q", f.since)
			}
			r.Start = t
		}
		if f.until != "" {
			t, ok := engine.ParseTime(f.until)
			if !ok {
				return c, fmt.Errorf("invalid --until %q", f.until)
			}
			r.End = endOfDay(t)
		}
		c.Date = &r
	}
	return c, nil
}

// apply filters findings by the criteria and the exact --name match.
func (f *filterFlags) apply(findings []types.Finding, src types.Source) ([]types.Finding, error) {
	c, err := f.criteria(src)
	if err != nil {
		return nil, err
	}
	out := engine.Filter(findings, c)
	if name := strings.TrimSpace(f.name); name != "" {
		kept := out[:0]
		for _, x := range out {
			if x.Name == name {
				kept = append(kept, x)
			}
		}
		out = kept
	}
	return out, nil
}

// serverFilter forwards single-valued selections to the Cloudflare endpoint.
func (f *filterFlags) serverFilter() client.ServerFilter {
	one := func(s string) string {
		if l := splitList(s); len(l) == 1 {
			return l[0]
		}
		return ""
	}
	owner := one(f.owner)
	if strings.EqualFold(owner, engine.Unassigned) {
		owner = ""
	}
	return client.ServerFilter{Domain: one(f.host), Severity: one(f.severity), Status: one(f.status), Owner: owner}
}

// endOfDay widens a date-only bound to cover the whole day.
func endOfDay(t time.Time) time.Time {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Add(24*time.Hour - time.Nanosecond)
	}
	return t
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// commandContext is the command's context, falling back to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
