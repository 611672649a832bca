package vulntrack

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntrack/vulntrack/internal/audit"
	"github.com/vulntrack/vulntrack/internal/session"
)

const fixtureJSON = `[
	{"Name":"OpenSSH user enumeration","Host":"10.0.0.5","Port":"22","Severity":"Critical","Status":"Open","Assignee":"alice","Owner":"infra","Days Overdue":4,"First Seen":"2024-03-04"},
	{"Name":"TLS 1.0 enabled","Host":"10.0.0.5","Port":"443","Severity":"High","Status":"In Progress","Assignee":"bob","Owner":"infra","Days Overdue":0,"First Seen":"2024-03-12"},
	{"Name":"Directory listing","Host":"10.0.0.9","Severity":"Medium","Status":"Fixed","Assignee":"alice","Owner":"web","Days Overdue":40,"First Seen":"2024-02-20"},
	{"Name":"Banner disclosure","Host":"10.0.0.9","Severity":"Low","Status":"Open","Owner":"web","First Seen":"2024-03-13"}
]`

// backend is a fake API that records what the CLI sent.
type backend struct {
	mu       sync.Mutex
	updates  []map[string]any
	retested []string
	fetches  int
	failOn   string
	auth     string
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok-` + body["username"] + `"}`))
	})
	mux.HandleFunc("/vulnerabilities", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.auth = r.Header.Get("Authorization")
		b.fetches++
		b.mu.Unlock()
		_, _ = w.Write([]byte(fixtureJSON))
	})
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Updates []map[string]any `json:"updates"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.updates = append(b.updates, body.Updates...)
		b.mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true,"updated":` + itoa(len(body.Updates)) + `}`))
	})
	mux.HandleFunc("/retest", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		name, _ := body["name"].(string)
		b.mu.Lock()
		b.retested = append(b.retested, name)
		b.mu.Unlock()
		if name == b.failOn {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("scanner busy"))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"status":"Fixed","findingsCount":0}`))
	})
	mux.HandleFunc("/summary", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":10,"open":7,"fixed":3,"critical":2,"high":3,"medium":4,"low":1,"info":0}`))
	})
	return mux
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

// setupCLI isolates HOME, config and the working directory and starts a
// fake backend.
func setupCLI(t *testing.T) (*backend, string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("CI", "1")
	t.Setenv("NO_COLOR", "1")
	for _, k := range []string{"VULNTRACK_API_URL", "VULNTRACK_TOKEN", "VULNTRACK_SOURCE", "VULNTRACK_S3_ENDPOINT"} {
		t.Setenv(k, "")
	}
	chdir(t, t.TempDir())

	b := &backend{}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	return b, srv.URL
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_FindingsJSONWithFilters(t *testing.T) {
	_, url := setupCLI(t)
	out, err := runCLI(t, "", "findings", "--api-url", url, "--json", "--severity", "critical,high")
	require.NoError(t, err)

	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr), out)
	require.Len(t, arr, 2)
	assert.Equal(t, "OpenSSH user enumeration", arr[0]["name"])
}

func TestCLI_FindingsEmptyJSONIsArray(t *testing.T) {
	_, url := setupCLI(t)
	out, err := runCLI(t, "", "findings", "--api-url", url, "--json", "--host", "nowhere")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestCLI_FindingsUnassignedFilter(t *testing.T) {
	_, url := setupCLI(t)
	out, err := runCLI(t, "", "findings", "--api-url", url, "--json", "--assignee", "Unassigned")
	require.NoError(t, err)
	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	require.Len(t, arr, 1)
	assert.Equal(t, "Banner disclosure", arr[0]["name"])
}

func TestCLI_FindingsFailOn(t *testing.T) {
	_, url := setupCLI(t)
	_, err := runCLI(t, "", "findings", "--api-url", url, "--json", "--fail-on", "high")
	var ee exitError
	require.True(t, errors.As(err, &ee), "err = %v", err)
	assert.Equal(t, 1, ee.code)

	_, err = runCLI(t, "", "findings", "--api-url", url, "--json", "--fail-on", "critical", "--owner", "web")
	assert.NoError(t, err, "web has no open critical findings")
}

func TestCLI_FindingsBaseline(t *testing.T) {
	_, url := setupCLI(t)
	_, err := runCLI(t, "", "findings", "--api-url", url, "--baseline", "base.json", "--write-baseline", "--severity", "critical")
	require.NoError(t, err)

	out, err := runCLI(t, "", "findings", "--api-url", url, "--json", "--baseline", "base.json")
	require.NoError(t, err)
	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	assert.Len(t, arr, 3, "baselined critical finding is hidden")
}

func TestCLI_CachedReadsLastFetch(t *testing.T) {
	_, url := setupCLI(t)
	_, err := runCLI(t, "", "findings", "--api-url", url, "--json")
	require.NoError(t, err)

	// point at a dead backend; --cached must not call it
	out, err := runCLI(t, "", "findings", "--api-url", "http://127.0.0.1:1", "--cached", "--json")
	require.NoError(t, err)
	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	assert.Len(t, arr, 4)
}

func TestCLI_CachedMissing(t *testing.T) {
	setupCLI(t)
	_, err := runCLI(t, "", "findings", "--cached", "--source", "cloudflare")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cached cloudflare findings")
}

func TestCLI_GroupsJSON(t *testing.T) {
	_, url := setupCLI(t)
	out, err := runCLI(t, "", "groups", "owner", "--api-url", url, "--json")
	require.NoError(t, err)
	var rows []groupRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Total)
	keys := []string{rows[0].Key, rows[1].Key}
	assert.ElementsMatch(t, []string{"infra", "web"}, keys)
}

func TestCLI_GroupsRejectsUnknownMode(t *testing.T) {
	_, url := setupCLI(t)
	_, err := runCLI(t, "", "groups", "team", "--api-url", url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown group")
}

func TestCLI_SLAExcludesFixedByDefault(t *testing.T) {
	_, url := setupCLI(t)
	out, err := runCLI(t, "", "sla", "--api-url", url, "--json")
	require.NoError(t, err)
	var r struct {
		Breached     int `json:"breached"`
		AtRisk       int `json:"at_risk"`
		OnTrack      int `json:"on_track"`
		TopBreachers []struct {
			Assignee string `json:"assignee"`
		} `json:"top_breachers"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 3, r.Breached+r.AtRisk+r.OnTrack)
	assert.Equal(t, 1, r.Breached, "critical 4 days overdue breaches the 1 day SLA")
	require.Len(t, r.TopBreachers, 1)
	assert.Equal(t, "alice", r.TopBreachers[0].Assignee)

	out, err = runCLI(t, "", "sla", "--api-url", url, "--json", "--include-fixed")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 4, r.Breached+r.AtRisk+r.OnTrack)
}

func TestCLI_Risky(t *testing.T) {
	_, url := setupCLI(t)
	out, err := runCLI(t, "", "risky", "--api-url", url, "--json", "--top", "1")
	require.NoError(t, err)
	var rows []groupRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "infra", rows[0].Key)
	assert.Equal(t, 10+5+2, rows[0].RiskScore)
}

func TestCLI_SummaryLocalAndServer(t *testing.T) {
	_, url := setupCLI(t)
	out, err := runCLI(t, "", "summary", "--api-url", url, "--json")
	require.NoError(t, err)
	var local map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &local))
	assert.EqualValues(t, 4, local["total"])

	out, err = runCLI(t, "", "summary", "--api-url", url, "--json", "--server")
	require.NoError(t, err)
	var server map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &server))
	assert.EqualValues(t, 10, server["total"])
}

func TestCLI_StatusBulkUpdateAndAudit(t *testing.T) {
	b, url := setupCLI(t)

	_, err := runCLI(t, "", "status", "--api-url", url, "--host", "10.0.0.5", "--set", "fixed")
	require.Error(t, err, "two findings match without --all")

	out, err := runCLI(t, "", "status", "--api-url", url, "--host", "10.0.0.5", "--set", "fixed", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated 2 findings (status=Fixed)")

	b.mu.Lock()
	require.Len(t, b.updates, 2)
	assert.Equal(t, "Fixed", b.updates[0]["status"])
	assert.Equal(t, "10.0.0.5", b.updates[0]["host"])
	_, hasNotes := b.updates[0]["notes"]
	b.mu.Unlock()
	assert.False(t, hasNotes, "unset fields are not sent")

	store, err := session.Open("")
	require.NoError(t, err)
	records, err := audit.NewAuditLog(store.Dir).LoadHistory()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.KindUpdate, records[0].Kind)
	assert.Equal(t, 2, records[0].Succeeded)
}

func TestCLI_StatusRejectsForeignVocabulary(t *testing.T) {
	_, url := setupCLI(t)
	_, err := runCLI(t, "", "status", "--api-url", url, "--name", "TLS 1.0 enabled", "--set", "Work in Progress")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid for internal")
}

func TestCLI_SelectionRejectsUnknownStatus(t *testing.T) {
	b, url := setupCLI(t)
	for _, args := range [][]string{
		{"status", "--status", "resolvd", "--set", "Fixed", "--all"},
		{"status", "--status", "Work in Progress", "--set", "Fixed", "--all"},
		{"retest", "--status", "bogus", "--all"},
	} {
		_, err := runCLI(t, "", append(args, "--api-url", url)...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "unknown status", args)
		assert.Contains(t, err.Error(), "want one of Open, In Progress", args)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Zero(t, b.fetches, "selection is validated before fetching")
	assert.Empty(t, b.updates)
	assert.Empty(t, b.retested)
}

func TestCLI_FindingsStatusFilterIsExact(t *testing.T) {
	_, url := setupCLI(t)
	_, err := runCLI(t, "", "findings", "--api-url", url, "--json", "--status", "opne")
	require.Error(t, err)

	out, err := runCLI(t, "", "findings", "--api-url", url, "--json", "--status", "fixed")
	require.NoError(t, err)
	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	require.Len(t, arr, 1)
	assert.Equal(t, "Directory listing", arr[0]["name"])
}

func TestCLI_StatusDryRun(t *testing.T) {
	b, url := setupCLI(t)
	out, err := runCLI(t, "", "status", "--api-url", url, "--name", "TLS 1.0 enabled", "--set-assignee", "carol", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would update 1 findings (assignee=carol)")
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.updates)
}

func TestCLI_RetestContinuesPastFailure(t *testing.T) {
	b, url := setupCLI(t)
	b.failOn = "OpenSSH user enumeration"

	out, err := runCLI(t, "", "retest", "--api-url", url, "--host", "10.0.0.5", "--all", "--json")
	var ee exitError
	require.True(t, errors.As(err, &ee), "a failed item exits 1")

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, false, results[0]["success"])
	assert.Equal(t, true, results[1]["success"])

	b.mu.Lock()
	assert.Equal(t, []string{"OpenSSH user enumeration", "TLS 1.0 enabled"}, b.retested, "sequential, input order")
	b.mu.Unlock()
}

func TestCLI_ExportCSV(t *testing.T) {
	_, url := setupCLI(t)
	out, err := runCLI(t, "", "export", "--api-url", url, "--format", "csv", "-o", "reports", "--owner", "web")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 findings")

	entries, err := os.ReadDir("reports")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join("reports", entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Directory listing")
	assert.NotContains(t, string(data), "OpenSSH")
}

func TestCLI_ExportNothing(t *testing.T) {
	_, url := setupCLI(t)
	_, err := runCLI(t, "", "export", "--api-url", url, "--host", "nowhere")
	require.Error(t, err)
}

func TestCLI_LoginSavesTokenAndLogout(t *testing.T) {
	b, url := setupCLI(t)
	out, err := runCLI(t, "hunter2\n", "login", "--api-url", url, "-u", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in")

	store, err := session.Open("")
	require.NoError(t, err)
	tok, err := store.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "tok-alice", tok.Value)
	assert.Equal(t, url, tok.APIURL)

	// the saved API URL is used when none is configured
	_, err = runCLI(t, "", "findings", "--json")
	require.NoError(t, err)
	b.mu.Lock()
	assert.Equal(t, "Bearer tok-alice", b.auth)
	b.mu.Unlock()

	_, err = runCLI(t, "", "logout")
	require.NoError(t, err)
	tok, err = store.LoadToken()
	require.NoError(t, err)
	assert.Empty(t, tok.Value)
}

func TestCLI_LoginBadPassword(t *testing.T) {
	_, url := setupCLI(t)
	_, err := runCLI(t, "nope\n", "login", "--api-url", url, "-u", "alice")
	require.Error(t, err)
}

func TestCLI_Notes(t *testing.T) {
	setupCLI(t)
	_, err := runCLI(t, "", "notes", "set", "TLS 1.0 enabled", "10.0.0.5", "waiting", "on", "vendor")
	require.NoError(t, err)

	out, err := runCLI(t, "", "notes", "get", "TLS 1.0 enabled", "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "waiting on vendor", strings.TrimSpace(out))

	out, err = runCLI(t, "", "notes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "TLS 1.0 enabled on 10.0.0.5")

	_, err = runCLI(t, "", "notes", "rm", "TLS 1.0 enabled", "10.0.0.5")
	require.NoError(t, err)
	_, err = runCLI(t, "", "notes", "get", "TLS 1.0 enabled", "10.0.0.5")
	assert.Error(t, err)
}

func TestCLI_HistoryEmpty(t *testing.T) {
	setupCLI(t)
	out, err := runCLI(t, "", "history", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestCLI_ConfigInitAndLayering(t *testing.T) {
	_, url := setupCLI(t)
	_, err := runCLI(t, "", "config", "init")
	require.NoError(t, err)
	_, err = runCLI(t, "", "config", "init")
	require.Error(t, err, "refuses to overwrite")

	require.NoError(t, os.WriteFile(".vulntrack.yml", []byte("api_url: "+url+"\nsource: cloudflare\nrisky_top: 7\nsla:\n  critical: 3\n"), 0644))
	t.Setenv("VULNTRACK_SOURCE", "internal")

	out, err := runCLI(t, "", "config", "show", "--json")
	require.NoError(t, err)
	var e effective
	require.NoError(t, json.Unmarshal([]byte(out), &e))
	assert.Equal(t, url, e.APIURL)
	assert.Equal(t, "internal", e.Source, "env beats the local file")
	assert.Equal(t, 7, e.RiskyTop)
	assert.Equal(t, 3, e.SLA["critical"])
	assert.Equal(t, 7, e.SLA["high"], "defaults fill the rest")

	out, err = runCLI(t, "", "config", "show", "--json", "--source", "cloudflare")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &e))
	assert.Equal(t, "cloudflare", e.Source, "flag beats env")
}

func TestCLI_Completion(t *testing.T) {
	setupCLI(t)
	out, err := runCLI(t, "", "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "vulntrack")
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vt.log")
	l, err := newLogger(false, path)
	require.NoError(t, err)
	l.Info("hello")
	_ = l.Sync()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	b, _ := io.ReadAll(f)
	assert.Contains(t, string(b), `"msg":"hello"`)
}

func TestRun_FailedCommandStillFlushesLog(t *testing.T) {
	b, url := setupCLI(t)
	b.failOn = "OpenSSH user enumeration"
	logPath := filepath.Join(t.TempDir(), "vt.log")

	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"retest", "--api-url", url, "--host", "10.0.0.5", "--all", "--log-file", logPath})
	assert.Equal(t, 1, run(), "a failed retest exits 1")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"retest failed"`)

	resetFlags(rootCmd)
	rootCmd.SetArgs([]string{"groups", "nonsense", "--api-url", url})
	assert.Equal(t, 2, run())
	assert.Contains(t, errOut.String(), "error:")
}

func TestCLI_CIInit(t *testing.T) {
	setupCLI(t)
	out, err := runCLI(t, "", "ci", "init", "--provider", "github", "--fail-on", "critical")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	b, err := os.ReadFile(filepath.Join(".github", "workflows", "vulntrack.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "--fail-on critical")

	_, err = runCLI(t, "", "ci", "init", "--provider", "jenkins")
	assert.Error(t, err)
}
