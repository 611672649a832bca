package report

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/vulntrack/vulntrack/internal/client"
	"github.com/vulntrack/vulntrack/internal/engine"
	"github.com/vulntrack/vulntrack/internal/types"
)

func sample() []types.Finding {
	return []types.Finding{
		{Source: types.SourceInternal, Name: "OpenSSH CVE-2023-38408", Host: "h1", Port: "22", Severity: types.SevCritical, Status: types.StatusOpen, Assignee: "alice", DaysOverdue: 3},
		{Source: types.SourceInternal, Name: "TLS 1.0 enabled", Host: "h1", Severity: types.SevLow, Status: types.StatusFixed, FirstSeen: "2024-01-10"},
	}
}

func TestPrintFindings_NoFindings(t *testing.T) {
	var buf bytes.Buffer
	PrintFindings(&buf, nil, PrintOptions{NoColor: true})
	if !strings.Contains(buf.String(), "No findings match") {
		t.Fatalf("expected friendly no-findings message; got: %q", buf.String())
	}
}

func TestPrintFindings_WithFindings(t *testing.T) {
	var buf bytes.Buffer
	PrintFindings(&buf, sample(), PrintOptions{NoColor: true})
	out := buf.String()
	if !strings.Contains(out, "SEVERITY") {
		t.Fatalf("expected table header with SEVERITY; got: %q", out)
	}
	if !strings.Contains(out, "h1:22") {
		t.Fatalf("expected host:port column; got: %q", out)
	}
	if !strings.Contains(out, "Findings: 2 (critical: 1, high: 0, medium: 0, low: 1, info: 0) open: 1 fixed: 1 overdue: 1") {
		t.Fatalf("expected summary footer; got: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("NoColor output contains escape codes: %q", out)
	}
}

func TestPrintFindings_Limit(t *testing.T) {
	var buf bytes.Buffer
	PrintFindings(&buf, sample(), PrintOptions{NoColor: true, Limit: 1})
	if !strings.Contains(buf.String(), "1 more not shown") {
		t.Fatalf("expected truncation notice; got: %q", buf.String())
	}
}

func TestPrintGroups(t *testing.T) {
	var buf bytes.Buffer
	PrintGroups(&buf, "HOST", engine.HostGroups(sample()), PrintOptions{NoColor: true, Workload: engine.DefaultWorkload()})
	out := buf.String()
	for _, want := range []string{"h1", "50%", "busy"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in group table; got: %q", want, out)
		}
	}
}

func TestPrintSLA(t *testing.T) {
	var buf bytes.Buffer
	r := engine.BuildSLAReport(sample(), engine.DefaultSLA())
	PrintSLA(&buf, r, 5, PrintOptions{NoColor: true})
	out := buf.String()
	if !strings.Contains(out, "SLA: breached 1  at-risk 0  on-track 1") {
		t.Fatalf("expected SLA totals; got: %q", out)
	}
	if !strings.Contains(out, "Top breaching assignees") || !strings.Contains(out, "alice") {
		t.Fatalf("expected top breachers; got: %q", out)
	}
}

func TestPrintRetestResults(t *testing.T) {
	var buf bytes.Buffer
	results := []client.RetestResult{
		{Finding: sample()[0], Success: true, Status: "Fixed"},
		{Finding: sample()[1], Err: errors.New("boom"), Error: "boom"},
	}
	PrintRetestResults(&buf, results, PrintOptions{NoColor: true})
	out := buf.String()
	if !strings.Contains(out, "Retested 2: 1 succeeded, 1 failed") {
		t.Fatalf("expected tally; got: %q", out)
	}
	if !strings.Contains(out, "boom") {
		t.Fatalf("expected error column; got: %q", out)
	}
}

func TestPrintTrend(t *testing.T) {
	var buf bytes.Buffer
	PrintTrend(&buf, engine.WeeklyTrend(sample()))
	if !strings.Contains(buf.String(), "Jan 8 - Jan 14") {
		t.Fatalf("expected week label; got: %q", buf.String())
	}

	buf.Reset()
	PrintTrend(&buf, nil)
	if !strings.Contains(buf.String(), "No dated findings") {
		t.Fatalf("expected empty message; got: %q", buf.String())
	}
}

func TestShouldFail(t *testing.T) {
	fs := sample()
	if !ShouldFail(fs, "critical") {
		t.Fatal("open critical should fail at critical")
	}
	if ShouldFail(fs[1:], "low") {
		t.Fatal("fixed findings never fail")
	}
	if !ShouldFail(fs, "nonsense") {
		t.Fatal("unknown level defaults to high")
	}
}

func TestBaseline(t *testing.T) {
	path := t.TempDir() + "/baseline.json"
	fs := sample()
	if err := SaveBaseline(path, fs[:1]); err != nil {
		t.Fatal(err)
	}
	base, err := LoadBaseline(path)
	if err != nil {
		t.Fatal(err)
	}
	fresh := FilterNewFindings(fs, base)
	if len(fresh) != 1 || fresh[0].Name != fs[1].Name {
		t.Fatalf("expected only the second finding to be new, got %+v", fresh)
	}
}

func TestBaseline_Gone(t *testing.T) {
	fs := sample()
	base := NewBaseline(fs)
	if gone := base.Gone(fs); len(gone) != 0 {
		t.Fatalf("nothing should be gone, got %+v", gone)
	}
	gone := base.Gone(fs[:1])
	if len(gone) != 1 || gone[0].Name != "TLS 1.0 enabled" {
		t.Fatalf("expected the fixed TLS finding to be gone, got %+v", gone)
	}
}

func TestLoadBaseline_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadBaseline(dir + "/missing.json"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	bad := dir + "/bad.json"
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadBaseline(bad); err == nil {
		t.Fatal("expected parse error")
	}
	future := dir + "/future.json"
	if err := os.WriteFile(future, []byte(`{"version": 99, "entries": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadBaseline(future); err == nil {
		t.Fatal("expected version error")
	}
}
