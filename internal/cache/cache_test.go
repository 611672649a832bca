package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vulntrack/vulntrack/internal/types"
)

func TestLoadSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	// initial load should error
	if _, err := LoadResults(dir, types.SourceInternal); err == nil {
		t.Fatalf("expected error before first save")
	}
	fs := []types.Finding{{Source: types.SourceInternal, Name: "n", Host: "h", Severity: types.SevHigh, Status: types.StatusOpen}}
	if err := SaveResults(dir, types.SourceInternal, "http://api", fs); err != nil {
		t.Fatalf("save: %v", err)
	}
	// file should exist
	if _, err := os.Stat(filepath.Join(dir, "last_internal.json")); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
	got, err := LoadResults(dir, types.SourceInternal)
	if err != nil {
		t.Fatalf("load after save: %v", err)
	}
	if got.Count != 1 || got.Findings[0].Name != "n" || got.APIURL != "http://api" || got.Timestamp.IsZero() {
		t.Fatalf("unexpected results: %+v", got)
	}
	// sources are cached independently
	if _, err := LoadResults(dir, types.SourceCloudflare); err == nil {
		t.Fatalf("cloudflare cache should not exist")
	}
}

func TestCompare(t *testing.T) {
	a := types.Finding{Name: "a", Host: "h", Status: types.StatusOpen}
	b := types.Finding{Name: "b", Host: "h", Status: types.StatusOpen}
	c := types.Finding{Name: "c", Host: "h", Status: types.StatusOpen}
	bFixed := b
	bFixed.Status = types.StatusFixed

	d := Compare([]types.Finding{a, b}, []types.Finding{bFixed, c})
	if len(d.Added) != 1 || d.Added[0].Name != "c" {
		t.Fatalf("added = %+v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0].Name != "a" {
		t.Fatalf("removed = %+v", d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0].Status != types.StatusFixed {
		t.Fatalf("changed = %+v", d.Changed)
	}
	if !Compare([]types.Finding{a}, []types.Finding{a}).Empty() {
		t.Fatal("identical sets should compare empty")
	}
}

func TestLoadResults_SourceMismatch(t *testing.T) {
	dir := t.TempDir()
	doc := `{"source": "cloudflare", "findings": [{"name": "x", "host": "d"}]}`
	if err := os.WriteFile(filepath.Join(dir, "last_internal.json"), []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadResults(dir, types.SourceInternal); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestSaveResults_NilAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()
	if err := SaveResults(dir, types.SourceCloudflare, "", nil); err != nil {
		t.Fatal(err)
	}
	got, err := LoadResults(dir, types.SourceCloudflare)
	if err != nil {
		t.Fatal(err)
	}
	if got.Findings == nil || got.Count != 0 {
		t.Fatalf("expected empty non-nil findings, got %+v", got)
	}
	if got.Age() < 0 || got.Age() > time.Minute {
		t.Fatalf("unexpected age %v", got.Age())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the results file, got %d entries", len(entries))
	}
}
