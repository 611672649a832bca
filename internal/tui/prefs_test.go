package tui

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPrefs(t *testing.T) {
	prefs := DefaultPrefs()
	if prefs.GroupMode != GroupNone {
		t.Errorf("DefaultPrefs().GroupMode = %q, want %q", prefs.GroupMode, GroupNone)
	}
	if prefs.RawView {
		t.Error("DefaultPrefs().RawView should be false")
	}
}

func TestLoadPrefs_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	prefs := LoadPrefs()
	if prefs != DefaultPrefs() {
		t.Errorf("LoadPrefs() with no file = %+v, want defaults", prefs)
	}
}

func TestSaveAndLoadPrefs(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	want := Prefs{GroupMode: GroupByOwner, Source: "cloudflare", RawView: true}
	if err := SavePrefs(want); err != nil {
		t.Fatalf("SavePrefs() error = %v", err)
	}

	prefsFile := filepath.Join(tmpDir, ".vulntrack", "tui_prefs.json")
	info, err := os.Stat(prefsFile)
	if err != nil {
		t.Fatalf("prefs file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("prefs file mode = %v, want 0600", info.Mode().Perm())
	}

	if got := LoadPrefs(); got != want {
		t.Errorf("LoadPrefs() = %+v, want %+v", got, want)
	}
}

func TestLoadPrefs_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	dir := filepath.Join(tmpDir, ".vulntrack")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tui_prefs.json"), []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}

	if got := LoadPrefs(); got != DefaultPrefs() {
		t.Errorf("LoadPrefs() with invalid JSON = %+v, want defaults", got)
	}
}

func TestLoadPrefs_UnknownGroupMode(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := SavePrefs(Prefs{GroupMode: "detector"}); err != nil {
		t.Fatal(err)
	}
	if got := LoadPrefs().GroupMode; got != GroupNone {
		t.Errorf("unknown group mode loaded as %q, want %q", got, GroupNone)
	}
}

func TestPrefs_OwnerSortRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := savePrefsTo(dir, Prefs{GroupMode: GroupByAssignee, OwnerSort: "overdue"}); err != nil {
		t.Fatal(err)
	}
	got := loadPrefsFrom(dir)
	if got.GroupMode != GroupByAssignee || got.OwnerSort != "overdue" {
		t.Fatalf("loadPrefsFrom() = %+v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %v", entries)
	}

	m := NewModel(dashboardFixture(), Options{Prefs: &got})
	if m.ownerSort != "overdue" || m.groupMode != GroupByAssignee {
		t.Errorf("model did not restore prefs: sort=%q group=%q", m.ownerSort, m.groupMode)
	}
}
