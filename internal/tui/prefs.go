package tui

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/vulntrack/vulntrack/internal/engine"
	"github.com/vulntrack/vulntrack/internal/session"
)

const prefsFile = "tui_prefs.json"

// Prefs is the dashboard state restored on the next start.
type Prefs struct {
	GroupMode string `json:"group_mode"`
	OwnerSort string `json:"owner_sort,omitempty"`
	// Source is the last source viewed; the CLI uses it when --source is unset.
	Source  string `json:"source,omitempty"`
	RawView bool   `json:"raw_view"`
}

func DefaultPrefs() Prefs {
	return Prefs{GroupMode: GroupNone}
}

// sanitize drops values this build does not understand.
func (p Prefs) sanitize() Prefs {
	if !validGroupMode(p.GroupMode) {
		p.GroupMode = GroupNone
	}
	if p.OwnerSort != "" {
		p.OwnerSort = string(engine.ParseOwnerSort(p.OwnerSort))
	}
	return p
}

func prefsDir() (string, error) {
	return session.DefaultDir()
}

// LoadPrefs reads ~/.vulntrack/tui_prefs.json. Any problem yields defaults.
func LoadPrefs() Prefs {
	dir, err := prefsDir()
	if err != nil {
		return DefaultPrefs()
	}
	return loadPrefsFrom(dir)
}

func loadPrefsFrom(dir string) Prefs {
	data, err := os.ReadFile(filepath.Join(dir, prefsFile))
	if err != nil {
		return DefaultPrefs()
	}
	var p Prefs
	if err := json.Unmarshal(data, &p); err != nil {
		return DefaultPrefs()
	}
	return p.sanitize()
}

// SavePrefs replaces the prefs file through a rename so a crash never
// leaves it half written.
func SavePrefs(p Prefs) error {
	dir, err := prefsDir()
	if err != nil {
		return err
	}
	return savePrefsTo(dir, p)
}

func savePrefsTo(dir string, p Prefs) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p.sanitize(), "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, prefsFile+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, prefsFile))
}
