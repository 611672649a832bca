package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vulntrack/vulntrack/internal/types"
)

// Results is the last successful fetch for one source. The dashboard and
// `--cached` read it when the backend is unreachable; `--delta` diffs
// against it.
type Results struct {
	Source    types.Source    `json:"source"`
	APIURL    string          `json:"api_url,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Count     int             `json:"count"`
	Findings  []types.Finding `json:"findings"`
}

// Age is how long ago the results were fetched.
func (r Results) Age() time.Duration {
	if r.Timestamp.IsZero() {
		return 0
	}
	return time.Since(r.Timestamp)
}

// DefaultDir is ~/.vulntrack/cache.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vulntrack", "cache"), nil
}

func resultsFile(dir string, src types.Source) string {
	return filepath.Join(dir, fmt.Sprintf("last_%s.json", src))
}

// SaveResults replaces the cached findings for src. The write goes through
// a temp file so a reader never sees a partial document.
func SaveResults(dir string, src types.Source, apiURL string, findings []types.Finding) error {
	if findings == nil {
		findings = []types.Finding{}
	}
	b, err := json.MarshalIndent(Results{
		Source:    src,
		APIURL:    apiURL,
		Timestamp: time.Now().UTC(),
		Count:     len(findings),
		Findings:  findings,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".last-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), resultsFile(dir, src))
}

// LoadResults reads the cached findings for src. A document whose source
// does not match src is rejected.
func LoadResults(dir string, src types.Source) (Results, error) {
	var r Results
	b, err := os.ReadFile(resultsFile(dir, src))
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return Results{}, fmt.Errorf("parse cached %s findings: %w", src, err)
	}
	if r.Source != "" && r.Source != src {
		return Results{}, fmt.Errorf("cached findings are for %s, not %s", r.Source, src)
	}
	r.Source = src
	r.Count = len(r.Findings)
	return r, nil
}
