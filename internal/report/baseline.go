package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/vulntrack/vulntrack/internal/types"
)

const baselineVersion = 1

// BaselineEntry records what a finding looked like when it was accepted.
type BaselineEntry struct {
	Source   types.Source   `json:"source"`
	Name     string         `json:"name"`
	Host     string         `json:"host"`
	Severity types.Severity `json:"severity"`
}

// Baseline is a set of accepted findings keyed by Finding.ID. Findings in
// the baseline are hidden from `findings --baseline`.
type Baseline struct {
	Version int                      `json:"version"`
	Created time.Time                `json:"created"`
	Entries map[string]BaselineEntry `json:"entries"`
}

// NewBaseline snapshots findings.
func NewBaseline(findings []types.Finding) Baseline {
	b := Baseline{Version: baselineVersion, Created: time.Now().UTC(), Entries: make(map[string]BaselineEntry, len(findings))}
	for _, f := range findings {
		b.Entries[f.ID()] = BaselineEntry{Source: f.Source, Name: f.Name, Host: f.Host, Severity: f.Severity}
	}
	return b
}

// Has reports whether f was accepted into the baseline.
func (b Baseline) Has(f types.Finding) bool {
	_, ok := b.Entries[f.ID()]
	return ok
}

// Gone lists baseline entries that no longer appear in findings, sorted by
// host then name. Those are usually fixed or decommissioned.
func (b Baseline) Gone(findings []types.Finding) []BaselineEntry {
	seen := make(map[string]struct{}, len(findings))
	for _, f := range findings {
		seen[f.ID()] = struct{}{}
	}
	var out []BaselineEntry
	for id, e := range b.Entries {
		if _, ok := seen[id]; !ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Host != out[j].Host {
			return out[i].Host < out[j].Host
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// LoadBaseline reads a baseline file. A missing file is returned as an
// error wrapping os.ErrNotExist together with an empty baseline.
func LoadBaseline(path string) (Baseline, error) {
	b := Baseline{Entries: map[string]BaselineEntry{}}
	data, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return Baseline{Entries: map[string]BaselineEntry{}}, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	if b.Version > baselineVersion {
		return b, fmt.Errorf("baseline %s has version %d; this build reads up to %d", path, b.Version, baselineVersion)
	}
	if b.Entries == nil {
		b.Entries = map[string]BaselineEntry{}
	}
	return b, nil
}

// SaveBaseline writes findings as a new baseline at path.
func SaveBaseline(path string, findings []types.Finding) error {
	buf, err := json.MarshalIndent(NewBaseline(findings), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), 0o644)
}

// FilterNewFindings keeps findings absent from base.
func FilterNewFindings(findings []types.Finding, base Baseline) []types.Finding {
	out := []types.Finding{}
	for _, f := range findings {
		if !base.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// ShouldFail reports whether any open finding is at or above failOn.
// An unrecognized level defaults to high.
func ShouldFail(findings []types.Finding, failOn string) bool {
	th := types.ParseSeverity(failOn).Rank()
	if th == 0 {
		th = types.SevHigh.Rank()
	}
	for _, f := range findings {
		if f.Status.IsOpen() && f.Severity.Rank() >= th {
			return true
		}
	}
	return false
}
