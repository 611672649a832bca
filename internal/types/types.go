package types

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Severity is the normalized risk level of a finding.
type Severity string

const (
	SevCritical Severity = "Critical"
	SevHigh     Severity = "High"
	SevMedium   Severity = "Medium"
	SevLow      Severity = "Low"
	SevInfo     Severity = "Info"
	SevUnknown  Severity = "Unknown"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SevCritical, SevHigh, SevMedium, SevLow, SevInfo, SevUnknown}

// ParseSeverity maps a raw severity case-insensitively. Unrecognized values
// become SevUnknown.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical":
		return SevCritical
	case "high":
		return SevHigh
	case "medium", "moderate":
		return SevMedium
	case "low":
		return SevLow
	case "info", "informational":
		return SevInfo
	default:
		return SevUnknown
	}
}

// Rank returns an integer for ordering (Critical=5, Unknown=0).
func (s Severity) Rank() int {
	switch s {
	case SevCritical:
		return 5
	case SevHigh:
		return 4
	case SevMedium:
		return 3
	case SevLow:
		return 2
	case SevInfo:
		return 1
	default:
		return 0
	}
}

// Bucket is the lower-case bucket name used by aggregate counters.
func (s Severity) Bucket() string {
	return strings.ToLower(string(s))
}

// Source identifies which backend feed a finding came from.
type Source string

const (
	SourceInternal   Source = "internal"
	SourceCloudflare Source = "cloudflare"
)

// ParseSource accepts "internal"/"server" and "cloudflare"/"cf".
func ParseSource(raw string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "internal", "server":
		return SourceInternal, nil
	case "cloudflare", "cf":
		return SourceCloudflare, nil
	default:
		return "", fmt.Errorf("unknown source %q (want internal|cloudflare)", raw)
	}
}

// Finding is one vulnerability record tied to a host or domain. For the
// Cloudflare feed Host holds the domain and Name the vulnerability name.
type Finding struct {
	Source      Source   `json:"source"`
	Name        string   `json:"name"`
	Host        string   `json:"host"`
	Port        string   `json:"port,omitempty"`
	Severity    Severity `json:"severity"`
	Status      Status   `json:"status"`
	Assignee    string   `json:"assignee,omitempty"`
	Owner       string   `json:"owner,omitempty"`
	FirstSeen   string   `json:"first_seen,omitempty"`
	LastSeen    string   `json:"last_seen,omitempty"`
	DaysOverdue int      `json:"days_overdue"`
	Notes       string   `json:"notes,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ID is a stable short identifier derived from source, name and host.
func (f Finding) ID() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(string(f.Source)+"|"+f.Name+"|"+f.Host))
}

// Key is the composite identity used by the backend (name + host).
func (f Finding) Key() string {
	return f.Name + "|" + f.Host
}

// Update is a partial field update addressed by a finding's name and host.
// Nil fields are left untouched.
type Update struct {
	Name     string  `json:"name"`
	Host     string  `json:"host"`
	Status   *Status `json:"status,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	Assignee *string `json:"assignee,omitempty"`
}

// Matches reports whether u addresses f.
func (u Update) Matches(f Finding) bool {
	return u.Name == f.Name && u.Host == f.Host
}

// Apply returns a copy of f with the update's non-nil fields set.
func (u Update) Apply(f Finding) Finding {
	if u.Status != nil {
		f.Status = *u.Status
	}
	if u.Notes != nil {
		f.Notes = *u.Notes
	}
	if u.Assignee != nil {
		f.Assignee = *u.Assignee
	}
	return f
}
