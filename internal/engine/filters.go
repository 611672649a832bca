package engine

import (
	"strings"
	"time"

	"github.com/vulntrack/vulntrack/internal/types"
)

// Unassigned is the group key and filter value for a missing assignee/owner.
const Unassigned = "Unassigned"

// DateField selects which timestamp the date axis inspects.
type DateField string

const (
	DateFirstSeen DateField = "first_seen"
	DateLastSeen  DateField = "last_seen"
)

// DateRange is an inclusive interval. A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
	Field DateField
}

// Criteria holds the optional filter axes. An empty list or nil pointer
// leaves that axis unconstrained.
type Criteria struct {
	Severities []types.Severity
	Statuses   []types.Status
	Assignees  []string
	Owners     []string
	Hosts      []string
	Date       *DateRange
	Search     string
}

// IsEmpty reports whether no axis is constrained.
func (c Criteria) IsEmpty() bool {
	return len(c.Severities) == 0 && len(c.Statuses) == 0 && len(c.Assignees) == 0 &&
		len(c.Owners) == 0 && len(c.Hosts) == 0 && c.Date == nil && strings.TrimSpace(c.Search) == ""
}

// Filter returns the findings that satisfy every constrained axis of c.
// The input slice is not modified.
func Filter(findings []types.Finding, c Criteria) []types.Finding {
	out := make([]types.Finding, 0, len(findings))
	m := newMatcher(c)
	for _, f := range findings {
		if m.match(f) {
			out = append(out, f)
		}
	}
	return out
}

// Match reports whether a single finding passes c.
func Match(f types.Finding, c Criteria) bool {
	return newMatcher(c).match(f)
}

type matcher struct {
	c          Criteria
	severities map[types.Severity]bool
	statuses   map[types.Status]bool
	assignees  map[string]bool
	owners     map[string]bool
	hosts      map[string]bool
	query      string
}

func newMatcher(c Criteria) matcher {
	m := matcher{c: c, query: strings.ToLower(strings.TrimSpace(c.Search))}
	if len(c.Severities) > 0 {
		m.severities = make(map[types.Severity]bool, len(c.Severities))
		for _, s := range c.Severities {
			m.severities[s] = true
		}
	}
	if len(c.Statuses) > 0 {
		m.statuses = make(map[types.Status]bool, len(c.Statuses))
		for _, s := range c.Statuses {
			m.statuses[s] = true
		}
	}
	m.assignees = stringSet(c.Assignees)
	m.owners = stringSet(c.Owners)
	m.hosts = stringSet(c.Hosts)
	return m
}

func stringSet(in []string) map[string]bool {
	if len(in) == 0 {
		return nil
	}
	set := make(map[string]bool, len(in))
	for _, s := range in {
		set[s] = true
	}
	return set
}

func (m matcher) match(f types.Finding) bool {
	if m.severities != nil && !m.severities[f.Severity] {
		return false
	}
	if m.statuses != nil && !m.statuses[f.Status] {
		return false
	}
	if m.assignees != nil && !m.assignees[orUnassigned(f.Assignee)] {
		return false
	}
	if m.owners != nil && !m.owners[orUnassigned(f.Owner)] {
		return false
	}
	if m.hosts != nil && !m.hosts[f.Host] {
		return false
	}
	if m.c.Date != nil && !inRange(f, *m.c.Date) {
		return false
	}
	if m.query != "" && !strings.Contains(searchText(f), m.query) {
		return false
	}
	return true
}

// inRange fails closed: an unparseable timestamp never matches.
func inRange(f types.Finding, r DateRange) bool {
	raw := f.FirstSeen
	if r.Field == DateLastSeen {
		raw = f.LastSeen
	}
	ts, ok := ParseTime(raw)
	if !ok {
		return false
	}
	if !r.Start.IsZero() && ts.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && ts.After(r.End) {
		return false
	}
	return true
}

func searchText(f types.Finding) string {
	return strings.ToLower(strings.Join([]string{
		f.Name, f.Description, f.Host, f.Port, string(f.Severity), string(f.Status), f.Assignee, f.Notes,
	}, " "))
}

func orUnassigned(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unassigned
	}
	return s
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
	"Jan 2, 2006",
	"02 Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseTime parses the timestamp formats seen in both feeds. Values without
// a zone are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
