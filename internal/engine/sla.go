package engine

import (
	"sort"

	"github.com/vulntrack/vulntrack/internal/types"
)

// SLAClass is the SLA standing of a single finding.
type SLAClass string

const (
	SLAOnTrack  SLAClass = "on-track"
	SLAAtRisk   SLAClass = "at-risk"
	SLABreached SLAClass = "breached"
)

// SLAThresholds maps a severity to its maximum allowed days overdue.
type SLAThresholds map[types.Severity]int

// DefaultSLA returns the stock thresholds in days.
func DefaultSLA() SLAThresholds {
	return SLAThresholds{
		types.SevCritical: 1,
		types.SevHigh:     7,
		types.SevMedium:   30,
		types.SevLow:      90,
		types.SevInfo:     180,
	}
}

// Merge returns a copy of t with the entries of o layered on top.
func (t SLAThresholds) Merge(o SLAThresholds) SLAThresholds {
	out := make(SLAThresholds, len(t)+len(o))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// ClassifySLA grades a finding. Severities without a threshold are on
// track.
func ClassifySLA(f types.Finding, t SLAThresholds) SLAClass {
	th, ok := t[f.Severity]
	if !ok {
		return SLAOnTrack
	}
	d := f.DaysOverdue
	switch {
	case d > th:
		return SLABreached
	case d > 0 && float64(d) >= 0.8*float64(th):
		return SLAAtRisk
	default:
		return SLAOnTrack
	}
}

// SLAEntry is one classified finding.
type SLAEntry struct {
	Finding   types.Finding `json:"finding"`
	Class     SLAClass      `json:"class"`
	Threshold int           `json:"threshold"`
}

// AssigneeSLA tallies SLA classes for one assignee.
type AssigneeSLA struct {
	Assignee string `json:"assignee"`
	Breached int    `json:"breached"`
	AtRisk   int    `json:"at_risk"`
	OnTrack  int    `json:"on_track"`
}

// SLAReport is the SLA tracker view model.
type SLAReport struct {
	Entries    []SLAEntry    `json:"entries"`
	Breached   int           `json:"breached"`
	AtRisk     int           `json:"at_risk"`
	OnTrack    int           `json:"on_track"`
	ByAssignee []AssigneeSLA `json:"by_assignee"`
}

// BuildSLAReport classifies every finding and tallies per assignee.
func BuildSLAReport(findings []types.Finding, t SLAThresholds) SLAReport {
	var r SLAReport
	index := make(map[string]int)
	for _, f := range findings {
		class := ClassifySLA(f, t)
		r.Entries = append(r.Entries, SLAEntry{Finding: f, Class: class, Threshold: t[f.Severity]})

		who := orUnassigned(f.Assignee)
		i, ok := index[who]
		if !ok {
			i = len(r.ByAssignee)
			index[who] = i
			r.ByAssignee = append(r.ByAssignee, AssigneeSLA{Assignee: who})
		}
		switch class {
		case SLABreached:
			r.Breached++
			r.ByAssignee[i].Breached++
		case SLAAtRisk:
			r.AtRisk++
			r.ByAssignee[i].AtRisk++
		default:
			r.OnTrack++
			r.ByAssignee[i].OnTrack++
		}
	}
	return r
}

// TopBreachers returns up to n assignees with at least one breach, ordered
// by breach count descending.
func (r SLAReport) TopBreachers(n int) []AssigneeSLA {
	var out []AssigneeSLA
	for _, a := range r.ByAssignee {
		if a.Breached > 0 {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Breached > out[j].Breached })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Filter returns the entries of one class.
func (r SLAReport) Filter(class SLAClass) []SLAEntry {
	var out []SLAEntry
	for _, e := range r.Entries {
		if e.Class == class {
			out = append(out, e)
		}
	}
	return out
}
