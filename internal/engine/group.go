package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/vulntrack/vulntrack/internal/types"
)

// KeyFunc extracts the partition key of a finding.
type KeyFunc func(types.Finding) string

// ByHost keys findings by host (or domain).
func ByHost(f types.Finding) string { return f.Host }

// ByAssignee keys findings by assignee, or Unassigned.
func ByAssignee(f types.Finding) string { return orUnassigned(f.Assignee) }

// ByOwner keys findings by owner, or Unassigned.
func ByOwner(f types.Finding) string { return orUnassigned(f.Owner) }

// Counts is the per-bucket tally shared by groups and summaries.
type Counts struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Unknown  int `json:"unknown"`
	Open     int `json:"open"`
	Fixed    int `json:"fixed"`
	Overdue  int `json:"overdue"`
}

func (c *Counts) add(f types.Finding) {
	c.Total++
	switch strings.ToLower(string(f.Severity)) {
	case "critical":
		c.Critical++
	case "high":
		c.High++
	case "medium":
		c.Medium++
	case "low":
		c.Low++
	case "info":
		c.Info++
	default:
		c.Unknown++
	}
	if f.Status.IsOpen() {
		c.Open++
	}
	if f.Status.IsFixed() {
		c.Fixed++
	}
	if f.DaysOverdue > 0 {
		c.Overdue++
	}
}

// FixRate is round(fixed/total*100), 0 for an empty tally.
func (c Counts) FixRate() int { return percent(c.Fixed, c.Total) }

// Group is a set of findings sharing a key plus derived aggregates.
type Group struct {
	Key      string          `json:"key"`
	Findings []types.Finding `json:"findings"`
	Counts
}

// Priority weights severities for host ordering.
func (g Group) Priority() int {
	return g.Critical*1000 + g.High*100 + g.Medium*10 + g.Low
}

// RiskScore of the group; see RiskScore.
func (g Group) RiskScore() int { return RiskScore(g.Critical, g.High, g.Open) }

// CompletionRate of the group; see CompletionRate.
func (g Group) CompletionRate() int { return CompletionRate(g.Fixed, g.Total) }

// GroupBy partitions findings by key. Empty keys land in the Unassigned
// group. Groups come back in first-seen key order; use SortHostGroups or
// SortOwnerGroups for view ordering.
func GroupBy(findings []types.Finding, key KeyFunc) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, f := range findings {
		k := orUnassigned(key(f))
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].Findings = append(groups[i].Findings, f)
		groups[i].add(f)
	}
	return groups
}

// SortHostGroups orders by severity priority, then raw count, descending.
func SortHostGroups(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		pi, pj := groups[i].Priority(), groups[j].Priority()
		if pi != pj {
			return pi > pj
		}
		return groups[i].Total > groups[j].Total
	})
}

// OwnerSort selects the ordering of owner/assignee views.
type OwnerSort string

const (
	SortTotal      OwnerSort = "total"
	SortOverdue    OwnerSort = "overdue"
	SortCompletion OwnerSort = "completion"
	SortRisk       OwnerSort = "risk"
)

// ParseOwnerSort falls back to SortTotal.
func ParseOwnerSort(s string) OwnerSort {
	switch OwnerSort(strings.ToLower(strings.TrimSpace(s))) {
	case SortOverdue:
		return SortOverdue
	case SortCompletion, "fixrate", "fix-rate":
		return SortCompletion
	case SortRisk:
		return SortRisk
	default:
		return SortTotal
	}
}

// SortOwnerGroups orders owner/assignee groups, descending by the chosen
// metric. Ties keep their previous order.
func SortOwnerGroups(groups []Group, by OwnerSort) {
	metric := func(g Group) int { return g.Total }
	switch by {
	case SortOverdue:
		metric = func(g Group) int { return g.Overdue }
	case SortCompletion:
		metric = func(g Group) int { return g.CompletionRate() }
	case SortRisk:
		metric = func(g Group) int { return g.RiskScore() }
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return metric(groups[i]) > metric(groups[j])
	})
}

// HostGroups is GroupBy(ByHost) in host-view order.
func HostGroups(findings []types.Finding) []Group {
	g := GroupBy(findings, ByHost)
	SortHostGroups(g)
	return g
}

// OwnerGroups groups by owner in the requested order.
func OwnerGroups(findings []types.Finding, by OwnerSort) []Group {
	g := GroupBy(findings, ByOwner)
	SortOwnerGroups(g, by)
	return g
}

// AssigneeGroups groups by assignee in the requested order.
func AssigneeGroups(findings []types.Finding, by OwnerSort) []Group {
	g := GroupBy(findings, ByAssignee)
	SortOwnerGroups(g, by)
	return g
}

func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(part) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
