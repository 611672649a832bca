package engine

import "sort"

// RiskScore is critical*10 + high*5 + open. Higher is riskier.
func RiskScore(critical, high, open int) int {
	return critical*10 + high*5 + open
}

// TopRisky returns up to n groups with the highest risk score. The input
// order is left untouched.
func TopRisky(groups []Group, n int) []Group {
	ranked := append([]Group(nil), groups...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RiskScore() > ranked[j].RiskScore()
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// CompletionRate is round(closed/total*100), 0 when total is 0.
func CompletionRate(closed, total int) int {
	return percent(closed, total)
}

// Health is the workload classification of an assignee group.
type Health string

const (
	HealthOK         Health = "healthy"
	HealthBusy       Health = "busy"
	HealthOverloaded Health = "overloaded"
)

// WorkloadThresholds are inclusive lower bounds per level.
type WorkloadThresholds struct {
	BusyOpen          int `yaml:"busy_open" json:"busy_open"`
	OverloadedOpen    int `yaml:"overloaded_open" json:"overloaded_open"`
	BusyOverdue       int `yaml:"busy_overdue" json:"busy_overdue"`
	OverloadedOverdue int `yaml:"overloaded_overdue" json:"overloaded_overdue"`
}

// DefaultWorkload returns the stock thresholds.
func DefaultWorkload() WorkloadThresholds {
	return WorkloadThresholds{BusyOpen: 10, OverloadedOpen: 25, BusyOverdue: 1, OverloadedOverdue: 5}
}

// WorkloadHealth grades a group by its overdue and open counts.
func WorkloadHealth(g Group, th WorkloadThresholds) Health {
	switch {
	case reached(g.Overdue, th.OverloadedOverdue) || reached(g.Open, th.OverloadedOpen):
		return HealthOverloaded
	case reached(g.Overdue, th.BusyOverdue) || reached(g.Open, th.BusyOpen):
		return HealthBusy
	default:
		return HealthOK
	}
}

// reached treats a non-positive threshold as disabled.
func reached(v, th int) bool { return th > 0 && v >= th }
