package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulntrack/vulntrack/internal/types"
)

func TestRiskScore_Monotone(t *testing.T) {
	assert.Equal(t, 0, RiskScore(0, 0, 0))
	assert.Equal(t, 10*2+5*3+4, RiskScore(2, 3, 4))
	for c := 0; c < 5; c++ {
		for h := 0; h < 5; h++ {
			for o := 0; o < 5; o++ {
				base := RiskScore(c, h, o)
				assert.GreaterOrEqual(t, RiskScore(c+1, h, o), base)
				assert.GreaterOrEqual(t, RiskScore(c, h+1, o), base)
				assert.GreaterOrEqual(t, RiskScore(c, h, o+1), base)
			}
		}
	}
}

func TestTopRisky(t *testing.T) {
	groups := []Group{
		{Key: "low", Counts: Counts{Open: 1}},
		{Key: "crit", Counts: Counts{Critical: 2}},
		{Key: "high", Counts: Counts{High: 1, Open: 1}},
		{Key: "none"},
	}
	top := TopRisky(groups, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "crit", top[0].Key)
	assert.Equal(t, "high", top[1].Key)
	assert.Equal(t, "low", top[2].Key)
	assert.Equal(t, "low", groups[0].Key, "input order untouched")
}

func TestClassifySLA(t *testing.T) {
	th := DefaultSLA()
	tests := []struct {
		sev  types.Severity
		days int
		want SLAClass
	}{
		{types.SevCritical, 2, SLABreached},
		{types.SevCritical, 1, SLAAtRisk},
		{types.SevCritical, 0, SLAOnTrack},
		{types.SevHigh, 8, SLABreached},
		{types.SevHigh, 7, SLAAtRisk},
		{types.SevHigh, 6, SLAAtRisk},
		{types.SevHigh, 5, SLAOnTrack},
		{types.SevMedium, 24, SLAAtRisk},
		{types.SevMedium, 23, SLAOnTrack},
		{types.SevLow, -3, SLAOnTrack},
		{types.SevUnknown, 999, SLAOnTrack},
	}
	for _, tt := range tests {
		got := ClassifySLA(types.Finding{Severity: tt.sev, DaysOverdue: tt.days}, th)
		assert.Equal(t, tt.want, got, "%s/%d", tt.sev, tt.days)
	}
}

func TestClassifySLA_CustomThreshold(t *testing.T) {
	f := types.Finding{Severity: types.SevCritical, DaysOverdue: 2}
	assert.Equal(t, SLABreached, ClassifySLA(f, SLAThresholds{types.SevCritical: 1}))
	assert.Equal(t, SLAOnTrack, ClassifySLA(f, DefaultSLA().Merge(SLAThresholds{types.SevCritical: 10})))
}

func TestBuildSLAReport_ExclusiveAndTopBreachers(t *testing.T) {
	var in []types.Finding
	add := func(who string, sev types.Severity, days, n int) {
		for i := 0; i < n; i++ {
			in = append(in, types.Finding{Name: who, Host: "h", Assignee: who, Severity: sev, DaysOverdue: days})
		}
	}
	add("alice", types.SevCritical, 5, 3)
	add("bob", types.SevHigh, 30, 1)
	add("", types.SevHigh, 30, 2)
	add("carol", types.SevLow, 1, 4)
	add("dave", types.SevMedium, 25, 1)

	r := BuildSLAReport(in, DefaultSLA())
	assert.Len(t, r.Entries, len(in))
	assert.Equal(t, len(in), r.Breached+r.AtRisk+r.OnTrack)
	assert.Equal(t, 6, r.Breached)
	assert.Equal(t, 1, r.AtRisk)
	assert.Len(t, r.Filter(SLAAtRisk), 1)

	top := r.TopBreachers(5)
	require.Len(t, top, 3)
	assert.Equal(t, "alice", top[0].Assignee)
	assert.Equal(t, Unassigned, top[1].Assignee)
	assert.Equal(t, "bob", top[2].Assignee)
	assert.Len(t, r.TopBreachers(1), 1)
}

func TestWorkloadHealth(t *testing.T) {
	th := DefaultWorkload()
	assert.Equal(t, HealthOK, WorkloadHealth(Group{Counts: Counts{Open: 3}}, th))
	assert.Equal(t, HealthBusy, WorkloadHealth(Group{Counts: Counts{Open: 3, Overdue: 1}}, th))
	assert.Equal(t, HealthBusy, WorkloadHealth(Group{Counts: Counts{Open: 10}}, th))
	assert.Equal(t, HealthOverloaded, WorkloadHealth(Group{Counts: Counts{Open: 2, Overdue: 5}}, th))
	assert.Equal(t, HealthOverloaded, WorkloadHealth(Group{Counts: Counts{Open: 30}}, th))
	assert.Equal(t, HealthOK, WorkloadHealth(Group{Counts: Counts{Open: 99, Overdue: 99}}, WorkloadThresholds{}))
}

func TestSummarize(t *testing.T) {
	s := Summarize(fixture())
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Critical)
	assert.Equal(t, 3, s.Open)
	assert.Equal(t, 1, s.Fixed)
	assert.Equal(t, 25, s.FixRate)
	assert.Equal(t, 0, Summarize(nil).FixRate)
}

func TestWeeklyTrend(t *testing.T) {
	buckets := WeeklyTrend(fixture())
	require.Len(t, buckets, 3)
	// 2024-01-03 is a Wednesday; its week starts Monday 2024-01-01.
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), buckets[0].WeekStart)
	assert.Equal(t, 1, buckets[0].Counts[types.SevCritical])
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), buckets[1].WeekStart)
	total := 0
	for _, b := range buckets {
		total += b.Total
	}
	assert.Equal(t, 3, total, "unparseable first_seen is skipped")
}

func TestApplyUpdates(t *testing.T) {
	in := fixture()
	fixed := types.StatusFixed
	note := "patched in 9.3"
	out := ApplyUpdates(in, []types.Update{{Name: in[0].Name, Host: in[0].Host, Status: &fixed, Notes: &note}})
	assert.Equal(t, types.StatusFixed, out[0].Status)
	assert.Equal(t, note, out[0].Notes)
	assert.Equal(t, "alice", out[0].Assignee)
	assert.Equal(t, types.StatusOpen, in[0].Status, "input not mutated")
	assert.Equal(t, in[1:], out[1:])
}
