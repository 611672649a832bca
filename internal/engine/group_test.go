package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulntrack/vulntrack/internal/types"
)

func TestGroupBy_HostScenario(t *testing.T) {
	in := []types.Finding{
		{Name: "a", Host: "h1", Severity: types.SevCritical, Status: types.StatusOpen, DaysOverdue: 2},
		{Name: "b", Host: "h1", Severity: types.SevLow, Status: types.StatusFixed, DaysOverdue: 0},
	}
	groups := HostGroups(in)
	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, "h1", g.Key)
	assert.Equal(t, 2, g.Total)
	assert.Equal(t, 1, g.Critical)
	assert.Equal(t, 1, g.Low)
	assert.Equal(t, 1, g.Open)
	assert.Equal(t, 1, g.Fixed)
	assert.Equal(t, 1, g.Overdue)
	assert.Equal(t, 50, g.FixRate())
}

func TestGroupBy_PartitionsExactly(t *testing.T) {
	in := fixture()
	for _, key := range []KeyFunc{ByHost, ByAssignee, ByOwner} {
		filtered := Filter(in, Criteria{Statuses: []types.Status{types.StatusOpen, types.StatusTriaged, types.StatusInProgress}})
		total := 0
		for _, g := range GroupBy(filtered, key) {
			total += g.Total
			assert.Len(t, g.Findings, g.Total)
		}
		assert.Equal(t, len(filtered), total)
	}
}

func TestGroupBy_UnassignedSentinel(t *testing.T) {
	in := []types.Finding{
		{Name: "a", Host: "h", Assignee: ""},
		{Name: "b", Host: "h", Assignee: "   "},
		{Name: "c", Host: "h", Assignee: "carol"},
	}
	groups := GroupBy(in, ByAssignee)
	require.Len(t, groups, 2)
	assert.Equal(t, Unassigned, groups[0].Key)
	assert.Equal(t, 2, groups[0].Total)

	owners := GroupBy(in, ByOwner)
	require.Len(t, owners, 1)
	assert.Equal(t, Unassigned, owners[0].Key)
}

func TestGroupBy_CaseInsensitiveBuckets(t *testing.T) {
	in := []types.Finding{
		{Name: "a", Host: "h", Severity: "CRITICAL"},
		{Name: "b", Host: "h", Severity: "info"},
		{Name: "c", Host: "h", Severity: "weird"},
	}
	g := GroupBy(in, ByHost)[0]
	assert.Equal(t, 1, g.Critical)
	assert.Equal(t, 1, g.Info)
	assert.Equal(t, 1, g.Unknown)
}

func TestSortHostGroups_PriorityThenCount(t *testing.T) {
	in := []types.Finding{
		{Name: "1", Host: "lows", Severity: types.SevLow},
		{Name: "2", Host: "lows", Severity: types.SevLow},
		{Name: "3", Host: "lows", Severity: types.SevLow},
		{Name: "4", Host: "crit", Severity: types.SevCritical},
		{Name: "5", Host: "highs", Severity: types.SevHigh},
		{Name: "6", Host: "info-many", Severity: types.SevInfo},
		{Name: "7", Host: "info-many", Severity: types.SevInfo},
		{Name: "8", Host: "info-one", Severity: types.SevInfo},
	}
	groups := HostGroups(in)
	var keys []string
	for _, g := range groups {
		keys = append(keys, g.Key)
	}
	assert.Equal(t, []string{"crit", "highs", "lows", "info-many", "info-one"}, keys)
}

func TestSortOwnerGroups_Modes(t *testing.T) {
	in := []types.Finding{
		{Name: "1", Host: "h", Owner: "big", Status: types.StatusOpen},
		{Name: "2", Host: "h", Owner: "big", Status: types.StatusOpen},
		{Name: "3", Host: "h", Owner: "big", Status: types.StatusOpen},
		{Name: "4", Host: "h", Owner: "late", Status: types.StatusOpen, DaysOverdue: 3},
		{Name: "5", Host: "h", Owner: "late", Status: types.StatusOpen, DaysOverdue: 8},
		{Name: "6", Host: "h", Owner: "done", Status: types.StatusClosed},
	}
	keysOf := func(gs []Group) []string {
		var out []string
		for _, g := range gs {
			out = append(out, g.Key)
		}
		return out
	}
	assert.Equal(t, []string{"big", "late", "done"}, keysOf(OwnerGroups(in, SortTotal)))
	assert.Equal(t, []string{"late", "big", "done"}, keysOf(OwnerGroups(in, SortOverdue)))
	assert.Equal(t, []string{"done", "big", "late"}, keysOf(OwnerGroups(in, SortCompletion)))
	assert.Equal(t, SortCompletion, ParseOwnerSort("fix-rate"))
	assert.Equal(t, SortTotal, ParseOwnerSort("nonsense"))
}

func TestFixRateBounds(t *testing.T) {
	assert.Equal(t, 0, Group{}.FixRate())
	assert.Equal(t, 0, CompletionRate(0, 0))
	assert.Equal(t, 33, CompletionRate(1, 3))
	assert.Equal(t, 67, CompletionRate(2, 3))
	assert.Equal(t, 100, CompletionRate(5, 5))
	for total := 0; total < 12; total++ {
		for fixed := 0; fixed <= total; fixed++ {
			r := CompletionRate(fixed, total)
			assert.True(t, r >= 0 && r <= 100)
		}
	}
}
