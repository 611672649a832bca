package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vulntrack/vulntrack/internal/types"
)

func fixture() []types.Finding {
	return []types.Finding{
		{Source: types.SourceInternal, Name: "OpenSSH CVE-2023-38408", Host: "h1", Port: "22", Severity: types.SevCritical, Status: types.StatusOpen, Assignee: "alice", Owner: "infra", FirstSeen: "2024-01-03", DaysOverdue: 2},
		{Source: types.SourceInternal, Name: "TLS 1.0 enabled", Host: "h1", Port: "443", Severity: types.SevLow, Status: types.StatusFixed, Assignee: "bob", FirstSeen: "2024-01-10T08:00:00Z"},
		{Source: types.SourceInternal, Name: "Apache httpd outdated", Host: "h2", Severity: types.SevHigh, Status: types.StatusTriaged, Owner: "web", FirstSeen: "not a date", DaysOverdue: 9, Notes: "waiting on vendor"},
		{Source: types.SourceInternal, Name: "SMB signing disabled", Host: "h3", Severity: types.SevMedium, Status: types.StatusInProgress, Assignee: "alice", FirstSeen: "2024-02-20 10:00:00", Description: "Lateral movement risk"},
	}
}

func names(fs []types.Finding) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func TestFilter_EmptyCriteriaIsIdentity(t *testing.T) {
	in := fixture()
	assert.Equal(t, in, Filter(in, Criteria{}))
	assert.True(t, Criteria{}.IsEmpty())
}

func TestFilter_EmptyInput(t *testing.T) {
	out := Filter(nil, Criteria{Severities: []types.Severity{types.SevHigh}})
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestFilter_SeverityScenario(t *testing.T) {
	in := []types.Finding{
		{Name: "a", Host: "h1", Severity: types.SevCritical, Status: types.StatusOpen, DaysOverdue: 2},
		{Name: "b", Host: "h1", Severity: types.SevLow, Status: types.StatusFixed},
	}
	out := Filter(in, Criteria{Severities: []types.Severity{types.SevCritical}})
	assert.Equal(t, []types.Finding{in[0]}, out)
}

func TestFilter_EachAxis(t *testing.T) {
	in := fixture()
	tests := []struct {
		name string
		c    Criteria
		want []string
	}{
		{"severity set", Criteria{Severities: []types.Severity{types.SevCritical, types.SevHigh}}, []string{in[0].Name, in[2].Name}},
		{"status set", Criteria{Statuses: []types.Status{types.StatusFixed, types.StatusTriaged}}, []string{in[1].Name, in[2].Name}},
		{"assignee set", Criteria{Assignees: []string{"alice"}}, []string{in[0].Name, in[3].Name}},
		{"assignee sentinel", Criteria{Assignees: []string{Unassigned}}, []string{in[2].Name}},
		{"owner set", Criteria{Owners: []string{"web"}}, []string{in[2].Name}},
		{"host set", Criteria{Hosts: []string{"h1"}}, []string{in[0].Name, in[1].Name}},
		{"search description", Criteria{Search: "LATERAL"}, []string{in[3].Name}},
		{"search notes", Criteria{Search: "vendor"}, []string{in[2].Name}},
		{"search port", Criteria{Search: "443"}, []string{in[1].Name}},
		{"search status", Criteria{Search: "in progress"}, []string{in[3].Name}},
		{"combined", Criteria{Hosts: []string{"h1"}, Statuses: []types.Status{types.StatusOpen}}, []string{in[0].Name}},
		{"case sensitive enum", Criteria{Severities: []types.Severity{"critical"}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(Filter(in, tt.c)))
		})
	}
}

func TestFilter_DateRangeInclusiveAndFailClosed(t *testing.T) {
	in := fixture()
	c := Criteria{Date: &DateRange{
		Start: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC),
	}}
	// Both bounds are hit exactly; the unparseable record is excluded.
	assert.Equal(t, []string{in[0].Name, in[1].Name}, names(Filter(in, c)))

	open := Criteria{Date: &DateRange{Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}}
	assert.Equal(t, []string{in[3].Name}, names(Filter(in, open)))

	last := Criteria{Date: &DateRange{Field: DateLastSeen}}
	assert.Empty(t, Filter(in, last), "no finding has last_seen; all fail closed")
}

func TestFilter_SubsetProperty(t *testing.T) {
	in := fixture()
	criteria := []Criteria{
		{Severities: []types.Severity{types.SevLow, types.SevMedium}},
		{Statuses: []types.Status{types.StatusOpen}, Search: "ssh"},
		{Hosts: []string{"h2", "h3"}, Assignees: []string{"alice"}},
	}
	for _, c := range criteria {
		out := Filter(in, c)
		for _, f := range out {
			assert.Contains(t, in, f)
			assert.True(t, Match(f, c))
		}
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	in := fixture()
	snapshot := append([]types.Finding(nil), in...)
	_ = Filter(in, Criteria{Hosts: []string{"h3"}})
	assert.Equal(t, snapshot, in)
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2024-01-02", "2024-01-02T03:04:05Z", "2024-01-02 03:04:05", "01/02/2024", "2024-01-02T03:04:05"} {
		ts, ok := ParseTime(s)
		require.True(t, ok, s)
		assert.Equal(t, 2024, ts.Year(), s)
	}
	_, ok := ParseTime("yesterday")
	assert.False(t, ok)
	_, ok = ParseTime("")
	assert.False(t, ok)
}
