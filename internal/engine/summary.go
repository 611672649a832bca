package engine

import (
	"sort"
	"time"

	"github.com/vulntrack/vulntrack/internal/types"
)

// Summary is the client-side headline tally. It is computed from whatever
// findings are passed in and is independent of the server /summary
// endpoint, which may apply different filters.
type Summary struct {
	Counts
	FixRate int `json:"fix_rate"`
}

// Summarize tallies findings.
func Summarize(findings []types.Finding) Summary {
	var c Counts
	for _, f := range findings {
		c.add(f)
	}
	return Summary{Counts: c, FixRate: c.FixRate()}
}

// TrendBucket counts findings first seen within one week.
type TrendBucket struct {
	WeekStart time.Time              `json:"week_start"`
	Label     string                 `json:"label"`
	Counts    map[types.Severity]int `json:"counts"`
	Total     int                    `json:"total"`
}

// WeeklyTrend buckets findings by the Monday-based week of their first-seen
// timestamp, oldest first. Findings without a parseable timestamp are
// skipped.
func WeeklyTrend(findings []types.Finding) []TrendBucket {
	byWeek := make(map[time.Time]*TrendBucket)
	for _, f := range findings {
		ts, ok := ParseTime(f.FirstSeen)
		if !ok {
			continue
		}
		start := weekStart(ts)
		b, ok := byWeek[start]
		if !ok {
			b = &TrendBucket{
				WeekStart: start,
				Label:     start.Format("Jan 2") + " - " + start.AddDate(0, 0, 6).Format("Jan 2"),
				Counts:    make(map[types.Severity]int),
			}
			byWeek[start] = b
		}
		b.Counts[f.Severity]++
		b.Total++
	}
	out := make([]TrendBucket, 0, len(byWeek))
	for _, b := range byWeek {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out
}

func weekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// ApplyUpdates returns a new slice in which every finding addressed by an
// update is replaced by its updated copy. The input is not modified.
func ApplyUpdates(findings []types.Finding, updates []types.Update) []types.Finding {
	out := make([]types.Finding, len(findings))
	for i, f := range findings {
		for _, u := range updates {
			if u.Matches(f) {
				f = u.Apply(f)
			}
		}
		out[i] = f
	}
	return out
}

// ApplyUpdate is ApplyUpdates for a single update.
func ApplyUpdate(findings []types.Finding, u types.Update) []types.Finding {
	return ApplyUpdates(findings, []types.Update{u})
}
