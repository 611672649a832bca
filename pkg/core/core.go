package core

import (
	"github.com/vulntrack/vulntrack/internal/engine"
	"github.com/vulntrack/vulntrack/internal/types"
)

// Re-export selected internal types as a stable public API surface.
// These are type aliases so external consumers can depend on a stable path.
type (
	Finding       = types.Finding
	Severity      = types.Severity
	Status        = types.Status
	Source        = types.Source
	Update        = types.Update
	Criteria      = engine.Criteria
	DateRange     = engine.DateRange
	Group         = engine.Group
	KeyFunc       = engine.KeyFunc
	SLAClass      = engine.SLAClass
	SLAThresholds = engine.SLAThresholds
	Summary       = engine.Summary
)

const (
	SevCritical = types.SevCritical
	SevHigh     = types.SevHigh
	SevMedium   = types.SevMedium
	SevLow      = types.SevLow
	SevInfo     = types.SevInfo

	StatusOpen  = types.StatusOpen
	StatusFixed = types.StatusFixed

	SourceInternal   = types.SourceInternal
	SourceCloudflare = types.SourceCloudflare
)

// Grouping keys.
var (
	ByHost     KeyFunc = engine.ByHost
	ByAssignee KeyFunc = engine.ByAssignee
	ByOwner    KeyFunc = engine.ByOwner
)

// Filter returns the findings matching every constrained axis of c.
func Filter(findings []Finding, c Criteria) []Finding { return engine.Filter(findings, c) }

// GroupBy partitions findings by key with per-group aggregates.
func GroupBy(findings []Finding, key KeyFunc) []Group { return engine.GroupBy(findings, key) }

// ClassifySLA grades one finding against thresholds; nil means the defaults.
func ClassifySLA(f Finding, t SLAThresholds) SLAClass {
	if t == nil {
		t = engine.DefaultSLA()
	}
	return engine.ClassifySLA(f, t)
}

// Summarize tallies severities, statuses and the fix rate.
func Summarize(findings []Finding) Summary { return engine.Summarize(findings) }
