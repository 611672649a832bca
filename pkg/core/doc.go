// Package core provides a small, stable facade over vulntrack's internal
// packages for external integrations. It re-exports a narrow API surface so
// other tools can filter, group and grade findings from a stable import path
// without depending on internal implementation packages.
//
// Example:
//
//	fs, err := core.UnmarshalFindings(os.Stdin)
//	if err != nil { /* handle */ }
//	open := core.Filter(fs, core.Criteria{Statuses: []core.Status{core.StatusOpen}})
//	_ = core.MarshalFindings(os.Stdout, open)
package core
