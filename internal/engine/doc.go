// Package engine is the finding aggregation pipeline: it filters findings
// against user criteria, partitions them into host/assignee/owner groups with
// derived counts, and computes ranking metrics (risk score, SLA class,
// completion rate). Every function here is pure and never fails on a
// malformed record. External consumers should use the facade in pkg/core.
package engine
