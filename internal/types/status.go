package types

import "strings"

// Status is a workflow state. The internal scanner and the Cloudflare feed
// use different vocabularies; no equivalence between them is assumed.
type Status string

const (
	StatusOpen          Status = "Open"
	StatusInProgress    Status = "In Progress"
	StatusTriaged       Status = "Triaged"
	StatusFixed         Status = "Fixed"
	StatusResolved      Status = "Resolved"
	StatusClosed        Status = "Closed"
	StatusAcceptedRisk  Status = "Accepted Risk"
	StatusWIP           Status = "Work in Progress"
	StatusFalsePositive Status = "False Positive"
)

var internalStatuses = []Status{
	StatusOpen, StatusInProgress, StatusTriaged, StatusFixed, StatusResolved, StatusClosed, StatusAcceptedRisk, StatusFalsePositive,
}

var cloudflareStatuses = []Status{
	StatusOpen, StatusWIP, StatusResolved, StatusFixed, StatusClosed, StatusAcceptedRisk, StatusFalsePositive,
}

// Statuses returns the status vocabulary of a source.
func Statuses(src Source) []Status {
	if src == SourceCloudflare {
		return append([]Status(nil), cloudflareStatuses...)
	}
	return append([]Status(nil), internalStatuses...)
}

// LookupStatus matches raw case-insensitively, with runs of whitespace
// collapsed, against the vocabulary of src.
func LookupStatus(src Source, raw string) (Status, bool) {
	want := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if want == "" {
		return "", false
	}
	for _, s := range Statuses(src) {
		if strings.ToLower(string(s)) == want {
			return s, true
		}
	}
	return "", false
}

// ParseStatus is LookupStatus for backend records. Unrecognized values
// fall back to StatusOpen.
func ParseStatus(src Source, raw string) Status {
	if s, ok := LookupStatus(src, raw); ok {
		return s
	}
	return StatusOpen
}

// IsOpen reports whether the status counts toward a group's open findings.
func (s Status) IsOpen() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusTriaged:
		return true
	}
	return false
}

// IsFixed reports whether the status counts as fixed/closed.
func (s Status) IsFixed() bool {
	switch s {
	case StatusFixed, StatusResolved, StatusClosed:
		return true
	}
	return false
}
