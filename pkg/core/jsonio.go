package core

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vulntrack/vulntrack/internal/ingest"
)

// MarshalFindings writes findings as an indented JSON array. A nil slice
// is written as [] so consumers never see null.
func MarshalFindings(w io.Writer, findings []Finding) error {
	if findings == nil {
		findings = []Finding{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(findings)
}

// UnmarshalFindings reads the canonical form written by MarshalFindings or
// `vulntrack findings --json`.
func UnmarshalFindings(r io.Reader) ([]Finding, error) {
	var fs []Finding
	if err := json.NewDecoder(r).Decode(&fs); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	return fs, nil
}

// DecodeBackend normalizes a raw backend payload of the given source, as
// returned by its vulnerabilities endpoint. Records without a name or host
// are dropped and counted in the second return value.
func DecodeBackend(src Source, r io.Reader) ([]Finding, int, error) {
	res, err := ingest.Decode(src, r, ingest.Options{})
	if err != nil {
		return nil, 0, err
	}
	return res.Findings, res.Discarded, nil
}
