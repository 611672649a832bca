package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/vulntrack/vulntrack/internal/types"
)

// fieldKeys lists, per canonical field, the raw keys each source may use.
// The first non-empty value wins.
type fieldKeys struct {
	name, host, port, severity, status, assignee, owner []string
	firstSeen, lastSeen, overdue, notes, description    []string
}

var internalKeys = fieldKeys{
	name:        []string{"Name", "Title", "name", "title"},
	host:        []string{"Host", "host", "IP", "Hostname"},
	port:        []string{"Port", "port"},
	severity:    []string{"Severity", "severity", "Risk"},
	status:      []string{"Status", "status"},
	assignee:    []string{"Assignee", "Assigned To", "assignee"},
	owner:       []string{"Owner", "Business Owner", "owner"},
	firstSeen:   []string{"First Seen", "First Observed", "first_seen"},
	lastSeen:    []string{"Last Seen", "Last Observed", "last_seen"},
	overdue:     []string{"Days Overdue", "Aging Days", "days_overdue"},
	notes:       []string{"Notes", "Comments", "notes"},
	description: []string{"Description", "Synopsis", "description"},
}

var cloudflareKeys = fieldKeys{
	name:        []string{"vulnerability_name", "name", "title"},
	host:        []string{"domain", "host"},
	port:        []string{"port"},
	severity:    []string{"severity"},
	status:      []string{"status"},
	assignee:    []string{"assignee", "assigned_to"},
	owner:       []string{"owner", "business_owner"},
	firstSeen:   []string{"first_seen", "first_observed", "created_at"},
	lastSeen:    []string{"last_seen", "last_observed", "updated_at"},
	overdue:     []string{"aging_days", "days_overdue"},
	notes:       []string{"comments", "notes"},
	description: []string{"description"},
}

// Options tune normalization.
type Options struct {
	// ExcludeHosts are doublestar patterns; matching hosts are dropped.
	ExcludeHosts []string
}

// Result is the outcome of normalizing a batch of raw records.
type Result struct {
	Findings  []types.Finding
	Discarded int // missing name or host
	Excluded  int // matched ExcludeHosts
}

// Normalize converts raw backend records into canonical findings.
// It never fails on individual records.
func Normalize(src types.Source, raw []map[string]any, opts Options) Result {
	keys := internalKeys
	if src == types.SourceCloudflare {
		keys = cloudflareKeys
	}
	res := Result{Findings: make([]types.Finding, 0, len(raw))}
	for _, rec := range raw {
		f := types.Finding{
			Source:      src,
			Name:        str(rec, keys.name),
			Host:        str(rec, keys.host),
			Port:        str(rec, keys.port),
			Severity:    types.ParseSeverity(str(rec, keys.severity)),
			Status:      types.ParseStatus(src, str(rec, keys.status)),
			Assignee:    str(rec, keys.assignee),
			Owner:       str(rec, keys.owner),
			FirstSeen:   str(rec, keys.firstSeen),
			LastSeen:    str(rec, keys.lastSeen),
			DaysOverdue: integer(rec, keys.overdue),
			Notes:       str(rec, keys.notes),
			Description: str(rec, keys.description),
		}
		if f.Name == "" || f.Host == "" {
			res.Discarded++
			continue
		}
		if hostExcluded(f.Host, opts.ExcludeHosts) {
			res.Excluded++
			continue
		}
		res.Findings = append(res.Findings, f)
	}
	return res
}

// Decode reads a JSON array of records, or an object wrapping one under
// "vulnerabilities", "findings" or "data", and normalizes it.
func Decode(src types.Source, r io.Reader, opts Options) (Result, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return Result{}, err
	}
	body = bytes.TrimSpace(body)
	var raw []map[string]any
	if len(body) > 0 && body[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := unmarshal(body, &wrapped); err != nil {
			return Result{}, fmt.Errorf("decode findings: %w", err)
		}
		for _, k := range []string{"vulnerabilities", "findings", "data"} {
			if inner, ok := wrapped[k]; ok {
				body = inner
				break
			}
		}
	}
	if len(body) == 0 || string(body) == "null" {
		return Normalize(src, nil, opts), nil
	}
	if err := unmarshal(body, &raw); err != nil {
		return Result{}, fmt.Errorf("decode findings: %w", err)
	}
	return Normalize(src, raw, opts), nil
}

func unmarshal(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

func hostExcluded(host string, patterns []string) bool {
	h := strings.ToLower(host)
	for _, p := range patterns {
		if ok, err := doublestar.Match(strings.ToLower(p), h); err == nil && ok {
			return true
		}
	}
	return false
}

func str(rec map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case json.Number:
			s = t.String()
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" && !strings.EqualFold(s, "nan") {
			return s
		}
	}
	return ""
}

// integer parses a day count; anything unparseable is 0.
func integer(rec map[string]any, keys []string) int {
	s := str(rec, keys)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	// out-of-range floats are treated as unparseable
	if fl, err := strconv.ParseFloat(s, 64); err == nil && math.Abs(fl) <= math.MaxInt32 {
		return int(fl)
	}
	return 0
}
