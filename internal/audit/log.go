package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/vulntrack/vulntrack/internal/client"
	"github.com/vulntrack/vulntrack/internal/types"
)

// Kind is the mutation an OperationRecord describes.
type Kind string

const (
	KindUpdate Kind = "update"
	KindRetest Kind = "retest"
)

// OperationRecord is one bulk update or retest.
type OperationRecord struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	Kind      Kind         `json:"kind"`
	Source    types.Source `json:"source"`
	Items     int          `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	// Change summarizes an update, e.g. "status=Fixed".
	Change string      `json:"change,omitempty"`
	Errors []ItemError `json:"errors,omitempty"`
}

type ItemError struct {
	Name  string `json:"name"`
	Host  string `json:"host"`
	Error string `json:"error"`
}

// AuditLog is an append-only JSONL file of bulk operations.
type AuditLog struct {
	logPath string
}

// NewAuditLog stores the log as operations.jsonl in dir.
func NewAuditLog(dir string) *AuditLog {
	return &AuditLog{logPath: filepath.Join(dir, "operations.jsonl")}
}

// Path is the JSONL file backing the log.
func (a *AuditLog) Path() string { return a.logPath }

// readAll returns records in file order. Lines that do not decode are
// skipped.
func (a *AuditLog) readAll() ([]OperationRecord, error) {
	f, err := os.Open(a.logPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var records []OperationRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r OperationRecord
		if json.Unmarshal(line, &r) != nil {
			continue
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return records, fmt.Errorf("read audit log: %w", err)
	}
	return records, nil
}

// LoadHistory returns records newest first.
func (a *AuditLog) LoadHistory() ([]OperationRecord, error) {
	records, err := a.readAll()
	if err != nil {
		return nil, err
	}
	slices.Reverse(records)
	return records, nil
}

// Append adds one record, filling in ID and Timestamp when unset.
func (a *AuditLog) Append(record OperationRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(a.logPath), 0o700); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}

	// records carry finding names and hosts
	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write audit record: %w", err)
	}
	return f.Close()
}

// DeleteRecord removes the record at index in LoadHistory order.
func (a *AuditLog) DeleteRecord(index int) error {
	records, err := a.readAll()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(records) {
		return fmt.Errorf("invalid index: %d", index)
	}
	// LoadHistory is newest first; file order is oldest first.
	pos := len(records) - 1 - index
	return a.rewrite(slices.Delete(records, pos, pos+1))
}

func (a *AuditLog) rewrite(records []OperationRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode audit record: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(a.logPath), ".operations-*.jsonl")
	if err != nil {
		return fmt.Errorf("rewrite audit log: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("rewrite audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), a.logPath)
}

// UpdateRecord describes a bulk update. A non-nil err marks every item
// failed since the backend call is all-or-nothing from the client's view.
func UpdateRecord(src types.Source, updates []types.Update, change string, err error) OperationRecord {
	r := OperationRecord{Kind: KindUpdate, Source: src, Items: len(updates), Change: change}
	if err == nil {
		r.Succeeded = len(updates)
		return r
	}
	r.Failed = len(updates)
	for _, u := range updates {
		r.Errors = append(r.Errors, ItemError{Name: u.Name, Host: u.Host, Error: err.Error()})
	}
	return r
}

// RetestRecord describes a bulk retest outcome.
func RetestRecord(src types.Source, results []client.RetestResult) OperationRecord {
	r := OperationRecord{Kind: KindRetest, Source: src, Items: len(results)}
	r.Succeeded, r.Failed = client.Tally(results)
	for _, res := range results {
		if res.Success {
			continue
		}
		msg := res.Error
		if msg == "" {
			msg = "backend reported failure"
		}
		r.Errors = append(r.Errors, ItemError{Name: res.Finding.Name, Host: res.Finding.Host, Error: msg})
	}
	return r
}
