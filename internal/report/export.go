package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vulntrack/vulntrack/internal/types"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat accepts csv, xlsx (or excel) and json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv, xlsx or json)", s)
}

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv"
	}
}

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "Findings"

// Headers returns human-readable column names. Cloudflare-only exports use
// that feed's own vocabulary.
func Headers(findings []types.Finding) []string {
	if allCloudflare(findings) {
		return []string{"Severity", "Status", "Vulnerability Name", "Domain", "Port", "Assignee", "Owner",
			"First Seen", "Last Seen", "Aging Days", "Comments", "Description"}
	}
	return []string{"Severity", "Status", "Name", "Host", "Port", "Assignee", "Owner",
		"First Seen", "Last Seen", "Days Overdue", "Notes", "Description"}
}

func allCloudflare(findings []types.Finding) bool {
	if len(findings) == 0 {
		return false
	}
	for _, f := range findings {
		if f.Source != types.SourceCloudflare {
			return false
		}
	}
	return true
}

func record(f types.Finding) []string {
	return []string{
		string(f.Severity), string(f.Status), f.Name, f.Host, f.Port, f.Assignee, f.Owner,
		f.FirstSeen, f.LastSeen, strconv.Itoa(f.DaysOverdue), f.Notes, f.Description,
	}
}

// WriteCSV writes a header row and one row per finding.
func WriteCSV(w io.Writer, findings []types.Finding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers(findings)); err != nil {
		return err
	}
	for _, f := range findings {
		if err := cw.Write(record(f)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes findings as an indented JSON array.
func WriteJSON(w io.Writer, findings []types.Finding) error {
	if findings == nil {
		findings = []types.Finding{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(findings)
}

// WriteXLSX writes a single-sheet workbook with a bold, frozen header row.
// Days overdue is written as a number so spreadsheets can sort on it.
func WriteXLSX(w io.Writer, findings []types.Finding) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	headers := Headers(findings)
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &row); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return err
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	for i, fd := range findings {
		cells := record(fd)
		vals := make([]any, len(cells))
		for j, c := range cells {
			vals[j] = c
		}
		vals[9] = fd.DaysOverdue
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &vals); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetName, "C", "D", 40); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

// FileName is vulntrack-export-<timestamp>.<ext>.
func FileName(format Format, now time.Time) string {
	return fmt.Sprintf("vulntrack-export-%s.%s", now.Format("20060102-150405"), format)
}

// Export writes findings to a new file in dir and returns its path.
func Export(dir string, format Format, findings []types.Finding) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(format, time.Now()))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	switch format {
	case FormatXLSX:
		err = WriteXLSX(out, findings)
	case FormatJSON:
		err = WriteJSON(out, findings)
	default:
		err = WriteCSV(out, findings)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("export %s: %w", format, err)
	}
	return path, nil
}
