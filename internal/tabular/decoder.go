package tabular

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// RawRow is one decoded line: the header names in source order plus the
// field values keyed by header name.
type RawRow struct {
	Columns []string
	Fields  map[string]string
}

// Get returns the value for a header name, matched case-insensitively.
// Missing fields come back as the empty string.
func (r RawRow) Get(name string) string {
	if value, ok := r.Fields[name]; ok {
		return value
	}
	for column, value := range r.Fields {
		if strings.EqualFold(column, name) {
			return value
		}
	}
	return ""
}

// First returns the first non-empty value among the given header
// names, consulted in order. Used for synonym lists where sources name
// the same logical field differently.
func (r RawRow) First(names ...string) string {
	for _, name := range names {
		if value := r.Get(name); value != "" {
			return value
		}
	}
	return ""
}

// Decode parses delimited text into rows. The first line defines field
// names for all subsequent rows. Quoted fields may contain the
// delimiter; a doubled quote inside a quoted field is a literal quote.
// The decoder is line-oriented, so a quoted field cannot span lines.
// Rows whose field count does not match the header are dropped.
func Decode(text string) []RawRow {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil
	}

	header := splitFields(lines[0])
	if len(header) == 0 {
		return nil
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}

	rows := make([]RawRow, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitFields(line)
		if len(fields) != len(header) {
			// Field-count mismatch is a data quality issue, not an error.
			continue
		}
		rows = append(rows, buildRow(header, fields))
	}
	return rows
}

// DecodeFile dispatches on file extension: .csv through Decode with BOM
// stripping, .xlsx through excelize with the same header rules.
func DecodeFile(fileName string, payload []byte) ([]RawRow, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".txt":
		payload = bytes.TrimPrefix(payload, byteOrderMark)
		return Decode(string(payload)), nil
	case ".xlsx":
		return decodeExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func decodeExcel(payload []byte) ([]RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	if len(cells) == 0 {
		return nil, nil
	}

	header := cells[0]
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}

	rows := make([]RawRow, 0, len(cells)-1)
	for _, fields := range cells[1:] {
		if len(fields) != len(header) {
			continue
		}
		rows = append(rows, buildRow(header, fields))
	}
	return rows, nil
}

func buildRow(header, fields []string) RawRow {
	columns := append([]string(nil), header...)
	values := make(map[string]string, len(header))
	for i, name := range header {
		values[name] = strings.TrimSpace(fields[i])
	}
	return RawRow{Columns: columns, Fields: values}
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// splitFields splits one line on commas, honoring quotes. A doubled
// quote inside a quoted field emits a literal quote.
func splitFields(line string) []string {
	var fields []string
	var field strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				field.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteByte(ch)
		}
	}
	fields = append(fields, field.String())
	return fields
}
