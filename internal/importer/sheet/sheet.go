// Package sheet reads uploaded CSV files into rows regardless of charset or
// separator, and holds the helpers the format parsers share.
package sheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	enc "github.com/MrJamesThe3rd/splitledger/internal/encoding"
	"github.com/MrJamesThe3rd/splitledger/internal/expense"
)

type Sheet struct {
	Rows    [][]string
	Charset string
}

// Skipped is a data row that was not imported, with a human readable reason.
type Skipped struct {
	Line   int    `json:"line"` // 1-based record number, blank lines not counted
	Reason string `json:"reason"`
}

func Read(r io.Reader) (*Sheet, error) {
	d, err := enc.Detect(r)
	if err != nil {
		return nil, fmt.Errorf("detect encoding: %w", err)
	}

	reader := csv.NewReader(d)
	reader.Comma = d.Comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	return &Sheet{Rows: rows, Charset: d.Charset}, nil
}

// Columns maps normalised column names to their index in a header row.
type Columns map[string]int

// Normalize lowercases and trims a header cell so lookups ignore cosmetics.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func HeaderColumns(row []string) Columns {
	cols := make(Columns, len(row))

	for i, cell := range row {
		if name := Normalize(cell); name != "" {
			if _, dup := cols[name]; !dup {
				cols[name] = i
			}
		}
	}

	return cols
}

// Has reports whether every name is present.
func (c Columns) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := c[n]; !ok {
			return false
		}
	}

	return true
}

// Index returns the column index of name, or -1.
func (c Columns) Index(name string) int {
	if i, ok := c[name]; ok {
		return i
	}

	return -1
}

// FindHeader returns the index of the first row for which match holds, or -1.
func FindHeader(rows [][]string, match func(Columns) bool) int {
	for i, row := range rows {
		if match(HeaderColumns(row)) {
			return i
		}
	}

	return -1
}

// Cell safely gets a trimmed cell value from a row.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}

// Blank reports whether every cell of row is empty.
func Blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}

	return true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02-01-2006",
	"Jan 2, 2006",
}

// ParseDate accepts the date layouts seen in common exports, in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Result is what a format parser extracted from a file.
type Result struct {
	Expenses []expense.CreateParams
	Skipped  []Skipped
	// Members lists every user id that appears in the file, sorted.
	Members []string
	Charset string
}

// AddMembers records the given users, keeping Members sorted and unique.
func (r *Result) AddMembers(users ...string) {
	for _, u := range users {
		if u == "" {
			continue
		}

		if i, found := slices.BinarySearch(r.Members, u); !found {
			r.Members = slices.Insert(r.Members, i, u)
		}
	}
}

func (r *Result) Skip(line int, format string, args ...any) {
	r.Skipped = append(r.Skipped, Skipped{Line: line, Reason: fmt.Sprintf(format, args...)})
}
