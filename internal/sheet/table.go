// Package sheet describes spreadsheet tables and maps between their physical
// grid of strings and logical records. Column positions always come from the
// header row, so writing one field never rewrites its neighbours.
package sheet

import (
	"fmt"
	"strings"
)

// Table declares one sheet of the spreadsheet.
type Table struct {
	Name string
	// Columns is the declared column order. It is written as the header when
	// the sheet is empty and used directly when Positional is set.
	Columns []string
	// Key lists the columns that identify a record.
	Key []string
	// Immutable columns are never part of an update.
	Immutable []string
	// Stamped columns receive the creation timestamp.
	Stamped []string
	// Touch is refreshed with the current timestamp on every update.
	Touch string
	// Positional tables have free-form header text; Columns gives the
	// mapping instead of the header row.
	Positional bool
	// HeaderText, when set, is the header written to an empty sheet in place
	// of Columns. It must have one entry per column.
	HeaderText []string
}

// HeaderRow is the first row written to an empty sheet.
func (t Table) HeaderRow() []string {
	if len(t.HeaderText) == len(t.Columns) {
		return t.HeaderText
	}
	return t.Columns
}

// Range is the A1 range covering every declared column, e.g. '할일'!A:O.
func (t Table) Range() string {
	return fmt.Sprintf("%s!A:%s", QuoteName(t.Name), ColumnLetter(len(t.Columns)-1))
}

// Header resolves the column mapping for rows read from this table. The
// second return value reports whether rows[0] is a header row.
func (t Table) Header(rows [][]string) (Header, bool) {
	if len(rows) == 0 {
		return NewHeader(t.Columns), false
	}
	if t.Positional {
		return NewHeader(t.Columns), true
	}
	return NewHeader(rows[0]), true
}

func (t Table) IsImmutable(column string) bool {
	for _, k := range t.Key {
		if k == column {
			return true
		}
	}
	for _, c := range t.Immutable {
		if c == column {
			return true
		}
	}
	return false
}

// Header maps column names to zero-based positions.
type Header struct {
	names []string
	index map[string]int
}

func NewHeader(names []string) Header {
	h := Header{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		n = strings.TrimSpace(n)
		h.names[i] = n
		if _, dup := h.index[n]; !dup && n != "" {
			h.index[n] = i
		}
	}
	return h
}

// Index returns the position of the first column with the given name.
func (h Header) Index(name string) (int, bool) {
	i, ok := h.index[name]
	return i, ok
}

func (h Header) Names() []string {
	return append([]string(nil), h.names...)
}

func (h Header) Has(name string) bool {
	_, ok := h.index[name]
	return ok
}

// Record maps a physical row to field values. Missing cells become "".
func (h Header) Record(rowNumber int, row []string) Record {
	fields := make(map[string]string, len(h.index))
	for name, i := range h.index {
		if i < len(row) {
			fields[name] = row[i]
		} else {
			fields[name] = ""
		}
	}
	return Record{Row: rowNumber, Fields: fields}
}

// Row lays fields out in header order. Fields without a column are dropped.
func (h Header) Row(fields map[string]string) []string {
	row := make([]string, len(h.names))
	for name, v := range fields {
		if i, ok := h.index[name]; ok {
			row[i] = v
		}
	}
	return row
}

// Matches reports whether row carries exactly the given key values.
func (h Header) Matches(row []string, key map[string]string) bool {
	for name, want := range key {
		i, ok := h.index[name]
		if !ok {
			return false
		}
		got := ""
		if i < len(row) {
			got = row[i]
		}
		if got != want {
			return false
		}
	}
	return true
}

// Record is one logical row. Row is the 1-based physical row number, resolved
// by scanning on every request.
type Record struct {
	Row    int
	Fields map[string]string
}

func (r Record) Get(name string) string {
	return r.Fields[name]
}

// RowNumber converts an index into the data rows (header excluded) to the
// physical 1-based row number.
func RowNumber(dataIndex int) int {
	return dataIndex + 2
}

// ColumnLetter renders a zero-based column index as A, B, ..., Z, AA, AB, ...
func ColumnLetter(i int) string {
	if i < 0 {
		return ""
	}
	var b []byte
	for n := i + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// QuoteName quotes a sheet name for use in an A1 range.
func QuoteName(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// CellAddress returns the A1 address of a single cell.
func CellAddress(sheetName string, column, row int) string {
	return fmt.Sprintf("%s!%s%d", QuoteName(sheetName), ColumnLetter(column), row)
}
