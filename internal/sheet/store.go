package sheet

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Store performs the three physical operations the reconciliation engine
// needs against a tabular backing store.
type Store interface {
	// ReadRange returns the rows of the range. An empty or missing sheet
	// yields no rows and no error.
	ReadRange(ctx context.Context, rangeSpec string) ([][]string, error)
	// AppendRow adds row after all existing data in the range.
	AppendRow(ctx context.Context, rangeSpec string, row []string) error
	// UpdateCells overwrites exactly the addressed cells.
	UpdateCells(ctx context.Context, updates []CellUpdate) error
}

// CellUpdate addresses a single cell in A1 notation.
type CellUpdate struct {
	Range string
	Value string
}

// Ref is a parsed A1 reference. Row is 0 for whole-column ranges.
type Ref struct {
	Sheet    string
	StartCol int
	EndCol   int
	Row      int
}

// ParseRange parses the subset of A1 notation this package produces:
// 'Sheet'!A:O, Sheet!A:O and 'Sheet'!F10.
func ParseRange(spec string) (Ref, error) {
	i := strings.LastIndex(spec, "!")
	if i < 0 {
		return Ref{}, fmt.Errorf("range %q has no sheet name", spec)
	}
	name, cells := spec[:i], spec[i+1:]
	if len(name) >= 2 && name[0] == '\'' && name[len(name)-1] == '\'' {
		name = strings.ReplaceAll(name[1:len(name)-1], "''", "'")
	}
	ref := Ref{Sheet: name}

	if from, to, ok := strings.Cut(cells, ":"); ok {
		start, err := columnIndex(from)
		if err != nil {
			return Ref{}, err
		}
		end, err := columnIndex(to)
		if err != nil {
			return Ref{}, err
		}
		ref.StartCol, ref.EndCol = start, end
		return ref, nil
	}

	split := strings.IndexFunc(cells, func(r rune) bool { return r >= '0' && r <= '9' })
	if split <= 0 {
		return Ref{}, fmt.Errorf("invalid cell reference %q", cells)
	}
	col, err := columnIndex(cells[:split])
	if err != nil {
		return Ref{}, err
	}
	row, err := strconv.Atoi(cells[split:])
	if err != nil || row < 1 {
		return Ref{}, fmt.Errorf("invalid row in %q", cells)
	}
	ref.StartCol, ref.EndCol, ref.Row = col, col, row
	return ref, nil
}

func columnIndex(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("empty column reference")
	}
	n := 0
	for _, r := range letters {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column reference %q", letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}
