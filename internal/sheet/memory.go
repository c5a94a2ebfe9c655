package sheet

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. It mirrors the Sheets API's habit of
// dropping trailing empty cells so callers see the same shapes in tests and
// in local development.
type MemoryStore struct {
	mu     sync.Mutex
	sheets map[string][][]string
	writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sheets: make(map[string][][]string)}
}

// Seed replaces the contents of a sheet.
func (m *MemoryStore) Seed(name string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[name] = copyRows(rows)
}

// Rows returns a copy of the raw sheet contents.
func (m *MemoryStore) Rows(name string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.sheets[name])
}

// Writes counts append and update calls.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemoryStore) ReadRange(ctx context.Context, rangeSpec string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref, err := ParseRange(rangeSpec)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]string
	for _, row := range m.sheets[ref.Sheet] {
		var cells []string
		for c := ref.StartCol; c <= ref.EndCol && c < len(row); c++ {
			cells = append(cells, row[c])
		}
		out = append(out, trimRight(cells))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (m *MemoryStore) AppendRow(ctx context.Context, rangeSpec string, row []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ref, err := ParseRange(rangeSpec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	padded := make([]string, ref.StartCol, ref.StartCol+len(row))
	padded = append(padded, row...)
	m.sheets[ref.Sheet] = append(m.sheets[ref.Sheet], padded)
	m.writes++
	return nil
}

func (m *MemoryStore) UpdateCells(ctx context.Context, updates []CellUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	refs := make([]Ref, len(updates))
	for i, u := range updates {
		ref, err := ParseRange(u.Range)
		if err != nil {
			return err
		}
		if ref.Row == 0 {
			return fmt.Errorf("update range %q is not a single cell", u.Range)
		}
		refs[i] = ref
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, ref := range refs {
		rows := m.sheets[ref.Sheet]
		for len(rows) < ref.Row {
			rows = append(rows, nil)
		}
		row := rows[ref.Row-1]
		for len(row) <= ref.StartCol {
			row = append(row, "")
		}
		row[ref.StartCol] = updates[i].Value
		rows[ref.Row-1] = row
		m.sheets[ref.Sheet] = rows
	}
	m.writes++
	return nil
}

func trimRight(cells []string) []string {
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
