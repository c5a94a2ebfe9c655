// Package reconcile resolves logical record operations against a sheet.Store.
//
// Records have no index in the backing store. Every operation reads the
// table, scans for the row carrying the logical key and then decides whether
// to append, update or refuse. Row positions are recomputed on each call
// because the sheet may change between requests.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/digitaldrywood/opsboard/internal/apperr"
	"github.com/digitaldrywood/opsboard/internal/lease"
	"github.com/digitaldrywood/opsboard/internal/sheet"
)

// TimestampLayout matches JavaScript's Date.toISOString, which existing rows
// were written with.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrExists marks the conflict raised when CreateIfAbsent finds the key.
var ErrExists = errors.New("record already exists")

// Key is the logical identifier of a record: column name to exact value.
type Key map[string]string

func (k Key) String() string {
	names := make([]string, 0, len(k))
	for n := range k {
		names = append(names, n)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + k[n]
	}
	return strings.Join(parts, ",")
}

type Engine struct {
	store  sheet.Store
	locker lease.Locker
	now    func() time.Time
}

type Option func(*Engine)

func WithLocker(l lease.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(store sheet.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		locker: lease.Nop{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Stamp formats the current time the way timestamps are stored.
func (e *Engine) Stamp() string {
	return e.now().UTC().Format(TimestampLayout)
}

type snapshot struct {
	header    sheet.Header
	hasHeader bool
	rows      [][]string
}

// data returns the rows below the header.
func (s snapshot) data() [][]string {
	if !s.hasHeader {
		return nil
	}
	return s.rows[1:]
}

func (e *Engine) read(ctx context.Context, t sheet.Table) (snapshot, error) {
	rows, err := e.store.ReadRange(ctx, t.Range())
	if err != nil {
		return snapshot{}, fmt.Errorf("read %s: %w", t.Name, err)
	}
	h, hasHeader := t.Header(rows)
	return snapshot{header: h, hasHeader: hasHeader, rows: rows}, nil
}

// List returns every data row as a record, in sheet order.
func (e *Engine) List(ctx context.Context, t sheet.Table) ([]sheet.Record, error) {
	snap, err := e.read(ctx, t)
	if err != nil {
		return nil, err
	}

	data := snap.data()
	records := make([]sheet.Record, 0, len(data))
	for i, row := range data {
		records = append(records, snap.header.Record(sheet.RowNumber(i), row))
	}
	return records, nil
}

// Find returns the first record whose key columns equal key exactly. A missing
// record is reported through the boolean, not as an error.
func (e *Engine) Find(ctx context.Context, t sheet.Table, key Key) (sheet.Record, bool, error) {
	snap, err := e.read(ctx, t)
	if err != nil {
		return sheet.Record{}, false, err
	}
	return find(t, snap, key)
}

func find(t sheet.Table, snap snapshot, key Key) (sheet.Record, bool, error) {
	if !snap.hasHeader {
		return sheet.Record{}, false, nil
	}
	for name := range key {
		if !snap.header.Has(name) {
			return sheet.Record{}, false, apperr.Configuration("sheet %s has no %s column", t.Name, name)
		}
	}
	for i, row := range snap.data() {
		if snap.header.Matches(row, key) {
			return snap.header.Record(sheet.RowNumber(i), row), true, nil
		}
	}
	return sheet.Record{}, false, nil
}

// CreateIfAbsent appends a new record for key unless one already exists. The
// lookup and the append run under a lease on the key. Stamped columns get
// the current time regardless of what fields carries.
func (e *Engine) CreateIfAbsent(ctx context.Context, t sheet.Table, key Key, fields map[string]string) (sheet.Record, error) {
	release, err := e.locker.Acquire(ctx, t.Name+"/"+key.String())
	if err != nil {
		return sheet.Record{}, err
	}
	defer release()

	snap, err := e.read(ctx, t)
	if err != nil {
		return sheet.Record{}, err
	}

	if _, found, err := find(t, snap, key); err != nil {
		return sheet.Record{}, err
	} else if found {
		return sheet.Record{}, &apperr.Error{
			Kind: apperr.KindConflict,
			Msg:  fmt.Sprintf("%s already has a record for %s", t.Name, key),
			Err:  ErrExists,
		}
	}

	values := make(map[string]string, len(fields)+len(key)+len(t.Stamped))
	for k, v := range fields {
		values[k] = v
	}
	for k, v := range key {
		values[k] = v
	}
	stamp := e.Stamp()
	for _, c := range t.Stamped {
		values[c] = stamp
	}

	rowCount := len(snap.rows)
	if !snap.hasHeader {
		if err := e.store.AppendRow(ctx, t.Range(), t.HeaderRow()); err != nil {
			return sheet.Record{}, fmt.Errorf("write %s header: %w", t.Name, err)
		}
		rowCount = 1
	}

	row := snap.header.Row(values)
	if err := e.store.AppendRow(ctx, t.Range(), row); err != nil {
		return sheet.Record{}, fmt.Errorf("append to %s: %w", t.Name, err)
	}
	return snap.header.Record(rowCount+1, row), nil
}

// UpdateIfPresent writes the fields of patch into the record for key. Fields
// not in patch are left untouched; key and immutable columns are dropped from
// the patch; the table's touch column is refreshed.
func (e *Engine) UpdateIfPresent(ctx context.Context, t sheet.Table, key Key, patch map[string]string) (sheet.Record, error) {
	snap, err := e.read(ctx, t)
	if err != nil {
		return sheet.Record{}, err
	}

	rec, found, err := find(t, snap, key)
	if err != nil {
		return sheet.Record{}, err
	}
	if !found {
		return sheet.Record{}, apperr.NotFound("%s has no record for %s", t.Name, key)
	}

	updates, applied := e.cellUpdates(t, snap.header, rec, patch)
	if len(updates) == 0 {
		return rec, nil
	}
	if err := e.store.UpdateCells(ctx, updates); err != nil {
		return sheet.Record{}, fmt.Errorf("update %s row %d: %w", t.Name, rec.Row, err)
	}
	return applied, nil
}

// RowPatch targets a record already located by List or Find.
type RowPatch struct {
	Record sheet.Record
	Fields map[string]string
}

// UpdateRows applies several patches in one batch. Rows are addressed by the
// positions in the given records, so callers must have read them in the same
// request.
func (e *Engine) UpdateRows(ctx context.Context, t sheet.Table, patches []RowPatch) (int, error) {
	if len(patches) == 0 {
		return 0, nil
	}
	snap, err := e.read(ctx, t)
	if err != nil {
		return 0, err
	}

	var updates []sheet.CellUpdate
	for _, p := range patches {
		u, _ := e.cellUpdates(t, snap.header, p.Record, p.Fields)
		updates = append(updates, u...)
	}
	if len(updates) == 0 {
		return 0, nil
	}
	if err := e.store.UpdateCells(ctx, updates); err != nil {
		return 0, fmt.Errorf("update %s: %w", t.Name, err)
	}
	return len(updates), nil
}

// cellUpdates computes the minimal set of cell writes for patch and returns
// the record as it will look afterwards.
func (e *Engine) cellUpdates(t sheet.Table, h sheet.Header, rec sheet.Record, patch map[string]string) ([]sheet.CellUpdate, sheet.Record) {
	fields := make(map[string]string, len(patch)+1)
	for name, v := range patch {
		if t.IsImmutable(name) || name == t.Touch {
			continue
		}
		fields[name] = v
	}
	if t.Touch != "" && h.Has(t.Touch) {
		fields[t.Touch] = e.Stamp()
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if h.Has(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	after := sheet.Record{Row: rec.Row, Fields: make(map[string]string, len(rec.Fields))}
	for k, v := range rec.Fields {
		after.Fields[k] = v
	}

	updates := make([]sheet.CellUpdate, 0, len(names))
	for _, name := range names {
		col, _ := h.Index(name)
		updates = append(updates, sheet.CellUpdate{
			Range: sheet.CellAddress(t.Name, col, rec.Row),
			Value: fields[name],
		})
		after.Fields[name] = fields[name]
	}
	return updates, after
}
