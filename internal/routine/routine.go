// Package routine keeps the daily routine log: at most one WORK and one
// WORKOUT entry per day, each with a single editable note.
package routine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/digitaldrywood/opsboard/internal/apperr"
	"github.com/digitaldrywood/opsboard/internal/reconcile"
	"github.com/digitaldrywood/opsboard/internal/sheet"
)

const (
	SheetName  = "루틴기록"
	dateLayout = "2006-01-02"
)

var Table = sheet.Table{
	Name:      SheetName,
	Columns:   []string{"date", "type", "note", "created_at"},
	Key:       []string{"date", "type"},
	Immutable: []string{"created_at"},
	Stamped:   []string{"created_at"},
}

type Type string

const (
	Work    Type = "WORK"
	Workout Type = "WORKOUT"
)

func ParseType(s string) (Type, error) {
	switch t := Type(strings.TrimSpace(s)); t {
	case Work, Workout:
		return t, nil
	default:
		return "", apperr.Validation("invalid type")
	}
}

type Entry struct {
	Date      string `json:"date"`
	Type      string `json:"type"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at"`
}

func entryFrom(rec sheet.Record) Entry {
	return Entry{
		Date:      rec.Get("date"),
		Type:      rec.Get("type"),
		Note:      rec.Get("note"),
		CreatedAt: rec.Get("created_at"),
	}
}

type Service struct {
	engine *reconcile.Engine
	loc    *time.Location
}

// NewService builds the routine log. loc decides where "today" starts.
func NewService(engine *reconcile.Engine, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{engine: engine, loc: loc}
}

func (s *Service) Today() string {
	return s.engine.Now().In(s.loc).Format(dateLayout)
}

// List returns every entry with a date and a type, in sheet order.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	records, err := s.engine.List(ctx, Table)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		e := entryFrom(rec)
		if e.Date == "" || e.Type == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Record creates today's entry for the type. A second call on the same day
// fails with a conflict; Edit changes the note instead.
func (s *Service) Record(ctx context.Context, typ, note string) (Entry, error) {
	t, n, err := validate(typ, note)
	if err != nil {
		return Entry{}, err
	}

	key := reconcile.Key{"date": s.Today(), "type": string(t)}
	rec, err := s.engine.CreateIfAbsent(ctx, Table, key, map[string]string{"note": n})
	if errors.Is(err, reconcile.ErrExists) {
		return Entry{}, apperr.Conflict("already recorded today, edit it instead")
	}
	if err != nil {
		return Entry{}, fmt.Errorf("record %s: %w", t, err)
	}
	return entryFrom(rec), nil
}

// Edit replaces the note of today's entry for the type.
func (s *Service) Edit(ctx context.Context, typ, note string) (Entry, error) {
	t, n, err := validate(typ, note)
	if err != nil {
		return Entry{}, err
	}

	key := reconcile.Key{"date": s.Today(), "type": string(t)}
	rec, err := s.engine.UpdateIfPresent(ctx, Table, key, map[string]string{"note": n})
	if apperr.Is(err, apperr.KindNotFound) {
		return Entry{}, apperr.NotFound("no %s record today", t)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("edit %s: %w", t, err)
	}
	return entryFrom(rec), nil
}

func validate(typ, note string) (Type, string, error) {
	t, err := ParseType(typ)
	if err != nil {
		return "", "", err
	}
	n := strings.TrimSpace(note)
	if n == "" {
		return "", "", apperr.Validation("note required")
	}
	return t, n, nil
}

// Summary reports today's entries and how many distinct days of the trailing
// week have each type.
type Summary struct {
	Today       string `json:"today"`
	WindowStart string `json:"window_start"`
	Work        bool   `json:"work"`
	Workout     bool   `json:"workout"`
	WorkDays    int    `json:"work_days"`
	WorkoutDays int    `json:"workout_days"`
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	now := s.engine.Now().In(s.loc)
	sum := Summary{
		Today:       now.Format(dateLayout),
		WindowStart: now.AddDate(0, 0, -6).Format(dateLayout),
	}

	days := map[Type]map[string]bool{Work: {}, Workout: {}}
	for _, e := range entries {
		if e.Date < sum.WindowStart || e.Date > sum.Today {
			continue
		}
		if seen, ok := days[Type(e.Type)]; ok {
			seen[e.Date] = true
		}
	}
	sum.WorkDays = len(days[Work])
	sum.WorkoutDays = len(days[Workout])
	sum.Work = days[Work][sum.Today]
	sum.Workout = days[Workout][sum.Today]
	return sum, nil
}
