// Package task implements the task tracker on top of the reconciliation
// engine. Tasks are never removed from the sheet: deleting one sets its status
// to DELETED and every listing hides it.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/digitaldrywood/opsboard/internal/apperr"
	"github.com/digitaldrywood/opsboard/internal/reconcile"
	"github.com/digitaldrywood/opsboard/internal/sheet"
)

const SheetName = "할일"

var Table = sheet.Table{
	Name: SheetName,
	Columns: []string{
		"task_id", "category", "channel_scope", "channel_id", "title", "status",
		"priority", "due_date", "recurrence", "assignee", "tags", "memo",
		"created_at", "updated_at", "done_at",
	},
	Key:       []string{"task_id"},
	Immutable: []string{"created_at"},
	Stamped:   []string{"created_at", "updated_at"},
	Touch:     "updated_at",
}

const (
	StatusTodo    = "TODO"
	StatusDoing   = "DOING"
	StatusDone    = "DONE"
	StatusHold    = "HOLD"
	StatusDeleted = "DELETED"

	PriorityP0 = "P0"
	PriorityP1 = "P1"
	PriorityP2 = "P2"

	CategoryWork     = "업무"
	CategoryPersonal = "개인"

	ScopeAll      = "ALL"
	ScopePersonal = "PERSONAL"
	ScopeChannel  = "CHANNEL"

	statusRule   = "oneof=TODO DOING DONE HOLD DELETED"
	priorityRule = "oneof=P0 P1 P2"
	scopeRule    = "oneof=ALL PERSONAL CHANNEL"
	dateRule     = "datetime=2006-01-02"
)

type Task struct {
	TaskID       string `json:"task_id"`
	Category     string `json:"category"`
	ChannelScope string `json:"channel_scope"`
	ChannelID    string `json:"channel_id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Priority     string `json:"priority"`
	DueDate      string `json:"due_date"`
	Recurrence   string `json:"recurrence"`
	Assignee     string `json:"assignee"`
	Tags         string `json:"tags"`
	Memo         string `json:"memo"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	DoneAt       string `json:"done_at"`
}

func fromRecord(rec sheet.Record) Task {
	return Task{
		TaskID:       rec.Get("task_id"),
		Category:     rec.Get("category"),
		ChannelScope: rec.Get("channel_scope"),
		ChannelID:    rec.Get("channel_id"),
		Title:        rec.Get("title"),
		Status:       rec.Get("status"),
		Priority:     rec.Get("priority"),
		DueDate:      rec.Get("due_date"),
		Recurrence:   rec.Get("recurrence"),
		Assignee:     rec.Get("assignee"),
		Tags:         rec.Get("tags"),
		Memo:         rec.Get("memo"),
		CreatedAt:    rec.Get("created_at"),
		UpdatedAt:    rec.Get("updated_at"),
		DoneAt:       rec.Get("done_at"),
	}
}

// CreateInput carries a new task. Empty optional fields receive defaults.
type CreateInput struct {
	TaskID       string `json:"task_id"`
	Category     string `json:"category" validate:"required"`
	ChannelScope string `json:"channel_scope" validate:"omitempty,oneof=ALL PERSONAL CHANNEL"`
	ChannelID    string `json:"channel_id"`
	Title        string `json:"title" validate:"required"`
	Status       string `json:"status" validate:"omitempty,oneof=TODO DOING DONE HOLD DELETED"`
	Priority     string `json:"priority" validate:"omitempty,oneof=P0 P1 P2"`
	DueDate      string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Recurrence   string `json:"recurrence"`
	Assignee     string `json:"assignee"`
	Tags         string `json:"tags"`
	Memo         string `json:"memo"`
	DoneAt       string `json:"done_at"`
}

// PatchInput targets one task by id. Nil fields are left untouched.
// Done is derived: true sets status DONE and stamps done_at, false clears
// done_at and leaves status alone.
type PatchInput struct {
	TaskID       string  `json:"task_id"`
	Category     *string `json:"category,omitempty"`
	ChannelScope *string `json:"channel_scope,omitempty"`
	ChannelID    *string `json:"channel_id,omitempty"`
	Title        *string `json:"title,omitempty"`
	Status       *string `json:"status,omitempty"`
	Priority     *string `json:"priority,omitempty"`
	DueDate      *string `json:"due_date,omitempty"`
	Recurrence   *string `json:"recurrence,omitempty"`
	Assignee     *string `json:"assignee,omitempty"`
	Tags         *string `json:"tags,omitempty"`
	Memo         *string `json:"memo,omitempty"`
	Done         *bool   `json:"done,omitempty"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Category string
	Status   string
	Priority string
	// Query matches title, memo and tags case-insensitively.
	Query string
	// DueToday keeps open tasks due today or overdue, earliest first.
	DueToday bool
}

type Service struct {
	engine   *reconcile.Engine
	loc      *time.Location
	validate *validator.Validate
}

func NewService(engine *reconcile.Engine, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		engine:   engine,
		loc:      loc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// List returns tasks that are not soft-deleted, in sheet order.
func (s *Service) List(ctx context.Context, f Filter) ([]Task, error) {
	records, err := s.engine.List(ctx, Table)
	if err != nil {
		return nil, err
	}

	today := s.engine.Now().In(s.loc).Format("2006-01-02")
	query := strings.ToLower(strings.TrimSpace(f.Query))

	tasks := make([]Task, 0, len(records))
	for _, rec := range records {
		t := fromRecord(rec)
		if t.TaskID == "" || t.Status == StatusDeleted {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(t.Title+" "+t.Memo+" "+t.Tags), query) {
			continue
		}
		if f.DueToday && (t.Status == StatusDone || t.DueDate == "" || t.DueDate > today) {
			continue
		}
		tasks = append(tasks, t)
	}

	if f.DueToday {
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].DueDate < tasks[j].DueDate })
	}
	return tasks, nil
}

// Get looks a task up by id, including soft-deleted ones.
func (s *Service) Get(ctx context.Context, id string) (Task, error) {
	rec, found, err := s.engine.Find(ctx, Table, reconcile.Key{"task_id": id})
	if err != nil {
		return Task{}, err
	}
	if !found {
		return Task{}, apperr.NotFound("task not found")
	}
	return fromRecord(rec), nil
}

// Create stores title and category as sent; surrounding whitespace only
// matters for the required check.
func (s *Service) Create(ctx context.Context, in CreateInput) (Task, error) {
	check := in
	check.Title = strings.TrimSpace(in.Title)
	check.Category = strings.TrimSpace(in.Category)
	if err := s.validate.Struct(check); err != nil {
		return Task{}, validationError(err)
	}

	id := strings.TrimSpace(in.TaskID)
	if id == "" {
		id = s.newID()
	}

	fields := map[string]string{
		"category":      in.Category,
		"channel_scope": or(in.ChannelScope, defaultScope(check.Category)),
		"channel_id":    in.ChannelID,
		"title":         in.Title,
		"status":        or(in.Status, StatusTodo),
		"priority":      or(in.Priority, PriorityP1),
		"due_date":      in.DueDate,
		"recurrence":    or(in.Recurrence, "NONE"),
		"assignee":      in.Assignee,
		"tags":          in.Tags,
		"memo":          in.Memo,
		"done_at":       in.DoneAt,
	}

	rec, err := s.engine.CreateIfAbsent(ctx, Table, reconcile.Key{"task_id": id}, fields)
	if errors.Is(err, reconcile.ErrExists) {
		return Task{}, apperr.Conflict("task %s already exists", id)
	}
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return fromRecord(rec), nil
}

func (s *Service) Patch(ctx context.Context, in PatchInput) (Task, error) {
	id := strings.TrimSpace(in.TaskID)
	if id == "" {
		return Task{}, apperr.Validation("task_id required")
	}
	if err := s.validatePatch(in); err != nil {
		return Task{}, err
	}

	fields := make(map[string]string)
	set := func(column string, v *string) {
		if v != nil {
			fields[column] = *v
		}
	}
	set("category", in.Category)
	set("channel_scope", in.ChannelScope)
	set("channel_id", in.ChannelID)
	set("title", in.Title)
	set("status", in.Status)
	set("priority", in.Priority)
	set("due_date", in.DueDate)
	set("recurrence", in.Recurrence)
	set("assignee", in.Assignee)
	set("tags", in.Tags)
	set("memo", in.Memo)

	if in.Done != nil {
		if *in.Done {
			fields["status"] = StatusDone
			fields["done_at"] = s.engine.Stamp()
		} else {
			fields["done_at"] = ""
		}
	}

	rec, err := s.engine.UpdateIfPresent(ctx, Table, reconcile.Key{"task_id": id}, fields)
	if apperr.Is(err, apperr.KindNotFound) {
		return Task{}, apperr.NotFound("task not found")
	}
	if err != nil {
		return Task{}, fmt.Errorf("patch task %s: %w", id, err)
	}
	return fromRecord(rec), nil
}

// Delete soft-deletes a task.
func (s *Service) Delete(ctx context.Context, id string) (Task, error) {
	status := StatusDeleted
	return s.Patch(ctx, PatchInput{TaskID: id, Status: &status})
}

func (s *Service) validatePatch(in PatchInput) error {
	check := func(name string, v *string, rule string) error {
		if v == nil || *v == "" {
			return nil
		}
		if err := s.validate.Var(*v, rule); err != nil {
			return apperr.Validation("invalid %s", name)
		}
		return nil
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return apperr.Validation("title required")
	}
	if in.Status != nil && *in.Status == "" {
		return apperr.Validation("invalid status")
	}
	if in.Priority != nil && *in.Priority == "" {
		return apperr.Validation("invalid priority")
	}
	if err := check("status", in.Status, statusRule); err != nil {
		return err
	}
	if err := check("priority", in.Priority, priorityRule); err != nil {
		return err
	}
	if err := check("channel_scope", in.ChannelScope, scopeRule); err != nil {
		return err
	}
	return check("due_date", in.DueDate, dateRule)
}

func (s *Service) newID() string {
	return fmt.Sprintf("T%d-%s", s.engine.Now().UnixMilli(), uuid.NewString()[:8])
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("invalid task: %v", err)
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return apperr.Validation("category/title required")
		}
	}
	return apperr.Validation("invalid %s", jsonName(verrs[0].Field()))
}

func jsonName(field string) string {
	switch field {
	case "ChannelScope":
		return "channel_scope"
	case "DueDate":
		return "due_date"
	default:
		return strings.ToLower(field)
	}
}

func defaultScope(category string) string {
	if category == CategoryPersonal {
		return ScopePersonal
	}
	return ScopeAll
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
