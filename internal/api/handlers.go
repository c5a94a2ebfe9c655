package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/digitaldrywood/opsboard/internal/analytics"
	"github.com/digitaldrywood/opsboard/internal/task"
)

type routineRequest struct {
	Type string `json:"type"`
	Note string `json:"note"`
}

func (s *Server) listRoutines(w http.ResponseWriter, r *http.Request) {
	items, err := s.routines.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "items", items)
}

func (s *Server) recordRoutine(w http.ResponseWriter, r *http.Request) {
	var req routineRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.routines.Record(r.Context(), req.Type, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "item", item)
}

func (s *Server) editRoutine(w http.ResponseWriter, r *http.Request) {
	var req routineRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.routines.Edit(r.Context(), req.Type, req.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "item", item)
}

func (s *Server) routineSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.routines.Summary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "summary", sum)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := s.tasks.List(r.Context(), task.Filter{
		Category: q.Get("category"),
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		Query:    q.Get("q"),
		DueToday: q.Get("due") == "today",
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "tasks", tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "task", t)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var in task.CreateInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.tasks.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "task", t)
}

func (s *Server) patchTask(w http.ResponseWriter, r *http.Request) {
	var in task.PatchInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.tasks.Patch(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "task", t)
}

func analyticsQuery(r *http.Request) analytics.Query {
	q := r.URL.Query()
	return analytics.Query{From: q.Get("from"), To: q.Get("to"), Channel: q.Get("channel")}
}

func (s *Server) dailyMetrics(w http.ResponseWriter, r *http.Request) {
	rows, err := s.analytics.Daily(r.Context(), analyticsQuery(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "rows", rows)
}

func (s *Server) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.analytics.Summary(r.Context(), analyticsQuery(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "summary", sum)
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.analytics.Channels(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "channels", channels)
}
