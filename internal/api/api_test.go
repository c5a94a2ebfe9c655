package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/digitaldrywood/opsboard/internal/analytics"
	"github.com/digitaldrywood/opsboard/internal/auth"
	"github.com/digitaldrywood/opsboard/internal/reconcile"
	"github.com/digitaldrywood/opsboard/internal/routine"
	"github.com/digitaldrywood/opsboard/internal/sheet"
	"github.com/digitaldrywood/opsboard/internal/task"
)

const secret = "s3cret"

type harness struct {
	handler http.Handler
	store   *sheet.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := sheet.NewMemoryStore()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	engine := reconcile.New(store, reconcile.WithClock(func() time.Time { return now }))

	srv := NewServer(
		routine.NewService(engine, time.UTC),
		task.NewService(engine, time.UTC),
		analytics.NewService(engine),
		auth.NewGuard(secret),
		Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))},
	)
	return &harness{handler: srv.Handler(), store: store}
}

type response struct {
	status int
	body   map[string]any
}

func (h *harness) do(t *testing.T, method, path, body string, pass string) response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if pass != "" {
		req.Header.Set(auth.Header, pass)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	res := response{status: rec.Code}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res.body))
	}
	return res
}

func TestRoutineEndpoints(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, http.MethodGet, "/api/routines", "", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, true, res.body["ok"])
	assert.Empty(t, res.body["items"])

	res = h.do(t, http.MethodPost, "/api/routines", `{"type":"WORK","note":"in"}`, "")
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Equal(t, false, res.body["ok"])
	res = h.do(t, http.MethodPost, "/api/routines", `{"type":"WORK","note":"in"}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Zero(t, h.store.Writes(), "rejected before any store call")

	res = h.do(t, http.MethodPost, "/api/routines", `{"type":"WORK","note":"in"}`, secret)
	require.Equal(t, http.StatusOK, res.status)
	item := res.body["item"].(map[string]any)
	assert.Equal(t, "2024-06-01", item["date"])
	assert.Equal(t, "2024-06-01T09:00:00.000Z", item["created_at"])

	res = h.do(t, http.MethodPost, "/api/routines", `{"type":"WORK","note":"again"}`, secret)
	assert.Equal(t, http.StatusConflict, res.status)
	assert.Equal(t, "already recorded today, edit it instead", res.body["error"])

	res = h.do(t, http.MethodPatch, "/api/routines", `{"type":"WORK","note":"revised"}`, secret)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "revised", res.body["item"].(map[string]any)["note"])

	res = h.do(t, http.MethodPatch, "/api/routines", `{"type":"WORKOUT","note":"x"}`, secret)
	assert.Equal(t, http.StatusNotFound, res.status)

	res = h.do(t, http.MethodPost, "/api/routines", `{"type":"NAP","note":"x"}`, secret)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "invalid type", res.body["error"])

	res = h.do(t, http.MethodPost, "/api/routines", `{"type":`, secret)
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = h.do(t, http.MethodGet, "/api/routines/summary", "", "")
	require.Equal(t, http.StatusOK, res.status)
	sum := res.body["summary"].(map[string]any)
	assert.Equal(t, true, sum["work"])
	assert.Equal(t, float64(1), sum["work_days"])
}

func TestTaskEndpoints(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, http.MethodPost, "/api/tasks", `{"category":"업무"}`, secret)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "category/title required", res.body["error"])

	res = h.do(t, http.MethodPost, "/api/tasks", `{"title":"Ship report","category":"업무"}`, secret)
	require.Equal(t, http.StatusOK, res.status)
	created := res.body["task"].(map[string]any)
	id := created["task_id"].(string)
	assert.Equal(t, "TODO", created["status"])
	assert.Equal(t, "P1", created["priority"])

	res = h.do(t, http.MethodPatch, "/api/tasks", `{"done":true}`, secret)
	assert.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "task_id required", res.body["error"])

	res = h.do(t, http.MethodPatch, "/api/tasks", `{"task_id":"T404","done":true}`, secret)
	assert.Equal(t, http.StatusNotFound, res.status)

	res = h.do(t, http.MethodPatch, "/api/tasks", `{"task_id":"`+id+`","done":true}`, secret)
	require.Equal(t, http.StatusOK, res.status)
	patched := res.body["task"].(map[string]any)
	assert.Equal(t, "DONE", patched["status"])
	assert.Equal(t, "2024-06-01T09:00:00.000Z", patched["done_at"])

	res = h.do(t, http.MethodPatch, "/api/tasks", `{"task_id":"`+id+`","status":"DELETED"}`, secret)
	require.Equal(t, http.StatusOK, res.status)

	res = h.do(t, http.MethodGet, "/api/tasks", "", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Empty(t, res.body["tasks"])

	res = h.do(t, http.MethodGet, "/api/tasks/"+id, "", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "DELETED", res.body["task"].(map[string]any)["status"])
	assert.Equal(t, "Ship report", res.body["task"].(map[string]any)["title"])
}

func TestTaskListFilters(t *testing.T) {
	h := newHarness(t)
	for _, body := range []string{
		`{"title":"Upload","category":"업무","priority":"P0","due_date":"2024-06-01"}`,
		`{"title":"Dentist","category":"개인","due_date":"2024-06-03"}`,
	} {
		res := h.do(t, http.MethodPost, "/api/tasks", body, secret)
		require.Equal(t, http.StatusOK, res.status)
	}

	res := h.do(t, http.MethodGet, "/api/tasks?due=today", "", "")
	require.Equal(t, http.StatusOK, res.status)
	tasks := res.body["tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Upload", tasks[0].(map[string]any)["title"])

	res = h.do(t, http.MethodGet, "/api/tasks?category=%EA%B0%9C%EC%9D%B8", "", "")
	tasks = res.body["tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, "PERSONAL", tasks[0].(map[string]any)["channel_scope"])
}

func TestAnalyticsEndpoints(t *testing.T) {
	h := newHarness(t)
	h.store.Seed(analytics.DailySheet, [][]string{
		{"날짜", "channel_id", "채널명", "조회수", "수익", "RPM"},
		{"2024-05-31", "UC1", "A", "1000", "1500", "1500"},
		{"2024-06-01", "UC2", "B", "2000", "1000", "500"},
	})
	h.store.Seed(analytics.ChannelSheet, [][]string{{"ID", "채널명"}, {"UC1", "A"}})

	res := h.do(t, http.MethodGet, "/api/analytics/daily?from=2024-06-01", "", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Len(t, res.body["rows"], 1)

	res = h.do(t, http.MethodGet, "/api/analytics/summary?channel=UC1", "", "")
	require.Equal(t, http.StatusOK, res.status)
	sum := res.body["summary"].(map[string]any)
	assert.Equal(t, float64(1500), sum["revenue"])

	res = h.do(t, http.MethodGet, "/api/channels", "", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Len(t, res.body["channels"], 1)
}

func TestUnsupportedMethodsAndPaths(t *testing.T) {
	h := newHarness(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/api/routines"},
		{http.MethodPut, "/api/tasks"},
		{http.MethodPost, "/api/analytics/summary"},
	} {
		res := h.do(t, tc.method, tc.path, "", secret)
		assert.Equal(t, http.StatusMethodNotAllowed, res.status, tc.method+" "+tc.path)
		assert.Equal(t, false, res.body["ok"])
	}

	res := h.do(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, res.status)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	res := h.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, res.status)

	h.do(t, http.MethodGet, "/api/routines", "", "")

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `opsboard_http_requests_total{code="200",method="GET",route="/api/routines"} 1`)
}

func TestRequestsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	engine := reconcile.New(sheet.NewMemoryStore())
	srv := NewServer(
		routine.NewService(engine, time.UTC),
		task.NewService(engine, time.UTC),
		analytics.NewService(engine),
		auth.NewGuard(secret),
		Options{
			Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
			TracerProvider: tp,
		},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/routines", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "opsboard GET", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
}
