// Package api exposes the routine log, the task tracker and the analytics
// views over HTTP. Every response is a JSON envelope with an ok flag; reads
// are open and writes need the admin secret.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/digitaldrywood/opsboard/internal/analytics"
	"github.com/digitaldrywood/opsboard/internal/auth"
	"github.com/digitaldrywood/opsboard/internal/routine"
	"github.com/digitaldrywood/opsboard/internal/task"
	"github.com/digitaldrywood/opsboard/internal/tracing"
)

type Server struct {
	routines  *routine.Service
	tasks     *task.Service
	analytics *analytics.Service
	guard     *auth.Guard
	logger    *slog.Logger
	metrics   *Metrics
	registry  *prometheus.Registry
	tracer    trace.TracerProvider
	staticDir string
}

type Options struct {
	Logger *slog.Logger
	// Registry receives the HTTP metrics; a fresh one is created when nil.
	Registry *prometheus.Registry
	// StaticDir, when set, is served at / for paths no route matches.
	StaticDir string
	// TracerProvider records a server span per request; the global provider
	// is used when nil.
	TracerProvider trace.TracerProvider
}

func NewServer(routines *routine.Service, tasks *task.Service, analyticsSvc *analytics.Service, guard *auth.Guard, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	return &Server{
		routines:  routines,
		tasks:     tasks,
		analytics: analyticsSvc,
		guard:     guard,
		logger:    opts.Logger,
		metrics:   MustNewMetrics(opts.Registry),
		registry:  opts.Registry,
		tracer:    opts.TracerProvider,
		staticDir: opts.StaticDir,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(s.metrics.instrument)
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{"ok": false, "error": "method not allowed"})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	guarded := r.With(s.guard.Require(s.denied))

	r.Get("/api/routines", s.listRoutines)
	guarded.Post("/api/routines", s.recordRoutine)
	guarded.Patch("/api/routines", s.editRoutine)
	r.Get("/api/routines/summary", s.routineSummary)

	r.Get("/api/tasks", s.listTasks)
	guarded.Post("/api/tasks", s.createTask)
	guarded.Patch("/api/tasks", s.patchTask)
	r.Get("/api/tasks/{id}", s.getTask)

	r.Get("/api/analytics/daily", s.dailyMetrics)
	r.Get("/api/analytics/summary", s.analyticsSummary)
	r.Get("/api/channels", s.listChannels)

	if s.staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	} else {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, envelope{"ok": false, "error": "not found"})
		})
	}

	return otelhttp.NewHandler(r, "opsboard",
		otelhttp.WithTracerProvider(s.tracer),
		otelhttp.WithPropagators(tracing.Propagator()),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return operation + " " + r.Method
		}),
	)
}

func (s *Server) denied(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, err)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
