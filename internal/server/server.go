// Package server exposes the flowsheet engine over HTTP: standalone unit
// calculations, flowsheet validation and solving, stored-flowsheet CRUD with
// solve-run history, and scheduled-job management.
package server

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/hydrolab/flowsolve/internal/expressions"
	"github.com/hydrolab/flowsolve/internal/metrics"
	"github.com/hydrolab/flowsolve/internal/solver"
	"github.com/hydrolab/flowsolve/internal/store"
	"github.com/hydrolab/flowsolve/internal/units"
	"github.com/hydrolab/flowsolve/internal/validation"
)

// Deps holds the dependencies for the API server. Store and Metrics are
// optional: without a store the persistence routes return 503, without a
// metrics registry the /metrics route is absent.
type Deps struct {
	Store     store.Store
	Registry  *units.Registry
	Validator *validation.Validator
	Solver    *solver.Solver
	Query     *expressions.GoJQEngine
	Metrics   *metrics.Registry
	Logger    *slog.Logger
	Version   string
}

// Server serves the engineering API.
type Server struct {
	deps   Deps
	parser cron.Parser
}

// NewServer creates a Server from its dependencies.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Query == nil {
		deps.Query = expressions.NewGoJQEngine()
	}
	return &Server{
		deps:   deps,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Handler returns the HTTP handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.instrument("health", s.handleHealth))

	// Calculation surface (stateless).
	mux.HandleFunc("GET /api/equipment/types", s.instrument("equipment_types", s.handleEquipmentTypes))
	mux.HandleFunc("POST /api/calculate/{type}", s.instrument("calculate_unit", s.handleCalculateUnit))
	mux.HandleFunc("POST /api/validate/equipment", s.instrument("validate_equipment", s.handleValidateEquipment))
	mux.HandleFunc("POST /api/calculate/flowsheet", s.instrument("calculate_flowsheet", s.handleCalculateFlowsheet))

	// Stored flowsheets and solve history.
	mux.HandleFunc("POST /api/flowsheets", s.instrument("flowsheet_create", s.handleCreateFlowsheet))
	mux.HandleFunc("GET /api/flowsheets", s.instrument("flowsheet_list", s.handleListFlowsheets))
	mux.HandleFunc("GET /api/flowsheets/{id}", s.instrument("flowsheet_get", s.handleGetFlowsheet))
	mux.HandleFunc("PUT /api/flowsheets/{id}", s.instrument("flowsheet_update", s.handleUpdateFlowsheet))
	mux.HandleFunc("DELETE /api/flowsheets/{id}", s.instrument("flowsheet_delete", s.handleDeleteFlowsheet))
	mux.HandleFunc("POST /api/flowsheets/{id}/solve", s.instrument("flowsheet_solve", s.handleSolveFlowsheet))
	mux.HandleFunc("GET /api/flowsheets/{id}/runs", s.instrument("run_list", s.handleListRuns))
	mux.HandleFunc("GET /api/runs/{id}", s.instrument("run_get", s.handleGetRun))

	// Scheduled jobs.
	mux.HandleFunc("POST /api/jobs", s.instrument("job_create", s.handleCreateJob))
	mux.HandleFunc("GET /api/jobs", s.instrument("job_list", s.handleListJobs))
	mux.HandleFunc("GET /api/jobs/{id}", s.instrument("job_get", s.handleGetJob))
	mux.HandleFunc("PUT /api/jobs/{id}", s.instrument("job_update", s.handleUpdateJob))
	mux.HandleFunc("DELETE /api/jobs/{id}", s.instrument("job_delete", s.handleDeleteJob))

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Metrics.Prometheus(), promhttp.HandlerOpts{}))
	}

	return mux
}

// instrument wraps a handler with request counting and latency observation
// per logical route.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	if s.deps.Metrics == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.deps.Metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.deps.Metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// statusRecorder captures the response status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
