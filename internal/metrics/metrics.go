// Package metrics exposes Prometheus collectors for the solve pipeline and
// the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metrics for the application.
type Registry struct {
	registry *prometheus.Registry

	// Solver metrics
	SolvesTotal       *prometheus.CounterVec
	SolveDuration     prometheus.Histogram
	SolveIterations   prometheus.Histogram
	SolveMaxError     prometheus.Histogram
	CalculationsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Scheduler metrics
	ScheduledRunsTotal *prometheus.CounterVec
}

// NewRegistry creates a Registry with all collectors registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.SolvesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsolve_solves_total",
			Help: "Total number of flowsheet solves by outcome",
		},
		[]string{"outcome"}, // converged | unconverged | failed
	)

	r.SolveDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowsolve_solve_duration_seconds",
			Help:    "Flowsheet solve duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	r.SolveIterations = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowsolve_solve_iterations",
			Help:    "Iterations needed per flowsheet solve",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	r.SolveMaxError = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowsolve_solve_max_error",
			Help:    "Final max flow residual per solve (m3/h)",
			Buckets: []float64{1e-9, 1e-6, 1e-3, 0.1, 1, 10},
		},
	)

	r.CalculationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsolve_calculations_total",
			Help: "Standalone unit calculations by equipment type and status",
		},
		[]string{"equipment_type", "status"},
	)

	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsolve_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowsolve_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"route"},
	)

	r.ScheduledRunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowsolve_scheduled_runs_total",
			Help: "Scheduled re-solve executions by status",
		},
		[]string{"status"}, // converged | unconverged | failed | error
	)

	return r
}

// Prometheus returns the underlying registry for exposition handlers.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// ObserveSolve records the outcome of one solve.
func (r *Registry) ObserveSolve(outcome string, seconds float64, iterations int, maxError float64) {
	r.SolvesTotal.WithLabelValues(outcome).Inc()
	r.SolveDuration.Observe(seconds)
	if outcome != "failed" {
		r.SolveIterations.Observe(float64(iterations))
		r.SolveMaxError.Observe(maxError)
	}
}
