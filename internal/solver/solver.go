// Package solver implements the flowsheet mass-balance solver: a
// Gauss-Seidel fixed-point iteration over the equipment graph that
// propagates flow, pressure and temperature through the stream registry
// until the network reaches a self-consistent steady state.
package solver

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/hydrolab/flowsolve/internal/expressions"
	"github.com/hydrolab/flowsolve/internal/logging"
	"github.com/hydrolab/flowsolve/internal/units"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

const (
	// DefaultTolerance is the convergence tolerance on the largest
	// absolute flow-rate change across a full sweep (m³/h).
	DefaultTolerance = 1e-6

	// DefaultMaxIterations is the hard cap on Gauss-Seidel sweeps.
	DefaultMaxIterations = 100
)

// Options configure a Solver.
type Options struct {
	// Tolerance is the convergence threshold. Zero means DefaultTolerance.
	Tolerance float64

	// MaxIterations bounds the sweep count. Zero means DefaultMaxIterations.
	MaxIterations int

	// Strict fails the solve up front when an equipment declares an inlet
	// or outlet stream ID that is absent from the stream registry. The
	// default is permissive: unregistered streams are silently skipped.
	Strict bool
}

func (o Options) normalized() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}

// Solver drives the fixed-point iteration. It carries no mutable state
// beyond its options, so a single instance is safe to share across
// concurrent solves: each Solve call owns an exclusive copy of the streams.
type Solver struct {
	opts        Options
	registry    *units.Registry
	constraints *expressions.CELEngine
	logger      *slog.Logger
}

// New creates a solver dispatching calculations through the given registry.
func New(registry *units.Registry, opts Options) *Solver {
	return &Solver{
		opts:     opts.normalized(),
		registry: registry,
		logger:   slog.Default(),
	}
}

// WithConstraints enables post-solve constraint checking through the given
// CEL engine. Violations are advisory and never fail the solve.
func (s *Solver) WithConstraints(engine *expressions.CELEngine) *Solver {
	s.constraints = engine
	return s
}

// WithLogger sets the solver's logger.
func (s *Solver) WithLogger(logger *slog.Logger) *Solver {
	s.logger = logger
	return s
}

// Solve runs the mass-balance iteration on the flowsheet and returns the
// converged (or unconverged) result.
//
// Exhausting the iteration budget is not a failure: the result carries
// Success=true with Converged=false. A calculator failure aborts the whole
// solve immediately and discards all progress. A fault in the solver's own
// orchestration is reported as a critical SOLVER_ERROR.
func (s *Solver) Solve(ctx context.Context, fs *schema.Flowsheet) (result *schema.SolveResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "mass balance solver fault", slog.Any("panic", r))
			result = &schema.SolveResult{
				Success: false,
				Errors: []*schema.EngineeringError{
					schema.NewErrorf(schema.ErrCodeSolver,
						"Mass balance solver failed: %v", r).
						WithSeverity(schema.SeverityCritical),
				},
			}
		}
	}()

	if s.opts.Strict {
		if errs := missingStreams(fs); len(errs) > 0 {
			return &schema.SolveResult{Success: false, Errors: errs}
		}
	}

	streams := fs.CloneStreams()
	order := fs.EquipmentOrder()
	equipmentResults := make(map[string]map[string]any, len(fs.Equipment))

	converged := false
	iterations := 0
	maxError := math.Inf(1)

	for !converged && iterations < s.opts.MaxIterations {
		snapshot := flowSnapshot(streams)

		for _, eqID := range order {
			eq, ok := fs.Equipment[eqID]
			if !ok {
				continue
			}

			data, fatal := s.solveEquipment(ctx, eq, streams)
			if fatal != nil {
				s.logger.ErrorContext(ctx, "equipment calculation failed",
					slog.String("equipment_id", eqID),
					slog.Int("iteration", iterations+1))
				return &schema.SolveResult{
					Success: false,
					Errors:  []*schema.EngineeringError{fatal},
				}
			}
			equipmentResults[eqID] = data

			routeOutletStreams(eq, data, streams)
		}

		maxError = maxResidual(streams, snapshot)
		converged = maxError < s.opts.Tolerance
		iterations++
	}

	errs := validateMassBalance(fs, streams)
	errs = append(errs, s.checkConstraints(ctx, fs, streams, equipmentResults)...)
	if errs == nil {
		errs = []*schema.EngineeringError{}
	}

	s.logger.InfoContext(ctx, "flowsheet solve finished",
		slog.Bool("converged", converged),
		slog.Int("iterations", iterations),
		slog.Float64("max_error", maxError))

	return &schema.SolveResult{
		Success:          true,
		Converged:        converged,
		Iterations:       iterations,
		MaxError:         maxError,
		Streams:          streams,
		EquipmentResults: equipmentResults,
		Errors:           errs,
		SystemRecovery:   SystemRecovery(streams),
	}
}

// solveEquipment aggregates the equipment's inlet conditions, merges them
// with its configuration and dispatches the calculation. A calculator
// failure (returned or panicked) comes back as a fatal EQUIPMENT_CALC_ERROR.
func (s *Solver) solveEquipment(ctx context.Context, eq *schema.Equipment, streams map[string]*schema.Stream) (map[string]any, *schema.EngineeringError) {
	inletData := map[string]any{}
	totalInlet := 0.0

	for _, streamID := range eq.InletStreams {
		st, ok := streams[streamID]
		if !ok {
			continue
		}
		inletData[st.SourcePort+"_flow"] = st.FlowRate
		inletData[st.SourcePort+"_pressure"] = st.Pressure
		inletData[st.SourcePort+"_temperature"] = st.Temperature
		totalInlet += st.FlowRate
	}

	// Config keys win on collision: an explicit configuration value
	// overrides the aggregated inlet condition.
	calcInputs := make(map[string]any, len(eq.Config)+len(inletData)+1)
	for k, v := range inletData {
		calcInputs[k] = v
	}
	for k, v := range eq.Config {
		calcInputs[k] = v
	}
	if _, ok := calcInputs["feed_flow"]; !ok && totalInlet > 0 {
		calcInputs["feed_flow"] = totalInlet
	}

	res := s.compute(logging.WithEquipmentID(ctx, eq.ID), eq, units.Inputs{
		EquipmentID: eq.ID,
		Params:      calcInputs,
		InletFlow:   totalInlet,
	})
	if !res.Success {
		return nil, schema.NewErrorf(schema.ErrCodeEquipmentCalc,
			"Equipment %s calculation failed: %s", eq.ID, joinMessages(res.Errors)).
			WithEquipment(eq.ID)
	}
	return res.Data, nil
}

// compute dispatches to the unit calculator, converting a panic inside the
// calculator into a failed result so it aborts the solve as a calculation
// error rather than a solver fault.
func (s *Solver) compute(ctx context.Context, eq *schema.Equipment, in units.Inputs) (res *schema.CalcResult) {
	defer func() {
		if r := recover(); r != nil {
			res = schema.Failed(schema.NewErrorf(schema.ErrCodeCalculation,
				"calculator panic: %v", r).
				WithEquipment(eq.ID).
				WithSeverity(schema.SeverityCritical))
		}
	}()
	return s.registry.Resolve(eq.Type).Compute(ctx, in)
}

// flowSnapshot captures the flow rate of every stream before a sweep.
func flowSnapshot(streams map[string]*schema.Stream) map[string]float64 {
	snapshot := make(map[string]float64, len(streams))
	for id, st := range streams {
		snapshot[id] = st.FlowRate
	}
	return snapshot
}

// maxResidual returns the largest absolute flow change across streams
// present in both the current registry and the snapshot.
func maxResidual(streams map[string]*schema.Stream, snapshot map[string]float64) float64 {
	residuals := make([]float64, 0, len(streams))
	for id, st := range streams {
		old, ok := snapshot[id]
		if !ok {
			continue
		}
		residuals = append(residuals, math.Abs(st.FlowRate-old))
	}
	if len(residuals) == 0 {
		return 0
	}
	return floats.Max(residuals)
}

// missingStreams reports every inlet/outlet stream ID declared by an
// equipment but absent from the stream registry.
func missingStreams(fs *schema.Flowsheet) []*schema.EngineeringError {
	var errs []*schema.EngineeringError
	for _, eqID := range fs.EquipmentOrder() {
		eq, ok := fs.Equipment[eqID]
		if !ok {
			continue
		}
		for _, streamID := range eq.InletStreams {
			if _, ok := fs.Streams[streamID]; !ok {
				errs = append(errs, schema.NewErrorf(schema.ErrCodeStreamNotFound,
					"Inlet stream %s of equipment %s is not registered", streamID, eqID).
					WithEquipment(eqID))
			}
		}
		for _, streamID := range eq.OutletStreams {
			if _, ok := fs.Streams[streamID]; !ok {
				errs = append(errs, schema.NewErrorf(schema.ErrCodeStreamNotFound,
					"Outlet stream %s of equipment %s is not registered", streamID, eqID).
					WithEquipment(eqID))
			}
		}
	}
	return errs
}

func joinMessages(errs []*schema.EngineeringError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}
