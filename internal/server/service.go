package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hydrolab/flowsolve/internal/logging"
	"github.com/hydrolab/flowsolve/internal/scheduler"
	"github.com/hydrolab/flowsolve/internal/store"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

// RunScheduled solves a stored flowsheet on behalf of the scheduler, with
// the accumulated operating hours injected into the membrane configs.
func (s *Server) RunScheduled(ctx context.Context, flowsheetID string, operatingHours float64) (*schema.SolveResult, error) {
	return s.solveStored(ctx, flowsheetID, operatingHours, store.TriggerScheduled)
}

var _ scheduler.SolveRunner = (*Server)(nil)

// solveStored loads, validates and solves a stored flowsheet, then appends
// a solve run to the history. Validation failure and store errors are
// returned as errors; an unconverged or failed solve is a recorded outcome,
// not an error.
func (s *Server) solveStored(ctx context.Context, flowsheetID string, operatingHours float64, trigger string) (*schema.SolveResult, error) {
	if s.deps.Store == nil {
		return nil, schema.NewError(schema.ErrCodeStore, "persistence is not configured")
	}

	rec, err := s.deps.Store.GetFlowsheet(ctx, flowsheetID)
	if err != nil {
		return nil, err
	}

	fs, vres := s.deps.Validator.Validate(rec.Document)
	if !vres.Valid() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"stored flowsheet %q failed validation: %s", flowsheetID, vres.ToError().Error())
	}

	if operatingHours > 0 {
		injectOperatingHours(fs, operatingHours)
	}

	ctx = logging.WithFlowsheetID(ctx, flowsheetID)

	start := time.Now()
	result := s.deps.Solver.Solve(ctx, fs)
	s.observeSolve(result, time.Since(start))

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "marshal solve result: %s", err.Error()).WithCause(err)
	}

	run := &store.SolveRun{
		ID:             uuid.New().String(),
		FlowsheetID:    flowsheetID,
		Trigger:        trigger,
		Success:        result.Success,
		Converged:      result.Converged,
		Iterations:     result.Iterations,
		MaxError:       result.MaxError,
		SystemRecovery: result.SystemRecovery,
		Result:         raw,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.deps.Store.CreateSolveRun(ctx, run); err != nil {
		// The solve itself succeeded; log and return it anyway.
		s.deps.Logger.ErrorContext(ctx, "failed to record solve run",
			"flowsheet_id", flowsheetID, "error", err)
	}

	return result, nil
}

// injectOperatingHours sets accumulated runtime on every membrane unit so
// fouling resistance reflects elapsed service time. Explicitly configured
// values are preserved.
func injectOperatingHours(fs *schema.Flowsheet, hours float64) {
	for _, eq := range fs.Equipment {
		if eq.Type != schema.EquipmentUltrafiltration {
			continue
		}
		if eq.Config == nil {
			eq.Config = map[string]any{}
		}
		if _, ok := eq.Config["operating_hours"]; !ok {
			eq.Config["operating_hours"] = hours
		}
	}
}

// observeSolve records solve metrics when a registry is configured.
func (s *Server) observeSolve(result *schema.SolveResult, elapsed time.Duration) {
	if s.deps.Metrics == nil {
		return
	}
	outcome := "failed"
	switch {
	case !result.Success:
	case result.Converged:
		outcome = "converged"
	default:
		outcome = "unconverged"
	}
	s.deps.Metrics.ObserveSolve(outcome, elapsed.Seconds(), result.Iterations, result.MaxError)
}

// applyQuery runs a jq expression over the JSON form of a solve result.
func (s *Server) applyQuery(ctx context.Context, query string, result *schema.SolveResult) (any, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return s.deps.Query.Evaluate(ctx, query, doc)
}
