package solver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// checkConstraints evaluates the flowsheet's CEL constraint expressions
// against the solved state. Each expression sees three variables:
//
//	streams : solved stream states keyed by stream ID
//	results : calculator outputs keyed by equipment ID
//	recovery: overall system recovery in percent
//
// A constraint evaluating to anything but true is reported as an advisory
// CONSTRAINT_VIOLATION; an expression that fails to compile or evaluate is
// reported as an advisory EXPRESSION_ERROR. Neither affects the solve.
func (s *Solver) checkConstraints(ctx context.Context, fs *schema.Flowsheet, streams map[string]*schema.Stream, results map[string]map[string]any) []*schema.EngineeringError {
	if s.constraints == nil || len(fs.Constraints) == 0 {
		return nil
	}

	scope := map[string]any{
		"streams":  normalize(streams),
		"results":  normalize(results),
		"recovery": SystemRecovery(streams),
	}

	var errs []*schema.EngineeringError
	for _, expr := range fs.Constraints {
		out, err := s.constraints.Evaluate(ctx, expr, scope)
		if err != nil {
			s.logger.WarnContext(ctx, "constraint evaluation failed",
				slog.String("constraint", expr), slog.Any("error", err))
			errs = append(errs, schema.NewErrorf(schema.ErrCodeExpression,
				"Constraint %q failed to evaluate: %s", expr, err.Error()).
				WithSeverity(schema.SeverityWarning).
				WithCause(err))
			continue
		}
		if satisfied, ok := out.(bool); !ok || !satisfied {
			errs = append(errs, schema.NewErrorf(schema.ErrCodeConstraint,
				"Constraint not satisfied: %s", expr).
				WithSeverity(schema.SeverityWarning))
		}
	}
	return errs
}

// normalize round-trips a value through JSON so constraint expressions see
// plain maps and numbers instead of Go structs (stream states, nested
// calculator payloads like water quality).
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
