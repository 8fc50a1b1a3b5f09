package units

import (
	"context"
	"sort"

	"github.com/hydrolab/flowsolve/internal/expressions"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

// Custom is a user-defined unit operation. Its config carries an
// "expressions" object mapping output field names to expr-lang expressions
// evaluated over the merged calculation inputs plus "inlet_flow", e.g.
//
//	"expressions": {
//	    "outlet_flow":     "inlet_flow * split_ratio",
//	    "outlet_pressure": "feed_pressure - 0.2"
//	}
//
// Output fields participate in the solver's port routing like any other
// calculator result.
type Custom struct {
	engine *expressions.ExprEngine
}

// NewCustom creates a custom unit backed by the given expression engine.
func NewCustom(engine *expressions.ExprEngine) *Custom {
	return &Custom{engine: engine}
}

func (c *Custom) Type() schema.EquipmentType {
	return schema.EquipmentCustom
}

func (c *Custom) Compute(ctx context.Context, in Inputs) *schema.CalcResult {
	raw, ok := in.Params["expressions"].(map[string]any)
	if !ok || len(raw) == 0 {
		return schema.Failed(schema.NewError(schema.ErrCodeExpression,
			`custom unit requires an "expressions" config object`).
			WithEquipment(in.EquipmentID))
	}

	env := make(map[string]any, len(in.Params)+1)
	for k, v := range in.Params {
		if k == "expressions" {
			continue
		}
		env[k] = v
	}
	env["inlet_flow"] = in.InletFlow

	// Deterministic evaluation order.
	fields := make([]string, 0, len(raw))
	for field := range raw {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	data := make(map[string]any, len(fields))
	for _, field := range fields {
		exprStr, ok := raw[field].(string)
		if !ok {
			return schema.Failed(schema.NewErrorf(schema.ErrCodeExpression,
				"expression for field %q must be a string", field).
				WithEquipment(in.EquipmentID))
		}
		out, err := c.engine.Evaluate(ctx, exprStr, env)
		if err != nil {
			var engErr *schema.EngineeringError
			if e, ok := err.(*schema.EngineeringError); ok {
				engErr = e.WithEquipment(in.EquipmentID)
			} else {
				engErr = schema.NewErrorf(schema.ErrCodeExpression,
					"evaluate field %q: %s", field, err.Error()).
					WithEquipment(in.EquipmentID).
					WithCause(err)
			}
			return schema.Failed(engErr)
		}
		data[field] = out
	}

	return schema.Succeeded(data)
}

var _ Unit = (*Custom)(nil)
