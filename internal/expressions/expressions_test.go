package expressions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

func TestExprEngine_UnitFormula(t *testing.T) {
	e := NewExprEngine()
	out, err := e.Evaluate(context.Background(), "inlet_flow * split_ratio", map[string]any{
		"inlet_flow":  100.0,
		"split_ratio": 0.4,
	})
	require.NoError(t, err)
	assert.InDelta(t, 40.0, out, 1e-9)
}

func TestExprEngine_UndefinedVariableIsNil(t *testing.T) {
	e := NewExprEngine()
	out, err := e.Evaluate(context.Background(), "missing ?? 7.5", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 7.5, out)
}

func TestExprEngine_EmptyExpression(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)

	var engErr *schema.EngineeringError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, schema.ErrCodeValidation, engErr.Code)
}

func TestCELEngine_Constraint(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	data := map[string]any{
		"streams": map[string]any{
			"permeate_1": map[string]any{"flow_rate": 80.0},
		},
		"recovery": 80.0,
	}

	out, err := e.Evaluate(context.Background(), "streams['permeate_1'].flow_rate > 50.0 && recovery >= 75.0", data)
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(context.Background(), "recovery > 90.0", data)
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestCELEngine_MissingScopeDefaults(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	out, err := e.Evaluate(context.Background(), "size(results) == 0 && recovery == 0.0", nil)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestCELEngine_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "streams[", nil)
	require.Error(t, err)

	var engErr *schema.EngineeringError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, schema.ErrCodeValidation, engErr.Code)
}

func TestGoJQEngine_SingleOutput(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), ".streams.feed_1.flow_rate", map[string]any{
		"streams": map[string]any{
			"feed_1": map[string]any{"flow_rate": 100.0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, out)
}

func TestGoJQEngine_MultipleOutputs(t *testing.T) {
	e := NewGoJQEngine()
	out, err := e.Evaluate(context.Background(), ".streams[].flow_rate", map[string]any{
		"streams": map[string]any{
			"a": map[string]any{"flow_rate": 1.0},
			"b": map[string]any{"flow_rate": 2.0},
		},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{1.0, 2.0}, out)
}

func TestGoJQEngine_ParseError(t *testing.T) {
	e := NewGoJQEngine()
	_, err := e.Evaluate(context.Background(), ".streams[", nil)
	require.Error(t, err)

	var engErr *schema.EngineeringError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, schema.ErrCodeValidation, engErr.Code)
}
