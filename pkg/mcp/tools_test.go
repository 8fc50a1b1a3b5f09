package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrolab/flowsolve/internal/expressions"
	"github.com/hydrolab/flowsolve/internal/solver"
	"github.com/hydrolab/flowsolve/internal/store"
	"github.com/hydrolab/flowsolve/internal/units"
	"github.com/hydrolab/flowsolve/internal/validation"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

// mockFlowsheetStore satisfies store.Store for document lookup tests.
type mockFlowsheetStore struct {
	store.Store
	flowsheets map[string]*store.Flowsheet
}

func (m *mockFlowsheetStore) GetFlowsheet(_ context.Context, id string) (*store.Flowsheet, error) {
	if fs, ok := m.flowsheets[id]; ok {
		return fs, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "flowsheet %q not found", id)
}

func newTestMCPServer(t *testing.T, st store.Store) *FlowsolveServer {
	t.Helper()

	reg := units.NewRegistry()
	require.NoError(t, units.RegisterBuiltins(reg, units.DefaultLimits(), expressions.NewExprEngine()))

	v, err := validation.NewValidator()
	require.NoError(t, err)

	return NewFlowsolveServer(FlowsolveServerDeps{
		Registry:  reg,
		Validator: v,
		Solver:    solver.New(reg, solver.Options{}),
		Store:     st,
	})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text := mcp.GetTextFromContent(result.Content[0])
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	return out
}

func tankDoc(feedFlow float64) map[string]any {
	return map[string]any{
		"equipment": map[string]any{
			"TANK-001": map[string]any{
				"equipment_id":   "TANK-001",
				"equipment_type": "tank",
				"config":         map[string]any{},
				"inlet_streams":  []any{"feed_1"},
				"outlet_streams": []any{"product_1"},
			},
		},
		"streams": map[string]any{
			"feed_1": map[string]any{
				"stream_id":        "feed_1",
				"flow_rate":        feedFlow,
				"target_equipment": "TANK-001",
			},
			"product_1": map[string]any{
				"stream_id":        "product_1",
				"source_equipment": "TANK-001",
			},
		},
	}
}

func TestSolveTool_InlineDocument(t *testing.T) {
	s := newTestMCPServer(t, nil)

	req := buildRequest("flowsolve.solve", map[string]any{
		"flowsheet": tankDoc(100),
	})

	result, err := s.handleSolve(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	body := resultJSON(t, result)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["converged"])
}

func TestSolveTool_StoredFlowsheet(t *testing.T) {
	doc, err := json.Marshal(tankDoc(50))
	require.NoError(t, err)

	st := &mockFlowsheetStore{flowsheets: map[string]*store.Flowsheet{
		"fs-1": {ID: "fs-1", Name: "line", Document: doc},
	}}
	s := newTestMCPServer(t, st)

	req := buildRequest("flowsolve.solve", map[string]any{
		"flowsheet_id": "fs-1",
	})

	result, err := s.handleSolve(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	body := resultJSON(t, result)
	assert.Equal(t, true, body["converged"])
}

func TestSolveTool_MissingInput(t *testing.T) {
	s := newTestMCPServer(t, nil)

	result, err := s.handleSolve(context.Background(), buildRequest("flowsolve.solve", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSolveTool_StoredWithoutPersistence(t *testing.T) {
	s := newTestMCPServer(t, nil)

	req := buildRequest("flowsolve.solve", map[string]any{"flowsheet_id": "fs-1"})
	result, err := s.handleSolve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSolveTool_InvalidDocument(t *testing.T) {
	s := newTestMCPServer(t, nil)

	req := buildRequest("flowsolve.solve", map[string]any{
		"flowsheet": map[string]any{
			"equipment": map[string]any{},
			"streams":   map[string]any{},
		},
	})
	result, err := s.handleSolve(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	body := resultJSON(t, result)
	assert.Equal(t, "flowsheet validation failed", body["error"])
}

func TestCalculateTool(t *testing.T) {
	s := newTestMCPServer(t, nil)

	req := buildRequest("flowsolve.calculate", map[string]any{
		"equipment_type": "pump",
		"equipment_id":   "PUMP-001",
		"config": map[string]any{
			"feed_flow":          100.0,
			"discharge_pressure": 3.0,
		},
	})

	result, err := s.handleCalculate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	body := resultJSON(t, result)
	assert.Equal(t, true, body["success"])
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 11.118, data["power_consumption"], 0.001)
}

func TestCalculateTool_UnknownType(t *testing.T) {
	s := newTestMCPServer(t, nil)

	req := buildRequest("flowsolve.calculate", map[string]any{
		"equipment_type": "reverse_osmosis",
		"config":         map[string]any{},
	})
	result, err := s.handleCalculate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCalculateTool_MissingConfig(t *testing.T) {
	s := newTestMCPServer(t, nil)

	req := buildRequest("flowsolve.calculate", map[string]any{
		"equipment_type": "pump",
	})
	result, err := s.handleCalculate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestValidateTool(t *testing.T) {
	s := newTestMCPServer(t, nil)

	req := buildRequest("flowsolve.validate", map[string]any{
		"flowsheet": tankDoc(10),
	})
	result, err := s.handleValidate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	body := resultJSON(t, result)
	assert.Equal(t, true, body["valid"])
}

func TestValidateTool_ReportsIssues(t *testing.T) {
	s := newTestMCPServer(t, nil)

	doc := tankDoc(10)
	eq := doc["equipment"].(map[string]any)["TANK-001"].(map[string]any)
	eq["inlet_streams"] = []any{"ghost_stream"}

	req := buildRequest("flowsolve.validate", map[string]any{"flowsheet": doc})
	result, err := s.handleValidate(context.Background(), req)
	require.NoError(t, err)

	body := resultJSON(t, result)
	assert.Equal(t, false, body["valid"])
}

func TestCatalogTool(t *testing.T) {
	s := newTestMCPServer(t, nil)

	result, err := s.handleCatalog(context.Background(), buildRequest("flowsolve.catalog", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	body := resultJSON(t, result)
	entries, ok := body["equipment_types"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, entries)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		m := e.(map[string]any)
		names = append(names, m["type"].(string))
	}
	assert.Contains(t, names, "ultrafiltration")
	assert.Contains(t, names, "feed_tank")
	assert.Contains(t, names, "pump")
}
