package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hydrolab/flowsolve/internal/logging"
	"github.com/hydrolab/flowsolve/internal/units"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

// handleSolve validates and solves a flowsheet, from an inline document or
// from the store.
func (s *FlowsolveServer) handleSolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, errResult := s.resolveDocument(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	fs, vres := s.validator.Validate(raw)
	if !vres.Valid() {
		return marshalResult(map[string]any{
			"error":      "flowsheet validation failed",
			"validation": vres,
		})
	}

	result := s.solver.Solve(ctx, fs)
	return marshalResult(result)
}

// resolveDocument returns the raw flowsheet document from the request,
// inline or by stored ID. The second return value is a ready error result.
func (s *FlowsolveServer) resolveDocument(ctx context.Context, req mcp.CallToolRequest) ([]byte, *mcp.CallToolResult) {
	if doc := mcp.ParseStringMap(req, "flowsheet", nil); doc != nil {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, mcp.NewToolResultError(fmt.Sprintf("invalid flowsheet document: %v", err))
		}
		return raw, nil
	}

	flowsheetID := req.GetString("flowsheet_id", "")
	if flowsheetID == "" {
		return nil, mcp.NewToolResultError("either flowsheet or flowsheet_id is required")
	}
	if s.store == nil {
		return nil, mcp.NewToolResultError("flowsheet_id requires persistence, which is not configured")
	}

	rec, err := s.store.GetFlowsheet(logging.WithFlowsheetID(ctx, flowsheetID), flowsheetID)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("flowsheet lookup failed: %v", err))
	}
	return rec.Document, nil
}

// handleCalculate runs one unit operation calculation.
func (s *FlowsolveServer) handleCalculate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eqType, err := req.RequireString("equipment_type")
	if err != nil {
		return mcp.NewToolResultError("equipment_type is required"), nil
	}

	config := mcp.ParseStringMap(req, "config", nil)
	if config == nil {
		return mcp.NewToolResultError("config is required"), nil
	}

	unit, ok := s.registry.Get(schema.EquipmentType(eqType))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown equipment type: %s", eqType)), nil
	}

	equipmentID := req.GetString("equipment_id", eqType)

	in := units.Inputs{
		EquipmentID: equipmentID,
		Params:      config,
		InletFlow:   feedFlowOf(config),
	}
	return marshalResult(unit.Compute(ctx, in))
}

// handleValidate checks a flowsheet document without solving it.
func (s *FlowsolveServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc := mcp.ParseStringMap(req, "flowsheet", nil)
	if doc == nil {
		return mcp.NewToolResultError("flowsheet is required"), nil
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid flowsheet document: %v", err)), nil
	}

	_, vres := s.validator.Validate(raw)
	return marshalResult(map[string]any{
		"valid":      vres.Valid(),
		"validation": vres,
	})
}

// handleCatalog lists the registered equipment types with catalog metadata.
func (s *FlowsolveServer) handleCatalog(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog := schema.EquipmentCatalog()

	type entry struct {
		Type        schema.EquipmentType `json:"type"`
		Name        string               `json:"name"`
		Description string               `json:"description,omitempty"`
		Inputs      []schema.FieldSpec   `json:"inputs,omitempty"`
		Outputs     []schema.FieldSpec   `json:"outputs,omitempty"`
	}

	types := s.registry.Types()
	entries := make([]entry, 0, len(types))
	for _, t := range types {
		e := entry{Type: t, Name: string(t)}
		if ce, ok := catalog[t]; ok {
			e.Name = ce.Name
			e.Description = ce.Description
			e.Inputs = ce.Inputs
			e.Outputs = ce.Outputs
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Type < entries[j].Type })

	return marshalResult(map[string]any{"equipment_types": entries})
}

// feedFlowOf extracts the feed flow from a standalone calculation config.
func feedFlowOf(config map[string]any) float64 {
	for _, key := range []string{"feed_flow", "inlet_flow", "flow_rate"} {
		if f, ok := config[key].(float64); ok {
			return f
		}
	}
	return 0
}

// marshalResult wraps a value as a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
