package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrolab/flowsolve/internal/expressions"
	"github.com/hydrolab/flowsolve/internal/metrics"
	"github.com/hydrolab/flowsolve/internal/solver"
	"github.com/hydrolab/flowsolve/internal/store"
	"github.com/hydrolab/flowsolve/internal/units"
	"github.com/hydrolab/flowsolve/internal/validation"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

// mockStore satisfies store.Store for API tests; only the methods the
// handlers under test touch are implemented.
type mockStore struct {
	store.Store
	mu         sync.Mutex
	flowsheets map[string]*store.Flowsheet
	runs       []*store.SolveRun
	jobs       map[string]*store.ScheduledJob
}

func newMockStore() *mockStore {
	return &mockStore{
		flowsheets: make(map[string]*store.Flowsheet),
		jobs:       make(map[string]*store.ScheduledJob),
	}
}

func (m *mockStore) CreateFlowsheet(_ context.Context, fs *store.Flowsheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *fs
	m.flowsheets[fs.ID] = &cp
	return nil
}

func (m *mockStore) GetFlowsheet(_ context.Context, id string) (*store.Flowsheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.flowsheets[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "flowsheet %q not found", id)
	}
	cp := *fs
	return &cp, nil
}

func (m *mockStore) ListFlowsheets(_ context.Context, _ store.FlowsheetFilter) ([]*store.Flowsheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Flowsheet
	for _, fs := range m.flowsheets {
		cp := *fs
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockStore) DeleteFlowsheet(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flowsheets[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "flowsheet %q not found", id)
	}
	delete(m.flowsheets, id)
	return nil
}

func (m *mockStore) CreateSolveRun(_ context.Context, run *store.SolveRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs = append(m.runs, &cp)
	return nil
}

func (m *mockStore) ListSolveRuns(_ context.Context, filter store.SolveRunFilter) ([]*store.SolveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.SolveRun
	for _, run := range m.runs {
		if filter.FlowsheetID != "" && run.FlowsheetID != filter.FlowsheetID {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockStore) CreateScheduledJob(_ context.Context, job *store.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockStore) lastRun() *store.SolveRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil
	}
	cp := *m.runs[len(m.runs)-1]
	return &cp
}

func newTestServer(t *testing.T, st store.Store) *Server {
	t.Helper()

	reg := units.NewRegistry()
	require.NoError(t, units.RegisterBuiltins(reg, units.DefaultLimits(), expressions.NewExprEngine()))

	v, err := validation.NewValidator()
	require.NoError(t, err)

	return NewServer(Deps{
		Store:     st,
		Registry:  reg,
		Validator: v,
		Solver:    solver.New(reg, solver.Options{}),
		Query:     expressions.NewGoJQEngine(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version:   "test",
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// tankChainDoc is a two-tank pass-through flowsheet that converges cleanly.
func tankChainDoc(feedFlow float64) map[string]any {
	return map[string]any{
		"equipment": map[string]any{
			"TANK-001": map[string]any{
				"equipment_id":   "TANK-001",
				"equipment_type": "tank",
				"config":         map[string]any{},
				"inlet_streams":  []string{"feed_1"},
				"outlet_streams": []string{"mid_1"},
			},
			"TANK-002": map[string]any{
				"equipment_id":   "TANK-002",
				"equipment_type": "tank",
				"config":         map[string]any{},
				"inlet_streams":  []string{"mid_1"},
				"outlet_streams": []string{"product_1"},
			},
		},
		"streams": map[string]any{
			"feed_1": map[string]any{
				"stream_id":        "feed_1",
				"flow_rate":        feedFlow,
				"target_equipment": "TANK-001",
			},
			"mid_1": map[string]any{
				"stream_id":        "mid_1",
				"source_equipment": "TANK-001",
				"target_equipment": "TANK-002",
			},
			"product_1": map[string]any{
				"stream_id":        "product_1",
				"source_equipment": "TANK-002",
			},
		},
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, false, body["persistent"])
}

func TestEquipmentTypes(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/equipment/types", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		EquipmentTypes []equipmentTypeInfo `json:"equipment_types"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.EquipmentTypes)

	var uf *equipmentTypeInfo
	for i := range body.EquipmentTypes {
		if body.EquipmentTypes[i].Type == schema.EquipmentUltrafiltration {
			uf = &body.EquipmentTypes[i]
		}
	}
	require.NotNil(t, uf, "ultrafiltration missing from catalog")
	assert.Equal(t, "Ultrafiltration", uf.Name)
	assert.NotEmpty(t, uf.Inputs)
}

func TestCalculateUnit_Pump(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/calculate/pump", map[string]any{
		"equipment_id": "PUMP-001",
		"config": map[string]any{
			"feed_flow":          100.0,
			"discharge_pressure": 3.0,
			"efficiency":         0.75,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result schema.CalcResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)
	assert.InDelta(t, 11.118, result.Data["power_consumption"], 0.001)
}

func TestCalculateUnit_UnknownType(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/calculate/reverse_osmosis", map[string]any{
		"config": map[string]any{"feed_flow": 10.0},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalculateUnit_FailureIsStill200(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	// Missing required membrane inputs: the calculation fails but the HTTP
	// exchange itself is fine.
	rec := doJSON(t, h, http.MethodPost, "/api/calculate/ultrafiltration", map[string]any{
		"config": map[string]any{"feed_flow": 100.0},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result schema.CalcResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, schema.ErrCodeCalculation, result.Errors[0].Code)
}

func TestValidateEquipment(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/validate/equipment", map[string]any{
		"equipment_id":   "UF-001",
		"equipment_type": "ultrafiltration",
		"config": map[string]any{
			"membrane_area":          -5.0,
			"transmembrane_pressure": 1.0,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeResponse(t, rec)
	assert.Equal(t, false, body["valid"])
	raw, _ := json.Marshal(body["errors"])
	assert.Contains(t, string(raw), schema.ErrCodeInvalidMembraneArea)
}

func TestCalculateFlowsheet_Inline(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/calculate/flowsheet", tankChainDoc(100))
	require.Equal(t, http.StatusOK, rec.Code)

	var result schema.SolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.True(t, result.Converged)
	assert.InDelta(t, 100.0, result.Streams["product_1"].FlowRate, 1e-6)
}

func TestCalculateFlowsheet_QueryFilter(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := doJSON(t, h, http.MethodPost,
		"/api/calculate/flowsheet?query=.streams.product_1.flow_rate", tankChainDoc(75))
	require.Equal(t, http.StatusOK, rec.Code)

	var value float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &value))
	assert.InDelta(t, 75.0, value, 1e-6)
}

func TestCalculateFlowsheet_InvalidDocument(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/calculate/flowsheet", map[string]any{
		"equipment": map[string]any{},
		"streams":   map[string]any{},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeResponse(t, rec)
	assert.Contains(t, body["error"], "validation failed")
}

func TestFlowsheetCRUDAndSolve(t *testing.T) {
	st := newMockStore()
	srv := newTestServer(t, st)
	h := srv.Handler()

	doc, err := json.Marshal(tankChainDoc(100))
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodPost, "/api/flowsheets", map[string]any{
		"name":     "UF pilot line",
		"document": json.RawMessage(doc),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeResponse(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)

	rec = doJSON(t, h, http.MethodGet, "/api/flowsheets/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "UF pilot line", decodeResponse(t, rec)["name"])

	// Solve it and check the run was recorded.
	rec = doJSON(t, h, http.MethodPost, "/api/flowsheets/"+id+"/solve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result schema.SolveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Converged)

	run := st.lastRun()
	require.NotNil(t, run)
	assert.Equal(t, id, run.FlowsheetID)
	assert.Equal(t, store.TriggerAPI, run.Trigger)
	assert.True(t, run.Converged)

	rec = doJSON(t, h, http.MethodGet, "/api/flowsheets/"+id+"/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runsBody struct {
		Runs []*store.SolveRun `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runsBody))
	assert.Len(t, runsBody.Runs, 1)

	rec = doJSON(t, h, http.MethodDelete, "/api/flowsheets/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/flowsheets/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateFlowsheet_RejectsInvalidDocument(t *testing.T) {
	h := newTestServer(t, newMockStore()).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/flowsheets", map[string]any{
		"name":     "broken",
		"document": map[string]any{"equipment": map[string]any{}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSolveFlowsheet_NotFound(t *testing.T) {
	h := newTestServer(t, newMockStore()).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/flowsheets/missing/solve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPersistenceRoutesWithoutStore(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/flowsheets", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/jobs", map[string]any{
		"flowsheet_id":    "x",
		"cron_expression": "* * * * *",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateJob_InvalidCron(t *testing.T) {
	st := newMockStore()
	h := newTestServer(t, st).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/jobs", map[string]any{
		"flowsheet_id":    "fs-1",
		"cron_expression": "not a cron",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_ComputesNextRun(t *testing.T) {
	st := newMockStore()
	doc, err := json.Marshal(tankChainDoc(100))
	require.NoError(t, err)
	require.NoError(t, st.CreateFlowsheet(context.Background(), &store.Flowsheet{
		ID: "fs-1", Name: "line", Document: doc,
	}))

	h := newTestServer(t, st).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/jobs", map[string]any{
		"flowsheet_id":    "fs-1",
		"cron_expression": "0 * * * *",
		"enabled":         true,
		"hours_per_run":   24.0,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var job store.ScheduledJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.NotNil(t, job.NextRunAt)
	assert.True(t, job.NextRunAt.After(time.Now().UTC()))
	assert.Equal(t, 24.0, job.HoursPerRun)
}

func TestRunScheduled_RecordsScheduledRun(t *testing.T) {
	st := newMockStore()
	doc, err := json.Marshal(tankChainDoc(100))
	require.NoError(t, err)
	require.NoError(t, st.CreateFlowsheet(context.Background(), &store.Flowsheet{
		ID: "fs-1", Name: "line", Document: doc,
	}))

	srv := newTestServer(t, st)

	result, err := srv.RunScheduled(context.Background(), "fs-1", 240)
	require.NoError(t, err)
	assert.True(t, result.Converged)

	run := st.lastRun()
	require.NotNil(t, run)
	assert.Equal(t, store.TriggerScheduled, run.Trigger)
	assert.Equal(t, "fs-1", run.FlowsheetID)
}

func TestRunScheduled_InjectsOperatingHours(t *testing.T) {
	// A membrane flowsheet solved through the scheduler path must reflect
	// accumulated runtime: fouling resistance grows with operating hours,
	// so permeate flow drops relative to a fresh membrane.
	ufDoc := func() map[string]any {
		return map[string]any{
			"equipment": map[string]any{
				"UF-001": map[string]any{
					"equipment_id":   "UF-001",
					"equipment_type": "ultrafiltration",
					"config": map[string]any{
						"membrane_area":          500.0,
						"transmembrane_pressure": 1.0,
					},
					"inlet_streams":  []string{"feed_1"},
					"outlet_streams": []string{"permeate_1", "concentrate_1"},
				},
			},
			"streams": map[string]any{
				"feed_1": map[string]any{
					"stream_id":        "feed_1",
					"flow_rate":        100.0,
					"target_equipment": "UF-001",
				},
				"permeate_1": map[string]any{
					"stream_id":        "permeate_1",
					"source_equipment": "UF-001",
					"source_port":      "permeate_outlet",
				},
				"concentrate_1": map[string]any{
					"stream_id":        "concentrate_1",
					"source_equipment": "UF-001",
					"source_port":      "concentrate_outlet",
				},
			},
		}
	}

	st := newMockStore()
	doc, err := json.Marshal(ufDoc())
	require.NoError(t, err)
	require.NoError(t, st.CreateFlowsheet(context.Background(), &store.Flowsheet{
		ID: "fs-uf", Name: "membrane skid", Document: doc,
	}))

	srv := newTestServer(t, st)

	fresh, err := srv.RunScheduled(context.Background(), "fs-uf", 0)
	require.NoError(t, err)
	require.True(t, fresh.Success)

	aged, err := srv.RunScheduled(context.Background(), "fs-uf", 8760)
	require.NoError(t, err)
	require.True(t, aged.Success)

	freshPermeate := fresh.Streams["permeate_1"].FlowRate
	agedPermeate := aged.Streams["permeate_1"].FlowRate
	assert.Less(t, agedPermeate, freshPermeate)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := units.NewRegistry()
	require.NoError(t, units.RegisterBuiltins(reg, units.DefaultLimits(), expressions.NewExprEngine()))
	v, err := validation.NewValidator()
	require.NoError(t, err)

	srv := NewServer(Deps{
		Registry:  reg,
		Validator: v,
		Solver:    solver.New(reg, solver.Options{}),
		Metrics:   metrics.NewRegistry(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h := srv.Handler()

	// Generate some traffic first.
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowsolve_http_requests_total")
}
