package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hydrolab/flowsolve/internal/store"
	"github.com/hydrolab/flowsolve/internal/units"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

// handleHealth reports liveness and the registered calculator count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.deps.Version,
		"equipment":  s.deps.Registry.Count(),
		"persistent": s.deps.Store != nil,
	})
}

// equipmentTypeInfo is one entry of the equipment catalog response.
type equipmentTypeInfo struct {
	Type        schema.EquipmentType `json:"type"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Inputs      []schema.FieldSpec   `json:"inputs,omitempty"`
	Outputs     []schema.FieldSpec   `json:"outputs,omitempty"`
}

// handleEquipmentTypes lists registered equipment types with their catalog
// metadata, including configuration ranges.
func (s *Server) handleEquipmentTypes(w http.ResponseWriter, r *http.Request) {
	catalog := schema.EquipmentCatalog()

	types := s.deps.Registry.Types()
	infos := make([]equipmentTypeInfo, 0, len(types))
	for _, t := range types {
		info := equipmentTypeInfo{Type: t, Name: string(t)}
		if entry, ok := catalog[t]; ok {
			info.Name = entry.Name
			info.Description = entry.Description
			info.Inputs = entry.Inputs
			info.Outputs = entry.Outputs
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })

	writeJSON(w, http.StatusOK, map[string]any{"equipment_types": infos})
}

// handleCalculateUnit runs a single unit operation calculation outside any
// flowsheet. The path parameter selects the equipment type; the body carries
// the configuration as the calculator sees it after inlet merging.
func (s *Server) handleCalculateUnit(w http.ResponseWriter, r *http.Request) {
	eqType := schema.EquipmentType(r.PathValue("type"))
	unit, ok := s.deps.Registry.Get(eqType)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown equipment type: "+string(eqType))
		return
	}

	var body struct {
		EquipmentID string         `json:"equipment_id"`
		Config      map[string]any `json:"config" validate:"required"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.EquipmentID == "" {
		body.EquipmentID = string(eqType)
	}

	in := units.Inputs{
		EquipmentID: body.EquipmentID,
		Params:      body.Config,
		InletFlow:   feedFlowOf(body.Config),
	}
	result := unit.Compute(r.Context(), in)

	if s.deps.Metrics != nil {
		status := "success"
		if !result.Success {
			status = "failed"
		}
		s.deps.Metrics.CalculationsTotal.WithLabelValues(string(eqType), status).Inc()
	}

	writeJSON(w, http.StatusOK, result)
}

// handleValidateEquipment checks an equipment configuration against the
// static engineering rules for its type without running a calculation.
func (s *Server) handleValidateEquipment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EquipmentID   string               `json:"equipment_id"`
		EquipmentType schema.EquipmentType `json:"equipment_type" validate:"required"`
		Config        map[string]any       `json:"config" validate:"required"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	errs := units.ValidateConfig(body.EquipmentType, body.EquipmentID, body.Config)
	if errs == nil {
		errs = []*schema.EngineeringError{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  len(errs) == 0,
		"errors": errs,
	})
}

// handleCalculateFlowsheet validates and solves a flowsheet document posted
// inline, without persisting anything. An optional ?query= jq expression
// reshapes the solve result.
func (s *Server) handleCalculateFlowsheet(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	fs, vres := s.deps.Validator.Validate(raw)
	if !vres.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "flowsheet validation failed",
			"validation": vres,
		})
		return
	}

	start := time.Now()
	result := s.deps.Solver.Solve(r.Context(), fs)
	s.observeSolve(result, time.Since(start))

	s.writeSolveResult(w, r, result)
}

// --- Stored flowsheets ---

type flowsheetRequest struct {
	Name        string          `json:"name" validate:"required,min=1,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Document    json.RawMessage `json:"document" validate:"required"`
}

func (s *Server) handleCreateFlowsheet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	var body flowsheetRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, vres := s.deps.Validator.Validate(body.Document); !vres.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      "flowsheet validation failed",
			"validation": vres,
		})
		return
	}

	now := time.Now().UTC()
	rec := &store.Flowsheet{
		ID:          uuid.New().String(),
		Name:        body.Name,
		Description: body.Description,
		Document:    body.Document,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.deps.Store.CreateFlowsheet(r.Context(), rec); err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListFlowsheets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	flowsheets, err := s.deps.Store.ListFlowsheets(r.Context(), store.FlowsheetFilter{
		Name:   r.URL.Query().Get("name"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flowsheets": flowsheets})
}

func (s *Server) handleGetFlowsheet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	rec, err := s.deps.Store.GetFlowsheet(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateFlowsheet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	var body struct {
		Name        *string         `json:"name"`
		Description *string         `json:"description"`
		Document    json.RawMessage `json:"document"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(body.Document) > 0 {
		if _, vres := s.deps.Validator.Validate(body.Document); !vres.Valid() {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      "flowsheet validation failed",
				"validation": vres,
			})
			return
		}
	}

	err := s.deps.Store.UpdateFlowsheet(r.Context(), r.PathValue("id"), store.FlowsheetUpdate{
		Name:        body.Name,
		Description: body.Description,
		Document:    body.Document,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "id": r.PathValue("id")})
}

func (s *Server) handleDeleteFlowsheet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	if err := s.deps.Store.DeleteFlowsheet(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "id": r.PathValue("id")})
}

// handleSolveFlowsheet solves a stored flowsheet and records the run.
func (s *Server) handleSolveFlowsheet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	result, err := s.solveStored(r.Context(), r.PathValue("id"), 0, store.TriggerAPI)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.writeSolveResult(w, r, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	runs, err := s.deps.Store.ListSolveRuns(r.Context(), store.SolveRunFilter{
		FlowsheetID: r.PathValue("id"),
		Trigger:     r.URL.Query().Get("trigger"),
		Converged:   queryBool(r, "converged"),
		Limit:       queryInt(r, "limit", 50),
		Offset:      queryInt(r, "offset", 0),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	run, err := s.deps.Store.GetSolveRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// --- Scheduled jobs ---

type jobRequest struct {
	FlowsheetID    string  `json:"flowsheet_id" validate:"required"`
	CronExpression string  `json:"cron_expression" validate:"required"`
	Enabled        bool    `json:"enabled"`
	OperatingHours float64 `json:"operating_hours" validate:"gte=0"`
	HoursPerRun    float64 `json:"hours_per_run" validate:"gte=0"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	var body jobRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	schedule, err := s.parser.Parse(body.CronExpression)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cron expression: "+err.Error())
		return
	}

	if _, err := s.deps.Store.GetFlowsheet(r.Context(), body.FlowsheetID); err != nil {
		writeStoreError(w, err)
		return
	}

	now := time.Now().UTC()
	next := schedule.Next(now)
	job := &store.ScheduledJob{
		ID:             uuid.New().String(),
		FlowsheetID:    body.FlowsheetID,
		CronExpression: body.CronExpression,
		Enabled:        body.Enabled,
		OperatingHours: body.OperatingHours,
		HoursPerRun:    body.HoursPerRun,
		NextRunAt:      &next,
		CreatedAt:      now,
	}
	if err := s.deps.Store.CreateScheduledJob(r.Context(), job); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	jobs, err := s.deps.Store.ListScheduledJobs(r.Context(), store.ScheduledJobFilter{
		FlowsheetID: r.URL.Query().Get("flowsheet_id"),
		Enabled:     queryBool(r, "enabled"),
		Limit:       queryInt(r, "limit", 50),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	job, err := s.deps.Store.GetScheduledJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	var body struct {
		CronExpression *string  `json:"cron_expression"`
		Enabled        *bool    `json:"enabled"`
		OperatingHours *float64 `json:"operating_hours"`
		HoursPerRun    *float64 `json:"hours_per_run"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	update := store.ScheduledJobUpdate{
		CronExpression: body.CronExpression,
		Enabled:        body.Enabled,
		OperatingHours: body.OperatingHours,
		HoursPerRun:    body.HoursPerRun,
	}
	if body.CronExpression != nil {
		schedule, err := s.parser.Parse(*body.CronExpression)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cron expression: "+err.Error())
			return
		}
		next := schedule.Next(time.Now().UTC())
		update.NextRunAt = &next
	}

	if err := s.deps.Store.UpdateScheduledJob(r.Context(), r.PathValue("id"), update); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "id": r.PathValue("id")})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	if err := s.deps.Store.DeleteScheduledJob(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "id": r.PathValue("id")})
}

// writeSolveResult writes the solve result, applying the optional ?query=
// jq filter. A broken query never loses the result: it degrades to an
// error+result envelope.
func (s *Server) writeSolveResult(w http.ResponseWriter, r *http.Request, result *schema.SolveResult) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeJSON(w, http.StatusOK, result)
		return
	}

	filtered, err := s.applyQuery(r.Context(), query, result)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "query failed: " + err.Error(),
			"result": result,
		})
		return
	}
	writeJSON(w, http.StatusOK, filtered)
}

// feedFlowOf extracts the feed flow from a standalone calculation config so
// pass-through units conserve mass outside a flowsheet context.
func feedFlowOf(config map[string]any) float64 {
	for _, key := range []string{"feed_flow", "inlet_flow", "flow_rate"} {
		if v, ok := config[key]; ok {
			if f, ok := v.(float64); ok {
				return f
			}
		}
	}
	return 0
}
