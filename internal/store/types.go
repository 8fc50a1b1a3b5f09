package store

import (
	"encoding/json"
	"time"
)

// Flowsheet is the persisted representation of a flowsheet document. The
// document itself is stored as raw JSON in the shape the solver consumes.
type Flowsheet struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Document    json.RawMessage `json:"document"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Solve-run trigger sources.
const (
	TriggerAPI       = "api"
	TriggerScheduled = "scheduled"
)

// SolveRun is one recorded execution of the mass-balance solver against a
// stored flowsheet. Append-only: runs are never updated.
type SolveRun struct {
	ID             string          `json:"id"`
	FlowsheetID    string          `json:"flowsheet_id"`
	Trigger        string          `json:"trigger"` // api | scheduled
	Success        bool            `json:"success"`
	Converged      bool            `json:"converged"`
	Iterations     int             `json:"iterations"`
	MaxError       float64         `json:"max_error"`
	SystemRecovery float64         `json:"system_recovery"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ScheduledJob is a cron-triggered re-solve of a stored flowsheet. Each run
// advances the accumulated operating hours fed into the equipment configs,
// so fouling-dependent results drift realistically over time.
type ScheduledJob struct {
	ID             string     `json:"id"`
	FlowsheetID    string     `json:"flowsheet_id"`
	CronExpression string     `json:"cron_expression"`
	Enabled        bool       `json:"enabled"`
	OperatingHours float64    `json:"operating_hours"`
	HoursPerRun    float64    `json:"hours_per_run"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// --- Filter and update types ---

// FlowsheetFilter narrows ListFlowsheets results.
type FlowsheetFilter struct {
	Name   string
	Limit  int
	Offset int
}

// FlowsheetUpdate modifies selected flowsheet fields; nil means unchanged.
type FlowsheetUpdate struct {
	Name        *string
	Description *string
	Document    json.RawMessage
}

// SolveRunFilter narrows ListSolveRuns results.
type SolveRunFilter struct {
	FlowsheetID string
	Trigger     string
	Converged   *bool
	Since       *time.Time
	Limit       int
	Offset      int
}

// ScheduledJobFilter narrows ListScheduledJobs results.
type ScheduledJobFilter struct {
	FlowsheetID string
	Enabled     *bool
	Limit       int
}

// ScheduledJobUpdate modifies selected job fields; nil means unchanged.
type ScheduledJobUpdate struct {
	CronExpression *string
	Enabled        *bool
	OperatingHours *float64
	HoursPerRun    *float64
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	LastRunStatus  *string
}
