// Package store persists flowsheets, solve runs and scheduled jobs in an
// embedded libSQL database.
package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Flowsheets
	CreateFlowsheet(ctx context.Context, fs *Flowsheet) error
	GetFlowsheet(ctx context.Context, id string) (*Flowsheet, error)
	UpdateFlowsheet(ctx context.Context, id string, update FlowsheetUpdate) error
	ListFlowsheets(ctx context.Context, filter FlowsheetFilter) ([]*Flowsheet, error)
	DeleteFlowsheet(ctx context.Context, id string) error

	// Solve runs (append-only history)
	CreateSolveRun(ctx context.Context, run *SolveRun) error
	GetSolveRun(ctx context.Context, id string) (*SolveRun, error)
	ListSolveRuns(ctx context.Context, filter SolveRunFilter) ([]*SolveRun, error)

	// Scheduled jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
