package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/hydrolab/flowsolve/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Flowsheets ---

func (s *LibSQLStore) CreateFlowsheet(ctx context.Context, fs *Flowsheet) error {
	if len(fs.Document) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "flowsheet document is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flowsheets (id, name, description, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fs.ID, fs.Name, nullStr(fs.Description), string(fs.Document),
		timeOrNow(fs.CreatedAt), timeOrNow(fs.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetFlowsheet(ctx context.Context, id string) (*Flowsheet, error) {
	fs := &Flowsheet{}
	var description sql.NullString
	var document string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, document, created_at, updated_at FROM flowsheets WHERE id = ?`, id,
	).Scan(&fs.ID, &fs.Name, &description, &document, &fs.CreatedAt, &fs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("flowsheet", id)
	}
	if err != nil {
		return nil, err
	}
	fs.Description = description.String
	fs.Document = json.RawMessage(document)
	return fs, nil
}

func (s *LibSQLStore) UpdateFlowsheet(ctx context.Context, id string, update FlowsheetUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Document != nil {
		sets = append(sets, "document = ?")
		args = append(args, string(update.Document))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE flowsheets SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "flowsheet", id)
}

func (s *LibSQLStore) ListFlowsheets(ctx context.Context, filter FlowsheetFilter) ([]*Flowsheet, error) {
	var where []string
	var args []any

	if filter.Name != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+filter.Name+"%")
	}

	query := "SELECT id, name, description, document, created_at, updated_at FROM flowsheets"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flowsheets []*Flowsheet
	for rows.Next() {
		fs := &Flowsheet{}
		var description sql.NullString
		var document string
		if err := rows.Scan(&fs.ID, &fs.Name, &description, &document, &fs.CreatedAt, &fs.UpdatedAt); err != nil {
			return nil, err
		}
		fs.Description = description.String
		fs.Document = json.RawMessage(document)
		flowsheets = append(flowsheets, fs)
	}
	return flowsheets, rows.Err()
}

func (s *LibSQLStore) DeleteFlowsheet(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flowsheets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "flowsheet", id)
}

// --- Solve runs ---

func (s *LibSQLStore) CreateSolveRun(ctx context.Context, run *SolveRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO solve_runs (id, flowsheet_id, trigger_source, success, converged, iterations, max_error, system_recovery, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.FlowsheetID, run.Trigger, boolInt(run.Success), boolInt(run.Converged),
		run.Iterations, run.MaxError, run.SystemRecovery, nullRaw(run.Result),
		timeOrNow(run.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetSolveRun(ctx context.Context, id string) (*SolveRun, error) {
	run := &SolveRun{}
	var success, converged int
	var result sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, flowsheet_id, trigger_source, success, converged, iterations, max_error, system_recovery, result, created_at
		 FROM solve_runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.FlowsheetID, &run.Trigger, &success, &converged,
		&run.Iterations, &run.MaxError, &run.SystemRecovery, &result, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("solve run", id)
	}
	if err != nil {
		return nil, err
	}
	run.Success = success != 0
	run.Converged = converged != 0
	run.Result = rawOrNil(result)
	return run, nil
}

func (s *LibSQLStore) ListSolveRuns(ctx context.Context, filter SolveRunFilter) ([]*SolveRun, error) {
	var where []string
	var args []any

	if filter.FlowsheetID != "" {
		where = append(where, "flowsheet_id = ?")
		args = append(args, filter.FlowsheetID)
	}
	if filter.Trigger != "" {
		where = append(where, "trigger_source = ?")
		args = append(args, filter.Trigger)
	}
	if filter.Converged != nil {
		where = append(where, "converged = ?")
		args = append(args, boolInt(*filter.Converged))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, flowsheet_id, trigger_source, success, converged, iterations, max_error, system_recovery, result, created_at FROM solve_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*SolveRun
	for rows.Next() {
		run := &SolveRun{}
		var success, converged int
		var result sql.NullString
		if err := rows.Scan(&run.ID, &run.FlowsheetID, &run.Trigger, &success, &converged,
			&run.Iterations, &run.MaxError, &run.SystemRecovery, &result, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Success = success != 0
		run.Converged = converged != 0
		run.Result = rawOrNil(result)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Scheduled jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, flowsheet_id, cron_expression, enabled, operating_hours, hours_per_run, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.FlowsheetID, job.CronExpression, boolInt(job.Enabled),
		job.OperatingHours, job.HoursPerRun,
		nullTime(job.LastRunAt), nullTime(job.NextRunAt), nullStr(job.LastRunStatus),
		timeOrNow(job.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	job := &ScheduledJob{}
	var enabled int
	var lastRunAt, nextRunAt sql.NullTime
	var lastRunStatus sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, flowsheet_id, cron_expression, enabled, operating_hours, hours_per_run, last_run_at, next_run_at, last_run_status, created_at
		 FROM scheduled_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.FlowsheetID, &job.CronExpression, &enabled,
		&job.OperatingHours, &job.HoursPerRun, &lastRunAt, &nextRunAt, &lastRunStatus, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled job", id)
	}
	if err != nil {
		return nil, err
	}
	job.Enabled = enabled != 0
	if lastRunAt.Valid {
		job.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		job.NextRunAt = &nextRunAt.Time
	}
	job.LastRunStatus = lastRunStatus.String
	return job, nil
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any

	if update.CronExpression != nil {
		sets = append(sets, "cron_expression = ?")
		args = append(args, *update.CronExpression)
	}
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.OperatingHours != nil {
		sets = append(sets, "operating_hours = ?")
		args = append(args, *update.OperatingHours)
	}
	if update.HoursPerRun != nil {
		sets = append(sets, "hours_per_run = ?")
		args = append(args, *update.HoursPerRun)
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != nil {
		sets = append(sets, "last_run_status = ?")
		args = append(args, *update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	var where []string
	var args []any

	if filter.FlowsheetID != "" {
		where = append(where, "flowsheet_id = ?")
		args = append(args, filter.FlowsheetID)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolInt(*filter.Enabled))
	}

	query := `SELECT id, flowsheet_id, cron_expression, enabled, operating_hours, hours_per_run, last_run_at, next_run_at, last_run_status, created_at FROM scheduled_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		job := &ScheduledJob{}
		var enabled int
		var lastRunAt, nextRunAt sql.NullTime
		var lastRunStatus sql.NullString
		if err := rows.Scan(&job.ID, &job.FlowsheetID, &job.CronExpression, &enabled,
			&job.OperatingHours, &job.HoursPerRun, &lastRunAt, &nextRunAt, &lastRunStatus, &job.CreatedAt); err != nil {
			return nil, err
		}
		job.Enabled = enabled != 0
		if lastRunAt.Valid {
			job.LastRunAt = &lastRunAt.Time
		}
		if nextRunAt.Valid {
			job.NextRunAt = &nextRunAt.Time
		}
		job.LastRunStatus = lastRunStatus.String
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.EngineeringError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*LibSQLStore)(nil)
