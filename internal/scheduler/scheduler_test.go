package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrolab/flowsolve/internal/store"
	"github.com/hydrolab/flowsolve/pkg/schema"
)

// mockJobStore satisfies store.Store for scheduler tests.
type mockJobStore struct {
	store.Store
	mu   sync.Mutex
	jobs map[string]*store.ScheduledJob
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{jobs: make(map[string]*store.ScheduledJob)}
}

func (m *mockJobStore) put(job *store.ScheduledJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
}

func (m *mockJobStore) get(id string) *store.ScheduledJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.jobs[id]
	return &cp
}

func (m *mockJobStore) UpdateScheduledJob(_ context.Context, id string, update store.ScheduledJobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return errors.New("job not found")
	}
	if update.Enabled != nil {
		j.Enabled = *update.Enabled
	}
	if update.OperatingHours != nil {
		j.OperatingHours = *update.OperatingHours
	}
	if update.LastRunAt != nil {
		j.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		j.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != nil {
		j.LastRunStatus = *update.LastRunStatus
	}
	return nil
}

func (m *mockJobStore) ListScheduledJobs(_ context.Context, filter store.ScheduledJobFilter) ([]*store.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*store.ScheduledJob
	for _, j := range m.jobs {
		if filter.Enabled != nil && j.Enabled != *filter.Enabled {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}
	return result, nil
}

// stubRunner records solve invocations and returns a configured result.
type stubRunner struct {
	mu     sync.Mutex
	calls  []float64
	result *schema.SolveResult
	err    error
}

func (r *stubRunner) RunScheduled(_ context.Context, _ string, operatingHours float64) (*schema.SolveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, operatingHours)
	return r.result, r.err
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTick_RunsDueJobAndAdvancesHours(t *testing.T) {
	st := newMockJobStore()
	past := time.Now().UTC().Add(-time.Minute)
	st.put(&store.ScheduledJob{
		ID:             "job-1",
		FlowsheetID:    "fs-1",
		CronExpression: "0 * * * *",
		Enabled:        true,
		OperatingHours: 100.0,
		HoursPerRun:    24.0,
		NextRunAt:      &past,
	})

	runner := &stubRunner{result: &schema.SolveResult{Success: true, Converged: true}}
	s := NewScheduler(st, runner, testLogger())

	s.tick(context.Background())

	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, 124.0, runner.calls[0])

	job := st.get("job-1")
	assert.Equal(t, 124.0, job.OperatingHours)
	assert.Equal(t, "converged", job.LastRunStatus)
	require.NotNil(t, job.NextRunAt)
	assert.True(t, job.NextRunAt.After(time.Now().UTC()))
}

func TestTick_SkipsFutureJob(t *testing.T) {
	st := newMockJobStore()
	future := time.Now().UTC().Add(time.Hour)
	st.put(&store.ScheduledJob{
		ID: "job-1", FlowsheetID: "fs-1", CronExpression: "0 * * * *",
		Enabled: true, NextRunAt: &future,
	})

	runner := &stubRunner{result: &schema.SolveResult{Success: true, Converged: true}}
	NewScheduler(st, runner, testLogger()).tick(context.Background())

	assert.Equal(t, 0, runner.callCount())
}

func TestTick_SkipsDisabledJob(t *testing.T) {
	st := newMockJobStore()
	st.put(&store.ScheduledJob{
		ID: "job-1", FlowsheetID: "fs-1", CronExpression: "0 * * * *",
		Enabled: false,
	})

	runner := &stubRunner{result: &schema.SolveResult{Success: true, Converged: true}}
	NewScheduler(st, runner, testLogger()).tick(context.Background())

	assert.Equal(t, 0, runner.callCount())
}

func TestRunJob_UnconvergedStatus(t *testing.T) {
	st := newMockJobStore()
	st.put(&store.ScheduledJob{
		ID: "job-1", FlowsheetID: "fs-1", CronExpression: "*/5 * * * *",
		Enabled: true, HoursPerRun: 1.0,
	})

	runner := &stubRunner{result: &schema.SolveResult{Success: true, Converged: false}}
	s := NewScheduler(st, runner, testLogger())
	require.NoError(t, s.runJob(context.Background(), st.get("job-1"), time.Now().UTC()))

	assert.Equal(t, "unconverged", st.get("job-1").LastRunStatus)
	assert.Equal(t, 1.0, st.get("job-1").OperatingHours)
}

func TestRunJob_ErrorDoesNotAdvanceHours(t *testing.T) {
	st := newMockJobStore()
	st.put(&store.ScheduledJob{
		ID: "job-1", FlowsheetID: "fs-1", CronExpression: "0 * * * *",
		Enabled: true, OperatingHours: 50.0, HoursPerRun: 24.0,
	})

	runner := &stubRunner{err: errors.New("flowsheet missing")}
	s := NewScheduler(st, runner, testLogger())
	require.NoError(t, s.runJob(context.Background(), st.get("job-1"), time.Now().UTC()))

	job := st.get("job-1")
	assert.Equal(t, "error", job.LastRunStatus)
	assert.Equal(t, 50.0, job.OperatingHours)
}

func TestRunJob_BadCronExpression(t *testing.T) {
	st := newMockJobStore()
	st.put(&store.ScheduledJob{
		ID: "job-1", FlowsheetID: "fs-1", CronExpression: "not a cron",
		Enabled: true,
	})

	runner := &stubRunner{result: &schema.SolveResult{Success: true, Converged: true}}
	s := NewScheduler(st, runner, testLogger())
	err := s.runJob(context.Background(), st.get("job-1"), time.Now().UTC())
	require.Error(t, err)
}

func TestCalculateNextRun(t *testing.T) {
	s := NewScheduler(newMockJobStore(), &stubRunner{}, testLogger())

	from := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
	next, err := s.CalculateNextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC), next)

	_, err = s.CalculateNextRun("bogus", from)
	require.Error(t, err)
}

func TestRecoverMissed(t *testing.T) {
	st := newMockJobStore()
	missed := time.Now().UTC().Add(-2 * time.Hour)
	st.put(&store.ScheduledJob{
		ID: "job-1", FlowsheetID: "fs-1", CronExpression: "0 * * * *",
		Enabled: true, HoursPerRun: 1.0, NextRunAt: &missed,
	})
	st.put(&store.ScheduledJob{
		ID: "job-2", FlowsheetID: "fs-2", CronExpression: "0 * * * *",
		Enabled: true, HoursPerRun: 1.0, // never scheduled yet
	})

	runner := &stubRunner{result: &schema.SolveResult{Success: true, Converged: true}}
	s := NewScheduler(st, runner, testLogger())
	require.NoError(t, s.RecoverMissed(context.Background()))

	// Only the job with a missed next_run_at is recovered.
	assert.Equal(t, 1, runner.callCount())
	assert.Equal(t, "converged", st.get("job-1").LastRunStatus)
	assert.Empty(t, st.get("job-2").LastRunStatus)
}

func TestStartStop(t *testing.T) {
	st := newMockJobStore()
	runner := &stubRunner{result: &schema.SolveResult{Success: true, Converged: true}}
	s := NewScheduler(st, runner, testLogger())

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}
