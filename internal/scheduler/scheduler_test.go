package scheduler_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/scheduler"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	t.Setenv("AGENTDECK_DATA_DIR", t.TempDir())
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// recordingExecutor remembers which tasks ran and can be told to fail.
type recordingExecutor struct {
	ran  []string
	fail bool
}

func (e *recordingExecutor) Execute(_ context.Context, task *models.Task) error {
	e.ran = append(e.ran, task.ID)
	if e.fail {
		return fmt.Errorf("executor down")
	}
	return nil
}

func seedScheduled(t *testing.T, st *store.MemoryStore, at time.Time, recurMs int64, end *time.Time) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:            uuid.NewString(),
		UserID:        "u1",
		Message:       "do the thing",
		Status:        models.TaskStatusPending,
		ScheduledTime: &at,
		RecurrenceMs:  recurMs,
		RecurrenceEnd: end,
	}
	require.NoError(t, st.CreateTask(context.Background(), task))
	return task
}

func TestRunCycle_CompletesDueTask(t *testing.T) {
	st := newTestStore(t)
	exec := &recordingExecutor{}
	r := scheduler.NewRunner(st, exec, time.Minute)

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)
	due := seedScheduled(t, st, past, 0, nil)
	notYet := seedScheduled(t, st, future, 0, nil)

	r.RunCycle(context.Background())

	require.Equal(t, []string{due.ID}, exec.ran)

	got, err := st.GetTask(context.Background(), due.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusCompleted, got.Status)

	later, err := st.GetTask(context.Background(), notYet.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusPending, later.Status)
}

func TestRunCycle_FailureMarksTaskFailed(t *testing.T) {
	st := newTestStore(t)
	exec := &recordingExecutor{fail: true}
	r := scheduler.NewRunner(st, exec, time.Minute)

	past := time.Now().UTC().Add(-time.Minute)
	task := seedScheduled(t, st, past, 0, nil)

	r.RunCycle(context.Background())

	got, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusFailed, got.Status)
}

func TestRunCycle_RecurringTaskRearms(t *testing.T) {
	st := newTestStore(t)
	exec := &recordingExecutor{}
	r := scheduler.NewRunner(st, exec, time.Minute)

	past := time.Now().UTC().Add(-time.Minute)
	task := seedScheduled(t, st, past, time.Hour.Milliseconds(), nil)

	r.RunCycle(context.Background())

	got, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusPending, got.Status)
	require.NotNil(t, got.ScheduledTime)
	require.True(t, got.ScheduledTime.After(time.Now().UTC()))

	// not due again yet, a second sweep must not run it
	r.RunCycle(context.Background())
	require.Len(t, exec.ran, 1)
}

func TestRunCycle_RecurrenceEndStopsRearming(t *testing.T) {
	st := newTestStore(t)
	exec := &recordingExecutor{}
	r := scheduler.NewRunner(st, exec, time.Minute)

	past := time.Now().UTC().Add(-time.Minute)
	end := time.Now().UTC().Add(30 * time.Minute)
	task := seedScheduled(t, st, past, time.Hour.Milliseconds(), &end)

	r.RunCycle(context.Background())

	got, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusCompleted, got.Status)
}

func TestRunCycle_LateSweepSkipsMissedSlots(t *testing.T) {
	st := newTestStore(t)
	exec := &recordingExecutor{}
	r := scheduler.NewRunner(st, exec, time.Minute)

	// scheduled three hours ago on an hourly recurrence: the next
	// slot lands in the future, not on one of the missed hours
	past := time.Now().UTC().Add(-3 * time.Hour)
	task := seedScheduled(t, st, past, time.Hour.Milliseconds(), nil)

	r.RunCycle(context.Background())

	got, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusPending, got.Status)
	require.True(t, got.ScheduledTime.After(time.Now().UTC()))
	require.Len(t, exec.ran, 1)
}
