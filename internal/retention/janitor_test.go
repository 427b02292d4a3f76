package retention_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/retention"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	t.Setenv("AGENTDECK_DATA_DIR", t.TempDir())
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	return st
}

func seedTask(t *testing.T, st store.Store, status models.TaskStatus, age time.Duration, recurrenceMs int64) *models.Task {
	t.Helper()
	now := time.Now().UTC()
	task := &models.Task{
		ID:           uuid.New().String(),
		UserID:       "user-1",
		Message:      "archived work",
		Status:       status,
		RecurrenceMs: recurrenceMs,
		CreatedAt:    now.Add(-age),
		UpdatedAt:    now.Add(-age),
	}
	require.NoError(t, st.CreateTask(context.Background(), task))
	return task
}

func TestRunCycle_PrunesAgedOutTasks(t *testing.T) {
	st := newTestStore(t)
	j := retention.NewJanitor(st, time.Hour, 30)

	old := seedTask(t, st, models.TaskStatusCompleted, 40*24*time.Hour, 0)
	fresh := seedTask(t, st, models.TaskStatusCompleted, 1*24*time.Hour, 0)
	pending := seedTask(t, st, models.TaskStatusPending, 40*24*time.Hour, 0)
	recurring := seedTask(t, st, models.TaskStatusCompleted, 40*24*time.Hour, 60_000)

	stats := j.RunCycle(context.Background())
	require.Empty(t, stats.Errors)
	require.Equal(t, 1, stats.TasksPurged)

	_, err := st.GetTask(context.Background(), old.ID)
	require.True(t, store.IsNotFound(err))
	for _, keep := range []*models.Task{fresh, pending, recurring} {
		_, err := st.GetTask(context.Background(), keep.ID)
		require.NoError(t, err)
	}
}

func TestRunCycle_PrunesExpiredOTPs(t *testing.T) {
	st := newTestStore(t)
	j := retention.NewJanitor(st, time.Hour, 30)

	require.NoError(t, st.UpsertOTP(context.Background(), &models.OTPCode{
		UserID:    "user-expired",
		Purpose:   models.OTPVerifyEmail,
		Code:      "111111",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, st.UpsertOTP(context.Background(), &models.OTPCode{
		UserID:    "user-live",
		Purpose:   models.OTPVerifyEmail,
		Code:      "222222",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	stats := j.RunCycle(context.Background())
	require.Equal(t, 1, stats.OTPsPruned)

	_, err := st.GetOTP(context.Background(), "user-expired", models.OTPVerifyEmail)
	require.True(t, store.IsNotFound(err))
	_, err = st.GetOTP(context.Background(), "user-live", models.OTPVerifyEmail)
	require.NoError(t, err)
}

func TestRunCycle_ArchivesBeforePurge(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()

	j := retention.NewJanitor(st, time.Hour, 30)
	j.SetArchiver(retention.NewLocalFileArchiver(dir, false))

	old := seedTask(t, st, models.TaskStatusFailed, 40*24*time.Hour, 0)

	stats := j.RunCycle(context.Background())
	require.Empty(t, stats.Errors)
	require.Equal(t, 1, stats.TasksArchived)
	require.Equal(t, 1, stats.TasksPurged)

	files, err := filepath.Glob(filepath.Join(dir, "tasks", "*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	require.Contains(t, string(data), old.ID)
}

type failingArchiver struct{}

func (failingArchiver) ArchiveTasks(context.Context, []models.Task) (string, error) {
	return "", os.ErrPermission
}

func TestRunCycle_ArchiveFailureSkipsPurge(t *testing.T) {
	st := newTestStore(t)
	j := retention.NewJanitor(st, time.Hour, 30)
	j.SetArchiver(failingArchiver{})

	old := seedTask(t, st, models.TaskStatusCompleted, 40*24*time.Hour, 0)

	stats := j.RunCycle(context.Background())
	require.NotEmpty(t, stats.Errors)
	require.Zero(t, stats.TasksPurged)

	_, err := st.GetTask(context.Background(), old.ID)
	require.NoError(t, err)
}
