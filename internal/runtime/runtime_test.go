package runtime_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/livesync"
	"github.com/agentdeck/agentdeck/internal/runtime"
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

func seedConversation(t *testing.T, st *store.MemoryStore, threadID string) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{
		ID:       uuid.NewString(),
		TeamID:   "team1",
		ThreadID: threadID,
	}
	require.NoError(t, st.CreateConversation(context.Background(), conv))
	return conv
}

func seedTask(t *testing.T, st *store.MemoryStore, threadID string) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:       uuid.NewString(),
		UserID:   "u1",
		AgentID:  "agent1",
		Message:  "ping",
		Status:   models.TaskStatusProcessing,
		ThreadID: threadID,
	}
	require.NoError(t, st.CreateTask(context.Background(), task))
	return task
}

func TestRespond_DeliversReplyAndCompletesTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"reply":"pong"}`))
	}))
	defer srv.Close()

	st := newTestStore(t)
	broker := livesync.NewBroker()
	defer broker.Close()

	conv := seedConversation(t, st, "T-1")
	task := seedTask(t, st, "T-1")

	ch, cancel := broker.Subscribe(conv.ID)
	defer cancel()

	d := runtime.NewDispatcher(st, broker, srv.URL, "")
	d.Respond(context.Background(), *task, conv)

	got, err := st.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "pong", got.Messages[0].Body)
	require.False(t, got.Messages[0].FromUser())

	select {
	case snap := <-ch:
		require.Len(t, snap.Messages, 1)
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}

	updated, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusCompleted, updated.Status)
}

func TestRespond_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"reply":"pong"}`))
	}))
	defer srv.Close()

	st := newTestStore(t)
	broker := livesync.NewBroker()
	defer broker.Close()

	conv := seedConversation(t, st, "T-1")
	task := seedTask(t, st, "T-1")

	d := runtime.NewDispatcher(st, broker, srv.URL, "")
	d.Respond(context.Background(), *task, conv)

	require.EqualValues(t, 2, calls.Load())
	updated, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusCompleted, updated.Status)
}

func TestRespond_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	st := newTestStore(t)
	broker := livesync.NewBroker()
	defer broker.Close()

	conv := seedConversation(t, st, "T-1")
	task := seedTask(t, st, "T-1")

	d := runtime.NewDispatcher(st, broker, srv.URL, "")
	d.Respond(context.Background(), *task, conv)

	require.EqualValues(t, 1, calls.Load())
	got, err := st.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Empty(t, got.Messages)

	updated, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusFailed, updated.Status)
}

func TestExecute_NoEndpointAcknowledgesLocally(t *testing.T) {
	st := newTestStore(t)
	broker := livesync.NewBroker()
	defer broker.Close()

	conv := seedConversation(t, st, "T-1")
	task := seedTask(t, st, "T-1")

	d := runtime.NewDispatcher(st, broker, "", "")
	require.NoError(t, d.Execute(context.Background(), task))

	got, err := st.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	require.Contains(t, got.Messages[0].Body, "ping")
}

func TestExecute_NoThreadSkipsConversation(t *testing.T) {
	st := newTestStore(t)
	broker := livesync.NewBroker()
	defer broker.Close()

	task := seedTask(t, st, "")
	d := runtime.NewDispatcher(st, broker, "", "")
	require.NoError(t, d.Execute(context.Background(), task))
}
