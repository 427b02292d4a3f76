package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

// newTestStore creates a fresh in-memory store for tests with no
// persistence outside the test's temp dir.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dir := t.TempDir()
	os.Setenv("AGENTDECK_DATA_DIR", dir)
	defer os.Unsetenv("AGENTDECK_DATA_DIR")
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

// seedTasks creates n tasks for the agent with strictly increasing
// updated_at so the sort key is unique per entity.
func seedTasks(t *testing.T, s store.Store, agentID string, n int) []string {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		task := &models.Task{
			ID:        fmt.Sprintf("task-%02d", i),
			UserID:    "u1",
			AgentID:   agentID,
			Message:   fmt.Sprintf("do thing %d", i),
			Status:    models.TaskStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatalf("CreateTask() error = %v", err)
		}
		ids[i] = task.ID
	}
	return ids
}

// ─── Task pagination ─────────────────────────────────────────

func TestListTasksPage_TwoPagesNoOverlap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "TA_a1", 10)

	first, err := s.ListTasksPage(ctx, store.TaskFilter{AgentID: "TA_a1"}, 5, "")
	if err != nil {
		t.Fatalf("ListTasksPage() error = %v", err)
	}
	if len(first) != 5 {
		t.Fatalf("first page has %d tasks, want 5", len(first))
	}

	second, err := s.ListTasksPage(ctx, store.TaskFilter{AgentID: "TA_a1"}, 5, first[4].ID)
	if err != nil {
		t.Fatalf("ListTasksPage() error = %v", err)
	}
	if len(second) != 5 {
		t.Fatalf("second page has %d tasks, want 5", len(second))
	}

	seen := map[string]bool{}
	for _, task := range append(first, second...) {
		if seen[task.ID] {
			t.Errorf("task %s appears in both pages", task.ID)
		}
		seen[task.ID] = true
	}
	if len(seen) != 10 {
		t.Errorf("pages cover %d distinct tasks, want 10", len(seen))
	}
}

func TestListTasksPage_OrderedNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "TA_a1", 6)

	page, err := s.ListTasksPage(ctx, store.TaskFilter{AgentID: "TA_a1"}, 6, "")
	require.NoError(t, err)
	require.Len(t, page, 6)
	for i := 1; i < len(page); i++ {
		if page[i].UpdatedAt.After(page[i-1].UpdatedAt) {
			t.Errorf("page not in descending updated_at order at index %d", i)
		}
	}
}

func TestListTasksPage_UnresolvableCursorFallsBackToFirstPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "TA_a1", 7)

	noCursor, err := s.ListTasksPage(ctx, store.TaskFilter{AgentID: "TA_a1"}, 3, "")
	require.NoError(t, err)
	badCursor, err := s.ListTasksPage(ctx, store.TaskFilter{AgentID: "TA_a1"}, 3, "task-does-not-exist")
	require.NoError(t, err)

	require.Equal(t, noCursor, badCursor, "unresolvable cursor must behave like no cursor")
}

func TestListTasksPage_ShortPageIsFinal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "TA_a1", 7)

	first, err := s.ListTasksPage(ctx, store.TaskFilter{AgentID: "TA_a1"}, 5, "")
	require.NoError(t, err)
	require.Len(t, first, 5)

	second, err := s.ListTasksPage(ctx, store.TaskFilter{AgentID: "TA_a1"}, 5, first[4].ID)
	require.NoError(t, err)
	if len(second) >= 5 {
		t.Fatalf("second page has %d tasks, want a short (final) page", len(second))
	}

	third, err := s.ListTasksPage(ctx, store.TaskFilter{AgentID: "TA_a1"}, 5, second[len(second)-1].ID)
	require.NoError(t, err)
	require.Empty(t, third)
}

func TestListTasksPage_FilterIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "TA_a1", 3)

	other := &models.Task{
		ID: "other", UserID: "u2", AgentID: "TA_other",
		Message: "x", Status: models.TaskStatusPending,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateTask(ctx, other))

	page, err := s.ListTasksPage(ctx, store.TaskFilter{AgentID: "TA_a1"}, 10, "")
	require.NoError(t, err)
	require.Len(t, page, 3)
	for _, task := range page {
		require.Equal(t, "TA_a1", task.AgentID)
	}
}

// ─── Agent pagination ────────────────────────────────────────

func TestListAgentsPage_NameAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"delta", "alpha", "charlie", "bravo"} {
		err := s.CreateAgent(ctx, &models.Agent{
			ID:     models.ToolAgentPrefix + name,
			TeamID: "team1",
			Name:   name,
			Status: models.AgentStatusActive,
		})
		require.NoError(t, err)
	}

	first, err := s.ListAgentsPage(ctx, "team1", 2, "")
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "bravo"}, []string{first[0].Name, first[1].Name})

	second, err := s.ListAgentsPage(ctx, "team1", 2, first[1].ID)
	require.NoError(t, err)
	require.Equal(t, []string{"charlie", "delta"}, []string{second[0].Name, second[1].Name})
}

// ─── Conversations & messages ────────────────────────────────

func TestAppendMessage_UpdatesPreview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &models.Conversation{
		ID: "c1", TeamID: "team1", ThreadID: "T1",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateConversation(ctx, conv))

	msg := models.Message{
		ID: "m1", Origin: models.OriginUser, Body: "Hello",
		Status: models.MessageStatusSent, Timestamp: time.Now().UTC(),
	}
	got, err := s.AppendMessage(ctx, "c1", msg)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	require.Equal(t, "Hello", got.LastMessage)
}

func TestListMessagesPage_NewestFirstWithCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &models.Conversation{ID: "c1", TeamID: "team1", ThreadID: "T1", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateConversation(ctx, conv))

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		_, err := s.AppendMessage(ctx, "c1", models.Message{
			ID:        fmt.Sprintf("m%d", i),
			Origin:    models.OriginUser,
			Body:      fmt.Sprintf("msg %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	first, err := s.ListMessagesPage(ctx, "T1", 4, "")
	require.NoError(t, err)
	require.Equal(t, "m5", first[0].ID, "newest message first")
	require.Len(t, first, 4)

	second, err := s.ListMessagesPage(ctx, "T1", 4, first[3].ID)
	require.NoError(t, err)
	require.Len(t, second, 2, "short page is the final page")
	require.Equal(t, "m1", second[0].ID)
}

func TestListMessagesPage_UnknownThread(t *testing.T) {
	s := newTestStore(t)
	msgs, err := s.ListMessagesPage(context.Background(), "no-such-thread", 5, "")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestGetConversationByThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateConversation(ctx, &models.Conversation{ID: "c1", TeamID: "t", ThreadID: "T9"}))

	got, err := s.GetConversationByThread(ctx, "T9")
	require.NoError(t, err)
	require.Equal(t, "c1", got.ID)

	_, err = s.GetConversationByThread(ctx, "missing")
	if !store.IsNotFound(err) {
		t.Fatalf("GetConversationByThread() error = %v, want ErrNotFound", err)
	}
}

// ─── Legacy snapshot normalization ───────────────────────────

func TestSnapshotLoad_NormalizesLegacyMessageFields(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("AGENTDECK_DATA_DIR", dir)
	defer os.Unsetenv("AGENTDECK_DATA_DIR")

	// A snapshot as the legacy dashboard would have written it:
	// `content` for the body, `is_from_user` / `sender` for origin.
	legacy := `{
	  "conversations": {
	    "c1": {
	      "id": "c1", "team_id": "t1", "thread_id": "T1",
	      "messages": [
	        {"id": "m1", "content": "hi there", "is_from_user": true, "timestamp": "2026-03-01T09:00:00Z"},
	        {"id": "m2", "message": "hello back", "sender": "Helper Agent", "timestamp": "2026-03-01T09:00:05Z"}
	      ],
	      "created_at": "2026-03-01T09:00:00Z", "updated_at": "2026-03-01T09:00:05Z"
	    }
	  }
	}`
	require.NoError(t, os.WriteFile(dir+"/data.json", []byte(legacy), 0644))

	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })

	conv, err := s.GetConversation(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)

	require.Equal(t, "hi there", conv.Messages[0].Body)
	require.Equal(t, models.OriginUser, conv.Messages[0].Origin)
	require.Equal(t, "hello back", conv.Messages[1].Body)
	require.Equal(t, models.OriginAgent, conv.Messages[1].Origin)
}

// ─── Tasks: due listing and summary ──────────────────────────

func TestListDueTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	for id, st := range map[string]*time.Time{"due": &past, "later": &future, "unscheduled": nil} {
		require.NoError(t, s.CreateTask(ctx, &models.Task{
			ID: id, UserID: "u1", Message: "x",
			Status: models.TaskStatusPending, ScheduledTime: st,
			CreatedAt: now, UpdatedAt: now,
		}))
	}

	due, err := s.ListDueTasks(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "due", due[0].ID)
}

func TestTaskSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	statuses := []models.TaskStatus{
		models.TaskStatusPending, models.TaskStatusPending,
		models.TaskStatusCompleted, models.TaskStatusFailed,
	}
	for i, st := range statuses {
		require.NoError(t, s.CreateTask(ctx, &models.Task{
			ID: fmt.Sprintf("t%d", i), UserID: "u1", Message: "x",
			Status: st, CreatedAt: now, UpdatedAt: now,
		}))
	}

	sum, err := s.TaskSummary(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 4, sum.Total)
	require.Equal(t, 2, sum.Pending)
	require.Equal(t, 1, sum.Completed)
	require.Equal(t, 1, sum.Failed)
}

// ─── Users, teams, credentials ───────────────────────────────

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.User{ID: "u1", Email: "Dev@Example.com", PasswordHash: "h", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.GetUserByEmail(ctx, "dev@example.com")
	require.NoError(t, err, "email lookup is case-insensitive")
	require.Equal(t, "u1", got.ID)

	got.Verified = true
	require.NoError(t, s.UpdateUser(ctx, got))
	again, _ := s.GetUser(ctx, "u1")
	require.True(t, again.Verified)
}

func TestListTeamsByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTeam(ctx, &models.Team{ID: "t1", Name: "owned", OwnerID: "u1"}))
	require.NoError(t, s.CreateTeam(ctx, &models.Team{ID: "t2", Name: "member", OwnerID: "u2", MemberIDs: []string{"u1"}}))
	require.NoError(t, s.CreateTeam(ctx, &models.Team{ID: "t3", Name: "unrelated", OwnerID: "u3"}))

	teams, err := s.ListTeamsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, teams, 2)
}

func TestListCredentialsByKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateCredential(ctx, &models.Credential{ID: "c1", TeamID: "t1", Key: "GITHUB_TOKEN", Name: "work", CreatedAt: now}))
	require.NoError(t, s.CreateCredential(ctx, &models.Credential{ID: "c2", TeamID: "t1", Key: "GITHUB_TOKEN", Name: "personal", CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.CreateCredential(ctx, &models.Credential{ID: "c3", TeamID: "t1", Key: "SLACK_TOKEN", Name: "bot", CreatedAt: now}))

	creds, err := s.ListCredentials(ctx, "t1", "GITHUB_TOKEN")
	require.NoError(t, err)
	require.Len(t, creds, 2, "one key may have multiple saved values")
}

// ─── OTP codes ───────────────────────────────────────────────

func TestOTPUpsertReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertOTP(ctx, &models.OTPCode{UserID: "u1", Code: "111111", Purpose: models.OTPVerifyEmail, ExpiresAt: time.Now().Add(time.Minute)}))
	require.NoError(t, s.UpsertOTP(ctx, &models.OTPCode{UserID: "u1", Code: "222222", Purpose: models.OTPVerifyEmail, ExpiresAt: time.Now().Add(time.Minute)}))

	got, err := s.GetOTP(ctx, "u1", models.OTPVerifyEmail)
	require.NoError(t, err)
	require.Equal(t, "222222", got.Code)

	require.NoError(t, s.DeleteOTP(ctx, "u1", models.OTPVerifyEmail))
	_, err = s.GetOTP(ctx, "u1", models.OTPVerifyEmail)
	require.True(t, store.IsNotFound(err))
}
