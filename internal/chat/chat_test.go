package chat_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/internal/chat"
	"github.com/agentdeck/agentdeck/internal/livesync"
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

func TestThreadCache_FirstLearnedIDWins(t *testing.T) {
	var c chat.ThreadCache
	require.Equal(t, "", c.Get())
	require.False(t, c.SetOnce(""))
	require.True(t, c.SetOnce("T-1"))
	require.False(t, c.SetOnce("T-2"))
	require.Equal(t, "T-1", c.Get())
}

func TestPanel_OptimisticAppendArmsTypingIndicator(t *testing.T) {
	p := chat.NewPanel(nil, nil)
	p.Open("c1", "T-1")
	p.MarkSubscribed()

	msg := p.AppendOptimistic("hi there", "u1")
	require.True(t, models.IsTempID(msg.ID))
	require.Equal(t, models.MessageStatusSending, msg.Status)
	require.Equal(t, chat.StateSending, p.State())
	require.False(t, p.AgentTyping())

	require.Eventually(t, p.AgentTyping, time.Second, 10*time.Millisecond)
}

func TestPanel_ReplaceDiscardsTempAndClearsTyping(t *testing.T) {
	p := chat.NewPanel(nil, nil)
	p.Open("c1", "T-1")
	p.MarkSubscribed()
	p.AppendOptimistic("hi", "u1")
	require.Eventually(t, p.AgentTyping, time.Second, 10*time.Millisecond)

	now := time.Now()
	p.Replace(models.Conversation{
		ID:       "c1",
		ThreadID: "T-1",
		Messages: []models.Message{
			{ID: "m1", Origin: models.OriginUser, Body: "hi", Status: models.MessageStatusSent, Timestamp: now},
			{ID: "m2", Origin: models.OriginAgent, Body: "hello!", Timestamp: now.Add(time.Millisecond)},
		},
	})

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		require.False(t, models.IsTempID(m.ID))
	}
	require.Equal(t, chat.StateSubscribed, p.State())
	require.False(t, p.AgentTyping())
}

func TestPanel_ReplaceIgnoresOtherConversations(t *testing.T) {
	p := chat.NewPanel(nil, nil)
	p.Open("c1", "T-1")
	p.MarkSubscribed()

	p.Replace(models.Conversation{
		ID:       "c2",
		Messages: []models.Message{{ID: "m1", Body: "wrong room", Timestamp: time.Now()}},
	})
	require.Empty(t, p.Messages())
}

func TestPanel_SendFailureKeepsOptimisticMessage(t *testing.T) {
	p := chat.NewPanel(nil, nil)
	p.Open("c1", "T-1")
	p.MarkSubscribed()

	msg := p.AppendOptimistic("doomed", "u1")
	p.SendFailed()

	require.Equal(t, chat.StateSubscribed, p.State())
	msgs := p.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, msg.ID, msgs[0].ID)
	require.Equal(t, models.MessageStatusSending, msgs[0].Status)
	require.Never(t, p.AgentTyping, 700*time.Millisecond, 50*time.Millisecond)
}

func TestPanel_LoadOlderDropsConcurrentTrigger(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context, threadID string, pageSize int, lastSeenID string) ([]models.Message, error) {
		calls.Add(1)
		<-release
		return nil, nil
	}
	p := chat.NewPanel(fetch, nil)
	p.Open("c1", "T-1")

	done := make(chan error, 1)
	go func() { done <- p.LoadOlder(context.Background()) }()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// second trigger while the first is in flight is dropped
	require.NoError(t, p.LoadOlder(context.Background()))
	require.EqualValues(t, 1, calls.Load())

	close(release)
	require.NoError(t, <-done)
}

func TestPanel_ShortPageExhaustsHistory(t *testing.T) {
	page := []models.Message{
		{ID: "m2", Body: "two", Timestamp: time.Unix(200, 0)},
		{ID: "m1", Body: "one", Timestamp: time.Unix(100, 0)},
	}
	var calls int
	fetch := func(ctx context.Context, threadID string, pageSize int, lastSeenID string) ([]models.Message, error) {
		calls++
		return page, nil
	}
	p := chat.NewPanel(fetch, nil)
	p.Open("c1", "T-1")

	require.NoError(t, p.LoadOlder(context.Background()))
	require.False(t, p.HasMore())
	msgs := p.Messages()
	require.Equal(t, []string{"m1", "m2"}, []string{msgs[0].ID, msgs[1].ID})

	// once exhausted, further triggers don't hit the fetcher
	require.NoError(t, p.LoadOlder(context.Background()))
	require.Equal(t, 1, calls)
}

func TestPanel_FetchErrorLeavesCursorRetryable(t *testing.T) {
	var calls int
	fetch := func(ctx context.Context, threadID string, pageSize int, lastSeenID string) ([]models.Message, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("boom")
		}
		return []models.Message{{ID: "m1", Body: "one", Timestamp: time.Unix(100, 0)}}, nil
	}
	p := chat.NewPanel(fetch, nil)
	p.Open("c1", "T-1")

	require.Error(t, p.LoadOlder(context.Background()))
	require.True(t, p.HasMore())

	require.NoError(t, p.LoadOlder(context.Background()))
	require.Len(t, p.Messages(), 1)
}

// echoResponder appends a canned agent reply and republishes, standing
// in for the agent runtime.
type echoResponder struct {
	st     store.Store
	broker *livesync.Broker
}

func (r *echoResponder) Respond(ctx context.Context, task models.Task, conv *models.Conversation) {
	reply := models.Message{
		ID:        uuid.NewString(),
		Origin:    models.OriginAgent,
		SenderID:  task.AgentID,
		Body:      "echo: " + task.Message,
		Timestamp: time.Now().UTC(),
	}
	updated, err := r.st.AppendMessage(ctx, conv.ID, reply)
	if err != nil {
		return
	}
	r.broker.Publish(updated)
}

func TestOrchestrator_SendHelloEndToEnd(t *testing.T) {
	st := newTestStore(t)
	broker := livesync.NewBroker()
	defer broker.Close()

	mgr := chat.NewManager(st, broker)
	orch := chat.NewOrchestrator(st, broker, &echoResponder{st: st, broker: broker})

	sess := mgr.Create("u1", "team1")
	defer mgr.Delete(sess.ID)

	sess.Panel.AppendOptimistic("Hello", "u1")
	res, err := orch.Send(context.Background(), sess, models.SendMessageRequest{
		TeamID:  "team1",
		AgentID: "agent1",
		Message: "Hello",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.TaskID)
	require.NotEmpty(t, res.ThreadID)
	require.Equal(t, res.ThreadID, sess.Threads.Get())

	conv, err := st.GetConversationByThread(context.Background(), res.ThreadID)
	require.NoError(t, err)
	require.Equal(t, "team1", conv.TeamID)
	require.Len(t, conv.Messages, 1)
	require.Equal(t, "Hello", conv.Messages[0].Body)

	// subscribe the panel and wait for the echo reply over live sync
	require.NoError(t, sess.OpenConversation(context.Background(), conv))
	require.Eventually(t, func() bool {
		msgs := sess.Panel.Messages()
		return len(msgs) == 2 && !msgs[1].FromUser()
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "echo: Hello", sess.Panel.Messages()[1].Body)
}

func TestOrchestrator_ThreadPrecedence(t *testing.T) {
	st := newTestStore(t)
	broker := livesync.NewBroker()
	defer broker.Close()

	mgr := chat.NewManager(st, broker)
	orch := chat.NewOrchestrator(st, broker, nil)

	// seed a conversation whose thread differs from the draft's
	loaded := &models.Conversation{
		ID:       uuid.NewString(),
		TeamID:   "team1",
		ThreadID: "T-loaded",
	}
	require.NoError(t, st.CreateConversation(context.Background(), loaded))
	draft := &models.Conversation{
		ID:       uuid.NewString(),
		TeamID:   "team1",
		ThreadID: "T-draft",
	}
	require.NoError(t, st.CreateConversation(context.Background(), draft))

	// draft id alone wins when nothing is cached or loaded
	sess := mgr.Create("u1", "team1")
	res, err := orch.Send(context.Background(), sess, models.SendMessageRequest{
		TeamID: "team1", Message: "draft wins", ThreadID: "T-draft",
	})
	require.NoError(t, err)
	require.Equal(t, "T-draft", res.ThreadID)

	// a loaded conversation outranks the draft id
	sess2 := mgr.Create("u1", "team1")
	sess2.Panel.Open(loaded.ID, "")
	res, err = orch.Send(context.Background(), sess2, models.SendMessageRequest{
		TeamID: "team1", Message: "loaded wins", ThreadID: "T-draft",
	})
	require.NoError(t, err)
	require.Equal(t, "T-loaded", res.ThreadID)

	// the cached id outranks both
	sess3 := mgr.Create("u1", "team1")
	sess3.Threads.SetOnce("T-loaded")
	sess3.Panel.Open(draft.ID, "T-draft")
	res, err = orch.Send(context.Background(), sess3, models.SendMessageRequest{
		TeamID: "team1", Message: "cache wins", ThreadID: "T-draft",
	})
	require.NoError(t, err)
	require.Equal(t, "T-loaded", res.ThreadID)
}

func TestOrchestrator_EmptyMessageRejected(t *testing.T) {
	st := newTestStore(t)
	broker := livesync.NewBroker()
	defer broker.Close()

	orch := chat.NewOrchestrator(st, broker, nil)
	sess := chat.NewManager(st, broker).Create("u1", "team1")

	_, err := orch.Send(context.Background(), sess, models.SendMessageRequest{TeamID: "team1", Message: "   "})
	require.Error(t, err)
}
