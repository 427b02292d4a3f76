package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/internal/livesync"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

// Responder produces the agent's reply to a task. The orchestrator
// hands it the task after the user message is persisted; the
// responder appends the reply and publishes the updated snapshot.
type Responder interface {
	Respond(ctx context.Context, task models.Task, conv *models.Conversation)
}

// Orchestrator drives the single send-message path. It resolves the
// thread id, persists the task and the user message, publishes the
// updated conversation, and hands the task to the agent runtime.
// It never writes into a panel's message list itself: the reply
// reaches panels only through live sync.
type Orchestrator struct {
	st        store.Store
	broker    *livesync.Broker
	responder Responder
}

// NewOrchestrator wires the send path.
func NewOrchestrator(st store.Store, broker *livesync.Broker, responder Responder) *Orchestrator {
	return &Orchestrator{st: st, broker: broker, responder: responder}
}

// Send handles one chat message from a panel session.
//
// The thread id is resolved in strict precedence order:
//  1. the session's cached thread id,
//  2. the thread id of the currently open conversation, fetched from
//     the store when the panel doesn't hold it,
//  3. the request's draft thread id.
//
// When all three are empty a new conversation and thread are created.
// Whichever id wins is cached on the session so later sends skip the
// lookup. On any error nothing is cached and the caller's optimistic
// message stays local; there is no automatic retry.
func (o *Orchestrator) Send(ctx context.Context, sess *Session, req models.SendMessageRequest) (*models.SendMessageResult, error) {
	body := strings.TrimSpace(req.Message)
	if body == "" {
		return nil, fmt.Errorf("message body is empty")
	}

	threadID, err := o.resolveThread(ctx, sess, req)
	if err != nil {
		sess.Panel.SendFailed()
		return nil, err
	}

	conv, err := o.conversationForThread(ctx, sess, req, threadID)
	if err != nil {
		sess.Panel.SendFailed()
		return nil, err
	}
	threadID = conv.ThreadID

	now := time.Now().UTC()
	task := &models.Task{
		ID:        uuid.NewString(),
		UserID:    sess.UserID,
		AgentID:   req.AgentID,
		TeamID:    conv.TeamID,
		Message:   body,
		Status:    models.TaskStatusProcessing,
		ThreadID:  threadID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.st.CreateTask(ctx, task); err != nil {
		sess.Panel.SendFailed()
		return nil, fmt.Errorf("create task: %w", err)
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Origin:    models.OriginUser,
		SenderID:  sess.UserID,
		Body:      body,
		Status:    models.MessageStatusSent,
		Timestamp: now,
	}
	updated, err := o.st.AppendMessage(ctx, conv.ID, msg)
	if err != nil {
		sess.Panel.SendFailed()
		return nil, fmt.Errorf("append message: %w", err)
	}
	o.broker.Publish(updated)

	sess.Threads.SetOnce(threadID)
	sess.Panel.SendAccepted(threadID)

	if o.responder != nil {
		go o.responder.Respond(context.WithoutCancel(ctx), *task, updated)
	}

	log.Info().
		Str("task_id", task.ID).
		Str("thread_id", threadID).
		Str("conversation_id", conv.ID).
		Msg("message accepted")
	return &models.SendMessageResult{TaskID: task.ID, ThreadID: threadID}, nil
}

// resolveThread applies the cached > loaded > draft precedence.
func (o *Orchestrator) resolveThread(ctx context.Context, sess *Session, req models.SendMessageRequest) (string, error) {
	if id := sess.Threads.Get(); id != "" {
		return id, nil
	}
	if id := sess.Panel.ThreadID(); id != "" {
		return id, nil
	}
	if convID := sess.Panel.ConversationID(); convID != "" {
		conv, err := o.st.GetConversation(ctx, convID)
		if err != nil {
			return "", fmt.Errorf("load open conversation: %w", err)
		}
		if conv.ThreadID != "" {
			return conv.ThreadID, nil
		}
	}
	return req.ThreadID, nil
}

// conversationForThread finds the thread's conversation, or creates a
// fresh conversation and thread when threadID is empty. A draft
// thread id that resolves to nothing also gets a new conversation,
// keeping the supplied id.
func (o *Orchestrator) conversationForThread(ctx context.Context, sess *Session, req models.SendMessageRequest, threadID string) (*models.Conversation, error) {
	if threadID != "" {
		conv, err := o.st.GetConversationByThread(ctx, threadID)
		if err == nil {
			return conv, nil
		}
		if !store.IsNotFound(err) {
			return nil, fmt.Errorf("find conversation: %w", err)
		}
	}
	if threadID == "" {
		threadID = "T-" + uuid.NewString()
	}

	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		TeamID:    req.TeamID,
		AgentID:   req.AgentID,
		ThreadID:  threadID,
		Title:     titleFor(req.Message),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if conv.TeamID == "" {
		conv.TeamID = sess.TeamID
	}
	if err := o.st.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// titleFor derives a short conversation title from the first message.
func titleFor(body string) string {
	body = strings.TrimSpace(body)
	const max = 48
	if len(body) > max {
		return body[:max] + "…"
	}
	return body
}
