// Package runtime dispatches tasks to the agent runtime over HTTP and
// feeds the agent's reply back into the conversation and the live
// sync broker.
package runtime

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/internal/livesync"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

// Dispatcher posts tasks to the configured runtime webhook, persists
// the reply as an agent message, and publishes the updated
// conversation. With no webhook configured it acknowledges tasks
// locally, which keeps single-binary setups usable.
type Dispatcher struct {
	st       store.Store
	broker   *livesync.Broker
	client   *http.Client
	endpoint string
	secret   string
}

// NewDispatcher builds a dispatcher. endpoint may be empty.
func NewDispatcher(st store.Store, broker *livesync.Broker, endpoint, secret string) *Dispatcher {
	return &Dispatcher{
		st:       st,
		broker:   broker,
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: endpoint,
		secret:   secret,
	}
}

// runtimeRequest is the webhook payload.
type runtimeRequest struct {
	TaskID   string `json:"task_id"`
	AgentID  string `json:"agent_id,omitempty"`
	TeamID   string `json:"team_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	Message  string `json:"message"`
}

// runtimeResponse is the webhook's answer.
type runtimeResponse struct {
	Reply string `json:"reply"`
}

// Respond handles a task spawned by the send-message path: it runs
// the task and appends the reply to the conversation. Errors are
// logged and reflected in the task status; the panel only ever learns
// the outcome through live sync.
func (d *Dispatcher) Respond(ctx context.Context, task models.Task, conv *models.Conversation) {
	reply, err := d.invoke(ctx, &task)
	if err != nil {
		d.finishTask(ctx, &task, models.TaskStatusFailed)
		log.Warn().Err(err).Str("task_id", task.ID).Msg("runtime dispatch failed")
		return
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Origin:    models.OriginAgent,
		SenderID:  task.AgentID,
		Body:      reply,
		Timestamp: time.Now().UTC(),
	}
	updated, err := d.st.AppendMessage(ctx, conv.ID, msg)
	if err != nil {
		d.finishTask(ctx, &task, models.TaskStatusFailed)
		log.Warn().Err(err).Str("task_id", task.ID).Str("conversation_id", conv.ID).Msg("append agent reply failed")
		return
	}
	d.broker.Publish(updated)
	d.finishTask(ctx, &task, models.TaskStatusCompleted)
	log.Info().Str("task_id", task.ID).Str("conversation_id", conv.ID).Msg("agent reply delivered")
}

// Execute runs a task outside a chat panel, for the scheduler. When
// the task is linked to a thread the reply lands in that conversation
// like any chat reply.
func (d *Dispatcher) Execute(ctx context.Context, task *models.Task) error {
	reply, err := d.invoke(ctx, task)
	if err != nil {
		return err
	}
	if task.ThreadID == "" {
		return nil
	}

	conv, err := d.st.GetConversationByThread(ctx, task.ThreadID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("find conversation: %w", err)
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		Origin:    models.OriginAgent,
		SenderID:  task.AgentID,
		Body:      reply,
		Timestamp: time.Now().UTC(),
	}
	updated, err := d.st.AppendMessage(ctx, conv.ID, msg)
	if err != nil {
		return fmt.Errorf("append agent reply: %w", err)
	}
	d.broker.Publish(updated)
	return nil
}

// invoke posts the task to the runtime webhook with retries. Each
// attempt rebuilds the request so the body can be re-read.
func (d *Dispatcher) invoke(ctx context.Context, task *models.Task) (string, error) {
	if d.endpoint == "" {
		return fmt.Sprintf("Task received: %s", task.Message), nil
	}

	body, err := json.Marshal(runtimeRequest{
		TaskID:   task.ID,
		AgentID:  task.AgentID,
		TeamID:   task.TeamID,
		ThreadID: task.ThreadID,
		Message:  task.Message,
	})
	if err != nil {
		return "", fmt.Errorf("marshal runtime request: %w", err)
	}

	attempt := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "AgentDeck-Runtime/1.0")
		if d.secret != "" {
			mac := hmac.New(sha256.New, []byte(d.secret))
			mac.Write(body)
			req.Header.Set("X-AgentDeck-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", backoff.Permanent(fmt.Errorf("runtime HTTP %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("runtime HTTP %d", resp.StatusCode)
		}

		var out runtimeResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", backoff.Permanent(fmt.Errorf("decode runtime response: %w", err))
		}
		return out.Reply, nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	reply, err := backoff.RetryWithData(attempt, bo)
	if err != nil {
		return "", fmt.Errorf("runtime dispatch: %w", err)
	}
	return reply, nil
}

func (d *Dispatcher) finishTask(ctx context.Context, task *models.Task, status models.TaskStatus) {
	task.Status = status
	task.UpdatedAt = time.Now().UTC()
	if err := d.st.UpdateTask(ctx, task); err != nil {
		log.Warn().Err(err).Str("task_id", task.ID).Msg("task status update failed")
	}
}
