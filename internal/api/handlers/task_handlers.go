package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/internal/api/middleware"
	"github.com/agentdeck/agentdeck/internal/chat"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

type newTaskRequest struct {
	AgentID     string `json:"agent_id"`
	TeamID      string `json:"team_id,omitempty"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
	ThreadID    string `json:"thread_id,omitempty"`
}

// NewTask creates a run-now task. It is scheduled for the current
// instant and picked up by the next runner sweep.
func (h *Handlers) NewTask(w http.ResponseWriter, r *http.Request) {
	var req newTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:            uuid.NewString(),
		UserID:        middleware.GetUserID(r.Context()),
		AgentID:       req.AgentID,
		TeamID:        req.TeamID,
		Message:       req.Message,
		Description:   req.Description,
		Status:        models.TaskStatusPending,
		ScheduledTime: &now,
		ThreadID:      req.ThreadID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.Store.CreateTask(r.Context(), task); err != nil {
		respondStoreError(w, err)
		return
	}
	log.Info().Str("task_id", task.ID).Str("agent_id", task.AgentID).Msg("task created")
	respondData(w, http.StatusCreated, task)
}

// ScheduleTask creates a task for a future time, optionally recurring.
func (h *Handlers) ScheduleTask(w http.ResponseWriter, r *http.Request) {
	var req models.ScheduleTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ScheduledTime.IsZero() {
		respondError(w, http.StatusBadRequest, "scheduled_time is required")
		return
	}
	if req.RecurrenceMs < 0 {
		respondError(w, http.StatusBadRequest, "recurrence_ms must not be negative")
		return
	}
	if req.RecurrenceEnd != nil && req.RecurrenceEnd.Before(req.ScheduledTime) {
		respondError(w, http.StatusBadRequest, "recurrence_end precedes scheduled_time")
		return
	}

	now := time.Now().UTC()
	scheduled := req.ScheduledTime.UTC()
	task := &models.Task{
		ID:            uuid.NewString(),
		UserID:        middleware.GetUserID(r.Context()),
		AgentID:       req.AgentID,
		TeamID:        req.TeamID,
		Message:       req.Message,
		Description:   req.Description,
		Status:        models.TaskStatusPending,
		ScheduledTime: &scheduled,
		RecurrenceMs:  req.RecurrenceMs,
		RecurrenceEnd: req.RecurrenceEnd,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.Store.CreateTask(r.Context(), task); err != nil {
		respondStoreError(w, err)
		return
	}
	log.Info().
		Str("task_id", task.ID).
		Time("scheduled_time", scheduled).
		Int64("recurrence_ms", task.RecurrenceMs).
		Msg("task scheduled")
	respondData(w, http.StatusCreated, task)
}

// ListTasks pages the caller's tasks, newest activity first.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	h.listTasksPage(w, r, false)
}

// ListScheduledTasks pages only tasks that carry a scheduled time.
func (h *Handlers) ListScheduledTasks(w http.ResponseWriter, r *http.Request) {
	h.listTasksPage(w, r, true)
}

func (h *Handlers) listTasksPage(w http.ResponseWriter, r *http.Request, scheduledOnly bool) {
	pageSize, lastSeenID := pageParams(r)
	filter := store.TaskFilter{
		UserID:        middleware.GetUserID(r.Context()),
		AgentID:       r.URL.Query().Get("agent_id"),
		TeamID:        r.URL.Query().Get("team_id"),
		ThreadID:      r.URL.Query().Get("thread_id"),
		ScheduledOnly: scheduledOnly,
	}
	tasks, err := h.Store.ListTasksPage(r.Context(), filter, pageSize, lastSeenID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	respondData(w, http.StatusOK, tasks)
}

// TaskSummary returns the caller's task counts by status.
func (h *Handlers) TaskSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Store.TaskSummary(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, summary)
}

// GetScheduledTask returns one of the caller's scheduled tasks.
func (h *Handlers) GetScheduledTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.ownedTask(w, r)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, task)
}

type updateScheduledTaskRequest struct {
	Message       *string    `json:"message,omitempty"`
	Description   *string    `json:"description,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	RecurrenceMs  *int64     `json:"recurrence_ms,omitempty"`
	RecurrenceEnd *time.Time `json:"recurrence_end,omitempty"`
}

// UpdateScheduledTask edits a pending scheduled task. Tasks already
// picked up by the runner can't be rescheduled.
func (h *Handlers) UpdateScheduledTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.ownedTask(w, r)
	if !ok {
		return
	}
	if task.Status != models.TaskStatusPending {
		respondError(w, http.StatusConflict, "only pending tasks can be edited")
		return
	}

	var req updateScheduledTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Message != nil {
		task.Message = *req.Message
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.ScheduledTime != nil {
		scheduled := req.ScheduledTime.UTC()
		task.ScheduledTime = &scheduled
	}
	if req.RecurrenceMs != nil {
		task.RecurrenceMs = *req.RecurrenceMs
	}
	if req.RecurrenceEnd != nil {
		task.RecurrenceEnd = req.RecurrenceEnd
	}
	task.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateTask(r.Context(), task); err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, task)
}

// DeleteScheduledTask removes one of the caller's tasks.
func (h *Handlers) DeleteScheduledTask(w http.ResponseWriter, r *http.Request) {
	task, ok := h.ownedTask(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteTask(r.Context(), task.ID); err != nil {
		respondStoreError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"status": "deleted", "task_id": task.ID})
}

// SendMessage is the chat send path. The optional X-Session-ID header
// ties the send to an open panel session so its cached thread id
// applies; without one the request gets a throwaway session and the
// thread id resolves from the draft alone.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	sess, ephemeral := h.sessionFor(r)
	if ephemeral {
		defer h.Sessions.Delete(sess.ID)
	}
	result, err := h.Orchestrator.Send(r.Context(), sess, req)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondData(w, http.StatusOK, result)
}

func (h *Handlers) sessionFor(r *http.Request) (*chat.Session, bool) {
	userID := middleware.GetUserID(r.Context())
	if id := r.Header.Get("X-Session-ID"); id != "" {
		if sess, err := h.Sessions.Get(id); err == nil && sess.UserID == userID {
			return sess, false
		}
	}
	return h.Sessions.Create(userID, ""), true
}

func (h *Handlers) ownedTask(w http.ResponseWriter, r *http.Request) (*models.Task, bool) {
	task, err := h.Store.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		respondStoreError(w, err)
		return nil, false
	}
	if task.UserID != middleware.GetUserID(r.Context()) {
		respondError(w, http.StatusForbidden, "not your task")
		return nil, false
	}
	return task, true
}
