// Package models defines the shared domain types for the AgentDeck
// control plane: agents, teams, tasks, conversations, credentials,
// and the request/response shapes the dashboard API exchanges.
package models

import (
	"fmt"
	"strings"
	"time"
)

// ── Agent ────────────────────────────────────────────────────

// Agent ID prefixes. Tool agents carry a fixed set of callable tools;
// super agents compose multiple tool agents.
const (
	ToolAgentPrefix  = "TA_"
	SuperAgentPrefix = "SA_"
)

type AgentStatus string

const (
	AgentStatusDraft    AgentStatus = "draft"
	AgentStatusActive   AgentStatus = "active"
	AgentStatusDisabled AgentStatus = "disabled"
)

// Agent is a registered agent. Tools is populated only for tool
// agents; ToolAgents only for super agents (composition, never
// inheritance).
type Agent struct {
	ID            string            `json:"id"`
	TeamID        string            `json:"team_id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	Status        AgentStatus       `json:"status"`
	Tools         []Tool            `json:"tools,omitempty"`
	ToolAgents    []string          `json:"tool_agents,omitempty"` // agent IDs, super agents only
	Character     map[string]string `json:"character,omitempty"`   // trait bag from the wizard
	Prompt        string            `json:"prompt,omitempty"`      // generated system prompt, may be empty
	TeamProvision bool              `json:"team_provision"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// IsSuperAgent reports whether the agent ID carries the super-agent prefix.
func (a *Agent) IsSuperAgent() bool { return strings.HasPrefix(a.ID, SuperAgentPrefix) }

// IsToolAgent reports whether the agent ID carries the tool-agent prefix.
func (a *Agent) IsToolAgent() bool { return strings.HasPrefix(a.ID, ToolAgentPrefix) }

// ── Tool ─────────────────────────────────────────────────────

// Tool is a callable capability an agent can be bound to. RequiredKeys
// lists the credential keys that must be bound before an agent using
// the tool can be created.
type Tool struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Category     string   `json:"category,omitempty"`
	RequiredKeys []string `json:"required_keys,omitempty"`
}

// ── Credential ───────────────────────────────────────────────

// Credential is a saved secret value for a tool's credential key.
// Several credentials may share the same key, and one tool may require
// several keys. Secret is opaque to the control plane (it may itself
// be a JSON-encoded multi-field payload).
type Credential struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Secret    string    `json:"secret,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Task ─────────────────────────────────────────────────────

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is a unit of work for an agent: created directly via the
// scheduling endpoints or as a side effect of sending a chat message.
// RecurrenceMs/RecurrenceEnd drive the scheduled-task runner; ThreadID
// links the task to a conversation when one exists.
type Task struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	AgentID       string     `json:"agent_id,omitempty"`
	TeamID        string     `json:"team_id,omitempty"`
	Message       string     `json:"message"`
	Description   string     `json:"description,omitempty"`
	Status        TaskStatus `json:"status"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	RecurrenceMs  int64      `json:"recurrence_ms,omitempty"`
	RecurrenceEnd *time.Time `json:"recurrence_end,omitempty"`
	ThreadID      string     `json:"thread_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Recurring reports whether the task re-arms itself after running.
func (t *Task) Recurring() bool { return t.RecurrenceMs > 0 }

// TaskSummary aggregates task counts by status for the dashboard
// overview cards.
type TaskSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// ── Conversation & Message ───────────────────────────────────

type MessageStatus string

const (
	MessageStatusSending MessageStatus = "sending"
	MessageStatusSent    MessageStatus = "sent"
)

// MessageOrigin is the single origin discriminant for a message. The
// legacy document store tolerated both a `sender` string and an
// `is_from_user` boolean; the store adapter folds both into this.
type MessageOrigin string

const (
	OriginUser  MessageOrigin = "user"
	OriginAgent MessageOrigin = "agent"
)

// Message is one entry in a conversation. Body is the single text
// field (the legacy duplicated `message`/`content` pair normalizes to
// it). Messages created locally before server confirmation carry a
// temporary ID (see NewTempID).
type Message struct {
	ID        string        `json:"id"`
	Origin    MessageOrigin `json:"origin"`
	SenderID  string        `json:"sender_id,omitempty"`
	Body      string        `json:"body"`
	Status    MessageStatus `json:"status,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// FromUser reports whether the message originated from the user.
func (m *Message) FromUser() bool { return m.Origin == OriginUser }

// NewTempID builds the temporary client-side ID for an optimistic
// message created at t.
func NewTempID(t time.Time) string {
	return fmt.Sprintf("temp-%d", t.UnixMilli())
}

// IsTempID reports whether id is a temporary optimistic-message ID.
func IsTempID(id string) bool { return strings.HasPrefix(id, "temp-") }

// Conversation is one ongoing exchange between a user and an agent,
// correlated to backend conversation state by ThreadID. Messages are
// embedded and ordered by timestamp; the store is the single owner,
// clients hold a read-mostly copy plus optimistic local entries.
type Conversation struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"team_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	ThreadID    string    `json:"thread_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Messages    []Message `json:"messages"`
	LastMessage string    `json:"last_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ── Team & User ──────────────────────────────────────────────

type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	MemberIDs   []string  `json:"member_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
}

// OTPPurpose distinguishes signup verification codes from password
// reset codes.
type OTPPurpose string

const (
	OTPVerifyEmail   OTPPurpose = "verify_email"
	OTPResetPassword OTPPurpose = "reset_password"
)

// OTPCode is a one-time code held server-side until verified or expired.
type OTPCode struct {
	UserID    string     `json:"user_id"`
	Code      string     `json:"code"`
	Purpose   OTPPurpose `json:"purpose"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// ── API shapes ───────────────────────────────────────────────

// SendMessageRequest is the body of POST /tasks/message.
type SendMessageRequest struct {
	TeamID   string `json:"team_id"`
	AgentID  string `json:"agent_id,omitempty"`
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"` // explicit draft thread id, lowest precedence
}

// SendMessageResult is what the send-message orchestrator returns.
type SendMessageResult struct {
	TaskID   string `json:"task_id"`
	ThreadID string `json:"thread_id"`
}

// ScheduleTaskRequest is the body of POST /tasks/scheduled.
type ScheduleTaskRequest struct {
	AgentID       string     `json:"agent_id"`
	TeamID        string     `json:"team_id,omitempty"`
	Message       string     `json:"message"`
	Description   string     `json:"description,omitempty"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	RecurrenceMs  int64      `json:"recurrence_ms,omitempty"`
	RecurrenceEnd *time.Time `json:"recurrence_end,omitempty"`
}
