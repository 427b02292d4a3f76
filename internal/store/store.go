// Package store provides the storage interface and implementations for
// the AgentDeck control plane. The in-memory store backs local dev and
// tests; PostgreSQL (pgx) backs production.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// Store is the primary storage interface for the control plane.
// All handler code depends on this interface, making it easy to swap
// between in-memory (tests) and PostgreSQL (production) implementations.
type Store interface {
	UserStore
	TeamStore
	AgentStore
	CredentialStore
	TaskStore
	ConversationStore
	OTPStore

	// Ping checks if the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Pagination contract ─────────────────────────────────────
//
// Every ListXxxPage method takes (filter, pageSize, lastSeenID) and
// returns the next page in a fixed per-collection order. The contract,
// shared by every implementation:
//
//   - lastSeenID == "" means first page.
//   - A non-empty lastSeenID is resolved to the stored entity before
//     the continue-after query; if it no longer resolves, the call
//     silently falls back to an unpaginated first page.
//   - A page shorter than pageSize is the final page; callers must not
//     ask for more.
//   - Query failures are returned as-is and never mark a cursor
//     exhausted; the caller decides whether to retry.
//   - When two entities share a sort key, entries at a page boundary
//     may be skipped or duplicated. Accepted, not corrected.

// TaskFilter narrows paginated task listings. Zero-value fields are
// ignored; set fields are ANDed.
type TaskFilter struct {
	UserID        string
	AgentID       string
	TeamID        string
	ThreadID      string
	ScheduledOnly bool // only tasks with a scheduled time
}

// ── User Store ───────────────────────────────────────────────

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
}

// ── Team Store ───────────────────────────────────────────────

type TeamStore interface {
	CreateTeam(ctx context.Context, team *models.Team) error
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	ListTeamsByUser(ctx context.Context, userID string) ([]models.Team, error)
}

// ── Agent Store ──────────────────────────────────────────────

type AgentStore interface {
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	UpdateAgent(ctx context.Context, agent *models.Agent) error
	DeleteAgent(ctx context.Context, id string) error

	// ListAgentsPage pages agents for a team ordered by name ascending.
	ListAgentsPage(ctx context.Context, teamID string, pageSize int, lastSeenID string) ([]models.Agent, error)
}

// ── Credential Store ─────────────────────────────────────────

type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, id string) (*models.Credential, error)
	DeleteCredential(ctx context.Context, id string) error

	// ListCredentials returns a team's credentials, optionally narrowed
	// to one credential key. Not paginated: credential sets are small.
	ListCredentials(ctx context.Context, teamID, key string) ([]models.Credential, error)
}

// ── Task Store ───────────────────────────────────────────────

type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, id string) error

	// ListTasksPage pages tasks matching the filter ordered by
	// updated_at descending (newest first).
	ListTasksPage(ctx context.Context, filter TaskFilter, pageSize int, lastSeenID string) ([]models.Task, error)

	// ListDueTasks returns scheduled tasks whose scheduled time is at or
	// before now and whose status is still pending.
	ListDueTasks(ctx context.Context, now time.Time, limit int) ([]models.Task, error)

	// TaskSummary aggregates a user's task counts by status.
	TaskSummary(ctx context.Context, userID string) (*models.TaskSummary, error)

	// ListExpiredTasks returns non-recurring tasks in a terminal status
	// (completed or failed) last updated before cutoff, oldest first.
	ListExpiredTasks(ctx context.Context, cutoff time.Time, limit int) ([]models.Task, error)
}

// ── Conversation Store ───────────────────────────────────────

type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationByThread(ctx context.Context, threadID string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation) error

	// AppendMessage appends a message to the conversation's embedded
	// list and refreshes the last-message preview. The returned
	// conversation reflects the post-append state.
	AppendMessage(ctx context.Context, conversationID string, msg models.Message) (*models.Conversation, error)

	// ListConversationsPage pages a team's conversations ordered by
	// created_at descending.
	ListConversationsPage(ctx context.Context, teamID string, pageSize int, lastSeenID string) ([]models.Conversation, error)

	// ListMessagesPage pages a conversation's messages by thread id
	// ordered by timestamp descending (newest first, for backfill
	// scrolling).
	ListMessagesPage(ctx context.Context, threadID string, pageSize int, lastSeenID string) ([]models.Message, error)
}

// ── OTP Store ────────────────────────────────────────────────

type OTPStore interface {
	// UpsertOTP replaces any existing code for (userID, purpose).
	UpsertOTP(ctx context.Context, code *models.OTPCode) error
	GetOTP(ctx context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error)
	DeleteOTP(ctx context.Context, userID string, purpose models.OTPPurpose) error

	// PruneExpiredOTPs removes codes whose expiry is at or before now
	// and returns how many were removed.
	PruneExpiredOTPs(ctx context.Context, now time.Time) (int, error)
}

// pageMessages applies the newest-first page window shared by both
// store implementations: resolve the cursor message, then take up to
// pageSize messages with a strictly older timestamp. An unresolvable
// cursor degrades to the first page.
func pageMessages(all []models.Message, pageSize int, lastSeenID string) []models.Message {
	sorted := append([]models.Message(nil), all...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })

	var after *time.Time
	if lastSeenID != "" {
		for _, m := range sorted {
			if m.ID == lastSeenID {
				ts := m.Timestamp
				after = &ts
				break
			}
		}
	}

	page := make([]models.Message, 0, pageSize)
	for _, m := range sorted {
		if after != nil && !m.Timestamp.Before(*after) {
			continue
		}
		page = append(page, m)
		if len(page) >= pageSize {
			break
		}
	}
	return page
}

// ── Errors ───────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is a store ErrNotFound.
func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}
