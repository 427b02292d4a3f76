// Package store — PostgreSQL Store implementation backed by pgx.
// Selected when AGENTDECK_DATABASE_URL is set; otherwise the memory
// store is used.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and ensures the schema
// exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info().Msg("Postgres store configured")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	verified      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS teams (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	owner_id    TEXT NOT NULL,
	member_ids  JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS agents (
	id             TEXT PRIMARY KEY,
	team_id        TEXT NOT NULL,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	tools          JSONB NOT NULL DEFAULT '[]',
	tool_agents    JSONB NOT NULL DEFAULT '[]',
	character      JSONB NOT NULL DEFAULT '{}',
	prompt         TEXT NOT NULL DEFAULT '',
	team_provision BOOLEAN NOT NULL DEFAULT FALSE,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS agents_team_name ON agents (team_id, name);
CREATE TABLE IF NOT EXISTS credentials (
	id         TEXT PRIMARY KEY,
	team_id    TEXT NOT NULL,
	key        TEXT NOT NULL,
	name       TEXT NOT NULL,
	secret     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	agent_id       TEXT NOT NULL DEFAULT '',
	team_id        TEXT NOT NULL DEFAULT '',
	message        TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	scheduled_time TIMESTAMPTZ,
	recurrence_ms  BIGINT NOT NULL DEFAULT 0,
	recurrence_end TIMESTAMPTZ,
	thread_id      TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_updated ON tasks (updated_at DESC);
CREATE TABLE IF NOT EXISTS conversations (
	id           TEXT PRIMARY KEY,
	team_id      TEXT NOT NULL,
	agent_id     TEXT NOT NULL DEFAULT '',
	thread_id    TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	messages     JSONB NOT NULL DEFAULT '[]',
	last_message TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS conversations_thread ON conversations (thread_id);
CREATE TABLE IF NOT EXISTS otp_codes (
	user_id    TEXT NOT NULL,
	purpose    TEXT NOT NULL,
	code       TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, purpose)
);`)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// ── User Store ───────────────────────────────────────────────

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Verified, u.CreatedAt)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, verified, created_at FROM users WHERE id = $1`, id), id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, verified, created_at FROM users WHERE lower(email) = lower($1)`, email), email)
}

func (s *PostgresStore) scanUser(row pgx.Row, key string) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Verified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "user", Key: key}
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u *models.User) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET email = $2, name = $3, password_hash = $4, verified = $5 WHERE id = $1`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Verified)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "user", Key: u.ID}
	}
	return nil
}

// ── Team Store ───────────────────────────────────────────────

func (s *PostgresStore) CreateTeam(ctx context.Context, t *models.Team) error {
	members, err := json.Marshal(t.MemberIDs)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO teams (id, name, description, owner_id, member_ids, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Description, t.OwnerID, members, t.CreatedAt)
	return err
}

func (s *PostgresStore) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	var t models.Team
	var members []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, owner_id, member_ids, created_at FROM teams WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &members, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "team", Key: id}
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &t.MemberIDs); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) ListTeamsByUser(ctx context.Context, userID string) ([]models.Team, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, owner_id, member_ids, created_at FROM teams
		 WHERE owner_id = $1 OR member_ids @> to_jsonb(ARRAY[$1]::text[])
		 ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Team
	for rows.Next() {
		var t models.Team
		var members []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &members, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(members, &t.MemberIDs); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// ── Agent Store ──────────────────────────────────────────────

func (s *PostgresStore) CreateAgent(ctx context.Context, a *models.Agent) error {
	tools, err := json.Marshal(a.Tools)
	if err != nil {
		return err
	}
	toolAgents, err := json.Marshal(a.ToolAgents)
	if err != nil {
		return err
	}
	character, err := json.Marshal(a.Character)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO agents (id, team_id, name, description, status, tools, tool_agents, character, prompt, team_provision, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.TeamID, a.Name, a.Description, a.Status, tools, toolAgents, character, a.Prompt, a.TeamProvision, a.CreatedAt, a.UpdatedAt)
	return err
}

const agentCols = `id, team_id, name, description, status, tools, tool_agents, character, prompt, team_provision, created_at, updated_at`

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	var tools, toolAgents, character []byte
	err := row.Scan(&a.ID, &a.TeamID, &a.Name, &a.Description, &a.Status, &tools, &toolAgents, &character, &a.Prompt, &a.TeamProvision, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tools, &a.Tools); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(toolAgents, &a.ToolAgents); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(character, &a.Character); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	a, err := scanAgent(s.pool.QueryRow(ctx, `SELECT `+agentCols+` FROM agents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	return a, err
}

func (s *PostgresStore) UpdateAgent(ctx context.Context, a *models.Agent) error {
	tools, err := json.Marshal(a.Tools)
	if err != nil {
		return err
	}
	toolAgents, err := json.Marshal(a.ToolAgents)
	if err != nil {
		return err
	}
	character, err := json.Marshal(a.Character)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET name = $2, description = $3, status = $4, tools = $5, tool_agents = $6,
		 character = $7, prompt = $8, team_provision = $9, updated_at = now()
		 WHERE id = $1`,
		a.ID, a.Name, a.Description, a.Status, tools, toolAgents, character, a.Prompt, a.TeamProvision)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "agent", Key: a.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteAgent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "agent", Key: id}
	}
	return nil
}

// ListAgentsPage pages a team's agents by name ascending using keyset
// pagination. See the pagination contract in store.go.
func (s *PostgresStore) ListAgentsPage(ctx context.Context, teamID string, pageSize int, lastSeenID string) ([]models.Agent, error) {
	afterName := ""
	if lastSeenID != "" {
		err := s.pool.QueryRow(ctx, `SELECT name FROM agents WHERE id = $1`, lastSeenID).Scan(&afterName)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		// ErrNoRows: cursor no longer resolves, fall back to first page.
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+agentCols+` FROM agents
		 WHERE ($1 = '' OR team_id = $1) AND ($2 = '' OR name > $2)
		 ORDER BY name LIMIT $3`, teamID, afterName, pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := make([]models.Agent, 0, pageSize)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, *a)
	}
	return page, rows.Err()
}

// ── Credential Store ─────────────────────────────────────────

func (s *PostgresStore) CreateCredential(ctx context.Context, c *models.Credential) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (id, team_id, key, name, secret, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.TeamID, c.Key, c.Name, c.Secret, c.CreatedAt)
	return err
}

func (s *PostgresStore) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	var c models.Credential
	err := s.pool.QueryRow(ctx,
		`SELECT id, team_id, key, name, secret, created_at FROM credentials WHERE id = $1`, id).
		Scan(&c.ID, &c.TeamID, &c.Key, &c.Name, &c.Secret, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "credential", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "credential", Key: id}
	}
	return nil
}

func (s *PostgresStore) ListCredentials(ctx context.Context, teamID, credKey string) ([]models.Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, team_id, key, name, secret, created_at FROM credentials
		 WHERE ($1 = '' OR team_id = $1) AND ($2 = '' OR key = $2)
		 ORDER BY created_at DESC`, teamID, credKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Credential
	for rows.Next() {
		var c models.Credential
		if err := rows.Scan(&c.ID, &c.TeamID, &c.Key, &c.Name, &c.Secret, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ── Task Store ───────────────────────────────────────────────

const taskCols = `id, user_id, agent_id, team_id, message, description, status, scheduled_time, recurrence_ms, recurrence_end, thread_id, created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.UserID, &t.AgentID, &t.TeamID, &t.Message, &t.Description, &t.Status,
		&t.ScheduledTime, &t.RecurrenceMs, &t.RecurrenceEnd, &t.ThreadID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, t *models.Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (`+taskCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.UserID, t.AgentID, t.TeamID, t.Message, t.Description, t.Status,
		t.ScheduledTime, t.RecurrenceMs, t.RecurrenceEnd, t.ThreadID, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "task", Key: id}
	}
	return t, err
}

func (s *PostgresStore) UpdateTask(ctx context.Context, t *models.Task) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET message = $2, description = $3, status = $4, scheduled_time = $5,
		 recurrence_ms = $6, recurrence_end = $7, thread_id = $8, updated_at = now()
		 WHERE id = $1`,
		t.ID, t.Message, t.Description, t.Status, t.ScheduledTime, t.RecurrenceMs, t.RecurrenceEnd, t.ThreadID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "task", Key: t.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "task", Key: id}
	}
	return nil
}

// ListTasksPage pages tasks by updated_at descending using keyset
// pagination. See the pagination contract in store.go.
func (s *PostgresStore) ListTasksPage(ctx context.Context, f TaskFilter, pageSize int, lastSeenID string) ([]models.Task, error) {
	var after *time.Time
	if lastSeenID != "" {
		var ts time.Time
		err := s.pool.QueryRow(ctx, `SELECT updated_at FROM tasks WHERE id = $1`, lastSeenID).Scan(&ts)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// Cursor no longer resolves, fall back to first page.
		case err != nil:
			return nil, err
		default:
			after = &ts
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+taskCols+` FROM tasks
		 WHERE ($1 = '' OR user_id = $1)
		   AND ($2 = '' OR agent_id = $2)
		   AND ($3 = '' OR team_id = $3)
		   AND ($4 = '' OR thread_id = $4)
		   AND (NOT $5 OR scheduled_time IS NOT NULL)
		   AND ($6::timestamptz IS NULL OR updated_at < $6)
		 ORDER BY updated_at DESC LIMIT $7`,
		f.UserID, f.AgentID, f.TeamID, f.ThreadID, f.ScheduledOnly, after, pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := make([]models.Task, 0, pageSize)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, *t)
	}
	return page, rows.Err()
}

func (s *PostgresStore) ListDueTasks(ctx context.Context, now time.Time, limit int) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskCols+` FROM tasks
		 WHERE status = $1 AND scheduled_time IS NOT NULL AND scheduled_time <= $2
		 ORDER BY scheduled_time LIMIT $3`,
		models.TaskStatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, *t)
	}
	return due, rows.Err()
}

func (s *PostgresStore) TaskSummary(ctx context.Context, userID string) (*models.TaskSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*) FROM tasks WHERE ($1 = '' OR user_id = $1) GROUP BY status`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sum := &models.TaskSummary{}
	for rows.Next() {
		var status models.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		sum.Total += count
		switch status {
		case models.TaskStatusPending:
			sum.Pending = count
		case models.TaskStatusProcessing:
			sum.Processing = count
		case models.TaskStatusCompleted:
			sum.Completed = count
		case models.TaskStatusFailed:
			sum.Failed = count
		}
	}
	return sum, rows.Err()
}

func (s *PostgresStore) ListExpiredTasks(ctx context.Context, cutoff time.Time, limit int) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskCols+` FROM tasks
		 WHERE status IN ($1, $2) AND recurrence_ms = 0 AND updated_at < $3
		 ORDER BY updated_at LIMIT $4`,
		models.TaskStatusCompleted, models.TaskStatusFailed, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *t)
	}
	return expired, rows.Err()
}

// ── Conversation Store ───────────────────────────────────────

const convCols = `id, team_id, agent_id, thread_id, title, messages, last_message, created_at, updated_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	var msgs []byte
	err := row.Scan(&c.ID, &c.TeamID, &c.AgentID, &c.ThreadID, &c.Title, &msgs, &c.LastMessage, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := json.Unmarshal(msgs, &docs); err != nil {
		return nil, err
	}
	c.Messages = normalizeMessages(docs)
	return &c, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c *models.Conversation) error {
	msgs, err := json.Marshal(encodeMessages(c.Messages))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversations (`+convCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.TeamID, c.AgentID, c.ThreadID, c.Title, msgs, c.LastMessage, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	c, err := scanConversation(s.pool.QueryRow(ctx, `SELECT `+convCols+` FROM conversations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "conversation", Key: id}
	}
	return c, err
}

func (s *PostgresStore) GetConversationByThread(ctx context.Context, threadID string) (*models.Conversation, error) {
	c, err := scanConversation(s.pool.QueryRow(ctx, `SELECT `+convCols+` FROM conversations WHERE thread_id = $1`, threadID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "conversation", Key: threadID}
	}
	return c, err
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, c *models.Conversation) error {
	msgs, err := json.Marshal(encodeMessages(c.Messages))
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET title = $2, messages = $3, last_message = $4, thread_id = $5, updated_at = now()
		 WHERE id = $1`,
		c.ID, c.Title, msgs, c.LastMessage, c.ThreadID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "conversation", Key: c.ID}
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID string, msg models.Message) (*models.Conversation, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastMessage = msg.Body
	if err := s.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversationsPage pages a team's conversations by created_at
// descending using keyset pagination. See the pagination contract in
// store.go.
func (s *PostgresStore) ListConversationsPage(ctx context.Context, teamID string, pageSize int, lastSeenID string) ([]models.Conversation, error) {
	var after *time.Time
	if lastSeenID != "" {
		var ts time.Time
		err := s.pool.QueryRow(ctx, `SELECT created_at FROM conversations WHERE id = $1`, lastSeenID).Scan(&ts)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// Cursor no longer resolves, fall back to first page.
		case err != nil:
			return nil, err
		default:
			after = &ts
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+convCols+` FROM conversations
		 WHERE ($1 = '' OR team_id = $1)
		   AND ($2::timestamptz IS NULL OR created_at < $2)
		 ORDER BY created_at DESC LIMIT $3`, teamID, after, pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := make([]models.Conversation, 0, pageSize)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		page = append(page, *c)
	}
	return page, rows.Err()
}

// ListMessagesPage pages a conversation's embedded messages in Go:
// the conversation is a single document, so the page window is sliced
// after the load, matching the memory store.
func (s *PostgresStore) ListMessagesPage(ctx context.Context, threadID string, pageSize int, lastSeenID string) ([]models.Message, error) {
	conv, err := s.GetConversationByThread(ctx, threadID)
	if err != nil {
		if IsNotFound(err) {
			return []models.Message{}, nil
		}
		return nil, err
	}
	return pageMessages(conv.Messages, pageSize, lastSeenID), nil
}

// ── OTP Store ────────────────────────────────────────────────

func (s *PostgresStore) UpsertOTP(ctx context.Context, code *models.OTPCode) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO otp_codes (user_id, purpose, code, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, purpose) DO UPDATE SET code = $3, expires_at = $4`,
		code.UserID, code.Purpose, code.Code, code.ExpiresAt)
	return err
}

func (s *PostgresStore) GetOTP(ctx context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error) {
	var c models.OTPCode
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, purpose, code, expires_at FROM otp_codes WHERE user_id = $1 AND purpose = $2`,
		userID, purpose).Scan(&c.UserID, &c.Purpose, &c.Code, &c.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "otp", Key: userID}
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) DeleteOTP(ctx context.Context, userID string, purpose models.OTPPurpose) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM otp_codes WHERE user_id = $1 AND purpose = $2`, userID, purpose)
	return err
}

func (s *PostgresStore) PruneExpiredOTPs(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM otp_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
