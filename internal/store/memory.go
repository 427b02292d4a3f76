// Package store — in-memory Store implementation.
// Used as a fallback when PostgreSQL is not available (local dev,
// tests). Supports file-based snapshot persistence so data survives
// restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// conversationDoc is the persisted shape of a conversation; messages
// go through the legacy-field adapter on load.
type conversationDoc struct {
	ID          string       `json:"id"`
	TeamID      string       `json:"team_id"`
	AgentID     string       `json:"agent_id,omitempty"`
	ThreadID    string       `json:"thread_id,omitempty"`
	Title       string       `json:"title,omitempty"`
	Messages    []messageDoc `json:"messages"`
	LastMessage string       `json:"last_message,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Users         map[string]*models.User       `json:"users"`
	Teams         map[string]*models.Team       `json:"teams"`
	Agents        map[string]*models.Agent      `json:"agents"`
	Credentials   map[string]*models.Credential `json:"credentials"`
	Tasks         map[string]*models.Task       `json:"tasks"`
	Conversations map[string]*conversationDoc   `json:"conversations"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*models.User         // key: id
	teams         map[string]*models.Team         // key: id
	agents        map[string]*models.Agent        // key: id
	credentials   map[string]*models.Credential   // key: id
	tasks         map[string]*models.Task         // key: id
	conversations map[string]*models.Conversation // key: id
	otps          map[string]*models.OTPCode      // key: user_id:purpose, never snapshotted

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop
}

// NewMemoryStore creates a new in-memory store.
// If AGENTDECK_DATA_DIR is set, data is persisted to a JSON file in
// that directory. Otherwise defaults to ~/.agentdeck/data.json.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		users:         make(map[string]*models.User),
		teams:         make(map[string]*models.Team),
		agents:        make(map[string]*models.Agent),
		credentials:   make(map[string]*models.Credential),
		tasks:         make(map[string]*models.Task),
		conversations: make(map[string]*models.Conversation),
		otps:          make(map[string]*models.OTPCode),
		saveCh:        make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
	}

	dataDir := os.Getenv("AGENTDECK_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".agentdeck")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	convs := make(map[string]*conversationDoc, len(m.conversations))
	for id, c := range m.conversations {
		convs[id] = &conversationDoc{
			ID:          c.ID,
			TeamID:      c.TeamID,
			AgentID:     c.AgentID,
			ThreadID:    c.ThreadID,
			Title:       c.Title,
			Messages:    encodeMessages(c.Messages),
			LastMessage: c.LastMessage,
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		}
	}
	snap := snapshot{
		Users:         m.users,
		Teams:         m.teams,
		Agents:        m.agents,
		Credentials:   m.credentials,
		Tasks:         m.tasks,
		Conversations: convs,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads data from disk on startup. Conversations pass
// through the legacy message-field adapter so documents written by the
// old dashboard load cleanly.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Users != nil {
		m.users = snap.Users
	}
	if snap.Teams != nil {
		m.teams = snap.Teams
	}
	if snap.Agents != nil {
		m.agents = snap.Agents
	}
	if snap.Credentials != nil {
		m.credentials = snap.Credentials
	}
	if snap.Tasks != nil {
		m.tasks = snap.Tasks
	}
	for id, doc := range snap.Conversations {
		m.conversations[id] = &models.Conversation{
			ID:          doc.ID,
			TeamID:      doc.TeamID,
			AgentID:     doc.AgentID,
			ThreadID:    doc.ThreadID,
			Title:       doc.Title,
			Messages:    normalizeMessages(doc.Messages),
			LastMessage: doc.LastMessage,
			CreatedAt:   doc.CreatedAt,
			UpdatedAt:   doc.UpdatedAt,
		}
	}

	log.Info().
		Int("users", len(m.users)).
		Int("teams", len(m.teams)).
		Int("agents", len(m.agents)).
		Int("tasks", len(m.tasks)).
		Int("conversations", len(m.conversations)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		// Already closed
		return nil
	default:
		close(m.doneCh)
	}

	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

func key(parts ...string) string {
	return strings.Join(parts, ":")
}

// ── User Store ───────────────────────────────────────────────

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	copy := *user
	m.users[user.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "user", Key: id}
	}
	copy := *u
	return &copy, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copy := *u
			return &copy, nil
		}
	}
	return nil, &ErrNotFound{Entity: "user", Key: email}
}

func (m *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	if _, ok := m.users[user.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "user", Key: user.ID}
	}
	copy := *user
	m.users[user.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Team Store ───────────────────────────────────────────────

func (m *MemoryStore) CreateTeam(_ context.Context, team *models.Team) error {
	m.mu.Lock()
	copy := *team
	m.teams[team.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetTeam(_ context.Context, id string) (*models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "team", Key: id}
	}
	copy := *t
	return &copy, nil
}

func (m *MemoryStore) ListTeamsByUser(_ context.Context, userID string) ([]models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Team
	for _, t := range m.teams {
		if t.OwnerID == userID {
			result = append(result, *t)
			continue
		}
		for _, id := range t.MemberIDs {
			if id == userID {
				result = append(result, *t)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ── Agent Store ──────────────────────────────────────────────

func (m *MemoryStore) CreateAgent(_ context.Context, agent *models.Agent) error {
	m.mu.Lock()
	copy := *agent
	m.agents[agent.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	copy := *a
	return &copy, nil
}

func (m *MemoryStore) UpdateAgent(_ context.Context, agent *models.Agent) error {
	m.mu.Lock()
	if _, ok := m.agents[agent.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "agent", Key: agent.ID}
	}
	copy := *agent
	copy.UpdatedAt = time.Now().UTC()
	m.agents[agent.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.agents[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "agent", Key: id}
	}
	delete(m.agents, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ListAgentsPage pages a team's agents ordered by name ascending.
// See the pagination contract in store.go.
func (m *MemoryStore) ListAgentsPage(_ context.Context, teamID string, pageSize int, lastSeenID string) ([]models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []models.Agent
	for _, a := range m.agents {
		if teamID == "" || a.TeamID == teamID {
			all = append(all, *a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	// Resolve the cursor; an unresolvable cursor silently degrades to
	// an unpaginated first page.
	afterName := ""
	if lastSeenID != "" {
		if last, ok := m.agents[lastSeenID]; ok {
			afterName = last.Name
		}
	}

	page := make([]models.Agent, 0, pageSize)
	for _, a := range all {
		if afterName != "" && a.Name <= afterName {
			continue
		}
		page = append(page, a)
		if len(page) >= pageSize {
			break
		}
	}
	return page, nil
}

// ── Credential Store ─────────────────────────────────────────

func (m *MemoryStore) CreateCredential(_ context.Context, cred *models.Credential) error {
	m.mu.Lock()
	copy := *cred
	m.credentials[cred.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetCredential(_ context.Context, id string) (*models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "credential", Key: id}
	}
	copy := *c
	return &copy, nil
}

func (m *MemoryStore) DeleteCredential(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.credentials[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "credential", Key: id}
	}
	delete(m.credentials, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListCredentials(_ context.Context, teamID, credKey string) ([]models.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Credential
	for _, c := range m.credentials {
		if teamID != "" && c.TeamID != teamID {
			continue
		}
		if credKey != "" && c.Key != credKey {
			continue
		}
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// ── Task Store ───────────────────────────────────────────────

func (m *MemoryStore) CreateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	copy := *task
	m.tasks[task.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "task", Key: id}
	}
	copy := *t
	return &copy, nil
}

func (m *MemoryStore) UpdateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	if _, ok := m.tasks[task.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "task", Key: task.ID}
	}
	copy := *task
	copy.UpdatedAt = time.Now().UTC()
	m.tasks[task.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.tasks[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "task", Key: id}
	}
	delete(m.tasks, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func matchTask(t *models.Task, f TaskFilter) bool {
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.AgentID != "" && t.AgentID != f.AgentID {
		return false
	}
	if f.TeamID != "" && t.TeamID != f.TeamID {
		return false
	}
	if f.ThreadID != "" && t.ThreadID != f.ThreadID {
		return false
	}
	if f.ScheduledOnly && t.ScheduledTime == nil {
		return false
	}
	return true
}

// ListTasksPage pages tasks matching the filter ordered by updated_at
// descending. See the pagination contract in store.go.
func (m *MemoryStore) ListTasksPage(_ context.Context, filter TaskFilter, pageSize int, lastSeenID string) ([]models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []models.Task
	for _, t := range m.tasks {
		if matchTask(t, filter) {
			all = append(all, *t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	var after *time.Time
	if lastSeenID != "" {
		if last, ok := m.tasks[lastSeenID]; ok {
			ts := last.UpdatedAt
			after = &ts
		}
	}

	page := make([]models.Task, 0, pageSize)
	for _, t := range all {
		if after != nil && !t.UpdatedAt.Before(*after) {
			continue
		}
		page = append(page, t)
		if len(page) >= pageSize {
			break
		}
	}
	return page, nil
}

func (m *MemoryStore) ListDueTasks(_ context.Context, now time.Time, limit int) ([]models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []models.Task
	for _, t := range m.tasks {
		if t.Status != models.TaskStatusPending || t.ScheduledTime == nil {
			continue
		}
		if t.ScheduledTime.After(now) {
			continue
		}
		due = append(due, *t)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledTime.Before(*due[j].ScheduledTime) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MemoryStore) TaskSummary(_ context.Context, userID string) (*models.TaskSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := &models.TaskSummary{}
	for _, t := range m.tasks {
		if userID != "" && t.UserID != userID {
			continue
		}
		sum.Total++
		switch t.Status {
		case models.TaskStatusPending:
			sum.Pending++
		case models.TaskStatusProcessing:
			sum.Processing++
		case models.TaskStatusCompleted:
			sum.Completed++
		case models.TaskStatusFailed:
			sum.Failed++
		}
	}
	return sum, nil
}

func (m *MemoryStore) ListExpiredTasks(_ context.Context, cutoff time.Time, limit int) ([]models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var expired []models.Task
	for _, t := range m.tasks {
		if t.Status != models.TaskStatusCompleted && t.Status != models.TaskStatusFailed {
			continue
		}
		if t.Recurring() || !t.UpdatedAt.Before(cutoff) {
			continue
		}
		expired = append(expired, *t)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].UpdatedAt.Before(expired[j].UpdatedAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

// ── Conversation Store ───────────────────────────────────────

func (m *MemoryStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	copy := *conv
	copy.Messages = append([]models.Message(nil), conv.Messages...)
	m.conversations[conv.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "conversation", Key: id}
	}
	return cloneConversation(c), nil
}

func (m *MemoryStore) GetConversationByThread(_ context.Context, threadID string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conversations {
		if c.ThreadID == threadID {
			return cloneConversation(c), nil
		}
	}
	return nil, &ErrNotFound{Entity: "conversation", Key: threadID}
}

func (m *MemoryStore) UpdateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	if _, ok := m.conversations[conv.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "conversation", Key: conv.ID}
	}
	copy := *conv
	copy.Messages = append([]models.Message(nil), conv.Messages...)
	copy.UpdatedAt = time.Now().UTC()
	m.conversations[conv.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, conversationID string, msg models.Message) (*models.Conversation, error) {
	m.mu.Lock()
	c, ok := m.conversations[conversationID]
	if !ok {
		m.mu.Unlock()
		return nil, &ErrNotFound{Entity: "conversation", Key: conversationID}
	}
	c.Messages = append(c.Messages, msg)
	c.LastMessage = msg.Body
	c.UpdatedAt = time.Now().UTC()
	result := cloneConversation(c)
	m.mu.Unlock()
	m.requestSave()
	return result, nil
}

// ListConversationsPage pages a team's conversations ordered by
// created_at descending. See the pagination contract in store.go.
func (m *MemoryStore) ListConversationsPage(_ context.Context, teamID string, pageSize int, lastSeenID string) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*models.Conversation
	for _, c := range m.conversations {
		if teamID == "" || c.TeamID == teamID {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	var after *time.Time
	if lastSeenID != "" {
		if last, ok := m.conversations[lastSeenID]; ok {
			ts := last.CreatedAt
			after = &ts
		}
	}

	page := make([]models.Conversation, 0, pageSize)
	for _, c := range all {
		if after != nil && !c.CreatedAt.Before(*after) {
			continue
		}
		page = append(page, *cloneConversation(c))
		if len(page) >= pageSize {
			break
		}
	}
	return page, nil
}

// ListMessagesPage pages a conversation's messages newest-first by
// thread id, for backfill scrolling. See the pagination contract in
// store.go.
func (m *MemoryStore) ListMessagesPage(_ context.Context, threadID string, pageSize int, lastSeenID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var conv *models.Conversation
	for _, c := range m.conversations {
		if c.ThreadID == threadID {
			conv = c
			break
		}
	}
	if conv == nil {
		return []models.Message{}, nil
	}
	return pageMessages(conv.Messages, pageSize, lastSeenID), nil
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	copy := *c
	copy.Messages = append([]models.Message(nil), c.Messages...)
	return &copy
}

// ── OTP Store ────────────────────────────────────────────────
//
// OTP codes are short-lived and deliberately excluded from snapshots.

func (m *MemoryStore) UpsertOTP(_ context.Context, code *models.OTPCode) error {
	m.mu.Lock()
	copy := *code
	m.otps[key(code.UserID, string(code.Purpose))] = &copy
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetOTP(_ context.Context, userID string, purpose models.OTPPurpose) (*models.OTPCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.otps[key(userID, string(purpose))]
	if !ok {
		return nil, &ErrNotFound{Entity: "otp", Key: userID}
	}
	copy := *c
	return &copy, nil
}

func (m *MemoryStore) DeleteOTP(_ context.Context, userID string, purpose models.OTPPurpose) error {
	m.mu.Lock()
	delete(m.otps, key(userID, string(purpose)))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) PruneExpiredOTPs(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, c := range m.otps {
		if !c.ExpiresAt.After(now) {
			delete(m.otps, k)
			removed++
		}
	}
	return removed, nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
