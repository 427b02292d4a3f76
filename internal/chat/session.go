package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/internal/livesync"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

// Session is one open chat panel for one user: the panel buffer, its
// live subscription, and the session-scoped thread cache the
// orchestrator consults before store lookups.
type Session struct {
	ID        string
	UserID    string
	TeamID    string
	Threads   *ThreadCache
	Panel     *Panel
	Sub       *livesync.Subscriber
	CreatedAt time.Time
	UpdatedAt time.Time

	st store.Store
}

// OpenConversation points the session at a conversation: resets the
// panel, loads the first page, and switches the live subscription. A
// priming snapshot is fetched after the switch so nothing published
// between the page load and the subscription is missed.
func (s *Session) OpenConversation(ctx context.Context, conv *models.Conversation) error {
	s.Panel.Open(conv.ID, conv.ThreadID)
	if err := s.Panel.LoadOlder(ctx); err != nil {
		return err
	}
	s.Sub.Switch(conv.ID)
	s.Panel.MarkSubscribed()
	current, err := s.st.GetConversation(ctx, conv.ID)
	if err != nil {
		return err
	}
	s.Panel.Replace(*current)
	return nil
}

// Close tears the session down: unsubscribes and idles the panel.
func (s *Session) Close() {
	s.Sub.Unsubscribe()
	s.Sub.Wait()
	s.Panel.Close()
}

// Manager is a thread-safe registry of open panel sessions.
type Manager struct {
	st     store.Store
	broker *livesync.Broker

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session registry.
func NewManager(st store.Store, broker *livesync.Broker) *Manager {
	return &Manager{
		st:       st,
		broker:   broker,
		sessions: make(map[string]*Session),
	}
}

// Create builds and registers a session for a user's panel. The panel
// pages history through the store and receives live snapshots through
// the broker.
func (m *Manager) Create(userID, teamID string) *Session {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TeamID:    teamID,
		Threads:   &ThreadCache{},
		CreatedAt: now,
		UpdatedAt: now,
		st:        m.st,
	}
	sess.Panel = NewPanel(m.st.ListMessagesPage, nil)
	sess.Sub = livesync.NewSubscriber(m.broker, sess.Panel.Replace)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return sess
}

// Get retrieves a session by ID.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	return sess, nil
}

// Delete closes and removes a session.
func (m *Manager) Delete(sessionID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	sess.Close()
	return nil
}

// CloseAll tears down every session, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}
