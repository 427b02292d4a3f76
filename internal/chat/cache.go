// Package chat implements the server-side state of one open chat
// panel: the optimistic message buffer, the panel lifecycle state
// machine, the session-scoped thread cache, and the send-message
// orchestrator.
package chat

import "sync"

// ThreadCache is the session-scoped thread-id cache: once a panel
// learns its thread id, every later send in the same session reuses
// it. It is an explicit value object owned by the panel session and
// handed to the orchestrator, never process-global state.
type ThreadCache struct {
	mu sync.Mutex
	id string
}

// Get returns the cached thread id, or "".
func (c *ThreadCache) Get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// SetOnce caches the thread id if none is cached yet and reports
// whether it was stored. Later calls with a different id are ignored:
// the first learned thread id wins for the session's lifetime.
func (c *ThreadCache) SetOnce(id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id != "" {
		return false
	}
	c.id = id
	return true
}
