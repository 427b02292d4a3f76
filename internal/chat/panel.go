package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// State is the panel lifecycle. Exactly one state holds at a time;
// the sending and responding phases are states of their own rather
// than boolean flags layered over Subscribed, so combinations like
// "sending while not subscribed" cannot be represented.
type State int

const (
	// StateIdle means no conversation is open.
	StateIdle State = iota
	// StateLoadingPage means the first page of history is in flight.
	StateLoadingPage
	// StateSubscribed means the panel is live: history loaded and
	// the conversation subscription active.
	StateSubscribed
	// StateSending means a send call is in flight.
	StateSending
	// StateAgentResponding means the send has been accepted and the
	// panel is waiting for the agent's reply to arrive over live
	// sync. The typing indicator is visible in this state.
	StateAgentResponding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingPage:
		return "loading_page"
	case StateSubscribed:
		return "subscribed"
	case StateSending:
		return "sending"
	case StateAgentResponding:
		return "agent_responding"
	}
	return "unknown"
}

// typingDelay is how long after an optimistic append the typing
// indicator appears, if no reply has landed yet.
const typingDelay = 500 * time.Millisecond

// DefaultPageSize matches the history page size used elsewhere.
const DefaultPageSize = 20

// PageFetcher loads one page of a conversation's history, newest
// first. lastSeenID is the oldest already-loaded message id, or ""
// for the first page.
type PageFetcher func(ctx context.Context, threadID string, pageSize int, lastSeenID string) ([]models.Message, error)

// Panel holds the in-memory message list for one open conversation.
// The list has two writers with a strict priority: optimistic local
// appends, and live-sync replacement, which always wins. A live
// snapshot replaces the list wholesale, temp entries included; a
// confirmed copy of each temp message comes back inside the snapshot.
type Panel struct {
	fetch    PageFetcher
	pageSize int
	onScroll func() // scroll-to-bottom hook, may be nil

	mu       sync.Mutex
	state    State
	convID   string
	threadID string
	messages []models.Message // ascending by timestamp
	hasMore  bool
	loading  bool
	sentAt   time.Time // when the pending send's optimistic append happened
	timer    *time.Timer
}

// NewPanel builds an idle panel. onScroll is invoked, outside the
// panel lock, whenever new messages should bring the view to the
// bottom; pass nil when no view is attached.
func NewPanel(fetch PageFetcher, onScroll func()) *Panel {
	return &Panel{
		fetch:    fetch,
		pageSize: DefaultPageSize,
		onScroll: onScroll,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ConversationID returns the open conversation's id, or "".
func (p *Panel) ConversationID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.convID
}

// ThreadID returns the open conversation's thread id, or "".
func (p *Panel) ThreadID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threadID
}

// Messages returns a copy of the current list, oldest first.
func (p *Panel) Messages() []models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// AgentTyping reports whether the typing indicator is showing.
func (p *Panel) AgentTyping() bool {
	return p.State() == StateAgentResponding
}

// HasMore reports whether older history may remain unloaded.
func (p *Panel) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Open points the panel at a conversation and resets its buffer. The
// panel enters LoadingPage; the caller loads the first page and
// attaches the subscription, then calls MarkSubscribed.
func (p *Panel) Open(conversationID, threadID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTimerLocked()
	p.convID = conversationID
	p.threadID = threadID
	p.messages = nil
	p.hasMore = true
	p.loading = false
	p.state = StateLoadingPage
}

// Close returns the panel to idle and drops the buffer.
func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTimerLocked()
	p.convID = ""
	p.threadID = ""
	p.messages = nil
	p.hasMore = false
	p.loading = false
	p.state = StateIdle
}

// MarkSubscribed records that the live subscription is attached.
func (p *Panel) MarkSubscribed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateLoadingPage || p.state == StateIdle {
		p.state = StateSubscribed
	}
}

// LoadOlder fetches the next older page and prepends it. A call while
// a load is already in flight is dropped, not queued; a second
// scroll-to-top during a fetch does nothing. A short page marks the
// history exhausted. A fetch error is returned as-is and leaves the
// cursor and hasMore untouched, so the next scroll retries the same
// page.
func (p *Panel) LoadOlder(ctx context.Context) error {
	p.mu.Lock()
	if p.loading || !p.hasMore || p.threadID == "" {
		p.mu.Unlock()
		return nil
	}
	p.loading = true
	threadID := p.threadID
	cursor := p.oldestLoadedIDLocked()
	size := p.pageSize
	p.mu.Unlock()

	page, err := p.fetch(ctx, threadID, size, cursor)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if err != nil {
		return err
	}
	if len(page) < size {
		p.hasMore = false
	}
	p.prependLocked(page)
	if p.state == StateLoadingPage {
		p.state = StateSubscribed
	}
	return nil
}

// oldestLoadedIDLocked is the keyset cursor for the next older page:
// the id of the oldest non-temporary message in the buffer.
func (p *Panel) oldestLoadedIDLocked() string {
	for _, m := range p.messages {
		if !models.IsTempID(m.ID) {
			return m.ID
		}
	}
	return ""
}

// prependLocked merges a newest-first page into the front of the
// ascending buffer, skipping ids already present.
func (p *Panel) prependLocked(page []models.Message) {
	if len(page) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(p.messages))
	for _, m := range p.messages {
		seen[m.ID] = struct{}{}
	}
	var older []models.Message
	for _, m := range page {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		older = append(older, m)
	}
	sort.Slice(older, func(i, j int) bool {
		return older[i].Timestamp.Before(older[j].Timestamp)
	})
	p.messages = append(older, p.messages...)
}

// AppendOptimistic inserts a locally-created user message with a
// temporary id and arms the typing indicator. The message counts in
// the visible list immediately; the server-confirmed copy arrives
// later inside a live snapshot, which replaces this one.
func (p *Panel) AppendOptimistic(body, senderID string) models.Message {
	now := time.Now()
	msg := models.Message{
		ID:        models.NewTempID(now),
		Origin:    models.OriginUser,
		SenderID:  senderID,
		Body:      body,
		Status:    models.MessageStatusSending,
		Timestamp: now,
	}

	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.sentAt = now
	p.state = StateSending
	p.stopTimerLocked()
	p.timer = time.AfterFunc(typingDelay, p.typingDeadline)
	p.mu.Unlock()

	p.scroll()
	return msg
}

// typingDeadline fires typingDelay after an optimistic append. If the
// reply still hasn't landed, the typing indicator goes up.
func (p *Panel) typingDeadline() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateSending {
		p.state = StateAgentResponding
	}
}

// SendAccepted records that the send call returned successfully. The
// panel keeps waiting for the reply; the indicator state is left to
// the timer and the next snapshot.
func (p *Panel) SendAccepted(threadID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.threadID == "" {
		p.threadID = threadID
	}
}

// SendFailed clears the in-flight send. The optimistic message stays
// in the list in its sending state; there is no automatic retry.
func (p *Panel) SendFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTimerLocked()
	if p.state == StateSending || p.state == StateAgentResponding {
		p.state = StateSubscribed
	}
}

// Replace applies a live-sync snapshot: the buffer becomes the
// snapshot's message list, discarding temp entries wholesale. The
// first agent message arriving after the pending send clears the
// typing indicator.
func (p *Panel) Replace(conv models.Conversation) {
	msgs := make([]models.Message, len(conv.Messages))
	copy(msgs, conv.Messages)
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	p.mu.Lock()
	if p.convID != "" && conv.ID != p.convID {
		p.mu.Unlock()
		log.Debug().
			Str("conversation_id", conv.ID).
			Str("open_conversation_id", p.convID).
			Msg("dropping snapshot for another conversation")
		return
	}
	grew := len(msgs) > len(p.messages)
	p.messages = msgs
	if p.threadID == "" {
		p.threadID = conv.ThreadID
	}
	if p.state == StateSending || p.state == StateAgentResponding {
		if p.replyLandedLocked() {
			p.stopTimerLocked()
			p.state = StateSubscribed
		}
	}
	p.mu.Unlock()

	if grew {
		p.scroll()
	}
}

// replyLandedLocked reports whether an agent message newer than the
// pending send is in the buffer.
func (p *Panel) replyLandedLocked() bool {
	for i := len(p.messages) - 1; i >= 0; i-- {
		m := p.messages[i]
		if m.Timestamp.Before(p.sentAt) {
			return false
		}
		if !m.FromUser() {
			return true
		}
	}
	return false
}

func (p *Panel) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Panel) scroll() {
	if p.onScroll != nil {
		p.onScroll()
	}
}
