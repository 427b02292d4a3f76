// Package livesync delivers authoritative conversation snapshots to
// whoever is watching a conversation: an in-process Broker fans out
// full-document snapshots, a Subscriber enforces the one-subscription-
// per-panel lifecycle, and a websocket handler carries snapshots to
// dashboard clients.
//
// Every notification carries the conversation's complete message list.
// Subscribers replace their local state wholesale; there is no
// incremental patching. The latest snapshot always wins.
package livesync

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// Broker fans conversation snapshots out to subscribers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan models.Conversation // conversation ID → subscriber ID → channel
	nextID int
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]chan models.Conversation)}
}

// Publish delivers a snapshot of the conversation to every subscriber
// watching it. Each subscriber channel holds at most one pending
// snapshot: if a subscriber has not consumed the previous one, it is
// dropped in favor of the newer snapshot.
func (b *Broker) Publish(conv *models.Conversation) {
	if conv == nil {
		return
	}
	snapshot := *conv
	snapshot.Messages = append([]models.Message(nil), conv.Messages...)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[conv.ID] {
		select {
		case ch <- snapshot:
		default:
			// Stale snapshot still pending: replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

// Subscribe registers interest in a conversation. The returned cancel
// function must be called exactly once; afterwards the channel is
// closed and no further snapshots arrive.
func (b *Broker) Subscribe(conversationID string) (<-chan models.Conversation, func()) {
	ch := make(chan models.Conversation, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[int]chan models.Conversation)
	}
	b.subs[conversationID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if m := b.subs[conversationID]; m != nil {
				delete(m, id)
				if len(m) == 0 {
					delete(b.subs, conversationID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount returns how many subscribers watch the conversation.
func (b *Broker) SubscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}

// Close tears the broker down. Existing subscriptions stop receiving
// snapshots; their cancel functions remain safe to call.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	log.Debug().Msg("Live-sync broker closed")
}
