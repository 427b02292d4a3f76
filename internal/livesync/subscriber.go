package livesync

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// State is the subscriber lifecycle state.
type State int

const (
	// Unsubscribed means no conversation is being watched.
	Unsubscribed State = iota
	// Subscribed means exactly one conversation is being watched.
	Subscribed
)

// Subscriber owns one chat panel's live subscription. It holds at most
// one broker subscription at any time: switching conversations cancels
// the old subscription before establishing the new one, and teardown
// cancels whatever is active.
//
// On every snapshot the replace callback receives the conversation's
// full message list. The callback is invoked from a single goroutine
// per subscription, never concurrently with itself.
type Subscriber struct {
	broker  *Broker
	replace func(models.Conversation)

	mu     sync.Mutex
	state  State
	convID string
	cancel func()
	wg     sync.WaitGroup
}

// NewSubscriber creates an unsubscribed subscriber. replace is called
// with each arriving snapshot.
func NewSubscriber(broker *Broker, replace func(models.Conversation)) *Subscriber {
	return &Subscriber{broker: broker, replace: replace}
}

// Switch watches the given conversation, cancelling any previous
// subscription first. Switching to the already-watched conversation is
// a no-op.
func (s *Subscriber) Switch(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Subscribed && s.convID == conversationID {
		return
	}
	s.stopLocked()

	ch, cancel := s.broker.Subscribe(conversationID)
	s.state = Subscribed
	s.convID = conversationID
	s.cancel = cancel

	s.wg.Add(1)
	go s.pump(conversationID, ch)

	log.Debug().Str("conversation", conversationID).Msg("Live-sync subscribed")
}

// pump forwards snapshots to the replace callback until the
// subscription is cancelled. A panicking callback is logged and the
// pump keeps running: a bad handler must not tear down the
// subscription.
func (s *Subscriber) pump(conversationID string, ch <-chan models.Conversation) {
	defer s.wg.Done()
	for snapshot := range ch {
		s.deliver(conversationID, snapshot)
	}
}

func (s *Subscriber) deliver(conversationID string, snapshot models.Conversation) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("conversation", conversationID).
				Msg("Live-sync replace callback panicked")
		}
	}()
	s.replace(snapshot)
}

// Unsubscribe stops watching. Safe to call when already unsubscribed.
func (s *Subscriber) Unsubscribe() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

func (s *Subscriber) stopLocked() {
	if s.state == Unsubscribed {
		return
	}
	s.cancel()
	s.cancel = nil
	s.state = Unsubscribed
	s.convID = ""
}

// Current returns the state and, when subscribed, the watched
// conversation ID.
func (s *Subscriber) Current() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.convID
}

// Wait blocks until all pump goroutines have exited. Intended for
// tests and orderly teardown after Unsubscribe.
func (s *Subscriber) Wait() {
	s.wg.Wait()
}
