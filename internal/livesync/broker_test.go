package livesync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/pkg/models"
)

func conv(id string, bodies ...string) *models.Conversation {
	c := &models.Conversation{ID: id, TeamID: "t1"}
	for i, b := range bodies {
		c.Messages = append(c.Messages, models.Message{
			ID:        b,
			Origin:    models.OriginUser,
			Body:      b,
			Timestamp: time.Date(2026, 3, 1, 9, 0, i, 0, time.UTC),
		})
	}
	return c
}

func TestBroker_PublishReachesSubscriber(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("c1")
	defer cancel()

	b.Publish(conv("c1", "hello"))

	select {
	case got := <-ch:
		require.Equal(t, "c1", got.ID)
		require.Len(t, got.Messages, 1)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestBroker_LatestSnapshotWins(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("c1")
	defer cancel()

	// Publish twice without the subscriber consuming: the stale
	// snapshot must be replaced, not queued.
	b.Publish(conv("c1", "first"))
	b.Publish(conv("c1", "first", "second"))

	got := <-ch
	require.Len(t, got.Messages, 2, "subscriber sees only the latest snapshot")

	select {
	case extra, ok := <-ch:
		if ok {
			t.Fatalf("unexpected extra snapshot with %d messages", len(extra.Messages))
		}
	default:
	}
}

func TestBroker_PublishIsolatedPerConversation(t *testing.T) {
	b := NewBroker()
	ch1, cancel1 := b.Subscribe("c1")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("c2")
	defer cancel2()

	b.Publish(conv("c1", "only c1"))

	select {
	case <-ch2:
		t.Fatal("c2 subscriber received a c1 snapshot")
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, "c1", (<-ch1).ID)
}

func TestBroker_CancelStopsDelivery(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("c1")
	cancel()
	cancel() // idempotent

	require.Zero(t, b.SubscriberCount("c1"))
	_, ok := <-ch
	require.False(t, ok, "channel closed after cancel")
}

func TestSubscriber_AtMostOneSubscription(t *testing.T) {
	b := NewBroker()
	var mu sync.Mutex
	var got []string

	sub := NewSubscriber(b, func(c models.Conversation) {
		mu.Lock()
		got = append(got, c.ID)
		mu.Unlock()
	})

	sub.Switch("c1")
	require.Equal(t, 1, b.SubscriberCount("c1"))

	// Switching cancels the c1 subscription before watching c2.
	sub.Switch("c2")
	require.Zero(t, b.SubscriberCount("c1"))
	require.Equal(t, 1, b.SubscriberCount("c2"))

	state, id := sub.Current()
	require.Equal(t, Subscribed, state)
	require.Equal(t, "c2", id)

	// A snapshot for the abandoned conversation must not arrive.
	b.Publish(conv("c1", "stale"))
	b.Publish(conv("c2", "live"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "c2"
	}, time.Second, 10*time.Millisecond)

	sub.Unsubscribe()
	sub.Wait()

	state, _ = sub.Current()
	require.Equal(t, Unsubscribed, state)
	require.Zero(t, b.SubscriberCount("c2"))
}

func TestSubscriber_SwitchToSameConversationIsNoop(t *testing.T) {
	b := NewBroker()
	sub := NewSubscriber(b, func(models.Conversation) {})
	defer func() {
		sub.Unsubscribe()
		sub.Wait()
	}()

	sub.Switch("c1")
	sub.Switch("c1")
	require.Equal(t, 1, b.SubscriberCount("c1"))
}

func TestSubscriber_CallbackPanicDoesNotKillSubscription(t *testing.T) {
	b := NewBroker()
	var mu sync.Mutex
	delivered := 0

	sub := NewSubscriber(b, func(c models.Conversation) {
		mu.Lock()
		delivered++
		n := delivered
		mu.Unlock()
		if n == 1 {
			panic("bad handler")
		}
	})
	defer func() {
		sub.Unsubscribe()
		sub.Wait()
	}()

	sub.Switch("c1")
	b.Publish(conv("c1", "one"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 1
	}, time.Second, 10*time.Millisecond)

	b.Publish(conv("c1", "one", "two"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 2
	}, time.Second, 10*time.Millisecond)
}
