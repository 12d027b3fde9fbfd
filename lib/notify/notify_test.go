package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfdb/shelf/lib/collection"
)

// eventSink collects delivered events for assertions.
type eventSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSink) handler(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.events) >= n {
			out := append([]Event(nil), s.events...)
			s.mu.Unlock()
			return out
		}
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Fatalf("expected %d events, got %d", n, len(s.events))
	return nil
}

func (s *eventSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestNotifierDeliversMatchingEvents(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	sink := &eventSink{}
	n.Subscribe("users", KindAdd|KindDelete, sink.handler)

	n.Publish(Event{Collection: "users", Kind: KindAdd, ID: "1", Data: collection.Record{"name": "alice"}})
	n.Publish(Event{Collection: "users", Kind: KindUpdate, ID: "1"}) // filtered: kind
	n.Publish(Event{Collection: "tasks", Kind: KindAdd, ID: "2"})    // filtered: collection
	n.Publish(Event{Collection: "users", Kind: KindDelete, ID: "1"})

	events := sink.waitFor(t, 2)
	require.Len(t, events, 2)
	assert.Equal(t, KindAdd, events[0].Kind)
	assert.Equal(t, "alice", events[0].Data["name"])
	assert.Equal(t, KindDelete, events[1].Kind)
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp is stamped on publish")
}

func TestNotifierAllCollections(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	sink := &eventSink{}
	n.Subscribe(AllCollections, KindAll, sink.handler)

	n.Publish(Event{Collection: "users", Kind: KindAdd})
	n.Publish(Event{Collection: "tasks", Kind: KindClear})

	events := sink.waitFor(t, 2)
	assert.Equal(t, "users", events[0].Collection)
	assert.Equal(t, "tasks", events[1].Collection)
}

func TestNotifierUnsubscribeStopsDelivery(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	sink := &eventSink{}
	id := n.Subscribe("users", KindAll, sink.handler)

	n.Publish(Event{Collection: "users", Kind: KindAdd})
	sink.waitFor(t, 1)

	n.Unsubscribe(id)
	n.Publish(Event{Collection: "users", Kind: KindAdd})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

func TestNotifierSlowHandlerDoesNotBlockPublish(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	release := make(chan struct{})
	n.Subscribe("users", KindAll, func(e Event) { <-release })

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			n.Publish(Event{Collection: "users", Kind: KindAdd})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow handler")
	}
	close(release)
}

func TestNotifierIndependentSubscribers(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	slow := make(chan struct{})
	n.Subscribe("users", KindAll, func(e Event) { <-slow })

	fast := &eventSink{}
	n.Subscribe("users", KindAll, fast.handler)

	n.Publish(Event{Collection: "users", Kind: KindAdd})
	fast.waitFor(t, 1)
	close(slow)
}

func TestNotifierCloseIsIdempotent(t *testing.T) {
	n := NewNotifier()
	sink := &eventSink{}
	n.Subscribe("users", KindAll, sink.handler)

	n.Close()
	n.Close()

	n.Publish(Event{Collection: "users", Kind: KindAdd})
	assert.Zero(t, n.Subscribe("users", KindAll, sink.handler))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}
