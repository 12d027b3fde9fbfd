package notify

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/shelfdb/shelf/lib/collection"
	"github.com/shelfdb/shelf/lib/logger"
)

// --------------------------------------------------------------------------
// Event Types
// --------------------------------------------------------------------------

// Kind classifies a change event. Kinds are bit flags so a subscriber can
// register for several at once.
type Kind uint8

const (
	KindAdd Kind = 1 << iota
	KindUpdate
	KindDelete
	KindClear

	// KindAll matches every event kind.
	KindAll = KindAdd | KindUpdate | KindDelete | KindClear
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "add"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Event describes one settled mutation. Data holds the record as written for
// add/update, the record as it was for delete, and is nil for clear.
type Event struct {
	Collection string            `json:"collection" msgpack:"collection"`
	Kind       Kind              `json:"kind" msgpack:"kind"`
	ID         string            `json:"id,omitempty" msgpack:"id,omitempty"`
	Data       collection.Record `json:"data,omitempty" msgpack:"data,omitempty"`
	Timestamp  time.Time         `json:"timestamp" msgpack:"timestamp"`
}

// Handler consumes events for one subscription. Handlers run on the
// subscription's own goroutine; they may block without affecting publishers
// or other subscribers, but a permanently blocked handler leaks its queue.
type Handler func(e Event)

// --------------------------------------------------------------------------
// Notifier
// --------------------------------------------------------------------------

// AllCollections subscribes to events from every collection.
const AllCollections = "*"

type subscriber struct {
	collection string
	kinds      Kind
	queue      *deliveryQueue
}

// Notifier fans change events out to subscribers. The zero value is not
// usable; create instances with NewNotifier.
type Notifier struct {
	subs   *xsync.MapOf[uint64, *subscriber]
	nextID atomic.Uint64
	closed atomic.Bool
	log    logger.ILogger
}

func NewNotifier() *Notifier {
	return &Notifier{
		subs: xsync.NewMapOf[uint64, *subscriber](),
		log:  logger.GetLogger("notify"),
	}
}

// Subscribe registers a handler for events of the given kinds on the given
// collection (AllCollections for all). It returns a token for Unsubscribe.
// The handler starts receiving events published after Subscribe returns.
func (n *Notifier) Subscribe(collectionName string, kinds Kind, fn Handler) uint64 {
	if n.closed.Load() {
		return 0
	}
	id := n.nextID.Add(1)
	sub := &subscriber{
		collection: collectionName,
		kinds:      kinds,
		queue:      newDeliveryQueue(),
	}
	n.subs.Store(id, sub)

	go func() {
		for e := range sub.queue.recv() {
			fn(*e)
			deliveredTotal(e.Kind).Inc()
		}
	}()

	n.log.Debugf("subscriber %d registered (collection=%s kinds=%08b)", id, collectionName, kinds)
	return id
}

// Unsubscribe removes a subscription. Events already queued for it are still
// delivered; new events are not. Unknown tokens are ignored.
func (n *Notifier) Unsubscribe(id uint64) {
	if sub, ok := n.subs.LoadAndDelete(id); ok {
		sub.queue.close()
		n.log.Debugf("subscriber %d removed", id)
	}
}

// Publish delivers an event to every matching subscription. It never blocks
// on handlers. Publishing on a closed notifier is a no-op.
func (n *Notifier) Publish(e Event) {
	if n.closed.Load() {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	publishedTotal(e.Kind).Inc()

	n.subs.Range(func(_ uint64, sub *subscriber) bool {
		if sub.kinds&e.Kind == 0 {
			return true
		}
		if sub.collection != AllCollections && sub.collection != e.Collection {
			return true
		}
		ev := e
		sub.queue.push(&ev)
		return true
	})
}

// Close shuts the notifier down. Queued events are still delivered to their
// handlers; subsequent Publish and Subscribe calls are no-ops.
func (n *Notifier) Close() {
	if !n.closed.CompareAndSwap(false, true) {
		return
	}
	n.subs.Range(func(id uint64, sub *subscriber) bool {
		n.subs.Delete(id)
		sub.queue.close()
		return true
	})
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

func publishedTotal(k Kind) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`shelf_events_published_total{kind=%q}`, k))
}

func deliveredTotal(k Kind) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`shelf_events_delivered_total{kind=%q}`, k))
}
