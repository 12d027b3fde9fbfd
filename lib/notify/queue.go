package notify

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// evNode is a single queued event
type evNode struct {
	event *Event
	next  atomic.Pointer[evNode]
}

// deliveryQueue is an unbounded multi-producer single-consumer queue of
// events. Producers (the manager's mutating goroutines) append with atomic
// operations only; a single consumer goroutine drains into the out channel.
//
// There is no strict FIFO guarantee across concurrent producers: ordering is
// decided by which producer's append completes first.
type deliveryQueue struct {
	head     atomic.Pointer[evNode]
	tail     atomic.Pointer[evNode]
	out      chan *Event
	consumer sync.WaitGroup
	closed   atomic.Bool

	// wakes the consumer when the list transitions from empty to non-empty
	mu   sync.Mutex
	cond *sync.Cond
}

func newDeliveryQueue() *deliveryQueue {
	sentinel := &evNode{}

	q := &deliveryQueue{
		out: make(chan *Event),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// push appends an event. Returns false if the queue is closed.
// Safe for concurrent use.
func (q *deliveryQueue) push(e *Event) bool {
	if e == nil || q.closed.Load() {
		return false
	}

	newNode := &evNode{event: e}

	var backoff uint8
	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// the tail CAS may lose to a helping producer, which
				// is fine - the tail still advances
				q.tail.CompareAndSwap(tailNode, newNode)
				q.cond.Signal()
				return true
			}
		} else {
			// another producer appended but has not advanced the
			// tail yet; help it along
			q.tail.CompareAndSwap(tailNode, next)
		}

		// exponential backoff under contention: spin first, then
		// yield so the winning producer can finish
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume drains the linked list into the out channel until the queue is
// closed and empty.
func (q *deliveryQueue) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		delivered := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true

			event := next.event
			q.head.Store(next)

			q.out <- event

			next.event = nil // help gc
		}

		if !delivered && q.closed.Load() {
			return
		}

		if !delivered {
			q.mu.Lock()
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// recv returns the consumer side of the queue. The channel is closed after
// close() once all remaining events have been delivered.
func (q *deliveryQueue) recv() <-chan *Event {
	return q.out
}

// close stops the queue for further writes. Events already queued are still
// delivered.
func (q *deliveryQueue) close() {
	q.closed.Store(true)
	q.cond.Signal()
}

// size walks the list and counts pending events. O(n), debugging only.
func (q *deliveryQueue) size() int {
	count := 0
	current := q.head.Load()
	for {
		next := current.next.Load()
		if next == nil {
			return count
		}
		count++
		current = next
	}
}
