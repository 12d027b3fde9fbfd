package notify

import (
	"sync"
	"testing"
	"time"
)

func TestQueueDeliversInOrder(t *testing.T) {
	q := newDeliveryQueue()
	defer q.close()

	for i := 0; i < 10; i++ {
		if !q.push(&Event{ID: string(rune('a' + i))}) {
			t.Fatalf("failed to push event %d", i)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case e := <-q.recv():
			if want := string(rune('a' + i)); e.ID != want {
				t.Errorf("expected %s, got %s", want, e.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}

	select {
	case e := <-q.recv():
		t.Errorf("queue should be empty, but got %v", e)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := newDeliveryQueue()

	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if !q.push(&Event{Kind: KindAdd}) {
					t.Error("push on open queue failed")
					return
				}
			}
		}()
	}

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range q.recv() {
			received++
		}
	}()

	wg.Wait()
	q.close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not finish")
	}

	if received != producers*perProducer {
		t.Errorf("expected %d events, got %d", producers*perProducer, received)
	}
}

func TestQueueRejectsAfterClose(t *testing.T) {
	q := newDeliveryQueue()
	q.close()

	if q.push(&Event{}) {
		t.Error("push on closed queue should fail")
	}

	// out channel must close once drained
	select {
	case _, ok := <-q.recv():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("out channel never closed")
	}
}

func TestQueueDrainsPendingOnClose(t *testing.T) {
	q := newDeliveryQueue()

	// block the consumer so events pile up in the list
	for i := 0; i < 5; i++ {
		q.push(&Event{})
	}
	q.close()

	count := 0
	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-q.recv():
			if !ok {
				if count != 5 {
					t.Errorf("expected 5 drained events, got %d", count)
				}
				return
			}
			count++
		case <-timeout:
			t.Fatal("timeout draining queue")
		}
	}
}
