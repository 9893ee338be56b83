package queue

import (
	"sync"
	"testing"
	"time"
)

func collect(t *testing.T) (Handler, func() []Item) {
	t.Helper()
	var mu sync.Mutex
	var seen []Item
	h := func(item Item) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, item)
		return nil
	}
	get := func() []Item {
		mu.Lock()
		defer mu.Unlock()
		return append([]Item(nil), seen...)
	}
	return h, get
}

func TestPutAndRemoveAreAlwaysDelivered(t *testing.T) {
	h, get := collect(t)
	q := New(4, h, nil)

	if err := q.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := q.Remove([]byte("b")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	q.Stop()
	q.Await()

	items := get()
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Op != Put || string(items[0].Key) != "a" {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if items[1].Op != Remove || string(items[1].Key) != "b" {
		t.Errorf("unexpected second item: %+v", items[1])
	}
}

func TestPutIfAbsentCoalescesWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	var seen []Item
	h := func(item Item) error {
		mu.Lock()
		seen = append(seen, item)
		mu.Unlock()
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}
	q := New(4, h, nil)

	if err := q.PutIfAbsent([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("PutIfAbsent: %v", err)
	}
	<-started // first item is now blocked inside the handler

	if err := q.PutIfAbsent([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("PutIfAbsent (coalesced): %v", err)
	}
	if err := q.RemoveIfAbsent([]byte("k")); err != nil {
		t.Fatalf("RemoveIfAbsent (coalesced): %v", err)
	}

	close(release)
	q.Stop()
	q.Await()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("got %d items processed, want 1 (coalesced): %+v", len(seen), seen)
	}
}

func TestPutIfAbsentCoalescesAgainstInFlightPut(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	var seen []Item
	h := func(item Item) error {
		mu.Lock()
		seen = append(seen, item)
		mu.Unlock()
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}
	q := New(4, h, nil)

	// An ordinary PUT for "k" is in flight...
	if err := q.Put([]byte("k"), []byte("fresh")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	<-started

	// ...so a PUT_IF_ABSENT representing a stale rebuild scan must be
	// dropped rather than applied on top of it once the PUT completes.
	if err := q.PutIfAbsent([]byte("k"), []byte("stale")); err != nil {
		t.Fatalf("PutIfAbsent (coalesced against PUT): %v", err)
	}

	close(release)
	q.Stop()
	q.Await()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("got %d items processed, want 1 (PUT_IF_ABSENT coalesced against in-flight PUT): %+v", len(seen), seen)
	}
	if seen[0].Op != Put || string(seen[0].Value) != "fresh" {
		t.Fatalf("unexpected surviving item: %+v", seen[0])
	}
}

func TestPutIfAbsentRequeuesOnceProcessed(t *testing.T) {
	h, get := collect(t)
	q := New(4, h, nil)

	if err := q.PutIfAbsent([]byte("k"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	// give the worker a moment to process and clear the in-flight mark.
	deadline := time.Now().Add(time.Second)
	for len(get()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := q.PutIfAbsent([]byte("k"), []byte("v2")); err != nil {
		t.Fatal(err)
	}
	q.Stop()
	q.Await()

	items := get()
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (not coalesced once prior item finished): %+v", len(items), items)
	}
}

func TestStopFlushesItemsEnqueuedBeforeSentinel(t *testing.T) {
	h, get := collect(t)
	q := New(16, h, nil)

	for i := 0; i < 10; i++ {
		if err := q.Put([]byte{byte(i)}, nil); err != nil {
			t.Fatal(err)
		}
	}
	q.Stop()
	q.Await()

	if len(get()) != 10 {
		t.Fatalf("got %d items, want all 10 flushed before exit", len(get()))
	}
}

func TestEnqueueAfterStopFails(t *testing.T) {
	h, _ := collect(t)
	q := New(4, h, nil)
	q.Stop()
	q.Await()

	// stopRequested is closed and the worker has exited, so a Put must
	// neither hang nor be silently accepted; it reports the engine as
	// stopped.
	done := make(chan error, 1)
	go func() { done <- q.Put([]byte("x"), nil) }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error enqueuing after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Put after Stop blocked forever")
	}
}
