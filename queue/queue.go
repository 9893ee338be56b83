// Package queue implements a non-blocking update queue: a bounded FIFO
// of put/remove items drained by a single worker into
// synchronous engine updates, decoupling the cost of a user-thread
// write from the cost of updating the digest store. It generalizes the
// background-flush goroutine pattern of Carmen's
// database/mpt/write_buffer.go to the PUT/REMOVE/PUT_IF_ABSENT/
// REMOVE_IF_ABSENT op set and coalescing semantics required here.
package queue

import (
	"sync"

	"github.com/kvsync/hashtree/common"
)

// Op identifies the kind of mutation carried by an Item.
type Op int

const (
	Put Op = iota
	Remove
	PutIfAbsent
	RemoveIfAbsent

	// opStop is the internal shutdown sentinel; it is never exposed to
	// handlers as a real Item.Op value.
	opStop
)

func (op Op) String() string {
	switch op {
	case Put:
		return "PUT"
	case Remove:
		return "REMOVE"
	case PutIfAbsent:
		return "PUT_IF_ABSENT"
	case RemoveIfAbsent:
		return "REMOVE_IF_ABSENT"
	default:
		return "STOP"
	}
}

// Item is a single queued mutation.
type Item struct {
	Op    Op
	Key   []byte
	Value []byte
}

// Handler performs the actual engine update for a dequeued item. A
// returned error is logged; it does not stop the worker.
type Handler func(Item) error

// defaultCapacity is an unbounded-equivalent default queue size: large
// enough that producers practically never block on it under normal
// operation, while still bounding memory.
const defaultCapacity = 1 << 16

// Queue is a bounded FIFO of Items, coalescing PUT_IF_ABSENT and
// REMOVE_IF_ABSENT requests for a key that is already queued.
type Queue struct {
	items   chan Item
	handler Handler
	log     *common.Log

	mu       sync.Mutex
	inFlight map[string]struct{}

	stopOnce      sync.Once
	stopRequested chan struct{}
	done          chan struct{}
}

// New creates a queue with the given capacity (<=0 selects
// defaultCapacity) and starts its worker goroutine. log, if non-nil,
// receives a line for every handler error.
func New(capacity int, handler Handler, log *common.Log) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	q := &Queue{
		items:         make(chan Item, capacity),
		handler:       handler,
		log:           log,
		inFlight:      map[string]struct{}{},
		stopRequested: make(chan struct{}),
		done:          make(chan struct{}),
	}
	go q.run()
	return q
}

// Put always enqueues a PUT, blocking if the queue is full. Like
// Remove, it registers its key as in flight so a subsequently enqueued
// PUT_IF_ABSENT/REMOVE_IF_ABSENT for the same key is coalesced away
// rather than applied on top of it.
func (q *Queue) Put(key, value []byte) error {
	return q.enqueue(Item{Op: Put, Key: key, Value: value})
}

// Remove always enqueues a REMOVE, blocking if the queue is full.
func (q *Queue) Remove(key []byte) error {
	return q.enqueue(Item{Op: Remove, Key: key})
}

// PutIfAbsent enqueues a PUT_IF_ABSENT unless key already has any item
// in flight (PUT, REMOVE, or another IF_ABSENT op), in which case it is
// coalesced away: a concurrent ordinary write always wins over a
// PUT_IF_ABSENT issued by a stale scan.
func (q *Queue) PutIfAbsent(key, value []byte) error {
	return q.enqueue(Item{Op: PutIfAbsent, Key: key, Value: value})
}

// RemoveIfAbsent enqueues a REMOVE_IF_ABSENT unless key already has any
// item in flight, in which case it is coalesced away.
func (q *Queue) RemoveIfAbsent(key []byte) error {
	return q.enqueue(Item{Op: RemoveIfAbsent, Key: key})
}

func (q *Queue) enqueue(item Item) error {
	select {
	case <-q.stopRequested:
		return common.ErrEngineStopped
	default:
	}
	k := string(item.Key)
	q.mu.Lock()
	_, queued := q.inFlight[k]
	if queued && (item.Op == PutIfAbsent || item.Op == RemoveIfAbsent) {
		q.mu.Unlock()
		return nil
	}
	q.inFlight[k] = struct{}{}
	q.mu.Unlock()

	select {
	case q.items <- item:
		return nil
	case <-q.stopRequested:
		q.mu.Lock()
		delete(q.inFlight, k)
		q.mu.Unlock()
		return common.ErrEngineStopped
	}
}

// Stop enqueues the shutdown sentinel. It is idempotent: subsequent
// calls are no-ops. It does not wait for the worker to drain; call
// Await for that.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.stopRequested)
		q.items <- Item{Op: opStop}
	})
}

// Await blocks until the worker has drained every item queued before
// (and enqueued alongside) the shutdown sentinel and exited.
func (q *Queue) Await() {
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for item := range q.items {
		if item.Op == opStop {
			q.drain()
			return
		}
		q.process(item)
	}
}

// drain processes every item already buffered in the channel at the
// moment the sentinel was dequeued, without blocking for more.
func (q *Queue) drain() {
	for {
		select {
		case item := <-q.items:
			if item.Op == opStop {
				continue
			}
			q.process(item)
		default:
			return
		}
	}
}

func (q *Queue) process(item Item) {
	defer func() {
		q.mu.Lock()
		delete(q.inFlight, string(item.Key))
		q.mu.Unlock()
	}()
	if err := q.handler(item); err != nil && q.log != nil {
		q.log.Printf("queue handler failed for %s on key %x: %v", item.Op, item.Key, err)
	}
}
