// Package bkdispatch implements the ordered callback dispatcher: tasks
// submitted with the same key run sequentially in submission order;
// tasks with different keys run concurrently.
package bkdispatch

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Executor is the consumed ordered-executor interface. Every user
// callback is submitted with ledger_id as the ordering key, so that
// per-ledger callback ordering holds without the caller doing any
// extra serialization.
type Executor interface {
	Submit(key int64, task func())
}

const defaultQueueCapacity = 64

// queue is one key's single-goroutine FIFO. closed/done track eviction:
// once evicted, a queue stops accepting new tasks but still drains any
// already-buffered ones, and done is closed only once its worker
// goroutine has fully exited — the synchronization point a caller needs
// before it is safe to start a fresh queue (and goroutine) for the same
// key.
type queue struct {
	tasks chan func()
	done  chan struct{}

	mu     sync.Mutex // guards closed; serializes trySend against evict
	closed bool
}

func newQueue() *queue {
	return &queue{tasks: make(chan func(), defaultQueueCapacity), done: make(chan struct{})}
}

// trySend enqueues task and reports true, unless the queue has already
// been evicted, in which case it reports false without sending.
func (q *queue) trySend(task func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks <- task
	return true
}

// evict marks the queue closed and closes tasks so its worker drains
// whatever is already buffered and then exits. It is idempotent.
func (q *queue) evict() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

func (q *queue) run() {
	for task := range q.tasks {
		task()
	}
	close(q.done)
}

// wait blocks until the queue's worker goroutine has fully drained and
// exited.
func (q *queue) wait() { <-q.done }

// KeyedExecutor is the Executor this module ships: one single-goroutine
// FIFO queue per distinct key, so same-key tasks serialize and
// different-key tasks run in parallel. The set of live queues is
// bounded by an LRU rather than growing unboundedly with every
// ledger_id ever seen; an evicted queue's worker drains its remaining
// buffered tasks and exits, and Submit never starts a replacement
// worker for that key until the old one has fully exited, so two
// goroutines can never run callbacks for the same key concurrently.
type KeyedExecutor struct {
	mu     sync.Mutex // guards only the get-or-create step, never a send
	queues *lru.Cache[int64, *queue]

	dmu      sync.Mutex // guards draining, independent of mu/queues' own lock
	draining map[int64]*queue
}

// NewKeyedExecutor returns an Executor backed by at most maxQueues
// live per-key queues. Submitting a key beyond that bound evicts the
// least-recently-used queue; that queue is tracked as draining until
// its worker fully exits, and Submit will not start a replacement
// queue for the same key until then.
func NewKeyedExecutor(maxQueues int) *KeyedExecutor {
	var e = &KeyedExecutor{draining: make(map[int64]*queue)}
	var cache, err = lru.NewWithEvict(maxQueues, func(key int64, q *queue) {
		e.dmu.Lock()
		e.draining[key] = q
		e.dmu.Unlock()

		q.evict()
		go func() {
			q.wait()
			e.dmu.Lock()
			if e.draining[key] == q {
				delete(e.draining, key)
			}
			e.dmu.Unlock()
		}()
	})
	if err != nil {
		// Only returned for a non-positive size, which is a caller bug.
		panic(err)
	}
	e.queues = cache
	return e
}

// Submit enqueues task to run after every previously submitted task
// for the same key, and concurrently with tasks submitted under other
// keys. It never blocks on another key's queue: the executor-wide lock
// only guards the cheap get-or-create step, and the (possibly blocking)
// channel send happens after that lock is released.
func (e *KeyedExecutor) Submit(key int64, task func()) {
	for {
		e.mu.Lock()
		var q, ok = e.queues.Get(key)
		if !ok {
			e.dmu.Lock()
			var old = e.draining[key]
			e.dmu.Unlock()
			if old != nil {
				// A queue for this key was just evicted and may still be
				// draining buffered tasks on its own goroutine. Starting a
				// fresh worker now would let two goroutines run this key's
				// callbacks concurrently, so wait for the old one to fully
				// exit first.
				e.mu.Unlock()
				old.wait()
				continue
			}
			q = newQueue()
			e.queues.Add(key, q)
			go q.run()
		}
		e.mu.Unlock()

		if q.trySend(task) {
			return
		}
		// q was evicted between being handed to us and trySend: wait for
		// its worker to fully drain, then retry from the top.
		q.wait()
	}
}
