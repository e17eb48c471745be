package sched

import "sync"

// Queue is a thread-safe, unbounded FIFO queue drained by at most one worker
// at a time.
//
// The queue does not own a goroutine. Enqueue reports when the caller must
// start a worker; the worker drains with TryDequeue until it reports empty,
// at which point the queue is idle again. This keeps idle queues free of
// parked goroutines, so queues can be created per document or per
// subscription without leaking.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	running bool
	drained chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items:   make([]T, 0, 16),
		drained: make(chan struct{}),
	}
}

// Enqueue adds v to the back of the queue. ok is false if the queue is
// closed. start is true when no worker is draining the queue; the caller
// must then start one.
func (q *Queue[T]) Enqueue(v T) (ok, start bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, false
	}
	q.items = append(q.items, v)
	if q.running {
		return true, false
	}
	q.running = true
	return true, true
}

// TryDequeue removes the front element. When the queue is empty it returns
// false and marks the worker as gone: the caller must stop draining.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		q.running = false
		if q.closed {
			q.closeDrained()
		}
		return zero, false
	}

	v := q.items[0]
	// Release the slot so the element can be collected.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further elements. Elements already queued are still drained.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	if !q.running {
		q.closeDrained()
	}
}

// Drained is closed once the queue is closed and its worker has finished.
func (q *Queue[T]) Drained() <-chan struct{} {
	return q.drained
}

func (q *Queue[T]) closeDrained() {
	select {
	case <-q.drained:
	default:
		close(q.drained)
	}
}
