package shared

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/ycoord/internal/sched"
)

// Dispatch selects when a listener runs relative to the producing commit.
type Dispatch uint8

const (
	// Deferred delivers batches on the subscription's goroutine after the
	// producing unit has released the document. Listeners may read and
	// write the document.
	Deferred Dispatch = iota

	// SyncDuringCommit delivers batches inline while the transaction
	// commits. Listeners must not start transactions on the same document:
	// with no context tying the call to the committing unit such a call
	// deadlocks instead of panicking. Listeners registered with ObserveTx
	// receive the committing Txn; its Context makes re-entry fail fast.
	SyncDuringCommit
)

// String implements fmt.Stringer.
func (m Dispatch) String() string {
	switch m {
	case Deferred:
		return "deferred"
	case SyncDuringCommit:
		return "sync"
	}
	return fmt.Sprintf("dispatch(%d)", uint8(m))
}

// ObserveOption configures an observation.
type ObserveOption func(*observeConfig)

type observeConfig struct {
	dispatch Dispatch
}

// WithDispatch selects the dispatch discipline. Default: Deferred.
func WithDispatch(m Dispatch) ObserveOption {
	return func(c *observeConfig) {
		c.dispatch = m
	}
}

func observeConfigFrom(opts []ObserveOption) observeConfig {
	var c observeConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Subscription owns one listener registration. The registration, and
// everything the listener captures, stays alive until Cancel is called.
type Subscription struct {
	doc      *Document
	dispatch Dispatch

	mu        sync.Mutex
	idle      *sync.Cond
	cancelled bool
	inflight  int
	deliver   func(batch any)
	release   func()

	queue *sched.Queue[any]

	// pending holds batches of the committing unit. Only touched by units.
	pending []any
}

func newSubscription(d *Document, m Dispatch, deliver func(any)) *Subscription {
	s := &Subscription{
		doc:      d,
		dispatch: m,
		deliver:  deliver,
		queue:    sched.NewQueue[any](),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Dispatch returns the subscription's dispatch discipline.
func (s *Subscription) Dispatch() Dispatch {
	return s.dispatch
}

// Cancel stops delivery. No dispatch begins after Cancel returns; a dispatch
// already running completes. The engine registration and the listener are
// released. Cancel is idempotent and may be called from inside the listener.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.deliver = nil
	release := s.release
	s.release = nil
	s.mu.Unlock()

	s.queue.Close()
	if release != nil {
		release()
	}
}

// Cancelled reports whether Cancel has been called.
func (s *Subscription) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// cancelAndWait cancels and waits for an in-flight dispatch to finish. It
// must not be called from inside the listener.
func (s *Subscription) cancelAndWait() {
	s.Cancel()
	s.mu.Lock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()
}

// publish is called by the engine during a commit.
func (s *Subscription) publish(batch any) {
	if s.Cancelled() {
		return
	}
	if s.dispatch == SyncDuringCommit {
		s.run(batch)
		return
	}
	s.pending = append(s.pending, batch)
	if len(s.pending) == 1 {
		s.doc.afterRelease(s.handoff)
	}
}

// handoff moves the batches of the released unit to the dispatch queue.
func (s *Subscription) handoff() {
	batches := s.pending
	s.pending = nil
	for _, b := range batches {
		s.enqueue(b)
	}
}

func (s *Subscription) enqueue(batch any) {
	ok, start := s.queue.Enqueue(batch)
	if ok && start {
		go s.drain()
	}
}

func (s *Subscription) drain() {
	for {
		b, ok := s.queue.TryDequeue()
		if !ok {
			return
		}
		s.runRecovered(b)
	}
}

func (s *Subscription) runRecovered(batch any) {
	defer func() {
		if r := recover(); r != nil {
			s.doc.logger.Error("listener panicked", "dispatch", s.dispatch.String(), "panic", fmt.Sprint(r))
		}
	}()
	s.run(batch)
}

func (s *Subscription) run(batch any) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	deliver := s.deliver
	s.inflight++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight--
		s.idle.Broadcast()
		s.mu.Unlock()
	}()
	deliver(batch)
}

// stream adapts a subscription to a channel closed when ctx is done.
func stream[T any](ctx context.Context, subscribe func(fn func(T)) *Subscription) <-chan T {
	ch := make(chan T)
	sub := subscribe(func(batch T) {
		select {
		case ch <- batch:
		case <-ctx.Done():
		}
	})
	go func() {
		<-ctx.Done()
		sub.cancelAndWait()
		close(ch)
	}()
	return ch
}
