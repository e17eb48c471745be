package sched

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Unit is one piece of work run with exclusive access.
type Unit func(ctx context.Context) error

const (
	jobQueued int32 = iota
	jobStarted
	jobCancelled
)

type job struct {
	ctx   context.Context
	unit  Unit
	seq   int64
	state atomic.Int32
	done  chan struct{}

	err      error
	panicked bool
	panicVal any
}

// scopeKey marks a context as running inside a unit of one scheduler.
type scopeKey struct{ s *Scheduler }

// scope is the per-unit state reachable from the unit's context.
type scope struct {
	seq   int64
	hooks []func()
}

// Scheduler serializes units of work. The zero value is not usable; call New.
type Scheduler struct {
	name    string
	queue   *Queue[*job]
	clock   *Clock
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithName sets the name used in logs and metric labels.
func WithName(name string) Option {
	return func(s *Scheduler) {
		s.name = name
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithClock sets the clock that stamps admitted units.
func WithClock(c *Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// New creates a scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		name:   "default",
		queue:  NewQueue[*job](),
		clock:  NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the scheduler's name.
func (s *Scheduler) Name() string {
	return s.name
}

// Run admits unit and waits for it to finish, returning its error.
//
// If ctx is cancelled while the unit is still queued, the unit is skipped
// and Run returns ctx.Err(). Once the unit has started, Run waits for it
// regardless of ctx. A panic inside the unit is re-raised here.
//
// Panics with ErrReentrant when ctx belongs to a unit of s.
func (s *Scheduler) Run(ctx context.Context, unit Unit) error {
	if s.Running(ctx) {
		panic(ErrReentrant)
	}
	if err := ctx.Err(); err != nil {
		s.metrics.recordUnit(s.name, OutcomeCancelled)
		return err
	}

	j, err := s.admit(ctx, unit)
	if err != nil {
		return err
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobQueued, jobCancelled) {
			s.logger.Debug("unit cancelled while queued", "scheduler", s.name, "seq", j.seq)
			s.metrics.recordUnit(s.name, OutcomeCancelled)
			return ctx.Err()
		}
		<-j.done
	}

	if j.panicked {
		panic(j.panicVal)
	}
	return j.err
}

// RunBlocking admits unit to the same queue as Run and waits for it without
// honouring cancellation.
//
// Deprecated: use Run, which lets a caller abandon a unit that has not
// started yet.
func (s *Scheduler) RunBlocking(ctx context.Context, unit Unit) error {
	return s.Run(context.WithoutCancel(ctx), unit)
}

// Call runs fn as a unit of s and returns its result.
func Call[T any](ctx context.Context, s *Scheduler, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := s.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

// Running reports whether ctx belongs to a unit currently run by s.
func (s *Scheduler) Running(ctx context.Context) bool {
	return ctx.Value(scopeKey{s}) != nil
}

// AfterRelease registers fn to run once the unit that owns ctx has returned
// and before the next unit of the same scheduler starts. Hooks run in
// registration order. Outside a unit of s, fn runs immediately.
func (s *Scheduler) AfterRelease(ctx context.Context, fn func()) {
	sc, ok := ctx.Value(scopeKey{s}).(*scope)
	if !ok {
		fn()
		return
	}
	sc.hooks = append(sc.hooks, fn)
}

// Seq returns the sequence number of the unit that owns ctx, or 0.
func (s *Scheduler) Seq(ctx context.Context) int64 {
	if sc, ok := ctx.Value(scopeKey{s}).(*scope); ok {
		return sc.seq
	}
	return 0
}

// Pending returns the number of units admitted but not yet started.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Close stops admitting units. Units already admitted still run; Done is
// closed once they have.
func (s *Scheduler) Close() {
	s.queue.Close()
}

// Done is closed after Close once every admitted unit has finished.
func (s *Scheduler) Done() <-chan struct{} {
	return s.queue.Drained()
}

func (s *Scheduler) admit(ctx context.Context, unit Unit) (*job, error) {
	j := &job{
		ctx:  ctx,
		unit: unit,
		seq:  s.clock.Next(),
		done: make(chan struct{}),
	}
	ok, start := s.queue.Enqueue(j)
	if !ok {
		s.metrics.recordUnit(s.name, OutcomeRejected)
		return nil, ErrClosed
	}
	s.logger.Debug("unit admitted", "scheduler", s.name, "seq", j.seq)
	s.metrics.setDepth(s.name, s.queue.Len())
	if start {
		go s.drain()
	}
	return j, nil
}

// drain runs queued units until the queue is empty.
func (s *Scheduler) drain() {
	for {
		j, ok := s.queue.TryDequeue()
		if !ok {
			s.metrics.setDepth(s.name, 0)
			return
		}
		s.metrics.setDepth(s.name, s.queue.Len())
		if !j.state.CompareAndSwap(jobQueued, jobStarted) {
			continue
		}
		s.execute(j)
	}
}

func (s *Scheduler) execute(j *job) {
	sc := &scope{seq: j.seq}
	ctx := context.WithValue(context.WithoutCancel(j.ctx), scopeKey{s}, sc)

	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				j.panicked = true
				j.panicVal = r
				s.logger.Error("unit panicked",
					"scheduler", s.name,
					"seq", j.seq,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
			}
		}()
		j.err = j.unit(ctx)
	}()
	s.metrics.observeDuration(s.name, time.Since(start))

	switch {
	case j.panicked:
		s.metrics.recordUnit(s.name, OutcomePanic)
	case j.err != nil:
		s.metrics.recordUnit(s.name, OutcomeError)
	default:
		s.metrics.recordUnit(s.name, OutcomeOK)
	}

	s.runHooks(sc)
	close(j.done)
}

func (s *Scheduler) runHooks(sc *scope) {
	// Hooks may register further hooks on the same scope.
	for i := 0; i < len(sc.hooks); i++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("release hook panicked", "scheduler", s.name, "seq", sc.seq, "panic", fmt.Sprint(r))
				}
			}()
			sc.hooks[i]()
		}()
	}
	s.metrics.recordHooks(s.name, len(sc.hooks))
	sc.hooks = nil
}
