package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/ycoord/internal/crdt"
	"github.com/roach88/ycoord/internal/sched"
)

// Options configure a Document.
type Options struct {
	crdt.Options `yaml:",inline"`

	// Origin tags transactions opened by Transact. Observers see it as the
	// origin of local changes.
	Origin string `yaml:"origin"`

	// Logger receives scheduler and dispatch diagnostics. Default: slog.Default().
	Logger *slog.Logger `yaml:"-"`

	// Metrics, if set, collects scheduler telemetry for the document and
	// every subdocument reached through it.
	Metrics *sched.Metrics `yaml:"-"`
}

// DefaultOptions returns options for a standalone document.
func DefaultOptions() Options {
	return Options{Options: crdt.DefaultOptions()}
}

// Document is the coordination handle of one replicated document. All
// proxies bound to it share its scheduler, which is the only point of
// mutual exclusion.
type Document struct {
	doc    *crdt.Doc
	sched  *sched.Scheduler
	reg    atomic.Pointer[registry]
	origin string
	logger *slog.Logger

	// unitCtx is the context of the unit currently holding the document.
	// Only touched by scheduler units.
	unitCtx context.Context
}

// registry maps every engine document of one tree to its single Document,
// so identity and parent lookups are stable.
type registry struct {
	mu      sync.Mutex
	docs    map[*crdt.Doc]*Document
	logger  *slog.Logger
	metrics *sched.Metrics
}

// NewDocument creates a document.
func NewDocument(opts Options) *Document {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := &registry{
		docs:    make(map[*crdt.Doc]*Document),
		logger:  logger,
		metrics: opts.Metrics,
	}
	d := reg.bind(crdt.NewDoc(opts.Options), opts.Origin)
	return d
}

// bind creates the Document for raw. The caller must know raw is unbound.
func (r *registry) bind(raw *crdt.Doc, origin string) *Document {
	d := &Document{
		doc:    raw,
		origin: origin,
		logger: r.logger.With("doc", raw.GUID()),
	}
	d.sched = sched.New(
		sched.WithName(raw.GUID()),
		sched.WithLogger(d.logger),
		sched.WithMetrics(r.metrics),
	)
	d.reg.Store(r)
	raw.ObserveDestroy(d.sched.Close)

	r.mu.Lock()
	r.docs[raw] = d
	r.mu.Unlock()
	return d
}

// wrap returns the Document for raw, creating it on first sight.
func (r *registry) wrap(raw *crdt.Doc) *Document {
	if raw == nil {
		return nil
	}
	r.mu.Lock()
	d, ok := r.docs[raw]
	r.mu.Unlock()
	if ok {
		return d
	}
	return r.bind(raw, "")
}

// adopt moves every document of other into r.
func (r *registry) adopt(other *registry) {
	if other == r {
		return
	}
	other.mu.Lock()
	docs := make([]*Document, 0, len(other.docs))
	for _, d := range other.docs {
		docs = append(docs, d)
	}
	other.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range docs {
		r.docs[d.doc] = d
		d.reg.Store(r)
	}
}

func (r *registry) forget(raw *crdt.Doc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, raw)
}

// GUID returns the globally unique identifier.
func (d *Document) GUID() string {
	return d.doc.GUID()
}

// ClientID returns the replica id.
func (d *Document) ClientID() uint64 {
	return d.doc.ClientID()
}

// AutoLoad reports whether the document loads as soon as it is integrated.
func (d *Document) AutoLoad() bool {
	return d.doc.AutoLoad()
}

// ShouldLoad reports whether the document's content should be fetched.
func (d *Document) ShouldLoad() bool {
	return d.doc.ShouldLoad()
}

// Options returns the engine options the document reports.
func (d *Document) Options() crdt.Options {
	return d.doc.Options()
}

// Parent returns the document this one is nested in, or nil. The parent is
// set once, when the document is first integrated into a parent collection.
func (d *Document) Parent() *Document {
	return d.reg.Load().wrap(d.doc.Parent())
}

// IsSame reports whether d and other are the same instance. Documents with
// identical content but separate instances are never the same.
func (d *Document) IsSame(other *Document) bool {
	return other != nil && d.doc.SameAs(other.doc)
}

// Destroyed reports whether the document has been destroyed.
func (d *Document) Destroyed() bool {
	return d.doc.Destroyed()
}

// Engine returns the underlying engine document. Callers must not open
// transactions on it directly.
func (d *Document) Engine() *crdt.Doc {
	return d.doc
}

// Scheduler returns the document's scheduler.
func (d *Document) Scheduler() *sched.Scheduler {
	return d.sched
}

// Transact runs fn in a transaction tagged with the document's origin.
//
// The transaction commits when fn returns, whether or not fn failed: writes
// made before an error are kept. Sync observers run during the commit;
// deferred observers are handed their batches after the unit releases the
// document.
//
// Re-entry is detected through ctx only. Inside fn, pass tx.Context() to any
// call on d so a nested transaction panics with sched.ErrReentrant; a call
// on d with an unrelated context from inside fn waits on the queue fn holds
// and never returns.
func (d *Document) Transact(ctx context.Context, fn func(tx *Txn) error) error {
	return d.TransactOrigin(ctx, d.origin, fn)
}

// TransactOrigin is Transact with an explicit origin tag.
//
// Panics with ErrDestroyed if d is destroyed, including when the destroy
// happened while the unit was queued.
func (d *Document) TransactOrigin(ctx context.Context, origin string, fn func(tx *Txn) error) error {
	if d.Destroyed() {
		panic(ErrDestroyed)
	}
	err := d.sched.Run(ctx, func(ctx context.Context) error {
		if d.Destroyed() {
			panic(ErrDestroyed)
		}
		return d.runTxn(ctx, origin, fn)
	})
	if errors.Is(err, sched.ErrClosed) {
		panic(ErrDestroyed)
	}
	return err
}

// TransactBlocking runs fn like Transact but waits without honouring ctx
// cancellation.
//
// Deprecated: use Transact. TransactBlocking shares Transact's queue and
// exists only for callers that cannot handle cancellation.
func (d *Document) TransactBlocking(ctx context.Context, fn func(tx *Txn) error) error {
	return d.Transact(context.WithoutCancel(ctx), fn)
}

func (d *Document) runTxn(ctx context.Context, origin string, fn func(tx *Txn) error) error {
	tx := &Txn{doc: d, raw: d.doc.Begin(origin), ctx: ctx}
	prev := d.unitCtx
	d.unitCtx = ctx
	// A sync listener may panic inside Commit; the unit context is restored
	// either way.
	defer func() { d.unitCtx = prev }()
	defer tx.raw.Commit()
	return fn(tx)
}

// committing wraps an engine transaction that is committing inside a unit.
func (d *Document) committing(raw *crdt.Txn) *Txn {
	ctx := d.unitCtx
	if ctx == nil {
		ctx = context.Background()
	}
	return &Txn{doc: d, raw: raw, ctx: ctx}
}

// TransactValue runs fn in a transaction and returns its result.
func TransactValue[T any](ctx context.Context, d *Document, fn func(tx *Txn) (T, error)) (T, error) {
	var out T
	err := d.Transact(ctx, func(tx *Txn) error {
		v, err := fn(tx)
		out = v
		return err
	})
	return out, err
}

// afterRelease runs fn once the current unit has released the document.
func (d *Document) afterRelease(fn func()) {
	if d.unitCtx == nil {
		// Commits only happen inside units; this is a direct engine commit.
		fn()
		return
	}
	d.sched.AfterRelease(d.unitCtx, fn)
}

// Destroy destroys a root document and every subdocument in it. Further
// operations panic with ErrDestroyed; Destroy itself may be called again.
// Subdocuments are destroyed through their parent with DestroyChild.
func (d *Document) Destroy(ctx context.Context) error {
	if d.Parent() != nil {
		return fmt.Errorf("destroy %s: %w", d.GUID(), ErrSubdocDestroy)
	}
	err := d.sched.Run(ctx, func(ctx context.Context) error {
		if err := d.destroyDescendants(ctx); err != nil {
			return err
		}
		d.doc.Destroy()
		return nil
	})
	if errors.Is(err, sched.ErrClosed) {
		return nil
	}
	return err
}

// destroyDescendants destroys every subdocument below d, each inside a unit
// of its own scheduler so no transaction on it is open. Must run in a unit
// of d.
func (d *Document) destroyDescendants(ctx context.Context) error {
	reg := d.reg.Load()
	for _, raw := range d.doc.Subdocs() {
		child := reg.wrap(raw)
		err := child.sched.Run(ctx, func(ctx context.Context) error {
			if err := child.destroyDescendants(ctx); err != nil {
				return err
			}
			child.doc.Destroy()
			return nil
		})
		if err != nil && !errors.Is(err, sched.ErrClosed) {
			return fmt.Errorf("destroy %s: %w", child.GUID(), err)
		}
	}
	return nil
}

// ObserveDestroy registers fn to run once the document is destroyed. fn runs
// on the subscription's own goroutine.
func (d *Document) ObserveDestroy(fn func()) *Subscription {
	sub := newSubscription(d, Deferred, func(any) { fn() })
	id := d.doc.ObserveDestroy(func() { sub.enqueue(struct{}{}) })
	sub.release = func() { d.doc.Unobserve(id) }
	return sub
}
