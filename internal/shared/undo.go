package shared

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/roach88/ycoord/internal/crdt"
)

// DefaultCaptureTimeout is how close together two tracked transactions must
// commit for one undo step to cover both.
const DefaultCaptureTimeout = 500 * time.Millisecond

// Collection is a shared collection proxy: a *Map, *List or *Text.
type Collection interface {
	Document() *Document
	engineBranch() *crdt.Branch
}

// UndoOption configures an UndoManager.
type UndoOption func(*UndoManager)

// WithCaptureTimeout sets the window within which consecutive tracked
// transactions merge into one undo step. Zero never merges.
func WithCaptureTimeout(d time.Duration) UndoOption {
	return func(um *UndoManager) {
		um.timeout = d
	}
}

// WithTrackedOrigins replaces the set of transaction origins the manager
// records. Default: the document's own origin.
func WithTrackedOrigins(origins ...string) UndoOption {
	return func(um *UndoManager) {
		clear(um.tracked)
		for _, o := range origins {
			um.tracked[o] = true
		}
	}
}

type revertMode uint8

const (
	notReverting revertMode = iota
	undoing
	redoing
)

// UndoManager reverts local changes to a set of collections, and everything
// nested inside them, one step at a time.
//
// A step is one tracked transaction, or several that committed within the
// capture timeout. Transactions whose origin is not tracked, and
// transactions that integrate remote updates, are never recorded. Undo and
// Redo run as transactions on the document tagged with Origin, so they
// replicate like any other change.
type UndoManager struct {
	doc     *Document
	origin  string
	timeout time.Duration
	obsID   crdt.ObserverID

	mu      sync.Mutex
	scope   []*crdt.Branch
	tracked map[string]bool
	undo    []*crdt.StackItem
	redo    []*crdt.StackItem
	last    time.Time
	mode    revertMode
	closed  bool
}

// NewUndoManager creates an undo manager over scope, which must belong to d.
func NewUndoManager(d *Document, scope []Collection, opts ...UndoOption) *UndoManager {
	um := &UndoManager{
		doc:     d,
		origin:  "undo:" + crdt.NewGUID(),
		timeout: DefaultCaptureTimeout,
		tracked: map[string]bool{d.origin: true},
	}
	for _, opt := range opts {
		opt(um)
	}
	for _, c := range scope {
		um.ExpandScope(c)
	}
	um.obsID = d.doc.ObserveAfterTransaction(um.capture)
	return um
}

// Origin returns the origin tag of the manager's undo and redo transactions.
func (um *UndoManager) Origin() string {
	return um.origin
}

// ExpandScope adds c to the tracked collections. Panics if c belongs to
// another document.
func (um *UndoManager) ExpandScope(c Collection) {
	if c.Document() != um.doc {
		panic("shared: undo scope belongs to document " + c.Document().GUID() + ", not " + um.doc.GUID())
	}
	um.mu.Lock()
	defer um.mu.Unlock()
	if b := c.engineBranch(); !slices.Contains(um.scope, b) {
		um.scope = append(um.scope, b)
	}
}

// TrackOrigin adds origin to the recorded transaction origins.
func (um *UndoManager) TrackOrigin(origin string) {
	um.mu.Lock()
	defer um.mu.Unlock()
	um.tracked[origin] = true
}

// UntrackOrigin stops recording transactions tagged with origin.
func (um *UndoManager) UntrackOrigin(origin string) {
	um.mu.Lock()
	defer um.mu.Unlock()
	delete(um.tracked, origin)
}

// capture runs at the end of every commit on the document.
func (um *UndoManager) capture(raw *crdt.Txn) {
	um.mu.Lock()
	defer um.mu.Unlock()
	if um.closed {
		return
	}

	if raw.Origin() == um.origin {
		mode := um.mode
		um.mode = notReverting
		item := raw.Capture(um.scope)
		if item == nil {
			return
		}
		switch mode {
		case undoing:
			um.redo = append(um.redo, item)
		case redoing:
			um.undo = append(um.undo, item)
		}
		um.last = time.Time{}
		return
	}

	if !um.tracked[raw.Origin()] {
		return
	}
	item := raw.Capture(um.scope)
	if item == nil {
		return
	}
	now := time.Now()
	if n := len(um.undo); n > 0 && !um.last.IsZero() && now.Sub(um.last) < um.timeout {
		um.undo[n-1].Merge(item)
	} else {
		um.undo = append(um.undo, item)
	}
	um.redo = nil
	um.last = now
}

// Undo reverts the most recent step that still changes something. Returns
// false when there was nothing to undo.
func (um *UndoManager) Undo(ctx context.Context) (bool, error) {
	return um.revert(ctx, undoing)
}

// Redo reapplies the most recently undone step. Returns false when there
// was nothing to redo.
func (um *UndoManager) Redo(ctx context.Context) (bool, error) {
	return um.revert(ctx, redoing)
}

func (um *UndoManager) revert(ctx context.Context, mode revertMode) (bool, error) {
	var changed bool
	err := um.doc.TransactOrigin(ctx, um.origin, func(tx *Txn) error {
		um.mu.Lock()
		defer um.mu.Unlock()
		stack := &um.undo
		if mode == redoing {
			stack = &um.redo
		}
		// Steps fully overwritten by later changes revert to nothing and are
		// skipped.
		for !changed && len(*stack) > 0 {
			n := len(*stack) - 1
			item := (*stack)[n]
			*stack = (*stack)[:n]
			changed = tx.raw.Revert(item)
		}
		if changed {
			um.mode = mode
		}
		return nil
	})
	return changed, err
}

// CanUndo reports whether an undo step is recorded.
func (um *UndoManager) CanUndo() bool {
	um.mu.Lock()
	defer um.mu.Unlock()
	return len(um.undo) > 0
}

// CanRedo reports whether a redo step is recorded.
func (um *UndoManager) CanRedo() bool {
	um.mu.Lock()
	defer um.mu.Unlock()
	return len(um.redo) > 0
}

// StopCapturing makes the next tracked transaction start a new step even
// within the capture timeout.
func (um *UndoManager) StopCapturing() {
	um.mu.Lock()
	defer um.mu.Unlock()
	um.last = time.Time{}
}

// Clear drops every recorded step.
func (um *UndoManager) Clear() {
	um.mu.Lock()
	defer um.mu.Unlock()
	um.undo = nil
	um.redo = nil
	um.last = time.Time{}
}

// Close stops recording and releases the engine registration. Recorded
// steps are dropped. Close is idempotent.
func (um *UndoManager) Close() {
	um.mu.Lock()
	if um.closed {
		um.mu.Unlock()
		return
	}
	um.closed = true
	um.undo = nil
	um.redo = nil
	um.mu.Unlock()
	um.doc.doc.Unobserve(um.obsID)
}
