package crdt

import (
	"slices"
	"sync"

	"github.com/roach88/ycoord/internal/node"
)

// ChangeAction classifies a map entry change.
type ChangeAction uint8

const (
	// ChangeInserted means the key had no visible value before the transaction.
	ChangeInserted ChangeAction = iota + 1
	// ChangeUpdated means the key's value was replaced.
	ChangeUpdated
	// ChangeRemoved means the key no longer has a visible value.
	ChangeRemoved
)

// String implements fmt.Stringer.
func (a ChangeAction) String() string {
	switch a {
	case ChangeInserted:
		return "inserted"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	}
	return "unknown"
}

// KeyChange describes one map key touched by a transaction.
type KeyChange struct {
	Key    string
	Action ChangeAction
	Old    Out
	New    Out
}

// DeltaOp is the kind of a sequence delta entry.
type DeltaOp uint8

const (
	// DeltaInsert inserts Values (lists), Text or Embed (text).
	DeltaInsert DeltaOp = iota + 1
	// DeltaRetain skips Len elements, optionally applying Attrs.
	DeltaRetain
	// DeltaDelete removes Len elements.
	DeltaDelete
)

// String implements fmt.Stringer.
func (o DeltaOp) String() string {
	switch o {
	case DeltaInsert:
		return "insert"
	case DeltaRetain:
		return "retain"
	case DeltaDelete:
		return "delete"
	}
	return "unknown"
}

// Delta is one entry of a list or text change, applied sequentially.
type Delta struct {
	Op DeltaOp

	// Values holds inserted elements, or removed elements for a list delete.
	Values []Out

	// Text is an inserted text run. Embed is an inserted embed; at most one
	// of the two is set for a text insert.
	Text  string
	Embed node.Node

	// Len is the element count for retain and delete.
	Len int

	// Attrs are the attributes of inserted text, or the attribute changes
	// applied by a retain. A null value removes an attribute.
	Attrs node.Object
}

// Event is the native change record of one branch for one transaction.
type Event struct {
	Target *Branch

	// Keys lists changed map keys in the order the transaction first
	// touched them. Empty for lists and text.
	Keys []KeyChange

	// Delta is the sequence change for lists and text.
	Delta []Delta
}

// SubdocsEvent reports subdocument lifecycle changes of one transaction.
type SubdocsEvent struct {
	Added   []*Doc
	Loaded  []*Doc
	Removed []*Doc
}

// IsEmpty reports whether the event carries no changes.
func (e SubdocsEvent) IsEmpty() bool {
	return len(e.Added) == 0 && len(e.Loaded) == 0 && len(e.Removed) == 0
}

// ObserverID identifies a native observer registration.
type ObserverID uint64

type branchObserver struct {
	id ObserverID
	fn func(*Txn, *Event)
}

type subdocObserver struct {
	id ObserverID
	fn func(*Txn, SubdocsEvent)
}

type updateObserver struct {
	id ObserverID
	fn func(*Txn, []byte)
}

type destroyObserver struct {
	id ObserverID
	fn func()
}

type afterObserver struct {
	id ObserverID
	fn func(*Txn)
}

// observers is the native observer table of one Doc. Registration is safe
// from any goroutine; callbacks run on the committing goroutine.
type observers struct {
	mu      sync.Mutex
	next    ObserverID
	branch  map[*Branch][]branchObserver
	subdocs []subdocObserver
	update  []updateObserver
	destroy []destroyObserver
	after   []afterObserver
}

func (o *observers) nextID() ObserverID {
	o.next++
	return o.next
}

// Observe registers fn for changes to b. Callbacks run synchronously while
// the transaction commits, in registration order.
func (d *Doc) Observe(b *Branch, fn func(*Txn, *Event)) ObserverID {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	if d.obs.branch == nil {
		d.obs.branch = make(map[*Branch][]branchObserver)
	}
	id := d.obs.nextID()
	d.obs.branch[b] = append(d.obs.branch[b], branchObserver{id: id, fn: fn})
	return id
}

// ObserveSubdocs registers fn for subdocument lifecycle events.
func (d *Doc) ObserveSubdocs(fn func(*Txn, SubdocsEvent)) ObserverID {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	id := d.obs.nextID()
	d.obs.subdocs = append(d.obs.subdocs, subdocObserver{id: id, fn: fn})
	return id
}

// ObserveUpdate registers fn to receive the encoded update of every
// transaction that integrated at least one operation.
func (d *Doc) ObserveUpdate(fn func(*Txn, []byte)) ObserverID {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	id := d.obs.nextID()
	d.obs.update = append(d.obs.update, updateObserver{id: id, fn: fn})
	return id
}

// ObserveAfterTransaction registers fn to run at the end of every commit
// that integrated at least one operation. fn may read through the
// committing transaction.
func (d *Doc) ObserveAfterTransaction(fn func(*Txn)) ObserverID {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	id := d.obs.nextID()
	d.obs.after = append(d.obs.after, afterObserver{id: id, fn: fn})
	return id
}

// ObserveDestroy registers fn to run when the document is destroyed.
func (d *Doc) ObserveDestroy(fn func()) ObserverID {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	id := d.obs.nextID()
	d.obs.destroy = append(d.obs.destroy, destroyObserver{id: id, fn: fn})
	return id
}

// Unobserve removes a registration. Returns false if id is unknown.
// A callback that is already running is not interrupted.
func (d *Doc) Unobserve(id ObserverID) bool {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()

	for b, list := range d.obs.branch {
		if i := slices.IndexFunc(list, func(o branchObserver) bool { return o.id == id }); i >= 0 {
			list = slices.Delete(list, i, i+1)
			if len(list) == 0 {
				delete(d.obs.branch, b)
			} else {
				d.obs.branch[b] = list
			}
			return true
		}
	}
	if i := slices.IndexFunc(d.obs.subdocs, func(o subdocObserver) bool { return o.id == id }); i >= 0 {
		d.obs.subdocs = slices.Delete(d.obs.subdocs, i, i+1)
		return true
	}
	if i := slices.IndexFunc(d.obs.update, func(o updateObserver) bool { return o.id == id }); i >= 0 {
		d.obs.update = slices.Delete(d.obs.update, i, i+1)
		return true
	}
	if i := slices.IndexFunc(d.obs.destroy, func(o destroyObserver) bool { return o.id == id }); i >= 0 {
		d.obs.destroy = slices.Delete(d.obs.destroy, i, i+1)
		return true
	}
	if i := slices.IndexFunc(d.obs.after, func(o afterObserver) bool { return o.id == id }); i >= 0 {
		d.obs.after = slices.Delete(d.obs.after, i, i+1)
		return true
	}
	return false
}

// ObserverCount returns the number of live native registrations.
func (d *Doc) ObserverCount() int {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	n := len(d.obs.subdocs) + len(d.obs.update) + len(d.obs.destroy) + len(d.obs.after)
	for _, list := range d.obs.branch {
		n += len(list)
	}
	return n
}

func (d *Doc) branchObservers(b *Branch) []branchObserver {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	return slices.Clone(d.obs.branch[b])
}

func (d *Doc) subdocObservers() []subdocObserver {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	return slices.Clone(d.obs.subdocs)
}

func (d *Doc) updateObservers() []updateObserver {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	return slices.Clone(d.obs.update)
}

func (d *Doc) destroyObservers() []destroyObserver {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	return slices.Clone(d.obs.destroy)
}

func (d *Doc) afterObservers() []afterObserver {
	d.obs.mu.Lock()
	defer d.obs.mu.Unlock()
	return slices.Clone(d.obs.after)
}
