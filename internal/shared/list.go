package shared

import (
	"context"
	"fmt"

	"github.com/roach88/ycoord/internal/codec"
	"github.com/roach88/ycoord/internal/crdt"
	"github.com/roach88/ycoord/internal/node"
)

// List is a typed proxy over a list collection.
type List[V any] struct {
	doc    *Document
	branch *crdt.Branch
}

// GetList returns the root list called name, creating it on first use.
// Panics if name already holds a root of another kind.
func GetList[V any](d *Document, name string) *List[V] {
	return &List[V]{doc: d, branch: d.doc.GetOrCreate(name, crdt.KindList)}
}

// RebindList returns a proxy over the same collection with value type W.
func RebindList[W, V any](l *List[V]) *List[W] {
	return &List[W]{doc: l.doc, branch: l.branch}
}

// Document returns the owning document.
func (l *List[V]) Document() *Document {
	return l.doc
}

// SameCollection reports whether l and other are bound to the same
// underlying collection.
func (l *List[V]) SameCollection(other *List[V]) bool {
	return other != nil && l.branch == other.branch
}

func (l *List[V]) engineBranch() *crdt.Branch {
	return l.branch
}

func checkIndex(op string, idx ...int) error {
	for _, i := range idx {
		if i < 0 {
			return fmt.Errorf("%s %d: %w", op, i, ErrNegativeIndex)
		}
	}
	return nil
}

func encodeAll[V any](vs []V) ([]node.Node, error) {
	out := make([]node.Node, len(vs))
	for i, v := range vs {
		n, err := codec.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

// GetTx returns the element at index. ok is false when index is out of
// range or the element does not decode as V.
func (l *List[V]) GetTx(tx *Txn, index int) (V, bool) {
	tx.check(l.doc)
	if index < 0 {
		var zero V
		return zero, false
	}
	out, _ := tx.raw.ListGet(l.branch, index)
	return decodeOut[V](out)
}

// Get is GetTx in its own transaction.
func (l *List[V]) Get(ctx context.Context, index int) (V, bool, error) {
	var ok bool
	v, err := read(ctx, l.doc, func(tx *Txn) V {
		var v V
		v, ok = l.GetTx(tx, index)
		return v
	})
	return v, ok, err
}

// InsertTx inserts v before index. index may equal Len.
func (l *List[V]) InsertTx(tx *Txn, index int, v V) error {
	return l.InsertRangeTx(tx, index, v)
}

// Insert is InsertTx in its own transaction.
func (l *List[V]) Insert(ctx context.Context, index int, v V) error {
	return l.doc.Transact(ctx, func(tx *Txn) error { return l.InsertTx(tx, index, v) })
}

// InsertRangeTx inserts vs, in order, before index.
func (l *List[V]) InsertRangeTx(tx *Txn, index int, vs ...V) error {
	tx.check(l.doc)
	if err := checkIndex("list insert", index); err != nil {
		return err
	}
	ns, err := encodeAll(vs)
	if err != nil {
		return fmt.Errorf("list insert: %w", err)
	}
	return tx.raw.ListInsert(l.branch, index, ns...)
}

// InsertRange is InsertRangeTx in its own transaction.
func (l *List[V]) InsertRange(ctx context.Context, index int, vs ...V) error {
	return l.doc.Transact(ctx, func(tx *Txn) error { return l.InsertRangeTx(tx, index, vs...) })
}

// AppendTx adds vs at the end.
func (l *List[V]) AppendTx(tx *Txn, vs ...V) error {
	tx.check(l.doc)
	return l.InsertRangeTx(tx, tx.raw.ListLen(l.branch), vs...)
}

// Append is AppendTx in its own transaction.
func (l *List[V]) Append(ctx context.Context, vs ...V) error {
	return l.doc.Transact(ctx, func(tx *Txn) error { return l.AppendTx(tx, vs...) })
}

// PrependTx adds vs at the front.
func (l *List[V]) PrependTx(tx *Txn, vs ...V) error {
	return l.InsertRangeTx(tx, 0, vs...)
}

// Prepend is PrependTx in its own transaction.
func (l *List[V]) Prepend(ctx context.Context, vs ...V) error {
	return l.doc.Transact(ctx, func(tx *Txn) error { return l.PrependTx(tx, vs...) })
}

// RemoveTx removes the element at index.
func (l *List[V]) RemoveTx(tx *Txn, index int) error {
	return l.RemoveRangeTx(tx, index, 1)
}

// Remove is RemoveTx in its own transaction.
func (l *List[V]) Remove(ctx context.Context, index int) error {
	return l.doc.Transact(ctx, func(tx *Txn) error { return l.RemoveTx(tx, index) })
}

// RemoveRangeTx removes n elements starting at index.
func (l *List[V]) RemoveRangeTx(tx *Txn, index, n int) error {
	tx.check(l.doc)
	if err := checkIndex("list remove", index, n); err != nil {
		return err
	}
	return tx.raw.ListRemoveRange(l.branch, index, n)
}

// RemoveRange is RemoveRangeTx in its own transaction.
func (l *List[V]) RemoveRange(ctx context.Context, index, n int) error {
	return l.doc.Transact(ctx, func(tx *Txn) error { return l.RemoveRangeTx(tx, index, n) })
}

// LenTx returns the number of elements, of any kind.
func (l *List[V]) LenTx(tx *Txn) int {
	tx.check(l.doc)
	return tx.raw.ListLen(l.branch)
}

// Len is LenTx in its own transaction.
func (l *List[V]) Len(ctx context.Context) (int, error) {
	return read(ctx, l.doc, l.LenTx)
}

// ToSliceTx returns the elements that decode as V, in order.
func (l *List[V]) ToSliceTx(tx *Txn) []V {
	var out []V
	l.EachTx(tx, func(_ int, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

// ToSlice is ToSliceTx in its own transaction.
func (l *List[V]) ToSlice(ctx context.Context) ([]V, error) {
	return read(ctx, l.doc, l.ToSliceTx)
}

// EachTx calls fn with the index and value of every element that decodes as
// V, until fn returns false.
func (l *List[V]) EachTx(tx *Txn, fn func(index int, v V) bool) {
	tx.check(l.doc)
	for i, out := range tx.raw.ListValues(l.branch) {
		v, ok := decodeOut[V](out)
		if !ok {
			continue
		}
		if !fn(i, v) {
			return
		}
	}
}

// Each is EachTx in its own transaction. fn runs while the document is held
// and must not start transactions on it.
func (l *List[V]) Each(ctx context.Context, fn func(index int, v V) bool) error {
	return l.doc.Transact(ctx, func(tx *Txn) error {
		l.EachTx(tx, fn)
		return nil
	})
}

// MoveTx moves the element at source so that it lands before the element
// currently at target.
func (l *List[V]) MoveTx(tx *Txn, source, target int) error {
	tx.check(l.doc)
	if err := checkIndex("list move", source, target); err != nil {
		return err
	}
	return tx.raw.ListMove(l.branch, source, target)
}

// Move is MoveTx in its own transaction.
func (l *List[V]) Move(ctx context.Context, source, target int) error {
	return l.doc.Transact(ctx, func(tx *Txn) error { return l.MoveTx(tx, source, target) })
}

// MoveRangeTx moves the elements start..end inclusive before target.
func (l *List[V]) MoveRangeTx(tx *Txn, start, end, target int) error {
	tx.check(l.doc)
	if err := checkIndex("list move", start, end, target); err != nil {
		return err
	}
	return tx.raw.ListMoveRange(l.branch, start, end, target)
}

// MoveRange is MoveRangeTx in its own transaction.
func (l *List[V]) MoveRange(ctx context.Context, start, end, target int) error {
	return l.doc.Transact(ctx, func(tx *Txn) error { return l.MoveRangeTx(tx, start, end, target) })
}

func (l *List[V]) nestedTx(tx *Txn, index int, kind crdt.Kind) (*crdt.Branch, bool) {
	tx.check(l.doc)
	if index < 0 {
		return nil, false
	}
	out, ok := tx.raw.ListGet(l.branch, index)
	if !ok {
		return nil, false
	}
	return out.AsBranch(kind)
}

func (l *List[V]) insertNestedTx(tx *Txn, index int, kind crdt.Kind) (*crdt.Branch, error) {
	tx.check(l.doc)
	if err := checkIndex("list insert", index); err != nil {
		return nil, err
	}
	return tx.raw.ListInsertBranch(l.branch, index, kind)
}

// GetNestedMapTx returns the nested map at index.
func (l *List[V]) GetNestedMapTx(tx *Txn, index int) (*Map[node.Node], bool) {
	b, ok := l.nestedTx(tx, index, crdt.KindMap)
	if !ok {
		return nil, false
	}
	return &Map[node.Node]{doc: l.doc, branch: b}, true
}

// GetNestedListTx returns the nested list at index.
func (l *List[V]) GetNestedListTx(tx *Txn, index int) (*List[node.Node], bool) {
	b, ok := l.nestedTx(tx, index, crdt.KindList)
	if !ok {
		return nil, false
	}
	return &List[node.Node]{doc: l.doc, branch: b}, true
}

// GetNestedTextTx returns the nested text at index.
func (l *List[V]) GetNestedTextTx(tx *Txn, index int) (*Text, bool) {
	b, ok := l.nestedTx(tx, index, crdt.KindText)
	if !ok {
		return nil, false
	}
	return &Text{doc: l.doc, branch: b}, true
}

// InsertNestedMapTx inserts a new empty map before index.
func (l *List[V]) InsertNestedMapTx(tx *Txn, index int) (*Map[node.Node], error) {
	b, err := l.insertNestedTx(tx, index, crdt.KindMap)
	if err != nil {
		return nil, err
	}
	return &Map[node.Node]{doc: l.doc, branch: b}, nil
}

// InsertNestedListTx inserts a new empty list before index.
func (l *List[V]) InsertNestedListTx(tx *Txn, index int) (*List[node.Node], error) {
	b, err := l.insertNestedTx(tx, index, crdt.KindList)
	if err != nil {
		return nil, err
	}
	return &List[node.Node]{doc: l.doc, branch: b}, nil
}

// InsertNestedTextTx inserts a new empty text before index.
func (l *List[V]) InsertNestedTextTx(tx *Txn, index int) (*Text, error) {
	b, err := l.insertNestedTx(tx, index, crdt.KindText)
	if err != nil {
		return nil, err
	}
	return &Text{doc: l.doc, branch: b}, nil
}

// GetNestedMap is GetNestedMapTx in its own transaction.
func (l *List[V]) GetNestedMap(ctx context.Context, index int) (*Map[node.Node], bool, error) {
	var ok bool
	m, err := read(ctx, l.doc, func(tx *Txn) *Map[node.Node] {
		var m *Map[node.Node]
		m, ok = l.GetNestedMapTx(tx, index)
		return m
	})
	return m, ok, err
}

// GetNestedList is GetNestedListTx in its own transaction.
func (l *List[V]) GetNestedList(ctx context.Context, index int) (*List[node.Node], bool, error) {
	var ok bool
	nl, err := read(ctx, l.doc, func(tx *Txn) *List[node.Node] {
		var nl *List[node.Node]
		nl, ok = l.GetNestedListTx(tx, index)
		return nl
	})
	return nl, ok, err
}

// GetNestedText is GetNestedTextTx in its own transaction.
func (l *List[V]) GetNestedText(ctx context.Context, index int) (*Text, bool, error) {
	var ok bool
	t, err := read(ctx, l.doc, func(tx *Txn) *Text {
		var t *Text
		t, ok = l.GetNestedTextTx(tx, index)
		return t
	})
	return t, ok, err
}

// InsertNestedMap is InsertNestedMapTx in its own transaction.
func (l *List[V]) InsertNestedMap(ctx context.Context, index int) (*Map[node.Node], error) {
	return TransactValue(ctx, l.doc, func(tx *Txn) (*Map[node.Node], error) { return l.InsertNestedMapTx(tx, index) })
}

// InsertNestedList is InsertNestedListTx in its own transaction.
func (l *List[V]) InsertNestedList(ctx context.Context, index int) (*List[node.Node], error) {
	return TransactValue(ctx, l.doc, func(tx *Txn) (*List[node.Node], error) { return l.InsertNestedListTx(tx, index) })
}

// InsertNestedText is InsertNestedTextTx in its own transaction.
func (l *List[V]) InsertNestedText(ctx context.Context, index int) (*Text, error) {
	return TransactValue(ctx, l.doc, func(tx *Txn) (*Text, error) { return l.InsertNestedTextTx(tx, index) })
}

// GetDocTx returns the subdocument at index.
func (l *List[V]) GetDocTx(tx *Txn, index int) (*Document, bool) {
	tx.check(l.doc)
	if index < 0 {
		return nil, false
	}
	out, ok := tx.raw.ListGet(l.branch, index)
	if !ok {
		return nil, false
	}
	raw, ok := out.AsDoc()
	if !ok {
		return nil, false
	}
	return l.doc.reg.Load().wrap(raw), true
}

// GetDoc is GetDocTx in its own transaction.
func (l *List[V]) GetDoc(ctx context.Context, index int) (*Document, bool, error) {
	var ok bool
	sub, err := read(ctx, l.doc, func(tx *Txn) *Document {
		var sub *Document
		sub, ok = l.GetDocTx(tx, index)
		return sub
	})
	return sub, ok, err
}

// InsertDocTx integrates child as a subdocument before index.
func (l *List[V]) InsertDocTx(tx *Txn, index int, child *Document) error {
	tx.check(l.doc)
	if err := checkIndex("list insert", index); err != nil {
		return err
	}
	if err := tx.raw.ListInsertDoc(l.branch, index, child.doc); err != nil {
		return fmt.Errorf("insert subdocument %s: %w", child.GUID(), err)
	}
	l.doc.reg.Load().adopt(child.reg.Load())
	return nil
}

// InsertDoc is InsertDocTx in its own transaction.
func (l *List[V]) InsertDoc(ctx context.Context, index int, child *Document) error {
	return l.doc.Transact(ctx, func(tx *Txn) error { return l.InsertDocTx(tx, index, child) })
}

// Observe registers fn for changes to the list.
func (l *List[V]) Observe(fn func([]ListChange[V]), opts ...ObserveOption) *Subscription {
	return observeBranch(l.doc, l.branch, listChanges[V], fn, opts)
}

// ObserveTx registers a SyncDuringCommit listener that receives the
// committing transaction. The listener may read through tx; writes panic.
func (l *List[V]) ObserveTx(fn func(tx *Txn, changes []ListChange[V])) *Subscription {
	return observeBranchTx(l.doc, l.branch, listChanges[V], fn)
}

// Stream delivers change batches on a channel until ctx is done.
func (l *List[V]) Stream(ctx context.Context) <-chan []ListChange[V] {
	return stream(ctx, func(fn func([]ListChange[V])) *Subscription { return l.Observe(fn) })
}
