package shared

import (
	"fmt"

	"github.com/roach88/ycoord/internal/codec"
	"github.com/roach88/ycoord/internal/crdt"
	"github.com/roach88/ycoord/internal/node"
)

// ChangeKind classifies one change of a map entry or list element.
type ChangeKind uint8

const (
	Inserted ChangeKind = iota + 1
	Updated
	Removed
)

// String implements fmt.Stringer.
func (k ChangeKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("change(%d)", uint8(k))
}

// MapChange is one changed key. For Removed, Value holds the removed value;
// for Updated, OldValue holds the replaced one.
//
// Changes that involve nested collections or subdocuments, or values that do
// not decode as V, are not reported.
type MapChange[V any] struct {
	Kind     ChangeKind
	Key      string
	Value    V
	OldValue V
}

// ListChange is one inserted or removed element. Indices apply in order:
// each change sees the list as left by the previous one. Decoded is false when
// the element does not decode as V (for example a nested collection).
type ListChange[V any] struct {
	Kind    ChangeKind
	Index   int
	Value   V
	Decoded bool
}

// DeltaOp is the kind of a text delta entry.
type DeltaOp = crdt.DeltaOp

const (
	DeltaInsert = crdt.DeltaInsert
	DeltaRetain = crdt.DeltaRetain
	DeltaDelete = crdt.DeltaDelete
)

// TextDelta is one run of a text change, or one step of ApplyDelta.
// Inserts carry Text or Embed; retains and deletes carry Len. Attrs on a
// retain are attribute changes, where a nil value removes the attribute.
type TextDelta struct {
	Op    DeltaOp
	Text  string
	Embed node.Node
	Len   int
	Attrs codec.Attrs
}

// SubdocsEvent reports subdocuments added, loaded or removed by one commit
// of the parent.
type SubdocsEvent struct {
	Added   []*Document
	Loaded  []*Document
	Removed []*Document
}

func decodeOut[V any](o crdt.Out) (V, bool) {
	leaf, ok := o.AsLeaf()
	if !ok {
		var zero V
		return zero, false
	}
	return codec.Decode[V](leaf)
}

func mapChanges[V any](ev *crdt.Event) []MapChange[V] {
	var out []MapChange[V]
	for _, kc := range ev.Keys {
		switch kc.Action {
		case crdt.ChangeInserted:
			if v, ok := decodeOut[V](kc.New); ok {
				out = append(out, MapChange[V]{Kind: Inserted, Key: kc.Key, Value: v})
			}
		case crdt.ChangeRemoved:
			if v, ok := decodeOut[V](kc.Old); ok {
				out = append(out, MapChange[V]{Kind: Removed, Key: kc.Key, Value: v})
			}
		case crdt.ChangeUpdated:
			oldV, okOld := decodeOut[V](kc.Old)
			newV, okNew := decodeOut[V](kc.New)
			if okOld && okNew {
				out = append(out, MapChange[V]{Kind: Updated, Key: kc.Key, Value: newV, OldValue: oldV})
			}
		}
	}
	return out
}

func listChanges[V any](ev *crdt.Event) []ListChange[V] {
	var out []ListChange[V]
	idx := 0
	for _, d := range ev.Delta {
		switch d.Op {
		case crdt.DeltaRetain:
			idx += d.Len
		case crdt.DeltaInsert:
			for _, o := range d.Values {
				v, ok := decodeOut[V](o)
				out = append(out, ListChange[V]{Kind: Inserted, Index: idx, Value: v, Decoded: ok})
				idx++
			}
		case crdt.DeltaDelete:
			for _, o := range d.Values {
				v, ok := decodeOut[V](o)
				out = append(out, ListChange[V]{Kind: Removed, Index: idx, Value: v, Decoded: ok})
			}
		}
	}
	return out
}

func textDeltas(ev *crdt.Event) []TextDelta {
	out := make([]TextDelta, len(ev.Delta))
	for i, d := range ev.Delta {
		out[i] = TextDelta{
			Op:    d.Op,
			Text:  d.Text,
			Embed: d.Embed,
			Len:   d.Len,
			Attrs: codec.DecodeAttrs(d.Attrs),
		}
	}
	return out
}

// observeBranch registers a native observer on b that converts each event
// with convert and publishes non-empty batches to the subscription.
func observeBranch[B any](d *Document, b *crdt.Branch, convert func(*crdt.Event) []B, fn func([]B), opts []ObserveOption) *Subscription {
	cfg := observeConfigFrom(opts)
	sub := newSubscription(d, cfg.dispatch, func(batch any) { fn(batch.([]B)) })
	id := d.doc.Observe(b, func(_ *crdt.Txn, ev *crdt.Event) {
		if batch := convert(ev); len(batch) > 0 {
			sub.publish(batch)
		}
	})
	sub.release = func() { d.doc.Unobserve(id) }
	return sub
}

// observeBranchTx registers a SyncDuringCommit listener that also receives
// the committing transaction.
func observeBranchTx[B any](d *Document, b *crdt.Branch, convert func(*crdt.Event) []B, fn func(*Txn, []B)) *Subscription {
	sub := newSubscription(d, SyncDuringCommit, func(call any) { call.(func())() })
	id := d.doc.Observe(b, func(raw *crdt.Txn, ev *crdt.Event) {
		if batch := convert(ev); len(batch) > 0 {
			tx := d.committing(raw)
			sub.publish(func() { fn(tx, batch) })
		}
	})
	sub.release = func() { d.doc.Unobserve(id) }
	return sub
}
