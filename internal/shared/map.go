package shared

import (
	"context"
	"fmt"

	"github.com/roach88/ycoord/internal/codec"
	"github.com/roach88/ycoord/internal/crdt"
	"github.com/roach88/ycoord/internal/node"
)

// Map is a typed proxy over a map collection. Values cross the boundary
// through the codec; keys are strings.
type Map[V any] struct {
	doc    *Document
	branch *crdt.Branch
}

// Entry is one key and its decoded value.
type Entry[V any] struct {
	Key   string
	Value V
}

// GetMap returns the root map called name, creating it on first use.
// Panics if name already holds a root of another kind.
func GetMap[V any](d *Document, name string) *Map[V] {
	return &Map[V]{doc: d, branch: d.doc.GetOrCreate(name, crdt.KindMap)}
}

// RebindMap returns a proxy over the same collection with value type W.
func RebindMap[W, V any](m *Map[V]) *Map[W] {
	return &Map[W]{doc: m.doc, branch: m.branch}
}

// Document returns the owning document.
func (m *Map[V]) Document() *Document {
	return m.doc
}

// SameCollection reports whether m and other are bound to the same
// underlying collection.
func (m *Map[V]) SameCollection(other *Map[V]) bool {
	return other != nil && m.branch == other.branch
}

func (m *Map[V]) engineBranch() *crdt.Branch {
	return m.branch
}

func read[T any](ctx context.Context, d *Document, fn func(tx *Txn) T) (T, error) {
	return TransactValue(ctx, d, func(tx *Txn) (T, error) {
		return fn(tx), nil
	})
}

// GetTx returns the value under key. ok is false when the key is absent or
// its value does not decode as V.
func (m *Map[V]) GetTx(tx *Txn, key string) (V, bool) {
	tx.check(m.doc)
	out, _ := tx.raw.MapGet(m.branch, key)
	return decodeOut[V](out)
}

// Get is GetTx in its own transaction.
func (m *Map[V]) Get(ctx context.Context, key string) (V, bool, error) {
	type result struct {
		v  V
		ok bool
	}
	r, err := read(ctx, m.doc, func(tx *Txn) result {
		v, ok := m.GetTx(tx, key)
		return result{v, ok}
	})
	return r.v, r.ok, err
}

// SetTx stores v under key.
func (m *Map[V]) SetTx(tx *Txn, key string, v V) error {
	tx.check(m.doc)
	n, err := codec.Encode(v)
	if err != nil {
		return fmt.Errorf("map set %q: %w", key, err)
	}
	tx.raw.MapSet(m.branch, key, n)
	return nil
}

// Set is SetTx in its own transaction.
func (m *Map[V]) Set(ctx context.Context, key string, v V) error {
	return m.doc.Transact(ctx, func(tx *Txn) error { return m.SetTx(tx, key, v) })
}

// SetPtrTx stores *v under key, or removes key when v is nil.
func (m *Map[V]) SetPtrTx(tx *Txn, key string, v *V) error {
	if v == nil {
		m.RemoveTx(tx, key)
		return nil
	}
	return m.SetTx(tx, key, *v)
}

// SetPtr is SetPtrTx in its own transaction.
func (m *Map[V]) SetPtr(ctx context.Context, key string, v *V) error {
	return m.doc.Transact(ctx, func(tx *Txn) error { return m.SetPtrTx(tx, key, v) })
}

// TryUpdateTx stores v under key and reports success. A missing key is
// inserted, not rejected.
func (m *Map[V]) TryUpdateTx(tx *Txn, key string, v V) (bool, error) {
	if err := m.SetTx(tx, key, v); err != nil {
		return false, err
	}
	return true, nil
}

// TryUpdate is TryUpdateTx in its own transaction.
func (m *Map[V]) TryUpdate(ctx context.Context, key string, v V) (bool, error) {
	return TransactValue(ctx, m.doc, func(tx *Txn) (bool, error) { return m.TryUpdateTx(tx, key, v) })
}

// LenTx returns the number of keys.
func (m *Map[V]) LenTx(tx *Txn) int {
	tx.check(m.doc)
	return tx.raw.MapLen(m.branch)
}

// Len is LenTx in its own transaction.
func (m *Map[V]) Len(ctx context.Context) (int, error) {
	return read(ctx, m.doc, m.LenTx)
}

// ContainsKeyTx reports whether key holds any value, of any kind.
func (m *Map[V]) ContainsKeyTx(tx *Txn, key string) bool {
	tx.check(m.doc)
	_, ok := tx.raw.MapGet(m.branch, key)
	return ok
}

// ContainsKey is ContainsKeyTx in its own transaction.
func (m *Map[V]) ContainsKey(ctx context.Context, key string) (bool, error) {
	return read(ctx, m.doc, func(tx *Txn) bool { return m.ContainsKeyTx(tx, key) })
}

// RemoveTx deletes key and returns its previous value if it decodes as V.
func (m *Map[V]) RemoveTx(tx *Txn, key string) (V, bool) {
	tx.check(m.doc)
	prev, _ := tx.raw.MapRemove(m.branch, key)
	return decodeOut[V](prev)
}

// Remove is RemoveTx in its own transaction.
func (m *Map[V]) Remove(ctx context.Context, key string) (V, bool, error) {
	type result struct {
		v  V
		ok bool
	}
	r, err := read(ctx, m.doc, func(tx *Txn) result {
		v, ok := m.RemoveTx(tx, key)
		return result{v, ok}
	})
	return r.v, r.ok, err
}

// RemoveAllTx deletes every key.
func (m *Map[V]) RemoveAllTx(tx *Txn) {
	tx.check(m.doc)
	tx.raw.MapClear(m.branch)
}

// RemoveAll is RemoveAllTx in its own transaction.
func (m *Map[V]) RemoveAll(ctx context.Context) error {
	return m.doc.Transact(ctx, func(tx *Txn) error {
		m.RemoveAllTx(tx)
		return nil
	})
}

// KeysTx returns every key in UTF-16 order.
func (m *Map[V]) KeysTx(tx *Txn) []string {
	tx.check(m.doc)
	return tx.raw.MapKeys(m.branch)
}

// Keys is KeysTx in its own transaction.
func (m *Map[V]) Keys(ctx context.Context) ([]string, error) {
	return read(ctx, m.doc, m.KeysTx)
}

// EntriesTx returns the entries whose values decode as V, in key order.
func (m *Map[V]) EntriesTx(tx *Txn) []Entry[V] {
	tx.check(m.doc)
	var out []Entry[V]
	for _, e := range tx.raw.MapEntries(m.branch) {
		if v, ok := decodeOut[V](e.Value); ok {
			out = append(out, Entry[V]{Key: e.Key, Value: v})
		}
	}
	return out
}

// Entries is EntriesTx in its own transaction.
func (m *Map[V]) Entries(ctx context.Context) ([]Entry[V], error) {
	return read(ctx, m.doc, m.EntriesTx)
}

// ValuesTx returns the values that decode as V, in key order.
func (m *Map[V]) ValuesTx(tx *Txn) []V {
	entries := m.EntriesTx(tx)
	out := make([]V, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

// Values is ValuesTx in its own transaction.
func (m *Map[V]) Values(ctx context.Context) ([]V, error) {
	return read(ctx, m.doc, m.ValuesTx)
}

// Nested collections. A leaf value and a nested collection are distinct
// kinds: asking for the wrong kind yields false, never an error.

func (m *Map[V]) nestedTx(tx *Txn, key string, kind crdt.Kind) (*crdt.Branch, bool) {
	tx.check(m.doc)
	out, ok := tx.raw.MapGet(m.branch, key)
	if !ok {
		return nil, false
	}
	return out.AsBranch(kind)
}

func (m *Map[V]) getOrInsertTx(tx *Txn, key string, kind crdt.Kind) *crdt.Branch {
	if b, ok := m.nestedTx(tx, key, kind); ok {
		return b
	}
	return tx.raw.MapSetBranch(m.branch, key, kind)
}

// GetNestedMapTx returns the nested map stored under key.
func (m *Map[V]) GetNestedMapTx(tx *Txn, key string) (*Map[node.Node], bool) {
	b, ok := m.nestedTx(tx, key, crdt.KindMap)
	if !ok {
		return nil, false
	}
	return &Map[node.Node]{doc: m.doc, branch: b}, true
}

// GetNestedListTx returns the nested list stored under key.
func (m *Map[V]) GetNestedListTx(tx *Txn, key string) (*List[node.Node], bool) {
	b, ok := m.nestedTx(tx, key, crdt.KindList)
	if !ok {
		return nil, false
	}
	return &List[node.Node]{doc: m.doc, branch: b}, true
}

// GetNestedTextTx returns the nested text stored under key.
func (m *Map[V]) GetNestedTextTx(tx *Txn, key string) (*Text, bool) {
	b, ok := m.nestedTx(tx, key, crdt.KindText)
	if !ok {
		return nil, false
	}
	return &Text{doc: m.doc, branch: b}, true
}

// InsertNestedMapTx stores a new empty map under key, replacing any value.
func (m *Map[V]) InsertNestedMapTx(tx *Txn, key string) *Map[node.Node] {
	tx.check(m.doc)
	return &Map[node.Node]{doc: m.doc, branch: tx.raw.MapSetBranch(m.branch, key, crdt.KindMap)}
}

// InsertNestedListTx stores a new empty list under key, replacing any value.
func (m *Map[V]) InsertNestedListTx(tx *Txn, key string) *List[node.Node] {
	tx.check(m.doc)
	return &List[node.Node]{doc: m.doc, branch: tx.raw.MapSetBranch(m.branch, key, crdt.KindList)}
}

// InsertNestedTextTx stores a new empty text under key, replacing any value.
func (m *Map[V]) InsertNestedTextTx(tx *Txn, key string) *Text {
	tx.check(m.doc)
	return &Text{doc: m.doc, branch: tx.raw.MapSetBranch(m.branch, key, crdt.KindText)}
}

// GetOrInsertNestedMapTx returns the nested map under key, creating it if
// key holds anything else. Repeated calls bind to the same collection.
func (m *Map[V]) GetOrInsertNestedMapTx(tx *Txn, key string) *Map[node.Node] {
	return &Map[node.Node]{doc: m.doc, branch: m.getOrInsertTx(tx, key, crdt.KindMap)}
}

// GetOrInsertNestedListTx is GetOrInsertNestedMapTx for lists.
func (m *Map[V]) GetOrInsertNestedListTx(tx *Txn, key string) *List[node.Node] {
	return &List[node.Node]{doc: m.doc, branch: m.getOrInsertTx(tx, key, crdt.KindList)}
}

// GetOrInsertNestedTextTx is GetOrInsertNestedMapTx for text.
func (m *Map[V]) GetOrInsertNestedTextTx(tx *Txn, key string) *Text {
	return &Text{doc: m.doc, branch: m.getOrInsertTx(tx, key, crdt.KindText)}
}

// GetNestedMap is GetNestedMapTx in its own transaction.
func (m *Map[V]) GetNestedMap(ctx context.Context, key string) (*Map[node.Node], bool, error) {
	var ok bool
	nm, err := read(ctx, m.doc, func(tx *Txn) *Map[node.Node] {
		var nm *Map[node.Node]
		nm, ok = m.GetNestedMapTx(tx, key)
		return nm
	})
	return nm, ok, err
}

// GetNestedList is GetNestedListTx in its own transaction.
func (m *Map[V]) GetNestedList(ctx context.Context, key string) (*List[node.Node], bool, error) {
	var ok bool
	nl, err := read(ctx, m.doc, func(tx *Txn) *List[node.Node] {
		var nl *List[node.Node]
		nl, ok = m.GetNestedListTx(tx, key)
		return nl
	})
	return nl, ok, err
}

// GetNestedText is GetNestedTextTx in its own transaction.
func (m *Map[V]) GetNestedText(ctx context.Context, key string) (*Text, bool, error) {
	var ok bool
	nt, err := read(ctx, m.doc, func(tx *Txn) *Text {
		var nt *Text
		nt, ok = m.GetNestedTextTx(tx, key)
		return nt
	})
	return nt, ok, err
}

// InsertNestedMap is InsertNestedMapTx in its own transaction.
func (m *Map[V]) InsertNestedMap(ctx context.Context, key string) (*Map[node.Node], error) {
	return read(ctx, m.doc, func(tx *Txn) *Map[node.Node] { return m.InsertNestedMapTx(tx, key) })
}

// InsertNestedList is InsertNestedListTx in its own transaction.
func (m *Map[V]) InsertNestedList(ctx context.Context, key string) (*List[node.Node], error) {
	return read(ctx, m.doc, func(tx *Txn) *List[node.Node] { return m.InsertNestedListTx(tx, key) })
}

// InsertNestedText is InsertNestedTextTx in its own transaction.
func (m *Map[V]) InsertNestedText(ctx context.Context, key string) (*Text, error) {
	return read(ctx, m.doc, func(tx *Txn) *Text { return m.InsertNestedTextTx(tx, key) })
}

// GetOrInsertNestedMap is GetOrInsertNestedMapTx in its own transaction.
func (m *Map[V]) GetOrInsertNestedMap(ctx context.Context, key string) (*Map[node.Node], error) {
	return read(ctx, m.doc, func(tx *Txn) *Map[node.Node] { return m.GetOrInsertNestedMapTx(tx, key) })
}

// GetOrInsertNestedList is GetOrInsertNestedListTx in its own transaction.
func (m *Map[V]) GetOrInsertNestedList(ctx context.Context, key string) (*List[node.Node], error) {
	return read(ctx, m.doc, func(tx *Txn) *List[node.Node] { return m.GetOrInsertNestedListTx(tx, key) })
}

// GetOrInsertNestedText is GetOrInsertNestedTextTx in its own transaction.
func (m *Map[V]) GetOrInsertNestedText(ctx context.Context, key string) (*Text, error) {
	return read(ctx, m.doc, func(tx *Txn) *Text { return m.GetOrInsertNestedTextTx(tx, key) })
}

// GetDocTx returns the subdocument stored under key.
func (m *Map[V]) GetDocTx(tx *Txn, key string) (*Document, bool) {
	tx.check(m.doc)
	out, ok := tx.raw.MapGet(m.branch, key)
	if !ok {
		return nil, false
	}
	raw, ok := out.AsDoc()
	if !ok {
		return nil, false
	}
	return m.doc.reg.Load().wrap(raw), true
}

// GetDoc is GetDocTx in its own transaction.
func (m *Map[V]) GetDoc(ctx context.Context, key string) (*Document, bool, error) {
	var ok bool
	sub, err := read(ctx, m.doc, func(tx *Txn) *Document {
		var sub *Document
		sub, ok = m.GetDocTx(tx, key)
		return sub
	})
	return sub, ok, err
}

// InsertDocTx integrates child as a subdocument under key. child becomes
// part of this document's tree; its Parent is set from now on.
func (m *Map[V]) InsertDocTx(tx *Txn, key string, child *Document) error {
	tx.check(m.doc)
	if err := tx.raw.MapSetDoc(m.branch, key, child.doc); err != nil {
		return fmt.Errorf("insert subdocument %s: %w", child.GUID(), err)
	}
	m.doc.reg.Load().adopt(child.reg.Load())
	return nil
}

// InsertDoc is InsertDocTx in its own transaction.
func (m *Map[V]) InsertDoc(ctx context.Context, key string, child *Document) error {
	return m.doc.Transact(ctx, func(tx *Txn) error { return m.InsertDocTx(tx, key, child) })
}

// Observe registers fn for changes to the map. See MapChange for what is
// reported.
func (m *Map[V]) Observe(fn func([]MapChange[V]), opts ...ObserveOption) *Subscription {
	return observeBranch(m.doc, m.branch, mapChanges[V], fn, opts)
}

// ObserveTx registers a SyncDuringCommit listener that receives the
// committing transaction. The listener may read through tx; writes panic.
func (m *Map[V]) ObserveTx(fn func(tx *Txn, changes []MapChange[V])) *Subscription {
	return observeBranchTx(m.doc, m.branch, mapChanges[V], fn)
}

// Stream delivers change batches on a channel until ctx is done, then
// cancels the subscription and closes the channel.
func (m *Map[V]) Stream(ctx context.Context) <-chan []MapChange[V] {
	return stream(ctx, func(fn func([]MapChange[V])) *Subscription { return m.Observe(fn) })
}
