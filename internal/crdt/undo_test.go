package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ycoord/internal/node"
)

// captured runs fn in a transaction and returns its undo record for scope.
func captured(d *Doc, scope []*Branch, fn func(tx *Txn)) *StackItem {
	var s *StackItem
	write(d, func(tx *Txn) {
		fn(tx)
		s = tx.Capture(scope)
	})
	return s
}

func revert(d *Doc, s *StackItem) bool {
	var changed bool
	write(d, func(tx *Txn) { changed = tx.Revert(s) })
	return changed
}

func textOf(d *Doc, b *Branch) string {
	var s string
	write(d, func(tx *Txn) { s = tx.TextString(b) })
	return s
}

func TestCapture_SkipsRemoteAndOutOfScope(t *testing.T) {
	a := newTestDoc(t, 1)
	b := newTestDoc(t, 2)
	m := a.GetOrCreate("m", KindMap)
	other := a.GetOrCreate("o", KindList)

	var items []*StackItem
	id := a.ObserveAfterTransaction(func(tx *Txn) { items = append(items, tx.Capture([]*Branch{m})) })
	defer a.Unobserve(id)

	write(a, func(tx *Txn) { tx.MapSet(m, "k", node.Int(1)) })
	write(a, func(tx *Txn) { require.NoError(t, tx.ListInsert(other, 0, node.Int(1))) })
	write(a, func(tx *Txn) { tx.MapLen(m) })
	write(b, func(tx *Txn) { tx.MapSet(b.GetOrCreate("m", KindMap), "r", node.Int(2)) })
	syncDocs(t, a, b)

	require.Len(t, items, 3)
	assert.NotNil(t, items[0])
	assert.Nil(t, items[1], "out of scope")
	assert.Nil(t, items[2], "remote")
}

func TestRevert_RestoresInPlaceAmidConcurrentInserts(t *testing.T) {
	a := newTestDoc(t, 1)
	b := newTestDoc(t, 2)
	ta := a.GetOrCreate("t", KindText)
	tb := b.GetOrCreate("t", KindText)
	write(a, func(tx *Txn) { require.NoError(t, tx.TextInsert(ta, 0, "abc")) })
	syncDocs(t, a, b)

	s := captured(a, []*Branch{ta}, func(tx *Txn) { require.NoError(t, tx.TextRemoveRange(ta, 1, 1)) })
	require.NotNil(t, s)
	write(b, func(tx *Txn) { require.NoError(t, tx.TextInsert(tb, 2, "X")) })
	syncDocs(t, a, b)
	assert.Equal(t, "aXc", textOf(a, ta))

	assert.True(t, revert(a, s))
	syncDocs(t, a, b)
	assert.Equal(t, "abXc", textOf(a, ta))
	assert.Equal(t, "abXc", textOf(b, tb))
}

func TestStackItem_MergeDropsTransientInserts(t *testing.T) {
	d := newTestDoc(t, 1)
	l := d.GetOrCreate("l", KindList)
	write(d, func(tx *Txn) { require.NoError(t, tx.ListInsert(l, 0, node.Int(1))) })
	scope := []*Branch{l}

	s := captured(d, scope, func(tx *Txn) { require.NoError(t, tx.ListInsert(l, 1, node.Int(2))) })
	s.Merge(captured(d, scope, func(tx *Txn) { require.NoError(t, tx.ListRemoveRange(l, 1, 1)) }))
	assert.False(t, revert(d, s))

	s = captured(d, scope, func(tx *Txn) { require.NoError(t, tx.ListInsert(l, 1, node.Int(3))) })
	s.Merge(captured(d, scope, func(tx *Txn) { require.NoError(t, tx.ListRemoveRange(l, 0, 1)) }))
	assert.True(t, revert(d, s))
	assert.JSONEq(t, `{"l":[1]}`, snapshotJSON(t, d))
}

func TestRevert_NestedBranchKeepsIdentity(t *testing.T) {
	d := newTestDoc(t, 1)
	l := d.GetOrCreate("l", KindList)
	var nested *Branch
	write(d, func(tx *Txn) {
		var err error
		nested, err = tx.ListInsertBranch(l, 0, KindMap)
		require.NoError(t, err)
		tx.MapSet(nested, "k", node.Bool(true))
	})

	s := captured(d, []*Branch{l}, func(tx *Txn) { require.NoError(t, tx.ListRemoveRange(l, 0, 1)) })
	assert.True(t, revert(d, s))

	write(d, func(tx *Txn) {
		got, ok := tx.ListGet(l, 0)
		require.True(t, ok)
		b, ok := got.AsBranch(KindMap)
		require.True(t, ok)
		assert.Same(t, nested, b)
	})
	assert.JSONEq(t, `{"l":[{"k":true}]}`, snapshotJSON(t, d))
}

func TestRevert_FollowsRestoredCopies(t *testing.T) {
	d := newTestDoc(t, 1)
	m := d.GetOrCreate("m", KindMap)
	scope := []*Branch{m}

	set1 := captured(d, scope, func(tx *Txn) { tx.MapSet(m, "k", node.Int(1)) })
	set2 := captured(d, scope, func(tx *Txn) { tx.MapSet(m, "k", node.Int(2)) })

	assert.True(t, revert(d, set2))
	assert.JSONEq(t, `{"m":{"k":1}}`, snapshotJSON(t, d))
	// The key now holds a copy of the first value; reverting the first set
	// still removes it.
	assert.True(t, revert(d, set1))
	assert.JSONEq(t, `{"m":{}}`, snapshotJSON(t, d))
}
