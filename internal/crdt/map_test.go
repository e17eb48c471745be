package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ycoord/internal/node"
)

func TestMap_SetGetRemove(t *testing.T) {
	d := newTestDoc(t, 1)
	m := d.GetOrCreate("m", KindMap)

	write(d, func(tx *Txn) {
		tx.MapSet(m, "b", node.Int(2))
		tx.MapSet(m, "a", node.String("one"))

		got, ok := tx.MapGet(m, "a")
		require.True(t, ok)
		assert.Equal(t, Out{Kind: OutLeaf, Leaf: node.String("one")}, got)
		assert.Equal(t, 2, tx.MapLen(m))
		assert.Equal(t, []string{"a", "b"}, tx.MapKeys(m))

		prev, ok := tx.MapRemove(m, "b")
		require.True(t, ok)
		assert.Equal(t, node.Int(2), prev.Leaf)

		_, ok = tx.MapGet(m, "b")
		assert.False(t, ok)
		_, ok = tx.MapRemove(m, "b")
		assert.False(t, ok)
	})
	assert.JSONEq(t, `{"m":{"a":"one"}}`, snapshotJSON(t, d))
}

func TestMap_SetReplaces(t *testing.T) {
	d := newTestDoc(t, 1)
	m := d.GetOrCreate("m", KindMap)

	write(d, func(tx *Txn) {
		tx.MapSet(m, "k", node.Int(1))
		tx.MapSet(m, "k", node.Int(2))
		got, _ := tx.MapGet(m, "k")
		assert.Equal(t, node.Int(2), got.Leaf)
		assert.Equal(t, 1, tx.MapLen(m))
	})
}

func TestMap_NestedBranch(t *testing.T) {
	d := newTestDoc(t, 1)
	m := d.GetOrCreate("m", KindMap)

	write(d, func(tx *Txn) {
		list := tx.MapSetBranch(m, "items", KindList)
		require.NoError(t, tx.ListInsert(list, 0, node.Int(1), node.Int(2)))

		got, ok := tx.MapGet(m, "items")
		require.True(t, ok)
		assert.Equal(t, OutList, got.Kind)
		nested, ok := got.AsBranch(KindList)
		require.True(t, ok)
		assert.Same(t, list, nested)

		_, ok = got.AsBranch(KindMap)
		assert.False(t, ok)
	})
	assert.JSONEq(t, `{"m":{"items":[1,2]}}`, snapshotJSON(t, d))
}

func TestMap_EntriesAndClear(t *testing.T) {
	d := newTestDoc(t, 1)
	m := d.GetOrCreate("m", KindMap)

	write(d, func(tx *Txn) {
		tx.MapSet(m, "y", node.Int(2))
		tx.MapSet(m, "x", node.Int(1))

		entries := tx.MapEntries(m)
		require.Len(t, entries, 2)
		assert.Equal(t, "x", entries[0].Key)
		assert.Equal(t, node.Int(1), entries[0].Value.Leaf)

		tx.MapClear(m)
		assert.Equal(t, 0, tx.MapLen(m))
		assert.Empty(t, tx.MapKeys(m))
	})
}

func TestMap_ConcurrentSetsConverge(t *testing.T) {
	a := newTestDoc(t, 1)
	b := newTestDoc(t, 2)
	ma := a.GetOrCreate("m", KindMap)
	mb := b.GetOrCreate("m", KindMap)

	write(a, func(tx *Txn) { tx.MapSet(ma, "k", node.String("a")) })
	write(b, func(tx *Txn) { tx.MapSet(mb, "k", node.String("b")) })
	syncDocs(t, a, b)

	assert.Equal(t, snapshotJSON(t, a), snapshotJSON(t, b))
}

func TestGetOrCreate_KindConflictPanics(t *testing.T) {
	d := newTestDoc(t, 1)
	m := d.GetOrCreate("root", KindMap)
	assert.Same(t, m, d.GetOrCreate("root", KindMap))
	assert.Panics(t, func() { d.GetOrCreate("root", KindList) })
}

func TestTxn_ClosedUsePanics(t *testing.T) {
	d := newTestDoc(t, 1)
	m := d.GetOrCreate("m", KindMap)

	tx := d.Begin("")
	tx.Commit()
	tx.Commit()
	assert.True(t, tx.Closed())
	assert.Panics(t, func() { tx.MapSet(m, "k", node.Int(1)) })
	assert.Panics(t, func() { tx.MapGet(m, "k") })
}

func TestTxn_SecondBeginPanics(t *testing.T) {
	d := newTestDoc(t, 1)
	tx := d.Begin("")
	assert.Panics(t, func() { d.Begin("") })
	tx.Commit()
	assert.NotPanics(t, func() { d.Begin("").Commit() })
}

func TestTxn_WrongBranchKindPanics(t *testing.T) {
	d := newTestDoc(t, 1)
	l := d.GetOrCreate("l", KindList)
	write(d, func(tx *Txn) {
		assert.Panics(t, func() { tx.MapLen(l) })
	})
}
