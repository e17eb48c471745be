package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ycoord/internal/node"
)

func TestUpdate_FullStateDiff(t *testing.T) {
	a := newTestDoc(t, 1)
	m := a.GetOrCreate("m", KindMap)
	txt := a.GetOrCreate("t", KindText)
	write(a, func(tx *Txn) {
		tx.MapSet(m, "n", node.Int(7))
		require.NoError(t, tx.TextInsertWithAttributes(txt, 0, "hi", bold))
	})

	var full []byte
	write(a, func(tx *Txn) {
		var err error
		full, err = tx.EncodeDiff(nil)
		require.NoError(t, err)
	})

	b := newTestDoc(t, 2)
	write(b, func(tx *Txn) { require.NoError(t, tx.ApplyUpdate(full)) })
	assert.Equal(t, snapshotJSON(t, a), snapshotJSON(t, b))

	tb, ok := b.Root("t")
	require.True(t, ok)
	write(b, func(tx *Txn) {
		assert.Equal(t, []Chunk{{Text: "hi", Attrs: bold}}, tx.TextDiff(tb))
	})
}

func TestUpdate_ApplyIsIdempotent(t *testing.T) {
	a := newTestDoc(t, 1)
	l := a.GetOrCreate("l", KindList)

	var update []byte
	write(a, func(tx *Txn) {
		require.NoError(t, tx.ListInsert(l, 0, strs("a", "b")...))
		update = tx.EncodeUpdate()
	})

	b := newTestDoc(t, 2)
	for range 3 {
		write(b, func(tx *Txn) { require.NoError(t, tx.ApplyUpdate(update)) })
	}
	assert.JSONEq(t, `{"l":["a","b"]}`, snapshotJSON(t, b))
}

func TestUpdate_OutOfOrderIsParked(t *testing.T) {
	a := newTestDoc(t, 1)
	l := a.GetOrCreate("l", KindList)

	var first, second []byte
	write(a, func(tx *Txn) {
		require.NoError(t, tx.ListInsert(l, 0, node.String("x")))
		first = tx.EncodeUpdate()
	})
	write(a, func(tx *Txn) {
		require.NoError(t, tx.ListInsert(l, 1, node.String("y")))
		second = tx.EncodeUpdate()
	})

	b := newTestDoc(t, 2)
	write(b, func(tx *Txn) { require.NoError(t, tx.ApplyUpdate(second)) })
	assert.JSONEq(t, `{}`, snapshotJSON(t, b))

	write(b, func(tx *Txn) { require.NoError(t, tx.ApplyUpdate(first)) })
	assert.JSONEq(t, `{"l":["x","y"]}`, snapshotJSON(t, b))
}

func TestUpdate_MalformedLeavesDocumentUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `nope`},
		{"trailing data", `{"ops":[]} {}`},
		{"unknown op", `{"ops":[{"t":"ins","id":{"c":9,"k":0},"l":1,"p":{"n":"m"},"pk":1,"key":"a","v":[{"t":"leaf","v":1}]},{"t":"bogus","id":{"c":9,"k":1},"l":2}]}`},
		{"missing client", `{"ops":[{"t":"del","id":{"c":0,"k":0},"l":1,"d":[{"c":1,"k":0}]}]}`},
		{"text into map", `{"ops":[{"t":"ins","id":{"c":9,"k":0},"l":1,"p":{"n":"m"},"pk":1,"key":"a","s":"hi"}]}`},
		{"root kind conflict", `{"ops":[{"t":"ins","id":{"c":9,"k":0},"l":1,"p":{"n":"existing"},"pk":2,"v":[{"t":"leaf","v":1}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDoc(t, 1)
			m := d.GetOrCreate("existing", KindMap)
			write(d, func(tx *Txn) { tx.MapSet(m, "k", node.Int(1)) })
			before := snapshotJSON(t, d)

			var err error
			write(d, func(tx *Txn) { err = tx.ApplyUpdate([]byte(tt.payload)) })
			require.Error(t, err)
			assert.True(t, IsDecodeError(err))
			assert.Equal(t, before, snapshotJSON(t, d))
			_, ok := d.Root("m")
			assert.False(t, ok)
		})
	}
}

func TestUpdate_ApplyUpdatesIsAllOrNothing(t *testing.T) {
	a := newTestDoc(t, 1)
	m := a.GetOrCreate("m", KindMap)
	var first, second []byte
	write(a, func(tx *Txn) {
		tx.MapSet(m, "x", node.Int(1))
		first = tx.EncodeUpdate()
	})
	write(a, func(tx *Txn) {
		tx.MapSet(m, "y", node.Int(2))
		second = tx.EncodeUpdate()
	})

	b := newTestDoc(t, 2)
	before := snapshotJSON(t, b)
	var err error
	write(b, func(tx *Txn) { err = tx.ApplyUpdates([][]byte{first, second, []byte("nope")}) })
	require.Error(t, err)
	assert.True(t, IsDecodeError(err))
	assert.Contains(t, err.Error(), "update 2")
	assert.Equal(t, before, snapshotJSON(t, b))

	// The same batch without the bad tail applies, in either order.
	write(b, func(tx *Txn) { require.NoError(t, tx.ApplyUpdates([][]byte{second, first, first})) })
	assert.Equal(t, snapshotJSON(t, a), snapshotJSON(t, b))
}

func TestUpdate_InvalidStateVector(t *testing.T) {
	d := newTestDoc(t, 1)
	write(d, func(tx *Txn) {
		_, err := tx.EncodeDiff([]byte(`{"x":1}`))
		assert.True(t, IsDecodeError(err))
	})
}

func TestUpdate_DiffAgainstStateVectorIsIncremental(t *testing.T) {
	a := newTestDoc(t, 1)
	m := a.GetOrCreate("m", KindMap)
	write(a, func(tx *Txn) { tx.MapSet(m, "a", node.Int(1)) })

	b := newTestDoc(t, 2)
	syncDocs(t, a, b)

	write(a, func(tx *Txn) { tx.MapSet(m, "b", node.Int(2)) })

	var sv, diff []byte
	write(b, func(tx *Txn) { sv = tx.StateVector() })
	write(a, func(tx *Txn) {
		var err error
		diff, err = tx.EncodeDiff(sv)
		require.NoError(t, err)
	})

	ops, err := decodeUpdate(diff)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "b", ops[0].key)
}

func TestObserveUpdate_ReplicatesTransactions(t *testing.T) {
	a := newTestDoc(t, 1)
	b := newTestDoc(t, 2)
	l := a.GetOrCreate("l", KindList)

	var updates [][]byte
	a.ObserveUpdate(func(_ *Txn, u []byte) { updates = append(updates, u) })

	write(a, func(tx *Txn) { require.NoError(t, tx.ListInsert(l, 0, strs("a", "b", "c")...)) })
	write(a, func(tx *Txn) { require.NoError(t, tx.ListRemoveRange(l, 1, 1)) })
	write(a, func(tx *Txn) { tx.Snapshot() })
	require.Len(t, updates, 2)

	for _, u := range updates {
		write(b, func(tx *Txn) { require.NoError(t, tx.ApplyUpdate(u)) })
	}
	assert.JSONEq(t, `{"l":["a","c"]}`, snapshotJSON(t, b))
}
