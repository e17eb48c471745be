package crdt

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ycoord/internal/node"
)

func newTestDoc(t *testing.T, client uint64) *Doc {
	t.Helper()
	return NewDoc(Options{GUID: fmt.Sprintf("doc-%d", client), ClientID: client, ShouldLoad: true})
}

// write runs fn in a committed transaction.
func write(d *Doc, fn func(tx *Txn)) {
	tx := d.Begin("test")
	defer tx.Commit()
	fn(tx)
}

func snapshotJSON(t *testing.T, d *Doc) string {
	t.Helper()
	var out string
	write(d, func(tx *Txn) {
		out = string(node.MustMarshal(tx.Snapshot()))
	})
	return out
}

// syncDocs exchanges state-vector diffs in both directions.
func syncDocs(t *testing.T, a, b *Doc) {
	t.Helper()
	var svA, svB, diffA, diffB []byte
	write(a, func(tx *Txn) { svA = tx.StateVector() })
	write(b, func(tx *Txn) { svB = tx.StateVector() })

	var err error
	write(a, func(tx *Txn) { diffA, err = tx.EncodeDiff(svB) })
	require.NoError(t, err)
	write(b, func(tx *Txn) { diffB, err = tx.EncodeDiff(svA) })
	require.NoError(t, err)

	write(a, func(tx *Txn) { err = tx.ApplyUpdate(diffB) })
	require.NoError(t, err)
	write(b, func(tx *Txn) { err = tx.ApplyUpdate(diffA) })
	require.NoError(t, err)
}

func leaves(t *testing.T, outs []Out) []node.Node {
	t.Helper()
	vals := make([]node.Node, len(outs))
	for i, o := range outs {
		v, ok := o.AsLeaf()
		require.True(t, ok, "element %d is a %s", i, o.Kind)
		vals[i] = v
	}
	return vals
}
