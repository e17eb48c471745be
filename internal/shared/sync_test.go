package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ycoord/internal/node"
)

// exchange brings a and b up to date with each other.
func exchange(t *testing.T, a, b *Document) {
	t.Helper()
	ctx := context.Background()
	svA, err := a.StateVector(ctx)
	require.NoError(t, err)
	svB, err := b.StateVector(ctx)
	require.NoError(t, err)

	diffA, err := a.EncodeDiff(ctx, svB)
	require.NoError(t, err)
	diffB, err := b.EncodeDiff(ctx, svA)
	require.NoError(t, err)

	require.NoError(t, a.ApplyUpdate(ctx, diffB))
	require.NoError(t, b.ApplyUpdate(ctx, diffA))
}

func TestSync_ReplicasConverge(t *testing.T) {
	ctx := context.Background()
	a := newTestDocument(t, 1)
	b := newTestDocument(t, 2)

	require.NoError(t, GetMap[int](a, "m").Set(ctx, "x", 1))
	require.NoError(t, GetList[string](b, "l").Append(ctx, "from-b"))
	require.NoError(t, GetText(a, "t").Append(ctx, "hi"))
	exchange(t, a, b)

	fa, err := a.Fingerprint(ctx)
	require.NoError(t, err)
	fb, err := b.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	snap, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"l":["from-b"],"m":{"x":1},"t":"hi"}`, string(node.MustMarshal(snap)))
}

func TestSync_ConcurrentSetsConverge(t *testing.T) {
	ctx := context.Background()
	a := newTestDocument(t, 1)
	b := newTestDocument(t, 2)

	require.NoError(t, GetMap[string](a, "m").Set(ctx, "k", "a"))
	require.NoError(t, GetMap[string](b, "m").Set(ctx, "k", "b"))
	exchange(t, a, b)

	va, _, err := GetMap[string](a, "m").Get(ctx, "k")
	require.NoError(t, err)
	vb, _, err := GetMap[string](b, "m").Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, va, vb)
}

func TestSync_FullStateDiff(t *testing.T) {
	ctx := context.Background()
	a := newTestDocument(t, 1)
	require.NoError(t, GetList[int](a, "l").Append(ctx, 1, 2, 3))

	full, err := a.EncodeDiff(ctx, nil)
	require.NoError(t, err)

	b := newTestDocument(t, 2)
	require.NoError(t, b.ApplyUpdate(ctx, full))
	got, err := GetList[int](b, "l").ToSlice(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestSync_MalformedUpdateLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	require.NoError(t, GetMap[int](d, "m").Set(ctx, "a", 1))
	before, err := d.Fingerprint(ctx)
	require.NoError(t, err)

	for _, payload := range [][]byte{
		[]byte("not json"),
		[]byte(`[{"t":"ins","id":"bogus"}]`),
		[]byte(`{"unexpected":true}`),
	} {
		err := d.ApplyUpdate(ctx, payload)
		require.Error(t, err, "payload %s", payload)
		assert.True(t, IsDecodeError(err), "payload %s: %v", payload, err)
	}

	after, err := d.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSync_EncodeUpdateTx(t *testing.T) {
	ctx := context.Background()
	a := newTestDocument(t, 1)
	m := GetMap[int](a, "m")

	var update []byte
	require.NoError(t, a.Transact(ctx, func(tx *Txn) error {
		if err := m.SetTx(tx, "k", 7); err != nil {
			return err
		}
		update = a.EncodeUpdateTx(tx)
		return nil
	}))

	b := newTestDocument(t, 2)
	require.NoError(t, b.ApplyUpdate(ctx, update))
	v, ok, err := GetMap[int](b, "m").Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestOnUpdate_RelaysToPeer(t *testing.T) {
	ctx := context.Background()
	a := newTestDocument(t, 1)
	b := newTestDocument(t, 2)

	var origins collector[string]
	sub := a.OnUpdate(func(update []byte, origin string) {
		origins.add(origin)
		require.NoError(t, b.ApplyUpdateOrigin(ctx, "peer", update))
	})
	defer sub.Cancel()

	require.NoError(t, GetText(a, "t").Append(ctx, "abc"))
	require.NoError(t, a.TransactOrigin(ctx, "import", func(tx *Txn) error {
		return GetText(a, "t").AppendTx(tx, "def")
	}))

	require.Eventually(t, func() bool {
		s, err := GetText(b, "t").String(ctx)
		return err == nil && s == "abcdef"
	}, waitFor, time.Millisecond)
	assert.Equal(t, []string{"test", "import"}, origins.get())
}

func TestOnUpdate_ReadOnlyTransactionIsSilent(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)

	var n collector[[]byte]
	sub := d.OnUpdate(func(u []byte, _ string) { n.add(u) })
	defer sub.Cancel()

	_, err := d.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, GetMap[int](d, "m").Set(ctx, "a", 1))
	n.waitLen(t, 1)
	assert.Len(t, n.get(), 1)
}

func TestQueryPath(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	require.NoError(t, GetMap[point](d, "points").Set(ctx, "p", point{X: 1, Y: 2}))

	got, err := d.QueryPath(ctx, "$.points.p.x")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, got)

	got, err = d.QueryPath(ctx, "$.points.q")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = d.QueryPath(ctx, "$[")
	require.Error(t, err)
	assert.True(t, IsPathError(err))
}
