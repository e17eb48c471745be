package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_InsertRemove(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	l := GetList[string](d, "l")

	require.NoError(t, l.InsertRange(ctx, 0, "x", "y", "z"))
	require.NoError(t, l.Remove(ctx, 1))

	got, err := l.ToSlice(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "z"}, got)
}

func TestList_AppendPrependInsert(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	l := GetList[int](d, "l")

	require.NoError(t, l.Append(ctx, 3, 4))
	require.NoError(t, l.Prepend(ctx, 1))
	require.NoError(t, l.Insert(ctx, 1, 2))

	got, err := l.ToSlice(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, got)

	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, l.RemoveRange(ctx, 1, 2))
	got, err = l.ToSlice(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, got)
}

func TestList_GetOutOfRangeIsAbsent(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	l := GetList[string](d, "l")
	require.NoError(t, l.Append(ctx, "a"))

	for _, idx := range []int{-1, 1, 100} {
		_, ok, err := l.Get(ctx, idx)
		require.NoError(t, err)
		assert.False(t, ok, "index %d", idx)
	}
	v, ok, err := l.Get(ctx, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestList_IndexErrors(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	l := GetList[string](d, "l")
	require.NoError(t, l.Append(ctx, "a"))

	assert.ErrorIs(t, l.Insert(ctx, -1, "x"), ErrNegativeIndex)
	assert.ErrorIs(t, l.Remove(ctx, -1), ErrNegativeIndex)
	assert.ErrorIs(t, l.Move(ctx, 0, -2), ErrNegativeIndex)

	err := l.Insert(ctx, 5, "x")
	require.Error(t, err)
	assert.True(t, IsIndexError(err))

	err = l.RemoveRange(ctx, 0, 3)
	require.Error(t, err)
	assert.True(t, IsIndexError(err))

	got, err := l.ToSlice(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got, "failed operations change nothing")
}

func TestList_Move(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		move   func(l *List[string]) error
		expect []string
	}{
		{"forward", func(l *List[string]) error { return l.Move(ctx, 0, 3) }, []string{"b", "c", "a", "d"}},
		{"backward", func(l *List[string]) error { return l.Move(ctx, 3, 0) }, []string{"d", "a", "b", "c"}},
		{"same place", func(l *List[string]) error { return l.Move(ctx, 1, 1) }, []string{"a", "b", "c", "d"}},
		{"range to end", func(l *List[string]) error { return l.MoveRange(ctx, 0, 1, 4) }, []string{"c", "d", "a", "b"}},
		{"range to front", func(l *List[string]) error { return l.MoveRange(ctx, 2, 3, 0) }, []string{"c", "d", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDocument(t, 1)
			l := GetList[string](d, "l")
			require.NoError(t, l.Append(ctx, "a", "b", "c", "d"))

			require.NoError(t, tt.move(l))
			got, err := l.ToSlice(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestList_Each(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	l := GetList[int](d, "l")
	require.NoError(t, l.Append(ctx, 10, 20, 30))

	var seen []int
	require.NoError(t, l.Each(ctx, func(i, v int) bool {
		seen = append(seen, i, v)
		return i < 1
	}))
	assert.Equal(t, []int{0, 10, 1, 20}, seen)
}

func TestList_NestedByIndex(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	l := GetList[string](d, "l")
	require.NoError(t, l.Append(ctx, "leaf"))

	nested, err := l.InsertNestedMap(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, RebindMap[int](nested).Set(ctx, "n", 1))

	m, ok, err := l.GetNestedMap(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.SameCollection(nested))

	_, ok, err = l.GetNestedText(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = l.GetNestedList(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// The nested map does not decode as a string; ToSlice skips it.
	got, err := l.ToSlice(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"leaf"}, got)
	n, err := l.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestList_NestedText(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	l := GetList[string](d, "l")

	txt, err := l.InsertNestedText(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, txt.Append(ctx, "note"))

	inner, err := l.InsertNestedList(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, RebindList[string](inner).Append(ctx, "deep"))

	out, err := d.QueryPath(ctx, "$.l[*]")
	require.NoError(t, err)
	assert.Equal(t, []string{`"note"`, `["deep"]`}, out)
}
