package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ycoord/internal/codec"
	"github.com/roach88/ycoord/internal/node"
)

var bold = codec.Attrs{"bold": true}

func TestText_AppendInsert(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	txt := GetText(d, "t")

	require.NoError(t, txt.Append(ctx, "hello"))
	require.NoError(t, txt.Insert(ctx, 5, ", world"))

	s, err := txt.String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", s)

	n, err := txt.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestText_OffsetsCountUTF16Units(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	txt := GetText(d, "t")

	require.NoError(t, txt.Append(ctx, "\u00e9\U0001F600!"))
	n, err := txt.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, txt.RemoveRange(ctx, 1, 2))
	s, err := txt.String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "\u00e9!", s)
}

func TestText_Errors(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	txt := GetText(d, "t")
	require.NoError(t, txt.Append(ctx, "abc"))

	assert.ErrorIs(t, txt.Insert(ctx, -1, "x"), ErrNegativeIndex)
	assert.ErrorIs(t, txt.RemoveRange(ctx, 0, -1), ErrNegativeIndex)
	assert.True(t, IsIndexError(txt.Insert(ctx, 4, "x")))
	assert.True(t, IsIndexError(txt.Format(ctx, 2, 5, bold)))
}

func TestText_FormatAndDiff(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	txt := GetText(d, "t")

	require.NoError(t, txt.Append(ctx, "hello world"))
	require.NoError(t, txt.Format(ctx, 0, 5, bold))

	chunks, err := txt.Diff(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{
		{Text: "hello", Attrs: bold},
		{Text: " world"},
	}, chunks)

	require.NoError(t, txt.Format(ctx, 0, 5, codec.Attrs{"bold": nil}))
	chunks, err = txt.Diff(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{{Text: "hello world"}}, chunks)

	s, err := txt.String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello world", s, "formatting leaves content alone")
}

func TestText_InsertWithAttributes(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	txt := GetText(d, "t")

	require.NoError(t, txt.InsertWithAttributes(ctx, 0, "big", codec.Attrs{"size": 20}))
	require.NoError(t, txt.Append(ctx, "ger"))
	require.NoError(t, txt.InsertWithAttributes(ctx, 6, ".", nil))

	chunks, err := txt.Diff(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "bigger", chunks[0].Text)
	assert.True(t, chunks[0].Attrs.Equal(codec.Attrs{"size": 20}))
	assert.Equal(t, Chunk{Text: "."}, chunks[1])
}

func TestText_InsertEmbed(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	txt := GetText(d, "t")
	require.NoError(t, txt.Append(ctx, "ab"))

	require.NoError(t, InsertEmbed(ctx, txt, 1, point{X: 1, Y: 2}, bold))

	n, err := txt.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "an embed occupies one position")
	s, err := txt.String(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ab", s)

	chunks, err := txt.Diff(ctx)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.True(t, chunks[1].IsEmbed())
	p, ok := codec.Decode[point](chunks[1].Embed)
	assert.True(t, ok)
	assert.Equal(t, point{X: 1, Y: 2}, p)
	assert.Equal(t, bold, chunks[1].Attrs)
}

func TestText_ApplyDelta(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	txt := GetText(d, "t")
	require.NoError(t, txt.Append(ctx, "hello world"))

	require.NoError(t, txt.ApplyDelta(ctx, []TextDelta{
		{Op: DeltaRetain, Len: 5, Attrs: bold},
		{Op: DeltaRetain, Len: 1},
		{Op: DeltaDelete, Len: 5},
		{Op: DeltaInsert, Text: "there"},
		{Op: DeltaInsert, Embed: node.String("!")},
	}))

	chunks, err := txt.Diff(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{
		{Text: "hello", Attrs: bold},
		{Text: " there"},
		{Embed: node.String("!")},
	}, chunks)

	err = txt.ApplyDelta(ctx, []TextDelta{{Op: DeltaDelete, Len: -1}})
	assert.ErrorIs(t, err, ErrNegativeIndex)
}

func TestText_ApplyDeltaIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	d := newTestDocument(t, 1)
	txt := GetText(d, "t")
	require.NoError(t, txt.Append(ctx, "hello"))
	require.NoError(t, txt.Format(ctx, 0, 2, bold))

	before, err := txt.Diff(ctx)
	require.NoError(t, err)

	var changes collector[[]TextDelta]
	sub := txt.Observe(changes.add, WithDispatch(SyncDuringCommit))
	defer sub.Cancel()

	tests := []struct {
		name  string
		delta []TextDelta
	}{
		{"retain past end after insert", []TextDelta{
			{Op: DeltaInsert, Text: "X"},
			{Op: DeltaRetain, Len: 10},
		}},
		{"delete past end after format", []TextDelta{
			{Op: DeltaRetain, Len: 2, Attrs: codec.Attrs{"italic": true}},
			{Op: DeltaDelete, Len: 4},
		}},
		{"retain after delete shrinks text", []TextDelta{
			{Op: DeltaDelete, Len: 3},
			{Op: DeltaRetain, Len: 3},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := txt.ApplyDelta(ctx, tt.delta)
			require.Error(t, err)
			assert.True(t, IsIndexError(err))

			s, err := txt.String(ctx)
			require.NoError(t, err)
			assert.Equal(t, "hello", s)

			after, err := txt.Diff(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	assert.Empty(t, changes.get())
}
