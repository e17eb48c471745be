package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ycoord/internal/node"
)

var bold = node.Object{"bold": node.Bool(true)}

func TestText_InsertRemove(t *testing.T) {
	d := newTestDoc(t, 1)
	txt := d.GetOrCreate("t", KindText)

	write(d, func(tx *Txn) {
		require.NoError(t, tx.TextInsert(txt, 0, "hello"))
		require.NoError(t, tx.TextInsert(txt, 5, " world"))
		assert.Equal(t, "hello world", tx.TextString(txt))
		assert.Equal(t, 11, tx.TextLen(txt))

		require.NoError(t, tx.TextRemoveRange(txt, 0, 6))
		assert.Equal(t, "world", tx.TextString(txt))

		assert.True(t, IsIndexError(tx.TextInsert(txt, 6, "!")))
		assert.True(t, IsIndexError(tx.TextRemoveRange(txt, 3, 3)))
	})
}

func TestText_UTF16Offsets(t *testing.T) {
	d := newTestDoc(t, 1)
	txt := d.GetOrCreate("t", KindText)

	write(d, func(tx *Txn) {
		require.NoError(t, tx.TextInsert(txt, 0, "a\U0001F600b"))
		assert.Equal(t, 4, tx.TextLen(txt))
		require.NoError(t, tx.TextRemoveRange(txt, 1, 2))
		assert.Equal(t, "ab", tx.TextString(txt))
	})
}

func TestText_FormatAndDiff(t *testing.T) {
	d := newTestDoc(t, 1)
	txt := d.GetOrCreate("t", KindText)

	write(d, func(tx *Txn) {
		require.NoError(t, tx.TextInsert(txt, 0, "hello world"))
		require.NoError(t, tx.TextFormat(txt, 0, 5, bold))
		assert.Equal(t, []Chunk{
			{Text: "hello", Attrs: bold},
			{Text: " world"},
		}, tx.TextDiff(txt))

		require.NoError(t, tx.TextFormat(txt, 0, 2, node.Object{"bold": node.Null{}}))
		assert.Equal(t, []Chunk{
			{Text: "he"},
			{Text: "llo", Attrs: bold},
			{Text: " world"},
		}, tx.TextDiff(txt))
	})
}

func TestText_InsertInheritsLeftAttributes(t *testing.T) {
	d := newTestDoc(t, 1)
	txt := d.GetOrCreate("t", KindText)

	write(d, func(tx *Txn) {
		require.NoError(t, tx.TextInsertWithAttributes(txt, 0, "hello", bold))
		require.NoError(t, tx.TextInsert(txt, 5, "!"))
		require.NoError(t, tx.TextInsertWithAttributes(txt, 6, "?", nil))
		assert.Equal(t, []Chunk{
			{Text: "hello!", Attrs: bold},
			{Text: "?"},
		}, tx.TextDiff(txt))
	})
}

func TestText_Embed(t *testing.T) {
	d := newTestDoc(t, 1)
	txt := d.GetOrCreate("t", KindText)
	img := node.Object{"src": node.String("a.png")}

	write(d, func(tx *Txn) {
		require.NoError(t, tx.TextInsert(txt, 0, "ab"))
		require.NoError(t, tx.TextInsertEmbed(txt, 1, img, bold))
		assert.Equal(t, 3, tx.TextLen(txt))
		assert.Equal(t, "ab", tx.TextString(txt))
		assert.Equal(t, []Chunk{
			{Text: "a"},
			{Embed: img, Attrs: bold},
			{Text: "b"},
		}, tx.TextDiff(txt))
	})
}

func TestText_ApplyDelta(t *testing.T) {
	d := newTestDoc(t, 1)
	txt := d.GetOrCreate("t", KindText)

	write(d, func(tx *Txn) {
		require.NoError(t, tx.TextInsert(txt, 0, "hello world"))
		require.NoError(t, tx.TextApplyDelta(txt, []Delta{
			{Op: DeltaRetain, Len: 6},
			{Op: DeltaDelete, Len: 5},
			{Op: DeltaInsert, Text: "there", Attrs: bold},
			{Op: DeltaInsert, Embed: node.String("!")},
		}))
		assert.Equal(t, []Chunk{
			{Text: "hello "},
			{Text: "there", Attrs: bold},
			{Embed: node.String("!")},
		}, tx.TextDiff(txt))

		err := tx.TextApplyDelta(txt, []Delta{{Op: DeltaRetain, Len: 100}})
		assert.True(t, IsIndexError(err))
	})
}

func TestText_ConcurrentFormatConverges(t *testing.T) {
	a := newTestDoc(t, 1)
	b := newTestDoc(t, 2)
	ta := a.GetOrCreate("t", KindText)
	tb := b.GetOrCreate("t", KindText)

	write(a, func(tx *Txn) { require.NoError(t, tx.TextInsert(ta, 0, "abc")) })
	syncDocs(t, a, b)

	write(a, func(tx *Txn) { require.NoError(t, tx.TextFormat(ta, 0, 3, node.Object{"color": node.String("red")})) })
	write(b, func(tx *Txn) { require.NoError(t, tx.TextFormat(tb, 0, 3, node.Object{"color": node.String("blue")})) })
	syncDocs(t, a, b)

	var da, db []Chunk
	write(a, func(tx *Txn) { da = tx.TextDiff(ta) })
	write(b, func(tx *Txn) { db = tx.TextDiff(tb) })
	assert.Equal(t, da, db)
	require.Len(t, da, 1)
}
