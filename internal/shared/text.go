package shared

import (
	"context"
	"fmt"

	"github.com/roach88/ycoord/internal/codec"
	"github.com/roach88/ycoord/internal/crdt"
	"github.com/roach88/ycoord/internal/node"
)

// Text is a proxy over a rich-text collection. Offsets and lengths count
// UTF-16 code units; an embed occupies one position.
type Text struct {
	doc    *Document
	branch *crdt.Branch
}

// Chunk is one run of a text diff.
type Chunk struct {
	Text  string
	Embed node.Node
	Attrs codec.Attrs
}

// IsEmbed reports whether the chunk is an embed rather than a text run.
func (c Chunk) IsEmbed() bool {
	return c.Embed != nil
}

// GetText returns the root text called name, creating it on first use.
// Panics if name already holds a root of another kind.
func GetText(d *Document, name string) *Text {
	return &Text{doc: d, branch: d.doc.GetOrCreate(name, crdt.KindText)}
}

// Document returns the owning document.
func (t *Text) Document() *Document {
	return t.doc
}

// SameCollection reports whether t and other are bound to the same
// underlying collection.
func (t *Text) SameCollection(other *Text) bool {
	return other != nil && t.branch == other.branch
}

func (t *Text) engineBranch() *crdt.Branch {
	return t.branch
}

// AppendTx adds s at the end, with the attributes of the last character.
func (t *Text) AppendTx(tx *Txn, s string) error {
	tx.check(t.doc)
	return tx.raw.TextInsert(t.branch, tx.raw.TextLen(t.branch), s)
}

// Append is AppendTx in its own transaction.
func (t *Text) Append(ctx context.Context, s string) error {
	return t.doc.Transact(ctx, func(tx *Txn) error { return t.AppendTx(tx, s) })
}

// InsertTx inserts s at index with the attributes of the character to its
// left.
func (t *Text) InsertTx(tx *Txn, index int, s string) error {
	tx.check(t.doc)
	if err := checkIndex("text insert", index); err != nil {
		return err
	}
	return tx.raw.TextInsert(t.branch, index, s)
}

// Insert is InsertTx in its own transaction.
func (t *Text) Insert(ctx context.Context, index int, s string) error {
	return t.doc.Transact(ctx, func(tx *Txn) error { return t.InsertTx(tx, index, s) })
}

// InsertWithAttributesTx inserts s at index carrying exactly attrs.
func (t *Text) InsertWithAttributesTx(tx *Txn, index int, s string, attrs codec.Attrs) error {
	tx.check(t.doc)
	if err := checkIndex("text insert", index); err != nil {
		return err
	}
	obj, err := codec.EncodeAttrs(attrs)
	if err != nil {
		return fmt.Errorf("text insert: %w", err)
	}
	return tx.raw.TextInsertWithAttributes(t.branch, index, s, obj)
}

// InsertWithAttributes is InsertWithAttributesTx in its own transaction.
func (t *Text) InsertWithAttributes(ctx context.Context, index int, s string, attrs codec.Attrs) error {
	return t.doc.Transact(ctx, func(tx *Txn) error { return t.InsertWithAttributesTx(tx, index, s, attrs) })
}

// InsertEmbedTx inserts v as an embed at index.
func InsertEmbedTx[V any](tx *Txn, t *Text, index int, v V, attrs codec.Attrs) error {
	tx.check(t.doc)
	if err := checkIndex("text insert", index); err != nil {
		return err
	}
	n, err := codec.Encode(v)
	if err != nil {
		return fmt.Errorf("text embed: %w", err)
	}
	obj, err := codec.EncodeAttrs(attrs)
	if err != nil {
		return fmt.Errorf("text embed: %w", err)
	}
	return tx.raw.TextInsertEmbed(t.branch, index, n, obj)
}

// InsertEmbed is InsertEmbedTx in its own transaction.
func InsertEmbed[V any](ctx context.Context, t *Text, index int, v V, attrs codec.Attrs) error {
	return t.doc.Transact(ctx, func(tx *Txn) error { return InsertEmbedTx(tx, t, index, v, attrs) })
}

// FormatTx applies attrs to n positions from index. A nil attribute value
// removes the attribute.
func (t *Text) FormatTx(tx *Txn, index, n int, attrs codec.Attrs) error {
	tx.check(t.doc)
	if err := checkIndex("text format", index, n); err != nil {
		return err
	}
	obj, err := codec.EncodeAttrs(attrs)
	if err != nil {
		return fmt.Errorf("text format: %w", err)
	}
	return tx.raw.TextFormat(t.branch, index, n, obj)
}

// Format is FormatTx in its own transaction.
func (t *Text) Format(ctx context.Context, index, n int, attrs codec.Attrs) error {
	return t.doc.Transact(ctx, func(tx *Txn) error { return t.FormatTx(tx, index, n, attrs) })
}

// RemoveRangeTx removes n positions from index.
func (t *Text) RemoveRangeTx(tx *Txn, index, n int) error {
	tx.check(t.doc)
	if err := checkIndex("text remove", index, n); err != nil {
		return err
	}
	return tx.raw.TextRemoveRange(t.branch, index, n)
}

// RemoveRange is RemoveRangeTx in its own transaction.
func (t *Text) RemoveRange(ctx context.Context, index, n int) error {
	return t.doc.Transact(ctx, func(tx *Txn) error { return t.RemoveRangeTx(tx, index, n) })
}

// StringTx returns the text content without embeds.
func (t *Text) StringTx(tx *Txn) string {
	tx.check(t.doc)
	return tx.raw.TextString(t.branch)
}

// String is StringTx in its own transaction.
func (t *Text) String(ctx context.Context) (string, error) {
	return read(ctx, t.doc, t.StringTx)
}

// LenTx returns the length in UTF-16 code units, embeds counting one each.
func (t *Text) LenTx(tx *Txn) int {
	tx.check(t.doc)
	return tx.raw.TextLen(t.branch)
}

// Len is LenTx in its own transaction.
func (t *Text) Len(ctx context.Context) (int, error) {
	return read(ctx, t.doc, t.LenTx)
}

// ApplyDeltaTx applies delta from offset zero as one edit. If any entry is
// invalid nothing is applied.
func (t *Text) ApplyDeltaTx(tx *Txn, delta []TextDelta) error {
	tx.check(t.doc)
	raw := make([]crdt.Delta, len(delta))
	for i, d := range delta {
		if d.Len < 0 {
			return fmt.Errorf("text delta %d: %w", i, ErrNegativeIndex)
		}
		attrs, err := codec.EncodeAttrs(d.Attrs)
		if err != nil {
			return fmt.Errorf("text delta %d: %w", i, err)
		}
		raw[i] = crdt.Delta{Op: d.Op, Text: d.Text, Embed: d.Embed, Len: d.Len, Attrs: attrs}
	}
	return tx.raw.TextApplyDelta(t.branch, raw)
}

// ApplyDelta is ApplyDeltaTx in its own transaction.
func (t *Text) ApplyDelta(ctx context.Context, delta []TextDelta) error {
	return t.doc.Transact(ctx, func(tx *Txn) error { return t.ApplyDeltaTx(tx, delta) })
}

// DiffTx returns the content as runs of identically formatted text and
// single embeds.
func (t *Text) DiffTx(tx *Txn) []Chunk {
	tx.check(t.doc)
	raw := tx.raw.TextDiff(t.branch)
	out := make([]Chunk, len(raw))
	for i, c := range raw {
		out[i] = Chunk{Text: c.Text, Embed: c.Embed, Attrs: codec.DecodeAttrs(c.Attrs)}
	}
	return out
}

// Diff is DiffTx in its own transaction.
func (t *Text) Diff(ctx context.Context) ([]Chunk, error) {
	return read(ctx, t.doc, t.DiffTx)
}

// Observe registers fn for changes to the text.
func (t *Text) Observe(fn func([]TextDelta), opts ...ObserveOption) *Subscription {
	return observeBranch(t.doc, t.branch, textDeltas, fn, opts)
}

// ObserveTx registers a SyncDuringCommit listener that receives the
// committing transaction. The listener may read through tx; writes panic.
func (t *Text) ObserveTx(fn func(tx *Txn, delta []TextDelta)) *Subscription {
	return observeBranchTx(t.doc, t.branch, textDeltas, fn)
}

// Stream delivers change batches on a channel until ctx is done.
func (t *Text) Stream(ctx context.Context) <-chan []TextDelta {
	return stream(ctx, func(fn func([]TextDelta)) *Subscription { return t.Observe(fn) })
}
