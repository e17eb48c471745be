package crdt

import (
	"strings"
	"unicode/utf16"

	"github.com/roach88/ycoord/internal/node"
)

// Chunk is one run of a text diff: either a string of units sharing the same
// attributes, or a single embed.
type Chunk struct {
	Text  string
	Embed node.Node
	Attrs node.Object
}

// TextInsert inserts s at the UTF-16 offset index. The new text takes the
// attributes of the character to its left.
func (tx *Txn) TextInsert(b *Branch, index int, s string) error {
	tx.checkBranch(b, KindText)
	var attrs node.Object
	if index > 0 {
		if left, _ := b.visibleAt(index - 1); left != nil {
			attrs = left.attrObject()
		}
	}
	return tx.textInsert(b, index, s, attrs)
}

// TextInsertWithAttributes inserts s carrying exactly attrs.
func (tx *Txn) TextInsertWithAttributes(b *Branch, index int, s string, attrs node.Object) error {
	tx.checkBranch(b, KindText)
	return tx.textInsert(b, index, s, attrs)
}

func (tx *Txn) textInsert(b *Branch, index int, s string, attrs node.Object) error {
	if s == "" {
		if n := b.visibleLen(); index < 0 || index > n {
			return &IndexError{Op: "text insert", Index: index, Len: n}
		}
		return nil
	}
	_, err := tx.seqInsert(b, "text insert", index, nil, s, attrs)
	return err
}

// TextInsertEmbed inserts a non-text element at index. It occupies one
// position.
func (tx *Txn) TextInsertEmbed(b *Branch, index int, v node.Node, attrs node.Object) error {
	tx.checkBranch(b, KindText)
	if v == nil {
		v = node.Null{}
	}
	_, err := tx.seqInsert(b, "text insert", index, []content{{kind: contentEmbed, leaf: v}}, "", attrs)
	return err
}

// TextFormat applies attrs to n positions starting at index. A null value
// removes the attribute.
func (tx *Txn) TextFormat(b *Branch, index, n int, attrs node.Object) error {
	tx.checkBranch(b, KindText)
	l := b.visibleLen()
	if index < 0 || n < 0 || index+n > l {
		return &IndexError{Op: "text format", Index: index, Count: n, Len: l}
	}
	if n == 0 || len(attrs) == 0 {
		return nil
	}
	items := b.visibleItems()[index : index+n]
	targets := make([]ID, len(items))
	for i, it := range items {
		targets[i] = it.id
	}
	tx.applyLocal(&op{kind: opFormat, targets: targets, attrs: attrs})
	return nil
}

// TextRemoveRange removes n positions starting at index.
func (tx *Txn) TextRemoveRange(b *Branch, index, n int) error {
	tx.checkBranch(b, KindText)
	return tx.seqRemove(b, "text remove", index, n)
}

// TextString returns the text content. Embeds are skipped.
func (tx *Txn) TextString(b *Branch) string {
	tx.checkBranch(b, KindText)
	return textString(b)
}

func textString(b *Branch) string {
	units := make([]uint16, 0, len(b.seq))
	for _, it := range b.seq {
		if !it.deleted && it.content.kind == contentUnit {
			units = append(units, it.content.unit)
		}
	}
	return string(utf16.Decode(units))
}

// TextLen returns the length in UTF-16 code units; each embed counts as one.
func (tx *Txn) TextLen(b *Branch) int {
	tx.checkBranch(b, KindText)
	return b.visibleLen()
}

// TextApplyDelta applies a sequence of insert, retain and delete entries
// starting at offset zero. The whole delta is checked against the current
// length first; an invalid entry anywhere leaves the text unchanged.
func (tx *Txn) TextApplyDelta(b *Branch, delta []Delta) error {
	tx.checkBranch(b, KindText)
	if err := checkDelta(b.visibleLen(), delta); err != nil {
		return err
	}
	pos := 0
	for _, d := range delta {
		switch d.Op {
		case DeltaInsert:
			if d.Embed != nil {
				if err := tx.TextInsertEmbed(b, pos, d.Embed, d.Attrs); err != nil {
					return err
				}
				pos++
				continue
			}
			if err := tx.textInsert(b, pos, d.Text, d.Attrs); err != nil {
				return err
			}
			pos += len(utf16.Encode([]rune(d.Text)))
		case DeltaRetain:
			if len(d.Attrs) > 0 {
				if err := tx.TextFormat(b, pos, d.Len, d.Attrs); err != nil {
					return err
				}
			} else if l := b.visibleLen(); pos+d.Len > l {
				return &IndexError{Op: "text retain", Index: pos, Count: d.Len, Len: l}
			}
			pos += d.Len
		case DeltaDelete:
			if err := tx.seqRemove(b, "text delete", pos, d.Len); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkDelta walks delta over a text of length l without touching it.
func checkDelta(l int, delta []Delta) error {
	pos := 0
	for _, d := range delta {
		switch d.Op {
		case DeltaInsert:
			n := 1
			if d.Embed == nil {
				n = len(utf16.Encode([]rune(d.Text)))
			}
			pos += n
			l += n
		case DeltaRetain:
			if d.Len < 0 || pos+d.Len > l {
				return &IndexError{Op: "text retain", Index: pos, Count: d.Len, Len: l}
			}
			pos += d.Len
		case DeltaDelete:
			if d.Len < 0 || pos+d.Len > l {
				return &IndexError{Op: "text delete", Index: pos, Count: d.Len, Len: l}
			}
			l -= d.Len
		default:
			return &IndexError{Op: "text delta " + d.Op.String(), Index: pos, Len: l}
		}
	}
	return nil
}

// TextDiff returns the content as runs of equally formatted text and embeds.
func (tx *Txn) TextDiff(b *Branch) []Chunk {
	tx.checkBranch(b, KindText)
	var out []Chunk
	var units []uint16
	var runAttrs node.Object
	flush := func() {
		if len(units) > 0 {
			out = append(out, Chunk{Text: string(utf16.Decode(units)), Attrs: runAttrs})
			units = nil
		}
	}
	for _, it := range b.visibleItems() {
		attrs := it.attrObject()
		if it.content.kind == contentEmbed {
			flush()
			out = append(out, Chunk{Embed: it.content.leaf, Attrs: attrs})
			continue
		}
		if len(units) > 0 && !node.Equal(attrs, runAttrs) {
			flush()
		}
		units = append(units, it.content.unit)
		runAttrs = attrs
	}
	flush()
	return out
}

// String renders a chunk for diagnostics.
func (c Chunk) String() string {
	var sb strings.Builder
	if c.Embed != nil {
		sb.WriteString("embed:")
		sb.Write(node.MustMarshal(c.Embed))
	} else {
		sb.WriteString(c.Text)
	}
	if len(c.Attrs) > 0 {
		sb.WriteByte(' ')
		sb.Write(node.MustMarshal(c.Attrs))
	}
	return sb.String()
}
