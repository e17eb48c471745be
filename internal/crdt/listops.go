package crdt

import (
	"github.com/roach88/ycoord/internal/node"
)

func (tx *Txn) seqInsert(b *Branch, opName string, idx int, values []content, text string, attrs node.Object) (ID, error) {
	if n := b.visibleLen(); idx < 0 || idx > n {
		return ID{}, &IndexError{Op: opName, Index: idx, Len: n}
	}
	o := &op{
		kind:       opInsert,
		parent:     b.ref,
		parentKind: b.kind,
		origin:     b.originFor(idx),
		values:     values,
		text:       text,
		attrs:      attrs,
	}
	tx.applyLocal(o)
	return o.id, nil
}

func (tx *Txn) seqRemove(b *Branch, opName string, idx, n int) error {
	l := b.visibleLen()
	if idx < 0 || n < 0 || idx+n > l {
		return &IndexError{Op: opName, Index: idx, Count: n, Len: l}
	}
	if n == 0 {
		return nil
	}
	items := b.visibleItems()[idx : idx+n]
	targets := make([]ID, len(items))
	for i, it := range items {
		targets[i] = it.id
	}
	tx.applyLocal(&op{kind: opDelete, targets: targets})
	return nil
}

// ListGet returns the element at index.
func (tx *Txn) ListGet(b *Branch, index int) (Out, bool) {
	tx.checkBranch(b, KindList)
	it, _ := b.visibleAt(index)
	if it == nil {
		return Out{}, false
	}
	return it.content.out(), true
}

// ListInsert inserts leaf values at index. Inserting at ListLen appends.
func (tx *Txn) ListInsert(b *Branch, index int, values ...node.Node) error {
	tx.checkBranch(b, KindList)
	if len(values) == 0 {
		return nil
	}
	cs := make([]content, len(values))
	for i, v := range values {
		if v == nil {
			v = node.Null{}
		}
		cs[i] = content{kind: contentLeaf, leaf: v}
	}
	_, err := tx.seqInsert(b, "list insert", index, cs, "", nil)
	return err
}

// ListInsertBranch inserts a new empty nested collection at index.
func (tx *Txn) ListInsertBranch(b *Branch, index int, kind Kind) (*Branch, error) {
	tx.checkBranch(b, KindList)
	id, err := tx.seqInsert(b, "list insert", index, []content{{kind: contentBranch, branchKind: kind}}, "", nil)
	if err != nil {
		return nil, err
	}
	return tx.doc.items[id].content.branch, nil
}

// ListInsertDoc integrates child as a subdocument at index.
func (tx *Txn) ListInsertDoc(b *Branch, index int, child *Doc) error {
	tx.checkBranch(b, KindList)
	c, err := tx.docContent(child)
	if err != nil {
		return err
	}
	_, err = tx.seqInsert(b, "list insert", index, []content{c}, "", nil)
	return err
}

// ListRemoveRange removes n elements starting at index.
func (tx *Txn) ListRemoveRange(b *Branch, index, n int) error {
	tx.checkBranch(b, KindList)
	return tx.seqRemove(b, "list remove", index, n)
}

// ListLen returns the number of visible elements.
func (tx *Txn) ListLen(b *Branch) int {
	tx.checkBranch(b, KindList)
	return b.visibleLen()
}

// ListValues returns every visible element in order.
func (tx *Txn) ListValues(b *Branch) []Out {
	tx.checkBranch(b, KindList)
	items := b.visibleItems()
	out := make([]Out, len(items))
	for i, it := range items {
		out[i] = it.content.out()
	}
	return out
}

// ListMove moves the element at source so that it lands before the element
// currently at target. Moving onto itself or its right neighbour is a no-op.
func (tx *Txn) ListMove(b *Branch, source, target int) error {
	return tx.ListMoveRange(b, source, source, target)
}

// ListMoveRange moves the inclusive range [start, end] so that it lands
// before the element currently at target. A target inside the range, or
// directly after it, is a no-op.
//
// A move re-inserts the elements and deletes the originals. Nested
// collections keep their identity; subdocuments keep their instance.
func (tx *Txn) ListMoveRange(b *Branch, start, end, target int) error {
	tx.checkBranch(b, KindList)
	l := b.visibleLen()
	if start < 0 || end < start || end >= l {
		return &IndexError{Op: "list move", Index: start, Count: end - start + 1, Len: l}
	}
	if target < 0 || target > l {
		return &IndexError{Op: "list move", Index: target, Len: l}
	}
	if target >= start && target <= end+1 {
		return nil
	}

	moved := b.visibleItems()[start : end+1]
	cs := make([]content, len(moved))
	targets := make([]ID, len(moved))
	for i, it := range moved {
		cs[i] = movedContent(it.content)
		targets[i] = it.id
	}
	if _, err := tx.seqInsert(b, "list move", target, cs, "", nil); err != nil {
		return err
	}
	tx.applyLocal(&op{kind: opDelete, targets: targets})
	return nil
}

// movedContent returns the content a moved copy of c carries.
func movedContent(c content) content {
	switch c.kind {
	case contentBranch, contentRef:
		return content{kind: contentRef, ref: c.branch.ref}
	case contentDoc:
		return content{kind: contentDoc, guid: c.guid, autoLoad: c.autoLoad, doc: c.doc}
	}
	return content{kind: c.kind, leaf: c.leaf, unit: c.unit}
}
