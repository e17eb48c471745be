package crdt

import (
	"github.com/roach88/ycoord/internal/node"
)

type contentKind uint8

const (
	contentLeaf contentKind = iota + 1
	contentBranch
	contentRef
	contentDoc
	contentUnit
	contentEmbed
)

// content is the payload of one item. Branch and doc pointers are resolved
// at integration time; the remaining fields travel on the wire.
type content struct {
	kind       contentKind
	leaf       node.Node
	branchKind Kind
	ref        BranchRef
	guid       string
	autoLoad   bool
	unit       uint16

	branch *Branch
	doc    *Doc
}

func (c content) out() Out {
	switch c.kind {
	case contentLeaf, contentEmbed:
		return Out{Kind: OutLeaf, Leaf: c.leaf}
	case contentBranch, contentRef:
		if c.branch == nil {
			return Out{}
		}
		return Out{Kind: outKindOf(c.branch.kind), Branch: c.branch}
	case contentDoc:
		return Out{Kind: OutDoc, Doc: c.doc}
	}
	return Out{}
}

// attr is one formatting attribute of a text unit with the stamp of the
// write that set it.
type attr struct {
	value node.Node
	stamp stamp
}

// item is one map entry or one sequence element.
type item struct {
	id      ID
	stamp   stamp
	origin  *ID
	parent  *Branch
	key     string
	content content
	deleted bool
	attrs   map[string]attr

	// redone is the copy that restored this item after it was deleted.
	// Local to this replica.
	redone *item
}

// attrObject returns the item's visible attributes. Attributes set to null
// are removals and are omitted.
func (it *item) attrObject() node.Object {
	if len(it.attrs) == 0 {
		return nil
	}
	obj := make(node.Object, len(it.attrs))
	for k, a := range it.attrs {
		if _, isNull := a.value.(node.Null); isNull || a.value == nil {
			continue
		}
		obj[k] = a.value
	}
	if len(obj) == 0 {
		return nil
	}
	return obj
}

// Branch is one shared collection inside a Doc.
// A Branch is a reference; all reads and writes go through a Txn.
type Branch struct {
	doc  *Doc
	ref  BranchRef
	kind Kind

	entries map[string]*item
	seq     []*item
}

func newBranch(doc *Doc, ref BranchRef, kind Kind) *Branch {
	b := &Branch{doc: doc, ref: ref, kind: kind}
	if kind == KindMap {
		b.entries = make(map[string]*item)
	}
	return b
}

// Kind returns the collection kind.
func (b *Branch) Kind() Kind {
	return b.kind
}

// Ref returns the branch's stable reference.
func (b *Branch) Ref() BranchRef {
	return b.ref
}

// Doc returns the document that owns the branch.
func (b *Branch) Doc() *Doc {
	return b.doc
}

// indexOf returns the position of id in the sequence, or -1.
func (b *Branch) indexOf(id ID) int {
	for i, it := range b.seq {
		if it.id == id {
			return i
		}
	}
	return -1
}

// visibleLen counts elements that are not tombstones.
func (b *Branch) visibleLen() int {
	n := 0
	for _, it := range b.seq {
		if !it.deleted {
			n++
		}
	}
	return n
}

// visibleAt returns the element at visible index i and its sequence position.
func (b *Branch) visibleAt(i int) (*item, int) {
	if i < 0 {
		return nil, -1
	}
	n := 0
	for pos, it := range b.seq {
		if it.deleted {
			continue
		}
		if n == i {
			return it, pos
		}
		n++
	}
	return nil, -1
}

// visibleItems returns the elements that are not tombstones, in order.
func (b *Branch) visibleItems() []*item {
	out := make([]*item, 0, len(b.seq))
	for _, it := range b.seq {
		if !it.deleted {
			out = append(out, it)
		}
	}
	return out
}

// originFor returns the origin a new element inserted at visible index i
// should carry: the visible element immediately to its left.
func (b *Branch) originFor(i int) *ID {
	if i == 0 {
		return nil
	}
	left, _ := b.visibleAt(i - 1)
	if left == nil {
		return nil
	}
	id := left.id
	return &id
}

// integrateSeq places it into the sequence following RGA rules.
func (b *Branch) integrateSeq(it *item) {
	po := -1
	if it.origin != nil {
		po = b.indexOf(*it.origin)
	}
	i := po + 1
	for i < len(b.seq) {
		y := b.seq[i]
		oy := -1
		if y.origin != nil {
			oy = b.indexOf(*y.origin)
		}
		if oy < po {
			break
		}
		if oy == po && y.stamp.less(it.stamp) {
			break
		}
		i++
	}
	b.seq = append(b.seq, nil)
	copy(b.seq[i+1:], b.seq[i:])
	b.seq[i] = it
}
