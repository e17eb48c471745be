package crdt

import (
	"unicode/utf16"

	"github.com/roach88/ycoord/internal/node"
)

type opKind uint8

const (
	opInsert opKind = iota + 1
	opDelete
	opFormat
)

// op is one integrated (or pending) operation. An insert into a sequence
// occupies one clock tick per element; every other op occupies one tick.
type op struct {
	kind    opKind
	id      ID
	lamport uint64

	// Insert target. parentKind lets a replica create a root it has not
	// seen yet.
	parent     BranchRef
	parentKind Kind
	key        string
	origin     *ID
	values     []content
	text       string
	attrs      node.Object

	// Delete and format targets.
	targets []ID
}

func (o *op) length() uint64 {
	if o.kind != opInsert {
		return 1
	}
	if o.text != "" {
		return uint64(len(utf16.Encode([]rune(o.text))))
	}
	return uint64(len(o.values))
}

// units returns the inserted contents, expanding text into one unit per
// UTF-16 code unit.
func (o *op) units() []content {
	if o.text == "" {
		return o.values
	}
	enc := utf16.Encode([]rune(o.text))
	out := make([]content, len(enc))
	for i, u := range enc {
		out[i] = content{kind: contentUnit, unit: u}
	}
	return out
}

// applyLocal stamps and integrates a freshly built local op.
func (tx *Txn) applyLocal(o *op) {
	tx.checkWritable()
	o.id, o.lamport = tx.doc.nextStamp()
	if !tx.doc.ready(o) {
		panic("crdt: local operation with unresolved dependencies")
	}
	tx.integrate(o)
}

// ready reports whether every dependency of o has been integrated.
func (d *Doc) ready(o *op) bool {
	if o.id.Clock != d.sv[o.id.Client] {
		return false
	}
	if o.kind == opInsert {
		if o.parent.Nested {
			if b, ok := d.branch(o.parent); !ok || b.kind != o.parentKind {
				return false
			}
		}
		if o.origin != nil {
			if _, ok := d.items[*o.origin]; !ok {
				return false
			}
		}
		for _, c := range o.values {
			if c.kind == contentRef {
				if _, ok := d.branch(c.ref); !ok {
					return false
				}
			}
		}
	}
	for _, t := range o.targets {
		if _, ok := d.items[t]; !ok {
			return false
		}
	}
	return true
}

// integrated reports whether o was already applied on this replica.
func (d *Doc) integrated(o *op) bool {
	return o.id.Clock < d.sv[o.id.Client]
}

func (tx *Txn) integrate(o *op) {
	d := tx.doc
	switch o.kind {
	case opInsert:
		tx.integrateInsert(o)
	case opDelete:
		for _, t := range o.targets {
			tx.deleteItem(d.items[t])
		}
	case opFormat:
		tx.integrateFormat(o)
	}

	n := o.length()
	d.sv[o.id.Client] = o.id.Clock + n
	d.lamport = max(d.lamport, o.lamport+n-1)
	d.log[o.id.Client] = append(d.log[o.id.Client], o)
	tx.ops = append(tx.ops, o)
}

func (tx *Txn) parentBranch(o *op) *Branch {
	d := tx.doc
	if b, ok := d.branch(o.parent); ok {
		return b
	}
	return d.GetOrCreate(o.parent.Name, o.parentKind)
}

func (tx *Txn) integrateInsert(o *op) {
	d := tx.doc
	parent := tx.parentBranch(o)

	origin := o.origin
	for i, c := range o.units() {
		id := ID{Client: o.id.Client, Clock: o.id.Clock + uint64(i)}
		it := &item{
			id:     id,
			stamp:  stamp{lamport: o.lamport + uint64(i), client: o.id.Client},
			parent: parent,
			key:    o.key,
		}
		if origin != nil {
			org := *origin
			it.origin = &org
		}
		it.content = tx.resolveContent(id, c)
		for k, v := range o.attrs {
			if _, isNull := v.(node.Null); isNull || v == nil {
				continue
			}
			if it.attrs == nil {
				it.attrs = make(map[string]attr, len(o.attrs))
			}
			it.attrs[k] = attr{value: v, stamp: it.stamp}
		}
		d.items[id] = it
		tx.created[id] = true

		if parent.kind == KindMap {
			tx.noteKey(parent, o.key)
			cur := parent.entries[o.key]
			switch {
			case cur == nil || cur.stamp.less(it.stamp):
				if cur != nil && !cur.deleted {
					tx.deleteItem(cur)
				}
				parent.entries[o.key] = it
			default:
				// Lost to a concurrent write with a higher stamp.
				it.deleted = true
				tx.detachContent(it)
			}
		} else {
			parent.integrateSeq(it)
			tx.markChanged(parent)
		}
		origin = &id
	}
}

// resolveContent binds a wire content to live branch and document pointers.
func (tx *Txn) resolveContent(id ID, c content) content {
	d := tx.doc
	switch c.kind {
	case contentBranch:
		b := newBranch(d, BranchRef{Item: id, Nested: true}, c.branchKind)
		d.registerBranch(b)
		c.branch = b
	case contentRef:
		c.branch, _ = d.branch(c.ref)
	case contentDoc:
		child := c.doc
		if child == nil {
			child = d.subdocs[c.guid]
		}
		if child == nil {
			child = NewDoc(Options{GUID: c.guid, AutoLoad: c.autoLoad, ShouldLoad: c.autoLoad})
		}
		child.setParent(d)
		c.doc = child
		c.guid = child.guid
		tx.attachSubdoc(id, child)
	}
	return c
}

func (tx *Txn) attachSubdoc(owner ID, child *Doc) {
	d := tx.doc
	prev, known := d.subdocs[child.guid]
	d.subdocs[child.guid] = child
	d.subdocOwner[child.guid] = owner
	if known && prev == child {
		return
	}
	if known {
		tx.noteRemoved(prev)
	}
	tx.noteAdded(child)
	if child.ShouldLoad() {
		tx.noteLoaded(child)
	}
}

// detachContent releases what a deleted item owned.
func (tx *Txn) detachContent(it *item) {
	if it.content.kind != contentDoc || it.content.doc == nil {
		return
	}
	d := tx.doc
	child := it.content.doc
	if d.subdocOwner[child.guid] != it.id || d.subdocs[child.guid] != child {
		return
	}
	delete(d.subdocs, child.guid)
	delete(d.subdocOwner, child.guid)
	tx.noteRemoved(child)
}

func (tx *Txn) deleteItem(it *item) {
	if it == nil || it.deleted {
		return
	}
	parent := it.parent
	if parent.kind == KindMap {
		tx.noteKey(parent, it.key)
	} else {
		tx.markChanged(parent)
	}
	it.deleted = true
	tx.deleted[it.id] = true
	tx.detachContent(it)
}

func (tx *Txn) integrateFormat(o *op) {
	d := tx.doc
	s := stamp{lamport: o.lamport, client: o.id.Client}
	for _, t := range o.targets {
		it := d.items[t]
		changed := false
		for k, v := range o.attrs {
			if v == nil {
				v = node.Null{}
			}
			cur, has := it.attrs[k]
			if has && !cur.stamp.less(s) {
				continue
			}
			if it.attrs == nil {
				it.attrs = make(map[string]attr)
			}
			it.attrs[k] = attr{value: v, stamp: s}
			if !visibleAttrEqual(cur.value, has, v) {
				if it.deleted || tx.created[it.id] {
					continue
				}
				fm := tx.formatted[it.id]
				if fm == nil {
					fm = make(node.Object)
					tx.formatted[it.id] = fm
				}
				fm[k] = v
				tx.noteFormat(it.id, k, cur.value, has)
				changed = true
			}
		}
		if changed {
			tx.markChanged(it.parent)
		}
	}
}

// noteFormat records the visible value of attribute k before its first
// change in this transaction.
func (tx *Txn) noteFormat(id ID, k string, before node.Node, had bool) {
	fb := tx.formatBefore[id]
	if fb == nil {
		fb = make(node.Object)
		tx.formatBefore[id] = fb
	}
	if _, seen := fb[k]; seen {
		return
	}
	if !had || before == nil {
		before = node.Null{}
	}
	fb[k] = before
}

func visibleAttrEqual(before node.Node, had bool, after node.Node) bool {
	_, beforeNull := before.(node.Null)
	_, afterNull := after.(node.Null)
	if !had || before == nil || beforeNull {
		return afterNull
	}
	return node.Equal(before, after)
}

// integratePending retries parked ops until no further progress is made.
func (tx *Txn) integratePending() {
	d := tx.doc
	for progress := true; progress; {
		progress = false
		rest := d.pending[:0]
		for _, o := range d.pending {
			switch {
			case d.integrated(o):
				progress = true
			case d.ready(o):
				tx.integrate(o)
				tx.remote = true
				progress = true
			default:
				rest = append(rest, o)
			}
		}
		clear(d.pending[len(rest):])
		d.pending = rest
	}
}
