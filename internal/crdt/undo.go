package crdt

import (
	"cmp"
	"maps"
	"slices"
	"unicode/utf16"

	"github.com/roach88/ycoord/internal/node"
)

// StackItem records what one or more local transactions did to a set of
// branches, in enough detail to revert it. Reverting never rewrites
// history: deleted elements come back as fresh copies placed where the
// originals were, so the revert itself travels to other replicas as an
// ordinary update.
type StackItem struct {
	inserted []ID
	deleted  []ID
	// formats holds the attribute values formatted items had before the
	// change. Null stands for absent.
	formats map[ID]node.Object
	keys    []keyEdit
}

// keyEdit is one map key that moved from before to after. Either may be nil.
type keyEdit struct {
	branch *Branch
	key    string
	before *item
	after  *item
}

func compareIDs(a, b ID) int {
	if c := cmp.Compare(a.Client, b.Client); c != 0 {
		return c
	}
	return cmp.Compare(a.Clock, b.Clock)
}

// follow returns the latest copy of it.
func follow(it *item) *item {
	for it != nil && it.redone != nil {
		it = it.redone
	}
	return it
}

// within reports whether b is one of scope or nested inside one of them.
func (d *Doc) within(b *Branch, scope []*Branch) bool {
	for b != nil {
		if slices.Contains(scope, b) {
			return true
		}
		if !b.ref.Nested {
			return false
		}
		owner := d.items[b.ref.Item]
		if owner == nil {
			return false
		}
		b = owner.parent
	}
	return false
}

// Capture returns the undo record of everything tx changed inside scope, or
// nil if it changed nothing there. Transactions that integrated an update
// are never captured: their changes belong to other replicas.
func (tx *Txn) Capture(scope []*Branch) *StackItem {
	tx.checkReadable()
	if tx.remote {
		return nil
	}
	d := tx.doc
	in := func(b *Branch) bool { return d.within(b, scope) }
	s := &StackItem{formats: make(map[ID]node.Object)}

	for id := range tx.created {
		it := d.items[id]
		if it.deleted || it.parent.kind == KindMap || !in(it.parent) {
			continue
		}
		s.inserted = append(s.inserted, id)
	}
	for id := range tx.deleted {
		it := d.items[id]
		if tx.created[id] || it.parent.kind == KindMap || !in(it.parent) {
			continue
		}
		s.deleted = append(s.deleted, id)
	}
	slices.SortFunc(s.inserted, compareIDs)
	slices.SortFunc(s.deleted, compareIDs)

	for id, before := range tx.formatBefore {
		if in(d.items[id].parent) {
			s.formats[id] = maps.Clone(before)
		}
	}

	for _, b := range tx.changed {
		log := tx.keysBefore[b]
		if log == nil || !in(b) {
			continue
		}
		for _, key := range log.order {
			before := log.before[key]
			var after *item
			if it := b.entries[key]; it != nil && !it.deleted {
				after = it
			}
			if before != after {
				s.keys = append(s.keys, keyEdit{branch: b, key: key, before: before, after: after})
			}
		}
	}

	if len(s.inserted) == 0 && len(s.deleted) == 0 && len(s.formats) == 0 && len(s.keys) == 0 {
		return nil
	}
	return s
}

// Merge folds next, captured after s, into s so that one revert undoes
// both.
func (s *StackItem) Merge(next *StackItem) {
	inserted := make(map[ID]bool, len(s.inserted))
	for _, id := range s.inserted {
		inserted[id] = true
	}
	s.inserted = append(s.inserted, next.inserted...)
	for _, id := range next.deleted {
		// Inserted and deleted within the group: nothing to restore.
		if !inserted[id] {
			s.deleted = append(s.deleted, id)
		}
	}

	for id, attrs := range next.formats {
		if inserted[id] {
			continue
		}
		cur := s.formats[id]
		if cur == nil {
			s.formats[id] = maps.Clone(attrs)
			continue
		}
		for k, v := range attrs {
			if _, ok := cur[k]; !ok {
				cur[k] = v
			}
		}
	}

	for _, e := range next.keys {
		i := slices.IndexFunc(s.keys, func(k keyEdit) bool { return k.branch == e.branch && k.key == e.key })
		if i < 0 {
			s.keys = append(s.keys, e)
			continue
		}
		s.keys[i].after = e.after
	}
}

// Revert applies the inverse of s as local operations and reports whether
// anything changed. Items restored by an earlier revert are tracked through
// their copies. Parts that later transactions have overwritten are left
// alone: a map key reverts only while it still holds the value s left
// there.
func (tx *Txn) Revert(s *StackItem) bool {
	tx.checkWritable()
	d := tx.doc
	n := len(tx.ops)

	for _, e := range s.keys {
		if e.before == e.after {
			continue
		}
		var cur *item
		if it := e.branch.entries[e.key]; it != nil && !it.deleted {
			cur = it
		}
		if cur != follow(e.after) {
			continue
		}
		if e.before == nil {
			tx.applyLocal(&op{kind: opDelete, targets: []ID{cur.id}})
			continue
		}
		prev := follow(e.before)
		if prev == cur {
			continue
		}
		prev.redone = tx.mapInsert(e.branch, e.key, movedContent(prev.content))
	}

	formatted := slices.SortedFunc(maps.Keys(s.formats), compareIDs)
	for _, id := range formatted {
		it := follow(d.items[id])
		if it == nil || it.deleted {
			continue
		}
		tx.applyLocal(&op{kind: opFormat, targets: []ID{it.id}, attrs: maps.Clone(s.formats[id])})
	}

	var targets []ID
	for _, id := range s.inserted {
		if it := follow(d.items[id]); it != nil && !it.deleted {
			targets = append(targets, it.id)
		}
	}
	if len(targets) > 0 {
		tx.applyLocal(&op{kind: opDelete, targets: targets})
	}

	tx.restore(s)
	return len(tx.ops) > n
}

// restore re-inserts copies of the deleted elements of s. Each run of
// adjacent elements with equal attributes becomes one insert whose origin
// is the first original, which places the copies exactly where the
// originals were.
func (tx *Txn) restore(s *StackItem) {
	d := tx.doc
	var branches []*Branch
	byBranch := make(map[*Branch][]*item)
	formats := make(map[*item]node.Object)
	for _, id := range s.deleted {
		it := follow(d.items[id])
		if it == nil || !it.deleted {
			continue
		}
		if _, seen := formats[it]; seen {
			continue
		}
		formats[it] = s.formats[id]
		if byBranch[it.parent] == nil {
			branches = append(branches, it.parent)
		}
		byBranch[it.parent] = append(byBranch[it.parent], it)
	}

	for _, b := range branches {
		items := byBranch[b]
		pos := make(map[*item]int, len(items))
		for _, it := range items {
			pos[it] = b.indexOf(it.id)
		}
		slices.SortFunc(items, func(x, y *item) int { return cmp.Compare(pos[x], pos[y]) })

		for start := 0; start < len(items); {
			first := items[start]
			attrs := restoredAttrs(first, formats[first])
			end := start + 1
			for end < len(items) {
				it := items[end]
				if pos[it] != pos[items[end-1]]+1 ||
					(it.content.kind == contentUnit) != (first.content.kind == contentUnit) ||
					!node.Equal(restoredAttrs(it, formats[it]), attrs) {
					break
				}
				end++
			}
			run := items[start:end]
			o := restoreOp(b, run, attrs)
			tx.applyLocal(o)
			for i, it := range run {
				it.redone = d.items[ID{Client: o.id.Client, Clock: o.id.Clock + uint64(i)}]
			}
			start = end
		}
	}
}

func restoreOp(b *Branch, run []*item, attrs node.Object) *op {
	origin := run[0].id
	o := &op{
		kind:       opInsert,
		parent:     b.ref,
		parentKind: b.kind,
		origin:     &origin,
		attrs:      attrs,
	}
	if run[0].content.kind == contentUnit {
		units := make([]uint16, len(run))
		for i, it := range run {
			units[i] = it.content.unit
		}
		o.text = string(utf16.Decode(units))
		return o
	}
	o.values = make([]content, len(run))
	for i, it := range run {
		o.values[i] = movedContent(it.content)
	}
	return o
}

// restoredAttrs returns the attributes it had before the formats recorded
// for it.
func restoredAttrs(it *item, formats node.Object) node.Object {
	attrs := maps.Clone(it.attrObject())
	for k, v := range formats {
		if _, isNull := v.(node.Null); isNull {
			delete(attrs, k)
			continue
		}
		if attrs == nil {
			attrs = make(node.Object)
		}
		attrs[k] = v
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
