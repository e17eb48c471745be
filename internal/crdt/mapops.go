package crdt

import (
	"slices"

	"github.com/roach88/ycoord/internal/node"
)

// MapEntry is one visible key of a map branch.
type MapEntry struct {
	Key   string
	Value Out
}

func (tx *Txn) mapInsert(b *Branch, key string, c content) *item {
	tx.checkBranch(b, KindMap)
	o := &op{
		kind:       opInsert,
		parent:     b.ref,
		parentKind: b.kind,
		key:        key,
		values:     []content{c},
	}
	tx.applyLocal(o)
	return tx.doc.items[o.id]
}

// MapGet returns the visible value stored under key.
func (tx *Txn) MapGet(b *Branch, key string) (Out, bool) {
	tx.checkBranch(b, KindMap)
	it := b.entries[key]
	if it == nil || it.deleted {
		return Out{}, false
	}
	return it.content.out(), true
}

// MapSet stores a leaf value under key, replacing any previous entry.
func (tx *Txn) MapSet(b *Branch, key string, v node.Node) {
	if v == nil {
		v = node.Null{}
	}
	tx.mapInsert(b, key, content{kind: contentLeaf, leaf: v})
}

// MapSetBranch stores a new empty nested collection under key and returns it.
func (tx *Txn) MapSetBranch(b *Branch, key string, kind Kind) *Branch {
	it := tx.mapInsert(b, key, content{kind: contentBranch, branchKind: kind})
	return it.content.branch
}

// MapSetDoc integrates child as a subdocument stored under key.
// Returns ErrAlreadyIntegrated if child already has a parent.
func (tx *Txn) MapSetDoc(b *Branch, key string, child *Doc) error {
	tx.checkBranch(b, KindMap)
	c, err := tx.docContent(child)
	if err != nil {
		return err
	}
	tx.mapInsert(b, key, c)
	return nil
}

// MapRemove deletes key and returns the value it held.
func (tx *Txn) MapRemove(b *Branch, key string) (Out, bool) {
	prev, ok := tx.MapGet(b, key)
	if !ok {
		return Out{}, false
	}
	tx.applyLocal(&op{kind: opDelete, targets: []ID{b.entries[key].id}})
	return prev, true
}

// MapLen returns the number of visible keys.
func (tx *Txn) MapLen(b *Branch) int {
	tx.checkBranch(b, KindMap)
	n := 0
	for _, it := range b.entries {
		if !it.deleted {
			n++
		}
	}
	return n
}

// MapKeys returns the visible keys in UTF-16 order.
func (tx *Txn) MapKeys(b *Branch) []string {
	tx.checkBranch(b, KindMap)
	keys := make([]string, 0, len(b.entries))
	for k, it := range b.entries {
		if !it.deleted {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, node.CompareUTF16)
	return keys
}

// MapEntries returns the visible entries in key order.
func (tx *Txn) MapEntries(b *Branch) []MapEntry {
	keys := tx.MapKeys(b)
	out := make([]MapEntry, len(keys))
	for i, k := range keys {
		out[i] = MapEntry{Key: k, Value: b.entries[k].content.out()}
	}
	return out
}

// MapClear deletes every visible key.
func (tx *Txn) MapClear(b *Branch) {
	keys := tx.MapKeys(b)
	if len(keys) == 0 {
		return
	}
	targets := make([]ID, len(keys))
	for i, k := range keys {
		targets[i] = b.entries[k].id
	}
	tx.applyLocal(&op{kind: opDelete, targets: targets})
}
