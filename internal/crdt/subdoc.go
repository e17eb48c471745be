package crdt

import (
	"errors"
	"slices"
	"strings"
)

// ErrAlreadyIntegrated is returned when a document is inserted as a
// subdocument but already has a parent, or is the target document itself.
var ErrAlreadyIntegrated = errors.New("crdt: document is already integrated")

func (tx *Txn) docContent(child *Doc) (content, error) {
	if child == nil || child == tx.doc || child.Parent() != nil || child.Destroyed() {
		return content{}, ErrAlreadyIntegrated
	}
	return content{kind: contentDoc, guid: child.guid, autoLoad: child.autoLoad, doc: child}, nil
}

func (tx *Txn) ownChild(child *Doc) error {
	if child == nil || tx.doc.subdocs[child.guid] != child {
		return ErrNotChild
	}
	return nil
}

// LoadSubdoc marks child as one whose content should be fetched. Loading a
// subdocument that is already loaded does nothing.
func (tx *Txn) LoadSubdoc(child *Doc) error {
	tx.checkWritable()
	if err := tx.ownChild(child); err != nil {
		return err
	}
	child.mu.Lock()
	already := child.shouldLoad
	child.shouldLoad = true
	child.mu.Unlock()
	if !already {
		tx.noteLoaded(child)
	}
	return nil
}

// DestroySubdoc destroys child and puts a fresh, empty instance with the
// same GUID in its place. The transaction reports the old instance as
// removed and the new one as added.
func (tx *Txn) DestroySubdoc(child *Doc) (*Doc, error) {
	tx.checkWritable()
	if err := tx.ownChild(child); err != nil {
		return nil, err
	}
	d := tx.doc
	fresh := NewDoc(Options{GUID: child.guid, AutoLoad: child.autoLoad, ShouldLoad: child.autoLoad})
	fresh.setParent(d)

	owner := d.subdocOwner[child.guid]
	if it := d.items[owner]; it != nil {
		it.content.doc = fresh
	}
	d.subdocs[child.guid] = fresh
	tx.noteRemoved(child)
	tx.noteAdded(fresh)

	child.Destroy()
	return fresh, nil
}

// Subdocs returns the integrated subdocuments ordered by GUID.
func (tx *Txn) Subdocs() []*Doc {
	tx.checkReadable()
	return tx.doc.Subdocs()
}

// Subdocs returns the integrated subdocuments ordered by GUID. The caller
// must hold exclusive access to d.
func (d *Doc) Subdocs() []*Doc {
	out := make([]*Doc, 0, len(d.subdocs))
	for _, child := range d.subdocs {
		out = append(out, child)
	}
	slices.SortFunc(out, func(a, b *Doc) int { return strings.Compare(a.guid, b.guid) })
	return out
}

// SubdocGUIDs returns the GUIDs of the integrated subdocuments, sorted.
func (tx *Txn) SubdocGUIDs() []string {
	tx.checkReadable()
	out := make([]string, 0, len(tx.doc.subdocs))
	for guid := range tx.doc.subdocs {
		out = append(out, guid)
	}
	slices.Sort(out)
	return out
}

// Destroy marks the document and its subdocuments destroyed and runs the
// destroy observers. It must not be called while a transaction on d is open.
// Destroying twice does nothing.
func (d *Doc) Destroy() {
	if d.active != nil {
		panic("crdt: destroy during an open transaction on document " + d.guid)
	}
	if !d.destroyed.CompareAndSwap(false, true) {
		return
	}
	for _, child := range d.Subdocs() {
		child.Destroy()
	}
	for _, o := range d.destroyObservers() {
		o.fn()
	}
}
