package shared

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/ycoord/internal/crdt"
	"github.com/roach88/ycoord/internal/sched"
)

// LoadTx requests child's content. It reports child as loaded to the
// parent's ObserveChildren listeners unless it was already loaded.
func (d *Document) LoadTx(tx *Txn, child *Document) error {
	tx.check(d)
	if child == nil {
		return ErrNotChild
	}
	if err := tx.raw.LoadSubdoc(child.doc); err != nil {
		return fmt.Errorf("load %s: %w", child.GUID(), err)
	}
	return nil
}

// Load is LoadTx in its own transaction on d.
func (d *Document) Load(ctx context.Context, child *Document) error {
	return d.Transact(ctx, func(tx *Txn) error { return d.LoadTx(tx, child) })
}

// DestroyChildTx destroys child, and everything below it, and puts a fresh
// empty document with the same GUID in its place. The fresh document is
// returned; child reports Destroyed from now on.
func (d *Document) DestroyChildTx(tx *Txn, child *Document) (*Document, error) {
	tx.check(d)
	if child == nil || !slices.Contains(tx.raw.Subdocs(), child.doc) {
		return nil, ErrNotChild
	}
	var fresh *crdt.Doc
	err := child.sched.Run(tx.ctx, func(ctx context.Context) error {
		if err := child.destroyDescendants(ctx); err != nil {
			return err
		}
		var err error
		fresh, err = tx.raw.DestroySubdoc(child.doc)
		return err
	})
	if errors.Is(err, sched.ErrClosed) {
		panic(ErrDestroyed)
	}
	if err != nil {
		return nil, fmt.Errorf("destroy %s: %w", child.GUID(), err)
	}
	reg := d.reg.Load()
	// Commit-time listeners still resolve the old instance.
	d.afterRelease(func() { reg.forget(child.doc) })
	return reg.wrap(fresh), nil
}

// DestroyChild is DestroyChildTx in its own transaction on d.
func (d *Document) DestroyChild(ctx context.Context, child *Document) (*Document, error) {
	return TransactValue(ctx, d, func(tx *Txn) (*Document, error) { return d.DestroyChildTx(tx, child) })
}

// ChildrenTx returns the subdocuments integrated into d, ordered by GUID.
func (d *Document) ChildrenTx(tx *Txn) []*Document {
	tx.check(d)
	reg := d.reg.Load()
	raws := tx.raw.Subdocs()
	out := make([]*Document, len(raws))
	for i, raw := range raws {
		out[i] = reg.wrap(raw)
	}
	return out
}

// Children is ChildrenTx in its own transaction.
func (d *Document) Children(ctx context.Context) ([]*Document, error) {
	return read(ctx, d, d.ChildrenTx)
}

// ChildGUIDsTx returns the GUIDs of d's subdocuments, sorted.
func (d *Document) ChildGUIDsTx(tx *Txn) []string {
	tx.check(d)
	return tx.raw.SubdocGUIDs()
}

// ChildGUIDs is ChildGUIDsTx in its own transaction.
func (d *Document) ChildGUIDs(ctx context.Context) ([]string, error) {
	return read(ctx, d, d.ChildGUIDsTx)
}

// ObserveChildren registers fn for subdocument lifecycle events. Events are
// always dispatched deferred.
func (d *Document) ObserveChildren(fn func(SubdocsEvent)) *Subscription {
	sub := newSubscription(d, Deferred, func(batch any) { fn(batch.(SubdocsEvent)) })
	id := d.doc.ObserveSubdocs(func(_ *crdt.Txn, ev crdt.SubdocsEvent) {
		reg := d.reg.Load()
		sub.publish(SubdocsEvent{
			Added:   wrapAll(reg, ev.Added),
			Loaded:  wrapAll(reg, ev.Loaded),
			Removed: wrapAll(reg, ev.Removed),
		})
	})
	sub.release = func() { d.doc.Unobserve(id) }
	return sub
}

func wrapAll(reg *registry, raws []*crdt.Doc) []*Document {
	if len(raws) == 0 {
		return nil
	}
	out := make([]*Document, len(raws))
	for i, raw := range raws {
		out[i] = reg.wrap(raw)
	}
	return out
}
