package shared

import (
	"context"

	"github.com/roach88/ycoord/internal/crdt"
)

// Txn is exclusive access to a Document for one scheduled unit of work.
//
// A Txn is valid only inside the function it was passed to. It may be passed
// to nested calls within that function, never retained or handed to another
// goroutine; use after the unit ends panics.
type Txn struct {
	doc *Document
	raw *crdt.Txn
	ctx context.Context
}

// Document returns the transaction's document.
func (tx *Txn) Document() *Document {
	return tx.doc
}

// Context returns the context of the unit that owns the transaction.
func (tx *Txn) Context() context.Context {
	return tx.ctx
}

// Origin returns the origin tag of the transaction.
func (tx *Txn) Origin() string {
	return tx.raw.Origin()
}

// Engine returns the engine transaction. Intended for packages that extend
// the binding (persistence, diagnostics).
func (tx *Txn) Engine() *crdt.Txn {
	return tx.raw
}

func (tx *Txn) check(d *Document) {
	if tx.doc != d {
		panic("shared: transaction belongs to document " + tx.doc.GUID() + ", not " + d.GUID())
	}
}
