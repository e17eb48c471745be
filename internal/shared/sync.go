package shared

import (
	"context"
	"fmt"

	"github.com/roach88/ycoord/internal/crdt"
	"github.com/roach88/ycoord/internal/node"
)

// StateVectorTx encodes what this replica has seen, per client.
func (d *Document) StateVectorTx(tx *Txn) []byte {
	tx.check(d)
	return tx.raw.StateVector()
}

// StateVector is StateVectorTx in its own transaction.
func (d *Document) StateVector(ctx context.Context) ([]byte, error) {
	return read(ctx, d, d.StateVectorTx)
}

// EncodeDiffTx encodes everything the holder of remoteSV is missing. A nil
// state vector yields the whole document.
func (d *Document) EncodeDiffTx(tx *Txn, remoteSV []byte) ([]byte, error) {
	tx.check(d)
	return tx.raw.EncodeDiff(remoteSV)
}

// EncodeDiff is EncodeDiffTx in its own transaction.
func (d *Document) EncodeDiff(ctx context.Context, remoteSV []byte) ([]byte, error) {
	return TransactValue(ctx, d, func(tx *Txn) ([]byte, error) { return d.EncodeDiffTx(tx, remoteSV) })
}

// EncodeUpdateTx encodes the changes made by tx so far.
func (d *Document) EncodeUpdateTx(tx *Txn) []byte {
	tx.check(d)
	return tx.raw.EncodeUpdate()
}

// ApplyUpdateTx integrates a remote update. A malformed payload yields a
// *DecodeError and leaves the document unchanged.
func (d *Document) ApplyUpdateTx(tx *Txn, update []byte) error {
	tx.check(d)
	return tx.raw.ApplyUpdate(update)
}

// ApplyUpdatesTx integrates updates as one batch. If any payload is
// malformed the result is a *DecodeError and the document is unchanged.
func (d *Document) ApplyUpdatesTx(tx *Txn, updates [][]byte) error {
	tx.check(d)
	return tx.raw.ApplyUpdates(updates)
}

// ApplyUpdate is ApplyUpdateTx in its own transaction.
func (d *Document) ApplyUpdate(ctx context.Context, update []byte) error {
	return d.Transact(ctx, func(tx *Txn) error { return d.ApplyUpdateTx(tx, update) })
}

// ApplyUpdateOrigin applies update in a transaction tagged with origin, so
// that update listeners can recognise their own echoes.
func (d *Document) ApplyUpdateOrigin(ctx context.Context, origin string, update []byte) error {
	return d.TransactOrigin(ctx, origin, func(tx *Txn) error { return d.ApplyUpdateTx(tx, update) })
}

// QueryPathTx evaluates a JSONPath expression against the document
// projection and returns each match as JSON text.
func (d *Document) QueryPathTx(tx *Txn, expr string) ([]string, error) {
	tx.check(d)
	return tx.raw.QueryPath(expr)
}

// QueryPath is QueryPathTx in its own transaction.
func (d *Document) QueryPath(ctx context.Context, expr string) ([]string, error) {
	return TransactValue(ctx, d, func(tx *Txn) ([]string, error) { return d.QueryPathTx(tx, expr) })
}

// SnapshotTx returns the JSON projection of every root collection.
func (d *Document) SnapshotTx(tx *Txn) node.Object {
	tx.check(d)
	return tx.raw.Snapshot()
}

// Snapshot is SnapshotTx in its own transaction.
func (d *Document) Snapshot(ctx context.Context) (node.Object, error) {
	return read(ctx, d, d.SnapshotTx)
}

// Fingerprint hashes the canonical form of the projection. Replicas that
// have converged report the same fingerprint.
func (d *Document) Fingerprint(ctx context.Context) (string, error) {
	snap, err := d.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	fp, err := node.Fingerprint(snap)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", d.GUID(), err)
	}
	return fp, nil
}

// OnUpdate registers fn to receive the encoded update of every committed
// transaction that changed the document, with the transaction's origin.
// Delivery is deferred and in commit order.
func (d *Document) OnUpdate(fn func(update []byte, origin string)) *Subscription {
	type batch struct {
		update []byte
		origin string
	}
	sub := newSubscription(d, Deferred, func(b any) {
		u := b.(batch)
		fn(u.update, u.origin)
	})
	id := d.doc.ObserveUpdate(func(tx *crdt.Txn, update []byte) {
		sub.publish(batch{update: update, origin: tx.Origin()})
	})
	sub.release = func() { d.doc.Unobserve(id) }
	return sub
}
