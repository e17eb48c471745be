package store

import (
	"context"
	"fmt"

	"github.com/roach88/ycoord/internal/shared"
)

// Origin tags transactions that replay stored updates. Bind never persists
// updates carrying it.
const Origin = "store"

// Bind registers doc and persists every update it commits from now on, in
// commit order. Writes happen on the subscription's goroutine; failures are
// logged. Cancel the returned subscription to stop persisting.
func Bind(ctx context.Context, st *Store, doc *shared.Document) (*shared.Subscription, error) {
	guid := doc.GUID()
	if _, err := st.EnsureDocument(ctx, guid, doc.ClientID()); err != nil {
		return nil, err
	}
	writeCtx := context.WithoutCancel(ctx)
	sub := doc.OnUpdate(func(update []byte, origin string) {
		if origin == Origin {
			return
		}
		seq, err := st.AppendUpdate(writeCtx, guid, origin, update)
		if err != nil {
			st.logger.Error("persist update failed", "doc", guid, "origin", origin, "error", err)
			return
		}
		st.logger.Debug("update persisted", "doc", guid, "origin", origin, "seq", seq, "bytes", len(update))
	})
	return sub, nil
}

// Restore applies every stored update of doc in one transaction tagged with
// Origin and returns how many were applied. The log is validated as a whole
// first: if any update is malformed nothing is applied. A document with no
// stored log is left untouched.
func Restore(ctx context.Context, st *Store, doc *shared.Document) (int, error) {
	updates, err := st.LoadUpdates(ctx, doc.GUID())
	if err != nil {
		return 0, fmt.Errorf("restore %s: %w", doc.GUID(), err)
	}
	if len(updates) == 0 {
		return 0, nil
	}
	payloads := make([][]byte, len(updates))
	for i, u := range updates {
		payloads[i] = u.Payload
	}
	err = doc.TransactOrigin(ctx, Origin, func(tx *shared.Txn) error {
		return doc.ApplyUpdatesTx(tx, payloads)
	})
	if err != nil {
		return 0, fmt.Errorf("restore %s: %w", doc.GUID(), err)
	}
	return len(updates), nil
}

// Compact replaces doc's stored log with one full-state update.
func Compact(ctx context.Context, st *Store, doc *shared.Document) (int64, error) {
	full, err := doc.EncodeDiff(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("compact %s: %w", doc.GUID(), err)
	}
	return st.ReplaceUpdates(ctx, doc.GUID(), Origin, full)
}

// Load opens the stored document guid: a Document with the stored client
// id, restored from its log. opts.GUID and opts.ClientID are overridden.
func Load(ctx context.Context, st *Store, guid string, opts shared.Options) (*shared.Document, error) {
	info, ok, err := st.GetDocument(ctx, guid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("load %s: %w", guid, ErrUnknownDocument)
	}
	opts.GUID = info.GUID
	opts.ClientID = info.ClientID
	doc := shared.NewDocument(opts)
	if _, err := Restore(ctx, st, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
