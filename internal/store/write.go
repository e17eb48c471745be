package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownDocument is returned when an update names a document that was
// never registered with EnsureDocument.
var ErrUnknownDocument = errors.New("store: unknown document")

// EnsureDocument registers a document. Registering an existing GUID is a
// no-op and reports created=false; the stored client id is kept.
func (s *Store) EnsureDocument(ctx context.Context, guid string, clientID uint64) (created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("ensure document: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO documents (guid, client_id, created_seq)
		SELECT ?, ?, COALESCE(MAX(created_seq), 0) + 1 FROM documents WHERE true
		ON CONFLICT(guid) DO NOTHING
	`, guid, int64(clientID))
	if err != nil {
		return false, fmt.Errorf("ensure document %s: %w", guid, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure document %s: rows affected: %w", guid, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("ensure document %s: commit: %w", guid, err)
	}
	return n > 0, nil
}

// AppendUpdate appends an encoded update to a document's log and returns
// its sequence number.
func (s *Store) AppendUpdate(ctx context.Context, guid, origin string, payload []byte) (int64, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("append update %s: empty payload", guid)
	}
	known, err := s.hasDocument(ctx, guid)
	if err != nil {
		return 0, fmt.Errorf("append update %s: %w", guid, err)
	}
	if !known {
		return 0, fmt.Errorf("append update %s: %w", guid, ErrUnknownDocument)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO updates (guid, origin, payload)
		VALUES (?, ?, ?)
	`, guid, origin, payload)
	if err != nil {
		return 0, fmt.Errorf("append update %s: %w", guid, err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append update %s: last insert id: %w", guid, err)
	}
	return seq, nil
}

// ReplaceUpdates atomically replaces a document's log with a single update,
// typically a full-state diff, and records it as the document's last
// compaction. Returns the sequence of the new entry.
func (s *Store) ReplaceUpdates(ctx context.Context, guid, origin string, payload []byte) (int64, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("replace updates %s: empty payload", guid)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("replace updates %s: begin tx: %w", guid, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM updates WHERE guid = ?`, guid); err != nil {
		return 0, fmt.Errorf("replace updates %s: delete: %w", guid, err)
	}
	result, err := tx.ExecContext(ctx, `
		INSERT INTO updates (guid, origin, payload)
		VALUES (?, ?, ?)
	`, guid, origin, payload)
	if err != nil {
		return 0, fmt.Errorf("replace updates %s: insert: %w", guid, err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("replace updates %s: last insert id: %w", guid, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET compacted_seq = ? WHERE guid = ?`, seq, guid); err != nil {
		return 0, fmt.Errorf("replace updates %s: record compaction: %w", guid, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("replace updates %s: commit: %w", guid, err)
	}
	return seq, nil
}
