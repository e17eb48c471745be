package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Update is one stored update.
type Update struct {
	Seq     int64
	GUID    string
	Origin  string
	Payload []byte
}

// DocumentInfo describes a registered document.
type DocumentInfo struct {
	GUID       string
	ClientID   uint64
	CreatedSeq int64
	// CompactedSeq is the seq of the update written by the last
	// ReplaceUpdates, 0 if the log was never compacted.
	CompactedSeq int64
	Updates      int
}

func (s *Store) hasDocument(ctx context.Context, guid string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE guid = ?`, guid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query document: %w", err)
	}
	return true, nil
}

// GetDocument returns a registered document. ok is false if guid is unknown.
func (s *Store) GetDocument(ctx context.Context, guid string) (info DocumentInfo, ok bool, err error) {
	var clientID int64
	err = s.db.QueryRowContext(ctx, `
		SELECT d.guid, d.client_id, d.created_seq, d.compacted_seq, COUNT(u.seq)
		FROM documents d
		LEFT JOIN updates u ON u.guid = d.guid
		WHERE d.guid = ?
		GROUP BY d.guid
	`, guid).Scan(&info.GUID, &clientID, &info.CreatedSeq, &info.CompactedSeq, &info.Updates)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentInfo{}, false, nil
	}
	if err != nil {
		return DocumentInfo{}, false, fmt.Errorf("get document %s: %w", guid, err)
	}
	info.ClientID = uint64(clientID)
	return info, true, nil
}

// ListDocuments returns every registered document in creation order.
//
// Returns an empty slice (not nil) if none exist.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.guid, d.client_id, d.created_seq, d.compacted_seq, COUNT(u.seq)
		FROM documents d
		LEFT JOIN updates u ON u.guid = d.guid
		GROUP BY d.guid
		ORDER BY d.created_seq ASC, d.guid COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []DocumentInfo{}
	for rows.Next() {
		var info DocumentInfo
		var clientID int64
		if err := rows.Scan(&info.GUID, &clientID, &info.CreatedSeq, &info.CompactedSeq, &info.Updates); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		info.ClientID = uint64(clientID)
		docs = append(docs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// LoadUpdates returns a document's updates ordered by seq.
//
// Returns an empty slice (not nil) if the document has no updates.
func (s *Store) LoadUpdates(ctx context.Context, guid string) ([]Update, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, guid, origin, payload
		FROM updates
		WHERE guid = ?
		ORDER BY seq ASC
	`, guid)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	updates := []Update{}
	for rows.Next() {
		var u Update
		if err := rows.Scan(&u.Seq, &u.GUID, &u.Origin, &u.Payload); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return updates, nil
}
