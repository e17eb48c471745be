package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"documents", "updates"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestEnsureDocument(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	created, err := s.EnsureDocument(ctx, "doc-b", 2)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureDocument(ctx, "doc-a", 1)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureDocument(ctx, "doc-b", 99)
	require.NoError(t, err)
	assert.False(t, created)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []DocumentInfo{
		{GUID: "doc-b", ClientID: 2, CreatedSeq: 1},
		{GUID: "doc-a", ClientID: 1, CreatedSeq: 2},
	}, docs)
}

func TestListDocuments_Empty(t *testing.T) {
	s := createTestStore(t)
	docs, err := s.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestAppendAndLoadUpdates(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	_, err := s.EnsureDocument(ctx, "doc", 1)
	require.NoError(t, err)

	seq1, err := s.AppendUpdate(ctx, "doc", "a", []byte("one"))
	require.NoError(t, err)
	seq2, err := s.AppendUpdate(ctx, "doc", "b", []byte("two"))
	require.NoError(t, err)
	assert.Greater(t, seq2, seq1)

	updates, err := s.LoadUpdates(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []Update{
		{Seq: seq1, GUID: "doc", Origin: "a", Payload: []byte("one")},
		{Seq: seq2, GUID: "doc", Origin: "b", Payload: []byte("two")},
	}, updates)

	info, ok, err := s.GetDocument(ctx, "doc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, info.Updates)

	empty, err := s.LoadUpdates(ctx, "other")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestAppendUpdate_Errors(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.AppendUpdate(ctx, "missing", "", []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownDocument)

	_, err = s.EnsureDocument(ctx, "doc", 1)
	require.NoError(t, err)
	_, err = s.AppendUpdate(ctx, "doc", "", nil)
	assert.Error(t, err)
}

func TestReplaceUpdates(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	_, err := s.EnsureDocument(ctx, "doc", 1)
	require.NoError(t, err)
	for _, p := range []string{"a", "b", "c"} {
		_, err := s.AppendUpdate(ctx, "doc", "", []byte(p))
		require.NoError(t, err)
	}

	info, _, err := s.GetDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Zero(t, info.CompactedSeq)

	seq, err := s.ReplaceUpdates(ctx, "doc", Origin, []byte("full"))
	require.NoError(t, err)

	updates, err := s.LoadUpdates(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, []Update{{Seq: seq, GUID: "doc", Origin: Origin, Payload: []byte("full")}}, updates)

	info, _, err = s.GetDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, seq, info.CompactedSeq)
	assert.Equal(t, 1, info.Updates)

	_, err = s.AppendUpdate(ctx, "doc", "", []byte("d"))
	require.NoError(t, err)
	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, seq, docs[0].CompactedSeq)
	assert.Equal(t, 2, docs[0].Updates)
}

func TestOpen_MigratesVersionZeroLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO documents (guid, client_id, created_seq) VALUES ('doc', 7, 1)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO updates (guid, origin, payload) VALUES ('doc', '', x'01')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.verifyPragma("user_version", "2"))

	info, ok, err := s.GetDocument(context.Background(), "doc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), info.ClientID)
	assert.Zero(t, info.CompactedSeq)
	assert.Equal(t, 1, info.Updates)

	var index string
	require.NoError(t, s.db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_updates_guid_seq'`,
	).Scan(&index))
}

func TestGetDocument_Unknown(t *testing.T) {
	_, ok, err := createTestStore(t).GetDocument(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
