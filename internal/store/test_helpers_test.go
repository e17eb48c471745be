package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/ycoord/internal/crdt"
	"github.com/roach88/ycoord/internal/shared"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newDocument(guid string, client uint64) *shared.Document {
	return shared.NewDocument(shared.Options{
		Options: crdt.Options{GUID: guid, ClientID: client, ShouldLoad: true},
		Origin:  "local",
	})
}
