package testutil

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGUID_IsVersion4UUID(t *testing.T) {
	id, err := uuid.Parse(GUID(7))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
	assert.Equal(t, "00000000-0000-4000-8000-000000000007", GUID(7))
}

func TestClientID_NeverZero(t *testing.T) {
	assert.Equal(t, uint64(1), ClientID(0))
	assert.Equal(t, uint64(3), ClientID(2))
}

func TestIDGenerator_Sequence(t *testing.T) {
	a := NewIDGenerator()
	b := NewIDGenerator()

	for i := 1; i <= 3; i++ {
		guidA, clientA := a.Next()
		guidB, clientB := b.Next()
		assert.Equal(t, GUID(i), guidA)
		assert.Equal(t, ClientID(i), clientA)
		assert.Equal(t, guidA, guidB)
		assert.Equal(t, clientA, clientB)
	}
}

func TestIDGenerator_ThreadSafe(t *testing.T) {
	g := NewIDGenerator()

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			guid, _ := g.Next()
			mu.Lock()
			seen[guid] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
}
