package shared

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ycoord/internal/crdt"
)

const waitFor = 2 * time.Second

func newTestDocument(t *testing.T, client uint64) *Document {
	t.Helper()
	return NewDocument(Options{
		Options: crdt.Options{GUID: fmt.Sprintf("doc-%d", client), ClientID: client, ShouldLoad: true},
		Origin:  "test",
	})
}

// collector records batches delivered on subscription goroutines.
type collector[B any] struct {
	mu      sync.Mutex
	batches []B
}

func (c *collector[B]) add(b B) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
}

func (c *collector[B]) get() []B {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.batches)
}

func (c *collector[B]) waitLen(t *testing.T, n int) []B {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.get()) >= n }, waitFor, time.Millisecond)
	return c.get()
}
