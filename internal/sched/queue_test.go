package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[string]()

	ok, start := q.Enqueue("A")
	require.True(t, ok)
	assert.True(t, start, "first enqueue should ask for a worker")

	ok, start = q.Enqueue("B")
	require.True(t, ok)
	assert.False(t, start, "worker already running")
	assert.Equal(t, 2, q.Len())

	v, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "A", v)
	v, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "B", v)

	_, ok = q.TryDequeue()
	assert.False(t, ok)

	_, start = q.Enqueue("C")
	assert.True(t, start, "queue went idle, a new worker is needed")
}

func TestQueue_CloseDrains(t *testing.T) {
	q := NewQueue[int]()
	q.Enqueue(1)
	q.Close()

	ok, _ := q.Enqueue(2)
	assert.False(t, ok, "closed queue rejects elements")

	select {
	case <-q.Drained():
		t.Fatal("drained before the worker finished")
	default:
	}

	v, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = q.TryDequeue()
	assert.False(t, ok)

	<-q.Drained()
}

func TestQueue_CloseIdle(t *testing.T) {
	q := NewQueue[int]()
	q.Close()
	q.Close()
	<-q.Drained()
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	r := NewClockAt(41)
	assert.Equal(t, int64(42), r.Next())
}
