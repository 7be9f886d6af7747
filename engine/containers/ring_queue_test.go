package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueue_FIFO(t *testing.T) {
	rq := NewRingQueue[int](3)
	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	require.NoError(t, rq.Enqueue(3))
	assert.ErrorIs(t, rq.Enqueue(4), ErrQueueFull)

	head, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, head)

	for _, want := range []int{1, 2, 3} {
		got, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueue_PushEvictsOldest(t *testing.T) {
	rq := NewRingQueue[string](2)
	rq.Push("a")
	rq.Push("b")
	evicted, ok := rq.Push("c")
	assert.True(t, ok)
	assert.Equal(t, "a", evicted)

	var seen []string
	rq.Each(func(s string) { seen = append(seen, s) })
	assert.Equal(t, []string{"b", "c"}, seen)
	assert.Equal(t, 2, rq.Len())
}

func TestRingQueue_WrapAround(t *testing.T) {
	rq := NewRingQueue[int](2)
	for i := 0; i < 5; i++ {
		require.NoError(t, rq.Enqueue(i))
		got, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
	assert.True(t, rq.IsEmpty())
}
