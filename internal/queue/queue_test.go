package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	require := require.New(t)

	q := New[int](4)
	require.Equal(0, q.Len())

	_, ok := q.Dequeue()
	require.False(ok)
	_, ok = q.Peek()
	require.False(ok)

	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)
	require.Equal(3, q.Len())

	head, ok := q.Peek()
	require.True(ok)
	require.Equal(1, head)
	require.Equal(3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.Dequeue()
		require.True(ok)
		require.Equal(want, got)
	}
	require.Equal(0, q.Len())
}

func TestQueue_Drain(t *testing.T) {
	require := require.New(t)

	q := New[string](2)
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	drained := q.Drain()
	require.Equal([]string{"a", "b", "c"}, drained)
	require.Equal(0, q.Len())
	require.Empty(q.Drain())
}

func TestQueue_GrowsPastPrealloc(t *testing.T) {
	require := require.New(t)

	q := New[int](1)
	for i := 0; i < 100; i++ {
		q.Enqueue(i)
	}
	require.Equal(100, q.Len())

	for i := 0; i < 100; i++ {
		got, ok := q.Dequeue()
		require.True(ok)
		require.Equal(i, got)
	}
}
