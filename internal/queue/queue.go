// Package queue provides the FIFO used by session state machines to hold
// submissions waiting for a free command socket.
package queue

// Queue is a slice-backed FIFO. It is not safe for concurrent use; each
// session owns its queues from a single goroutine.
type Queue[T any] struct {
	items []T
}

// New creates a Queue with the given preallocated capacity.
func New[T any](prealloc int) *Queue[T] {
	return &Queue[T]{items: make([]T, 0, prealloc)}
}

// Enqueue adds an item to the tail of the queue.
func (q *Queue[T]) Enqueue(item T) {
	q.items = append(q.items, item)
}

// Dequeue removes and returns the item at the head of the queue.
// The second return value is false if the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	return q.items[0], true
}

// Drain removes and returns all queued items in FIFO order.
func (q *Queue[T]) Drain() []T {
	items := q.items
	q.items = nil

	return items
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	return len(q.items)
}
