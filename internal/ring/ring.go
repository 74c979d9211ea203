// Package ring provides a fixed-capacity FIFO that overwrites its oldest
// element instead of blocking when full.
package ring

import (
	"errors"
	"sync"
)

// DefaultCapacity is the queue depth used between the acquisition loop and
// its consumer. Two slots are enough because only the latest frames matter.
const DefaultCapacity = 2

// ErrInvalidCapacity is returned by New when capacity is not positive.
var ErrInvalidCapacity = errors.New("ring: capacity must be greater than zero")

// Queue is a bounded FIFO with evict-oldest semantics.
// Put never blocks and never fails; TryTake never blocks.
// All methods are safe for concurrent use.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int // index of the oldest element
	size    int
	dropped uint64
}

// New creates a Queue holding at most capacity items.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Queue[T]{items: make([]T, capacity)}, nil
}

// Put appends item. If the queue is full the oldest item is evicted first.
func (q *Queue[T]) Put(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	capacity := len(q.items)
	if q.size == capacity {
		var zero T
		q.items[q.head] = zero
		q.head = (q.head + 1) % capacity
		q.size--
		q.dropped++
	}

	q.items[(q.head+q.size)%capacity] = item
	q.size++
}

// TryTake removes and returns the oldest item.
// The second return value is false when the queue is empty.
func (q *Queue[T]) TryTake() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--

	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int {
	return len(q.items)
}

// Dropped returns how many items were evicted by Put since creation.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
