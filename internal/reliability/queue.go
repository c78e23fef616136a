package reliability

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO of pending deliveries. When full, the oldest item
// is evicted to admit the newest. It is safe for concurrent use.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  uint64
}

// NewQueue returns a queue holding at most capacity items. A non-positive
// capacity is treated as 1.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{capacity: capacity}
}

// Enqueue appends item, evicting the oldest items if the queue is full. It
// returns how many items were evicted.
func (q *Queue[T]) Enqueue(item T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return q.trimLocked()
}

// SetCapacity changes the bound, evicting the oldest items if needed.
func (q *Queue[T]) SetCapacity(capacity int) int {
	if capacity <= 0 {
		capacity = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.capacity = capacity
	return q.trimLocked()
}

func (q *Queue[T]) trimLocked() int {
	over := len(q.items) - q.capacity
	if over <= 0 {
		return 0
	}
	var zero T
	for i := 0; i < over; i++ {
		q.items[i] = zero
	}
	q.items = append(q.items[:0:0], q.items[over:]...)
	q.dropped += uint64(over)
	return over
}

// Drain attempts push for every item present when Drain starts, in FIFO
// order. Items whose push fails are re-enqueued at the back, behind anything
// enqueued while the drain ran, keeping their relative order. When ctx is cancelled the untried items are put back
// untouched. Drain returns the queue length afterwards.
func (q *Queue[T]) Drain(ctx context.Context, push func(context.Context, T) bool) int {
	q.mu.Lock()
	snapshot := q.items
	q.items = nil
	q.mu.Unlock()

	var failed []T
	for i, item := range snapshot {
		if ctx.Err() != nil {
			failed = append(failed, snapshot[i:]...)
			break
		}
		if !push(ctx, item) {
			failed = append(failed, item)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(failed) > 0 {
		q.items = append(q.items, failed...)
		q.trimLocked()
	}
	return len(q.items)
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the current bound.
func (q *Queue[T]) Capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Dropped returns the total number of evicted items.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Items returns a copy of the pending items, oldest first.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}
