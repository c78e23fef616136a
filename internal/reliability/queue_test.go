package reliability

import (
	"context"
	"reflect"
	"testing"
)

func TestQueueEvictsOldestBeyondCapacity(t *testing.T) {
	q := NewQueue[int](4)
	evicted := 0
	for i := 1; i <= 10; i++ {
		evicted += q.Enqueue(i)
	}
	if evicted != 6 || q.Dropped() != 6 {
		t.Fatalf("evicted = %d, Dropped() = %d, want 6", evicted, q.Dropped())
	}
	if got, want := q.Items(), []int{7, 8, 9, 10}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Items() = %v, want %v", got, want)
	}
}

func TestQueueDrainRequeuesFailuresInOrder(t *testing.T) {
	q := NewQueue[int](10)
	for i := 1; i <= 5; i++ {
		q.Enqueue(i)
	}

	var attempted []int
	remaining := q.Drain(context.Background(), func(_ context.Context, v int) bool {
		attempted = append(attempted, v)
		return v%2 == 0
	})
	if remaining != 3 {
		t.Fatalf("Drain() remaining = %d, want 3", remaining)
	}
	if want := []int{1, 2, 3, 4, 5}; !reflect.DeepEqual(attempted, want) {
		t.Fatalf("attempted = %v, want %v", attempted, want)
	}
	if got, want := q.Items(), []int{1, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Items() after first drain = %v, want %v", got, want)
	}

	// A second failing cycle keeps the same relative order.
	q.Drain(context.Background(), func(context.Context, int) bool { return false })
	if got, want := q.Items(), []int{1, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Items() after second drain = %v, want %v", got, want)
	}
}

func TestQueueDrainPutsFailuresBehindConcurrentEnqueues(t *testing.T) {
	q := NewQueue[string](10)
	q.Enqueue("a")
	q.Enqueue("b")

	q.Drain(context.Background(), func(_ context.Context, v string) bool {
		if v == "a" {
			q.Enqueue("live")
		}
		return false
	})
	if got, want := q.Items(), []string{"live", "a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Items() = %v, want %v", got, want)
	}
}

func TestQueueDrainStopsOnCancel(t *testing.T) {
	q := NewQueue[int](10)
	for i := 1; i <= 4; i++ {
		q.Enqueue(i)
	}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	remaining := q.Drain(ctx, func(context.Context, int) bool {
		calls++
		cancel()
		return true
	})
	if calls != 1 {
		t.Fatalf("push calls = %d, want 1", calls)
	}
	if remaining != 3 {
		t.Fatalf("Drain() remaining = %d, want 3", remaining)
	}
	if got, want := q.Items(), []int{2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Items() = %v, want %v", got, want)
	}
}

func TestQueueSetCapacityShrinks(t *testing.T) {
	q := NewQueue[int](8)
	for i := 1; i <= 6; i++ {
		q.Enqueue(i)
	}
	if n := q.SetCapacity(2); n != 4 {
		t.Fatalf("SetCapacity() evicted = %d, want 4", n)
	}
	if q.Capacity() != 2 || q.Len() != 2 {
		t.Fatalf("Capacity() = %d, Len() = %d, want 2, 2", q.Capacity(), q.Len())
	}
	if got, want := q.Items(), []int{5, 6}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Items() = %v, want %v", got, want)
	}
}
