package core

import "sort"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

type queueItem[T any] struct {
	value    T
	priority int
}

// =============================================================================
// PriorityTaskQueue: sorted slice, highest priority first, FIFO for equals
// =============================================================================

// PriorityTaskQueue keeps its items in non-increasing priority order.
// Items of equal priority keep their insertion order.
//
// PriorityTaskQueue is not safe for concurrent use; Queue guards it with
// its own mutex.
type PriorityTaskQueue[T any] struct {
	items []queueItem[T]
}

func NewPriorityTaskQueue[T any]() *PriorityTaskQueue[T] {
	return &PriorityTaskQueue[T]{
		items: make([]queueItem[T], 0, defaultQueueCap),
	}
}

// Enqueue inserts v after every item whose priority is >= priority.
func (q *PriorityTaskQueue[T]) Enqueue(v T, priority int) {
	item := queueItem[T]{value: v, priority: priority}

	// Fast path: bulk submission at the same (or falling) priority.
	if n := len(q.items); n == 0 || q.items[n-1].priority >= priority {
		q.items = append(q.items, item)
		return
	}

	idx := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].priority < priority
	})
	q.items = append(q.items, queueItem[T]{})
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = item
}

// Dequeue removes and returns the head. ok is false when the queue is empty.
func (q *PriorityTaskQueue[T]) Dequeue() (v T, ok bool) {
	if len(q.items) == 0 {
		return v, false
	}

	item := q.items[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.items[0] = queueItem[T]{}
	q.items = q.items[1:]
	q.maybeCompact()

	return item.value, true
}

// Filter returns the pending items whose priority equals priority, in
// queue order. The queue is not modified.
func (q *PriorityTaskQueue[T]) Filter(priority int) []T {
	var out []T
	for _, item := range q.items {
		if item.priority == priority {
			out = append(out, item.value)
		}
	}
	return out
}

// Len returns the number of pending items.
func (q *PriorityTaskQueue[T]) Len() int {
	return len(q.items)
}

func (q *PriorityTaskQueue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// Drain removes and returns every item in queue order.
func (q *PriorityTaskQueue[T]) Drain() []T {
	out := make([]T, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, item.value)
	}
	q.Clear()
	return out
}

// Clear removes all items from the queue and releases references
func (q *PriorityTaskQueue[T]) Clear() {
	q.items = make([]queueItem[T], 0, defaultQueueCap)
}

// Dequeue reslices from the front, so the backing array only shrinks here.
func (q *PriorityTaskQueue[T]) maybeCompact() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]queueItem[T], 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]queueItem[T], n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}
