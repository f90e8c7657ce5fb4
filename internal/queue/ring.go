package queue

// Ring is a fixed-capacity double-ended buffer. It never grows: callers check
// IsFull before enqueueing, and an enqueue on a full ring reports false.
//
// Ring is not safe for concurrent use. It is owned by the single goroutine
// that ticks the simulation.
type Ring[T any] struct {
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding at most capacity items
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

func (r *Ring[T]) Capacity() int { return len(r.items) }

func (r *Ring[T]) Size() int { return r.size }

func (r *Ring[T]) IsEmpty() bool { return r.size == 0 }

func (r *Ring[T]) IsFull() bool { return r.size == len(r.items) }

func (r *Ring[T]) index(offset int) int {
	return (r.head + offset) % len(r.items)
}

// EnqueueLast appends item at the back
func (r *Ring[T]) EnqueueLast(item T) bool {
	if r.IsFull() {
		return false
	}
	r.items[r.index(r.size)] = item
	r.size++
	return true
}

// EnqueueFirst inserts item at the front so it is the next one returned
func (r *Ring[T]) EnqueueFirst(item T) bool {
	if r.IsFull() {
		return false
	}
	r.head = (r.head - 1 + len(r.items)) % len(r.items)
	r.items[r.head] = item
	r.size++
	return true
}

// Next removes and returns the front item. ok is false when the ring is empty.
func (r *Ring[T]) Next() (item T, ok bool) {
	if r.size == 0 {
		return item, false
	}
	var zero T
	item = r.items[r.head]
	r.items[r.head] = zero
	r.head = r.index(1)
	r.size--
	return item, true
}

// Peek returns the front item without removing it
func (r *Ring[T]) Peek() (item T, ok bool) {
	if r.size == 0 {
		return item, false
	}
	return r.items[r.head], true
}

// FilterUntilFirstHit removes items from the front and hands each one to
// keep until keep returns true. Every rejected item and the hit itself are
// consumed; items behind the hit stay in place. Returns true if an item hit.
//
// At most one hit happens per call, so a front clogged with stale entries
// costs one pass and never promotes more than a single item.
func (r *Ring[T]) FilterUntilFirstHit(keep func(T) bool) bool {
	for r.size > 0 {
		item, _ := r.Next()
		if keep(item) {
			return true
		}
	}
	return false
}

// Clear drops every item
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}

// Snapshot returns the items front to back without consuming them
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[r.index(i)]
	}
	return out
}
