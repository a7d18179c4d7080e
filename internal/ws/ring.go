package ws

import "sync"

// Ring is a thread-safe FIFO of fixed capacity. Appending to a full ring
// evicts the oldest item.
type Ring[T any] struct {
	mu       sync.RWMutex
	buf      []T
	head     int // oldest item
	count    int
	capacity int

	totalAppended int64
	totalEvicted  int64
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Append adds an item, evicting the oldest when full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.count) % r.capacity
	r.buf[tail] = item
	r.totalAppended++

	if r.count < r.capacity {
		r.count++
		return
	}
	// Full: tail overwrote head, so the window moves forward.
	r.head = (r.head + 1) % r.capacity
	r.totalEvicted++
}

// Snapshot returns the items oldest first. The slice is a copy.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%r.capacity]
	}
	return out
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Reset drops all items.
func (r *Ring[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.buf {
		r.buf[i] = zero // Clear references for GC
	}
	r.head = 0
	r.count = 0
}

// Stats returns ring statistics.
func (r *Ring[T]) Stats() RingStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RingStats{
		Count:         r.count,
		Capacity:      r.capacity,
		TotalAppended: r.totalAppended,
		TotalEvicted:  r.totalEvicted,
	}
}

// RingStats contains ring statistics.
type RingStats struct {
	Count         int   `json:"count"`
	Capacity      int   `json:"capacity"`
	TotalAppended int64 `json:"total_appended"`
	TotalEvicted  int64 `json:"total_evicted"`
}
