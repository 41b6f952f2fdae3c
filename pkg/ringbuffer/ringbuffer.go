// Package ringbuffer implements the single-producer single-consumer
// circular store used to hand pooled audio frames between the capture
// callback and whichever goroutine drains them, without allocation or
// mutex contention on the hot path.
//
// The API shape (Push/Pop, ErrFull/ErrEmpty) follows the same
// single-producer-single-consumer contract as github.com/iamcalledrob/circular,
// which the denoiser's sample queues use directly; this package exists
// because that queue is byte-oriented while frame handoff needs to move
// typed values without a serialize/deserialize round trip.
package ringbuffer

import (
	"errors"
	"sync/atomic"
)

// ErrFull is returned by Push when the ring has no free slot.
var ErrFull = errors.New("ringbuffer: full")

// ErrEmpty is returned by Pop when the ring has nothing buffered.
var ErrEmpty = errors.New("ringbuffer: empty")

// Ring is a fixed-capacity SPSC circular buffer of T. One goroutine must
// call Push exclusively; a (possibly different) single goroutine must call
// Pop exclusively. Capacity is fixed at construction; one slot is reserved
// as a gap sentinel so a full ring is distinguishable from an empty one
// without a separate counter.
type Ring[T any] struct {
	buf        []T
	capacity   uint64 // len(buf), a power of two is not required
	readIndex  atomic.Uint64
	writeIndex atomic.Uint64
}

// New allocates a Ring holding up to capacity-1 live elements.
func New[T any](capacity int) *Ring[T] {
	if capacity < 2 {
		capacity = 2
	}
	return &Ring[T]{
		buf:      make([]T, capacity),
		capacity: uint64(capacity),
	}
}

// Cap returns the usable capacity (one less than the backing slice length).
func (r *Ring[T]) Cap() int { return int(r.capacity) - 1 }

// Len returns the number of currently buffered elements. Safe to call from
// either side; may be stale by the time the caller acts on it.
func (r *Ring[T]) Len() int {
	w := r.writeIndex.Load()
	rd := r.readIndex.Load()
	return int((w - rd + r.capacity) % r.capacity)
}

// AvailableWrite returns the number of elements that can currently be
// pushed without blocking.
func (r *Ring[T]) AvailableWrite() int {
	return r.Cap() - r.Len()
}

// Push appends v. Returns ErrFull if the ring has no free slot.
func (r *Ring[T]) Push(v T) error {
	w := r.writeIndex.Load()
	rd := r.readIndex.Load()
	next := (w + 1) % r.capacity
	if next == rd {
		return ErrFull
	}
	r.buf[w] = v
	r.writeIndex.Store(next)
	return nil
}

// Pop removes and returns the oldest element. Returns ErrEmpty if the ring
// has nothing buffered.
func (r *Ring[T]) Pop() (T, error) {
	rd := r.readIndex.Load()
	w := r.writeIndex.Load()
	if rd == w {
		var zero T
		return zero, ErrEmpty
	}
	v := r.buf[rd]
	var zero T
	r.buf[rd] = zero
	r.readIndex.Store((rd + 1) % r.capacity)
	return v, nil
}

// PushDropOldest appends v, dropping the oldest buffered element first if
// the ring is full. Returns true if an element was dropped to make room.
func (r *Ring[T]) PushDropOldest(v T) (dropped bool) {
	if err := r.Push(v); err == nil {
		return false
	}
	_, _ = r.Pop()
	_ = r.Push(v)
	return true
}
