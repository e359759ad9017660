// Package buffer provides a bounded ring queue used for per-subscriber broadcast delivery.
package buffer

import (
	"sync"
)

// RingBuffer is a thread-safe bounded FIFO queue. When the queue is full,
// the oldest element is discarded to make room for the new one.
//
// Each broadcast subscriber owns one RingBuffer, so a slow reader only ever
// loses its own oldest messages and never holds up the publisher.
type RingBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.Mutex
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v to the tail of the queue. If the queue is full, the oldest
// element is discarded and dropped is true.
func (rb *RingBuffer[T]) Push(v T) (dropped bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == rb.capacity {
		// Overwrite the head slot and advance it
		rb.items[rb.head] = v
		rb.head = (rb.head + 1) % rb.capacity
		return true
	}

	rb.items[(rb.head+rb.size)%rb.capacity] = v
	rb.size++
	return false
}

// Pop removes and returns the oldest element. ok is false if the queue is empty.
func (rb *RingBuffer[T]) Pop() (v T, ok bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return v, false
	}

	var zero T
	v = rb.items[rb.head]
	rb.items[rb.head] = zero
	rb.head = (rb.head + 1) % rb.capacity
	rb.size--
	return v, true
}

// ReadAll returns a copy of all queued elements, oldest first, without removing them.
func (rb *RingBuffer[T]) ReadAll() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return nil
	}

	result := make([]T, rb.size)
	for i := 0; i < rb.size; i++ {
		result[i] = rb.items[(rb.head+i)%rb.capacity]
	}
	return result
}

// Clear removes all elements from the queue.
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.head = 0
	rb.size = 0
}

// Len returns the current number of queued elements.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	return rb.size
}

// Cap returns the capacity of the queue.
func (rb *RingBuffer[T]) Cap() int {
	return rb.capacity
}
