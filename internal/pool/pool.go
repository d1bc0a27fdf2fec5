// Package pool provides the two small concurrency-control primitives the
// rest of dnsflatd builds on: a typed wrapper around sync.Pool for recycling
// UDP/TCP read buffers without per-query allocation, and a counting
// Semaphore for bounding how much concurrent per-query work is admitted at
// once (spec.md §5's "maximum in-flight queries" resource bound applies at
// both the frontend dispatcher and the upstream client, so both reach for
// the same primitive rather than each growing their own).
package pool

import (
	"context"
	"sync"
)

// Pool is a generic wrapper around sync.Pool.
type Pool[T any] struct {
	internal sync.Pool
}

// New creates a new Pool with the given constructor.
func New[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{
		internal: sync.Pool{
			New: func() any {
				return newFn()
			},
		},
	}
}

// Get retrieves an item from the pool.
func (p *Pool[T]) Get() T {
	return p.internal.Get().(T)
}

// Put returns an item to the pool.
func (p *Pool[T]) Put(item T) {
	p.internal.Put(item)
}

// Semaphore is a counting semaphore backed by a buffered channel. It caps
// the number of concurrent holders of some resource (outstanding upstream
// queries, admitted packet-handling tasks) without imposing any ordering or
// fairness guarantee beyond channel send/receive.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a Semaphore that admits up to n concurrent holders.
// n <= 0 is treated as 1: a semaphore with no capacity can never be held.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{slots: make(chan struct{}, n)}
}

// TryAcquire acquires a slot without blocking, reporting whether it got one.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks until a slot is free or ctx is done, reporting which.
func (s *Semaphore) Acquire(ctx context.Context) bool {
	select {
	case s.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Release returns a slot to the semaphore. Releasing without a matching
// acquire is a caller bug; it is ignored rather than panicking so a defer
// imbalance degrades capacity instead of crashing the process.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
	}
}
