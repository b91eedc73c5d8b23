// Copyright 2024 The Vigil Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ring implements a fixed-capacity single-producer/single-consumer
// ring buffer used to hand frames off from the capture thread to the
// worker thread without ever blocking the capture callback.
package ring

import "sync/atomic"

// SPSC is a wait-free ring buffer for exactly one producer and one
// consumer. One slot is always kept empty so that head==tail means the
// ring is empty and advancing head onto tail means it is full; this
// avoids an ambiguous "full == empty" state without a separate counter.
type SPSC[T any] struct {
	buf  []T
	mask uint64 // len(buf)-1; New always sizes buf to a power of two
	pow2 bool
	cap  uint64

	head atomic.Uint64 // next write index, producer-owned
	tail atomic.Uint64 // next read index, consumer-owned
}

// New creates a ring with room for capacity-1 live items (one slot is
// reserved). Capacity is rounded to the next power of two when it isn't
// one already, since that lets index wrap use a mask instead of a
// modulo on the hot path.
func New[T any](capacity int) *SPSC[T] {
	if capacity < 2 {
		capacity = 2
	}
	size := nextPow2(uint64(capacity))
	r := &SPSC[T]{
		buf:  make([]T, size),
		mask: size - 1,
		pow2: true,
		cap:  size,
	}
	return r
}

func nextPow2(n uint64) uint64 {
	if n&(n-1) == 0 {
		return n
	}
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}

func (r *SPSC[T]) idx(i uint64) uint64 {
	return i & r.mask
}

// TryPush attempts to enqueue v without blocking. It reports whether the
// item was accepted; false means the ring is full. Only the producer
// goroutine may call TryPush.
func (r *SPSC[T]) TryPush(v T) bool {
	head := r.head.Load()
	tail := r.tail.Load() // acquire: synchronizes with the consumer's release store
	next := head + 1
	if r.idx(next) == r.idx(tail) {
		return false // full: next write would catch the consumer's tail
	}
	r.buf[r.idx(head)] = v
	r.head.Store(next) // release: publishes buf[head] to the consumer
	return true
}

// TryPop attempts to dequeue the oldest item. It reports whether an item
// was returned; false means the ring is empty. Only the consumer
// goroutine may call TryPop.
func (r *SPSC[T]) TryPop() (T, bool) {
	var zero T
	tail := r.tail.Load()
	head := r.head.Load() // acquire: synchronizes with the producer's release store
	if tail == head {
		return zero, false // empty
	}
	v := r.buf[r.idx(tail)]
	r.buf[r.idx(tail)] = zero // drop the reference so the producer's next write doesn't keep it alive
	r.tail.Store(tail + 1)    // release: frees the slot for the producer
	return v, true
}

// Len returns a best-effort count of items currently queued. It may be
// stale by the time the caller observes it; used only for statistics.
func (r *SPSC[T]) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int(head - tail)
}

// Cap returns the usable capacity (one less than the backing array size).
func (r *SPSC[T]) Cap() int {
	return int(r.cap - 1)
}
