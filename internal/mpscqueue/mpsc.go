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

// Package mpscqueue implements an intrusive multi-producer/single-consumer
// queue, used to funnel alerts produced by many logical producers to one
// writer without a mutex on the hot path.
package mpscqueue

import "sync/atomic"

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Queue is a Vyukov-style intrusive MPSC queue. Any number of goroutines
// may call Push concurrently; only one goroutine may call Pop.
type Queue[T any] struct {
	head atomic.Pointer[node[T]] // producers race to swap this
	tail *node[T]                // consumer-owned
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	stub := &node[T]{}
	q := &Queue[T]{tail: stub}
	q.head.Store(stub)
	return q
}

// Push enqueues v. Safe to call from any number of goroutines
// concurrently.
func (q *Queue[T]) Push(v T) {
	n := &node[T]{value: v}
	prev := q.head.Swap(n)
	prev.next.Store(n)
}

// TryPop dequeues the oldest value. It reports whether a value was
// returned. Only the single consumer goroutine may call TryPop.
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	next := q.tail.next.Load()
	if next == nil {
		return zero, false
	}
	q.tail = next
	v := next.value
	next.value = zero
	return v, true
}
