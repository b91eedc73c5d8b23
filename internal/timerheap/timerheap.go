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

// Package timerheap implements a min-heap of deadlines, used to schedule
// idle-segment sweeps for TCP reassembly streams without polling every
// stream on every packet.
package timerheap

import "container/heap"

// Item is one scheduled deadline. The owner takes items off with Pop or
// PopExpired once Deadline has passed; Key lets the owner correlate an
// expired item back to the stream or flow it belongs to.
type Item struct {
	Deadline int64 // unix nanos
	Key      uint64
	index    int // maintained by container/heap
}

type innerHeap []*Item

func (h innerHeap) Len() int            { return len(h) }
func (h innerHeap) Less(i, j int) bool  { return h[i].Deadline < h[j].Deadline }
func (h innerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *innerHeap) Push(x interface{}) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *innerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Heap is a min-heap ordered by Item.Deadline.
type Heap struct {
	h innerHeap
}

// New returns an empty heap.
func New() *Heap {
	return &Heap{h: innerHeap{}}
}

// Push schedules a new deadline.
func (q *Heap) Push(deadline int64, key uint64) *Item {
	item := &Item{Deadline: deadline, Key: key}
	heap.Push(&q.h, item)
	return item
}

// Peek returns the earliest deadline without removing it.
func (q *Heap) Peek() (*Item, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return q.h[0], true
}

// Pop removes and returns the earliest deadline.
func (q *Heap) Pop() (*Item, bool) {
	if len(q.h) == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*Item), true
}

// PopExpired removes and returns every item whose deadline is <= now, in
// deadline order.
func (q *Heap) PopExpired(now int64) []*Item {
	var expired []*Item
	for len(q.h) > 0 && q.h[0].Deadline <= now {
		expired = append(expired, heap.Pop(&q.h).(*Item))
	}
	return expired
}

// Len reports the number of scheduled items.
func (q *Heap) Len() int { return len(q.h) }
