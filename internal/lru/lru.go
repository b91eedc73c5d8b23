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

// Package lru implements a bounded map with intrusive doubly-linked
// recency order. It is not safe for concurrent access: its one user in
// vigil, the flow table, is owned exclusively by the worker goroutine.
package lru

// entry is one node of the intrusive recency list.
type entry[K comparable, V any] struct {
	key        K
	value      V
	prev, next *entry[K, V]
}

// Map is a fixed-capacity map that evicts the least-recently-touched
// entry when an insert would exceed capacity.
type Map[K comparable, V any] struct {
	capacity int
	entries  map[K]*entry[K, V]
	mru, lru *entry[K, V] // mru is the head (most recently touched), lru is the tail

	onEvict func(K, V)
}

// New creates a Map bounded to capacity entries. capacity < 1 is treated
// as 1.
func New[K comparable, V any](capacity int) *Map[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Map[K, V]{
		capacity: capacity,
		entries:  make(map[K]*entry[K, V], capacity),
	}
}

// OnEvict registers a callback invoked synchronously whenever an entry
// is evicted, either by capacity pressure or an explicit Delete. Used to
// drop a reassembly stream when its flow is evicted from the flow
// table.
func (m *Map[K, V]) OnEvict(fn func(K, V)) {
	m.onEvict = fn
}

// Len returns the current number of entries.
func (m *Map[K, V]) Len() int { return len(m.entries) }

// Cap returns the configured capacity.
func (m *Map[K, V]) Cap() int { return m.capacity }

func (m *Map[K, V]) unlink(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		m.mru = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		m.lru = e.prev
	}
	e.prev, e.next = nil, nil
}

func (m *Map[K, V]) pushFront(e *entry[K, V]) {
	e.prev = nil
	e.next = m.mru
	if m.mru != nil {
		m.mru.prev = e
	}
	m.mru = e
	if m.lru == nil {
		m.lru = e
	}
}

func (m *Map[K, V]) touch(e *entry[K, V]) {
	if m.mru == e {
		return
	}
	m.unlink(e)
	m.pushFront(e)
}

// Get returns the value for key and splices it to the MRU end if
// present.
func (m *Map[K, V]) Get(key K) (V, bool) {
	var zero V
	e, ok := m.entries[key]
	if !ok {
		return zero, false
	}
	m.touch(e)
	return e.value, true
}

// GetOrCreate returns the entry for key, creating it with factory if
// absent. If the map is at capacity and an insert is required, the
// least-recently-touched entry is evicted first. Either way the
// returned entry is spliced to the MRU end.
func (m *Map[K, V]) GetOrCreate(key K, factory func() V) (value V, created bool) {
	if e, ok := m.entries[key]; ok {
		m.touch(e)
		return e.value, false
	}
	if len(m.entries) >= m.capacity {
		m.evictLRU()
	}
	v := factory()
	e := &entry[K, V]{key: key, value: v}
	m.entries[key] = e
	m.pushFront(e)
	return v, true
}

// Put inserts or overwrites key's value, evicting the LRU entry first if
// necessary. The entry lands at the MRU end.
func (m *Map[K, V]) Put(key K, value V) {
	if e, ok := m.entries[key]; ok {
		e.value = value
		m.touch(e)
		return
	}
	if len(m.entries) >= m.capacity {
		m.evictLRU()
	}
	e := &entry[K, V]{key: key, value: value}
	m.entries[key] = e
	m.pushFront(e)
}

// Delete removes key, invoking the eviction callback if one is
// registered. It reports whether the key was present.
func (m *Map[K, V]) Delete(key K) bool {
	e, ok := m.entries[key]
	if !ok {
		return false
	}
	m.unlink(e)
	delete(m.entries, key)
	if m.onEvict != nil {
		m.onEvict(e.key, e.value)
	}
	return true
}

func (m *Map[K, V]) evictLRU() {
	e := m.lru
	if e == nil {
		return
	}
	m.unlink(e)
	delete(m.entries, e.key)
	if m.onEvict != nil {
		m.onEvict(e.key, e.value)
	}
}

// Keys returns the entries' keys ordered from most- to least-recently
// touched. Intended for tests and diagnostics, not the hot path.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.entries))
	for e := m.mru; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}
