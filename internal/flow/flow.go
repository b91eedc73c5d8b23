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

// Package flow implements the canonical five-tuple flow table: bounded
// capacity with LRU eviction, owned exclusively by the worker goroutine.
package flow

import (
	"time"

	"github.com/vigilnet/vigil/internal/decode"
	"github.com/vigilnet/vigil/internal/lru"
)

// Key is the five-tuple identifying a flow. Direction is preserved: A->B
// and B->A are distinct keys. It is a plain comparable
// struct so it can be used directly as a map key.
type Key struct {
	SrcIP, DstIP     uint32
	SrcPort, DstPort uint16
	Protocol         decode.IPProto
}

// Entry is the per-key mutable state tracked for a flow.
type Entry struct {
	LastSeen time.Time
	Packets  uint64
	Bytes    uint64
}

// Table wraps the bounded LRU map keyed by Key. Capacity is fixed at
// construction; default 8192.
type Table struct {
	m *lru.Map[Key, *Entry]
}

// DefaultCapacity is the default flow table size.
const DefaultCapacity = 8192

// New creates a flow table bounded to capacity entries.
func New(capacity int) *Table {
	return &Table{m: lru.New[Key, *Entry](capacity)}
}

// OnEvict registers a callback fired whenever a flow is evicted, whether
// by capacity pressure or an explicit Delete. Used to tear down the
// flow's reassembly stream in lockstep.
func (t *Table) OnEvict(fn func(Key, *Entry)) {
	t.m.OnEvict(fn)
}

// Touch records a sighting of key at timestamp now: creates the entry on
// first sight, increments the packet counter, and stores the
// last-seen timestamp. The caller is responsible for adding byte count
// separately, since only it knows the frame's payload size at this
// layer.
func (t *Table) Touch(key Key, now time.Time) *Entry {
	e, _ := t.m.GetOrCreate(key, func() *Entry { return &Entry{} })
	e.Packets++
	e.LastSeen = now
	return e
}

// AddBytes adds n to key's cumulative byte count. The entry must already
// exist (i.e. Touch was called for this frame).
func (t *Table) AddBytes(key Key, n uint64) {
	if e, ok := t.m.Get(key); ok {
		e.Bytes += n
	}
}

// Len returns the number of tracked flows.
func (t *Table) Len() int { return t.m.Len() }

// Cap returns the configured capacity.
func (t *Table) Cap() int { return t.m.Cap() }

// Delete removes key, firing the eviction callback. It reports whether
// the key was present.
func (t *Table) Delete(key Key) bool { return t.m.Delete(key) }
