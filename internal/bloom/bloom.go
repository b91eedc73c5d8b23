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

// Package bloom implements a fixed-size Bloom filter with no false
// negatives. The detection engine registers every rule pattern in one
// alongside its Aho-Corasick automaton; it does not gate scanning on it.
package bloom

import "math/bits"

const (
	// DefaultBits is the default bit-array size.
	DefaultBits = 16384
	// DefaultK is the default number of hash probes per element.
	DefaultK = 4
)

// Filter is a double-hashing Bloom filter: the i-th probed bit is
// (h1 + i*h2) mod m, so only two 64-bit hashes are ever computed per
// element regardless of k.
type Filter struct {
	bits []uint64
	m    uint64
	k    int
}

// New creates a filter with m bits (rounded up to a multiple of 64) and
// k hash probes per element.
func New(m, k int) *Filter {
	if m < 64 {
		m = 64
	}
	if k < 1 {
		k = 1
	}
	words := (m + 63) / 64
	return &Filter{
		bits: make([]uint64, words),
		m:    uint64(words * 64),
		k:    k,
	}
}

// NewDefault creates a filter using the default size and k.
func NewDefault() *Filter {
	return New(DefaultBits, DefaultK)
}

// hash64 is fnv1a with a caller-supplied basis; two different bases
// give the two seeded 64-bit hashes the double-hash scheme needs. Cheap
// and collision-independent enough for a prefilter whose only
// correctness requirement is "no false negatives".
func hash64(data []byte, seed uint64) uint64 {
	const prime = 1099511628211
	h := seed
	for _, b := range data {
		h ^= uint64(b)
		h *= prime
	}
	return h
}

func (f *Filter) positions(data []byte) (h1, h2 uint64) {
	h1 = hash64(data, 14695981039346656037)
	h2 = hash64(data, 1469598103934665603)
	if h2 == 0 {
		h2 = 1 // a zero second hash would collapse every probe onto h1
	}
	return h1, h2
}

// Add registers data's membership.
func (f *Filter) Add(data []byte) {
	h1, h2 := f.positions(data)
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.m
		f.bits[pos/64] |= 1 << (pos % 64)
	}
}

// PossiblyContains reports whether data might have been added. False
// means definitely not added; true means maybe (or definitely, but the
// filter can't distinguish).
func (f *Filter) PossiblyContains(data []byte) bool {
	h1, h2 := f.positions(data)
	for i := 0; i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % f.m
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// PopCount returns the number of set bits, exposed for diagnostics.
func (f *Filter) PopCount() int {
	n := 0
	for _, w := range f.bits {
		n += bits.OnesCount64(w)
	}
	return n
}
