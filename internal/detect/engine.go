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

// Package detect implements the detection engine: a ruleset, an
// Aho-Corasick automaton over the ruleset's patterns, a Bloom prefilter,
// and per-match rule evaluation against reassembled payload.
package detect

import (
	"sort"

	"github.com/vigilnet/vigil/internal/ahocorasick"
	"github.com/vigilnet/vigil/internal/bloom"
	"github.com/vigilnet/vigil/internal/flow"
	"github.com/vigilnet/vigil/internal/rule"
)

// contextRadius is the number of bytes of payload context kept on each
// side of a match, clipped to payload bounds.
const contextRadius = 10

// Match is a single occurrence of a rule's pattern inside a scanned
// payload.
type Match struct {
	Rule     rule.Rule
	Position int
	Context  []byte
}

// Engine holds the ruleset plus the automaton and Bloom filter built
// over it.
type Engine struct {
	rules         []rule.Rule
	patternToRule map[int]int // pattern id -> index into rules
	automaton     *ahocorasick.Automaton
	prefilter     *bloom.Filter
	built         bool
}

// New returns an empty detection engine.
func New() *Engine {
	return &Engine{
		automaton:     ahocorasick.New(),
		prefilter:     bloom.NewDefault(),
		patternToRule: map[int]int{},
	}
}

// AddRule appends r to the ruleset. A non-empty pattern is registered
// with both the automaton and the Bloom prefilter; an empty pattern
// never fires and is left out of both. Either way, AddRule clears the
// built flag.
func (e *Engine) AddRule(r rule.Rule) {
	idx := len(e.rules)
	e.rules = append(e.rules, r)
	if len(r.Pattern) > 0 {
		patternID := idx
		e.automaton.AddPattern(patternID, r.Pattern)
		e.patternToRule[patternID] = idx
		e.prefilter.Add(r.Pattern)
	}
	e.built = false
}

// Build finalizes the automaton. Idempotent.
func (e *Engine) Build() {
	if e.built {
		return
	}
	e.automaton.Build()
	e.built = true
}

// Len reports the number of loaded rules.
func (e *Engine) Len() int { return len(e.rules) }

// Match scans payload for every registered pattern and returns the
// admitted matches in scan order.
//
// The Bloom prefilter is deliberately not consulted here. Probing the
// filter with the very patterns that were added to it is a tautology
// and gives no real skip, and the automaton is already linear in the
// payload regardless of rule count. The filter stays built so
// PopCount-based diagnostics and membership queries over the
// registered patterns keep working; scanning just isn't gated on it.
func (e *Engine) Match(payload []byte, key flow.Key) []Match {
	if len(payload) == 0 {
		return nil
	}
	e.Build()

	hits := e.automaton.Search(payload)
	// the automaton emits by end position; callers get leftmost start
	// first, ties broken by insertion order
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Start != hits[j].Start {
			return hits[i].Start < hits[j].Start
		}
		return hits[i].PatternID < hits[j].PatternID
	})
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		idx, ok := e.patternToRule[h.PatternID]
		if !ok {
			continue
		}
		r := e.rules[idx]
		if r.Predicate != nil && !r.Predicate(key) {
			continue
		}
		matches = append(matches, Match{
			Rule:     r,
			Position: h.Start,
			Context:  contextWindow(payload, h.Start, h.Length),
		})
	}
	return matches
}

// contextWindow returns payload[start-10 : start+length+10], clipped to
// the payload's bounds.
func contextWindow(payload []byte, start, length int) []byte {
	lo := start - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := start + length + contextRadius
	if hi > len(payload) {
		hi = len(payload)
	}
	return payload[lo:hi]
}
