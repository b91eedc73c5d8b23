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

package detect

import (
	"testing"
	"time"

	"github.com/vigilnet/vigil/internal/decode"
	"github.com/vigilnet/vigil/internal/flow"
	"github.com/vigilnet/vigil/internal/rule"
)

func TestSingleRuleMatchPosition(t *testing.T) {
	e := New()
	e.AddRule(rule.Rule{ID: 1, Message: "t", Pattern: []byte("test")})
	payload := []byte("XXXXtestYYYY")
	matches := e.Match(payload, flow.Key{})
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	if matches[0].Position != 4 {
		t.Fatalf("position = %d, want 4", matches[0].Position)
	}
	if matches[0].Rule.ID != 1 {
		t.Fatalf("rule id = %d, want 1", matches[0].Rule.ID)
	}
}

func TestEmptyPayloadNoMatch(t *testing.T) {
	e := New()
	e.AddRule(rule.Rule{ID: 1, Message: "t", Pattern: []byte("test")})
	if matches := e.Match(nil, flow.Key{}); matches != nil {
		t.Fatalf("matches = %v, want nil", matches)
	}
}

func TestContextWindowClippedToBounds(t *testing.T) {
	e := New()
	e.AddRule(rule.Rule{ID: 1, Message: "t", Pattern: []byte("hit")})
	payload := []byte("hitXXXXXXXXXXXXXXXX")
	matches := e.Match(payload, flow.Key{})
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	if string(matches[0].Context) != string(payload[0:13]) {
		t.Fatalf("context = %q, want clipped window", matches[0].Context)
	}
}

func TestPredicateRestrictsMatch(t *testing.T) {
	e := New()
	pred := NewPredicateBuilder().RequireDstPort(80).Build()
	e.AddRule(rule.Rule{ID: 1, Message: "t", Pattern: []byte("test"), Predicate: pred})

	admitted := flow.Key{DstPort: 80, Protocol: decode.ProtoTCP}
	rejected := flow.Key{DstPort: 443, Protocol: decode.ProtoTCP}

	if got := e.Match([]byte("test"), admitted); len(got) != 1 {
		t.Fatalf("admitted flow: got %d matches, want 1", len(got))
	}
	if got := e.Match([]byte("test"), rejected); len(got) != 0 {
		t.Fatalf("rejected flow: got %d matches, want 0", len(got))
	}
}

func TestMultiplePatternsScanOrder(t *testing.T) {
	e := New()
	e.AddRule(rule.Rule{ID: 1, Message: "a", Pattern: []byte("foo")})
	e.AddRule(rule.Rule{ID: 2, Message: "b", Pattern: []byte("bar")})
	matches := e.Match([]byte("xxfooxxbarxx"), flow.Key{})
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}
	if matches[0].Rule.ID != 1 || matches[1].Rule.ID != 2 {
		t.Fatalf("matches out of order: %+v", matches)
	}
}

func TestAnomalyAnalyzerFiresOnRateExceeded(t *testing.T) {
	a := NewAnomalyAnalyzer(AnomalyThresholds{MaxPacketsPerSecond: 10, MaxBytesPerSecond: 1 << 30})
	key := flow.Key{SrcIP: 1}
	base := time.Now()
	entry := &flow.Entry{Packets: 1, Bytes: 100}
	if a.Observe(key, entry, base) {
		t.Fatal("first observation should never fire")
	}
	entry.Packets = 1000
	if !a.Observe(key, entry, base.Add(time.Second)) {
		t.Fatal("expected anomaly to fire on high packet rate")
	}
}
