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

package capture

import (
	"testing"
	"time"
)

func TestSimulatorDeliversInOrder(t *testing.T) {
	frames := []Frame{
		{Timestamp: time.Unix(1, 0), Data: []byte("a"), LinkType: LinkNone},
		{Timestamp: time.Unix(2, 0), Data: []byte("b"), LinkType: LinkNone},
	}
	sim := NewSimulator(frames...)
	var got []string
	if err := sim.Start(func(f Frame) { got = append(got, string(f.Data)) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got = %v", got)
	}
}

func TestDiversionDefaultsToPass(t *testing.T) {
	d := NewDiversion(NewSimulator())
	if dec := d.Decide(Frame{Data: []byte("anything")}); dec != Pass {
		t.Fatalf("decision = %v, want Pass", dec)
	}
}

func TestDiversionPolicyDropsOnSubstring(t *testing.T) {
	d := NewDiversion(NewSimulator())
	d.SetDecisionCallback(DropOnSubstring("malicious"))
	if dec := d.Decide(Frame{Data: []byte("this payload contains malicious_payload data")}); dec != Drop {
		t.Fatal("expected Drop for payload containing the policy substring")
	}
	if dec := d.Decide(Frame{Data: []byte("benign data")}); dec != Pass {
		t.Fatal("expected Pass for benign payload")
	}
}

func TestDiversionForwardsEveryFrameRegardlessOfDecision(t *testing.T) {
	sim := NewSimulator(Frame{Data: []byte("malicious_payload"), LinkType: LinkNone})
	d := NewDiversion(sim)
	d.SetDecisionCallback(DropOnSubstring("malicious"))

	var delivered int
	err := d.Start(func(f Frame) {
		delivered++
		if d.Decide(f) != Drop {
			t.Fatal("expected this frame to be dropped by policy")
		}
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1 -- detection pipeline must still see dropped frames", delivered)
	}
}
