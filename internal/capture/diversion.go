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

import "sync"

// Diversion is the IPS-mode capture source. Upstream is the underlying
// frame source (e.g. a Live adapter configured against a
// diversion-created interface, or a Simulator in tests); Diversion wraps
// it to additionally run a decision callback per frame and report
// pass/drop. Frames are forwarded exactly as upstream produced them,
// LinkType included: a Live upstream yields ethernet frames, and the
// pipeline decodes by the tag either way.
//
// The default decision is Pass; SetDecisionCallback installs the
// operator's policy hook. The detection pipeline still receives every
// frame regardless of the decision -- only the diversion driver's
// reinjection is gated by it.
type Diversion struct {
	upstream Source

	mu       sync.RWMutex
	decision func(Frame) Decision
}

// NewDiversion wraps upstream as a diversion source.
func NewDiversion(upstream Source) *Diversion {
	return &Diversion{upstream: upstream, decision: func(Frame) Decision { return Pass }}
}

// SetDecisionCallback installs fn as the pass/drop policy. Safe to call
// before or after Start.
func (d *Diversion) SetDecisionCallback(fn func(Frame) Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.decision = fn
}

// Decide returns the current decision for frame, defaulting to Pass if
// no policy was installed.
func (d *Diversion) Decide(f Frame) Decision {
	d.mu.RLock()
	fn := d.decision
	d.mu.RUnlock()
	if fn == nil {
		return Pass
	}
	return fn(f)
}

// Start forwards every frame from upstream to cb unconditionally -- the
// detection pipeline inspects every frame regardless of the pass/drop
// decision; callers that also need the decision call Decide separately.
// The CLI installs the policy but does not call Decide itself.
func (d *Diversion) Start(cb Callback) error {
	return d.upstream.Start(cb)
}

// Stop stops the upstream source.
func (d *Diversion) Stop() {
	d.upstream.Stop()
}

var _ DecisionSource = (*Diversion)(nil)
