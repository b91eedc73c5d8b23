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

package pipeline

import "github.com/vigilnet/vigil/internal/alert"

// DecisionSink is the seam for a host firewall action sink. It is
// handed every alert the pipeline produces and may react to it (e.g.
// blocking the offending source on the host firewall). The default
// NoopDecisionSink satisfies the contract without implementing host
// enforcement.
type DecisionSink interface {
	Enforce(alert.Alert)
}

// NoopDecisionSink discards every alert handed to it.
type NoopDecisionSink struct{}

// Enforce does nothing.
func (NoopDecisionSink) Enforce(alert.Alert) {}

var _ DecisionSink = NoopDecisionSink{}
