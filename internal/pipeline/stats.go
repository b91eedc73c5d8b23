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

import "sync/atomic"

// Stats holds the pipeline's cross-thread counters: packets processed,
// alerts generated, frames dropped, and frames that failed decode.
// Together with the ring indices and the done, captureDone and
// workerDone flags, these are the only atomics in the pipeline.
type Stats struct {
	PacketsProcessed atomic.Uint64
	AlertsGenerated  atomic.Uint64
	FramesDropped    atomic.Uint64
	DecodeFailures   atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats, handed to the stats sink.
type Snapshot struct {
	PacketsProcessed uint64
	AlertsGenerated  uint64
	FramesDropped    uint64
	DecodeFailures   uint64
}

// Snapshot reads every counter. Individual loads are not mutually
// atomic with each other, which is fine: this is a sampling interface,
// not a consistency boundary.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		PacketsProcessed: s.PacketsProcessed.Load(),
		AlertsGenerated:  s.AlertsGenerated.Load(),
		FramesDropped:    s.FramesDropped.Load(),
		DecodeFailures:   s.DecodeFailures.Load(),
	}
}
