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
	"time"

	"github.com/vigilnet/vigil/internal/flow"
)

// AnomalySignatureID is the reserved signature id anomaly alerts use,
// kept out of the range rule-file ids are assigned from (which starts
// at 1 and grows with the ruleset).
const AnomalySignatureID = -1

// AnomalyMessage is the alert message attached to anomaly detections.
const AnomalyMessage = "flow rate anomaly"

// AnomalyThresholds bounds the packets/bytes-per-second rates a flow
// may sustain before AnomalyAnalyzer flags it. Rate analysis runs
// alongside signature matching and never gates it.
type AnomalyThresholds struct {
	MaxPacketsPerSecond float64
	MaxBytesPerSecond   float64
}

// DefaultAnomalyThresholds are conservative enough not to fire on
// ordinary bulk transfer. The pipeline always uses these values; no
// configuration option overrides them.
var DefaultAnomalyThresholds = AnomalyThresholds{
	MaxPacketsPerSecond: 5000,
	MaxBytesPerSecond:   50 << 20, // 50 MiB/s
}

// flowRate tracks the previous sample for one flow so AnomalyAnalyzer
// can compute a rate instead of a raw counter.
type flowRate struct {
	lastPackets uint64
	lastBytes   uint64
	lastSampled time.Time
}

// AnomalyAnalyzer is a per-flow rate signal consuming the same counters
// the flow table already tracks (flow.Entry.Packets/Bytes). It does not
// touch the signature-matching path; the pipeline runs it alongside
// Engine.Match and feeds its output through the same alert sink under a
// reserved signature id.
type AnomalyAnalyzer struct {
	thresholds AnomalyThresholds
	samples    map[flow.Key]*flowRate
}

// NewAnomalyAnalyzer returns an analyzer using the given thresholds.
func NewAnomalyAnalyzer(thresholds AnomalyThresholds) *AnomalyAnalyzer {
	return &AnomalyAnalyzer{thresholds: thresholds, samples: map[flow.Key]*flowRate{}}
}

// Observe samples key's current counters at now and reports whether the
// computed packets/sec or bytes/sec rate exceeds the configured
// thresholds since the previous observation. The first observation of a
// key never fires, since no prior sample exists to compute a rate from.
func (a *AnomalyAnalyzer) Observe(key flow.Key, entry *flow.Entry, now time.Time) bool {
	prev, ok := a.samples[key]
	if !ok {
		a.samples[key] = &flowRate{lastPackets: entry.Packets, lastBytes: entry.Bytes, lastSampled: now}
		return false
	}
	elapsed := now.Sub(prev.lastSampled).Seconds()
	fired := false
	if elapsed > 0 {
		pps := float64(entry.Packets-prev.lastPackets) / elapsed
		bps := float64(entry.Bytes-prev.lastBytes) / elapsed
		if pps > a.thresholds.MaxPacketsPerSecond || bps > a.thresholds.MaxBytesPerSecond {
			fired = true
		}
	}
	prev.lastPackets = entry.Packets
	prev.lastBytes = entry.Bytes
	prev.lastSampled = now
	return fired
}

// Forget drops a flow's rate sample, called when the flow table evicts
// the flow, the same way the flow's reassembly stream is torn down.
func (a *AnomalyAnalyzer) Forget(key flow.Key) {
	delete(a.samples, key)
}
