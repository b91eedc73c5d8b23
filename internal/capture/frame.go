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

// Package capture defines the capture adapter contract and
// its three concrete producers: a deterministic simulator, a live
// link-layer capture, and a diversion (IPS) driver.
package capture

import "time"

// LinkType discriminates where a Frame starts: at the link layer
// (ethernet) or already past it, at the network layer (none), as
// produced by a diversion source.
type LinkType uint8

const (
	LinkNone LinkType = iota
	LinkEthernet
)

// Frame is one captured unit handed off from capture to the pipeline.
// Ownership transfers across the ring: the producer must not retain a
// reference to Data after handing a Frame to the ring.
type Frame struct {
	Timestamp time.Time
	Data      []byte
	LinkType  LinkType
}

// Decision is the diversion adapter's pass/drop verdict for one frame
//. The default decision is Pass.
type Decision uint8

const (
	Pass Decision = iota
	Drop
)

// Callback is invoked once per frame by a Source. It may be called from
// any goroutine, but a given Source only ever calls it from one
// goroutine at a time.
type Callback func(Frame)

// Source is the capability every capture adapter implements: start
// calling back with frames, and stop. Modeled as a tagged variant
// (simulator / live / diversion) dispatched on by the pipeline rather
// than a class hierarchy
type Source interface {
	Start(cb Callback) error
	Stop()
}

// DecisionSource is the capability a diversion adapter additionally
// exposes: a policy hook deciding pass/drop per frame.
type DecisionSource interface {
	Source
	SetDecisionCallback(func(Frame) Decision)
}
