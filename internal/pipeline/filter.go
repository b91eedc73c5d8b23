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

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/vigilnet/vigil/internal/decode"
)

// PacketFilter gates which decoded frames the worker hands to flow
// tracking and detection: a plain allow/deny set over transport
// protocols and ports. An unconfigured filter admits everything.
type PacketFilter struct {
	protos    mapset.Set[decode.IPProto]
	allowPort mapset.Set[uint16]
	denyPort  mapset.Set[uint16]
}

// NewPacketFilter returns a filter admitting everything until
// configured otherwise.
func NewPacketFilter() *PacketFilter {
	return &PacketFilter{
		protos:    mapset.NewSet[decode.IPProto](),
		allowPort: mapset.NewSet[uint16](),
		denyPort:  mapset.NewSet[uint16](),
	}
}

// AddL4Proto restricts the filter to admit only the given transport
// protocols. Calling it at least once switches the filter from
// "admit all protocols" to an allow-list.
func (f *PacketFilter) AddL4Proto(p decode.IPProto) *PacketFilter {
	f.protos.Add(p)
	return f
}

// AllowPort admits frames whose source or destination port is port.
// Calling it at least once switches the filter from "admit all ports"
// to an allow-list (subject to DenyPort taking precedence).
func (f *PacketFilter) AllowPort(port uint16) *PacketFilter {
	f.allowPort.Add(port)
	return f
}

// DenyPort rejects frames whose source or destination port is port,
// regardless of AllowPort.
func (f *PacketFilter) DenyPort(port uint16) *PacketFilter {
	f.denyPort.Add(port)
	return f
}

// Admit reports whether a frame with the given protocol/ports should be
// handed to flow tracking and detection.
func (f *PacketFilter) Admit(proto decode.IPProto, srcPort, dstPort uint16) bool {
	if f.denyPort.Contains(srcPort) || f.denyPort.Contains(dstPort) {
		return false
	}
	if f.protos.Cardinality() > 0 && !f.protos.Contains(proto) {
		return false
	}
	if f.allowPort.Cardinality() > 0 && !f.allowPort.Contains(srcPort) && !f.allowPort.Contains(dstPort) {
		return false
	}
	return true
}
