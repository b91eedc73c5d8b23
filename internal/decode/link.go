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

// Package decode implements the stateless link -> network -> transport ->
// application decode chain. Every decoder is a pure function from a byte
// span to a header struct plus a residual payload span; none of them
// retain the input, and none of them allocate beyond the header itself.
package decode

import (
	"encoding/binary"
	"fmt"
)

// EtherTypeIPv4 is the only ethertype the pipeline admits.
const EtherTypeIPv4 = 0x0800

// EthernetHeader is the decoded link-layer header.
type EthernetHeader struct {
	DstMAC, SrcMAC [6]byte
	EtherType      uint16
	Payload        []byte
}

// DecodeEthernet parses an Ethernet II frame. It requires at least 14
// bytes; shorter input is reported as a decode failure, never a panic.
func DecodeEthernet(frame []byte) (EthernetHeader, error) {
	if len(frame) < 14 {
		return EthernetHeader{}, fmt.Errorf("decode: ethernet frame too short: %d bytes", len(frame))
	}
	var h EthernetHeader
	copy(h.DstMAC[:], frame[0:6])
	copy(h.SrcMAC[:], frame[6:12])
	h.EtherType = binary.BigEndian.Uint16(frame[12:14])
	h.Payload = frame[14:]
	return h, nil
}
