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

package decode

import (
	"encoding/binary"
	"fmt"
)

// TCPHeader is the decoded transport-layer header for TCP segments.
type TCPHeader struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	DataOffset       uint8 // in 4-byte words
	Flags            uint8
	Payload          []byte
}

const (
	TCPFlagFIN uint8 = 1 << 0
	TCPFlagSYN uint8 = 1 << 1
	TCPFlagRST uint8 = 1 << 2
	TCPFlagPSH uint8 = 1 << 3
	TCPFlagACK uint8 = 1 << 4
	TCPFlagURG uint8 = 1 << 5
)

// DecodeTCP parses a TCP segment. It requires at least 20 bytes and a
// data offset of at least 5 words.
func DecodeTCP(span []byte) (TCPHeader, error) {
	if len(span) < 20 {
		return TCPHeader{}, fmt.Errorf("decode: tcp span too short: %d bytes", len(span))
	}
	dataOffset := span[12] >> 4
	if dataOffset < 5 {
		return TCPHeader{}, fmt.Errorf("decode: tcp bad data offset: %d", dataOffset)
	}
	headerLen := int(dataOffset) * 4
	if len(span) < headerLen {
		return TCPHeader{}, fmt.Errorf("decode: tcp span shorter than data offset: %d < %d", len(span), headerLen)
	}
	h := TCPHeader{
		SrcPort:    binary.BigEndian.Uint16(span[0:2]),
		DstPort:    binary.BigEndian.Uint16(span[2:4]),
		Seq:        binary.BigEndian.Uint32(span[4:8]),
		Ack:        binary.BigEndian.Uint32(span[8:12]),
		DataOffset: dataOffset,
		Flags:      span[13],
		Payload:    span[headerLen:],
	}
	return h, nil
}

// UDPHeader is the decoded transport-layer header for UDP datagrams.
type UDPHeader struct {
	SrcPort, DstPort uint16
	Length           uint16
	Payload          []byte
}

// DecodeUDP parses a UDP datagram. It requires at least 8 bytes.
func DecodeUDP(span []byte) (UDPHeader, error) {
	if len(span) < 8 {
		return UDPHeader{}, fmt.Errorf("decode: udp span too short: %d bytes", len(span))
	}
	return UDPHeader{
		SrcPort: binary.BigEndian.Uint16(span[0:2]),
		DstPort: binary.BigEndian.Uint16(span[2:4]),
		Length:  binary.BigEndian.Uint16(span[4:6]),
		Payload: span[8:],
	}, nil
}
