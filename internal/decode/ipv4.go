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

// IPProto identifies the transport-layer protocol carried by an IPv4
// datagram.
type IPProto uint8

const (
	ProtoICMP IPProto = 1
	ProtoTCP  IPProto = 6
	ProtoUDP  IPProto = 17
)

// IPv4Header is the decoded network-layer header. SrcIP and DstIP are
// stored as the big-endian uint32 form of the address, matching the
// wire representation used by the alert formatter.
type IPv4Header struct {
	Version  uint8
	IHL      uint8 // header length in 4-byte words
	TotalLen uint16
	TTL      uint8
	Protocol IPProto
	SrcIP    uint32
	DstIP    uint32
	Payload  []byte
}

// DecodeIPv4 parses an IPv4 datagram. It requires at least 20 bytes,
// version 4, and an IHL of at least 5 words. When the header's
// total-length field claims more than the available span, the payload
// is clamped to what's actually present instead of reading out of
// bounds.
func DecodeIPv4(span []byte) (IPv4Header, error) {
	if len(span) < 20 {
		return IPv4Header{}, fmt.Errorf("decode: ipv4 span too short: %d bytes", len(span))
	}
	version := span[0] >> 4
	if version != 4 {
		return IPv4Header{}, fmt.Errorf("decode: ipv4 bad version: %d", version)
	}
	ihl := span[0] & 0x0f
	if ihl < 5 {
		return IPv4Header{}, fmt.Errorf("decode: ipv4 bad IHL: %d", ihl)
	}
	headerLen := int(ihl) * 4
	if len(span) < headerLen {
		return IPv4Header{}, fmt.Errorf("decode: ipv4 span shorter than IHL: %d < %d", len(span), headerLen)
	}

	totalLen := binary.BigEndian.Uint16(span[2:4])
	end := int(totalLen)
	if end > len(span) || end == 0 {
		end = len(span)
	}
	if end < headerLen {
		end = headerLen
	}

	h := IPv4Header{
		Version:  version,
		IHL:      ihl,
		TotalLen: totalLen,
		TTL:      span[8],
		Protocol: IPProto(span[9]),
		SrcIP:    binary.BigEndian.Uint32(span[12:16]),
		DstIP:    binary.BigEndian.Uint32(span[16:20]),
		Payload:  span[headerLen:end],
	}
	return h, nil
}

// DottedQuad renders a big-endian uint32 address as "a.b.c.d".
func DottedQuad(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d",
		byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}
