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

// Package alert builds and emits the structured alert record: one JSON
// object per line, one per match.
package alert

import (
	"time"

	"github.com/Jeffail/gabs/v2"

	"github.com/vigilnet/vigil/internal/decode"
	"github.com/vigilnet/vigil/internal/flow"
)

// Alert is one emitted detection. Context is carried on the record for
// Sink implementations that want it, but is not part of the wire JSON;
// the shipped console and file sinks write only the formatted line.
type Alert struct {
	Timestamp   time.Time
	SignatureID int
	Signature   string
	SrcIP       uint32
	SrcPort     uint16
	DstIP       uint32
	DstPort     uint16
	Context     []byte
}

// FromMatch builds an Alert from a detection match plus the flow it
// occurred on.
func FromMatch(now time.Time, signatureID int, signature string, key flow.Key, context []byte) Alert {
	return Alert{
		Timestamp:   now,
		SignatureID: signatureID,
		Signature:   signature,
		SrcIP:       key.SrcIP,
		SrcPort:     key.SrcPort,
		DstIP:       key.DstIP,
		DstPort:     key.DstPort,
		Context:     context,
	}
}

// GeoResolver is the seam for an external geographic address resolver.
// The formatter calls it if set; nil means no geo fields are added. No
// implementation ships with the core.
type GeoResolver interface {
	Resolve(ip uint32) (country string, ok bool)
}

// Formatter renders an Alert as a single-line JSON object, built with
// gabs so nested fields go in by path instead of via throwaway structs.
type Formatter struct {
	Geo GeoResolver
}

// NewFormatter returns a Formatter with no geo resolver attached.
func NewFormatter() *Formatter { return &Formatter{} }

// Format renders a into one JSON line:
//
//	{"timestamp":...,"event_type":"alert","alert":{"signature_id":...,
//	 "signature":"..."},"src_ip":"a.b.c.d","src_port":...,
//	 "dest_ip":"a.b.c.d","dest_port":...}
func (f *Formatter) Format(a Alert) string {
	doc := gabs.New()
	doc.Set(a.Timestamp.UTC().Format(time.RFC3339Nano), "timestamp")
	doc.Set("alert", "event_type")

	sig, _ := doc.Object("alert")
	sig.Set(a.SignatureID, "signature_id")
	sig.Set(a.Signature, "signature")

	doc.Set(decode.DottedQuad(a.SrcIP), "src_ip")
	doc.Set(a.SrcPort, "src_port")
	doc.Set(decode.DottedQuad(a.DstIP), "dest_ip")
	doc.Set(a.DstPort, "dest_port")

	if f.Geo != nil {
		if country, ok := f.Geo.Resolve(a.SrcIP); ok {
			doc.Set(country, "src_geo")
		}
		if country, ok := f.Geo.Resolve(a.DstIP); ok {
			doc.Set(country, "dest_geo")
		}
	}

	return doc.String()
}
