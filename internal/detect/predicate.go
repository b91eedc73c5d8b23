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
	"github.com/vigilnet/vigil/internal/decode"
	"github.com/vigilnet/vigil/internal/flow"
	"github.com/vigilnet/vigil/internal/rule"
)

// PredicateBuilder assembles a rule's flow-key predicate: a small
// composable set of IP/port/protocol matchers a rule loader or
// operator tool can attach to a rule. A rule with no predicate always
// admits.
type PredicateBuilder struct {
	preds []rule.Predicate
}

// NewPredicateBuilder returns an empty builder; Build on an empty
// builder yields nil, which AddRule/Match treat as "always admit."
func NewPredicateBuilder() *PredicateBuilder { return &PredicateBuilder{} }

// RequireSrcIP restricts matches to flows whose source address equals
// ip (big-endian uint32 form, matching flow.Key).
func (b *PredicateBuilder) RequireSrcIP(ip uint32) *PredicateBuilder {
	b.preds = append(b.preds, func(k flow.Key) bool { return k.SrcIP == ip })
	return b
}

// RequireDstIP restricts matches to flows whose destination address
// equals ip.
func (b *PredicateBuilder) RequireDstIP(ip uint32) *PredicateBuilder {
	b.preds = append(b.preds, func(k flow.Key) bool { return k.DstIP == ip })
	return b
}

// RequireDstPort restricts matches to flows whose destination port
// equals port.
func (b *PredicateBuilder) RequireDstPort(port uint16) *PredicateBuilder {
	b.preds = append(b.preds, func(k flow.Key) bool { return k.DstPort == port })
	return b
}

// RequireSrcPort restricts matches to flows whose source port equals
// port.
func (b *PredicateBuilder) RequireSrcPort(port uint16) *PredicateBuilder {
	b.preds = append(b.preds, func(k flow.Key) bool { return k.SrcPort == port })
	return b
}

// RequireProtocol restricts matches to flows carrying proto.
func (b *PredicateBuilder) RequireProtocol(proto decode.IPProto) *PredicateBuilder {
	b.preds = append(b.preds, func(k flow.Key) bool { return k.Protocol == proto })
	return b
}

// Build returns a rule.Predicate admitting a flow only if every
// attached condition holds. An empty builder returns nil, which the
// engine treats as "always admit".
func (b *PredicateBuilder) Build() rule.Predicate {
	if len(b.preds) == 0 {
		return nil
	}
	preds := append([]rule.Predicate(nil), b.preds...)
	return func(k flow.Key) bool {
		for _, p := range preds {
			if !p(k) {
				return false
			}
		}
		return true
	}
}
