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

// Package reassembly implements per-TCP-flow segment reassembly: an
// ordered store of out-of-order segments keyed by sequence number, and a
// bounded contiguous emitted buffer.
package reassembly

import (
	"time"

	"github.com/zhangyunhao116/skipmap"
)

// MaxReassembled is the bound on the emitted buffer.
const MaxReassembled = 1 << 20 // 1 MiB

// SegmentIdleTimeout is how long an out-of-order segment may sit in the
// pending store before it's swept away.
const SegmentIdleTimeout = 30 * time.Second

// segment is one pending out-of-order byte range.
type segment struct {
	data      []byte
	arrivedAt time.Time
}

// Stream is the per-flow reassembly state. The pending map is a
// skipmap keyed by sequence number: Range walks keys in ascending
// order, which is the shape the idle sweep and diagnostics want.
type Stream struct {
	initialSeqSet bool
	nextExpected  uint32
	pending       *skipmap.Uint32Map[*segment]
	emitted       []byte
	hasNewData    bool

	// committedStart is the sequence number of emitted[0]. It lets a
	// segment that arrives after the stream's first segment, but whose
	// data precedes it, get spliced onto the front instead of being
	// treated as already folded in -- the first segment a capture
	// delivers for a flow is not guaranteed to be the first one sent.
	committedStart    uint32
	committedStartSet bool
}

// NewStream creates an empty reassembly stream.
func NewStream() *Stream {
	return &Stream{pending: skipmap.NewUint32[*segment]()}
}

// SetInitialSeq is called on the first TCP segment seen for the flow;
// next-expected becomes seq. Calling it again is a no-op (only the
// first sighting sets the baseline).
func (s *Stream) SetInitialSeq(seq uint32) {
	if s.initialSeqSet {
		return
	}
	s.initialSeqSet = true
	s.nextExpected = seq
}

// AddSegment inserts data at seq and folds in every pending segment that
// becomes contiguous as a result, advancing next-expected as far as
// possible. Empty segments are ignored.
func (s *Stream) AddSegment(seq uint32, data []byte, now time.Time) {
	if len(data) == 0 {
		return
	}
	if !s.initialSeqSet {
		s.SetInitialSeq(seq)
	} else if seq < s.nextExpected {
		if s.committedStartSet && seq+uint32(len(data)) == s.committedStart {
			s.emitted = append(append([]byte(nil), data...), s.emitted...)
			s.committedStart = seq
			s.hasNewData = true
			s.enforceBound()
			s.sweepIdle(now)
			return
		}
		// duplicate or retransmission of bytes already folded in
		return
	}

	s.pending.Store(seq, &segment{data: data, arrivedAt: now})

	for {
		key := s.nextExpected
		seg, ok := s.pending.Load(key)
		if !ok {
			break
		}
		if !s.committedStartSet {
			s.committedStart = key
			s.committedStartSet = true
		}
		s.emitted = append(s.emitted, seg.data...)
		s.nextExpected += uint32(len(seg.data))
		s.pending.Delete(key)
		s.hasNewData = true
	}
	s.enforceBound()
	s.sweepIdle(now)
}

// enforceBound truncates the oldest prefix of the emitted buffer so it
// never exceeds MaxReassembled; new content is never sacrificed.
// Truncation can sever a match straddling the dropped prefix; with a
// 1 MiB bound that trade is acceptable.
func (s *Stream) enforceBound() {
	if len(s.emitted) <= MaxReassembled {
		return
	}
	drop := len(s.emitted) - MaxReassembled
	s.emitted = s.emitted[drop:]
}

// sweepIdle erases pending segments whose arrival timestamp is older
// than now-30s. Called inline after every
// AddSegment for correctness; internal/pipeline additionally schedules
// a heap-driven sweep via internal/timerheap so idle segments are
// reclaimed even on flows that stop receiving new data entirely.
func (s *Stream) sweepIdle(now time.Time) {
	deadline := now.Add(-SegmentIdleTimeout)
	var stale []uint32
	s.pending.Range(func(key uint32, seg *segment) bool {
		if seg.arrivedAt.Before(deadline) {
			stale = append(stale, key)
		}
		return true
	})
	for _, k := range stale {
		s.pending.Delete(k)
	}
}

// Sweep is the externally-driven counterpart of sweepIdle, invoked by
// the timerheap-scheduled sweeper (internal/pipeline) for streams that
// have gone quiet.
func (s *Stream) Sweep(now time.Time) {
	s.sweepIdle(now)
}

// GetReassembledData returns a read-only view of the emitted buffer.
// The returned slice must not outlive the stream and must not be
// mutated by the caller.
func (s *Stream) GetReassembledData() []byte {
	return s.emitted
}

// HasNewData reports whether bytes have been appended since the last
// MarkDataConsumed call.
func (s *Stream) HasNewData() bool {
	return s.hasNewData
}

// MarkDataConsumed clears the new-data flag. The emitted buffer itself
// is left in place (bounded by MaxReassembled) so matches straddling
// scan boundaries can still fire once enough data accumulates.
func (s *Stream) MarkDataConsumed() {
	s.hasNewData = false
}

// NextExpected exposes the current expected sequence number, for tests
// and diagnostics.
func (s *Stream) NextExpected() uint32 { return s.nextExpected }

// PendingLen returns the number of out-of-order segments still held.
func (s *Stream) PendingLen() int { return s.pending.Len() }
