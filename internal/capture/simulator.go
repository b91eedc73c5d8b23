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

package capture

import (
	"sync"
)

// Simulator is the deterministic capture source used by tests and the
// "simulation" capture_mode: it replays a fixed slice of frames (or
// frames pushed after Start via Inject) through the callback on the
// goroutine that calls Start, which the pipeline runs as its capture
// goroutine.
type Simulator struct {
	mu      sync.Mutex
	frames  []Frame
	cb      Callback
	done    chan struct{}
	started bool
}

// NewSimulator returns a simulator that will replay frames, in order,
// once Start is called.
func NewSimulator(frames ...Frame) *Simulator {
	return &Simulator{frames: append([]Frame(nil), frames...)}
}

// Inject appends a frame to be delivered after any already-queued
// frames. Safe to call before or after Start.
func (s *Simulator) Inject(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && s.cb != nil {
		s.cb(f)
		return
	}
	s.frames = append(s.frames, f)
}

// Start delivers every queued frame to cb synchronously on the calling
// goroutine, then returns. Frames injected afterward are delivered
// inline by Inject.
func (s *Simulator) Start(cb Callback) error {
	s.mu.Lock()
	s.cb = cb
	s.started = true
	frames := s.frames
	s.frames = nil
	s.done = make(chan struct{})
	s.mu.Unlock()

	for _, f := range frames {
		cb(f)
	}
	return nil
}

// Stop marks the simulator done. Idempotent.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			close(s.done)
		}
	}
	s.started = false
}

var _ Source = (*Simulator)(nil)
