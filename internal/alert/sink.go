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

package alert

import (
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
	sf "github.com/wissance/stringFormatter"
	"go.uber.org/zap"
)

// Sink is the alert persistence boundary: append to a durable log, a
// console, or both. The core never chooses a sink itself; the pipeline
// is handed one at construction.
type Sink interface {
	Emit(Alert) error
}

// ConsoleSink writes one formatted line per alert to an io.Writer (the
// operator's console sink).
type ConsoleSink struct {
	out    io.Writer
	format *Formatter
	log    *zap.SugaredLogger
}

// NewConsoleSink returns a Sink that writes to out.
func NewConsoleSink(out io.Writer, log *zap.SugaredLogger) *ConsoleSink {
	return &ConsoleSink{out: out, format: NewFormatter(), log: log}
}

// Emit writes the formatted alert line to out.
func (s *ConsoleSink) Emit(a Alert) error {
	line := s.format.Format(a)
	if _, err := io.WriteString(s.out, line+"\n"); err != nil {
		if s.log != nil {
			s.log.Errorw("console alert sink write failed", "error", err)
		}
		return fmt.Errorf("alert: console sink: %w", err)
	}
	return nil
}

// FileSink appends one JSON line per alert to a durable log file. It
// takes a flock file lock around each append so a second process
// appending to the same file can't interleave a partial line.
type FileSink struct {
	path   string
	lock   *flock.Flock
	format *Formatter
	log    *zap.SugaredLogger
}

// NewFileSink returns a Sink appending to path, creating it if absent.
func NewFileSink(path string, log *zap.SugaredLogger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("alert: open %s: %w", path, err)
	}
	f.Close()
	return &FileSink{
		path:   path,
		lock:   flock.New(path + ".lock"),
		format: NewFormatter(),
		log:    log,
	}, nil
}

// Emit appends the formatted alert line under an exclusive file lock.
func (s *FileSink) Emit(a Alert) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("alert: lock %s: %w", s.path, err)
	}
	defer s.lock.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("alert: open %s: %w", s.path, err)
	}
	defer f.Close()

	line := s.format.Format(a)
	if _, err := io.WriteString(f, line+"\n"); err != nil {
		if s.log != nil {
			s.log.Errorw("file alert sink write failed", "path", s.path, "error", err)
		}
		return fmt.Errorf("alert: write %s: %w", s.path, err)
	}
	if s.log != nil {
		s.log.Debug(sf.Format("alert/{0}: signature {1} appended", s.path, a.SignatureID))
	}
	return nil
}

// MultiSink fans an alert out to every sink in order, continuing past a
// failing sink and returning the first error encountered; an alert must
// still reach the sinks that can accept it.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns a Sink fanning out to every sink in sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Emit calls Emit on every configured sink.
func (m *MultiSink) Emit(a Alert) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Emit(a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
