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

// Package rule loads the detection ruleset from flat text files: one
// rule per line, "<message>|<pattern>", with "#" and blank lines
// treated as comments.
package rule

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vigilnet/vigil/internal/flow"
)

// Predicate optionally restricts a rule to matches on flows meeting a
// condition. A nil Predicate always admits. internal/detect supplies
// the IP/port/protocol builders.
type Predicate func(flow.Key) bool

// Rule is one signature: a numeric id, a human message, and a literal
// byte pattern to match against reassembled payload. Patterns are
// compared literally; no regex, no case folding.
type Rule struct {
	ID      int
	Message string
	Pattern []byte

	Predicate Predicate
}

// LoadFile parses one rule file. Lines starting with "#" or empty lines
// are comments; every other line must be "<message>|<pattern>". Rule ids
// are assigned sequentially from *nextID, in file order, and *nextID is
// advanced past the last one assigned. Malformed
// lines are skipped and counted, never fatal: a rule file
// with nothing but junk in it still returns an empty, valid ruleset.
func LoadFile(path string, nextID *int) ([]Rule, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("rule: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f, nextID)
}

// Load parses rules from r the same way LoadFile does, returning the
// parsed rules and a count of skipped malformed lines.
func Load(r io.Reader, nextID *int) ([]Rule, int, error) {
	var rules []Rule
	skipped := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 || parts[0] == "" {
			skipped++
			continue
		}
		rules = append(rules, Rule{
			ID:      *nextID,
			Message: parts[0],
			Pattern: []byte(parts[1]),
		})
		*nextID++
	}
	if err := scanner.Err(); err != nil {
		return rules, skipped, fmt.Errorf("rule: scan: %w", err)
	}
	return rules, skipped, nil
}

// LoadFiles parses every path in files in order, assigning ids
// sequentially from 1 across all of them. A file that cannot be opened
// is skipped with its error recorded rather than aborting the whole
// load.
func LoadFiles(files []string) (rules []Rule, skippedLines int, fileErrs []error) {
	nextID := 1
	for _, path := range files {
		parsed, skipped, err := LoadFile(path, &nextID)
		skippedLines += skipped
		if err != nil {
			fileErrs = append(fileErrs, err)
			continue
		}
		rules = append(rules, parsed...)
	}
	return rules, skippedLines, fileErrs
}
