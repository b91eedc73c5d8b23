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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/rule"
)

// WaitForRuleFiles blocks until every path in files exists, or ctx is
// done. It watches each path's containing directory with fsnotify
// rather than polling, so a ruleset dropped into place after startup
// (e.g. by a provisioning step racing the pipeline's own start) is
// picked up promptly. The ruleset is still loaded exactly once at
// startup; there is no hot-reload during capture.
func WaitForRuleFiles(ctx context.Context, files []string) error {
	missing := map[string]bool{}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			missing[f] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("detect: create rule file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := map[string]bool{}
	for f := range missing {
		dir := filepath.Dir(f)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("detect: watch %s: %w", dir, err)
		}
		watchedDirs[dir] = true
	}

	for len(missing) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("detect: rule file watcher closed")
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			for f := range missing {
				if _, err := os.Stat(f); err == nil {
					delete(missing, f)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("detect: rule file watcher closed")
			}
			return fmt.Errorf("detect: rule file watcher: %w", err)
		}
	}
	return nil
}

// LoadRuleset waits for every configured rule file to exist (bounded by
// ctx), then loads the ruleset once and builds an Engine from it. Zero
// loaded rules is a logged warning, not an error: the pipeline is still
// useful for flow stats.
func LoadRuleset(ctx context.Context, files []string, log *zap.SugaredLogger) (*Engine, error) {
	if len(files) > 0 {
		if err := WaitForRuleFiles(ctx, files); err != nil {
			return nil, fmt.Errorf("detect: waiting for rule files: %w", err)
		}
	}

	rules, skipped, fileErrs := rule.LoadFiles(files)
	if skipped > 0 && log != nil {
		log.Warnw("skipped malformed rule lines", "count", skipped)
	}
	for _, err := range fileErrs {
		if log != nil {
			log.Warnw("rule file load error", "error", err)
		}
	}

	e := New()
	for _, r := range rules {
		e.AddRule(r)
	}
	e.Build()

	if len(rules) == 0 && log != nil {
		log.Warn("ruleset is empty; pipeline will run flow/reassembly stats only, no signature alerts")
	}
	return e, nil
}
