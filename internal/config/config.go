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

// Package config loads vigil's recognized options from a flat
// key=value file layered under environment overrides. One plain
// struct-of-options, no nested sections.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CaptureMode selects which capture.Source the pipeline wires up.
type CaptureMode string

const (
	ModeSimulation CaptureMode = "simulation"
	ModeLive       CaptureMode = "live"
	ModeDiversion  CaptureMode = "diversion"
)

// Config is the full set of recognized options.
type Config struct {
	CaptureMode          CaptureMode
	InterfaceName        string
	DiversionFilter      string
	RingBufferSize       int
	FlowTableSize        int
	WorkerThreads        int
	RuleFiles            []string
	EnableStats          bool
	StatsIntervalSeconds int
}

// Default returns the table's documented defaults.
func Default() Config {
	return Config{
		CaptureMode:          ModeSimulation,
		RingBufferSize:       1024,
		FlowTableSize:        8192,
		WorkerThreads:        1,
		EnableStats:          true,
		StatsIntervalSeconds: 5,
	}
}

// Load reads a flat key=value config file (lines starting with "#" or
// blank are comments) layered over Default(), then applies VIGIL_-
// prefixed environment overrides (e.g. VIGIL_INTERFACE_NAME).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := applyReader(&cfg, f); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyReader(cfg *Config, f *os.File) error {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		apply(cfg, key, val)
	}
	return scanner.Err()
}

func applyEnv(cfg *Config) {
	for _, key := range []string{
		"capture_mode", "interface_name", "diversion_filter",
		"ring_buffer_size", "flow_table_size", "worker_threads",
		"rule_files", "enable_stats", "stats_interval_seconds",
	} {
		envKey := "VIGIL_" + strings.ToUpper(key)
		if val, ok := os.LookupEnv(envKey); ok {
			apply(cfg, key, val)
		}
	}
}

func apply(cfg *Config, key, val string) {
	switch key {
	case "capture_mode":
		cfg.CaptureMode = CaptureMode(val)
	case "interface_name":
		cfg.InterfaceName = val
	case "diversion_filter":
		cfg.DiversionFilter = val
	case "ring_buffer_size":
		if n, err := strconv.Atoi(val); err == nil {
			cfg.RingBufferSize = n
		}
	case "flow_table_size":
		if n, err := strconv.Atoi(val); err == nil {
			cfg.FlowTableSize = n
		}
	case "worker_threads":
		if n, err := strconv.Atoi(val); err == nil {
			cfg.WorkerThreads = n
		}
	case "rule_files":
		cfg.RuleFiles = splitList(val)
	case "enable_stats":
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.EnableStats = b
		}
	case "stats_interval_seconds":
		if n, err := strconv.Atoi(val); err == nil {
			cfg.StatsIntervalSeconds = n
		}
	}
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
