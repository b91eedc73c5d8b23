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

// Command vigil is the operator CLI: it loads configuration, builds the
// capture source for the configured mode, loads the ruleset, and runs
// the inspection pipeline until interrupted. Nothing here is engine
// logic; it exists only to wire the internal packages together.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vigilnet/vigil/internal/alert"
	"github.com/vigilnet/vigil/internal/capture"
	"github.com/vigilnet/vigil/internal/config"
	"github.com/vigilnet/vigil/internal/detect"
	"github.com/vigilnet/vigil/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a vigil config file (key=value lines)")
	alertLogPath := flag.String("alert-log", "", "path to append alert JSON lines to; console only if empty")
	logFormat := flag.String("log-format", os.Getenv("VIGIL_LOG_FORMAT"), "log encoding: console or json")
	flag.Parse()

	log, err := newLogger(*logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vigil: logger init: %v\n", err)
		return 1
	}
	defer log.Sync()
	sugar := log.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		sugar.Errorw("config load failed", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	engine, err := detect.LoadRuleset(loadCtx, cfg.RuleFiles, sugar)
	loadCancel()
	if err != nil {
		sugar.Errorw("rule load failed", "error", err)
		return 1
	}
	sugar.Infow("ruleset loaded", "rules", engine.Len())

	source, err := buildSource(cfg, sugar)
	if err != nil {
		sugar.Errorw("capture adapter init failed", "error", err)
		return 1
	}

	sink, err := buildSink(*alertLogPath, sugar)
	if err != nil {
		sugar.Errorw("alert sink init failed", "error", err)
		return 1
	}

	p := pipeline.New(pipeline.Options{
		RingBufferSize: cfg.RingBufferSize,
		FlowTableSize:  cfg.FlowTableSize,
		AnomalyEnabled: true,
	}, source, engine, sink, pipeline.NoopDecisionSink{}, sugar)

	statsInterval := time.Duration(cfg.StatsIntervalSeconds) * time.Second
	onStats := func(s pipeline.Snapshot) {
		if !cfg.EnableStats {
			return
		}
		sugar.Infow("pipeline stats",
			"packets", s.PacketsProcessed,
			"alerts", s.AlertsGenerated,
			"dropped", s.FramesDropped,
			"decode_failures", s.DecodeFailures,
		)
	}

	sugar.Infow("vigil starting", "capture_mode", cfg.CaptureMode, "interface", cfg.InterfaceName)
	if err := p.Run(ctx, statsInterval, onStats); err != nil {
		sugar.Errorw("pipeline run failed", "error", err)
		return 1
	}
	sugar.Info("vigil shut down cleanly")
	return 0
}

func newLogger(format string) (*zap.Logger, error) {
	if format == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// buildSource constructs the capture.Source matching cfg.CaptureMode.
func buildSource(cfg config.Config, log *zap.SugaredLogger) (capture.Source, error) {
	switch cfg.CaptureMode {
	case config.ModeLive:
		opts := capture.DefaultLiveOptions(cfg.InterfaceName)
		return capture.NewLive(opts, log)
	case config.ModeDiversion:
		opts := capture.DefaultLiveOptions(cfg.InterfaceName)
		if cfg.DiversionFilter != "" {
			opts.Filter = cfg.DiversionFilter
		}
		live, err := capture.NewLive(opts, log)
		if err != nil {
			return nil, err
		}
		d := capture.NewDiversion(live)
		d.SetDecisionCallback(capture.DropOnSubstring("malicious"))
		return d, nil
	default:
		return capture.NewSimulator(), nil
	}
}

func buildSink(alertLogPath string, log *zap.SugaredLogger) (alert.Sink, error) {
	console := alert.NewConsoleSink(os.Stdout, log)
	if alertLogPath == "" {
		return console, nil
	}
	file, err := alert.NewFileSink(alertLogPath, log)
	if err != nil {
		return nil, err
	}
	return alert.NewMultiSink(console, file), nil
}
