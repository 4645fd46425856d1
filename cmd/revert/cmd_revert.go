// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AleutianAI/hecate-revert/cmd/revert/config"
	"github.com/AleutianAI/hecate-revert/pkg/logging"
	"github.com/AleutianAI/hecate-revert/pkg/ux"
	"github.com/AleutianAI/hecate-revert/services/hecate"
	"github.com/AleutianAI/hecate-revert/services/revert"
	"github.com/AleutianAI/hecate-revert/services/revert/store"
	"github.com/AleutianAI/hecate-revert/services/telemetry"
)

// runDeltas implements "revert deltas".
//
// The range is validated before the config is read or any request is
// made. Inverse edits go to stdout or --output; everything else goes to
// stderr.
func runDeltas(ctx context.Context, root *rootOptions, opts *deltasOptions, stdout, stderr io.Writer) error {
	r := revert.Range{Start: opts.start, End: opts.end}
	if err := r.Validate(); err != nil {
		return err
	}

	cfg, err := config.Load(root.configPath, stderr)
	if err != nil {
		return err
	}
	if err := applyFlags(&cfg, root, opts); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.LogDir,
		Service: "revert",
		JSON:    cfg.Logging.JSON,
		Output:  stderr,
	})
	defer logger.Close()

	telCfg := cfg.Telemetry
	telCfg.Output = stderr
	shutdown, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			logger.Warn("telemetry shutdown failed", "error", serr)
		}
	}()

	client, err := hecate.NewClient(hecate.Config{
		BaseURL:           cfg.Hecate.URL,
		Username:          cfg.Hecate.Username,
		Password:          cfg.Hecate.Password,
		Timeout:           cfg.Hecate.Timeout,
		RequestsPerSecond: cfg.Hecate.RequestsPerSecond,
		Logger:            logger.Slog(),
	})
	if err != nil {
		return err
	}

	backend, err := store.ParseBackend(cfg.Revert.CacheBackend)
	if err != nil {
		return err
	}
	runLog := logger.With("hecate", client.BaseURL())
	engine, err := revert.NewEngine(revert.Config{
		Deltas:      client,
		Histories:   client,
		Concurrency: cfg.Revert.Concurrency,
		Store: store.Config{
			Backend: backend,
			Dir:     cfg.Revert.CacheDir,
		},
		Logger: runLog.Slog(),
	})
	if err != nil {
		return err
	}

	sink, err := openSink(opts.output, stdout)
	if err != nil {
		return err
	}

	printer := ux.NewPrinter(stderr, printerMode(stderr, root.machine))
	printer.Title(fmt.Sprintf("Reverting deltas %d to %d", r.Start, r.End))

	runLog.Debug("starting reversion",
		"authenticated", client.Authenticated(),
		"backend", backend,
		"start", r.Start,
		"end", r.End)

	summary, err := engine.Run(ctx, r, sink)
	if err := sink.finish(err); err != nil {
		return err
	}

	printer.Success("Reversion generated")
	printer.Summary(summary.Deltas, summary.Features, summary.Written)
	if summary.Written == 0 {
		printer.Warning("no features were edited in this range")
	}
	if sink.stdout == nil {
		printer.Info(fmt.Sprintf("%s %s", ux.IconArrow, opts.output))
	}
	return nil
}

func applyFlags(cfg *config.RevertConfig, root *rootOptions, opts *deltasOptions) error {
	if opts.url != "" {
		cfg.Hecate.URL = opts.url
	}
	if opts.cacheBackend != "" {
		cfg.Revert.CacheBackend = opts.cacheBackend
	}
	if opts.cacheDir != "" {
		cfg.Revert.CacheDir = opts.cacheDir
	}
	if opts.concurrency != 0 {
		cfg.Revert.Concurrency = opts.concurrency
	}
	if root.logLevel != "" {
		cfg.Logging.Level = root.logLevel
	}
	return config.Validate(*cfg)
}

// sink receives inverse edits during a run. Every sink is backed by a file:
// --output itself, or a spool file that is copied to stdout only once the
// run has succeeded.
type sink struct {
	*bufio.Writer
	file   *os.File
	stdout io.Writer
}

func openSink(path string, stdout io.Writer) (*sink, error) {
	if path == "" || path == "-" {
		f, err := os.CreateTemp("", "revert-*.geojsonld")
		if err != nil {
			return nil, fmt.Errorf("create output spool: %w", err)
		}
		return &sink{Writer: bufio.NewWriter(f), file: f, stdout: stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &sink{Writer: bufio.NewWriter(f), file: f}, nil
}

// finish flushes and closes the sink. After a failed run nothing reaches
// stdout and a partial --output file is removed. The spool is always removed.
func (s *sink) finish(runErr error) error {
	if runErr == nil {
		runErr = s.Flush()
	}
	if runErr == nil && s.stdout != nil {
		runErr = s.publish()
	}
	if err := s.file.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output file: %w", err)
	}
	if runErr != nil || s.stdout != nil {
		if err := os.Remove(s.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			runErr = errors.Join(runErr, fmt.Errorf("remove output spool: %w", err))
		}
	}
	return runErr
}

// publish copies the spooled records to stdout.
func (s *sink) publish() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind output spool: %w", err)
	}
	if _, err := io.Copy(s.stdout, s.file); err != nil {
		return fmt.Errorf("write stdout: %w", err)
	}
	return nil
}

func printerMode(w io.Writer, machine bool) ux.Mode {
	if machine {
		return ux.ModeMachine
	}
	if f, ok := w.(*os.File); ok {
		return ux.DetectMode(f)
	}
	return ux.ModePlain
}

// hintFor suggests an operator action for the expected failure modes.
func hintFor(err error) string {
	switch {
	case errors.Is(err, store.ErrDuplicateFeature):
		return "narrow the delta range so each feature is edited in only one delta"
	case errors.Is(err, revert.ErrDirtyRevert):
		return "the feature was edited after this range; revert the later deltas first or extend --end"
	case errors.Is(err, revert.ErrInvalidRange):
		return "--start and --end are inclusive positive delta ids with start <= end"
	case errors.Is(err, hecate.ErrUnauthorized):
		return "set HECATE_USERNAME and HECATE_PASSWORD"
	case errors.Is(err, hecate.ErrNotFound):
		return "check that every delta in the range exists"
	case errors.Is(err, revert.ErrMissingInitialCreate), errors.Is(err, revert.ErrUnsupportedAction):
		return "the feature history on the server is malformed"
	}
	return ""
}
