// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package revert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/AleutianAI/hecate-revert/services/revert/store"
	"github.com/AleutianAI/hecate-revert/services/telemetry"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
)

var rangeValidate = validator.New()

// Range is an inclusive span of delta ids.
type Range struct {
	Start int64 `validate:"gt=0"`
	End   int64 `validate:"gt=0,gtefield=Start"`
}

// Validate reports whether r names at least one positive delta id with
// Start <= End.
func (r Range) Validate() error {
	if err := rangeValidate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			switch fe.Tag() {
			case "gtefield":
				return fmt.Errorf("%w: start %d is greater than end %d", ErrInvalidRange, r.Start, r.End)
			default:
				return fmt.Errorf("%w: %s must be a positive delta id", ErrInvalidRange, fe.Field())
			}
		}
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	return nil
}

// Len returns the number of deltas in r.
func (r Range) Len() int64 {
	return r.End - r.Start + 1
}

// Config wires an Engine.
type Config struct {
	// Deltas and Histories are the remote fetchers. Required.
	Deltas    DeltaFetcher
	Histories HistoryFetcher

	// Concurrency bounds in-flight history fetches per delta.
	// Defaults to DefaultConcurrency.
	Concurrency int

	// Store selects the cache backend and its directory.
	Store store.Config

	// OpenStore allocates the cache. Defaults to store.Open.
	OpenStore func(store.Config) (store.Store, error)

	// Logger may be nil.
	Logger *slog.Logger
}

// Summary describes a completed run.
type Summary struct {
	Deltas   int64
	Features int
	Written  int
	Duration time.Duration
}

// Engine reverts delta ranges.
type Engine struct {
	orchestrator *Orchestrator
	storeConfig  store.Config
	openStore    func(store.Config) (store.Store, error)
	logger       *slog.Logger
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	orch, err := NewOrchestrator(cfg.Deltas, cfg.Histories, cfg.Concurrency, logger)
	if err != nil {
		return nil, err
	}
	openStore := cfg.OpenStore
	if openStore == nil {
		openStore = store.Open
	}
	storeConfig := cfg.Store
	if storeConfig.Logger == nil {
		storeConfig.Logger = logger
	}
	return &Engine{
		orchestrator: orch,
		storeConfig:  storeConfig,
		openStore:    openStore,
		logger:       logger,
	}, nil
}

// Run reverts deltas r.Start through r.End, writing the inverse edits to w.
//
// Description:
//
//	Allocates a fresh cache, populates it from the remote store, then streams
//	one inverse per touched feature. The cache is closed and its backing
//	storage removed before Run returns, whether the run succeeded or not.
//	On failure nothing has been written to w.
//
// Inputs:
//
//	ctx - Cancels the whole run.
//	r - The inclusive delta range.
//	w - Receives line-delimited inverse edits. Not closed.
//
// Outputs:
//
//	Summary - Counts for the run. Partially filled on failure.
//	error - Range validation, fetch, conflict, inverse, or cache failure.
func (e *Engine) Run(ctx context.Context, r Range, w io.Writer) (summary Summary, err error) {
	if err := r.Validate(); err != nil {
		return Summary{}, err
	}

	start := time.Now()
	ctx, span := startRunSpan(ctx, r)
	defer func() {
		summary.Duration = time.Since(start)
		recordRunMetrics(ctx, summary.Duration, err == nil)
		span.SetAttributes(
			attribute.Int("revert.features", summary.Features),
			attribute.Int("revert.written", summary.Written),
		)
		telemetry.EndSpan(span, err)
	}()

	cache, err := e.openStore(e.storeConfig)
	if err != nil {
		return summary, fmt.Errorf("open cache: %w", err)
	}
	e.logger.Debug("cache opened", "backend", backendName(e.storeConfig.Backend), "path", cache.Path())
	defer func() {
		if closeErr := cache.Close(); closeErr != nil {
			e.logger.Warn("failed to remove cache", "path", cache.Path(), "error", closeErr)
			err = errors.Join(err, fmt.Errorf("close cache: %w", closeErr))
		}
	}()

	e.logger.Info("fetching deltas", "start", r.Start, "end", r.End)
	if err := e.orchestrator.Run(ctx, r, cache); err != nil {
		if errors.Is(err, store.ErrDuplicateFeature) {
			recordConflict(ctx, "duplicate")
		}
		return summary, err
	}
	summary.Deltas = r.Len()
	summary.Features = cache.Len()

	n, err := Stream(ctx, cache, w)
	summary.Written = n
	if err != nil {
		if errors.Is(err, ErrDirtyRevert) {
			recordConflict(ctx, "dirty")
		}
		return summary, err
	}
	recordInversesWritten(ctx, n)

	e.logger.Info("reversion complete",
		"deltas", summary.Deltas,
		"features", summary.Features,
		"written", summary.Written,
		"trace_id", telemetry.TraceID(ctx))
	return summary, nil
}

func backendName(b store.Backend) string {
	if b == "" {
		return string(store.BackendBadger)
	}
	return string(b)
}
