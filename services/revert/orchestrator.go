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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/hecate-revert/pkg/feature"
	"github.com/AleutianAI/hecate-revert/services/revert/store"
	"github.com/AleutianAI/hecate-revert/services/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of in-flight history fetches per delta.
const DefaultConcurrency = 50

// DeltaFetcher retrieves the edits a delta introduced.
type DeltaFetcher interface {
	GetDelta(ctx context.Context, deltaID int64) (feature.Delta, error)
}

// HistoryFetcher retrieves every recorded edit of a feature.
type HistoryFetcher interface {
	GetFeatureHistory(ctx context.Context, featureID int64) (feature.History, error)
}

// Orchestrator populates a cache with the histories of every feature touched
// by a delta range.
//
// Deltas are processed strictly in ascending order. All history fetches for
// one delta finish before the next delta is fetched, so a feature appearing
// in two deltas is always reported against the later one.
type Orchestrator struct {
	deltas      DeltaFetcher
	histories   HistoryFetcher
	concurrency int
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. A concurrency below 1 uses
// DefaultConcurrency. logger may be nil.
func NewOrchestrator(deltas DeltaFetcher, histories HistoryFetcher, concurrency int, logger *slog.Logger) (*Orchestrator, error) {
	if deltas == nil || histories == nil {
		return nil, fmt.Errorf("%w: delta and history fetchers are required", ErrNilDependency)
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		deltas:      deltas,
		histories:   histories,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Run fetches deltas r.Start through r.End and puts one entry per touched
// feature into cache. The first fetch failure or duplicate feature aborts
// the run; remaining in-flight fetches for the current delta are cancelled.
func (o *Orchestrator) Run(ctx context.Context, r Range, cache store.Store) error {
	if err := r.Validate(); err != nil {
		return err
	}
	for deltaID := r.Start; deltaID <= r.End; deltaID++ {
		if err := o.runDelta(ctx, deltaID, cache); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runDelta(ctx context.Context, deltaID int64, cache store.Store) (err error) {
	ctx, span := startDeltaSpan(ctx, deltaID)
	defer func() { telemetry.EndSpan(span, err) }()

	delta, err := o.deltas.GetDelta(ctx, deltaID)
	if err != nil {
		return fmt.Errorf("fetch delta %d: %w", deltaID, err)
	}
	span.SetAttributes(attribute.Int("revert.features", len(delta.Features)))
	logger := o.logger.With("delta", deltaID)
	logger.Debug("delta fetched",
		"message", delta.Message,
		"features", len(delta.Features))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for i, edit := range delta.Features {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			history, err := o.histories.GetFeatureHistory(gctx, edit.ID)
			if err != nil {
				return fmt.Errorf("fetch history of feature %d in delta %d: %w", edit.ID, deltaID, err)
			}
			err = cache.Put(gctx, store.Entry{
				FeatureID:     edit.ID,
				Delta:         deltaID,
				Index:         i,
				TargetVersion: edit.Version,
				History:       history,
			})
			if err != nil {
				return fmt.Errorf("cache feature %d from delta %d: %w", edit.ID, deltaID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delta %d: %w", deltaID, err)
	}

	recordDeltaFetched(ctx, len(delta.Features))
	logger.Debug("delta cached")
	return nil
}
