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
	"sync"
	"time"

	"github.com/AleutianAI/hecate-revert/services/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName names the tracer and meter for reversion runs.
const instrumentationName = "hecate.revert"

var meter = otel.Meter(instrumentationName)

// Metrics for reversion runs.
var (
	deltasFetched    metric.Int64Counter
	historiesFetched metric.Int64Counter
	inversesWritten  metric.Int64Counter
	conflictsTotal   metric.Int64Counter
	runDuration      metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		deltasFetched, err = meter.Int64Counter(
			"revert_deltas_fetched_total",
			metric.WithDescription("Total number of deltas fetched"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		historiesFetched, err = meter.Int64Counter(
			"revert_histories_fetched_total",
			metric.WithDescription("Total number of feature histories fetched"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		inversesWritten, err = meter.Int64Counter(
			"revert_inverses_written_total",
			metric.WithDescription("Total number of inverse edits written"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		conflictsTotal, err = meter.Int64Counter(
			"revert_conflicts_total",
			metric.WithDescription("Total number of runs refused because of a conflict"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runDuration, err = meter.Float64Histogram(
			"revert_run_duration_seconds",
			metric.WithDescription("Duration of reversion runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startRunSpan creates the root span of a reversion run.
func startRunSpan(ctx context.Context, r Range) (context.Context, trace.Span) {
	return telemetry.StartSpan(ctx, instrumentationName, "revert.Run",
		trace.WithAttributes(
			attribute.Int64("revert.start", r.Start),
			attribute.Int64("revert.end", r.End),
		),
	)
}

// startDeltaSpan creates a span for fetching one delta and its histories.
func startDeltaSpan(ctx context.Context, deltaID int64) (context.Context, trace.Span) {
	return telemetry.StartSpan(ctx, instrumentationName, "revert.FetchDelta",
		trace.WithAttributes(
			attribute.Int64("revert.delta", deltaID),
		),
	)
}

func recordDeltaFetched(ctx context.Context, features int) {
	if err := initMetrics(); err != nil {
		return
	}
	deltasFetched.Add(ctx, 1)
	historiesFetched.Add(ctx, int64(features))
}

func recordInversesWritten(ctx context.Context, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	inversesWritten.Add(ctx, int64(n))
}

// recordConflict counts a refused run by kind ("duplicate" or "dirty").
func recordConflict(ctx context.Context, kind string) {
	if err := initMetrics(); err != nil {
		return
	}
	conflictsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// recordRunMetrics records the outcome of a run.
func recordRunMetrics(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Bool("success", success),
	))
}
