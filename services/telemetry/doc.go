// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry initializes OpenTelemetry tracing and metrics for the
// revert CLI.
//
// Components use the OTel API directly (otel.Tracer, otel.Meter). Init swaps
// in SDK providers backed by the configured exporters; until then the global
// providers are no-ops.
//
// # Exporters
//
// Traces: "otlp" (gRPC), "stdout", or "none".
// Metrics: "prometheus", "stdout", or "none".
//
// Stdout exporters write to Config.Output, which defaults to os.Stderr
// because stdout carries the inverse edit stream.
//
// A CLI run is too short-lived to be scraped, so the prometheus exporter
// collects into a private registry and the shutdown function writes it to
// Config.MetricsFile in the node_exporter textfile format.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - HECATE_ENV: environment name (default: development)
package telemetry
