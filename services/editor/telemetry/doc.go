// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry provides OpenTelemetry-based observability for the
// editor service.
//
// This package initializes the OTel SDK with opinionated defaults for
// tracing and metrics, while allowing backend flexibility through
// exporter configuration.
//
// # Philosophy
//
// Be opinionated about the API, flexible about the backend. OpenTelemetry
// IS the abstraction layer: the editor uses OTel APIs directly, and a
// deployment swaps backends by changing exporter configuration, not code.
//
// # Trace Backend (default: OTLP over gRPC)
//
// Any OTLP-compatible collector works (Jaeger 1.35+, Grafana Tempo,
// vendor agents). The "stdout" exporter prints spans for local debugging,
// and "none" disables tracing entirely, which is the right setting for a
// single-user desktop deployment.
//
// # Metrics Backend (default: Prometheus)
//
// Metrics are exposed on the service's /metrics endpoint for scraping.
// All instrument names carry the "editor_" prefix.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(ctx)
//
// # Environment Variables
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: otlp)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - STORYLOOM_ENV: environment name (default: development)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init() returns.
package telemetry
