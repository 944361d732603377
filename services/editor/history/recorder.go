// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history records completed and failed generations for later
// analysis (cost tracking, failure rates per kind). Recording is strictly
// best-effort: a history outage must never affect an editing session.
package history

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/StoryloomAI/storyloom/services/editor/graph"
)

// Generation status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Generation is one finished generation attempt.
type Generation struct {
	ProjectID     string
	PlaceholderID string
	Kind          graph.NodeKind
	Status        string
	Duration      time.Duration

	// FinishedAt stamps the data point; zero means now.
	FinishedAt time.Time
}

// Recorder persists Generation records. Implementations swallow their own
// errors; callers fire and forget.
type Recorder interface {
	Record(ctx context.Context, gen Generation)
	Close()
}

// NopRecorder discards everything. Used when history is not configured.
type NopRecorder struct{}

// Record implements the Recorder interface.
func (NopRecorder) Record(context.Context, Generation) {}

// Close implements the Recorder interface.
func (NopRecorder) Close() {}

// Config locates the InfluxDB bucket that receives generation points.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxRecorder writes one point per generation to InfluxDB.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxRecorder connects a recorder to the configured bucket. The
// connection is lazy; a wrong URL surfaces as logged write failures.
func NewInfluxRecorder(cfg Config) *InfluxRecorder {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	slog.Info("Initializing generation history recorder",
		"influx_url", cfg.URL,
		"influx_org", cfg.Org,
		"influx_bucket", cfg.Bucket,
	)
	return &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// Record implements the Recorder interface. Write failures are logged and
// dropped.
func (r *InfluxRecorder) Record(ctx context.Context, gen Generation) {
	ts := gen.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	p := influxdb2.NewPoint(
		"generation",
		map[string]string{
			"project": gen.ProjectID,
			"kind":    string(gen.Kind),
			"status":  gen.Status,
		},
		map[string]any{
			"duration_ms": gen.Duration.Milliseconds(),
			"placeholder": gen.PlaceholderID,
		},
		ts,
	)
	if err := r.writeAPI.WritePoint(ctx, p); err != nil {
		slog.Error("Failed to write generation history", "error", err)
	}
}

// Close implements the Recorder interface.
func (r *InfluxRecorder) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
