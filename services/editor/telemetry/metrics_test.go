// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// testMeter builds a meter from a private provider so these tests never
// touch the global registry.
func testMeter(t *testing.T) metric.Meter {
	t.Helper()
	provider := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	return provider.Meter("editor_metrics_test")
}

func TestNewMetrics(t *testing.T) {
	metrics, err := NewMetrics(testMeter(t))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	if metrics.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if metrics.HTTPRequestDuration == nil {
		t.Error("HTTPRequestDuration is nil")
	}
	if metrics.HTTPActiveRequests == nil {
		t.Error("HTTPActiveRequests is nil")
	}
	if metrics.GraphMutationsTotal == nil {
		t.Error("GraphMutationsTotal is nil")
	}
	if metrics.GenerationsTotal == nil {
		t.Error("GenerationsTotal is nil")
	}
	if metrics.GenerationDuration == nil {
		t.Error("GenerationDuration is nil")
	}
	if metrics.AutosavesTotal == nil {
		t.Error("AutosavesTotal is nil")
	}
	if metrics.SaveDuration == nil {
		t.Error("SaveDuration is nil")
	}
	if metrics.EventsPublishedTotal == nil {
		t.Error("EventsPublishedTotal is nil")
	}
	if metrics.EventsDroppedTotal == nil {
		t.Error("EventsDroppedTotal is nil")
	}
	if metrics.WSClientsActive == nil {
		t.Error("WSClientsActive is nil")
	}
}

func TestMetrics_RecordEditorMetrics(t *testing.T) {
	metrics, err := NewMetrics(testMeter(t))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()

	// Should not panic.
	metrics.GraphMutationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", "add_node"),
	))
	metrics.GenerationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", "textToImage"),
		attribute.String("status", "completed"),
	))
	metrics.GenerationDuration.Record(ctx, 4.2, metric.WithAttributes(
		attribute.String("kind", "textToImage"),
	))
	metrics.AutosavesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", "auto"),
		attribute.String("status", "ok"),
	))
	metrics.SaveDuration.Record(ctx, 0.012, metric.WithAttributes(
		attribute.String("status", "ok"),
	))
	metrics.EventsPublishedTotal.Add(ctx, 1)
	metrics.EventsDroppedTotal.Add(ctx, 2)
	metrics.WSClientsActive.Add(ctx, 1)
	metrics.WSClientsActive.Add(ctx, -1)
}

func TestMetrics_RegisterOpenSessions(t *testing.T) {
	meter := testMeter(t)
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	count := int64(3)
	reg, err := metrics.RegisterOpenSessions(meter, func() int64 {
		return count
	})
	if err != nil {
		t.Fatalf("RegisterOpenSessions() error = %v", err)
	}
	defer reg.Unregister()

	if metrics.OpenSessions == nil {
		t.Error("OpenSessions is nil after registration")
	}
}
