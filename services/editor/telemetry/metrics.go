// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the editor service.
//
// Description:
//
//	Provides standard counters, histograms, and gauges for HTTP
//	requests, graph mutations, generation dispatches, autosaves and
//	websocket clients. All instruments use the "editor_" prefix.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- HTTP Metrics ---

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests tracks currently active HTTP requests.
	HTTPActiveRequests metric.Int64UpDownCounter

	// --- Graph Metrics ---

	// GraphMutationsTotal counts store mutations by operation.
	GraphMutationsTotal metric.Int64Counter

	// --- Generation Metrics ---

	// GenerationsTotal counts finished generations by kind and status.
	GenerationsTotal metric.Int64Counter

	// GenerationDuration records generation duration in seconds by kind.
	GenerationDuration metric.Float64Histogram

	// --- Persistence Metrics ---

	// AutosavesTotal counts workflow saves by trigger and status.
	AutosavesTotal metric.Int64Counter

	// SaveDuration records workflow save duration in seconds.
	SaveDuration metric.Float64Histogram

	// --- Event Feed Metrics ---

	// EventsPublishedTotal counts change events delivered to websocket
	// clients.
	EventsPublishedTotal metric.Int64Counter

	// EventsDroppedTotal counts change events lost to slow consumers.
	EventsDroppedTotal metric.Int64Counter

	// --- Session Metrics ---

	// WSClientsActive tracks connected websocket event clients.
	WSClientsActive metric.Int64UpDownCounter

	// OpenSessions reports currently open editing sessions.
	// Registered separately via RegisterOpenSessions.
	OpenSessions metric.Int64ObservableGauge
}

// NewMetrics creates a Metrics instance with all instruments registered.
//
// Description:
//
//	Registers all pre-defined instruments with the provided meter.
//	Returns an error if any registration fails.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all instruments initialized.
//	error - Non-nil if an instrument registration fails.
//
// Thread Safety: Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- HTTP Metrics ---
	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"editor_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"editor_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"editor_http_active_requests",
		metric.WithDescription("Currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	// --- Graph Metrics ---
	m.GraphMutationsTotal, err = meter.Int64Counter(
		"editor_graph_mutations_total",
		metric.WithDescription("Total graph store mutations"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create graph_mutations_total: %w", err)
	}

	// --- Generation Metrics ---
	m.GenerationsTotal, err = meter.Int64Counter(
		"editor_generations_total",
		metric.WithDescription("Total finished generations"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create generations_total: %w", err)
	}

	m.GenerationDuration, err = meter.Float64Histogram(
		"editor_generation_duration_seconds",
		metric.WithDescription("Generation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("create generation_duration: %w", err)
	}

	// --- Persistence Metrics ---
	m.AutosavesTotal, err = meter.Int64Counter(
		"editor_autosaves_total",
		metric.WithDescription("Total workflow saves by trigger and status"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create autosaves_total: %w", err)
	}

	m.SaveDuration, err = meter.Float64Histogram(
		"editor_save_duration_seconds",
		metric.WithDescription("Workflow save duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create save_duration: %w", err)
	}

	// --- Event Feed Metrics ---
	m.EventsPublishedTotal, err = meter.Int64Counter(
		"editor_events_published_total",
		metric.WithDescription("Change events delivered to websocket clients"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events_published_total: %w", err)
	}

	m.EventsDroppedTotal, err = meter.Int64Counter(
		"editor_events_dropped_total",
		metric.WithDescription("Change events lost to slow consumers"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events_dropped_total: %w", err)
	}

	// --- Session Metrics ---
	m.WSClientsActive, err = meter.Int64UpDownCounter(
		"editor_ws_clients_active",
		metric.WithDescription("Connected websocket event clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ws_clients_active: %w", err)
	}

	// Note: OpenSessions requires a callback registration, handled
	// separately via RegisterOpenSessions.

	return m, nil
}

// RegisterOpenSessions registers a callback for the open-sessions gauge.
//
// Description:
//
//	Sets up an observable gauge that reports how many editing sessions
//	are currently open. The callback is invoked on every scrape.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	countFunc - Returns the current number of open sessions.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func (m *Metrics) RegisterOpenSessions(meter metric.Meter, countFunc func() int64) (metric.Registration, error) {
	var err error
	m.OpenSessions, err = meter.Int64ObservableGauge(
		"editor_open_sessions",
		metric.WithDescription("Currently open editing sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create open_sessions: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.OpenSessions, countFunc())
		return nil
	}, m.OpenSessions)
}
