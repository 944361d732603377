// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lifecycle drives asynchronous generations against the graph.
//
// The flow is always the same three steps: a placeholder node appears
// immediately (CreateLoadingNode), the external service runs on a background
// goroutine (Dispatch), and the placeholder is patched with the outcome
// (ResolveNode or FailNode). The user keeps editing in between; if they
// delete the placeholder before the service answers, the late completion is
// dropped silently.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/StoryloomAI/storyloom/pkg/logging"
	"github.com/StoryloomAI/storyloom/services/editor/generate"
	"github.com/StoryloomAI/storyloom/services/editor/graph"
	"github.com/StoryloomAI/storyloom/services/editor/history"
)

const (
	// placeholderOffsetX is how far right of its source a placeholder lands.
	placeholderOffsetX = 260

	// defaultPlaceholderX, defaultPlaceholderY position an unconnected
	// placeholder.
	defaultPlaceholderX = 120
	defaultPlaceholderY = 120

	// defaultProgress is shown on a placeholder until the service answers.
	defaultProgress = "Generating..."

	// maxIDAttempts bounds the duplicate-id retry loop.
	maxIDAttempts = 8
)

// Config tunes generation dispatch.
type Config struct {
	// MaxInFlight caps concurrently running generations. Default 4.
	MaxInFlight int

	// PerSecond limits the dispatch rate across all kinds. Default 1.
	PerSecond float64

	// Burst is the rate limiter burst. Default MaxInFlight.
	Burst int

	// Timeout bounds one generation end to end. Default 5m.
	Timeout time.Duration
}

// DefaultConfig returns the production dispatch settings.
func DefaultConfig() Config {
	return Config{
		MaxInFlight: 4,
		PerSecond:   1,
		Burst:       4,
		Timeout:     5 * time.Minute,
	}
}

// Hints optionally adjusts placeholder creation. The zero value is fine.
type Hints struct {
	// Position overrides the computed canvas position.
	Position *graph.Position

	// Progress replaces the default loading message.
	Progress string

	// Data is merged into the placeholder's initial data.
	Data graph.Data
}

// Controller owns the placeholder lifecycle for one open project.
//
// Description:
//
//	The controller wraps one graph.Store and runs generations against the
//	registered generators. Completions write back through tolerant store
//	updates, so a placeholder deleted mid-flight is simply skipped.
//
// Thread Safety:
//
//	Safe for concurrent use. Dispatch never blocks the caller; concurrency
//	and rate limits are enforced on the worker goroutines.
type Controller struct {
	projectID string
	store     *graph.Store
	registry  *generate.Registry
	recorder  history.Recorder
	logger    *logging.Logger
	config    Config

	limiter *rate.Limiter
	slots   chan struct{}
	wg      sync.WaitGroup
	active  atomic.Int64
}

// New wires a controller to its project's store and generator registry.
// recorder and logger may be nil; zero config fields get defaults.
func New(projectID string, store *graph.Store, registry *generate.Registry, recorder history.Recorder, logger *logging.Logger, config Config) *Controller {
	if recorder == nil {
		recorder = history.NopRecorder{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultConfig()
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = defaults.MaxInFlight
	}
	if config.PerSecond <= 0 {
		config.PerSecond = defaults.PerSecond
	}
	if config.Burst <= 0 {
		config.Burst = config.MaxInFlight
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &Controller{
		projectID: projectID,
		store:     store,
		registry:  registry,
		recorder:  recorder,
		logger:    logger,
		config:    config,
		limiter:   rate.NewLimiter(rate.Limit(config.PerSecond), config.Burst),
		slots:     make(chan struct{}, config.MaxInFlight),
	}
}

// CreateLoadingNode inserts a loading placeholder and, when the source node
// exists, one source→placeholder edge.
//
// Description:
//
//	The placeholder appears immediately so the canvas shows feedback before
//	the external service is even contacted. A missing source is not an
//	error: the placeholder is created unconnected. The generated id is
//	"<kind>-<unix-millis>-<rand>"; on the astronomically unlikely collision
//	the suffix is regenerated.
//
// Inputs:
//
//	sourceID - Node feeding the generation; "" or unknown leaves the
//	           placeholder unconnected.
//	kind     - Placeholder node kind. Must be valid; callers validate at
//	           the API boundary. Invalid kinds return "".
//	label    - Optional display label stored in data.
//	hints    - Optional position/progress/data overrides.
//
// Outputs:
//
//	string - The placeholder node id.
func (c *Controller) CreateLoadingNode(sourceID string, kind graph.NodeKind, label string, hints Hints) string {
	if !kind.IsValid() {
		c.logger.Error("refusing placeholder with invalid kind", "kind", string(kind))
		return ""
	}

	pos := graph.Position{X: defaultPlaceholderX, Y: defaultPlaceholderY}
	src, hasSource := c.store.Node(sourceID)
	if hasSource {
		pos = graph.Position{X: src.Position.X + placeholderOffsetX, Y: src.Position.Y}
	}
	if hints.Position != nil {
		pos = *hints.Position
	}

	progress := hints.Progress
	if progress == "" {
		progress = defaultProgress
	}
	data := graph.Data{
		graph.FieldIsLoading:       true,
		graph.FieldLoadingProgress: progress,
	}
	if label != "" {
		data[graph.FieldLabel] = label
	}
	data = data.Merge(hints.Data)

	var id string
	for attempt := 0; ; attempt++ {
		id = placeholderID(kind, attempt)
		err := c.store.AddNode(graph.Node{ID: id, Kind: kind, Position: pos, Data: data})
		if err == nil {
			break
		}
		if !errors.Is(err, graph.ErrDuplicateNode) || attempt >= maxIDAttempts {
			c.logger.Error("placeholder insert failed", "node_id", id, "error", err)
			return ""
		}
	}

	if hasSource {
		edge := graph.Edge{ID: "e-" + id, Source: sourceID, Target: id, Animated: true}
		if err := c.store.AddEdge(edge); err != nil {
			// The source was deleted between lookup and insert; the
			// placeholder stays, unconnected.
			c.logger.Debug("placeholder edge skipped", "source", sourceID, "error", err)
		}
	}

	c.logger.Debug("placeholder created",
		"node_id", id,
		"kind", string(kind),
		"connected", hasSource,
	)
	return id
}

// ResolveNode merges a generation result into the placeholder.
//
// Description:
//
//	Clears isLoading and the progress message, then sets whichever output
//	fields the result carries. Returns false without error when the
//	placeholder no longer exists; a late completion never resurrects a
//	deleted node.
func (c *Controller) ResolveNode(placeholderID string, res generate.Result) bool {
	patch := graph.Data{
		graph.FieldIsLoading:       false,
		graph.FieldLoadingProgress: "",
	}
	if res.ImageURL != "" {
		patch[graph.FieldOutputImage] = res.ImageURL
	}
	if res.VideoURL != "" {
		patch[graph.FieldVideoURL] = res.VideoURL
	}
	if res.Description != "" {
		patch[graph.FieldDescription] = res.Description
	}
	ok := c.store.UpdateNodeData(placeholderID, patch)
	if !ok {
		c.logger.Debug("resolve dropped, placeholder deleted", "node_id", placeholderID)
	}
	return ok
}

// FailNode marks the placeholder as failed, keeping it visible with the
// error text as its progress message. No-op when the placeholder is gone.
func (c *Controller) FailNode(placeholderID, message string) bool {
	if message == "" {
		message = "generation failed"
	}
	ok := c.store.UpdateNodeData(placeholderID, graph.Data{
		graph.FieldIsLoading:       false,
		graph.FieldLoadingProgress: message,
	})
	if !ok {
		c.logger.Debug("failure dropped, placeholder deleted", "node_id", placeholderID)
	}
	return ok
}

// Dispatch runs the generation for a placeholder on a background goroutine
// and returns immediately.
//
// Description:
//
//	The request is an immutable snapshot taken at trigger time; later graph
//	edits cannot change what the generator sees. The worker context is
//	detached from the triggering HTTP request, so navigating away does not
//	cancel an in-flight generation; only the configured timeout bounds it.
//	Success and failure both land on the placeholder via ResolveNode and
//	FailNode, and panics inside a generator are converted to failures.
func (c *Controller) Dispatch(req generate.Request, placeholderID string) {
	c.wg.Add(1)
	go c.run(req, placeholderID)
}

// InFlight returns the number of generations currently dispatched and not
// yet completed.
func (c *Controller) InFlight() int {
	return int(c.active.Load())
}

// Wait blocks until all dispatched generations have completed. Tests and
// shutdown paths use it; sessions do not wait on close.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) run(req generate.Request, placeholderID string) {
	c.active.Add(1)
	defer c.active.Add(-1)
	defer c.wg.Done()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			c.logger.Error("panic in generation worker",
				"node_id", placeholderID,
				"panic", r,
				"stack", string(buf[:n]),
			)
			c.FailNode(placeholderID, fmt.Sprintf("generation panic: %v", r))
			c.record(req, placeholderID, history.StatusFailed, start)
		}
	}()

	gen, err := c.registry.Lookup(req.Kind())
	if err != nil {
		c.FailNode(placeholderID, err.Error())
		c.record(req, placeholderID, history.StatusFailed, start)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		c.FailNode(placeholderID, "generation timed out waiting for a free slot")
		c.record(req, placeholderID, history.StatusFailed, start)
		return
	}
	defer func() { <-c.slots }()

	if err := c.limiter.Wait(ctx); err != nil {
		c.FailNode(placeholderID, "generation timed out waiting for rate limit")
		c.record(req, placeholderID, history.StatusFailed, start)
		return
	}

	res, err := gen.Generate(ctx, req)
	if err != nil {
		c.logger.Warn("generation failed",
			"node_id", placeholderID,
			"kind", string(req.Kind()),
			"error", err,
		)
		c.FailNode(placeholderID, err.Error())
		c.record(req, placeholderID, history.StatusFailed, start)
		return
	}

	c.ResolveNode(placeholderID, res)
	c.logger.Debug("generation completed",
		"node_id", placeholderID,
		"kind", string(req.Kind()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	c.record(req, placeholderID, history.StatusCompleted, start)
}

func (c *Controller) record(req generate.Request, placeholderID, status string, start time.Time) {
	c.recorder.Record(context.Background(), history.Generation{
		ProjectID:     c.projectID,
		PlaceholderID: placeholderID,
		Kind:          req.Kind(),
		Status:        status,
		Duration:      time.Since(start),
	})
}

// placeholderID generates "<kind>-<unix-millis>-<rand>". The final attempt
// falls back to a full UUID suffix.
func placeholderID(kind graph.NodeKind, attempt int) string {
	if attempt >= maxIDAttempts {
		return fmt.Sprintf("%s-%s", kind, uuid.NewString())
	}
	return fmt.Sprintf("%s-%d-%s", kind, time.Now().UnixMilli(), uuid.NewString()[:8])
}
