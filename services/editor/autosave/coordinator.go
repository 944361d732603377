// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package autosave persists workflow changes in the background.
//
// A Coordinator watches one graph store through its dirty hook and
// writes snapshots through a caller-supplied SaveFunc. Background saves
// are best-effort: a failed attempt is logged, the changes stay dirty,
// and the next tick retries. Explicit saves requested by the user are
// unconditional and report their error so the UI can surface it.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/StoryloomAI/storyloom/pkg/logging"
	"github.com/StoryloomAI/storyloom/services/editor/graph"
)

// State describes the persistence status of a session.
type State string

const (
	// StateClean means every change has been persisted.
	StateClean State = "clean"

	// StateDirty means unsaved changes exist.
	StateDirty State = "dirty"

	// StateSaving means a save attempt is in flight.
	StateSaving State = "saving"
)

// SaveFunc writes one workflow snapshot to durable storage.
//
// # Description
//
// The coordinator deliberately depends on a function type instead of a
// storage interface: sessions bind the project id and backend at
// construction time, and tests substitute counters or failures without
// a mock framework.
type SaveFunc func(ctx context.Context, snap graph.Snapshot) error

// Config holds coordinator timing settings.
//
// # Fields
//
//   - Interval: How often the background loop checks for dirty state.
//     Default: 30 seconds.
//   - SaveTimeout: Upper bound for one save attempt. Default: 10 seconds.
type Config struct {
	Interval    time.Duration
	SaveTimeout time.Duration
}

// DefaultConfig returns production defaults: a 30 second autosave
// interval and a 10 second per-attempt timeout.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		SaveTimeout: 10 * time.Second,
	}
}

// Coordinator schedules background saves for one workflow session.
//
// # Description
//
// Tracks dirty/saving flags fed by the store's dirty hook and runs a
// ticker + done channel loop. A tick saves only when unsaved changes
// exist and no attempt is already in flight. The dirty flag is cleared
// at the start of an attempt, so a mutation landing mid-save re-marks
// the session dirty and the following tick saves again.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. Save attempts are
// serialized; state flags are guarded by their own mutex so MarkDirty
// never blocks behind a slow backend.
type Coordinator struct {
	store  *graph.Store
	save   SaveFunc
	logger *logging.Logger
	config Config

	saveMu sync.Mutex // serializes save attempts
	done   chan struct{}

	mu        sync.Mutex
	dirty     bool
	saving    bool
	running   bool
	lastErr   error
	lastSaved time.Time
}

// New creates a Coordinator for the given store and save function.
//
// # Description
//
// Registers itself as the store's dirty hook, so every successful
// mutation marks the session dirty without the store knowing about
// persistence. The coordinator does not start saving until Start is
// called.
//
// # Inputs
//
//   - store: The graph store to watch. Must be non-nil.
//   - save: Destination for snapshots. Must be non-nil.
//   - logger: Structured logger. May be nil for the default logger.
//   - config: Timing settings; zero durations fall back to defaults.
func New(store *graph.Store, save SaveFunc, logger *logging.Logger, config Config) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = defaults.SaveTimeout
	}

	c := &Coordinator{
		store:  store,
		save:   save,
		logger: logger,
		config: config,
		done:   make(chan struct{}),
	}
	store.SetDirtyHook(c.MarkDirty)
	return c
}

// MarkDirty records that unsaved changes exist.
//
// Normally invoked by the store's dirty hook; exposed for callers that
// mutate persisted state outside the store.
func (c *Coordinator) MarkDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// State derives the session's persistence status from the flags.
// An in-flight attempt reports StateSaving even if new changes have
// already landed behind it.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.saving:
		return StateSaving
	case c.dirty:
		return StateDirty
	default:
		return StateClean
	}
}

// LastError returns the most recent save failure, or nil after a
// successful save. Surfaced on the session status endpoint.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastSavedAt returns when the last successful save completed, or the
// zero time if nothing has been saved yet.
func (c *Coordinator) LastSavedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved
}

// Start begins the background autosave loop.
//
// # Description
//
// Starts a goroutine ticking at the configured interval. Ticks with a
// clean session are skipped; the loop never saves just because time
// passed. Returns an error if the coordinator is already running.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("autosave coordinator is already running")
	}
	c.running = true
	c.done = make(chan struct{}) // reset for restart
	c.mu.Unlock()

	c.logger.Debug("autosave loop starting", "interval", c.config.Interval.String())
	go c.runLoop(ctx, c.done)
	return nil
}

// Stop halts the background loop. Safe to call multiple times.
//
// Stop does not flush: a teardown that must not lose changes calls
// SaveNow first.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	close(c.done)
	c.running = false
	c.logger.Debug("autosave loop stopped")
}

// SaveNow performs an explicit, unconditional save attempt.
//
// # Description
//
// Runs even when the session is clean: the user pressed save, so a
// save happens. Unlike background attempts the error is returned for
// display. A concurrent background attempt finishes first; SaveNow
// then snapshots whatever state exists at that point.
func (c *Coordinator) SaveNow(ctx context.Context) error {
	if err := c.attempt(ctx); err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// Beacon replaces the in-memory graph with a final client state dump
// and persists it best-effort.
//
// # Description
//
// Browsers fire a final beacon during page unload and never wait for a
// response, so this method returns immediately. The snapshot is applied
// to the store synchronously; the save runs in the background on a
// detached context and failures are only logged. If the process stays
// alive the regular autosave loop retries, since a failed attempt
// leaves the session dirty.
func (c *Coordinator) Beacon(snap graph.Snapshot) {
	c.store.Replace(snap)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.SaveTimeout)
		defer cancel()
		if err := c.attempt(ctx); err != nil {
			c.logger.Warn("beacon save failed", "error", err)
		}
	}()
}

// runLoop ticks until stopped or the context ends. The done channel is
// captured at Start so a restart cannot strand an older loop on the
// replacement channel.
func (c *Coordinator) runLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick runs one background save attempt if the session needs it.
func (c *Coordinator) tick(ctx context.Context) {
	c.mu.Lock()
	should := c.dirty && !c.saving
	c.mu.Unlock()
	if !should {
		return
	}

	if err := c.attempt(ctx); err != nil {
		// Background failures stay out of the user's way. The dirty
		// flag was re-set by attempt, so the next tick retries.
		c.logger.Warn("autosave failed, will retry", "error", err)
	}
}

// attempt performs one serialized save.
//
// # Description
//
// Clears the dirty flag before snapshotting so mutations that land
// while the backend write is in flight re-dirty the session. On
// failure the pre-attempt flag is restored, making the attempt
// retryable without losing the knowledge that changes exist. A failed
// explicit save on an already-clean session stays clean: the previous
// save is still durable.
func (c *Coordinator) attempt(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	wasDirty := c.dirty
	c.saving = true
	c.dirty = false
	c.mu.Unlock()

	snap := c.store.Snapshot()

	sctx, cancel := context.WithTimeout(ctx, c.config.SaveTimeout)
	defer cancel()
	err := c.save(sctx, snap)

	c.mu.Lock()
	c.saving = false
	if err != nil {
		c.dirty = c.dirty || wasDirty
		c.lastErr = err
	} else {
		c.lastErr = nil
		c.lastSaved = time.Now()
	}
	c.mu.Unlock()

	if err == nil {
		c.logger.Debug("workflow saved",
			"nodes", len(snap.Nodes),
			"edges", len(snap.Edges),
		)
	}
	return err
}
