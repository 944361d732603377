// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/StoryloomAI/storyloom/pkg/logging"
	"github.com/StoryloomAI/storyloom/services/editor/autosave"
	"github.com/StoryloomAI/storyloom/services/editor/generate"
	"github.com/StoryloomAI/storyloom/services/editor/graph"
	"github.com/StoryloomAI/storyloom/services/editor/history"
	"github.com/StoryloomAI/storyloom/services/editor/lifecycle"
	"github.com/StoryloomAI/storyloom/services/editor/persist"
	"github.com/StoryloomAI/storyloom/services/editor/telemetry"
)

// ErrWorkflowInvalid marks a stored or submitted workflow that failed
// structural validation and cannot be hydrated.
var ErrWorkflowInvalid = errors.New("editor: workflow failed validation")

const (
	// defaultIdleTimeout is how long an untouched session survives
	// before the reaper flushes and drops it.
	defaultIdleTimeout = 30 * time.Minute

	// reapInterval is how often the reaper scans for idle sessions.
	reapInterval = time.Minute

	// teardownTimeout bounds the final save of a session being torn
	// down outside a request, by the reaper or at shutdown.
	teardownTimeout = 10 * time.Second
)

// Save trigger labels attached to the autosave counter.
const (
	triggerAuto     = "auto"
	triggerExplicit = "explicit"
)

// saveTriggerKey carries the save trigger label through a context.
type saveTriggerKey struct{}

// withSaveTrigger marks ctx so the session save function can label the
// write. The label survives context.WithTimeout derivation.
func withSaveTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, saveTriggerKey{}, trigger)
}

// saveTriggerFrom reads the trigger label, defaulting to "auto" for
// the interval and beacon paths, which never set one.
func saveTriggerFrom(ctx context.Context) string {
	if trigger, ok := ctx.Value(saveTriggerKey{}).(string); ok {
		return trigger
	}
	return triggerAuto
}

// metricsRecorder layers generation metrics over another recorder, so
// every completion feeds both the history backend and the meters.
type metricsRecorder struct {
	inner   history.Recorder
	metrics *telemetry.Metrics
}

// Record implements the history.Recorder interface.
func (r metricsRecorder) Record(ctx context.Context, gen history.Generation) {
	r.metrics.GenerationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(gen.Kind)),
		attribute.String("status", gen.Status),
	))
	r.metrics.GenerationDuration.Record(ctx, gen.Duration.Seconds(), metric.WithAttributes(
		attribute.String("kind", string(gen.Kind)),
	))
	r.inner.Record(ctx, gen)
}

// Close implements the history.Recorder interface.
func (r metricsRecorder) Close() {
	r.inner.Close()
}

// Session is one open project: its in-memory graph, the generation
// controller running against it, and the autosave loop keeping it
// durable.
type Session struct {
	ProjectID  string
	Store      *graph.Store
	Controller *lifecycle.Controller
	Autosave   *autosave.Coordinator

	cancel context.CancelFunc
	feeds  atomic.Int64

	mu        sync.Mutex
	lastTouch time.Time
}

// touch resets the idle clock.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastTouch = time.Now()
	s.mu.Unlock()
}

// IdleFor reports how long the session has gone untouched.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastTouch)
}

// AttachFeed registers a live event feed. A session with feeds
// attached is never reaped, whatever its idle time.
func (s *Session) AttachFeed() {
	s.feeds.Add(1)
	s.touch()
}

// DetachFeed releases a feed registration.
func (s *Session) DetachFeed() {
	s.feeds.Add(-1)
	s.touch()
}

// ActiveFeeds reports the number of attached event feeds.
func (s *Session) ActiveFeeds() int64 {
	return s.feeds.Load()
}

// SaveNow flushes the session synchronously with the explicit trigger
// label. Interval and beacon saves label themselves "auto".
func (s *Session) SaveNow(ctx context.Context) error {
	return s.Autosave.SaveNow(withSaveTrigger(ctx, triggerExplicit))
}

// managerConfig collects the per-session knobs the Manager needs from
// the service configuration.
type managerConfig struct {
	Autosave    autosave.Config
	Dispatch    lifecycle.Config
	IdleTimeout time.Duration
}

// Manager owns the set of open sessions.
//
// Description:
//
//	Sessions are created lazily: the first graph operation to touch a
//	project loads its workflow, hydrates a store, and starts autosave.
//	Concurrent first touches collapse into a single load. A background
//	reaper flushes and tears down sessions idle past the timeout, so
//	an abandoned browser tab does not pin memory forever.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Manager struct {
	persist  persist.Store
	registry *generate.Registry
	recorder history.Recorder
	metrics  *telemetry.Metrics
	logger   *logging.Logger

	autosaveCfg autosave.Config
	dispatchCfg lifecycle.Config
	idleTimeout time.Duration

	group    singleflight.Group
	mu       sync.Mutex
	sessions map[string]*Session

	done     chan struct{}
	stopOnce sync.Once
	reaperWG sync.WaitGroup
}

// newManager builds a Manager and starts its reaper.
func newManager(store persist.Store, registry *generate.Registry, recorder history.Recorder, metrics *telemetry.Metrics, logger *logging.Logger, cfg managerConfig) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	m := &Manager{
		persist:     store,
		registry:    registry,
		recorder:    recorder,
		metrics:     metrics,
		logger:      logger,
		autosaveCfg: cfg.Autosave,
		dispatchCfg: cfg.Dispatch,
		idleTimeout: cfg.IdleTimeout,
		sessions:    make(map[string]*Session),
		done:        make(chan struct{}),
	}
	m.reaperWG.Add(1)
	go m.reap()
	return m
}

// Open returns the session for projectID, creating it on first touch.
//
// Description:
//
//	The workflow snapshot is loaded, validated, and hydrated into a
//	fresh graph store. Losers of a concurrent first touch share the
//	winner's session. A stored snapshot with fatal structural issues
//	refuses to open; the stored bytes stay untouched for inspection.
func (m *Manager) Open(ctx context.Context, projectID string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[projectID]
	m.mu.Unlock()
	if ok {
		sess.touch()
		return sess, nil
	}

	v, err, _ := m.group.Do(projectID, func() (any, error) {
		m.mu.Lock()
		sess, ok := m.sessions[projectID]
		m.mu.Unlock()
		if ok {
			return sess, nil
		}
		return m.open(ctx, projectID)
	})
	if err != nil {
		return nil, err
	}
	sess = v.(*Session)
	sess.touch()
	return sess, nil
}

// open loads, validates, and wires one session. Caller holds the
// singleflight slot for projectID.
func (m *Manager) open(ctx context.Context, projectID string) (*Session, error) {
	snap, err := m.persist.LoadWorkflow(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if fatal := graph.FatalIssues(graph.ValidateSnapshot(snap)); len(fatal) > 0 {
		for _, issue := range fatal {
			m.logger.Error("Stored workflow failed validation",
				"project_id", projectID,
				"code", issue.Code,
				"detail", issue.Detail,
			)
		}
		return nil, fmt.Errorf("%w: %s", ErrWorkflowInvalid, fatal[0].Code)
	}

	store := graph.NewStore()
	store.Hydrate(snap)

	logger := m.logger.With("project_id", projectID)
	sctx, cancel := context.WithCancel(context.Background())

	sess := &Session{
		ProjectID:  projectID,
		Store:      store,
		Controller: lifecycle.New(projectID, store, m.registry, m.recorder, logger, m.dispatchCfg),
		Autosave:   autosave.New(store, m.saveFunc(projectID), logger, m.autosaveCfg),
		cancel:     cancel,
	}
	if err := sess.Autosave.Start(sctx); err != nil {
		cancel()
		return nil, fmt.Errorf("start autosave: %w", err)
	}

	m.mu.Lock()
	m.sessions[projectID] = sess
	m.mu.Unlock()

	logger.Info("Opened editing session",
		"node_count", store.NodeCount(),
		"edge_count", store.EdgeCount(),
	)
	return sess, nil
}

// saveFunc builds the persistence callback for one project. Every
// write, whatever its trigger, lands here, so save metrics are
// recorded in exactly one place.
func (m *Manager) saveFunc(projectID string) autosave.SaveFunc {
	return func(ctx context.Context, snap graph.Snapshot) error {
		start := time.Now()
		err := m.persist.SaveWorkflow(ctx, projectID, snap)

		status := "ok"
		if err != nil {
			status = "error"
		}
		m.metrics.AutosavesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("trigger", saveTriggerFrom(ctx)),
			attribute.String("status", status),
		))
		m.metrics.SaveDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("status", status),
		))
		return err
	}
}

// Peek returns an already-open session without creating one.
func (m *Manager) Peek(projectID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[projectID]
	return sess, ok
}

// Count reports the number of open sessions. Feeds the open-sessions
// gauge.
func (m *Manager) Count() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.sessions))
}

// Close flushes and tears down the session for projectID.
//
// Description:
//
//	The first return reports whether a session was open; closing a
//	project with no session is a no-op, not an error. A failed final
//	save is returned to the caller but the session is torn down
//	regardless, because close means the browser is gone.
func (m *Manager) Close(ctx context.Context, projectID string) (bool, error) {
	m.mu.Lock()
	sess, ok := m.sessions[projectID]
	if ok {
		delete(m.sessions, projectID)
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, m.teardown(ctx, sess, true)
}

// Drop tears down a session without a final save. Used when the
// project itself was deleted.
func (m *Manager) Drop(projectID string) {
	m.mu.Lock()
	sess, ok := m.sessions[projectID]
	if ok {
		delete(m.sessions, projectID)
	}
	m.mu.Unlock()
	if ok {
		_ = m.teardown(context.Background(), sess, false)
	}
}

// teardown stops a session's moving parts. The session must already be
// out of the map. With flush set, a dirty graph is saved first, and
// generations still in flight trigger one more save when they land.
func (m *Manager) teardown(ctx context.Context, sess *Session, flush bool) error {
	var saveErr error
	if flush && sess.Autosave.State() != autosave.StateClean {
		if saveErr = sess.SaveNow(ctx); saveErr != nil {
			m.logger.Error("Final save failed on session teardown",
				"project_id", sess.ProjectID,
				"error", saveErr,
			)
		}
	}
	sess.Autosave.Stop()
	sess.cancel()

	if flush && sess.Controller.InFlight() > 0 {
		// Stragglers resolve into the detached graph; flush once they
		// land so a close right after dispatch loses nothing.
		go func() {
			sess.Controller.Wait()
			fctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
			defer cancel()
			if err := sess.SaveNow(fctx); err != nil {
				m.logger.Error("Straggler flush failed",
					"project_id", sess.ProjectID,
					"error", err,
				)
			}
		}()
	}
	return saveErr
}

// reap drops idle sessions until Shutdown.
func (m *Manager) reap() {
	defer m.reaperWG.Done()
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

// reapIdle flushes and tears down sessions idle past the timeout.
// Sessions with an attached event feed are skipped; a connected canvas
// counts as in use even when nothing is changing.
func (m *Manager) reapIdle() {
	m.mu.Lock()
	var idle []*Session
	for id, sess := range m.sessions {
		if sess.ActiveFeeds() > 0 || sess.IdleFor() < m.idleTimeout {
			continue
		}
		delete(m.sessions, id)
		idle = append(idle, sess)
	}
	m.mu.Unlock()

	for _, sess := range idle {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		err := m.teardown(ctx, sess, true)
		cancel()
		if err == nil {
			m.logger.Info("Reaped idle session", "project_id", sess.ProjectID)
		}
	}
}

// Shutdown flushes every open session and stops the reaper. Called
// once when the service exits.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() {
		close(m.done)
	})

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		_ = m.teardown(ctx, sess, true)
	}
	m.reaperWG.Wait()
}
