// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badger implements persist.Store on BadgerDB.
//
// BadgerDB keeps the editor fully local: project metadata and workflow
// snapshots live in one embedded key-value store with no external
// process to run. Keys are namespaced by record type:
//
//	meta:<projectID>     -> persist.Project JSON
//	workflow:<projectID> -> graph.Snapshot JSON
//
// Both records for a project are written in one transaction wherever
// consistency between them matters (create, save, delete).
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/StoryloomAI/storyloom/services/editor/graph"
	"github.com/StoryloomAI/storyloom/services/editor/persist"
)

const (
	metaPrefix     = "meta:"
	workflowPrefix = "workflow:"

	// conflictRetries bounds reruns of read-modify-write transactions.
	// Autosave and the unload beacon can race on one project; an SSI
	// conflict just means the transaction must be rerun on fresh reads.
	// A retry only burns when another writer commits, so this bound
	// covers bursts well beyond the two real writers per project.
	conflictRetries = 8
)

// Config holds configuration for the store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// ReadOnly opens an existing store for reading only. Multiple
	// processes may hold a read-only store at once, so inspection
	// tools can run beside a live server. Requires Path.
	ReadOnly bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable. Ignored for in-memory stores.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before
	// GC rewrites a value log file. Defaults to 0.5 when zero.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: synchronous writes and a
// five-minute GC cycle.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no
// sync, no GC. Data is lost on Close.
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		GCInterval: 0,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
// Badger's INFO output is table-compaction chatter; it maps to Debug
// so editor logs stay about the editor.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the BadgerDB-backed persist.Store.
type Store struct {
	db *badger.DB
	gc *gcRunner
}

var _ persist.Store = (*Store)(nil)

// Open creates and opens a store with the given configuration.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist and
//	starts the value log GC runner when GCInterval is set.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
//
// Thread Safety: The returned *Store is safe for concurrent use.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else if cfg.ReadOnly {
		// No MkdirAll: a read-only open of a store that was never
		// created should fail, not plant an empty one.
		opts = badger.DefaultOptions(cfg.Path).WithReadOnly(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory && !cfg.ReadOnly {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.5
		}
		s.gc = newGCRunner(db, cfg.GCInterval, ratio, cfg.Logger)
		s.gc.start()
	}
	return s, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// CreateProject allocates a fresh id, writes the metadata record and an
// empty workflow snapshot in one transaction, and returns the metadata.
func (s *Store) CreateProject(ctx context.Context, name string) (persist.Project, error) {
	now := time.Now().UTC()
	project := persist.Project{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	meta, err := json.Marshal(project)
	if err != nil {
		return persist.Project{}, fmt.Errorf("encode project metadata: %w", err)
	}
	workflow, err := json.Marshal(emptySnapshot())
	if err != nil {
		return persist.Project{}, fmt.Errorf("encode empty workflow: %w", err)
	}

	err = s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(project.ID), meta); err != nil {
			return err
		}
		return txn.Set(workflowKey(project.ID), workflow)
	})
	if err != nil {
		return persist.Project{}, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}

// GetProject returns the metadata record for id.
func (s *Store) GetProject(ctx context.Context, id string) (persist.Project, error) {
	if id == "" {
		return persist.Project{}, persist.ErrInvalidProjectID
	}

	var project persist.Project
	err := s.view(ctx, func(txn *badger.Txn) error {
		p, err := readProject(txn, id)
		if err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return persist.Project{}, err
	}
	return project, nil
}

// ListProjects returns every project, most recently updated first.
func (s *Store) ListProjects(ctx context.Context) ([]persist.Project, error) {
	projects := []persist.Project{}
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var p persist.Project
				if err := json.Unmarshal(val, &p); err != nil {
					// A corrupt row hides one project, not the list.
					return nil
				}
				projects = append(projects, p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	sort.Slice(projects, func(i, j int) bool {
		if !projects[i].UpdatedAt.Equal(projects[j].UpdatedAt) {
			return projects[i].UpdatedAt.After(projects[j].UpdatedAt)
		}
		return projects[i].ID < projects[j].ID
	})
	return projects, nil
}

// RenameProject applies the metadata-only partial update {id, name}.
// The workflow record is untouched.
func (s *Store) RenameProject(ctx context.Context, id, name string) (persist.Project, error) {
	if id == "" {
		return persist.Project{}, persist.ErrInvalidProjectID
	}

	var project persist.Project
	err := s.update(ctx, func(txn *badger.Txn) error {
		p, err := readProject(txn, id)
		if err != nil {
			return err
		}
		p.Name = name
		p.UpdatedAt = time.Now().UTC()

		meta, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode project metadata: %w", err)
		}
		if err := txn.Set(metaKey(id), meta); err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return persist.Project{}, err
	}
	return project, nil
}

// DeleteProject removes the metadata and workflow records together.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if id == "" {
		return persist.ErrInvalidProjectID
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := readProject(txn, id); err != nil {
			return err
		}
		if err := txn.Delete(metaKey(id)); err != nil {
			return err
		}
		return txn.Delete(workflowKey(id))
	})
}

// SaveWorkflow replaces the stored snapshot and bumps the project's
// updatedAt in the same transaction. The snapshot is assumed
// self-consistent; the store does not re-validate topology.
func (s *Store) SaveWorkflow(ctx context.Context, id string, snap graph.Snapshot) error {
	if id == "" {
		return persist.ErrInvalidProjectID
	}

	workflow, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode workflow: %w", err)
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		p, err := readProject(txn, id)
		if err != nil {
			return err
		}
		p.UpdatedAt = time.Now().UTC()

		meta, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode project metadata: %w", err)
		}
		if err := txn.Set(metaKey(id), meta); err != nil {
			return err
		}
		return txn.Set(workflowKey(id), workflow)
	})
}

// LoadWorkflow returns the stored snapshot for id. A project whose
// workflow record is missing (created before a save ever ran) loads as
// an empty snapshot rather than an error.
func (s *Store) LoadWorkflow(ctx context.Context, id string) (graph.Snapshot, error) {
	if id == "" {
		return graph.Snapshot{}, persist.ErrInvalidProjectID
	}

	snap := emptySnapshot()
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(workflowKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			// Fall back to the metadata record to distinguish a
			// never-saved project from an unknown id.
			_, err := readProject(txn, id)
			return err
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &snap); err != nil {
				return fmt.Errorf("decode workflow: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return graph.Snapshot{}, err
	}

	if snap.Nodes == nil {
		snap.Nodes = []graph.Node{}
	}
	if snap.Edges == nil {
		snap.Edges = []graph.Edge{}
	}
	return snap, nil
}

// update runs fn in a read-write transaction, rerunning it a bounded
// number of times when optimistic concurrency control reports a
// conflict.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// view runs fn in a read-only transaction.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.View(fn)
}

// readProject fetches and decodes the metadata record inside txn.
func readProject(txn *badger.Txn, id string) (persist.Project, error) {
	item, err := txn.Get(metaKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return persist.Project{}, fmt.Errorf("%w: %s", persist.ErrProjectNotFound, id)
	}
	if err != nil {
		return persist.Project{}, err
	}

	var p persist.Project
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	})
	if err != nil {
		return persist.Project{}, fmt.Errorf("decode project metadata: %w", err)
	}
	return p, nil
}

func metaKey(id string) []byte {
	return []byte(metaPrefix + id)
}

func workflowKey(id string) []byte {
	return []byte(workflowPrefix + id)
}

func emptySnapshot() graph.Snapshot {
	return graph.Snapshot{Nodes: []graph.Node{}, Edges: []graph.Edge{}}
}

// gcRunner periodically triggers BadgerDB value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (r *gcRunner) start() {
	go r.run()
}

// stop halts garbage collection and waits for the loop to exit.
func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *gcRunner) runGC() {
	// RunValueLogGC returns ErrNoRewrite when nothing needed collecting.
	err := r.db.RunValueLogGC(r.ratio)
	if err == nil {
		if r.logger != nil {
			r.logger.Debug("badger value log GC completed")
		}
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		if r.logger != nil {
			r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
		}
	}
}
