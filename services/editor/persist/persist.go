// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package persist defines the storage boundary for projects and their
// workflow snapshots.
//
// The editor core never touches a database directly. It hands a
// self-consistent graph.Snapshot to a Store and gets one back on open;
// everything else (keys, codecs, durability) is the implementation's
// concern. See the badger subpackage for the embedded default.
package persist

import (
	"context"
	"errors"
	"time"

	"github.com/StoryloomAI/storyloom/services/editor/graph"
)

var (
	// ErrProjectNotFound reports an id with no stored project behind it.
	ErrProjectNotFound = errors.New("persist: project not found")

	// ErrInvalidProjectID reports an empty or malformed project id.
	ErrInvalidProjectID = errors.New("persist: invalid project id")
)

// Project is the metadata row for one workflow.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists project metadata and workflow snapshots.
//
// Implementations must be safe for concurrent use; the editor service
// shares one Store across every session. SaveWorkflow is called from
// both the autosave path and the fire-and-forget beacon path, so it
// must tolerate overlapping writes for the same id (last write wins).
type Store interface {
	// CreateProject allocates an id, records metadata, and seeds an
	// empty workflow so a fresh project opens cleanly.
	CreateProject(ctx context.Context, name string) (Project, error)

	// GetProject returns metadata for one project.
	GetProject(ctx context.Context, id string) (Project, error)

	// ListProjects returns all projects, most recently updated first.
	ListProjects(ctx context.Context) ([]Project, error)

	// RenameProject applies the metadata-only partial update {id, name}.
	// The stored workflow is untouched.
	RenameProject(ctx context.Context, id, name string) (Project, error)

	// DeleteProject removes metadata and workflow together.
	DeleteProject(ctx context.Context, id string) error

	// SaveWorkflow replaces the stored snapshot and bumps the
	// project's updatedAt.
	SaveWorkflow(ctx context.Context, id string, snap graph.Snapshot) error

	// LoadWorkflow returns the stored snapshot. A project that exists
	// but has never been saved loads as an empty snapshot.
	LoadWorkflow(ctx context.Context, id string) (graph.Snapshot, error)

	// Close releases the underlying storage.
	Close() error
}
