// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"errors"
	"sync"
)

// Sentinel errors returned by Store mutations. Read paths and async
// callbacks never return these: transient topology inconsistency is
// expected in a live-edited graph and is tolerated silently there.
var (
	// ErrInvalidNode indicates a node with an empty id.
	ErrInvalidNode = errors.New("graph: node id is empty")

	// ErrDuplicateNode indicates an id collision on AddNode.
	ErrDuplicateNode = errors.New("graph: node id already exists")

	// ErrInvalidEdge indicates an edge with an empty id.
	ErrInvalidEdge = errors.New("graph: edge id is empty")

	// ErrDuplicateEdge indicates an id collision on AddEdge.
	ErrDuplicateEdge = errors.New("graph: edge id already exists")

	// ErrEndpointMissing indicates an edge whose source or target does
	// not currently exist in the store.
	ErrEndpointMissing = errors.New("graph: edge endpoint does not exist")
)

// Store is the single source of truth for nodes and edges within one
// editing session (one open project).
//
// Description:
//
//	Every mutation replaces the underlying collections with fresh ones
//	(copy-on-write): no element is ever mutated in place, so snapshots
//	and node copies handed out earlier never observe later changes, and
//	each discrete update is atomic, so a concurrent reader sees the graph
//	either entirely before or entirely after it.
//
//	Mutations additionally bump a monotonic version, publish a
//	node-id-scoped change event to subscribers, and invoke the dirty
//	hook that feeds the autosave coordinator.
//
//	Lookups scan linearly. A single-user canvas holds tens to a few
//	hundred nodes; an id index would buy nothing at that scale.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	nodes   []Node
	edges   []Edge
	version uint64
	subs    map[string]*Subscription

	// onDirty is invoked after every successful mutation, outside the
	// lock. Set once during session wiring, before the store is shared.
	onDirty func()
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{subs: make(map[string]*Subscription)}
}

// SetDirtyHook registers the callback invoked after every successful
// mutation. Must be called before the store is shared across goroutines.
func (s *Store) SetDirtyHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDirty = fn
}

// Version returns the mutation counter. It increases by exactly one per
// successful mutation and never decreases within a session.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOfNode(id); i >= 0 {
		return s.nodes[i].Clone(), true
	}
	return Node{}, false
}

// Nodes returns a copy of all nodes in insertion order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Clone()
	}
	return out
}

// Edges returns a copy of all edges in insertion order.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// Snapshot returns a deep copy of the full graph, suitable for
// persistence or export. The copy is immutable with respect to the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Nodes: s.nodes, Edges: s.edges}.Clone()
}

// AddNode appends a node.
//
// Description:
//
//	The caller supplies the id. Ids are enforced unique: a collision
//	returns ErrDuplicateNode rather than silently shadowing the earlier
//	node, which would corrupt resolver ordering and update targeting.
//	The node's data map is cloned on the way in.
func (s *Store) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNode
	}
	s.mu.Lock()
	if s.indexOfNode(n.ID) >= 0 {
		s.mu.Unlock()
		return ErrDuplicateNode
	}
	n.Data = n.Data.Clone()
	nodes := make([]Node, len(s.nodes), len(s.nodes)+1)
	copy(nodes, s.nodes)
	s.nodes = append(nodes, n)
	s.finishLocked(Event{Op: OpAddNode, NodeIDs: []string{n.ID}})
	return nil
}

// RemoveNode removes a node and every edge referencing it.
//
// Description:
//
//	Cascading here is what guarantees the store never holds a dangling
//	edge of its own making; tolerance for dangling edges on read paths
//	exists only for snapshots that arrived from outside. Removing an
//	unknown id is a no-op returning false.
func (s *Store) RemoveNode(id string) bool {
	s.mu.Lock()
	i := s.indexOfNode(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	nodes := make([]Node, 0, len(s.nodes)-1)
	nodes = append(nodes, s.nodes[:i]...)
	nodes = append(nodes, s.nodes[i+1:]...)
	s.nodes = nodes

	// The event names the surviving endpoints of cascaded edges too, so
	// a consumer watching only its own node learns its input went away.
	touched := []string{id}
	seen := map[string]bool{id: true}
	var removedEdges []string
	edges := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			removedEdges = append(removedEdges, e.ID)
			for _, end := range []string{e.Source, e.Target} {
				if !seen[end] {
					seen[end] = true
					touched = append(touched, end)
				}
			}
			continue
		}
		edges = append(edges, e)
	}
	s.edges = edges
	s.finishLocked(Event{Op: OpRemoveNode, NodeIDs: touched, EdgeIDs: removedEdges})
	return true
}

// UpdateNodeData shallow-merges patch into the node's data.
//
// Description:
//
//	Safe to call from an async completion after the user may have
//	deleted the node: an unknown id is a silent no-op returning false,
//	never an error. The merge builds a new data map and a new node
//	value; nothing is written in place.
func (s *Store) UpdateNodeData(id string, patch Data) bool {
	s.mu.Lock()
	i := s.indexOfNode(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	n := s.nodes[i]
	n.Data = n.Data.Merge(patch)
	s.replaceNodeLocked(i, n)
	s.finishLocked(Event{Op: OpUpdateNode, NodeIDs: []string{id}})
	return true
}

// UpdateNodePosition moves a node on the canvas. Unknown id is a no-op.
func (s *Store) UpdateNodePosition(id string, pos Position) bool {
	s.mu.Lock()
	i := s.indexOfNode(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	n := s.nodes[i]
	n.Position = pos
	n.Data = n.Data.Clone()
	s.replaceNodeLocked(i, n)
	s.finishLocked(Event{Op: OpUpdateNode, NodeIDs: []string{id}})
	return true
}

// AddEdge appends an edge after validating that both endpoints exist.
func (s *Store) AddEdge(e Edge) error {
	if e.ID == "" {
		return ErrInvalidEdge
	}
	s.mu.Lock()
	if s.indexOfEdge(e.ID) >= 0 {
		s.mu.Unlock()
		return ErrDuplicateEdge
	}
	if s.indexOfNode(e.Source) < 0 || s.indexOfNode(e.Target) < 0 {
		s.mu.Unlock()
		return ErrEndpointMissing
	}
	edges := make([]Edge, len(s.edges), len(s.edges)+1)
	copy(edges, s.edges)
	s.edges = append(edges, e)
	s.finishLocked(Event{Op: OpAddEdge, NodeIDs: []string{e.Source, e.Target}, EdgeIDs: []string{e.ID}})
	return nil
}

// RemoveEdge removes the edge with the given id. Unknown id is a no-op.
func (s *Store) RemoveEdge(id string) bool {
	return s.RemoveEdgesMatching(func(e Edge) bool { return e.ID == id }) > 0
}

// RemoveEdgesMatching removes every edge the predicate selects and
// returns how many were removed. Used e.g. to sever a reference-image
// connection when the user clears that input slot.
func (s *Store) RemoveEdgesMatching(pred func(Edge) bool) int {
	s.mu.Lock()
	var removedIDs []string
	var touched []string
	edges := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if pred(e) {
			removedIDs = append(removedIDs, e.ID)
			touched = append(touched, e.Source, e.Target)
			continue
		}
		edges = append(edges, e)
	}
	if len(removedIDs) == 0 {
		s.mu.Unlock()
		return 0
	}
	s.edges = edges
	s.finishLocked(Event{Op: OpRemoveEdge, NodeIDs: touched, EdgeIDs: removedIDs})
	return len(removedIDs)
}

// Hydrate installs a loaded snapshot as the initial graph state.
//
// Description:
//
//	Used once, when a project is opened: it does not mark the session
//	dirty and does not notify subscribers, because nothing the user did
//	produced it. The snapshot is deep-copied in.
func (s *Store) Hydrate(snap Snapshot) {
	snap = snap.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = snap.Nodes
	s.edges = snap.Edges
}

// Replace swaps in a complete snapshot as one user-level mutation.
//
// Description:
//
//	This is the unload-beacon path: the browser ships its final graph
//	state and the whole collection is replaced atomically. It marks the
//	session dirty so a failed background write is retried by the next
//	autosave tick.
func (s *Store) Replace(snap Snapshot) {
	snap = snap.Clone()
	s.mu.Lock()
	s.nodes = snap.Nodes
	s.edges = snap.Edges
	s.finishLocked(Event{Op: OpReplace})
}

// indexOfNode returns the position of id in s.nodes, or -1. Caller holds
// at least a read lock.
func (s *Store) indexOfNode(id string) int {
	for i, n := range s.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// indexOfEdge returns the position of id in s.edges, or -1. Caller holds
// at least a read lock.
func (s *Store) indexOfEdge(id string) int {
	for i, e := range s.edges {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// replaceNodeLocked swaps in a new value at position i via a fresh slice.
// Caller holds the write lock.
func (s *Store) replaceNodeLocked(i int, n Node) {
	nodes := make([]Node, len(s.nodes))
	copy(nodes, s.nodes)
	nodes[i] = n
	s.nodes = nodes
}

// finishLocked completes a successful mutation: bumps the version, stamps
// and publishes the event, releases the lock, then fires the dirty hook.
// The hook runs outside the lock so it may freely read the store.
func (s *Store) finishLocked(ev Event) {
	s.version++
	ev.Seq = s.version
	s.publishLocked(ev)
	hook := s.onDirty
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
}
