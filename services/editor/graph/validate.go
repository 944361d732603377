// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "fmt"

// SnapshotIssue is one problem found while validating a loaded snapshot.
type SnapshotIssue struct {
	// Code is a stable machine-readable tag: "duplicate_node",
	// "duplicate_edge", "empty_node_id", "empty_edge_id",
	// "dangling_edge", "cycle".
	Code string `json:"code"`

	// Detail is the human-readable description.
	Detail string `json:"detail"`

	// Fatal issues prevent the snapshot from being hydrated; non-fatal
	// ones are surfaced to the UI as warnings.
	Fatal bool `json:"fatal"`
}

func (i SnapshotIssue) String() string {
	return i.Code + ": " + i.Detail
}

// ValidateSnapshot inspects a snapshot that arrived from outside the
// store, such as one loaded from persistence or shipped by the unload beacon.
//
// Description:
//
//	The store's own mutations cannot produce duplicate ids or dangling
//	edges, but external snapshots are untrusted. Duplicate and empty ids
//	are fatal: hydrating them would corrupt update targeting. Dangling
//	edges are demoted to warnings because the read paths skip them
//	anyway. Cycles are warnings too, since input resolution only ever walks
//	direct incoming edges, so a cycle cannot loop it, but the UI wants
//	to flag one to the user.
func ValidateSnapshot(snap Snapshot) []SnapshotIssue {
	var issues []SnapshotIssue

	nodeIDs := make(map[string]bool, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.ID == "" {
			issues = append(issues, SnapshotIssue{
				Code:   "empty_node_id",
				Detail: "node with empty id",
				Fatal:  true,
			})
			continue
		}
		if nodeIDs[n.ID] {
			issues = append(issues, SnapshotIssue{
				Code:   "duplicate_node",
				Detail: fmt.Sprintf("node id %q appears more than once", n.ID),
				Fatal:  true,
			})
			continue
		}
		nodeIDs[n.ID] = true
	}

	edgeIDs := make(map[string]bool, len(snap.Edges))
	for _, e := range snap.Edges {
		if e.ID == "" {
			issues = append(issues, SnapshotIssue{
				Code:   "empty_edge_id",
				Detail: fmt.Sprintf("edge %s->%s with empty id", e.Source, e.Target),
				Fatal:  true,
			})
		} else if edgeIDs[e.ID] {
			issues = append(issues, SnapshotIssue{
				Code:   "duplicate_edge",
				Detail: fmt.Sprintf("edge id %q appears more than once", e.ID),
				Fatal:  true,
			})
		} else {
			edgeIDs[e.ID] = true
		}
		if !nodeIDs[e.Source] || !nodeIDs[e.Target] {
			issues = append(issues, SnapshotIssue{
				Code:   "dangling_edge",
				Detail: fmt.Sprintf("edge %q references a missing node (%s->%s)", e.ID, e.Source, e.Target),
			})
		}
	}

	if hasCycle(snap) {
		issues = append(issues, SnapshotIssue{
			Code:   "cycle",
			Detail: "graph contains a cycle",
		})
	}

	return issues
}

// FatalIssues filters a validation report down to the issues that block
// hydration.
func FatalIssues(issues []SnapshotIssue) []SnapshotIssue {
	var fatal []SnapshotIssue
	for _, i := range issues {
		if i.Fatal {
			fatal = append(fatal, i)
		}
	}
	return fatal
}

// hasCycle runs a three-color DFS over the edge list. Nodes referenced
// only by dangling edges participate so a cycle through them still
// reports.
func hasCycle(snap Snapshot) bool {
	adj := make(map[string][]string)
	for _, e := range snap.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]int)
	for _, n := range snap.Nodes {
		state[n.ID] = unvisited
	}
	for _, e := range snap.Edges {
		if _, ok := state[e.Source]; !ok {
			state[e.Source] = unvisited
		}
		if _, ok := state[e.Target]; !ok {
			state[e.Target] = unvisited
		}
	}

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = visiting
		for _, next := range adj[id] {
			switch state[next] {
			case visiting:
				return true
			case unvisited:
				if dfs(next) {
					return true
				}
			}
		}
		state[id] = visited
		return false
	}

	for id, st := range state {
		if st == unvisited && dfs(id) {
			return true
		}
	}
	return false
}
