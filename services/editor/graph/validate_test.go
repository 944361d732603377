// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// issueCodes extracts just the codes for order-insensitive checks.
func issueCodes(issues []SnapshotIssue) []string {
	codes := make([]string, 0, len(issues))
	for _, is := range issues {
		codes = append(codes, is.Code)
	}
	return codes
}

// TestValidateSnapshotClean verifies a well-formed pipeline passes.
func TestValidateSnapshotClean(t *testing.T) {
	snap := Snapshot{
		Nodes: []Node{
			{ID: "p1", Kind: KindPrompt},
			{ID: "t1", Kind: KindTextToImage},
		},
		Edges: []Edge{{ID: "e1", Source: "p1", Target: "t1"}},
	}
	assert.Empty(t, ValidateSnapshot(snap))
}

// TestValidateSnapshotDuplicates verifies duplicate ids are fatal.
func TestValidateSnapshotDuplicates(t *testing.T) {
	snap := Snapshot{
		Nodes: []Node{
			{ID: "p1", Kind: KindPrompt},
			{ID: "p1", Kind: KindPrompt},
			{ID: "t1", Kind: KindTextToImage},
		},
		Edges: []Edge{
			{ID: "e1", Source: "p1", Target: "t1"},
			{ID: "e1", Source: "p1", Target: "t1"},
		},
	}

	issues := ValidateSnapshot(snap)
	assert.Contains(t, issueCodes(issues), "duplicate_node")
	assert.Contains(t, issueCodes(issues), "duplicate_edge")

	fatal := FatalIssues(issues)
	require.Len(t, fatal, 2)
	for _, is := range fatal {
		assert.True(t, is.Fatal)
		assert.NotEmpty(t, is.Detail)
	}
}

// TestValidateSnapshotEmptyIDs verifies blank ids are fatal.
func TestValidateSnapshotEmptyIDs(t *testing.T) {
	snap := Snapshot{
		Nodes: []Node{{Kind: KindPrompt}},
		Edges: []Edge{{Source: "a", Target: "b"}},
	}
	codes := issueCodes(FatalIssues(ValidateSnapshot(snap)))
	assert.Contains(t, codes, "empty_node_id")
	assert.Contains(t, codes, "empty_edge_id")
}

// TestValidateSnapshotDanglingEdgeWarns verifies dangling edges from an
// external snapshot are reported but tolerated.
func TestValidateSnapshotDanglingEdgeWarns(t *testing.T) {
	snap := Snapshot{
		Nodes: []Node{{ID: "t1", Kind: KindTextToImage}},
		Edges: []Edge{{ID: "e1", Source: "ghost", Target: "t1"}},
	}

	issues := ValidateSnapshot(snap)
	require.Len(t, issues, 1)
	assert.Equal(t, "dangling_edge", issues[0].Code)
	assert.False(t, issues[0].Fatal)
	assert.Empty(t, FatalIssues(issues), "a dangling edge must not block a load")
}

// TestValidateSnapshotCycleWarns verifies cycle detection flags without
// rejecting. Resolution reads one hop, so a cyclic graph cannot hang it.
func TestValidateSnapshotCycleWarns(t *testing.T) {
	snap := Snapshot{
		Nodes: []Node{
			{ID: "a", Kind: KindImageToImage},
			{ID: "b", Kind: KindImageToImage},
			{ID: "c", Kind: KindImageToImage},
		},
		Edges: []Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "c"},
			{ID: "e3", Source: "c", Target: "a"},
		},
	}

	issues := ValidateSnapshot(snap)
	require.Len(t, issues, 1)
	assert.Equal(t, "cycle", issues[0].Code)
	assert.False(t, issues[0].Fatal)
}

// TestValidateSnapshotAcyclicDiamond verifies a diamond (two paths to
// one sink) is not mistaken for a cycle.
func TestValidateSnapshotAcyclicDiamond(t *testing.T) {
	snap := Snapshot{
		Nodes: []Node{
			{ID: "p", Kind: KindPrompt},
			{ID: "l", Kind: KindTextToImage},
			{ID: "r", Kind: KindTextToImage},
			{ID: "sink", Kind: KindImageToImage},
		},
		Edges: []Edge{
			{ID: "e1", Source: "p", Target: "l"},
			{ID: "e2", Source: "p", Target: "r"},
			{ID: "e3", Source: "l", Target: "sink"},
			{ID: "e4", Source: "r", Target: "sink"},
		},
	}
	assert.Empty(t, ValidateSnapshot(snap))
}

// TestIssueString verifies the log formatting helper.
func TestIssueString(t *testing.T) {
	is := SnapshotIssue{Code: "dangling_edge", Detail: "edge e1 source ghost", Fatal: false}
	s := is.String()
	assert.Contains(t, s, "dangling_edge")
	assert.Contains(t, s, "edge e1 source ghost")
}
