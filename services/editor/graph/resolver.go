// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "strings"

// Inputs are a consumer node's effective inputs, derived from the graph
// topology. Order follows edge insertion order, never sorted.
type Inputs struct {
	// Prompts collects text contributed by upstream prompt-producing
	// nodes, one entry per contributing edge.
	Prompts []string `json:"prompts"`

	// Images collects image URLs contributed by upstream producers.
	Images []string `json:"images"`

	// Videos collects video URLs contributed by upstream producers.
	Videos []string `json:"videos"`
}

// JoinedPrompt returns all prompt contributions as a single string,
// comma-joined. Deterministic for a given graph state.
func (in Inputs) JoinedPrompt() string {
	return strings.Join(in.Prompts, ",")
}

// Empty reports whether resolution produced no contributions at all.
func (in Inputs) Empty() bool {
	return len(in.Prompts) == 0 && len(in.Images) == 0 && len(in.Videos) == 0
}

// ResolveInputs derives a node's effective inputs by walking its
// incoming edges.
//
// Description:
//
//	Finds every edge whose target is nodeID (filtered by targetHandle
//	when non-empty), looks up each source node, and collects its typed
//	outputs via the accessors in outputs.go. The consumer never needs to
//	know which upstream kind produced a value.
//
//	Tolerance rules, in order: a dangling edge (source id not found) is
//	skipped; a source that exists but is still loading, or has no
//	recognized output yet, contributes nothing. Neither is an error;
//	"not yet available" is a normal state in a live-edited graph and the
//	consumer shows its own waiting state.
//
//	Resolution is a pure read: calling it twice with no intervening
//	mutation returns equal results. Consumers re-resolve when a change
//	event for their node id arrives (see Subscribe), not on a poll.
//
// Inputs:
//
//	nodeID - The consumer node.
//	targetHandle - Input slot filter; "" means all incoming edges.
//
// Outputs:
//
//	Inputs - Contributions in edge insertion order.
func (s *Store) ResolveInputs(nodeID, targetHandle string) Inputs {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var in Inputs
	for _, e := range s.edges {
		if e.Target != nodeID {
			continue
		}
		if targetHandle != "" && e.TargetHandle != targetHandle {
			continue
		}
		i := s.indexOfNode(e.Source)
		if i < 0 {
			continue // dangling edge from an externally loaded snapshot
		}
		src := s.nodes[i]
		if prompt, ok := src.PromptOutput(); ok {
			in.Prompts = append(in.Prompts, prompt)
		}
		if img, ok := src.ImageOutput(); ok {
			in.Images = append(in.Images, img)
		}
		if vid, ok := src.VideoOutput(); ok {
			in.Videos = append(in.Videos, vid)
		}
	}
	return in
}
