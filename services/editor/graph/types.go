// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph holds the canonical node/edge state for one open project
// and the logic that derives a node's effective inputs from the topology.
//
// The Store is the single source of truth for a canvas session. Renderers
// and the generation lifecycle never share node references: every read
// returns a copy and every mutation replaces the underlying collections
// wholesale, so a snapshot taken before a mutation never observes it.
package graph

import "maps"

// NodeKind identifies the creative operation a node represents.
//
// Kind values are wire-stable: they appear verbatim in persisted snapshots
// and in the browser protocol, so they use the canvas-side camelCase names.
type NodeKind string

const (
	// KindPrompt is a user-authored text prompt.
	KindPrompt NodeKind = "prompt"

	// KindUpload is a user-supplied reference image.
	KindUpload NodeKind = "upload"

	// KindTextToImage produces an image from prompt text.
	KindTextToImage NodeKind = "textToImage"

	// KindImageToImage produces an image from a base image plus prompt.
	KindImageToImage NodeKind = "imageToImage"

	// KindImageToVideo produces a video clip from a still image.
	KindImageToVideo NodeKind = "imageToVideo"

	// KindAnnotation is an image-editing node; the edited result becomes
	// its output image. Brush/paint mechanics live entirely in the UI.
	KindAnnotation NodeKind = "annotation"

	// KindDescribe produces a text description of an upstream image.
	KindDescribe NodeKind = "describe"
)

// validKinds contains all NodeKind values accepted by the API layer.
// The Store itself stays permissive: snapshots written by newer clients
// may carry kinds this build does not know yet.
var validKinds = map[NodeKind]bool{
	KindPrompt:       true,
	KindUpload:       true,
	KindTextToImage:  true,
	KindImageToImage: true,
	KindImageToVideo: true,
	KindAnnotation:   true,
	KindDescribe:     true,
}

// IsValid reports whether the kind is one this build knows.
func (k NodeKind) IsValid() bool {
	return validKinds[k]
}

// KindNames returns all known kind values, for validator registration.
func KindNames() []string {
	names := make([]string, 0, len(validKinds))
	for k := range validKinds {
		names = append(names, string(k))
	}
	return names
}

// Well-known keys inside Node.Data. The data map is deliberately open:
// any node may carry any of these, and consumers read them through the
// typed accessors in outputs.go rather than scanning raw keys.
const (
	// FieldIsLoading marks an in-flight generation placeholder.
	FieldIsLoading = "isLoading"

	// FieldLoadingProgress is a human-readable progress or error string.
	FieldLoadingProgress = "loadingProgress"

	// FieldOutputImage is the canonical generated-image URL.
	FieldOutputImage = "outputImage"

	// FieldImageURL is the upload/reference image URL.
	FieldImageURL = "imageUrl"

	// FieldGeneratedImage is a legacy generated-image key still present
	// in snapshots written by older clients.
	FieldGeneratedImage = "generatedImage"

	// FieldImage is the oldest legacy image key.
	FieldImage = "image"

	// FieldVideoURL is the generated-video URL.
	FieldVideoURL = "videoUrl"

	// FieldDescription is an optional text enrichment of a result.
	FieldDescription = "description"

	// FieldPrompt is the prompt text on prompt nodes.
	FieldPrompt = "prompt"

	// FieldText is the legacy prompt key.
	FieldText = "text"

	// FieldLabel is the display label shown on the canvas.
	FieldLabel = "label"
)

// Data is the open, kind-specific payload of a node.
//
// Description:
//
//	Data marshals as a plain JSON object. Its shape is determined by the
//	node's kind but never enforced; consumers read fields opportunistically
//	through the accessors on Node. Store mutations treat Data as immutable:
//	merging a patch produces a new map, never an in-place write.
type Data map[string]any

// Clone returns an independent shallow copy. A nil receiver yields an
// empty, non-nil map so callers can merge into it.
func (d Data) Clone() Data {
	out := make(Data, len(d)+4)
	maps.Copy(out, d)
	return out
}

// Merge returns a new map with patch applied over d (shallow, last wins).
// Neither input is modified.
func (d Data) Merge(patch Data) Data {
	out := d.Clone()
	maps.Copy(out, patch)
	return out
}

// GetString returns the string value under key, or "" when absent or not
// a string. JSON round-trips leave everything as any, hence the assertion.
func (d Data) GetString(key string) string {
	s, _ := d[key].(string)
	return s
}

// GetBool returns the boolean value under key, false when absent.
func (d Data) GetBool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Position holds the canvas coordinates of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a vertex in the workflow graph: one creative operation or
// artifact (prompt, generated image, video clip, editing step).
//
// Description:
//
//	The id is caller-generated and unique within a graph, conventionally
//	"<kind>-<unix-millis>[-<rand>]". Kind is immutable after creation.
//	Data is open; see the Field* constants for the well-known keys.
type Node struct {
	// ID uniquely identifies the node within its graph.
	ID string `json:"id"`

	// Kind determines the node's behavior and its canonical output field.
	Kind NodeKind `json:"kind"`

	// Position is where the node sits on the canvas.
	Position Position `json:"position"`

	// Data holds the kind-specific payload.
	Data Data `json:"data"`
}

// Clone returns a copy with an independent data map.
func (n Node) Clone() Node {
	n.Data = n.Data.Clone()
	return n
}

// IsLoading reports whether the node is an unresolved generation
// placeholder.
func (n Node) IsLoading() bool {
	return n.Data.GetBool(FieldIsLoading)
}

// Edge is a directed connection carrying a data dependency from a
// producer node to a consumer node's named input slot.
type Edge struct {
	// ID uniquely identifies the edge within its graph.
	ID string `json:"id"`

	// Source is the producer node id.
	Source string `json:"source"`

	// Target is the consumer node id.
	Target string `json:"target"`

	// SourceHandle names the output slot on the source, when the source
	// exposes more than one.
	SourceHandle string `json:"sourceHandle,omitempty"`

	// TargetHandle disambiguates input slots on the target, e.g. a node
	// with both a "prompt-in" and an "image-in" slot.
	TargetHandle string `json:"targetHandle,omitempty"`

	// Animated is presentational; the core carries it untouched.
	Animated bool `json:"animated,omitempty"`

	// Label is presentational.
	Label string `json:"label,omitempty"`
}

// Snapshot is the full persisted form of a graph: the unit the autosave
// coordinator writes and the load path reads.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Clone returns a deep copy: fresh slices and fresh data maps.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Nodes: make([]Node, len(s.Nodes)),
		Edges: make([]Edge, len(s.Edges)),
	}
	for i, n := range s.Nodes {
		out.Nodes[i] = n.Clone()
	}
	copy(out.Edges, s.Edges)
	return out
}
