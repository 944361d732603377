// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package script turns a written script into prompt nodes.
//
// A script import is the fast path from "I have a story" to "I have a
// storyboard": the text is split into scene-sized chunks and each chunk
// becomes a prompt node laid out in a column, ready to wire into
// generation nodes.
package script

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/StoryloomAI/storyloom/services/editor/graph"
)

const (
	// DefaultChunkSize is roughly one narrated scene. Short-video
	// scripts run a few sentences per shot, so this errs small; the
	// API accepts an override per import.
	DefaultChunkSize = 480

	defaultColumnX = 120.0
	defaultStartY  = 120.0
	defaultSpacing = 180.0
)

// sceneSeparators prefer scene and paragraph breaks, then sentences,
// then words. Scene text must not repeat across prompts, so the
// splitter runs with zero overlap.
var sceneSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Options tunes an import. The zero value uses defaults.
type Options struct {
	// ChunkSize caps the characters per scene. Defaults to
	// DefaultChunkSize when <= 0.
	ChunkSize int

	// Origin is the position of the first prompt node. Defaults to
	// the canvas margin.
	Origin *graph.Position

	// Spacing is the vertical gap between prompt nodes. Defaults to
	// one node height plus padding.
	Spacing float64
}

// SplitScenes splits a script into scene-sized chunks.
func SplitScenes(script string, chunkSize int) ([]string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(0),
		textsplitter.WithSeparators(sceneSeparators),
	)

	chunks, err := splitter.SplitText(script)
	if err != nil {
		return nil, fmt.Errorf("split script: %w", err)
	}

	scenes := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			scenes = append(scenes, chunk)
		}
	}
	return scenes, nil
}

// PromptNodes splits the script and builds one prompt node per scene,
// laid out top to bottom in a single column. The caller adds them to a
// store; a whitespace-only script yields no nodes and no error.
func PromptNodes(script string, opts Options) ([]graph.Node, error) {
	scenes, err := SplitScenes(script, opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		slog.Warn("No scenes produced from script import")
		return nil, nil
	}
	slog.Info("Split script into scenes", "scene_count", len(scenes))

	origin := graph.Position{X: defaultColumnX, Y: defaultStartY}
	if opts.Origin != nil {
		origin = *opts.Origin
	}
	spacing := opts.Spacing
	if spacing <= 0 {
		spacing = defaultSpacing
	}

	nodes := make([]graph.Node, len(scenes))
	for i, scene := range scenes {
		nodes[i] = graph.Node{
			ID:   sceneNodeID(),
			Kind: graph.KindPrompt,
			Position: graph.Position{
				X: origin.X,
				Y: origin.Y + float64(i)*spacing,
			},
			Data: graph.Data{
				graph.FieldPrompt: scene,
				graph.FieldLabel:  fmt.Sprintf("Scene %d", i+1),
			},
		}
	}
	return nodes, nil
}

func sceneNodeID() string {
	return fmt.Sprintf("%s-%d-%s", graph.KindPrompt, time.Now().UnixMilli(), uuid.NewString()[:8])
}
