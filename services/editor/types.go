// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package editor

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/StoryloomAI/storyloom/services/editor/graph"
	"github.com/StoryloomAI/storyloom/services/editor/persist"
)

// Node and edge payloads mirror the canvas JSON (camelCase); the
// control surface around them uses snake_case.

type createProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

type renameProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

type addNodeRequest struct {
	ID       string         `json:"id" binding:"required"`
	Kind     string         `json:"kind" binding:"required,nodekind"`
	Position graph.Position `json:"position"`
	Data     graph.Data     `json:"data"`
}

type updateDataRequest struct {
	Data graph.Data `json:"data" binding:"required"`
}

// updatePositionRequest uses pointers so an explicit 0 coordinate
// survives the required check.
type updatePositionRequest struct {
	X *float64 `json:"x" binding:"required"`
	Y *float64 `json:"y" binding:"required"`
}

type addEdgeRequest struct {
	ID           string `json:"id" binding:"required"`
	Source       string `json:"source" binding:"required"`
	Target       string `json:"target" binding:"required"`
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`
	Animated     bool   `json:"animated"`
	Label        string `json:"label"`
}

type generationRequest struct {
	// SourceNodeID is the node feeding the placeholder. Empty creates
	// an unconnected placeholder at the default position.
	SourceNodeID string `json:"source_node_id"`

	Kind    string            `json:"kind" binding:"required,nodekind"`
	Prompt  string            `json:"prompt"`
	Label   string            `json:"label"`
	Options map[string]string `json:"options"`

	// Position overrides the computed placeholder position.
	Position *graph.Position `json:"position"`
}

type batchGenerationRequest struct {
	Generations []generationRequest `json:"generations" binding:"required,min=1,max=16,dive"`
}

type scriptImportRequest struct {
	Script    string          `json:"script" binding:"required"`
	ChunkSize int             `json:"chunk_size"`
	Origin    *graph.Position `json:"origin"`
	Spacing   float64         `json:"spacing"`
}

type projectSnapshotResponse struct {
	Project  persist.Project `json:"project"`
	Snapshot graph.Snapshot  `json:"snapshot"`
}

type generationAcceptedResponse struct {
	PlaceholderID string `json:"placeholder_id"`
}

type batchAcceptedResponse struct {
	PlaceholderIDs []string `json:"placeholder_ids"`
}

// registerOnce guards binding-validator registration; gin's validator
// engine is process-global and services may be built more than once in
// one process.
var registerOnce sync.Once

// registerValidators installs the nodekind tag, which restricts a kind
// field to the node kinds this build knows.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("nodekind", func(fl validator.FieldLevel) bool {
			return graph.NodeKind(fl.Field().String()).IsValid()
		})
	})
}
