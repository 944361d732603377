// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package editor

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/StoryloomAI/storyloom/pkg/validation"
	"github.com/StoryloomAI/storyloom/services/editor/generate"
	"github.com/StoryloomAI/storyloom/services/editor/graph"
	"github.com/StoryloomAI/storyloom/services/editor/lifecycle"
	"github.com/StoryloomAI/storyloom/services/editor/persist"
	"github.com/StoryloomAI/storyloom/services/editor/script"
	"github.com/StoryloomAI/storyloom/services/editor/telemetry"
)

// ===== Error Mapping =====

// projectStatus maps session and store errors to HTTP statuses.
func projectStatus(err error) int {
	switch {
	case errors.Is(err, persist.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, persist.ErrInvalidProjectID):
		return http.StatusBadRequest
	case errors.Is(err, ErrWorkflowInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *service) projectError(c *gin.Context, err error) {
	status := projectStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Project store error", "error", err, "trace_id", telemetry.TraceID(c.Request.Context()))
		c.JSON(status, gin.H{"error": "Project store error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// graphError maps store mutation errors: duplicates conflict, semantic
// problems are unprocessable.
func (s *service) graphError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, graph.ErrDuplicateNode), errors.Is(err, graph.ErrDuplicateEdge):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, graph.ErrInvalidNode), errors.Is(err, graph.ErrInvalidEdge),
		errors.Is(err, graph.ErrEndpointMissing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Graph mutation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Graph mutation failed"})
	}
}

// countMutations records API-level graph mutations on the mutation
// counter.
func (s *service) countMutations(c *gin.Context, op graph.Op, n int64) {
	s.metrics.GraphMutationsTotal.Add(c.Request.Context(), n, metric.WithAttributes(
		attribute.String("op", string(op)),
	))
}

// openSession resolves the project session for the request, writing
// the error response itself on failure.
func (s *service) openSession(c *gin.Context) (*Session, bool) {
	sess, err := s.sessions.Open(c.Request.Context(), c.Param("projectID"))
	if err != nil {
		s.projectError(c, err)
		return nil, false
	}
	return sess, true
}

// ===== Project Handlers =====

// createProject creates a project with a sanitized display name.
func (s *service) createProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	name, err := validation.SanitizeName(req.Name)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	project, err := s.store.CreateProject(c.Request.Context(), name)
	if err != nil {
		s.projectError(c, err)
		return
	}
	s.logger.Info("Created project", "project_id", project.ID, "name", project.Name)
	c.JSON(http.StatusCreated, project)
}

func (s *service) listProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context())
	if err != nil {
		s.projectError(c, err)
		return
	}
	if projects == nil {
		projects = []persist.Project{}
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *service) getProject(c *gin.Context) {
	project, err := s.store.GetProject(c.Request.Context(), c.Param("projectID"))
	if err != nil {
		s.projectError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

func (s *service) renameProject(c *gin.Context) {
	var req renameProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	name, err := validation.SanitizeName(req.Name)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	project, err := s.store.RenameProject(c.Request.Context(), c.Param("projectID"), name)
	if err != nil {
		s.projectError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// deleteProject removes the project and drops any open session
// without a final save; there is nothing left to save into.
func (s *service) deleteProject(c *gin.Context) {
	projectID := c.Param("projectID")
	if err := s.store.DeleteProject(c.Request.Context(), projectID); err != nil {
		s.projectError(c, err)
		return
	}
	s.sessions.Drop(projectID)
	s.logger.Info("Deleted project", "project_id", projectID)
	c.Status(http.StatusNoContent)
}

// ===== Session Handlers =====

// openProject opens an editing session and returns the project with
// its hydrated workflow, so the canvas renders from one response.
func (s *service) openProject(c *gin.Context) {
	projectID := c.Param("projectID")
	project, err := s.store.GetProject(c.Request.Context(), projectID)
	if err != nil {
		s.projectError(c, err)
		return
	}
	sess, err := s.sessions.Open(c.Request.Context(), projectID)
	if err != nil {
		s.projectError(c, err)
		return
	}
	c.JSON(http.StatusOK, projectSnapshotResponse{
		Project:  project,
		Snapshot: sess.Store.Snapshot(),
	})
}

// closeProject flushes and tears down the session. Closing a project
// with no session succeeds; a failed final save is a gateway error
// because the graph state survives in memory nowhere after this.
func (s *service) closeProject(c *gin.Context) {
	closed, err := s.sessions.Close(c.Request.Context(), c.Param("projectID"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Final save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": closed})
}

func (s *service) getGraph(c *gin.Context) {
	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Store.Snapshot())
}

// saveProject forces a synchronous save.
func (s *service) saveProject(c *gin.Context) {
	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	if err := sess.SaveNow(c.Request.Context()); err != nil {
		s.logger.Error("Explicit save failed", "project_id", sess.ProjectID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"saved":    true,
		"saved_at": sess.Autosave.LastSavedAt().UTC().Format(time.RFC3339Nano),
	})
}

// beacon accepts the browser's final graph state on page unload.
//
// Description:
//
//	The unload path cannot wait for a durable write, so the snapshot
//	is validated, swapped in whole, and persisted in the background.
//	Responds 202 before the write happens; a failed write is retried
//	by the session's next autosave tick.
func (s *service) beacon(c *gin.Context) {
	var snap graph.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if fatal := graph.FatalIssues(graph.ValidateSnapshot(snap)); len(fatal) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "Workflow failed validation",
			"issues": fatal,
		})
		return
	}

	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	sess.Autosave.Beacon(snap)
	s.countMutations(c, graph.OpReplace, 1)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// ===== Node Handlers =====

func (s *service) addNode(c *gin.Context) {
	var req addNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := validation.ValidateNodeID(req.ID); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	node := graph.Node{
		ID:       req.ID,
		Kind:     graph.NodeKind(req.Kind),
		Position: req.Position,
		Data:     req.Data,
	}
	if err := sess.Store.AddNode(node); err != nil {
		s.graphError(c, err)
		return
	}
	s.countMutations(c, graph.OpAddNode, 1)
	c.JSON(http.StatusCreated, node)
}

func (s *service) updateNodeData(c *gin.Context) {
	var req updateDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	nodeID := c.Param("nodeID")
	if !sess.Store.UpdateNodeData(nodeID, req.Data) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
		return
	}
	s.countMutations(c, graph.OpUpdateNode, 1)
	node, _ := sess.Store.Node(nodeID)
	c.JSON(http.StatusOK, node)
}

func (s *service) updateNodePosition(c *gin.Context) {
	var req updatePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	nodeID := c.Param("nodeID")
	if !sess.Store.UpdateNodePosition(nodeID, graph.Position{X: *req.X, Y: *req.Y}) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
		return
	}
	s.countMutations(c, graph.OpUpdateNode, 1)
	node, _ := sess.Store.Node(nodeID)
	c.JSON(http.StatusOK, node)
}

// removeNode deletes a node; the store cascades its edges.
func (s *service) removeNode(c *gin.Context) {
	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	if !sess.Store.RemoveNode(c.Param("nodeID")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
		return
	}
	s.countMutations(c, graph.OpRemoveNode, 1)
	c.Status(http.StatusNoContent)
}

// nodeInputs resolves what a node would receive from its incoming
// edges right now. The canvas uses it to preview a generation.
func (s *service) nodeInputs(c *gin.Context) {
	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	nodeID := c.Param("nodeID")
	if _, exists := sess.Store.Node(nodeID); !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
		return
	}
	c.JSON(http.StatusOK, sess.Store.ResolveInputs(nodeID, c.Query("handle")))
}

// ===== Edge Handlers =====

func (s *service) addEdge(c *gin.Context) {
	var req addEdgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := validation.ValidateEdgeID(req.ID); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	edge := graph.Edge{
		ID:           req.ID,
		Source:       req.Source,
		Target:       req.Target,
		SourceHandle: req.SourceHandle,
		TargetHandle: req.TargetHandle,
		Animated:     req.Animated,
		Label:        req.Label,
	}
	if err := sess.Store.AddEdge(edge); err != nil {
		s.graphError(c, err)
		return
	}
	s.countMutations(c, graph.OpAddEdge, 1)
	c.JSON(http.StatusCreated, edge)
}

func (s *service) removeEdge(c *gin.Context) {
	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	if !sess.Store.RemoveEdge(c.Param("edgeID")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Edge not found"})
		return
	}
	s.countMutations(c, graph.OpRemoveEdge, 1)
	c.Status(http.StatusNoContent)
}

// removeEdgesBy deletes every edge matching the query filters. The
// canvas uses it on reconnect, where the old edge is known only by its
// endpoints.
func (s *service) removeEdgesBy(c *gin.Context) {
	source := c.Query("source")
	target := c.Query("target")
	targetHandle := c.Query("targetHandle")
	if source == "" && target == "" && targetHandle == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one filter is required"})
		return
	}

	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	removed := sess.Store.RemoveEdgesMatching(func(e graph.Edge) bool {
		if source != "" && e.Source != source {
			return false
		}
		if target != "" && e.Target != target {
			return false
		}
		if targetHandle != "" && e.TargetHandle != targetHandle {
			return false
		}
		return true
	})
	if removed > 0 {
		s.countMutations(c, graph.OpRemoveEdge, int64(removed))
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ===== Generation Handlers =====

// createGeneration places a loading placeholder and dispatches the
// generation behind it.
//
// Description:
//
//	The placeholder appears on the canvas immediately, wired to its
//	source when one is named. Inputs are resolved from the graph at
//	dispatch time; an explicit prompt in the request wins over the
//	resolved one. Responds 202 with the placeholder id, which the
//	event feed later reports as resolved or failed.
func (s *service) createGeneration(c *gin.Context) {
	var req generationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	placeholderID, ok := s.dispatchGeneration(c, sess, req)
	if !ok {
		return
	}
	c.JSON(http.StatusAccepted, generationAcceptedResponse{PlaceholderID: placeholderID})
}

// createGenerationBatch dispatches several generations in one call,
// for storyboard flows that fan a script out to images. Each entry is
// independent; the batch shares the session's rate and concurrency
// limits.
func (s *service) createGenerationBatch(c *gin.Context) {
	var req batchGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	ids := make([]string, 0, len(req.Generations))
	for _, gen := range req.Generations {
		placeholderID, ok := s.dispatchGeneration(c, sess, gen)
		if !ok {
			return
		}
		ids = append(ids, placeholderID)
	}
	c.JSON(http.StatusAccepted, batchAcceptedResponse{PlaceholderIDs: ids})
}

// dispatchGeneration runs the shared placeholder-and-dispatch flow.
// On failure it has already written the response.
func (s *service) dispatchGeneration(c *gin.Context, sess *Session, req generationRequest) (string, bool) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), serviceName, "editor.dispatch_generation")
	defer span.End()
	span.SetAttributes(
		attribute.String("generation.kind", req.Kind),
		attribute.String("project.id", sess.ProjectID),
	)

	kind := graph.NodeKind(req.Kind)
	hints := lifecycle.Hints{Position: req.Position}
	placeholderID := sess.Controller.CreateLoadingNode(req.SourceNodeID, kind, req.Label, hints)
	if placeholderID == "" {
		err := errors.New("placeholder creation failed")
		telemetry.RecordError(span, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Could not create placeholder"})
		return "", false
	}
	s.countMutations(c, graph.OpAddNode, 1)

	inputs := sess.Store.ResolveInputs(placeholderID, "")
	prompt := req.Prompt
	if prompt == "" {
		prompt = inputs.JoinedPrompt()
	}
	sess.Controller.Dispatch(
		generate.NewRequest(kind, prompt, inputs.Images, inputs.Videos, req.Options),
		placeholderID,
	)

	s.logger.Info("Dispatched generation",
		"project_id", sess.ProjectID,
		"placeholder_id", placeholderID,
		"kind", req.Kind,
		"trace_id", telemetry.TraceID(ctx),
	)
	telemetry.SetSpanOK(span)
	return placeholderID, true
}

// ===== Script Import =====

// importScript splits a script into scenes and adds one prompt node
// per scene, laid out in a column.
func (s *service) importScript(c *gin.Context) {
	var req scriptImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	sess, ok := s.openSession(c)
	if !ok {
		return
	}
	nodes, err := script.PromptNodes(req.Script, script.Options{
		ChunkSize: req.ChunkSize,
		Origin:    req.Origin,
		Spacing:   req.Spacing,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Could not split script"})
		return
	}
	if len(nodes) == 0 {
		c.JSON(http.StatusOK, gin.H{"nodes": []graph.Node{}})
		return
	}

	for _, node := range nodes {
		if err := sess.Store.AddNode(node); err != nil {
			s.graphError(c, err)
			return
		}
	}
	s.countMutations(c, graph.OpAddNode, int64(len(nodes)))
	s.logger.Info("Imported script",
		"project_id", sess.ProjectID,
		"scene_count", len(nodes),
	)
	c.JSON(http.StatusCreated, gin.H{"nodes": nodes})
}

// ===== Assets and Health =====

// listAssets serves the media library. A nil watcher reads as an
// empty library.
func (s *service) listAssets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"assets": s.assets.List()})
}

func (s *service) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
}
