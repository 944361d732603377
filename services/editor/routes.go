// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package editor

import (
	"github.com/gin-gonic/gin"

	"github.com/StoryloomAI/storyloom/services/editor/telemetry"
)

// registerRoutes wires every endpoint onto the router.
func (s *service) registerRoutes(router *gin.Engine) {
	router.GET("/health", s.health)
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/projects", s.createProject)
		v1.GET("/projects", s.listProjects)
		v1.GET("/projects/:projectID", s.getProject)
		v1.PATCH("/projects/:projectID", s.renameProject)
		v1.DELETE("/projects/:projectID", s.deleteProject)

		v1.POST("/projects/:projectID/open", s.openProject)
		v1.POST("/projects/:projectID/close", s.closeProject)
		v1.GET("/projects/:projectID/graph", s.getGraph)
		v1.POST("/projects/:projectID/save", s.saveProject)
		v1.POST("/projects/:projectID/beacon", s.beacon)
		v1.GET("/projects/:projectID/events", s.events)

		nodes := v1.Group("/projects/:projectID/nodes")
		{
			nodes.POST("", s.addNode)
			nodes.PATCH("/:nodeID/data", s.updateNodeData)
			nodes.PATCH("/:nodeID/position", s.updateNodePosition)
			nodes.DELETE("/:nodeID", s.removeNode)
			nodes.GET("/:nodeID/inputs", s.nodeInputs)
		}

		edges := v1.Group("/projects/:projectID/edges")
		{
			edges.POST("", s.addEdge)
			edges.DELETE("", s.removeEdgesBy)
			edges.DELETE("/:edgeID", s.removeEdge)
		}

		v1.POST("/projects/:projectID/generations", s.createGeneration)
		v1.POST("/projects/:projectID/generations/batch", s.createGenerationBatch)
		v1.POST("/projects/:projectID/script/import", s.importScript)

		v1.GET("/assets", s.listAssets)
	}
}
