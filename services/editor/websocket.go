// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package editor

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The editor is a local tool whose UI may be served from a dev
	// server on another port, so origin checks stay open.
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// events streams graph change notifications to one client.
//
// Description:
//
//	Upgrades the request to a WebSocket and forwards store events as
//	they happen. A ?nodes= filter narrows delivery to events touching
//	those ids; whole-graph replacements are always delivered. The feed
//	holds its session open, so a connected canvas never reaps. A slow
//	client loses events rather than stalling mutations; the drop count
//	is surfaced on close.
func (s *service) events(c *gin.Context) {
	projectID := c.Param("projectID")
	sess, err := s.sessions.Open(c.Request.Context(), projectID)
	if err != nil {
		s.projectError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "project_id", projectID, "error", err)
		return
	}
	defer conn.Close()

	var filter []string
	for _, id := range strings.Split(c.Query("nodes"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			filter = append(filter, id)
		}
	}

	clientID := uuid.NewString()
	ctx := context.Background()
	s.metrics.WSClientsActive.Add(ctx, 1)
	defer s.metrics.WSClientsActive.Add(ctx, -1)

	sess.AttachFeed()
	defer sess.DetachFeed()

	sub := sess.Store.Subscribe(filter...)
	defer func() {
		sub.Close()
		if dropped := sub.Dropped(); dropped > 0 {
			s.metrics.EventsDroppedTotal.Add(ctx, int64(dropped))
			s.logger.Warn("Event feed dropped events",
				"project_id", projectID,
				"client_id", clientID,
				"dropped", dropped,
			)
		}
	}()

	welcome := map[string]any{
		"type":      "connected",
		"client_id": clientID,
		"version":   sess.Store.Version(),
	}
	if err := conn.WriteJSON(welcome); err != nil {
		s.logger.Warn("WebSocket welcome failed", "client_id", clientID, "error", err)
		return
	}
	s.logger.Info("Event feed connected",
		"project_id", projectID,
		"client_id", clientID,
		"filtered", len(filter) > 0,
	)

	// The reader exists to notice the peer going away; inbound
	// payloads are ignored.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			s.logger.Info("Event feed disconnected", "project_id", projectID, "client_id", clientID)
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Warn("Event write failed", "client_id", clientID, "error", err)
				return
			}
			sess.touch()
			s.metrics.EventsPublishedTotal.Add(ctx, 1)
		}
	}
}
