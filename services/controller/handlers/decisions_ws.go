// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jinterlante1206/AureaControl/services/controller/feed"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

const decisionWriteTimeout = 10 * time.Second

// StreamDecisions upgrades the connection and streams arbitration
// decisions as JSON frames until the client disconnects.
func StreamDecisions(broadcaster *feed.Broadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the decision feed websocket", "error", err)
			return
		}
		defer ws.Close()

		decisions, cancel := broadcaster.Subscribe()
		defer cancel()
		slog.Info("decision feed client connected", "remote", ws.RemoteAddr().String())

		// Reader goroutine: its only job is to notice the client going
		// away, since we never expect inbound frames.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				slog.Info("decision feed client disconnected", "remote", ws.RemoteAddr().String())
				return
			case decision, ok := <-decisions:
				if !ok {
					return
				}
				if err := ws.SetWriteDeadline(time.Now().Add(decisionWriteTimeout)); err != nil {
					return
				}
				if err := ws.WriteJSON(decision); err != nil {
					slog.Info("decision feed write failed, closing", "error", err)
					return
				}
			}
		}
	}
}
