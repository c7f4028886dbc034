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
	"github.com/google/uuid"

	"github.com/jinterlante1206/AureaControl/services/controller/audit"
	"github.com/jinterlante1206/AureaControl/services/controller/bus"
	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// SubmitEvent accepts a pressure event and places it on the bus. The
// response acknowledges queueing only; arbitration happens in the
// background and its outcome lands in the audit trail and the decision
// feed.
func SubmitEvent(eventBus *bus.Bus, auditLog *audit.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev datatypes.PressureEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload: " + err.Error()})
			return
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now().UTC()
		}
		ev.Synthetic = false
		if err := ev.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		accepted := eventBus.Publish(ev)
		auditLog.Append(audit.RecordEvent, "pressure event received", ev)
		slog.Info("pressure event queued",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"source", ev.Source,
			"accepted", accepted,
		)

		if !accepted {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"event_id": ev.ID,
				"accepted": false,
				"error":    "event bus saturated, event shed",
			})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"event_id": ev.ID, "accepted": true})
	}
}
