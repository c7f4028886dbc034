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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/AureaControl/services/controller/audit"
	"github.com/jinterlante1206/AureaControl/services/controller/lockstate"
)

// ListLocks returns every held lock.
func ListLocks(table *lockstate.Table) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"locks": table.List()})
	}
}

// ReleaseLock releases a held lock by ID.
func ReleaseLock(table *lockstate.Table, auditLog *audit.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("lockId")
		released, err := table.Release(id)
		if err != nil {
			var notHeld *lockstate.NotHeldError
			if errors.As(err, &notHeld) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		auditLog.Append(audit.RecordLock, "lock released by operator", released)
		c.JSON(http.StatusOK, released)
	}
}

// ReleaseGlobalLock releases the global lock, ending a topology freeze.
// The global lock carries no TTL, so this endpoint is the only way an
// engaged freeze ends.
func ReleaseGlobalLock(table *lockstate.Table, auditLog *audit.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		released, err := table.ReleaseGlobal()
		if err != nil {
			var notHeld *lockstate.NotHeldError
			if errors.As(err, &notHeld) {
				c.JSON(http.StatusConflict, gin.H{"error": "no global lock is held"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		auditLog.Append(audit.RecordLock, "global lock released by operator", released)
		slog.Warn("global freeze lifted by operator",
			"lock_id", released.ID, "previous_holder", released.Holder)
		c.JSON(http.StatusOK, released)
	}
}
