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
	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
	"github.com/jinterlante1206/AureaControl/services/controller/ledger"
)

// ListQuarantine returns every ledger entry, fossilized included.
func ListQuarantine(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"entries":   led.List(),
			"occupancy": led.Occupancy(),
			"capacity":  led.Capacity(),
		})
	}
}

// GetFragment returns one ledger entry.
func GetFragment(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := led.Get(c.Param("fragmentId"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entry)
	}
}

// QuarantineStability returns the ledger health report.
func QuarantineStability(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, led.Stability())
	}
}

// transitionHandler wraps the three fragment state transitions, which
// differ only in the ledger call and the audit wording.
func transitionHandler(auditLog *audit.Log, summary string,
	apply func(fragmentID string) (datatypes.QuarantineEntry, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		fragmentID := c.Param("fragmentId")
		entry, err := apply(fragmentID)
		if err != nil {
			var notFound *ledger.NotFoundError
			var wrongState *ledger.WrongStateError
			switch {
			case errors.As(err, &notFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case errors.As(err, &wrongState):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		auditLog.Append(audit.RecordQuarantine, summary, entry)
		slog.Info(summary, "fragment_id", fragmentID, "state", entry.State)
		c.JSON(http.StatusOK, entry)
	}
}

// RehydrateFragment begins re-introducing a held fragment.
func RehydrateFragment(led *ledger.Ledger, auditLog *audit.Log) gin.HandlerFunc {
	return transitionHandler(auditLog, "fragment rehydration started", led.Rehydrate)
}

// CompleteRehydration marks a rehydrating fragment as done; the entry
// fossilizes and its capacity is released.
func CompleteRehydration(led *ledger.Ledger, auditLog *audit.Log) gin.HandlerFunc {
	return transitionHandler(auditLog, "fragment rehydration completed", led.CompleteRehydration)
}

// FossilizeFragment retires a held fragment without rehydration.
func FossilizeFragment(led *ledger.Ledger, auditLog *audit.Log) gin.HandlerFunc {
	return transitionHandler(auditLog, "fragment fossilized", led.Fossilize)
}
