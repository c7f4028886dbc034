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

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
	"github.com/jinterlante1206/AureaControl/services/controller/registry"
)

// RegisterValve declares a valve and its capacity.
func RegisterValve(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var state datatypes.ValveState
		if err := c.ShouldBindJSON(&state); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid valve payload: " + err.Error()})
			return
		}
		if err := reg.Register(state); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Info("valve registered", "valve_id", state.ID, "capacity", state.Capacity)
		registered, err := reg.Get(state.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "valve lookup after register failed"})
			return
		}
		c.JSON(http.StatusCreated, registered)
	}
}

// ListValves returns all registered valves.
func ListValves(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"valves": reg.List()})
	}
}

// GetValve returns one valve's current state.
func GetValve(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := datatypes.ValveID(c.Param("valveId"))
		state, err := reg.Get(id)
		if err != nil {
			var notFound *registry.NotFoundError
			if errors.As(err, &notFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// GetValveHistory returns a valve's recent load samples.
func GetValveHistory(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := datatypes.ValveID(c.Param("valveId"))
		samples, err := reg.History(id)
		if err != nil {
			var notFound *registry.NotFoundError
			if errors.As(err, &notFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"valve_id": id, "samples": samples})
	}
}
