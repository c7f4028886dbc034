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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jinterlante1206/AureaControl/services/controller/bus"
	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
	"github.com/jinterlante1206/AureaControl/services/controller/ledger"
	"github.com/jinterlante1206/AureaControl/services/controller/lockstate"
	"github.com/jinterlante1206/AureaControl/services/controller/registry"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SystemStatus summarizes the controller's view of the topology: the
// aggregate pressure, whether arbitration is suspended under a global
// freeze, and the load on the internal machinery.
func SystemStatus(reg *registry.Registry, table *lockstate.Table,
	led *ledger.Ledger, eventBus *bus.Bus) gin.HandlerFunc {
	return func(c *gin.Context) {
		suspended := table.GlobalHeld()

		state := "nominal"
		switch {
		case suspended:
			state = "suspended"
		case reg.CascadeRisk():
			state = "cascade_risk"
		}

		valves := reg.List()
		locks := table.List()
		c.JSON(http.StatusOK, gin.H{
			"state":                  state,
			"system_pressure":        reg.SystemPressure(),
			"cascade_risk":           reg.CascadeRisk(),
			"suspended":              suspended,
			"valves":                 valves,
			"valve_count":            len(valves),
			"locks":                  locks,
			"locks_held":             len(locks),
			"bus_depth":              eventBus.Depth(),
			"bus_dropped":            eventBus.Dropped(),
			"quarantine_occupancy":   led.Occupancy(),
			"quarantine_capacity":    led.Capacity(),
			"quarantine_utilization": led.Utilization(),
		})
	}
}

// GetAnomalies reports everything the controller currently considers
// abnormal: valves whose latest reading broke from their recent
// baseline, valves at critical load, and fragments threatening
// quarantine stability.
func GetAnomalies(reg *registry.Registry, led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		anomalies := reg.Anomalies()

		critical := make([]datatypes.ValveID, 0)
		for _, valve := range reg.List() {
			if valve.Status == datatypes.ValveCritical {
				critical = append(critical, valve.ID)
			}
		}

		threats := led.Stability().Threats

		c.JSON(http.StatusOK, gin.H{
			"valve_anomalies":    anomalies,
			"critical_valves":    critical,
			"quarantine_threats": threats,
			"count":              len(anomalies) + len(critical) + len(threats),
		})
	}
}
