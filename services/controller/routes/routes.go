// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jinterlante1206/AureaControl/services/controller/audit"
	"github.com/jinterlante1206/AureaControl/services/controller/bus"
	"github.com/jinterlante1206/AureaControl/services/controller/feed"
	"github.com/jinterlante1206/AureaControl/services/controller/handlers"
	"github.com/jinterlante1206/AureaControl/services/controller/ledger"
	"github.com/jinterlante1206/AureaControl/services/controller/lockstate"
	"github.com/jinterlante1206/AureaControl/services/controller/registry"
)

// Deps bundles the shared state the handlers operate on.
type Deps struct {
	Bus         *bus.Bus
	Registry    *registry.Registry
	Locks       *lockstate.Table
	Ledger      *ledger.Ledger
	AuditLog    *audit.Log
	Broadcaster *feed.Broadcaster
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/events", handlers.SubmitEvent(deps.Bus, deps.AuditLog))
		v1.GET("/status", handlers.SystemStatus(deps.Registry, deps.Locks, deps.Ledger, deps.Bus))
		v1.GET("/anomalies", handlers.GetAnomalies(deps.Registry, deps.Ledger))
		v1.GET("/audit", handlers.GetAuditTrail(deps.AuditLog))
		v1.GET("/decisions/ws", handlers.StreamDecisions(deps.Broadcaster))

		valves := v1.Group("/valves")
		{
			valves.POST("", handlers.RegisterValve(deps.Registry))
			valves.GET("", handlers.ListValves(deps.Registry))
			valves.GET("/:valveId", handlers.GetValve(deps.Registry))
			valves.GET("/:valveId/history", handlers.GetValveHistory(deps.Registry))
		}

		locks := v1.Group("/locks")
		{
			locks.GET("", handlers.ListLocks(deps.Locks))
			locks.DELETE("/:lockId", handlers.ReleaseLock(deps.Locks, deps.AuditLog))
			locks.POST("/global/release", handlers.ReleaseGlobalLock(deps.Locks, deps.AuditLog))
		}

		quarantine := v1.Group("/quarantine")
		{
			quarantine.GET("", handlers.ListQuarantine(deps.Ledger))
			quarantine.GET("/stability", handlers.QuarantineStability(deps.Ledger))
			quarantine.GET("/:fragmentId", handlers.GetFragment(deps.Ledger))
			quarantine.POST("/:fragmentId/rehydrate", handlers.RehydrateFragment(deps.Ledger, deps.AuditLog))
			quarantine.POST("/:fragmentId/complete", handlers.CompleteRehydration(deps.Ledger, deps.AuditLog))
			quarantine.POST("/:fragmentId/fossilize", handlers.FossilizeFragment(deps.Ledger, deps.AuditLog))
		}
	}
}
