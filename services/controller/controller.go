// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jinterlante1206/AureaControl/services/controller/arbiter"
	"github.com/jinterlante1206/AureaControl/services/controller/audit"
	"github.com/jinterlante1206/AureaControl/services/controller/bus"
	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
	"github.com/jinterlante1206/AureaControl/services/controller/escalation"
	"github.com/jinterlante1206/AureaControl/services/controller/feed"
	"github.com/jinterlante1206/AureaControl/services/controller/ledger"
	"github.com/jinterlante1206/AureaControl/services/controller/lockstate"
	"github.com/jinterlante1206/AureaControl/services/controller/observability"
	"github.com/jinterlante1206/AureaControl/services/controller/registry"
)

// =============================================================================
// Arbitration Loop
// =============================================================================

// Controller drains the event bus and drives the arbitration engine.
// It is the single consumer: events are processed strictly one at a
// time, so outcomes depend only on arrival order.
type Controller struct {
	bus         *bus.Bus
	engine      *arbiter.Engine
	registry    *registry.Registry
	locks       *lockstate.Table
	ledger      *ledger.Ledger
	auditLog    *audit.Log
	sink        *escalation.Sink
	broadcaster *feed.Broadcaster
	metrics     *observability.ControllerMetrics
	logger      *slog.Logger

	lastDropped uint64
}

// NewController wires the arbitration loop. metrics may be nil in tests.
func NewController(
	eventBus *bus.Bus,
	engine *arbiter.Engine,
	reg *registry.Registry,
	locks *lockstate.Table,
	led *ledger.Ledger,
	auditLog *audit.Log,
	sink *escalation.Sink,
	broadcaster *feed.Broadcaster,
	metrics *observability.ControllerMetrics,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		bus:         eventBus,
		engine:      engine,
		registry:    reg,
		locks:       locks,
		ledger:      led,
		auditLog:    auditLog,
		sink:        sink,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
	}
}

// Run consumes events until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("arbitration loop starting")
	for {
		ev, err := c.bus.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("arbitration loop stopping")
				return nil
			}
			return fmt.Errorf("arbitration loop: %w", err)
		}
		c.processEvent(ctx, ev)
	}
}

// processEvent arbitrates one event end to end: registry update,
// decision, audit, escalation, feed, metrics.
func (c *Controller) processEvent(ctx context.Context, ev datatypes.PressureEvent) {
	start := time.Now()
	_, span := otel.Tracer("controller").Start(ctx, "arbitrate",
		trace.WithAttributes(
			attribute.String("event.id", ev.ID),
			attribute.String("event.kind", string(ev.Kind)),
			attribute.String("event.source", string(ev.Source)),
		))
	defer span.End()

	// The event's magnitude is also a load reading for its source valve.
	// Synthetic bus events and unregistered sources are skipped, as are
	// manual audits, which must leave registry state untouched.
	if !ev.Synthetic && ev.Kind != datatypes.EventManualAudit {
		if _, err := c.registry.Report(ev.Source, ev.Magnitude); err != nil {
			c.logger.Debug("load reading skipped", "source", ev.Source, "error", err)
		}
	}

	result, err := c.engine.Decide(ev)
	if err != nil {
		c.logger.Error("event rejected by arbiter", "event_id", ev.ID, "error", err)
		c.auditLog.Append(audit.RecordEvent,
			fmt.Sprintf("event %s rejected: %v", ev.ID, err), ev)
		return
	}
	decision := result.Decision
	span.SetAttributes(attribute.String("decision.outcome", string(decision.Outcome)))

	c.auditLog.Append(audit.RecordDecision,
		fmt.Sprintf("event %s %s: %s", ev.ID, decision.Outcome, decision.Rationale), decision)
	c.logger.Info("event arbitrated",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"outcome", decision.Outcome,
		"rationale", decision.Rationale,
	)

	if result.Escalate {
		record := c.sink.Submit(decision, escalationContext(ev))
		if c.metrics != nil {
			c.metrics.RecordEscalation(record.Status)
		}
	}
	c.broadcaster.Publish(decision)

	if c.metrics != nil {
		c.metrics.RecordDecision(ev.Kind, decision.Outcome)
		c.metrics.ArbitrationSeconds.Observe(time.Since(start).Seconds())
		c.snapshotMetrics()
	}
}

// HandleLockExpiry audits a lock the sweeper reaped. Wired as the
// sweeper's ExpiryFunc.
func (c *Controller) HandleLockExpiry(lock datatypes.Lock) {
	c.auditLog.Append(audit.RecordLock,
		fmt.Sprintf("lock %s on %s expired", lock.ID, lock.Scope.Key()), lock)
	if c.metrics != nil {
		c.snapshotMetrics()
	}
}

func (c *Controller) snapshotMetrics() {
	dropped := c.bus.Dropped()
	c.metrics.RecordBus(c.bus.Depth(), dropped, c.lastDropped)
	c.lastDropped = dropped
	c.metrics.RecordLocks(c.locks.List())
	c.metrics.RecordPressure(c.registry.SystemPressure(), c.registry.List())
	c.metrics.RecordQuarantine(c.ledger.Occupancy(), c.ledger.Capacity())
}

func escalationContext(ev datatypes.PressureEvent) map[string]string {
	ctx := map[string]string{
		"event_id": ev.ID,
		"kind":     string(ev.Kind),
		"source":   string(ev.Source),
	}
	if ev.ClusterID != "" {
		ctx["cluster_id"] = ev.ClusterID
	}
	if ev.Synthetic {
		ctx["synthetic"] = "true"
	}
	return ctx
}
