// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the pressure
// controller: event throughput, decision outcomes, lock activity,
// quarantine occupancy, and escalation delivery.
//
// Metrics are exposed via the /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "aurea"

const controllerSubsystem = "controller"

// ControllerMetrics holds all Prometheus metrics for the controller.
//
// # Description
//
// Initialize once at startup via InitMetrics(). All operations are
// thread-safe via Prometheus's internal locking.
//
// # Fields
//
//   - EventsTotal: Counter of arbitrated events by kind and outcome
//   - BusDepth: Gauge of currently buffered bus events
//   - BusDroppedTotal: Counter of events shed by the bus
//   - LocksHeld: Gauge of held locks by scope
//   - LockDenialsTotal: Counter of denied acquisitions by scope
//   - SystemPressure: Gauge of mean load ratio across valves
//   - ValveLoadRatio: Gauge of per-valve load over capacity
//   - QuarantineOccupancy: Gauge of live quarantine units
//   - QuarantineUtilization: Gauge of occupancy over capacity
//   - EscalationsTotal: Counter of escalations by delivery fate
//   - ArbitrationSeconds: Histogram of per-event arbitration latency
type ControllerMetrics struct {
	// EventsTotal counts arbitrated events.
	// Labels: kind (overload, cluster, saturation, drift, manual_audit),
	// outcome (granted, denied, escalated, quarantined)
	EventsTotal *prometheus.CounterVec

	// BusDepth tracks the buffered event count.
	BusDepth prometheus.Gauge

	// BusDroppedTotal counts events shed under backpressure.
	BusDroppedTotal prometheus.Counter

	// LocksHeld tracks held locks.
	// Labels: scope (local, regional, global)
	LocksHeld *prometheus.GaugeVec

	// LockDenialsTotal counts denied acquisitions.
	// Labels: scope (local, regional, global)
	LockDenialsTotal *prometheus.CounterVec

	// SystemPressure tracks the mean load ratio across registered valves.
	SystemPressure prometheus.Gauge

	// ValveLoadRatio tracks each valve's load over capacity.
	// Labels: valve
	ValveLoadRatio *prometheus.GaugeVec

	// QuarantineOccupancy tracks live quarantine units.
	QuarantineOccupancy prometheus.Gauge

	// QuarantineUtilization tracks occupancy over capacity (0-1).
	QuarantineUtilization prometheus.Gauge

	// EscalationsTotal counts escalations by fate.
	// Labels: status (pending, delivered, dropped)
	EscalationsTotal *prometheus.CounterVec

	// ArbitrationSeconds measures per-event decision latency.
	ArbitrationSeconds prometheus.Histogram
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *ControllerMetrics

// InitMetrics creates and registers all controller metrics. Call once
// at startup; a second call panics on duplicate registration.
func InitMetrics() *ControllerMetrics {
	DefaultMetrics = &ControllerMetrics{
		EventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "events_total",
				Help:      "Total arbitrated pressure events by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		BusDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "bus_depth",
				Help:      "Number of events currently buffered on the bus",
			},
		),

		BusDroppedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "bus_dropped_total",
				Help:      "Total events shed by the bus under backpressure",
			},
		),

		LocksHeld: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "locks_held",
				Help:      "Currently held mitigation locks by scope",
			},
			[]string{"scope"},
		),

		LockDenialsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "lock_denials_total",
				Help:      "Total denied lock acquisitions by requested scope",
			},
			[]string{"scope"},
		),

		SystemPressure: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "system_pressure",
				Help:      "Mean load ratio across registered valves",
			},
		),

		ValveLoadRatio: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "valve_load_ratio",
				Help:      "Per-valve load over capacity",
			},
			[]string{"valve"},
		),

		QuarantineOccupancy: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "quarantine_occupancy_units",
				Help:      "Live quarantine units held by active fragments",
			},
		),

		QuarantineUtilization: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "quarantine_utilization",
				Help:      "Quarantine occupancy divided by capacity",
			},
		),

		EscalationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "escalations_total",
				Help:      "Total escalation records by delivery status",
			},
			[]string{"status"},
		),

		ArbitrationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "arbitration_seconds",
				Help:      "Per-event arbitration latency in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordDecision updates the event counter for one decision.
func (m *ControllerMetrics) RecordDecision(kind datatypes.EventKind, outcome datatypes.DecisionOutcome) {
	m.EventsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
}

// RecordBus updates the bus gauges from a depth and cumulative drop
// count snapshot.
func (m *ControllerMetrics) RecordBus(depth int, dropped, lastDropped uint64) {
	m.BusDepth.Set(float64(depth))
	if dropped > lastDropped {
		m.BusDroppedTotal.Add(float64(dropped - lastDropped))
	}
}

// RecordLocks updates the held-locks gauges from a lock snapshot.
func (m *ControllerMetrics) RecordLocks(locks []datatypes.Lock) {
	counts := map[datatypes.ScopeKind]int{
		datatypes.ScopeLocal:    0,
		datatypes.ScopeRegional: 0,
		datatypes.ScopeGlobal:   0,
	}
	for _, lock := range locks {
		counts[lock.Scope.Kind]++
	}
	for scope, count := range counts {
		m.LocksHeld.WithLabelValues(string(scope)).Set(float64(count))
	}
}

// RecordPressure updates the topology gauges from a registry snapshot.
func (m *ControllerMetrics) RecordPressure(systemPressure float64, valves []datatypes.ValveState) {
	m.SystemPressure.Set(systemPressure)
	for _, valve := range valves {
		m.ValveLoadRatio.WithLabelValues(string(valve.ID)).Set(valve.LoadRatio())
	}
}

// RecordLockDenial increments the denial counter for a scope.
func (m *ControllerMetrics) RecordLockDenial(scope datatypes.ScopeKind) {
	m.LockDenialsTotal.WithLabelValues(string(scope)).Inc()
}

// RecordQuarantine updates the quarantine gauges.
func (m *ControllerMetrics) RecordQuarantine(occupancy, capacity float64) {
	m.QuarantineOccupancy.Set(occupancy)
	if capacity > 0 {
		m.QuarantineUtilization.Set(occupancy / capacity)
	}
}

// RecordEscalation increments the escalation counter for a status.
func (m *ControllerMetrics) RecordEscalation(status datatypes.EscalationStatus) {
	m.EscalationsTotal.WithLabelValues(string(status)).Inc()
}
