// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// ============================================================================
// Test Helper: Create isolated metrics for testing
// ============================================================================

// newTestMetrics creates a ControllerMetrics instance with a custom registry.
// This avoids conflicts with the global Prometheus registry and allows
// parallel testing.
func newTestMetrics(t *testing.T) *ControllerMetrics {
	t.Helper()

	reg := prometheus.NewRegistry()

	m := &ControllerMetrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "events_total",
				Help:      "Total arbitrated pressure events by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		BusDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "bus_depth",
				Help:      "Number of events currently buffered on the bus",
			},
		),
		BusDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "bus_dropped_total",
				Help:      "Total events shed by the bus under backpressure",
			},
		),
		LocksHeld: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "locks_held",
				Help:      "Currently held mitigation locks by scope",
			},
			[]string{"scope"},
		),
		LockDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "lock_denials_total",
				Help:      "Total denied lock acquisitions by requested scope",
			},
			[]string{"scope"},
		),
		SystemPressure: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "system_pressure",
				Help:      "Mean load ratio across registered valves",
			},
		),
		ValveLoadRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "valve_load_ratio",
				Help:      "Per-valve load over capacity",
			},
			[]string{"valve"},
		),
		QuarantineOccupancy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "quarantine_occupancy_units",
				Help:      "Live quarantine units held by active fragments",
			},
		),
		QuarantineUtilization: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "quarantine_utilization",
				Help:      "Quarantine occupancy divided by capacity",
			},
		),
		EscalationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "escalations_total",
				Help:      "Total escalation records by delivery status",
			},
			[]string{"status"},
		),
		ArbitrationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: controllerSubsystem,
				Name:      "arbitration_seconds",
				Help:      "Per-event arbitration latency in seconds",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1},
			},
		),
	}

	reg.MustRegister(
		m.EventsTotal, m.BusDepth, m.BusDroppedTotal,
		m.LocksHeld, m.LockDenialsTotal,
		m.SystemPressure, m.ValveLoadRatio,
		m.QuarantineOccupancy, m.QuarantineUtilization,
		m.EscalationsTotal, m.ArbitrationSeconds,
	)
	return m
}

func TestRecordDecision(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDecision(datatypes.EventCluster, datatypes.OutcomeGranted)
	m.RecordDecision(datatypes.EventCluster, datatypes.OutcomeGranted)
	m.RecordDecision(datatypes.EventDrift, datatypes.OutcomeEscalated)

	granted := testutil.ToFloat64(m.EventsTotal.WithLabelValues("cluster", "granted"))
	if granted != 2 {
		t.Errorf("expected 2 granted cluster events, got %f", granted)
	}
	escalated := testutil.ToFloat64(m.EventsTotal.WithLabelValues("drift", "escalated"))
	if escalated != 1 {
		t.Errorf("expected 1 escalated drift event, got %f", escalated)
	}
}

func TestRecordBus(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordBus(7, 3, 1)
	if got := testutil.ToFloat64(m.BusDepth); got != 7 {
		t.Errorf("expected depth 7, got %f", got)
	}
	if got := testutil.ToFloat64(m.BusDroppedTotal); got != 2 {
		t.Errorf("expected 2 new drops, got %f", got)
	}

	// A stale snapshot must not decrement the counter.
	m.RecordBus(7, 3, 3)
	if got := testutil.ToFloat64(m.BusDroppedTotal); got != 2 {
		t.Errorf("expected drops to stay at 2, got %f", got)
	}
}

func TestRecordLocks(t *testing.T) {
	m := newTestMetrics(t)

	now := time.Now()
	m.RecordLocks([]datatypes.Lock{
		{ID: "1", Scope: datatypes.LocalScope("valve-x"), Holder: "m", AcquiredAt: now},
		{ID: "2", Scope: datatypes.RegionalScope("cluster-a"), Holder: "m", AcquiredAt: now},
		{ID: "3", Scope: datatypes.RegionalScope("cluster-b"), Holder: "m", AcquiredAt: now},
	})

	if got := testutil.ToFloat64(m.LocksHeld.WithLabelValues("regional")); got != 2 {
		t.Errorf("expected 2 regional locks, got %f", got)
	}
	if got := testutil.ToFloat64(m.LocksHeld.WithLabelValues("global")); got != 0 {
		t.Errorf("expected 0 global locks, got %f", got)
	}

	// An empty snapshot resets every scope.
	m.RecordLocks(nil)
	if got := testutil.ToFloat64(m.LocksHeld.WithLabelValues("regional")); got != 0 {
		t.Errorf("expected regional gauge reset, got %f", got)
	}
}

func TestRecordPressure(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordPressure(0.45, []datatypes.ValveState{
		{ID: "valve-a", CurrentLoad: 30, Capacity: 100, Status: datatypes.ValveNominal},
		{ID: "valve-b", CurrentLoad: 60, Capacity: 100, Status: datatypes.ValveNominal},
	})

	if got := testutil.ToFloat64(m.SystemPressure); got != 0.45 {
		t.Errorf("expected system pressure 0.45, got %f", got)
	}
	if got := testutil.ToFloat64(m.ValveLoadRatio.WithLabelValues("valve-b")); got != 0.6 {
		t.Errorf("expected valve-b ratio 0.6, got %f", got)
	}
}

func TestRecordQuarantine(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordQuarantine(80, 100)
	if got := testutil.ToFloat64(m.QuarantineOccupancy); got != 80 {
		t.Errorf("expected occupancy 80, got %f", got)
	}
	if got := testutil.ToFloat64(m.QuarantineUtilization); got != 0.8 {
		t.Errorf("expected utilization 0.8, got %f", got)
	}
}

func TestRecordEscalation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordEscalation(datatypes.EscalationDelivered)
	m.RecordEscalation(datatypes.EscalationDropped)
	m.RecordEscalation(datatypes.EscalationDropped)

	if got := testutil.ToFloat64(m.EscalationsTotal.WithLabelValues("dropped")); got != 2 {
		t.Errorf("expected 2 dropped escalations, got %f", got)
	}
}
