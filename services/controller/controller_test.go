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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AureaControl/services/controller/arbiter"
	"github.com/jinterlante1206/AureaControl/services/controller/audit"
	"github.com/jinterlante1206/AureaControl/services/controller/bus"
	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
	"github.com/jinterlante1206/AureaControl/services/controller/escalation"
	"github.com/jinterlante1206/AureaControl/services/controller/feed"
	"github.com/jinterlante1206/AureaControl/services/controller/ledger"
	"github.com/jinterlante1206/AureaControl/services/controller/lockstate"
	"github.com/jinterlante1206/AureaControl/services/controller/registry"
)

func newTestController(t *testing.T) (*Controller, *registry.Registry, *escalation.Sink) {
	t.Helper()

	auditLog := audit.NewLog(nil, nil)
	reg := registry.New(0.7, 0.95, 0.85)
	table := lockstate.NewTable(nil, 30*time.Second, nil)
	led := ledger.New(1000)
	engine := arbiter.New(table, led, arbiter.DefaultConfig())
	sink := escalation.NewSink(escalation.NewLogNotifier(nil), auditLog,
		escalation.Config{QueueBound: 8, MaxAttempts: 1, BaseBackoff: time.Millisecond, RatePerSecond: 100}, nil)

	controller := NewController(bus.New(8, nil), engine, reg, table, led,
		auditLog, sink, feed.NewBroadcaster(nil), nil, nil)
	return controller, reg, sink
}

func TestProcessEvent_ManualAuditLeavesRegistryUntouched(t *testing.T) {
	controller, reg, _ := newTestController(t)
	require.NoError(t, reg.Register(datatypes.ValveState{ID: "bloom-detector", Capacity: 100}))
	_, err := reg.Report("bloom-detector", 96)
	require.NoError(t, err)

	controller.processEvent(context.Background(), datatypes.PressureEvent{
		ID:        "evt-audit",
		Source:    "bloom-detector",
		Kind:      datatypes.EventManualAudit,
		Magnitude: 0,
		Timestamp: time.Now(),
	})

	state, err := reg.Get("bloom-detector")
	require.NoError(t, err)
	assert.Equal(t, float64(96), state.CurrentLoad)
	assert.Equal(t, datatypes.ValveCritical, state.Status)
}

func TestProcessEvent_SyntheticOverloadReachesSink(t *testing.T) {
	controller, _, sink := newTestController(t)

	controller.processEvent(context.Background(), datatypes.PressureEvent{
		ID:        "evt-overload",
		Source:    datatypes.ValveBus,
		Kind:      datatypes.EventOverload,
		Magnitude: 1.0,
		Timestamp: time.Now(),
		Synthetic: true,
	})

	assert.Equal(t, 1, sink.Pending(), "overload must queue an escalation")
}

func TestProcessEvent_LoadReadingUpdatesRegistry(t *testing.T) {
	controller, reg, _ := newTestController(t)
	require.NoError(t, reg.Register(datatypes.ValveState{ID: "bloom-detector", Capacity: 100}))

	controller.processEvent(context.Background(), datatypes.PressureEvent{
		ID:        "evt-cluster",
		Source:    "bloom-detector",
		Kind:      datatypes.EventCluster,
		ClusterID: "cluster-a",
		Magnitude: 90,
		Timestamp: time.Now(),
	})

	state, err := reg.Get("bloom-detector")
	require.NoError(t, err)
	assert.Equal(t, float64(90), state.CurrentLoad)
}
