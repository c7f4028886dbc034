// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package arbiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
	"github.com/jinterlante1206/AureaControl/services/controller/ledger"
	"github.com/jinterlante1206/AureaControl/services/controller/lockstate"
)

func newTestEngine(capacity float64) (*Engine, *lockstate.Table, *ledger.Ledger) {
	clock := lockstate.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	table := lockstate.NewTable(clock, 30*time.Second, nil)
	led := ledger.New(capacity)
	return New(table, led, DefaultConfig()), table, led
}

func clusterEvent(id, cluster string, magnitude float64) datatypes.PressureEvent {
	return datatypes.PressureEvent{
		ID:        id,
		Source:    "bloom-detector",
		Kind:      datatypes.EventCluster,
		Magnitude: magnitude,
		ClusterID: cluster,
		Timestamp: time.Now(),
	}
}

func driftEvent(id, source string) datatypes.PressureEvent {
	return datatypes.PressureEvent{
		ID:        id,
		Source:    datatypes.ValveID(source),
		Kind:      datatypes.EventDrift,
		Magnitude: 0.9,
		Timestamp: time.Now(),
	}
}

func TestEngine_ClusterGrantsRegionalLock(t *testing.T) {
	engine, table, _ := newTestEngine(100)

	result, err := engine.Decide(clusterEvent("evt-1", "cluster-a", 0.9))
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeGranted, result.Decision.Outcome)
	assert.False(t, result.Escalate)

	require.NotNil(t, result.Decision.Lock)
	lock := result.Decision.Lock
	assert.Equal(t, datatypes.ScopeRegional, lock.Scope.Kind)
	assert.Equal(t, "cluster-a", lock.Scope.Target)
	assert.Equal(t, 30*time.Second, lock.TTL)

	_, held := table.Get(lock.ID)
	assert.True(t, held)
}

func TestEngine_ClusterUnderGlobalLockEscalates(t *testing.T) {
	engine, table, _ := newTestEngine(100)

	_, err := table.Acquire(lockstate.AcquireRequest{
		Scope:  datatypes.GlobalScope(),
		Holder: "topology-monitor",
		Reason: "drift",
	})
	require.NoError(t, err)

	result, err := engine.Decide(clusterEvent("evt-1", "cluster-a", 0.9))
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeEscalated, result.Decision.Outcome)
	assert.True(t, result.Escalate)
	assert.Equal(t, "regional lock unavailable under global lock", result.Decision.Rationale)
	assert.Nil(t, result.Decision.Lock)
}

func TestEngine_ClusterAtThresholdGrantsLock(t *testing.T) {
	engine, _, _ := newTestEngine(100)

	result, err := engine.Decide(clusterEvent("evt-1", "cluster-a", DefaultConfig().ClusterActionable))
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeGranted, result.Decision.Outcome)
	require.NotNil(t, result.Decision.Lock)
	assert.Equal(t, "cluster-a", result.Decision.Lock.Scope.Target)
}

func TestEngine_ClusterBelowThresholdDenied(t *testing.T) {
	engine, _, _ := newTestEngine(100)

	result, err := engine.Decide(clusterEvent("evt-1", "cluster-a", 0.5))
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeDenied, result.Decision.Outcome)
	assert.False(t, result.Escalate)
	assert.Contains(t, result.Decision.Rationale, "below actionable threshold")
}

func TestEngine_ClusterContentionDenied(t *testing.T) {
	engine, _, _ := newTestEngine(100)

	first, err := engine.Decide(clusterEvent("evt-1", "cluster-a", 0.9))
	require.NoError(t, err)
	require.Equal(t, datatypes.OutcomeGranted, first.Decision.Outcome)

	second, err := engine.Decide(clusterEvent("evt-2", "cluster-a", 0.9))
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeDenied, second.Decision.Outcome)
	assert.Equal(t, "cluster already under regional mitigation", second.Decision.Rationale)

	other, err := engine.Decide(clusterEvent("evt-3", "cluster-b", 0.9))
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeGranted, other.Decision.Outcome)
}

func TestEngine_SaturationQuarantinesFragment(t *testing.T) {
	engine, _, led := newTestEngine(100)

	result, err := engine.Decide(datatypes.PressureEvent{
		ID:         "evt-1",
		Source:     "hypothesis-gen",
		Kind:       datatypes.EventSaturation,
		Magnitude:  0.8,
		PayloadRef: "blob://frag-1",
		SizeUnits:  40,
		Timestamp:  time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeQuarantined, result.Decision.Outcome)
	assert.False(t, result.Escalate)

	entry, err := led.Get("evt-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.FragmentHeld, entry.State)
	assert.Equal(t, datatypes.ValveID("hypothesis-gen"), entry.OriginValve)
	assert.Equal(t, "blob://frag-1", entry.PayloadRef)
}

func TestEngine_SaturationOverCapacityEscalates(t *testing.T) {
	engine, _, led := newTestEngine(100)
	require.NoError(t, led.Enqueue(datatypes.QuarantineEntry{
		FragmentID:  "existing",
		OriginValve: "hypothesis-gen",
		SizeUnits:   95,
	}))

	result, err := engine.Decide(datatypes.PressureEvent{
		ID:        "evt-1",
		Source:    "hypothesis-gen",
		Kind:      datatypes.EventSaturation,
		Magnitude: 0.8,
		SizeUnits: 10,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeEscalated, result.Decision.Outcome)
	assert.True(t, result.Escalate)
	assert.Contains(t, result.Decision.Rationale, "quarantine refused fragment")

	// The refused fragment was not admitted.
	_, err = led.Get("evt-1")
	assert.Error(t, err)
	assert.Equal(t, 95.0, led.Occupancy())
}

func TestEngine_SaturationNearCapacityQuarantinesAndEscalates(t *testing.T) {
	engine, _, _ := newTestEngine(100)

	result, err := engine.Decide(datatypes.PressureEvent{
		ID:        "evt-1",
		Source:    "hypothesis-gen",
		Kind:      datatypes.EventSaturation,
		Magnitude: 0.8,
		SizeUnits: 96,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeQuarantined, result.Decision.Outcome)
	assert.True(t, result.Escalate, "admission that leaves the ledger critically full still alarms")
	assert.Contains(t, result.Decision.Rationale, "critically full")
}

func TestEngine_DriftTakesGlobalLock(t *testing.T) {
	engine, table, _ := newTestEngine(100)

	result, err := engine.Decide(driftEvent("evt-1", "topology-monitor"))
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeGranted, result.Decision.Outcome)
	require.NotNil(t, result.Decision.Lock)
	assert.Equal(t, datatypes.ScopeGlobal, result.Decision.Lock.Scope.Kind)
	assert.Nil(t, result.Decision.Lock.ExpiresAt, "drift freeze is untimed")
	assert.True(t, table.GlobalHeld())
}

func TestEngine_SimultaneousDriftEscalates(t *testing.T) {
	engine, _, _ := newTestEngine(100)

	first, err := engine.Decide(driftEvent("evt-1", "monitor-a"))
	require.NoError(t, err)
	require.Equal(t, datatypes.OutcomeGranted, first.Decision.Outcome)

	second, err := engine.Decide(driftEvent("evt-2", "monitor-b"))
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeEscalated, second.Decision.Outcome)
	assert.True(t, second.Escalate)
	assert.Equal(t, "two simultaneous drift events", second.Decision.Rationale)
}

func TestEngine_OverloadAlwaysEscalates(t *testing.T) {
	engine, table, _ := newTestEngine(100)

	ev := datatypes.PressureEvent{
		ID:        "evt-1",
		Source:    datatypes.ValveBus,
		Kind:      datatypes.EventOverload,
		Magnitude: 1.0,
		Timestamp: time.Now(),
		Synthetic: true,
	}
	result, err := engine.Decide(ev)
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeEscalated, result.Decision.Outcome)
	assert.True(t, result.Escalate)
	assert.Nil(t, result.Decision.Lock)
	assert.Empty(t, table.List(), "overload bypasses lock logic")
}

func TestEngine_OverloadEscalatesEvenUnderGlobalLock(t *testing.T) {
	engine, table, _ := newTestEngine(100)

	first, err := engine.Decide(driftEvent("evt-1", "monitor-a"))
	require.NoError(t, err)
	require.Equal(t, datatypes.OutcomeGranted, first.Decision.Outcome)
	require.True(t, table.GlobalHeld())

	result, err := engine.Decide(datatypes.PressureEvent{
		ID:        "evt-2",
		Source:    datatypes.ValveBus,
		Kind:      datatypes.EventOverload,
		Magnitude: 1.0,
		Timestamp: time.Now(),
		Synthetic: true,
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeEscalated, result.Decision.Outcome)
	assert.True(t, result.Escalate)
}

func TestEngine_ManualAuditAlwaysGranted(t *testing.T) {
	engine, table, _ := newTestEngine(100)

	result, err := engine.Decide(datatypes.PressureEvent{
		ID:        "evt-1",
		Source:    "operator",
		Kind:      datatypes.EventManualAudit,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.OutcomeGranted, result.Decision.Outcome)
	assert.Nil(t, result.Decision.Lock)
	assert.Empty(t, table.List(), "manual audits touch no locks")
}

func TestEngine_MalformedEventRejected(t *testing.T) {
	engine, _, _ := newTestEngine(100)

	_, err := engine.Decide(datatypes.PressureEvent{ID: "evt-1"})
	assert.Error(t, err)
}

// Replaying the same sequence against a fresh engine yields the same
// outcomes in the same order.
func TestEngine_DeterministicReplay(t *testing.T) {
	sequence := []datatypes.PressureEvent{
		clusterEvent("evt-1", "cluster-a", 0.9),
		clusterEvent("evt-2", "cluster-a", 0.9),
		driftEvent("evt-3", "monitor-a"),
		clusterEvent("evt-4", "cluster-b", 0.9),
		driftEvent("evt-5", "monitor-b"),
	}

	run := func() []datatypes.DecisionOutcome {
		engine, _, _ := newTestEngine(100)
		var outcomes []datatypes.DecisionOutcome
		for _, ev := range sequence {
			result, err := engine.Decide(ev)
			require.NoError(t, err)
			outcomes = append(outcomes, result.Decision.Outcome)
		}
		return outcomes
	}

	first := run()
	assert.Equal(t, []datatypes.DecisionOutcome{
		datatypes.OutcomeGranted,
		datatypes.OutcomeDenied,
		datatypes.OutcomeGranted,
		datatypes.OutcomeEscalated,
		datatypes.OutcomeEscalated,
	}, first)
	assert.Equal(t, first, run())
}
