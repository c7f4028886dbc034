// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

func newTestRegistry() *Registry {
	return New(0.7, 0.95, 0.85)
}

func TestRegistry_RegisterAndReport(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(datatypes.ValveState{ID: "bloom-1", Capacity: 1.0}))

	state, err := r.Report("bloom-1", 0.5)
	require.NoError(t, err)
	assert.Equal(t, datatypes.ValveNominal, state.Status)

	state, err = r.Report("bloom-1", 0.7)
	require.NoError(t, err)
	assert.Equal(t, datatypes.ValveElevated, state.Status, "threshold itself counts as elevated")

	state, err = r.Report("bloom-1", 0.95)
	require.NoError(t, err)
	assert.Equal(t, datatypes.ValveCritical, state.Status)
}

func TestRegistry_ReportUnknownValve(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Report("ghost", 0.5)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, datatypes.ValveID("ghost"), notFound.ID)
}

func TestRegistry_ReregisterKeepsLoad(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(datatypes.ValveState{ID: "bloom-1", Capacity: 1.0}))
	_, err := r.Report("bloom-1", 0.8)
	require.NoError(t, err)

	// Doubling the capacity halves the ratio and clears the elevation.
	require.NoError(t, r.Register(datatypes.ValveState{ID: "bloom-1", Capacity: 2.0}))
	state, err := r.Get("bloom-1")
	require.NoError(t, err)
	assert.Equal(t, 0.8, state.CurrentLoad)
	assert.Equal(t, datatypes.ValveNominal, state.Status)
}

func TestRegistry_ListOrdered(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(datatypes.ValveState{ID: "c", Capacity: 1}))
	require.NoError(t, r.Register(datatypes.ValveState{ID: "a", Capacity: 1}))
	require.NoError(t, r.Register(datatypes.ValveState{ID: "b", Capacity: 1}))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, datatypes.ValveID("a"), list[0].ID)
	assert.Equal(t, datatypes.ValveID("b"), list[1].ID)
	assert.Equal(t, datatypes.ValveID("c"), list[2].ID)
}

func TestRegistry_HistoryWindow(t *testing.T) {
	r := newTestRegistry()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	r.now = func() time.Time { return current }

	require.NoError(t, r.Register(datatypes.ValveState{ID: "bloom-1", Capacity: 1.0}))

	// Thirty samples one second apart. Depth caps retention at twenty
	// and age excludes anything older than a minute.
	for i := 0; i < 30; i++ {
		current = base.Add(time.Duration(i) * time.Second)
		_, err := r.Report("bloom-1", float64(i)/100)
		require.NoError(t, err)
	}

	samples, err := r.History("bloom-1")
	require.NoError(t, err)
	require.Len(t, samples, 20)
	assert.Equal(t, 0.10, samples[0].Load)
	assert.Equal(t, 0.29, samples[len(samples)-1].Load)

	// An hour later every sample has aged out.
	current = base.Add(time.Hour)
	samples, err = r.History("bloom-1")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestRegistry_SystemPressureAndCascade(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(datatypes.ValveState{ID: "a", Capacity: 1}))
	require.NoError(t, r.Register(datatypes.ValveState{ID: "b", Capacity: 1}))

	assert.False(t, r.CascadeRisk())

	_, err := r.Report("a", 0.9)
	require.NoError(t, err)
	_, err = r.Report("b", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, r.SystemPressure(), 1e-9)
	assert.False(t, r.CascadeRisk())

	_, err = r.Report("b", 0.9)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, r.SystemPressure(), 1e-9)
	assert.True(t, r.CascadeRisk(), "mean above cascade threshold")
}

func TestRegistry_CascadeOnCriticalMajority(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(datatypes.ValveState{ID: "a", Capacity: 1}))
	require.NoError(t, r.Register(datatypes.ValveState{ID: "b", Capacity: 1}))
	require.NoError(t, r.Register(datatypes.ValveState{ID: "c", Capacity: 1}))
	require.NoError(t, r.Register(datatypes.ValveState{ID: "d", Capacity: 1}))

	_, err := r.Report("a", 0.96)
	require.NoError(t, err)
	_, err = r.Report("b", 0.96)
	require.NoError(t, err)

	// Mean is below the cascade threshold, but half the valves are
	// critical, which trips the risk on its own.
	assert.Less(t, r.SystemPressure(), 0.85)
	assert.True(t, r.CascadeRisk())
}
