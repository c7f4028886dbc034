// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

func clusterEvent(id string) datatypes.PressureEvent {
	return datatypes.PressureEvent{
		ID:        id,
		Source:    "bloom-1",
		Kind:      datatypes.EventCluster,
		Magnitude: 0.5,
		ClusterID: "cluster-a",
		Timestamp: time.Now(),
	}
}

func driftEvent(id string) datatypes.PressureEvent {
	return datatypes.PressureEvent{
		ID:        id,
		Source:    "topology-monitor",
		Kind:      datatypes.EventDrift,
		Magnitude: 0.9,
		Timestamp: time.Now(),
	}
}

func TestBus_FIFOOrder(t *testing.T) {
	b := New(8, nil)
	for i := 0; i < 5; i++ {
		require.True(t, b.Publish(clusterEvent(fmt.Sprintf("evt-%d", i))))
	}
	assert.Equal(t, 5, b.Depth())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ev, err := b.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("evt-%d", i), ev.ID)
	}
	assert.Equal(t, 0, b.Depth())
}

func TestBus_EvictsOldestNonCritical(t *testing.T) {
	b := New(3, nil)
	require.True(t, b.Publish(clusterEvent("old")))
	require.True(t, b.Publish(driftEvent("drift-1")))
	require.True(t, b.Publish(clusterEvent("mid")))

	// Queue is full. The next publish must evict "old", not the drift.
	require.True(t, b.Publish(clusterEvent("new")))
	assert.Equal(t, uint64(1), b.Dropped())
	assert.Equal(t, 3, b.Depth())

	ctx := context.Background()

	// The saturation raises a synthetic overload ahead of the queue.
	ev, err := b.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ev.Synthetic)
	assert.Equal(t, datatypes.EventOverload, ev.Kind)
	assert.Equal(t, datatypes.ValveBus, ev.Source)

	var ids []string
	for i := 0; i < 3; i++ {
		ev, err := b.Next(ctx)
		require.NoError(t, err)
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"drift-1", "mid", "new"}, ids)
}

func TestBus_FullOfCriticalDropsNonCriticalNewcomer(t *testing.T) {
	b := New(2, nil)
	require.True(t, b.Publish(driftEvent("drift-1")))
	require.True(t, b.Publish(driftEvent("drift-2")))

	assert.False(t, b.Publish(clusterEvent("cluster-1")))
	assert.Equal(t, uint64(1), b.Dropped())
	assert.Equal(t, 2, b.Depth())

	// A critical newcomer still displaces the oldest critical event.
	require.True(t, b.Publish(driftEvent("drift-3")))
	assert.Equal(t, uint64(2), b.Dropped())
}

func TestBus_SyntheticOverloadOncePerEpisode(t *testing.T) {
	b := New(1, nil)
	require.True(t, b.Publish(clusterEvent("a")))
	require.True(t, b.Publish(clusterEvent("b")))
	require.True(t, b.Publish(clusterEvent("c")))

	ctx := context.Background()
	ev, err := b.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ev.Synthetic)

	ev, err = b.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", ev.ID)
	assert.False(t, ev.Synthetic)
}

func TestBus_NextHonorsContext(t *testing.T) {
	b := New(4, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_ConcurrentPublish(t *testing.T) {
	b := New(1024, nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Publish(clusterEvent(fmt.Sprintf("g%d-%d", g, i)))
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 800, b.Depth())
	assert.Equal(t, uint64(0), b.Dropped())
}
