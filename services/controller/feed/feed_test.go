// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feed

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

func decision(id string) datatypes.ArbitrationDecision {
	return datatypes.ArbitrationDecision{
		ID:      id,
		EventID: "evt-" + id,
		Outcome: datatypes.OutcomeGranted,
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(nil)

	first, cancelFirst := b.Subscribe()
	second, cancelSecond := b.Subscribe()
	defer cancelFirst()
	defer cancelSecond()
	assert.Equal(t, 2, b.Subscribers())

	b.Publish(decision("d1"))

	assert.Equal(t, "d1", (<-first).ID)
	assert.Equal(t, "d1", (<-second).ID)
}

func TestBroadcaster_CancelClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)

	ch, cancel := b.Subscribe()
	cancel()
	assert.Equal(t, 0, b.Subscribers())

	_, open := <-ch
	assert.False(t, open)

	// A second cancel is harmless.
	cancel()
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(nil)

	ch, cancel := b.Subscribe()
	defer cancel()

	// Overfill the buffer; Publish must return regardless.
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(decision(fmt.Sprintf("d%d", i)))
	}

	// The subscriber still sees the first buffered decisions in order.
	require.Equal(t, "d0", (<-ch).ID)
	require.Equal(t, "d1", (<-ch).ID)
}

func TestBroadcaster_PublishWithNoSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	b.Publish(decision("d1"))
	assert.Equal(t, 0, b.Subscribers())
}
