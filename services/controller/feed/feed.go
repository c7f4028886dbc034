// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feed broadcasts arbitration decisions to live subscribers.
// The websocket endpoint streams from here; the arbitration loop only
// ever publishes and never blocks on slow consumers.
package feed

import (
	"log/slog"
	"sync"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls this far behind starts losing decisions.
const subscriberBuffer = 32

// =============================================================================
// Broadcaster
// =============================================================================

// Broadcaster fans arbitration decisions out to subscribers.
//
// # Thread Safety
//
//	All methods are safe for concurrent use.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan datatypes.ArbitrationDecision
	nextID int
	logger *slog.Logger
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[int]chan datatypes.ArbitrationDecision),
		logger: logger,
	}
}

// Subscribe registers a new consumer. The returned cancel function must
// be called when the consumer goes away; it closes the channel.
func (b *Broadcaster) Subscribe() (<-chan datatypes.ArbitrationDecision, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan datatypes.ArbitrationDecision, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers a decision to every subscriber. Subscribers whose
// buffers are full miss this decision; the publisher never blocks.
func (b *Broadcaster) Publish(decision datatypes.ArbitrationDecision) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		select {
		case sub <- decision:
		default:
			b.logger.Warn("decision feed subscriber lagging, decision skipped",
				"subscriber", id, "decision_id", decision.ID)
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
