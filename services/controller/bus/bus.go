// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bus provides the bounded in-process event queue that feeds the
// arbitration loop. Producers publish pressure events from any goroutine;
// a single consumer drains them in order via Next.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// =============================================================================
// Bus
// =============================================================================

// Bus is a bounded FIFO queue of pressure events.
//
// # Description
//
//	Publish never blocks. When the queue is full the oldest non-critical
//	buffered event is evicted to make room; the eviction is recorded and a
//	synthetic overload event is raised so the arbitration loop learns that
//	the bus itself is saturated. Critical events (overload, drift) are
//	never evicted. If the queue is full of critical events, a new
//	non-critical event is dropped instead.
//
//	The synthetic overload does not occupy a queue slot. Next delivers it
//	ahead of buffered events, at most once per saturation episode.
//
// # Thread Safety
//
//	Safe for concurrent Publish from many goroutines. Next must be called
//	from a single consumer goroutine; events are delivered in the order
//	they survived in the queue.
type Bus struct {
	mu       sync.Mutex
	queue    []datatypes.PressureEvent
	bound    int
	dropped  uint64
	overload bool // synthetic overload pending delivery

	notify chan struct{}
	logger *slog.Logger
}

// New creates a Bus holding at most bound events. A bound below 1 is
// raised to 1.
func New(bound int, logger *slog.Logger) *Bus {
	if bound < 1 {
		bound = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		queue:  make([]datatypes.PressureEvent, 0, bound),
		bound:  bound,
		notify: make(chan struct{}, 1),
		logger: logger,
	}
}

// Publish enqueues ev, evicting the oldest non-critical event if the
// queue is full. It reports whether ev itself was accepted.
func (b *Bus) Publish(ev datatypes.PressureEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) >= b.bound {
		idx := b.oldestNonCritical()
		if idx < 0 {
			// Queue is all critical events. A critical newcomer displaces
			// nothing; a non-critical newcomer is the drop candidate.
			if !ev.Critical() {
				b.dropped++
				b.overload = true
				b.logger.Warn("bus full of critical events, dropping newcomer",
					"event_id", ev.ID, "kind", ev.Kind)
				b.signalLocked()
				return false
			}
			idx = 0
		}
		evicted := b.queue[idx]
		b.queue = append(b.queue[:idx], b.queue[idx+1:]...)
		b.dropped++
		b.overload = true
		b.logger.Warn("bus saturated, evicted oldest non-critical event",
			"evicted_id", evicted.ID, "evicted_kind", evicted.Kind,
			"incoming_id", ev.ID)
	}

	b.queue = append(b.queue, ev)
	b.signalLocked()
	return true
}

// Next blocks until an event is available or ctx is done. A pending
// synthetic overload is delivered before buffered events.
func (b *Bus) Next(ctx context.Context) (datatypes.PressureEvent, error) {
	for {
		b.mu.Lock()
		if b.overload {
			b.overload = false
			b.mu.Unlock()
			return datatypes.PressureEvent{
				ID:        uuid.NewString(),
				Source:    datatypes.ValveBus,
				Kind:      datatypes.EventOverload,
				Magnitude: 1.0,
				Timestamp: time.Now().UTC(),
				Synthetic: true,
			}, nil
		}
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return ev, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return datatypes.PressureEvent{}, ctx.Err()
		case <-b.notify:
		}
	}
}

// Depth returns the number of buffered events.
func (b *Bus) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Dropped returns the total number of events dropped since creation.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// =============================================================================
// Internal
// =============================================================================

func (b *Bus) oldestNonCritical() int {
	for i, ev := range b.queue {
		if !ev.Critical() {
			return i
		}
	}
	return -1
}

func (b *Bus) signalLocked() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
