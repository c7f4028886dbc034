// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the pressure
// controller: events emitted by valves, valve state, locks, quarantine
// entries, arbitration decisions, and escalation records.
//
// All types here are plain records. Validation is hand-written via
// Validate() methods; ownership and mutation rules live with the
// components that hold the records (registry, lockstate, ledger, audit).
package datatypes

import (
	"fmt"
	"time"
)

// =============================================================================
// Valve Identity
// =============================================================================

// ValveID names a pressure source or sink (bloom detector, hypothesis
// generator, quarantine archive, suppression grid).
type ValveID string

// ValveBus is the reserved valve identity the event bus uses when it
// synthesizes an Overload event about itself.
const ValveBus ValveID = "bus"

// =============================================================================
// Pressure Events
// =============================================================================

// EventKind classifies a pressure event.
type EventKind string

const (
	// EventOverload signals bus saturation. Synthesized by the bus itself
	// when it has to shed queued events; always escalated.
	EventOverload EventKind = "overload"

	// EventCluster signals bloom density in a topology cluster.
	EventCluster EventKind = "cluster"

	// EventSaturation signals hypothesis-generator overflow; its payload
	// is routed to the quarantine ledger.
	EventSaturation EventKind = "saturation"

	// EventDrift signals topology instability and requests a Global lock.
	EventDrift EventKind = "drift"

	// EventManualAudit is a read-only operator probe.
	EventManualAudit EventKind = "manual_audit"
)

// PressureEvent is a single pressure reading emitted by a valve.
//
// # Description
//
// Events are immutable once emitted. Ordering is by arrival at the bus,
// not by Timestamp: clock skew across producers is expected, so the
// Timestamp is informational only.
//
// # Fields
//
//   - ID: Unique event identifier. Ingress assigns a UUID when the
//     producer does not supply one.
//   - Source: The emitting valve.
//   - Kind: Event classification (see EventKind).
//   - Magnitude: Load reading, >= 0. For Cluster events this is the bloom
//     density ratio; for Saturation it is the generator load.
//   - ClusterID: Affected topology cluster. Required for Cluster events.
//   - PayloadRef: Opaque reference to the fragment carried by a
//     Saturation event.
//   - SizeUnits: Fragment size in quarantine units. Required (> 0) for
//     Saturation events.
//   - Timestamp: Producer-side wall clock. Informational.
//   - Synthetic: True when the bus created this event about itself.
type PressureEvent struct {
	ID         string    `json:"id"`
	Source     ValveID   `json:"source"`
	Kind       EventKind `json:"kind"`
	Magnitude  float64   `json:"magnitude"`
	ClusterID  string    `json:"cluster_id,omitempty"`
	PayloadRef string    `json:"payload_ref,omitempty"`
	SizeUnits  float64   `json:"size_units,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Synthetic  bool      `json:"synthetic,omitempty"`
}

// Critical reports whether the event may never be shed by the bus under
// backpressure. Overload and Drift are the self-protecting kinds.
func (e PressureEvent) Critical() bool {
	return e.Kind == EventOverload || e.Kind == EventDrift
}

// Validate checks structural integrity of the event.
//
// # Outputs
//
//   - error: Non-nil if a required field is missing or out of range.
func (e PressureEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("pressure event missing id")
	}
	if e.Source == "" {
		return fmt.Errorf("pressure event %s missing source valve", e.ID)
	}
	switch e.Kind {
	case EventOverload, EventCluster, EventSaturation, EventDrift, EventManualAudit:
	default:
		return fmt.Errorf("pressure event %s has unknown kind %q", e.ID, e.Kind)
	}
	if e.Magnitude < 0 {
		return fmt.Errorf("pressure event %s has negative magnitude %f", e.ID, e.Magnitude)
	}
	if e.Kind == EventCluster && e.ClusterID == "" {
		return fmt.Errorf("cluster event %s missing cluster_id", e.ID)
	}
	if e.Kind == EventSaturation && e.SizeUnits <= 0 {
		return fmt.Errorf("saturation event %s requires positive size_units", e.ID)
	}
	return nil
}
