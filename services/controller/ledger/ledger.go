// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger holds the quarantine ledger: a bounded, append-only
// record of saturated fragments. Entries transition Held to Rehydrating
// to Fossilized and are never deleted; only Held and Rehydrating entries
// occupy live capacity.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

// CapacityExceededError reports an enqueue the ledger cannot hold. It is
// a typed failure: the arbiter escalates it rather than shedding the
// fragment silently.
type CapacityExceededError struct {
	FragmentID string
	SizeUnits  float64
	Occupancy  float64
	Capacity   float64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("quarantine capacity exceeded: fragment %s needs %.0f units, %.0f of %.0f in use",
		e.FragmentID, e.SizeUnits, e.Occupancy, e.Capacity)
}

// NotFoundError reports a lookup for an unknown fragment.
type NotFoundError struct {
	FragmentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fragment %s is not in the quarantine ledger", e.FragmentID)
}

// WrongStateError reports an illegal state transition.
type WrongStateError struct {
	FragmentID string
	Have       datatypes.FragmentState
	Want       datatypes.FragmentState
}

func (e *WrongStateError) Error() string {
	return fmt.Sprintf("fragment %s is %s, transition requires %s", e.FragmentID, e.Have, e.Want)
}

// =============================================================================
// Stability Report
// =============================================================================

// StabilityReport summarizes the ledger's health for operators.
type StabilityReport struct {
	Capacity       float64   `json:"capacity"`
	Occupancy      float64   `json:"occupancy"`
	Utilization    float64   `json:"utilization"`
	HeldCount      int       `json:"held_count"`
	Rehydrating    int       `json:"rehydrating_count"`
	Fossilized     int       `json:"fossilized_count"`
	OldestHeld     time.Time `json:"oldest_held,omitempty"`
	Threats        []string  `json:"threats,omitempty"`
	Recommendation string    `json:"recommendation"`
}

// =============================================================================
// Ledger
// =============================================================================

// Ledger is the bounded quarantine table.
//
// # Thread Safety
//
//	All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	entries  map[string]*datatypes.QuarantineEntry
	order    []string // fragment IDs in enqueue order
	capacity float64

	now func() time.Time
}

// New creates a Ledger with the given capacity in quarantine units.
func New(capacity float64) *Ledger {
	return &Ledger{
		entries:  make(map[string]*datatypes.QuarantineEntry),
		capacity: capacity,
		now:      time.Now,
	}
}

// Enqueue admits a fragment in the Held state. It returns a
// *CapacityExceededError when the live occupancy cannot absorb the
// fragment, and an error for duplicate fragment IDs.
func (l *Ledger) Enqueue(entry datatypes.QuarantineEntry) error {
	entry.State = datatypes.FragmentHeld
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = l.now()
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("enqueue fragment: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[entry.FragmentID]; ok {
		return fmt.Errorf("fragment %s is already in the ledger", entry.FragmentID)
	}
	occupancy := l.occupancyLocked()
	if occupancy+entry.SizeUnits > l.capacity {
		return &CapacityExceededError{
			FragmentID: entry.FragmentID,
			SizeUnits:  entry.SizeUnits,
			Occupancy:  occupancy,
			Capacity:   l.capacity,
		}
	}
	l.entries[entry.FragmentID] = &entry
	l.order = append(l.order, entry.FragmentID)
	return nil
}

// Rehydrate moves a Held fragment to Rehydrating.
func (l *Ledger) Rehydrate(fragmentID string) (datatypes.QuarantineEntry, error) {
	return l.transition(fragmentID, datatypes.FragmentHeld, datatypes.FragmentRehydrating, "")
}

// CompleteRehydration moves a Rehydrating fragment to Fossilized,
// releasing its capacity. The entry is retained with a note recording
// that the payload went back to its origin valve.
func (l *Ledger) CompleteRehydration(fragmentID string) (datatypes.QuarantineEntry, error) {
	return l.transition(fragmentID, datatypes.FragmentRehydrating, datatypes.FragmentFossilized,
		"rehydrated, payload returned to origin valve")
}

// Fossilize retires a Held fragment directly, without rehydration.
func (l *Ledger) Fossilize(fragmentID string) (datatypes.QuarantineEntry, error) {
	return l.transition(fragmentID, datatypes.FragmentHeld, datatypes.FragmentFossilized,
		"fossilized without rehydration")
}

// Get returns a ledger entry by fragment ID.
func (l *Ledger) Get(fragmentID string) (datatypes.QuarantineEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[fragmentID]
	if !ok {
		return datatypes.QuarantineEntry{}, &NotFoundError{FragmentID: fragmentID}
	}
	return *entry, nil
}

// List returns all entries in enqueue order, including fossilized ones.
func (l *Ledger) List() []datatypes.QuarantineEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]datatypes.QuarantineEntry, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.entries[id])
	}
	return out
}

// Occupancy returns the live units held by Held and Rehydrating entries.
func (l *Ledger) Occupancy() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.occupancyLocked()
}

// Capacity returns the ledger's total capacity in units.
func (l *Ledger) Capacity() float64 {
	return l.capacity
}

// Utilization returns Occupancy divided by Capacity.
func (l *Ledger) Utilization() float64 {
	if l.capacity <= 0 {
		return 0
	}
	return l.Occupancy() / l.capacity
}

// Stability builds an operator-facing health report: occupancy, state
// counts, named threats, and a coarse recommendation.
func (l *Ledger) Stability() StabilityReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	report := StabilityReport{
		Capacity:  l.capacity,
		Occupancy: l.occupancyLocked(),
	}
	if l.capacity > 0 {
		report.Utilization = report.Occupancy / l.capacity
	}

	var oldestHeld time.Time
	for _, id := range l.order {
		entry := l.entries[id]
		switch entry.State {
		case datatypes.FragmentHeld:
			report.HeldCount++
			if oldestHeld.IsZero() || entry.EnqueuedAt.Before(oldestHeld) {
				oldestHeld = entry.EnqueuedAt
			}
		case datatypes.FragmentRehydrating:
			report.Rehydrating++
		case datatypes.FragmentFossilized:
			report.Fossilized++
		}
	}
	report.OldestHeld = oldestHeld

	if report.Utilization >= 0.95 {
		report.Threats = append(report.Threats, "quarantine nearly full, incoming fragments will be refused")
	} else if report.Utilization >= 0.7 {
		report.Threats = append(report.Threats, "quarantine utilization elevated")
	}
	age := time.Hour
	if !oldestHeld.IsZero() && l.now().Sub(oldestHeld) > age {
		report.Threats = append(report.Threats,
			fmt.Sprintf("held fragments older than %s, rehydration is stalled", age))
	}
	sort.Strings(report.Threats)

	switch {
	case report.Utilization >= 0.95:
		report.Recommendation = "drain: rehydrate or fossilize held fragments immediately"
	case len(report.Threats) > 0:
		report.Recommendation = "monitor: review held fragments"
	default:
		report.Recommendation = "stable"
	}
	return report
}

// =============================================================================
// Internal
// =============================================================================

func (l *Ledger) occupancyLocked() float64 {
	total := 0.0
	for _, entry := range l.entries {
		if entry.Active() {
			total += entry.SizeUnits
		}
	}
	return total
}

func (l *Ledger) transition(fragmentID string, from, to datatypes.FragmentState, note string) (datatypes.QuarantineEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[fragmentID]
	if !ok {
		return datatypes.QuarantineEntry{}, &NotFoundError{FragmentID: fragmentID}
	}
	if entry.State != from {
		return datatypes.QuarantineEntry{}, &WrongStateError{
			FragmentID: fragmentID,
			Have:       entry.State,
			Want:       from,
		}
	}
	entry.State = to
	if note != "" {
		entry.Note = note
	}
	return *entry, nil
}
