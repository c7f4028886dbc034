// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry tracks the known pressure valves, their live load, and
// a short history window used for system-level pressure assessment.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

const (
	// historyDepth caps the number of samples retained per valve.
	historyDepth = 20
	// historyMaxAge drops samples older than this from assessments.
	historyMaxAge = 60 * time.Second
)

// Sample is one recorded load reading for a valve.
type Sample struct {
	Load  float64   `json:"load"`
	Ratio float64   `json:"ratio"`
	At    time.Time `json:"at"`
}

// NotFoundError reports a lookup for a valve that was never registered.
type NotFoundError struct {
	ID datatypes.ValveID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("valve %q is not registered", e.ID)
}

// =============================================================================
// Registry
// =============================================================================

// Registry is the authoritative table of valve states.
//
// # Description
//
//	Register declares a valve and its capacity. Report records a new load
//	reading, recomputes the valve's status against the elevated and
//	critical thresholds, and appends the reading to the valve's history
//	window. SystemPressure and CascadeRisk aggregate the live ratios
//	across all registered valves.
//
// # Thread Safety
//
//	All methods are safe for concurrent use. Reads take a shared lock.
type Registry struct {
	mu      sync.RWMutex
	valves  map[datatypes.ValveID]*datatypes.ValveState
	history map[datatypes.ValveID][]Sample

	elevated float64
	critical float64
	cascade  float64

	now func() time.Time
}

// New creates a Registry with the given status thresholds. The cascade
// threshold is the system-wide mean ratio above which CascadeRisk trips.
func New(elevated, critical, cascade float64) *Registry {
	return &Registry{
		valves:   make(map[datatypes.ValveID]*datatypes.ValveState),
		history:  make(map[datatypes.ValveID][]Sample),
		elevated: elevated,
		critical: critical,
		cascade:  cascade,
		now:      time.Now,
	}
}

// Register adds a valve or updates the capacity of an existing one.
// Current load and history are preserved across re-registration.
func (r *Registry) Register(state datatypes.ValveState) error {
	state.Status = r.statusFor(state.LoadRatio())
	if err := state.Validate(); err != nil {
		return fmt.Errorf("register valve: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.valves[state.ID]; ok {
		existing.Capacity = state.Capacity
		existing.Status = r.statusFor(existing.LoadRatio())
		return nil
	}
	r.valves[state.ID] = &state
	return nil
}

// Report records a load reading for a valve and returns its updated state.
func (r *Registry) Report(id datatypes.ValveID, load float64) (datatypes.ValveState, error) {
	if load < 0 {
		return datatypes.ValveState{}, fmt.Errorf("report load for %q: load %f is negative", id, load)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	valve, ok := r.valves[id]
	if !ok {
		return datatypes.ValveState{}, &NotFoundError{ID: id}
	}
	valve.CurrentLoad = load
	valve.Status = r.statusFor(valve.LoadRatio())

	window := append(r.history[id], Sample{
		Load:  load,
		Ratio: valve.LoadRatio(),
		At:    r.now(),
	})
	if len(window) > historyDepth {
		window = window[len(window)-historyDepth:]
	}
	r.history[id] = window

	return *valve, nil
}

// Get returns the current state of a valve.
func (r *Registry) Get(id datatypes.ValveID) (datatypes.ValveState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	valve, ok := r.valves[id]
	if !ok {
		return datatypes.ValveState{}, &NotFoundError{ID: id}
	}
	return *valve, nil
}

// List returns all registered valves ordered by ID.
func (r *Registry) List() []datatypes.ValveState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]datatypes.ValveState, 0, len(r.valves))
	for _, v := range r.valves {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// History returns the recent samples for a valve, oldest first. Samples
// older than the history window are excluded.
func (r *Registry) History(id datatypes.ValveID) ([]Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.valves[id]; !ok {
		return nil, &NotFoundError{ID: id}
	}
	cutoff := r.now().Add(-historyMaxAge)
	var out []Sample
	for _, s := range r.history[id] {
		if s.At.After(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

// SystemPressure returns the mean load ratio across all registered
// valves, or 0 when none are registered.
func (r *Registry) SystemPressure() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.systemPressureLocked()
}

// CascadeRisk reports whether the topology is at risk of a pressure
// cascade: the mean ratio has crossed the cascade threshold, or at least
// half the valves are individually critical.
func (r *Registry) CascadeRisk() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.valves) == 0 {
		return false
	}
	if r.systemPressureLocked() >= r.cascade {
		return true
	}
	criticalCount := 0
	for _, v := range r.valves {
		if v.Status == datatypes.ValveCritical {
			criticalCount++
		}
	}
	return criticalCount*2 >= len(r.valves)
}

// =============================================================================
// Internal
// =============================================================================

func (r *Registry) systemPressureLocked() float64 {
	if len(r.valves) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range r.valves {
		sum += v.LoadRatio()
	}
	return sum / float64(len(r.valves))
}

func (r *Registry) statusFor(ratio float64) datatypes.ValveStatus {
	switch {
	case ratio >= r.critical:
		return datatypes.ValveCritical
	case ratio >= r.elevated:
		return datatypes.ValveElevated
	default:
		return datatypes.ValveNominal
	}
}
