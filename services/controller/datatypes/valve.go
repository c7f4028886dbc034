// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "fmt"

// =============================================================================
// Valve State
// =============================================================================

// ValveStatus is the registry's coarse health rating for a valve.
type ValveStatus string

const (
	// ValveNominal means load is below the elevated threshold.
	ValveNominal ValveStatus = "nominal"

	// ValveElevated means load is at or above elevatedRatio of capacity.
	ValveElevated ValveStatus = "elevated"

	// ValveCritical means load is at or above criticalRatio of capacity.
	ValveCritical ValveStatus = "critical"
)

// ValveState is the registry's record for one named valve.
//
// Owned exclusively by the Valve Registry; mutated only through
// Registry.Report in response to events.
type ValveState struct {
	ID          ValveID     `json:"id"`
	CurrentLoad float64     `json:"current_load"`
	Capacity    float64     `json:"capacity"`
	Status      ValveStatus `json:"status"`
}

// LoadRatio returns CurrentLoad / Capacity, or 0 when capacity is unset.
func (v ValveState) LoadRatio() float64 {
	if v.Capacity <= 0 {
		return 0
	}
	return v.CurrentLoad / v.Capacity
}

// Validate checks structural integrity of the valve state.
func (v ValveState) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("valve state missing id")
	}
	if v.Capacity <= 0 {
		return fmt.Errorf("valve %s requires positive capacity", v.ID)
	}
	if v.CurrentLoad < 0 {
		return fmt.Errorf("valve %s has negative load %f", v.ID, v.CurrentLoad)
	}
	switch v.Status {
	case ValveNominal, ValveElevated, ValveCritical:
		return nil
	default:
		return fmt.Errorf("valve %s has unknown status %q", v.ID, v.Status)
	}
}
