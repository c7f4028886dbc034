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

import (
	"fmt"
	"time"
)

// =============================================================================
// Quarantine Entries
// =============================================================================

// FragmentState is the lifecycle state of a quarantined fragment.
//
// Legal transitions: Held -> Rehydrating -> Fossilized (return to source,
// archived with a rehydration note) and Held -> Fossilized (rehydration
// judged unsafe). Fossilized is terminal; entries are retained for audit
// and never deleted.
type FragmentState string

const (
	// FragmentHeld means the fragment sits in the overflow archive.
	FragmentHeld FragmentState = "held"

	// FragmentRehydrating means the origin valve is reabsorbing the
	// fragment; the entry still occupies archive capacity.
	FragmentRehydrating FragmentState = "rehydrating"

	// FragmentFossilized is terminal. The entry no longer occupies live
	// archive capacity but remains queryable forever.
	FragmentFossilized FragmentState = "fossilized"
)

// QuarantineEntry records one fragment routed to the overflow archive.
type QuarantineEntry struct {
	FragmentID  string        `json:"fragment_id"`
	OriginValve ValveID       `json:"origin_valve"`
	PayloadRef  string        `json:"payload_ref,omitempty"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
	SizeUnits   float64       `json:"size_units"`
	Pressure    float64       `json:"pressure"`
	State       FragmentState `json:"state"`
	Note        string        `json:"note,omitempty"`
}

// Active reports whether the entry still occupies live archive capacity.
func (q QuarantineEntry) Active() bool {
	return q.State == FragmentHeld || q.State == FragmentRehydrating
}

// Validate checks structural integrity of the entry.
func (q QuarantineEntry) Validate() error {
	if q.FragmentID == "" {
		return fmt.Errorf("quarantine entry missing fragment_id")
	}
	if q.OriginValve == "" {
		return fmt.Errorf("quarantine entry %s missing origin valve", q.FragmentID)
	}
	if q.SizeUnits <= 0 {
		return fmt.Errorf("quarantine entry %s requires positive size_units", q.FragmentID)
	}
	switch q.State {
	case FragmentHeld, FragmentRehydrating, FragmentFossilized:
		return nil
	default:
		return fmt.Errorf("quarantine entry %s has unknown state %q", q.FragmentID, q.State)
	}
}
