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
// Arbitration Decisions
// =============================================================================

// DecisionOutcome is the arbitration result for one event.
type DecisionOutcome string

const (
	// OutcomeGranted means a lock was acquired (or the event was a
	// read-only audit probe).
	OutcomeGranted DecisionOutcome = "granted"

	// OutcomeDenied means a lock request lost to an existing holder and
	// the denial is acceptable (caller may retry later).
	OutcomeDenied DecisionOutcome = "denied"

	// OutcomeEscalated means automated remediation is insufficient; the
	// condition was handed to the escalation sink.
	OutcomeEscalated DecisionOutcome = "escalated"

	// OutcomeQuarantined means the event's payload was routed to the
	// quarantine ledger.
	OutcomeQuarantined DecisionOutcome = "quarantined"
)

// ArbitrationDecision is the append-only audit record for one processed
// event. Never mutated after creation.
type ArbitrationDecision struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	Source    ValveID         `json:"source"`
	EventKind EventKind       `json:"event_kind"`
	Outcome   DecisionOutcome `json:"outcome"`
	Lock      *Lock           `json:"lock,omitempty"`
	Rationale string          `json:"rationale"`
	DecidedAt time.Time       `json:"decided_at"`
}

// Validate checks structural integrity of the decision record.
func (d ArbitrationDecision) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("decision missing id")
	}
	if d.EventID == "" {
		return fmt.Errorf("decision %s missing event_id", d.ID)
	}
	switch d.Outcome {
	case OutcomeGranted, OutcomeDenied, OutcomeEscalated, OutcomeQuarantined:
	default:
		return fmt.Errorf("decision %s has unknown outcome %q", d.ID, d.Outcome)
	}
	if d.Rationale == "" {
		return fmt.Errorf("decision %s missing rationale", d.ID)
	}
	return nil
}

// =============================================================================
// Escalation Records
// =============================================================================

// EscalationStatus is the delivery fate of an escalation record.
type EscalationStatus string

const (
	// EscalationPending means delivery has not been attempted yet.
	EscalationPending EscalationStatus = "pending"

	// EscalationDelivered means the operator channel acknowledged the
	// notification.
	EscalationDelivered EscalationStatus = "delivered"

	// EscalationDropped means all delivery attempts were exhausted; the
	// record is retained in the audit log, never silently lost.
	EscalationDropped EscalationStatus = "dropped"
)

// EscalationRecord is one condition forwarded to the external operator.
type EscalationRecord struct {
	ID        string              `json:"id"`
	Decision  ArbitrationDecision `json:"decision"`
	Context   map[string]string   `json:"context,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	Attempts  int                 `json:"attempts"`
	Status    EscalationStatus    `json:"status"`
}

// Validate checks structural integrity of the escalation record.
func (r EscalationRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("escalation record missing id")
	}
	if err := r.Decision.Validate(); err != nil {
		return fmt.Errorf("escalation record %s: %w", r.ID, err)
	}
	switch r.Status {
	case EscalationPending, EscalationDelivered, EscalationDropped:
		return nil
	default:
		return fmt.Errorf("escalation record %s has unknown status %q", r.ID, r.Status)
	}
}
