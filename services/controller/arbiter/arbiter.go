// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package arbiter decides what happens to each pressure event. The
// engine is driven by a single consumer goroutine, so decisions for a
// given event sequence are deterministic: the first event to win a lock
// keeps it, later contenders are denied or escalated.
package arbiter

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
	"github.com/jinterlante1206/AureaControl/services/controller/ledger"
	"github.com/jinterlante1206/AureaControl/services/controller/lockstate"
)

// =============================================================================
// Engine
// =============================================================================

// Config tunes the engine's decision thresholds.
//
//   - ClusterActionable: Minimum cluster magnitude that warrants a
//     regional lock. The boundary is inclusive: a magnitude exactly at
//     the threshold is actionable. Below it the event is denied as noise.
//   - QuarantineAlarm: Ledger utilization at or above which a successful
//     quarantine still raises an escalation.
type Config struct {
	ClusterActionable float64
	QuarantineAlarm   float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		ClusterActionable: 0.8,
		QuarantineAlarm:   0.95,
	}
}

// Result is the outcome of arbitrating one event.
//
//   - Escalate is true whenever the event must reach the escalation
//     sink. That covers every Escalated decision plus quarantines that
//     landed while the ledger is critically full.
type Result struct {
	Decision datatypes.ArbitrationDecision
	Escalate bool
}

// Engine applies the arbitration rules against the lock table and the
// quarantine ledger.
//
// # Thread Safety
//
//	Decide must be called from a single goroutine. The lock table and
//	ledger it mutates are themselves safe for concurrent readers.
type Engine struct {
	locks  *lockstate.Table
	ledger *ledger.Ledger
	config Config
	now    func() time.Time
}

// New creates an Engine over the given lock table and ledger.
func New(locks *lockstate.Table, led *ledger.Ledger, config Config) *Engine {
	return &Engine{
		locks:  locks,
		ledger: led,
		config: config,
		now:    time.Now,
	}
}

// Decide arbitrates one event. It never returns an error for lock
// denials or a full quarantine; those are outcomes, recorded in the
// decision. An error means the event itself was malformed.
func (e *Engine) Decide(ev datatypes.PressureEvent) (Result, error) {
	if err := ev.Validate(); err != nil {
		return Result{}, fmt.Errorf("arbitrate event: %w", err)
	}

	switch ev.Kind {
	case datatypes.EventOverload:
		return e.decideOverload(ev), nil
	case datatypes.EventCluster:
		return e.decideCluster(ev), nil
	case datatypes.EventSaturation:
		return e.decideSaturation(ev), nil
	case datatypes.EventDrift:
		return e.decideDrift(ev), nil
	case datatypes.EventManualAudit:
		return e.decideManualAudit(ev), nil
	default:
		return Result{}, fmt.Errorf("arbitrate event %s: unknown kind %q", ev.ID, ev.Kind)
	}
}

// =============================================================================
// Per-Kind Rules
// =============================================================================

// decideOverload always escalates. Overload is the bus reporting its
// own saturation; no lock can relieve it, so it goes straight to the
// operator without touching lock state.
func (e *Engine) decideOverload(ev datatypes.PressureEvent) Result {
	return e.escalated(ev, fmt.Sprintf("event bus overloaded, magnitude %.2f", ev.Magnitude))
}

// decideCluster contains a topology bloom with a regional lock.
func (e *Engine) decideCluster(ev datatypes.PressureEvent) Result {
	if ev.Magnitude < e.config.ClusterActionable {
		return e.denied(ev, fmt.Sprintf("bloom density %.2f below actionable threshold %.2f",
			ev.Magnitude, e.config.ClusterActionable))
	}
	lock, err := e.locks.Acquire(lockstate.AcquireRequest{
		Scope:  datatypes.RegionalScope(ev.ClusterID),
		Holder: string(ev.Source),
		Reason: fmt.Sprintf("cluster bloom density %.2f", ev.Magnitude),
	})
	if err != nil {
		var denied *lockstate.DeniedError
		if errors.As(err, &denied) {
			if denied.Blocking.Scope.Kind == datatypes.ScopeGlobal {
				return e.escalated(ev, "regional lock unavailable under global lock")
			}
			return e.denied(ev, "cluster already under regional mitigation")
		}
		return e.escalated(ev, fmt.Sprintf("lock acquisition failed: %v", err))
	}
	return e.granted(ev, lock, "regional containment applied")
}

// decideSaturation routes the fragment into quarantine.
func (e *Engine) decideSaturation(ev datatypes.PressureEvent) Result {
	entry := datatypes.QuarantineEntry{
		FragmentID:  ev.ID,
		OriginValve: ev.Source,
		PayloadRef:  ev.PayloadRef,
		SizeUnits:   ev.SizeUnits,
		Pressure:    ev.Magnitude,
	}
	if err := e.ledger.Enqueue(entry); err != nil {
		var full *ledger.CapacityExceededError
		if errors.As(err, &full) {
			return e.escalated(ev, fmt.Sprintf(
				"quarantine refused fragment: %.0f units requested, %.0f of %.0f in use",
				full.SizeUnits, full.Occupancy, full.Capacity))
		}
		return e.escalated(ev, fmt.Sprintf("quarantine enqueue failed: %v", err))
	}

	result := e.decide(ev, datatypes.OutcomeQuarantined, nil,
		fmt.Sprintf("fragment held, %.0f units", ev.SizeUnits))
	if e.ledger.Utilization() >= e.config.QuarantineAlarm {
		result.Escalate = true
		result.Decision.Rationale += "; quarantine critically full"
	}
	return result
}

// decideDrift freezes the topology with the global lock. Exactly one
// drift event can hold it; a concurrent drift is the signature of
// conflicting topology views and goes straight to escalation.
func (e *Engine) decideDrift(ev datatypes.PressureEvent) Result {
	lock, err := e.locks.Acquire(lockstate.AcquireRequest{
		Scope:  datatypes.GlobalScope(),
		Holder: string(ev.Source),
		Reason: fmt.Sprintf("topology drift magnitude %.2f", ev.Magnitude),
	})
	if err != nil {
		var denied *lockstate.DeniedError
		if errors.As(err, &denied) {
			if denied.Blocking.Scope.Kind == datatypes.ScopeGlobal {
				return e.escalated(ev, "two simultaneous drift events")
			}
		}
		return e.escalated(ev, fmt.Sprintf("global lock acquisition failed: %v", err))
	}
	return e.granted(ev, lock, "global freeze engaged")
}

// decideManualAudit records the request without touching any state.
func (e *Engine) decideManualAudit(ev datatypes.PressureEvent) Result {
	return e.decide(ev, datatypes.OutcomeGranted, nil, "manual audit acknowledged")
}

// =============================================================================
// Decision Builders
// =============================================================================

func (e *Engine) granted(ev datatypes.PressureEvent, lock datatypes.Lock, rationale string) Result {
	return e.decide(ev, datatypes.OutcomeGranted, &lock, rationale)
}

func (e *Engine) denied(ev datatypes.PressureEvent, rationale string) Result {
	return e.decide(ev, datatypes.OutcomeDenied, nil, rationale)
}

func (e *Engine) escalated(ev datatypes.PressureEvent, rationale string) Result {
	result := e.decide(ev, datatypes.OutcomeEscalated, nil, rationale)
	result.Escalate = true
	return result
}

func (e *Engine) decide(ev datatypes.PressureEvent, outcome datatypes.DecisionOutcome,
	lock *datatypes.Lock, rationale string) Result {
	return Result{
		Decision: datatypes.ArbitrationDecision{
			ID:        uuid.NewString(),
			EventID:   ev.ID,
			Source:    ev.Source,
			EventKind: ev.Kind,
			Outcome:   outcome,
			Lock:      lock,
			Rationale: rationale,
			DecidedAt: e.now().UTC(),
		},
	}
}
