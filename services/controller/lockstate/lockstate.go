// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lockstate holds the mitigation lock table. Locks are scoped
// (local, regional, global), carry a TTL unless global, and conflict
// according to a fixed matrix: a held global lock blocks every new
// acquisition, a regional lock blocks its own cluster, a local lock
// blocks its own target.
package lockstate

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

// DeniedError reports an acquisition that lost to a held lock. It is a
// typed failure, not a fault: callers route denied acquisitions to
// escalation rather than retrying.
type DeniedError struct {
	Requested datatypes.LockScope
	Blocking  datatypes.Lock
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("lock %s denied: blocked by %s lock %s held by %s",
		e.Requested.Key(), e.Blocking.Scope.Kind, e.Blocking.ID, e.Blocking.Holder)
}

// NotHeldError reports a release of a lock that is not in the table.
type NotHeldError struct {
	ID string
}

func (e *NotHeldError) Error() string {
	return fmt.Sprintf("lock %s is not held", e.ID)
}

// =============================================================================
// Lock Table
// =============================================================================

// AcquireRequest describes one attempted lock acquisition.
//
//   - TTL zero means "use the table default" for local and regional
//     scopes, and "untimed" for global scope.
type AcquireRequest struct {
	Scope  datatypes.LockScope
	Holder string
	Reason string
	TTL    time.Duration
}

// Table is the in-memory lock table.
//
// # Description
//
//	Acquire and Release never block. Expired locks are treated as free
//	at acquisition time and are also reaped by the background sweeper.
//	Acquiring the global lock does not disturb held regional or local
//	locks; they simply cannot be joined by new ones until the global
//	lock is released.
//
// # Thread Safety
//
//	All methods are safe for concurrent use.
type Table struct {
	mu         sync.Mutex
	locks      map[string]*datatypes.Lock // keyed by scope key
	byID       map[string]*datatypes.Lock
	clock      Clock
	defaultTTL time.Duration
	logger     *slog.Logger

	// OnDenied, when set, is invoked with the requested scope kind each
	// time an acquisition loses to a held lock. Set before first use.
	OnDenied func(scope datatypes.ScopeKind)
}

// NewTable creates a lock table. defaultTTL applies to local and
// regional acquisitions that do not name their own TTL.
func NewTable(clock Clock, defaultTTL time.Duration, logger *slog.Logger) *Table {
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		locks:      make(map[string]*datatypes.Lock),
		byID:       make(map[string]*datatypes.Lock),
		clock:      clock,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Acquire attempts to take a lock. It returns the granted lock, or a
// *DeniedError naming the blocking lock, or a validation error for a
// malformed request.
func (t *Table) Acquire(req AcquireRequest) (datatypes.Lock, error) {
	if err := req.Scope.Validate(); err != nil {
		return datatypes.Lock{}, err
	}
	if req.Holder == "" {
		return datatypes.Lock{}, fmt.Errorf("acquire %s: holder is required", req.Scope.Key())
	}
	if req.TTL < 0 {
		return datatypes.Lock{}, fmt.Errorf("acquire %s: ttl %s is negative", req.Scope.Key(), req.TTL)
	}

	ttl := req.TTL
	if ttl == 0 && req.Scope.Kind != datatypes.ScopeGlobal {
		ttl = t.defaultTTL
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.reapLocked(now)

	if blocking := t.conflictLocked(req.Scope); blocking != nil {
		if t.OnDenied != nil {
			t.OnDenied(req.Scope.Kind)
		}
		return datatypes.Lock{}, &DeniedError{Requested: req.Scope, Blocking: *blocking}
	}

	lock := datatypes.Lock{
		ID:         uuid.NewString(),
		Scope:      req.Scope,
		Holder:     datatypes.ValveID(req.Holder),
		Reason:     req.Reason,
		AcquiredAt: now,
		TTL:        ttl,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		lock.ExpiresAt = &expires
	}
	t.locks[req.Scope.Key()] = &lock
	t.byID[lock.ID] = &lock

	t.logger.Info("lock acquired",
		"lock_id", lock.ID,
		"scope", lock.Scope.Key(),
		"holder", lock.Holder,
		"ttl", ttl.String(),
	)
	return lock, nil
}

// Release removes a held lock by ID. It returns the released lock, or a
// *NotHeldError if no such lock is held.
func (t *Table) Release(id string) (datatypes.Lock, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.byID[id]
	if !ok {
		return datatypes.Lock{}, &NotHeldError{ID: id}
	}
	t.removeLocked(lock)
	t.logger.Info("lock released",
		"lock_id", lock.ID,
		"scope", lock.Scope.Key(),
		"holder", lock.Holder,
	)
	return *lock, nil
}

// ReleaseGlobal removes the global lock if one is held. Operator
// endpoints use this when the lock carries no TTL.
func (t *Table) ReleaseGlobal() (datatypes.Lock, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[datatypes.GlobalScope().Key()]
	if !ok {
		return datatypes.Lock{}, &NotHeldError{ID: "global"}
	}
	t.removeLocked(lock)
	t.logger.Info("global lock released", "lock_id", lock.ID, "holder", lock.Holder)
	return *lock, nil
}

// Get returns a held lock by ID.
func (t *Table) Get(id string) (datatypes.Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.byID[id]
	if !ok {
		return datatypes.Lock{}, false
	}
	return *lock, true
}

// GlobalHeld reports whether an unexpired global lock is held.
func (t *Table) GlobalHeld() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[datatypes.GlobalScope().Key()]
	return ok && !lock.Expired(t.clock.Now())
}

// List returns all held locks ordered by scope key. Expired locks are
// reaped first.
func (t *Table) List() []datatypes.Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reapLocked(t.clock.Now())

	out := make([]datatypes.Lock, 0, len(t.locks))
	for _, lock := range t.locks {
		out = append(out, *lock)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope.Key() < out[j].Scope.Key() })
	return out
}

// SweepExpired removes every expired lock and returns them. The sweeper
// calls this on a tick so expiry is observable without traffic.
func (t *Table) SweepExpired() []datatypes.Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reapLocked(t.clock.Now())
}

// =============================================================================
// Internal
// =============================================================================

// conflictLocked returns the lock blocking scope, or nil if free.
func (t *Table) conflictLocked(scope datatypes.LockScope) *datatypes.Lock {
	if global, ok := t.locks[datatypes.GlobalScope().Key()]; ok {
		return global
	}
	if scope.Kind == datatypes.ScopeGlobal {
		// No global lock held. Regional and local locks do not block a
		// global acquisition; they remain held underneath it.
		return nil
	}
	if held, ok := t.locks[scope.Key()]; ok {
		return held
	}
	return nil
}

func (t *Table) reapLocked(now time.Time) []datatypes.Lock {
	var reaped []datatypes.Lock
	for _, lock := range t.locks {
		if lock.Expired(now) {
			reaped = append(reaped, *lock)
			t.removeLocked(lock)
			t.logger.Info("lock released",
				"lock_id", lock.ID,
				"scope", lock.Scope.Key(),
				"holder", lock.Holder,
				"reason", "ttl-expired",
			)
		}
	}
	return reaped
}

func (t *Table) removeLocked(lock *datatypes.Lock) {
	delete(t.locks, lock.Scope.Key())
	delete(t.byID, lock.ID)
}
