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
// Lock Scopes
// =============================================================================

// ScopeKind is the breadth of a lock.
type ScopeKind string

const (
	// ScopeLocal blocks output for a single named target only.
	ScopeLocal ScopeKind = "local"

	// ScopeRegional blocks a topology cluster. Regional locks on the same
	// cluster are mutually exclusive.
	ScopeRegional ScopeKind = "regional"

	// ScopeGlobal is the single arbitration authority. At most one Global
	// lock may be held at any instant, and while it is held no other lock
	// of any scope may be acquired.
	ScopeGlobal ScopeKind = "global"
)

// LockScope identifies what a lock covers. Target is the local target
// name for ScopeLocal, the cluster ID for ScopeRegional, and empty for
// ScopeGlobal.
//
// Clusters are opaque IDs: two Regional scopes overlap iff their targets
// are equal. No partial-overlap model exists in this topology.
type LockScope struct {
	Kind   ScopeKind `json:"kind"`
	Target string    `json:"target,omitempty"`
}

// GlobalScope returns the singleton Global scope.
func GlobalScope() LockScope { return LockScope{Kind: ScopeGlobal} }

// RegionalScope returns a Regional scope for the given cluster.
func RegionalScope(clusterID string) LockScope {
	return LockScope{Kind: ScopeRegional, Target: clusterID}
}

// LocalScope returns a Local scope for the given target.
func LocalScope(target string) LockScope {
	return LockScope{Kind: ScopeLocal, Target: target}
}

// Key returns the canonical map key for this scope.
func (s LockScope) Key() string {
	if s.Kind == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return fmt.Sprintf("%s/%s", s.Kind, s.Target)
}

// Validate checks that the scope is well formed.
func (s LockScope) Validate() error {
	switch s.Kind {
	case ScopeGlobal:
		if s.Target != "" {
			return fmt.Errorf("global scope must not name a target")
		}
	case ScopeRegional, ScopeLocal:
		if s.Target == "" {
			return fmt.Errorf("%s scope requires a target", s.Kind)
		}
	default:
		return fmt.Errorf("unknown lock scope kind %q", s.Kind)
	}
	return nil
}

// =============================================================================
// Locks
// =============================================================================

// Lock is an active suppression or expansion lock.
//
// # Description
//
// Lock records are owned exclusively by the lock state machine. TTL of
// zero means untimed: the lock requires an explicit release. Untimed
// locks are only legal at Global scope (operator-released); Regional and
// Local acquisitions must carry a TTL so a stuck holder cannot wedge the
// system.
type Lock struct {
	ID         string        `json:"id"`
	Scope      LockScope     `json:"scope"`
	Holder     ValveID       `json:"holder"`
	Reason     string        `json:"reason"`
	AcquiredAt time.Time     `json:"acquired_at"`
	TTL        time.Duration `json:"ttl,omitempty"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
}

// Expired reports whether the lock's TTL has elapsed at the given time.
// Untimed locks never expire.
func (l Lock) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// Validate checks structural integrity of the lock record.
func (l Lock) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("lock missing id")
	}
	if err := l.Scope.Validate(); err != nil {
		return fmt.Errorf("lock %s: %w", l.ID, err)
	}
	if l.Holder == "" {
		return fmt.Errorf("lock %s missing holder", l.ID)
	}
	if l.TTL < 0 {
		return fmt.Errorf("lock %s has negative ttl", l.ID)
	}
	if l.TTL == 0 && l.Scope.Kind != ScopeGlobal {
		return fmt.Errorf("lock %s: %s locks require a ttl", l.ID, l.Scope.Kind)
	}
	return nil
}
