// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit records everything the controller does. The log is
// append-only: records are never rewritten or removed while the process
// lives, and an optional archive persists them across restarts.
package audit

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Records
// =============================================================================

// RecordKind classifies an audit record.
type RecordKind string

const (
	RecordEvent      RecordKind = "event"
	RecordDecision   RecordKind = "decision"
	RecordLock       RecordKind = "lock"
	RecordQuarantine RecordKind = "quarantine"
	RecordEscalation RecordKind = "escalation"
)

// Record is one immutable audit entry. Detail carries the subject
// serialized as JSON so the log stays queryable without importing every
// domain type.
type Record struct {
	Seq     uint64          `json:"seq"`
	ID      string          `json:"id"`
	Kind    RecordKind      `json:"kind"`
	Summary string          `json:"summary"`
	Detail  json.RawMessage `json:"detail,omitempty"`
	At      time.Time       `json:"at"`
}

// Sink receives records as they are appended. The badger archive
// implements this.
type Sink interface {
	Persist(record Record) error
}

// =============================================================================
// Log
// =============================================================================

// Log is the in-memory append-only audit trail.
//
// # Thread Safety
//
//	All methods are safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	records []Record
	seq     uint64
	sink    Sink
	logger  *slog.Logger
}

// NewLog creates a Log. sink may be nil for memory-only operation.
func NewLog(sink Sink, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{sink: sink, logger: logger}
}

// Append records one entry. detail is serialized to JSON; a marshal
// failure is logged and the record kept without detail, because the
// audit trail must not lose the fact that something happened.
func (l *Log) Append(kind RecordKind, summary string, detail any) Record {
	var raw json.RawMessage
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			l.logger.Error("audit detail marshal failed", "kind", kind, "error", err)
		} else {
			raw = data
		}
	}

	l.mu.Lock()
	l.seq++
	record := Record{
		Seq:     l.seq,
		ID:      uuid.NewString(),
		Kind:    kind,
		Summary: summary,
		Detail:  raw,
		At:      time.Now().UTC(),
	}
	l.records = append(l.records, record)
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		if err := sink.Persist(record); err != nil {
			l.logger.Error("audit archive write failed", "seq", record.Seq, "error", err)
		}
	}
	return record
}

// Range returns records with Seq in [from, to], oldest first. A zero
// `to` means "through the newest record".
func (l *Log) Range(from, to uint64) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if to == 0 || to > l.seq {
		to = l.seq
	}
	var out []Record
	for _, r := range l.records {
		if r.Seq >= from && r.Seq <= to {
			out = append(out, r)
		}
	}
	return out
}

// RangeTime returns records whose At falls in [from, to], oldest
// first. A zero `to` means "through the newest record".
func (l *Log) RangeTime(from, to time.Time) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Record
	for _, r := range l.records {
		if r.At.Before(from) {
			continue
		}
		if !to.IsZero() && r.At.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Recent returns the newest n records, oldest first.
func (l *Log) Recent(n int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || len(l.records) == 0 {
		return nil
	}
	if n > len(l.records) {
		n = len(l.records)
	}
	out := make([]Record, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// Len returns the number of records appended so far.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
