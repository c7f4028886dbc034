// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package escalation forwards conditions the controller cannot resolve
// on its own to an operator channel. Submission is fire-and-forget: the
// arbitration loop never waits on delivery, and a record whose delivery
// attempts are exhausted is dropped but audited.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jinterlante1206/AureaControl/services/controller/audit"
	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// =============================================================================
// Sink
// =============================================================================

// Config tunes the escalation sink.
//
//   - QueueBound: Pending records the sink buffers before shedding.
//   - MaxAttempts: Delivery attempts per record before it is dropped.
//   - BaseBackoff: Delay before the second attempt; doubles per retry.
//   - RatePerSecond: Sustained delivery rate cap toward the notifier.
type Config struct {
	QueueBound    int
	MaxAttempts   int
	BaseBackoff   time.Duration
	RatePerSecond float64
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		QueueBound:    64,
		MaxAttempts:   5,
		BaseBackoff:   500 * time.Millisecond,
		RatePerSecond: 2,
	}
}

// Sink queues escalations and delivers them in the background.
//
// # Thread Safety
//
//	Submit is safe for concurrent use. Start may be called once per
//	Stop cycle.
type Sink struct {
	notifier Notifier
	auditLog *audit.Log
	config   Config
	limiter  *rate.Limiter
	logger   *slog.Logger

	queue chan datatypes.EscalationRecord

	mu      sync.Mutex
	done    chan struct{}
	drained chan struct{}
	running bool
}

// NewSink creates a Sink delivering through notifier. auditLog records
// the fate of every escalation and must not be nil.
func NewSink(notifier Notifier, auditLog *audit.Log, config Config, logger *slog.Logger) *Sink {
	if config.QueueBound < 1 {
		config.QueueBound = 1
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		notifier: notifier,
		auditLog: auditLog,
		config:   config,
		limiter:  rate.NewLimiter(rate.Limit(config.RatePerSecond), config.QueueBound),
		logger:   logger,
		queue:    make(chan datatypes.EscalationRecord, config.QueueBound),
		done:     make(chan struct{}),
	}
}

// Submit queues an escalation for the given decision. It never blocks;
// when the queue is full the record is shed immediately and audited as
// dropped. The returned record reflects the state at submission.
func (s *Sink) Submit(decision datatypes.ArbitrationDecision, context map[string]string) datatypes.EscalationRecord {
	record := datatypes.EscalationRecord{
		ID:        uuid.NewString(),
		Decision:  decision,
		Context:   context,
		CreatedAt: time.Now().UTC(),
		Status:    datatypes.EscalationPending,
	}

	select {
	case s.queue <- record:
		s.auditLog.Append(audit.RecordEscalation,
			fmt.Sprintf("escalation %s queued for event %s", record.ID, decision.EventID), record)
	default:
		record.Status = datatypes.EscalationDropped
		s.auditLog.Append(audit.RecordEscalation,
			fmt.Sprintf("escalation %s shed, queue full", record.ID), record)
		s.logger.Error("escalation queue full, record shed",
			"escalation_id", record.ID, "event_id", decision.EventID)
	}
	return record
}

// Start begins the delivery worker. It returns an error if the sink is
// already running.
func (s *Sink) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("escalation sink is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.drained = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("escalation sink starting",
		"queue_bound", s.config.QueueBound,
		"max_attempts", s.config.MaxAttempts,
	)
	go s.runLoop(ctx)
	return nil
}

// Stop signals the worker to exit after its current delivery and waits
// for it. Safe to call multiple times.
func (s *Sink) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.done)
	s.running = false
	drained := s.drained
	s.mu.Unlock()

	<-drained
	s.logger.Info("escalation sink stopped")
}

// Pending returns the number of queued, undelivered records.
func (s *Sink) Pending() int {
	return len(s.queue)
}

// =============================================================================
// Delivery Worker
// =============================================================================

func (s *Sink) runLoop(ctx context.Context) {
	defer close(s.drained)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case record := <-s.queue:
			s.deliver(ctx, record)
		}
	}
}

// deliver attempts the record until it succeeds or attempts run out.
func (s *Sink) deliver(ctx context.Context, record datatypes.EscalationRecord) {
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		record.Attempts = attempt

		err := s.notifier.Notify(ctx, record)
		if err == nil {
			record.Status = datatypes.EscalationDelivered
			s.auditLog.Append(audit.RecordEscalation,
				fmt.Sprintf("escalation %s delivered after %d attempt(s)", record.ID, attempt), record)
			return
		}

		s.logger.Warn("escalation delivery failed",
			"escalation_id", record.ID,
			"attempt", attempt,
			"error", err,
		)
		if attempt < s.config.MaxAttempts {
			backoff := s.config.BaseBackoff * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-time.After(backoff):
			}
		}
	}

	record.Status = datatypes.EscalationDropped
	s.auditLog.Append(audit.RecordEscalation,
		fmt.Sprintf("escalation %s dropped after %d attempts", record.ID, record.Attempts), record)
	s.logger.Error("escalation dropped, delivery attempts exhausted",
		"escalation_id", record.ID,
		"event_id", record.Decision.EventID,
	)
}
