// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lockstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jinterlante1206/AureaControl/services/controller/datatypes"
)

// =============================================================================
// Expiry Sweeper
// =============================================================================

// ExpiryFunc is invoked once per lock the sweeper reaps, outside the
// table lock. Callers use it to audit the expiry.
type ExpiryFunc func(lock datatypes.Lock)

// Sweeper periodically reaps expired locks from a Table.
//
// # Description
//
//	Uses the ticker + done channel pattern. Each tick calls
//	Table.SweepExpired and reports reaped locks through the ExpiryFunc.
//
// # Thread Safety
//
//	Start and Stop are safe for concurrent use. Only one sweep loop
//	runs at a time.
type Sweeper struct {
	table    *Table
	interval time.Duration
	onExpiry ExpiryFunc
	logger   *slog.Logger

	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewSweeper creates a sweeper over table. onExpiry may be nil.
func NewSweeper(table *Table, interval time.Duration, onExpiry ExpiryFunc, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		table:    table,
		interval: interval,
		onExpiry: onExpiry,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep loop. It returns an error if the
// sweeper is already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("lock expiry sweeper starting", "interval", s.interval.String())
	go s.runLoop(ctx)
	return nil
}

// Stop signals the sweep loop to exit. Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.done)
	s.running = false
	s.logger.Info("lock expiry sweeper stopping")
}

// RunNow performs one sweep immediately and returns the reaped locks.
func (s *Sweeper) RunNow() []datatypes.Lock {
	reaped := s.table.SweepExpired()
	for _, lock := range reaped {
		if s.onExpiry != nil {
			s.onExpiry(lock)
		}
	}
	return reaped
}

func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if reaped := s.RunNow(); len(reaped) > 0 {
				s.logger.Info("swept expired locks", "count", len(reaped))
			}
		}
	}
}
