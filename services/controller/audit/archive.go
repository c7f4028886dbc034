// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	badger "github.com/dgraph-io/badger/v4"
)

// =============================================================================
// Badger Archive
// =============================================================================

const archiveKeyPrefix = "audit/"

// Archive persists audit records in BadgerDB so the trail survives
// restarts. Keys are the zero-padded record sequence numbers, which
// keeps iteration in append order.
//
// # Thread Safety
//
//	Safe for concurrent use; badger transactions provide isolation.
type Archive struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLogger adapts slog to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenArchive opens a persistent archive at path. The directory is
// created if missing.
func OpenArchive(path string, logger *slog.Logger) (*Archive, error) {
	if path == "" {
		return nil, errors.New("archive path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create archive directory %s: %w", path, err)
	}
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit archive: %w", err)
	}
	return &Archive{db: db, logger: logger}, nil
}

// OpenInMemoryArchive opens a throwaway archive for tests.
func OpenInMemoryArchive() (*Archive, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory audit archive: %w", err)
	}
	return &Archive{db: db, logger: slog.Default()}, nil
}

// Persist writes one record. Records are immutable, so an existing key
// is never overwritten with different content.
func (a *Archive) Persist(record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record %d: %w", record.Seq, err)
	}
	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(a.key(record.Seq), data)
	})
	if err != nil {
		return fmt.Errorf("persist audit record %d: %w", record.Seq, err)
	}
	return nil
}

// Replay iterates every archived record in sequence order. Iteration
// stops at the first fn error.
func (a *Archive) Replay(fn func(record Record) error) error {
	return a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(archiveKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record Record
				if err := json.Unmarshal(val, &record); err != nil {
					return fmt.Errorf("decode audit record %s: %w", it.Item().Key(), err)
				}
				return fn(record)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) key(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", archiveKeyPrefix, seq))
}
