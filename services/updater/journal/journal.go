// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal persists finished operation records in an embedded
// BadgerDB so the panel can show update/rollback history across restarts.
//
// Only terminal records are written: the journal never sees an operation
// that is still running. Keys are zero-padded nanosecond timestamps, so
// lexical key order is chronological order and "most recent first" is a
// reverse iteration.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
)

const keyPrefix = "op:"

// =============================================================================
// Configuration
// =============================================================================

// Config holds configuration for the operation journal.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites enables synchronous writes. The journal is written once per
	// operation, so the durability cost is negligible.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. If nil, BadgerDB's
	// logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production settings for the given directory.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns settings for tests: no disk I/O, no sync.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
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
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Interface Definition
// =============================================================================

// Journal stores finished operation records.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Journal interface {
	// Append persists one finished operation record.
	Append(ctx context.Context, record datatypes.OperationRecord) error

	// Recent returns up to limit records, most recent first.
	Recent(ctx context.Context, limit int) ([]datatypes.OperationRecord, error)

	// Close releases the underlying store.
	Close() error
}

// =============================================================================
// Implementation
// =============================================================================

// BadgerJournal is the production Journal backed by an embedded BadgerDB.
type BadgerJournal struct {
	db *badger.DB
}

// Open creates and opens a journal with the given configuration.
func Open(cfg Config) (*BadgerJournal, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent journal")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create journal directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	return &BadgerJournal{db: db}, nil
}

// Append persists one finished operation record.
func (j *BadgerJournal) Append(ctx context.Context, record datatypes.OperationRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	ts := record.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	key := fmt.Sprintf("%s%020d", keyPrefix, ts.UnixNano())

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal operation record: %w", err)
	}

	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Recent returns up to limit records, most recent first.
//
// # Description
//
// Iterates the key space in reverse; zero-padded nanosecond keys make the
// reverse lexical order the reverse chronological order. A limit <= 0
// defaults to 50. Records that fail to unmarshal are skipped, not fatal.
func (j *BadgerJournal) Recent(ctx context.Context, limit int) ([]datatypes.OperationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}

	records := make([]datatypes.OperationRecord, 0, limit)
	err := j.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = true
		iterOpts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// Reverse iteration seeks to the last possible key under the prefix.
		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.Valid() && len(records) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record datatypes.OperationRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return nil
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return records, nil
}

// Close releases the underlying BadgerDB.
func (j *BadgerJournal) Close() error {
	return j.db.Close()
}

// Compile-time interface check
var _ Journal = (*BadgerJournal)(nil)

// =============================================================================
// Mock Implementation for Testing
// =============================================================================

// MockJournal is an in-process test double for Journal.
type MockJournal struct {
	// AppendFunc, when set, overrides the default recording behavior.
	AppendFunc func(ctx context.Context, record datatypes.OperationRecord) error

	// Records holds every appended record in insertion order.
	Records []datatypes.OperationRecord
}

func (m *MockJournal) Append(ctx context.Context, record datatypes.OperationRecord) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, record)
	}
	m.Records = append(m.Records, record)
	return nil
}

func (m *MockJournal) Recent(ctx context.Context, limit int) ([]datatypes.OperationRecord, error) {
	if limit <= 0 || limit > len(m.Records) {
		limit = len(m.Records)
	}
	out := make([]datatypes.OperationRecord, 0, limit)
	for i := len(m.Records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.Records[i])
	}
	return out, nil
}

func (m *MockJournal) Close() error { return nil }

var _ Journal = (*MockJournal)(nil)
