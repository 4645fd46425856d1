// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens and manages BadgerDB instances used as scratch
// storage.
//
// A scratch database lives in its own directory for the duration of one
// operation and is removed afterwards. Destroy closes the database and
// deletes that directory; Close only closes it.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Required.
	Path string

	// SyncWrites fsyncs every commit. Scratch databases leave this off.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// ValueLogFileSize caps each value log file in bytes.
	// Zero keeps BadgerDB's default.
	ValueLogFileSize int64
}

// ScratchConfig returns the configuration used for per-run scratch storage
// rooted at path.
//
// Description:
//
//	Returns a Config with:
//	- SyncWrites disabled (the data does not outlive the process)
//	- 64 MiB value log files so small runs stay small on disk
//
// Outputs:
//
//	Config - Ready-to-use scratch configuration
func ScratchConfig(path string) Config {
	return Config{
		Path:             path,
		SyncWrites:       false,
		ValueLogFileSize: 64 << 20,
	}
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
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB wraps a BadgerDB instance with lifecycle management.
type DB struct {
	*badger.DB
	path string

	closeOnce sync.Once
	closeErr  error
}

// OpenDB opens a BadgerDB with the given configuration.
//
// Description:
//
//	Opens a BadgerDB database at the configured path. Creates the
//	directory if it doesn't exist.
//
// Inputs:
//
//	cfg - Database configuration. Path is required.
//
// Outputs:
//
//	*DB - The opened database. Caller must call Close or Destroy.
//	error - Non-nil if path is invalid or database cannot be opened.
//
// Thread Safety: The returned *DB is safe for concurrent use.
func OpenDB(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("path is required")
	}
	if err := os.MkdirAll(cfg.Path, 0750); err != nil {
		return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(cfg.ValueLogFileSize)
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
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &DB{
		DB:   db,
		path: cfg.Path,
	}, nil
}

// Close closes the database. Safe to call multiple times.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.DB.Close()
	})
	return d.closeErr
}

// Destroy closes the database and removes its directory.
//
// Description:
//
//	The directory is removed even when Close fails, so a scratch database
//	never outlives its owner.
//
// Outputs:
//
//	error - The first of the close and removal errors, if any.
func (d *DB) Destroy() error {
	closeErr := d.Close()
	removeErr := CleanupDir(d.path)
	if closeErr != nil {
		return fmt.Errorf("close badger database: %w", closeErr)
	}
	if removeErr != nil {
		return fmt.Errorf("remove badger directory: %w", removeErr)
	}
	return nil
}

// Path returns the database directory.
func (d *DB) Path() string {
	return d.path
}

// WithTxn executes fn within a read-write transaction.
//
// Description:
//
//	Opens a read-write transaction, executes fn, and commits if fn returns
//	nil. The transaction is discarded on error. A commit that loses an
//	optimistic-concurrency race returns badger.ErrConflict; callers that
//	need check-and-set semantics should retry on it.
//
// Thread Safety: Safe for concurrent use.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}

	return txn.Commit()
}

// WithReadTxn executes fn within a read-only transaction.
//
// Thread Safety: Safe for concurrent use.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// CleanupDir removes a database directory and all its contents.
// Empty string is a no-op.
func CleanupDir(path string) error {
	if path == "" {
		return nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	return os.RemoveAll(absPath)
}
