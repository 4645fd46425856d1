// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store implements the conflict-aware cache that sits between
// fetching and streaming during a reversion run.
//
// The cache maps feature id to (target version, full history). A feature id
// may be inserted at most once per run: a second Put for the same id fails
// with *DuplicateFeatureError, because a feature touched by two deltas in the
// requested range cannot be reverted by a single inverse edit.
//
// # Backends
//
//   - badger (default): disk-backed BadgerDB scratch directory.
//   - sqlite: disk-backed SQLite file with a primary-key constraint on the id.
//   - memory: in-process map, for small runs and tests.
//
// All backends iterate entries ordered by (delta, position within delta),
// which is the order the deltas were committed in, independent of the order
// concurrent fetches completed.
//
// # Lifecycle
//
// Open allocates a fresh, uniquely named backing store. Close releases it and
// deletes any backing files. Close must be called exactly once per run,
// whether the run succeeded or not.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AleutianAI/hecate-revert/pkg/feature"
	"github.com/google/uuid"
)

// Sentinel errors for cache operations.
var (
	// ErrDuplicateFeature is matched by every *DuplicateFeatureError.
	ErrDuplicateFeature = errors.New("feature exists multiple times across deltas")

	// ErrInvalidEntry is returned when an entry has a negative delta or index.
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrUnknownBackend is returned by Open for an unrecognised backend name.
	ErrUnknownBackend = errors.New("unknown cache backend")

	// ErrClosed is returned when a closed store is used.
	ErrClosed = errors.New("cache store is closed")
)

// DuplicateFeatureError reports a second insertion of the same feature id.
type DuplicateFeatureError struct {
	// FeatureID is the feature that appeared twice.
	FeatureID int64

	// FirstDelta is the delta whose entry is already cached. Zero when unknown.
	FirstDelta int64

	// Delta is the delta whose insertion was refused.
	Delta int64
}

func (e *DuplicateFeatureError) Error() string {
	deltas := fmt.Sprintf("delta %d", e.Delta)
	if e.FirstDelta > 0 {
		deltas = fmt.Sprintf("%d and %d", e.FirstDelta, e.Delta)
	}
	return fmt.Sprintf("feature %d exists multiple times across deltas (%s); "+
		"reversion is not supported when a feature is edited in more than one delta of the range",
		e.FeatureID, deltas)
}

// Is reports whether target is ErrDuplicateFeature.
func (e *DuplicateFeatureError) Is(target error) bool {
	return target == ErrDuplicateFeature
}

// Entry is one cached feature.
type Entry struct {
	// FeatureID keys the entry.
	FeatureID int64 `json:"id"`

	// Delta is the delta that introduced TargetVersion.
	Delta int64 `json:"delta"`

	// Index is the position of the feature within Delta.
	Index int `json:"index"`

	// TargetVersion is the version the reverted range introduced.
	TargetVersion int `json:"target_version"`

	// History is the feature's full history as fetched.
	History feature.History `json:"history"`
}

func (e Entry) validate() error {
	if e.Delta < 0 || e.Index < 0 {
		return fmt.Errorf("%w: feature %d at delta %d index %d", ErrInvalidEntry, e.FeatureID, e.Delta, e.Index)
	}
	return nil
}

// Store is the conflict-aware cache.
//
// Put is safe for concurrent use; the uniqueness check and the insert happen
// atomically. All must not run concurrently with Put.
type Store interface {
	// Put inserts e, or returns *DuplicateFeatureError if e.FeatureID is
	// already cached.
	Put(ctx context.Context, e Entry) error

	// All yields every entry exactly once, ordered by (Delta, Index).
	// Iteration stops at the first error, which is yielded with a zero Entry.
	All(ctx context.Context) iter.Seq2[Entry, error]

	// Len returns the number of cached entries.
	Len() int

	// Path returns the backing file or directory, or "" for memory stores.
	Path() string

	// Close releases all resources and deletes the backing storage.
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendBadger Backend = "badger"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Config selects and places a Store.
type Config struct {
	// Backend defaults to BackendBadger.
	Backend Backend

	// Dir is where backing files are created. Defaults to os.TempDir().
	Dir string

	// Logger receives backend diagnostics. May be nil.
	Logger *slog.Logger
}

// Open allocates a new, empty Store.
//
// Description:
//
//	Backing storage is named revert.<uuid> (a directory for badger, a
//	.sqlite file for sqlite) inside cfg.Dir so concurrent runs never share
//	a cache.
//
// Outputs:
//
//	Store - The empty store. Caller must Close it.
//	error - ErrUnknownBackend, or a backend open failure.
func Open(cfg Config) (Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	name := "revert." + uuid.NewString()

	switch cfg.Backend {
	case "", BackendBadger:
		s, err := OpenBadger(filepath.Join(dir, name), logger)
		if err != nil {
			return nil, fmt.Errorf("open badger cache: %w", err)
		}
		return s, nil
	case BackendSQLite:
		s, err := OpenSQLite(filepath.Join(dir, name+".sqlite"), logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return s, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// ParseBackend validates a backend name from configuration.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case "":
		return BackendBadger, nil
	case BackendBadger, BackendSQLite, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}
