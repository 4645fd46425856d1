// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/AleutianAI/hecate-revert/services/storage/badger"
	badgerdb "github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	id/<feature id, 8 bytes BE>                      -> first delta, 8 bytes BE
//	entry/<delta, 8 bytes BE><index, 4 bytes BE>     -> JSON Entry
var (
	idPrefix    = []byte("id/")
	entryPrefix = []byte("entry/")
)

// maxPutAttempts bounds retries when concurrent transactions conflict.
const maxPutAttempts = 8

// BadgerStore is a Store backed by a BadgerDB scratch directory.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
	count  atomic.Int64
	closed atomic.Bool
}

// OpenBadger opens an empty BadgerStore in dir, which must not already hold
// a database.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerStore, error) {
	cfg := badger.ScratchConfig(dir)
	cfg.Logger = logger
	db, err := badger.OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("badger cache opened", "path", dir)
	return &BadgerStore{db: db, logger: logger}, nil
}

func idKey(featureID int64) []byte {
	key := make([]byte, len(idPrefix)+8)
	copy(key, idPrefix)
	binary.BigEndian.PutUint64(key[len(idPrefix):], uint64(featureID))
	return key
}

func entryKey(delta int64, index int) []byte {
	key := make([]byte, len(entryPrefix)+12)
	copy(key, entryPrefix)
	binary.BigEndian.PutUint64(key[len(entryPrefix):], uint64(delta))
	binary.BigEndian.PutUint32(key[len(entryPrefix)+8:], uint32(index))
	return key
}

// Put implements Store.
//
// The id lookup and both writes share one transaction. BadgerDB detects a
// concurrent transaction that wrote the same id key and fails the later
// commit with ErrConflict; Put then retries and observes the existing key.
func (s *BadgerStore) Put(ctx context.Context, e Entry) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := e.validate(); err != nil {
		return err
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry for feature %d: %w", e.FeatureID, err)
	}
	delta := make([]byte, 8)
	binary.BigEndian.PutUint64(delta, uint64(e.Delta))

	for attempt := 1; ; attempt++ {
		err = s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
			item, err := txn.Get(idKey(e.FeatureID))
			switch {
			case err == nil:
				first, verr := item.ValueCopy(nil)
				if verr != nil {
					return verr
				}
				return &DuplicateFeatureError{
					FeatureID:  e.FeatureID,
					FirstDelta: int64(binary.BigEndian.Uint64(first)),
					Delta:      e.Delta,
				}
			case !errors.Is(err, badgerdb.ErrKeyNotFound):
				return err
			}
			if err := txn.Set(idKey(e.FeatureID), delta); err != nil {
				return err
			}
			return txn.Set(entryKey(e.Delta, e.Index), value)
		})
		if errors.Is(err, badgerdb.ErrConflict) && attempt < maxPutAttempts {
			s.logger.Debug("badger cache put conflict, retrying", "feature", e.FeatureID, "attempt", attempt)
			continue
		}
		break
	}
	if err != nil {
		return err
	}
	s.count.Add(1)
	return nil
}

// All implements Store.
func (s *BadgerStore) All(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if s.closed.Load() {
			yield(Entry{}, ErrClosed)
			return
		}
		var stopped bool
		err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
			opts := badgerdb.DefaultIteratorOptions
			opts.Prefix = entryPrefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var e Entry
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &e)
				}); err != nil {
					return fmt.Errorf("decode cache entry: %w", err)
				}
				if !yield(e, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Entry{}, err)
		}
	}
}

// Len implements Store.
func (s *BadgerStore) Len() int {
	return int(s.count.Load())
}

// Path implements Store.
func (s *BadgerStore) Path() string {
	return s.db.Path()
}

// Close implements Store. It removes the scratch directory.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.db.Destroy(); err != nil {
		return err
	}
	s.logger.Debug("badger cache removed", "path", s.db.Path())
	return nil
}
