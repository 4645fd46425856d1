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
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	ids     mapset.Set[int64]
	first   map[int64]int64
	entries []Entry
	closed  bool
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		ids:   mapset.NewThreadUnsafeSet[int64](),
		first: make(map[int64]int64),
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.ids.Add(e.FeatureID) {
		return &DuplicateFeatureError{FeatureID: e.FeatureID, FirstDelta: s.first[e.FeatureID], Delta: e.Delta}
	}
	s.first[e.FeatureID] = e.Delta
	s.entries = append(s.entries, e)
	return nil
}

// All implements Store.
func (s *MemoryStore) All(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			yield(Entry{}, ErrClosed)
			return
		}
		entries := slices.Clone(s.entries)
		s.mu.Unlock()

		slices.SortFunc(entries, func(a, b Entry) int {
			if c := cmp.Compare(a.Delta, b.Delta); c != 0 {
				return c
			}
			return cmp.Compare(a.Index, b.Index)
		})
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Len implements Store.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids.Cardinality()
}

// Path implements Store.
func (s *MemoryStore) Path() string {
	return ""
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.ids.Clear()
	s.first = nil
	s.entries = nil
	return nil
}
