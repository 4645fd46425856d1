// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package revert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/AleutianAI/hecate-revert/pkg/feature"
	"github.com/AleutianAI/hecate-revert/services/revert/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trackingStore records whether Close was called.
type trackingStore struct {
	store.Store
	closed int
}

func (s *trackingStore) Close() error {
	s.closed++
	return s.Store.Close()
}

type engineHarness struct {
	engine *Engine
	opened []*trackingStore
	dir    string
}

func newEngineHarness(t *testing.T, f *fakeHecate, backend store.Backend) *engineHarness {
	t.Helper()
	h := &engineHarness{dir: t.TempDir()}
	engine, err := NewEngine(Config{
		Deltas:      f,
		Histories:   f,
		Concurrency: 4,
		Store:       store.Config{Backend: backend, Dir: h.dir},
		OpenStore: func(cfg store.Config) (store.Store, error) {
			s, err := store.Open(cfg)
			if err != nil {
				return nil, err
			}
			ts := &trackingStore{Store: s}
			h.opened = append(h.opened, ts)
			return ts, nil
		},
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}

func (h *engineHarness) assertTornDown(t *testing.T) {
	t.Helper()
	require.Len(t, h.opened, 1)
	assert.Equal(t, 1, h.opened[0].closed, "cache must be closed exactly once")
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "cache backing storage must be removed")
}

// scenarioA: delta 2 modifies feature 1.
func scenarioA() *fakeHecate {
	f := newFakeHecate()
	f.addDelta(2, edit(1, 2, feature.ActionModify, map[string]any{"modified": true}, point(0, 0)))
	// History served newest first, as the remote may.
	h := createdModified(1)
	f.histories[1] = feature.History{h[1], h[0]}
	return f
}

// scenarioB: scenario A plus delta 3 deleting feature 2.
func scenarioB() *fakeHecate {
	f := scenarioA()
	f.addDelta(3, edit(2, 3, feature.ActionDelete, nil, nil))
	f.histories[2] = feature.History{
		edit(2, 1, feature.ActionCreate, map[string]any{"created": true}, point(1, 1)),
		edit(2, 2, feature.ActionModify, map[string]any{"modified": true}, point(0, 0)),
		edit(2, 3, feature.ActionDelete, nil, nil),
	}
	return f
}

const (
	scenarioARecord = `{"id":1,"type":"Feature","action":"modify","version":2,"properties":{"created":true},"geometry":{"type":"Point","coordinates":[1,1]}}`
	scenarioBRecord = `{"id":2,"type":"Feature","action":"restore","version":3,"properties":{"modified":true},"geometry":{"type":"Point","coordinates":[0,0]}}`
)

func outputLines(buf *bytes.Buffer) []string {
	s := strings.TrimSuffix(buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// TestEngine_SingleCleanDelta verifies a one-delta run on every backend.
func TestEngine_SingleCleanDelta(t *testing.T) {
	for _, backend := range []store.Backend{store.BackendBadger, store.BackendSQLite, store.BackendMemory} {
		t.Run(string(backend), func(t *testing.T) {
			h := newEngineHarness(t, scenarioA(), backend)

			var buf bytes.Buffer
			summary, err := h.engine.Run(context.Background(), Range{Start: 2, End: 2}, &buf)
			require.NoError(t, err)

			lines := outputLines(&buf)
			require.Len(t, lines, 1)
			assert.JSONEq(t, scenarioARecord, lines[0])
			assert.Equal(t, int64(1), summary.Deltas)
			assert.Equal(t, 1, summary.Features)
			assert.Equal(t, 1, summary.Written)
			h.assertTornDown(t)
		})
	}
}

// TestEngine_MultiDeltaMixedActions verifies a two-delta run on every backend.
func TestEngine_MultiDeltaMixedActions(t *testing.T) {
	for _, backend := range []store.Backend{store.BackendBadger, store.BackendSQLite, store.BackendMemory} {
		t.Run(string(backend), func(t *testing.T) {
			h := newEngineHarness(t, scenarioB(), backend)

			var buf bytes.Buffer
			summary, err := h.engine.Run(context.Background(), Range{Start: 2, End: 3}, &buf)
			require.NoError(t, err)

			lines := outputLines(&buf)
			require.Len(t, lines, 2)
			assert.JSONEq(t, scenarioARecord, lines[0])
			assert.JSONEq(t, scenarioBRecord, lines[1])
			assert.Equal(t, int64(2), summary.Deltas)
			assert.Equal(t, 2, summary.Written)
			h.assertTornDown(t)
		})
	}
}

// TestEngine_ConflictAcrossDeltas verifies a duplicate feature fails the run and writes nothing.
func TestEngine_ConflictAcrossDeltas(t *testing.T) {
	for _, backend := range []store.Backend{store.BackendBadger, store.BackendSQLite, store.BackendMemory} {
		t.Run(string(backend), func(t *testing.T) {
			f := newFakeHecate()
			f.addDelta(2, edit(1, 1, feature.ActionCreate, map[string]any{"created": true}, point(1, 1)))
			f.addDelta(3, edit(1, 2, feature.ActionModify, map[string]any{"modified": true}, point(0, 0)))
			f.histories[1] = createdModified(1)
			h := newEngineHarness(t, f, backend)

			var buf bytes.Buffer
			_, err := h.engine.Run(context.Background(), Range{Start: 2, End: 3}, &buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, store.ErrDuplicateFeature)
			assert.Contains(t, err.Error(), "feature 1")
			assert.Contains(t, err.Error(), "exists multiple times across deltas")
			assert.Empty(t, buf.String())
			h.assertTornDown(t)
		})
	}
}

// TestEngine_DirtyRevert verifies a later edit outside the range fails the run and writes nothing.
func TestEngine_DirtyRevert(t *testing.T) {
	for _, backend := range []store.Backend{store.BackendBadger, store.BackendSQLite, store.BackendMemory} {
		t.Run(string(backend), func(t *testing.T) {
			f := newFakeHecate()
			f.addDelta(2, edit(1, 1, feature.ActionCreate, map[string]any{"created": true}, point(1, 1)))
			f.histories[1] = createdModified(1)
			h := newEngineHarness(t, f, backend)

			var buf bytes.Buffer
			_, err := h.engine.Run(context.Background(), Range{Start: 2, End: 2}, &buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDirtyRevert)
			assert.Contains(t, err.Error(), "feature 1 has been subsequently edited")
			assert.Empty(t, buf.String())
			h.assertTornDown(t)
		})
	}
}

// TestEngine_FetchFailureTearsDownCache verifies the cache is removed after a fetch failure.
func TestEngine_FetchFailureTearsDownCache(t *testing.T) {
	f := scenarioA()
	boom := errors.New("502 bad gateway")
	f.historyErr[1] = boom
	h := newEngineHarness(t, f, store.BackendBadger)

	var buf bytes.Buffer
	_, err := h.engine.Run(context.Background(), Range{Start: 2, End: 2}, &buf)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, buf.String())
	h.assertTornDown(t)
}

// TestEngine_MalformedHistoryTearsDownCache verifies the cache is removed after an inverse failure.
func TestEngine_MalformedHistoryTearsDownCache(t *testing.T) {
	f := newFakeHecate()
	f.addDelta(1, edit(1, 1, feature.ActionModify, nil, nil))
	f.histories[1] = feature.History{edit(1, 1, feature.ActionModify, map[string]any{}, point(0, 0))}
	h := newEngineHarness(t, f, store.BackendSQLite)

	var buf bytes.Buffer
	_, err := h.engine.Run(context.Background(), Range{Start: 1, End: 1}, &buf)
	require.ErrorIs(t, err, ErrMissingInitialCreate)
	assert.Contains(t, err.Error(), "missing initial create action")
	h.assertTornDown(t)
}

// TestEngine_InvalidRangeOpensNoCache verifies no cache is allocated for a bad range.
func TestEngine_InvalidRangeOpensNoCache(t *testing.T) {
	f := scenarioA()
	h := newEngineHarness(t, f, store.BackendMemory)

	for _, r := range []Range{{Start: 3, End: 2}, {Start: 0, End: 2}, {Start: -1, End: -1}} {
		_, err := h.engine.Run(context.Background(), r, &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrInvalidRange, "range %+v", r)
	}
	assert.Empty(t, h.opened)
	assert.Empty(t, f.calls())
}

// TestEngine_OpenStoreFailure verifies a cache allocation failure is reported.
func TestEngine_OpenStoreFailure(t *testing.T) {
	f := scenarioA()
	boom := errors.New("no space left on device")
	engine, err := NewEngine(Config{
		Deltas:    f,
		Histories: f,
		OpenStore: func(store.Config) (store.Store, error) { return nil, boom },
	})
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), Range{Start: 2, End: 2}, &bytes.Buffer{})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, f.calls())
}

// TestNewEngine_RequiresFetchers verifies nil fetchers are rejected.
func TestNewEngine_RequiresFetchers(t *testing.T) {
	_, err := NewEngine(Config{})
	assert.ErrorIs(t, err, ErrNilDependency)
}

// TestRange_Validate verifies range validation messages.
func TestRange_Validate(t *testing.T) {
	tests := []struct {
		name    string
		r       Range
		wantErr string
	}{
		{"single delta", Range{Start: 1, End: 1}, ""},
		{"ascending", Range{Start: 2, End: 9}, ""},
		{"start after end", Range{Start: 4, End: 3}, "start 4 is greater than end 3"},
		{"zero start", Range{Start: 0, End: 3}, "Start must be a positive delta id"},
		{"zero end", Range{Start: 1, End: 0}, "End must be a positive delta id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidRange)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestRange_Len verifies the inclusive delta count.
func TestRange_Len(t *testing.T) {
	assert.Equal(t, int64(1), Range{Start: 5, End: 5}.Len())
	assert.Equal(t, int64(4), Range{Start: 2, End: 5}.Len())
}
