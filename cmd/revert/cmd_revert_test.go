// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/AleutianAI/hecate-revert/services/hecate"
	"github.com/AleutianAI/hecate-revert/services/revert"
	"github.com/AleutianAI/hecate-revert/services/revert/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeHecate struct {
	*httptest.Server
	requests atomic.Int32
}

// newFakeHecate serves delta 2 (feature 1 modified), delta 3 (feature 1
// modified again, a conflict with delta 2) and an empty delta 4.
func newFakeHecate(t *testing.T) *fakeHecate {
	t.Helper()
	f := &fakeHecate{}
	router := gin.New()
	router.Use(func(c *gin.Context) { f.requests.Add(1) })

	modify := gin.H{
		"id": 1, "type": "Feature", "action": "modify", "version": 2,
		"properties": gin.H{"modified": true},
		"geometry":   gin.H{"type": "Point", "coordinates": []float64{0, 0}},
	}
	router.GET("/api/delta/:id", func(c *gin.Context) {
		switch c.Param("id") {
		case "2", "3":
			c.JSON(http.StatusOK, gin.H{
				"features": gin.H{"type": "FeatureCollection", "features": []gin.H{modify}},
				"props":    gin.H{"message": "edit " + c.Param("id")},
			})
		case "4":
			c.JSON(http.StatusOK, gin.H{
				"features": gin.H{"type": "FeatureCollection", "features": []gin.H{}},
				"props":    gin.H{"message": "no-op"},
			})
		default:
			c.String(http.StatusNotFound, "not found")
		}
	})
	router.GET("/api/data/feature/:id/history", func(c *gin.Context) {
		c.JSON(http.StatusOK, []gin.H{
			{"feat": modify},
			{"feat": gin.H{
				"id": 1, "type": "Feature", "action": "create", "version": 1,
				"properties": gin.H{"created": true},
				"geometry":   gin.H{"type": "Point", "coordinates": []float64{1, 1}},
			}},
		})
	})

	f.Server = httptest.NewServer(router)
	t.Cleanup(f.Close)
	return f
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	for _, k := range []string{"HECATE_URL", "HECATE_USERNAME", "HECATE_PASSWORD", "HECATE_ENV", "OTEL_TRACES_EXPORTER", "OTEL_METRICS_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
	cfgPath := filepath.Join(t.TempDir(), "revert.yaml")
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), append([]string{"--config", cfgPath}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

const wantRecord = `{"id":1,"type":"Feature","action":"modify","version":2,"properties":{"created":true},"geometry":{"type":"Point","coordinates":[1,1]}}`

// TestDeltas_Stdout verifies a clean run writes inverse edits to stdout and the summary to stderr.
func TestDeltas_Stdout(t *testing.T) {
	f := newFakeHecate(t)
	code, stdout, stderr := runCLI(t, "deltas", "--start", "2", "--end", "2",
		"--url", f.URL, "--cache-backend", "memory")

	require.Equal(t, 0, code, stderr)
	assert.JSONEq(t, wantRecord, strings.TrimSpace(stdout))
	assert.Contains(t, stderr, "Reverting deltas 2 to 2")
	assert.Contains(t, stderr, "Reversion generated")
	assert.Contains(t, stderr, "1 inverses written")
}

// TestDeltas_EmptyRangeWarns verifies a range without edits succeeds with
// a warning and no records.
func TestDeltas_EmptyRangeWarns(t *testing.T) {
	f := newFakeHecate(t)
	code, stdout, stderr := runCLI(t, "--machine", "deltas", "--start", "4", "--end", "4",
		"--url", f.URL, "--cache-backend", "memory")

	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "SUMMARY: deltas=1 features=0 written=0")
	assert.Contains(t, stderr, "WARN: no features were edited in this range")
}

// TestDeltas_OutputFile verifies --output receives the inverse edits and the cache directory is emptied.
func TestDeltas_OutputFile(t *testing.T) {
	f := newFakeHecate(t)
	out := filepath.Join(t.TempDir(), "rollback.geojsonld")
	cacheDir := t.TempDir()
	code, stdout, stderr := runCLI(t, "deltas", "--start", "2", "--end", "2",
		"--url", f.URL, "--output", out, "--cache-dir", cacheDir)

	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stdout)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, wantRecord, strings.TrimSpace(string(data)))

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "cache must be removed after the run")
}

// TestDeltas_ConflictRemovesOutput verifies a conflicting range exits 1 and leaves no output file or cache behind.
func TestDeltas_ConflictRemovesOutput(t *testing.T) {
	f := newFakeHecate(t)
	out := filepath.Join(t.TempDir(), "rollback.geojsonld")
	cacheDir := t.TempDir()
	code, stdout, stderr := runCLI(t, "deltas", "--start", "2", "--end", "3",
		"--url", f.URL, "--output", out, "--cache-dir", cacheDir, "--cache-backend", "sqlite")

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "feature 1 exists multiple times across deltas")
	assert.Contains(t, stderr, "narrow the delta range")

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err), "partial output must be removed")
	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestDeltas_InvalidRangeMakesNoRequests verifies bad ranges are rejected before any request reaches Hecate.
func TestDeltas_InvalidRangeMakesNoRequests(t *testing.T) {
	f := newFakeHecate(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"start after end", []string{"--start", "5", "--end", "2"}, "start 5 is greater than end 2"},
		{"missing end", []string{"--start", "5"}, `required flag(s) "end" not set`},
		{"missing both", nil, `required flag(s) "end", "start" not set`},
		{"non numeric", []string{"--start", "abc", "--end", "2"}, "invalid argument"},
		{"zero start", []string{"--start", "0", "--end", "2"}, "positive delta id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"deltas", "--url", f.URL, "--cache-backend", "memory"}, tt.args...)
			code, stdout, stderr := runCLI(t, args...)
			assert.Equal(t, 1, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, tt.want)
		})
	}
	assert.Zero(t, f.requests.Load())
}

// TestDeltas_MissingDelta verifies machine output for a delta the server does not have.
func TestDeltas_MissingDelta(t *testing.T) {
	f := newFakeHecate(t)
	code, stdout, stderr := runCLI(t, "--machine", "deltas", "--start", "9", "--end", "9",
		"--url", f.URL, "--cache-backend", "memory")

	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "ERROR: fetch delta 9")
	assert.Contains(t, stderr, "HINT: check that every delta in the range exists")
}

// TestDeltas_BadFlagOverride verifies flag overrides are validated like the config file.
func TestDeltas_BadFlagOverride(t *testing.T) {
	code, _, stderr := runCLI(t, "deltas", "--start", "1", "--end", "1", "--cache-backend", "redis")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "CacheBackend")
}

// TestHintFor verifies each expected failure maps to an operator hint.
func TestHintFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&store.DuplicateFeatureError{FeatureID: 1}, "narrow the delta range"},
		{&revert.DirtyRevertError{FeatureID: 1}, "revert the later deltas first"},
		{&hecate.HTTPError{StatusCode: http.StatusUnauthorized}, "HECATE_USERNAME"},
		{&revert.MissingInitialCreateError{FeatureID: 1}, "malformed"},
		{errors.New("anything else"), ""},
	}
	for _, tt := range tests {
		got := hintFor(tt.err)
		if tt.want == "" {
			assert.Empty(t, got)
			continue
		}
		assert.Contains(t, got, tt.want)
	}
}

// TestSinkFinish_KeepsFileOnSuccess verifies a file sink is flushed and kept after a successful run.
func TestSinkFinish_KeepsFileOnSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	s, err := openSink(path, nil)
	require.NoError(t, err)
	_, err = s.WriteString("line\n")
	require.NoError(t, err)

	require.NoError(t, s.finish(nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

// TestSinkFinish_StdoutHeldUntilSuccess verifies stdout receives nothing
// until a successful run finishes, however large the records are.
func TestSinkFinish_StdoutHeldUntilSuccess(t *testing.T) {
	var stdout bytes.Buffer
	s, err := openSink("", &stdout)
	require.NoError(t, err)
	spool := s.file.Name()

	record := strings.Repeat("x", 6<<10) + "\n"
	for range 3 {
		_, err = s.WriteString(record)
		require.NoError(t, err)
	}
	assert.Zero(t, stdout.Len(), "records must not reach stdout before the run succeeds")

	require.NoError(t, s.finish(nil))
	assert.Equal(t, strings.Repeat(record, 3), stdout.String())
	_, err = os.Stat(spool)
	assert.True(t, os.IsNotExist(err), "spool must be removed")
}

// TestSinkFinish_FailedRunWritesNothingToStdout verifies a failed run
// discards spooled records.
func TestSinkFinish_FailedRunWritesNothingToStdout(t *testing.T) {
	var stdout bytes.Buffer
	s, err := openSink("-", &stdout)
	require.NoError(t, err)
	spool := s.file.Name()

	_, err = s.WriteString(strings.Repeat("x", 10<<10) + "\n")
	require.NoError(t, err)

	err = s.finish(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stdout.Len())
	_, err = os.Stat(spool)
	assert.True(t, os.IsNotExist(err), "spool must be removed")
}

// cancellingStore cancels the run after the second pass over the cache has
// yielded every entry, then reports the cancellation.
type cancellingStore struct {
	store.Store
	cancel context.CancelFunc
	passes int
}

func (s *cancellingStore) All(ctx context.Context) iter.Seq2[store.Entry, error] {
	s.passes++
	entries := s.Store.All(ctx)
	if s.passes < 2 {
		return entries
	}
	return func(yield func(store.Entry, error) bool) {
		for e, err := range entries {
			if !yield(e, err) || err != nil {
				return
			}
		}
		s.cancel()
		yield(store.Entry{}, context.Canceled)
	}
}

// TestDeltas_CancelDuringStreamWritesNothing verifies a run cancelled while
// inverse edits are being written leaves stdout empty.
func TestDeltas_CancelDuringStreamWritesNothing(t *testing.T) {
	f := newFakeHecate(t)
	client, err := hecate.NewClient(hecate.Config{BaseURL: f.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine, err := revert.NewEngine(revert.Config{
		Deltas:    client,
		Histories: client,
		Store:     store.Config{Backend: store.BackendMemory},
		OpenStore: func(cfg store.Config) (store.Store, error) {
			s, err := store.Open(cfg)
			if err != nil {
				return nil, err
			}
			return &cancellingStore{Store: s, cancel: cancel}, nil
		},
	})
	require.NoError(t, err)

	var stdout bytes.Buffer
	s, err := openSink("", &stdout)
	require.NoError(t, err)

	summary, runErr := engine.Run(ctx, revert.Range{Start: 2, End: 2}, s)
	err = s.finish(runErr)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Written, "the record was encoded before the cancellation")
	assert.Zero(t, stdout.Len(), "a cancelled run must not emit records")
}

