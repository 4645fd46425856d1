// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openScratch opens a scratch database that is destroyed when t ends.
func openScratch(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(ScratchConfig(filepath.Join(t.TempDir(), "db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Destroy() })
	return db
}

// TestOpenDB_ReadWrite verifies a scratch database round-trips a key.
func TestOpenDB_ReadWrite(t *testing.T) {
	db := openScratch(t)

	err := db.WithTxn(context.Background(), func(txn *badger.Txn) error {
		return txn.Set([]byte("key"), []byte("value"))
	})
	require.NoError(t, err)

	err = db.WithReadTxn(context.Background(), func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("key"))
		require.NoError(t, err)
		return item.Value(func(val []byte) error {
			assert.Equal(t, []byte("value"), val)
			return nil
		})
	})
	require.NoError(t, err)
}

// TestOpenDB_RequiresPath verifies that a path is required.
func TestOpenDB_RequiresPath(t *testing.T) {
	_, err := OpenDB(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

// TestScratchConfig verifies scratch defaults.
func TestScratchConfig(t *testing.T) {
	cfg := ScratchConfig("/tmp/x")
	assert.Equal(t, "/tmp/x", cfg.Path)
	assert.False(t, cfg.SyncWrites)
	assert.Equal(t, int64(64<<20), cfg.ValueLogFileSize)
}

// TestDB_Destroy verifies the directory is removed and Destroy is repeatable.
func TestDB_Destroy(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scratch")

	db, err := OpenDB(ScratchConfig(dir))
	require.NoError(t, err)
	assert.Equal(t, dir, db.Path())

	_, err = os.Stat(dir)
	require.NoError(t, err, "directory should exist while open")

	require.NoError(t, db.Destroy())

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "directory should be removed")

	assert.NoError(t, db.Close(), "close after destroy is a no-op")
}

// TestDB_WithTxn_ContextCancelled verifies context cancellation.
func TestDB_WithTxn_ContextCancelled(t *testing.T) {
	db := openScratch(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte("key"), []byte("value"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error { return nil })
	assert.Error(t, err)
}

// TestDB_WithTxn_RollbackOnError verifies rollback on error.
func TestDB_WithTxn_RollbackOnError(t *testing.T) {
	db := openScratch(t)
	ctx := context.Background()

	err := db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte("rollback-key"), []byte("should-not-persist")); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	err = db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("rollback-key"))
		assert.ErrorIs(t, err, badger.ErrKeyNotFound)
		return nil
	})
	require.NoError(t, err)
}

// TestCleanupDir verifies directory cleanup.
func TestCleanupDir(t *testing.T) {
	t.Run("handles empty path", func(t *testing.T) {
		assert.NoError(t, CleanupDir(""))
	})

	t.Run("removes directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "gone")
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0750))

		require.NoError(t, CleanupDir(dir))

		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})
}
