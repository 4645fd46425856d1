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
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"sync"

	"github.com/AleutianAI/hecate-revert/pkg/feature"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// cachedFeature is one row of the features table.
type cachedFeature struct {
	FeatureID     int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	Delta         int64  `gorm:"column:delta;not null;index:idx_features_order,priority:1"`
	Position      int    `gorm:"column:position;not null;index:idx_features_order,priority:2"`
	TargetVersion int    `gorm:"column:target_version;not null"`
	History       string `gorm:"column:history;type:text;not null"`
}

func (cachedFeature) TableName() string {
	return "features"
}

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	db     *gorm.DB
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	count  int
	closed bool
}

// OpenSQLite creates the SQLite file at path and migrates the features table.
func OpenSQLite(path string, log *slog.Logger) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&cachedFeature{}); err != nil {
		_ = sqlDB.Close()
		_ = removeSQLiteFiles(path)
		return nil, fmt.Errorf("migrate features table: %w", err)
	}
	log.Debug("sqlite cache opened", "path", path)
	return &SQLiteStore{db: db, path: path, logger: log}, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	history, err := json.Marshal(e.History)
	if err != nil {
		return fmt.Errorf("encode history for feature %d: %w", e.FeatureID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	db := s.db.WithContext(ctx)
	firstDelta, err := s.cachedDelta(db, e.FeatureID)
	switch {
	case err == nil:
		return &DuplicateFeatureError{FeatureID: e.FeatureID, FirstDelta: firstDelta, Delta: e.Delta}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("lookup feature %d: %w", e.FeatureID, err)
	}

	row := cachedFeature{
		FeatureID:     e.FeatureID,
		Delta:         e.Delta,
		Position:      e.Index,
		TargetVersion: e.TargetVersion,
		History:       string(history),
	}
	if err := db.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			dup := &DuplicateFeatureError{FeatureID: e.FeatureID, Delta: e.Delta}
			if first, lookupErr := s.cachedDelta(db, e.FeatureID); lookupErr == nil {
				dup.FirstDelta = first
			}
			return dup
		}
		return fmt.Errorf("insert feature %d: %w", e.FeatureID, err)
	}
	s.count++
	return nil
}

// cachedDelta returns the delta of the cached entry for id, or
// gorm.ErrRecordNotFound.
func (s *SQLiteStore) cachedDelta(db *gorm.DB, id int64) (int64, error) {
	var existing cachedFeature
	if err := db.Select("id", "delta").Where("id = ?", id).Take(&existing).Error; err != nil {
		return 0, err
	}
	return existing.Delta, nil
}

// All implements Store.
func (s *SQLiteStore) All(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			yield(Entry{}, ErrClosed)
			return
		}

		rows, err := s.db.WithContext(ctx).Model(&cachedFeature{}).Order("delta, position").Rows()
		if err != nil {
			yield(Entry{}, fmt.Errorf("query features: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var row cachedFeature
			if err := s.db.ScanRows(rows, &row); err != nil {
				yield(Entry{}, fmt.Errorf("scan feature: %w", err))
				return
			}
			var history feature.History
			if err := json.Unmarshal([]byte(row.History), &history); err != nil {
				yield(Entry{}, fmt.Errorf("decode history for feature %d: %w", row.FeatureID, err))
				return
			}
			e := Entry{
				FeatureID:     row.FeatureID,
				Delta:         row.Delta,
				Index:         row.Position,
				TargetVersion: row.TargetVersion,
				History:       history,
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Entry{}, err)
		}
	}
}

// Len implements Store.
func (s *SQLiteStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Path implements Store.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close implements Store. It removes the database file.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if sqlDB, err := s.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	} else {
		errs = append(errs, err)
	}
	errs = append(errs, removeSQLiteFiles(s.path))
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Debug("sqlite cache removed", "path", s.path)
	return nil
}

func removeSQLiteFiles(path string) error {
	var errs []error
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
