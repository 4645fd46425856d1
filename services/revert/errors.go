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
	"errors"
	"fmt"

	"github.com/AleutianAI/hecate-revert/pkg/feature"
)

// Sentinel errors for reversion.
var (
	// ErrEmptyHistory is returned when a feature has no recorded edits.
	ErrEmptyHistory = errors.New("feature history is empty")

	// ErrMissingVersion is matched by *MissingVersionError.
	ErrMissingVersion = errors.New("target version must be a positive integer")

	// ErrVersionOutOfRange is matched by *VersionOutOfRangeError.
	ErrVersionOutOfRange = errors.New("version cannot be higher than feature history")

	// ErrMissingInitialCreate is matched by *MissingInitialCreateError.
	ErrMissingInitialCreate = errors.New("missing initial create action")

	// ErrDirtyRevert is matched by *DirtyRevertError.
	ErrDirtyRevert = errors.New("feature has been subsequently edited")

	// ErrUnsupportedAction is matched by *UnsupportedActionError.
	ErrUnsupportedAction = errors.New("unsupported action for reversion")

	// ErrInvalidRange is returned when a delta range fails validation.
	ErrInvalidRange = errors.New("invalid delta range")

	// ErrNilDependency is returned when an Engine or Orchestrator is built
	// without a required fetcher.
	ErrNilDependency = errors.New("required dependency is nil")
)

// MissingVersionError reports a target version that is zero or negative.
type MissingVersionError struct {
	FeatureID int64
	Version   int
}

func (e *MissingVersionError) Error() string {
	return fmt.Sprintf("feature %d: %s (got %d)", e.FeatureID, ErrMissingVersion, e.Version)
}

func (e *MissingVersionError) Is(target error) bool {
	return target == ErrMissingVersion
}

// VersionOutOfRangeError reports a target version past the end of history.
type VersionOutOfRangeError struct {
	FeatureID  int64
	Version    int
	HistoryLen int
}

func (e *VersionOutOfRangeError) Error() string {
	return fmt.Sprintf("feature %d: %s (target version %d, %d recorded versions)",
		e.FeatureID, ErrVersionOutOfRange, e.Version, e.HistoryLen)
}

func (e *VersionOutOfRangeError) Is(target error) bool {
	return target == ErrVersionOutOfRange
}

// MissingInitialCreateError reports a history whose first edit is not a
// create. The upstream history is malformed.
type MissingInitialCreateError struct {
	FeatureID int64
	Action    feature.Action
}

func (e *MissingInitialCreateError) Error() string {
	return fmt.Sprintf("feature %d %s (first action is %s)", e.FeatureID, ErrMissingInitialCreate, e.Action)
}

func (e *MissingInitialCreateError) Is(target error) bool {
	return target == ErrMissingInitialCreate
}

// DirtyRevertError reports a feature edited again after the version being
// reverted. Narrowing or extending the delta range resolves it.
type DirtyRevertError struct {
	FeatureID     int64
	TargetVersion int
	LatestVersion int
}

func (e *DirtyRevertError) Error() string {
	return fmt.Sprintf("feature %d has been subsequently edited (target version %d, latest version %d); reversion not supported",
		e.FeatureID, e.TargetVersion, e.LatestVersion)
}

func (e *DirtyRevertError) Is(target error) bool {
	return target == ErrDirtyRevert
}

// UnsupportedActionError reports a latest edit whose action has no inverse.
type UnsupportedActionError struct {
	FeatureID int64
	Action    feature.Action
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("feature %d: %s %q", e.FeatureID, ErrUnsupportedAction, e.Action.String())
}

func (e *UnsupportedActionError) Is(target error) bool {
	return target == ErrUnsupportedAction
}
