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
	"github.com/AleutianAI/hecate-revert/pkg/feature"
)

// inverseActions maps the action of a feature's latest edit to the action
// that undoes it. Actions absent from the table cannot be reverted.
var inverseActions = map[feature.Action]feature.Action{
	feature.ActionModify:  feature.ActionModify,
	feature.ActionDelete:  feature.ActionRestore,
	feature.ActionRestore: feature.ActionDelete,
}

// Inverse computes the edit that undoes the latest edit of a feature.
//
// Description:
//
//	The history is sorted by version before any check. targetVersion is the
//	version introduced by the delta being reverted and must be the latest
//	version in the history. A single-edit history (the initial create) is
//	undone by deleting the feature. Otherwise the inverse restores the
//	properties and geometry of the version before the latest one.
//
//	The inverse keeps the latest edit's version number. The store assigns
//	the next version when the inverse is re-applied.
//
// Inputs:
//
//	history - Every edit of one feature, in any order.
//	targetVersion - The version to revert.
//
// Outputs:
//
//	feature.Inverse - The undo edit.
//	error - ErrEmptyHistory, *MissingVersionError, *VersionOutOfRangeError,
//	  *MissingInitialCreateError, *DirtyRevertError or
//	  *UnsupportedActionError, checked in that order.
//
// Thread Safety: Pure function, safe for concurrent use.
func Inverse(history feature.History, targetVersion int) (feature.Inverse, error) {
	if len(history) == 0 {
		return feature.Inverse{}, ErrEmptyHistory
	}

	h := history.Sorted()
	id := h.FeatureID()

	if targetVersion <= 0 {
		return feature.Inverse{}, &MissingVersionError{FeatureID: id, Version: targetVersion}
	}
	if targetVersion > len(h) {
		return feature.Inverse{}, &VersionOutOfRangeError{FeatureID: id, Version: targetVersion, HistoryLen: len(h)}
	}
	if h[0].Action != feature.ActionCreate {
		return feature.Inverse{}, &MissingInitialCreateError{FeatureID: id, Action: h[0].Action}
	}
	if targetVersion != len(h) {
		return feature.Inverse{}, &DirtyRevertError{
			FeatureID:     id,
			TargetVersion: targetVersion,
			LatestVersion: h[len(h)-1].OrderVersion(),
		}
	}

	if len(h) == 1 {
		return feature.Inverse{
			ID:      id,
			Type:    feature.TypeFeature,
			Action:  feature.ActionDelete,
			Version: 1,
		}, nil
	}

	latest := h[targetVersion-1]
	desired := h[targetVersion-2]

	action, ok := inverseActions[latest.Action]
	if !ok {
		return feature.Inverse{}, &UnsupportedActionError{FeatureID: id, Action: latest.Action}
	}

	return feature.Inverse{
		ID:         id,
		Type:       feature.TypeFeature,
		Action:     action,
		Version:    latest.Version,
		Properties: desired.Properties,
		Geometry:   desired.Geometry,
	}, nil
}
