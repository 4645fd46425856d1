// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feature

import (
	"slices"

	"github.com/paulmach/orb/geojson"
)

// TypeFeature is the GeoJSON type carried by every edit and inverse.
const TypeFeature = "Feature"

// Edit is one version of one feature.
//
// Properties and Geometry are nil only when Action is ActionDelete.
// Version is 1-based; a zero Version means the record omitted it.
type Edit struct {
	ID         int64             `json:"id"`
	Type       string            `json:"type,omitempty"`
	Action     Action            `json:"action"`
	Version    int               `json:"version,omitempty"`
	Properties map[string]any    `json:"properties"`
	Geometry   *geojson.Geometry `json:"geometry"`
}

// OrderVersion is the version used to order edits. A missing version sorts
// as version 1.
func (e Edit) OrderVersion() int {
	if e.Version <= 0 {
		return 1
	}
	return e.Version
}

// History is every edit of a single feature.
type History []Edit

// Sorted returns a copy of h ordered ascending by OrderVersion. Edits with
// equal order versions keep their relative order.
func (h History) Sorted() History {
	out := slices.Clone(h)
	slices.SortStableFunc(out, func(a, b Edit) int {
		return a.OrderVersion() - b.OrderVersion()
	})
	return out
}

// FeatureID returns the id of the first edit, or 0 for an empty history.
func (h History) FeatureID() int64 {
	if len(h) == 0 {
		return 0
	}
	return h[0].ID
}

// Delta is a committed change-set: one edit per feature it touched.
type Delta struct {
	ID       int64
	Message  string
	Features []Edit
}

// Inverse is the computed edit that undoes the latest edit of a feature.
//
// Field order matches the line-delimited GeoJSON accepted by the import
// pipeline: id, type, action, version, properties, geometry.
type Inverse struct {
	ID         int64             `json:"id"`
	Type       string            `json:"type"`
	Action     Action            `json:"action"`
	Version    int               `json:"version"`
	Properties map[string]any    `json:"properties"`
	Geometry   *geojson.Geometry `json:"geometry"`
}
