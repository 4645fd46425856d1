// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hecate

import (
	"github.com/AleutianAI/hecate-revert/pkg/feature"
)

// deltaResponse is the body of GET /api/delta/{id}.
type deltaResponse struct {
	ID       int64             `json:"id"`
	Features featureCollection `json:"features"`
	Props    struct {
		Message string `json:"message"`
	} `json:"props"`
}

type featureCollection struct {
	Type     string         `json:"type"`
	Features []feature.Edit `json:"features"`
}

// historyItem is one element of GET /api/data/feature/{id}/history.
type historyItem struct {
	Feat feature.Edit `json:"feat"`
}
