// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package revert computes the edits that undo a range of deltas.
//
// A run has three stages:
//
//  1. The Orchestrator walks the delta range in ascending order and, for each
//     delta, fetches the full history of every feature it touched with
//     bounded concurrency. Histories land in a store.Store, which refuses a
//     feature that appears in more than one delta of the range.
//  2. Stream reads the cache in (delta, position) order and calls Inverse
//     for each entry.
//  3. Each inverse is written as one line of JSON.
//
// Engine ties the stages together and owns the cache lifecycle.
//
// # Inversion table
//
//	latest action   inverse action   properties/geometry
//	create (only)   delete           null
//	modify          modify           from previous version
//	delete          restore          from previous version
//	restore         delete           from previous version
//
// A feature edited again after the reverted version is refused with
// *DirtyRevertError rather than merged.
package revert
