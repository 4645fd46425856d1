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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/AleutianAI/hecate-revert/pkg/feature"
	"github.com/AleutianAI/hecate-revert/services/revert/store"
)

// Stream writes one inverse edit per cached feature to w as line-delimited
// JSON, in cache order.
//
// Description:
//
//	Streaming runs in two passes over the cache. The first computes every
//	inverse and discards it; the second computes them again and writes
//	them. An inverse failure therefore aborts the stream before any record
//	is written. w is neither flushed nor closed.
//
// Outputs:
//
//	int - Records written.
//	error - The first inverse, cache or write failure, naming the delta.
func Stream(ctx context.Context, cache store.Store, w io.Writer) (int, error) {
	if err := eachInverse(ctx, cache, func(feature.Inverse) error { return nil }); err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	written := 0
	err := eachInverse(ctx, cache, func(inv feature.Inverse) error {
		if err := enc.Encode(inv); err != nil {
			return fmt.Errorf("write inverse of feature %d: %w", inv.ID, err)
		}
		written++
		return nil
	})
	return written, err
}

func eachInverse(ctx context.Context, cache store.Store, fn func(feature.Inverse) error) error {
	for e, err := range cache.All(ctx) {
		if err != nil {
			return fmt.Errorf("read cache: %w", err)
		}
		inv, err := Inverse(e.History, e.TargetVersion)
		if errors.Is(err, ErrEmptyHistory) {
			return fmt.Errorf("delta %d feature %d: %w", e.Delta, e.FeatureID, err)
		}
		if err != nil {
			return fmt.Errorf("delta %d: %w", e.Delta, err)
		}
		if err := fn(inv); err != nil {
			return err
		}
	}
	return nil
}
