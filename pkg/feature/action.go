// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feature defines the versioned feature records exchanged with a
// Hecate store: single edits, per-feature histories, deltas, and the
// inverse edits computed to roll a delta range back.
//
// Geometry payloads are carried as GeoJSON geometries so that records can be
// read from and written back to the store without loss.
package feature

import (
	"errors"
	"fmt"
)

// ErrUnknownAction is returned when an edit carries an action string that is
// not one of create, modify, delete or restore.
var ErrUnknownAction = errors.New("unknown feature action")

// Action is the kind of edit recorded for one feature version.
//
// The set is closed. Code that dispatches on an Action must handle every
// constant below; ActionUnknown only appears when a record omits its action.
type Action uint8

const (
	// ActionUnknown is the zero value, used when a record has no action.
	ActionUnknown Action = iota
	ActionCreate
	ActionModify
	ActionDelete
	ActionRestore
)

var actionNames = [...]string{
	ActionUnknown: "",
	ActionCreate:  "create",
	ActionModify:  "modify",
	ActionDelete:  "delete",
	ActionRestore: "restore",
}

// String returns the wire name of the action, or "unknown" for ActionUnknown.
func (a Action) String() string {
	if a == ActionUnknown || int(a) >= len(actionNames) {
		return "unknown"
	}
	return actionNames[a]
}

// ParseAction maps a wire name to its Action. The empty string maps to
// ActionUnknown; any other unrecognised name is an error.
func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), nil
		}
	}
	return ActionUnknown, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	if int(a) >= len(actionNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAction, a)
	}
	return []byte(actionNames[a]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
