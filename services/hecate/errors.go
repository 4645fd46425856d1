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
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for Hecate requests.
var (
	// ErrNotFound is matched by an *HTTPError with status 404.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is matched by an *HTTPError with status 401 or 403.
	ErrUnauthorized = errors.New("not authorized")

	// ErrInvalidConfig is returned by NewClient for an unusable Config.
	ErrInvalidConfig = errors.New("invalid hecate client config")

	// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed hecate response")
)

// maxErrorBody bounds how much of a failed response is kept in an HTTPError.
const maxErrorBody = 512

// HTTPError reports a non-2xx response from Hecate.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("GET %s: %d %s: %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Is matches ErrNotFound and ErrUnauthorized by status code.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}
