// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package sfapi

import (
	"errors"
	"fmt"
	"net/http"
)

var errMissingResult = errors.New("response has no result")

// APIError is returned for non-2xx responses and for JSON-RPC error objects.
// Body holds the raw response so callers can log it before discarding.
type APIError struct {
	Method     string
	StatusCode int
	Code       int
	Name       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: API error %s (code %d): %s", e.Method, e.Name, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Method, e.StatusCode, e.Body)
}

// IsUnauthorized returns true if the cluster rejected the credentials
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// DecodeError reports a response that could not be decoded into the
// expected result shape.
type DecodeError struct {
	Method string
	Body   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode response: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ResponseBody extracts the raw body from an APIError or DecodeError.
func ResponseBody(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Body, true
	}
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr.Body, true
	}
	return "", false
}
