// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package lineproto

import "fmt"

// Process exit codes for encoding errors that must stop the collector.
const (
	ExitDuplicateKey = 200
	ExitTimestamp    = 400
)

// DuplicateKeyError means a measurement declares the same key twice. Every
// line of that measurement would be corrupt, so it is fatal.
type DuplicateKeyError struct {
	Measurement string
	Key         string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("measurement %q: duplicate tag/field key %q", e.Measurement, e.Key)
}

func (e *DuplicateKeyError) ExitCode() int { return ExitDuplicateKey }

// TimestampError means a creation/expiration pair could not be parsed.
type TimestampError struct {
	Create string
	Expire string
	Err    error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("cannot parse timestamps %q and %q: %v", e.Create, e.Expire, e.Err)
}

func (e *TimestampError) Unwrap() error { return e.Err }

func (e *TimestampError) ExitCode() int { return ExitTimestamp }
