// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package version exposes build information stamped at link time, e.g.
//
//	go build -ldflags "-X github.com/platformbuilds/sfc/internal/version.version=v2.1.0"
package version

import "fmt"

var (
	version   = "v2.1.0"
	commit    = "unknown"
	buildDate = "unknown"
)

func Version() string   { return version }
func Commit() string    { return commit }
func BuildDate() string { return buildDate }

// UserAgent is sent with every outbound HTTP request.
func UserAgent() string { return fmt.Sprintf("sfc/%s", version) }
