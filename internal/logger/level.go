// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelCritical sits above slog.LevelError.
const LevelCritical = slog.Level(12)

// LevelNames are the accepted level choices, lowest first.
var LevelNames = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

var (
	levelText = map[slog.Level]string{
		slog.LevelDebug: "DEBUG",
		slog.LevelInfo:  "INFO",
		slog.LevelWarn:  "WARNING",
		slog.LevelError: "ERROR",
		LevelCritical:   "CRITICAL",
	}
	levelTerm = map[slog.Level]string{
		LevelCritical: "\u001b[35m" + "CRT" + "\u001b[0m",
	}
)

// ParseLevel maps a level name to its slog level. Matching ignores case and
// accepts WARN as an alias of WARNING.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "ERR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// LevelString renders lvl with the names accepted by ParseLevel.
func LevelString(lvl slog.Level) string {
	if s, ok := levelText[lvl]; ok {
		return s
	}
	return lvl.String()
}
