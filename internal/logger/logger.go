// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package logger builds the process slog.Logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	otellog "go.opentelemetry.io/otel/log"
)

// Output formats.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Options selects level, destination and format.
type Options struct {
	Level string
	// Format is auto, text or json. Auto picks the colour handler on a
	// terminal and text otherwise.
	Format string
	// File is appended to instead of writing to Output.
	File string
	// Output defaults to os.Stderr.
	Output io.Writer
	// Provider, when set, also receives every record over OTLP.
	Provider otellog.LoggerProvider
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger from opts. The returned closer releases the log file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	level := &slog.LevelVar{}
	level.Set(lvl)

	var (
		out              = opts.Output
		closer io.Closer = nopCloser{}
	)
	if out == nil {
		out = os.Stderr
	}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	var h slog.Handler
	switch opts.Format {
	case "", FormatAuto:
		if opts.File == "" && isTerminal(out) {
			h = newTerminalHandler(out, level)
		} else {
			h = newTextHandler(out, level)
		}
	case FormatText:
		h = newTextHandler(out, level)
	case FormatJSON:
		h = newJSONHandler(out, level)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.Provider != nil {
		h = newFanout(h, newOTelHandler(opts.Provider, level))
	}
	return slog.New(h), closer, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
