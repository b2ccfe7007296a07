// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/sfc/internal/sfapi"
	"github.com/platformbuilds/sfc/internal/sfapi/sfapitest"
)

var testNow = time.Unix(1700000000, 0)

type fakeSink struct {
	mu       sync.Mutex
	payloads []string
	refuse   bool
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Send(_ context.Context, payload string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return !f.refuse
}

func (f *fakeSink) EnsureDatabase(context.Context, string) error { return nil }

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.payloads...)
}

// lines returns every line sent so far, across payloads.
func (f *fakeSink) lines() []string {
	var out []string
	for _, p := range f.sent() {
		for _, l := range strings.Split(p, "\n") {
			if l != "" {
				out = append(out, l)
			}
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) (*Env, *sfapitest.Server, *fakeSink) {
	t.Helper()
	srv := sfapitest.NewServer(t)
	api, err := sfapi.NewClient(srv.Config(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(api.Close)

	sink := &fakeSink{}
	env := NewEnv("c1", api, sink, discardLogger(), nil)
	env.Now = func() time.Time { return testNow }
	return env, srv, sink
}

// logBuffer is a bytes.Buffer safe for concurrent handlers.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newLoggedTestEnv is newTestEnv with the collector log captured.
func newLoggedTestEnv(t *testing.T) (*Env, *sfapitest.Server, *fakeSink, *logBuffer) {
	t.Helper()
	env, srv, sink := newTestEnv(t)
	logs := &logBuffer{}
	env.Log = slog.New(slog.NewTextHandler(logs, nil))
	return env, srv, sink, logs
}
