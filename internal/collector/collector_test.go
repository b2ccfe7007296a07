// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/sfc/internal/lineproto"
	"github.com/platformbuilds/sfc/internal/sfapi/sfapitest"
)

func TestValidateSchemas(t *testing.T) {
	require.NoError(t, ValidateSchemas())
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{
		"account_efficiency", "accounts", "cluster_capacity", "cluster_faults",
		"cluster_performance", "cluster_version", "drive_stats", "iscsi_sessions",
		"node_performance", "schedules", "snapshot_groups", "sync_jobs",
		"volume_efficiency", "volume_performance", "volume_qos_histograms", "volumes",
	}, Names())

	_, ok := Lookup("volumes")
	assert.True(t, ok)
	_, ok = Lookup("nope")
	assert.False(t, ok)
}

var timingLine = regexp.MustCompile(`^sfc_metrics,cluster=c1,function=(\w+) time_taken=\d+(\.\d+)?\n$`)

func TestRun_SendsTiming(t *testing.T) {
	env, _, sink := newTestEnv(t)

	err := Run(context.Background(), env, Collector{Name: "ok", Run: func(context.Context, *Env) error { return nil }})
	require.NoError(t, err)

	sent := sink.sent()
	require.Len(t, sent, 1)
	m := timingLine.FindStringSubmatch(sent[0])
	require.NotNil(t, m, sent[0])
	assert.Equal(t, "ok", m[1])
}

func TestRun_NoDataSendsNothing(t *testing.T) {
	env, _, sink := newTestEnv(t)

	err := Run(context.Background(), env, Collector{Name: "empty", Run: func(context.Context, *Env) error { return ErrNoData }})
	require.NoError(t, err)
	assert.Empty(t, sink.sent())
}

func TestRun_FailureStillTimed(t *testing.T) {
	env, _, sink := newTestEnv(t)

	err := Run(context.Background(), env, Collector{Name: "refused", Run: func(context.Context, *Env) error { return ErrSendFailed }})
	require.ErrorIs(t, err, ErrSendFailed)
	require.Len(t, sink.sent(), 1)
	assert.Regexp(t, timingLine, sink.sent()[0])
}

func TestRun_LogsResponseBody(t *testing.T) {
	tests := []struct {
		name    string
		failure *sfapitest.Failure
	}{
		{"malformed json", &sfapitest.Failure{Status: 200, Body: "<html>upstream-proxy-page</html>"}},
		{"bad status", &sfapitest.Failure{Status: 502, Body: "<html>upstream-proxy-page</html>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, srv, sink, logs := newLoggedTestEnv(t)
			srv.Handle("GetClusterCapacity", func(json.RawMessage) any { return tt.failure })

			c, ok := Lookup("cluster_capacity")
			require.True(t, ok)
			require.Error(t, Run(context.Background(), env, c))

			out := logs.String()
			assert.Contains(t, out, `msg="collector failed"`)
			assert.Contains(t, out, "response_body=")
			assert.Contains(t, out, "upstream-proxy-page")
			require.Len(t, sink.sent(), 1)
			assert.Regexp(t, timingLine, sink.sent()[0])
		})
	}
}

func TestRun_PanicBecomesError(t *testing.T) {
	env, _, sink := newTestEnv(t)

	err := Run(context.Background(), env, Collector{Name: "boom", Run: func(context.Context, *Env) error { panic("boom") }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	_, fatal := AsFatal(err)
	assert.False(t, fatal)
	assert.Len(t, sink.sent(), 1)
}

func TestRun_FatalSkipsTiming(t *testing.T) {
	env, _, sink := newTestEnv(t)
	dup := &lineproto.DuplicateKeyError{Measurement: "m", Key: "k"}

	err := Run(context.Background(), env, Collector{Name: "dup", Run: func(context.Context, *Env) error { return dup }})
	f, fatal := AsFatal(err)
	require.True(t, fatal)
	assert.Equal(t, lineproto.ExitDuplicateKey, f.ExitCode())
	assert.Empty(t, sink.sent())
}

func TestAsFatal_Wrapped(t *testing.T) {
	_, _, err := lineproto.TimeDiffEpoch("not a time", lineproto.Never)
	f, ok := AsFatal(errors.Join(errors.New("context"), err))
	require.True(t, ok)
	assert.Equal(t, lineproto.ExitTimestamp, f.ExitCode())

	_, ok = AsFatal(errors.New("plain"))
	assert.False(t, ok)
}

func TestEmitter_FlushEmpty(t *testing.T) {
	env, _, sink := newTestEnv(t)
	m := env.emitter()
	assert.ErrorIs(t, m.flush(context.Background()), ErrNoData)
	assert.Empty(t, sink.sent())
}

func TestEmitter_SkipsBadRecord(t *testing.T) {
	env, _, sink := newTestEnv(t)
	m := env.emitter()
	require.NoError(t, m.add(lineproto.New("m").Tag("a", "b"), nil))
	require.NoError(t, m.add(lineproto.New("m").Float("f", 1).Value("v", struct{}{}), nil))
	require.NoError(t, m.add(lineproto.New("m").Int("i", 1), nil))
	require.NoError(t, m.flush(context.Background()))
	assert.Equal(t, []string{"m i=1i\n"}, sink.sent())
}

func TestEmitter_Refused(t *testing.T) {
	env, _, sink := newTestEnv(t)
	sink.refuse = true
	m := env.emitter()
	require.NoError(t, m.add(lineproto.New("m").Int("i", 1), nil))
	assert.ErrorIs(t, m.flush(context.Background()), ErrSendFailed)
}

func TestPathAndOverlay(t *testing.T) {
	r := map[string]any{"a": map[string]any{"b": "deep"}, "n": nil, "x": "base"}
	p := path(r)
	v, ok := p.Get("a.b")
	assert.True(t, ok)
	assert.Equal(t, "deep", v)
	_, ok = p.Get("a.c")
	assert.False(t, ok)
	_, ok = p.Get("n")
	assert.False(t, ok)

	o := with(r, lineproto.Map{"x": nil, "y": 1})
	_, ok = o.Get("x")
	assert.False(t, ok, "nil overlay hides the base value")
	v, _ = o.Get("y")
	assert.Equal(t, 1, v)
	v, _ = o.Get("a.b")
	assert.Equal(t, "deep", v)
}
