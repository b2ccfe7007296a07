// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/sfc/internal/collector"
	"github.com/platformbuilds/sfc/internal/lineproto"
	"github.com/platformbuilds/sfc/internal/selftelemetry"
	"github.com/platformbuilds/sfc/internal/sfapi"
)

type fakeSink struct {
	mu       sync.Mutex
	payloads []string
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Send(_ context.Context, payload string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return true
}

func (f *fakeSink) EnsureDatabase(context.Context, string) error { return nil }

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unusedClient(time.Duration) (*sfapi.Client, error) {
	return sfapi.NewClient(sfapi.Config{Endpoint: "http://127.0.0.1:1"}, discardLogger())
}

func newTestScheduler(t *testing.T, tiers []Tier, collectors ...collector.Collector) (*Scheduler, *fakeSink) {
	t.Helper()
	byName := map[string]collector.Collector{}
	for _, c := range collectors {
		byName[c.Name] = c
	}
	lookup := func(name string) (collector.Collector, bool) {
		c, ok := byName[name]
		return c, ok
	}
	sink := &fakeSink{}
	s, err := newScheduler(Config{Cluster: "c1", NewClient: unusedClient, Sink: sink}, tiers, discardLogger(), lookup)
	require.NoError(t, err)
	s.jitter = func(time.Duration, time.Duration) time.Duration { return 0 }
	return s, sink
}

func fn(name string, run collector.Func) collector.Collector {
	return collector.Collector{Name: name, Run: run}
}

func succeed(context.Context, *collector.Env) error { return nil }

func TestActivate_FailingSiblingDoesNotStopOthers(t *testing.T) {
	var ran atomic.Int32
	counted := func(context.Context, *collector.Env) error { ran.Add(1); return nil }
	s, sink := newTestScheduler(t,
		[]Tier{{Name: "t", Interval: time.Hour, Collectors: []string{"a", "broken", "c"}}},
		fn("a", counted),
		fn("broken", func(context.Context, *collector.Env) error { return errors.New("cluster unreachable") }),
		fn("c", counted),
	)

	outcomes, err := s.Activate(context.Background(), "t")
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.EqualValues(t, 2, ran.Load())
	assert.NoError(t, outcomes[0].Err)
	assert.EqualError(t, outcomes[1].Err, "cluster unreachable")
	assert.NoError(t, outcomes[2].Err)
	assert.Equal(t, 3, sink.count(), "every collector reports its timing")

	h := s.Health()
	assert.Equal(t, HealthStatusUnhealthy, h["broken"].Status)
	assert.Equal(t, 1, h["broken"].ErrorCount)
	assert.Equal(t, HealthStatusHealthy, h["a"].Status)
	assert.False(t, h["a"].LastSuccess.IsZero())

	iterations, _ := s.Stats("t")
	assert.EqualValues(t, 1, iterations)

	r := s.Report()
	assert.False(t, r.Collectors["broken"].Healthy)
	assert.Equal(t, "cluster unreachable", r.Collectors["broken"].LastError)
	assert.True(t, r.Collectors["a"].Healthy)
	assert.Equal(t, selftelemetry.TierReport{Iterations: 1}, r.Tiers["t"])
}

func TestActivate_ClientFailureSkipsCollectors(t *testing.T) {
	var ran atomic.Bool
	s, _ := newTestScheduler(t,
		[]Tier{{Name: "t", Interval: time.Hour, Collectors: []string{"a"}}},
		fn("a", func(context.Context, *collector.Env) error { ran.Store(true); return nil }),
	)
	s.cfg.NewClient = func(time.Duration) (*sfapi.Client, error) { return nil, errors.New("no endpoint") }

	outcomes, err := s.Activate(context.Background(), "t")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.False(t, ran.Load())
}

func TestActivate_UnknownTier(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	_, err := s.Activate(context.Background(), "nope")
	assert.Error(t, err)
}

func TestRun_SkipsOverlappingTicks(t *testing.T) {
	release := make(chan struct{})
	var running, maxRunning atomic.Int32
	slow := func(ctx context.Context, _ *collector.Env) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}
	s, _ := newTestScheduler(t,
		[]Tier{{Name: "t", Interval: 10 * time.Millisecond, Collectors: []string{"slow"}}},
		fn("slow", slow),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, skipped := s.Stats("t")
		return skipped >= 3
	}, 5*time.Second, 5*time.Millisecond)
	iterations, _ := s.Stats("t")
	assert.EqualValues(t, 1, iterations)

	close(release)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.EqualValues(t, 1, maxRunning.Load())
}

func TestRun_FatalStopsAllTiers(t *testing.T) {
	var cancelled atomic.Bool
	s, _ := newTestScheduler(t,
		[]Tier{
			{Name: "busy", Interval: time.Hour, Collectors: []string{"wait"}},
			{Name: "bad", Interval: time.Hour, Collectors: []string{"timestamps"}},
		},
		fn("wait", func(ctx context.Context, _ *collector.Env) error {
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		}),
		fn("timestamps", func(context.Context, *collector.Env) error {
			_, _, err := lineproto.TimeDiffEpoch("garbage", lineproto.Never)
			return err
		}),
	)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		f, fatal := collector.AsFatal(err)
		require.True(t, fatal)
		assert.Equal(t, lineproto.ExitTimestamp, f.ExitCode())
	case <-time.After(5 * time.Second):
		t.Fatal("fatal error did not stop the scheduler")
	}
	assert.True(t, cancelled.Load())
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := newTestScheduler(t,
		[]Tier{{Name: "t", Interval: time.Hour, Collectors: []string{"a"}}},
		fn("a", succeed),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, _ := s.Stats("t")
		return n == 1
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestNew_Validation(t *testing.T) {
	cfg := Config{Cluster: "c1", NewClient: unusedClient, Sink: &fakeSink{}}

	_, err := New(cfg, []Tier{{Name: "t", Interval: time.Minute, Collectors: []string{"no_such_collector"}}}, discardLogger())
	assert.ErrorContains(t, err, "unknown collector")

	_, err = New(cfg, []Tier{{Name: "t", Collectors: []string{"volumes"}}}, discardLogger())
	assert.ErrorContains(t, err, "interval")

	_, err = New(cfg, []Tier{{Name: "t", Interval: time.Minute}, {Name: "t", Interval: time.Minute}}, discardLogger())
	assert.ErrorContains(t, err, "twice")

	_, err = New(Config{Sink: &fakeSink{}}, nil, discardLogger())
	assert.Error(t, err)

	_, err = New(cfg, DefaultTiers(true), discardLogger())
	assert.NoError(t, err)
}

func TestRandomJitter(t *testing.T) {
	for range 100 {
		d := randomJitter(5*time.Second, 10*time.Second)
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 10*time.Second)
	}
	assert.Equal(t, time.Second, randomJitter(time.Second, time.Second))
}
