// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs collector tiers at independent fixed intervals.
// A tier never overlaps itself: a tick that finds the previous activation
// still running is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/platformbuilds/sfc/internal/collector"
	"github.com/platformbuilds/sfc/internal/selftelemetry"
	"github.com/platformbuilds/sfc/internal/sfapi"
	"github.com/platformbuilds/sfc/internal/sink"
)

const tracerName = "github.com/platformbuilds/sfc/internal/scheduler"

// Tier states.
const (
	Idle int32 = iota
	Running
)

// ClientFactory builds the cluster client of one tier activation with the
// tier's request timeout.
type ClientFactory func(timeout time.Duration) (*sfapi.Client, error)

// Config carries what every activation shares.
type Config struct {
	Cluster   string
	NewClient ClientFactory
	Sink      sink.Sink
	Metrics   *selftelemetry.Metrics
	ChunkSize int
}

// Outcome is the result of one collector within an activation.
type Outcome struct {
	Collector string
	Err       error
	Duration  time.Duration
}

// HealthStatus summarizes the last run of a collector.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// CollectorHealth contains health information for a collector
type CollectorHealth struct {
	Status       HealthStatus
	LastCheck    time.Time
	LastSuccess  time.Time
	LastError    error
	ErrorCount   int
	ResponseTime time.Duration
}

type tierState struct {
	Tier
	state     atomic.Int32
	iteration atomic.Uint64
	skipped   atomic.Uint64
}

// Scheduler coordinates the tiers.
type Scheduler struct {
	cfg    Config
	tiers  []*tierState
	log    *slog.Logger
	lookup func(string) (collector.Collector, bool)
	jitter func(lo, hi time.Duration) time.Duration

	health   map[string]*CollectorHealth
	healthMu sync.RWMutex
}

// New validates tiers against the registered collectors.
func New(cfg Config, tiers []Tier, log *slog.Logger) (*Scheduler, error) {
	return newScheduler(cfg, tiers, log, collector.Lookup)
}

func newScheduler(cfg Config, tiers []Tier, log *slog.Logger, lookup func(string) (collector.Collector, bool)) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.NewClient == nil {
		return nil, errors.New("scheduler needs a client factory")
	}
	if cfg.Sink == nil {
		return nil, errors.New("scheduler needs a sink")
	}
	s := &Scheduler{
		cfg:    cfg,
		log:    log.With("component", "scheduler"),
		lookup: lookup,
		jitter: randomJitter,
		health: make(map[string]*CollectorHealth),
	}
	seen := map[string]struct{}{}
	for _, t := range tiers {
		if t.Interval <= 0 {
			return nil, fmt.Errorf("tier %q: interval must be positive", t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("tier %q declared twice", t.Name)
		}
		seen[t.Name] = struct{}{}
		for _, name := range t.Collectors {
			if _, ok := s.lookup(name); !ok {
				return nil, fmt.Errorf("tier %q: unknown collector %q", t.Name, name)
			}
		}
		s.tiers = append(s.tiers, &tierState{Tier: t})
	}
	return s, nil
}

func randomJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// Run fires every tier immediately and then on each tick until ctx ends or
// a collector reports a fatal error, which Run returns. In-flight
// activations are waited for before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.log.Info("starting scheduler", "tiers", len(s.tiers), "cluster", s.cfg.Cluster)

	var wg conc.WaitGroup
	for _, t := range s.tiers {
		wg.Go(func() { s.loop(ctx, cancel, t, &wg) })
	}
	wg.Wait()

	cause := context.Cause(ctx)
	if _, fatal := collector.AsFatal(cause); fatal {
		return cause
	}
	s.log.Info("scheduler stopped")
	return nil
}

// loop runs the periodic activation of one tier.
func (s *Scheduler) loop(ctx context.Context, cancel context.CancelCauseFunc, t *tierState, wg *conc.WaitGroup) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	fire := func() {
		if !t.state.CompareAndSwap(Idle, Running) {
			n := t.skipped.Add(1)
			s.cfg.Metrics.TierSkip(t.Name)
			s.log.Warn("previous activation still running, skipping tick", "tier", t.Name, "skipped", n)
			return
		}
		wg.Go(func() {
			defer t.state.Store(Idle)
			if _, err := s.activate(ctx, t); err != nil {
				cancel(err)
			}
		})
	}

	fire()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}

// Activate runs one tier once, outside the ticker, if it is idle.
func (s *Scheduler) Activate(ctx context.Context, name string) ([]Outcome, error) {
	for _, t := range s.tiers {
		if t.Name != name {
			continue
		}
		if !t.state.CompareAndSwap(Idle, Running) {
			return nil, fmt.Errorf("tier %q is already running", name)
		}
		defer t.state.Store(Idle)
		return s.activate(ctx, t)
	}
	return nil, fmt.Errorf("unknown tier %q", name)
}

// activate runs all collectors of t concurrently with a fresh client. Only
// a fatal outcome is returned as error; it cancels the sibling collectors.
func (s *Scheduler) activate(ctx context.Context, t *tierState) ([]Outcome, error) {
	iteration := t.iteration.Add(1)
	log := s.log.With("tier", t.Name, "iteration", iteration)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "tier."+t.Name)
	defer span.End()
	span.SetAttributes(attribute.String("sfc.tier", t.Name), attribute.Int64("sfc.iteration", int64(iteration)))

	if t.JitterMax > 0 {
		d := s.jitter(t.JitterMin, t.JitterMax)
		log.Debug("delaying activation", "delay", d)
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(d):
		}
	}

	start := time.Now()
	client, err := s.cfg.NewClient(t.Timeout)
	if err != nil {
		log.Error("failed to create cluster client", "error", err)
		return nil, nil
	}
	defer client.Close()

	env := collector.NewEnv(s.cfg.Cluster, client, s.cfg.Sink, log, s.cfg.Metrics)
	if s.cfg.ChunkSize > 0 {
		env.ChunkSize = s.cfg.ChunkSize
	}

	outcomes := make([]Outcome, len(t.Collectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range t.Collectors {
		c, _ := s.lookup(name)
		g.Go(func() error {
			began := time.Now()
			err := collector.Run(gctx, env, c)
			outcomes[i] = Outcome{Collector: name, Err: err, Duration: time.Since(began)}
			s.updateHealth(name, outcomes[i])
			if _, fatal := collector.AsFatal(err); fatal {
				return err
			}
			return nil
		})
	}
	fatal := g.Wait()

	took := time.Since(start)
	s.cfg.Metrics.ObserveTier(t.Name, took)
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	log.Info("tier activation completed", "collectors", len(outcomes), "failed", failed, "duration", took)
	if fatal != nil {
		span.RecordError(fatal)
		log.Error("fatal collector error, stopping", "error", fatal)
	}
	return outcomes, fatal
}

// updateHealth updates the health status for a collector
func (s *Scheduler) updateHealth(name string, o Outcome) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	now := time.Now()
	h, ok := s.health[name]
	if !ok {
		h = &CollectorHealth{}
		s.health[name] = h
	}
	h.LastCheck = now
	h.ResponseTime = o.Duration
	h.LastError = o.Err
	if o.Err != nil {
		h.Status = HealthStatusUnhealthy
		h.ErrorCount++
		return
	}
	h.Status = HealthStatusHealthy
	h.LastSuccess = now
}

// Health returns a copy of the health of all collectors that ran.
func (s *Scheduler) Health() map[string]CollectorHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	result := make(map[string]CollectorHealth, len(s.health))
	for k, v := range s.health {
		result[k] = *v
	}
	return result
}

// Stats returns the number of activations started and ticks skipped for a
// tier.
func (s *Scheduler) Stats(name string) (iterations, skipped uint64) {
	for _, t := range s.tiers {
		if t.Name == name {
			return t.iteration.Load(), t.skipped.Load()
		}
	}
	return 0, 0
}

// Report converts Health and Stats into the self-telemetry health view.
func (s *Scheduler) Report() selftelemetry.HealthReport {
	r := selftelemetry.HealthReport{
		Collectors: map[string]selftelemetry.CollectorReport{},
		Tiers:      make(map[string]selftelemetry.TierReport, len(s.tiers)),
	}
	for name, h := range s.Health() {
		c := selftelemetry.CollectorReport{
			Status:         string(h.Status),
			Healthy:        h.Status == HealthStatusHealthy,
			LastCheck:      h.LastCheck,
			LastSuccess:    h.LastSuccess,
			ErrorCount:     h.ErrorCount,
			ResponseTimeMS: h.ResponseTime.Milliseconds(),
		}
		if h.LastError != nil {
			c.LastError = h.LastError.Error()
		}
		r.Collectors[name] = c
	}
	for _, t := range s.tiers {
		iterations, skipped := s.Stats(t.Name)
		r.Tiers[t.Name] = selftelemetry.TierReport{Iterations: iterations, Skipped: skipped}
	}
	return r
}
