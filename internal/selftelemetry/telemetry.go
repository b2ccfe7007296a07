// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package selftelemetry provides self-monitoring metrics for the collector.
package selftelemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const defaultNamespace = "sfc"

// Sink outcome label values.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)

// Metrics holds the Prometheus collectors and their OTel counterparts.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	ready    atomic.Bool
	health   atomic.Pointer[HealthSource]

	CollectorDuration *prometheus.HistogramVec
	CollectorFailures *prometheus.CounterVec
	TierRuns          *prometheus.CounterVec
	TierSkipped       *prometheus.CounterVec
	TierDuration      *prometheus.HistogramVec
	SinkPayloads      *prometheus.CounterVec
	Ready             prometheus.Gauge

	otelDuration metric.Float64Histogram
	otelPayloads metric.Int64Counter
}

// NewMetrics registers all metrics on a private registry. OTel instruments
// come from the global meter provider, which is a no-op unless OTLP metric
// export is configured.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.CollectorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "collector_duration_seconds",
		Help:      "Wall time of one collector run",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"collector"})
	m.CollectorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collector_failures_total",
		Help:      "Collector runs that returned an error",
	}, []string{"collector"})
	m.TierRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tier_runs_total",
		Help:      "Tier activations",
	}, []string{"tier"})
	m.TierSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tier_skipped_total",
		Help:      "Ticks skipped because the tier was still running",
	}, []string{"tier"})
	m.TierDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tier_duration_seconds",
		Help:      "Wall time of one tier activation",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"tier"})
	m.SinkPayloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_payloads_total",
		Help:      "Payloads handed to the sink by outcome",
	}, []string{"sink", "result"})
	m.Ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ready",
		Help:      "1 once the sink is bootstrapped and the scheduler runs",
	})

	m.registry.MustRegister(
		m.CollectorDuration, m.CollectorFailures,
		m.TierRuns, m.TierSkipped, m.TierDuration,
		m.SinkPayloads, m.Ready,
	)

	meter := otel.Meter("github.com/platformbuilds/sfc")
	m.otelDuration, _ = meter.Float64Histogram(namespace+".collector.duration",
		metric.WithUnit("s"), metric.WithDescription("Wall time of one collector run"))
	m.otelPayloads, _ = meter.Int64Counter(namespace+".sink.payloads",
		metric.WithDescription("Payloads handed to the sink by outcome"))
	return m
}

// Registry exposes the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveCollector records one collector run.
func (m *Metrics) ObserveCollector(ctx context.Context, name string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.CollectorDuration.WithLabelValues(name).Observe(d.Seconds())
	if failed {
		m.CollectorFailures.WithLabelValues(name).Inc()
	}
	if m.otelDuration != nil {
		m.otelDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String("collector", name),
			attribute.Bool("failed", failed),
		))
	}
}

// ObserveTier records one finished tier activation.
func (m *Metrics) ObserveTier(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.TierRuns.WithLabelValues(name).Inc()
	m.TierDuration.WithLabelValues(name).Observe(d.Seconds())
}

// TierSkip counts a tick dropped because the tier was busy.
func (m *Metrics) TierSkip(name string) {
	if m == nil {
		return
	}
	m.TierSkipped.WithLabelValues(name).Inc()
}

// SinkResult counts one payload outcome.
func (m *Metrics) SinkResult(ctx context.Context, sink, result string) {
	if m == nil {
		return
	}
	m.SinkPayloads.WithLabelValues(sink, result).Inc()
	if m.otelPayloads != nil {
		m.otelPayloads.Add(ctx, 1, metric.WithAttributes(
			attribute.String("sink", sink),
			attribute.String("result", result),
		))
	}
}

// SetReady flips /readyz and the ready gauge.
func (m *Metrics) SetReady(v bool) {
	if m == nil {
		return
	}
	m.ready.Store(v)
	if v {
		m.Ready.Set(1)
	} else {
		m.Ready.Set(0)
	}
}

// IsReady reports the readiness state.
func (m *Metrics) IsReady() bool {
	return m != nil && m.ready.Load()
}
