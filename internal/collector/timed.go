// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platformbuilds/sfc/internal/lineproto"
	"github.com/platformbuilds/sfc/internal/sfapi"
)

const tracerName = "github.com/platformbuilds/sfc/internal/collector"

// SelfMeasurement is the measurement carrying collector timings.
const SelfMeasurement = "sfc_metrics"

// Run executes c with timing, panic containment and the self-metric. It
// returns c's error; ErrNoData is reported as nil.
func Run(ctx context.Context, env *Env, c Collector) error {
	log := env.Log.With("collector", c.Name)
	cenv := env.with(log)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "collector."+c.Name)
	defer span.End()
	span.SetAttributes(attribute.String("sfc.collector", c.Name), attribute.String("sfc.cluster", env.Cluster))

	start := time.Now()
	var err error
	if r := panics.Try(func() { err = c.Run(ctx, cenv) }); r != nil {
		err = r.AsError()
		log.Error("collector panicked", "panic", r.Value, "stack", string(r.Stack))
	}
	took := time.Since(start)

	if errors.Is(err, ErrNoData) {
		log.Info("no data to send", "duration", took)
		return nil
	}

	env.Metrics.ObserveCollector(ctx, c.Name, took, err != nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if _, fatal := AsFatal(err); fatal {
			log.Error("fatal collector error", "error", err)
			return err
		}
		attrs := []any{"error", err, "duration", took}
		if body, ok := sfapi.ResponseBody(err); ok {
			attrs = append(attrs, "response_body", body)
		}
		log.Error("collector failed", attrs...)
	} else {
		log.Info("collected", "duration", took)
	}
	sendTiming(ctx, cenv, c.Name, took)
	return err
}

// sendTiming reports the run duration, rounded to milliseconds. A failed
// send is tolerated.
func sendTiming(ctx context.Context, env *Env, name string, took time.Duration) {
	secs := math.Max(0, math.Round(took.Seconds()*1000)/1000)
	line, err := lineproto.New(SelfMeasurement).
		Tag("cluster", env.Cluster).
		Tag("function", name).
		Float("time_taken", secs).
		Line()
	if err != nil {
		env.Log.Error("failed to encode collector timing", "error", err)
		return
	}
	if !env.Sink.Send(ctx, line+"\n") {
		env.Log.Warn("collector timing not delivered")
	}
}
