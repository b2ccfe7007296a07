// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
)

const scopeName = "github.com/platformbuilds/sfc"

// otelHandler converts slog records into OTel log records.
type otelHandler struct {
	logger otellog.Logger
	level  slog.Leveler
	attrs  []otellog.KeyValue
	prefix string
}

func newOTelHandler(p otellog.LoggerProvider, lvl slog.Leveler) *otelHandler {
	return &otelHandler{logger: p.Logger(scopeName), level: lvl}
}

func (h *otelHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

func (h *otelHandler) Handle(ctx context.Context, r slog.Record) error {
	var rec otellog.Record
	rec.SetTimestamp(r.Time)
	rec.SetObservedTimestamp(time.Now())
	rec.SetSeverity(severity(r.Level))
	rec.SetSeverityText(LevelString(r.Level))
	rec.SetBody(otellog.StringValue(r.Message))
	rec.AddAttributes(h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if kv, ok := h.convert(a); ok {
			rec.AddAttributes(kv)
		}
		return true
	})
	h.logger.Emit(ctx, rec)
	return nil
}

func (h *otelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append([]otellog.KeyValue(nil), h.attrs...)
	for _, a := range attrs {
		if kv, ok := h.convert(a); ok {
			c.attrs = append(c.attrs, kv)
		}
	}
	return &c
}

func (h *otelHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func (h *otelHandler) convert(a slog.Attr) (otellog.KeyValue, bool) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return otellog.KeyValue{}, false
	}
	return otellog.KeyValue{Key: h.prefix + a.Key, Value: value(a.Value)}, true
}

func value(v slog.Value) otellog.Value {
	switch v.Kind() {
	case slog.KindString:
		return otellog.StringValue(v.String())
	case slog.KindInt64:
		return otellog.Int64Value(v.Int64())
	case slog.KindUint64:
		return otellog.Int64Value(int64(v.Uint64()))
	case slog.KindFloat64:
		return otellog.Float64Value(v.Float64())
	case slog.KindBool:
		return otellog.BoolValue(v.Bool())
	case slog.KindDuration:
		return otellog.StringValue(v.Duration().String())
	case slog.KindTime:
		return otellog.StringValue(v.Time().Format(time.RFC3339Nano))
	case slog.KindGroup:
		group := v.Group()
		kvs := make([]otellog.KeyValue, 0, len(group))
		for _, a := range group {
			kvs = append(kvs, otellog.KeyValue{Key: a.Key, Value: value(a.Value.Resolve())})
		}
		return otellog.MapValue(kvs...)
	}
	if err, ok := v.Any().(error); ok {
		return otellog.StringValue(err.Error())
	}
	return otellog.StringValue(strings.TrimSpace(fmt.Sprint(v.Any())))
}

func severity(lvl slog.Level) otellog.Severity {
	switch {
	case lvl >= LevelCritical:
		return otellog.SeverityFatal
	case lvl >= slog.LevelError:
		return otellog.SeverityError
	case lvl >= slog.LevelWarn:
		return otellog.SeverityWarn
	case lvl >= slog.LevelInfo:
		return otellog.SeverityInfo
	}
	return otellog.SeverityDebug
}
