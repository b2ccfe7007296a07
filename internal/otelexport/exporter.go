// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package otelexport sets up OTLP export of the collector's own traces,
// metrics and logs.
package otelexport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/platformbuilds/sfc/internal/version"
)

// Transport protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config holds the OTLP export settings.
type Config struct {
	// Endpoint is host:port of the OTLP receiver, e.g. "localhost:4317".
	Endpoint string
	// Protocol is "grpc" or "http".
	Protocol string
	// Insecure disables TLS towards the receiver.
	Insecure bool
	CAFile   string
	Headers  map[string]string
	// Compression is "gzip" or "none".
	Compression string
	Timeout     time.Duration

	Traces  bool
	Metrics bool
	Logs    bool

	// MetricInterval is the periodic reader interval.
	MetricInterval time.Duration

	ServiceName string
	// MVIP is added as a resource attribute.
	MVIP string
}

// Enabled reports whether any signal is exported.
func (c Config) Enabled() bool {
	return c.Traces || c.Metrics || c.Logs
}

// DefaultConfig returns settings for a local collector. No signal is enabled.
func DefaultConfig() Config {
	return Config{
		Endpoint:       "localhost:4317",
		Protocol:       ProtocolGRPC,
		Insecure:       true,
		Compression:    "gzip",
		Timeout:        10 * time.Second,
		MetricInterval: 60 * time.Second,
		ServiceName:    "sfc",
	}
}

// Exporter owns the SDK providers and the shared gRPC connection.
type Exporter struct {
	cfg Config
	log *slog.Logger

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider

	resource *resource.Resource
	grpcConn *grpc.ClientConn

	mu      sync.Mutex
	running bool
}

// New validates cfg and returns an exporter that has not started yet.
func New(cfg Config, log *slog.Logger) (*Exporter, error) {
	if log == nil {
		log = slog.Default()
	}
	switch cfg.Protocol {
	case ProtocolGRPC, ProtocolHTTP:
	case "":
		cfg.Protocol = ProtocolGRPC
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", cfg.Protocol)
	}
	if cfg.Enabled() && cfg.Endpoint == "" {
		return nil, errors.New("OTLP endpoint is required")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "sfc"
	}
	if cfg.MetricInterval <= 0 {
		cfg.MetricInterval = 60 * time.Second
	}
	return &Exporter{
		cfg: cfg,
		log: log.With("component", "otel_exporter"),
	}, nil
}

// Start builds a provider for every enabled signal. It is a no-op when
// nothing is enabled.
func (e *Exporter) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running || !e.cfg.Enabled() {
		return nil
	}

	e.log.Info("starting OTLP export",
		"endpoint", e.cfg.Endpoint,
		"protocol", e.cfg.Protocol,
		"traces", e.cfg.Traces,
		"metrics", e.cfg.Metrics,
		"logs", e.cfg.Logs,
	)

	if err := e.buildResource(ctx); err != nil {
		return fmt.Errorf("build resource: %w", err)
	}

	if e.cfg.Protocol == ProtocolGRPC {
		if err := e.dial(); err != nil {
			return err
		}
	}

	if e.cfg.Traces {
		if err := e.initTraces(ctx); err != nil {
			return err
		}
	}
	if e.cfg.Metrics {
		if err := e.initMetrics(ctx); err != nil {
			return err
		}
	}
	if e.cfg.Logs {
		if err := e.initLogs(ctx); err != nil {
			return err
		}
	}

	e.running = true
	return nil
}

// Install registers the started providers as the process-wide globals and
// sets the W3C trace context propagator.
func (e *Exporter) Install() {
	e.mu.Lock()
	defer e.mu.Unlock()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	if e.tracerProvider != nil {
		otel.SetTracerProvider(e.tracerProvider)
	}
	if e.meterProvider != nil {
		otel.SetMeterProvider(e.meterProvider)
	}
}

func (e *Exporter) buildResource(ctx context.Context) error {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(e.cfg.ServiceName),
		semconv.ServiceVersion(version.Version()),
	}
	if e.cfg.MVIP != "" {
		attrs = append(attrs, attribute.String("solidfire.mvip", e.cfg.MVIP))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return err
	}
	e.resource = res
	return nil
}

func (e *Exporter) dial() error {
	creds := insecure.NewCredentials()
	if !e.cfg.Insecure {
		tlsCfg, err := e.tlsConfig()
		if err != nil {
			return err
		}
		creds = credentials.NewTLS(tlsCfg)
	}

	conn, err := grpc.NewClient(e.cfg.Endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return fmt.Errorf("dial OTLP receiver: %w", err)
	}
	e.grpcConn = conn
	return nil
}

func (e *Exporter) gzip() bool { return e.cfg.Compression == "gzip" }

func (e *Exporter) initTraces(ctx context.Context) error {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	if e.grpcConn != nil {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithGRPCConn(e.grpcConn), otlptracegrpc.WithTimeout(e.cfg.Timeout)}
		if e.gzip() {
			opts = append(opts, otlptracegrpc.WithCompressor("gzip"))
		}
		if len(e.cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(e.cfg.Headers))
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	} else {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(e.cfg.Endpoint), otlptracehttp.WithTimeout(e.cfg.Timeout)}
		if e.cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else if tlsCfg, terr := e.tlsConfig(); terr != nil {
			return terr
		} else {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(tlsCfg))
		}
		if e.gzip() {
			opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
		}
		if len(e.cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(e.cfg.Headers))
		}
		exp, err = otlptracehttp.New(ctx, opts...)
	}
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	e.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(e.resource),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	return nil
}

func (e *Exporter) initMetrics(ctx context.Context) error {
	var (
		exp sdkmetric.Exporter
		err error
	)
	if e.grpcConn != nil {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithGRPCConn(e.grpcConn), otlpmetricgrpc.WithTimeout(e.cfg.Timeout)}
		if e.gzip() {
			opts = append(opts, otlpmetricgrpc.WithCompressor("gzip"))
		}
		if len(e.cfg.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(e.cfg.Headers))
		}
		exp, err = otlpmetricgrpc.New(ctx, opts...)
	} else {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(e.cfg.Endpoint), otlpmetrichttp.WithTimeout(e.cfg.Timeout)}
		if e.cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		} else if tlsCfg, terr := e.tlsConfig(); terr != nil {
			return terr
		} else {
			opts = append(opts, otlpmetrichttp.WithTLSClientConfig(tlsCfg))
		}
		if e.gzip() {
			opts = append(opts, otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression))
		}
		if len(e.cfg.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(e.cfg.Headers))
		}
		exp, err = otlpmetrichttp.New(ctx, opts...)
	}
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	e.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(e.resource),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(e.cfg.MetricInterval),
		)),
	)
	return nil
}

func (e *Exporter) initLogs(ctx context.Context) error {
	var (
		exp sdklog.Exporter
		err error
	)
	if e.grpcConn != nil {
		opts := []otlploggrpc.Option{otlploggrpc.WithGRPCConn(e.grpcConn), otlploggrpc.WithTimeout(e.cfg.Timeout)}
		if e.gzip() {
			opts = append(opts, otlploggrpc.WithCompressor("gzip"))
		}
		if len(e.cfg.Headers) > 0 {
			opts = append(opts, otlploggrpc.WithHeaders(e.cfg.Headers))
		}
		exp, err = otlploggrpc.New(ctx, opts...)
	} else {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(e.cfg.Endpoint), otlploghttp.WithTimeout(e.cfg.Timeout)}
		if e.cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		} else if tlsCfg, terr := e.tlsConfig(); terr != nil {
			return terr
		} else {
			opts = append(opts, otlploghttp.WithTLSClientConfig(tlsCfg))
		}
		if e.gzip() {
			opts = append(opts, otlploghttp.WithCompression(otlploghttp.GzipCompression))
		}
		if len(e.cfg.Headers) > 0 {
			opts = append(opts, otlploghttp.WithHeaders(e.cfg.Headers))
		}
		exp, err = otlploghttp.New(ctx, opts...)
	}
	if err != nil {
		return fmt.Errorf("create log exporter: %w", err)
	}

	e.loggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithResource(e.resource),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp,
			sdklog.WithExportTimeout(e.cfg.Timeout),
		)),
	)
	return nil
}

func (e *Exporter) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if e.cfg.CAFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(e.cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", e.cfg.CAFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// TracerProvider returns the trace provider, nil when traces are disabled.
func (e *Exporter) TracerProvider() *sdktrace.TracerProvider {
	return e.tracerProvider
}

// MeterProvider returns the meter provider, nil when metrics are disabled.
func (e *Exporter) MeterProvider() *sdkmetric.MeterProvider {
	return e.meterProvider
}

// LoggerProvider returns the logger provider, nil when logs are disabled.
func (e *Exporter) LoggerProvider() *sdklog.LoggerProvider {
	return e.loggerProvider
}

// Shutdown flushes and stops every provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.log.Info("shutting down OTLP export")

	var errs []error
	if e.tracerProvider != nil {
		if err := e.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if e.meterProvider != nil {
		if err := e.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	if e.loggerProvider != nil {
		if err := e.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
		}
	}
	if e.grpcConn != nil {
		if err := e.grpcConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gRPC connection close: %w", err))
		}
	}

	e.running = false
	return errors.Join(errs...)
}
