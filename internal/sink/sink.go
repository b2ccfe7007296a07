// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package sink delivers line-protocol payloads to a time-series database.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	promcfg "github.com/prometheus/common/config"

	"github.com/platformbuilds/sfc/internal/selftelemetry"
)

// Sink types.
const (
	TypeInfluxDB3   = "influxdb3"
	TypeInfluxDB1   = "influxdb1"
	TypeRemoteWrite = "remote_write"
)

// Sink accepts newline-separated line-protocol payloads. Send never returns
// an error: failures are logged with the payload and reported as false.
type Sink interface {
	Name() string
	Send(ctx context.Context, payload string) bool
	EnsureDatabase(ctx context.Context, name string) error
	Close() error
}

// Config selects and configures a sink.
type Config struct {
	Type     string
	Scheme   string
	Host     string
	Port     int
	Database string
	Token    string
	Username string
	Password string

	// URL is the remote-write endpoint; Host/Port are ignored when set.
	URL     string
	Headers map[string]string

	Timeout            time.Duration
	CAFile             string
	InsecureSkipVerify bool
}

// BaseURL returns scheme://host:port.
func (c Config) BaseURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + c.Host + ":" + strconv.Itoa(c.Port)
}

func (c Config) httpClientConfig() promcfg.HTTPClientConfig {
	hc := promcfg.HTTPClientConfig{
		TLSConfig: promcfg.TLSConfig{
			CAFile:             c.CAFile,
			InsecureSkipVerify: c.InsecureSkipVerify,
		},
		FollowRedirects: true,
	}
	if c.Token != "" {
		hc.Authorization = &promcfg.Authorization{Type: "Bearer", Credentials: promcfg.Secret(c.Token)}
	}
	return hc
}

// New builds the sink named by cfg.Type; an empty type means influxdb3.
func New(cfg Config, log *slog.Logger, metrics *selftelemetry.Metrics) (Sink, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	switch cfg.Type {
	case "", TypeInfluxDB3:
		return NewInfluxDB3(cfg, log, metrics)
	case TypeInfluxDB1:
		return NewInfluxDB1(cfg, log, metrics)
	case TypeRemoteWrite:
		return NewRemoteWrite(cfg, log, metrics)
	}
	return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
}

var (
	ErrEmptyPayload       = errors.New("payload is empty or has no lines")
	ErrEmptyMeasurement   = errors.New("measurement is empty")
	errMissingCredentials = errors.New("token or database not configured")
)

// Validate checks a payload before it is sent and returns it with trailing
// whitespace trimmed from every line, plus the first measurement name.
// Lines are trimmed in place, never dropped, so the normalized payload has
// as many lines as the input.
func Validate(payload string) (string, string, error) {
	if payload == "" || !strings.Contains(payload, "\n") {
		return "", "", ErrEmptyPayload
	}
	lines := strings.Split(strings.TrimSuffix(payload, "\n"), "\n")
	measurement, _, _ := strings.Cut(lines[0], ",")
	measurement, _, _ = strings.Cut(measurement, " ")
	if measurement == "" {
		return "", "", ErrEmptyMeasurement
	}
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.Join(lines, "\n") + "\n", measurement, nil
}

// base carries logging and outcome accounting shared by all sinks.
type base struct {
	name    string
	log     *slog.Logger
	metrics *selftelemetry.Metrics
}

func newBase(name string, log *slog.Logger, metrics *selftelemetry.Metrics) base {
	return base{name: name, log: log.With("component", "sink", "sink", name), metrics: metrics}
}

func (b base) Name() string { return b.name }

func (b base) rejected(ctx context.Context, payload string, err error) bool {
	b.log.Error("payload rejected", "error", err, "payload", payload)
	b.metrics.SinkResult(ctx, b.name, selftelemetry.ResultRejected)
	return false
}

func (b base) failed(ctx context.Context, measurement, payload string, err error) bool {
	b.log.Error("failed to send metrics", "measurement", measurement, "error", err, "payload", payload)
	b.metrics.SinkResult(ctx, b.name, selftelemetry.ResultFailure)
	return false
}

func (b base) sent(ctx context.Context, measurement string, lines int) bool {
	b.log.Debug("payload sent", "measurement", measurement, "lines", lines)
	b.metrics.SinkResult(ctx, b.name, selftelemetry.ResultSuccess)
	return true
}
