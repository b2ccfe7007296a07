// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the collector configuration from YAML, the
// environment and the command line.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/sfc/internal/chunk"
	"github.com/platformbuilds/sfc/internal/logger"
	"github.com/platformbuilds/sfc/internal/otelexport"
	"github.com/platformbuilds/sfc/internal/scheduler"
	"github.com/platformbuilds/sfc/internal/sfapi"
	"github.com/platformbuilds/sfc/internal/sink"
)

type Config struct {
	Cluster       Cluster       `yaml:"cluster"`
	Sink          Sink          `yaml:"sink"`
	Tiers         Tiers         `yaml:"tiers"`
	Log           Log           `yaml:"log"`
	SelfTelemetry SelfTelemetry `yaml:"self_telemetry"`
	OTel          OTel          `yaml:"otel"`
	// ChunkSize is the number of volumes per batched call.
	ChunkSize int `yaml:"chunk_size"`
}

type Cluster struct {
	MVIP               string        `yaml:"mvip"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	APIVersion         string        `yaml:"api_version"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	CAFile             string        `yaml:"ca_file"`
	Timeout            time.Duration `yaml:"timeout"`
}

type Sink struct {
	Type     string            `yaml:"type"`
	Scheme   string            `yaml:"scheme"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Database string            `yaml:"database"`
	Token    string            `yaml:"token"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
	Timeout  time.Duration     `yaml:"timeout"`

	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CAFile             string `yaml:"ca_file"`
}

// Tiers holds the tier cadences in seconds.
type Tiers struct {
	High         int  `yaml:"high"`
	Medium       int  `yaml:"medium"`
	Low          int  `yaml:"low"`
	Experimental bool `yaml:"experimental"`
}

type Log struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

type SelfTelemetry struct {
	// Listen enables /metrics, /healthz and /readyz when set.
	Listen    string `yaml:"listen"`
	Namespace string `yaml:"namespace"`
}

type OTel struct {
	Endpoint       string            `yaml:"endpoint"`
	Protocol       string            `yaml:"protocol"`
	Insecure       bool              `yaml:"insecure"`
	CAFile         string            `yaml:"ca_file"`
	Headers        map[string]string `yaml:"headers"`
	Compression    string            `yaml:"compression"`
	Timeout        time.Duration     `yaml:"timeout"`
	MetricInterval time.Duration     `yaml:"metric_interval"`
	Traces         bool              `yaml:"traces"`
	Metrics        bool              `yaml:"metrics"`
	Logs           bool              `yaml:"logs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	otel := otelexport.DefaultConfig()
	return &Config{
		Cluster: Cluster{
			APIVersion:         sfapi.DefaultAPIVersion,
			InsecureSkipVerify: true,
		},
		Sink: Sink{
			Type:     sink.TypeInfluxDB3,
			Scheme:   "https",
			Host:     "localhost",
			Port:     8181,
			Database: "sfc",
			Timeout:  10 * time.Second,
		},
		Tiers: Tiers{High: 60, Medium: 600, Low: 3600},
		Log:   Log{Level: "INFO", Format: logger.FormatAuto},
		SelfTelemetry: SelfTelemetry{
			Namespace: "sfc",
		},
		OTel: OTel{
			Endpoint:       otel.Endpoint,
			Protocol:       otel.Protocol,
			Insecure:       otel.Insecure,
			Compression:    otel.Compression,
			Timeout:        otel.Timeout,
			MetricInterval: otel.MetricInterval,
		},
		ChunkSize: chunk.DefaultSize,
	}
}

// Load decodes the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c.fillDefaults()
	return c, nil
}

// fillDefaults restores defaults for keys set to empty values.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Cluster.APIVersion == "" {
		c.Cluster.APIVersion = d.Cluster.APIVersion
	}
	if c.Sink.Type == "" {
		c.Sink.Type = d.Sink.Type
	}
	if c.Sink.Scheme == "" {
		c.Sink.Scheme = d.Sink.Scheme
	}
	if c.Sink.Timeout == 0 {
		c.Sink.Timeout = d.Sink.Timeout
	}
	if c.Tiers.High == 0 {
		c.Tiers.High = d.Tiers.High
	}
	if c.Tiers.Medium == 0 {
		c.Tiers.Medium = d.Tiers.Medium
	}
	if c.Tiers.Low == 0 {
		c.Tiers.Low = d.Tiers.Low
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.SelfTelemetry.Namespace == "" {
		c.SelfTelemetry.Namespace = d.SelfTelemetry.Namespace
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Cluster.MVIP == "" {
		errs = append(errs, errors.New("cluster.mvip is required"))
	}
	for tier, secs := range map[string]int{
		scheduler.TierHigh:   c.Tiers.High,
		scheduler.TierMedium: c.Tiers.Medium,
		scheduler.TierLow:    c.Tiers.Low,
	} {
		if err := scheduler.ValidateInterval(tier, time.Duration(secs)*time.Second); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Sink.Type {
	case sink.TypeInfluxDB3, sink.TypeInfluxDB1:
		if c.Sink.Database == "" {
			errs = append(errs, errors.New("sink.database is required"))
		}
	case sink.TypeRemoteWrite:
		if c.Sink.URL == "" {
			errs = append(errs, errors.New("sink.url is required for remote_write"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink type %q", c.Sink.Type))
	}
	return errors.Join(errs...)
}

// SFAPI returns the cluster client settings; the timeout is set per tier.
func (c *Config) SFAPI() sfapi.Config {
	return sfapi.Config{
		Endpoint:           c.Cluster.MVIP,
		APIVersion:         c.Cluster.APIVersion,
		Username:           c.Cluster.Username,
		Password:           c.Cluster.Password,
		Timeout:            c.Cluster.Timeout,
		InsecureSkipVerify: c.Cluster.InsecureSkipVerify,
		CAFile:             c.Cluster.CAFile,
	}
}

func (c *Config) SinkConfig() sink.Config {
	return sink.Config{
		Type:               c.Sink.Type,
		Scheme:             c.Sink.Scheme,
		Host:               c.Sink.Host,
		Port:               c.Sink.Port,
		Database:           c.Sink.Database,
		Token:              c.Sink.Token,
		Username:           c.Sink.Username,
		Password:           c.Sink.Password,
		URL:                c.Sink.URL,
		Headers:            c.Sink.Headers,
		Timeout:            c.Sink.Timeout,
		CAFile:             c.Sink.CAFile,
		InsecureSkipVerify: c.Sink.InsecureSkipVerify,
	}
}

func (c *Config) Intervals() scheduler.Intervals {
	return scheduler.Intervals{
		High:   time.Duration(c.Tiers.High) * time.Second,
		Medium: time.Duration(c.Tiers.Medium) * time.Second,
		Low:    time.Duration(c.Tiers.Low) * time.Second,
	}
}

func (c *Config) OTelConfig() otelexport.Config {
	return otelexport.Config{
		Endpoint:       c.OTel.Endpoint,
		Protocol:       c.OTel.Protocol,
		Insecure:       c.OTel.Insecure,
		CAFile:         c.OTel.CAFile,
		Headers:        c.OTel.Headers,
		Compression:    c.OTel.Compression,
		Timeout:        c.OTel.Timeout,
		Traces:         c.OTel.Traces,
		Metrics:        c.OTel.Metrics,
		Logs:           c.OTel.Logs,
		MetricInterval: c.OTel.MetricInterval,
		ServiceName:    "sfc",
		MVIP:           c.Cluster.MVIP,
	}
}
