// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/influxdata/influxdb1-client/models"
	client "github.com/influxdata/influxdb1-client/v2"
	promcfg "github.com/prometheus/common/config"

	"github.com/platformbuilds/sfc/internal/selftelemetry"
	"github.com/platformbuilds/sfc/internal/version"
)

// InfluxDB1 writes to an InfluxDB 1.x server with the official client.
type InfluxDB1 struct {
	base
	cfg    Config
	client client.Client
}

func NewInfluxDB1(cfg Config, log *slog.Logger, metrics *selftelemetry.Metrics) (*InfluxDB1, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	tlsCfg, err := promcfg.NewTLSConfig(&promcfg.TLSConfig{
		CAFile:             cfg.CAFile,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid influxdb1 TLS config: %w", err)
	}
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:               cfg.BaseURL(),
		Username:           cfg.Username,
		Password:           cfg.Password,
		UserAgent:          version.UserAgent(),
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		TLSConfig:          tlsCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build influxdb1 client: %w", err)
	}
	return &InfluxDB1{base: newBase(TypeInfluxDB1, log, metrics), cfg: cfg, client: c}, nil
}

// Send parses the payload into points at second precision and writes them
// as one batch.
func (s *InfluxDB1) Send(ctx context.Context, payload string) bool {
	body, measurement, err := Validate(payload)
	if err != nil {
		return s.rejected(ctx, payload, err)
	}
	if s.cfg.Database == "" {
		return s.rejected(ctx, payload, errMissingCredentials)
	}
	pts, err := models.ParsePointsWithPrecision([]byte(body), time.Now().UTC(), "s")
	if err != nil {
		return s.rejected(ctx, payload, fmt.Errorf("unparsable line protocol: %w", err))
	}
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: s.cfg.Database, Precision: "s"})
	if err != nil {
		return s.failed(ctx, measurement, body, err)
	}
	for _, p := range pts {
		bp.AddPoint(client.NewPointFrom(p))
	}
	if err := s.client.Write(bp); err != nil {
		return s.failed(ctx, measurement, body, err)
	}
	return s.sent(ctx, measurement, len(pts))
}

func (s *InfluxDB1) query(cmd string) (*client.Response, error) {
	resp, err := s.client.Query(client.NewQuery(cmd, "", ""))
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	return resp, nil
}

// EnsureDatabase runs SHOW DATABASES and CREATE DATABASE when name is
// missing.
func (s *InfluxDB1) EnsureDatabase(_ context.Context, name string) error {
	resp, err := s.query("SHOW DATABASES")
	if err != nil {
		return fmt.Errorf("failed to list databases: %w", err)
	}
	for _, res := range resp.Results {
		for _, row := range res.Series {
			for _, v := range row.Values {
				if len(v) > 0 && fmt.Sprint(v[0]) == name {
					s.log.Info("database exists, skipping creation", "database", name)
					return nil
				}
			}
		}
	}
	if _, err := s.query(fmt.Sprintf("CREATE DATABASE %q", strings.ReplaceAll(name, `"`, ``))); err != nil {
		return fmt.Errorf("failed to create database %q: %w", name, err)
	}
	s.log.Info("database created", "database", name)
	return nil
}

func (s *InfluxDB1) Close() error { return s.client.Close() }
