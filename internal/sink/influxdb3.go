// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	promcfg "github.com/prometheus/common/config"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/platformbuilds/sfc/internal/selftelemetry"
	"github.com/platformbuilds/sfc/internal/version"
)

// InfluxDB3 writes through the v3 line-protocol endpoint.
type InfluxDB3 struct {
	base
	cfg    Config
	client *http.Client
}

func NewInfluxDB3(cfg Config, log *slog.Logger, metrics *selftelemetry.Metrics) (*InfluxDB3, error) {
	hc, err := promcfg.NewClientFromConfig(cfg.httpClientConfig(), "influxdb3", promcfg.WithUserAgent(version.UserAgent()))
	if err != nil {
		return nil, fmt.Errorf("failed to build influxdb3 HTTP client: %w", err)
	}
	hc.Timeout = cfg.Timeout
	return &InfluxDB3{base: newBase(TypeInfluxDB3, log, metrics), cfg: cfg, client: hc}, nil
}

func (s *InfluxDB3) writeURL() string {
	q := url.Values{}
	q.Set("db", s.cfg.Database)
	q.Set("precision", "second")
	return s.cfg.BaseURL() + "/api/v3/write_lp?" + q.Encode()
}

func (s *InfluxDB3) Send(ctx context.Context, payload string) bool {
	body, measurement, err := Validate(payload)
	if err != nil {
		return s.rejected(ctx, payload, err)
	}
	if s.cfg.Token == "" || s.cfg.Database == "" {
		return s.rejected(ctx, payload, errMissingCredentials)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.writeURL(), bytes.NewBufferString(body))
	if err != nil {
		return s.failed(ctx, measurement, body, err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		return s.failed(ctx, measurement, body, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return s.failed(ctx, measurement, body, fmt.Errorf("response code %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return s.sent(ctx, measurement, bytes.Count([]byte(body), []byte("\n")))
}

// Databases lists existing databases. The endpoint returns an array of
// objects whose first member is the database name.
func (s *InfluxDB3) Databases(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL()+"/api/v3/configure/database?format=json", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read database list: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list databases: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("failed to list databases: malformed response %q", body)
	}
	var dbs []string
	gjson.ParseBytes(body).ForEach(func(_, db gjson.Result) bool {
		db.ForEach(func(_, v gjson.Result) bool {
			dbs = append(dbs, v.String())
			return false
		})
		return true
	})
	return dbs, nil
}

// EnsureDatabase creates name unless it already exists.
func (s *InfluxDB3) EnsureDatabase(ctx context.Context, name string) error {
	dbs, err := s.Databases(ctx)
	if err != nil {
		return err
	}
	s.log.Debug("existing databases", "databases", dbs)
	for _, db := range dbs {
		if db == name {
			s.log.Info("database exists, skipping creation", "database", name)
			return nil
		}
	}

	payload, _ := json.Marshal(map[string]string{"db": name})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL()+"/api/v3/configure/database", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to create database %q: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("failed to create database %q: status %d: %s", name, resp.StatusCode, bytes.TrimSpace(msg))
	}
	s.log.Info("database created", "database", name)
	return nil
}

func (s *InfluxDB3) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
