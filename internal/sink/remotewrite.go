// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/influxdata/influxdb1-client/models"
	promcfg "github.com/prometheus/common/config"
	"github.com/prometheus/common/model"
	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/platformbuilds/sfc/internal/selftelemetry"
	"github.com/platformbuilds/sfc/internal/version"
)

// RemoteWrite converts line protocol into Prometheus remote-write samples.
// Every numeric field becomes the series <measurement>_<field>; tags become
// labels. String fields have no sample representation and are dropped.
type RemoteWrite struct {
	base
	cfg    Config
	url    string
	client *http.Client
}

func NewRemoteWrite(cfg Config, log *slog.Logger, metrics *selftelemetry.Metrics) (*RemoteWrite, error) {
	u := cfg.URL
	if u == "" {
		if cfg.Host == "" {
			return nil, fmt.Errorf("remote_write sink needs a URL or host")
		}
		u = cfg.BaseURL() + "/api/v1/write"
	}
	hc, err := promcfg.NewClientFromConfig(cfg.httpClientConfig(), "remote_write", promcfg.WithUserAgent(version.UserAgent()))
	if err != nil {
		return nil, fmt.Errorf("failed to build remote_write HTTP client: %w", err)
	}
	hc.Timeout = cfg.Timeout
	return &RemoteWrite{base: newBase(TypeRemoteWrite, log, metrics), cfg: cfg, url: u, client: hc}, nil
}

func (s *RemoteWrite) Send(ctx context.Context, payload string) bool {
	body, measurement, err := Validate(payload)
	if err != nil {
		return s.rejected(ctx, payload, err)
	}
	wr, err := ToWriteRequest(body, time.Now())
	if err != nil {
		return s.rejected(ctx, payload, err)
	}
	if len(wr.Timeseries) == 0 {
		s.log.Debug("payload has no numeric fields", "measurement", measurement)
		return s.sent(ctx, measurement, 0)
	}
	raw, err := wr.Marshal()
	if err != nil {
		return s.failed(ctx, measurement, body, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(snappy.Encode(nil, raw)))
	if err != nil {
		return s.failed(ctx, measurement, body, err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := s.client.Do(req)
	if err != nil {
		return s.failed(ctx, measurement, body, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return s.failed(ctx, measurement, body, fmt.Errorf("remote_write status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return s.sent(ctx, measurement, len(wr.Timeseries))
}

// ToWriteRequest parses line protocol at second precision. Lines without a
// timestamp are stamped with now.
func ToWriteRequest(payload string, now time.Time) (*prompb.WriteRequest, error) {
	pts, err := models.ParsePointsWithPrecision([]byte(payload), now.UTC(), "s")
	if err != nil {
		return nil, fmt.Errorf("unparsable line protocol: %w", err)
	}
	wr := &prompb.WriteRequest{}
	for _, p := range pts {
		fields, err := p.Fields()
		if err != nil {
			return nil, fmt.Errorf("unparsable fields in %q: %w", p.Name(), err)
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		tags := make([]prompb.Label, 0, len(p.Tags())+1)
		for _, t := range p.Tags() {
			tags = append(tags, prompb.Label{Name: sanitize(string(t.Key)), Value: string(t.Value)})
		}
		ts := p.Time().UnixMilli()
		for _, k := range keys {
			v, ok := sampleValue(fields[k])
			if !ok {
				continue
			}
			labels := make([]prompb.Label, 0, len(tags)+1)
			labels = append(labels, prompb.Label{Name: model.MetricNameLabel, Value: sanitize(string(p.Name()) + "_" + k)})
			labels = append(labels, tags...)
			sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
			wr.Timeseries = append(wr.Timeseries, prompb.TimeSeries{
				Labels:  labels,
				Samples: []prompb.Sample{{Value: v, Timestamp: ts}},
			})
		}
	}
	return wr, nil
}

func sampleValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// sanitize maps a name onto the legacy Prometheus name alphabet.
func sanitize(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_' || r == ':' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (s *RemoteWrite) EnsureDatabase(context.Context, string) error { return nil }

func (s *RemoteWrite) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
