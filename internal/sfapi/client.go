// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package sfapi is a JSON-RPC client for the SolidFire Element API.
package sfapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	promcfg "github.com/prometheus/common/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/platformbuilds/sfc/internal/version"
)

// DefaultAPIVersion is the Element API version of the RPC endpoint. It is
// served by Element 12.5 and every later 12.x release.
const DefaultAPIVersion = "12.5"

const tracerName = "github.com/platformbuilds/sfc/internal/sfapi"

// Config configures a cluster client
type Config struct {
	// Endpoint is the management virtual IP or FQDN, optionally with a
	// scheme and port. https is assumed when the scheme is missing.
	Endpoint   string
	APIVersion string
	Username   string
	Password   string
	Timeout    time.Duration

	InsecureSkipVerify bool
	CAFile             string
}

// URL returns the JSON-RPC endpoint for cfg.
func (cfg Config) URL() string {
	base := strings.TrimRight(cfg.Endpoint, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	v := cfg.APIVersion
	if v == "" {
		v = DefaultAPIVersion
	}
	return base + "/json-rpc/" + v + "/"
}

// Client issues authenticated JSON-RPC calls. It owns its connection pool;
// Close releases it. Calls are never retried.
type Client struct {
	client *http.Client
	url    string
	log    *slog.Logger
	tracer trace.Tracer
}

// NewClient creates a client with its own transport.
func NewClient(cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("cluster endpoint is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpCfg := promcfg.HTTPClientConfig{
		BasicAuth: &promcfg.BasicAuth{
			Username: cfg.Username,
			Password: promcfg.Secret(cfg.Password),
		},
		TLSConfig: promcfg.TLSConfig{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			CAFile:             cfg.CAFile,
		},
		FollowRedirects: true,
	}
	if err := httpCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster HTTP config: %w", err)
	}
	hc, err := promcfg.NewClientFromConfig(httpCfg, "sfapi", promcfg.WithUserAgent(version.UserAgent()))
	if err != nil {
		return nil, fmt.Errorf("failed to build cluster HTTP client: %w", err)
	}
	hc.Timeout = cfg.Timeout

	return &Client{
		client: hc,
		url:    cfg.URL(),
		log:    log.With("component", "sfapi"),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

type rpcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
	ID     string `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Call invokes method with params and decodes the "result" member into out.
// out may be nil when only success matters.
func (c *Client) Call(ctx context.Context, method string, params any, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "sfapi."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method), attribute.String("rpc.system", "jsonrpc")),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(rpcRequest{Method: method, Params: params, ID: uuid.NewString()})
	if err != nil {
		return fmt.Errorf("%s: failed to marshal request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", method, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.log.Debug("rpc call completed", "method", method, "status", resp.StatusCode,
		"bytes", len(respBody), "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var envelope rpcResponse
	if err := decode(respBody, &envelope); err != nil {
		return &DecodeError{Method: method, Body: string(respBody), Err: err}
	}
	if envelope.Error != nil {
		return &APIError{
			Method:     method,
			StatusCode: resp.StatusCode,
			Code:       envelope.Error.Code,
			Name:       envelope.Error.Name,
			Message:    envelope.Error.Message,
			Body:       string(respBody),
		}
	}
	if len(envelope.Result) == 0 || bytes.Equal(envelope.Result, []byte("null")) {
		return &DecodeError{Method: method, Body: string(respBody), Err: errMissingResult}
	}
	if out == nil {
		return nil
	}
	if err := decode(envelope.Result, out); err != nil {
		return &DecodeError{Method: method, Body: string(respBody), Err: err}
	}
	return nil
}

func decode(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}
