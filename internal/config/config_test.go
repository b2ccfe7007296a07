// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp yaml: %v", err)
	}
	return p
}

func TestLoad_MinimalWithDefaults(t *testing.T) {
	p := writeTempYAML(t, `
cluster:
  mvip: 192.168.1.34
`)
	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.34", c.Cluster.MVIP)
	assert.Equal(t, "12.5", c.Cluster.APIVersion)
	assert.True(t, c.Cluster.InsecureSkipVerify)
	assert.Equal(t, "influxdb3", c.Sink.Type)
	assert.Equal(t, 8181, c.Sink.Port)
	assert.Equal(t, "sfc", c.Sink.Database)
	assert.Equal(t, Tiers{High: 60, Medium: 600, Low: 3600}, c.Tiers)
	assert.Equal(t, "INFO", c.Log.Level)
	assert.Equal(t, 24, c.ChunkSize)
	assert.Empty(t, c.SelfTelemetry.Listen)
	require.NoError(t, c.Validate())
}

func TestLoad_Full(t *testing.T) {
	p := writeTempYAML(t, `
cluster:
  mvip: sf.example.com
  username: monitor
  password: secret
  api_version: "12.3"
  insecure_skip_verify: false
  ca_file: /etc/sfc/ca.pem
sink:
  type: influxdb1
  scheme: http
  host: influx
  port: 8086
  database: solidfire
  username: writer
  password: pw
  timeout: 5s
tiers:
  high: 120
  medium: 900
  low: 7200
  experimental: true
log:
  level: DEBUG
  format: json
self_telemetry:
  listen: ":19090"
otel:
  endpoint: collector:4318
  protocol: http
  traces: true
  logs: true
chunk_size: 10
`)
	c, err := Load(p)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.False(t, c.Cluster.InsecureSkipVerify)
	assert.Equal(t, "12.3", c.SFAPI().APIVersion)
	assert.Equal(t, "sf.example.com", c.SFAPI().Endpoint)
	assert.Equal(t, "monitor", c.SFAPI().Username)

	sc := c.SinkConfig()
	assert.Equal(t, "influxdb1", sc.Type)
	assert.Equal(t, "http://influx:8086", sc.BaseURL())
	assert.Equal(t, 5*time.Second, sc.Timeout)

	iv := c.Intervals()
	assert.Equal(t, 120*time.Second, iv.High)
	assert.Equal(t, 900*time.Second, iv.Medium)
	assert.Equal(t, 7200*time.Second, iv.Low)
	assert.True(t, c.Tiers.Experimental)

	oc := c.OTelConfig()
	assert.Equal(t, "http", oc.Protocol)
	assert.True(t, oc.Traces)
	assert.False(t, oc.Metrics)
	assert.True(t, oc.Logs)
	assert.Equal(t, 10, c.ChunkSize)
	assert.Equal(t, ":19090", c.SelfTelemetry.Listen)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = Load(writeTempYAML(t, "cluster: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := Default()
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster.mvip")

	c.Cluster.MVIP = "10.0.0.1"
	c.Tiers.High = 90
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "high")

	c.Tiers.High = 300
	c.Sink.Type = "graphite"
	assert.Error(t, c.Validate())

	c.Sink.Type = "remote_write"
	assert.Error(t, c.Validate())
	c.Sink.URL = "http://prom:9090/api/v1/write"
	assert.NoError(t, c.Validate())
}

func TestParseArgs_Abbreviations(t *testing.T) {
	opts, err := ParseArgs([]string{
		"-m", "10.0.0.1", "-u", "monitor",
		"-ih", "influx.local", "--ip=8282", "--id", "metrics",
		"-fh", "180", "--fm", "300", "-fl=10800", "-ex",
		"-ll", "DEBUG", "--lf", "/tmp/sfc.log", "-c", "/etc/ca.pem",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", opts.MVIP)
	assert.Equal(t, "monitor", opts.Username)
	assert.Equal(t, "influx.local", opts.InfluxHost)
	assert.Equal(t, 8282, opts.InfluxPort)
	assert.Equal(t, "metrics", opts.InfluxDB)
	assert.Equal(t, 180, opts.FrequencyHigh)
	assert.Equal(t, 300, opts.FrequencyMed)
	assert.Equal(t, 10800, opts.FrequencyLow)
	assert.True(t, opts.Experimental)
	assert.Equal(t, "DEBUG", opts.LogLevel)
	assert.Equal(t, "/tmp/sfc.log", opts.LogFile)
	assert.Equal(t, "/etc/ca.pem", opts.CAChain)
}

func TestParseArgs_RejectsChoice(t *testing.T) {
	_, err := ParseArgs([]string{"--frequency-high", "90"})
	assert.Error(t, err)

	_, err = ParseArgs([]string{"--loglevel", "TRACE"})
	assert.Error(t, err)
}

func TestParseArgs_Help(t *testing.T) {
	_, err := ParseArgs([]string{"--help"})
	require.Error(t, err)
	assert.True(t, IsHelp(err))
}

func TestResolve_Precedence(t *testing.T) {
	p := writeTempYAML(t, `
cluster:
  mvip: from-yaml
  username: yaml-user
sink:
  host: yaml-host
  database: yaml-db
tiers:
  high: 120
`)
	t.Setenv("INFLUX_HOST", "env-host")
	t.Setenv("INFLUX_DB", "env-db")
	t.Setenv("SF_USERNAME", "")
	t.Setenv("SF_PASSWORD", "")

	opts, err := ParseArgs([]string{"--config", p, "--influxdb-name", "cli-db", "-m", "from-cli"})
	require.NoError(t, err)
	c, err := opts.Resolve()
	require.NoError(t, err)

	assert.Equal(t, "from-cli", c.Cluster.MVIP)
	assert.Equal(t, "yaml-user", c.Cluster.Username)
	assert.Equal(t, "env-host", c.Sink.Host)
	assert.Equal(t, "cli-db", c.Sink.Database)
	assert.Equal(t, 120, c.Tiers.High)
	assert.Equal(t, 600, c.Tiers.Medium)
}

func TestApply_CAChainCoversClusterAndSink(t *testing.T) {
	c := Default()
	(&Options{CAChain: "/etc/ca.pem"}).Apply(c)
	assert.Equal(t, "/etc/ca.pem", c.Cluster.CAFile)
	assert.Equal(t, "/etc/ca.pem", c.Sink.CAFile)
	assert.True(t, c.Cluster.InsecureSkipVerify)
}

func TestPrompter_Fill(t *testing.T) {
	var out bytes.Buffer
	p := Prompter{
		In:           strings.NewReader("monitor\n"),
		Out:          &out,
		ReadPassword: func() ([]byte, error) { return []byte("s3cret"), nil },
	}
	c := Cluster{}
	require.NoError(t, p.Fill(&c))
	assert.Equal(t, "monitor", c.Username)
	assert.Equal(t, "s3cret", c.Password)
	assert.Contains(t, out.String(), "username")
	assert.NotContains(t, out.String(), "s3cret")
}

func TestPrompter_PlainInput(t *testing.T) {
	p := Prompter{In: strings.NewReader("monitor\nsecret"), Out: &bytes.Buffer{}}
	c := Cluster{}
	require.NoError(t, p.Fill(&c))
	assert.Equal(t, "monitor", c.Username)
	assert.Equal(t, "secret", c.Password)
}

func TestPrompter_SkipsConfigured(t *testing.T) {
	p := Prompter{In: strings.NewReader(""), Out: &bytes.Buffer{}}
	c := Cluster{Username: "u", Password: "p"}
	require.NoError(t, p.Fill(&c))
}

func TestPrompter_EmptyInputFails(t *testing.T) {
	p := Prompter{In: strings.NewReader(""), Out: &bytes.Buffer{}}
	c := Cluster{}
	assert.Error(t, p.Fill(&c))
}
