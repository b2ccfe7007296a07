// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb1-client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInflux1 serves /write and /query like an InfluxDB 1.x server.
type fakeInflux1 struct {
	mu        sync.Mutex
	databases []string
	writes    []string
	precision []string
	statement []string
}

func (f *fakeInflux1) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("X-Influxdb-Version", "1.8.10")
	switch r.URL.Path {
	case "/write":
		body, _ := io.ReadAll(r.Body)
		f.writes = append(f.writes, string(body))
		f.precision = append(f.precision, r.URL.Query().Get("precision"))
		w.WriteHeader(http.StatusNoContent)
	case "/query":
		_ = r.ParseForm()
		q := r.Form.Get("q")
		f.statement = append(f.statement, q)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(q, "SHOW DATABASES"):
			values := make([]string, 0, len(f.databases))
			for _, db := range f.databases {
				values = append(values, fmt.Sprintf("[%q]", db))
			}
			fmt.Fprintf(w, `{"results":[{"statement_id":0,"series":[{"name":"databases","columns":["name"],"values":[%s]}]}]}`,
				strings.Join(values, ","))
		case strings.HasPrefix(q, "CREATE DATABASE"):
			name := strings.Trim(strings.TrimPrefix(q, "CREATE DATABASE "), `"`)
			f.databases = append(f.databases, name)
			fmt.Fprint(w, `{"results":[{"statement_id":0}]}`)
		default:
			fmt.Fprint(w, `{"results":[{"statement_id":0,"error":"unsupported"}]}`)
		}
	default:
		http.NotFound(w, r)
	}
}

func newInflux1(t *testing.T, f *fakeInflux1) *InfluxDB1 {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	cfg := serverConfig(t, srv)
	cfg.Database = "sfc"
	cfg.Timeout = 5 * time.Second
	s, err := NewInfluxDB1(cfg, discardLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInfluxDB1_Send(t *testing.T) {
	f := &fakeInflux1{}
	s := newInflux1(t, f)

	payload := "volume_performance,cluster=c1,id=1,name=v1 actual_iops=10i,throttle=0.5 1704067200\n" +
		"volume_performance,cluster=c1,id=2,name=v2 actual_iops=20i,throttle=0 1704067200\n"
	require.True(t, s.Send(context.Background(), payload))
	require.Len(t, f.writes, 1)
	assert.Equal(t, "s", f.precision[0])

	pts, err := models.ParsePointsWithPrecision([]byte(f.writes[0]), time.Now(), "s")
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, int64(1704067200), pts[0].Time().Unix())
	assert.Equal(t, "v2", pts[1].Tags().GetString("name"))
}

func TestInfluxDB1_RejectsGarbage(t *testing.T) {
	f := &fakeInflux1{}
	s := newInflux1(t, f)
	assert.False(t, s.Send(context.Background(), "m this is not line protocol\n"))
	assert.Empty(t, f.writes)
}

func TestInfluxDB1_EnsureDatabaseIsIdempotent(t *testing.T) {
	f := &fakeInflux1{databases: []string{"_internal"}}
	s := newInflux1(t, f)

	require.NoError(t, s.EnsureDatabase(context.Background(), "sfc"))
	require.NoError(t, s.EnsureDatabase(context.Background(), "sfc"))

	creates := 0
	for _, q := range f.statement {
		if strings.HasPrefix(q, "CREATE DATABASE") {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
	assert.Contains(t, f.databases, "sfc")
}
