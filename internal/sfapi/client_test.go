// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package sfapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/sfc/internal/sfapi"
	"github.com/platformbuilds/sfc/internal/sfapi/sfapitest"
)

func newClient(t *testing.T, srv *sfapitest.Server) *sfapi.Client {
	t.Helper()
	c, err := sfapi.NewClient(srv.Config(), nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestConfigURL(t *testing.T) {
	assert.Equal(t, "https://10.0.0.1/json-rpc/12.5/", sfapi.Config{Endpoint: "10.0.0.1"}.URL())
	assert.Equal(t, "http://sf.local:8080/json-rpc/12.7/", sfapi.Config{Endpoint: "http://sf.local:8080/", APIVersion: "12.7"}.URL())
}

func TestGetClusterInfo(t *testing.T) {
	srv := sfapitest.NewServer(t)
	srv.Result("GetClusterInfo", `{"clusterInfo":{"name":"PROD-01","mvip":"10.0.0.1"}}`)

	info, err := newClient(t, srv).GetClusterInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PROD-01", info.Name)
	assert.Equal(t, []string{"GetClusterInfo"}, srv.Calls())
}

func TestCall_SendsParams(t *testing.T) {
	srv := sfapitest.NewServer(t)
	var got []int64
	srv.Handle("ListVolumeStats", func(params json.RawMessage) any {
		var p struct {
			VolumeIDs []int64 `json:"volumeIDs"`
		}
		_ = json.Unmarshal(params, &p)
		got = p.VolumeIDs
		return map[string]any{"volumeStats": []any{}}
	})

	stats, err := newClient(t, srv).ListVolumeStats(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, stats)
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestCall_PreservesIntegerLiterals(t *testing.T) {
	srv := sfapitest.NewServer(t)
	srv.Result("GetClusterStats", `{"clusterStats":{"actualIOPS":12,"clusterUtilization":0.5,"ratio":1.0}}`)

	rec, err := newClient(t, srv).GetClusterStats(context.Background())
	require.NoError(t, err)
	v, _ := rec.Get("actualIOPS")
	assert.Equal(t, json.Number("12"), v)
	v, _ = rec.Get("ratio")
	assert.Equal(t, json.Number("1.0"), v)
	assert.Equal(t, "1.0", rec.String("ratio"))
}

func TestCall_HTTPErrorCarriesBody(t *testing.T) {
	srv := sfapitest.NewServer(t)
	srv.Handle("ListAccounts", func(json.RawMessage) any {
		return &sfapitest.Failure{Status: http.StatusInternalServerError, Body: "backend exploded"}
	})

	_, err := newClient(t, srv).ListAccounts(context.Background())
	var apiErr *sfapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	body, ok := sfapi.ResponseBody(err)
	assert.True(t, ok)
	assert.Equal(t, "backend exploded", body)
}

func TestCall_RPCError(t *testing.T) {
	srv := sfapitest.NewServer(t)

	_, err := newClient(t, srv).ListSyncJobs(context.Background())
	var apiErr *sfapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "xUnknownAPIMethod", apiErr.Name)
	assert.Contains(t, apiErr.Body, "Unknown method ListSyncJobs")
}

func TestCall_Unauthorized(t *testing.T) {
	srv := sfapitest.NewServer(t)
	cfg := srv.Config()
	cfg.Password = "wrong"
	c, err := sfapi.NewClient(cfg, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.GetClusterInfo(context.Background())
	var apiErr *sfapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsUnauthorized())
}

func TestCall_MalformedJSON(t *testing.T) {
	srv := sfapitest.NewServer(t)
	srv.Handle("GetClusterCapacity", func(json.RawMessage) any {
		return &sfapitest.Failure{Status: http.StatusOK, Body: "{not json"}
	})

	_, err := newClient(t, srv).GetClusterCapacity(context.Background())
	var decErr *sfapi.DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, "{not json", decErr.Body)
}

func TestCall_MissingResult(t *testing.T) {
	srv := sfapitest.NewServer(t)
	srv.Handle("GetClusterCapacity", func(json.RawMessage) any {
		return &sfapitest.Failure{Status: http.StatusOK, Body: `{"id":"1"}`}
	})

	_, err := newClient(t, srv).GetClusterCapacity(context.Background())
	var decErr *sfapi.DecodeError
	assert.True(t, errors.As(err, &decErr))
}

func TestVolumeNames(t *testing.T) {
	srv := sfapitest.NewServer(t)
	var status string
	srv.Handle("ListVolumes", func(params json.RawMessage) any {
		var p struct {
			VolumeStatus string `json:"volumeStatus"`
		}
		_ = json.Unmarshal(params, &p)
		status = p.VolumeStatus
		return json.RawMessage(`{"volumes":[{"volumeID":1,"name":"a"},{"volumeID":2,"name":"b"}]}`)
	})

	names, err := newClient(t, srv).VolumeNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "active", status)
	assert.Equal(t, []sfapi.VolumeName{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, names)
}
