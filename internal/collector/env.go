// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/platformbuilds/sfc/internal/chunk"
	"github.com/platformbuilds/sfc/internal/selftelemetry"
	"github.com/platformbuilds/sfc/internal/sfapi"
	"github.com/platformbuilds/sfc/internal/sink"
)

// Env is what a collector may use during one tier activation. It is built
// by the scheduler and not mutated afterwards; the volume roster is the
// only lazily filled part and is shared by all collectors of the activation.
type Env struct {
	Cluster   string
	API       *sfapi.Client
	Sink      sink.Sink
	Log       *slog.Logger
	Metrics   *selftelemetry.Metrics
	ChunkSize int
	Now       func() time.Time

	roster *roster
}

// NewEnv returns an Env with defaults for the optional members.
func NewEnv(cluster string, api *sfapi.Client, s sink.Sink, log *slog.Logger, metrics *selftelemetry.Metrics) *Env {
	if log == nil {
		log = slog.Default()
	}
	return &Env{
		Cluster:   cluster,
		API:       api,
		Sink:      s,
		Log:       log,
		Metrics:   metrics,
		ChunkSize: chunk.DefaultSize,
		Now:       time.Now,
		roster:    &roster{},
	}
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Env) chunkSize() int {
	if e.ChunkSize < 1 {
		return chunk.DefaultSize
	}
	return e.ChunkSize
}

// with returns a copy of e logging through log.
func (e *Env) with(log *slog.Logger) *Env {
	c := *e
	c.Log = log
	if c.roster == nil {
		c.roster = &roster{}
	}
	return &c
}

// roster memoizes the active volume list for one activation. Concurrent
// first callers share a single ListVolumes call.
type roster struct {
	group   singleflight.Group
	mu      sync.Mutex
	volumes []sfapi.Record
	loaded  bool
}

// Volumes returns the active volumes of the cluster.
func (e *Env) Volumes(ctx context.Context) ([]sfapi.Record, error) {
	if e.roster == nil {
		return e.API.ListVolumes(ctx, true)
	}
	r := e.roster
	r.mu.Lock()
	if r.loaded {
		vols := r.volumes
		r.mu.Unlock()
		return vols, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do("volumes", func() (any, error) {
		vols, err := e.API.ListVolumes(ctx, true)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.volumes, r.loaded = vols, true
		r.mu.Unlock()
		return vols, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]sfapi.Record), nil
}

// VolumeNames returns ID/name pairs of active volumes in roster order.
func (e *Env) VolumeNames(ctx context.Context) ([]sfapi.VolumeName, error) {
	vols, err := e.Volumes(ctx)
	if err != nil {
		return nil, err
	}
	return sfapi.NamesOf(vols), nil
}

// VolumeNameMap returns the active volume names keyed by ID.
func (e *Env) VolumeNameMap(ctx context.Context) (map[int64]string, error) {
	names, err := e.VolumeNames(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]string, len(names))
	for _, n := range names {
		m[n.ID] = n.Name
	}
	return m, nil
}
