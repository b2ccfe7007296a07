// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"
	"strconv"

	"github.com/platformbuilds/sfc/internal/lineproto"
	"github.com/platformbuilds/sfc/internal/sfapi"
)

// gcReserve discounts the garbage-collection reserve, which is normally
// empty and therefore never compressed.
const gcReserve = 0.93

// blockSize is the Element block size in bytes.
const blockSize = 4096

var (
	clusterCapacitySchema = lineproto.Schema{
		Measurement: "cluster_capacity",
		Fields: []lineproto.Pair{
			lineproto.F("activeBlockSpace", "active_block_space", lineproto.Auto),
			lineproto.F("activeSessions", "active_sessions", lineproto.Auto),
			lineproto.F("averageIOPS", "average_iops", lineproto.Auto),
			lineproto.F("clusterRecentIOSize", "cluster_recent_io_size", lineproto.Auto),
			lineproto.F("compressionFactor", "compression_factor", lineproto.Float),
			lineproto.F("currentIOPS", "current_iops", lineproto.Auto),
			lineproto.F("dedupeFactor", "dedupe_factor", lineproto.Float),
			lineproto.F("storageEfficiency", "storage_efficiency", lineproto.Float),
			lineproto.F("maxIOPS", "max_iops", lineproto.Auto),
			lineproto.F("maxOverProvisionableSpace", "max_overprovisionable_space", lineproto.Auto),
			lineproto.F("maxProvisionedSpace", "max_provisioned_space", lineproto.Auto),
			lineproto.F("maxUsedMetadataSpace", "max_used_metadata_space", lineproto.Auto),
			lineproto.F("maxUsedSpace", "max_used_space", lineproto.Auto),
			lineproto.F("nonZeroBlocks", "non_zero_blocks", lineproto.Auto),
			lineproto.F("peakActiveSessions", "peak_active_sessions", lineproto.Auto),
			lineproto.F("peakIOPS", "peak_iops", lineproto.Auto),
			lineproto.F("provisionedSpace", "provisioned_space", lineproto.Auto),
			lineproto.F("snapshotNonZeroBlocks", "snapshot_non_zero_blocks", lineproto.Auto),
			lineproto.F("thinFactor", "thin_factor", lineproto.Float),
			lineproto.F("totalOps", "total_ops", lineproto.Auto),
			lineproto.F("uniqueBlocks", "unique_blocks", lineproto.Auto),
			lineproto.F("uniqueBlocksUsedSpace", "unique_block_space", lineproto.Auto),
			lineproto.F("usedMetadataSpace", "used_metadata_space", lineproto.Auto),
			lineproto.F("usedMetadataSpaceInSnapshots", "used_metadata_space_in_snapshots", lineproto.Auto),
			lineproto.F("usedSpace", "used_space", lineproto.Auto),
			lineproto.F("zeroBlocks", "zero_blocks", lineproto.Auto),
		},
	}

	clusterVersionSchema = lineproto.Schema{
		Measurement: "cluster_version",
		Tags:        []lineproto.Pair{lineproto.T("clusterVersion", "version")},
		Fields:      []lineproto.Pair{lineproto.F("clusterAPIVersion", "api_version", lineproto.Auto)},
	}

	clusterFaultsSchema = lineproto.Schema{
		Measurement: "cluster_faults",
		Tags:        []lineproto.Pair{lineproto.T("total", "total")},
		Fields: []lineproto.Pair{
			lineproto.F("critical", "critical", lineproto.Int),
			lineproto.F("error", "error", lineproto.Int),
			lineproto.F("warning", "warning", lineproto.Int),
			lineproto.F("bestPractices", "bestPractices", lineproto.Int),
		},
	}
)

func init() {
	register(Collector{Name: "cluster_capacity", Run: collectClusterCapacity, Schemas: []lineproto.Schema{clusterCapacitySchema}})
	register(Collector{Name: "cluster_version", Run: collectClusterVersion, Schemas: []lineproto.Schema{clusterVersionSchema}})
	register(Collector{Name: "cluster_faults", Run: collectClusterFaults, Schemas: []lineproto.Schema{clusterFaultsSchema}})
}

// Efficiency holds the ratios derived from GetClusterCapacity.
type Efficiency struct {
	Thin        float64
	Dedupe      float64
	Compression float64
	Storage     float64
}

// DeriveEfficiency computes the capacity ratios the API does not report.
// Each ratio is 1 when its denominator is zero. Dedupe may read slightly
// below 1 on nearly empty volumes with snapshots.
func DeriveEfficiency(c sfapi.Record) Efficiency {
	num := func(k string) float64 { f, _ := c.Float(k); return f }
	nonZero, zero := num("nonZeroBlocks"), num("zeroBlocks")
	unique, uniqueUsed := num("uniqueBlocks"), num("uniqueBlocksUsedSpace")
	snapNonZero := num("snapshotNonZeroBlocks")

	e := Efficiency{Thin: 1, Dedupe: 1, Compression: 1}
	if nonZero != 0 {
		e.Thin = lineproto.Round2((nonZero + zero) / nonZero)
	}
	if unique != 0 {
		e.Dedupe = lineproto.Round2((nonZero + snapNonZero) / unique)
	}
	if uniqueUsed != 0 {
		e.Compression = lineproto.Round2(unique * blockSize / (uniqueUsed * gcReserve))
	}
	e.Storage = lineproto.Round2(e.Dedupe * e.Compression)
	return e
}

func collectClusterCapacity(ctx context.Context, env *Env) error {
	capacity, err := env.API.GetClusterCapacity(ctx)
	if err != nil {
		return fmt.Errorf("cluster capacity not obtained: %w", err)
	}
	e := DeriveEfficiency(capacity)
	m := env.emitter()
	b, defaulted := clusterCapacitySchema.Encode(with(capacity, lineproto.Map{
		"thinFactor":        e.Thin,
		"dedupeFactor":      e.Dedupe,
		"compressionFactor": e.Compression,
		"storageEfficiency": e.Storage,
	}), "name", env.Cluster)
	if err := m.add(b, defaulted); err != nil {
		return err
	}
	return m.flush(ctx)
}

func collectClusterVersion(ctx context.Context, env *Env) error {
	v, err := env.API.GetClusterVersionInfo(ctx)
	if err != nil {
		return fmt.Errorf("cluster version not obtained: %w", err)
	}
	m := env.emitter()
	b, defaulted := clusterVersionSchema.Encode(lineproto.Map{
		"clusterVersion":    v.ClusterVersion,
		"clusterAPIVersion": v.ClusterAPIVersion,
	}, "name", env.Cluster)
	if err := m.add(b, defaulted); err != nil {
		return err
	}
	return m.flush(ctx)
}

// collectClusterFaults counts unresolved faults by severity. A healthy
// cluster reports zeroes rather than nothing.
func collectClusterFaults(ctx context.Context, env *Env) error {
	faults, err := env.API.ListClusterFaults(ctx)
	if err != nil {
		return fmt.Errorf("cluster faults not obtained: %w", err)
	}
	counts := map[string]int64{"critical": 0, "error": 0, "warning": 0, "bestPractices": 0}
	var total int64
	for _, f := range faults {
		if f.Resolved {
			continue
		}
		if _, ok := counts[f.Severity]; ok {
			counts[f.Severity]++
			total++
		}
	}
	src := lineproto.Map{"total": strconv.FormatInt(total, 10)}
	for k, v := range counts {
		src[k] = v
	}
	m := env.emitter()
	if err := m.encode(clusterFaultsSchema, src); err != nil {
		return err
	}
	return m.flush(ctx)
}
