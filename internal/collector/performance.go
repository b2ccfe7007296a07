// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"

	"github.com/platformbuilds/sfc/internal/chunk"
	"github.com/platformbuilds/sfc/internal/lineproto"
)

var (
	volumePerformanceSchema = lineproto.Schema{
		Measurement: "volume_performance",
		Tags: []lineproto.Pair{
			lineproto.T("volumeID", "id"),
			lineproto.T("name", "name"),
		},
		Fields: []lineproto.Pair{
			lineproto.F("actualIOPS", "actual_iops", lineproto.Auto),
			lineproto.F("averageIOPSize", "average_io_size", lineproto.Auto),
			lineproto.F("asyncDelay", "async_delay", lineproto.Int),
			lineproto.F("burstIOPSCredit", "burst_io_credit", lineproto.Auto),
			lineproto.F("clientQueueDepth", "client_queue_depth", lineproto.Auto),
			lineproto.F("latencyUSec", "latency_usec", lineproto.Auto),
			lineproto.F("nonZeroBlocks", "non_zero_blocks", lineproto.Auto),
			lineproto.F("normalizedIOPS", "normalized_iops", lineproto.Auto),
			lineproto.F("readBytes", "read_bytes", lineproto.Auto),
			lineproto.F("readBytesLastSample", "read_bytes_last_sample", lineproto.Auto),
			lineproto.F("readLatencyUSec", "read_latency_usec", lineproto.Auto),
			lineproto.F("readOpsLastSample", "read_ops_last_sample", lineproto.Auto),
			lineproto.F("throttle", "throttle", lineproto.Float),
			lineproto.F("volumeSize", "volume_size", lineproto.Auto),
			lineproto.F("volumeUtilization", "volume_utilization", lineproto.Float),
			lineproto.F("writeBytes", "write_bytes", lineproto.Auto),
			lineproto.F("writeBytesLastSample", "write_bytes_last_sample", lineproto.Auto),
			lineproto.F("writeLatencyUSec", "write_latency_usec", lineproto.Auto),
			lineproto.F("writeOpsLastSample", "write_ops_last_sample", lineproto.Auto),
			lineproto.F("zeroBlocks", "zero_blocks", lineproto.Auto),
		},
	}

	clusterPerformanceSchema = lineproto.Schema{
		Measurement: "cluster_performance",
		Fields: []lineproto.Pair{
			lineproto.F("actualIOPS", "actual_iops", lineproto.Auto),
			lineproto.F("averageIOPSize", "average_iops", lineproto.Auto),
			lineproto.F("clientQueueDepth", "client_queue_depth", lineproto.Auto),
			lineproto.F("clusterUtilization", "cluster_utilization", lineproto.Float),
			lineproto.F("latencyUSec", "latency_usec", lineproto.Auto),
			lineproto.F("normalizedIOPS", "normalized_iops", lineproto.Auto),
			lineproto.F("readBytesLastSample", "read_bytes_last_sample", lineproto.Auto),
			lineproto.F("readLatencyUSec", "read_latency_usec", lineproto.Auto),
			lineproto.F("readOpsLastSample", "read_ops_last_sample", lineproto.Auto),
			lineproto.F("writeLatencyUSec", "write_latency_usec", lineproto.Auto),
			lineproto.F("writeBytesLastSample", "write_bytes_last_sample", lineproto.Auto),
			lineproto.F("writeOpsLastSample", "write_ops_last_sample", lineproto.Auto),
		},
	}

	nodePerformanceSchema = lineproto.Schema{
		Measurement: "node_performance",
		Tags: []lineproto.Pair{
			lineproto.T("nodeID", "id"),
		},
		Fields: []lineproto.Pair{
			lineproto.F("cpu", "cpu", lineproto.Auto),
			lineproto.F("networkUtilizationCluster", "network_utilization_cluster", lineproto.Auto),
			lineproto.F("networkUtilizationStorage", "network_utilization_storage", lineproto.Auto),
			lineproto.F("ssLoadHistogram.Bucket0", "ss_load_bucket_00_00", lineproto.Auto),
			lineproto.F("ssLoadHistogram.Bucket1To19", "ss_load_bucket_01_to_19", lineproto.Auto),
			lineproto.F("ssLoadHistogram.Bucket20To39", "ss_load_bucket_20_to_39", lineproto.Auto),
			lineproto.F("ssLoadHistogram.Bucket40To59", "ss_load_bucket_40_to_59", lineproto.Auto),
			lineproto.F("ssLoadHistogram.Bucket60To79", "ss_load_bucket_60_to_79", lineproto.Auto),
			lineproto.F("ssLoadHistogram.Bucket80To100", "ss_load_bucket_80_to_100", lineproto.Auto),
		},
	}
)

func init() {
	register(Collector{Name: "volume_performance", Run: collectVolumePerformance, Schemas: []lineproto.Schema{volumePerformanceSchema}})
	register(Collector{Name: "cluster_performance", Run: collectClusterPerformance, Schemas: []lineproto.Schema{clusterPerformanceSchema}})
	register(Collector{Name: "node_performance", Run: collectNodePerformance, Schemas: []lineproto.Schema{nodePerformanceSchema}})
}

// collectVolumePerformance fetches stats for the active volume roster in
// chunks and sends them as one timestamped payload.
func collectVolumePerformance(ctx context.Context, env *Env) error {
	names, err := env.VolumeNames(ctx)
	if err != nil {
		return fmt.Errorf("volume information not obtained: %w", err)
	}
	if len(names) == 0 {
		return ErrNoData
	}

	m := env.emitter()
	for i, batch := range chunk.Split(names, env.chunkSize()) {
		ids := make([]int64, len(batch))
		byID := make(map[int64]string, len(batch))
		for j, v := range batch {
			ids[j] = v.ID
			byID[v.ID] = v.Name
		}
		env.Log.Debug("processing volume batch", "batch", i, "volumes", len(batch))

		stats, err := env.API.ListVolumeStats(ctx, ids)
		if err != nil {
			return fmt.Errorf("volume stats not obtained for batch %d: %w", i, err)
		}
		for _, st := range stats {
			id, _ := st.Int("volumeID")
			name, ok := byID[id]
			if !ok {
				env.Log.Debug("stats for volume outside the roster, skipping", "volume_id", id)
				continue
			}
			delay, err := lineproto.DurationSeconds(st["asyncDelay"])
			if err != nil {
				env.Log.Error("failed to convert asyncDelay to seconds, using -1",
					"volume_id", id, "error", err)
			}
			b, defaulted := volumePerformanceSchema.Encode(
				with(st, lineproto.Map{"name": name, "asyncDelay": delay}),
				"cluster", env.Cluster)
			if err := m.add(b.Time(env.now()), defaulted); err != nil {
				return err
			}
		}
	}
	return m.flush(ctx)
}

func collectClusterPerformance(ctx context.Context, env *Env) error {
	stats, err := env.API.GetClusterStats(ctx)
	if err != nil {
		return fmt.Errorf("cluster stats not obtained: %w", err)
	}
	extra := lineproto.Map{}
	if u, ok := stats.Float("clusterUtilization"); ok {
		extra["clusterUtilization"] = lineproto.Round2(u)
	}
	m := env.emitter()
	b, defaulted := clusterPerformanceSchema.Encode(with(stats, extra), "name", env.Cluster)
	if err := m.add(b, defaulted); err != nil {
		return err
	}
	return m.flush(ctx)
}

func collectNodePerformance(ctx context.Context, env *Env) error {
	nodes, err := env.API.ListNodeStats(ctx)
	if err != nil {
		return fmt.Errorf("node stats not obtained: %w", err)
	}
	m := env.emitter()
	for _, n := range nodes {
		if err := m.encode(nodePerformanceSchema, path(n)); err != nil {
			return err
		}
	}
	return m.flush(ctx)
}
