// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/platformbuilds/sfc/internal/chunk"
	"github.com/platformbuilds/sfc/internal/lineproto"
)

var (
	percentBuckets = []lineproto.Pair{
		lineproto.F("Bucket1To19", "b_001_to_019", lineproto.Int),
		lineproto.F("Bucket20To39", "b_020_to_039", lineproto.Int),
		lineproto.F("Bucket40To59", "b_040_to_059", lineproto.Int),
		lineproto.F("Bucket60To79", "b_060_to_079", lineproto.Int),
		lineproto.F("Bucket80To100", "b_080_to_100", lineproto.Int),
	}
	zeroBucket     = lineproto.F("Bucket0", "b_000", lineproto.Int)
	overflowBucket = lineproto.F("Bucket101Plus", "b_101_plus", lineproto.Int)

	blockSizeBuckets = []lineproto.Pair{
		lineproto.F("Bucket512To4095", "b_000512_to_004095", lineproto.Int),
		lineproto.F("Bucket4096To8191", "b_004096_to_008191", lineproto.Int),
		lineproto.F("Bucket8192To16383", "b_008192_to_016383", lineproto.Int),
		lineproto.F("Bucket16384To32767", "b_016384_to_032767", lineproto.Int),
		lineproto.F("Bucket32768To65535", "b_032768_to_065535", lineproto.Int),
		lineproto.F("Bucket65536To131071", "b_065536_to_131071", lineproto.Int),
		lineproto.F("Bucket131072Plus", "b_131072_plus", lineproto.Int),
	}

	histogramID = lineproto.F("volumeID", "id", lineproto.Int)
)

// histogramType is one of the six per-volume QoS histograms.
type histogramType struct {
	key    string
	schema lineproto.Schema
}

func histogramSchema(name string, buckets ...[]lineproto.Pair) lineproto.Schema {
	var fields []lineproto.Pair
	for _, b := range buckets {
		fields = append(fields, b...)
	}
	return lineproto.Schema{
		Measurement: "histogram_" + name,
		Tags:        []lineproto.Pair{lineproto.T("volumeName", "name")},
		Fields:      append(fields, histogramID),
	}
}

var histogramTypes = []histogramType{
	{"belowMinIopsPercentages", histogramSchema("below_min_iops_percentages", percentBuckets)},
	{"minToMaxIopsPercentages", histogramSchema("min_to_max_iops_percentages", percentBuckets, []lineproto.Pair{overflowBucket})},
	{"readBlockSizes", histogramSchema("read_block_sizes", blockSizeBuckets)},
	{"targetUtilizationPercentages", histogramSchema("target_utilization_percentages", []lineproto.Pair{zeroBucket}, percentBuckets, []lineproto.Pair{overflowBucket})},
	{"throttlePercentages", histogramSchema("throttle_percentages", []lineproto.Pair{zeroBucket}, percentBuckets)},
	{"writeBlockSizes", histogramSchema("write_block_sizes", blockSizeBuckets)},
}

func init() {
	schemas := make([]lineproto.Schema, len(histogramTypes))
	for i, h := range histogramTypes {
		schemas[i] = h.schema
	}
	register(Collector{Name: "volume_qos_histograms", Run: collectQoSHistograms, Schemas: schemas})
}

// collectQoSHistograms writes one line per histogram type per volume and
// sends one payload per chunk of volumes.
func collectQoSHistograms(ctx context.Context, env *Env) error {
	names, err := env.VolumeNameMap(ctx)
	if err != nil {
		return fmt.Errorf("volume information not obtained: %w", err)
	}
	hists, err := env.API.ListVolumeQoSHistograms(ctx)
	if err != nil {
		return fmt.Errorf("QoS histograms not obtained: %w", err)
	}
	if len(hists) == 0 {
		return ErrNoData
	}

	var sent, refused int
	for i, batch := range chunk.Split(hists, env.chunkSize()) {
		m := env.emitter()
		for _, h := range batch {
			name, ok := names[h.VolumeID]
			if !ok {
				env.Log.Debug("histogram for volume outside the roster, skipping", "volume_id", h.VolumeID)
				continue
			}
			for _, t := range histogramTypes {
				buckets, ok := h.Histograms[t.key]
				if !ok {
					continue
				}
				src := lineproto.Map{"volumeName": name, "volumeID": h.VolumeID}
				for k, v := range buckets {
					src[k] = v
				}
				if err := m.encode(t.schema, src); err != nil {
					return err
				}
			}
		}
		switch err := m.flush(ctx); {
		case err == nil:
			sent++
		case errors.Is(err, ErrNoData):
		case errors.Is(err, ErrSendFailed):
			env.Log.Warn("QoS histogram batch not delivered", "batch", i)
			refused++
		default:
			return err
		}
	}
	if refused > 0 {
		return fmt.Errorf("%d QoS histogram batches: %w", refused, ErrSendFailed)
	}
	if sent == 0 {
		return ErrNoData
	}
	return nil
}
