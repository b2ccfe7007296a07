// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/platformbuilds/sfc/internal/lineproto"
	"github.com/platformbuilds/sfc/internal/sfapi"
)

var (
	volumesSchema = lineproto.Schema{
		Measurement: "volumes",
		Tags: []lineproto.Pair{
			lineproto.T("access", "access"),
			lineproto.T("accountID", "account_id"),
			{Src: "enable512e", Dst: "enable_512e", Kind: lineproto.Bool},
			lineproto.T("volumeID", "id"),
			lineproto.T("name", "name"),
			lineproto.T("scsiNAADeviceID", "scsi_naa_dev_id"),
			lineproto.T("volumeConsistencyGroupUUID", "vol_cg_group_id"),
		},
		Fields: []lineproto.Pair{
			lineproto.F("blockSize", "block_size", lineproto.Int),
			lineproto.F("fifoSize", "fifo_size", lineproto.Int),
			lineproto.F("minFifoSize", "min_fifo_size", lineproto.Int),
			lineproto.F("qosPolicyID", "qos_policy_id", lineproto.Int).Or(int64(0)),
			lineproto.F("totalSize", "total_size", lineproto.Int),
		},
	}

	pairedVolumesSchema = lineproto.Schema{
		Measurement: "volumes",
		Tags: []lineproto.Pair{
			lineproto.T("access", "access"),
			lineproto.T("accountID", "account_id"),
			lineproto.T("clusterPairID", "cluster_pair_id"),
			{Src: "enable512e", Dst: "enable_512e", Kind: lineproto.Bool},
			lineproto.T("volumeID", "id"),
			lineproto.T("name", "name"),
			lineproto.T("remoteVolumeID", "remote_volume_id"),
			lineproto.T("remoteVolumeName", "remote_volume_name"),
			lineproto.T("scsiNAADeviceID", "scsi_naa_dev_id"),
			lineproto.T("volumeConsistencyGroupUUID", "vol_cg_group_id"),
			lineproto.T("volumePairUUID", "volume_pair_uuid"),
		},
		Fields: []lineproto.Pair{
			lineproto.F("blockSize", "block_size", lineproto.Int),
			lineproto.F("fifoSize", "fifo_size", lineproto.Int),
			lineproto.F("minFifoSize", "min_fifo_size", lineproto.Int),
			lineproto.F("qosPolicyID", "qos_policy_id", lineproto.Int).Or(int64(0)),
			lineproto.F("remote_replication_mode", "remote_replication_mode", lineproto.Int),
			lineproto.F("remote_replication_state", "remote_replication_state", lineproto.Int),
			lineproto.F("remote_replication_snap_state", "remote_replication_snap_state", lineproto.Int),
			lineproto.F("totalSize", "total_size", lineproto.Int),
		},
	}

	// Trident stores its provisioning record as volume attributes. Keys
	// under "trident" come from the nested JSON blob.
	tridentAttributes = []lineproto.Pair{
		lineproto.F("docker-name", "va_docker_name", lineproto.Quoted),
		lineproto.F("fstype", "va_fstype", lineproto.Quoted),
		lineproto.F("provisioning", "va_provisioning", lineproto.Quoted),
		lineproto.F("trident.version", "va_trident_version", lineproto.Quoted),
		lineproto.F("trident.backendUUID", "va_trident_backend_uuid", lineproto.Quoted),
		lineproto.F("trident.platform", "va_trident_platform", lineproto.Quoted),
		lineproto.F("trident.platformVersion", "va_trident_platform_version", lineproto.Quoted),
		lineproto.F("trident.plugin", "va_trident_plugin", lineproto.Quoted),
	}
	tridentRequired = []string{"docker-name", "fstype", "provisioning", "trident"}
)

// provisioningDefault replaces the empty provisioning attribute; Element
// volumes are always thin provisioned.
const provisioningDefault = "thin"

func init() {
	register(Collector{
		Name:    "volumes",
		Run:     collectVolumes,
		Schemas: []lineproto.Schema{withTrident(volumesSchema), withTrident(pairedVolumesSchema)},
	})
}

// withTrident is the effective schema of a volume carrying Trident
// attributes, used to validate that the attribute keys do not collide.
func withTrident(s lineproto.Schema) lineproto.Schema {
	s.Fields = append(append([]lineproto.Pair{}, tridentAttributes...), s.Fields...)
	return s
}

func collectVolumes(ctx context.Context, env *Env) error {
	vols, err := env.Volumes(ctx)
	if err != nil {
		return fmt.Errorf("volume information not obtained: %w", err)
	}
	m := env.emitter()
	for _, v := range vols {
		schema := volumesSchema
		var extra lineproto.Map
		if pairs := v.Records("volumePairs"); len(pairs) > 0 {
			if len(pairs) > 1 {
				env.Log.Warn("one-to-many volume pairing, using the first pair",
					"volume_id", v.String("volumeID"), "pairs", len(pairs))
			}
			schema = pairedVolumesSchema
			extra = volumePair(pairs[0])
		}
		src := with(v, extra)

		b := lineproto.New(schema.Measurement).Tag("cluster", env.Cluster)
		defaulted := schema.EncodeTags(b, src)
		if attrs := v.Record("attributes"); len(attrs) > 0 {
			if ta := tridentSource(attrs); ta != nil {
				(lineproto.Schema{Fields: tridentAttributes}).EncodeFields(b, ta)
			} else {
				env.Log.Debug("volume attributes are not Trident attributes", "volume_id", v.String("volumeID"))
			}
		}
		defaulted = append(defaulted, schema.EncodeFields(b, src)...)
		if err := m.add(b, defaulted); err != nil {
			return err
		}
	}
	return m.flush(ctx)
}

// volumePair flattens the first pairing record, mapping the replication
// enums to their codes.
func volumePair(p sfapi.Record) lineproto.Map {
	rr := p.Record("remoteReplication")
	snap := rr.Record("snapshotReplication")
	return lineproto.Map{
		"clusterPairID":                 p["clusterPairID"],
		"remoteVolumeID":                p["remoteVolumeID"],
		"remoteVolumeName":              p["remoteVolumeName"],
		"volumePairUUID":                p["volumePairUUID"],
		"remote_replication_mode":       lineproto.ReplicationMode(rr.String("mode")),
		"remote_replication_state":      lineproto.ReplicationState(rr.String("state")),
		"remote_replication_snap_state": lineproto.ReplicationState(snap.String("state")),
	}
}

// tridentSource returns the attribute source when every required Trident
// key is present, nil otherwise.
func tridentSource(attrs sfapi.Record) lineproto.Source {
	if attrs == nil {
		return nil
	}
	for _, k := range tridentRequired {
		if !attrs.Has(k) {
			return nil
		}
	}
	var blob gjson.Result
	switch t := attrs["trident"].(type) {
	case string:
		blob = gjson.Parse(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		blob = gjson.ParseBytes(raw)
	}
	provisioning := attrs.String("provisioning")
	if provisioning == "" {
		provisioning = provisioningDefault
	}
	return tridentAttrs{attrs: attrs, blob: blob, provisioning: provisioning}
}

type tridentAttrs struct {
	attrs        sfapi.Record
	blob         gjson.Result
	provisioning string
}

func (t tridentAttrs) Get(key string) (any, bool) {
	switch key {
	case "provisioning":
		return t.provisioning, true
	case "docker-name", "fstype":
		return t.attrs.String(key), t.attrs.Has(key)
	}
	if sub, ok := strings.CutPrefix(key, "trident."); ok {
		r := t.blob.Get(sub)
		if !r.Exists() || r.Type == gjson.Null {
			return nil, false
		}
		return r.String(), true
	}
	return nil, false
}
