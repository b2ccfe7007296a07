// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"
	"sort"

	"github.com/platformbuilds/sfc/internal/lineproto"
	"github.com/platformbuilds/sfc/internal/sfapi"
)

// none replaces identity attributes the cluster leaves null.
const none = "None"

var (
	syncJobsSchema = lineproto.Schema{
		Measurement: "sync_jobs",
		Tags: []lineproto.Pair{
			lineproto.T("dstVolumeID", "dst_volume_id"),
			lineproto.T("stage", "stage"),
			lineproto.T("type", "type"),
		},
		Fields: []lineproto.Pair{
			lineproto.F("blocksPerSecond", "blocks_per_sec", lineproto.Int),
			lineproto.F("elapsedTime", "elapsed_time", lineproto.Int),
			lineproto.F("percentComplete", "pct_complete", lineproto.Int),
			// Null while the job is being set up.
			lineproto.F("remainingTime", "remaining_time", lineproto.Float).Or(0.0),
		},
	}

	accountsSchema = lineproto.Schema{
		Measurement: "accounts",
		Tags: []lineproto.Pair{
			lineproto.T("accountID", "id"),
			lineproto.T("username", "name"),
		},
		Fields: []lineproto.Pair{
			lineproto.F("active", "active", lineproto.Bool),
			lineproto.F("volumeCount", "volume_count", lineproto.Int),
		},
	}

	iscsiSessionsSchema = lineproto.Schema{
		Measurement: "iscsi_sessions",
		Tags: []lineproto.Pair{
			lineproto.T("initiator.alias", "initiator_alias"),
			lineproto.T("initiator.initiatorID", "initiator_id"),
			lineproto.T("authentication.authMethod", "auth_method"),
			lineproto.T("authentication.chapAlgorithm", "chap_algorithm"),
			lineproto.T("authentication.chapUsername", "chap_username"),
			lineproto.T("accountID", "account_id"),
			lineproto.T("accountName", "account_name"),
			lineproto.T("initiatorIP", "initiator_ip"),
			lineproto.T("initiatorName", "initiator_name"),
			lineproto.T("initiatorSessionID", "initiator_session_id"),
			lineproto.T("nodeID", "node_id"),
			lineproto.T("targetIP", "target_ip"),
			lineproto.T("targetName", "target_name"),
			lineproto.T("virtualNetworkID", "virtual_network_id"),
			lineproto.T("volumeID", "volume_id"),
		},
		Fields: []lineproto.Pair{
			lineproto.F("msSinceLastIscsiPDU", "ms_since_last_iscsi_pdu", lineproto.Int),
			lineproto.F("msSinceLastScsiCommand", "ms_since_last_scsi_command", lineproto.Int),
			lineproto.F("serviceID", "service_id", lineproto.Int),
			lineproto.F("sessionID", "session_id", lineproto.Int),
			lineproto.F("volumeInstance", "volume_instance", lineproto.Int),
		},
	}

	driveStatsSchema = lineproto.Schema{
		Measurement: "drive_stats",
		Tags:        []lineproto.Pair{lineproto.T("driveID", "id")},
	}
)

// driveStatsExcluded are ListDriveStats counters that are cumulative, static
// or duplicated elsewhere and are not written.
var driveStatsExcluded = map[string]struct{}{
	"driveID": {}, "failedDieCount": {}, "lifetimeReadBytes": {},
	"lifetimeWriteBytes": {}, "procTimestamp": {}, "readBytes": {},
	"readMsec": {}, "readOps": {}, "readSectors": {}, "reads": {},
	"readsCombined": {}, "reallocatedSectors": {}, "reserveCapacityPercent": {},
	"sectorSize": {}, "timestamp": {}, "totalCapacity": {},
	"uncorrectableErrors": {}, "usedCapacity": {}, "usedMemory": {},
	"writeBytes": {}, "writeMsec": {}, "writeOps": {}, "writeSectors": {},
	"writes": {}, "writesCombined": {},
	// Would collide with the line's own tags.
	"id": {}, "cluster": {},
}

func init() {
	register(Collector{Name: "sync_jobs", Run: collectSyncJobs, Schemas: []lineproto.Schema{syncJobsSchema}})
	register(Collector{Name: "accounts", Run: collectAccounts, Schemas: []lineproto.Schema{accountsSchema}})
	register(Collector{Name: "iscsi_sessions", Run: collectISCSISessions, Schemas: []lineproto.Schema{iscsiSessionsSchema}})
	register(Collector{Name: "drive_stats", Run: collectDriveStats, Schemas: []lineproto.Schema{driveStatsSchema}})
}

// collectSyncJobs writes remote replication sync jobs. Clone, slice and
// block jobs are skipped.
func collectSyncJobs(ctx context.Context, env *Env) error {
	jobs, err := env.API.ListSyncJobs(ctx)
	if err != nil {
		return fmt.Errorf("sync jobs not obtained: %w", err)
	}
	if len(jobs) == 0 {
		return ErrNoData
	}
	m := env.emitter()
	for _, j := range jobs {
		if t := j.String("type"); t != "remote" {
			env.Log.Info("sync job type not supported, skipping", "type", t)
			continue
		}
		if err := m.encode(syncJobsSchema, path(j)); err != nil {
			return err
		}
	}
	return m.flush(ctx)
}

// collectAccounts writes one line per tenant account. CHAP secrets are
// never read.
func collectAccounts(ctx context.Context, env *Env) error {
	accounts, err := env.API.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("accounts not obtained: %w", err)
	}
	m := env.emitter()
	for _, a := range accounts {
		src := lineproto.Map{
			"accountID":   a["accountID"],
			"username":    a["username"],
			"active":      a.String("status") == "active",
			"volumeCount": int64(a.Len("volumes")),
		}
		if err := m.encode(accountsSchema, src); err != nil {
			return err
		}
	}
	return m.flush(ctx)
}

func collectISCSISessions(ctx context.Context, env *Env) error {
	sessions, err := env.API.ListISCSISessions(ctx)
	if err != nil {
		return fmt.Errorf("iSCSI sessions not obtained: %w", err)
	}
	if len(sessions) == 0 {
		env.Log.Info("no iSCSI connections")
		return ErrNoData
	}
	m := env.emitter()
	for _, s := range sessions {
		if err := m.encode(iscsiSessionsSchema, with(s, iscsiIdentity(s))); err != nil {
			return err
		}
	}
	env.Log.Debug("iSCSI sessions encoded", "sessions", m.len())
	return m.flush(ctx)
}

// iscsiIdentity fills the identity attributes that are routinely null with
// a placeholder so sessions remain distinguishable.
func iscsiIdentity(s sfapi.Record) lineproto.Map {
	initiator := s.Record("initiator")
	auth := s.Record("authentication")
	orNone := func(r sfapi.Record, key string) string {
		v := r.String(key)
		if v == "" || v == "null" {
			return none
		}
		return v
	}
	return lineproto.Map{
		"initiator.alias":              orNone(initiator, "alias"),
		"initiator.initiatorID":        orNone(initiator, "initiatorID"),
		"authentication.authMethod":    orNone(auth, "authMethod"),
		"authentication.chapAlgorithm": orNone(auth, "chapAlgorithm"),
		"authentication.chapUsername":  orNone(auth, "chapUsername"),
		"accountName":                  orNone(s, "accountName"),
	}
}

// collectDriveStats writes the point-in-time numeric counters of each
// drive in sorted key order.
func collectDriveStats(ctx context.Context, env *Env) error {
	drives, err := env.API.ListDriveStats(ctx)
	if err != nil {
		return fmt.Errorf("drive stats not obtained: %w", err)
	}
	m := env.emitter()
	for _, d := range drives {
		b, defaulted := driveStatsSchema.Encode(path(d), "cluster", env.Cluster)
		keys := make([]string, 0, len(d))
		for k := range d {
			if _, skip := driveStatsExcluded[k]; !skip {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, numeric := d.Float(k); numeric {
				b.Value(k, d[k])
			}
		}
		if err := m.add(b, defaulted); err != nil {
			return err
		}
	}
	return m.flush(ctx)
}
