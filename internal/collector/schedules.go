// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"

	"github.com/platformbuilds/sfc/internal/lineproto"
	"github.com/platformbuilds/sfc/internal/sfapi"
)

// defaultSnapshotName is what the cluster names snapshots of a schedule
// that sets no name.
const defaultSnapshotName = "auto-by-SolidFire"

var schedulesSchema = lineproto.Schema{
	Measurement: "schedules",
	Tags: []lineproto.Pair{
		{Src: "scheduleInfo.enableRemoteReplication", Dst: "enable_remote_replication", Kind: lineproto.Bool},
		{Src: "scheduleInfo.enableSerialCreation", Dst: "enable_serial_creation", Kind: lineproto.Bool},
		{Src: "hasError", Dst: "has_error", Kind: lineproto.Bool},
		lineproto.T("lastRunStatus", "last_run_status"),
		lineproto.T("scheduleName", "schedule_name"),
		lineproto.T("scheduleInfo.name", "snapshot_name"),
		{Src: "paused", Dst: "paused", Kind: lineproto.Bool},
		{Src: "recurring", Dst: "recurring", Kind: lineproto.Bool},
		{Src: "runNextInterval", Dst: "run_next_interval", Kind: lineproto.Bool},
		lineproto.T("scheduleType", "schedule_type"),
		lineproto.T("volumeCount", "volume_count"),
	},
	Fields: []lineproto.Pair{
		lineproto.F("scheduleID", "schedule_id", lineproto.Int),
	},
}

func init() {
	register(Collector{Name: "schedules", Run: collectSchedules, Schemas: []lineproto.Schema{schedulesSchema}})
}

// collectSchedules writes snapshot schedules. Replication tags absent from
// a schedule are dropped rather than defaulted.
func collectSchedules(ctx context.Context, env *Env) error {
	schedules, err := env.API.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("schedules not obtained: %w", err)
	}
	m := env.emitter()
	for _, s := range schedules {
		if t := s.String("scheduleType"); t != "Snapshot" {
			env.Log.Info("unsupported schedule type, skipping", "type", t, "schedule_id", s.String("scheduleID"))
			continue
		}
		if err := m.encode(schedulesSchema, with(s, scheduleDerived(s))); err != nil {
			return err
		}
	}
	if m.len() == 0 {
		env.Log.Info("no snapshot schedules")
	}
	return m.flush(ctx)
}

// scheduleDerived computes the values that do not map one to one: the run
// status as 1/0, the snapshot name and the number of covered volumes.
// Single-volume schedules carry volumeID, group schedules a volumes list.
func scheduleDerived(s sfapi.Record) lineproto.Map {
	info := s.Record("scheduleInfo")
	extra := lineproto.Map{}
	if s.Has("lastRunStatus") {
		status := int64(0)
		if s.String("lastRunStatus") == "Success" {
			status = 1
		}
		extra["lastRunStatus"] = status
	}
	name := info.String("name")
	if name == "" {
		name = defaultSnapshotName
	}
	extra["scheduleInfo.name"] = name

	count := int64(0)
	switch {
	case info.Has("volumes"):
		count = int64(info.Len("volumes"))
	case info.Has("volumeID"):
		count = 1
	}
	extra["volumeCount"] = count

	for _, k := range []string{"hasError", "paused", "recurring", "runNextInterval"} {
		if s[k] == nil {
			extra[k] = false
		}
	}
	for _, k := range []string{"enableRemoteReplication", "enableSerialCreation"} {
		if info.Has(k) && info[k] == nil {
			extra["scheduleInfo."+k] = false
		}
	}
	return extra
}
