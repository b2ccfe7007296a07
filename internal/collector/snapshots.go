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

// fifoExpiration marks members that expire when newer snapshots push them
// out; they are written with a zero delta.
const fifoExpiration = "fifo"

var snapshotGroupsSchema = lineproto.Schema{
	Measurement: "snapshot_groups",
	Tags: []lineproto.Pair{
		lineproto.T("createTime", "create_time"),
		{Src: "enableRemoteReplication", Dst: "enable_remote_replication", Kind: lineproto.Bool},
		lineproto.T("expirationTime", "expiration_time"),
		lineproto.T("name", "grp_snapshot_name"),
		lineproto.T("remoteStatus", "remote_grp_status"),
		lineproto.T("status", "status"),
	},
	Fields: []lineproto.Pair{
		lineproto.F("groupSnapshotID", "grp_snapshot_id", lineproto.Int),
		lineproto.F("members", "members", lineproto.Int),
	},
}

func init() {
	register(Collector{Name: "snapshot_groups", Run: collectSnapshotGroups, Schemas: []lineproto.Schema{snapshotGroupsSchema}})
}

// collectSnapshotGroups writes group snapshots ordered by ID. Creation and
// expiration are stored as an epoch and a delta to keep series small. An
// unparsable timestamp stops the process.
func collectSnapshotGroups(ctx context.Context, env *Env) error {
	groups, err := env.API.ListGroupSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("group snapshots not obtained: %w", err)
	}
	if len(groups) == 0 {
		env.Log.Info("no group snapshots")
		return ErrNoData
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, _ := groups[i].Int("groupSnapshotID")
		b, _ := groups[j].Int("groupSnapshotID")
		return a < b
	})

	m := env.emitter()
	for _, g := range groups {
		extra, err := snapshotDerived(g)
		if err != nil {
			return err
		}
		if err := m.encode(snapshotGroupsSchema, with(g, extra)); err != nil {
			return err
		}
	}
	return m.flush(ctx)
}

func snapshotDerived(g sfapi.Record) (lineproto.Map, error) {
	members := g.Records("members")
	create := g.String("createTime")
	extra := lineproto.Map{
		"members":                 int64(len(members)),
		"enableRemoteReplication": g["enableRemoteReplication"] == true,
		"expirationTime":          nil,
	}

	expire := create
	if len(members) > 0 {
		switch e := members[0]["expirationTime"].(type) {
		case nil:
			expire = lineproto.Never
		case string:
			if e != fifoExpiration {
				expire = e
			}
		default:
			expire = fmt.Sprint(e)
		}
	}
	created, delta, err := lineproto.TimeDiffEpoch(create, expire)
	if err != nil {
		return nil, fmt.Errorf("group snapshot %s: %w", g.String("groupSnapshotID"), err)
	}
	extra["createTime"] = created
	if len(members) > 0 {
		extra["expirationTime"] = delta
	}

	status := int64(0)
	if g.String("status") == "done" {
		status = 1
	}
	extra["status"] = status

	remote := int64(0)
	if rs := g.Records("remoteStatuses"); len(rs) > 0 && rs[0].String("remoteStatus") == "Present" {
		remote = 1
	}
	extra["remoteStatus"] = remote
	return extra, nil
}
