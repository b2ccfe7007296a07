// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncJobs_RemoteOnly(t *testing.T) {
	env, srv, sink := newTestEnv(t)
	srv.Result("ListSyncJobs", `{"syncJobs":[
		{"type":"remote","dstVolumeID":5,"stage":"data","blocksPerSecond":120,"elapsedTime":30,"percentComplete":42,"remainingTime":null},
		{"type":"clone","dstVolumeID":6,"stage":"metadata","blocksPerSecond":1,"elapsedTime":1,"percentComplete":1,"remainingTime":3.5}]}`)

	require.NoError(t, collectSyncJobs(context.Background(), env))
	assert.Equal(t, []string{
		`sync_jobs,cluster=c1,dst_volume_id=5,stage=data,type=remote blocks_per_sec=120i,elapsed_time=30i,pct_complete=42i,remaining_time=0`,
	}, sink.lines())
}

func TestSyncJobs_None(t *testing.T) {
	env, srv, sink := newTestEnv(t)
	srv.Result("ListSyncJobs", `{"syncJobs":[]}`)

	assert.ErrorIs(t, collectSyncJobs(context.Background(), env), ErrNoData)
	assert.Empty(t, sink.sent())
}

func TestAccounts(t *testing.T) {
	env, srv, sink := newTestEnv(t)
	srv.Result("ListAccounts", `{"accounts":[
		{"accountID":1,"username":"tenant a","status":"active","volumes":[1,2,3],"enableChap":true,"initiatorSecret":"s3cr3t"},
		{"accountID":2,"username":"b","status":"locked","volumes":[]}]}`)

	require.NoError(t, collectAccounts(context.Background(), env))
	lines := sink.lines()
	assert.Equal(t, []string{
		`accounts,cluster=c1,id=1,name=tenant\ a active=1i,volume_count=3i`,
		`accounts,cluster=c1,id=2,name=b active=0i,volume_count=0i`,
	}, lines)
	for _, l := range lines {
		assert.NotContains(t, l, "s3cr3t")
	}
}

func TestISCSISessions_NullIdentity(t *testing.T) {
	env, srv, sink := newTestEnv(t)
	srv.Result("ListISCSISessions", `{"sessions":[{
		"initiator":null,
		"authentication":{"authMethod":null,"chapAlgorithm":"null","chapUsername":"null"},
		"accountID":1,"accountName":null,"initiatorIP":"10.0.0.5:3260","initiatorName":"iqn.1998-01.com.vmware:esx1",
		"initiatorSessionID":99,"nodeID":2,"targetIP":"10.0.0.1:3260","targetName":"iqn.2010-01.com.solidfire:v1",
		"virtualNetworkID":0,"volumeID":1,
		"msSinceLastIscsiPDU":10,"msSinceLastScsiCommand":20,"serviceID":30,"sessionID":40,"volumeInstance":null}]}`)

	require.NoError(t, collectISCSISessions(context.Background(), env))
	assert.Equal(t, []string{
		`iscsi_sessions,cluster=c1,initiator_alias=None,initiator_id=None,auth_method=None,chap_algorithm=None,chap_username=None,` +
			`account_id=1,account_name=None,initiator_ip=10.0.0.5:3260,initiator_name=iqn.1998-01.com.vmware:esx1,` +
			`initiator_session_id=99,node_id=2,target_ip=10.0.0.1:3260,target_name=iqn.2010-01.com.solidfire:v1,` +
			`virtual_network_id=0,volume_id=1 ` +
			`ms_since_last_iscsi_pdu=10i,ms_since_last_scsi_command=20i,service_id=30i,session_id=40i`,
	}, sink.lines())
}

func TestISCSISessions_None(t *testing.T) {
	env, srv, sink := newTestEnv(t)
	srv.Result("ListISCSISessions", `{"sessions":[]}`)

	assert.ErrorIs(t, collectISCSISessions(context.Background(), env), ErrNoData)
	assert.Empty(t, sink.sent())
}

func TestDriveStats_SortedNumericCounters(t *testing.T) {
	env, srv, sink := newTestEnv(t)
	srv.Result("ListDriveStats", `{"driveStats":[{
		"driveID":12,"readBytes":1,"writeOps":2,"timestamp":"2024-01-01T00:00:00Z",
		"lifeRemainingPercent":98,"activeSessions":3,"powerOnHours":1234.5,"id":7,"failedDieCount":0,"model":"x"}]}`)

	require.NoError(t, collectDriveStats(context.Background(), env))
	assert.Equal(t, []string{
		`drive_stats,cluster=c1,id=12 activeSessions=3i,lifeRemainingPercent=98i,powerOnHours=1234.5`,
	}, sink.lines())
}
