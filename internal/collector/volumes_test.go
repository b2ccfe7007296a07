// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumes_NullQoSPolicyUnpaired(t *testing.T) {
	env, srv, sink := newTestEnv(t)
	srv.Result("ListVolumes", `{"volumes":[{
		"volumeID":7,"name":"vol 7","accountID":3,"access":"readWrite","enable512e":true,
		"scsiNAADeviceID":"6f47","volumeConsistencyGroupUUID":"abc",
		"blockSize":4096,"fifoSize":24,"minFifoSize":0,"qosPolicyID":null,
		"totalSize":1073741824,"volumePairs":[],"attributes":{}}]}`)

	require.NoError(t, collectVolumes(context.Background(), env))
	assert.Equal(t, []string{
		`volumes,cluster=c1,access=readWrite,account_id=3,enable_512e=1,id=7,name=vol\ 7,scsi_naa_dev_id=6f47,vol_cg_group_id=abc ` +
			`block_size=4096i,fifo_size=24i,min_fifo_size=0i,qos_policy_id=0i,total_size=1073741824i`,
	}, sink.lines())
}

func TestVolumes_PairedEnums(t *testing.T) {
	env, srv, sink := newTestEnv(t)
	srv.Result("ListVolumes", `{"volumes":[{
		"volumeID":8,"name":"v8","accountID":3,"access":"readWrite","enable512e":false,
		"blockSize":4096,"fifoSize":24,"minFifoSize":0,"qosPolicyID":2,"totalSize":1024,
		"volumePairs":[
			{"clusterPairID":1,"remoteVolumeID":9,"remoteVolumeName":"rv","volumePairUUID":"u-1",
			 "remoteReplication":{"mode":"Async","state":"Active","snapshotReplication":{"state":"Bogus"}}},
			{"clusterPairID":2,"remoteVolumeID":10}
		]}]}`)

	require.NoError(t, collectVolumes(context.Background(), env))
	lines := sink.lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], ",cluster_pair_id=1,")
	assert.Contains(t, lines[0], ",remote_volume_id=9,remote_volume_name=rv,")
	assert.Contains(t, lines[0], ",volume_pair_uuid=u-1 ")
	assert.Contains(t, lines[0], "qos_policy_id=2i,remote_replication_mode=1i,remote_replication_state=1i,remote_replication_snap_state=100i,total_size=1024i")
	assert.Contains(t, lines[0], "enable_512e=0")
}

func TestVolumes_TridentAttributes(t *testing.T) {
	env, srv, sink := newTestEnv(t)
	srv.Result("ListVolumes", `{"volumes":[{
		"volumeID":1,"name":"pvc-1","accountID":1,"access":"readWrite","blockSize":4096,"totalSize":1,
		"volumePairs":[],
		"attributes":{"docker-name":"pvc-1","fstype":"xfs","provisioning":"",
			"trident":"{\"version\":\"21.01\",\"backendUUID\":\"b-1\",\"platform\":\"k8s\",\"platformVersion\":\"1.20\",\"plugin\":\"csi.trident.netapp.io\"}"}}]}`)

	require.NoError(t, collectVolumes(context.Background(), env))
	lines := sink.lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0],
		` va_docker_name="pvc-1",va_fstype="xfs",va_provisioning="thin",va_trident_version="21.01",`+
			`va_trident_backend_uuid="b-1",va_trident_platform="k8s",va_trident_platform_version="1.20",`+
			`va_trident_plugin="csi.trident.netapp.io",block_size=4096i,qos_policy_id=0i,total_size=1i`)
}

func TestVolumes_ForeignAttributesIgnored(t *testing.T) {
	env, srv, sink := newTestEnv(t)
	srv.Result("ListVolumes", `{"volumes":[{
		"volumeID":1,"name":"v1","blockSize":512,"volumePairs":[],"attributes":{"owner":"ops"}}]}`)

	require.NoError(t, collectVolumes(context.Background(), env))
	assert.Equal(t, []string{`volumes,cluster=c1,id=1,name=v1 block_size=512i,qos_policy_id=0i`}, sink.lines())
}

func TestEnv_RosterSharedAcrossCollectors(t *testing.T) {
	env, srv, _ := newTestEnv(t)
	srv.Result("ListVolumes", `{"volumes":[{"volumeID":1,"name":"a"},{"volumeID":2,"name":"b"},{"name":"no id"}]}`)

	names, err := env.VolumeNames(context.Background())
	require.NoError(t, err)
	assert.Len(t, names, 2)
	byID, err := env.VolumeNameMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "a", 2: "b"}, byID)
	assert.Equal(t, 1, srv.CallCount("ListVolumes"))
}
