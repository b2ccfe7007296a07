// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package lineproto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplicationMode(t *testing.T) {
	assert.EqualValues(t, 1, ReplicationMode("Async"))
	assert.EqualValues(t, 2, ReplicationMode("Sync"))
	assert.EqualValues(t, 3, ReplicationMode("SnapshotsOnly"))
	for _, v := range []string{"", "async", "Mirror", "None"} {
		assert.Equal(t, Unknown, ReplicationMode(v), v)
	}
}

func TestReplicationState(t *testing.T) {
	assert.EqualValues(t, 1, ReplicationState("Active"))
	assert.EqualValues(t, 6, ReplicationState("PausedManualRemote"))
	assert.EqualValues(t, 10, ReplicationState("ResumingRRSync"))
	assert.Equal(t, Unknown, ReplicationState("Exploded"))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.234))
	assert.Equal(t, 1.24, Round2(1.2351))
	assert.Equal(t, 2.0, Round2(2))
}

func TestDurationSeconds(t *testing.T) {
	tests := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{"00:00:01.123456", 1, false},
		{"01:02:03.000000", 3723, false},
		{"00:10:00.5", 600, false},
		{nil, -1, false},
		{"", -1, true},
		{"1:02:03.000000", -1, true},
		{"00:61:00.000000", -1, true},
		{"garbage", -1, true},
		{int64(5), -1, true},
	}
	for _, tt := range tests {
		got, err := DurationSeconds(tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
		assert.Equal(t, tt.wantErr, err != nil, "%v", tt.in)
	}
}

func TestTimeDiffEpoch(t *testing.T) {
	c, d, err := TimeDiffEpoch("2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z")
	require.NoError(t, err)
	assert.EqualValues(t, 1704067200, c)
	assert.EqualValues(t, 86400, d)

	c, d, err = TimeDiffEpoch("2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.EqualValues(t, 1704067200, c)
	assert.EqualValues(t, 0, d)

	_, d, err = TimeDiffEpoch("2024-01-01T00:00:00Z", Never)
	require.NoError(t, err)
	assert.Equal(t, NeverExpires.Unix()-1704067200, d)
}

func TestTimeDiffEpoch_Unparsable(t *testing.T) {
	_, _, err := TimeDiffEpoch("yesterday", "2024-01-02T00:00:00Z")
	var tsErr *TimestampError
	require.True(t, errors.As(err, &tsErr))
	assert.Equal(t, ExitTimestamp, tsErr.ExitCode())

	_, _, err = TimeDiffEpoch("2024-01-01T00:00:00Z", "2024-13-02T00:00:00Z")
	assert.True(t, errors.As(err, &tsErr))
}
