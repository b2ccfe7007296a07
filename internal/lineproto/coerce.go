// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package lineproto

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// Unknown is the code written for enum values missing from a lookup table.
const Unknown int64 = 100

var replicationModes = map[string]int64{
	"Async":         1,
	"Sync":          2,
	"SnapshotsOnly": 3,
}

// Element skips 5 in its replication state numbering.
var replicationStates = map[string]int64{
	"Active":               1,
	"Idle":                 2,
	"PausedDisconnected":   3,
	"PausedManual":         4,
	"PausedManualRemote":   6,
	"ResumingConnected":    7,
	"ResumingDataTransfer": 8,
	"ResumingLocalSync":    9,
	"ResumingRRSync":       10,
}

// ReplicationMode maps a remote replication mode to its code.
func ReplicationMode(mode string) int64 {
	if c, ok := replicationModes[mode]; ok {
		return c
	}
	return Unknown
}

// ReplicationState maps a volume or snapshot replication state to its code.
func ReplicationState(state string) int64 {
	if c, ok := replicationStates[state]; ok {
		return c
	}
	return Unknown
}

// Round2 rounds to two decimals, half away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// InvalidDuration is written for durations that are null or malformed.
const InvalidDuration int64 = -1

var durationPattern = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})\.(\d{1,6})$`)

// DurationSeconds converts an "HH:MM:SS.ffffff" value to whole seconds.
// nil yields InvalidDuration without error; anything else that does not
// match yields InvalidDuration and an error for the caller to log.
func DurationSeconds(v any) (int64, error) {
	if v == nil {
		return InvalidDuration, nil
	}
	s, ok := v.(string)
	if !ok {
		return InvalidDuration, fmt.Errorf("duration has type %T, want string", v)
	}
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return InvalidDuration, fmt.Errorf("duration %q does not match HH:MM:SS.ffffff", s)
	}
	h, _ := strconv.ParseInt(m[1], 10, 64)
	mi, _ := strconv.ParseInt(m[2], 10, 64)
	sec, _ := strconv.ParseInt(m[3], 10, 64)
	if mi > 59 || sec > 59 {
		return InvalidDuration, fmt.Errorf("duration %q out of range", s)
	}
	return h*3600 + mi*60 + sec, nil
}

// TimeLayout is the timestamp format of snapshot and schedule records.
const TimeLayout = "2006-01-02T15:04:05Z"

// Never stands in for an expiration that does not exist.
const Never = ""

// NeverExpires is the expiration used for snapshots kept forever.
var NeverExpires = time.Date(2037, time.December, 31, 23, 59, 59, 0, time.UTC)

// TimeDiffEpoch returns create as Unix seconds and the number of seconds
// from create to expire. expire may be Never.
func TimeDiffEpoch(create, expire string) (int64, int64, error) {
	c, err := time.ParseInLocation(TimeLayout, create, time.UTC)
	if err != nil {
		return 0, 0, &TimestampError{Create: create, Expire: expire, Err: err}
	}
	e := NeverExpires
	if expire != Never {
		e, err = time.ParseInLocation(TimeLayout, expire, time.UTC)
		if err != nil {
			return 0, 0, &TimestampError{Create: create, Expire: expire, Err: err}
		}
	}
	return c.Unix(), int64(e.Sub(c) / time.Second), nil
}
