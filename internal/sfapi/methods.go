// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package sfapi

import "context"

// ClusterInfo is the subset of GetClusterInfo used for identity.
type ClusterInfo struct {
	Name     string `json:"name"`
	MVIP     string `json:"mvip"`
	SVIP     string `json:"svip"`
	UniqueID string `json:"uniqueID"`
}

// ClusterVersionInfo is returned by GetClusterVersionInfo.
type ClusterVersionInfo struct {
	ClusterAPIVersion string `json:"clusterAPIVersion"`
	ClusterVersion    string `json:"clusterVersion"`
}

// Efficiency is returned by GetAccountEfficiency and GetVolumeEfficiency.
type Efficiency struct {
	Compression      float64 `json:"compression"`
	Deduplication    float64 `json:"deduplication"`
	ThinProvisioning float64 `json:"thinProvisioning"`
}

// Fault is one ListClusterFaults entry.
type Fault struct {
	Severity string `json:"severity"`
	Resolved bool   `json:"resolved"`
	Code     string `json:"code"`
}

// QoSHistogram holds the bucket counters of one volume keyed by histogram
// type and bucket name.
type QoSHistogram struct {
	VolumeID   int64                       `json:"volumeID"`
	Histograms map[string]map[string]int64 `json:"histograms"`
}

// VolumeName pairs a volume ID with its name.
type VolumeName struct {
	ID   int64
	Name string
}

func (c *Client) GetClusterInfo(ctx context.Context) (ClusterInfo, error) {
	var res struct {
		ClusterInfo ClusterInfo `json:"clusterInfo"`
	}
	err := c.Call(ctx, "GetClusterInfo", nil, &res)
	return res.ClusterInfo, err
}

func (c *Client) GetClusterVersionInfo(ctx context.Context) (ClusterVersionInfo, error) {
	var res ClusterVersionInfo
	err := c.Call(ctx, "GetClusterVersionInfo", nil, &res)
	return res, err
}

// ListVolumes returns volumes; activeOnly restricts the roster to volumes
// that are not deleted.
func (c *Client) ListVolumes(ctx context.Context, activeOnly bool) ([]Record, error) {
	params := map[string]any{}
	if activeOnly {
		params["volumeStatus"] = "active"
	}
	var res struct {
		Volumes []Record `json:"volumes"`
	}
	err := c.Call(ctx, "ListVolumes", params, &res)
	return res.Volumes, err
}

// VolumeNames returns ID/name pairs of active volumes in roster order.
func (c *Client) VolumeNames(ctx context.Context) ([]VolumeName, error) {
	vols, err := c.ListVolumes(ctx, true)
	if err != nil {
		return nil, err
	}
	return NamesOf(vols), nil
}

// NamesOf extracts ID/name pairs from ListVolumes records, skipping records
// without a volume ID.
func NamesOf(vols []Record) []VolumeName {
	out := make([]VolumeName, 0, len(vols))
	for _, v := range vols {
		id, ok := v.Int("volumeID")
		if !ok {
			continue
		}
		out = append(out, VolumeName{ID: id, Name: v.String("name")})
	}
	return out
}

func (c *Client) ListVolumeStats(ctx context.Context, volumeIDs []int64) ([]Record, error) {
	var res struct {
		VolumeStats []Record `json:"volumeStats"`
	}
	err := c.Call(ctx, "ListVolumeStats", map[string]any{"volumeIDs": volumeIDs}, &res)
	return res.VolumeStats, err
}

func (c *Client) ListAccounts(ctx context.Context) ([]Record, error) {
	var res struct {
		Accounts []Record `json:"accounts"`
	}
	err := c.Call(ctx, "ListAccounts", nil, &res)
	return res.Accounts, err
}

func (c *Client) GetAccountEfficiency(ctx context.Context, accountID int64) (Efficiency, error) {
	var res Efficiency
	err := c.Call(ctx, "GetAccountEfficiency", map[string]any{"accountID": accountID}, &res)
	return res, err
}

func (c *Client) GetVolumeEfficiency(ctx context.Context, volumeID int64) (Efficiency, error) {
	var res Efficiency
	err := c.Call(ctx, "GetVolumeEfficiency", map[string]any{"volumeID": volumeID}, &res)
	return res, err
}

func (c *Client) ListClusterFaults(ctx context.Context) ([]Fault, error) {
	var res struct {
		Faults []Fault `json:"faults"`
	}
	err := c.Call(ctx, "ListClusterFaults", nil, &res)
	return res.Faults, err
}

func (c *Client) ListVolumeQoSHistograms(ctx context.Context) ([]QoSHistogram, error) {
	var res struct {
		QoSHistograms []QoSHistogram `json:"qosHistograms"`
	}
	err := c.Call(ctx, "ListVolumeQoSHistograms", nil, &res)
	return res.QoSHistograms, err
}

func (c *Client) ListNodeStats(ctx context.Context) ([]Record, error) {
	var res struct {
		NodeStats struct {
			Nodes []Record `json:"nodes"`
		} `json:"nodeStats"`
	}
	err := c.Call(ctx, "ListNodeStats", nil, &res)
	return res.NodeStats.Nodes, err
}

func (c *Client) ListISCSISessions(ctx context.Context) ([]Record, error) {
	var res struct {
		Sessions []Record `json:"sessions"`
	}
	err := c.Call(ctx, "ListISCSISessions", nil, &res)
	return res.Sessions, err
}

func (c *Client) GetClusterStats(ctx context.Context) (Record, error) {
	var res struct {
		ClusterStats Record `json:"clusterStats"`
	}
	err := c.Call(ctx, "GetClusterStats", nil, &res)
	return res.ClusterStats, err
}

func (c *Client) GetClusterCapacity(ctx context.Context) (Record, error) {
	var res struct {
		ClusterCapacity Record `json:"clusterCapacity"`
	}
	err := c.Call(ctx, "GetClusterCapacity", nil, &res)
	return res.ClusterCapacity, err
}

func (c *Client) ListDriveStats(ctx context.Context) ([]Record, error) {
	var res struct {
		DriveStats []Record `json:"driveStats"`
	}
	err := c.Call(ctx, "ListDriveStats", nil, &res)
	return res.DriveStats, err
}

func (c *Client) ListSchedules(ctx context.Context) ([]Record, error) {
	var res struct {
		Schedules []Record `json:"schedules"`
	}
	err := c.Call(ctx, "ListSchedules", nil, &res)
	return res.Schedules, err
}

func (c *Client) ListGroupSnapshots(ctx context.Context) ([]Record, error) {
	var res struct {
		GroupSnapshots []Record `json:"groupSnapshots"`
	}
	err := c.Call(ctx, "ListGroupSnapshots", nil, &res)
	return res.GroupSnapshots, err
}

func (c *Client) ListSyncJobs(ctx context.Context) ([]Record, error) {
	var res struct {
		SyncJobs []Record `json:"syncJobs"`
	}
	err := c.Call(ctx, "ListSyncJobs", nil, &res)
	return res.SyncJobs, err
}
