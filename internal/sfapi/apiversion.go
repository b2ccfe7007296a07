// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package sfapi

import (
	"fmt"

	"github.com/blang/semver/v4"
)

// CompareAPIVersion compares the API version a cluster reports with the
// version in the endpoint path. The result is negative when the cluster is
// older than the endpoint, zero when equal and positive when newer.
func CompareAPIVersion(cluster, endpoint string) (int, error) {
	if endpoint == "" {
		endpoint = DefaultAPIVersion
	}
	c, err := semver.ParseTolerant(cluster)
	if err != nil {
		return 0, fmt.Errorf("cluster API version %q: %w", cluster, err)
	}
	e, err := semver.ParseTolerant(endpoint)
	if err != nil {
		return 0, fmt.Errorf("endpoint API version %q: %w", endpoint, err)
	}
	return c.Compare(e), nil
}
