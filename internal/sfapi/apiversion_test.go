// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package sfapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareAPIVersion(t *testing.T) {
	tests := []struct {
		cluster, endpoint string
		want              int
	}{
		{"12.5", "12.5", 0},
		{"12.7", "12.5", 1},
		{"12.3", "12.5", -1},
		{"12.5", "", 0},
		{"12.10", "12.9", 1},
	}
	for _, tt := range tests {
		got, err := CompareAPIVersion(tt.cluster, tt.endpoint)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s vs %s", tt.cluster, tt.endpoint)
	}

	_, err := CompareAPIVersion("twelve", "12.5")
	assert.Error(t, err)
}
