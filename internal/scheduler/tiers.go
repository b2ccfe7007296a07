// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"fmt"
	"slices"
	"time"
)

// Tier names.
const (
	TierHigh         = "high"
	TierMedium       = "medium"
	TierLow          = "low"
	TierExperimental = "experimental"
)

// Tier is one independently scheduled group of collectors.
type Tier struct {
	Name       string
	Interval   time.Duration
	Timeout    time.Duration
	JitterMin  time.Duration
	JitterMax  time.Duration
	Collectors []string
}

// Intervals overrides the cadence of the configurable tiers. Zero keeps
// the default.
type Intervals struct {
	High   time.Duration
	Medium time.Duration
	Low    time.Duration
}

// AllowedIntervals lists the cadences each configurable tier accepts, in
// seconds.
var AllowedIntervals = map[string][]int{
	TierHigh:   {60, 120, 180, 300},
	TierMedium: {300, 600, 900},
	TierLow:    {1800, 3600, 7200, 10800},
}

// DefaultTiers returns the stock tier layout. The experimental tier is
// included only when enabled.
func DefaultTiers(experimental bool) []Tier {
	tiers := []Tier{
		{
			Name:     TierHigh,
			Interval: 60 * time.Second,
			Timeout:  10 * time.Second,
			Collectors: []string{
				"cluster_faults", "cluster_performance", "node_performance",
				"volume_performance", "sync_jobs",
			},
		},
		{
			Name:       TierMedium,
			Interval:   600 * time.Second,
			Timeout:    15 * time.Second,
			Collectors: []string{"accounts", "cluster_capacity", "iscsi_sessions", "volumes"},
		},
		{
			Name:     TierLow,
			Interval: 3600 * time.Second,
			Timeout:  30 * time.Second,
			Collectors: []string{
				"account_efficiency", "cluster_version", "drive_stats",
				"schedules", "volume_efficiency",
			},
		},
	}
	if experimental {
		tiers = append(tiers, Tier{
			Name:       TierExperimental,
			Interval:   600 * time.Second,
			Timeout:    20 * time.Second,
			JitterMin:  5 * time.Second,
			JitterMax:  10 * time.Second,
			Collectors: []string{"snapshot_groups", "volume_qos_histograms"},
		})
	}
	return tiers
}

// Tiers returns the default layout with iv applied.
func Tiers(iv Intervals, experimental bool) ([]Tier, error) {
	tiers := DefaultTiers(experimental)
	overrides := map[string]time.Duration{TierHigh: iv.High, TierMedium: iv.Medium, TierLow: iv.Low}
	for i := range tiers {
		d := overrides[tiers[i].Name]
		if d == 0 {
			continue
		}
		if err := ValidateInterval(tiers[i].Name, d); err != nil {
			return nil, err
		}
		tiers[i].Interval = d
	}
	return tiers, nil
}

// ValidateInterval checks d against the cadences allowed for tier.
func ValidateInterval(tier string, d time.Duration) error {
	allowed, ok := AllowedIntervals[tier]
	if !ok {
		return fmt.Errorf("tier %q has a fixed interval", tier)
	}
	if d%time.Second != 0 || !slices.Contains(allowed, int(d/time.Second)) {
		return fmt.Errorf("interval %s not allowed for tier %q, use one of %v seconds", d, tier, allowed)
	}
	return nil
}
