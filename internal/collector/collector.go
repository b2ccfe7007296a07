// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector turns Element API responses into line-protocol payloads.
// Each collector fetches one measurement domain, encodes it through
// declarative schemas and hands the payload to the sink.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/platformbuilds/sfc/internal/lineproto"
)

// ErrNoData marks a valid empty result set. The collector sends nothing,
// not even its timing self-metric, and the run does not count as failed.
var ErrNoData = errors.New("no data")

// Func is the body of a collector.
type Func func(ctx context.Context, env *Env) error

// Collector is a named collection unit with the schemas it encodes with.
type Collector struct {
	Name    string
	Run     Func
	Schemas []lineproto.Schema
}

var registry = map[string]Collector{}

func register(c Collector) {
	if _, dup := registry[c.Name]; dup {
		panic(fmt.Sprintf("collector %q registered twice", c.Name))
	}
	registry[c.Name] = c
}

// Lookup returns the collector registered under name.
func Lookup(name string) (Collector, bool) {
	c, ok := registry[name]
	return c, ok
}

// Names returns all registered collector names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidateSchemas checks every registered schema for duplicate keys,
// counting the implicit cluster tag where the measurement carries it.
func ValidateSchemas() error {
	for _, name := range Names() {
		for _, s := range registry[name].Schemas {
			var extra []string
			if !clusterAsName(s.Measurement) {
				extra = append(extra, "cluster")
			}
			if err := s.Validate(extra...); err != nil {
				return fmt.Errorf("collector %s: %w", name, err)
			}
		}
	}
	return nil
}

// clusterAsName reports measurements that identify the cluster through a
// name tag instead of the cluster tag.
func clusterAsName(measurement string) bool {
	switch measurement {
	case "cluster_performance", "cluster_capacity", "cluster_version":
		return true
	}
	return false
}

// Fatal is implemented by errors that must stop the process.
type Fatal interface {
	error
	ExitCode() int
}

// AsFatal returns the fatal error wrapped in err, if any.
func AsFatal(err error) (Fatal, bool) {
	var f Fatal
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
