// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package sfapi

import (
	"encoding/json"
	"strconv"
)

// Record is one entity returned by the cluster. Numbers are kept as
// json.Number so integer and float literals stay distinguishable.
type Record map[string]any

// Has reports whether key is present, even if its value is null.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Get returns the raw value for key.
func (r Record) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok && v != nil
}

// String returns key formatted as text; absent or null keys yield "".
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Int returns key as an integer. Float literals are truncated.
func (r Record) Int(key string) (int64, bool) {
	switch v := r[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}

// Float returns key as a float64.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Bool returns key as a bool. Non-bool values are reported as not ok.
func (r Record) Bool(key string) (bool, bool) {
	v, ok := r[key].(bool)
	return v, ok
}

// Record returns a nested object, or nil.
func (r Record) Record(key string) Record {
	switch v := r[key].(type) {
	case map[string]any:
		return Record(v)
	case Record:
		return v
	}
	return nil
}

// Records returns a nested list of objects, skipping non-object elements.
func (r Record) Records(key string) []Record {
	list, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// Len returns the length of a nested list, 0 when absent.
func (r Record) Len(key string) int {
	list, _ := r[key].([]any)
	return len(list)
}
