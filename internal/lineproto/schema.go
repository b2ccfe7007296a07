// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package lineproto

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind selects how a mapped value is written.
type Kind int

const (
	// Auto writes integer literals with the integer suffix and everything
	// else bare.
	Auto Kind = iota
	// Int always writes an integer.
	Int
	// Float writes the number without the integer suffix.
	Float
	// Quoted writes a quoted string.
	Quoted
	// Bool writes 1/0.
	Bool
)

// Pair maps a source attribute to a destination key.
type Pair struct {
	Src     string
	Dst     string
	Kind    Kind
	Default any
}

// Or returns a copy of p that falls back to v when the source is absent
// or null.
func (p Pair) Or(v any) Pair {
	p.Default = v
	return p
}

// T declares a tag.
func T(src, dst string) Pair { return Pair{Src: src, Dst: dst} }

// F declares a field.
func F(src, dst string, kind Kind) Pair { return Pair{Src: src, Dst: dst, Kind: kind} }

// Source is the read side of an entity record.
type Source interface {
	Get(key string) (any, bool)
}

// Map adapts a plain map to Source.
type Map map[string]any

func (m Map) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok && v != nil
}

// Schema is the declarative tag/field table of one measurement variant.
type Schema struct {
	Measurement string
	Tags        []Pair
	Fields      []Pair
}

// Validate rejects a schema whose destination keys repeat, including the
// implicit cluster tag.
func (s Schema) Validate(extraTags ...string) error {
	seen := make(map[string]struct{}, len(s.Tags)+len(s.Fields)+len(extraTags))
	check := func(key string) error {
		if _, dup := seen[key]; dup {
			return &DuplicateKeyError{Measurement: s.Measurement, Key: key}
		}
		seen[key] = struct{}{}
		return nil
	}
	for _, k := range extraTags {
		if err := check(k); err != nil {
			return err
		}
	}
	for _, p := range s.Tags {
		if err := check(p.Dst); err != nil {
			return err
		}
	}
	for _, p := range s.Fields {
		if err := check(p.Dst); err != nil {
			return err
		}
	}
	return nil
}

// EncodeTags applies the tag table to src. Keys that were absent and took
// their default are returned.
func (s Schema) EncodeTags(b *Builder, src Source) []string {
	var defaulted []string
	for _, p := range s.Tags {
		v, ok := lookup(src, p, &defaulted)
		if !ok {
			continue
		}
		if p.Kind == Bool {
			v = truthy(v)
		}
		b.TagValue(p.Dst, v)
	}
	return defaulted
}

// EncodeFields applies the field table to src.
func (s Schema) EncodeFields(b *Builder, src Source) []string {
	var defaulted []string
	for _, p := range s.Fields {
		v, ok := lookup(src, p, &defaulted)
		if !ok {
			continue
		}
		writeField(b, p, v)
	}
	return defaulted
}

// Encode starts a builder for the measurement with the given leading tags,
// applies both tables and returns the builder so callers may add more.
func (s Schema) Encode(src Source, leading ...string) (*Builder, []string) {
	b := New(s.Measurement)
	for i := 0; i+1 < len(leading); i += 2 {
		b.Tag(leading[i], leading[i+1])
	}
	defaulted := s.EncodeTags(b, src)
	defaulted = append(defaulted, s.EncodeFields(b, src)...)
	return b, defaulted
}

func lookup(src Source, p Pair, defaulted *[]string) (any, bool) {
	v, ok := src.Get(p.Src)
	if ok {
		return v, true
	}
	if p.Default != nil {
		*defaulted = append(*defaulted, p.Src)
		return p.Default, true
	}
	return nil, false
}

func writeField(b *Builder, p Pair, v any) {
	switch p.Kind {
	case Int:
		i, err := toInt(v)
		if err != nil {
			b.fail(fmt.Errorf("field %q: %w", p.Dst, err))
			return
		}
		b.Int(p.Dst, i)
	case Float:
		switch n := v.(type) {
		case json.Number:
			b.Raw(p.Dst, n.String())
		default:
			f, err := toFloat(v)
			if err != nil {
				b.fail(fmt.Errorf("field %q: %w", p.Dst, err))
				return
			}
			b.Float(p.Dst, f)
		}
	case Quoted:
		s, _ := formatTag(v)
		b.String(p.Dst, s)
	case Bool:
		b.Bool(p.Dst, truthy(v))
	default:
		b.Value(p.Dst, v)
	}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = fmt.Errorf("measurement %q: %w", b.measurement, err)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	}
	return v != nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("cannot use %T as integer", v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("cannot use %T as float", v)
}
