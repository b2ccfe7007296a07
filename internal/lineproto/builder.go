// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

// Package lineproto encodes entity records as InfluxDB line protocol.
package lineproto

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	measurementEscaper = strings.NewReplacer(",", `\,`, " ", `\ `, "\n", `\n`)
	keyEscaper         = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `, "\n", `\n`)
	stringEscaper      = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

	errNoFields = errors.New("line has no fields")
	// ErrBareString marks a string that cannot be written as an unquoted
	// field value.
	ErrBareString = errors.New("string is not a numeric or boolean literal")
)

type kv struct {
	key   string
	value string
}

// Builder accumulates tags and fields in insertion order. The first error
// sticks and is returned by Line.
type Builder struct {
	measurement string
	tags        []kv
	fields      []kv
	seen        map[string]struct{}
	ts          int64
	hasTS       bool
	err         error
}

// New starts a line for measurement.
func New(measurement string) *Builder {
	b := &Builder{measurement: measurement, seen: make(map[string]struct{})}
	if measurement == "" {
		b.err = errors.New("empty measurement name")
	}
	return b
}

func (b *Builder) claim(key string) bool {
	if b.err != nil {
		return false
	}
	if key == "" {
		b.err = fmt.Errorf("measurement %q: empty key", b.measurement)
		return false
	}
	if _, dup := b.seen[key]; dup {
		b.err = &DuplicateKeyError{Measurement: b.measurement, Key: key}
		return false
	}
	b.seen[key] = struct{}{}
	return true
}

// Tag adds a tag. Empty values are omitted as line protocol has no empty tags.
func (b *Builder) Tag(key, value string) *Builder {
	if value == "" {
		return b
	}
	if b.claim(key) {
		b.tags = append(b.tags, kv{keyEscaper.Replace(key), keyEscaper.Replace(value)})
	}
	return b
}

// TagValue adds a tag from a decoded JSON value. Booleans become 1/0.
func (b *Builder) TagValue(key string, v any) *Builder {
	s, ok := formatTag(v)
	if !ok {
		return b
	}
	return b.Tag(key, s)
}

func (b *Builder) field(key, value string) *Builder {
	if b.claim(key) {
		b.fields = append(b.fields, kv{keyEscaper.Replace(key), value})
	}
	return b
}

// Int adds an integer field.
func (b *Builder) Int(key string, v int64) *Builder {
	return b.field(key, strconv.FormatInt(v, 10)+"i")
}

// Float adds a float field.
func (b *Builder) Float(key string, v float64) *Builder {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		if b.err == nil {
			b.err = fmt.Errorf("measurement %q: field %q is not finite", b.measurement, key)
		}
		return b
	}
	return b.field(key, strconv.FormatFloat(v, 'f', -1, 64))
}

// Bool adds a boolean as 1i or 0i.
func (b *Builder) Bool(key string, v bool) *Builder {
	if v {
		return b.Int(key, 1)
	}
	return b.Int(key, 0)
}

// String adds a quoted string field.
func (b *Builder) String(key, v string) *Builder {
	return b.field(key, `"`+stringEscaper.Replace(v)+`"`)
}

// Raw adds a field whose value is written as-is.
func (b *Builder) Raw(key, v string) *Builder {
	if v == "" {
		return b
	}
	return b.field(key, v)
}

// Value adds a field with automatic coercion: integer literals get the
// integer suffix, floats are written bare, booleans become 1i/0i and nil is
// skipped. Strings are written bare only when they are numeric or boolean
// literals; anything else fails the line with ErrBareString.
func (b *Builder) Value(key string, v any) *Builder {
	switch n := v.(type) {
	case nil:
		return b
	case json.Number:
		if isIntLiteral(n) {
			return b.field(key, n.String()+"i")
		}
		return b.field(key, n.String())
	case int:
		return b.Int(key, int64(n))
	case int64:
		return b.Int(key, n)
	case float64:
		return b.Float(key, n)
	case bool:
		return b.Bool(key, n)
	case string:
		if n == "" || isBareLiteral(n) {
			return b.Raw(key, n)
		}
		if b.err == nil {
			b.err = fmt.Errorf("measurement %q: field %q value %q: %w", b.measurement, key, n, ErrBareString)
		}
		return b
	}
	if b.err == nil {
		b.err = fmt.Errorf("measurement %q: field %q has unsupported type %T", b.measurement, key, v)
	}
	return b
}

// Time sets the line timestamp, written in whole seconds.
func (b *Builder) Time(t time.Time) *Builder {
	b.ts = t.Unix()
	b.hasTS = true
	return b
}

// Line renders the line without the trailing newline.
func (b *Builder) Line() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if len(b.fields) == 0 {
		return "", fmt.Errorf("measurement %q: %w", b.measurement, errNoFields)
	}
	var sb strings.Builder
	sb.WriteString(measurementEscaper.Replace(b.measurement))
	for _, t := range b.tags {
		sb.WriteByte(',')
		sb.WriteString(t.key)
		sb.WriteByte('=')
		sb.WriteString(t.value)
	}
	sb.WriteByte(' ')
	for i, f := range b.fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.key)
		sb.WriteByte('=')
		sb.WriteString(f.value)
	}
	if b.hasTS {
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatInt(b.ts, 10))
	}
	return sb.String(), nil
}

// IsNoFields reports whether err came from a line without fields.
func IsNoFields(err error) bool { return errors.Is(err, errNoFields) }

func isBareLiteral(s string) bool {
	switch s {
	case "true", "false", "TRUE", "FALSE", "True", "False", "t", "f", "T", "F":
		return true
	}
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func isIntLiteral(n json.Number) bool {
	return !strings.ContainsAny(n.String(), ".eE")
}

func formatTag(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "1", true
		}
		return "0", true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return fmt.Sprint(v), true
}

// Batch is a newline-terminated payload of lines.
type Batch struct {
	sb strings.Builder
	n  int
}

// Add appends one line.
func (p *Batch) Add(line string) {
	p.sb.WriteString(line)
	p.sb.WriteByte('\n')
	p.n++
}

// Len returns the number of lines.
func (p *Batch) Len() int { return p.n }

// String returns the payload.
func (p *Batch) String() string { return p.sb.String() }
