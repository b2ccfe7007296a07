// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/platformbuilds/sfc/internal/lineproto"
	"github.com/platformbuilds/sfc/internal/sfapi"
)

// ErrSendFailed is returned when the sink refused a payload. The sink has
// already logged the payload.
var ErrSendFailed = errors.New("sink did not accept payload")

// path resolves dotted keys through nested objects, so a schema may read
// "initiator.alias" directly.
type path sfapi.Record

func (p path) Get(key string) (any, bool) {
	r := sfapi.Record(p)
	for {
		head, rest, nested := strings.Cut(key, ".")
		if !nested {
			return r.Get(head)
		}
		r = r.Record(head)
		if r == nil {
			return nil, false
		}
		key = rest
	}
}

// overlay answers from extra first and falls back to base.
type overlay struct {
	base  lineproto.Source
	extra lineproto.Map
}

func (o overlay) Get(key string) (any, bool) {
	if v, ok := o.extra[key]; ok {
		return v, v != nil
	}
	return o.base.Get(key)
}

func with(r sfapi.Record, extra lineproto.Map) lineproto.Source {
	return overlay{base: path(r), extra: extra}
}

// emitter collects the lines of one payload and the keys that fell back to
// their defaults, so a run logs one warning instead of one per record.
type emitter struct {
	env       *Env
	batch     lineproto.Batch
	defaulted map[string]int
	skipped   int
}

func (e *Env) emitter() *emitter {
	return &emitter{env: e, defaulted: map[string]int{}}
}

// add finishes b. Fatal encoding errors are returned; other errors drop the
// record with a log line.
func (m *emitter) add(b *lineproto.Builder, defaulted []string) error {
	for _, k := range defaulted {
		m.defaulted[k]++
	}
	line, err := b.Line()
	if err == nil {
		m.batch.Add(line)
		return nil
	}
	if _, fatal := AsFatal(err); fatal {
		return err
	}
	m.skipped++
	if lineproto.IsNoFields(err) {
		m.env.Log.Debug("record has no fields, skipping", "error", err)
		return nil
	}
	m.env.Log.Error("record could not be encoded, skipping", "error", err)
	return nil
}

// encode applies s to src under the cluster tag and adds the line.
func (m *emitter) encode(s lineproto.Schema, src lineproto.Source) error {
	b, defaulted := s.Encode(src, "cluster", m.env.Cluster)
	return m.add(b, defaulted)
}

func (m *emitter) len() int { return m.batch.Len() }

// flush sends the collected lines. An empty batch yields ErrNoData.
func (m *emitter) flush(ctx context.Context) error {
	if len(m.defaulted) > 0 {
		keys := make([]string, 0, len(m.defaulted))
		for k := range m.defaulted {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		counts := make([]any, 0, 2*len(keys))
		for _, k := range keys {
			counts = append(counts, k, m.defaulted[k])
		}
		m.env.Log.Warn("attributes missing or null, defaults substituted", counts...)
		clear(m.defaulted)
	}
	if m.batch.Len() == 0 {
		return ErrNoData
	}
	payload := m.batch.String()
	m.batch = lineproto.Batch{}
	if !m.env.Sink.Send(ctx, payload) {
		return ErrSendFailed
	}
	return nil
}
