// Copyright The Telegen Authors
// SPDX-License-Identifier: Apache-2.0

package selftelemetry

import (
	"encoding/json"
	"net/http"
	"time"
)

// Overall /healthz states.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// CollectorReport is the last known state of one collector.
type CollectorReport struct {
	Status         string    `json:"status"`
	LastCheck      time.Time `json:"last_check"`
	LastSuccess    time.Time `json:"last_success"`
	LastError      string    `json:"last_error,omitempty"`
	ErrorCount     int       `json:"error_count"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	Healthy        bool      `json:"healthy"`
}

// TierReport counts the activations of one tier.
type TierReport struct {
	Iterations uint64 `json:"iterations"`
	Skipped    uint64 `json:"skipped"`
}

// HealthReport is the body of /healthz once a source is set.
type HealthReport struct {
	Status     string                     `json:"status"`
	Collectors map[string]CollectorReport `json:"collectors"`
	Tiers      map[string]TierReport      `json:"tiers"`
}

// HealthSource produces the current report.
type HealthSource func() HealthReport

// SetHealthSource makes /healthz describe collectors and tiers. It may be
// called after the server started.
func (m *Metrics) SetHealthSource(fn HealthSource) {
	if m == nil {
		return
	}
	m.health.Store(&fn)
}

func (m *Metrics) healthReport() (HealthReport, bool) {
	if m == nil {
		return HealthReport{}, false
	}
	fn := m.health.Load()
	if fn == nil || *fn == nil {
		return HealthReport{}, false
	}
	r := (*fn)()
	r.Status = HealthOK
	for _, c := range r.Collectors {
		if !c.Healthy {
			r.Status = HealthDegraded
			break
		}
	}
	return r, true
}

// healthz stays 200 while the process runs; failing collectors only turn
// the status to degraded.
func healthz(m *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		r, ok := m.healthReport()
		if !ok {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(HealthOK))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(r)
	}
}
