// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package telemetry holds the daemon's running counters (spec §4.6) and
// exports them both as a JSON-friendly Snapshot (for the HTTP API's
// /api/telemetry endpoint) and as Prometheus collectors, in the style of
// grimm.is/flywall/internal/ebpf/metrics.
package telemetry

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Telemetry holds lock-free counters plus a mutex-guarded last-error
// string; every method is safe for concurrent use.
type Telemetry struct {
	decisions   atomic.Uint64
	matches     atomic.Uint64
	xrayStart   atomic.Uint64
	xrayStop    atomic.Uint64
	xrayRestart atomic.Uint64
	errors      atomic.Uint64

	mu        sync.Mutex
	lastError *string

	metrics *Metrics
}

// New returns an empty Telemetry with its Prometheus collectors created
// but not attached to any registry — callers call Register.
func New() *Telemetry {
	return &Telemetry{metrics: newMetrics()}
}

// RecordDecision increments the decision counter, and the match counter
// too when matched is true.
func (t *Telemetry) RecordDecision(matched bool) {
	t.decisions.Add(1)
	t.metrics.Decisions.Inc()
	if matched {
		t.matches.Add(1)
		t.metrics.Matches.Inc()
	}
}

func (t *Telemetry) RecordXrayStart() {
	t.xrayStart.Add(1)
	t.metrics.XrayStart.Inc()
}

func (t *Telemetry) RecordXrayStop() {
	t.xrayStop.Add(1)
	t.metrics.XrayStop.Inc()
}

func (t *Telemetry) RecordXrayRestart() {
	t.xrayRestart.Add(1)
	t.metrics.XrayRestart.Inc()
}

// RecordError increments the error counter and remembers message as the
// most recent failure surfaced to operators.
func (t *Telemetry) RecordError(message string) {
	t.errors.Add(1)
	t.metrics.Errors.Inc()
	t.mu.Lock()
	t.lastError = &message
	t.mu.Unlock()
}

// Snapshot is a point-in-time, JSON-serializable view of the counters.
type Snapshot struct {
	Decisions   uint64  `json:"decisions"`
	Matches     uint64  `json:"matches"`
	XrayStart   uint64  `json:"xray_start"`
	XrayStop    uint64  `json:"xray_stop"`
	XrayRestart uint64  `json:"xray_restart"`
	Errors      uint64  `json:"errors"`
	LastError   *string `json:"last_error,omitempty"`
}

func (t *Telemetry) Snapshot() Snapshot {
	t.mu.Lock()
	lastError := t.lastError
	t.mu.Unlock()
	return Snapshot{
		Decisions:   t.decisions.Load(),
		Matches:     t.matches.Load(),
		XrayStart:   t.xrayStart.Load(),
		XrayStop:    t.xrayStop.Load(),
		XrayRestart: t.xrayRestart.Load(),
		Errors:      t.errors.Load(),
		LastError:   lastError,
	}
}

// Metrics holds the Prometheus collectors mirrored from the atomic
// counters above, so the same events are visible to both /api/telemetry
// and a Prometheus scrape.
type Metrics struct {
	Decisions   prometheus.Counter
	Matches     prometheus.Counter
	XrayStart   prometheus.Counter
	XrayStop    prometheus.Counter
	XrayRestart prometheus.Counter
	Errors      prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		Decisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netpolicy_decisions_total",
			Help: "Total number of engine evaluations.",
		}),
		Matches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netpolicy_matches_total",
			Help: "Total number of engine evaluations that matched a rule.",
		}),
		XrayStart: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netpolicy_xray_start_total",
			Help: "Total number of proxy process starts.",
		}),
		XrayStop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netpolicy_xray_stop_total",
			Help: "Total number of proxy process stops.",
		}),
		XrayRestart: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netpolicy_xray_restart_total",
			Help: "Total number of proxy process restarts.",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netpolicy_errors_total",
			Help: "Total number of recorded errors.",
		}),
	}
}

// Register attaches every collector to reg.
func (t *Telemetry) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		t.metrics.Decisions,
		t.metrics.Matches,
		t.metrics.XrayStart,
		t.metrics.XrayStop,
		t.metrics.XrayRestart,
		t.metrics.Errors,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
