// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package health samples ICMP round-trip latency and packet loss against a
// target host and feeds the results into the operational state machine
// (internal/state), giving the daemon a live signal for the
// NORMAL/DEGRADED/FAILOVER/RECOVERY transitions spec.md §3 describes
// without depending on the inspector's per-connection view.
package health

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"netpolicy.dev/netpolicy/internal/logging"
	"netpolicy.dev/netpolicy/internal/state"
)

// minInterval is the same 1-second floor spec.md §5 enforces on the
// daemon's other polling loops.
const minInterval = time.Second

// Sample is one round of ICMP probing.
type Sample struct {
	LatencyMs *uint32
	ErrorRate *float32
}

// Prober runs ICMP pings against Target and reports a Sample.
type Prober struct {
	Target     string
	Count      int
	Timeout    time.Duration
	Privileged bool
}

// NewProber returns a Prober sending 5 pings per sample, with one
// sampling round bounded by a 4-second timeout.
func NewProber(target string) *Prober {
	return &Prober{Target: target, Count: 5, Timeout: 4 * time.Second}
}

// Sample sends Count ICMP echo requests to Target and summarizes the
// result as an average latency and a packet-loss-derived error rate.
func (p *Prober) Sample(ctx context.Context) (Sample, error) {
	pinger, err := probing.NewPinger(p.Target)
	if err != nil {
		return Sample{}, fmt.Errorf("health: resolve target %q: %w", p.Target, err)
	}
	pinger.Count = p.Count
	pinger.Timeout = p.Timeout
	pinger.SetPrivileged(p.Privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		return Sample{}, fmt.Errorf("health: ping %q: %w", p.Target, err)
	}

	stats := pinger.Statistics()
	latency := uint32(stats.AvgRtt.Milliseconds())
	errorRate := float32(stats.PacketLoss) / 100

	return Sample{LatencyMs: &latency, ErrorRate: &errorRate}, nil
}

// sampleFunc abstracts the actual ICMP round, so Sampler can be driven by
// a fake in tests without requiring raw-socket privileges.
type sampleFunc func(ctx context.Context) (Sample, error)

// Sampler periodically probes Target and drives a state.Machine.
type Sampler struct {
	sample   sampleFunc
	machine  *state.Machine
	interval time.Duration

	// OnSample, if set, is called with each successful sample.
	OnSample func(Sample)
	// OnError, if set, is called whenever a probing round fails; the
	// state machine is left untouched for that round.
	OnError func(error)
}

// NewSampler returns a Sampler probing target every interval (floored at
// minInterval) and feeding results into machine.
func NewSampler(target string, interval time.Duration, machine *state.Machine) *Sampler {
	return newSampler(NewProber(target).Sample, interval, machine)
}

func newSampler(sample sampleFunc, interval time.Duration, machine *state.Machine) *Sampler {
	if interval < minInterval {
		interval = minInterval
	}
	return &Sampler{
		sample:   sample,
		machine:  machine,
		interval: interval,
	}
}

// Run blocks, sampling on Sampler's interval until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sampler) tick(ctx context.Context) {
	sample, err := s.sample(ctx)
	if err != nil {
		logging.Warn("health sample failed", "err", err)
		if s.OnError != nil {
			s.OnError(err)
		}
		return
	}

	s.machine.Transition(sample.LatencyMs, sample.ErrorRate)
	logging.Debug("health sample", "latency_ms", deref(sample.LatencyMs), "error_rate", derefF(sample.ErrorRate), "state", s.machine.State().String())
	if s.OnSample != nil {
		s.OnSample(sample)
	}
}

func deref(p *uint32) uint32 {
	if p == nil {
		return 0
	}
	return *p
}

func derefF(p *float32) float32 {
	if p == nil {
		return 0
	}
	return *p
}
