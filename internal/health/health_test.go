// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"netpolicy.dev/netpolicy/internal/state"
)

func u32p(v uint32) *uint32   { return &v }
func f32p(v float32) *float32 { return &v }

func TestNewSamplerEnforcesMinInterval(t *testing.T) {
	s := newSampler(func(context.Context) (Sample, error) { return Sample{}, nil }, 10*time.Millisecond, state.New())
	if s.interval != minInterval {
		t.Fatalf("expected interval floored to %v, got %v", minInterval, s.interval)
	}
}

func TestTickFeedsMachineOnSuccess(t *testing.T) {
	m := state.New()
	sample := Sample{LatencyMs: u32p(200), ErrorRate: f32p(0)}
	s := newSampler(func(context.Context) (Sample, error) { return sample, nil }, minInterval, m)

	var got Sample
	s.OnSample = func(smp Sample) { got = smp }

	s.tick(context.Background())

	if m.State() != state.Degraded {
		t.Fatalf("expected Degraded after high-latency sample, got %v", m.State())
	}
	if *got.LatencyMs != 200 {
		t.Fatalf("expected OnSample to receive the sample, got %+v", got)
	}
}

func TestTickCallsOnErrorAndLeavesStateUntouched(t *testing.T) {
	m := state.New()
	boom := errors.New("boom")
	s := newSampler(func(context.Context) (Sample, error) { return Sample{}, boom }, minInterval, m)

	var errCount atomic.Int32
	s.OnError = func(err error) {
		if err != boom {
			t.Errorf("unexpected error: %v", err)
		}
		errCount.Add(1)
	}

	s.tick(context.Background())

	if errCount.Load() != 1 {
		t.Fatalf("expected OnError to fire once, got %d", errCount.Load())
	}
	if m.State() != state.Normal {
		t.Fatalf("expected state untouched, got %v", m.State())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	var calls atomic.Int32
	s := newSampler(func(context.Context) (Sample, error) {
		calls.Add(1)
		return Sample{LatencyMs: u32p(1), ErrorRate: f32p(0)}, nil
	}, minInterval, state.New())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
