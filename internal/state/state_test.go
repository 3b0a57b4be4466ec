// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package state

import "testing"

func u32(v uint32) *uint32  { return &v }
func f32(v float32) *float32 { return &v }

func TestTransitionToDegradedOnHighLatency(t *testing.T) {
	m := New()
	m.Transition(u32(200), nil)
	if m.State() != Degraded {
		t.Errorf("expected Degraded, got %v", m.State())
	}
}

func TestTransitionToDegradedOnHighErrorRate(t *testing.T) {
	m := New()
	m.Transition(nil, f32(0.5))
	if m.State() != Degraded {
		t.Errorf("expected Degraded, got %v", m.State())
	}
}

func TestRecoveryToNormalOnClearConditions(t *testing.T) {
	m := New()
	m.SetState(Recovery)
	m.Transition(u32(10), f32(0.0))
	if m.State() != Normal {
		t.Errorf("expected Normal, got %v", m.State())
	}
}

func TestFailoverStaysFailoverUnderPressure(t *testing.T) {
	m := New()
	m.SetState(Failover)
	m.Transition(u32(500), nil)
	if m.State() != Failover {
		t.Errorf("expected Failover, got %v", m.State())
	}
}

func TestFailoverRecoversWhenClear(t *testing.T) {
	m := New()
	m.SetState(Failover)
	m.Transition(nil, nil)
	if m.State() != Recovery {
		t.Errorf("expected Recovery, got %v", m.State())
	}
}

func TestNilSignalsTreatedAsLow(t *testing.T) {
	m := New()
	m.Transition(nil, nil)
	if m.State() != Normal {
		t.Errorf("expected Normal, got %v", m.State())
	}
}

func TestStateString(t *testing.T) {
	cases := map[EngineState]string{
		Normal:   "NORMAL",
		Degraded: "DEGRADED",
		Failover: "FAILOVER",
		Recovery: "RECOVERY",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
