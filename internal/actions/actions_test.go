// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package actions

import (
	"testing"

	"netpolicy.dev/netpolicy/internal/rules"
)

func TestPlanActionPrefersRoute(t *testing.T) {
	action := &rules.Action{
		Route: rules.StrPtr("fast"),
		Log:   rules.BoolPtr(true),
	}
	decision := Plan(action)
	if decision.Summary() != "route fast" {
		t.Errorf("expected 'route fast', got %q", decision.Summary())
	}
	if !decision.Log {
		t.Error("expected Log to be true")
	}
}

func TestPlanActionBlock(t *testing.T) {
	action := &rules.Action{Block: rules.BoolPtr(true)}
	decision := Plan(action)
	if decision.Summary() != "block" {
		t.Errorf("expected 'block', got %q", decision.Summary())
	}
}

func TestPlanActionSwitchRouteOverThrottle(t *testing.T) {
	action := &rules.Action{
		SwitchRoute: rules.StrPtr("backup"),
		Throttle:    rules.StrPtr("slowlane"),
	}
	decision := Plan(action)
	if decision.Summary() != "switch_route backup" {
		t.Errorf("expected switch_route to win over throttle, got %q", decision.Summary())
	}
}

func TestPlanActionThrottle(t *testing.T) {
	action := &rules.Action{Throttle: rules.StrPtr("slowlane")}
	decision := Plan(action)
	if decision.Summary() != "throttle slowlane" {
		t.Errorf("expected 'throttle slowlane', got %q", decision.Summary())
	}
}

func TestPlanActionLogOnlyFallbackForcesLog(t *testing.T) {
	decision := Plan(&rules.Action{})
	if decision.Kind != KindLogOnly {
		t.Errorf("expected KindLogOnly, got %v", decision.Kind)
	}
	if !decision.Log {
		t.Error("expected log-only fallback to force Log=true")
	}
}
