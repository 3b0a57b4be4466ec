// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"strings"
	"testing"

	"netpolicy.dev/netpolicy/internal/actions"
	"netpolicy.dev/netpolicy/internal/engine"
)

func strp(v string) *string { return &v }
func u16p(v uint16) *uint16 { return &v }

func TestRenderIptablesBlock(t *testing.T) {
	ctx := &engine.MatchContext{Protocol: strp("tcp"), Port: u16p(443)}
	decision := actions.Decision{Kind: actions.KindBlock}
	plan := Render(Iptables, ctx, decision)
	if !strings.Contains(plan.Commands[0], "iptables") {
		t.Errorf("expected iptables command, got %q", plan.Commands[0])
	}
	if !strings.Contains(plan.Commands[0], "DROP") {
		t.Errorf("expected DROP, got %q", plan.Commands[0])
	}
}

func TestRenderNftablesRoute(t *testing.T) {
	ctx := &engine.MatchContext{Protocol: strp("tcp"), Port: u16p(80)}
	decision := actions.Decision{Kind: actions.KindRoute, Name: "fast"}
	plan := Render(Nftables, ctx, decision)
	if !strings.Contains(plan.Commands[0], "nft add rule") {
		t.Errorf("expected nft add rule, got %q", plan.Commands[0])
	}
	if !strings.Contains(plan.Commands[0], "mark set") {
		t.Errorf("expected mark set, got %q", plan.Commands[0])
	}
}

func TestRouteMarkStableAndDistinct(t *testing.T) {
	a := routeMark("fast")
	b := routeMark("fast")
	if a != b {
		t.Errorf("expected routeMark to be deterministic, got %q vs %q", a, b)
	}
	if routeMark("fast") == routeMark("slow") {
		t.Error("expected distinct names to usually produce distinct marks")
	}
}

func TestRenderIptablesDefaultsToTCPWithoutProtocol(t *testing.T) {
	ctx := &engine.MatchContext{}
	decision := actions.Decision{Kind: actions.KindLogOnly, Log: true}
	plan := Render(Iptables, ctx, decision)
	if !strings.Contains(plan.Commands[0], "-p tcp") {
		t.Errorf("expected default tcp protocol, got %q", plan.Commands[0])
	}
	if !strings.Contains(plan.Commands[0], "LOG") {
		t.Errorf("expected LOG action, got %q", plan.Commands[0])
	}
}
