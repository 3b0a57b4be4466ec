// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"testing"

	"netpolicy.dev/netpolicy/internal/rules"
	"netpolicy.dev/netpolicy/internal/state"
)

func strp(v string) *string   { return &v }
func u16p(v uint16) *uint16   { return &v }
func u32p(v uint32) *uint32   { return &v }

func mustParse(t *testing.T, doc string) *rules.RuleSet {
	t.Helper()
	rs, err := rules.ParseYAML(doc)
	if err != nil {
		t.Fatalf("ruleset should parse: %v", err)
	}
	return rs
}

func TestEvaluateRulesetPicksHighestPriority(t *testing.T) {
	rs := mustParse(t, `
rules:
  - name: low
    priority: 10
    match:
      any: true
    action:
      route: slow
      log: true
  - name: high
    priority: 90
    match:
      any: true
    action:
      route: fast
`)
	decision, err := Evaluate(rs, &MatchContext{}, state.Normal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Kind != ActionKind {
		t.Fatalf("expected ActionKind, got %v", decision.Kind)
	}
	if decision.Rule.Name != "high" {
		t.Errorf("expected high, got %s", decision.Rule.Name)
	}
}

func TestEvaluateRulesetPicksMoreSpecificOnTie(t *testing.T) {
	rs := mustParse(t, `
rules:
  - name: general
    priority: 50
    match:
      any: true
    action:
      route: slow
      log: true
  - name: specific
    priority: 50
    match:
      protocol: tcp
      port: "443"
    action:
      route: fast
`)
	ctx := &MatchContext{Protocol: strp("tcp"), Port: u16p(443)}
	decision, err := Evaluate(rs, ctx, state.Normal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Rule.Name != "specific" {
		t.Errorf("expected specific, got %s", decision.Rule.Name)
	}
}

func TestEvaluateRulesetSkipsNonMatching(t *testing.T) {
	rs := mustParse(t, `
rules:
  - name: only_udp
    priority: 100
    match:
      protocol: udp
    action:
      route: slow
  - name: tcp_rule
    priority: 10
    match:
      protocol: tcp
    action:
      route: fast
`)
	ctx := &MatchContext{Protocol: strp("tcp")}
	decision, err := Evaluate(rs, ctx, state.Normal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Rule.Name != "tcp_rule" {
		t.Errorf("expected tcp_rule, got %s", decision.Rule.Name)
	}
}

func TestEvaluateRulesetRespectsStateWhen(t *testing.T) {
	rs := mustParse(t, `
rules:
  - name: normal_rule
    priority: 10
    match:
      any: true
    action:
      route: fast
  - name: failover_rule
    priority: 100
    when:
      state: FAILOVER
    match:
      any: true
    action:
      switch_route: backup
`)
	decision, err := Evaluate(rs, &MatchContext{}, state.Failover)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Rule.Name != "failover_rule" {
		t.Errorf("expected failover_rule, got %s", decision.Rule.Name)
	}
}

func TestEvaluateRulesetRespectsStateDisable(t *testing.T) {
	rs := mustParse(t, `
rules:
  - name: disabled_in_degraded
    priority: 100
    disable: [DEGRADED]
    match:
      any: true
    action:
      route: fast
  - name: fallback
    priority: 10
    match:
      any: true
    action:
      route: slow
`)
	decision, err := Evaluate(rs, &MatchContext{}, state.Degraded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Rule.Name != "fallback" {
		t.Errorf("expected fallback, got %s", decision.Rule.Name)
	}
}

func TestMatchPortSupportsRangesAndLists(t *testing.T) {
	rs := mustParse(t, `
rules:
  - name: ssh_and_range
    priority: 10
    match:
      port: "22,1000-2000"
    action:
      route: slow
`)
	ctx := &MatchContext{Port: u16p(1500)}
	decision, err := Evaluate(rs, ctx, state.Normal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Rule.Name != "ssh_and_range" {
		t.Errorf("expected ssh_and_range, got %s", decision.Rule.Name)
	}
}

func TestMatchSNIWildcardSuffixExcludesBareDomain(t *testing.T) {
	rs := mustParse(t, `
rules:
  - name: zoom
    priority: 10
    match:
      sni: "*.zoom.us"
    action:
      block: true
`)
	bare := &MatchContext{SNI: strp("zoom.us")}
	decision, err := Evaluate(rs, bare, state.Normal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Kind != NoMatch {
		t.Errorf("expected bare domain not to match *.zoom.us, got rule %v", decision.Rule)
	}

	sub := &MatchContext{SNI: strp("cdn.zoom.us")}
	decision, err = Evaluate(rs, sub, state.Normal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Kind != ActionKind {
		t.Errorf("expected subdomain to match *.zoom.us")
	}
}

func TestEvaluateEmptyRulesetRejected(t *testing.T) {
	_, err := Evaluate(&rules.RuleSet{}, &MatchContext{}, state.Normal)
	if err == nil {
		t.Fatal("expected an error for empty ruleset")
	}
}

func TestCompareNumericOperators(t *testing.T) {
	rs := mustParse(t, `
rules:
  - name: high_latency
    priority: 10
    match:
      latency_ms: ">100"
    action:
      switch_route: backup
`)
	under := &MatchContext{LatencyMs: u32p(50)}
	decision, err := Evaluate(rs, under, state.Normal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Kind != NoMatch {
		t.Errorf("expected no match under threshold")
	}

	over := &MatchContext{LatencyMs: u32p(150)}
	decision, err = Evaluate(rs, over, state.Normal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Kind != ActionKind {
		t.Errorf("expected a match over threshold")
	}
}
