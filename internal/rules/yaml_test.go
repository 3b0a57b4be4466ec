// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"

	nperrors "netpolicy.dev/netpolicy/internal/errors"
)

// dumpRuleSet renders rs as one line per rule, in a shape stable enough to
// diff: reload tests compare this rendering rather than the struct, so a
// failure shows exactly which rule's fields moved.
func dumpRuleSet(rs *RuleSet) string {
	var b strings.Builder
	for _, r := range rs.Rules {
		route, block := "<nil>", "<nil>"
		if r.Action.Route != nil {
			route = *r.Action.Route
		}
		if r.Action.Block != nil {
			block = fmt.Sprint(*r.Action.Block)
		}
		fmt.Fprintf(&b, "%s priority=%d route=%s block=%s\n", r.Name, r.Priority, route, block)
	}
	return b.String()
}

// assertSameRuleSet fails t with a unified diff (via go-difflib, the same
// library the teacher's internal/api/config_handlers.go reaches for when
// comparing config snapshots) whenever before and after render differently.
func assertSameRuleSet(t *testing.T, label string, before, after *RuleSet) {
	t.Helper()
	a, b := dumpRuleSet(before), dumpRuleSet(after)
	if a == b {
		return
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "before",
		ToFile:   "after",
		Context:  2,
	})
	if err != nil {
		t.Fatalf("%s: rulesets differ and diff computation failed: %v", label, err)
	}
	t.Fatalf("%s: rulesets differ:\n%s", label, diff)
}

func TestParseYAMLOk(t *testing.T) {
	doc := `
rules:
  - name: block-gaming
    priority: 10
    match:
      sni: "*.riotgames.com"
    action:
      block: true
  - name: default-route
    priority: 0
    match:
      any: true
    action:
      route: primary
`
	rs, err := ParseYAML(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rs.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rs.Rules))
	}
	if rs.Rules[0].Name != "block-gaming" {
		t.Errorf("unexpected first rule name: %s", rs.Rules[0].Name)
	}
}

func TestParseYAMLRejectsMalformedDocument(t *testing.T) {
	_, err := ParseYAML("rules: [this is not valid")
	if err == nil {
		t.Fatal("expected an error")
	}
	kind, ok := nperrors.GetKind(err)
	if !ok || kind != nperrors.KindYaml {
		t.Errorf("expected KindYaml, got %v (ok=%v)", kind, ok)
	}
}

func TestValidateEmptyRuleSet(t *testing.T) {
	err := Validate(&RuleSet{})
	if err == nil {
		t.Fatal("expected an error for empty ruleset")
	}
	kind, _ := nperrors.GetKind(err)
	if kind != nperrors.KindInvalid {
		t.Errorf("expected KindInvalid, got %v", kind)
	}
}

func TestValidateMatchRequiresFieldOrAny(t *testing.T) {
	rs := &RuleSet{Rules: []Rule{{
		Name:   "bare",
		Match:  Match{},
		Action: Action{Block: BoolPtr(true)},
	}}}
	if err := Validate(rs); err == nil {
		t.Fatal("expected an error for empty match without any:true")
	}
}

func TestValidateAnyTrueOk(t *testing.T) {
	rs := &RuleSet{Rules: []Rule{{
		Name:   "catch-all",
		Match:  Match{Any: BoolPtr(true)},
		Action: Action{Route: StrPtr("primary")},
	}}}
	if err := Validate(rs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateActionRequiresExactlyOnePrimary(t *testing.T) {
	none := &RuleSet{Rules: []Rule{{
		Name:   "no-action",
		Match:  Match{Any: BoolPtr(true)},
		Action: Action{},
	}}}
	if err := Validate(none); err == nil {
		t.Fatal("expected an error for no primary action")
	}

	both := &RuleSet{Rules: []Rule{{
		Name:   "two-actions",
		Match:  Match{Any: BoolPtr(true)},
		Action: Action{Route: StrPtr("a"), Block: BoolPtr(true)},
	}}}
	if err := Validate(both); err == nil {
		t.Fatal("expected an error for two primary actions")
	}
}

func TestValidateNegativePriorityRejected(t *testing.T) {
	rs := &RuleSet{Rules: []Rule{{
		Name:     "negative",
		Priority: -1,
		Match:    Match{Any: BoolPtr(true)},
		Action:   Action{Route: StrPtr("a")},
	}}}
	if err := Validate(rs); err == nil {
		t.Fatal("expected an error for negative priority")
	}
}

func TestValidatePortPattern(t *testing.T) {
	cases := []struct {
		value string
		ok    bool
	}{
		{"80", true},
		{"80,443", true},
		{"1000-2000", true},
		{"1000-2000,443", true},
		{"2000-1000", false},
		{"", false},
		{"abc", false},
		{"80,", false},
	}
	for _, c := range cases {
		err := ValidatePortPattern(c.value)
		if c.ok && err != nil {
			t.Errorf("ValidatePortPattern(%q): unexpected error: %v", c.value, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ValidatePortPattern(%q): expected an error", c.value)
		}
	}
}

func TestParseYAMLRoundTripIsStable(t *testing.T) {
	doc := `
rules:
  - name: block-gaming
    priority: 10
    match:
      sni: "*.riotgames.com"
    action:
      block: true
  - name: default-route
    priority: 0
    match:
      any: true
    action:
      route: primary
`
	first, err := ParseYAML(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ParseYAML(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSameRuleSet(t, "reparsing the same document", first, second)
}

func TestValidateStateSelectorRejectsUnknownState(t *testing.T) {
	rs := &RuleSet{Rules: []Rule{{
		Name:   "bad-state",
		Match:  Match{Any: BoolPtr(true)},
		When:   &When{State: &StateSelector{Values: []string{"BOGUS"}}},
		Action: Action{Route: StrPtr("a")},
	}}}
	if err := Validate(rs); err == nil {
		t.Fatal("expected an error for unknown state value")
	}
}
