// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rules holds the RuleSet data model, its YAML decoding, and
// structural validation (spec §3, §4.1). DSL decoding lives in the sibling
// internal/dsl package but shares validation from here, per spec §4.1
// ("Validation runs after either decoder and is identical in both paths").
package rules

import "gopkg.in/yaml.v3"

// RuleSet is a non-empty, ordered list of Rule. Order is preserved for
// debugging only; it has no bearing on selection (the engine picks winners
// by priority+specificity, see internal/engine).
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Rule is a single match/action entry.
type Rule struct {
	Name     string         `yaml:"name"`
	Priority int            `yaml:"priority"`
	Match    Match          `yaml:"match"`
	When     *When          `yaml:"when,omitempty"`
	Disable  *StateSelector `yaml:"disable,omitempty"`
	Action   Action         `yaml:"action"`
}

// When gates a Rule to apply only when the engine state is in State.
type When struct {
	State *StateSelector `yaml:"state,omitempty"`
}

// Match is the AND-combination of present predicate fields (spec §3).
type Match struct {
	Any       *bool   `yaml:"any,omitempty"`
	SNI       *string `yaml:"sni,omitempty"`
	Protocol  *string `yaml:"protocol,omitempty"`
	Port      *string `yaml:"port,omitempty"`
	LatencyMs *string `yaml:"latency_ms,omitempty"`
	RttMs     *string `yaml:"rtt_ms,omitempty"`
}

// Action is the validated action block; exactly one primary action must be
// set (Route, SwitchRoute, Block, or Throttle) — see Validate.
type Action struct {
	Route       *string `yaml:"route,omitempty"`
	SwitchRoute *string `yaml:"switch_route,omitempty"`
	Block       *bool   `yaml:"block,omitempty"`
	Throttle    *string `yaml:"throttle,omitempty"`
	Log         *bool   `yaml:"log,omitempty"`
}

// StateSelector accepts either a bare state name or a list of them in YAML
// (spec's "Untagged selector" design note); it is always canonicalized to
// a Values slice internally.
type StateSelector struct {
	Values []string
}

// UnmarshalYAML implements the untagged-scalar-or-sequence decoding.
func (s *StateSelector) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		s.Values = []string{single}
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return err
	}
	s.Values = many
	return nil
}

// MarshalYAML renders a single-element selector as a scalar, matching the
// shape callers are likely to have authored by hand.
func (s StateSelector) MarshalYAML() (any, error) {
	if len(s.Values) == 1 {
		return s.Values[0], nil
	}
	return s.Values, nil
}

// BoolPtr/StrPtr are small helpers used by the DSL decoder and tests to
// populate the pointer-typed optional fields above.
func BoolPtr(v bool) *bool       { return &v }
func StrPtr(v string) *string    { return &v }
