// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dsl decodes the line-oriented rule DSL (spec §4.2) into the same
// internal/rules.RuleSet produced by YAML, sharing rules.Validate for
// structural checks after decoding.
package dsl

import (
	"strconv"
	"strings"

	nperrors "netpolicy.dev/netpolicy/internal/errors"
	"netpolicy.dev/netpolicy/internal/rules"
)

// Parse decodes a DSL document into a validated RuleSet.
func Parse(input string) (*rules.RuleSet, error) {
	var built []rules.Rule
	var current *rules.Rule

	lines := strings.Split(input, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if rest, ok := cutPrefix(line, "rule "); ok {
			if current != nil {
				built = append(built, *current)
			}
			name := strings.TrimSpace(strings.TrimSuffix(rest, ":"))
			if name == "" {
				return nil, nperrors.Invalid("line %d: rule name is required", lineNo)
			}
			current = &rules.Rule{Name: name}
			continue
		}

		if current == nil {
			return nil, nperrors.Invalid("line %d: content must be inside a rule block", lineNo)
		}

		switch {
		case strings.HasPrefix(line, "priority "):
			value := strings.TrimSpace(strings.TrimPrefix(line, "priority "))
			parsed, err := strconv.Atoi(value)
			if err != nil {
				return nil, nperrors.Invalid("line %d: invalid priority", lineNo)
			}
			current.Priority = parsed

		case strings.HasPrefix(line, "match "):
			if err := parseMatchLine(line, &current.Match, lineNo); err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, "action "):
			if err := parseActionLine(line, &current.Action, lineNo); err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, "when "):
			sel, err := parseStateSelector(line, lineNo)
			if err != nil {
				return nil, err
			}
			current.When = &rules.When{State: sel}

		case strings.HasPrefix(line, "disable "):
			sel, err := parseStateSelector(line, lineNo)
			if err != nil {
				return nil, err
			}
			current.Disable = sel

		default:
			return nil, nperrors.Invalid("line %d: unknown directive", lineNo)
		}
	}

	if current != nil {
		built = append(built, *current)
	}
	if len(built) == 0 {
		return nil, nperrors.Invalid("no rules defined")
	}

	rs := &rules.RuleSet{Rules: built}
	if err := rules.Validate(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(s, prefix)), true
}

func parseMatchLine(line string, target *rules.Match, lineNo int) error {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "match "))
	if rest == "" {
		return nperrors.Invalid("line %d: match needs fields", lineNo)
	}
	for _, token := range strings.Fields(rest) {
		if token == "any" || token == "any=true" {
			target.Any = rules.BoolPtr(true)
			continue
		}
		key, raw, ok := strings.Cut(token, "=")
		if !ok {
			return nperrors.Invalid("line %d: invalid match token", lineNo)
		}
		value := stripQuotes(raw)
		switch key {
		case "sni":
			target.SNI = rules.StrPtr(value)
		case "protocol":
			target.Protocol = rules.StrPtr(value)
		case "port":
			target.Port = rules.StrPtr(value)
		case "latency_ms":
			target.LatencyMs = rules.StrPtr(value)
		case "rtt_ms":
			target.RttMs = rules.StrPtr(value)
		default:
			return nperrors.Invalid("line %d: unknown match key %s", lineNo, key)
		}
	}
	return nil
}

func parseActionLine(line string, target *rules.Action, lineNo int) error {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "action "))
	if rest == "" {
		return nperrors.Invalid("line %d: action needs fields", lineNo)
	}
	for _, token := range strings.Fields(rest) {
		if token == "block" || token == "block=true" {
			target.Block = rules.BoolPtr(true)
			continue
		}
		if token == "log" || token == "log=true" {
			target.Log = rules.BoolPtr(true)
			continue
		}
		key, raw, ok := strings.Cut(token, "=")
		if !ok {
			return nperrors.Invalid("line %d: invalid action token", lineNo)
		}
		value := stripQuotes(raw)
		switch key {
		case "route":
			target.Route = rules.StrPtr(value)
		case "switch_route":
			target.SwitchRoute = rules.StrPtr(value)
		case "throttle":
			target.Throttle = rules.StrPtr(value)
		case "log":
			target.Log = rules.BoolPtr(value == "true")
		default:
			return nperrors.Invalid("line %d: unknown action key %s", lineNo, key)
		}
	}
	return nil
}

func parseStateSelector(line string, lineNo int) (*rules.StateSelector, error) {
	fields := strings.Fields(line)
	rest := strings.Join(fields[1:], " ")
	value := strings.TrimSpace(rest)
	if after, ok := strings.CutPrefix(value, "state="); ok {
		value = after
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nperrors.Invalid("line %d: state value is required", lineNo)
	}
	var items []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			items = append(items, s)
		}
	}
	return &rules.StateSelector{Values: items}, nil
}

func stripQuotes(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
