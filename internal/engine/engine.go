// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine implements the pure decision function of spec §4: given a
// RuleSet, a MatchContext describing the connection under evaluation, and
// the current operational EngineState, it picks the single best-matching
// rule (highest priority, then most specific match, first-seen wins ties).
package engine

import (
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	nperrors "netpolicy.dev/netpolicy/internal/errors"
	"netpolicy.dev/netpolicy/internal/rules"
	"netpolicy.dev/netpolicy/internal/state"
)

// DecisionKind distinguishes a matched decision from a fall-through.
type DecisionKind int

const (
	NoMatch DecisionKind = iota
	ActionKind
)

// Decision is the engine's verdict: either the winning Rule (and its
// Action), or NoMatch.
type Decision struct {
	Kind   DecisionKind
	Rule   *rules.Rule
	Action *rules.Action
}

// MatchContext carries the connection attributes rules are matched against.
// Every field is optional; a rule predicate referencing an absent field
// never matches (spec §4 "missing context field never matches").
type MatchContext struct {
	SNI       *string
	Protocol  *string
	Port      *uint16
	LatencyMs *uint32
	RttMs     *uint32
}

// Evaluate runs the selection algorithm of spec §4 against ruleset.
func Evaluate(ruleset *rules.RuleSet, ctx *MatchContext, st state.EngineState) (*Decision, error) {
	if len(ruleset.Rules) == 0 {
		return nil, nperrors.Invalid("rules must not be empty")
	}

	var best *rules.Rule
	for i := range ruleset.Rules {
		r := &ruleset.Rules[i]
		if !ruleApplies(r, st) {
			continue
		}
		if !matches(&r.Match, ctx) {
			continue
		}
		if best == nil || compareRule(r, best) > 0 {
			best = r
		}
	}

	if best != nil {
		return &Decision{Kind: ActionKind, Rule: best, Action: &best.Action}, nil
	}
	return &Decision{Kind: NoMatch}, nil
}

// compareRule returns >0 if a outranks b, <0 if b outranks a, 0 on a tie.
// Callers must only replace an incumbent on a strictly positive result, so
// ties resolve to whichever rule was seen first (spec's stable ordering).
func compareRule(a, b *rules.Rule) int {
	if a.Priority != b.Priority {
		if a.Priority > b.Priority {
			return 1
		}
		return -1
	}
	aSpec, bSpec := specificity(a), specificity(b)
	switch {
	case aSpec > bSpec:
		return 1
	case aSpec < bSpec:
		return -1
	default:
		return 0
	}
}

func specificity(r *rules.Rule) int {
	m := &r.Match
	if m.Any != nil && *m.Any {
		return 0
	}
	count := 0
	if m.SNI != nil {
		count++
	}
	if m.Protocol != nil {
		count++
	}
	if m.Port != nil {
		count++
	}
	if m.LatencyMs != nil {
		count++
	}
	if m.RttMs != nil {
		count++
	}
	return count
}

func matches(m *rules.Match, ctx *MatchContext) bool {
	if m.Any != nil && *m.Any {
		return true
	}

	if m.SNI != nil {
		if !matchSNI(*m.SNI, ctx.SNI) {
			return false
		}
	}

	if m.Protocol != nil {
		if ctx.Protocol == nil {
			return false
		}
		if !strings.EqualFold(*m.Protocol, *ctx.Protocol) {
			return false
		}
	}

	if m.Port != nil {
		if ctx.Port == nil {
			return false
		}
		if !matchPort(*m.Port, *ctx.Port) {
			return false
		}
	}

	if m.LatencyMs != nil {
		if ctx.LatencyMs == nil {
			return false
		}
		if !compareNumeric(*m.LatencyMs, *ctx.LatencyMs) {
			return false
		}
	}

	if m.RttMs != nil {
		if ctx.RttMs == nil {
			return false
		}
		if !compareNumeric(*m.RttMs, *ctx.RttMs) {
			return false
		}
	}

	return true
}

func ruleApplies(r *rules.Rule, st state.EngineState) bool {
	if r.Disable != nil && selectorContains(r.Disable, st) {
		return false
	}
	if r.When != nil && r.When.State != nil {
		return selectorContains(r.When.State, st)
	}
	return true
}

func selectorContains(sel *rules.StateSelector, st state.EngineState) bool {
	name := st.String()
	for _, item := range sel.Values {
		if strings.ToUpper(strings.TrimSpace(item)) == name {
			return true
		}
	}
	return false
}

// matchSNI implements the wildcard grammar of spec §3: "*" matches
// anything, a leading star ("*.suffix") matches any value ending in the
// rest of the pattern (so "*.zoom.us" never matches the bare "zoom.us"),
// a trailing star ("prefix*") matches any value starting with the rest of
// the pattern, and anything else must be equal. Comparison is
// case-insensitive. The SNI value is normalized via IDNA/punycode before
// comparison so unicode and ASCII forms of the same hostname compare equal.
func matchSNI(pattern string, value *string) bool {
	if value == nil {
		return false
	}
	v := normalizeHostname(*value)
	p := strings.ToLower(pattern)

	if p == "*" {
		return true
	}
	if stripped, ok := strings.CutPrefix(p, "*"); ok {
		return strings.HasSuffix(v, stripped)
	}
	if stripped, ok := strings.CutSuffix(p, "*"); ok {
		return strings.HasPrefix(v, stripped)
	}
	return v == p
}

func normalizeHostname(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if ascii, err := idna.Lookup.ToASCII(value); err == nil {
		return ascii
	}
	return value
}

func matchPort(pattern string, port uint16) bool {
	for _, entry := range strings.Split(pattern, ",") {
		token := strings.TrimSpace(entry)
		if token == "" {
			continue
		}
		if start, end, ok := strings.Cut(token, "-"); ok {
			lo, err := strconv.ParseUint(strings.TrimSpace(start), 10, 16)
			if err != nil {
				continue
			}
			hi, err := strconv.ParseUint(strings.TrimSpace(end), 10, 16)
			if err != nil {
				continue
			}
			if uint16(lo) <= port && port <= uint16(hi) {
				return true
			}
			continue
		}
		value, err := strconv.ParseUint(token, 10, 16)
		if err != nil {
			continue
		}
		if uint16(value) == port {
			return true
		}
	}
	return false
}

type comparator int

const (
	cmpGt comparator = iota
	cmpGte
	cmpLt
	cmpLte
	cmpEq
)

func compareNumeric(expr string, value uint32) bool {
	op, rhs, ok := parseComparator(expr)
	if !ok {
		return false
	}
	switch op {
	case cmpGt:
		return value > rhs
	case cmpGte:
		return value >= rhs
	case cmpLt:
		return value < rhs
	case cmpLte:
		return value <= rhs
	case cmpEq:
		return value == rhs
	default:
		return false
	}
}

func parseComparator(expr string) (comparator, uint32, bool) {
	trimmed := strings.TrimSpace(expr)
	var op comparator
	var rest string
	switch {
	case strings.HasPrefix(trimmed, ">="):
		op, rest = cmpGte, trimmed[2:]
	case strings.HasPrefix(trimmed, "<="):
		op, rest = cmpLte, trimmed[2:]
	case strings.HasPrefix(trimmed, ">"):
		op, rest = cmpGt, trimmed[1:]
	case strings.HasPrefix(trimmed, "<"):
		op, rest = cmpLt, trimmed[1:]
	case strings.HasPrefix(trimmed, "=="):
		op, rest = cmpEq, trimmed[2:]
	case strings.HasPrefix(trimmed, "="):
		op, rest = cmpEq, trimmed[1:]
	default:
		return 0, 0, false
	}
	value, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 32)
	if err != nil {
		return 0, 0, false
	}
	return op, uint32(value), true
}
