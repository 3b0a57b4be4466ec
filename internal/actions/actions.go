// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package actions translates a validated rules.Action into a single
// ActionDecision (spec §4.3): route > switch_route > block > throttle, with
// an implicit log-only fallback when a rule sets no primary action.
package actions

import "netpolicy.dev/netpolicy/internal/rules"

// Kind identifies which primary action a decision carries.
type Kind int

const (
	KindRoute Kind = iota
	KindSwitchRoute
	KindBlock
	KindThrottle
	KindLogOnly
)

// Decision is the planned action: its Kind, an associated route/throttle
// name (empty for Block and LogOnly), and whether the caller should log.
type Decision struct {
	Kind  Kind
	Name  string
	Log   bool
}

// Plan resolves action into a Decision following the fixed precedence
// route > switch_route > block > throttle > log-only. A rule validated by
// rules.Validate always has exactly one primary action set, so the
// log-only fallback only fires for actions built outside that validator
// (e.g. directly in tests).
func Plan(action *rules.Action) Decision {
	log := action.Log != nil && *action.Log

	if action.Route != nil {
		return Decision{Kind: KindRoute, Name: *action.Route, Log: log}
	}
	if action.SwitchRoute != nil {
		return Decision{Kind: KindSwitchRoute, Name: *action.SwitchRoute, Log: log}
	}
	if action.Block != nil && *action.Block {
		return Decision{Kind: KindBlock, Log: log}
	}
	if action.Throttle != nil {
		return Decision{Kind: KindThrottle, Name: *action.Throttle, Log: log}
	}

	return Decision{Kind: KindLogOnly, Log: true}
}

// Summary renders a short human-readable description of the decision, used
// in logs and the CLI's dry-run output.
func (d Decision) Summary() string {
	switch d.Kind {
	case KindRoute:
		return "route " + d.Name
	case KindSwitchRoute:
		return "switch_route " + d.Name
	case KindBlock:
		return "block"
	case KindThrottle:
		return "throttle " + d.Name
	case KindLogOnly:
		return "log"
	default:
		return "unknown"
	}
}
