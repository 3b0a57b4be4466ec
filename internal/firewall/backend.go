// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package firewall renders an actions.Decision into the shell command
// strings a backend Kind would apply (spec §4.4). It never executes
// anything; Render is a pure function over its inputs, in the same spirit
// as grimm.is/flywall/internal/firewall's ScriptBuilder, but here each
// invocation renders one decision rather than assembling an nftables
// script, because the spec models one firewall action at a time.
package firewall

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"netpolicy.dev/netpolicy/internal/actions"
	"netpolicy.dev/netpolicy/internal/engine"
)

// Kind selects which firewall tool's syntax Render emits.
type Kind int

const (
	Iptables Kind = iota
	Nftables
)

// Plan is the rendered output: the backend it targets and the ordered
// shell command strings an operator (or netpolicyd with --apply-actions)
// would run.
type Plan struct {
	Backend  Kind
	Commands []string
}

// Render builds a Plan for decision against ctx under backend's syntax.
func Render(backend Kind, ctx *engine.MatchContext, decision actions.Decision) Plan {
	var commands []string
	switch backend {
	case Iptables:
		commands = renderIptables(ctx, decision)
	case Nftables:
		commands = renderNftables(ctx, decision)
	}
	return Plan{Backend: backend, Commands: commands}
}

func renderIptables(ctx *engine.MatchContext, decision actions.Decision) []string {
	proto := "tcp"
	if ctx.Protocol != nil {
		proto = *ctx.Protocol
	}
	matchPart := matchFragment(proto, ctx.Port, Iptables)

	switch decision.Kind {
	case actions.KindBlock:
		return []string{fmt.Sprintf("iptables -A OUTPUT %s -j DROP", matchPart)}
	case actions.KindRoute, actions.KindSwitchRoute:
		mark := routeMark(decision.Name)
		return []string{fmt.Sprintf("iptables -A OUTPUT %s -j MARK --set-mark %s", matchPart, mark)}
	case actions.KindThrottle:
		mark := routeMark(decision.Name)
		return []string{fmt.Sprintf("iptables -A OUTPUT %s -j MARK --set-mark %s", matchPart, mark)}
	case actions.KindLogOnly:
		return []string{fmt.Sprintf("iptables -A OUTPUT %s -j LOG --log-prefix \"netpolicy\"", matchPart)}
	default:
		return nil
	}
}

func renderNftables(ctx *engine.MatchContext, decision actions.Decision) []string {
	proto := "tcp"
	if ctx.Protocol != nil {
		proto = *ctx.Protocol
	}
	matchPart := matchFragment(proto, ctx.Port, Nftables)

	switch decision.Kind {
	case actions.KindBlock:
		return []string{fmt.Sprintf("nft add rule inet netpolicy output %s drop", matchPart)}
	case actions.KindRoute, actions.KindSwitchRoute:
		mark := routeMark(decision.Name)
		return []string{fmt.Sprintf("nft add rule inet netpolicy output %s mark set %s", matchPart, mark)}
	case actions.KindThrottle:
		mark := routeMark(decision.Name)
		return []string{fmt.Sprintf("nft add rule inet netpolicy output %s mark set %s", matchPart, mark)}
	case actions.KindLogOnly:
		return []string{fmt.Sprintf("nft add rule inet netpolicy output %s log prefix \"netpolicy\"", matchPart)}
	default:
		return nil
	}
}

func matchFragment(proto string, port *uint16, style Kind) string {
	switch style {
	case Iptables:
		if port != nil {
			return fmt.Sprintf("-p %s --dport %d", proto, *port)
		}
		return fmt.Sprintf("-p %s", proto)
	case Nftables:
		if port != nil {
			return fmt.Sprintf("%s dport %d", proto, *port)
		}
		return proto
	default:
		return proto
	}
}

// routeMark derives a stable 16-bit fwmark from a route/throttle name.
// xxhash replaces the original's DefaultHasher: both are non-cryptographic
// and deterministic per process, which is all a MARK value needs.
func routeMark(name string) string {
	value := xxhash.Sum64String(strings.TrimSpace(name)) & 0xffff
	return fmt.Sprintf("0x%x", value)
}
