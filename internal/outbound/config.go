// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package outbound assembles an Xray/V2Ray-compatible JSON configuration
// document from a set of internal/proxylink.ProxyNode values (spec §5.2).
package outbound

import (
	"encoding/json"
	"runtime"

	"netpolicy.dev/netpolicy/internal/proxylink"
)

// Config mirrors the top-level Xray configuration schema.
type Config struct {
	Log       Log        `json:"log"`
	Inbounds  []Inbound  `json:"inbounds"`
	Outbounds []Outbound `json:"outbounds"`
	Routing   Routing    `json:"routing"`
	DNS       DNS        `json:"dns"`
}

type Log struct {
	LogLevel string `json:"loglevel"`
}

type Inbound struct {
	Tag       string          `json:"tag"`
	Port      int             `json:"port"`
	Listen    string          `json:"listen"`
	Protocol  string          `json:"protocol"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	Sniffing  json.RawMessage `json:"sniffing,omitempty"`
}

type Outbound struct {
	Tag             string          `json:"tag"`
	Protocol        string          `json:"protocol"`
	Settings        json.RawMessage `json:"settings,omitempty"`
	StreamSettings  json.RawMessage `json:"streamSettings,omitempty"`
}

type Routing struct {
	DomainStrategy string            `json:"domainStrategy"`
	Rules          []json.RawMessage `json:"rules"`
	Balancers      []json.RawMessage `json:"balancers,omitempty"`
}

type DNS struct {
	Servers       []json.RawMessage `json:"servers"`
	QueryStrategy string            `json:"queryStrategy"`
}

// Build assembles a Config from a set of parsed proxy nodes.
func Build(nodes []proxylink.ProxyNode) Config {
	outbounds := make([]Outbound, 0, len(nodes)+2)
	tags := make([]string, 0, len(nodes))
	for _, n := range nodes {
		outbounds = append(outbounds, nodeToOutbound(n))
		tags = append(tags, n.Tag)
	}
	outbounds = append(outbounds,
		Outbound{Tag: "direct", Protocol: "freedom"},
		Outbound{Tag: "reject", Protocol: "blackhole"},
	)

	return Config{
		Log:       Log{LogLevel: "warning"},
		Inbounds:  buildInbounds(),
		Outbounds: outbounds,
		Routing: Routing{
			DomainStrategy: "AsIs",
			Rules:          []json.RawMessage{},
			Balancers:      buildBalancers(tags),
		},
		DNS: buildDNS(),
	}
}

func buildInbounds() []Inbound {
	inbounds := []Inbound{
		{Tag: "http", Port: 7890, Listen: "0.0.0.0", Protocol: "http", Sniffing: sniffing()},
		{Tag: "socks", Port: 7891, Listen: "0.0.0.0", Protocol: "socks", Settings: rawJSON(map[string]any{"udp": true}), Sniffing: sniffing()},
		{Tag: "mixed", Port: 7893, Listen: "0.0.0.0", Protocol: "socks", Settings: rawJSON(map[string]any{"udp": true}), Sniffing: sniffing()},
	}

	if runtime.GOOS == "linux" {
		inbounds = append(inbounds,
			Inbound{
				Tag: "redir", Port: 7892, Listen: "0.0.0.0", Protocol: "dokodemo-door",
				Settings: rawJSON(map[string]any{"network": "tcp,udp", "followRedirect": true}),
				Sniffing: sniffing(),
			},
			Inbound{
				Tag: "tproxy", Port: 7895, Listen: "0.0.0.0", Protocol: "dokodemo-door",
				Settings: rawJSON(map[string]any{"network": "tcp,udp", "followRedirect": true, "tproxy": "tproxy"}),
				Sniffing: sniffing(),
			},
		)
	}
	return inbounds
}

func sniffing() json.RawMessage {
	return rawJSON(map[string]any{
		"enabled":     true,
		"destOverride": []string{"http", "tls", "quic"},
	})
}

func buildBalancers(tags []string) []json.RawMessage {
	if len(tags) == 0 {
		return nil
	}
	return []json.RawMessage{
		rawJSON(map[string]any{"tag": "best_ping", "selector": tags, "strategy": map[string]any{"type": "leastPing"}}),
		rawJSON(map[string]any{"tag": "load_balance", "selector": tags, "strategy": map[string]any{"type": "random"}}),
		rawJSON(map[string]any{"tag": "fallback", "selector": tags, "strategy": map[string]any{"type": "random"}}),
	}
}

func buildDNS() DNS {
	addresses := []string{
		"8.8.8.8",
		"1.0.0.1",
		"https://dns.google/dns-query",
		"dhcp",
		"https://doh.pub/dns-query",
		"https://dns.alidns.com/dns-query",
		"1.1.1.1",
		"8.8.4.4",
		"https://cloudflare-dns.com/dns-query",
		"112.215.203.254",
	}
	servers := make([]json.RawMessage, 0, len(addresses))
	for _, addr := range addresses {
		servers = append(servers, rawJSON(map[string]any{"address": addr}))
	}
	return DNS{Servers: servers, QueryStrategy: "UseIPv4"}
}

func rawJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
