// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package inspector observes live connections and reports them as
// ConnectionMeta, which the daemon converts into an engine.MatchContext
// (spec §6). SystemInspector shells out to ss(8) the way
// grimm.is/flywall's host collaborators shell out to system tools rather
// than reimplementing /proc/net parsing.
package inspector

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"netpolicy.dev/netpolicy/internal/engine"
)

// ConnectionMeta is everything an Inspector could determine about one
// connection.
type ConnectionMeta struct {
	SNI       *string
	IP        *string
	Port      *uint16
	Protocol  *string
	RttMs     *uint32
	LatencyMs *uint32
	ErrorRate *float32
}

// ToMatchContext projects the fields engine.MatchContext cares about.
func (m ConnectionMeta) ToMatchContext() *engine.MatchContext {
	return &engine.MatchContext{
		SNI:       m.SNI,
		Protocol:  m.Protocol,
		Port:      m.Port,
		LatencyMs: m.LatencyMs,
		RttMs:     m.RttMs,
	}
}

// Inspector observes the current state of a connection.
type Inspector interface {
	Inspect() ConnectionMeta
}

// MockInspector always returns a fixed ConnectionMeta; used in tests.
type MockInspector struct {
	Meta ConnectionMeta
}

func (m MockInspector) Inspect() ConnectionMeta { return m.Meta }

// ConnectionTarget identifies the peer ss(8) reported.
type ConnectionTarget struct {
	IP       string
	Port     uint16
	Protocol string
}

// SystemInspector queries the kernel's socket table via ss(8) for the
// current connection matching protocol (and, if set, PreferPort).
type SystemInspector struct {
	Protocol    string
	PreferPort  *uint16
	SNIMapPath  string
	SSPath      string
}

// NewSystemInspector returns a SystemInspector for protocol, picking up
// NETPOLICY_SNI_MAP from the environment per spec §6.
func NewSystemInspector(protocol string) *SystemInspector {
	return &SystemInspector{
		Protocol:   protocol,
		SNIMapPath: os.Getenv("NETPOLICY_SNI_MAP"),
		SSPath:     "ss",
	}
}

func (s *SystemInspector) WithPort(port uint16) *SystemInspector {
	s.PreferPort = &port
	return s
}

func (s *SystemInspector) WithSNIMap(path string) *SystemInspector {
	s.SNIMapPath = path
	return s
}

func (s *SystemInspector) WithSSPath(path string) *SystemInspector {
	s.SSPath = path
	return s
}

func (s *SystemInspector) Inspect() ConnectionMeta {
	var meta ConnectionMeta
	target, rtt, ok := queryConnection(s.SSPath, s.Protocol, s.PreferPort)
	if !ok {
		return meta
	}

	meta.Protocol = &target.Protocol
	meta.IP = &target.IP
	meta.Port = &target.Port

	if s.SNIMapPath != "" {
		if sni, ok := lookupSNI(s.SNIMapPath, target.IP, target.Port); ok {
			meta.SNI = &sni
		}
	}
	if rtt != nil {
		meta.RttMs = rtt
		meta.LatencyMs = rtt
	}
	return meta
}

func parseRTTFromSS(text string) *uint32 {
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, "rtt:")
		if idx < 0 {
			continue
		}
		rest := line[idx+4:]
		value := strings.TrimSpace(strings.SplitN(rest, "/", 2)[0])
		ms, err := strconv.ParseFloat(value, 32)
		if err != nil {
			continue
		}
		rounded := uint32(ms + 0.5)
		return &rounded
	}
	return nil
}

func queryConnection(ssPath, protocol string, preferPort *uint16) (ConnectionTarget, *uint32, bool) {
	arg := "-tin"
	if strings.EqualFold(protocol, "udp") {
		arg = "-uin"
	}
	out, err := exec.Command(ssPath, arg).Output()
	if err != nil {
		return ConnectionTarget{}, nil, false
	}

	for _, raw := range strings.Split(string(out), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 5 {
			continue
		}
		local, peer := parts[3], parts[4]
		peerIP, peerPort, ok := splitAddr(peer)
		if !ok {
			continue
		}
		_, localPort, ok := splitAddr(local)
		if !ok {
			continue
		}
		if preferPort != nil && peerPort != *preferPort && localPort != *preferPort {
			continue
		}
		target := ConnectionTarget{IP: peerIP, Port: peerPort, Protocol: protocol}
		rtt := parseRTTFromSS(line)
		return target, rtt, true
	}
	return ConnectionTarget{}, nil, false
}

func splitAddr(value string) (string, uint16, bool) {
	trimmed := strings.TrimSpace(value)
	host, portStr, ok := cutLast(trimmed, ":")
	if !ok {
		return "", 0, false
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, false
	}
	return host, uint16(port), true
}

func cutLast(s, sep string) (string, string, bool) {
	idx := strings.LastIndex(s, sep)
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+len(sep):], true
}

func lookupSNI(path, ip string, port uint16) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return "", false
	}
	sni, ok := m[fmt.Sprintf("%s:%d", ip, port)]
	return sni, ok
}
