// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package inspector

import "testing"

func strp(v string) *string { return &v }
func u16p(v uint16) *uint16 { return &v }
func u32p(v uint32) *uint32 { return &v }

func TestMockInspectorReturnsMeta(t *testing.T) {
	meta := ConnectionMeta{
		SNI:      strp("example.com"),
		IP:       strp("1.2.3.4"),
		Port:     u16p(443),
		Protocol: strp("tcp"),
		RttMs:    u32p(20),
	}
	mock := MockInspector{Meta: meta}
	out := mock.Inspect()
	if *out.SNI != "example.com" {
		t.Errorf("unexpected sni: %v", out.SNI)
	}
	if *out.Port != 443 {
		t.Errorf("unexpected port: %v", out.Port)
	}
}

func TestToMatchContextMapsFields(t *testing.T) {
	meta := ConnectionMeta{
		SNI:       strp("example.com"),
		Port:      u16p(443),
		Protocol:  strp("tcp"),
		RttMs:     u32p(30),
		LatencyMs: u32p(25),
	}
	ctx := meta.ToMatchContext()
	if *ctx.SNI != "example.com" {
		t.Errorf("unexpected sni: %v", ctx.SNI)
	}
	if *ctx.Port != 443 {
		t.Errorf("unexpected port: %v", ctx.Port)
	}
}

func TestParseRTTFromSSExtractsValue(t *testing.T) {
	sample := "ESTAB 0 0 1.1.1.1:443 2.2.2.2:55555 cubic rtt:12.3/3.4"
	rtt := parseRTTFromSS(sample)
	if rtt == nil || *rtt != 12 {
		t.Fatalf("expected 12, got %v", rtt)
	}
}

func TestSplitAddrParsesHostAndPort(t *testing.T) {
	host, port, ok := splitAddr("10.0.0.1:443")
	if !ok {
		t.Fatal("expected ok")
	}
	if host != "10.0.0.1" || port != 443 {
		t.Errorf("unexpected host/port: %s:%d", host, port)
	}
}

func TestSplitAddrHandlesIPv6Brackets(t *testing.T) {
	host, port, ok := splitAddr("[::1]:443")
	if !ok {
		t.Fatal("expected ok")
	}
	if host != "::1" || port != 443 {
		t.Errorf("unexpected host/port: %s:%d", host, port)
	}
}
