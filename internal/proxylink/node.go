// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package proxylink decodes vmess/vless/trojan/shadowsocks/socks/http
// share-URIs into a validated ProxyNode intermediate model (spec §5, §7).
// internal/outbound consumes ProxyNode to assemble an Xray-compatible
// configuration document; proxylink itself never touches JSON config
// shape.
package proxylink

// ProxyNode is the validated, protocol-agnostic result of decoding one
// share-URI.
type ProxyNode struct {
	Tag      string
	Protocol string
	Server   string
	Port     uint16

	UUID     *string
	Password *string
	Username *string
	Method   *string

	Plugin     *string
	PluginOpts *string

	Security *string

	GRPCService *string
	H2Path      *string
	H2Host      *string

	RealityPublicKey *string
	RealityShortID   *string
	Fingerprint      *string

	Network *string
	TLS     bool
	SNI     *string
	WSPath  *string
	WSHost  *string
}
