// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package outbound

import (
	"encoding/json"

	"netpolicy.dev/netpolicy/internal/proxylink"
)

func nodeToOutbound(n proxylink.ProxyNode) Outbound {
	var settings, stream json.RawMessage
	switch n.Protocol {
	case "vmess":
		settings = vmessSettings(n)
		stream = streamSettings(n)
	case "vless":
		settings = vlessSettings(n)
		stream = streamSettings(n)
	case "trojan":
		settings = trojanSettings(n)
		stream = streamSettings(n)
	case "shadowsocks":
		settings = shadowsocksSettings(n)
	case "socks":
		settings = socksSettings(n)
	case "http":
		settings = httpSettings(n)
		stream = httpStreamSettings(n)
	}

	return Outbound{
		Tag:            n.Tag,
		Protocol:       n.Protocol,
		Settings:       settings,
		StreamSettings: stream,
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func vmessSettings(n proxylink.ProxyNode) json.RawMessage {
	return rawJSON(map[string]any{
		"vnext": []map[string]any{{
			"address": n.Server,
			"port":    n.Port,
			"users": []map[string]any{{
				"id":       str(n.UUID),
				"alterId":  0,
				"security": "auto",
			}},
		}},
	})
}

func vlessSettings(n proxylink.ProxyNode) json.RawMessage {
	return rawJSON(map[string]any{
		"vnext": []map[string]any{{
			"address": n.Server,
			"port":    n.Port,
			"users": []map[string]any{{
				"id":         str(n.UUID),
				"encryption": "none",
			}},
		}},
	})
}

func trojanSettings(n proxylink.ProxyNode) json.RawMessage {
	return rawJSON(map[string]any{
		"servers": []map[string]any{{
			"address":  n.Server,
			"port":     n.Port,
			"password": str(n.Password),
		}},
	})
}

func shadowsocksSettings(n proxylink.ProxyNode) json.RawMessage {
	method := str(n.Method)
	if method == "" {
		method = "aes-128-gcm"
	}
	server := map[string]any{
		"address":  n.Server,
		"port":     n.Port,
		"method":   method,
		"password": str(n.Password),
	}
	if n.Plugin != nil {
		server["plugin"] = *n.Plugin
	}
	if n.PluginOpts != nil {
		server["pluginOpts"] = *n.PluginOpts
	}
	return rawJSON(map[string]any{"servers": []map[string]any{server}})
}

func socksSettings(n proxylink.ProxyNode) json.RawMessage {
	server := map[string]any{"address": n.Server, "port": n.Port}
	if n.Username != nil || n.Password != nil {
		server["users"] = []map[string]any{{
			"user": str(n.Username),
			"pass": str(n.Password),
		}}
	}
	return rawJSON(map[string]any{"servers": []map[string]any{server}})
}

func httpSettings(n proxylink.ProxyNode) json.RawMessage {
	server := map[string]any{"address": n.Server, "port": n.Port}
	if n.Username != nil || n.Password != nil {
		server["users"] = []map[string]any{{
			"user": str(n.Username),
			"pass": str(n.Password),
		}}
	}
	return rawJSON(map[string]any{"servers": []map[string]any{server}})
}

func httpStreamSettings(n proxylink.ProxyNode) json.RawMessage {
	if !n.TLS {
		return nil
	}
	return rawJSON(map[string]any{
		"security": "tls",
		"tlsSettings": map[string]any{
			"serverName": n.Server,
		},
	})
}

func streamSettings(n proxylink.ProxyNode) json.RawMessage {
	network := str(n.Network)
	if network == "" {
		network = "tcp"
	}
	settings := map[string]any{"network": network}

	security := str(n.Security)
	if security == "" {
		if n.TLS {
			security = "tls"
		} else {
			security = "none"
		}
	}

	if security == "tls" && n.TLS {
		settings["security"] = "tls"
		if n.SNI != nil {
			settings["tlsSettings"] = map[string]any{"serverName": *n.SNI}
		}
	}

	if security == "reality" {
		fingerprint := str(n.Fingerprint)
		if fingerprint == "" {
			fingerprint = "chrome"
		}
		settings["security"] = "reality"
		settings["realitySettings"] = map[string]any{
			"serverName":  str(n.SNI),
			"publicKey":   str(n.RealityPublicKey),
			"shortId":     str(n.RealityShortID),
			"fingerprint": fingerprint,
		}
	}

	if network == "ws" {
		path := str(n.WSPath)
		if path == "" {
			path = "/"
		}
		settings["wsSettings"] = map[string]any{
			"path":    path,
			"headers": map[string]any{"Host": str(n.WSHost)},
		}
	}

	if network == "grpc" {
		settings["grpcSettings"] = map[string]any{"serviceName": str(n.GRPCService)}
	}

	if network == "h2" {
		path := str(n.H2Path)
		if path == "" {
			path = "/"
		}
		settings["httpSettings"] = map[string]any{
			"path": path,
			"host": []string{str(n.H2Host)},
		}
	}

	return rawJSON(settings)
}
