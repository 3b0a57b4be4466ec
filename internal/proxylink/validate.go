// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package proxylink

import (
	"strings"
	"unicode"

	nperrors "netpolicy.dev/netpolicy/internal/errors"
)

func validateNode(node *ProxyNode) error {
	if strings.TrimSpace(node.Server) == "" {
		return nperrors.Parse("server is empty")
	}
	if node.Port == 0 {
		return nperrors.Parse("port must be > 0")
	}

	switch node.Protocol {
	case "vmess", "vless":
		uuid := deref(node.UUID)
		if uuid == "" {
			return nperrors.Parse("uuid is required")
		}
		if !validUUID(uuid) {
			return nperrors.Parse("uuid format is invalid")
		}
	case "trojan":
		password := deref(node.Password)
		if password == "" {
			return nperrors.Parse("password is required")
		}
		if !validPassword(password) {
			return nperrors.Parse("password format is invalid")
		}
	case "shadowsocks":
		password := deref(node.Password)
		if password == "" {
			return nperrors.Parse("password is required")
		}
		if !validPassword(password) {
			return nperrors.Parse("password format is invalid")
		}
		if deref(node.Method) == "" {
			return nperrors.Parse("method is required")
		}
	case "socks", "http":
		// no protocol-specific requirements
	default:
		return nperrors.Parse("unsupported protocol: %s", node.Protocol)
	}

	if deref(node.Security) == "reality" {
		pbk := deref(node.RealityPublicKey)
		sid := deref(node.RealityShortID)
		if pbk == "" || sid == "" {
			return nperrors.Parse("reality requires pbk and sid")
		}
		if !validRealityPublicKey(pbk) {
			return nperrors.Parse("reality pbk format is invalid")
		}
		if !validRealityShortID(sid) {
			return nperrors.Parse("reality sid length is invalid")
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func validUUID(value string) bool {
	if len(value) != 36 {
		return false
	}
	for idx := 0; idx < len(value); idx++ {
		ch := value[idx]
		switch idx {
		case 8, 13, 18, 23:
			if ch != '-' {
				return false
			}
		default:
			if !((ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f')) {
				return false
			}
		}
	}
	return true
}

func validPassword(value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	for _, r := range value {
		if unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func validRealityPublicKey(value string) bool {
	if len(value) < 43 || len(value) > 64 {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		alnum := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !(alnum || c == '-' || c == '_' || c == '=') {
			return false
		}
	}
	return true
}

func validRealityShortID(value string) bool {
	if len(value) != 8 && len(value) != 16 {
		return false
	}
	for _, r := range value {
		isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
		if !isHex {
			return false
		}
	}
	return true
}
