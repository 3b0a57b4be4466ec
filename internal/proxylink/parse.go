// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package proxylink

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	nperrors "netpolicy.dev/netpolicy/internal/errors"
)

// ParseURLs decodes each share-URI in urls into a validated ProxyNode,
// assigning an auto-generated tag ("proxy-N") to any node whose URI
// carried no fragment/tag.
func ParseURLs(urls []string) ([]ProxyNode, error) {
	if len(urls) == 0 {
		return nil, nperrors.InvalidURL("no proxy urls provided")
	}

	nodes := make([]ProxyNode, 0, len(urls))
	for i, raw := range urls {
		idx := i + 1
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, nperrors.InvalidURL("url at index %d is empty", idx)
		}

		var node ProxyNode
		var err error
		switch {
		case strings.HasPrefix(raw, "vmess://"):
			node, err = parseVmess(raw)
		case strings.HasPrefix(raw, "vless://"):
			node, err = parseVless(raw)
		case strings.HasPrefix(raw, "trojan://"):
			node, err = parseTrojan(raw)
		case strings.HasPrefix(raw, "ss://"):
			node, err = parseShadowsocks(raw)
		case strings.HasPrefix(raw, "socks5://") || strings.HasPrefix(raw, "socks://"):
			node, err = parseSocks(raw)
		case strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://"):
			node, err = parseHTTPProxy(raw)
		default:
			return nil, nperrors.InvalidURL("unsupported scheme at index %d: %s", idx, raw)
		}
		if err != nil {
			return nil, err
		}

		if strings.TrimSpace(node.Tag) == "" {
			node.Tag = fmt.Sprintf("proxy-%d", idx)
		}
		if err := validateNode(&node); err != nil {
			return nil, nperrors.Parse("invalid node at index %d: %s", idx, err.Error())
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

type vmessLink struct {
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Net  string `json:"net"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni"`
	Host string `json:"host"`
	Path string `json:"path"`
}

func parseVmess(raw string) (ProxyNode, error) {
	encoded := strings.TrimPrefix(raw, "vmess://")
	if strings.TrimSpace(encoded) == "" {
		return ProxyNode{}, nperrors.InvalidURL("vmess url missing payload")
	}
	decoded, err := decodeBase64(encoded)
	if err != nil {
		return ProxyNode{}, nperrors.Decode("%s", err.Error())
	}
	var link vmessLink
	if err := json.Unmarshal(decoded, &link); err != nil {
		return ProxyNode{}, nperrors.Yaml("%s", err.Error())
	}
	if strings.TrimSpace(link.Add) == "" {
		return ProxyNode{}, nperrors.Parse("vmess missing server")
	}
	if strings.TrimSpace(link.ID) == "" {
		return ProxyNode{}, nperrors.Parse("vmess missing uuid")
	}
	port, err := strconv.ParseUint(link.Port, 10, 16)
	if err != nil {
		return ProxyNode{}, nperrors.Parse("invalid vmess port: %s", link.Port)
	}

	sni := link.SNI
	if sni == "" {
		sni = link.Host
	}

	node := ProxyNode{
		Tag:      link.PS,
		Protocol: "vmess",
		Server:   link.Add,
		Port:     uint16(port),
		UUID:     strPtrOrNil(link.ID),
		Security: strPtrOrNil(link.TLS),
		Network:  strPtrOrNil(link.Net),
		TLS:      strings.ToLower(link.TLS) == "tls",
		SNI:      strPtrOrNil(sni),
		WSPath:   strPtrOrNil(link.Path),
		WSHost:   strPtrOrNil(link.Host),
	}
	return node, nil
}

func parseVless(raw string) (ProxyNode, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ProxyNode{}, nperrors.Parse("%s", err.Error())
	}
	uuid := u.User.Username()
	if strings.TrimSpace(uuid) == "" {
		return ProxyNode{}, nperrors.Parse("vless missing uuid")
	}
	host, port, err := hostPort(u, "vless")
	if err != nil {
		return ProxyNode{}, err
	}

	q := queryFields(u)
	node := ProxyNode{
		Tag:              u.Fragment,
		Protocol:         "vless",
		Server:           host,
		Port:             port,
		UUID:             strPtrOrNil(uuid),
		Security:         q.security,
		GRPCService:      q.grpcService,
		H2Path:           q.h2Path,
		H2Host:           q.h2Host,
		RealityPublicKey: q.pbk,
		RealityShortID:   q.sid,
		Fingerprint:      q.fp,
		Network:          q.network,
		TLS:              strings.ToLower(deref(q.security)) == "tls",
		SNI:              q.sni,
		WSPath:           q.path,
		WSHost:           q.host,
	}
	return node, nil
}

func parseTrojan(raw string) (ProxyNode, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ProxyNode{}, nperrors.Parse("%s", err.Error())
	}
	password := u.User.Username()
	if strings.TrimSpace(password) == "" {
		return ProxyNode{}, nperrors.Parse("trojan missing password")
	}
	host, port, err := hostPort(u, "trojan")
	if err != nil {
		return ProxyNode{}, err
	}

	q := queryFields(u)
	security := deref(q.security)
	tls := security == "" || strings.ToLower(security) == "tls"

	node := ProxyNode{
		Tag:              u.Fragment,
		Protocol:         "trojan",
		Server:           host,
		Port:             port,
		Password:         strPtrOrNil(password),
		Security:         q.security,
		GRPCService:      q.grpcService,
		H2Path:           q.h2Path,
		H2Host:           q.h2Host,
		RealityPublicKey: q.pbk,
		RealityShortID:   q.sid,
		Fingerprint:      q.fp,
		Network:          q.network,
		TLS:              tls,
		SNI:              q.sni,
		WSPath:           q.path,
		WSHost:           q.host,
	}
	return node, nil
}

func parseShadowsocks(raw string) (ProxyNode, error) {
	rest := strings.TrimPrefix(raw, "ss://")
	if strings.TrimSpace(rest) == "" {
		return ProxyNode{}, nperrors.InvalidURL("ss url missing payload")
	}

	main := rest
	tag := ""
	if before, frag, ok := strings.Cut(rest, "#"); ok {
		main = before
		tag = frag
	}

	var plugin, pluginOpts *string
	if before, query, ok := strings.Cut(main, "?"); ok {
		main = before
		if pluginValue, ok := parseQueryValue(query, "plugin"); ok {
			parts := strings.SplitN(pluginValue, ";", 2)
			plugin = strPtrOrNil(parts[0])
			if len(parts) == 2 {
				pluginOpts = strPtrOrNil(parts[1])
			}
		}
	}

	var creds, hostport string
	if before, after, ok := strings.Cut(main, "@"); ok {
		creds, hostport = before, after
	} else {
		decoded, err := decodeBase64(main)
		if err != nil {
			return ProxyNode{}, nperrors.Decode("ss base64 decode failed")
		}
		before, after, _ := strings.Cut(string(decoded), "@")
		creds, hostport = before, after
	}

	var method, password string
	if strings.Contains(creds, ":") {
		before, after, _ := strings.Cut(creds, ":")
		method, password = before, after
	} else {
		decoded, err := decodeBase64(creds)
		if err != nil {
			return ProxyNode{}, nperrors.Decode("ss base64 decode failed")
		}
		before, after, _ := strings.Cut(string(decoded), ":")
		method, password = before, after
	}

	host, portStr, _ := strings.Cut(hostport, ":")
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return ProxyNode{}, nperrors.Parse("invalid ss port")
	}

	node := ProxyNode{
		Tag:        tag,
		Protocol:   "shadowsocks",
		Server:     host,
		Port:       uint16(port),
		Password:   strPtrOrNil(password),
		Method:     strPtrOrNil(method),
		Plugin:     plugin,
		PluginOpts: pluginOpts,
	}
	return node, nil
}

func parseSocks(raw string) (ProxyNode, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ProxyNode{}, nperrors.Parse("%s", err.Error())
	}
	host, port, err := hostPort(u, "socks")
	if err != nil {
		return ProxyNode{}, err
	}
	username, password := userinfo(u)

	node := ProxyNode{
		Tag:      u.Fragment,
		Protocol: "socks",
		Server:   host,
		Port:     port,
		Username: username,
		Password: password,
	}
	return node, nil
}

func parseHTTPProxy(raw string) (ProxyNode, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ProxyNode{}, nperrors.Parse("%s", err.Error())
	}
	host, port, err := hostPort(u, "http proxy")
	if err != nil {
		return ProxyNode{}, err
	}
	username, password := userinfo(u)

	var security *string
	if u.Scheme == "https" {
		security = strPtrOrNil("tls")
	}

	node := ProxyNode{
		Tag:      u.Fragment,
		Protocol: "http",
		Server:   host,
		Port:     port,
		Username: username,
		Password: password,
		Security: security,
		TLS:      u.Scheme == "https",
	}
	return node, nil
}

func hostPort(u *url.URL, label string) (string, uint16, error) {
	host := u.Hostname()
	if host == "" {
		return "", 0, nperrors.Parse("%s missing host", label)
	}
	portStr := u.Port()
	if portStr == "" {
		return "", 0, nperrors.Parse("%s missing port", label)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, nperrors.Parse("%s invalid port: %s", label, portStr)
	}
	return host, uint16(port), nil
}

func userinfo(u *url.URL) (*string, *string) {
	username := u.User.Username()
	password, _ := u.User.Password()
	return strPtrOrNil(username), strPtrOrNil(password)
}

type queryResult struct {
	network     *string
	security    *string
	sni         *string
	host        *string
	path        *string
	grpcService *string
	h2Path      *string
	h2Host      *string
	pbk         *string
	sid         *string
	fp          *string
}

func queryFields(u *url.URL) queryResult {
	var q queryResult
	for key, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		switch key {
		case "type":
			q.network = strPtrOrNil(value)
		case "security":
			q.security = strPtrOrNil(value)
		case "sni":
			q.sni = strPtrOrNil(value)
		case "host":
			q.host = strPtrOrNil(value)
			q.h2Host = strPtrOrNil(value)
		case "path":
			q.path = strPtrOrNil(value)
			q.h2Path = strPtrOrNil(value)
		case "serviceName":
			q.grpcService = strPtrOrNil(value)
		case "pbk":
			q.pbk = strPtrOrNil(value)
		case "sid":
			q.sid = strPtrOrNil(value)
		case "fp":
			q.fp = strPtrOrNil(value)
		}
	}
	return q
}

func parseQueryValue(query, key string) (string, bool) {
	for _, pair := range strings.Split(query, "&") {
		k, v, _ := strings.Cut(pair, "=")
		if strings.TrimSpace(k) == key {
			v = strings.ReplaceAll(v, "%3B", ";")
			v = strings.ReplaceAll(v, "%3b", ";")
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func decodeBase64(value string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(value)
}

func strPtrOrNil(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
