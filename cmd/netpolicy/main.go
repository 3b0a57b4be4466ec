// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// netpolicy is the offline companion CLI: lint a ruleset (YAML or DSL),
// evaluate it once against a synthetic context, or turn a set of proxy
// share-links into an Xray/V2Ray config. The long-running daemon is
// cmd/netpolicyd.
//
// Usage:
//
//	netpolicy lint <ruleset.yaml> [--json]
//	netpolicy dsl-lint <ruleset.dsl> [--json]
//	netpolicy evaluate <ruleset> [--state normal|degraded|failover|recovery] [--sni host] [--protocol tcp|udp] [--port n] [--latency-ms n] [--rtt-ms n] [--json]
//	netpolicy xray-gen --output config.json --url <vmess://...> [--url ...] [--url-file urls.txt]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"netpolicy.dev/netpolicy/internal/actions"
	"netpolicy.dev/netpolicy/internal/dsl"
	"netpolicy.dev/netpolicy/internal/engine"
	"netpolicy.dev/netpolicy/internal/outbound"
	"netpolicy.dev/netpolicy/internal/proxylink"
	"netpolicy.dev/netpolicy/internal/rules"
	"netpolicy.dev/netpolicy/internal/state"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "lint":
		handleLint(os.Args[2:])
	case "dsl-lint":
		handleDSLLint(os.Args[2:])
	case "evaluate":
		handleEvaluate(os.Args[2:])
	case "xray-gen":
		handleXrayGen(os.Args[2:])
	default:
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  netpolicy lint <ruleset.yaml> [--json]")
	fmt.Fprintln(os.Stderr, "  netpolicy dsl-lint <ruleset.dsl> [--json]")
	fmt.Fprintln(os.Stderr, "  netpolicy evaluate <ruleset> [--state normal|degraded|failover|recovery] [--sni host] [--protocol tcp|udp] [--port n] [--latency-ms n] [--rtt-ms n] [--json]")
	fmt.Fprintln(os.Stderr, "  netpolicy xray-gen --output config.json --url <vmess://...> [--url ...] [--url-file urls.txt]")
}

// lintResponse is the --json output shape shared by lint and dsl-lint.
type lintResponse struct {
	OK    bool   `json:"ok"`
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

func printLintJSON(ok bool, path string, err error) {
	resp := lintResponse{OK: ok, Path: path}
	if err != nil {
		resp.Error = err.Error()
	}
	body, _ := json.Marshal(resp)
	fmt.Println(string(body))
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}

func handleLint(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: netpolicy lint <ruleset.yaml> [--json]")
		os.Exit(1)
	}
	path := args[0]
	asJSON := hasFlag(args, "--json")

	content, err := os.ReadFile(path)
	if err != nil {
		readErr := fmt.Errorf("failed to read %s: %w", path, err)
		if asJSON {
			printLintJSON(false, path, readErr)
		} else {
			fmt.Fprintln(os.Stderr, readErr)
		}
		os.Exit(1)
	}

	if _, err := rules.ParseYAML(string(content)); err != nil {
		if asJSON {
			printLintJSON(false, path, fmt.Errorf("lint failed: %w", err))
		} else {
			fmt.Fprintf(os.Stderr, "lint failed: %v\n", err)
		}
		os.Exit(1)
	}

	if asJSON {
		printLintJSON(true, path, nil)
	} else {
		fmt.Printf("lint ok: %s\n", path)
	}
}

func handleDSLLint(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: netpolicy dsl-lint <ruleset.dsl> [--json]")
		os.Exit(1)
	}
	path := args[0]
	asJSON := hasFlag(args, "--json")

	content, err := os.ReadFile(path)
	if err != nil {
		readErr := fmt.Errorf("failed to read %s: %w", path, err)
		if asJSON {
			printLintJSON(false, path, readErr)
		} else {
			fmt.Fprintln(os.Stderr, readErr)
		}
		os.Exit(1)
	}

	if _, err := dsl.Parse(string(content)); err != nil {
		if asJSON {
			printLintJSON(false, path, fmt.Errorf("dsl lint failed: %w", err))
		} else {
			fmt.Fprintf(os.Stderr, "dsl lint failed: %v\n", err)
		}
		os.Exit(1)
	}

	if asJSON {
		printLintJSON(true, path, nil)
	} else {
		fmt.Printf("dsl lint ok: %s\n", path)
	}
}

// evaluateResponse is the --json output shape for the evaluate subcommand.
type evaluateResponse struct {
	OK     bool   `json:"ok"`
	State  string `json:"state"`
	Rule   string `json:"rule,omitempty"`
	Action string `json:"action,omitempty"`
	Error  string `json:"error,omitempty"`
}

func handleEvaluate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: netpolicy evaluate <ruleset> [--state ...] [--sni host] [--protocol tcp|udp] [--port n] [--latency-ms n] [--rtt-ms n] [--json]")
		os.Exit(1)
	}
	path := args[0]

	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	stateFlag := fs.String("state", "normal", "engine state: normal|degraded|failover|recovery")
	sni := fs.String("sni", "", "SNI to evaluate against")
	protocol := fs.String("protocol", "", "protocol to evaluate against (tcp|udp)")
	port := fs.Uint("port", 0, "port to evaluate against")
	latencyMs := fs.Uint("latency-ms", 0, "latency sample in milliseconds")
	rttMs := fs.Uint("rtt-ms", 0, "rtt sample in milliseconds")
	asJSON := fs.Bool("json", false, "emit JSON output")
	_ = fs.Parse(args[1:])

	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", path, err)
		os.Exit(1)
	}

	ruleset, err := loadRuleset(path, string(content))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid ruleset: %v\n", err)
		os.Exit(1)
	}

	st := parseState(*stateFlag)
	ctx := &engine.MatchContext{}
	if *sni != "" {
		ctx.SNI = sni
	}
	if *protocol != "" {
		ctx.Protocol = protocol
	}
	if *port != 0 {
		p := uint16(*port)
		ctx.Port = &p
	}
	if *latencyMs != 0 {
		l := uint32(*latencyMs)
		ctx.LatencyMs = &l
	}
	if *rttMs != 0 {
		r := uint32(*rttMs)
		ctx.RttMs = &r
	}

	decision, err := engine.Evaluate(ruleset, ctx, st)
	if err != nil {
		emitEvaluate(*asJSON, evaluateResponse{OK: false, State: st.String(), Error: err.Error()})
		os.Exit(1)
	}

	if decision.Rule == nil {
		emitEvaluate(*asJSON, evaluateResponse{OK: true, State: st.String()})
		return
	}

	planned := actions.Plan(decision.Action)
	emitEvaluate(*asJSON, evaluateResponse{
		OK:     true,
		State:  st.String(),
		Rule:   decision.Rule.Name,
		Action: planned.Summary(),
	})
}

func emitEvaluate(asJSON bool, resp evaluateResponse) {
	if asJSON {
		body, _ := json.Marshal(resp)
		fmt.Println(string(body))
		return
	}
	if resp.Error != "" {
		fmt.Printf("evaluate error: %s\n", resp.Error)
		return
	}
	if resp.Rule == "" {
		fmt.Printf("decision: state=%s no match\n", resp.State)
		return
	}
	fmt.Printf("decision: state=%s rule=%s action=%s\n", resp.State, resp.Rule, resp.Action)
}

func loadRuleset(path, content string) (*rules.RuleSet, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return rules.ParseYAML(content)
	}
	return dsl.Parse(content)
}

func parseState(value string) state.EngineState {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "degraded":
		return state.Degraded
	case "failover":
		return state.Failover
	case "recovery":
		return state.Recovery
	default:
		return state.Normal
	}
}

func handleXrayGen(args []string) {
	fs := flag.NewFlagSet("xray-gen", flag.ExitOnError)
	output := fs.String("output", "config.json", "output file path")
	var urls []string
	fs.Func("url", "a proxy share-link (repeatable)", func(v string) error {
		urls = append(urls, v)
		return nil
	})
	urlFile := fs.String("url-file", "", "file containing one share-link per line (# comments allowed)")
	_ = fs.Parse(args)

	if *urlFile != "" {
		content, err := os.ReadFile(*urlFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", *urlFile, err)
			os.Exit(1)
		}
		for _, line := range strings.Split(string(content), "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			urls = append(urls, trimmed)
		}
	}

	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: netpolicy xray-gen --output config.json --url <vmess://...> [--url ...] [--url-file urls.txt]")
		os.Exit(1)
	}

	nodes, err := proxylink.ParseURLs(urls)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse proxy urls: %v\n", err)
		os.Exit(1)
	}

	cfg := outbound.Build(nodes)
	body, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render config: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, body, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Printf("xray config generated: %s\n", *output)
}
