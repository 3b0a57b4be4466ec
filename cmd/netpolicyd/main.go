// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// netpolicyd is the long-running daemon: it loads a ruleset, optionally
// hot-reloads it on change, inspects live connections (or a fixed
// synthetic context), evaluates the ruleset against the current
// operational state, and either prints or applies the resulting firewall
// plan. It can also run an embedded HTTP API and manage an external xray
// process (spec §5).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"netpolicy.dev/netpolicy/internal/actions"
	"netpolicy.dev/netpolicy/internal/api"
	"netpolicy.dev/netpolicy/internal/engine"
	"netpolicy.dev/netpolicy/internal/firewall"
	"netpolicy.dev/netpolicy/internal/health"
	"netpolicy.dev/netpolicy/internal/inspector"
	"netpolicy.dev/netpolicy/internal/logging"
	"netpolicy.dev/netpolicy/internal/state"
	"netpolicy.dev/netpolicy/internal/supervisor"
	"netpolicy.dev/netpolicy/internal/telemetry"
	"netpolicy.dev/netpolicy/internal/watch"
)

const (
	minReloadInterval  = time.Second
	minInspectInterval = time.Second
	minHealthInterval  = time.Second
)

type config struct {
	configPath string
	dryRun     bool

	web     bool
	bind    string
	logFile string

	xrayOutput     string
	xrayBin        string
	xrayConfig     string
	xrayLog        string
	xrayAutostart  bool
	hotReload      bool
	reloadInterval time.Duration

	live             bool
	inspectProtocol  string
	inspectPort      uint
	inspectInterval  time.Duration
	backend          firewall.Kind
	applyActions     bool

	healthTarget   string
	healthInterval time.Duration

	initialState state.EngineState
	sni          string
	protocol     string
	port         uint
	latencyMs    uint
	rttMs        uint
}

func main() {
	cfg := parseFlags()

	logging.SetDefault(logging.New(logging.Config{Level: logging.LevelInfo}))

	if cfg.web {
		runWebServer(cfg)
		return
	}

	if cfg.configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: netpolicyd --config <path> [--dry-run] [--live] [--web] ...")
		os.Exit(1)
	}

	loader, err := watch.Load(cfg.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid ruleset: %v\n", err)
		os.Exit(1)
	}

	if cfg.hotReload {
		if err := loader.Watch(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to watch %s: %v\n", cfg.configPath, err)
			os.Exit(1)
		}
		defer loader.Close()
	}

	ctx := buildContext(cfg)

	if cfg.dryRun {
		runDryRun(loader, cfg, ctx)
	}

	if cfg.live {
		runLive(loader, cfg)
		return
	}

	if cfg.hotReload {
		blockUntilSignal()
	}
}

func blockUntilSignal() {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
}

func buildContext(cfg config) *engine.MatchContext {
	ctx := &engine.MatchContext{}
	if cfg.sni != "" {
		ctx.SNI = &cfg.sni
	}
	if cfg.protocol != "" {
		ctx.Protocol = &cfg.protocol
	}
	if cfg.port != 0 {
		p := uint16(cfg.port)
		ctx.Port = &p
	}
	if cfg.latencyMs != 0 {
		l := uint32(cfg.latencyMs)
		ctx.LatencyMs = &l
	}
	if cfg.rttMs != 0 {
		r := uint32(cfg.rttMs)
		ctx.RttMs = &r
	}
	return ctx
}

func runDryRun(loader *watch.Loader, cfg config, ctx *engine.MatchContext) {
	decision, err := engine.Evaluate(loader.RuleSet(), ctx, cfg.initialState)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine error: %v\n", err)
		os.Exit(1)
	}
	if decision.Rule == nil {
		fmt.Printf("dry-run decision: state=%s no match\n", cfg.initialState)
		return
	}
	planned := actions.Plan(decision.Action)
	fmt.Printf("dry-run decision: state=%s rule=%s\n", cfg.initialState, decision.Rule.Name)
	fmt.Printf("action: %s\n", planned.Summary())
	if cfg.logFile != "" {
		_ = appendDecisionLog(cfg.logFile, cfg.initialState, decision.Rule.Name, planned.Summary())
	}
}

func runLive(loader *watch.Loader, cfg config) {
	var insp inspector.Inspector
	sys := inspector.NewSystemInspector(cfg.inspectProtocol)
	if cfg.inspectPort != 0 {
		sys = sys.WithPort(uint16(cfg.inspectPort))
	}
	insp = sys

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	machine := state.New()
	machine.SetState(cfg.initialState)
	if cfg.healthTarget != "" {
		sampler := health.NewSampler(cfg.healthTarget, cfg.healthInterval, machine)
		go sampler.Run(sigCtx)
	}

	interval := cfg.inspectInterval
	if interval < minInspectInterval {
		interval = minInspectInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCtx.Done():
			return
		case <-ticker.C:
			meta := insp.Inspect()
			ctx := meta.ToMatchContext()
			currentState := machine.State()

			decision, err := engine.Evaluate(loader.RuleSet(), ctx, currentState)
			if err != nil {
				fmt.Fprintf(os.Stderr, "engine error: %v\n", err)
				continue
			}
			if decision.Rule == nil {
				fmt.Println("live decision: no match")
				continue
			}

			planned := actions.Plan(decision.Action)
			plan := firewall.Render(cfg.backend, ctx, planned)
			fmt.Printf("live decision: rule=%s action=%s backend=%v\n", decision.Rule.Name, planned.Summary(), cfg.backend)

			if cfg.applyActions {
				if err := executePlan(plan); err != nil {
					fmt.Fprintf(os.Stderr, "apply failed: %v\n", err)
				}
			} else {
				for _, c := range plan.Commands {
					fmt.Printf("plan: %s\n", c)
				}
			}
		}
	}
}

func executePlan(plan firewall.Plan) error {
	for _, c := range plan.Commands {
		cmd := exec.Command("sh", "-c", c)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s (%w)", c, err)
		}
	}
	return nil
}

func appendDecisionLog(path string, st state.EngineState, rule, action string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "state=%s rule=%s action=%s\n", st, rule, action)
	return err
}

func runWebServer(cfg config) {
	tel := telemetry.New()
	sup := supervisor.New(cfg.xrayBin, cfg.xrayConfig, cfg.xrayLog, tel)

	if cfg.xrayAutostart {
		if err := sup.Start(); err != nil {
			logging.Error("xray autostart failed", "err", err)
		}
	}

	server := api.New(tel, sup, cfg.logFile, cfg.xrayOutput)

	logging.Info("netpolicyd web listening", "bind", cfg.bind)
	if err := http.ListenAndServe(cfg.bind, server); err != nil {
		fmt.Fprintf(os.Stderr, "failed to bind %s: %v\n", cfg.bind, err)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config
	var stateFlag, backendFlag string

	flag.StringVar(&cfg.configPath, "config", "", "path to a YAML or DSL ruleset")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "evaluate once against the synthetic-context flags below (then exit unless --live or --hot-reload is set)")
	flag.BoolVar(&cfg.web, "web", false, "run the embedded HTTP API instead of the evaluation loop")
	flag.StringVar(&cfg.bind, "bind", "127.0.0.1:8787", "address for --web to listen on")
	flag.StringVar(&cfg.logFile, "log-file", "", "decision log file")

	flag.StringVar(&cfg.xrayOutput, "xray-gen", "", "path where --web's /api/xray-gen also saves each generated xray config")
	flag.StringVar(&cfg.xrayBin, "xray-bin", "xray", "xray binary path")
	flag.StringVar(&cfg.xrayConfig, "xray-config", "config.json", "xray config path")
	flag.StringVar(&cfg.xrayLog, "xray-log", "xray.log", "xray process log path")
	flag.BoolVar(&cfg.xrayAutostart, "xray-autostart", false, "start xray immediately when --web is used")

	flag.BoolVar(&cfg.hotReload, "hot-reload", false, "watch --config for changes and reload")
	reloadSecs := flag.Uint64("reload-interval", 2, "ruleset reload poll interval in seconds (ignored; fsnotify-driven)")

	flag.BoolVar(&cfg.live, "live", false, "run the continuous inspect+evaluate loop")
	flag.StringVar(&cfg.inspectProtocol, "inspect-protocol", "tcp", "protocol to inspect: tcp|udp")
	flag.UintVar(&cfg.inspectPort, "inspect-port", 0, "restrict inspection to this port")
	inspectSecs := flag.Uint64("inspect-interval", 3, "inspection interval in seconds")
	flag.StringVar(&backendFlag, "backend", "iptables", "firewall backend: iptables|nftables")
	flag.BoolVar(&cfg.applyActions, "apply-actions", false, "execute the rendered firewall commands instead of printing them")

	flag.StringVar(&cfg.healthTarget, "health-target", "", "host to ICMP-probe for the operational state machine")
	healthSecs := flag.Uint64("health-interval", 5, "health probe interval in seconds")

	flag.StringVar(&stateFlag, "state", "normal", "initial engine state: normal|degraded|failover|recovery")
	flag.StringVar(&cfg.sni, "sni", "", "synthetic context: SNI")
	flag.StringVar(&cfg.protocol, "protocol", "", "synthetic context: protocol")
	flag.UintVar(&cfg.port, "port", 0, "synthetic context: port")
	flag.UintVar(&cfg.latencyMs, "latency-ms", 0, "synthetic context: latency sample")
	flag.UintVar(&cfg.rttMs, "rtt-ms", 0, "synthetic context: rtt sample")

	flag.Parse()

	_ = reloadSecs
	cfg.inspectInterval = clampSeconds(*inspectSecs, minInspectInterval)
	cfg.healthInterval = clampSeconds(*healthSecs, minHealthInterval)
	cfg.initialState = parseStateFlag(stateFlag)
	cfg.backend = parseBackendFlag(backendFlag)

	return cfg
}

func clampSeconds(secs uint64, floor time.Duration) time.Duration {
	d := time.Duration(secs) * time.Second
	if d < floor {
		return floor
	}
	return d
}

func parseStateFlag(value string) state.EngineState {
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

func parseBackendFlag(value string) firewall.Kind {
	if strings.EqualFold(strings.TrimSpace(value), "nftables") {
		return firewall.Nftables
	}
	return firewall.Iptables
}
