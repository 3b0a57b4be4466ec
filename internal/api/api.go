// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api exposes the daemon over HTTP: dry-run rule evaluation,
// on-demand Xray config generation, proxy process control, and telemetry,
// mirroring the handler surface of netpolicyd's embedded server (spec
// §5.4). Routing uses gorilla/mux in the style of
// grimm.is/flywall/internal/services/ebpf/dns_blocklist's API router;
// every request gets a correlation ID via google/uuid, attached to the
// response as X-Request-Id.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"netpolicy.dev/netpolicy/internal/actions"
	"netpolicy.dev/netpolicy/internal/dsl"
	"netpolicy.dev/netpolicy/internal/engine"
	"netpolicy.dev/netpolicy/internal/outbound"
	"netpolicy.dev/netpolicy/internal/proxylink"
	"netpolicy.dev/netpolicy/internal/rules"
	"netpolicy.dev/netpolicy/internal/state"
	"netpolicy.dev/netpolicy/internal/supervisor"
	"netpolicy.dev/netpolicy/internal/telemetry"
)

// Server wires the engine, supervisor, and telemetry into an HTTP router.
type Server struct {
	Telemetry  *telemetry.Telemetry
	Supervisor *supervisor.Supervisor
	LogFile    string
	XrayOutput string

	router *mux.Router
}

// New builds a Server with all routes registered.
func New(t *telemetry.Telemetry, sup *supervisor.Supervisor, logFile, xrayOutput string) *Server {
	s := &Server{Telemetry: t, Supervisor: sup, LogFile: logFile, XrayOutput: xrayOutput}
	s.router = mux.NewRouter()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(correlationMiddleware)

	s.router.HandleFunc("/api/dry-run", s.handleDryRun).Methods(http.MethodPost)
	s.router.HandleFunc("/api/xray-gen", s.handleXrayGen).Methods(http.MethodPost)
	s.router.HandleFunc("/api/logs", s.handleLogs).Methods(http.MethodGet)
	s.router.HandleFunc("/api/telemetry", s.handleTelemetry).Methods(http.MethodGet)
	s.router.HandleFunc("/api/xray/start", s.handleXrayStart).Methods(http.MethodPost)
	s.router.HandleFunc("/api/xray/stop", s.handleXrayStop).Methods(http.MethodPost)
	s.router.HandleFunc("/api/xray/restart", s.handleXrayRestart).Methods(http.MethodPost)
	s.router.HandleFunc("/api/xray/status", s.handleXrayStatus).Methods(http.MethodGet)
}

// correlationMiddleware stamps every request/response pair with an
// X-Request-Id, generating one via uuid.New when the caller did not
// supply one.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DryRunRequest is the /api/dry-run request body.
type DryRunRequest struct {
	Ruleset string          `json:"ruleset"`
	State   *string         `json:"state,omitempty"`
	Context *ContextRequest `json:"context,omitempty"`
}

// ContextRequest is the optional connection context for a dry run.
type ContextRequest struct {
	SNI       *string `json:"sni,omitempty"`
	Protocol  *string `json:"protocol,omitempty"`
	Port      *uint16 `json:"port,omitempty"`
	LatencyMs *uint32 `json:"latency_ms,omitempty"`
	RttMs     *uint32 `json:"rtt_ms,omitempty"`
}

// DryRunResponse is the /api/dry-run response body.
type DryRunResponse struct {
	OK     bool    `json:"ok"`
	State  string  `json:"state"`
	Rule   *string `json:"rule,omitempty"`
	Action *string `json:"action,omitempty"`
	Error  *string `json:"error,omitempty"`
}

func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var payload DryRunRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.Telemetry.RecordError(fmt.Sprintf("invalid json: %v", err))
		writeJSON(w, http.StatusBadRequest, DryRunResponse{OK: false, State: "NORMAL", Error: strp(fmt.Sprintf("invalid json: %v", err))})
		return
	}

	st := parseState(deref(payload.State))

	ctx := &engine.MatchContext{}
	if payload.Context != nil {
		ctx.SNI = payload.Context.SNI
		ctx.Protocol = payload.Context.Protocol
		ctx.Port = payload.Context.Port
		ctx.LatencyMs = payload.Context.LatencyMs
		ctx.RttMs = payload.Context.RttMs
	}

	ruleset, err := loadRuleset(payload.Ruleset)
	if err != nil {
		s.Telemetry.RecordError(fmt.Sprintf("invalid ruleset: %v", err))
		writeJSON(w, http.StatusBadRequest, DryRunResponse{OK: false, State: st.String(), Error: strp(fmt.Sprintf("invalid ruleset: %v", err))})
		return
	}

	decision, err := engine.Evaluate(ruleset, ctx, st)
	if err != nil {
		s.Telemetry.RecordError(fmt.Sprintf("engine error: %v", err))
		writeJSON(w, http.StatusUnprocessableEntity, DryRunResponse{OK: false, State: st.String(), Error: strp(fmt.Sprintf("engine error: %v", err))})
		return
	}

	if decision.Rule == nil {
		s.Telemetry.RecordDecision(false)
		writeJSON(w, http.StatusOK, DryRunResponse{OK: true, State: st.String()})
		return
	}

	planned := actions.Plan(decision.Action)
	summary := planned.Summary()
	if s.LogFile != "" {
		_ = appendLog(s.LogFile, st, decision.Rule.Name, summary)
	}
	s.Telemetry.RecordDecision(true)
	writeJSON(w, http.StatusOK, DryRunResponse{
		OK:     true,
		State:  st.String(),
		Rule:   strp(decision.Rule.Name),
		Action: strp(summary),
	})
}

// XrayGenRequest is the /api/xray-gen request body.
type XrayGenRequest struct {
	URLs     []string `json:"urls,omitempty"`
	URLsText *string  `json:"urls_text,omitempty"`
}

// XrayGenResponse is the /api/xray-gen response body.
type XrayGenResponse struct {
	OK      bool    `json:"ok"`
	Config  *string `json:"config,omitempty"`
	Error   *string `json:"error,omitempty"`
	SavedTo *string `json:"saved_to,omitempty"`
}

func (s *Server) handleXrayGen(w http.ResponseWriter, r *http.Request) {
	var payload XrayGenRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, XrayGenResponse{OK: false, Error: strp(fmt.Sprintf("invalid json: %v", err))})
		return
	}

	urls := append([]string{}, payload.URLs...)
	if payload.URLsText != nil {
		for _, line := range strings.Split(*payload.URLsText, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			urls = append(urls, trimmed)
		}
	}

	if len(urls) == 0 {
		writeJSON(w, http.StatusBadRequest, XrayGenResponse{OK: false, Error: strp("no urls provided")})
		return
	}

	nodes, err := proxylink.ParseURLs(urls)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, XrayGenResponse{OK: false, Error: strp(fmt.Sprintf("parse error: %v", err))})
		return
	}

	cfg := outbound.Build(nodes)
	body, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, XrayGenResponse{OK: false, Error: strp(err.Error())})
		return
	}

	var savedTo *string
	target := s.XrayOutput
	if target != "" {
		if err := os.WriteFile(target, body, 0o644); err == nil {
			savedTo = strp(target)
		}
	}

	writeJSON(w, http.StatusOK, XrayGenResponse{OK: true, Config: strp(string(body)), SavedTo: savedTo})
}

// LogsResponse is the /api/logs response body.
type LogsResponse struct {
	OK      bool    `json:"ok"`
	Content string  `json:"content"`
	Error   *string `json:"error,omitempty"`
}

const maxLogLines = 200

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tailLog(s.LogFile))
}

func tailLog(path string) LogsResponse {
	if path == "" {
		return LogsResponse{OK: false, Error: strp("log file not configured")}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return LogsResponse{OK: false, Error: strp(fmt.Sprintf("failed to read log file: %v", err))}
	}
	lines := strings.Split(string(data), "\n")
	start := 0
	if len(lines) > maxLogLines {
		start = len(lines) - maxLogLines
	}
	return LogsResponse{OK: true, Content: strings.Join(lines[start:], "\n")}
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Telemetry.Snapshot())
}

// XrayStatusResponse is the /api/xray/status and control-endpoint body.
type XrayStatusResponse struct {
	OK      bool    `json:"ok"`
	Running bool    `json:"running"`
	PID     *int    `json:"pid,omitempty"`
	Error   *string `json:"error,omitempty"`
}

func (s *Server) handleXrayStart(w http.ResponseWriter, r *http.Request) {
	if err := s.Supervisor.Start(); err != nil {
		writeJSON(w, http.StatusInternalServerError, XrayStatusResponse{OK: false, Error: strp(err.Error())})
		return
	}
	writeJSON(w, http.StatusOK, s.xrayStatus())
}

func (s *Server) handleXrayStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Supervisor.Stop(); err != nil {
		writeJSON(w, http.StatusInternalServerError, XrayStatusResponse{OK: false, Error: strp(err.Error())})
		return
	}
	writeJSON(w, http.StatusOK, s.xrayStatus())
}

func (s *Server) handleXrayRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.Supervisor.Restart(); err != nil {
		writeJSON(w, http.StatusInternalServerError, XrayStatusResponse{OK: false, Error: strp(err.Error())})
		return
	}
	writeJSON(w, http.StatusOK, s.xrayStatus())
}

func (s *Server) handleXrayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.xrayStatus())
}

func (s *Server) xrayStatus() XrayStatusResponse {
	status := s.Supervisor.Status()
	resp := XrayStatusResponse{OK: true, Running: status.Running}
	if status.Running {
		resp.PID = &status.PID
	}
	return resp
}

func loadRuleset(doc string) (*rules.RuleSet, error) {
	trimmed := strings.TrimSpace(doc)
	if strings.HasPrefix(trimmed, "rules:") {
		return rules.ParseYAML(doc)
	}
	return dsl.Parse(doc)
}

func parseState(value string) state.EngineState {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DEGRADED":
		return state.Degraded
	case "FAILOVER":
		return state.Failover
	case "RECOVERY":
		return state.Recovery
	default:
		return state.Normal
	}
}

func appendLog(path string, st state.EngineState, rule, action string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "state=%s rule=%s action=%s\n", st.String(), rule, action)
	return err
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func strp(v string) *string { return &v }
