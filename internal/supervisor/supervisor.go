// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package supervisor manages the lifecycle of an external xray/v2ray-style
// proxy process: start, stop, restart, and status, with output appended to
// a log file (spec §5.3).
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"netpolicy.dev/netpolicy/internal/logging"
	"netpolicy.dev/netpolicy/internal/telemetry"
)

// Supervisor owns at most one running xray process at a time.
type Supervisor struct {
	mu sync.Mutex

	binPath    string
	configPath string
	logPath    string

	cmd       *exec.Cmd
	done      chan struct{}
	telemetry *telemetry.Telemetry
}

// New returns a Supervisor for the given binary, config, and log paths.
func New(binPath, configPath, logPath string, t *telemetry.Telemetry) *Supervisor {
	return &Supervisor{
		binPath:    binPath,
		configPath: configPath,
		logPath:    logPath,
		telemetry:  t,
	}
}

// Start launches the process if it is not already running. Calling Start
// on an already-running supervisor is a no-op.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()
	if s.cmd != nil {
		return nil
	}

	log, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open xray log: %w", err)
	}

	cmd := exec.Command(s.binPath, "-config", s.configPath)
	cmd.Stdout = log
	cmd.Stderr = log
	if err := cmd.Start(); err != nil {
		log.Close()
		return fmt.Errorf("failed to start xray: %w", err)
	}

	s.cmd = cmd
	s.done = make(chan struct{})
	if s.telemetry != nil {
		s.telemetry.RecordXrayStart()
	}
	logging.Info("xray started", "pid", cmd.Process.Pid)

	done := s.done
	go func() {
		_ = cmd.Wait()
		log.Close()
		close(done)
	}()

	return nil
}

// Stop kills the running process, if any. Stopping an already-stopped
// supervisor is a no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd = nil

	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if s.telemetry != nil {
		s.telemetry.RecordXrayStop()
	}
	logging.Info("xray stopped")
	return nil
}

// Restart stops then starts the process.
func (s *Supervisor) Restart() error {
	if err := s.Stop(); err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	if s.telemetry != nil {
		s.telemetry.RecordXrayRestart()
	}
	return nil
}

// Status reports whether the process is running and its PID.
type Status struct {
	Running bool
	PID     int
}

// Status returns the current process status, reaping a dead process
// first.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()
	if s.cmd == nil {
		return Status{Running: false}
	}
	return Status{Running: true, PID: s.cmd.Process.Pid}
}

// refreshLocked clears cmd if the process has already exited. Callers
// must hold s.mu.
func (s *Supervisor) refreshLocked() {
	if s.cmd == nil {
		return
	}
	select {
	case <-s.done:
		s.cmd = nil
		s.done = nil
	default:
	}
}
