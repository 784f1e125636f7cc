package mcp

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"conduit/pkg/config"
)

// procHandle tracks one spawned subprocess provider.
type procHandle struct {
	cmd    *exec.Cmd
	conn   *stdioConn
	exited chan struct{}
}

// Supervisor owns the process-wide tool-provider table: configuration,
// lifecycle state and the handles of running subprocesses. It is constructed
// once and passed by reference to every caller; a single mutex serializes
// all table mutations so a start/stop race can never double-spawn or
// double-kill a provider.
type Supervisor struct {
	mu      sync.Mutex
	order   []string
	servers map[string]*ServerConfig
	procs   map[string]*procHandle
	status  map[string]Status

	sysCfg *config.SystemConfig
}

// NewSupervisor 建立一個空的 Supervisor
func NewSupervisor(sysCfg *config.SystemConfig) *Supervisor {
	if sysCfg == nil {
		sysCfg = config.DefaultSystemConfig()
	}
	return &Supervisor{
		servers: make(map[string]*ServerConfig),
		procs:   make(map[string]*procHandle),
		status:  make(map[string]Status),
		sysCfg:  sysCfg,
	}
}

// AddServer registers a provider configuration. An existing entry with the
// same ID is replaced; its running process (if any) keeps running until an
// explicit Stop.
func (s *Supervisor) AddServer(cfg *ServerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[cfg.ID]; !ok {
		s.order = append(s.order, cfg.ID)
	}
	s.servers[cfg.ID] = cfg
}

// List returns all configured providers in registration order.
func (s *Supervisor) List() []*ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ServerConfig, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.servers[id])
	}
	return out
}

// Get returns the provider configuration for the given ID.
func (s *Supervisor) Get(id string) (*ServerConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.servers[id]
	return cfg, ok
}

// IsRunning reports whether a stdio provider has a live process handle, or
// whether an HTTP provider answers its liveness probe.
func (s *Supervisor) IsRunning(id string) bool {
	return s.StatusOf(id).State == StateRunning
}

// StatusOf derives the current lifecycle state of a provider. For stdio
// providers this reflects the tracked handle; HTTP providers have no
// persistent running state, so their status is re-derived by a liveness
// probe on each query.
func (s *Supervisor) StatusOf(id string) Status {
	s.mu.Lock()
	cfg, ok := s.servers[id]
	if !ok {
		s.mu.Unlock()
		return Status{State: StateError, Error: fmt.Sprintf("unknown provider: %s", id)}
	}

	if cfg.Transport == TransportStdio {
		if _, running := s.procs[id]; running {
			s.mu.Unlock()
			return Status{State: StateRunning}
		}
		st, recorded := s.status[id]
		s.mu.Unlock()
		if recorded {
			return st
		}
		return Status{State: StateStopped}
	}

	url := cfg.URL
	s.mu.Unlock()

	// HTTP transport: probe outside the lock.
	if err := s.probe(url); err != nil {
		return Status{State: StateError, Error: err.Error()}
	}
	return Status{State: StateRunning}
}

// Start brings a provider up. For stdio transport it spawns the configured
// command with the parent environment overlaid by provider variables and
// wires its pipes; for HTTP transport it performs a bounded liveness probe
// and keeps no process. Starting an already-running provider is a no-op
// success.
func (s *Supervisor) Start(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.servers[id]
	if !ok {
		return fmt.Errorf("unknown provider: %s", id)
	}

	if cfg.Transport == TransportHTTP {
		s.mu.Unlock()
		err := s.probe(cfg.URL)
		s.mu.Lock()
		if err != nil {
			s.status[id] = Status{State: StateError, Error: err.Error()}
			return fmt.Errorf("liveness probe failed for %s: %w", cfg.Name, err)
		}
		s.status[id] = Status{State: StateRunning}
		slog.Info("Tool provider reachable", "provider", cfg.Name, "url", cfg.URL)
		return nil
	}

	if _, running := s.procs[id]; running {
		slog.Info("Tool provider already running", "provider", cfg.Name)
		return nil
	}

	if cfg.Command == "" {
		s.status[id] = Status{State: StateError, Error: "no command configured"}
		return fmt.Errorf("no command configured for stdio provider %s", cfg.Name)
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for key, value := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		s.status[id] = Status{State: StateError, Error: err.Error()}
		return fmt.Errorf("failed to start provider %s: %w", cfg.Name, err)
	}

	handle := &procHandle{
		cmd:    cmd,
		conn:   newStdioConn(stdin, stdout),
		exited: make(chan struct{}),
	}
	s.procs[id] = handle
	s.status[id] = Status{State: StateRunning}

	go logStderr(cfg.Name, stderr)
	go s.reap(id, handle)

	slog.Info("Started tool provider", "provider", cfg.Name, "pid", cmd.Process.Pid)
	return nil
}

// reap waits for the subprocess to exit. The exited channel closes before
// the table lock is touched, so a Stop blocked on it never deadlocks.
func (s *Supervisor) reap(id string, handle *procHandle) {
	err := handle.cmd.Wait()
	close(handle.exited)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Only record an unexpected death; Stop removes the handle itself.
	if s.procs[id] == handle {
		delete(s.procs, id)
		msg := "process exited"
		if err != nil {
			msg = fmt.Sprintf("process exited: %v", err)
		}
		s.status[id] = Status{State: StateError, Error: msg}
		slog.Warn("Tool provider exited unexpectedly", "provider", id, "error", err)
	}
}

// Stop terminates a tracked subprocess: SIGTERM, a bounded grace wait, then
// SIGKILL if still alive. The handle is removed and state set to stopped.
// Stopping an already-stopped provider is a no-op success.
func (s *Supervisor) Stop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.servers[id]
	if !ok {
		return fmt.Errorf("unknown provider: %s", id)
	}

	handle, running := s.procs[id]
	if !running {
		s.status[id] = Status{State: StateStopped}
		return nil
	}
	delete(s.procs, id)
	s.status[id] = Status{State: StateStopped}

	handle.conn.close()
	if handle.cmd.Process != nil {
		handle.cmd.Process.Signal(syscall.SIGTERM)
	}

	grace := time.Duration(s.sysCfg.StopGraceMs) * time.Millisecond
	select {
	case <-handle.exited:
	case <-time.After(grace):
		if handle.cmd.Process != nil {
			handle.cmd.Process.Kill()
		}
		<-handle.exited
	}

	slog.Info("Stopped tool provider", "provider", cfg.Name)
	return nil
}

// StopAll stops every running stdio provider. Used at shutdown.
func (s *Supervisor) StopAll() {
	for _, cfg := range s.List() {
		if err := s.Stop(cfg.ID); err != nil {
			slog.Error("Failed to stop tool provider", "provider", cfg.Name, "error", err)
		}
	}
}

// StartEnabled starts every enabled provider, continuing past individual
// failures so one broken provider cannot block the rest.
func (s *Supervisor) StartEnabled() {
	for _, cfg := range s.List() {
		if !cfg.Enabled {
			continue
		}
		if err := s.Start(cfg.ID); err != nil {
			slog.Warn("Tool provider failed to start", "provider", cfg.Name, "error", err)
		}
	}
}

// conn returns the live stdio connection for a provider, if any.
func (s *Supervisor) conn(id string) (*stdioConn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.procs[id]
	if !ok {
		return nil, false
	}
	return handle.conn, true
}

// probe issues the bounded liveness GET against an HTTP provider.
func (s *Supervisor) probe(url string) error {
	if url == "" {
		return fmt.Errorf("no url configured")
	}

	client := &http.Client{
		Timeout: time.Duration(s.sysCfg.HealthTimeoutMs) * time.Millisecond,
	}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}
