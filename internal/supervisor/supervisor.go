package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

const (
	defaultMaxRestarts         = 3
	defaultRestartBackoff      = time.Second
	defaultHealthCheckInterval = 30 * time.Second
	defaultStopTimeout         = 5 * time.Second
	defaultHealthCheckTimeout  = 2 * time.Second
)

// Options configures a Supervisor. Zero fields get sensible defaults except
// Spawner, which is required.
type Options struct {
	Spawner Spawner
	// Checker is optional; without one no health polling happens.
	Checker HealthChecker
	// History is optional; without one events are dropped.
	History HistorySink
	// WorkDir is the working directory for spawned workers.
	WorkDir string
	// StopTimeout bounds the graceful-stop wait before escalating to kill.
	StopTimeout time.Duration
	// HealthCheckTimeout bounds one health probe.
	HealthCheckTimeout time.Duration
}

// Supervisor manages the lifecycle of external worker processes: register,
// start, stop, restart with a bounded budget, and advisory health polling.
// Each agent has its own lock, so a slow stop on one agent never stalls
// operations on another.
type Supervisor struct {
	mu     sync.RWMutex
	agents map[string]*agentEntry

	opts Options
}

// agentEntry holds the runtime record for one registered agent. All fields
// are guarded by mu, which is held for the full duration of stop and restart
// (including the restart backoff sleep) so overlapping lifecycle calls on the
// same agent serialize cleanly.
type agentEntry struct {
	mu    sync.Mutex
	state models.AgentProcessState

	proc Process
	// expectedExit is set before a deliberate terminate so the monitor
	// goroutine does not treat the exit as a crash.
	expectedExit bool
	stopHealth   chan struct{}
}

// New creates a Supervisor with no registered agents.
func New(opts Options) *Supervisor {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.HealthCheckTimeout <= 0 {
		opts.HealthCheckTimeout = defaultHealthCheckTimeout
	}
	return &Supervisor{
		agents: make(map[string]*agentEntry),
		opts:   opts,
	}
}

// Register adds an agent in the REGISTERED state. A duplicate ID is rejected
// unless the existing agent is FAILED, in which case re-registration replaces
// the record and resets its restart count.
func (s *Supervisor) Register(cfg models.AgentConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("register agent: empty id")
	}
	cfg = normalizeConfig(cfg)

	s.mu.Lock()
	if existing, ok := s.agents[cfg.ID]; ok {
		existing.mu.Lock()
		failed := existing.state.State == models.ProcessFailed
		existing.mu.Unlock()
		if !failed {
			s.mu.Unlock()
			return fmt.Errorf("agent %s: %w", cfg.ID, ErrDuplicateAgent)
		}
	}
	s.agents[cfg.ID] = &agentEntry{
		state: models.AgentProcessState{
			ID:     cfg.ID,
			Config: cfg,
			State:  models.ProcessRegistered,
		},
	}
	s.mu.Unlock()

	s.record(cfg.ID, models.ProcessEventRegister, "")
	log.Printf("[supervisor] registered agent %s (%s)", cfg.ID, cfg.Command)
	return nil
}

func normalizeConfig(cfg models.AgentConfig) models.AgentConfig {
	if cfg.AutoRestart == nil {
		on := true
		cfg.AutoRestart = &on
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = defaultMaxRestarts
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = defaultRestartBackoff
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = defaultHealthCheckInterval
	}
	return cfg
}

// Start spawns the agent's process. Starting an agent that is already RUNNING
// is a no-op. A spawn failure is recorded in history and returned without any
// automatic retry; the agent stays in its previous state.
func (s *Supervisor) Start(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return s.startLocked(e)
}

// startLocked spawns the process and begins monitoring. Caller holds e.mu.
func (s *Supervisor) startLocked(e *agentEntry) error {
	id := e.state.ID
	if e.state.State == models.ProcessRunning {
		return nil
	}
	if e.state.State == models.ProcessFailed {
		return fmt.Errorf("agent %s: %w", id, ErrRestartBudgetExhausted)
	}

	cfg := e.state.Config
	proc, err := s.opts.Spawner.Spawn(cfg.Command, cfg.Args, s.opts.WorkDir)
	if err != nil {
		s.record(id, models.ProcessEventStart, fmt.Sprintf("spawn failed: %v", err))
		return fmt.Errorf("spawn agent %s: %w", id, err)
	}

	e.proc = proc
	e.expectedExit = false
	e.state.State = models.ProcessRunning
	e.state.PID = proc.PID()
	e.stopHealth = make(chan struct{})

	s.record(id, models.ProcessEventStart, "")
	log.Printf("[supervisor] agent %s running (pid %d)", id, proc.PID())

	if s.opts.Checker != nil && cfg.Port > 0 {
		go s.healthLoop(id, cfg.Port, cfg.HealthCheckInterval, e.stopHealth)
	}
	go s.monitor(id, e, proc)
	return nil
}

// monitor waits for the process to exit and, on an unexpected exit, marks the
// agent STOPPED and restarts it if auto-restart is enabled.
func (s *Supervisor) monitor(id string, e *agentEntry, proc Process) {
	<-proc.Done()

	e.mu.Lock()
	if e.proc != proc || e.expectedExit {
		// A deliberate stop or a newer process owns the record now.
		e.mu.Unlock()
		return
	}
	s.stopHealthLocked(e)
	e.proc = nil
	e.state.PID = 0
	e.state.State = models.ProcessStopped
	auto := *e.state.Config.AutoRestart
	e.mu.Unlock()

	log.Printf("[supervisor] agent %s exited unexpectedly: %v", id, proc.ExitErr())
	if !auto {
		return
	}
	if err := s.Restart(id); err != nil {
		log.Printf("[supervisor] restart of agent %s failed: %v", id, err)
	}
}

// Stop gracefully stops the agent's process: terminate, wait up to the stop
// timeout, then kill. The agent ends STOPPED either way. Stopping an agent
// that is not running is a no-op.
func (s *Supervisor) Stop(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.State != models.ProcessRunning || e.proc == nil {
		return nil
	}

	s.stopProcessLocked(e)
	e.state.State = models.ProcessStopped
	s.record(id, models.ProcessEventStop, "")
	log.Printf("[supervisor] stopped agent %s", id)
	return nil
}

// stopProcessLocked terminates the current process, escalating to kill after
// the stop timeout. Caller holds e.mu.
func (s *Supervisor) stopProcessLocked(e *agentEntry) {
	proc := e.proc
	if proc == nil {
		return
	}
	e.expectedExit = true
	s.stopHealthLocked(e)

	if err := proc.Terminate(); err != nil {
		proc.Kill()
	}
	select {
	case <-proc.Done():
	case <-time.After(s.opts.StopTimeout):
		log.Printf("[supervisor] agent %s did not exit in %s, killing", e.state.ID, s.opts.StopTimeout)
		proc.Kill()
		select {
		case <-proc.Done():
		case <-time.After(s.opts.StopTimeout):
		}
	}

	e.proc = nil
	e.state.PID = 0
}

func (s *Supervisor) stopHealthLocked(e *agentEntry) {
	if e.stopHealth != nil {
		close(e.stopHealth)
		e.stopHealth = nil
	}
}

// Restart stops the agent if running, waits out the restart backoff, and
// starts it again. The restart counter increments before the budget check, so
// once the count exceeds maxRestarts the agent transitions to FAILED and no
// process is spawned. FAILED is terminal until re-registration.
func (s *Supervisor) Restart(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.State == models.ProcessFailed {
		return fmt.Errorf("agent %s: %w", id, ErrRestartBudgetExhausted)
	}

	e.state.RestartCount++
	if e.state.RestartCount > e.state.Config.MaxRestarts {
		s.stopProcessLocked(e)
		e.state.State = models.ProcessFailed
		s.record(id, models.ProcessEventRestart,
			fmt.Sprintf("budget exhausted after %d restarts", e.state.RestartCount-1))
		log.Printf("[supervisor] agent %s exceeded restart budget (%d), marking failed",
			id, e.state.Config.MaxRestarts)
		return fmt.Errorf("agent %s: %w", id, ErrRestartBudgetExhausted)
	}

	s.stopProcessLocked(e)
	if e.state.State == models.ProcessRunning {
		e.state.State = models.ProcessStopped
	}

	// Holding the entry lock across the backoff keeps overlapping lifecycle
	// calls for this agent in order without blocking other agents.
	time.Sleep(e.state.Config.RestartBackoff)

	if err := s.startLocked(e); err != nil {
		return fmt.Errorf("restart agent %s: %w", id, err)
	}
	s.record(id, models.ProcessEventRestart, "")
	return nil
}

// healthLoop polls the agent's port until the channel closes. Failures are
// advisory: recorded in history, never a state change.
func (s *Supervisor) healthLoop(id string, port int, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.HealthCheckTimeout)
			healthy, err := s.opts.Checker.Check(ctx, id, port, s.opts.HealthCheckTimeout)
			cancel()

			if err != nil || !healthy {
				detail := "probe unhealthy"
				if err != nil {
					detail = fmt.Sprintf("probe error: %v", err)
				}
				s.record(id, models.ProcessEventHealthCheckFailed, detail)
				log.Printf("[supervisor] health check failed for agent %s: %s", id, detail)
				continue
			}

			if e, err := s.entry(id); err == nil {
				e.mu.Lock()
				now := time.Now()
				e.state.LastHealthCheck = &now
				e.mu.Unlock()
			}
		}
	}
}

// UpdateHeartbeat records a liveness signal from the worker itself.
func (s *Supervisor) UpdateHeartbeat(id string) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	now := time.Now()
	e.state.LastHeartbeat = &now
	e.mu.Unlock()
	return nil
}

// GetState returns a snapshot of one agent's runtime record.
func (s *Supervisor) GetState(id string) (models.AgentProcessState, error) {
	e, err := s.entry(id)
	if err != nil {
		return models.AgentProcessState{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// GetAllStates returns snapshots of every agent, ordered by ID.
func (s *Supervisor) GetAllStates() []models.AgentProcessState {
	s.mu.RLock()
	entries := make([]*agentEntry, 0, len(s.agents))
	for _, e := range s.agents {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]models.AgentProcessState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.state)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetHistory returns the agent's lifecycle events in append order. An empty
// ID returns events for all agents.
func (s *Supervisor) GetHistory(agentID string) ([]models.ProcessEvent, error) {
	if s.opts.History == nil {
		return nil, nil
	}
	return s.opts.History.ListProcessEvents(agentID)
}

// StopAll gracefully stops every running agent.
func (s *Supervisor) StopAll() error {
	var errs []error
	for _, st := range s.GetAllStates() {
		if st.State != models.ProcessRunning {
			continue
		}
		if err := s.Stop(st.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) entry(id string) (*agentEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrAgentNotFound)
	}
	return e, nil
}

func (s *Supervisor) record(agentID string, event models.ProcessEventType, detail string) {
	if s.opts.History == nil {
		return
	}
	ev := models.ProcessEvent{
		AgentID:   agentID,
		Event:     event,
		Timestamp: time.Now(),
		Detail:    detail,
	}
	if err := s.opts.History.AppendProcessEvent(ev); err != nil {
		log.Printf("[supervisor] failed to record %s event for agent %s: %v", event, agentID, err)
	}
}
