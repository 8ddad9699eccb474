package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

// fakeProcess is a controllable Process for tests.
type fakeProcess struct {
	pid        int
	ignoreTerm bool

	mu      sync.Mutex
	done    chan struct{}
	exitErr error
	killed  bool
}

func (p *fakeProcess) exit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
	default:
		p.exitErr = err
		close(p.done)
	}
}

func (p *fakeProcess) PID() int              { return p.pid }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *fakeProcess) Terminate() error {
	if !p.ignoreTerm {
		p.exit(nil)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(errors.New("killed"))
	return nil
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// fakeSpawner records spawn attempts and can be set to refuse them.
type fakeSpawner struct {
	mu         sync.Mutex
	failAll    bool
	ignoreTerm bool
	procs      []*fakeProcess
	calls      int
}

func (s *fakeSpawner) Spawn(command string, args []string, dir string) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAll {
		return nil, errors.New("spawn refused")
	}
	p := &fakeProcess{
		pid:        1000 + s.calls,
		ignoreTerm: s.ignoreTerm,
		done:       make(chan struct{}),
	}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) spawnCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSpawner) lastProc() *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

type fakeChecker struct {
	mu      sync.Mutex
	healthy bool
	checks  int
}

func (c *fakeChecker) Check(ctx context.Context, agentID string, port int, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks++
	return c.healthy, nil
}

func (c *fakeChecker) checkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checks
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func boolPtr(b bool) *bool { return &b }

func testConfig(id string) models.AgentConfig {
	return models.AgentConfig{
		ID:             id,
		Name:           id,
		Command:        "worker",
		RestartBackoff: time.Millisecond,
	}
}

func TestSupervisor_RegisterDefaults(t *testing.T) {
	s := New(Options{Spawner: &fakeSpawner{}})
	if err := s.Register(models.AgentConfig{ID: "builder", Command: "worker"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	st, err := s.GetState("builder")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if st.State != models.ProcessRegistered {
		t.Errorf("State = %q, want %q", st.State, models.ProcessRegistered)
	}
	if st.Config.AutoRestart == nil || !*st.Config.AutoRestart {
		t.Error("AutoRestart default should be true")
	}
	if st.Config.MaxRestarts != defaultMaxRestarts {
		t.Errorf("MaxRestarts = %d, want %d", st.Config.MaxRestarts, defaultMaxRestarts)
	}
	if st.Config.RestartBackoff != defaultRestartBackoff {
		t.Errorf("RestartBackoff = %v, want %v", st.Config.RestartBackoff, defaultRestartBackoff)
	}
	if st.Config.HealthCheckInterval != defaultHealthCheckInterval {
		t.Errorf("HealthCheckInterval = %v, want %v", st.Config.HealthCheckInterval, defaultHealthCheckInterval)
	}
}

func TestSupervisor_RegisterDuplicate(t *testing.T) {
	s := New(Options{Spawner: &fakeSpawner{}})
	if err := s.Register(testConfig("builder")); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	err := s.Register(testConfig("builder"))
	if !errors.Is(err, ErrDuplicateAgent) {
		t.Errorf("second Register() error = %v, want ErrDuplicateAgent", err)
	}
}

func TestSupervisor_StartUnknownAgent(t *testing.T) {
	s := New(Options{Spawner: &fakeSpawner{}})
	if err := s.Start("ghost"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("Start() error = %v, want ErrAgentNotFound", err)
	}
}

func TestSupervisor_StartIdempotentWhileRunning(t *testing.T) {
	sp := &fakeSpawner{}
	s := New(Options{Spawner: sp})
	s.Register(testConfig("builder"))

	if err := s.Start("builder"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	st, _ := s.GetState("builder")
	if st.State != models.ProcessRunning || st.PID == 0 {
		t.Fatalf("after start: state=%q pid=%d", st.State, st.PID)
	}

	if err := s.Start("builder"); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if sp.spawnCalls() != 1 {
		t.Errorf("spawn calls = %d, want 1 (start of running agent is a no-op)", sp.spawnCalls())
	}
	again, _ := s.GetState("builder")
	if again.PID != st.PID {
		t.Errorf("PID changed %d -> %d on redundant start", st.PID, again.PID)
	}
}

func TestSupervisor_SpawnFailureNoRetry(t *testing.T) {
	sp := &fakeSpawner{failAll: true}
	hist := NewMemoryHistory()
	s := New(Options{Spawner: sp, History: hist})
	s.Register(testConfig("builder"))

	if err := s.Start("builder"); err == nil {
		t.Fatal("Start() should fail when spawn fails")
	}

	st, _ := s.GetState("builder")
	if st.State != models.ProcessRegistered {
		t.Errorf("State = %q, want %q after spawn failure", st.State, models.ProcessRegistered)
	}
	if sp.spawnCalls() != 1 {
		t.Errorf("spawn calls = %d, want 1 (no automatic retry)", sp.spawnCalls())
	}

	events, _ := hist.ListProcessEvents("builder")
	found := false
	for _, ev := range events {
		if ev.Event == models.ProcessEventStart && ev.Detail != "" {
			found = true
		}
	}
	if !found {
		t.Error("spawn failure was not recorded in history")
	}
}

func TestSupervisor_StopGraceful(t *testing.T) {
	sp := &fakeSpawner{}
	s := New(Options{Spawner: sp})
	s.Register(testConfig("builder"))
	s.Start("builder")

	if err := s.Stop("builder"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	st, _ := s.GetState("builder")
	if st.State != models.ProcessStopped {
		t.Errorf("State = %q, want %q", st.State, models.ProcessStopped)
	}
	if st.PID != 0 {
		t.Errorf("PID = %d, want 0 after stop", st.PID)
	}
	if sp.lastProc().wasKilled() {
		t.Error("graceful stop should not escalate to kill")
	}
}

func TestSupervisor_StopEscalatesToKill(t *testing.T) {
	sp := &fakeSpawner{ignoreTerm: true}
	s := New(Options{Spawner: sp, StopTimeout: 10 * time.Millisecond})
	s.Register(testConfig("builder"))
	s.Start("builder")

	if err := s.Stop("builder"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if !sp.lastProc().wasKilled() {
		t.Error("unresponsive process should be killed after the stop timeout")
	}
	st, _ := s.GetState("builder")
	if st.State != models.ProcessStopped {
		t.Errorf("State = %q, want %q even after escalation", st.State, models.ProcessStopped)
	}
}

func TestSupervisor_StopNotRunningIsNoOp(t *testing.T) {
	sp := &fakeSpawner{}
	s := New(Options{Spawner: sp})
	s.Register(testConfig("builder"))

	if err := s.Stop("builder"); err != nil {
		t.Fatalf("Stop() of never-started agent error = %v, want nil", err)
	}
	st, _ := s.GetState("builder")
	if st.State != models.ProcessRegistered {
		t.Errorf("State = %q, want %q", st.State, models.ProcessRegistered)
	}
}

// TestSupervisor_RestartBudget drives an agent with maxRestarts=1 through two
// failed restart attempts. The first stays within budget; the second trips it
// and the agent is FAILED with no further spawn attempts.
func TestSupervisor_RestartBudget(t *testing.T) {
	sp := &fakeSpawner{failAll: true}
	s := New(Options{Spawner: sp, History: NewMemoryHistory()})

	cfg := testConfig("builder")
	cfg.MaxRestarts = 1
	s.Register(cfg)

	if err := s.Restart("builder"); err == nil {
		t.Fatal("first restart should fail at spawn")
	}
	st, _ := s.GetState("builder")
	if st.State == models.ProcessFailed {
		t.Fatal("agent failed after first restart, budget should allow it")
	}
	if st.RestartCount != 1 {
		t.Fatalf("RestartCount = %d, want 1", st.RestartCount)
	}

	err := s.Restart("builder")
	if !errors.Is(err, ErrRestartBudgetExhausted) {
		t.Fatalf("second restart error = %v, want ErrRestartBudgetExhausted", err)
	}
	st, _ = s.GetState("builder")
	if st.State != models.ProcessFailed {
		t.Fatalf("State = %q, want %q after budget exhaustion", st.State, models.ProcessFailed)
	}

	calls := sp.spawnCalls()
	if calls != 1 {
		t.Errorf("spawn calls = %d, want 1 (budget check precedes spawn)", calls)
	}

	// FAILED is terminal: further restarts and starts refuse without spawning.
	if err := s.Restart("builder"); !errors.Is(err, ErrRestartBudgetExhausted) {
		t.Errorf("restart of failed agent error = %v, want ErrRestartBudgetExhausted", err)
	}
	if err := s.Start("builder"); !errors.Is(err, ErrRestartBudgetExhausted) {
		t.Errorf("start of failed agent error = %v, want ErrRestartBudgetExhausted", err)
	}
	if sp.spawnCalls() != calls {
		t.Errorf("spawn calls grew to %d after failure, want %d", sp.spawnCalls(), calls)
	}
}

func TestSupervisor_ReRegisterAfterFailed(t *testing.T) {
	sp := &fakeSpawner{failAll: true}
	s := New(Options{Spawner: sp})

	cfg := testConfig("builder")
	cfg.MaxRestarts = 1
	s.Register(cfg)
	s.Restart("builder")
	s.Restart("builder")

	st, _ := s.GetState("builder")
	if st.State != models.ProcessFailed {
		t.Fatalf("setup: State = %q, want %q", st.State, models.ProcessFailed)
	}

	if err := s.Register(cfg); err != nil {
		t.Fatalf("re-registration of failed agent error = %v", err)
	}
	st, _ = s.GetState("builder")
	if st.State != models.ProcessRegistered {
		t.Errorf("State = %q, want %q after re-registration", st.State, models.ProcessRegistered)
	}
	if st.RestartCount != 0 {
		t.Errorf("RestartCount = %d, want 0 after re-registration", st.RestartCount)
	}
}

func TestSupervisor_AutoRestartOnCrash(t *testing.T) {
	sp := &fakeSpawner{}
	s := New(Options{Spawner: sp})
	s.Register(testConfig("builder"))
	s.Start("builder")

	first := sp.lastProc()
	first.exit(errors.New("segfault"))

	waitFor(t, func() bool {
		st, _ := s.GetState("builder")
		return st.State == models.ProcessRunning && st.PID != first.pid
	}, "crashed agent to be restarted")

	st, _ := s.GetState("builder")
	if st.RestartCount != 1 {
		t.Errorf("RestartCount = %d, want 1", st.RestartCount)
	}
	if sp.spawnCalls() != 2 {
		t.Errorf("spawn calls = %d, want 2", sp.spawnCalls())
	}
}

func TestSupervisor_CrashWithAutoRestartDisabled(t *testing.T) {
	sp := &fakeSpawner{}
	s := New(Options{Spawner: sp})

	cfg := testConfig("builder")
	cfg.AutoRestart = boolPtr(false)
	s.Register(cfg)
	s.Start("builder")

	sp.lastProc().exit(errors.New("segfault"))

	waitFor(t, func() bool {
		st, _ := s.GetState("builder")
		return st.State == models.ProcessStopped
	}, "crashed agent to settle in stopped")

	time.Sleep(20 * time.Millisecond)
	if sp.spawnCalls() != 1 {
		t.Errorf("spawn calls = %d, want 1 with auto-restart disabled", sp.spawnCalls())
	}
}

// TestSupervisor_HealthFailureIsAdvisory verifies that failing health probes
// are logged to history but never change the agent's state.
func TestSupervisor_HealthFailureIsAdvisory(t *testing.T) {
	sp := &fakeSpawner{}
	checker := &fakeChecker{healthy: false}
	hist := NewMemoryHistory()
	s := New(Options{Spawner: sp, Checker: checker, History: hist})

	cfg := testConfig("builder")
	cfg.Port = 9100
	cfg.HealthCheckInterval = 5 * time.Millisecond
	s.Register(cfg)
	s.Start("builder")
	defer s.Stop("builder")

	waitFor(t, func() bool { return checker.checkCount() >= 2 }, "health probes to run")

	st, _ := s.GetState("builder")
	if st.State != models.ProcessRunning {
		t.Errorf("State = %q, want %q despite failing probes", st.State, models.ProcessRunning)
	}

	events, _ := hist.ListProcessEvents("builder")
	found := false
	for _, ev := range events {
		if ev.Event == models.ProcessEventHealthCheckFailed {
			found = true
		}
	}
	if !found {
		t.Error("failing probe was not recorded in history")
	}
}

func TestSupervisor_HealthSuccessUpdatesTimestamp(t *testing.T) {
	sp := &fakeSpawner{}
	checker := &fakeChecker{healthy: true}
	s := New(Options{Spawner: sp, Checker: checker})

	cfg := testConfig("builder")
	cfg.Port = 9100
	cfg.HealthCheckInterval = 5 * time.Millisecond
	s.Register(cfg)
	s.Start("builder")
	defer s.Stop("builder")

	waitFor(t, func() bool {
		st, _ := s.GetState("builder")
		return st.LastHealthCheck != nil
	}, "successful probe to stamp the record")
}

func TestSupervisor_UpdateHeartbeat(t *testing.T) {
	s := New(Options{Spawner: &fakeSpawner{}})
	s.Register(testConfig("builder"))

	if err := s.UpdateHeartbeat("builder"); err != nil {
		t.Fatalf("UpdateHeartbeat() error = %v", err)
	}
	st, _ := s.GetState("builder")
	if st.LastHeartbeat == nil {
		t.Error("LastHeartbeat not set")
	}

	if err := s.UpdateHeartbeat("ghost"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("UpdateHeartbeat(ghost) error = %v, want ErrAgentNotFound", err)
	}
}

func TestSupervisor_HistoryFilter(t *testing.T) {
	hist := NewMemoryHistory()
	s := New(Options{Spawner: &fakeSpawner{}, History: hist})
	s.Register(testConfig("builder"))
	s.Register(testConfig("reviewer"))
	s.Start("builder")
	s.Start("reviewer")
	s.Stop("builder")

	events, err := s.GetHistory("builder")
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	for _, ev := range events {
		if ev.AgentID != "builder" {
			t.Errorf("event for %q leaked into builder history", ev.AgentID)
		}
	}

	wantOrder := []models.ProcessEventType{
		models.ProcessEventRegister,
		models.ProcessEventStart,
		models.ProcessEventStop,
	}
	if len(events) != len(wantOrder) {
		t.Fatalf("got %d events, want %d", len(events), len(wantOrder))
	}
	for i, want := range wantOrder {
		if events[i].Event != want {
			t.Errorf("event[%d] = %q, want %q", i, events[i].Event, want)
		}
	}
}

func TestSupervisor_GetAllStatesSorted(t *testing.T) {
	s := New(Options{Spawner: &fakeSpawner{}})
	for _, id := range []string{"zeta", "alpha", "mid"} {
		s.Register(testConfig(id))
	}

	states := s.GetAllStates()
	if len(states) != 3 {
		t.Fatalf("got %d states, want 3", len(states))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, id := range want {
		if states[i].ID != id {
			t.Errorf("states[%d].ID = %q, want %q", i, states[i].ID, id)
		}
	}
}

func TestSupervisor_StopAll(t *testing.T) {
	sp := &fakeSpawner{}
	s := New(Options{Spawner: sp})
	s.Register(testConfig("builder"))
	s.Register(testConfig("reviewer"))
	s.Start("builder")
	s.Start("reviewer")

	if err := s.StopAll(); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	for _, st := range s.GetAllStates() {
		if st.State != models.ProcessStopped {
			t.Errorf("agent %s state = %q, want %q", st.ID, st.State, models.ProcessStopped)
		}
	}
}
