package supervisor

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
)

// Process is a handle to one spawned worker process. The supervisor owns the
// handle for the process's whole lifetime: acquired on start, released
// (killed if necessary) on stop or supervisor shutdown.
type Process interface {
	// PID returns the operating system process ID.
	PID() int
	// Done is closed when the process has exited.
	Done() <-chan struct{}
	// ExitErr returns the exit error after Done is closed; nil for a clean
	// exit.
	ExitErr() error
	// Terminate asks the process to exit gracefully.
	Terminate() error
	// Kill forcibly ends the process.
	Kill() error
}

// Spawner starts worker processes. This abstraction allows mocking process
// creation in tests.
type Spawner interface {
	// Spawn starts command with args in dir and returns a live handle.
	Spawn(command string, args []string, dir string) (Process, error)
}

// ExecSpawner implements Spawner using os/exec.
type ExecSpawner struct{}

// NewExecSpawner creates a new ExecSpawner.
func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{}
}

// Spawn starts the command and begins reaping it in the background.
func (s *ExecSpawner) Spawn(command string, args []string, dir string) (Process, error) {
	cmd := exec.Command(command, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	p := &execProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

// execProcess wraps an exec.Cmd as a Process.
type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	exitErr error
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *execProcess) Terminate() error {
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// Verify ExecSpawner implements Spawner at compile time.
var _ Spawner = (*ExecSpawner)(nil)
