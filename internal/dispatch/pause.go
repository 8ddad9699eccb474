// Package dispatch provides the dispatch/control entry points consumed by an
// external transport layer: admitting tasks through the quota-bounded queue
// and pausing, resuming, or stopping the flow of new work.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// PauseController gates admission of new work. Pausing retains queued work
// and blocks new admissions; stopping is final and unblocks all waiters.
type PauseController struct {
	paused  bool
	stopped bool
	mu      sync.RWMutex
	cond    *sync.Cond
}

// NewPauseController creates a new PauseController.
func NewPauseController() *PauseController {
	p := &PauseController{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Pause suspends admission. Queued work is retained.
func (p *PauseController) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		log.Printf("[dispatch] paused - no new work will be admitted")
	}
}

// Resume re-enables admission after a pause.
func (p *PauseController) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		log.Printf("[dispatch] resumed - admission enabled")
		p.cond.Broadcast()
	}
}

// Stop signals a stop and unblocks any WaitIfPaused callers.
func (p *PauseController) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		p.cond.Broadcast()
	}
}

// IsPaused reports whether admission is currently suspended.
func (p *PauseController) IsPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// IsStopped reports whether the controller has been stopped.
func (p *PauseController) IsStopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}

// WaitIfPaused blocks the caller until admission resumes or the controller
// stops. A context cancellation or a stop returns an error.
func (p *PauseController) WaitIfPaused(ctx context.Context) error {
	p.mu.Lock()
	if p.paused && !p.stopped {
		// One goroutine per wait to turn context cancellation into a wakeup.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				p.mu.Lock()
				p.cond.Broadcast()
				p.mu.Unlock()
			case <-done:
			}
		}()

		for p.paused && !p.stopped {
			p.cond.Wait()
			if ctx.Err() != nil {
				close(done)
				p.mu.Unlock()
				return ctx.Err()
			}
		}
		close(done)
	}
	if p.stopped {
		p.mu.Unlock()
		return fmt.Errorf("dispatcher stopped")
	}
	p.mu.Unlock()
	return nil
}
