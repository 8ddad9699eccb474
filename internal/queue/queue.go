// Package queue implements admission control for agent work: a strict FIFO
// queue with a per-queue concurrency cap, plus the quota resolution policy
// that decides what that cap should be. Each agent class or workflow owns
// its own queue instance; there are no process-wide defaults.
package queue

import "sync"

// InstanceStatus is the lifecycle status of a runtime instance.
type InstanceStatus string

const (
	InstanceQueued    InstanceStatus = "queued"
	InstanceRunning   InstanceStatus = "running"
	InstanceCompleted InstanceStatus = "completed"
	InstanceFailed    InstanceStatus = "failed"
)

// RuntimeInstance is the admission queue's unit of work: one agent's claim
// on a concurrency slot. QueuePosition is 1-based and recomputed whenever
// the queue head changes.
type RuntimeInstance struct {
	// InstanceID uniquely identifies this claim.
	InstanceID string `json:"instance_id"`
	// AgentConfigID is the agent class requesting the slot.
	AgentConfigID string `json:"agent_config_id"`
	// Status is the instance's lifecycle status.
	Status InstanceStatus `json:"status"`
	// QueuePosition is the 1-based position while queued; 0 otherwise.
	QueuePosition int `json:"queue_position,omitempty"`
}

// Stats is a point-in-time summary of a queue.
type Stats struct {
	// Queued is the number of instances waiting for a slot.
	Queued int `json:"queued"`
	// Active is the number of instances currently running.
	Active int `json:"active"`
	// Completed is the number of instances that have finished, in any
	// terminal status.
	Completed int `json:"completed"`
	// MaxConcurrent is the queue's concurrency cap.
	MaxConcurrent int `json:"max_concurrent"`
}

// AdmissionQueue is a strict FIFO queue that never lets more than
// maxConcurrent instances run at once. Enqueue, TryDequeue, and Complete are
// mutually exclusive critical sections; cross-queue operations never need
// coordination.
type AdmissionQueue struct {
	mu sync.Mutex
	// maxConcurrent caps the running set.
	maxConcurrent int
	// pending holds queued instances in FIFO order.
	pending []*RuntimeInstance
	// running tracks active instances by ID.
	running map[string]*RuntimeInstance
	// completed counts finalized instances.
	completed int
}

// New creates an admission queue with the given concurrency cap. Caps below
// one are raised to one; a queue that can never run anything is useless.
func New(maxConcurrent int) *AdmissionQueue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &AdmissionQueue{
		maxConcurrent: maxConcurrent,
		running:       make(map[string]*RuntimeInstance),
	}
}

// Enqueue appends the instance and returns its 1-based queue position.
func (q *AdmissionQueue) Enqueue(inst *RuntimeInstance) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	inst.Status = InstanceQueued
	q.pending = append(q.pending, inst)
	inst.QueuePosition = len(q.pending)
	return inst.QueuePosition
}

// TryDequeue pops the queue head only if the running count is below the
// concurrency cap. Otherwise it returns nil without mutating the queue;
// capacity rejection is an expected steady-state condition and callers must
// retry after a Complete frees a slot.
func (q *AdmissionQueue) TryDequeue() *RuntimeInstance {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 || len(q.running) >= q.maxConcurrent {
		return nil
	}

	inst := q.pending[0]
	q.pending = q.pending[1:]
	inst.Status = InstanceRunning
	inst.QueuePosition = 0
	q.running[inst.InstanceID] = inst

	q.renumberLocked()
	return inst
}

// Complete removes the instance from the running set with the given final
// status, making room for the next TryDequeue. It returns false when the
// instance is not currently running.
func (q *AdmissionQueue) Complete(instanceID string, final InstanceStatus) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	inst, ok := q.running[instanceID]
	if !ok {
		return false
	}
	delete(q.running, instanceID)
	inst.Status = final
	q.completed++
	return true
}

// Queued returns the remaining queued instances annotated with live 1-based
// positions.
func (q *AdmissionQueue) Queued() []*RuntimeInstance {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*RuntimeInstance, len(q.pending))
	copy(out, q.pending)
	return out
}

// Stats reports the queue's current counters.
func (q *AdmissionQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Queued:        len(q.pending),
		Active:        len(q.running),
		Completed:     q.completed,
		MaxConcurrent: q.maxConcurrent,
	}
}

// MaxConcurrent returns the queue's concurrency cap.
func (q *AdmissionQueue) MaxConcurrent() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxConcurrent
}

// renumberLocked refreshes 1-based positions after the head changes.
// Callers hold mu.
func (q *AdmissionQueue) renumberLocked() {
	for i, inst := range q.pending {
		inst.QueuePosition = i + 1
	}
}
