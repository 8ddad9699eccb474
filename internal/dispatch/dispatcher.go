package dispatch

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/ShayCichocki/hive/internal/queue"
	"github.com/ShayCichocki/hive/pkg/models"
)

var (
	// ErrDispatcherStopped indicates the dispatcher was stopped; no further
	// work is accepted.
	ErrDispatcherStopped = errors.New("dispatcher stopped")

	// ErrDispatchFailed indicates the task could not be dispatched at all.
	// Unlike a capacity rejection, retrying without re-planning is wrong.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrUnknownInstance indicates an instance ID the dispatcher is not
	// tracking.
	ErrUnknownInstance = errors.New("unknown instance")
)

// ControlAction names the external control operations.
type ControlAction string

const (
	ControlPause  ControlAction = "pause"
	ControlResume ControlAction = "resume"
	ControlStop   ControlAction = "stop"
)

// Result reports the outcome of a dispatch. A task that was enqueued but not
// admitted is waiting on capacity, not failed; the caller polls or waits for
// a Complete to free a slot.
type Result struct {
	// InstanceID identifies the admission claim for later lifecycle calls.
	InstanceID string
	// Admitted reports whether the task got a slot immediately.
	Admitted bool
	// QueuePosition is the 1-based position while waiting; 0 once admitted.
	QueuePosition int
}

// entry tracks one dispatched task and the agent slot it occupies.
type entry struct {
	workflowID string
	class      string
	task       *models.Task
	slot       *models.AgentSlot
}

// Dispatcher is the entry point an external transport layer calls to push
// work into the orchestration core. It resolves quotas, runs each task
// through a per-workflow-and-class admission queue, and drives the task and
// agent-slot state machines as instances move through their lifecycle.
type Dispatcher struct {
	pause  *PauseController
	logger *DebugLogger
	policy queue.Policy

	mu            sync.Mutex
	fleet         map[string]models.AgentConfig
	queues        map[string]*queue.AdmissionQueue
	pausedClasses map[string]bool
	entries       map[string]*entry
}

// New creates a dispatcher over the given fleet. A nil logger disables debug
// tracing.
func New(policy queue.Policy, fleet []models.AgentConfig, logger *DebugLogger) *Dispatcher {
	byID := make(map[string]models.AgentConfig, len(fleet))
	for _, cfg := range fleet {
		byID[cfg.ID] = cfg
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Dispatcher{
		pause:         NewPauseController(),
		logger:        logger,
		policy:        policy,
		fleet:         byID,
		queues:        make(map[string]*queue.AdmissionQueue),
		pausedClasses: make(map[string]bool),
		entries:       make(map[string]*entry),
	}
}

// Controller exposes the pause controller for callers that want to block on
// it with WaitIfPaused.
func (d *Dispatcher) Controller() *PauseController {
	return d.pause
}

// Dispatch enqueues the task for its agent class and admits it if a slot is
// free. The task must accept the dispatch event (it has to be ready); a task
// in the wrong state fails with ErrDispatchFailed rather than queueing.
func (d *Dispatcher) Dispatch(workflowID string, task *models.Task) (Result, error) {
	if d.pause.IsStopped() {
		return Result{}, ErrDispatcherStopped
	}
	class := task.Type
	if class == "" {
		return Result{}, fmt.Errorf("task %s has no agent class: %w", task.ID, ErrDispatchFailed)
	}
	if !task.Apply(models.TaskEventDispatch) {
		return Result{}, fmt.Errorf("task %s in state %q cannot dispatch: %w", task.ID, task.Status, ErrDispatchFailed)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queueLocked(workflowID, class)
	inst := &queue.RuntimeInstance{
		InstanceID:    uuid.NewString(),
		AgentConfigID: class,
	}
	pos := q.Enqueue(inst)
	d.entries[inst.InstanceID] = &entry{
		workflowID: workflowID,
		class:      class,
		task:       task,
		slot:       &models.AgentSlot{AgentID: inst.InstanceID, State: models.SlotIdle},
	}
	d.logger.Log("enqueued task %s as instance %s (class %s, workflow %s, position %d)",
		task.ID, inst.InstanceID, class, workflowID, pos)

	d.drainLocked(workflowID, class, q)

	e := d.entries[inst.InstanceID]
	return Result{
		InstanceID:    inst.InstanceID,
		Admitted:      e.slot.State == models.SlotReserved,
		QueuePosition: inst.QueuePosition,
	}, nil
}

// Started records that the worker began executing the instance's task,
// moving the task to running and the slot to running. It returns false when
// either machine rejects the event.
func (d *Dispatcher) Started(instanceID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[instanceID]
	if !ok {
		return false, fmt.Errorf("instance %s: %w", instanceID, ErrUnknownInstance)
	}
	if !e.task.Apply(models.TaskEventExecutionStarted) {
		return false, nil
	}
	e.slot.Apply(models.SlotEventExecutionStarted)
	d.logger.Log("instance %s started task %s", instanceID, e.task.ID)
	return true, nil
}

// StepCompleted records one intermediate step within a running execution.
// Slot occupancy does not change.
func (d *Dispatcher) StepCompleted(instanceID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[instanceID]
	if !ok {
		return false, fmt.Errorf("instance %s: %w", instanceID, ErrUnknownInstance)
	}
	return e.slot.Apply(models.SlotEventStepCompleted), nil
}

// Complete finalizes the instance: the task and slot take the success or
// failure event, the concurrency slot is freed, and the next queued instance
// for the class is admitted.
func (d *Dispatcher) Complete(instanceID string, success bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[instanceID]
	if !ok {
		return fmt.Errorf("instance %s: %w", instanceID, ErrUnknownInstance)
	}

	taskEvent, slotEvent := models.TaskEventExecutionOK, models.SlotEventExecutionOK
	final := queue.InstanceCompleted
	if !success {
		taskEvent, slotEvent = models.TaskEventExecutionErr, models.SlotEventExecutionErr
		final = queue.InstanceFailed
	}

	q := d.queueLocked(e.workflowID, e.class)
	if !q.Complete(instanceID, final) {
		return fmt.Errorf("instance %s is not running: %w", instanceID, ErrUnknownInstance)
	}
	e.task.Apply(taskEvent)
	e.slot.Apply(slotEvent)
	delete(d.entries, instanceID)
	d.logger.Log("instance %s completed task %s (success=%t)", instanceID, e.task.ID, success)

	d.drainLocked(e.workflowID, e.class, q)
	return nil
}

// Control applies an external pause/resume/stop request. An empty scope is
// global; a non-empty scope names one agent class.
func (d *Dispatcher) Control(action ControlAction, scope string) error {
	switch action {
	case ControlPause:
		if scope == "" {
			d.pause.Pause()
			return nil
		}
		d.mu.Lock()
		d.pausedClasses[scope] = true
		d.mu.Unlock()
		log.Printf("[dispatch] paused class %s", scope)
	case ControlResume:
		if scope == "" {
			d.pause.Resume()
		} else {
			d.mu.Lock()
			delete(d.pausedClasses, scope)
			d.mu.Unlock()
			log.Printf("[dispatch] resumed class %s", scope)
		}
		d.drainAll()
	case ControlStop:
		d.pause.Stop()
		log.Printf("[dispatch] stopped")
	default:
		return fmt.Errorf("unknown control action %q", action)
	}
	return nil
}

// Stats reports the admission queue counters for one workflow and class.
func (d *Dispatcher) Stats(workflowID, class string) queue.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queueLocked(workflowID, class).Stats()
}

// Queued returns the waiting instances for one workflow and class with live
// 1-based positions.
func (d *Dispatcher) Queued(workflowID, class string) []*queue.RuntimeInstance {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queueLocked(workflowID, class).Queued()
}

// queueLocked returns the admission queue for a workflow and class, creating
// it with the effective quota on first use. The cap is the resolved quota,
// further bounded by the policy's class cap. Callers hold d.mu.
func (d *Dispatcher) queueLocked(workflowID, class string) *queue.AdmissionQueue {
	key := workflowID + "/" + class
	if q, ok := d.queues[key]; ok {
		return q
	}

	var cfg *models.AgentConfig
	if c, ok := d.fleet[class]; ok {
		cfg = &c
	}
	quota := queue.EffectiveQuota(cfg, workflowID)
	cap := quota.Limit
	if classCap := d.policy.ClassCap(class); classCap < cap {
		cap = classCap
	}

	q := queue.New(cap)
	d.queues[key] = q
	d.logger.Log("created queue %s with cap %d (quota %d from %s)", key, cap, quota.Limit, quota.Source)
	return q
}

// drainLocked admits queued instances while slots are free and admission is
// not suspended. Callers hold d.mu.
func (d *Dispatcher) drainLocked(workflowID, class string, q *queue.AdmissionQueue) {
	if d.pause.IsPaused() || d.pause.IsStopped() || d.pausedClasses[class] {
		return
	}
	for {
		inst := q.TryDequeue()
		if inst == nil {
			return
		}
		e, ok := d.entries[inst.InstanceID]
		if !ok {
			continue
		}
		e.task.Apply(models.TaskEventDispatchAck)
		e.slot.Apply(models.SlotEventDispatchAck)
		d.logger.Log("admitted instance %s for task %s (workflow %s)", inst.InstanceID, e.task.ID, workflowID)
		log.Printf("[dispatch] admitted task %s (class %s)", e.task.ID, class)
	}
}

// drainAll re-runs admission on every queue, for use after a resume.
func (d *Dispatcher) drainAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, q := range d.queues {
		// key is workflowID + "/" + class; class is everything after the
		// first separator since workflow IDs are UUIDs without slashes.
		workflowID, class := splitQueueKey(key)
		if d.pausedClasses[class] {
			continue
		}
		d.drainLocked(workflowID, class, q)
	}
}

func splitQueueKey(key string) (workflowID, class string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
