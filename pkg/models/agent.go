package models

import "time"

// SlotState represents the assignment state of one worker to one in-flight
// task. It is distinct from ProcessState, which models OS-level liveness of
// the worker process itself.
type SlotState string

const (
	// SlotIdle indicates the worker has no task assigned.
	SlotIdle SlotState = "idle"
	// SlotReserved indicates a dispatch was acknowledged but execution has not started.
	SlotReserved SlotState = "reserved"
	// SlotRunning indicates the worker is executing a task.
	SlotRunning SlotState = "running"
	// SlotError indicates the last execution failed and the slot needs recovery.
	SlotError SlotState = "error"
)

// Valid returns true if the state is a known value.
func (s SlotState) Valid() bool {
	switch s {
	case SlotIdle, SlotReserved, SlotRunning, SlotError:
		return true
	default:
		return false
	}
}

// SlotEvent drives agent-slot transitions.
type SlotEvent string

const (
	SlotEventDispatchAck      SlotEvent = "dispatch_ack"
	SlotEventExecutionStarted SlotEvent = "task_execution_started"
	SlotEventExecutionOK      SlotEvent = "execution_succeeded"
	SlotEventExecutionErr     SlotEvent = "execution_failed"
	SlotEventStepCompleted    SlotEvent = "agent_step_completed"
	SlotEventRecover          SlotEvent = "recover_or_reset"
)

// slotTransitions is the agent-slot transition table. The running→running
// self-loop on agent_step_completed models intermediate steps within one
// task execution without changing slot occupancy.
var slotTransitions = map[SlotState]map[SlotEvent]SlotState{
	SlotIdle: {
		SlotEventDispatchAck: SlotReserved,
	},
	SlotReserved: {
		SlotEventExecutionStarted: SlotRunning,
	},
	SlotRunning: {
		SlotEventExecutionOK:   SlotIdle,
		SlotEventExecutionErr:  SlotError,
		SlotEventStepCompleted: SlotRunning,
	},
	SlotError: {
		SlotEventRecover: SlotIdle,
	},
}

// NextSlotState returns the slot state entered for the given event, or
// ("", false) when the combination is illegal.
func NextSlotState(from SlotState, event SlotEvent) (SlotState, bool) {
	next, ok := slotTransitions[from][event]
	return next, ok
}

// AgentSlot represents one worker's momentary task occupancy.
type AgentSlot struct {
	// AgentID identifies the worker occupying this slot.
	AgentID string `json:"agent_id"`
	// State is the current assignment state.
	State SlotState `json:"state"`
}

// Apply transitions the slot for the given event. Illegal events return
// false and leave the slot unchanged.
func (a *AgentSlot) Apply(event SlotEvent) bool {
	next, ok := NextSlotState(a.State, event)
	if !ok {
		return false
	}
	a.State = next
	return true
}

// QuotaPolicy configures per-workflow and per-project concurrency quotas for
// an agent class. A zero value means "not set" at that level.
type QuotaPolicy struct {
	// ProjectQuota is the project-wide concurrency limit.
	ProjectQuota int `yaml:"project_quota,omitempty" json:"project_quota,omitempty" mapstructure:"project_quota"`
	// WorkflowQuota maps workflow IDs to workflow-specific limits.
	WorkflowQuota map[string]int `yaml:"workflow_quota,omitempty" json:"workflow_quota,omitempty" mapstructure:"workflow_quota"`
}

// AgentConfig describes one agent class: the command to supervise and the
// policies that govern its restarts, health checks, and concurrency.
type AgentConfig struct {
	// ID is the unique identifier for this agent class.
	ID string `yaml:"id" json:"id" mapstructure:"id"`
	// Name is the human-readable name.
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Role describes what work this agent class performs.
	Role string `yaml:"role,omitempty" json:"role,omitempty" mapstructure:"role"`
	// Command is the executable the supervisor spawns.
	Command string `yaml:"command" json:"command" mapstructure:"command"`
	// Args are passed to Command.
	Args []string `yaml:"args,omitempty" json:"args,omitempty" mapstructure:"args"`
	// Port is the port the worker's health endpoint listens on.
	Port int `yaml:"port" json:"port" mapstructure:"port"`
	// AutoRestart enables restart-on-exit. Defaults to true when unset.
	AutoRestart *bool `yaml:"auto_restart,omitempty" json:"auto_restart,omitempty" mapstructure:"auto_restart"`
	// MaxRestarts bounds the restart budget before the agent is marked failed.
	MaxRestarts int `yaml:"max_restarts,omitempty" json:"max_restarts,omitempty" mapstructure:"max_restarts"`
	// RestartBackoff is the delay between stop and start during a restart.
	RestartBackoff time.Duration `yaml:"restart_backoff,omitempty" json:"restart_backoff,omitempty" mapstructure:"restart_backoff"`
	// HealthCheckInterval is the polling period for the injected health checker.
	HealthCheckInterval time.Duration `yaml:"health_check_interval,omitempty" json:"health_check_interval,omitempty" mapstructure:"health_check_interval"`
	// DefaultQuota is the concurrency limit used when no policy-level quota applies.
	DefaultQuota int `yaml:"default_quota,omitempty" json:"default_quota,omitempty" mapstructure:"default_quota"`
	// QuotaPolicy holds workflow- and project-scoped quota overrides.
	QuotaPolicy *QuotaPolicy `yaml:"quota_policy,omitempty" json:"quota_policy,omitempty" mapstructure:"quota_policy"`
}
