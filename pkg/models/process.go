package models

import "time"

// ProcessState models OS-level liveness of a supervised worker process.
type ProcessState string

const (
	// ProcessRegistered indicates the agent is known but has never started.
	ProcessRegistered ProcessState = "REGISTERED"
	// ProcessRunning indicates a live process backs the agent.
	ProcessRunning ProcessState = "RUNNING"
	// ProcessStopped indicates the process exited after a stop request.
	ProcessStopped ProcessState = "STOPPED"
	// ProcessFailed indicates the restart budget was exhausted; the agent
	// requires re-registration before it can run again.
	ProcessFailed ProcessState = "FAILED"
)

// AgentProcessState is the supervisor's record for one agent. It is created
// by Register and never deleted; the supervisor only marks it STOPPED or
// FAILED.
type AgentProcessState struct {
	// ID is the agent's unique identifier.
	ID string `json:"id"`
	// Config is the normalized configuration the agent was registered with.
	Config AgentConfig `json:"config"`
	// State is the current liveness state.
	State ProcessState `json:"state"`
	// PID is set only while a process is live.
	PID int `json:"pid,omitempty"`
	// RestartCount increases monotonically until reset by re-registration.
	RestartCount int `json:"restart_count"`
	// LastHeartbeat is the most recent self-reported liveness signal.
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	// LastHealthCheck is the most recent successful injected health check.
	LastHealthCheck *time.Time `json:"last_health_check,omitempty"`
}

// ProcessEventType names the entries of the supervisor's append-only
// history log.
type ProcessEventType string

const (
	ProcessEventRegister          ProcessEventType = "register"
	ProcessEventStart             ProcessEventType = "start"
	ProcessEventStop              ProcessEventType = "stop"
	ProcessEventRestart           ProcessEventType = "restart"
	ProcessEventHealthCheckFailed ProcessEventType = "health_check_failed"
)

// ProcessEvent is one persisted history record. Consumers filter by AgentID
// and never mutate past entries.
type ProcessEvent struct {
	// AgentID is the agent this event concerns.
	AgentID string `json:"agent_id"`
	// Event is the event type.
	Event ProcessEventType `json:"event"`
	// Timestamp is when the event was recorded.
	Timestamp time.Time `json:"timestamp"`
	// Detail carries optional context, such as a spawn error.
	Detail string `json:"detail,omitempty"`
}
