// Package workflow implements the per-workflow state machine. Transitions
// are synchronous and pure: Trigger never blocks, never panics, and signals
// illegal events with a false return so callers can retry with corrected
// logic.
package workflow

import (
	"sync"
	"time"
)

// State is the workflow execution state.
type State string

const (
	StateIdle                  State = "idle"
	StateSemanticUnderstanding State = "semantic_understanding"
	StateRoutingDecision       State = "routing_decision"
	StatePlanLoop              State = "plan_loop"
	StateExecution             State = "execution"
	StateReview                State = "review"
	StateWaitUserDecision      State = "wait_user_decision"
	StatePaused                State = "paused"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"

	// StateReplanning exists in the broader vocabulary but no transition
	// reaches it; it is kept so persisted records naming it still parse.
	StateReplanning State = "replanning"
)

// Valid returns true if the state is a known value.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateSemanticUnderstanding, StateRoutingDecision, StatePlanLoop,
		StateExecution, StateReview, StateWaitUserDecision, StatePaused,
		StateCompleted, StateFailed, StateReplanning:
		return true
	default:
		return false
	}
}

// StateEntry records one successful transition.
type StateEntry struct {
	// State is the state entered.
	State State `json:"state"`
	// EnteredAt is when the transition happened.
	EnteredAt time.Time `json:"entered_at"`
}

// Machine is the top-level per-workflow controller. One machine owns many
// tasks; it is mutated only through Trigger and never deleted, only marked
// completed or failed.
type Machine struct {
	mu sync.RWMutex
	// workflowID identifies this workflow.
	workflowID string
	// sessionID keys this workflow's checkpoints.
	sessionID string
	// state is the current workflow state.
	state State
	// context is the workflow's free-form context.
	context map[string]any
	// history records every successful transition in order.
	history []StateEntry
}

// New creates a workflow machine in the idle state.
func New(workflowID, sessionID string) *Machine {
	return &Machine{
		workflowID: workflowID,
		sessionID:  sessionID,
		state:      StateIdle,
		context:    make(map[string]any),
	}
}

// ID returns the workflow identifier.
func (m *Machine) ID() string { return m.workflowID }

// SessionID returns the session this workflow checkpoints under.
func (m *Machine) SessionID() string { return m.sessionID }

// State returns the current workflow state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Trigger applies an event to the machine. It returns true if the
// transition was legal; illegal triggers leave the state unchanged and
// return false. Callers must check the result.
func (m *Machine) Trigger(event Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.next(event)
	if !ok {
		return false
	}

	m.state = next
	m.history = append(m.history, StateEntry{State: next, EnteredAt: time.Now()})
	return true
}

// next resolves the transition table for the current state. Callers hold mu.
func (m *Machine) next(event Event) (State, bool) {
	// pause_requested is legal from any state.
	if _, ok := event.(PauseRequested); ok {
		return StatePaused, true
	}

	switch m.state {
	case StateIdle:
		if _, ok := event.(UserInputReceived); ok {
			return StateSemanticUnderstanding, true
		}
	case StateSemanticUnderstanding:
		if _, ok := event.(IntentAnalyzed); ok {
			return StateRoutingDecision, true
		}
	case StateRoutingDecision:
		if ev, ok := event.(RoutingDecided); ok {
			switch ev.Route {
			case RouteFullReplan:
				return StatePlanLoop, true
			case RouteContinueExecution:
				return StateExecution, true
			case RouteNewTask:
				return StateWaitUserDecision, true
			}
			// minor_replan and control_action are currently unreachable
			// routes; rejecting them keeps the machine honest until the
			// broader system specifies their targets.
		}
	case StatePlanLoop:
		if _, ok := event.(PlanCreated); ok {
			return StateExecution, true
		}
	case StateExecution:
		if _, ok := event.(TaskCompleted); ok {
			return StateReview, true
		}
	case StateReview:
		switch event.(type) {
		case ReviewPassed:
			return StateExecution, true
		case ReviewRejected:
			return StatePlanLoop, true
		}
	case StatePaused:
		if _, ok := event.(UserInputReceived); ok {
			return StateSemanticUnderstanding, true
		}
	}

	return "", false
}

// Reset returns the machine to idle and clears its history.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.history = nil
}

// UpdateContext merges partial into the workflow's context without
// triggering a transition.
func (m *Machine) UpdateContext(partial map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range partial {
		m.context[k] = v
	}
}

// Context returns a copy of the workflow's context.
func (m *Machine) Context() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.context))
	for k, v := range m.context {
		out[k] = v
	}
	return out
}

// History returns a copy of the state history. The machine never trims it.
func (m *Machine) History() []StateEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StateEntry, len(m.history))
	copy(out, m.history)
	return out
}
