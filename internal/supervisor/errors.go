package supervisor

import "errors"

var (
	// ErrAgentNotFound indicates the agent ID was never registered.
	ErrAgentNotFound = errors.New("agent not registered")

	// ErrDuplicateAgent indicates a Register call reused a live agent ID.
	ErrDuplicateAgent = errors.New("agent already registered")

	// ErrRestartBudgetExhausted indicates the agent exceeded its maxRestarts
	// budget and is FAILED; it needs re-registration before it can run.
	ErrRestartBudgetExhausted = errors.New("restart budget exhausted")
)
