package models

import "time"

// TaskState represents the current state of a task in its dispatch lifecycle.
type TaskState string

const (
	// TaskCreated indicates the task exists but its dependencies are unmet.
	TaskCreated TaskState = "created"
	// TaskReady indicates all dependencies are satisfied and the task is eligible for dispatch.
	TaskReady TaskState = "ready"
	// TaskDispatching indicates a dispatch attempt is in flight.
	TaskDispatching TaskState = "dispatching"
	// TaskDispatched indicates a worker acknowledged the dispatch.
	TaskDispatched TaskState = "dispatched"
	// TaskDispatchFailed indicates the worker rejected the dispatch.
	TaskDispatchFailed TaskState = "dispatch_failed"
	// TaskRunning indicates the worker has started executing the task.
	TaskRunning TaskState = "running"
	// TaskExecutionSucceeded indicates execution finished successfully.
	TaskExecutionSucceeded TaskState = "execution_succeeded"
	// TaskExecutionFailed indicates execution finished with an error.
	TaskExecutionFailed TaskState = "execution_failed"
	// TaskReviewing indicates the result is under review.
	TaskReviewing TaskState = "reviewing"
	// TaskReworkRequired indicates review rejected the result.
	TaskReworkRequired TaskState = "rework_required"
	// TaskDone indicates review passed and the task is complete.
	TaskDone TaskState = "done"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskCreated, TaskReady, TaskDispatching, TaskDispatched, TaskDispatchFailed,
		TaskRunning, TaskExecutionSucceeded, TaskExecutionFailed, TaskReviewing,
		TaskReworkRequired, TaskDone:
		return true
	default:
		return false
	}
}

// TaskEvent drives task state transitions.
type TaskEvent string

const (
	TaskEventDepsSatisfied    TaskEvent = "deps_satisfied"
	TaskEventDispatch         TaskEvent = "orchestrator_dispatch"
	TaskEventDispatchAck      TaskEvent = "dispatch_ack"
	TaskEventDispatchNack     TaskEvent = "dispatch_nack"
	TaskEventExecutionStarted TaskEvent = "task_execution_started"
	TaskEventExecutionOK      TaskEvent = "execution_succeeded"
	TaskEventExecutionErr     TaskEvent = "execution_failed"
	TaskEventRetryOrReassign  TaskEvent = "retry_or_reassign"
	TaskEventReviewRequested  TaskEvent = "review_requested"
	TaskEventReviewPass       TaskEvent = "review_pass"
	TaskEventReviewReject     TaskEvent = "review_reject"
	TaskEventReplanOrRetry    TaskEvent = "replan_or_retry"
)

// taskTransitions is the task transition table. A missing (state, event)
// pair means the combination is illegal. TaskDone and TaskDispatchFailed
// are terminal for the machine itself; recovery from a failed dispatch is
// an orchestration decision, not a task transition.
var taskTransitions = map[TaskState]map[TaskEvent]TaskState{
	TaskCreated: {
		TaskEventDepsSatisfied: TaskReady,
	},
	TaskReady: {
		TaskEventDispatch: TaskDispatching,
	},
	TaskDispatching: {
		TaskEventDispatchAck:  TaskDispatched,
		TaskEventDispatchNack: TaskDispatchFailed,
	},
	TaskDispatched: {
		TaskEventExecutionStarted: TaskRunning,
	},
	TaskRunning: {
		TaskEventExecutionOK:  TaskExecutionSucceeded,
		TaskEventExecutionErr: TaskExecutionFailed,
	},
	TaskExecutionSucceeded: {
		TaskEventReviewRequested: TaskReviewing,
	},
	TaskExecutionFailed: {
		// Re-enters eligibility directly; the admission queue is not involved.
		TaskEventRetryOrReassign: TaskReady,
	},
	TaskReviewing: {
		TaskEventReviewPass:   TaskDone,
		TaskEventReviewReject: TaskReworkRequired,
	},
	TaskReworkRequired: {
		TaskEventReplanOrRetry: TaskReady,
	},
}

// NextTaskState returns the state a task in state from would enter for the
// given event. It is a pure function of (state, event); illegal combinations
// return ("", false).
func NextTaskState(from TaskState, event TaskEvent) (TaskState, bool) {
	next, ok := taskTransitions[from][event]
	return next, ok
}

// Task represents a unit of work owned by exactly one workflow.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// WorkflowID is the ID of the workflow that owns this task.
	WorkflowID string `json:"workflow_id,omitempty"`
	// Description is what the task asks a worker to do.
	Description string `json:"description"`
	// Type selects the agent configuration class this task runs on.
	Type string `json:"type,omitempty"`
	// Status is the current state of the task.
	Status TaskState `json:"status"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// Dependents lists task IDs that are blocked on this task.
	Dependents []string `json:"dependents,omitempty"`
	// MaxDuration bounds wall-clock time since StartedAt. Zero means no deadline.
	MaxDuration time.Duration `json:"max_duration,omitempty"`
	// StartedAt is when execution began, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// RetryCount is the number of times this task has re-entered ready.
	RetryCount int `json:"retry_count,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
}

// Apply transitions the task for the given event. It returns false and
// leaves the task unchanged when the event is not legal from the current
// state.
func (t *Task) Apply(event TaskEvent) bool {
	next, ok := NextTaskState(t.Status, event)
	if !ok {
		return false
	}
	switch event {
	case TaskEventExecutionStarted:
		now := time.Now()
		t.StartedAt = &now
	case TaskEventRetryOrReassign, TaskEventReplanOrRetry:
		t.RetryCount++
	}
	t.Status = next
	return true
}

// Expired reports whether the task has exceeded its deadline as of now.
// The deadline is measured from StartedAt, independent of calendar time;
// tasks without a deadline or that never started do not expire.
func (t *Task) Expired(now time.Time) bool {
	if t.MaxDuration <= 0 || t.StartedAt == nil {
		return false
	}
	return now.Sub(*t.StartedAt) > t.MaxDuration
}
