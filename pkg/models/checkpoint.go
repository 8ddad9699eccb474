package models

import "time"

// ProgressStatus is the coarse status vocabulary recorded per task inside a
// checkpoint. Anything that is not completed or failed counts as pending
// when the checkpoint's ID partitions are derived.
type ProgressStatus string

const (
	ProgressPending    ProgressStatus = "pending"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressFailed     ProgressStatus = "failed"
)

// TaskProgress records one task's progress inside a checkpoint.
type TaskProgress struct {
	// TaskID is the task this entry describes.
	TaskID string `json:"task_id"`
	// Description is the task description at snapshot time.
	Description string `json:"description"`
	// Status is the task's coarse progress status.
	Status ProgressStatus `json:"status"`
	// IterationCount is how many execution iterations the task has consumed.
	IterationCount int `json:"iteration_count"`
	// MaxIterations bounds IterationCount.
	MaxIterations int `json:"max_iterations"`
}

// Checkpoint is an immutable snapshot of a workflow's task and agent
// progress, sufficient to infer where execution should resume. The three ID
// partitions are derived from TaskProgress at creation time and are never
// hand-edited. A session accumulates checkpoints ordered by Timestamp;
// "latest" is the one with the greatest timestamp.
type Checkpoint struct {
	// CheckpointID uniquely identifies this snapshot.
	CheckpointID string `json:"checkpoint_id"`
	// SessionID keys the sequence of checkpoints this snapshot belongs to.
	SessionID string `json:"session_id"`
	// Timestamp orders checkpoints within a session.
	Timestamp time.Time `json:"timestamp"`
	// OriginalTask is the user request that started the session.
	OriginalTask string `json:"original_task"`
	// TaskProgress holds one entry per known task.
	TaskProgress []TaskProgress `json:"task_progress"`
	// CompletedTaskIDs lists tasks whose status was completed at snapshot time.
	CompletedTaskIDs []string `json:"completed_task_ids"`
	// FailedTaskIDs lists tasks whose status was failed at snapshot time.
	FailedTaskIDs []string `json:"failed_task_ids"`
	// PendingTaskIDs lists every other task.
	PendingTaskIDs []string `json:"pending_task_ids"`
	// AgentStates maps agent IDs to their slot state at snapshot time.
	AgentStates map[string]string `json:"agent_states,omitempty"`
	// Context carries free-form workflow context, including design artifacts
	// and the phase recorded under the "phase" key.
	Context map[string]any `json:"context,omitempty"`
}
