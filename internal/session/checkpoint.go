package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/hive/pkg/models"
)

// NewCheckpoint builds an immutable checkpoint for a session. The completed,
// failed, and pending ID partitions are derived here by partitioning
// taskProgress on its status field; any status other than completed or
// failed counts as pending.
func NewCheckpoint(sessionID, originalTask string, progress []models.TaskProgress, agentStates map[string]string, context map[string]any) *models.Checkpoint {
	cp := &models.Checkpoint{
		CheckpointID: uuid.New().String(),
		SessionID:    sessionID,
		Timestamp:    time.Now(),
		OriginalTask: originalTask,
		TaskProgress: make([]models.TaskProgress, len(progress)),
		AgentStates:  make(map[string]string, len(agentStates)),
		Context:      make(map[string]any, len(context)),
	}

	// Copy inputs so later caller mutations cannot reach into the snapshot.
	copy(cp.TaskProgress, progress)
	for k, v := range agentStates {
		cp.AgentStates[k] = v
	}
	for k, v := range context {
		cp.Context[k] = v
	}

	for _, p := range cp.TaskProgress {
		switch p.Status {
		case models.ProgressCompleted:
			cp.CompletedTaskIDs = append(cp.CompletedTaskIDs, p.TaskID)
		case models.ProgressFailed:
			cp.FailedTaskIDs = append(cp.FailedTaskIDs, p.TaskID)
		default:
			cp.PendingTaskIDs = append(cp.PendingTaskIDs, p.TaskID)
		}
	}

	return cp
}
