package session

import "github.com/ShayCichocki/hive/pkg/models"

// DetermineResumePhase infers the phase a workflow should re-enter after an
// interruption. It is a pure function of the checkpoint's task statuses and
// recorded context, evaluated in priority order:
//
//  1. any failed task       -> plan (re-plan before resuming)
//  2. any in-progress task  -> parallel_dispatch
//  3. all tasks completed   -> verify
//  4. otherwise             -> the phase recorded in context, defaulting to
//     understanding
func DetermineResumePhase(cp *models.Checkpoint) Phase {
	if len(cp.FailedTaskIDs) > 0 {
		return PhasePlan
	}

	for _, p := range cp.TaskProgress {
		if p.Status == models.ProgressInProgress {
			return PhaseParallelDispatch
		}
	}

	if len(cp.PendingTaskIDs) == 0 && len(cp.CompletedTaskIDs) > 0 {
		return PhaseVerify
	}

	if raw, ok := cp.Context["phase"]; ok {
		if s, ok := raw.(string); ok && Phase(s).Valid() {
			return Phase(s)
		}
	}
	return PhaseUnderstanding
}

// RecoveryContext carries what a resuming workflow needs to pick up where
// the checkpoint left off.
type RecoveryContext struct {
	// SessionID is the session being resumed.
	SessionID string
	// OriginalTask is the user request that started the session.
	OriginalTask string
	// ResumePhase is the inferred phase to re-enter.
	ResumePhase Phase
	// Design merges the checkpoint's design artifacts.
	Design map[string]any
	// EstimatedProgress is completed / (completed + pending) as a
	// percentage; 0 when nothing was tracked.
	EstimatedProgress float64
}

// designKeys are merged in order; later keys override earlier ones.
var designKeys = []string{"highDesign", "detailDesign", "deliverables"}

// BuildRecoveryContext assembles a RecoveryContext from a checkpoint. When
// existingDesign is non-nil it is used as-is instead of merging the
// checkpoint's design artifacts.
func BuildRecoveryContext(cp *models.Checkpoint, existingDesign map[string]any) *RecoveryContext {
	design := existingDesign
	if design == nil {
		design = make(map[string]any)
		for _, key := range designKeys {
			artifact, ok := cp.Context[key].(map[string]any)
			if !ok {
				continue
			}
			for k, v := range artifact {
				design[k] = v
			}
		}
	}

	completed := len(cp.CompletedTaskIDs)
	pending := len(cp.PendingTaskIDs)
	progress := 0.0
	if completed+pending > 0 {
		progress = float64(completed) / float64(completed+pending) * 100
	}

	return &RecoveryContext{
		SessionID:         cp.SessionID,
		OriginalTask:      cp.OriginalTask,
		ResumePhase:       DetermineResumePhase(cp),
		Design:            design,
		EstimatedProgress: progress,
	}
}
