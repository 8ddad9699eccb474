// Package session implements the resumable-session engine: checkpoint
// creation, latest-checkpoint lookup, resume-phase inference, and the
// orchestration-phase transition rules that decide when snapshots are safe.
package session

import "github.com/ShayCichocki/hive/internal/workflow"

// Phase is the coarse orchestration phase that governs when checkpoints are
// created. It is deliberately a separate vocabulary from workflow.State:
// the workflow state answers "what is the machine doing", the phase answers
// "is it safe to snapshot here".
type Phase string

const (
	PhaseUnderstanding    Phase = "understanding"
	PhaseHighDesign       Phase = "high_design"
	PhaseDetailDesign     Phase = "detail_design"
	PhaseDeliverables     Phase = "deliverables"
	PhasePlan             Phase = "plan"
	PhaseParallelDispatch Phase = "parallel_dispatch"
	PhaseBlockedReview    Phase = "blocked_review"
	PhaseVerify           Phase = "verify"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
	PhaseReplanning       Phase = "replanning"
)

// Valid returns true if the phase is a known value.
func (p Phase) Valid() bool {
	_, ok := phaseTransitions[p]
	return ok
}

// phaseTransitions lists the phases reachable from each phase. Completed and
// failed are terminal.
var phaseTransitions = map[Phase][]Phase{
	PhaseUnderstanding:    {PhaseHighDesign, PhaseReplanning},
	PhaseHighDesign:       {PhaseDetailDesign, PhaseReplanning},
	PhaseDetailDesign:     {PhaseDeliverables, PhaseReplanning},
	PhaseDeliverables:     {PhasePlan, PhaseReplanning},
	PhasePlan:             {PhaseParallelDispatch, PhaseReplanning},
	PhaseParallelDispatch: {PhaseBlockedReview, PhaseVerify, PhaseFailed},
	PhaseBlockedReview:    {PhaseParallelDispatch, PhaseReplanning, PhaseFailed},
	PhaseVerify:           {PhaseCompleted, PhaseReplanning, PhaseFailed},
	PhaseReplanning:       {PhaseUnderstanding, PhaseHighDesign},
	PhaseCompleted:        {},
	PhaseFailed:           {},
}

// IsValidPhaseTransition returns true for self-transitions and for any
// target listed in the transition table for from.
func IsValidPhaseTransition(from, to Phase) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkpointPhases is the fixed allow-list of phases at which checkpoints
// are taken. Checkpoints happen at decision boundaries, not mid-dispatch, so
// a resumed workflow never observes a half-dispatched batch; terminal and
// replanning phases have nothing worth resuming into.
var checkpointPhases = map[Phase]bool{
	PhaseUnderstanding: true,
	PhaseHighDesign:    true,
	PhaseDetailDesign:  true,
	PhaseDeliverables:  true,
	PhasePlan:          true,
	PhaseBlockedReview: true,
	PhaseVerify:        true,
}

// ShouldCheckpointAtPhase reports whether a checkpoint may be created at the
// given phase.
func ShouldCheckpointAtPhase(p Phase) bool {
	return checkpointPhases[p]
}

// PhaseForWorkflowState is the single documented translation between the
// workflow execution vocabulary and the orchestration-phase vocabulary. The
// two enums stay separate; this mapping is the only bridge.
func PhaseForWorkflowState(s workflow.State) Phase {
	switch s {
	case workflow.StateIdle, workflow.StateSemanticUnderstanding:
		return PhaseUnderstanding
	case workflow.StateRoutingDecision, workflow.StatePlanLoop:
		return PhasePlan
	case workflow.StateExecution:
		return PhaseParallelDispatch
	case workflow.StateReview:
		return PhaseVerify
	case workflow.StateWaitUserDecision, workflow.StatePaused:
		return PhaseBlockedReview
	case workflow.StateCompleted:
		return PhaseCompleted
	case workflow.StateFailed:
		return PhaseFailed
	case workflow.StateReplanning:
		return PhaseReplanning
	default:
		return PhaseUnderstanding
	}
}
