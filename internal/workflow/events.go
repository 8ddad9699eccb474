package workflow

// Route is the routing decision produced by intent analysis.
type Route string

const (
	// RouteFullReplan sends the workflow back through the planning loop.
	RouteFullReplan Route = "full_replan"
	// RouteContinueExecution resumes execution of the existing plan.
	RouteContinueExecution Route = "continue_execution"
	// RouteNewTask asks the user to confirm starting new work.
	RouteNewTask Route = "new_task"

	// RouteMinorReplan and RouteControlAction are part of the broader event
	// vocabulary but are not wired into the transition table; triggering
	// them returns false until the routes are fully specified.
	RouteMinorReplan   Route = "minor_replan"
	RouteControlAction Route = "control_action"
)

// Event is a workflow trigger. Each event is a distinct type carrying only
// the fields its transition guard reads, rather than an open property bag.
type Event interface {
	// Name returns the event's wire name.
	Name() string
}

// UserInputReceived starts or resumes a workflow with new user input.
type UserInputReceived struct {
	Input string
}

func (UserInputReceived) Name() string { return "user_input_received" }

// IntentAnalyzed signals that semantic understanding has finished.
type IntentAnalyzed struct{}

func (IntentAnalyzed) Name() string { return "intent_analyzed" }

// RoutingDecided carries the route chosen by the routing layer; the route is
// the only payload field any workflow guard reads.
type RoutingDecided struct {
	Route Route
}

func (RoutingDecided) Name() string { return "routing_decided" }

// PlanCreated signals the planning loop produced an executable plan.
type PlanCreated struct{}

func (PlanCreated) Name() string { return "plan_created" }

// TaskCompleted signals an executing task finished and needs review.
type TaskCompleted struct {
	TaskID string
}

func (TaskCompleted) Name() string { return "task_completed" }

// ReviewPassed signals review accepted the completed work.
type ReviewPassed struct{}

func (ReviewPassed) Name() string { return "review_passed" }

// ReviewRejected signals review rejected the completed work.
type ReviewRejected struct{}

func (ReviewRejected) Name() string { return "review_rejected" }

// PauseRequested suspends the workflow from any state.
type PauseRequested struct{}

func (PauseRequested) Name() string { return "pause_requested" }
