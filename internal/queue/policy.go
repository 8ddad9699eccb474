package queue

// Strategy names the queue ordering discipline.
type Strategy string

// StrategyFIFO is the only strategy the admission queue implements.
const StrategyFIFO Strategy = "fifo"

// Policy centralizes the concurrency knobs for a set of admission queues.
type Policy struct {
	// QueueStrategy is the ordering discipline.
	QueueStrategy Strategy
	// GlobalMaxConcurrency caps running instances across all classes.
	GlobalMaxConcurrency int
	// ClassMaxConcurrency caps running instances per agent class.
	ClassMaxConcurrency map[string]int
	// DegradeUtilization is the resource-utilization fraction above which
	// the global cap is reduced.
	DegradeUtilization float64
}

// DefaultPolicy returns the standard dispatch policy.
func DefaultPolicy() Policy {
	return Policy{
		QueueStrategy:        StrategyFIFO,
		GlobalMaxConcurrency: 4,
		ClassMaxConcurrency:  make(map[string]int),
		DegradeUtilization:   0.95,
	}
}

// SerialValidationPolicy returns the one-at-a-time validation configuration:
// a global cap of 1 and a cap of 1 for every listed agent class.
func SerialValidationPolicy(classIDs []string) Policy {
	caps := make(map[string]int, len(classIDs))
	for _, id := range classIDs {
		caps[id] = 1
	}
	return Policy{
		QueueStrategy:        StrategyFIFO,
		GlobalMaxConcurrency: 1,
		ClassMaxConcurrency:  caps,
		DegradeUtilization:   0.95,
	}
}

// MaxConcurrentAt returns the effective global cap at the given resource
// utilization. Above the degradation threshold the cap is halved, but it
// never drops below 1: a policy already at the floor holds there.
func (p Policy) MaxConcurrentAt(utilization float64) int {
	if utilization <= p.DegradeUtilization {
		return p.GlobalMaxConcurrency
	}
	reduced := p.GlobalMaxConcurrency / 2
	if reduced < 1 {
		reduced = 1
	}
	return reduced
}

// PauseDispatch reports whether new dispatches should be held at the given
// utilization. A policy already at the concurrency floor never pauses;
// admitting work one at a time cannot make pressure worse.
func (p Policy) PauseDispatch(utilization float64) bool {
	if utilization <= p.DegradeUtilization {
		return false
	}
	return p.GlobalMaxConcurrency > 1
}

// ClassCap returns the cap for an agent class, falling back to the global
// cap when the class has no entry.
func (p Policy) ClassCap(classID string) int {
	if cap, ok := p.ClassMaxConcurrency[classID]; ok && cap > 0 {
		return cap
	}
	return p.GlobalMaxConcurrency
}
