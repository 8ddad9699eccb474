package supervisor

import (
	"sync"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

// HistorySink receives the supervisor's append-only event log. The SQLite
// implementation lives in internal/state; MemoryHistory serves tests and
// ephemeral supervisors.
type HistorySink interface {
	// AppendProcessEvent durably appends one event.
	AppendProcessEvent(ev models.ProcessEvent) error
	// ListProcessEvents returns events in append order, filtered by agent
	// ID; an empty ID returns everything.
	ListProcessEvents(agentID string) ([]models.ProcessEvent, error)
}

// MemoryHistory is an in-memory HistorySink.
type MemoryHistory struct {
	mu     sync.Mutex
	events []models.ProcessEvent
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// AppendProcessEvent appends one event.
func (h *MemoryHistory) AppendProcessEvent(ev models.ProcessEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.events = append(h.events, ev)
	return nil
}

// ListProcessEvents returns matching events in append order.
func (h *MemoryHistory) ListProcessEvents(agentID string) ([]models.ProcessEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []models.ProcessEvent
	for _, ev := range h.events {
		if agentID == "" || ev.AgentID == agentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Verify MemoryHistory implements HistorySink at compile time.
var _ HistorySink = (*MemoryHistory)(nil)
