package state

import (
	"time"

	"github.com/ShayCichocki/hive/internal/session"
	"github.com/ShayCichocki/hive/internal/supervisor"
	"github.com/ShayCichocki/hive/pkg/models"
)

// CheckpointStore is the checkpoint persistence surface, including the
// engine's contract plus retention maintenance.
type CheckpointStore interface {
	session.CheckpointStore
	PurgeOldCheckpoints(olderThan time.Duration) (int64, error)
}

// HistoryStore is the supervisor event-log persistence surface.
type HistoryStore interface {
	AppendProcessEvent(ev models.ProcessEvent) error
	ListProcessEvents(agentID string) ([]models.ProcessEvent, error)
}

// Store is the full persistence surface backed by one database.
type Store interface {
	CheckpointStore
	HistoryStore
	Close() error
}

// Compile-time interface checks.
var (
	_ Store                   = (*DB)(nil)
	_ session.CheckpointStore = (*DB)(nil)
	_ supervisor.HistorySink  = (*DB)(nil)
)
