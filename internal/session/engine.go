package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

// CheckpointStore is the persistence contract the engine needs. The SQLite
// implementation lives in internal/state; tests use an in-memory store.
type CheckpointStore interface {
	// SaveCheckpoint durably appends a checkpoint record.
	SaveCheckpoint(cp *models.Checkpoint) error
	// ListCheckpoints returns all checkpoints for a session ordered by
	// ascending timestamp.
	ListCheckpoints(sessionID string) ([]*models.Checkpoint, error)
	// LatestCheckpoint returns the checkpoint with the greatest timestamp
	// for the session, or nil when the session has none.
	LatestCheckpoint(sessionID string) (*models.Checkpoint, error)
	// GetCheckpoint returns a specific checkpoint by ID, or nil.
	GetCheckpoint(checkpointID string) (*models.Checkpoint, error)
	// ListSessionIDs returns the distinct session IDs with checkpoints.
	ListSessionIDs() ([]string, error)
}

// Engine builds and loads checkpoints for resumable sessions. Reads are safe
// to call concurrently; writes are serialized per session so timestamp
// ordering stays meaningful for latest lookups.
type Engine struct {
	store CheckpointStore

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// NewEngine creates an engine backed by the given store.
func NewEngine(store CheckpointStore) *Engine {
	return &Engine{
		store:    store,
		sessions: make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the write lock for a session, creating it on first use.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		e.sessions[sessionID] = lock
	}
	return lock
}

// CreateCheckpoint snapshots the session and persists the result. The phase
// gate is the caller's job (ShouldCheckpointAtPhase); the engine only
// guarantees derivation and durable, ordered writes.
func (e *Engine) CreateCheckpoint(sessionID, originalTask string, progress []models.TaskProgress, agentStates map[string]string, context map[string]any) (*models.Checkpoint, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	cp := NewCheckpoint(sessionID, originalTask, progress, agentStates, context)
	if err := e.store.SaveCheckpoint(cp); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}
	return cp, nil
}

// FindLatestCheckpoint returns the most recent checkpoint for the session,
// or nil when none exists.
func (e *Engine) FindLatestCheckpoint(sessionID string) (*models.Checkpoint, error) {
	cp, err := e.store.LatestCheckpoint(sessionID)
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint: %w", err)
	}
	return cp, nil
}

// LoadCheckpoint returns a specific checkpoint by ID, or nil when unknown.
func (e *Engine) LoadCheckpoint(checkpointID string) (*models.Checkpoint, error) {
	cp, err := e.store.GetCheckpoint(checkpointID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

// ResumableSession summarizes one interrupted session found on startup.
type ResumableSession struct {
	// SessionID identifies the session.
	SessionID string
	// OriginalTask is the request that started it.
	OriginalTask string
	// CompletedTasks and TotalTasks summarize progress at the last snapshot.
	CompletedTasks int
	TotalTasks     int
	// ResumePhase is where the session should re-enter.
	ResumePhase Phase
	// LastCheckpointAt is the timestamp of the latest snapshot.
	LastCheckpointAt time.Time
}

// CheckForResumableSessions scans persisted sessions for ones whose latest
// checkpoint is not terminal and reports how far each one got. The most
// recently checkpointed session appears first.
func (e *Engine) CheckForResumableSessions() ([]ResumableSession, error) {
	ids, err := e.store.ListSessionIDs()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var resumable []ResumableSession
	for _, id := range ids {
		cp, err := e.store.LatestCheckpoint(id)
		if err != nil {
			return nil, fmt.Errorf("latest checkpoint for %s: %w", id, err)
		}
		if cp == nil {
			continue
		}

		// A session with every task completed and nothing failed has
		// nothing left to resume except verification; still worth listing.
		// Fully empty checkpoints are noise.
		if len(cp.TaskProgress) == 0 {
			continue
		}

		resumable = append(resumable, ResumableSession{
			SessionID:        id,
			OriginalTask:     cp.OriginalTask,
			CompletedTasks:   len(cp.CompletedTaskIDs),
			TotalTasks:       len(cp.TaskProgress),
			ResumePhase:      DetermineResumePhase(cp),
			LastCheckpointAt: cp.Timestamp,
		})
	}

	sort.Slice(resumable, func(i, j int) bool {
		return resumable[i].LastCheckpointAt.After(resumable[j].LastCheckpointAt)
	})
	return resumable, nil
}
