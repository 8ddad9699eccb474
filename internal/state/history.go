package state

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

// AppendProcessEvent durably appends one supervisor lifecycle event.
func (db *DB) AppendProcessEvent(ev models.ProcessEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO process_history (agent_id, event, created_at, detail)
		VALUES (?, ?, ?, ?)
	`, ev.AgentID, string(ev.Event), formatTime(ts), ev.Detail)
	if err != nil {
		return fmt.Errorf("insert process event: %w", err)
	}
	return nil
}

// ListProcessEvents returns events in append order, filtered by agent ID.
// An empty ID returns everything.
func (db *DB) ListProcessEvents(agentID string) ([]models.ProcessEvent, error) {
	query := `SELECT agent_id, event, created_at, detail FROM process_history ORDER BY seq ASC`
	args := []any{}
	if agentID != "" {
		query = `SELECT agent_id, event, created_at, detail FROM process_history WHERE agent_id = ? ORDER BY seq ASC`
		args = append(args, agentID)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list process events: %w", err)
	}
	defer rows.Close()

	var out []models.ProcessEvent
	for rows.Next() {
		var ev models.ProcessEvent
		var event, createdAt string
		if err := rows.Scan(&ev.AgentID, &event, &createdAt, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan process event: %w", err)
		}
		ev.Event = models.ProcessEventType(event)
		ts, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		ev.Timestamp = ts
		out = append(out, ev)
	}
	return out, rows.Err()
}
