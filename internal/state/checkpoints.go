package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

// SaveCheckpoint durably appends a checkpoint record. The full checkpoint is
// stored as a JSON payload; session and timestamp columns exist for indexing.
func (db *DB) SaveCheckpoint(cp *models.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO checkpoints (id, session_id, created_at, payload)
		VALUES (?, ?, ?, ?)
	`, cp.CheckpointID, cp.SessionID, formatTime(cp.Timestamp), string(payload))
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns all checkpoints for a session in ascending
// timestamp order.
func (db *DB) ListCheckpoints(sessionID string) ([]*models.Checkpoint, error) {
	rows, err := db.Query(`
		SELECT payload FROM checkpoints
		WHERE session_id = ?
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*models.Checkpoint
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp, err := unmarshalCheckpoint(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// LatestCheckpoint returns the checkpoint with the greatest timestamp for the
// session, or nil when the session has none.
func (db *DB) LatestCheckpoint(sessionID string) (*models.Checkpoint, error) {
	var payload string
	err := db.QueryRow(`
		SELECT payload FROM checkpoints
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint: %w", err)
	}
	return unmarshalCheckpoint(payload)
}

// GetCheckpoint returns a specific checkpoint by ID, or nil when unknown.
func (db *DB) GetCheckpoint(checkpointID string) (*models.Checkpoint, error) {
	var payload string
	err := db.QueryRow(`
		SELECT payload FROM checkpoints WHERE id = ?
	`, checkpointID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return unmarshalCheckpoint(payload)
}

// ListSessionIDs returns the distinct session IDs that have checkpoints.
func (db *DB) ListSessionIDs() ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT session_id FROM checkpoints ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PurgeOldCheckpoints deletes checkpoints older than the specified duration.
// Returns the number of checkpoints deleted.
func (db *DB) PurgeOldCheckpoints(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(`
		DELETE FROM checkpoints WHERE created_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old checkpoints: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

func unmarshalCheckpoint(payload string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}
