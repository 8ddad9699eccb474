package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/hive/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func testCheckpoint(sessionID string, ts time.Time) *models.Checkpoint {
	return &models.Checkpoint{
		CheckpointID: sessionID + "-" + ts.Format(time.RFC3339Nano),
		SessionID:    sessionID,
		Timestamp:    ts,
		OriginalTask: "build the auth service",
		TaskProgress: []models.TaskProgress{
			{TaskID: "t1", Description: "scaffold", Status: models.ProgressCompleted},
			{TaskID: "t2", Description: "handlers", Status: models.ProgressInProgress},
		},
		CompletedTaskIDs: []string{"t1"},
		PendingTaskIDs:   []string{"t2"},
		AgentStates:      map[string]string{"builder": "running"},
		Context:          map[string]any{"phase": "parallel_dispatch"},
	}
}

func TestDB_MigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestDB_CheckpointRoundtrip(t *testing.T) {
	db := openTestDB(t)

	want := testCheckpoint("sess-1", time.Now())
	if err := db.SaveCheckpoint(want); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}

	got, err := db.GetCheckpoint(want.CheckpointID)
	if err != nil {
		t.Fatalf("GetCheckpoint() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetCheckpoint() = nil, want checkpoint")
	}
	if got.SessionID != want.SessionID {
		t.Errorf("SessionID = %q, want %q", got.SessionID, want.SessionID)
	}
	if got.OriginalTask != want.OriginalTask {
		t.Errorf("OriginalTask = %q, want %q", got.OriginalTask, want.OriginalTask)
	}
	if len(got.TaskProgress) != 2 {
		t.Fatalf("TaskProgress len = %d, want 2", len(got.TaskProgress))
	}
	if got.TaskProgress[1].Status != models.ProgressInProgress {
		t.Errorf("TaskProgress[1].Status = %q, want %q", got.TaskProgress[1].Status, models.ProgressInProgress)
	}
	if got.AgentStates["builder"] != "running" {
		t.Errorf("AgentStates[builder] = %q, want running", got.AgentStates["builder"])
	}
	if got.Context["phase"] != "parallel_dispatch" {
		t.Errorf("Context[phase] = %v, want parallel_dispatch", got.Context["phase"])
	}
}

func TestDB_GetCheckpoint_Unknown(t *testing.T) {
	db := openTestDB(t)

	got, err := db.GetCheckpoint("nope")
	if err != nil {
		t.Fatalf("GetCheckpoint() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetCheckpoint(unknown) = %+v, want nil", got)
	}
}

func TestDB_LatestCheckpoint(t *testing.T) {
	db := openTestDB(t)

	base := time.Now()
	for i := 0; i < 3; i++ {
		cp := testCheckpoint("sess-1", base.Add(time.Duration(i)*time.Millisecond))
		if err := db.SaveCheckpoint(cp); err != nil {
			t.Fatalf("SaveCheckpoint() error = %v", err)
		}
	}

	latest, err := db.LatestCheckpoint("sess-1")
	if err != nil {
		t.Fatalf("LatestCheckpoint() error = %v", err)
	}
	if latest == nil {
		t.Fatal("LatestCheckpoint() = nil")
	}
	wantTS := base.Add(2 * time.Millisecond)
	if !latest.Timestamp.Equal(wantTS) {
		t.Errorf("latest Timestamp = %v, want %v", latest.Timestamp, wantTS)
	}

	none, err := db.LatestCheckpoint("sess-other")
	if err != nil {
		t.Fatalf("LatestCheckpoint(other) error = %v", err)
	}
	if none != nil {
		t.Errorf("LatestCheckpoint(unknown session) = %+v, want nil", none)
	}
}

func TestDB_LatestCheckpoint_WholeSecondTimestamp(t *testing.T) {
	db := openTestDB(t)

	// A timestamp with zero nanoseconds must still sort before a later one
	// in the same second. A variable-width text format would serialize the
	// first without a fractional part and order it last.
	early := time.Now().Truncate(time.Second)
	late := early.Add(500 * time.Millisecond)
	if err := db.SaveCheckpoint(testCheckpoint("sess-1", early)); err != nil {
		t.Fatalf("SaveCheckpoint(early) error = %v", err)
	}
	if err := db.SaveCheckpoint(testCheckpoint("sess-1", late)); err != nil {
		t.Fatalf("SaveCheckpoint(late) error = %v", err)
	}

	latest, err := db.LatestCheckpoint("sess-1")
	if err != nil {
		t.Fatalf("LatestCheckpoint() error = %v", err)
	}
	if latest == nil {
		t.Fatal("LatestCheckpoint() = nil")
	}
	if !latest.Timestamp.Equal(late) {
		t.Errorf("latest Timestamp = %v, want %v", latest.Timestamp, late)
	}

	list, err := db.ListCheckpoints("sess-1")
	if err != nil {
		t.Fatalf("ListCheckpoints() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d checkpoints, want 2", len(list))
	}
	if !list[0].Timestamp.Equal(early) || !list[1].Timestamp.Equal(late) {
		t.Errorf("order = [%v %v], want [%v %v]",
			list[0].Timestamp, list[1].Timestamp, early, late)
	}
}

func TestDB_ListCheckpoints_Ascending(t *testing.T) {
	db := openTestDB(t)

	base := time.Now()
	// Insert out of order; listing must come back in timestamp order.
	for _, offset := range []time.Duration{2 * time.Millisecond, 0, time.Millisecond} {
		if err := db.SaveCheckpoint(testCheckpoint("sess-1", base.Add(offset))); err != nil {
			t.Fatalf("SaveCheckpoint() error = %v", err)
		}
	}

	list, err := db.ListCheckpoints("sess-1")
	if err != nil {
		t.Fatalf("ListCheckpoints() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d checkpoints, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].Timestamp.Before(list[i-1].Timestamp) {
			t.Errorf("checkpoints out of order at %d: %v before %v", i, list[i].Timestamp, list[i-1].Timestamp)
		}
	}
}

func TestDB_ListSessionIDs(t *testing.T) {
	db := openTestDB(t)

	now := time.Now()
	db.SaveCheckpoint(testCheckpoint("sess-a", now))
	db.SaveCheckpoint(testCheckpoint("sess-a", now.Add(time.Millisecond)))
	db.SaveCheckpoint(testCheckpoint("sess-b", now))

	ids, err := db.ListSessionIDs()
	if err != nil {
		t.Fatalf("ListSessionIDs() error = %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d session ids %v, want 2", len(ids), ids)
	}
	if ids[0] != "sess-a" || ids[1] != "sess-b" {
		t.Errorf("session ids = %v, want [sess-a sess-b]", ids)
	}
}

func TestDB_PurgeOldCheckpoints(t *testing.T) {
	db := openTestDB(t)

	now := time.Now()
	db.SaveCheckpoint(testCheckpoint("sess-old", now.Add(-48*time.Hour)))
	db.SaveCheckpoint(testCheckpoint("sess-new", now))

	deleted, err := db.PurgeOldCheckpoints(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldCheckpoints() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	ids, _ := db.ListSessionIDs()
	if len(ids) != 1 || ids[0] != "sess-new" {
		t.Errorf("remaining sessions = %v, want [sess-new]", ids)
	}
}

func TestDB_ProcessHistory(t *testing.T) {
	db := openTestDB(t)

	events := []models.ProcessEvent{
		{AgentID: "builder", Event: models.ProcessEventRegister},
		{AgentID: "builder", Event: models.ProcessEventStart},
		{AgentID: "reviewer", Event: models.ProcessEventRegister},
		{AgentID: "builder", Event: models.ProcessEventStop, Detail: "shutdown"},
	}
	for _, ev := range events {
		if err := db.AppendProcessEvent(ev); err != nil {
			t.Fatalf("AppendProcessEvent() error = %v", err)
		}
	}

	builder, err := db.ListProcessEvents("builder")
	if err != nil {
		t.Fatalf("ListProcessEvents(builder) error = %v", err)
	}
	if len(builder) != 3 {
		t.Fatalf("builder events = %d, want 3", len(builder))
	}
	wantOrder := []models.ProcessEventType{
		models.ProcessEventRegister,
		models.ProcessEventStart,
		models.ProcessEventStop,
	}
	for i, want := range wantOrder {
		if builder[i].Event != want {
			t.Errorf("builder[%d].Event = %q, want %q", i, builder[i].Event, want)
		}
	}
	if builder[2].Detail != "shutdown" {
		t.Errorf("Detail = %q, want shutdown", builder[2].Detail)
	}
	if builder[0].Timestamp.IsZero() {
		t.Error("zero timestamp should be filled at append time")
	}

	all, err := db.ListProcessEvents("")
	if err != nil {
		t.Fatalf("ListProcessEvents(all) error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all events = %d, want 4", len(all))
	}
}
