package graph

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/hive/pkg/models"
)

func task(id string, deps ...string) *models.Task {
	return &models.Task{
		ID:        id,
		Status:    models.TaskCreated,
		DependsOn: deps,
	}
}

func TestBuild_UnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{task("a", "ghost")})
	if err == nil {
		t.Fatal("Build() error = nil, want error for unknown dependency")
	}
}

func TestBuild_CycleDetected(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		task("a", "b"),
		task("b", "c"),
		task("c", "a"),
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("Build() error = %v, want ErrCycleDetected", err)
	}
}

func TestBuild_PopulatesDependents(t *testing.T) {
	g := New()
	a, b, c := task("a"), task("b", "a"), task("c", "a")
	if err := g.Build([]*models.Task{a, b, c}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(a.Dependents) != 2 {
		t.Errorf("a.Dependents = %v, want two entries", a.Dependents)
	}
	deps := g.GetDependents("a")
	if len(deps) != 2 {
		t.Errorf("GetDependents(a) = %v, want two entries", deps)
	}
}

func TestTopologicalSort(t *testing.T) {
	g := New()
	tasks := []*models.Task{
		task("deploy", "test"),
		task("test", "build"),
		task("build"),
	}
	if err := g.Build(tasks); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["build"] > pos["test"] || pos["test"] > pos["deploy"] {
		t.Errorf("order %v violates dependencies", order)
	}
}

func TestGetReady_RespectsDependencies(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{
		task("a"),
		task("b"),
		task("c", "a", "b"),
	}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	ready := g.GetReady()
	if len(ready) != 2 {
		t.Fatalf("GetReady() = %v, want a and b", ready)
	}
	for _, id := range ready {
		if id == "c" {
			t.Error("c ready before its dependencies completed")
		}
	}

	g.MarkComplete("a")
	g.MarkComplete("b")
	ready = g.GetReady()
	if len(ready) != 1 || ready[0] != "c" {
		t.Errorf("GetReady() after completions = %v, want [c]", ready)
	}
}

func TestReleaseReady_MovesCreatedTasksToReady(t *testing.T) {
	g := New()
	a, b := task("a"), task("b", "a")
	if err := g.Build([]*models.Task{a, b}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	released := g.ReleaseReady()
	if len(released) != 1 || released[0].ID != "a" {
		t.Fatalf("ReleaseReady() = %v, want [a]", released)
	}
	if a.Status != models.TaskReady {
		t.Errorf("a status = %q, want %q", a.Status, models.TaskReady)
	}
	if b.Status != models.TaskCreated {
		t.Errorf("b status = %q, want %q", b.Status, models.TaskCreated)
	}

	// Releasing again is idempotent: a already left created.
	if again := g.ReleaseReady(); len(again) != 0 {
		t.Errorf("second ReleaseReady() = %v, want empty", again)
	}

	g.MarkComplete("a")
	released = g.ReleaseReady()
	if len(released) != 1 || released[0].ID != "b" {
		t.Errorf("ReleaseReady() after a completes = %v, want [b]", released)
	}
}

func TestMarkComplete_TracksIDs(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a"), task("b")}); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	g.MarkComplete("a")
	ids := g.GetCompletedIDs()
	if len(ids) != 1 || ids[0] != "a" {
		t.Errorf("GetCompletedIDs() = %v, want [a]", ids)
	}
	if g.Size() != 2 {
		t.Errorf("Size() = %d, want 2", g.Size())
	}
	if g.GetTask("b") == nil {
		t.Error("GetTask(b) = nil")
	}
}
