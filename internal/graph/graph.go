// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/hive/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of task dependencies. Tasks are
// nodes, edges are "blocked by" relationships. The graph decides when a
// task's dependencies are satisfied; the task state machine records it.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of tasks and fills in
// each task's Dependents as the reverse edges. Returns an error if a cycle is
// detected or a dependency references an unknown task.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d tasks", len(tasks))

	for _, task := range tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
		task.Dependents = nil
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			dep, exists := g.nodes[depID]
			if !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
			dep.Dependents = append(dep.Dependents, task.ID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	g.debugLog("[graph.Build] graph built with %d nodes", len(g.nodes))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked runs a depth-first search with coloring to find back edges.
// Callers hold the lock.
func (g *DependencyGraph) hasCycleLocked() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns task IDs ordered so every dependency precedes the
// tasks that depend on it. Returns an error if the graph contains a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for id := range g.nodes {
		visit(id)
	}
	return result, nil
}

// GetReady returns task IDs whose dependencies are all satisfied and that are
// not yet done. These tasks can run in parallel.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id := range g.nodes {
		if g.eligibleLocked(id) {
			ready = append(ready, id)
		}
	}

	g.debugLog("[graph.GetReady] %d ready tasks: %v", len(ready), ready)
	return ready
}

// ReleaseReady applies the dependencies-satisfied event to every eligible
// task still in the created state, moving it to ready. It returns the tasks
// it released. Tasks already past created are left alone.
func (g *DependencyGraph) ReleaseReady() []*models.Task {
	g.mu.Lock()
	defer g.mu.Unlock()

	var released []*models.Task
	for id, task := range g.nodes {
		if task.Status != models.TaskCreated || !g.eligibleLocked(id) {
			continue
		}
		if task.Apply(models.TaskEventDepsSatisfied) {
			g.debugLog("[graph.ReleaseReady] task %s is ready", id)
			released = append(released, task)
		}
	}
	return released
}

// eligibleLocked reports whether the task is not done and all of its
// dependencies are complete. Callers hold the lock.
func (g *DependencyGraph) eligibleLocked(id string) bool {
	task := g.nodes[id]
	if g.completed[id] || task.Status == models.TaskDone {
		return false
	}

	for _, depID := range g.edges[id] {
		if g.completed[depID] {
			continue
		}
		dep, exists := g.nodes[depID]
		if !exists || dep.Status != models.TaskDone {
			return false
		}
	}
	return true
}

// MarkComplete marks a task as completed in the graph. This affects
// subsequent calls to GetReady and ReleaseReady.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.MarkComplete] task %s complete", taskID)
	g.completed[taskID] = true
}

// GetTask returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of tasks that the given task depends on.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[taskID]
}

// GetDependents returns the IDs of tasks that depend on the given task.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// GetCompletedIDs returns the IDs of all tasks marked as completed.
func (g *DependencyGraph) GetCompletedIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for id, done := range g.completed {
		if done {
			ids = append(ids, id)
		}
	}
	return ids
}
