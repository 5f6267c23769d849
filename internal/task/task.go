// Package task implements the Task model and the TaskManager that owns its
// persisted queue, dependency graph, and lifecycle transitions.
package task

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is a node in the task lifecycle DAG: pending -> assigned -> running
// -> {done, failed}; done and failed are terminal except for an explicit
// retry, which resets a task to pending.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAssigned Status = "assigned"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

// Priority orders pending work; critical drains first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// priorityRank gives the total order critical < high < medium < low; an
// unrecognised priority sorts last.
var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

func rankOf(p Priority) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return 99
}

// Task is a unit of work, persisted in a JSON document that is a bare
// top-level array of Task records. Fields tagged omitempty are left out of
// a record while they are empty.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	AssignedTo  string   `json:"assigned_to,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	Result      string   `json:"result,omitempty"`
	Error       string   `json:"error,omitempty"`
	TaskType    string   `json:"task_type,omitempty"`
	DependsOn   []string `json:"depends_on"`
}

func newID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// newTask builds a fresh pending task with a new id and matching
// created_at/updated_at timestamps.
func newTask(title, description string, priority Priority) *Task {
	now := nowISO()
	if priority == "" {
		priority = PriorityMedium
	}
	return &Task{
		ID:          newID(),
		Title:       title,
		Description: description,
		Status:      StatusPending,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
		DependsOn:   []string{},
	}
}

// clone returns a defensive copy so callers can't mutate manager-owned state
// through a returned pointer.
func (t *Task) clone() *Task {
	cp := *t
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	return &cp
}

func (t *Task) touch() {
	t.UpdatedAt = nowISO()
}
