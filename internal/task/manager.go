package task

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/corrinhale/taskforge/internal/errs"
	"github.com/pkg/errors"
)

// Manager owns every Task record and the single JSON file they're persisted
// to. All public methods are serialized under mu; persistence writes happen
// inside the lock, which bounds throughput but is ample for the target
// workload of at most tens of tasks per second.
type Manager struct {
	mu    sync.Mutex
	path  string
	tasks map[string]*Task
	log   *slog.Logger
}

// NewManager loads tasks from path if present. A missing file starts empty;
// a corrupt file is logged and also starts empty — it is not overwritten
// until the first successful mutation, so a corrupt file can still be
// recovered by hand before the next write lands.
func NewManager(path string) (*Manager, error) {
	m := &Manager{
		path:  path,
		tasks: make(map[string]*Task),
		log:   slog.Default().With("component", "task_manager"),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read tasks file %s", m.path)
	}
	var list []*Task
	if err := json.Unmarshal(data, &list); err != nil {
		m.log.Error("tasks file corrupt, starting empty", "path", m.path, "error", err)
		return nil
	}
	for _, t := range list {
		m.tasks[t.ID] = t
	}
	m.log.Info("loaded tasks", "count", len(m.tasks))
	return nil
}

// save serializes the full table and atomically replaces the target file:
// write to a temp file in the same directory, flush, then rename over it.
func (m *Manager) save() error {
	list := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Persist, err, "marshal tasks")
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.Persist, err, "prepare data directory")
	}

	tmp, err := os.CreateTemp(dir, ".tasks-*.json.tmp")
	if err != nil {
		return errs.Wrap(errs.Persist, err, "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Wrap(errs.Persist, err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Wrap(errs.Persist, err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.Persist, err, "close temp file")
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return errs.Wrap(errs.Persist, err, "rename into place")
	}
	return nil
}

// Create assigns a fresh id, status=pending, and persists the new task.
func (m *Manager) Create(title, description string, priority Priority) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := newTask(title, description, priority)
	m.tasks[t.ID] = t
	if err := m.save(); err != nil {
		delete(m.tasks, t.ID)
		return nil, err
	}
	m.log.Info("created task", "id", t.ID, "title", title)
	return t.clone(), nil
}

// Get returns a defensive copy of the task, or a NotFound error.
func (m *Manager) Get(id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "task "+id)
	}
	return t.clone(), nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Agent  string
	SortBy string // "priority" | "" (created_at desc)
}

// List returns tasks matching the filter, sorted per SortBy.
func (m *Manager) List(f ListFilter) []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Task
	for _, t := range m.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Agent != "" && t.AssignedTo != f.Agent {
			continue
		}
		out = append(out, t.clone())
	}

	if f.SortBy == "priority" {
		sort.Slice(out, func(i, j int) bool {
			ri, rj := rankOf(out[i].Priority), rankOf(out[j].Priority)
			if ri != rj {
				return ri < rj
			}
			return out[i].CreatedAt < out[j].CreatedAt
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	}
	return out
}

// isReadyLocked returns true iff every dependency of id is done. Callers
// must hold mu.
func (m *Manager) isReadyLocked(id string) bool {
	t, ok := m.tasks[id]
	if !ok {
		return false
	}
	for _, depID := range t.DependsOn {
		dep, ok := m.tasks[depID]
		if !ok || dep.Status != StatusDone {
			return false
		}
	}
	return true
}

// IsReady reports whether every dependency of id is in status=done.
func (m *Manager) IsReady(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isReadyLocked(id)
}

// PendingQueue returns pending, ready tasks ordered by priority then
// created_at ascending — the set a scheduler should drain from next.
func (m *Manager) PendingQueue() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Task
	for _, t := range m.tasks {
		if t.Status == StatusPending && m.isReadyLocked(t.ID) {
			out = append(out, t.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rankOf(out[i].Priority), rankOf(out[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// NextTask returns the head of PendingQueue, or nil if nothing is ready.
func (m *Manager) NextTask() *Task {
	q := m.PendingQueue()
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// Assign sets assigned_to and transitions pending -> assigned.
func (m *Manager) Assign(id, agent string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "task "+id)
	}
	if t.Status != StatusPending {
		return nil, errs.New(errs.InvalidTransition, string(t.Status)+" -> assigned")
	}
	prev := *t
	t.AssignedTo = agent
	t.Status = StatusAssigned
	t.touch()
	if err := m.save(); err != nil {
		*t = prev
		return nil, err
	}
	m.log.Info("assigned task", "id", id, "agent", agent)
	return t.clone(), nil
}

// validTransitions enumerates the lifecycle DAG edges UpdateStatus accepts.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusAssigned, StatusFailed},
	StatusAssigned: {StatusRunning, StatusFailed},
	StatusRunning:  {StatusDone, StatusFailed},
}

func isValidTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// UpdateStatus performs a direct, validated status transition.
func (m *Manager) UpdateStatus(id string, status Status) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "task "+id)
	}
	if !isValidTransition(t.Status, status) {
		return nil, errs.New(errs.InvalidTransition, string(t.Status)+" -> "+string(status))
	}
	prev := *t
	t.Status = status
	t.touch()
	if err := m.save(); err != nil {
		*t = prev
		return nil, err
	}
	return t.clone(), nil
}

// Complete transitions a task to done and stores its result.
func (m *Manager) Complete(id, result string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "task "+id)
	}
	prev := *t
	t.Status = StatusDone
	t.Result = result
	t.touch()
	if err := m.save(); err != nil {
		*t = prev
		return nil, err
	}
	m.log.Info("completed task", "id", id)
	return t.clone(), nil
}

// Fail transitions a task to failed and stores its error.
func (m *Manager) Fail(id, reason string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "task "+id)
	}
	prev := *t
	t.Status = StatusFailed
	t.Error = reason
	t.touch()
	if err := m.save(); err != nil {
		*t = prev
		return nil, err
	}
	m.log.Warn("failed task", "id", id, "error", reason)
	return t.clone(), nil
}

// Patch is a field-wise partial update; zero-value fields are left alone,
// matching the source's "null values ignored" update() semantics. Use the
// pointer fields to signal "set this" vs "leave it".
type Patch struct {
	Title       *string
	Description *string
	Priority    *Priority
	AssignedTo  *string
	Status      *Status
	Result      *string
	Error       *string
	TaskType    *string
	DependsOn   *[]string
}

// Update applies a field-wise patch and touches updated_at.
func (m *Manager) Update(id string, p Patch) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "task "+id)
	}
	prev := *t
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.AssignedTo != nil {
		t.AssignedTo = *p.AssignedTo
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Result != nil {
		t.Result = *p.Result
	}
	if p.Error != nil {
		t.Error = *p.Error
	}
	if p.TaskType != nil {
		t.TaskType = *p.TaskType
	}
	if p.DependsOn != nil {
		t.DependsOn = *p.DependsOn
	}
	t.touch()
	if err := m.save(); err != nil {
		*t = prev
		return nil, err
	}
	return t.clone(), nil
}

// Retry resets a terminal task to pending and clears result/error/
// assigned_to/task_type, per spec's lifecycle invariant.
func (m *Manager) Retry(id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "task "+id)
	}
	if t.Status != StatusDone && t.Status != StatusFailed {
		return nil, errs.New(errs.InvalidTransition, string(t.Status)+" -> pending (retry)")
	}
	prev := *t
	t.Status = StatusPending
	t.Result = ""
	t.Error = ""
	t.AssignedTo = ""
	t.TaskType = ""
	t.touch()
	if err := m.save(); err != nil {
		*t = prev
		return nil, err
	}
	m.log.Info("retried task", "id", id)
	return t.clone(), nil
}

// Cancel flips a non-terminal task to failed with a fixed error message; it
// does not touch the registry, so the assigned agent's status is left to the
// caller. A cancel on an already-terminal task is a no-op
// that returns the current state rather than an error, matching the "soft
// status flip" the spec describes for cancellation.
func (m *Manager) Cancel(id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "task "+id)
	}
	if t.Status == StatusDone || t.Status == StatusFailed {
		return t.clone(), nil
	}
	prev := *t
	t.Status = StatusFailed
	t.Error = "Cancelled by user"
	t.touch()
	if err := m.save(); err != nil {
		*t = prev
		return nil, err
	}
	m.log.Info("cancelled task", "id", id)
	return t.clone(), nil
}

// AddDependency makes taskID depend on dependsOnID. Both must already exist;
// the addition is rejected if it would introduce a cycle in the depends_on
// graph, leaving the graph untouched.
func (m *Manager) AddDependency(taskID, dependsOnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return errs.New(errs.NotFound, "task "+taskID)
	}
	if _, ok := m.tasks[dependsOnID]; !ok {
		return errs.New(errs.NotFound, "task "+dependsOnID)
	}
	for _, d := range t.DependsOn {
		if d == dependsOnID {
			return nil
		}
	}
	if m.wouldCycleLocked(taskID, dependsOnID) {
		return errs.New(errs.WouldCycle, taskID+" -> "+dependsOnID)
	}

	prev := append([]string(nil), t.DependsOn...)
	t.DependsOn = append(t.DependsOn, dependsOnID)
	t.touch()
	if err := m.save(); err != nil {
		t.DependsOn = prev
		return err
	}
	m.log.Info("added dependency", "task", taskID, "depends_on", dependsOnID)
	return nil
}

// wouldCycleLocked reports whether adding the edge taskID -> dependsOnID
// would create a cycle, by checking whether taskID is reachable from
// dependsOnID through the existing depends_on edges (a standard DFS
// reachability check, the same shape the DAG schedulers in this codebase
// use for their indegree bookkeeping).
func (m *Manager) wouldCycleLocked(taskID, dependsOnID string) bool {
	if taskID == dependsOnID {
		return true
	}
	visited := make(map[string]bool)
	var visit func(id string) bool
	visit = func(id string) bool {
		if id == taskID {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		t, ok := m.tasks[id]
		if !ok {
			return false
		}
		for _, dep := range t.DependsOn {
			if visit(dep) {
				return true
			}
		}
		return false
	}
	return visit(dependsOnID)
}

// GetBlocked returns tasks with at least one dependency not yet done.
func (m *Manager) GetBlocked() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Task
	for _, t := range m.tasks {
		if len(t.DependsOn) == 0 {
			continue
		}
		for _, depID := range t.DependsOn {
			dep, ok := m.tasks[depID]
			if !ok || dep.Status != StatusDone {
				out = append(out, t.clone())
				break
			}
		}
	}
	return out
}

// Delete removes a task permanently.
func (m *Manager) Delete(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return false, nil
	}
	delete(m.tasks, id)
	if err := m.save(); err != nil {
		m.tasks[id] = t
		return false, err
	}
	m.log.Info("deleted task", "id", id)
	return true, nil
}

// Stats returns a count of tasks per status.
func (m *Manager) Stats() map[Status]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Status]int)
	for _, t := range m.tasks {
		out[t.Status]++
	}
	return out
}

// FindRunningByAgent returns the first task in status=running assigned to
// the given agent, used by the codex bridge's timestamp-keyed result
// pickup (see internal/watcher) since codex result filenames cannot be
// disambiguated by task id.
func (m *Manager) FindRunningByAgent(agent string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Task
	for _, t := range m.tasks {
		if t.Status == StatusRunning && t.AssignedTo == agent {
			if best == nil || t.CreatedAt < best.CreatedAt {
				best = t
			}
		}
	}
	if best == nil {
		return nil
	}
	return best.clone()
}
