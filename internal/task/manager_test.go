package task

import (
	"path/filepath"
	"testing"

	"github.com/corrinhale/taskforge/internal/errs"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, err)
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t)
	created, err := m.Create("write fib", "in python", PriorityMedium)
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)
	require.Len(t, created.ID, 12)

	got, err := m.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Title, got.Title)
}

func TestGetNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Get("nope")
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	m1, err := NewManager(path)
	require.NoError(t, err)
	created, err := m1.Create("persist me", "desc", PriorityHigh)
	require.NoError(t, err)

	m2, err := NewManager(path)
	require.NoError(t, err)
	got, err := m2.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Title, got.Title)
	require.Equal(t, PriorityHigh, got.Priority)
}

func TestPendingQueuePriorityOrder(t *testing.T) {
	m := newTestManager(t)
	low, _ := m.Create("low", "", PriorityLow)
	critical, _ := m.Create("critical", "", PriorityCritical)
	medium, _ := m.Create("medium", "", PriorityMedium)

	q := m.PendingQueue()
	require.Len(t, q, 3)
	require.Equal(t, critical.ID, q[0].ID)
	require.Equal(t, medium.ID, q[1].ID)
	require.Equal(t, low.ID, q[2].ID)
}

func TestPendingQueueExcludesUnready(t *testing.T) {
	m := newTestManager(t)
	blocker, _ := m.Create("blocker", "", PriorityMedium)
	blocked, _ := m.Create("blocked", "", PriorityMedium)
	require.NoError(t, m.AddDependency(blocked.ID, blocker.ID))

	q := m.PendingQueue()
	require.Len(t, q, 1)
	require.Equal(t, blocker.ID, q[0].ID)

	blockedList := m.GetBlocked()
	require.Len(t, blockedList, 1)
	require.Equal(t, blocked.ID, blockedList[0].ID)

	_, err := m.Assign(blocker.ID, "OLLAMA_WORKER")
	require.NoError(t, err)
	_, err = m.UpdateStatus(blocker.ID, StatusRunning)
	require.NoError(t, err)
	_, err = m.Complete(blocker.ID, "done")
	require.NoError(t, err)

	q = m.PendingQueue()
	require.Len(t, q, 1)
	require.Equal(t, blocked.ID, q[0].ID)
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	m := newTestManager(t)
	a, _ := m.Create("a", "", PriorityMedium)
	b, _ := m.Create("b", "", PriorityMedium)

	require.NoError(t, m.AddDependency(a.ID, b.ID))

	err := m.AddDependency(b.ID, a.ID)
	require.Error(t, err)
	require.Equal(t, errs.WouldCycle, errs.KindOf(err))

	gotA, _ := m.Get(a.ID)
	gotB, _ := m.Get(b.ID)
	require.Equal(t, []string{b.ID}, gotA.DependsOn)
	require.Empty(t, gotB.DependsOn)
}

func TestLifecycleTransitionsAndRetry(t *testing.T) {
	m := newTestManager(t)
	tsk, _ := m.Create("t", "", PriorityMedium)

	_, err := m.Assign(tsk.ID, "OLLAMA_WORKER")
	require.NoError(t, err)
	_, err = m.UpdateStatus(tsk.ID, StatusRunning)
	require.NoError(t, err)
	done, err := m.Complete(tsk.ID, "42")
	require.NoError(t, err)
	require.Equal(t, StatusDone, done.Status)
	require.Equal(t, "42", done.Result)

	// terminal -> terminal direct transition is rejected
	_, err = m.UpdateStatus(tsk.ID, StatusRunning)
	require.Error(t, err)
	require.Equal(t, errs.InvalidTransition, errs.KindOf(err))

	retried, err := m.Retry(tsk.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, retried.Status)
	require.Empty(t, retried.Result)
	require.Empty(t, retried.AssignedTo)
}

func TestCancelFreesTaskAndIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	tsk, _ := m.Create("t", "", PriorityMedium)
	_, err := m.Assign(tsk.ID, "CLAUDE_LUSTRO")
	require.NoError(t, err)
	_, err = m.UpdateStatus(tsk.ID, StatusRunning)
	require.NoError(t, err)

	cancelled, err := m.Cancel(tsk.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, cancelled.Status)
	require.Equal(t, "Cancelled by user", cancelled.Error)

	// cancelling an already-terminal task is a no-op, not an error
	again, err := m.Cancel(tsk.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, again.Status)
}

func TestDeleteUnknownReturnsFalse(t *testing.T) {
	m := newTestManager(t)
	ok, err := m.Delete("nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStats(t *testing.T) {
	m := newTestManager(t)
	m.Create("a", "", PriorityMedium)
	b, _ := m.Create("b", "", PriorityMedium)
	m.Assign(b.ID, "x")

	stats := m.Stats()
	require.Equal(t, 1, stats[StatusPending])
	require.Equal(t, 1, stats[StatusAssigned])
}
