// Package audit implements the append-only, daily-rotated event log every
// Builder operation writes to, matching the fixed column layout of the
// orchestrator this package was modelled on.
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Log appends fixed-width lines to <dir>/YYYY-MM-DD.log.
type Log struct {
	mu  sync.Mutex
	dir string
	log *slog.Logger
}

// New prepares the logs directory (creating it if absent) and returns a Log
// ready to accept entries.
func New(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create audit log dir %s", dir)
	}
	return &Log{dir: dir, log: slog.Default().With("component", "audit")}, nil
}

// Entry is one recorded audit line.
type Entry struct {
	Action  string
	Agent   string
	TaskID  string
	Status  string
	Details string
}

func (e Entry) format(ts time.Time) string {
	agent := e.Agent
	if agent == "" {
		agent = "-"
	}
	taskID := e.TaskID
	if taskID == "" {
		taskID = "-"
	}
	status := e.Status
	if status == "" {
		status = "ok"
	}
	return fmt.Sprintf("%s | %-20s | %-20s | %-14s | %-8s | %s\n",
		ts.Format("2006-01-02 15:04:05"), e.Action, agent, taskID, status, e.Details)
}

// Write appends a single audit entry to today's log file.
func (l *Log) Write(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	path := filepath.Join(l.dir, now.Format("2006-01-02")+".log")
	line := e.format(now)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.log.Error("failed to open audit log", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		l.log.Error("failed to write audit log", "path", path, "error", err)
	}
	l.log.Debug("audit", "action", e.Action, "agent", e.Agent, "task_id", e.TaskID, "status", e.Status)
}

// ReadToday returns up to limit most-recent lines from today's log file.
func (l *Log) ReadToday(limit int) []string {
	path := filepath.Join(l.dir, time.Now().Format("2006-01-02")+".log")
	return tailFile(path, limit)
}

// ReadRecent walks log files newest-first, concatenating lines until limit
// is reached.
func (l *Log) ReadRecent(limit int) []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var out []string
	for _, name := range names {
		lines := tailFile(filepath.Join(l.dir, name), limit-len(out))
		out = append(out, lines...)
		if len(out) >= limit {
			break
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func tailFile(path string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if lines[0] == "" {
		return nil
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}
