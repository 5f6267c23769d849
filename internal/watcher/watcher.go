// Package watcher turns filesystem events under the inbox and agents
// directories into task-completion and registry-rescan callbacks, without
// ever taking the TaskManager's lock from the filesystem notification
// goroutine itself.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

var resultFilePattern = regexp.MustCompile(`^RESULT_([0-9a-f]{12})_FROM_([A-Z0-9_]+)\.md$`)
var codexResultFilePattern = regexp.MustCompile(`^CODEX_RESULT_(\d{8}_\d{6})\.md$`)

// Event is one filesystem occurrence handed to the single consumer
// goroutine; kind distinguishes the two watched roots.
type Event struct {
	Kind string // "inbox" or "state"
	Path string
}

// Watcher owns the fsnotify.Watcher and publishes Events on a channel; it
// never calls into TaskManager/Registry itself. Processor.Run drains the channel on
// the caller's goroutine of choice, serializing all mutation there.
type Watcher struct {
	fsw      *fsnotify.Watcher
	inboxDir string
	agentDir string
	events   chan Event
	log      *slog.Logger

	closeOnce sync.Once
}

// New builds a Watcher over inboxDir (non-recursive) and agentDir
// (recursive, one watch per existing subdirectory plus the root so new
// agent directories are picked up too).
func New(inboxDir, agentDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		inboxDir: inboxDir,
		agentDir: agentDir,
		events:   make(chan Event, 256),
		log:      slog.Default().With("component", "watcher"),
	}

	if err := os.MkdirAll(inboxDir, 0o755); err == nil {
		if err := fsw.Add(inboxDir); err != nil {
			w.log.Warn("failed to watch inbox dir", "dir", inboxDir, "error", err)
		}
	}

	if entries, err := os.ReadDir(agentDir); err == nil {
		_ = fsw.Add(agentDir)
		for _, e := range entries {
			if e.IsDir() {
				_ = fsw.Add(filepath.Join(agentDir, e.Name()))
			}
		}
	} else {
		w.log.Warn("agents directory not found, state-change watching disabled", "dir", agentDir, "error", err)
	}

	go w.pump()
	return w, nil
}

// Events exposes the channel a single consumer should range over.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) pump() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				close(w.events)
				return
			}
			w.classify(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				continue
			}
			w.log.Error("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) classify(ev fsnotify.Event) {
	dir := filepath.Dir(ev.Name)
	base := filepath.Base(ev.Name)

	if dir == w.inboxDir && ev.Op&fsnotify.Create != 0 {
		if strings.HasSuffix(strings.ToLower(base), ".md") {
			w.events <- Event{Kind: "inbox", Path: ev.Name}
		}
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		// A freshly created agent subdirectory: start watching it too so
		// its STATE.log modifications are observed from here on.
		if dir == w.agentDir {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				_ = w.fsw.Add(ev.Name)
			}
			return
		}
	}

	if base == "STATE.log" && ev.Op&fsnotify.Write != 0 && strings.HasPrefix(dir, w.agentDir) {
		w.events <- Event{Kind: "state", Path: ev.Name}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}

// ParseResultFilename reports whether name matches
// RESULT_<taskId>_FROM_<AGENT>.md and extracts its parts.
func ParseResultFilename(name string) (taskID, agent string, ok bool) {
	m := resultFilePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// IsCodexResultFilename reports whether name matches
// CODEX_RESULT_<timestamp>.md.
func IsCodexResultFilename(name string) bool {
	return codexResultFilePattern.MatchString(name)
}
