package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/corrinhale/taskforge/internal/audit"
	"github.com/corrinhale/taskforge/internal/bridge"
	"github.com/corrinhale/taskforge/internal/feed"
	"github.com/corrinhale/taskforge/internal/registry"
	"github.com/corrinhale/taskforge/internal/task"
)

// Processor is the single consumer of a Watcher's event channel: it is the
// only thing allowed to call into TaskManager/Registry on behalf of a
// filesystem event, keeping every mutation on one serialized path as the
// original design requires.
type Processor struct {
	inboxDir string
	tasks    *task.Manager
	agents   *registry.Registry
	audit    *audit.Log
	feed     *feed.Feed
	codex    *bridge.CodexBridge
	log      *slog.Logger
}

// NewProcessor wires a Processor against the live components. codex may be
// nil if the Codex bridge is disabled, in which case a CODEX_RESULT_*.md file
// is read directly and completes the matching running CODEX task.
func NewProcessor(inboxDir string, tasks *task.Manager, agents *registry.Registry, al *audit.Log, lf *feed.Feed, codex *bridge.CodexBridge) *Processor {
	return &Processor{
		inboxDir: inboxDir,
		tasks:    tasks,
		agents:   agents,
		audit:    al,
		feed:     lf,
		codex:    codex,
		log:      slog.Default().With("component", "watcher.processor"),
	}
}

// Run drains events until the channel is closed. Call it from its own
// goroutine; it is the sole writer into tasks/agents on behalf of the
// filesystem.
func (p *Processor) Run(events <-chan Event) {
	for ev := range events {
		switch ev.Kind {
		case "inbox":
			p.handleInbox(ev.Path)
		case "state":
			p.handleStateChange(ev.Path)
		}
	}
}

func (p *Processor) handleInbox(path string) {
	name := filepath.Base(path)

	if taskID, agent, ok := ParseResultFilename(name); ok {
		p.completeFromResultFile(taskID, agent, path)
		return
	}

	if IsCodexResultFilename(name) {
		p.completeFromCodexResultFile(path)
		return
	}

	p.audit.Write(audit.Entry{Action: "inbox_file", Details: name})
}

func (p *Processor) completeFromResultFile(taskID, agent, path string) {
	t, err := p.tasks.Get(taskID)
	if err != nil || t.Status != task.StatusRunning {
		p.audit.Write(audit.Entry{Action: "inbox_file", TaskID: taskID, Details: "result for unknown or non-running task: " + filepath.Base(path)})
		p.archiveOrphan(path)
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		p.log.Error("failed to read result file", "path", path, "error", err)
		return
	}

	if _, err := p.tasks.Complete(taskID, strings.ToValidUTF8(string(content), "")); err != nil {
		p.log.Error("failed to complete task from result file", "task_id", taskID, "error", err)
		return
	}
	p.agents.UpdateStatus(registryAgentName(agent), registry.StatusIdle, "")
	p.audit.Write(audit.Entry{Action: "task_complete", Agent: agent, TaskID: taskID, Status: "done"})
	p.feed.Broadcast("task_complete", map[string]any{"id": taskID, "agent": agent})

	p.archiveResult(taskID, agent, path)
}

// registryAgentName maps the short agent tag used in TASK_*/RESULT_*
// filenames (CLAUDE, GEMINI) to the full registry directory name
// (CLAUDE_LUSTRO, GEMINI_ARCHITECT); unrecognised tags (e.g. CODEX, which
// already matches its registry name) pass through unchanged.
func registryAgentName(fileTag string) string {
	switch fileTag {
	case "CLAUDE":
		return "CLAUDE_LUSTRO"
	case "GEMINI":
		return "GEMINI_ARCHITECT"
	default:
		return fileTag
	}
}

func (p *Processor) completeFromCodexResultFile(path string) {
	t := p.tasks.FindRunningByAgent("CODEX")
	if t == nil {
		p.audit.Write(audit.Entry{Action: "inbox_file", Details: "codex result with no running codex task: " + filepath.Base(path)})
		p.archiveOrphan(path)
		return
	}

	content, err := p.claimCodexResult(t.ID, path)
	if err != nil {
		p.log.Error("failed to read codex result file", "path", path, "error", err)
		return
	}

	if _, err := p.tasks.Complete(t.ID, strings.ToValidUTF8(content, "")); err != nil {
		p.log.Error("failed to complete task from codex result file", "task_id", t.ID, "error", err)
		return
	}
	p.agents.UpdateStatus("CODEX", registry.StatusIdle, "")
	p.audit.Write(audit.Entry{Action: "task_complete", Agent: "CODEX", TaskID: t.ID, Status: "done"})
	p.feed.Broadcast("task_complete", map[string]any{"id": t.ID, "agent": "CODEX"})

	p.archiveResult(t.ID, "CODEX", path)
}

// claimCodexResult delegates to the Codex bridge's own claimed-file
// bookkeeping when one is wired in, so a result file is never handed out
// twice to both the watcher and a concurrent API-level poll of
// CodexBridge.CheckResult. With no bridge wired (tests), it falls back to
// reading the event's file directly.
func (p *Processor) claimCodexResult(taskID, path string) (string, error) {
	if p.codex == nil {
		content, err := os.ReadFile(path)
		return string(content), err
	}
	res, err := p.codex.CheckResult(context.Background(), bridge.Task{ID: taskID})
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", fmt.Errorf("codex result file %s was already claimed", filepath.Base(path))
	}
	return res.Response, nil
}

func (p *Processor) handleStateChange(path string) {
	agent := filepath.Base(filepath.Dir(path))
	p.agents.Scan()
	p.audit.Write(audit.Entry{Action: "state_change", Agent: agent})
}

// archiveResult moves the completed TASK_*/RESULT_* pair for taskID into a
// DONE/ subdirectory of the inbox, creating it if absent.
func (p *Processor) archiveResult(taskID, agent string, resultPath string) {
	doneDir := filepath.Join(p.inboxDir, "DONE")
	if err := os.MkdirAll(doneDir, 0o755); err != nil {
		p.log.Error("failed to create DONE dir", "error", err)
		return
	}

	p.moveIfExists(resultPath, filepath.Join(doneDir, filepath.Base(resultPath)))

	taskFile := "TASK_" + taskID + "_FOR_" + agent + ".md"
	src := filepath.Join(p.inboxDir, taskFile)
	p.moveIfExists(src, filepath.Join(doneDir, taskFile))
}

// archiveOrphan moves a late or unmatched result file into
// DONE/ORPHANED/ instead of leaving it in the inbox forever, a
// supplement the original design never needed since it never matched
// result files to tasks in the first place.
func (p *Processor) archiveOrphan(path string) {
	orphanDir := filepath.Join(p.inboxDir, "DONE", "ORPHANED")
	if err := os.MkdirAll(orphanDir, 0o755); err != nil {
		p.log.Error("failed to create ORPHANED dir", "error", err)
		return
	}
	p.moveIfExists(path, filepath.Join(orphanDir, filepath.Base(path)))
}

func (p *Processor) moveIfExists(src, dst string) {
	if _, err := os.Stat(src); err != nil {
		return
	}
	if err := os.Rename(src, dst); err != nil {
		p.log.Error("failed to archive file", "src", src, "dst", dst, "error", err)
	}
}
