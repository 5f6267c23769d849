package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// fileDropBridge is the shared shape behind the Claude and Gemini bridges:
// both communicate purely through the inbox directory, writing a task file
// in a fixed markdown template and polling for a matching result file.
// Neither CLI is invoked directly; a human or an external watcher process
// is assumed to be running the actual agent against the inbox.
type fileDropBridge struct {
	inboxDir  string
	agentName string
	log       *slog.Logger
}

func newFileDropBridge(inboxDir, agentName string, log *slog.Logger) *fileDropBridge {
	return &fileDropBridge{inboxDir: inboxDir, agentName: agentName, log: log}
}

func (b *fileDropBridge) taskFilePath(taskID string) string {
	return filepath.Join(b.inboxDir, fmt.Sprintf("TASK_%s_FOR_%s.md", taskID, b.agentName))
}

func (b *fileDropBridge) resultFilePath(taskID string) string {
	return filepath.Join(b.inboxDir, fmt.Sprintf("RESULT_%s_FROM_%s.md", taskID, b.agentName))
}

// execute writes the task descriptor and returns immediately; the caller
// must poll CheckResult (normally via the inbox watcher) for the outcome.
func (b *fileDropBridge) execute(t Task) (Result, error) {
	if err := os.MkdirAll(b.inboxDir, 0o755); err != nil {
		return Result{}, err
	}

	content := fmt.Sprintf(
		"# TASK %s\n"+
			"## DLA: %s\n"+
			"## OD: TASKFORGE\n"+
			"## PRIORYTET: %s\n"+
			"## OPIS: %s\n"+
			"## KONTEKST: %s\n"+
			"## KRYTERIA AKCEPTACJI: Task completed and result written to INBOX/RESULT_%s_FROM_%s.md\n",
		t.ID, b.agentName, strings.ToUpper(t.Priority), t.Title, t.Description, t.ID, b.agentName,
	)

	path := b.taskFilePath(t.ID)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Result{}, err
	}
	b.log.Info("wrote task to inbox", "task_id", t.ID, "path", path)

	return Result{
		Success: true,
		Mode:    ModeAsyncFile,
		File:    path,
		Message: fmt.Sprintf("Task written to INBOX. Waiting for RESULT_%s_FROM_%s.md", t.ID, b.agentName),
	}, nil
}

func (b *fileDropBridge) checkResult(t Task) (*Result, error) {
	path := b.resultFilePath(t.ID)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &Result{Success: true, Mode: ModeAsyncFile, Response: strings.ToValidUTF8(string(content), ""), File: path}, nil
}

// ClaudeBridge drops tasks for the CLAUDE_LUSTRO agent.
type ClaudeBridge struct{ inner *fileDropBridge }

func NewClaudeBridge(inboxDir string) *ClaudeBridge {
	return &ClaudeBridge{inner: newFileDropBridge(inboxDir, "CLAUDE", slog.Default().With("component", "bridge.claude"))}
}

func (c *ClaudeBridge) Execute(ctx context.Context, t Task, opts ExecOptions) (Result, error) {
	return c.inner.execute(t)
}

func (c *ClaudeBridge) CheckResult(ctx context.Context, t Task) (*Result, error) {
	return c.inner.checkResult(t)
}

// GeminiBridge drops tasks for the GEMINI_ARCHITECT agent, picked up by its
// PULSE sync process.
type GeminiBridge struct{ inner *fileDropBridge }

func NewGeminiBridge(inboxDir string) *GeminiBridge {
	return &GeminiBridge{inner: newFileDropBridge(inboxDir, "GEMINI", slog.Default().With("component", "bridge.gemini"))}
}

func (g *GeminiBridge) Execute(ctx context.Context, t Task, opts ExecOptions) (Result, error) {
	return g.inner.execute(t)
}

func (g *GeminiBridge) CheckResult(ctx context.Context, t Task) (*Result, error) {
	return g.inner.checkResult(t)
}
