package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// codexExecTimeout mirrors the original bridge's asyncio.wait_for(... ,
// timeout=300) budget around the subprocess call.
const codexExecTimeout = 300 * time.Second

// CodexBridge launches a local script per task and waits for its exit, then
// expects the actual work product to land later as a timestamp-keyed result
// file in the inbox (CODEX_RESULT_<timestamp>.md) rather than being named
// after the task id — Codex has no notion of task ids. CheckResult claims
// the oldest unclaimed result file it finds whenever called for a task
// currently assigned to CODEX, which is inherently ambiguous under
// concurrent Codex tasks; see claimed for the bookkeeping that makes each
// file claimable exactly once.
type CodexBridge struct {
	scriptPath string
	inboxDir   string
	breaker    *gobreaker.CircuitBreaker
	log        *slog.Logger

	mu      sync.Mutex
	claimed map[string]bool
}

// NewCodexBridge builds a bridge that invokes scriptPath for every task.
func NewCodexBridge(scriptPath, inboxDir string) *CodexBridge {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "codex",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &CodexBridge{
		scriptPath: scriptPath,
		inboxDir:   inboxDir,
		breaker:    breaker,
		log:        slog.Default().With("component", "bridge.codex"),
		claimed:    make(map[string]bool),
	}
}

func (c *CodexBridge) Execute(ctx context.Context, t Task, opts ExecOptions) (Result, error) {
	if _, err := os.Stat(c.scriptPath); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("codex script not found at %s", c.scriptPath)}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, codexExecTimeout)
	defer cancel()

	prompt := fmt.Sprintf("%s: %s", t.Title, t.Description)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		cmd := exec.CommandContext(ctx, c.scriptPath, prompt, c.inboxDir)
		return cmd.CombinedOutput()
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{Success: false, Error: "codex execution timed out (300s)"}, nil
		}
		c.log.Warn("codex execution failed", "task_id", t.ID, "error", err)
		return Result{Success: false, Error: err.Error()}, nil
	}

	stdout, _ := out.([]byte)
	return Result{
		Success: true,
		Mode:    ModeAsyncFile,
		Message: "Codex task launched. Result will appear in INBOX/CODEX_RESULT_*.md",
		Response: string(stdout),
	}, nil
}

// CheckResult scans the inbox for CODEX_RESULT_*.md files not already
// claimed by another task and claims the oldest one. Callers should only
// invoke this for a single outstanding Codex task at a time; the task
// manager's FindRunningByAgent helper picks the oldest running CODEX task as
// the presumed recipient, per the bridge's inherent id-less design.
func (c *CodexBridge) CheckResult(ctx context.Context, t Task) (*Result, error) {
	entries, err := os.ReadDir(c.inboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var candidates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "CODEX_RESULT_") || !strings.HasSuffix(name, ".md") {
			continue
		}
		c.mu.Lock()
		already := c.claimed[name]
		c.mu.Unlock()
		if !already {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Strings(candidates)
	chosen := candidates[0]

	path := filepath.Join(c.inboxDir, chosen)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.claimed[chosen] = true
	c.mu.Unlock()

	return &Result{Success: true, Mode: ModeAsyncFile, Response: strings.ToValidUTF8(string(content), ""), File: path}, nil
}
