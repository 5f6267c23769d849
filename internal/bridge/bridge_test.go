package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClaudeBridgeWritesTaskFileAndTemplate(t *testing.T) {
	dir := t.TempDir()
	b := NewClaudeBridge(dir)

	res, err := b.Execute(context.Background(), Task{ID: "abc123", Title: "fix bug", Description: "nil pointer in parser", Priority: "high"}, ExecOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, ModeAsyncFile, res.Mode)

	content, err := os.ReadFile(filepath.Join(dir, "TASK_abc123_FOR_CLAUDE.md"))
	require.NoError(t, err)
	require.Contains(t, string(content), "## DLA: CLAUDE")
	require.Contains(t, string(content), "## PRIORYTET: HIGH")
	require.Contains(t, string(content), "fix bug")
	require.Contains(t, string(content), "RESULT_abc123_FROM_CLAUDE.md")
}

func TestClaudeBridgeCheckResultMissing(t *testing.T) {
	b := NewClaudeBridge(t.TempDir())
	res, err := b.CheckResult(context.Background(), Task{ID: "nope"})
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestClaudeBridgeCheckResultPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "RESULT_abc123_FROM_CLAUDE.md"), []byte("done"), 0o644))

	b := NewClaudeBridge(dir)
	res, err := b.CheckResult(context.Background(), Task{ID: "abc123"})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, "done", res.Response)
}

func TestGeminiBridgeUsesOwnSuffix(t *testing.T) {
	dir := t.TempDir()
	b := NewGeminiBridge(dir)

	res, err := b.Execute(context.Background(), Task{ID: "xyz789", Title: "design schema", Priority: "medium"}, ExecOptions{})
	require.NoError(t, err)
	require.True(t, res.Success)

	_, err = os.Stat(filepath.Join(dir, "TASK_xyz789_FOR_GEMINI.md"))
	require.NoError(t, err)
}

func TestCodexBridgeMissingScriptReportsFailure(t *testing.T) {
	b := NewCodexBridge(filepath.Join(t.TempDir(), "does-not-exist.sh"), t.TempDir())
	res, err := b.Execute(context.Background(), Task{ID: "t1", Title: "x", Description: "y"}, ExecOptions{})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "not found")
}

func TestCodexBridgeClaimsOldestUnclaimedResultOnce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CODEX_RESULT_20260101_000000.md"), []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CODEX_RESULT_20260101_000100.md"), []byte("second"), 0o644))

	b := NewCodexBridge("unused", dir)

	res, err := b.CheckResult(context.Background(), Task{ID: "whatever"})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, "first", res.Response)

	res2, err := b.CheckResult(context.Background(), Task{ID: "whatever"})
	require.NoError(t, err)
	require.NotNil(t, res2)
	require.Equal(t, "second", res2.Response)

	res3, err := b.CheckResult(context.Background(), Task{ID: "whatever"})
	require.NoError(t, err)
	require.Nil(t, res3)
}

func TestCodexBridgeCheckResultMissingInboxIsNotError(t *testing.T) {
	b := NewCodexBridge("unused", filepath.Join(t.TempDir(), "no-such-inbox"))
	res, err := b.CheckResult(context.Background(), Task{ID: "whatever"})
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestOllamaBridgeCheckResultIsNoOp(t *testing.T) {
	b := NewOllamaBridge("http://127.0.0.1:1", "phi4-mini", 0)
	res, err := b.CheckResult(context.Background(), Task{ID: "x"})
	require.NoError(t, err)
	require.Nil(t, res)
}
