package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeAgent(t *testing.T, base, name, who string) {
	t.Helper()
	dir := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DescriptorFile), []byte(who), 0o644))
}

func TestScanExtractsRoleAndCapabilities(t *testing.T) {
	base := t.TempDir()
	writeAgent(t, base, "CLAUDE_LUSTRO", "# CLAUDE_LUSTRO\n\n## The Code Engineer\n\nI review and implement code.\n")

	r := New(base)
	agent := r.Get("CLAUDE_LUSTRO")
	require.NotNil(t, agent)
	require.Equal(t, BridgeClaude, agent.BridgeType)
	require.Contains(t, agent.Capabilities, "code")
	require.Contains(t, agent.Capabilities, "review")
	require.Contains(t, agent.Role, "Engineer")
}

func TestScanDefaultsToGeneralCapability(t *testing.T) {
	base := t.TempDir()
	writeAgent(t, base, "MYSTERY", "# MYSTERY\n\nNo keywords here at all.\n")

	r := New(base)
	agent := r.Get("MYSTERY")
	require.NotNil(t, agent)
	require.Equal(t, []string{"general"}, agent.Capabilities)
	require.Equal(t, BridgeOllama, agent.BridgeType)
}

func TestScanPreservesLiveness(t *testing.T) {
	base := t.TempDir()
	writeAgent(t, base, "OLLAMA_WORKER", "# OLLAMA_WORKER\n\n## The Code Implementer\n")

	r := New(base)
	r.UpdateStatus("OLLAMA_WORKER", StatusActive, "task-123")

	r.Scan()
	agent := r.Get("OLLAMA_WORKER")
	require.Equal(t, StatusActive, agent.Status)
	require.Equal(t, "task-123", agent.CurrentTask)
}

func TestGetAvailableExcludesHumanAndOccupied(t *testing.T) {
	base := t.TempDir()
	writeAgent(t, base, "SHAD", "# SHAD\n\n## The Human Overseer\n")
	writeAgent(t, base, "OLLAMA_WORKER", "# OLLAMA_WORKER\n\n## The Code Implementer\n")
	writeAgent(t, base, "GEMINI_ARCHITECT", "# GEMINI_ARCHITECT\n\n## The Architect\n")

	r := New(base)
	r.UpdateStatus("GEMINI_ARCHITECT", StatusActive, "task-1")

	available := r.GetAvailable("")
	names := map[string]bool{}
	for _, a := range available {
		names[a.Name] = true
	}
	require.False(t, names["SHAD"])
	require.False(t, names["GEMINI_ARCHITECT"])
	require.True(t, names["OLLAMA_WORKER"])
}

func TestMissingBaseDirDoesNotPanic(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Empty(t, r.GetAll())
}
