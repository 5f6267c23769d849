package boot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corrinhale/taskforge/internal/config"
	"github.com/corrinhale/taskforge/internal/registry"
)

type fakeOllama struct {
	up     bool
	models []string
}

func (f fakeOllama) Health(ctx context.Context) bool     { return f.up }
func (f fakeOllama) ListModels(ctx context.Context) []string { return f.models }

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.InboxDir = filepath.Join(dir, "INBOX")
	cfg.AgentsDir = filepath.Join(dir, "AGENTS")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestDiagnoseReportsInferenceUpAndModels(t *testing.T) {
	cfg := testConfig(t)
	r := Diagnose(context.Background(), cfg, fakeOllama{up: true, models: []string{"phi4-mini"}}, "")
	require.True(t, r.InferenceUp)
	require.Equal(t, []string{"phi4-mini"}, r.Models)
	require.Empty(t, r.Warnings)
}

func TestDiagnoseWarnsWhenInferenceDown(t *testing.T) {
	cfg := testConfig(t)
	r := Diagnose(context.Background(), cfg, fakeOllama{up: false}, "")
	require.False(t, r.InferenceUp)
	require.NotEmpty(t, r.Warnings)
}

func TestDiagnoseCountsDiscoveredAgentsAndSupervisorState(t *testing.T) {
	cfg := testConfig(t)
	agentDir := filepath.Join(cfg.AgentsDir, "CLAUDE_LUSTRO")
	require.NoError(t, os.MkdirAll(agentDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, registry.DescriptorFile), []byte("# CLAUDE_LUSTRO\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(agentDir, registry.StateLogFile), []byte("line one\nline two\n"), 0o644))

	r := Diagnose(context.Background(), cfg, fakeOllama{up: true}, "CLAUDE_LUSTRO")
	require.Equal(t, 1, r.DiscoveredAgents)
	require.Equal(t, "line two", r.SupervisorState)
}

func TestBannerIncludesWarningsSection(t *testing.T) {
	cfg := testConfig(t)
	r := Report{Warnings: []string{"something is wrong"}}
	out := Banner(cfg, r, "0.1.0-test")
	require.Contains(t, out, "Taskforge 0.1.0-test")
	require.Contains(t, out, "Warnings:")
	require.Contains(t, out, "something is wrong")
}

func TestHumanBytesFormatsAcrossUnits(t *testing.T) {
	require.Equal(t, "512 B", humanBytes(512))
	require.Contains(t, humanBytes(5*1024*1024), "MiB")
}
