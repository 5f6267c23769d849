package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corrinhale/taskforge/internal/config"
)

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

func TestNewWiresEveryComponent(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Tasks)
	require.NotNil(t, c.Agents)
	require.NotNil(t, c.Dispatch)
	require.NotNil(t, c.Audit)
	require.NotNil(t, c.Feed)
	require.NotNil(t, c.Debate)
	require.NotNil(t, c.Watcher)
	require.Len(t, c.Bridges, 4)
}

func TestRegistryAdapterReflectsLiveness(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	adapter := registryAdapter{agents: c.Agents}
	require.False(t, adapter.IsAvailable("NOBODY"))
}
