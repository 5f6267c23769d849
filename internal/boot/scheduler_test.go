package boot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/corrinhale/taskforge/internal/registry"
)

func TestSchedulerRegistersAndStartsJobs(t *testing.T) {
	cfg := testConfig(t)
	agents := registry.New(cfg.AgentsDir)

	s := NewScheduler()
	require.NoError(t, s.RegisterRegistryRescan("@every 1s", agents))

	calls := 0
	require.NoError(t, s.RegisterQueueDrainLog("@every 1s", func() int {
		calls++
		return calls
	}))

	s.Start()
	defer s.Stop()
	time.Sleep(50 * time.Millisecond) // scheduler started without panicking; ticks are not awaited here
}
