package boot

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/corrinhale/taskforge/internal/registry"
)

// Scheduler drives the periodic maintenance ticks spec §4.8 implies are
// necessary for a long-running process: the agents directory is rescanned
// on an interval (new agents or removed ones are picked up without a
// restart) and the pending queue is logged so a stuck queue is visible
// without a client ever polling it.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// NewScheduler builds a Scheduler; call Start to begin running it.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  slog.Default().With("component", "boot.scheduler"),
	}
}

// RegisterRegistryRescan adds a tick that re-walks the agents directory.
func (s *Scheduler) RegisterRegistryRescan(spec string, agents *registry.Registry) error {
	_, err := s.cron.AddFunc(spec, func() {
		before := len(agents.GetAll())
		after := len(agents.Scan())
		if after != before {
			s.log.Info("registry rescan changed agent count", "before", before, "after", after)
		}
	})
	return err
}

// QueueDepthFunc reports the current pending-and-ready queue length.
type QueueDepthFunc func() int

// RegisterQueueDrainLog adds a tick that logs the pending queue depth, the
// periodic queue-drain visibility hook spec §4.8 calls for; actual
// dispatch of queued tasks happens on the HTTP/dispatch path, this tick
// only surfaces a queue that isn't draining.
func (s *Scheduler) RegisterQueueDrainLog(spec string, depth QueueDepthFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		if n := depth(); n > 0 {
			s.log.Info("pending queue depth", "count", n)
		}
	})
	return err
}

// Start begins running registered jobs in their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop blocks until any running job finishes, then stops the scheduler.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
