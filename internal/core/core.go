// Package core wires every component (task manager, registry, dispatcher,
// bridges, audit log, live feed, inbox watcher, debate engine) into one
// explicit context struct, in place of the module-level globals the
// orchestrator this was modelled on used.
package core

import (
	"context"
	"log/slog"

	"github.com/corrinhale/taskforge/internal/audit"
	"github.com/corrinhale/taskforge/internal/bridge"
	"github.com/corrinhale/taskforge/internal/config"
	"github.com/corrinhale/taskforge/internal/debate"
	"github.com/corrinhale/taskforge/internal/dispatch"
	"github.com/corrinhale/taskforge/internal/feed"
	"github.com/corrinhale/taskforge/internal/registry"
	"github.com/corrinhale/taskforge/internal/task"
	"github.com/corrinhale/taskforge/internal/watcher"
)

// Core bundles every long-lived component a request handler, CLI command,
// or background loop needs. It owns nothing the individual components
// don't already own; it exists purely so callers stop reaching for package
// globals and instead thread one value through.
type Core struct {
	Config   config.Config
	Tasks    *task.Manager
	Agents   *registry.Registry
	Dispatch *dispatch.Dispatcher
	Audit    *audit.Log
	Bridges  bridge.Set
	Feed     *feed.Feed
	Debate   *debate.Engine
	Watcher  *watcher.Watcher

	log *slog.Logger
}

// registryAdapter satisfies dispatch.Registry by answering availability
// questions against the live agent registry: an agent is available when it
// exists, isn't offline, and isn't already carrying a task.
type registryAdapter struct {
	agents *registry.Registry
}

func (a registryAdapter) IsAvailable(name string) bool {
	agent := a.agents.Get(name)
	if agent == nil {
		return false
	}
	return agent.Status != registry.StatusOffline && agent.CurrentTask == ""
}

// snapshotAdapter feeds the Feed's init-event snapshot from the live
// registry and task manager.
type snapshotAdapter struct {
	agents *registry.Registry
	tasks  *task.Manager
}

func (s snapshotAdapter) Snapshot() (agents any, tasks any) {
	return s.agents.GetAll(), s.tasks.List(task.ListFilter{})
}

// New builds every component from cfg and wires them together, but does not
// start the watcher's consumer goroutine — call RunWatcher for that once the
// caller is ready to begin processing filesystem events.
func New(cfg config.Config) (*Core, error) {
	tasks, err := task.NewManager(cfg.TasksFile())
	if err != nil {
		return nil, err
	}

	agents := registry.New(cfg.AgentsDir)

	al, err := audit.New(cfg.LogsDir())
	if err != nil {
		return nil, err
	}

	disp := dispatch.New(registryAdapter{agents: agents}, cfg.OllamaURL)

	ollama := bridge.NewOllamaBridge(cfg.OllamaURL, cfg.DefaultModel, cfg.OllamaTimeout)
	codex := bridge.NewCodexBridge(cfg.CodexScript, cfg.InboxDir)
	bridges := bridge.Set{
		bridge.KeyOllama: ollama,
		bridge.KeyClaude: bridge.NewClaudeBridge(cfg.InboxDir),
		bridge.KeyGemini: bridge.NewGeminiBridge(cfg.InboxDir),
		bridge.KeyCodex:  codex,
	}

	lf := feed.New(snapshotAdapter{agents: agents, tasks: tasks})

	engine := debate.NewEngine(ollama, cfg.DebateConcurrency)

	w, err := watcher.New(cfg.InboxDir, cfg.AgentsDir)
	if err != nil {
		return nil, err
	}

	return &Core{
		Config:   cfg,
		Tasks:    tasks,
		Agents:   agents,
		Dispatch: disp,
		Audit:    al,
		Bridges:  bridges,
		Feed:     lf,
		Debate:   engine,
		Watcher:  w,
		log:      slog.Default().With("component", "core"),
	}, nil
}

// codexBridge returns the Codex bridge concretely, for the watcher
// processor's claim-tracking integration; nil if it was never wired (it
// always is, via New, but a test-built Core may omit it).
func (c *Core) codexBridge() *bridge.CodexBridge {
	b, ok := c.Bridges[bridge.KeyCodex]
	if !ok {
		return nil
	}
	cb, _ := b.(*bridge.CodexBridge)
	return cb
}

// RunWatcher starts the single consumer goroutine that drains the
// filesystem watcher's event channel; it blocks until ctx is cancelled or
// the watcher is closed, so call it from its own goroutine.
func (c *Core) RunWatcher(ctx context.Context) {
	proc := watcher.NewProcessor(c.Config.InboxDir, c.Tasks, c.Agents, c.Audit, c.Feed, c.codexBridge())
	events := c.Watcher.Events()

	relay := make(chan watcher.Event)
	go func() {
		defer close(relay)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case relay <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	proc.Run(relay)
}

// Close releases the watcher's filesystem handles.
func (c *Core) Close() error {
	return c.Watcher.Close()
}
