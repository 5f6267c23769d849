// Package boot runs the process-start diagnostic sweep spec §4.8 describes
// and renders the resulting status banner, the way cmd/divinesense's
// printGreetings/printDatabaseError pair did for the teacher project. None
// of these probes is load-bearing: every failure downgrades the banner
// rather than aborting startup.
package boot

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/corrinhale/taskforge/internal/config"
	"github.com/corrinhale/taskforge/internal/registry"
	"github.com/corrinhale/taskforge/internal/task"
)

// ollamaHealthChecker is the minimal view Diagnose needs of the Ollama
// bridge, kept as an interface so boot has no import-cycle dependency on
// the bridge package's concrete type.
type ollamaHealthChecker interface {
	Health(ctx context.Context) bool
	ListModels(ctx context.Context) []string
}

// Report is the full result of one boot-time diagnostic sweep.
type Report struct {
	InferenceUp      bool
	Models           []string
	DiscoveredAgents int
	SupervisorState  string // last checkpoint line, or "" if unavailable
	PendingTasks     int
	FreeDiskBytes    uint64
	PortBound        bool
	Warnings         []string
}

// Diagnose runs every probe spec §4.8 lists. cfg.AgentsDir is walked for
// agent directories; supervisorAgent names which one's STATE.log tail is
// reported (empty skips the probe).
func Diagnose(ctx context.Context, cfg config.Config, ollama ollamaHealthChecker, supervisorAgent string) Report {
	var r Report
	var warnings []string

	r.InferenceUp = ollama.Health(ctx)
	if r.InferenceUp {
		r.Models = ollama.ListModels(ctx)
	} else {
		warnings = append(warnings, "inference service unreachable at "+cfg.OllamaURL)
	}

	if entries, err := os.ReadDir(cfg.AgentsDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(cfg.AgentsDir, e.Name(), registry.DescriptorFile)); err == nil {
				r.DiscoveredAgents++
			}
		}
	} else {
		warnings = append(warnings, "agents directory unreadable: "+err.Error())
	}

	if supervisorAgent != "" {
		line, err := lastStateLine(filepath.Join(cfg.AgentsDir, supervisorAgent, registry.StateLogFile))
		if err != nil {
			warnings = append(warnings, "supervisor agent state log unavailable: "+err.Error())
		}
		r.SupervisorState = line
	}

	if tasks, err := task.NewManager(cfg.TasksFile()); err == nil {
		r.PendingTasks = len(tasks.PendingQueue())
	} else {
		warnings = append(warnings, "tasks file unreadable: "+err.Error())
	}

	if free, err := freeDiskBytes(cfg.DataDir); err == nil {
		r.FreeDiskBytes = free
	} else {
		warnings = append(warnings, "disk space probe failed: "+err.Error())
	}

	r.PortBound = portInUse(cfg.Addr, cfg.Port)
	if r.PortBound {
		warnings = append(warnings, fmt.Sprintf("port %d is already bound", cfg.Port))
	}

	r.Warnings = warnings
	return r
}

// lastStateLine returns the final non-empty line of path, the supervisor
// agent's last recorded checkpoint.
func lastStateLine(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i], nil
		}
	}
	return "", nil
}

// portInUse reports whether something is already listening on addr:port,
// by attempting (and immediately releasing) a bind.
func portInUse(addr string, port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return true
	}
	_ = ln.Close()
	return false
}

// Banner renders r as the human-facing startup banner, in the friendly,
// remediation-hint style cmd/divinesense's printGreetings used.
func Banner(cfg config.Config, r Report, version string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Taskforge %s started successfully!\n", version)
	fmt.Fprintf(&b, "Mode: %s\n", cfg.Mode)
	fmt.Fprintf(&b, "Data directory: %s\n", cfg.DataDir)

	if r.InferenceUp {
		fmt.Fprintf(&b, "Inference: up (%s), %d model(s) available\n", cfg.OllamaURL, len(r.Models))
	} else {
		fmt.Fprintf(&b, "Inference: DOWN at %s — dispatches to ollama will fail until it starts\n", cfg.OllamaURL)
	}

	fmt.Fprintf(&b, "Agents discovered: %d\n", r.DiscoveredAgents)
	if r.SupervisorState != "" {
		fmt.Fprintf(&b, "Supervisor checkpoint: %s\n", r.SupervisorState)
	}
	fmt.Fprintf(&b, "Pending tasks: %d\n", r.PendingTasks)
	fmt.Fprintf(&b, "Free disk space: %s\n", humanBytes(r.FreeDiskBytes))

	if len(cfg.Addr) == 0 {
		fmt.Fprintf(&b, "Listening on port %d\n", cfg.Port)
		fmt.Fprintf(&b, "Access taskforge at: http://localhost:%d\n", cfg.Port)
	} else {
		fmt.Fprintf(&b, "Listening on %s:%d\n", cfg.Addr, cfg.Port)
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}

	b.WriteString("\nHappy dispatching!\n")
	return b.String()
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for nn := n / unit; nn >= unit; nn /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// WaitBriefly gives a just-started Ollama daemon a moment before the first
// diagnostic probe, mirroring the small startup grace period cmd_health
// scripts in the original source gave their dependencies.
func WaitBriefly() {
	time.Sleep(200 * time.Millisecond)
}
