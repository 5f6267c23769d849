// Package config binds the orchestrator's runtime configuration from flags,
// environment, and an optional .env file, the way cmd/divinesense's
// profile package did for the teacher project.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Config is the full set of knobs spec §6's "Environment" section calls out:
// bind host/port, inbox/agents/state directories, inference endpoint and
// timeout, default model — plus the debate concurrency cap and codex script
// path that SPEC_FULL's domain stack section adds.
type Config struct {
	Mode string // dev | prod

	Addr string
	Port int

	DataDir   string // state directory: holds tasks.json and logs/
	InboxDir  string
	AgentsDir string

	OllamaURL     string
	OllamaTimeout time.Duration
	DefaultModel  string

	CodexScript string

	DebateConcurrency int
	QueueDrainCron    string // robfig/cron expression for the periodic drain tick
}

// Default returns the configuration a single-host deployment needs with no
// further setup, mirroring the teacher's viper.SetDefault calls.
func Default() Config {
	return Config{
		Mode:              "dev",
		Addr:              "",
		Port:              8642,
		DataDir:           "./data",
		InboxDir:          "./data/INBOX",
		AgentsDir:         "./data/AGENTS",
		OllamaURL:         "http://localhost:11434",
		OllamaTimeout:     120 * time.Second,
		DefaultModel:      "llama3.2:latest",
		CodexScript:       "./scripts/codex_task.sh",
		DebateConcurrency: 4,
		QueueDrainCron:    "@every 30s",
	}
}

// TasksFile is the single JSON document the TaskManager persists to.
func (c Config) TasksFile() string {
	return filepath.Join(c.DataDir, "tasks.json")
}

// LogsDir is where the daily-rotated audit log files live.
func (c Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// Validate checks the directories this process needs are usable, creating
// them if absent — the orchestrator owns its own state tree, unlike the
// teacher's externally-provisioned database directory.
func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "prod" {
		c.Mode = "dev"
	}
	for _, dir := range []string{c.DataDir, c.InboxDir, c.AgentsDir, c.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "unable to prepare directory %s", dir)
		}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// IsRunningUnderSystemd detects whether the process was launched by systemd,
// the same environment-variable probe cmd/divinesense used to decide
// whether a local .env file should be loaded.
func IsRunningUnderSystemd() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}
