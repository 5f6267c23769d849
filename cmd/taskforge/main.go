package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corrinhale/taskforge/internal/boot"
	"github.com/corrinhale/taskforge/internal/bridge"
	"github.com/corrinhale/taskforge/internal/config"
	"github.com/corrinhale/taskforge/internal/core"
	"github.com/corrinhale/taskforge/internal/version"
	"github.com/corrinhale/taskforge/server"
)

var rootCmd = &cobra.Command{
	Use:   "taskforge",
	Short: "Multi-agent task orchestrator: dispatch, bridges, and live debate over a local Ollama/Claude/Gemini/Codex roster.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !config.IsRunningUnderSystemd() {
			_ = godotenv.Load()
		}
		return nil
	},
}

func configFromViper() config.Config {
	cfg := config.Default()
	cfg.Mode = viper.GetString("mode")
	cfg.Addr = viper.GetString("addr")
	cfg.Port = viper.GetInt("port")
	cfg.DataDir = viper.GetString("data")
	cfg.InboxDir = viper.GetString("inbox")
	cfg.AgentsDir = viper.GetString("agents")
	cfg.OllamaURL = viper.GetString("ollama-url")
	cfg.OllamaTimeout = viper.GetDuration("ollama-timeout")
	cfg.DefaultModel = viper.GetString("model")
	return cfg
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator's HTTP API and background watcher/scheduler.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := configFromViper()
		if err := cfg.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c, err := core.New(cfg)
		if err != nil {
			slog.Error("failed to wire core", "error", err)
			os.Exit(1)
		}
		defer c.Close()

		ollama, _ := c.Bridges[bridge.KeyOllama].(*bridge.OllamaBridge)
		report := boot.Diagnose(ctx, cfg, ollama, "CLAUDE_LUSTRO")

		reg := prometheus.NewRegistry()
		s := server.NewServer(c, reg)

		sched := boot.NewScheduler()
		if err := sched.RegisterRegistryRescan("@every 1m", c.Agents); err != nil {
			slog.Warn("failed to register registry rescan", "error", err)
		}
		if err := sched.RegisterQueueDrainLog(cfg.QueueDrainCron, func() int { return len(c.Tasks.PendingQueue()) }); err != nil {
			slog.Warn("failed to register queue drain log", "error", err)
		}
		sched.Start()
		defer sched.Stop()

		go c.RunWatcher(ctx)

		if err := s.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}

		fmt.Println(boot.Banner(cfg, report, version.String()))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, terminationSignals...)

		go func() {
			<-sig
			_ = s.Shutdown(ctx)
			cancel()
		}()

		<-ctx.Done()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 8642)
	viper.SetDefault("ollama-url", "http://localhost:11434")
	viper.SetDefault("model", "llama3.2:latest")

	serveCmd.Flags().String("mode", "dev", `mode of server, "dev" or "prod"`)
	serveCmd.Flags().String("addr", "", "bind address")
	serveCmd.Flags().Int("port", 8642, "bind port")
	serveCmd.Flags().String("data", "./data", "state directory (tasks.json, logs/)")
	serveCmd.Flags().String("inbox", "./data/INBOX", "inbox directory root")
	serveCmd.Flags().String("agents", "./data/AGENTS", "agents directory root")
	serveCmd.Flags().String("ollama-url", "http://localhost:11434", "Ollama inference endpoint")
	serveCmd.Flags().Duration("ollama-timeout", config.Default().OllamaTimeout, "Ollama request timeout")
	serveCmd.Flags().String("model", "llama3.2:latest", "default Ollama model")

	for _, name := range []string{"mode", "addr", "port", "data", "inbox", "agents", "ollama-url", "ollama-timeout", "model"} {
		if err := viper.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("taskforge")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd, healthCmd, agentsCmd, agentCmd, tasksCmd, taskCmd,
		newCmd, dispatchCmd, runCmd, pollCmd, retryCmd, cancelCmd, watchCmd, logsCmd, routingCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
