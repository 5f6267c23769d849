package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/corrinhale/taskforge/internal/dispatch"
)

// cliTask mirrors the fields of internal/task.Task the CLI displays; kept
// separate from that package so this file has no dependency on the
// persistence layer, matching builder_cli.py's own loosely-typed dict use.
type cliTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	AssignedTo  string `json:"assigned_to"`
	TaskType    string `json:"task_type"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	Result      string `json:"result"`
	Error       string `json:"error"`
}

type cliAgent struct {
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities"`
	BridgeType   string   `json:"bridge_type"`
	LastSeen     string   `json:"last_seen"`
	CurrentTask  string   `json:"current_task"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show orchestrator uptime, task counts, and agent summary.",
	Run: func(cmd *cobra.Command, args []string) {
		var s struct {
			UptimeSeconds int            `json:"uptime_seconds"`
			Agents        int            `json:"agents"`
			ByStatus      map[string]int `json:"by_status"`
			Subscribers   int            `json:"subscribers"`
		}
		newAPIClient().get("/status", &s)
		fmt.Printf("uptime: %ds | agents: %d | feed subscribers: %d\n", s.UptimeSeconds, s.Agents, s.Subscribers)
		fmt.Printf("tasks by status: %v\n", s.ByStatus)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show builder/ollama/agent/task health summary.",
	Run: func(cmd *cobra.Command, args []string) {
		var h struct {
			Builder       string         `json:"builder"`
			Ollama        bool           `json:"ollama"`
			OllamaModels  []string       `json:"ollama_models"`
			AgentsTotal   int            `json:"agents_total"`
			TasksTotal    int            `json:"tasks_total"`
			TasksByStatus map[string]int `json:"tasks_by_status"`
			UptimeSeconds int            `json:"uptime_seconds"`
			Version       string         `json:"version"`
		}
		newAPIClient().get("/health", &h)
		fmt.Printf("builder:  %s (v%s)\n", h.Builder, h.Version)
		fmt.Printf("ollama:   %v (%d models)\n", h.Ollama, len(h.OllamaModels))
		fmt.Printf("agents:   %d total\n", h.AgentsTotal)
		fmt.Printf("tasks:    %d total %v\n", h.TasksTotal, h.TasksByStatus)
		if len(h.OllamaModels) > 0 {
			fmt.Printf("models:   %s\n", strings.Join(h.OllamaModels, ", "))
		}
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List every registered agent.",
	Run: func(cmd *cobra.Command, args []string) {
		var data struct {
			Agents []cliAgent `json:"agents"`
			Total  int        `json:"total"`
		}
		newAPIClient().get("/agents", &data)
		fmt.Printf("%-22s %-10s %-10s CAPABILITIES\n", "AGENT", "BRIDGE", "STATUS")
		fmt.Println(strings.Repeat("-", 70))
		for _, a := range data.Agents {
			fmt.Printf("%-22s %-10s %-10s %s\n", a.Name, a.BridgeType, a.Status, strings.Join(a.Capabilities, ", "))
		}
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent <name>",
	Short: "Show one agent's full descriptor.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var a cliAgent
		newAPIClient().get("/agents/"+args[0], &a)
		fmt.Printf("name:         %s\n", a.Name)
		fmt.Printf("role:         %s\n", a.Role)
		fmt.Printf("bridge:       %s\n", a.BridgeType)
		fmt.Printf("status:       %s\n", a.Status)
		fmt.Printf("capabilities: %s\n", strings.Join(a.Capabilities, ", "))
		fmt.Printf("current task: %s\n", orNone(a.CurrentTask))
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks [status]",
	Short: "List tasks, optionally filtered by status.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "/tasks"
		if len(args) == 1 {
			path += "?status=" + args[0]
		}
		var tasks []cliTask
		newAPIClient().get(path, &tasks)
		if len(tasks) == 0 {
			fmt.Println("no tasks.")
			return
		}
		fmt.Printf("%-14s %-10s %-10s %-18s TITLE\n", "ID", "STATUS", "PRIORITY", "AGENT")
		fmt.Println(strings.Repeat("-", 80))
		for _, t := range tasks {
			agent := orDash(t.AssignedTo)
			fmt.Printf("%-14s %-10s %-10s %-18s %s\n", t.ID, t.Status, t.Priority, agent, truncate(t.Title, 30))
		}
	},
}

var taskCmd = &cobra.Command{
	Use:   "task <id>",
	Short: "Show one task's full record.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var t cliTask
		newAPIClient().get("/tasks/"+args[0], &t)
		printTask(t)
	},
}

func printTask(t cliTask) {
	fmt.Printf("id:          %s\n", t.ID)
	fmt.Printf("title:       %s\n", t.Title)
	fmt.Printf("status:      %s\n", t.Status)
	fmt.Printf("priority:    %s\n", t.Priority)
	fmt.Printf("agent:       %s\n", orNone(t.AssignedTo))
	fmt.Printf("type:        %s\n", orNA(t.TaskType))
	fmt.Printf("created:     %s\n", t.CreatedAt)
	fmt.Printf("updated:     %s\n", t.UpdatedAt)
	if t.Description != "" {
		fmt.Printf("description: %s\n", t.Description)
	}
	if t.Result != "" {
		fmt.Println("\n--- RESULT ---")
		fmt.Println(t.Result)
	}
	if t.Error != "" {
		fmt.Println("\n--- ERROR ---")
		fmt.Println(t.Error)
	}
}

var newCmd = &cobra.Command{
	Use:   "new <title> <description> [priority]",
	Short: "Create a task without dispatching it.",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		id := createTask(args)
		fmt.Printf("task created: %s\n", id)
	},
}

func createTask(args []string) string {
	priority := "medium"
	if len(args) == 3 {
		priority = args[2]
	}
	body := map[string]string{"title": args[0], "description": args[1], "priority": priority}
	var t cliTask
	newAPIClient().post("/tasks", body, &t)
	fmt.Printf("  title:    %s\n", t.Title)
	fmt.Printf("  priority: %s\n", t.Priority)
	fmt.Printf("  status:   %s\n", t.Status)
	return t.ID
}

type dispatchResponse struct {
	Routing dispatch.Decision `json:"routing"`
	Task    cliTask           `json:"task"`
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <id>",
	Short: "Dispatch an existing task, optionally overriding agent/bridge/model.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDispatch(args[0], cmd)
	},
}

func runDispatch(id string, cmd *cobra.Command) {
	agent, _ := cmd.Flags().GetString("agent")
	br, _ := cmd.Flags().GetString("bridge")
	model, _ := cmd.Flags().GetString("model")

	body := map[string]string{}
	if agent != "" {
		body["agent"] = agent
	}
	if br != "" {
		body["bridge"] = br
	}
	if model != "" {
		body["model"] = model
	}

	fmt.Printf("dispatching %s...\n", id)
	var resp dispatchResponse
	newAPIClient().post("/tasks/"+id+"/dispatch", body, &resp)
	printDispatchResult(resp)
}

func printDispatchResult(resp dispatchResponse) {
	fmt.Printf("  type:   %s\n", resp.Routing.TaskType)
	fmt.Printf("  agent:  %s\n", resp.Routing.Agent)
	fmt.Printf("  bridge: %s\n", resp.Routing.Bridge)
	if resp.Routing.Model != "" {
		fmt.Printf("  model:  %s\n", resp.Routing.Model)
	}
	fmt.Printf("  status: %s\n", resp.Task.Status)
	if resp.Task.Result != "" {
		fmt.Println("\n--- RESULT ---")
		fmt.Println(resp.Task.Result)
	} else if resp.Routing.Bridge != "ollama" {
		fmt.Println("  (async — result will land in INBOX/)")
	}
}

var runCmd = &cobra.Command{
	Use:   "run <title> <description> [priority]",
	Short: "Create a task and dispatch it in one step.",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		id := createTask(args)
		fmt.Println()
		runDispatch(id, cmd)
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll <id>",
	Short: "Check an asynchronous bridge for a task's result.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			Status  string  `json:"status"`
			Result  string  `json:"result"`
			Message string  `json:"message"`
			Task    cliTask `json:"task"`
		}
		newAPIClient().post("/tasks/"+args[0]+"/poll", nil, &resp)
		fmt.Printf("  status: %s\n", resp.Status)
		switch {
		case resp.Result != "":
			fmt.Println("\n--- RESULT ---")
			fmt.Println(resp.Result)
		case resp.Message != "":
			fmt.Printf("  %s\n", resp.Message)
		}
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Reset a terminal task to pending and redispatch it.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("retrying %s...\n", args[0])
		var resp dispatchResponse
		newAPIClient().post("/tasks/"+args[0]+"/retry", nil, &resp)
		printDispatchResult(resp)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a non-terminal task.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cancelling %s...\n", args[0])
		var resp struct {
			Cancelled bool    `json:"cancelled"`
			Task      cliTask `json:"task"`
		}
		newAPIClient().post("/tasks/"+args[0]+"/cancel", nil, &resp)
		if resp.Cancelled {
			fmt.Println("  task cancelled.")
		} else {
			fmt.Println("  failed to cancel.")
		}
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [interval]",
	Short: "Live-tail task status changes by polling /tasks.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		interval := 5
		if len(args) == 1 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				interval = n
			}
		}
		fmt.Printf("watching tasks (every %ds, ctrl+C to stop)...\n", interval)
		fmt.Println(strings.Repeat("-", 70))
		seen := make(map[string]bool)
		client := newAPIClient()
		for {
			var tasks []cliTask
			client.get("/tasks", &tasks)
			for _, t := range tasks {
				key := t.ID + ":" + t.Status
				if seen[key] {
					continue
				}
				seen[key] = true
				ts := time.Now().Format("15:04:05")
				fmt.Printf("[%s] %s | %-10s | %-18s | %s\n", ts, t.ID, t.Status, orDash(t.AssignedTo), truncate(t.Title, 40))
				if t.Status == "done" && t.Result != "" {
					fmt.Printf("         -> %s...\n", truncate(strings.ReplaceAll(t.Result, "\n", " "), 100))
				}
			}
			time.Sleep(time.Duration(interval) * time.Second)
		}
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [limit]",
	Short: "Show recent audit log lines.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit := 30
		if len(args) == 1 {
			if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
				limit = n
			}
		}
		var lines []string
		newAPIClient().get("/logs?limit="+strconv.Itoa(limit), &lines)
		for _, line := range lines {
			fmt.Println(line)
		}
	},
}

var routingCmd = &cobra.Command{
	Use:   "routing",
	Short: "Show the static task_type -> agent/bridge routing table.",
	Run: func(cmd *cobra.Command, args []string) {
		var table map[string]dispatch.Rule
		newAPIClient().get("/routing", &table)
		fmt.Printf("%-16s %-22s %-10s MODEL\n", "TYPE", "AGENT", "BRIDGE")
		fmt.Println(strings.Repeat("-", 70))
		for name, r := range table {
			model := r.Model
			if model == "" {
				model = "-"
			}
			fmt.Printf("%-16s %-22s %-10s %s\n", name, r.Agent, r.Bridge, model)
		}
	},
}

func init() {
	dispatchCmd.Flags().String("agent", "", "override the routed agent")
	dispatchCmd.Flags().String("bridge", "", "override the routed bridge")
	dispatchCmd.Flags().String("model", "", "override the routed model")
	runCmd.Flags().String("agent", "", "override the routed agent")
	runCmd.Flags().String("bridge", "", "override the routed bridge")
	runCmd.Flags().String("model", "", "override the routed model")
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
