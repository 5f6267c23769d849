package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/corrinhale/taskforge/internal/boot"
	"github.com/corrinhale/taskforge/internal/bridge"
	"github.com/corrinhale/taskforge/internal/debate"
	"github.com/corrinhale/taskforge/internal/dispatch"
	"github.com/corrinhale/taskforge/internal/errs"
	"github.com/corrinhale/taskforge/internal/feed"
	"github.com/corrinhale/taskforge/internal/registry"
	"github.com/corrinhale/taskforge/internal/task"
	"github.com/corrinhale/taskforge/internal/version"
)

func (s *Server) registerRoutes(reg *prometheus.Registry) {
	api := s.echo.Group("/api/v1")

	api.POST("/tasks", s.createTask)
	api.GET("/tasks", s.listTasks)
	api.GET("/tasks/:id", s.getTask)
	api.PUT("/tasks/:id", s.updateTask)
	api.DELETE("/tasks/:id", s.deleteTask)
	api.POST("/tasks/:id/dispatch", s.dispatchTask)
	api.POST("/tasks/:id/poll", s.pollTask)
	api.POST("/tasks/:id/retry", s.retryTask)
	api.POST("/tasks/:id/cancel", s.cancelTask)

	api.GET("/agents", s.listAgents)
	api.GET("/agents/:name", s.getAgent)
	api.POST("/agents/:name/ping", s.pingAgent)
	api.POST("/agents/refresh", s.refreshAgents)

	api.GET("/status", s.status)
	api.GET("/health", s.health)
	api.GET("/logs", s.logs)
	api.GET("/routing", s.routing)
	api.GET("/queue", s.queue)

	api.POST("/debate/start", s.startDebate)
	api.GET("/debate/:id", s.getDebate)
	api.GET("/debate/:id/report", s.getDebateReport)
	api.GET("/debate/history", s.debateHistory)

	s.echo.GET("/ws/feed", s.liveFeed)
	s.echo.GET("/metrics", echo.WrapHandler(boot.Handler(reg)))
}

// httpError writes the fixed {detail: <string>} error body spec §6
// prescribes, with the status code errs.HTTPStatus maps the error's Kind
// to; an error that doesn't carry a Kind is treated as an internal error.
func httpError(c echo.Context, err error) error {
	kind := errs.KindOf(err)
	status := errs.HTTPStatus(kind)
	if kind == "" {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, map[string]string{"detail": err.Error()})
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	AssignedTo  string `json:"assigned_to"`
}

func (s *Server) createTask(c echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return httpError(c, errs.New(errs.Validation, err.Error()))
	}
	if req.Title == "" {
		return httpError(c, errs.New(errs.Validation, "title is required"))
	}

	t, err := s.core.Tasks.Create(req.Title, req.Description, task.Priority(req.Priority))
	if err != nil {
		return httpError(c, err)
	}
	if req.AssignedTo != "" {
		t, err = s.core.Tasks.Assign(t.ID, req.AssignedTo)
		if err != nil {
			return httpError(c, err)
		}
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) listTasks(c echo.Context) error {
	filter := task.ListFilter{
		Status: task.Status(c.QueryParam("status")),
		Agent:  c.QueryParam("agent"),
	}
	return c.JSON(http.StatusOK, s.core.Tasks.List(filter))
}

func (s *Server) getTask(c echo.Context) error {
	t, err := s.core.Tasks.Get(c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) updateTask(c echo.Context) error {
	var p task.Patch
	if err := c.Bind(&p); err != nil {
		return httpError(c, errs.New(errs.Validation, err.Error()))
	}
	t, err := s.core.Tasks.Update(c.Param("id"), p)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTask(c echo.Context) error {
	ok, err := s.core.Tasks.Delete(c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	if !ok {
		return httpError(c, errs.New(errs.NotFound, "task "+c.Param("id")))
	}
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

type dispatchRequest struct {
	Agent  string `json:"agent"`
	Bridge string `json:"bridge"`
	Model  string `json:"model"`
}

// dispatchTask resolves routing for a task, calls the chosen bridge, and
// records the outcome. A synchronous bridge's result completes the task
// immediately; an asynchronous one leaves it running until the watcher or
// a later /poll call observes the result.
func (s *Server) dispatchTask(c echo.Context) error {
	id := c.Param("id")
	t, err := s.core.Tasks.Get(id)
	if err != nil {
		return httpError(c, err)
	}
	if !s.core.Tasks.IsReady(id) {
		return httpError(c, errs.New(errs.Validation, "task has unfinished dependencies"))
	}

	var req dispatchRequest
	_ = c.Bind(&req)

	decision := s.core.Dispatch.Dispatch(dispatch.ClassifyInput{Title: t.Title, Description: t.Description})
	if req.Agent != "" {
		decision.Agent = req.Agent
	}
	if req.Bridge != "" {
		decision.Bridge = req.Bridge
	}
	if req.Model != "" {
		decision.Model = req.Model
	}

	if decision.Busy {
		return httpError(c, errs.New(errs.Busy, "no available agent for task type "+decision.TaskType))
	}

	br, ok := s.core.Bridges[bridge.Key(decision.Bridge)]
	if !ok {
		return httpError(c, errs.New(errs.BridgeUnavailable, "unknown bridge "+decision.Bridge))
	}

	if t.Status == task.StatusPending {
		t, err = s.core.Tasks.Assign(id, decision.Agent)
		if err != nil {
			return httpError(c, err)
		}
	}
	t, err = s.core.Tasks.UpdateStatus(id, task.StatusRunning)
	if err != nil {
		return httpError(c, err)
	}
	s.core.Agents.UpdateStatus(decision.Agent, registry.StatusActive, id)

	start := time.Now()
	res, err := br.Execute(c.Request().Context(), bridge.Task{ID: t.ID, Title: t.Title, Description: t.Description, Priority: string(t.Priority)},
		bridge.ExecOptions{Model: decision.Model, Temperature: decision.Temperature, SystemPrompt: decision.SystemPrompt})
	s.metrics.BridgeLatency.WithLabelValues(decision.Bridge).Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.DispatchTotal.WithLabelValues(decision.TaskType, "error").Inc()
		_, _ = s.core.Tasks.Fail(id, err.Error())
		return httpError(c, errs.Wrap(errs.BridgeProtocol, err, "bridge execute failed"))
	}

	if res.Mode == bridge.ModeSync {
		if res.Success {
			t, _ = s.core.Tasks.Complete(id, res.Response)
			s.core.Agents.UpdateStatus(decision.Agent, registry.StatusIdle, "")
			s.metrics.DispatchTotal.WithLabelValues(decision.TaskType, "ok").Inc()
		} else {
			t, _ = s.core.Tasks.Fail(id, res.Error)
			s.core.Agents.UpdateStatus(decision.Agent, registry.StatusIdle, "")
			s.metrics.DispatchTotal.WithLabelValues(decision.TaskType, "error").Inc()
		}
	} else {
		s.metrics.DispatchTotal.WithLabelValues(decision.TaskType, "pending").Inc()
	}
	s.core.Feed.Broadcast("task_dispatched", map[string]any{"id": id, "agent": decision.Agent, "bridge": decision.Bridge})

	return c.JSON(http.StatusOK, map[string]any{"routing": decision, "result": res, "task": t})
}

// pollTask checks an asynchronous bridge for a result without waiting on
// the filesystem watcher to observe it; used by CLI/clients that want a
// synchronous-feeling poll loop.
func (s *Server) pollTask(c echo.Context) error {
	id := c.Param("id")
	t, err := s.core.Tasks.Get(id)
	if err != nil {
		return httpError(c, err)
	}
	if t.Status != task.StatusRunning {
		return c.JSON(http.StatusOK, map[string]any{"status": t.Status, "task": t})
	}

	br, ok := s.core.Bridges[bridge.Key(bridgeForAgent(t.AssignedTo))]
	if !ok {
		return c.JSON(http.StatusOK, map[string]any{"status": t.Status, "message": "no bridge to poll", "task": t})
	}

	res, err := br.CheckResult(c.Request().Context(), bridge.Task{ID: id})
	if err != nil {
		return httpError(c, errs.Wrap(errs.BridgeProtocol, err, "check result failed"))
	}
	if res == nil {
		return c.JSON(http.StatusOK, map[string]any{"status": t.Status, "message": "still running", "task": t})
	}

	if res.Success {
		t, _ = s.core.Tasks.Complete(id, res.Response)
	} else {
		t, _ = s.core.Tasks.Fail(id, res.Error)
	}
	s.core.Agents.UpdateStatus(t.AssignedTo, registry.StatusIdle, "")
	s.core.Feed.Broadcast("task_complete", map[string]any{"id": id, "agent": t.AssignedTo})
	return c.JSON(http.StatusOK, map[string]any{"status": t.Status, "result": t.Result, "task": t})
}

// bridgeForAgent maps an agent name to its bridge key with its own fixed
// name switch; any name not listed maps to "ollama".
func bridgeForAgent(agentName string) string {
	switch agentName {
	case "CLAUDE_LUSTRO":
		return "claude"
	case "GEMINI_ARCHITECT":
		return "gemini"
	case "CODEX":
		return "codex"
	default:
		return "ollama"
	}
}

func (s *Server) retryTask(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.core.Tasks.Retry(id); err != nil {
		return httpError(c, err)
	}
	return s.dispatchTask(c)
}

func (s *Server) cancelTask(c echo.Context) error {
	id := c.Param("id")
	t, err := s.core.Tasks.Get(id)
	if err != nil {
		return httpError(c, err)
	}
	if t.AssignedTo != "" {
		s.core.Agents.UpdateStatus(t.AssignedTo, registry.StatusIdle, "")
	}
	t, err = s.core.Tasks.Cancel(id)
	if err != nil {
		return httpError(c, err)
	}
	s.core.Feed.Broadcast("task_cancelled", map[string]any{"id": id})
	return c.JSON(http.StatusOK, map[string]any{"cancelled": true, "task": t})
}

func (s *Server) listAgents(c echo.Context) error {
	all := s.core.Agents.GetAll()
	agents := make([]*registry.Agent, 0, len(all))
	for _, a := range all {
		agents = append(agents, a)
	}
	return c.JSON(http.StatusOK, map[string]any{"agents": agents, "total": len(agents)})
}

func (s *Server) getAgent(c echo.Context) error {
	a := s.core.Agents.Get(c.Param("name"))
	if a == nil {
		return httpError(c, errs.New(errs.NotFound, "agent "+c.Param("name")))
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) pingAgent(c echo.Context) error {
	name := c.Param("name")
	a := s.core.Agents.Get(name)
	if a == nil {
		return httpError(c, errs.New(errs.NotFound, "agent "+name))
	}
	alive := s.pingAlive(c.Request().Context(), a)
	return c.JSON(http.StatusOK, map[string]any{"agent": name, "alive": alive, "status": a.Status})
}

// pingAlive implements ping_agent's per-bridge liveness check: an ollama
// agent is only alive if the inference endpoint actually answers, a human
// is always alive, and a file-drop agent (claude/gemini/codex) is alive if
// its STATE.log was touched within the last 24 hours.
func (s *Server) pingAlive(ctx context.Context, a *registry.Agent) bool {
	switch a.BridgeType {
	case registry.BridgeHuman:
		return true
	case registry.BridgeOllama:
		ob, ok := s.core.Bridges[bridge.KeyOllama].(*bridge.OllamaBridge)
		return ok && ob.Health(ctx)
	default:
		info, err := os.Stat(filepath.Join(s.core.Config.AgentsDir, a.Name, registry.StateLogFile))
		if err != nil {
			return false
		}
		return time.Since(info.ModTime()) < 24*time.Hour
	}
}

func (s *Server) refreshAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Agents.Scan())
}

func (s *Server) status(c echo.Context) error {
	stats := s.core.Tasks.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"agents":         len(s.core.Agents.GetAll()),
		"by_status":      stats,
		"subscribers":    s.core.Feed.Count(),
	})
}

func (s *Server) health(c echo.Context) error {
	ollamaUp := s.core.Bridges[bridge.KeyOllama] != nil
	var models []string
	if ob, ok := s.core.Bridges[bridge.KeyOllama].(*bridge.OllamaBridge); ok {
		ollamaUp = ob.Health(c.Request().Context())
		if ollamaUp {
			models = ob.ListModels(c.Request().Context())
		}
	}
	stats := s.core.Tasks.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"builder":         "ok",
		"ollama":          ollamaUp,
		"ollama_models":   models,
		"agents_total":    len(s.core.Agents.GetAll()),
		"tasks_total":     sumCounts(stats),
		"tasks_by_status": stats,
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
		"version":         version.String(),
	})
}

func sumCounts(m map[task.Status]int) int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}

func (s *Server) logs(c echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	return c.JSON(http.StatusOK, s.core.Audit.ReadRecent(limit))
}

func (s *Server) routing(c echo.Context) error {
	return c.JSON(http.StatusOK, dispatch.RoutingTable)
}

func (s *Server) queue(c echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Tasks.PendingQueue())
}

type startDebateRequest struct {
	Topics []string `json:"topics"`
}

func (s *Server) startDebate(c echo.Context) error {
	var req startDebateRequest
	_ = c.Bind(&req)

	result := make(chan *debate.Session, 1)
	go func() {
		result <- s.core.Debate.Start(context.Background(), req.Topics)
	}()
	s.metrics.DebateSessions.Inc()

	select {
	case sess := <-result:
		return c.JSON(http.StatusOK, map[string]any{"session_id": sess.ID, "status": sess.Status})
	case <-time.After(200 * time.Millisecond):
		// Debate sessions can run for minutes; respond with "running" as
		// soon as it's underway. This body carries only the status, not the
		// new session's id.
		return c.JSON(http.StatusAccepted, map[string]any{"status": "running"})
	}
}

func (s *Server) getDebate(c echo.Context) error {
	sess := s.core.Debate.Get(c.Param("id"))
	if sess == nil {
		return httpError(c, errs.New(errs.NotFound, "debate session "+c.Param("id")))
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) getDebateReport(c echo.Context) error {
	sess := s.core.Debate.Get(c.Param("id"))
	if sess == nil {
		return httpError(c, errs.New(errs.NotFound, "debate session "+c.Param("id")))
	}
	return c.String(http.StatusOK, debate.Report(sess))
}

func (s *Server) debateHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, s.core.Debate.List())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// liveFeed upgrades to a WebSocket connection and relays every broadcast
// event to the client until it disconnects, with a ping/pong heartbeat
// enforcing feed.HeartbeatIdle().
func (s *Server) liveFeed(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	out, unsubscribe := s.core.Feed.Subscribe()
	defer unsubscribe()

	// gorilla/websocket permits only one concurrent writer per connection,
	// so the read pump below hands replies to the main loop over this
	// channel instead of writing directly.
	replies := make(chan []byte, 4)
	activity := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case activity <- struct{}{}:
			default:
			}
			feed.HandleControlMessage(string(msg), func(body []byte) {
				replies <- body
			})
		}
	}()

	heartbeat := time.NewTicker(feed.HeartbeatIdle())
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-activity:
			heartbeat.Reset(feed.HeartbeatIdle())
		case body := <-replies:
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return nil
			}
		case body, ok := <-out:
			if !ok {
				return nil
			}
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return nil
			}
			heartbeat.Reset(feed.HeartbeatIdle())
		case <-heartbeat.C:
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
		}
	}
}
