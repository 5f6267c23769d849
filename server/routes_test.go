package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/corrinhale/taskforge/internal/config"
	"github.com/corrinhale/taskforge/internal/core"
	"github.com/corrinhale/taskforge/internal/task"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.InboxDir = filepath.Join(dir, "INBOX")
	cfg.AgentsDir = filepath.Join(dir, "AGENTS")
	require.NoError(t, cfg.Validate())

	c, err := core.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return NewServer(c, prometheus.NewRegistry())
}

func doJSON(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndGetTask(t *testing.T) {
	s := testServer(t)

	rec := doJSON(s, http.MethodPost, "/api/v1/tasks", createTaskRequest{
		Title:       "write tests",
		Description: "cover the HTTP surface",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, task.StatusPending, created.Status)

	rec = doJSON(s, http.MethodGet, "/api/v1/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(s, http.MethodGet, "/api/v1/tasks/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var ae apiErrBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ae))
	require.NotEmpty(t, ae.Detail)
}

func TestCreateTaskRejectsEmptyTitle(t *testing.T) {
	s := testServer(t)
	rec := doJSON(s, http.MethodPost, "/api/v1/tasks", createTaskRequest{Description: "no title"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasksFiltersByStatus(t *testing.T) {
	s := testServer(t)
	doJSON(s, http.MethodPost, "/api/v1/tasks", createTaskRequest{Title: "a", Description: "d"})
	doJSON(s, http.MethodPost, "/api/v1/tasks", createTaskRequest{Title: "b", Description: "d"})

	rec := doJSON(s, http.MethodGet, "/api/v1/tasks?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []*task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 2)
}

func TestPingUnknownAgent(t *testing.T) {
	s := testServer(t)
	rec := doJSON(s, http.MethodPost, "/api/v1/agents/NOBODY/ping", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndStatusEndpoints(t *testing.T) {
	s := testServer(t)

	rec := doJSON(s, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(s, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(s, http.MethodGet, "/api/v1/routing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDispatchUnknownTaskReturnsNotFound(t *testing.T) {
	s := testServer(t)
	rec := doJSON(s, http.MethodPost, "/api/v1/tasks/does-not-exist/dispatch", dispatchRequest{})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type apiErrBody struct {
	Detail string `json:"detail"`
}
