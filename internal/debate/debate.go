// Package debate implements the multi-round, multi-agent deliberation
// protocol: a fixed panel of specialist personas analyze a topic, critique
// each other's proposals, vote, and the engine compiles a ranked consensus.
package debate

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is one debate participant: a persona with a perspective, routed
// to a model/temperature pair the same way RoutingTable routes task types.
type Profile struct {
	Name        string
	Role        string
	Model       string
	Temperature float64
	Perspective string
}

// Roster is the fixed SZTAB specialist panel, mirroring the model and
// temperature defaults the static RoutingTable assigns their task types.
var Roster = map[string]Profile{
	"STROZ_SECURITY": {Name: "STROZ_SECURITY", Role: "Security Officer", Model: "qwen3:8b", Temperature: 0.3,
		Perspective: "security, vulnerabilities, sandbox, input validation, OWASP"},
	"INZYNIER_PERF": {Name: "INZYNIER_PERF", Role: "Performance Engineer", Model: "qwen2.5-coder:7b", Temperature: 0.4,
		Perspective: "performance, caching, observability, cost tracking, latency"},
	"ARCHITEKT_UX": {Name: "ARCHITEKT_UX", Role: "UX & Frontend Architect", Model: "qwen3:8b", Temperature: 0.5,
		Perspective: "frontend, UX, API integration, multi-modal, accessibility"},
	"TESTER_QA": {Name: "TESTER_QA", Role: "QA Commander", Model: "qwen2.5-coder:7b", Temperature: 0.3,
		Perspective: "testing, coverage, regression, e2e, CI/CD"},
	"NAVIGATOR_RAG": {Name: "NAVIGATOR_RAG", Role: "Knowledge & RAG Navigator", Model: "deepseek-r1:8b", Temperature: 0.4,
		Perspective: "retrieval pipelines, embeddings, semantic search, knowledge management"},
	"KOWAL_TOOLS": {Name: "KOWAL_TOOLS", Role: "Tool Forge Master", Model: "qwen2.5-coder:7b", Temperature: 0.4,
		Perspective: "tool registry, workflow/DAG engines, dynamic tools, automation"},
	"KRONIKARZ_DOCS": {Name: "KRONIKARZ_DOCS", Role: "Documentation Chronicler", Model: "phi4-mini", Temperature: 0.5,
		Perspective: "documentation, prompt versioning, voice integration, changelog"},
}

// DefaultTopics seeds a debate when the caller supplies none.
var DefaultTopics = []string{
	"Task routing — the static routing table is hand-maintained. How should it evolve as new task types appear?",
	"Security — several bridges write untrusted file content into the inbox. What validation is missing?",
	"Performance & observability — no latency metrics are exported yet. What should be instrumented first?",
	"Agent liveness — STATE.log staleness is the only signal of a stuck agent. Is that sufficient?",
	"Bridge reliability — the Codex bridge's timestamp-keyed results are inherently ambiguous under concurrency. Fix or document?",
	"Test coverage — which components most need deeper property-based testing?",
}

// RoundType distinguishes the three LLM-backed rounds a topic runs through.
type RoundType string

const (
	RoundAnalysis RoundType = "analysis"
	RoundRebuttal RoundType = "rebuttal"
	RoundVote     RoundType = "vote"
)

// AgentResponse is one agent's contribution to a single round.
type AgentResponse struct {
	Agent     string            `json:"agent"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Model     string            `json:"model"`
	Round     RoundType         `json:"round"`
	Timestamp time.Time         `json:"timestamp"`
	Metrics   map[string]any    `json:"metrics,omitempty"`
}

// TopicResult is the full record of one topic's debate.
type TopicResult struct {
	Topic       string              `json:"topic"`
	Analyses    []AgentResponse     `json:"analyses"`
	Rebuttals   []AgentResponse     `json:"rebuttals"`
	Votes       map[string]map[string]int `json:"votes"`
	Consensus   string              `json:"consensus"`
	ActionItems []string            `json:"action_items"`
}

// Status is a Session's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Session is one full debate run across its topic list.
type Session struct {
	ID          string        `json:"id"`
	Topics      []string      `json:"topics"`
	Results     []TopicResult `json:"results"`
	Status      Status        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// Summary is the index entry /debate/history returns per session.
type Summary struct {
	ID              string `json:"id"`
	Status          Status `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
	TopicCount      int    `json:"topic_count"`
	CompletedTopics int    `json:"completed_topics"`
	Error           string `json:"error,omitempty"`
}

func (s *Session) Summary() Summary {
	return Summary{
		ID:              s.ID,
		Status:          s.Status,
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
		TopicCount:      len(s.Topics),
		CompletedTopics: len(s.Results),
		Error:           s.Error,
	}
}
