// Package registry maintains a live, directory-backed map of agent
// capabilities and liveness, scanned from a fixed descriptor file in each
// immediate subdirectory of the agents root.
package registry

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DescriptorFile is the fixed filename a subdirectory must contain to be
// recognised as an agent.
const DescriptorFile = "WHO_AM_I.md"

// StateLogFile's mtime, when present, becomes an agent's last_seen.
const StateLogFile = "STATE.log"

// Status is liveness as tracked externally by dispatch/completion callbacks,
// never re-derived from a scan.
type Status string

const (
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

// BridgeType names the transport used to reach an agent.
type BridgeType string

const (
	BridgeOllama BridgeType = "ollama"
	BridgeClaude BridgeType = "claude"
	BridgeCodex  BridgeType = "codex"
	BridgeGemini BridgeType = "gemini"
	BridgeHuman  BridgeType = "human"
)

// bridgeMap is the static name -> bridge lookup; any name not listed here
// defaults to ollama.
var bridgeMap = map[string]BridgeType{
	"CLAUDE_LUSTRO":   BridgeClaude,
	"GEMINI_ARCHITECT": BridgeGemini,
	"CODEX":           BridgeCodex,
	"SHAD":            BridgeHuman,
}

// capabilityPatterns is the fixed keyword set used to derive capabilities
// from descriptor text.
var capabilityPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"code", regexp.MustCompile(`(?i)\b(code|program|implement|build|engineer|daemon|interpreter)\b`)},
	{"review", regexp.MustCompile(`(?i)\b(review|audit|security|quality)\b`)},
	{"architecture", regexp.MustCompile(`(?i)\b(architect|structure|design|system)\b`)},
	{"docs", regexp.MustCompile(`(?i)\b(doc|documentation|write|manifest)\b`)},
	{"test", regexp.MustCompile(`(?i)\b(test|coverage|qa)\b`)},
	{"reasoning", regexp.MustCompile(`(?i)\b(reason|think|analy|logic)\b`)},
}

var roleKeywords = []string{"the ", "architect", "engineer", "builder", "source", "mirror"}

// Agent is one registry entry.
type Agent struct {
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	Status         Status     `json:"status"`
	Capabilities   []string   `json:"capabilities"`
	BridgeType     BridgeType `json:"bridge_type"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	CurrentTask    string     `json:"current_task,omitempty"`
	DescriptorText string     `json:"-"`
}

func (a *Agent) clone() *Agent {
	cp := *a
	cp.Capabilities = append([]string(nil), a.Capabilities...)
	return &cp
}

// Registry scans baseDir's immediate subdirectories for agent descriptors
// and keeps an in-memory map, mutated by rescans and by status updates from
// dispatch/completion callbacks.
type Registry struct {
	mu      sync.Mutex
	baseDir string
	agents  map[string]*Agent
	log     *slog.Logger
}

// New scans baseDir once and returns a ready Registry.
func New(baseDir string) *Registry {
	r := &Registry{
		baseDir: baseDir,
		agents:  make(map[string]*Agent),
		log:     slog.Default().With("component", "registry"),
	}
	r.Scan()
	return r
}

// Scan rebuilds the map from the filesystem. A still-present agent keeps
// its externally-tracked status/current_task — a rescan never wipes
// liveness information just because the directory was walked again.
func (r *Registry) Scan() map[string]*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		r.log.Warn("agents directory not found", "dir", r.baseDir, "error", err)
		return r.snapshotLocked()
	}

	fresh := make(map[string]*Agent)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		folder := filepath.Join(r.baseDir, name)
		whoPath := filepath.Join(folder, DescriptorFile)

		text, err := os.ReadFile(whoPath)
		if err != nil {
			continue
		}

		agent := &Agent{
			Name:           name,
			Role:           extractRole(text),
			Capabilities:   extractCapabilities(text),
			BridgeType:     bridgeFor(name),
			DescriptorText: string(text),
			Status:         StatusIdle,
		}

		if existing, ok := r.agents[name]; ok {
			agent.Status = existing.Status
			agent.CurrentTask = existing.CurrentTask
		}

		statePath := filepath.Join(folder, StateLogFile)
		if info, err := os.Stat(statePath); err == nil {
			mtime := info.ModTime()
			agent.LastSeen = &mtime
		}

		fresh[name] = agent
		r.log.Info("registered agent", "name", name, "role", agent.Role, "bridge", agent.BridgeType)
	}

	r.agents = fresh
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() map[string]*Agent {
	out := make(map[string]*Agent, len(r.agents))
	for k, v := range r.agents {
		out[k] = v.clone()
	}
	return out
}

// GetAll returns a defensive copy of the whole map.
func (r *Registry) GetAll() map[string]*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Get returns a single agent, or nil if unknown.
func (r *Registry) Get(name string) *Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[name]
	if !ok {
		return nil
	}
	return a.clone()
}

// GetAvailable returns non-offline, non-human, unoccupied agents, optionally
// filtered to those carrying the given capability.
func (r *Registry) GetAvailable(capability string) []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Agent
	for _, a := range r.agents {
		if a.Status == StatusOffline {
			continue
		}
		if a.BridgeType == BridgeHuman {
			continue
		}
		if a.CurrentTask != "" {
			continue
		}
		if capability != "" && !contains(a.Capabilities, capability) {
			continue
		}
		out = append(out, a.clone())
	}
	return out
}

// UpdateStatus is called by dispatch/completion callbacks to record
// liveness that a filesystem scan cannot observe on its own.
func (r *Registry) UpdateStatus(name string, status Status, currentTask string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[name]
	if !ok {
		return
	}
	a.Status = status
	a.CurrentTask = currentTask
	now := time.Now()
	a.LastSeen = &now
}

func bridgeFor(name string) BridgeType {
	if b, ok := bridgeMap[name]; ok {
		return b
	}
	return BridgeOllama
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// extractRole walks the descriptor's Markdown AST looking, among its first
// five headings, for the first one whose text contains one of the role
// keywords; falls back to "agent".
func extractRole(descriptor []byte) string {
	md := goldmark.New()
	reader := text.NewReader(descriptor)
	doc := md.Parser().Parse(reader)

	lineLimit := 5
	seen := 0
	role := "agent"

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || seen >= lineLimit {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		seen++
		var buf bytes.Buffer
		for c := heading.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(descriptor))
			}
		}
		line := strings.ToLower(buf.String())
		for _, kw := range roleKeywords {
			if strings.Contains(line, kw) {
				role = strings.TrimSpace(buf.String())
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return role
}

// extractCapabilities matches the fixed keyword patterns against the whole
// descriptor text; "general" if none match.
func extractCapabilities(descriptor []byte) []string {
	var caps []string
	for _, p := range capabilityPatterns {
		if p.pattern.Match(descriptor) {
			caps = append(caps, p.name)
		}
	}
	if len(caps) == 0 {
		return []string{"general"}
	}
	return caps
}
