package debate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/corrinhale/taskforge/internal/bridge"
)

// defaultRoundConcurrency caps how many agents run an LLM call at once
// within a single round when the caller doesn't specify one; topics and
// rounds themselves stay strictly sequential. Callers should thread in
// config.Config.DebateConcurrency instead of relying on this.
const defaultRoundConcurrency = 4

const (
	analysisWordLimit  = 300
	rebuttalWordLimit  = 250
	actionExcerptChars = 200
)

// Engine runs debate sessions against the Ollama bridge and keeps completed
// (and in-flight) sessions in memory for later retrieval.
type Engine struct {
	ollama *bridge.OllamaBridge
	roster map[string]Profile
	topics []string
	sem    *semaphore.Weighted
	log    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewEngine wires an Engine against a live Ollama bridge. A nil roster or
// topics list falls back to Roster/DefaultTopics. concurrency caps how many
// agents run an LLM call at once within a single round; a value <= 0 falls
// back to defaultRoundConcurrency.
func NewEngine(ollama *bridge.OllamaBridge, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = defaultRoundConcurrency
	}
	return &Engine{
		ollama:   ollama,
		roster:   Roster,
		topics:   DefaultTopics,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		log:      slog.Default().With("component", "debate.engine"),
		sessions: make(map[string]*Session),
	}
}

// Start creates a session and runs it synchronously to completion, the way
// every other call in this engine blocks on its LLM round-trips; callers
// that want this off the request path should call it from their own
// goroutine (the server layer does, for its /debate/start handler).
func (e *Engine) Start(ctx context.Context, topics []string) *Session {
	if len(topics) == 0 {
		topics = e.topics
	}

	s := &Session{
		ID:        newSessionID(),
		Topics:    topics,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	e.put(s)

	sysContext := e.buildSystemContext()

	for _, topic := range topics {
		result, err := e.runTopic(ctx, topic, sysContext)
		if err != nil {
			s.Status = StatusFailed
			s.Error = err.Error()
			s.CompletedAt = time.Now().UTC()
			e.put(s)
			return s
		}
		s.Results = append(s.Results, result)
		e.put(s)
	}

	s.Status = StatusCompleted
	s.CompletedAt = time.Now().UTC()
	e.put(s)
	return s
}

func (e *Engine) put(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *s
	e.sessions[s.ID] = &cp
}

// Get returns a session by id, or nil if unknown.
func (e *Engine) Get(id string) *Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[id]
}

// List returns every session's summary, most recently started first.
func (e *Engine) List() []Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Summary, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// buildSystemContext is a lightweight, informational paragraph only; it is
// not a capability agents can act on, just shared framing for every call.
func (e *Engine) buildSystemContext() string {
	names := make([]string, 0, len(e.roster))
	for name := range e.roster {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf(
		"You are part of a panel of %d specialist agents (%s) deliberating about "+
			"a multi-agent task orchestrator. Be concrete and concise.",
		len(names), strings.Join(names, ", "),
	)
}

func (e *Engine) runTopic(ctx context.Context, topic, sysContext string) (TopicResult, error) {
	analyses := e.runRound(ctx, RoundAnalysis, topic, sysContext, nil)

	rebuttals := e.runRound(ctx, RoundRebuttal, topic, sysContext, analyses)

	votes := e.runVoteRound(ctx, topic, sysContext, analyses)

	consensus, actionItems := compileConsensus(votes, analyses)

	return TopicResult{
		Topic:       topic,
		Analyses:    analyses,
		Rebuttals:   rebuttals,
		Votes:       votes,
		Consensus:   consensus,
		ActionItems: actionItems,
	}, nil
}

// runRound fans the analysis/rebuttal prompt for every roster agent out in
// parallel, capped by the engine's semaphore, and waits for all of them.
func (e *Engine) runRound(ctx context.Context, round RoundType, topic, sysContext string, prior []AgentResponse) []AgentResponse {
	names := sortedNames(e.roster)
	out := make([]AgentResponse, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		i, name := i, name
		if err := e.sem.Acquire(ctx, 1); err != nil {
			out[i] = AgentResponse{Agent: name, Round: round, Content: "error: " + err.Error(), Timestamp: time.Now().UTC()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.sem.Release(1)
			out[i] = e.callAgent(ctx, name, round, topic, sysContext, prior)
		}()
	}
	wg.Wait()
	return out
}

func (e *Engine) runVoteRound(ctx context.Context, topic, sysContext string, analyses []AgentResponse) map[string]map[string]int {
	names := sortedNames(e.roster)
	votes := make(map[string]map[string]int, len(names))
	var mu sync.Mutex

	var wg sync.WaitGroup
	for _, name := range names {
		name := name
		if err := e.sem.Acquire(ctx, 1); err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.sem.Release(1)
			resp := e.callAgent(ctx, name, RoundVote, topic, sysContext, analyses)
			parsed := parseVotes(resp.Content, name, names)
			mu.Lock()
			votes[name] = parsed
			mu.Unlock()
		}()
	}
	wg.Wait()
	return votes
}

func (e *Engine) callAgent(ctx context.Context, agentName string, round RoundType, topic, sysContext string, prior []AgentResponse) AgentResponse {
	profile := e.roster[agentName]
	prompt := buildPrompt(round, topic, profile, prior)

	res, err := e.ollama.Execute(ctx, bridge.Task{ID: agentName, Title: string(round), Description: prompt},
		bridge.ExecOptions{Model: profile.Model, Temperature: profile.Temperature, SystemPrompt: roleSystemPrompt(profile, sysContext)})

	resp := AgentResponse{
		Agent:     agentName,
		Role:      profile.Role,
		Model:     profile.Model,
		Round:     round,
		Timestamp: time.Now().UTC(),
	}
	if err != nil || !res.Success {
		msg := res.Error
		if err != nil {
			msg = err.Error()
		}
		resp.Content = "error: " + msg
		e.log.Warn("agent call failed", "agent", agentName, "round", round, "error", msg)
		return resp
	}
	resp.Content = res.Response
	resp.Metrics = res.Metrics
	return resp
}

func roleSystemPrompt(p Profile, sysContext string) string {
	return fmt.Sprintf("%s\n\nYou are %s, the %s. Your perspective: %s.", sysContext, p.Name, p.Role, p.Perspective)
}

func buildPrompt(round RoundType, topic string, p Profile, prior []AgentResponse) string {
	switch round {
	case RoundAnalysis:
		return fmt.Sprintf(
			"Topic: %s\n\nGive your assessment from your perspective, then list your top 3 proposals "+
				"each with a priority (critical/high/medium/low) and an effort estimate (small/medium/large). "+
				"Keep your whole answer under %d words.",
			topic, analysisWordLimit,
		)
	case RoundRebuttal:
		return fmt.Sprintf(
			"Topic: %s\n\nHere are the other agents' analyses:\n\n%s\n\n"+
				"For each one, say whether you support, challenge, or would improve it, and why. "+
				"Keep your whole answer under %d words.",
			topic, renderAnalyses(prior), rebuttalWordLimit,
		)
	case RoundVote:
		return fmt.Sprintf(
			"Topic: %s\n\nHere are the analyses again:\n\n%s\n\n"+
				"Score every OTHER agent's proposal from 1 (weak) to 5 (excellent). "+
				"Respond with exactly one JSON object and nothing else, in the form "+
				`{"votes": {"AGENT_NAME": N, ...}}.`,
			topic, renderAnalyses(prior),
		)
	default:
		return topic
	}
}

func renderAnalyses(prior []AgentResponse) string {
	var b strings.Builder
	for _, r := range prior {
		fmt.Fprintf(&b, "## %s (%s)\n%s\n\n", r.Agent, r.Role, r.Content)
	}
	return b.String()
}

func sortedNames(roster map[string]Profile) []string {
	names := make([]string, 0, len(roster))
	for name := range roster {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type voteEnvelope struct {
	Votes map[string]json.Number `json:"votes"`
}

// parseVotes extracts the first JSON object in content; a malformed or
// absent object becomes an empty map. Scores are clamped to [1,5]; votes
// for the voter itself or for an agent outside the roster are discarded.
func parseVotes(content, voter string, roster []string) map[string]int {
	out := map[string]int{}

	start := strings.Index(content, "{")
	if start < 0 {
		return out
	}
	end := matchingBrace(content, start)
	if end < 0 {
		return out
	}

	var env voteEnvelope
	if err := json.Unmarshal([]byte(content[start:end+1]), &env); err != nil {
		return out
	}

	known := make(map[string]bool, len(roster))
	for _, n := range roster {
		known[n] = true
	}

	for agent, n := range env.Votes {
		if agent == voter || !known[agent] {
			continue
		}
		score, err := n.Int64()
		if err != nil {
			continue
		}
		if score < 1 {
			score = 1
		}
		if score > 5 {
			score = 5
		}
		out[agent] = int(score)
	}
	return out
}

// matchingBrace finds the index of the brace that closes the one at start,
// respecting nested objects; returns -1 if unbalanced.
func matchingBrace(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// compileConsensus sums votes per agent, ranks descending, and turns the
// top 3 into action items (agent name + a short excerpt of their analysis).
func compileConsensus(votes map[string]map[string]int, analyses []AgentResponse) (string, []string) {
	totals := map[string]int{}
	for _, ballot := range votes {
		for agent, score := range ballot {
			totals[agent] += score
		}
	}

	type ranked struct {
		agent string
		score int
	}
	rankedList := make([]ranked, 0, len(totals))
	for agent, score := range totals {
		rankedList = append(rankedList, ranked{agent, score})
	}
	sort.Slice(rankedList, func(i, j int) bool {
		if rankedList[i].score != rankedList[j].score {
			return rankedList[i].score > rankedList[j].score
		}
		return rankedList[i].agent < rankedList[j].agent
	})

	byAgent := make(map[string]string, len(analyses))
	for _, a := range analyses {
		byAgent[a.Agent] = a.Content
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ranked by peer vote:\n")
	for _, r := range rankedList {
		fmt.Fprintf(&b, "- %s: %d\n", r.agent, r.score)
	}

	top := rankedList
	if len(top) > 3 {
		top = top[:3]
	}
	actionItems := make([]string, 0, len(top))
	for _, r := range top {
		excerpt := byAgent[r.agent]
		if len(excerpt) > actionExcerptChars {
			excerpt = excerpt[:actionExcerptChars]
		}
		actionItems = append(actionItems, fmt.Sprintf("%s: %s", r.agent, excerpt))
	}

	return b.String(), actionItems
}
