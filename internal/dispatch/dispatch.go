// Package dispatch classifies tasks by keyword scoring and resolves the
// classification against the static RoutingTable, consulting a live
// AgentRegistry for availability when one is wired in.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// intentPattern is one ordered (task_type, regex) classification rule.
type intentPattern struct {
	taskType string
	pattern  *regexp.Regexp
}

// intentPatterns is scanned in order; the highest-scoring type wins, ties
// broken by declaration order (first-declared wins).
var intentPatterns = []intentPattern{
	{"code_complex", regexp.MustCompile(`(?i)\b(refactor|security|audit|complex|architect|critical|bug.*fix|deep.*review)\b`)},
	{"code_feature", regexp.MustCompile(`(?i)\b(feature|endpoint.*logic.*test|full.*implementation|A.*to.*Z|from.*scratch)\b`)},
	{"code_simple", regexp.MustCompile(`(?i)\b(code|implement|function|class|script|debug|fix|program|write.*code|python|javascript|html|css|sql|api)\b`)},
	{"architecture", regexp.MustCompile(`(?i)\b(architect|design|structure|system.*design|plan|blueprint|schema)\b`)},
	{"review", regexp.MustCompile(`(?i)\b(review|check|verify|validate|inspect|assess)\b`)},
	{"reasoning", regexp.MustCompile(`(?i)\b(why|explain|reason|logic|proof|think.*step|math|calculate|solve)\b`)},
	{"docs", regexp.MustCompile(`(?i)\b(doc|documentation|readme|comment|describe|write.*doc)\b`)},
	{"test", regexp.MustCompile(`(?i)\b(test|unittest|pytest|coverage|spec|assert)\b`)},
	{"quick", regexp.MustCompile(`(?i)\b(yes or no|true or false|translate|define|what is|short|tldr|quick)\b`)},
	{"security_audit", regexp.MustCompile(`(?i)\b(security.*audit|vulnerability|sandbox|OWASP|injection|XSS|CSRF|penetration|exploit|CVE)\b`)},
	{"performance", regexp.MustCompile(`(?i)\b(performance|latency|throughput|cache.*strateg|profil|bottleneck|optimi.*speed|observability|metric.*track)\b`)},
	{"ux_design", regexp.MustCompile(`(?i)\b(UX|user.*experience|frontend.*design|interface|accessibility|responsive|multi.*modal.*UI)\b`)},
	{"quality_assurance", regexp.MustCompile(`(?i)\b(QA|quality.*assurance|regression.*test|e2e.*test|test.*plan|coverage.*target|CI.*CD.*pipeline)\b`)},
	{"knowledge_rag", regexp.MustCompile(`(?i)\b(RAG|retrieval.*augment|embedding|vector.*store|ChromaDB|semantic.*search|knowledge.*base)\b`)},
	{"tools_workflow", regexp.MustCompile(`(?i)\b(tool.*registry|workflow.*engine|DAG|pipeline.*build|dynamic.*tool|automat.*chain)\b`)},
	{"documentation", regexp.MustCompile(`(?i)\b(documentation.*system|prompt.*version|changelog.*maintain|API.*doc|voice.*integrat)\b`)},
	{"debate", regexp.MustCompile(`(?i)\b(debate|multi.*agent.*discuss|consensus|panel.*discussion)\b`)},
}

var validTypes = func() map[string]bool {
	m := make(map[string]bool, len(intentPatterns))
	for _, p := range intentPatterns {
		m[p.taskType] = true
	}
	return m
}()

// ClassifyInput is the pair of fields classification scores against.
type ClassifyInput struct {
	Title       string
	Description string
}

// Decision is the result of Dispatch: what type the task was classified as
// and where it should go.
type Decision struct {
	TaskType     string
	Agent        string
	Bridge       string
	Model        string
	Temperature  float64
	SystemPrompt string
	Confidence   float64
	Fallback     bool
	Busy         bool
}

// Registry is satisfied by the small adapter internal/core wraps around
// *registry.Registry; Dispatcher only ever needs this one predicate.
type Registry interface {
	IsAvailable(agentName string) bool
}

// Dispatcher classifies tasks and resolves routing decisions.
type Dispatcher struct {
	registry   Registry // nil means "always available"
	httpClient *http.Client
	ollamaURL  string
	log        *slog.Logger
}

// New builds a Dispatcher. registry may be nil to disable availability
// checks and fallback routing entirely.
func New(registry Registry, ollamaURL string) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ollamaURL:  ollamaURL,
		log:        slog.Default().With("component", "dispatcher"),
	}
}

// classify scores title+description against intentPatterns, returning the
// winning type and whether the text was long enough, with a fallback
// result, to justify a second opinion from the LLM classifier.
func classify(in ClassifyInput) (taskType string, matchCount int, needsSecondOpinion bool) {
	combined := in.Title + " " + in.Description
	best := ""
	bestCount := 0
	for _, p := range intentPatterns {
		matches := p.pattern.FindAllString(combined, -1)
		if len(matches) > bestCount {
			best = p.taskType
			bestCount = len(matches)
		}
	}
	if best == "" {
		best = FallbackType
	}

	combinedLen := len(in.Title) + len(in.Description)
	needsSecondOpinion = best == FallbackType && bestCount == 0 && combinedLen > 20
	return best, bestCount, needsSecondOpinion
}

func confidenceFor(taskType string, matchCount int) float64 {
	switch {
	case taskType == FallbackType && matchCount == 0:
		return 0.5
	case matchCount >= 3:
		return 1.0
	default:
		return 0.7
	}
}

// Classify runs the keyword classifier only — no LLM second opinion.
func (d *Dispatcher) Classify(in ClassifyInput) string {
	t, _, _ := classify(in)
	return t
}

// ClassifyWithSecondOpinion runs the keyword classifier, then — only when it
// fell back to FallbackType with zero matches and the text is non-trivial —
// asks the configured Ollama model to pick a type. Any error or timeout
// silently degrades to the keyword result; this call is never allowed to
// fail a dispatch.
func (d *Dispatcher) ClassifyWithSecondOpinion(ctx context.Context, in ClassifyInput) string {
	keyword, _, needsSecondOpinion := classify(in)
	if !needsSecondOpinion {
		return keyword
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := d.classifyWithOllama(ctx, in)
	if err != nil {
		d.log.Warn("ollama second-opinion classification failed, using keyword result", "error", err)
		return keyword
	}
	return result
}

func (d *Dispatcher) classifyWithOllama(ctx context.Context, in ClassifyInput) (string, error) {
	prompt := fmt.Sprintf(
		"You are a task classifier. Given a task title and description, "+
			"respond with EXACTLY ONE of the known task types and nothing else.\n\n"+
			"Title: %s\nDescription: %s\n\nType:", in.Title, in.Description)

	payload := map[string]any{
		"model":  "phi4-mini",
		"prompt": prompt,
		"stream": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.ollamaURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama classification HTTP %d", resp.StatusCode)
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	raw := strings.ToLower(strings.TrimSpace(out.Response))
	for t := range validTypes {
		if strings.Contains(raw, t) {
			return t, nil
		}
	}
	return "", fmt.Errorf("ollama returned unrecognised type %q", raw)
}

// CheckAvailability reports whether agentName can take a new task. With no
// registry wired in, everything is considered available.
func (d *Dispatcher) CheckAvailability(agentName string) bool {
	if d.registry == nil {
		return true
	}
	return d.registry.IsAvailable(agentName)
}

// FindAlternative looks for OLLAMA_WORKER as the universal fallback agent
// when the primary route's agent is busy.
func (d *Dispatcher) FindAlternative() (Rule, bool) {
	if d.registry == nil {
		return Rule{}, false
	}
	if !d.CheckAvailability("OLLAMA_WORKER") {
		return Rule{}, false
	}
	rule := RoutingTable[FallbackType]
	rule.Agent = "OLLAMA_WORKER"
	rule.Bridge = "ollama"
	return rule, true
}

// Dispatch classifies a task (via the keyword-only path; callers that want
// the LLM second opinion should call ClassifyWithSecondOpinion and pass its
// result through DispatchAs) and resolves a routing Decision.
func (d *Dispatcher) Dispatch(in ClassifyInput) Decision {
	taskType, matchCount, _ := classify(in)
	return d.DispatchAs(taskType, matchCount)
}

// DispatchAs resolves a routing Decision for an already-classified type,
// letting callers supply the result of ClassifyWithSecondOpinion.
func (d *Dispatcher) DispatchAs(taskType string, matchCount int) Decision {
	rule, ok := RoutingTable[taskType]
	if !ok {
		rule = RoutingTable[FallbackType]
		taskType = FallbackType
	}

	decision := Decision{
		TaskType:     taskType,
		Agent:        rule.Agent,
		Bridge:       rule.Bridge,
		Model:        rule.Model,
		Temperature:  rule.Temperature,
		SystemPrompt: rule.SystemPrompt,
		Confidence:   confidenceFor(taskType, matchCount),
	}

	if d.registry != nil && !d.CheckAvailability(decision.Agent) {
		if alt, ok := d.FindAlternative(); ok {
			decision.Agent = alt.Agent
			decision.Bridge = alt.Bridge
			decision.Fallback = true
			d.log.Info("primary agent busy, falling back", "task_type", taskType, "fallback_agent", alt.Agent)
		} else {
			decision.Busy = true
		}
	}

	d.log.Info("dispatched", "task_type", decision.TaskType, "agent", decision.Agent, "bridge", decision.Bridge, "confidence", decision.Confidence)
	return decision
}
