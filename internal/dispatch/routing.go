package dispatch

// Rule is one entry of the static RoutingTable: task_type maps to an agent
// name, the bridge that reaches it, and optional generation parameters.
type Rule struct {
	Agent        string
	Bridge       string
	Model        string
	Temperature  float64
	SystemPrompt string
}

// FallbackType is used when no classification rule scores a match.
const FallbackType = "code_simple"

// RoutingTable is static configuration: task_type -> routing rule. It is
// exposed verbatim by GET /routing and consulted by Dispatch for every
// classified task.
var RoutingTable = map[string]Rule{
	"code_complex": {Agent: "CLAUDE_LUSTRO", Bridge: "claude"},
	"code_feature": {Agent: "CODEX", Bridge: "codex"},
	"code_simple":  {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "qwen2.5-coder:7b", Temperature: 0.4},
	"architecture": {Agent: "GEMINI_ARCHITECT", Bridge: "gemini"},
	"review":       {Agent: "CLAUDE_LUSTRO", Bridge: "claude"},
	"reasoning":    {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "deepseek-r1:8b", Temperature: 0.5},
	"docs":         {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "phi4-mini", Temperature: 0.5},
	"test":         {Agent: "CODEX", Bridge: "codex"},
	"quick":        {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "phi4-mini", Temperature: 0.3},

	// SZTAB specialist types, shared with the debate engine's agent roster.
	"security_audit":    {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "qwen3:8b", Temperature: 0.3, SystemPrompt: "You are a security officer focused on vulnerabilities, sandboxing, and input validation."},
	"performance":       {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "qwen2.5-coder:7b", Temperature: 0.4, SystemPrompt: "You are a performance engineer focused on caching, observability, and latency."},
	"ux_design":         {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "qwen3:8b", Temperature: 0.5, SystemPrompt: "You are a UX and frontend architect."},
	"quality_assurance": {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "qwen2.5-coder:7b", Temperature: 0.3, SystemPrompt: "You are a QA commander focused on testing and coverage."},
	"knowledge_rag":     {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "deepseek-r1:8b", Temperature: 0.4, SystemPrompt: "You are a knowledge and retrieval navigator."},
	"tools_workflow":    {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "qwen2.5-coder:7b", Temperature: 0.4, SystemPrompt: "You are a tool forge master focused on workflow engines and automation."},
	"documentation":     {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "phi4-mini", Temperature: 0.5, SystemPrompt: "You are a documentation chronicler."},
	"debate":            {Agent: "OLLAMA_WORKER", Bridge: "ollama", Model: "qwen3:8b", Temperature: 0.4},
}
