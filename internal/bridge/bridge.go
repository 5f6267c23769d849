// Package bridge implements the four concrete adapters that carry a
// dispatched task to its worker: one synchronous HTTP bridge (ollama) and
// three asynchronous file-drop/subprocess bridges (claude, gemini, codex).
package bridge

import "context"

// Mode tags whether a BridgeResult was produced synchronously or is a
// receipt for work still in flight.
type Mode string

const (
	ModeSync      Mode = "sync"
	ModeAsyncFile Mode = "async_file"
)

// Result is the tagged variant every bridge operation returns.
type Result struct {
	Success bool
	Mode    Mode
	Response string
	Error    string
	File     string
	Message  string
	Metrics  map[string]any
}

// Task is the minimal view a bridge needs of a task; kept separate from
// task.Task so this package has no dependency on the task package's
// persistence concerns.
type Task struct {
	ID          string
	Title       string
	Description string
	Priority    string
}

// ExecOptions lets a caller override generation parameters per dispatch,
// as spec's API surface allows ("The API may also override any of {agent,
// bridge, model} on a per-call basis").
type ExecOptions struct {
	Model        string
	Temperature  float64
	SystemPrompt string
}

// Bridge is the capability set every adapter exposes: Execute starts
// delivering a task (blocking for a final result on synchronous bridges, or
// returning immediately with a receipt on async ones); CheckResult polls
// for an asynchronously-arriving result. Synchronous bridges always return
// (nil, nil) from CheckResult.
type Bridge interface {
	Execute(ctx context.Context, t Task, opts ExecOptions) (Result, error)
	CheckResult(ctx context.Context, t Task) (*Result, error)
}

// Key names one of the four bridge implementations, used as the lookup key
// in a BridgeKey -> Bridge map instead of branching on a bridge's string
// name at every call site.
type Key string

const (
	KeyOllama Key = "ollama"
	KeyClaude Key = "claude"
	KeyCodex  Key = "codex"
	KeyGemini Key = "gemini"
)

// Set is the BridgeKey -> Bridge lookup the Dispatcher's routing decisions
// resolve against.
type Set map[Key]Bridge
