package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// OllamaBridge talks to a local Ollama instance synchronously over HTTP.
// It is the only bridge whose Execute call returns a final result rather
// than a receipt.
type OllamaBridge struct {
	baseURL      string
	defaultModel string
	client       *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	log          *slog.Logger
}

// NewOllamaBridge builds a bridge against baseURL, applying a generous
// per-request timeout since local model inference can run long.
func NewOllamaBridge(baseURL, defaultModel string, timeout time.Duration) *OllamaBridge {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ollama",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &OllamaBridge{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		breaker:      breaker,
		log:          slog.Default().With("component", "bridge.ollama"),
	}
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]any         `json:"options"`
}

type ollamaGenerateResponse struct {
	Response     string `json:"response"`
	EvalCount    int    `json:"eval_count"`
	EvalDuration int64  `json:"eval_duration"`
}

// Execute posts the task as a single-shot generate call and blocks for the
// full response.
func (b *OllamaBridge) Execute(ctx context.Context, t Task, opts ExecOptions) (Result, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	model := opts.Model
	if model == "" {
		model = b.defaultModel
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	req := ollamaGenerateRequest{
		Model:  model,
		Prompt: fmt.Sprintf("# Task: %s\n\n%s", t.Title, t.Description),
		System: opts.SystemPrompt,
		Stream: false,
		Options: map[string]any{
			"num_ctx":     8192,
			"temperature": temperature,
			"top_k":       40,
			"top_p":       0.9,
			"num_predict": 2048,
		},
	}

	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.generate(ctx, req)
	})
	if err != nil {
		b.log.Warn("ollama execution failed", "task_id", t.ID, "error", err)
		return Result{Success: false, Mode: ModeSync, Error: err.Error()}, nil
	}

	resp := out.(ollamaGenerateResponse)
	return Result{
		Success:  true,
		Mode:     ModeSync,
		Response: resp.Response,
		Metrics: map[string]any{
			"model":         model,
			"eval_count":    resp.EvalCount,
			"eval_duration": resp.EvalDuration,
		},
	}, nil
}

func (b *OllamaBridge) generate(ctx context.Context, payload ollamaGenerateRequest) (ollamaGenerateResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ollamaGenerateResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return ollamaGenerateResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return ollamaGenerateResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ollamaGenerateResponse{}, fmt.Errorf("ollama HTTP %d: %s", resp.StatusCode, snippet)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ollamaGenerateResponse{}, err
	}
	return out, nil
}

// CheckResult is a no-op for a synchronous bridge: Execute already returned
// the final result.
func (b *OllamaBridge) CheckResult(ctx context.Context, t Task) (*Result, error) {
	return nil, nil
}

// Health probes /api/tags with a small retry budget for a cold daemon that
// can take a moment to start accepting connections after boot, all bounded
// by a single 5s deadline covering every attempt.
func (b *OllamaBridge) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
		if err != nil {
			return err
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ollama health HTTP %d", resp.StatusCode)
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	return backoff.Retry(op, backoff.WithContext(policy, ctx)) == nil
}

// ListModels returns the tags Ollama currently has pulled; empty on any
// error.
func (b *OllamaBridge) ListModels(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return nil
	}
	resp, err := b.client.Do(req)
	if err != nil {
		b.log.Error("failed to list models", "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var data struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil
	}

	names := make([]string, 0, len(data.Models))
	for _, m := range data.Models {
		names = append(names, m.Name)
	}
	return names
}
