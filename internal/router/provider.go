// Package router routes AI generation requests to interchangeable text/JSON
// backends by task type, with cost-aware fallback and a per-run circuit
// breaker. Providers expose a fixed capability surface; a backend that is
// not configured is simply absent from the routing table.
package router

import (
	"context"
	"fmt"
)

// Provider is the uniform capability surface every AI backend implements.
type Provider interface {
	// Name returns the provider name ("openai", "anthropic", "ollama").
	Name() string

	// GenerateText sends a plain-text generation request.
	GenerateText(ctx context.Context, req Request) (*Generation, error)

	// GenerateJSON sends a request whose response must be a JSON object.
	GenerateJSON(ctx context.Context, req Request) (*Generation, error)

	// EstimateCost estimates the USD cost for a request against the given
	// model with the given token counts.
	EstimateCost(model string, inputTokens, outputTokens int) float64

	// IsAvailable checks if the provider is properly configured and
	// reachable.
	IsAvailable(ctx context.Context) bool
}

// Request is an ephemeral AI generation request. Requests are never
// persisted.
type Request struct {
	TaskType    string
	Prompt      string
	System      string
	Model       string // empty -> provider default
	MaxTokens   int
	RequireJSON bool
}

// Generation is a raw provider result before routing metadata is attached.
type Generation struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Response is the routed result handed back to callers.
type Response struct {
	Content      string  `json:"content"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostEstimate float64 `json:"cost_estimate"`
	Success      bool    `json:"success"`
	Error        string  `json:"error,omitempty"`
}

// ErrNoProviderAvailable is returned when routing cannot find any working
// backend. The router never fabricates an empty response instead.
var ErrNoProviderAvailable = fmt.Errorf("no provider available")
