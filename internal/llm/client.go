// Package llm defines the language model client abstraction shared by
// the specialists, plus a resilience wrapper adding retries, rate
// limiting and a circuit breaker.
package llm

import (
	"context"
	"errors"
)

// Sentinel errors surfaced to callers. Use errors.Is to detect them.
var (
	// ErrLLMUnavailable marks exhausted retries or an open circuit.
	ErrLLMUnavailable = errors.New("llm unavailable")
	// ErrEmptyLLMResponse marks a call that returned no text.
	ErrEmptyLLMResponse = errors.New("empty llm response")
)

// Image is one chart attached to a vision call.
type Image struct {
	Path        string `json:"path"`
	Detail      string `json:"detail"` // high|auto|low
	Description string `json:"description,omitempty"`
}

// Usage is the provider-reported token consumption of one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is the result of one generation call.
type Response struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// Client generates text from a system prompt, a user prompt and optional
// chart images. Implementations must honor ctx cancellation.
type Client interface {
	GenerateText(ctx context.Context, system, user string, images []Image) (Response, error)
}
