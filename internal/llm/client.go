// Package llm abstracts completion providers behind a single Client
// interface. Real providers are an OpenAI-compatible HTTP client and a
// Gemini SDK client; fakes registered under "fake:<name>" serve the
// scenario harness and tests.
package llm

import (
	"context"
	"errors"
)

// Message roles. A system role does not exist on the wire here; system
// text travels in CompletionRequest.Instructions.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNoAPIKey is returned when a provider needs a key and none is set.
	ErrNoAPIKey = errors.New("API key not configured")

	// ErrUnknownProvider is returned by the factory for a provider name it
	// cannot build.
	ErrUnknownProvider = errors.New("unknown LLM provider")

	// ErrEmptyCompletion is returned when a provider responds without any
	// usable text.
	ErrEmptyCompletion = errors.New("no completion returned")
)

// Message is one conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-independent completion call.
// Temperature is always sent to the provider, so zero means zero, not
// "use the default".
type CompletionRequest struct {
	Instructions    string    `json:"instructions,omitempty"`
	Messages        []Message `json:"messages"`
	Model           string    `json:"model,omitempty"`
	Temperature     float64   `json:"temperature"`
	MaxOutputTokens int       `json:"maxOutputTokens,omitempty"`
}

// Usage reports token counts when the provider exposes them.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// CompletionResponse is the provider's answer plus call metadata. Raw
// holds the provider-specific response for debugging.
type CompletionResponse struct {
	Text      string `json:"text"`
	LatencyMs int64  `json:"latencyMs"`
	Usage     *Usage `json:"usage,omitempty"`
	Raw       any    `json:"-"`
}

// Client is a completion provider.
type Client interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
