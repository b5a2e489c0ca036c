package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"datanerd/internal/config"
	"datanerd/internal/logging"
)

// NewFromConfig builds the client named by cfg.Provider. Provider "none"
// (or empty) returns a nil client, which callers treat as "heuristics
// only". Providers named "fake:<name>" resolve through the fake registry.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	provider := strings.TrimSpace(cfg.Provider)

	if name, ok := strings.CutPrefix(provider, "fake:"); ok {
		return fakeByName(name)
	}

	switch provider {
	case "", "none":
		logging.LLM("no LLM provider configured, heuristic paths only")
		return nil, nil

	case "openai":
		oc := DefaultOpenAIConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			oc.Timeout = d
		}
		return NewOpenAIClientWithConfig(oc), nil

	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}
