package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"datanerd/internal/logging"
)

// GeminiClient implements Client over the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

// Name identifies the provider.
func (c *GeminiClient) Name() string { return "gemini" }

// Complete sends the request through the SDK.
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages in completion request")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if strings.TrimSpace(req.Instructions) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}

	logging.LLMDebug("[Gemini] Complete: model=%s messages=%d temp=%.2f", model, len(contents), req.Temperature)

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("GenAI request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, ErrEmptyCompletion
	}

	out := &CompletionResponse{
		Text:      text,
		LatencyMs: time.Since(startTime).Milliseconds(),
		Raw:       resp,
	}
	if resp.UsageMetadata != nil {
		out.Usage = &Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	logging.LLM("[Gemini] Complete: completed in %v response_len=%d", time.Since(startTime), len(text))
	return out, nil
}
