package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"datanerd/internal/executor"
	"datanerd/internal/llm"
	"datanerd/internal/logging"
	"datanerd/internal/planner"
	"datanerd/internal/types"
)

// InsightPlaceholder is emitted when no LLM is configured for the
// narrative step.
const InsightPlaceholder = "Insight generation is unavailable without a language model; the collected metrics are recorded in the run."

// InsightConfig holds narrative tuning knobs.
type InsightConfig struct {
	Temperature     float64
	MaxOutputTokens int
}

// DefaultInsightConfig returns the default insight configuration.
func DefaultInsightConfig() InsightConfig {
	return InsightConfig{Temperature: 0.3, MaxOutputTokens: 1024}
}

// InsightGenerator answers diagnostic questions with an LLM narrative
// grounded on the executed plan. It never touches session state.
type InsightGenerator struct {
	planner  *planner.Planner
	executor *executor.Executor
	client   llm.Client
	cfg      InsightConfig
}

// NewInsightGenerator creates the insight agent. A nil client degrades
// the narrative to a fixed placeholder.
func NewInsightGenerator(pl *planner.Planner, ex *executor.Executor, client llm.Client) *InsightGenerator {
	return NewInsightGeneratorWithConfig(pl, ex, client, DefaultInsightConfig())
}

// NewInsightGeneratorWithConfig creates the insight agent with custom
// configuration.
func NewInsightGeneratorWithConfig(pl *planner.Planner, ex *executor.Executor, client llm.Client, cfg InsightConfig) *InsightGenerator {
	def := DefaultInsightConfig()
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	return &InsightGenerator{planner: pl, executor: ex, client: client, cfg: cfg}
}

// Handle plans, executes and narrates. LLM failures abort the run; only
// the absence of a client falls back to the placeholder.
func (a *InsightGenerator) Handle(ctx context.Context, in Input) (*Output, error) {
	out, err := planAndExecute(ctx, a.planner, a.executor, types.RouteInsightGenerator, in)
	if err != nil {
		return nil, err
	}

	if a.client == nil {
		logging.Agents("no llm configured, emitting insight placeholder")
		out.Response = InsightPlaceholder
		return out, nil
	}

	grounding, err := json.Marshal(map[string]any{
		"plan":      out.Plan,
		"toolCalls": out.ToolCalls,
	})
	if err != nil {
		return nil, fmt.Errorf("encode insight grounding: %w", err)
	}

	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		Instructions:    a.buildPrompt(in.InsightCards),
		Messages:        []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf("Question: %s\n\nData:\n%s", in.Query, grounding)}},
		Temperature:     a.cfg.Temperature,
		MaxOutputTokens: a.cfg.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("insight narrative: %w", err)
	}

	out.Response = strings.TrimSpace(resp.Text)
	return out, nil
}

func (a *InsightGenerator) buildPrompt(cards []types.MemoryCard) string {
	var sb strings.Builder
	sb.WriteString("You explain seller analytics results.\n")
	sb.WriteString("Ground every statement strictly on the JSON data provided; never invent numbers or products.\n")
	sb.WriteString("Treat empty result rows as \"no data returned\".\n")
	sb.WriteString("For week-over-week drops, decompose the movement: conversion_rate = units/sessions and price = sales/units.\n")
	sb.WriteString("Answer in a short paragraph followed by bullet points for the key numbers.\n")
	if len(cards) > 0 {
		sb.WriteString("\nRelevant memory from earlier runs:\n")
		for _, card := range cards {
			sb.WriteString(card.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
