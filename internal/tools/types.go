// Package tools defines the typed tool registry the planner and executor
// operate against. Each tool pairs a JSON-schema argument contract with an
// executor over the analytics dataset.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"datanerd/internal/dataset"
)

// Property describes one field of a tool's argument schema. The subset
// mirrors what the five tools need; it renders to standard JSON Schema.
type Property struct {
	Type        string              `json:"type,omitempty"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Pattern     string              `json:"pattern,omitempty"`
	Minimum     *float64            `json:"minimum,omitempty"`
	Maximum     *float64            `json:"maximum,omitempty"`
	MinItems    int                 `json:"minItems,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

// Schema is a tool's argument contract.
type Schema struct {
	Required   []string            `json:"required,omitempty"`
	Properties map[string]Property `json:"properties"`
}

// doc renders the schema as a complete JSON Schema object document.
func (s Schema) doc() map[string]any {
	raw, _ := json.Marshal(struct {
		Type                 string              `json:"type"`
		Properties           map[string]Property `json:"properties"`
		Required             []string            `json:"required,omitempty"`
		AdditionalProperties bool                `json:"additionalProperties"`
	}{
		Type:       "object",
		Properties: s.Properties,
		Required:   s.Required,
	})
	var doc map[string]any
	_ = json.Unmarshal(raw, &doc)
	return doc
}

// JSON returns the schema document as a compact JSON string, used when
// dumping the registry into planner prompts.
func (s Schema) JSON() string {
	raw, _ := json.Marshal(s.doc())
	return string(raw)
}

// ExecuteFunc runs a tool. Args have already been coerced and validated.
type ExecuteFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registered tool definition.
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Execute     ExecuteFunc

	compiled *jsonschema.Schema
}

// =============================================================================
// RESULT SHAPES
// =============================================================================

// ListProductsResult is the list_products payload.
type ListProductsResult struct {
	Products []dataset.Product `json:"products"`
}

// TopProductsResult is the top_products payload, rows sorted descending.
type TopProductsResult struct {
	Rows []dataset.TopRow `json:"rows"`
}

// TimeseriesResult is the timeseries payload, one series per requested
// product.
type TimeseriesResult struct {
	Series []dataset.Series `json:"series"`
}

// DecodeResult converts a tool result into target via a JSON round-trip.
// It accepts both freshly typed results and cache-served JSON maps, which
// is why consumers must never type-assert results directly.
func DecodeResult(result any, target any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode tool result: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode tool result: %w", err)
	}
	return nil
}
