package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"datanerd/internal/dataset"
	"datanerd/internal/logging"
)

const isoDatePattern = `^\d{4}-\d{2}-\d{2}$`

// Registry holds the static tool set over one dataset surface.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// New builds the registry with the five analytics tools bound to q.
func New(q dataset.Query) (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool)}

	defs := []*Tool{
		listProductsTool(q),
		topProductsTool(q),
		timeseriesTool(q),
		benchmarkTool(q),
		computeChangesTool(),
	}
	for _, t := range defs {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(t *Tool) error {
	compiler := jsonschema.NewCompiler()
	url := "tool://" + t.Name + "/schema.json"
	if err := compiler.AddResource(url, t.Schema.doc()); err != nil {
		return fmt.Errorf("add schema resource for %s: %w", t.Name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name, err)
	}
	t.compiled = compiled

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %s already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all tool names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe dumps the registry for planner prompts: one block per tool
// with its description and schema JSON.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, name := range r.Names() {
		t, _ := r.Get(name)
		fmt.Fprintf(&b, "- %s: %s\n  args schema: %s\n", t.Name, t.Description, t.Schema.JSON())
	}
	return b.String()
}

// ValidateArgs coerces args and validates them against the tool's schema.
// It returns the canonical args (JSON-normalized, unknown keys dropped)
// that plans should carry and signatures should be computed over.
func (r *Registry) ValidateArgs(name string, args map[string]any) (map[string]any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	coerced := Coerce(args)
	for k := range coerced {
		if _, known := t.Schema.Properties[k]; !known {
			delete(coerced, k)
		}
	}

	// Round-trip so the validator sees pure JSON types and so canonical
	// plans hold the same representation a cache hit would.
	raw, err := json.Marshal(coerced)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, name, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, name, err)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	if err := t.compiled.Validate(any(payload)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, name, err)
	}
	return payload, nil
}

// Execute validates args and runs the tool.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	canonical, err := r.ValidateArgs(name, args)
	if err != nil {
		return nil, err
	}

	timer := logging.StartTimer(logging.CategoryTools, name)
	defer timer.Stop()

	result, err := t.Execute(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return result, nil
}

// =============================================================================
// TOOL DEFINITIONS
// =============================================================================

func f(v float64) *float64 { return &v }

var metricProperty = Property{
	Type:        "string",
	Description: "metric to aggregate",
	Enum:        []string{dataset.MetricSales, dataset.MetricUnits, dataset.MetricSessions, dataset.MetricConversionRate},
}

func dateProperty(desc string) Property {
	return Property{Type: "string", Description: desc, Pattern: isoDatePattern}
}

func listProductsTool(q dataset.Query) *Tool {
	return &Tool{
		Name:        "list_products",
		Description: "List catalog products, optionally filtered by category.",
		Schema: Schema{
			Properties: map[string]Property{
				"category": {Type: "string", Description: "exact category name"},
				"limit":    {Type: "integer", Description: "max products to return", Minimum: f(1), Maximum: f(500)},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			category, _ := args["category"].(string)
			limit := intArg(args, "limit", 100)
			products, err := q.ListProducts(ctx, category, limit)
			if err != nil {
				return nil, err
			}
			return &ListProductsResult{Products: products}, nil
		},
	}
}

func topProductsTool(q dataset.Query) *Tool {
	return &Tool{
		Name:        "top_products",
		Description: "Rank products by a metric total over a date range, descending.",
		Schema: Schema{
			Required: []string{"metric", "startDate", "endDate"},
			Properties: map[string]Property{
				"metric":    metricProperty,
				"startDate": dateProperty("inclusive range start (YYYY-MM-DD)"),
				"endDate":   dateProperty("inclusive range end (YYYY-MM-DD)"),
				"limit":     {Type: "integer", Description: "how many products to return", Minimum: f(1), Maximum: f(100)},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			rows, err := q.TopProducts(ctx,
				stringArg(args, "metric"),
				stringArg(args, "startDate"),
				stringArg(args, "endDate"),
				intArg(args, "limit", 10))
			if err != nil {
				return nil, err
			}
			return &TopProductsResult{Rows: rows}, nil
		},
	}
}

func timeseriesTool(q dataset.Query) *Tool {
	return &Tool{
		Name:        "timeseries",
		Description: "Daily metric values for specific products over a date range.",
		Schema: Schema{
			Required: []string{"metric", "productIds", "startDate", "endDate"},
			Properties: map[string]Property{
				"metric":     metricProperty,
				"productIds": {Type: "array", Description: "product ids to chart", MinItems: 1, Items: &Property{Type: "string"}},
				"startDate":  dateProperty("inclusive range start (YYYY-MM-DD)"),
				"endDate":    dateProperty("inclusive range end (YYYY-MM-DD)"),
				"grain":      {Type: "string", Description: "sampling grain", Enum: []string{"day"}},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			series, err := q.Timeseries(ctx,
				stringArg(args, "metric"),
				stringSliceArg(args, "productIds"),
				stringArg(args, "startDate"),
				stringArg(args, "endDate"))
			if err != nil {
				return nil, err
			}
			return &TimeseriesResult{Series: series}, nil
		},
	}
}

func benchmarkTool(q dataset.Query) *Tool {
	return &Tool{
		Name:        "benchmark",
		Description: "Category average of a metric over a date range.",
		Schema: Schema{
			Required: []string{"metric", "category", "startDate", "endDate"},
			Properties: map[string]Property{
				"metric":    metricProperty,
				"category":  {Type: "string", Description: "category to benchmark against"},
				"startDate": dateProperty("inclusive range start (YYYY-MM-DD)"),
				"endDate":   dateProperty("inclusive range end (YYYY-MM-DD)"),
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return q.Benchmark(ctx,
				stringArg(args, "metric"),
				stringArg(args, "category"),
				stringArg(args, "startDate"),
				stringArg(args, "endDate"))
		},
	}
}

func computeChangesTool() *Tool {
	return &Tool{
		Name:        "compute_changes",
		Description: "Absolute and percentage change between the first and last point of a series.",
		Schema: Schema{
			Required: []string{"points"},
			Properties: map[string]Property{
				"points": {
					Type:        "array",
					Description: "ordered series points",
					MinItems:    2,
					Items: &Property{
						Type:     "object",
						Required: []string{"value"},
						Properties: map[string]Property{
							"date":  {Type: "string"},
							"value": {Type: "number"},
						},
					},
				},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			var points []dataset.Point
			if err := DecodeResult(args["points"], &points); err != nil {
				return nil, fmt.Errorf("%w: points: %v", ErrInvalidArgs, err)
			}
			return dataset.ComputeChanges(points)
		},
	}
}

// =============================================================================
// ARG HELPERS
// =============================================================================

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
