package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"datanerd/internal/llm"
	"datanerd/internal/types"
)

func TestRouteOutOfDomain(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"weather", "What's the weather tomorrow?"},
		{"recipe", "best lasagna recipe for tonight"},
		{"no vocabulary", "tell me something interesting"},
		{"blacklist beats vocabulary", "sales of movie merch this month"},
		{"empty", ""},
	}

	m := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := m.Route(context.Background(), tt.query, nil)
			assert.True(t, d.OOD)
			assert.Empty(t, d.Route)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestRouteWorkerSelection(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  types.Route
	}{
		{"plain data question", "What were the sales for my top 10 products last month?", types.RouteDataPresenter},
		{"traffic lookup", "show traffic for those products last month", types.RouteDataPresenter},
		{"why question", "Why did sales drop WoW?", types.RouteInsightGenerator},
		{"benchmark comparison", "how do my sessions compare to the category benchmark", types.RouteInsightGenerator},
		{"performance wording", "top 5 performers this week", types.RouteInsightGenerator},
		{"top n grants vocabulary", "show my top 3 by units", types.RouteDataPresenter},
	}

	m := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := m.Route(context.Background(), tt.query, nil)
			assert.False(t, d.OOD)
			assert.Equal(t, tt.want, d.Route)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestRouteDoesNotConsultLLMWhenConfident(t *testing.T) {
	client := llm.NewScripted("router", `{"ood": true, "reason": "ignore me"}`)
	m := New(client)

	d := m.Route(context.Background(), "sales last month", nil)
	assert.False(t, d.OOD)
	assert.Equal(t, types.RouteDataPresenter, d.Route)
	assert.Empty(t, client.Calls(), "heuristic is confident, the LLM must stay idle")
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"ood": false}`, `{"ood": false}`},
		{`noise {"a": {"b": 1}} tail`, `{"a": {"b": 1}}`},
		{`no braces`, ""},
		{`{"unclosed": 1`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, firstJSONObject(tt.in), "input %q", tt.in)
	}
}
