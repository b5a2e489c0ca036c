package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONCandidates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "bare object",
			text: `{"route":"data_presenter"}`,
			want: []string{`{"route":"data_presenter"}`},
		},
		{
			name: "object inside prose",
			text: `OUTPUT_JSON_PLAN here is the plan: {"a": 1} hope it helps`,
			want: []string{`{"a": 1}`},
		},
		{
			name: "braces inside double quoted string",
			text: `{"note": "use {curly} syntax"}`,
			want: []string{`{"note": "use {curly} syntax"}`},
		},
		{
			name: "closing brace inside string does not end object",
			text: `{"note": "}", "n": 1}`,
			want: []string{`{"note": "}", "n": 1}`},
		},
		{
			name: "braces inside single quoted string",
			text: `{'note': 'open { and close }'}`,
			want: []string{`{'note': 'open { and close }'}`},
		},
		{
			name: "escaped quote inside string",
			text: `{"note": "say \" {"} trailing`,
			want: []string{`{"note": "say \" {"}`},
		},
		{
			name: "nested object is one candidate",
			text: `{"outer": {"inner": 1}}`,
			want: []string{`{"outer": {"inner": 1}}`},
		},
		{
			name: "two objects in order",
			text: `first {"a": 1} then {"b": 2}`,
			want: []string{`{"a": 1}`, `{"b": 2}`},
		},
		{
			name: "apostrophe in prose does not open a string",
			text: `here's the plan {"a": 1}`,
			want: []string{`{"a": 1}`},
		},
		{
			name: "unbalanced object yields nothing",
			text: `{"a": {"b": 1}`,
			want: nil,
		},
		{
			name: "stray closing brace ignored",
			text: `} {"a": 1}`,
			want: []string{`{"a": 1}`},
		},
		{
			name: "no object",
			text: "nothing to see",
			want: nil,
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractJSONCandidates(tt.text)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStripTrailingCommas(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "object trailing comma",
			in:   `{"a": 1,}`,
			want: `{"a": 1}`,
		},
		{
			name: "array trailing comma",
			in:   `{"xs": [1, 2, ]}`,
			want: `{"xs": [1, 2 ]}`,
		},
		{
			name: "comma before newline and brace",
			in:   "{\"a\": 1,\n}",
			want: "{\"a\": 1\n}",
		},
		{
			name: "comma inside string kept",
			in:   `{"a": ",}"}`,
			want: `{"a": ",}"}`,
		},
		{
			name: "separator commas kept",
			in:   `{"a": 1, "b": 2}`,
			want: `{"a": 1, "b": 2}`,
		},
		{
			name: "nested trailing commas",
			in:   `{"steps": [{"tool": "x",},],}`,
			want: `{"steps": [{"tool": "x"}]}`,
		},
		{
			name: "escaped quote then trailing comma",
			in:   `{"a": "\"",}`,
			want: `{"a": "\""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripTrailingCommas(tt.in))
		})
	}
}
