package tools

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestCoerceKeyAliases(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "snake_case dates",
			in:   map[string]any{"start_date": "2026-01-01", "end_date": "2026-01-31"},
			want: map[string]any{"startDate": "2026-01-01", "endDate": "2026-01-31"},
		},
		{
			name: "product ids",
			in:   map[string]any{"product_ids": []any{"P001"}},
			want: map[string]any{"productIds": []any{"P001"}},
		},
		{
			name: "n to limit",
			in:   map[string]any{"n": 5},
			want: map[string]any{"limit": 5},
		},
		{
			name: "topN to limit",
			in:   map[string]any{"topN": 5},
			want: map[string]any{"limit": 5},
		},
		{
			name: "top_n to limit",
			in:   map[string]any{"top_n": 5},
			want: map[string]any{"limit": 5},
		},
		{
			name: "canonical limit wins over alias",
			in:   map[string]any{"limit": 10, "n": 5},
			want: map[string]any{"limit": 10},
		},
		{
			name: "canonical keys pass through",
			in:   map[string]any{"startDate": "2026-01-01", "limit": 3},
			want: map[string]any{"startDate": "2026-01-01", "limit": 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coerce(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Coerce() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCoerceMetricSynonyms(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"revenue", "sales"},
		{"gmv", "sales"},
		{"traffic", "sessions"},
		{"visits", "sessions"},
		{"visit", "sessions"},
		{"conversion", "conversion_rate"},
		{"cvr", "conversion_rate"},
		{"sales", "sales"},
		{"units", "units"},
		{"  Revenue ", "sales"},
		{"SESSIONS", "sessions"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Coerce(map[string]any{"metric": tt.in})
			assert.Equal(t, tt.want, got["metric"])
		})
	}
}

func TestCoerceGrain(t *testing.T) {
	assert.Equal(t, "day", Coerce(map[string]any{"grain": "daily"})["grain"])
	assert.Equal(t, "day", Coerce(map[string]any{"grain": "DAILY"})["grain"])
	assert.Equal(t, "day", Coerce(map[string]any{"grain": "day"})["grain"])
	assert.Equal(t, "weekly", Coerce(map[string]any{"grain": "weekly"})["grain"])
}

func TestCoerceDateTrim(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"iso timestamp", "2026-01-01T00:00:00.000Z", "2026-01-01"},
		{"iso timestamp no millis", "2026-01-31T23:59:59Z", "2026-01-31"},
		{"bare date untouched", "2026-01-01", "2026-01-01"},
		{"non date untouched", "last month", "last month"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coerce(map[string]any{"startDate": tt.in, "endDate": tt.in})
			assert.Equal(t, tt.want, got["startDate"])
			assert.Equal(t, tt.want, got["endDate"])
		})
	}
}

func TestCoerceNumericLimit(t *testing.T) {
	assert.Equal(t, 25, Coerce(map[string]any{"limit": "25"})["limit"])
	assert.Equal(t, 7, Coerce(map[string]any{"n": " 7 "})["limit"])
	assert.Equal(t, "lots", Coerce(map[string]any{"limit": "lots"})["limit"])
	assert.Equal(t, 3, Coerce(map[string]any{"limit": 3})["limit"])
}

func TestCoerceDoesNotModifyInput(t *testing.T) {
	in := map[string]any{"start_date": "2026-01-01T00:00:00Z", "metric": "revenue"}
	_ = Coerce(in)

	want := map[string]any{"start_date": "2026-01-01T00:00:00Z", "metric": "revenue"}
	if diff := cmp.Diff(want, in); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
}
