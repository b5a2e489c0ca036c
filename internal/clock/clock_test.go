package clock

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestContextFor(t *testing.T) {
	tests := []struct {
		name  string
		today string
		want  TimeContext
	}{
		{
			name:  "mid-week wednesday",
			today: "2026-02-04",
			want: TimeContext{
				Today:          "2026-02-04",
				ThisWeekStart:  "2026-02-02",
				ThisWeekEnd:    "2026-02-08",
				LastWeekStart:  "2026-01-26",
				LastWeekEnd:    "2026-02-01",
				ThisMonthStart: "2026-02-01",
				ThisMonthEnd:   "2026-02-28",
				LastMonthStart: "2026-01-01",
				LastMonthEnd:   "2026-01-31",
			},
		},
		{
			name:  "monday is its own week start",
			today: "2026-02-02",
			want: TimeContext{
				Today:          "2026-02-02",
				ThisWeekStart:  "2026-02-02",
				ThisWeekEnd:    "2026-02-08",
				LastWeekStart:  "2026-01-26",
				LastWeekEnd:    "2026-02-01",
				ThisMonthStart: "2026-02-01",
				ThisMonthEnd:   "2026-02-28",
				LastMonthStart: "2026-01-01",
				LastMonthEnd:   "2026-01-31",
			},
		},
		{
			name:  "sunday belongs to the week that started last monday",
			today: "2026-02-08",
			want: TimeContext{
				Today:          "2026-02-08",
				ThisWeekStart:  "2026-02-02",
				ThisWeekEnd:    "2026-02-08",
				LastWeekStart:  "2026-01-26",
				LastWeekEnd:    "2026-02-01",
				ThisMonthStart: "2026-02-01",
				ThisMonthEnd:   "2026-02-28",
				LastMonthStart: "2026-01-01",
				LastMonthEnd:   "2026-01-31",
			},
		},
		{
			name:  "january looks back across the year boundary",
			today: "2026-01-15",
			want: TimeContext{
				Today:          "2026-01-15",
				ThisWeekStart:  "2026-01-12",
				ThisWeekEnd:    "2026-01-18",
				LastWeekStart:  "2026-01-05",
				LastWeekEnd:    "2026-01-11",
				ThisMonthStart: "2026-01-01",
				ThisMonthEnd:   "2026-01-31",
				LastMonthStart: "2025-12-01",
				LastMonthEnd:   "2025-12-31",
			},
		},
		{
			name:  "leap february as last month",
			today: "2024-03-01",
			want: TimeContext{
				Today:          "2024-03-01",
				ThisWeekStart:  "2024-02-26",
				ThisWeekEnd:    "2024-03-03",
				LastWeekStart:  "2024-02-19",
				LastWeekEnd:    "2024-02-25",
				ThisMonthStart: "2024-03-01",
				ThisMonthEnd:   "2024-03-31",
				LastMonthStart: "2024-02-01",
				LastMonthEnd:   "2024-02-29",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ContextFor(tt.today)
			if err != nil {
				t.Fatalf("ContextFor(%q): %v", tt.today, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("context mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestContextForRejectsBadDates(t *testing.T) {
	for _, bad := range []string{"", "02/04/2026", "2026-13-01", "yesterday"} {
		if _, err := ContextFor(bad); err == nil {
			t.Errorf("ContextFor(%q) should fail", bad)
		}
	}
}

func TestFixedClock(t *testing.T) {
	c, err := Fixed("2026-02-04")
	if err != nil {
		t.Fatalf("Fixed: %v", err)
	}
	if c.Today() != "2026-02-04" {
		t.Errorf("Today() = %q", c.Today())
	}
	if c.TimeContext().LastMonthEnd != "2026-01-31" {
		t.Errorf("LastMonthEnd = %q", c.TimeContext().LastMonthEnd)
	}
	if c.NowMs() == 0 {
		t.Error("NowMs should track the wall clock")
	}

	if _, err := Fixed("not-a-date"); err == nil {
		t.Error("Fixed should reject unparseable dates")
	}
}

func TestISOAndParse(t *testing.T) {
	iso := ISO(1_700_000_000_000)
	if iso != "2023-11-14T22:13:20.000Z" {
		t.Errorf("ISO = %q", iso)
	}

	for _, s := range []string{iso, "2026-02-04", "2026-02-04T10:00:00Z"} {
		if _, err := ParseISO(s); err != nil {
			t.Errorf("ParseISO(%q): %v", s, err)
		}
	}
	if _, err := ParseISO("last tuesday"); err == nil {
		t.Error("ParseISO should reject free-form text")
	}
}

func TestDatePart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-02-04T10:00:00.000Z", "2026-02-04"},
		{"2026-02-04", "2026-02-04"},
		{"short", "short"},
	}
	for _, tt := range tests {
		if got := DatePart(tt.in); got != tt.want {
			t.Errorf("DatePart(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
