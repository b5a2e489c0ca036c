// Package clock resolves "today" and calendar boundaries for the rest of
// the system. All date math is UTC; weeks run Monday through Sunday.
package clock

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO date form used everywhere (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// TimeContext holds the precomputed week and month boundaries for a given
// today. All fields are ISO dates.
type TimeContext struct {
	Today          string `json:"today"`
	ThisWeekStart  string `json:"thisWeekStart"`
	ThisWeekEnd    string `json:"thisWeekEnd"`
	LastWeekStart  string `json:"lastWeekStart"`
	LastWeekEnd    string `json:"lastWeekEnd"`
	ThisMonthStart string `json:"thisMonthStart"`
	ThisMonthEnd   string `json:"thisMonthEnd"`
	LastMonthStart string `json:"lastMonthStart"`
	LastMonthEnd   string `json:"lastMonthEnd"`
}

// Describe renders the context as a single line suitable for appending to
// a query prompt.
func (tc TimeContext) Describe() string {
	return fmt.Sprintf(
		"today=%s; thisWeek=%s..%s; lastWeek=%s..%s; thisMonth=%s..%s; lastMonth=%s..%s",
		tc.Today,
		tc.ThisWeekStart, tc.ThisWeekEnd,
		tc.LastWeekStart, tc.LastWeekEnd,
		tc.ThisMonthStart, tc.ThisMonthEnd,
		tc.LastMonthStart, tc.LastMonthEnd,
	)
}

// ContextFor computes the TimeContext for an ISO date.
func ContextFor(today string) (TimeContext, error) {
	t, err := time.ParseInLocation(DateLayout, today, time.UTC)
	if err != nil {
		return TimeContext{}, fmt.Errorf("invalid today %q: %w", today, err)
	}

	// Monday of the current week. Weekday() has Sunday = 0.
	offset := (int(t.Weekday()) + 6) % 7
	thisWeekStart := t.AddDate(0, 0, -offset)
	thisWeekEnd := thisWeekStart.AddDate(0, 0, 6)
	lastWeekStart := thisWeekStart.AddDate(0, 0, -7)
	lastWeekEnd := thisWeekStart.AddDate(0, 0, -1)

	y, m, _ := t.Date()
	thisMonthStart := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	thisMonthEnd := time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
	lastMonthStart := time.Date(y, m-1, 1, 0, 0, 0, 0, time.UTC)
	lastMonthEnd := time.Date(y, m, 0, 0, 0, 0, 0, time.UTC)

	return TimeContext{
		Today:          today,
		ThisWeekStart:  thisWeekStart.Format(DateLayout),
		ThisWeekEnd:    thisWeekEnd.Format(DateLayout),
		LastWeekStart:  lastWeekStart.Format(DateLayout),
		LastWeekEnd:    lastWeekEnd.Format(DateLayout),
		ThisMonthStart: thisMonthStart.Format(DateLayout),
		ThisMonthEnd:   thisMonthEnd.Format(DateLayout),
		LastMonthStart: lastMonthStart.Format(DateLayout),
		LastMonthEnd:   lastMonthEnd.Format(DateLayout),
	}, nil
}

// Clock supplies the current time to the orchestrator. Implementations
// must be safe for concurrent use.
type Clock interface {
	// NowMs returns the current wall-clock time in unix milliseconds.
	NowMs() int64
	// Today returns the current date as YYYY-MM-DD.
	Today() string
	// TimeContext returns the calendar boundaries for Today.
	TimeContext() TimeContext
}

type systemClock struct{}

// System returns a Clock backed by the real UTC wall clock.
func System() Clock { return systemClock{} }

func (systemClock) NowMs() int64 { return time.Now().UnixMilli() }

func (systemClock) Today() string { return time.Now().UTC().Format(DateLayout) }

func (c systemClock) TimeContext() TimeContext {
	tc, _ := ContextFor(c.Today())
	return tc
}

type fixedClock struct {
	today string
	ctx   TimeContext
}

// Fixed returns a Clock whose Today is pinned to the given ISO date.
// NowMs stays on the wall clock so run ids remain time-sortable and
// latency measurements stay real.
func Fixed(today string) (Clock, error) {
	ctx, err := ContextFor(today)
	if err != nil {
		return nil, err
	}
	return &fixedClock{today: today, ctx: ctx}, nil
}

func (c *fixedClock) NowMs() int64 { return time.Now().UnixMilli() }

func (c *fixedClock) Today() string { return c.today }

func (c *fixedClock) TimeContext() TimeContext { return c.ctx }

// ISO formats unix milliseconds as an RFC 3339 UTC timestamp with
// millisecond precision.
func ISO(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseISO accepts the timestamp forms stored by this system: RFC 3339
// with or without fractional seconds, and bare ISO dates.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// DatePart trims an ISO timestamp to its YYYY-MM-DD prefix.
func DatePart(iso string) string {
	if len(iso) >= len(DateLayout) {
		return iso[:len(DateLayout)]
	}
	return iso
}
