package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCategoryTagging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	Store("opened %s", "state.db")
	PlannerDebug("fallback engaged")
	LLMWarn("retry %d", 2)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	tests := []struct {
		idx   int
		cat   string
		msg   string
		level zap.AtomicLevel
	}{
		{0, "store", "opened state.db", zap.NewAtomicLevelAt(zap.InfoLevel)},
		{1, "planner", "fallback engaged", zap.NewAtomicLevelAt(zap.DebugLevel)},
		{2, "llm", "retry 2", zap.NewAtomicLevelAt(zap.WarnLevel)},
	}
	for _, tt := range tests {
		e := entries[tt.idx]
		if e.Message != tt.msg {
			t.Errorf("entry %d message = %q, want %q", tt.idx, e.Message, tt.msg)
		}
		if got := e.ContextMap()["cat"]; got != tt.cat {
			t.Errorf("entry %d cat = %v, want %q", tt.idx, got, tt.cat)
		}
		if e.Level != tt.level.Level() {
			t.Errorf("entry %d level = %s, want %s", tt.idx, e.Level, tt.level.Level())
		}
	}
}

func TestNopByDefault(t *testing.T) {
	SetLogger(nil)
	// Must not panic without an installed logger.
	Boot("starting")
	Get(CategoryExecutor).Error("boom")
	Sync()
}

func TestTimer(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	timer := StartTimer(CategoryStore, "upsert")
	elapsed := timer.Stop()
	if elapsed < 0 {
		t.Errorf("elapsed = %v", elapsed)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one timing entry, got %d", logs.Len())
	}

	warned := StartTimer(CategoryLLM, "complete")
	warned.StopWithThreshold(-1) // negative threshold forces the warning path
	last := logs.All()[logs.Len()-1]
	if last.Level != zap.WarnLevel {
		t.Errorf("threshold breach should warn, got %s", last.Level)
	}
}
