// Package logging provides categorized logging for datanerd on top of zap.
// The process is silent until Init (or SetLogger) installs a real core, so
// library consumers and tests pay nothing by default.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category tags a log line with the subsystem that produced it.
type Category string

const (
	CategoryBoot         Category = "boot"         // startup, config resolution
	CategoryStore        Category = "store"        // state store operations
	CategoryDataset      Category = "dataset"      // analytics dataset queries and seeding
	CategoryTools        Category = "tools"        // tool execution
	CategoryPlanner      Category = "planner"      // plan production and fallback
	CategoryExecutor     Category = "executor"     // plan execution and caching
	CategoryManager      Category = "manager"      // routing decisions
	CategoryAgents       Category = "agents"       // worker agents: presenter and insight
	CategoryRetrieval    Category = "retrieval"    // memory search and ranking
	CategoryEvaluator    Category = "evaluator"    // scoring and write proposals
	CategoryOrchestrator Category = "orchestrator" // run state machine
	CategoryScenario     Category = "scenario"     // scenario harness
	CategoryLLM          Category = "llm"          // provider API calls
	CategoryDashboard    Category = "dashboard"    // static dashboard builds
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Init installs a real zap logger. Verbose selects a development config at
// debug level; otherwise a production config at info level is used.
func Init(verbose bool) error {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	SetLogger(logger)
	return nil
}

// SetLogger replaces the process logger. Tests use this with zaptest or an
// observer core.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	root = l
}

// Sync flushes buffered log entries. Safe to call on the no-op logger.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// Logger is a category-scoped printf logger.
type Logger struct {
	s *zap.SugaredLogger
}

// Get returns a logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{s: root.Sugar().With("cat", string(category))}
}

// L returns the structured zap logger for the category, for call sites
// that want typed fields instead of printf.
func L(category Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With(zap.String("cat", string(category)))
}

func (l *Logger) Debug(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.s.Errorf(format, args...) }

// =============================================================================
// CATEGORY CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

func Dataset(format string, args ...interface{})      { Get(CategoryDataset).Info(format, args...) }
func DatasetDebug(format string, args ...interface{}) { Get(CategoryDataset).Debug(format, args...) }
func DatasetWarn(format string, args ...interface{})  { Get(CategoryDataset).Warn(format, args...) }

func Tools(format string, args ...interface{})      { Get(CategoryTools).Info(format, args...) }
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }
func ToolsError(format string, args ...interface{}) { Get(CategoryTools).Error(format, args...) }

func Planner(format string, args ...interface{})      { Get(CategoryPlanner).Info(format, args...) }
func PlannerDebug(format string, args ...interface{}) { Get(CategoryPlanner).Debug(format, args...) }
func PlannerWarn(format string, args ...interface{})  { Get(CategoryPlanner).Warn(format, args...) }

func Executor(format string, args ...interface{})      { Get(CategoryExecutor).Info(format, args...) }
func ExecutorDebug(format string, args ...interface{}) { Get(CategoryExecutor).Debug(format, args...) }

func Manager(format string, args ...interface{})      { Get(CategoryManager).Info(format, args...) }
func ManagerDebug(format string, args ...interface{}) { Get(CategoryManager).Debug(format, args...) }

func Agents(format string, args ...interface{})     { Get(CategoryAgents).Info(format, args...) }
func AgentsWarn(format string, args ...interface{}) { Get(CategoryAgents).Warn(format, args...) }

func Retrieval(format string, args ...interface{})      { Get(CategoryRetrieval).Info(format, args...) }
func RetrievalDebug(format string, args ...interface{}) { Get(CategoryRetrieval).Debug(format, args...) }

func Evaluator(format string, args ...interface{})      { Get(CategoryEvaluator).Info(format, args...) }
func EvaluatorDebug(format string, args ...interface{}) { Get(CategoryEvaluator).Debug(format, args...) }
func EvaluatorWarn(format string, args ...interface{})  { Get(CategoryEvaluator).Warn(format, args...) }

func Orchestrator(format string, args ...interface{}) { Get(CategoryOrchestrator).Info(format, args...) }
func OrchestratorDebug(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Debug(format, args...)
}
func OrchestratorWarn(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Warn(format, args...)
}

func Scenario(format string, args ...interface{})      { Get(CategoryScenario).Info(format, args...) }
func ScenarioDebug(format string, args ...interface{}) { Get(CategoryScenario).Debug(format, args...) }

func LLM(format string, args ...interface{})      { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debug(format, args...) }
func LLMWarn(format string, args ...interface{})  { Get(CategoryLLM).Warn(format, args...) }

func Dashboard(format string, args ...interface{})      { Get(CategoryDashboard).Info(format, args...) }
func DashboardDebug(format string, args ...interface{}) { Get(CategoryDashboard).Debug(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer measures the duration of one operation.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer, logs the duration at debug, and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning when the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
