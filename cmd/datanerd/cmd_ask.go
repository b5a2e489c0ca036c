package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"datanerd/internal/types"
)

var (
	askMode     string
	askShowEval bool
)

var askCmd = &cobra.Command{
	Use:   "ask \"<query>\"",
	Short: "Run one query through the pipeline and print the answer",
	Long: `Runs a single query end to end: routing, planning, tool execution,
rendering and evaluation. The run is recorded in the state store and,
when a runs dir is configured, appended to the JSONL run log.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askMode, "mode", "", "Memory mode: baseline, read, readwrite, readwrite_cache (default: config)")
	askCmd.Flags().BoolVar(&askShowEval, "eval", false, "Print evaluator scores after the answer")
}

func runAsk(cmd *cobra.Command, args []string) error {
	mode := cfg.MemoryMode()
	if askMode != "" {
		mode = types.MemoryMode(askMode)
	}
	if !mode.Valid() {
		return fmt.Errorf("invalid memory mode %q", mode)
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	orch, err := rt.newOrchestrator(cmd.Context(), mode)
	if err != nil {
		return err
	}

	run, err := orch.Ask(cmd.Context(), args[0], types.SessionState{})
	if err != nil {
		return err
	}

	fmt.Println(run.Response)

	if askShowEval {
		printEval(run)
	}
	return nil
}

func printEval(run *types.Run) {
	if run.Eval == nil || run.Eval.Scores == nil {
		fmt.Println("\n[eval] no ground-truth template for this query")
		return
	}
	s := run.Eval.Scores
	fmt.Printf("\n[eval] correctness=%.2f completeness=%.2f relevance=%.2f quality=%.2f\n",
		s.Correctness, s.Completeness, s.Relevance, s.Quality)
	for _, note := range run.Eval.Notes {
		fmt.Printf("[eval] note: %s\n", note)
	}
}
