// Package main provides the datanerd CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"datanerd/internal/clock"
	"datanerd/internal/config"
	"datanerd/internal/dataset"
	"datanerd/internal/llm"
	"datanerd/internal/logging"
	"datanerd/internal/orchestrator"
	"datanerd/internal/runlog"
	"datanerd/internal/store"
	"datanerd/internal/tools"
	"datanerd/internal/types"
)

var (
	// Global flags
	cfgFile     string
	verbose     bool
	todayFlag   string
	dbFlag      string
	dataDBFlag  string
	runsDirFlag string

	// Resolved configuration, available to every RunE after PreRun.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "datanerd",
	Short: "datanerd - agentic memory for seller analytics",
	Long: `datanerd answers seller analytics questions (sales, traffic, benchmarks)
with a plan-execute-evaluate pipeline, and keeps a memory store that
later runs retrieve to plan better.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real env always wins inside config.Load.
		_ = godotenv.Load()

		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbFlag != "" {
			c.Storage.StatePath = dbFlag
		}
		if dataDBFlag != "" {
			c.Dataset.Path = dataDBFlag
		}
		if runsDirFlag != "" {
			c.Storage.RunsDir = runsDirFlag
		}
		if verbose {
			c.Logging.Verbose = true
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		// The chat TUI owns the terminal; the logger stays silent there.
		if cmd.Name() == "chat" || (cmd.Name() == "datanerd" && len(args) == 0) {
			return nil
		}
		return logging.Init(cfg.Logging.Verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: datanerd.yaml, then ~/.datanerd/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&todayFlag, "today", "", "Pin 'today' to an ISO date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "State database path (runs, memory, tool cache)")
	rootCmd.PersistentFlags().StringVar(&dataDBFlag, "data-db", "", "Analytics dataset database path")
	rootCmd.PersistentFlags().StringVar(&runsDirFlag, "runs-dir", "", "JSONL run log directory")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(scenarioCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(maintenanceCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ===== SHARED PLUMBING =====

// resolveClock honors --today, otherwise the system clock.
func resolveClock() (clock.Clock, error) {
	if todayFlag != "" {
		return clock.Fixed(todayFlag)
	}
	return clock.System(), nil
}

// openDataset opens the analytics database and seeds it from config when
// it is empty, so first runs work out of the box.
func openDataset() (*dataset.DB, error) {
	db, err := dataset.Open(cfg.Dataset.Path)
	if err != nil {
		return nil, err
	}
	seeded, err := db.IsSeeded()
	if err != nil {
		db.Close()
		return nil, err
	}
	if !seeded {
		logging.Boot("dataset %s is empty, seeding", cfg.Dataset.Path)
		if err := db.Seed(seedConfig()); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func seedConfig() dataset.SeedConfig {
	return dataset.SeedConfig{
		Seed:     cfg.Dataset.Seed,
		StartDay: cfg.Dataset.StartDay,
		Days:     cfg.Dataset.Days,
	}
}

// runtime bundles everything one pipeline invocation needs.
type runtime struct {
	data  *dataset.DB
	state *store.StateStore
	reg   *tools.Registry
	clk   clock.Clock
}

func openRuntime() (*runtime, error) {
	clk, err := resolveClock()
	if err != nil {
		return nil, err
	}
	data, err := openDataset()
	if err != nil {
		return nil, err
	}
	reg, err := tools.New(data)
	if err != nil {
		data.Close()
		return nil, err
	}
	state, err := store.Open(cfg.Storage.StatePath)
	if err != nil {
		data.Close()
		return nil, err
	}
	return &runtime{data: data, state: state, reg: reg, clk: clk}, nil
}

func (rt *runtime) Close() {
	rt.state.Close()
	rt.data.Close()
}

// newOrchestrator assembles an orchestrator over the runtime for the
// given memory mode, with the configured LLM client and run logging.
func (rt *runtime) newOrchestrator(ctx context.Context, mode types.MemoryMode) (*orchestrator.Orchestrator, error) {
	client, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	var logWriter *runlog.Writer
	if cfg.Storage.RunsDir != "" {
		logWriter = runlog.NewWriter(cfg.Storage.RunsDir)
	}
	return orchestrator.New(orchestrator.Options{
		Store:    rt.state,
		Registry: rt.reg,
		Client:   client,
		Clock:    rt.clk,
		RunLog:   logWriter,
		UserID:   userID(),
		Mode:     mode,
	})
}

func userID() string {
	if id := os.Getenv("DATANERD_USER"); id != "" {
		return id
	}
	return "demo"
}
