package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"datanerd/internal/dashboard"
	"datanerd/internal/store"
)

var (
	dashboardOut   string
	dashboardWatch bool
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Build a static HTML dashboard from the run logs",
	Long: `Reads every JSONL run log in the runs dir and writes a single
index.html with per-config quality trends, recent runs and the memory
store census. With --watch the page is rebuilt whenever a run log
changes.`,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "", "Output path (default: <runs-dir>/index.html)")
	dashboardCmd.Flags().BoolVar(&dashboardWatch, "watch", false, "Keep rebuilding on run-log changes")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	if cfg.Storage.RunsDir == "" {
		return fmt.Errorf("no runs dir configured")
	}

	// The memory census is optional: skip it when the state db does not
	// exist yet rather than creating an empty one.
	var st *store.StateStore
	if _, err := os.Stat(cfg.Storage.StatePath); err == nil {
		st, err = store.Open(cfg.Storage.StatePath)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	builder := dashboard.NewBuilder(dashboard.Options{
		RunsDir: cfg.Storage.RunsDir,
		OutPath: dashboardOut,
		Store:   st,
	})
	if err := builder.Build(); err != nil {
		return err
	}
	fmt.Printf("dashboard written to %s\n", builder.OutPath())

	if !dashboardWatch {
		return nil
	}

	watcher, err := dashboard.NewWatcher(builder, 0)
	if err != nil {
		return err
	}
	if err := watcher.Start(cmd.Context()); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Println("watching for run-log changes, Ctrl+C to stop")
	<-cmd.Context().Done()
	return nil
}
