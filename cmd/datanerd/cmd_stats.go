package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"datanerd/internal/clock"
	"datanerd/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run and memory store counts",
	RunE:  runStats,
}

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Delete expired memory items",
	RunE:  runMaintenance,
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.Storage.StatePath)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.CountRuns()
	if err != nil {
		return err
	}
	cached, err := st.CountToolCache()
	if err != nil {
		return err
	}
	stats, err := st.MemoryStats()
	if err != nil {
		return err
	}

	fmt.Printf("state db: %s\n", st.Path())
	fmt.Printf("runs recorded: %d\n", runs)
	fmt.Printf("tool cache entries: %d\n\n", cached)

	if len(stats) == 0 {
		fmt.Println("memory store is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCOPE\tKIND\tCOUNT")
	var total int64
	for _, stat := range stats {
		fmt.Fprintf(w, "%s\t%s\t%d\n", stat.Scope, stat.Kind, stat.Count)
		total += stat.Count
	}
	fmt.Fprintf(w, "\ttotal\t%d\n", total)
	return w.Flush()
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	clk, err := resolveClock()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Storage.StatePath)
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := st.Maintenance(clock.ISO(clk.NowMs()))
	if err != nil {
		return err
	}
	fmt.Printf("removed %d expired memory item(s)\n", removed)
	return nil
}
