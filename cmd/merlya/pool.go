package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Inspect the SSH connection pool and circuit breaker",
}

var poolStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pooled connections and circuit state",
	RunE:  runPoolStats,
}

var poolResetBreakerCmd = &cobra.Command{
	Use:   "reset-breaker [host]",
	Short: "Clear circuit breaker state for one host or all hosts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPoolResetBreaker,
}

func init() {
	poolCmd.AddCommand(poolStatsCmd)
	poolCmd.AddCommand(poolResetBreakerCmd)
}

func runPoolStats(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	poolStats := a.pool.Stats()
	cmd.Printf("Pooled connections: %d\n", len(poolStats.Connections))
	if len(poolStats.Connections) > 0 {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONNECTION\tCREATED\tLAST USED")
		for key, conn := range poolStats.Connections {
			fmt.Fprintf(w, "%s\t%s\t%s\n", key,
				conn.Created.Format(time.RFC3339),
				conn.LastUsed.Format(time.RFC3339))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	breakerStats := a.pool.Breaker().Stats()
	cmd.Printf("\nCircuits open: %d\n", breakerStats.OpenCount)
	if len(breakerStats.Hosts) > 0 {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "HOST\tFAILURES\tSTATE\tLAST ERROR")
		for host, circuit := range breakerStats.Hosts {
			state := "closed"
			if circuit.Permanent {
				state = "open (permanent)"
			} else if circuit.Open {
				state = "open"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", host, circuit.Failures, state, circuit.LastError)
		}
		return w.Flush()
	}
	return nil
}

func runPoolResetBreaker(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 1 {
		a.pool.Breaker().Reset(args[0])
		cmd.Printf("Circuit breaker reset for %s\n", args[0])
		return nil
	}

	a.pool.Breaker().ResetAll()
	cmd.Println("All circuit breakers reset")
	return nil
}
