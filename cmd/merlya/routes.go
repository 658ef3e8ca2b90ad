package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Inspect jump-host routing rules",
}

var routesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List network-to-gateway routes",
	RunE:  runRoutesList,
}

func init() {
	routesCmd.AddCommand(routesListCmd)
}

func runRoutesList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	entries := a.routes.Entries()
	if len(entries) == 0 {
		cmd.Printf("No routes configured (%s)\n", a.cfg.Routes.Path)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NETWORK\tGATEWAY")
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\n", entry.Network, entry.Gateway)
	}
	return w.Flush()
}
