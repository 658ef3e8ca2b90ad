package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/m-kis/merlya-sub001/internal/inventory"
)

var (
	hostAddIP   string
	hostAddPort int
	hostAddUser string
	hostAddKey  string
	hostAddTags []string
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage the host inventory",
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inventory hosts",
	RunE:  runHostsList,
}

var hostsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add or update an inventory host",
	Args:  cobra.ExactArgs(1),
	RunE:  runHostsAdd,
}

var hostsRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a host from the inventory",
	Args:  cobra.ExactArgs(1),
	RunE:  runHostsRm,
}

func init() {
	hostsAddCmd.Flags().StringVar(&hostAddIP, "ip", "", "host IP address (required)")
	hostsAddCmd.Flags().IntVar(&hostAddPort, "port", 22, "SSH port")
	hostsAddCmd.Flags().StringVar(&hostAddUser, "user", "", "SSH user")
	hostsAddCmd.Flags().StringVar(&hostAddKey, "key", "", "SSH private key path")
	hostsAddCmd.Flags().StringSliceVar(&hostAddTags, "tag", nil, "host tag as key=value (repeatable)")
	_ = hostsAddCmd.MarkFlagRequired("ip")

	hostsCmd.AddCommand(hostsListCmd)
	hostsCmd.AddCommand(hostsAddCmd)
	hostsCmd.AddCommand(hostsRmCmd)
}

func runHostsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	hosts, err := a.store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		cmd.Println("No hosts in inventory. Add one with 'merlya hosts add'.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tIP\tPORT\tUSER\tTAGS")
	for _, h := range hosts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			h.Name, h.IPAddress, h.Port(), h.SSHUser, formatTags(h.Tags))
	}
	return w.Flush()
}

func runHostsAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	host := &inventory.Host{
		Name:      args[0],
		IPAddress: hostAddIP,
		SSHPort:   hostAddPort,
		SSHUser:   hostAddUser,
		KeyPath:   hostAddKey,
		Tags:      parseTagFlags(hostAddTags),
	}
	if err := host.Validate(); err != nil {
		return err
	}
	if err := a.store.Upsert(cmd.Context(), host); err != nil {
		return err
	}

	cmd.Printf("Host %s saved (%s:%d)\n", host.Name, host.IPAddress, host.Port())
	return nil
}

// parseTagFlags converts repeated --tag key=value flags into a tag map.
// A bare key is stored with an empty value; a duplicate key keeps the
// last value given.
func parseTagFlags(flags []string) map[string]string {
	if len(flags) == 0 {
		return nil
	}
	tags := make(map[string]string, len(flags))
	for _, raw := range flags {
		key, value, _ := strings.Cut(raw, "=")
		tags[key] = value
	}
	return tags
}

// formatTags renders a tag map as a stable comma-separated key=value list.
func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(tags))
	for key, value := range tags {
		if value == "" {
			pairs = append(pairs, key)
			continue
		}
		pairs = append(pairs, key+"="+value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func runHostsRm(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	cmd.Printf("Host %s removed\n", args[0])
	return nil
}
