package cli

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/invisible-tech/mazerunner-sdk/internal/socfeed"
	"github.com/invisible-tech/mazerunner-sdk/internal/version"
	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

func newCIDRCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cidr",
		Short: "Work with endpoints by address range",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "assign <group-name> <cidr>",
		Short: "Assign every known endpoint in a CIDR range to a deployment group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, err := netip.ParsePrefix(args[1])
			if err != nil {
				return fmt.Errorf("invalid CIDR %q: %w", args[1], err)
			}
			return opts.withClient(cmd, func(ctx context.Context, c *mazerunner.Client) error {
				n, err := assignGroupToCIDR(ctx, c, args[0], prefix.Masked())
				if err != nil {
					return err
				}
				if n == 0 {
					pterm.Warning.Printf("No endpoints in %s\n", prefix.Masked())
					return nil
				}
				pterm.Success.Printf("Assigned %d endpoints in %s to %s\n", n, prefix.Masked(), args[0])
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	})
	return cmd
}

func findDeploymentGroup(ctx context.Context, c *mazerunner.Client, name string) (*mazerunner.DeploymentGroup, error) {
	groups, err := c.DeploymentGroups().List(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Name() == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("deployment group %q could not be found", name)
}

func assignGroupToCIDR(ctx context.Context, c *mazerunner.Client, groupName string, prefix netip.Prefix) (int, error) {
	group, err := findDeploymentGroup(ctx, c, groupName)
	if err != nil {
		return 0, err
	}
	endpoints, err := c.Endpoints().List(ctx)
	if err != nil {
		return 0, err
	}

	ids := sets.New[int]()
	for _, e := range endpoints {
		addr, err := netip.ParseAddr(e.IPAddress())
		if err != nil || !prefix.Contains(addr) {
			continue
		}
		ids.Insert(e.ID())
	}
	if ids.Len() == 0 {
		return 0, nil
	}
	if err := c.Endpoints().ReassignToGroup(ctx, group.ID(), sets.List(ids)); err != nil {
		return 0, err
	}
	return ids.Len(), nil
}

func newAlertsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Work with alerts",
	}

	var (
		onlyAlerts bool
		types      []string
	)
	export := &cobra.Command{
		Use:   "export <path>",
		Short: "Export alerts as CSV; .csv is appended to path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *mazerunner.Client) error {
				alerts := c.Alerts()
				if onlyAlerts || len(types) > 0 {
					alerts = alerts.Filter(mazerunner.AlertFilter{OnlyAlerts: onlyAlerts, Types: types})
				}
				path, err := alerts.Export(ctx, args[0])
				if err != nil {
					return err
				}
				pterm.Success.Printf("Alerts exported to %s\n", path)
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	export.Flags().BoolVar(&onlyAlerts, "only-alerts", false, "skip muted and ignored alerts")
	export.Flags().StringSliceVar(&types, "types", nil, "alert types to export")

	cmd.AddCommand(export)
	return cmd
}

func newSOCCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "soc",
		Short: "Send events to the ActiveSOC API",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "send <soc-name> <file>",
		Short: "Send the events of a JSON or CEF file as one batch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read events: %w", err)
			}
			events, err := socfeed.DecodeEvents(filepath.Base(args[1]), data)
			if err != nil {
				return err
			}
			batch := make([]map[string]any, 0, len(events))
			for _, ev := range events {
				batch = append(batch, ev)
			}
			return opts.withClient(cmd, func(ctx context.Context, c *mazerunner.Client) error {
				if err := c.ActiveSOCEvents().SubmitEvents(ctx, args[0], batch); err != nil {
					return err
				}
				pterm.Success.Printf("Sent %d events to %s\n", len(batch), args[0])
				return nil
			})
		},
	})
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}
}
