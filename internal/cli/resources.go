package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <resource>",
		Short: "List the entities of a resource, e.g. decoy or breadcrumb",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *mazerunner.Client) error {
				coll, err := c.Collection(args[0])
				if err != nil {
					return err
				}
				entities, err := coll.List(ctx)
				if err != nil {
					return err
				}
				if len(entities) == 0 {
					pterm.Info.Printf("No %s entities\n", args[0])
				}
				return renderEntities(cmd.OutOrStdout(), args[0], entities)
			})
		},
	}
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <resource> <id>",
		Short: "Show one entity as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[1])
			}
			return opts.withClient(cmd, func(ctx context.Context, c *mazerunner.Client) error {
				coll, err := c.Collection(args[0])
				if err != nil {
					return err
				}
				e, err := coll.Get(ctx, id)
				if err != nil {
					return err
				}
				return renderJSON(cmd.OutOrStdout(), e.Fields())
			})
		},
	}
}

func newParamsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "params <resource>",
		Short: "Show the values the server accepts when creating a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *mazerunner.Client) error {
				coll, err := c.Collection(args[0])
				if err != nil {
					return err
				}
				params, err := coll.Params(ctx)
				if err != nil {
					return err
				}
				return renderJSON(cmd.OutOrStdout(), params)
			})
		},
	}
}

// deletionOrder removes dependants before what they point at.
var deletionOrder = []string{
	mazerunner.ResourceBreadcrumb,
	mazerunner.ResourceDeploymentGroup,
	mazerunner.ResourceService,
	mazerunner.ResourceDecoy,
	mazerunner.ResourceCIDRMapping,
	mazerunner.ResourceEndpoint,
}

func newDeleteEverythingCommand(opts *rootOptions) *cobra.Command {
	var keepPersistent bool
	cmd := &cobra.Command{
		Use:   "delete-everything",
		Short: "Delete every breadcrumb, group, service, decoy, CIDR mapping and endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *mazerunner.Client) error {
				pterm.DefaultHeader.Println("Deleting everything")
				err := deleteEverything(ctx, c, keepPersistent)
				if err != nil {
					pterm.Error.Println("Some entities could not be deleted")
					return err
				}
				pterm.Success.Println("MazeRunner is empty")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&keepPersistent, "keep-persistent", true, "keep built-in deployment groups")
	return cmd
}

func deleteEverything(ctx context.Context, c *mazerunner.Client, keepPersistent bool) error {
	var result *multierror.Error
	for _, name := range deletionOrder {
		coll, err := c.Collection(name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		entities, err := coll.List(ctx)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("listing %s: %w", name, err))
			continue
		}
		pterm.DefaultSection.Printf("Deleting %d %s entities", len(entities), name)
		for _, e := range entities {
			if keepPersistent && e.BoolField("persist") {
				continue
			}
			if err := e.Delete(ctx); err != nil {
				result = multierror.Append(result, fmt.Errorf("deleting %s %d: %w", name, e.ID(), err))
			}
		}
	}
	pterm.Info.Println("Acknowledging all complete background tasks")
	if err := c.BackgroundTasks().AcknowledgeAllComplete(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
