package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/invisible-tech/mazerunner-sdk/pkg/mazerunner"
)

func newTasksCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and acknowledge background tasks",
	}

	var completed bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List running background tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *mazerunner.Client) error {
				tasks, err := c.BackgroundTasks().Filter(!completed).List(ctx)
				if err != nil {
					return err
				}
				data := pterm.TableData{{"ID", "TYPE", "STATUS", "PROGRESS"}}
				for _, t := range tasks {
					data = append(data, []string{
						strconv.Itoa(t.ID()), t.StringField("task_type"), t.Status(), strconv.Itoa(t.Progress()) + "%",
					})
				}
				return renderTable(cmd.OutOrStdout(), data)
			})
		},
	}
	list.Flags().BoolVar(&completed, "completed", false, "list finished tasks instead")

	var interval time.Duration
	wait := &cobra.Command{
		Use:   "wait <id>",
		Short: "Wait for a background task to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			return opts.withClient(cmd, func(ctx context.Context, c *mazerunner.Client) error {
				tasks := c.BackgroundTasks()
				tasks.WaitInitialInterval = interval
				spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Waiting for task %d...", id))
				task, err := tasks.Wait(ctx, id)
				if err != nil {
					if spinner != nil {
						spinner.Fail(err.Error())
					}
					return err
				}
				if spinner != nil {
					spinner.Success(fmt.Sprintf("Task %d %s", id, task.Status()))
				}
				fmt.Fprintln(cmd.OutOrStdout(), task.Status())
				return nil
			})
		},
	}
	wait.Flags().DurationVar(&interval, "poll-interval", 500*time.Millisecond, "first delay between polls")

	ack := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge all complete background tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *mazerunner.Client) error {
				if err := c.BackgroundTasks().AcknowledgeAllComplete(ctx); err != nil {
					return err
				}
				pterm.Success.Println("Acknowledged all complete background tasks")
				return nil
			})
		},
	}

	cmd.AddCommand(list, wait, ack)
	return cmd
}
