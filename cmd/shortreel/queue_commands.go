package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shortreel/internal/apiclient"
	"shortreel/internal/daemon"
	"shortreel/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage work items",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueStopCommand(ctx))
	queueCmd.AddCommand(newQueueClearAttemptsCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var channelFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(client *apiclient.Client, store *queue.Store) error {
				var views []daemon.ItemView
				if client != nil {
					resp, err := client.Items(cmd.Context(), listStatuses)
					if err != nil {
						return err
					}
					views = resp.Items
				} else {
					var statuses []queue.Status
					for _, value := range listStatuses {
						status, err := queue.ParseStatus(value)
						if err != nil {
							return err
						}
						statuses = append(statuses, status)
					}
					items, err := store.List(cmd.Context(), statuses...)
					if err != nil {
						return err
					}
					for _, item := range items {
						views = append(views, daemon.NewItemView(item))
					}
				}

				if channelFilter != "" {
					filtered := views[:0]
					for _, view := range views {
						if view.ChannelID == channelFilter {
							filtered = append(filtered, view)
						}
					}
					views = filtered
				}

				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Channel", "Slot", "Stage", "Status", "Topic"},
					buildItemRows(views),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (pending, running, failed, cancelled, succeeded)")
	cmd.Flags().StringVar(&channelFilter, "channel", "", "Filter by channel id")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Clear a failed item's backoff so it dispatches immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(client *apiclient.Client, store *queue.Store) error {
				var view daemon.ItemView
				if client != nil {
					resp, err := client.Retry(cmd.Context(), id)
					if err != nil {
						return err
					}
					view = *resp
				} else {
					item, err := store.RetryNow(cmd.Context(), id)
					if err != nil {
						return err
					}
					view = daemon.NewItemView(item)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Work item %d queued for immediate retry at stage %s\n", view.ID, view.Stage)
				return nil
			})
		},
	}
}

func newQueueStopCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "stop <id>",
		Short: "Cancel a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(reason) == "" {
				reason = "stopped by operator"
			}
			return ctx.withStore(cmd.Context(), func(client *apiclient.Client, store *queue.Store) error {
				var view daemon.ItemView
				if client != nil {
					resp, err := client.Stop(cmd.Context(), id, reason)
					if err != nil {
						return err
					}
					view = *resp
				} else {
					item, err := store.Stop(cmd.Context(), id, reason)
					if err != nil {
						return err
					}
					view = daemon.NewItemView(item)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Work item %d cancelled\n", view.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the cancelled item")
	return cmd
}

func newQueueClearAttemptsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-attempts <id>",
		Short: "Re-admit a failed or cancelled item with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(client *apiclient.Client, store *queue.Store) error {
				var view daemon.ItemView
				if client != nil {
					resp, err := client.ClearAttempts(cmd.Context(), id)
					if err != nil {
						return err
					}
					view = *resp
				} else {
					item, err := store.ClearAttempts(cmd.Context(), id)
					if err != nil {
						return err
					}
					view = daemon.NewItemView(item)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Work item %d re-admitted at stage %s\n", view.ID, view.Stage)
				return nil
			})
		},
	}
}

func parseItemID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid work item id %q", value)
	}
	return id, nil
}
