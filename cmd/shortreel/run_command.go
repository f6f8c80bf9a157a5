package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/scheduler"
	"shortreel/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var channelID string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive one work item through the pipeline in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			channel, ok := cfg.ChannelByID(channelID)
			if !ok {
				return fmt.Errorf("unknown channel %q", channelID)
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			manager, err := workflow.NewManager(cfg, store, logger)
			if err != nil {
				return err
			}

			slot, err := nextSlot(channel, time.Now())
			if err != nil {
				return err
			}
			item, created, err := store.CreateForSlot(cmd.Context(), channel.ID, slot, dryRun, nil)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(stdout, "Created work item %d for channel %s (slot %s)\n", item.ID, channel.ID, formatSlot(slot))
			} else {
				if item.Status.Terminal() {
					return fmt.Errorf("slot %s already has finished work item %d", formatSlot(slot), item.ID)
				}
				fmt.Fprintf(stdout, "Resuming work item %d at stage %s\n", item.ID, item.Stage)
			}

			final, err := manager.RunItem(cmd.Context(), item.ID)
			if err != nil {
				return err
			}

			switch {
			case final.Status == queue.StatusSucceeded:
				fmt.Fprintf(stdout, "Work item %d completed\n", final.ID)
				if publish := final.Payload.Publish; publish != nil && publish.URL != "" {
					fmt.Fprintf(stdout, "Published: %s\n", publish.URL)
				}
			case final.Status == queue.StatusCancelled:
				fmt.Fprintf(stdout, "Work item %d was cancelled: %s\n", final.ID, final.LastError)
			case final.Stage == queue.StageAnalytics:
				fmt.Fprintf(stdout, "Work item %d published; analytics will be collected by the daemon after the soak window\n", final.ID)
			default:
				fmt.Fprintf(stdout, "Work item %d stopped at stage %s (%s)\n", final.ID, final.Stage, final.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&channelID, "channel", "c", "", "Channel to run")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip the platform upload")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

// nextSlot picks the channel's next publish slot at or after now, rolling
// to the following day when today's slots have all passed.
func nextSlot(channel config.Channel, now time.Time) (time.Time, error) {
	slots, err := scheduler.Slots(channel, now)
	if err != nil {
		return time.Time{}, err
	}
	for _, slot := range slots {
		if !slot.Before(now) {
			return slot, nil
		}
	}
	slots, err = scheduler.Slots(channel, now.AddDate(0, 0, 1))
	if err != nil {
		return time.Time{}, err
	}
	return slots[0], nil
}
