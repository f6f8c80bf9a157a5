package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shortreel/internal/queue"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	var channelID string
	var title string
	var angle string
	var keywords []string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a topic for the channel's next slot, bypassing research ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			channel, ok := cfg.ChannelByID(channelID)
			if !ok {
				return fmt.Errorf("unknown channel %q", channelID)
			}
			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("a topic title is required")
			}

			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			slot, err := nextSlot(channel, time.Now())
			if err != nil {
				return err
			}
			seed := &queue.TopicSeed{
				Title:    strings.TrimSpace(title),
				Angle:    strings.TrimSpace(angle),
				Keywords: keywords,
			}
			item, created, err := store.CreateForSlot(cmd.Context(), channel.ID, slot, false, seed)
			if err != nil {
				return err
			}
			if !created {
				return fmt.Errorf("slot %s already has work item %d; stop it first or wait for the next slot", formatSlot(slot), item.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %q for channel %s at slot %s (work item %d)\n",
				seed.Title, channel.ID, formatSlot(slot), item.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&channelID, "channel", "c", "", "Channel to seed")
	cmd.Flags().StringVar(&title, "title", "", "Topic title")
	cmd.Flags().StringVar(&angle, "angle", "", "Topic angle")
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "Topic keywords")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
