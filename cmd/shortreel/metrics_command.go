package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shortreel/internal/services/youtube"
)

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	var channelID string
	var publishID string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Fetch current platform metrics for a published video",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			channel, ok := cfg.ChannelByID(channelID)
			if !ok {
				return fmt.Errorf("unknown channel %q", channelID)
			}
			if strings.TrimSpace(publishID) == "" {
				return fmt.Errorf("a publish id is required")
			}
			if channel.OAuthTokenFile == "" {
				return fmt.Errorf("channel %s has no oauth_token_file configured", channel.ID)
			}

			client, err := youtube.NewClient(cmd.Context(), channel.OAuthTokenFile)
			if err != nil {
				return err
			}
			stats, err := client.FetchStats(cmd.Context(), strings.TrimSpace(publishID))
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Views", fmt.Sprintf("%d", stats.Views)},
				{"Likes", fmt.Sprintf("%d", stats.Likes)},
				{"Comments", fmt.Sprintf("%d", stats.Comments)},
				{"Duration", fmt.Sprintf("%.0fs", stats.DurationSec)},
			}
			table := renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().StringVarP(&channelID, "channel", "c", "", "Channel whose credentials to use")
	cmd.Flags().StringVar(&publishID, "publish-id", "", "Platform video id")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("publish-id")
	return cmd
}
