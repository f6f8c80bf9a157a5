package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"shortreel/internal/apiclient"
	"shortreel/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(client *apiclient.Client, store *queue.Store) error {
				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				if client == nil {
					for _, line := range renderSectionHeader("Daemon", colorize) {
						fmt.Fprintln(stdout, line)
					}
					fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "not running", colorize))
					fmt.Fprintln(stdout)

					stats, err := store.Stats(cmd.Context())
					if err != nil {
						return err
					}
					printQueueSection(cmd, stats.Total, stats.Pending, stats.Running, stats.Failed, stats.Cancelled, stats.Succeeded, colorize)
					return nil
				}

				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				runningKind := statusOK
				runningText := fmt.Sprintf("running (pid %d)", status.PID)
				if !status.Running {
					runningKind = statusWarn
					runningText = "not processing"
				}
				fmt.Fprintln(stdout, renderStatusLine("Daemon", runningKind, runningText, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))
				runsKind := statusInfo
				runsText := fmt.Sprintf("%d today", status.CreatedToday)
				if status.DailyRunCap > 0 {
					runsText = fmt.Sprintf("%d of %d today", status.CreatedToday, status.DailyRunCap)
					if status.CreatedToday >= status.DailyRunCap {
						runsKind = statusWarn
					}
				}
				fmt.Fprintln(stdout, renderStatusLine("Runs", runsKind, runsText, colorize))
				if status.LastError != "" {
					fmt.Fprintln(stdout, renderStatusLine("Last error", statusError, status.LastError, colorize))
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Stages", colorize) {
					fmt.Fprintln(stdout, line)
				}
				names := make([]string, 0, len(status.Stages))
				for name := range status.Stages {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					health := status.Stages[name]
					kind := statusOK
					detail := ""
					if !health.Ready {
						kind = statusError
						detail = health.Detail
					}
					fmt.Fprintln(stdout, renderStatusLine(name, kind, detail, colorize))
				}

				if len(status.Breakers) > 0 {
					fmt.Fprintln(stdout)
					for _, line := range renderSectionHeader("Circuit Breakers", colorize) {
						fmt.Fprintln(stdout, line)
					}
					for _, breaker := range status.Breakers {
						if breaker.Open {
							detail := fmt.Sprintf("open until %s", breaker.ReopensAt.Local().Format(time.Kitchen))
							fmt.Fprintln(stdout, renderStatusLine(breaker.Collaborator, statusError, detail, colorize))
						} else if breaker.Consecutive > 0 {
							detail := fmt.Sprintf("%d consecutive failures", breaker.Consecutive)
							fmt.Fprintln(stdout, renderStatusLine(breaker.Collaborator, statusWarn, detail, colorize))
						}
					}
				}

				fmt.Fprintln(stdout)
				q := status.Queue
				printQueueSection(cmd, q.Total, q.Pending, q.Running, q.Failed, q.Cancelled, q.Succeeded, colorize)
				return nil
			})
		},
	}
}

func printQueueSection(cmd *cobra.Command, total, pending, running, failed, cancelled, succeeded int, colorize bool) {
	stdout := cmd.OutOrStdout()
	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(stdout, line)
	}
	rows := buildQueueStatsRows(total, pending, running, failed, cancelled, succeeded)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "Queue is empty")
		return
	}
	table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
	fmt.Fprintln(stdout, table)
}
