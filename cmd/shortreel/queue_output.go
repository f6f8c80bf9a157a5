package main

import (
	"fmt"
	"time"

	"shortreel/internal/daemon"
)

const topicColumnWidth = 40

func buildItemRows(views []daemon.ItemView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, view := range views {
		rows = append(rows, []string{
			fmt.Sprintf("%d", view.ID),
			view.ChannelID,
			formatSlot(view.ScheduledSlot),
			view.Stage,
			formatItemStatus(view),
			truncate(view.Topic, topicColumnWidth),
		})
	}
	return rows
}

func formatSlot(slot time.Time) string {
	if slot.IsZero() {
		return ""
	}
	return slot.Local().Format("2006-01-02 15:04")
}

// formatItemStatus annotates failed items with their retry deadline so the
// operator can tell a parked item from a stuck one.
func formatItemStatus(view daemon.ItemView) string {
	if view.Status == "failed" && view.NextRetryAt != nil {
		return fmt.Sprintf("failed (retry %s)", view.NextRetryAt.Local().Format("15:04"))
	}
	return view.Status
}

func truncate(value string, max int) string {
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func buildQueueStatsRows(total, pending, running, failed, cancelled, succeeded int) [][]string {
	rows := [][]string{}
	add := func(label string, count int) {
		if count > 0 {
			rows = append(rows, []string{label, fmt.Sprintf("%d", count)})
		}
	}
	add("pending", pending)
	add("running", running)
	add("failed", failed)
	add("cancelled", cancelled)
	add("succeeded", succeeded)
	if len(rows) > 0 {
		rows = append(rows, []string{"total", fmt.Sprintf("%d", total)})
	}
	return rows
}
