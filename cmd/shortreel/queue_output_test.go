package main

import (
	"strings"
	"testing"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/daemon"
)

func TestBuildItemRowsTruncatesTopic(t *testing.T) {
	long := strings.Repeat("x", 60)
	rows := buildItemRows([]daemon.ItemView{{
		ID:        12,
		ChannelID: "bytecult",
		Stage:     "script",
		Status:    "pending",
		Topic:     long,
	}})
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	row := rows[0]
	if row[0] != "12" || row[1] != "bytecult" || row[3] != "script" || row[4] != "pending" {
		t.Fatalf("row = %v", row)
	}
	if len(row[5]) != topicColumnWidth || !strings.HasSuffix(row[5], "...") {
		t.Fatalf("topic = %q", row[5])
	}
}

func TestFormatItemStatusShowsRetryTime(t *testing.T) {
	retry := time.Date(2026, 3, 2, 14, 30, 0, 0, time.Local)
	got := formatItemStatus(daemon.ItemView{Status: "failed", NextRetryAt: &retry})
	if got != "failed (retry 14:30)" {
		t.Fatalf("status = %q", got)
	}

	if got := formatItemStatus(daemon.ItemView{Status: "running"}); got != "running" {
		t.Fatalf("status = %q", got)
	}
}

func TestBuildQueueStatsRowsOmitsZeroCounts(t *testing.T) {
	rows := buildQueueStatsRows(3, 2, 0, 1, 0, 0)
	want := [][]string{{"pending", "2"}, {"failed", "1"}, {"total", "3"}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %v", rows)
	}
	for i := range want {
		if rows[i][0] != want[i][0] || rows[i][1] != want[i][1] {
			t.Fatalf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}

	if rows := buildQueueStatsRows(0, 0, 0, 0, 0, 0); len(rows) != 0 {
		t.Fatalf("empty queue rows = %v", rows)
	}
}

func TestNextSlotRollsToTomorrow(t *testing.T) {
	channel := config.Channel{ID: "testchan", PublishTime: "09:00", ItemsPerDay: 1}

	morning := time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)
	slot, err := nextSlot(channel, morning)
	if err != nil {
		t.Fatalf("nextSlot: %v", err)
	}
	if slot.Day() != 2 || slot.Hour() != 9 {
		t.Fatalf("slot = %s", slot)
	}

	evening := time.Date(2026, 3, 2, 20, 0, 0, 0, time.Local)
	slot, err = nextSlot(channel, evening)
	if err != nil {
		t.Fatalf("nextSlot: %v", err)
	}
	if slot.Day() != 3 || slot.Hour() != 9 {
		t.Fatalf("slot = %s", slot)
	}
}
