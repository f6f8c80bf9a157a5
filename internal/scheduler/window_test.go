package scheduler

import (
	"testing"
	"time"

	"shortreel/internal/config"
)

func TestCadenceWindowStartsAtMostRecentAnchor(t *testing.T) {
	channel := config.Channel{ID: "testchan", PublishTime: "09:00"}

	// After today's anchor the window opened this morning.
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	start, err := cadenceWindowStart(channel, now)
	if err != nil {
		t.Fatalf("cadenceWindowStart: %v", err)
	}
	want := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Fatalf("window start = %v, want %v", start, want)
	}

	// Before today's anchor the window still spans back to yesterday's,
	// not to midnight.
	now = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	start, err = cadenceWindowStart(channel, now)
	if err != nil {
		t.Fatalf("cadenceWindowStart: %v", err)
	}
	want = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Fatalf("window start = %v, want %v", start, want)
	}
}
