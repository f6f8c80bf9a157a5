package stageexec

import (
	"testing"
	"time"

	"shortreel/internal/config"
)

func TestBackoffDelayStaysWithinJitterBounds(t *testing.T) {
	tuning := config.StageTuning{BackoffBaseSeconds: 10, BackoffMaxSeconds: 60}
	ladder := []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}

	for attempt, want := range ladder {
		for i := 0; i < 50; i++ {
			got := backoffDelay(tuning, attempt+1)
			if got < want/2 || got > want {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt+1, got, want/2, want)
			}
		}
	}
}

func TestBackoffDelayIsJittered(t *testing.T) {
	tuning := config.StageTuning{BackoffBaseSeconds: 60, BackoffMaxSeconds: 600}

	seen := make(map[time.Duration]struct{})
	for i := 0; i < 50; i++ {
		seen[backoffDelay(tuning, 2)] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("expected varying delays across draws, got %d distinct value(s)", len(seen))
	}
}

func TestBackoffDelayZeroBaseMeansNoWait(t *testing.T) {
	tuning := config.StageTuning{BackoffBaseSeconds: 0, BackoffMaxSeconds: 0}
	if got := backoffDelay(tuning, 3); got != 0 {
		t.Fatalf("expected no delay without a base, got %v", got)
	}
}
