package testsupport

import (
	"context"
	"testing"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem creates a pending work item for tests using the provided store.
func NewItem(t testing.TB, store *queue.Store, channelID string, slot time.Time) *queue.Item {
	t.Helper()

	item, created, err := store.CreateForSlot(context.Background(), channelID, slot, false, nil)
	if err != nil {
		t.Fatalf("store.CreateForSlot: %v", err)
	}
	if !created {
		t.Fatalf("expected fresh item for channel %s slot %s", channelID, slot)
	}
	return item
}

// AdvanceTo walks an item through successful stage transitions until it sits
// pending at the target stage. Payload sections for completed stages are
// filled with minimal fixtures.
func AdvanceTo(t testing.TB, store *queue.Store, item *queue.Item, target queue.Stage) {
	t.Helper()

	ctx := context.Background()
	for item.Stage != target && item.Stage != queue.StageDone {
		if err := store.ClaimForStage(ctx, item); err != nil {
			t.Fatalf("claim stage %s: %v", item.Stage, err)
		}
		if err := store.MarkStageSucceeded(ctx, item, FixtureDelta(item.Stage)); err != nil {
			t.Fatalf("advance past stage %s: %v", item.Stage, err)
		}
	}
}

// FixtureDelta returns a minimal plausible payload delta for the given
// stage, suitable for walking items through the pipeline in tests.
func FixtureDelta(stage queue.Stage) queue.PayloadDelta {
	switch stage {
	case queue.StageResearch:
		return queue.PayloadDelta{Topic: &queue.TopicResult{
			Title:      "Five surprising facts about goroutines",
			Keywords:   []string{"goroutines", "concurrency"},
			Source:     "reddit",
			Score:      0.8,
			Candidates: 5,
		}}
	case queue.StageScript:
		return queue.PayloadDelta{Script: &queue.ScriptResult{
			Title:       "Goroutines explained",
			Hook:        "You are using goroutines wrong.",
			Body:        "Here is what the scheduler actually does.",
			HookPattern: "contrarian",
			Structure:   "hook-body-cta",
			WordCount:   120,
		}}
	case queue.StageVoiceover:
		return queue.PayloadDelta{Voiceover: &queue.VoiceoverResult{
			AudioPath:   "/tmp/voiceover.mp3",
			DurationSec: 42,
			Voice:       "test-voice",
		}}
	case queue.StageAssets:
		return queue.PayloadDelta{Assets: &queue.AssetsResult{
			ClipPaths: []string{"/tmp/clip1.mp4", "/tmp/clip2.mp4"},
		}}
	case queue.StageCompose:
		return queue.PayloadDelta{Render: &queue.RenderResult{
			VideoPath:   "/tmp/final.mp4",
			DurationSec: 42,
		}}
	case queue.StagePublish:
		return queue.PayloadDelta{Publish: &queue.PublishResult{
			Platform:    "youtube",
			PublishID:   "vid-123",
			URL:         "https://youtube.com/shorts/vid-123",
			PublishedAt: time.Now().UTC(),
		}}
	case queue.StageAnalytics:
		return queue.PayloadDelta{Analytics: &queue.AnalyticsResult{
			Views:          12000,
			Likes:          300,
			Comments:       40,
			AvgViewSec:     30,
			VideoDuration:  42,
			EngagementRate: 2.8,
			Retention:      0.71,
			SampledAt:      time.Now().UTC(),
		}}
	default:
		return queue.PayloadDelta{}
	}
}
