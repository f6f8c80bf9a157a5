package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shortreel/internal/queue"
	"shortreel/internal/testsupport"
)

func TestCreateForSlotIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	slot := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	first, created, err := store.CreateForSlot(ctx, "testchan", slot, false, nil)
	if err != nil {
		t.Fatalf("CreateForSlot failed: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the item")
	}
	if first.Stage != queue.StageResearch || first.Status != queue.StatusPending {
		t.Fatalf("new item should start pending at research, got %s/%s", first.Stage, first.Status)
	}
	if first.UUID == "" {
		t.Fatal("expected item UUID to be assigned")
	}

	second, created, err := store.CreateForSlot(ctx, "testchan", slot, false, nil)
	if err != nil {
		t.Fatalf("repeat CreateForSlot failed: %v", err)
	}
	if created {
		t.Fatal("repeat call must not create a duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing item %d, got %d", first.ID, second.ID)
	}

	other, created, err := store.CreateForSlot(ctx, "otherchan", slot, false, nil)
	if err != nil {
		t.Fatalf("CreateForSlot other channel failed: %v", err)
	}
	if !created || other.ID == first.ID {
		t.Fatal("same slot on another channel must create a distinct item")
	}
}

func TestCreateForSlotRecordsSeed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	seed := &queue.TopicSeed{Title: "Why maps are unordered", Keywords: []string{"maps"}}
	item, _, err := store.CreateForSlot(ctx, "testchan", time.Now().UTC(), false, seed)
	if err != nil {
		t.Fatalf("CreateForSlot failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Payload.Seed == nil || fetched.Payload.Seed.Title != "Why maps are unordered" {
		t.Fatalf("expected seed topic in payload, got %#v", fetched.Payload.Seed)
	}
}

func TestClaimForStageWinsOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())

	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if item.Status != queue.StatusRunning {
		t.Fatalf("claimed item should be running, got %s", item.Status)
	}

	stale := *item
	stale.Status = queue.StatusPending
	err := store.ClaimForStage(ctx, &stale)
	if !errors.Is(err, queue.ErrStale) {
		t.Fatalf("second claim should report ErrStale, got %v", err)
	}
}

func TestMarkStageSucceededAdvances(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())

	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.MarkStageSucceeded(ctx, item, testsupport.FixtureDelta(queue.StageResearch)); err != nil {
		t.Fatalf("MarkStageSucceeded failed: %v", err)
	}

	if item.Stage != queue.StageScript || item.Status != queue.StatusPending {
		t.Fatalf("expected pending at script, got %s/%s", item.Stage, item.Status)
	}
	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Payload.Topic == nil {
		t.Fatal("expected research payload section to be persisted")
	}
}

func TestMarkStageSucceededRejectsOverwrite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	testsupport.AdvanceTo(t, store, item, queue.StageScript)

	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	err := store.MarkStageSucceeded(ctx, item, testsupport.FixtureDelta(queue.StageResearch))
	if err == nil {
		t.Fatal("expected append-only violation to fail")
	}
}

func TestFinalStageCompletesItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	testsupport.AdvanceTo(t, store, item, queue.StageAnalytics)

	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.MarkStageSucceeded(ctx, item, testsupport.FixtureDelta(queue.StageAnalytics)); err != nil {
		t.Fatalf("final MarkStageSucceeded failed: %v", err)
	}
	if item.Stage != queue.StageDone || item.Status != queue.StatusSucceeded {
		t.Fatalf("expected done/succeeded, got %s/%s", item.Stage, item.Status)
	}
}

func TestMarkStageFailedIncrementsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())

	retryAt := time.Now().UTC().Add(time.Minute)
	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.MarkStageFailed(ctx, item, "llm: rate limited", retryAt); err != nil {
		t.Fatalf("MarkStageFailed failed: %v", err)
	}

	if item.Status != queue.StatusFailed {
		t.Fatalf("expected failed status, got %s", item.Status)
	}
	if got := item.AttemptsFor(queue.StageResearch); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	if item.NextRetryAt == nil || !item.NextRetryAt.Equal(retryAt.Truncate(time.Nanosecond)) {
		t.Fatalf("unexpected retry deadline %v", item.NextRetryAt)
	}
	if !item.Ready(retryAt.Add(time.Second)) {
		t.Fatal("item should be ready after its retry deadline")
	}
	if item.Ready(retryAt.Add(-time.Second)) {
		t.Fatal("item should not be ready before its retry deadline")
	}
}

func TestMarkCancelledCanPreserveAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())

	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.MarkCancelled(ctx, item, "script rejected: banned term", false); err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}

	if item.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", item.Status)
	}
	if got := item.AttemptsFor(queue.StageResearch); got != 0 {
		t.Fatalf("safety cancellation must not consume an attempt, got %d", got)
	}
	if item.LastError == "" {
		t.Fatal("expected cancellation reason to be recorded")
	}
}

func TestDueSelectsPendingAndExpiredRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now().UTC()

	pending := testsupport.NewItem(t, store, "testchan", now.Add(-2*time.Hour))
	waiting := testsupport.NewItem(t, store, "testchan", now.Add(-time.Hour))
	expired := testsupport.NewItem(t, store, "testchan", now)

	if err := store.ClaimForStage(ctx, waiting); err != nil {
		t.Fatalf("claim waiting: %v", err)
	}
	if err := store.MarkStageFailed(ctx, waiting, "timeout", now.Add(time.Hour)); err != nil {
		t.Fatalf("fail waiting: %v", err)
	}
	if err := store.ClaimForStage(ctx, expired); err != nil {
		t.Fatalf("claim expired: %v", err)
	}
	if err := store.MarkStageFailed(ctx, expired, "timeout", now.Add(-time.Minute)); err != nil {
		t.Fatalf("fail expired: %v", err)
	}

	due, err := store.Due(ctx, now)
	if err != nil {
		t.Fatalf("Due failed: %v", err)
	}
	ids := make(map[int64]bool, len(due))
	for _, item := range due {
		ids[item.ID] = true
	}
	if !ids[pending.ID] || !ids[expired.ID] {
		t.Fatalf("expected pending and expired-retry items, got %v", ids)
	}
	if ids[waiting.ID] {
		t.Fatal("item still inside its backoff window must not be due")
	}
	if len(due) >= 2 && due[0].ScheduledSlot.After(due[1].ScheduledSlot) {
		t.Fatal("due items should be ordered oldest slot first")
	}
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())

	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := store.Stop(ctx, item.ID, "operator stop"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The worker finishes later; its transition must lose.
	err := store.MarkStageSucceeded(ctx, item, testsupport.FixtureDelta(queue.StageResearch))
	if !errors.Is(err, queue.ErrStale) {
		t.Fatalf("expected ErrStale after stop, got %v", err)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", fetched.Status)
	}
}

func TestStopRejectsTerminalItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	testsupport.AdvanceTo(t, store, item, queue.StageDone)

	_, err := store.Stop(ctx, item.ID, "too late")
	if !errors.Is(err, queue.ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}
}

func TestRecoverRunningPreservesAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())

	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.MarkStageFailed(ctx, item, "timeout", time.Now().UTC()); err != nil {
		t.Fatalf("fail failed: %v", err)
	}
	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}

	// Simulate a crash: the item is still running when the daemon restarts.
	ids, err := store.RecoverRunning(ctx)
	if err != nil {
		t.Fatalf("RecoverRunning failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != item.ID {
		t.Fatalf("expected item %d recovered, got %v", item.ID, ids)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusFailed {
		t.Fatalf("recovered item should be failed, got %s", fetched.Status)
	}
	if got := fetched.AttemptsFor(queue.StageResearch); got != 1 {
		t.Fatalf("crash recovery must not consume an attempt, got %d", got)
	}
	if !fetched.Ready(time.Now().UTC().Add(time.Second)) {
		t.Fatal("recovered item should be immediately due")
	}
}

func TestRetryNowAndClearAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())

	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := store.MarkStageFailed(ctx, item, "timeout", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	retried, err := store.RetryNow(ctx, item.ID)
	if err != nil {
		t.Fatalf("RetryNow failed: %v", err)
	}
	if retried.Status != queue.StatusPending || retried.NextRetryAt != nil {
		t.Fatalf("retried item should be pending with no deadline, got %s/%v", retried.Status, retried.NextRetryAt)
	}
	if got := retried.AttemptsFor(queue.StageResearch); got != 1 {
		t.Fatalf("RetryNow must preserve attempts, got %d", got)
	}

	if err := store.ClaimForStage(ctx, retried); err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if err := store.MarkCancelled(ctx, retried, "validation: bad channel", true); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	cleared, err := store.ClearAttempts(ctx, item.ID)
	if err != nil {
		t.Fatalf("ClearAttempts failed: %v", err)
	}
	if cleared.Status != queue.StatusPending {
		t.Fatalf("cleared item should be pending, got %s", cleared.Status)
	}
	if got := cleared.AttemptsFor(queue.StageResearch); got != 0 {
		t.Fatalf("ClearAttempts must zero counters, got %d", got)
	}
}

func TestCheckpointPayloadPersistsPublishID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	testsupport.AdvanceTo(t, store, item, queue.StagePublish)

	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	item.Payload.Publish = &queue.PublishResult{
		Platform:    "youtube",
		PublishID:   "vid-999",
		PublishedAt: time.Now().UTC(),
	}
	if err := store.CheckpointPayload(ctx, item); err != nil {
		t.Fatalf("CheckpointPayload failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Payload.Publish == nil || fetched.Payload.Publish.PublishID != "vid-999" {
		t.Fatalf("expected checkpointed publish id, got %#v", fetched.Payload.Publish)
	}
	if fetched.Status != queue.StatusRunning || fetched.Stage != queue.StagePublish {
		t.Fatalf("checkpoint must not move the item, got %s/%s", fetched.Stage, fetched.Status)
	}
}

func TestAnalyticsAbsorptionIsOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	testsupport.AdvanceTo(t, store, item, queue.StageDone)

	waiting, err := store.PublishedAwaitingAbsorption(ctx)
	if err != nil {
		t.Fatalf("PublishedAwaitingAbsorption failed: %v", err)
	}
	if len(waiting) != 1 || waiting[0].ID != item.ID {
		t.Fatalf("expected item awaiting absorption, got %v", waiting)
	}

	if err := store.MarkAnalyticsAbsorbed(ctx, item.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkAnalyticsAbsorbed failed: %v", err)
	}
	err = store.MarkAnalyticsAbsorbed(ctx, item.ID, time.Now().UTC())
	if !errors.Is(err, queue.ErrStale) {
		t.Fatalf("second absorption must fail with ErrStale, got %v", err)
	}

	waiting, err = store.PublishedAwaitingAbsorption(ctx)
	if err != nil {
		t.Fatalf("PublishedAwaitingAbsorption failed: %v", err)
	}
	if len(waiting) != 0 {
		t.Fatalf("absorbed item must not reappear, got %v", waiting)
	}
}

func TestCountersForAdmission(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now().UTC()

	a := testsupport.NewItem(t, store, "testchan", now.Add(-time.Hour))
	testsupport.NewItem(t, store, "testchan", now)
	testsupport.NewItem(t, store, "otherchan", now)

	inflight, err := store.InFlightCount(ctx, "testchan")
	if err != nil {
		t.Fatalf("InFlightCount failed: %v", err)
	}
	if inflight != 2 {
		t.Fatalf("expected 2 in-flight items, got %d", inflight)
	}

	testsupport.AdvanceTo(t, store, a, queue.StageDone)
	inflight, err = store.InFlightCount(ctx, "testchan")
	if err != nil {
		t.Fatalf("InFlightCount failed: %v", err)
	}
	if inflight != 1 {
		t.Fatalf("terminal items must release capacity, got %d", inflight)
	}

	total, err := store.CountCreatedSince(ctx, "", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountCreatedSince failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 items created today, got %d", total)
	}
}
