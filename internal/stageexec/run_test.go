package stageexec_test

import (
	"context"
	"testing"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/services"
	"shortreel/internal/stage"
	"shortreel/internal/stageexec"
	"shortreel/internal/testsupport"
)

type fakeHandler struct {
	collaborator string
	prepareErr   error
	executeErr   error
	delta        queue.PayloadDelta
	executed     int
}

func (f *fakeHandler) Prepare(ctx context.Context, item *queue.Item) error {
	return f.prepareErr
}

func (f *fakeHandler) Execute(ctx context.Context, item *queue.Item) (queue.PayloadDelta, error) {
	f.executed++
	if f.executeErr != nil {
		return queue.PayloadDelta{}, f.executeErr
	}
	return f.delta, nil
}

func (f *fakeHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("fake")
}

func (f *fakeHandler) Collaborator() string { return f.collaborator }

func runStage(t *testing.T, store *queue.Store, item *queue.Item, handler stage.Handler, tuning config.StageTuning, breaker *stageexec.BreakerSet) error {
	t.Helper()
	ctx := context.Background()
	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	return stageexec.Run(ctx, stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Handler: handler,
		Breaker: breaker,
		Tuning:  tuning,
		Item:    item,
	})
}

func TestRunSuccessAdvancesItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())

	handler := &fakeHandler{delta: testsupport.FixtureDelta(queue.StageResearch)}
	if err := runStage(t, store, item, handler, cfg.Stages.Research, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if item.Stage != queue.StageScript || item.Status != queue.StatusPending {
		t.Fatalf("expected pending at script, got %s/%s", item.Stage, item.Status)
	}
	if item.Payload.Topic == nil {
		t.Fatal("expected topic payload section")
	}
}

func TestRunRetryableFailureParksWithBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())

	handler := &fakeHandler{
		executeErr: services.Wrap(services.ErrRateLimited, "research", "fetch", "reddit rate limited", nil),
	}
	before := time.Now().UTC()
	if err := runStage(t, store, item, handler, cfg.Stages.Research, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if item.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", item.Status)
	}
	if got := item.AttemptsFor(queue.StageResearch); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	if item.Stage != queue.StageResearch {
		t.Fatalf("retryable failure must not advance the stage, got %s", item.Stage)
	}
	base := time.Duration(cfg.Stages.Research.BackoffBaseSeconds) * time.Second
	if item.NextRetryAt == nil {
		t.Fatal("expected a retry deadline")
	}
	if item.NextRetryAt.Before(before.Add(base / 2)) {
		t.Fatalf("retry earlier than the jitter floor, got %v", item.NextRetryAt)
	}
	if item.NextRetryAt.After(before.Add(base).Add(2 * time.Second)) {
		t.Fatalf("retry later than the base backoff, got %v", item.NextRetryAt)
	}
}

func TestRunBackoffDoublesPerAttempt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tuning := config.StageTuning{MaxAttempts: 5, BackoffBaseSeconds: 10, BackoffMaxSeconds: 25}
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	handler := &fakeHandler{
		executeErr: services.Wrap(services.ErrTransient, "research", "fetch", "flaky", nil),
	}

	ladder := []time.Duration{10 * time.Second, 20 * time.Second, 25 * time.Second}
	for i, want := range ladder {
		before := time.Now().UTC()
		if err := runStage(t, store, item, handler, tuning, nil); err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
		if item.NextRetryAt == nil {
			t.Fatalf("attempt %d: missing retry deadline", i)
		}
		delay := item.NextRetryAt.Sub(before).Round(time.Second)
		// Each rung is jittered into [want/2, want].
		if delay < want/2-time.Second || delay > want+time.Second {
			t.Fatalf("attempt %d: delay %v outside jittered rung around %v", i, delay, want)
		}
	}
}

func TestRunExhaustedRetriesCancels(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	tuning := config.StageTuning{MaxAttempts: 2, BackoffBaseSeconds: 0, BackoffMaxSeconds: 0}
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	handler := &fakeHandler{
		executeErr: services.Wrap(services.ErrUnavailable, "research", "fetch", "service down", nil),
	}

	if err := runStage(t, store, item, handler, tuning, nil); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if item.Status != queue.StatusFailed {
		t.Fatalf("expected failed after first attempt, got %s", item.Status)
	}

	if err := runStage(t, store, item, handler, tuning, nil); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if item.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled after budget exhausted, got %s", item.Status)
	}
	if got := item.AttemptsFor(queue.StageResearch); got != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", got)
	}
}

func TestRunFatalErrorCancelsImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	handler := &fakeHandler{
		executeErr: services.Wrap(services.ErrConfiguration, "research", "fetch", "api key missing", nil),
	}

	if err := runStage(t, store, item, handler, cfg.Stages.Research, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if item.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", item.Status)
	}
	if got := item.AttemptsFor(queue.StageResearch); got != 1 {
		t.Fatalf("fatal failure consumes its attempt, got %d", got)
	}
}

func TestRunSafetyRejectionPreservesAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	handler := &fakeHandler{
		executeErr: services.Wrap(services.ErrSafety, "script", "review", "banned term in hook", nil),
	}

	if err := runStage(t, store, item, handler, cfg.Stages.Script, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if item.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", item.Status)
	}
	if got := item.AttemptsFor(item.Stage); got != 0 {
		t.Fatalf("safety rejection must not consume an attempt, got %d", got)
	}
	if item.LastError == "" {
		t.Fatal("expected rejection reason recorded for audit")
	}
}

func TestRunUntaggedErrorIsRetryable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	handler := &fakeHandler{executeErr: context.DeadlineExceeded}

	// An untagged error, even a raw deadline, classifies retryable.
	if err := runStage(t, store, item, handler, cfg.Stages.Research, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if item.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", item.Status)
	}
}

func TestRunFeedsBreaker(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	breaker := stageexec.NewBreakerSet(config.Breaker{FailureThreshold: 2, CooldownSeconds: 300})
	handler := &fakeHandler{
		collaborator: "llm",
		executeErr:   services.Wrap(services.ErrTransient, "research", "fetch", "flaky", nil),
	}
	tuning := config.StageTuning{MaxAttempts: 10, BackoffBaseSeconds: 0}

	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())
	for i := 0; i < 2; i++ {
		if err := runStage(t, store, item, handler, tuning, breaker); err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
	}

	allowed, until := breaker.Allow("llm")
	if allowed {
		t.Fatal("expected breaker open after threshold failures")
	}
	if until.IsZero() {
		t.Fatal("expected breaker reopen time")
	}

	// A success elsewhere on the same collaborator closes it again.
	handler.executeErr = nil
	handler.delta = testsupport.FixtureDelta(queue.StageResearch)
	if err := runStage(t, store, item, handler, tuning, breaker); err != nil {
		t.Fatalf("success Run failed: %v", err)
	}
	if allowed, _ := breaker.Allow("llm"); !allowed {
		t.Fatal("expected breaker closed after success")
	}
}

func TestRunDiscardsResultAfterStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "testchan", time.Now().UTC())

	ctx := context.Background()
	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := store.Stop(ctx, item.ID, "operator stop"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	handler := &fakeHandler{delta: testsupport.FixtureDelta(queue.StageResearch)}
	err := stageexec.Run(ctx, stageexec.Options{
		Logger:  logging.NewNop(),
		Store:   store,
		Handler: handler,
		Tuning:  cfg.Stages.Research,
		Item:    item,
	})
	if err != nil {
		t.Fatalf("Run should absorb the stale transition, got %v", err)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusCancelled || fetched.Stage != queue.StageResearch {
		t.Fatalf("stop must win over the in-flight result, got %s/%s", fetched.Stage, fetched.Status)
	}
}
