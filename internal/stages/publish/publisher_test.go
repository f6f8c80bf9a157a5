package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/services"
	"shortreel/internal/services/youtube"
	"shortreel/internal/testsupport"
)

type fakeUploader struct {
	calls     int
	publishID string
	url       string
	err       error
	lastReq   youtube.UploadRequest
}

func (f *fakeUploader) Upload(_ context.Context, req youtube.UploadRequest) (string, string, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return "", "", f.err
	}
	return f.publishID, f.url, nil
}

func factoryFor(u *fakeUploader) uploaderFactory {
	return func(context.Context, string) (uploader, error) {
		return u, nil
	}
}

func newFixture(t *testing.T, dryRun bool) (*config.Config, *queue.Store, *queue.Item) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Channels[0].OAuthTokenFile = "/tmp/token.json"
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	slot := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	item, _, err := store.CreateForSlot(ctx, "testchan", slot, dryRun, nil)
	if err != nil {
		t.Fatalf("CreateForSlot: %v", err)
	}
	testsupport.AdvanceTo(t, store, item, queue.StagePublish)
	if err := store.ClaimForStage(ctx, item); err != nil {
		t.Fatalf("ClaimForStage: %v", err)
	}
	return cfg, store, item
}

func TestUploadRecordsCheckpointBeforeCompletion(t *testing.T) {
	cfg, store, item := newFixture(t, false)
	uploader := &fakeUploader{publishID: "vid-999", url: "https://www.youtube.com/shorts/vid-999"}
	publisher := NewPublisherWithDependencies(cfg, store, logging.NewNop(), factoryFor(uploader))

	delta, err := publisher.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !delta.Empty() {
		t.Fatalf("publish result should be checkpointed, not returned as delta: %+v", delta)
	}
	if uploader.calls != 1 {
		t.Fatalf("expected one upload, got %d", uploader.calls)
	}
	if uploader.lastReq.Title != item.Payload.Script.Title {
		t.Fatalf("upload title = %q, want script title", uploader.lastReq.Title)
	}

	// The publish id is already durable even though the stage has not
	// transitioned yet.
	persisted, err := store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if persisted.Status != queue.StatusRunning {
		t.Fatalf("item should still be running, got %s", persisted.Status)
	}
	if persisted.Payload.Publish == nil || persisted.Payload.Publish.PublishID != "vid-999" {
		t.Fatalf("publish id not checkpointed: %+v", persisted.Payload.Publish)
	}
}

func TestRetryAfterCheckpointNeverUploadsTwice(t *testing.T) {
	cfg, store, item := newFixture(t, false)
	uploader := &fakeUploader{publishID: "vid-999", url: "https://www.youtube.com/shorts/vid-999"}
	publisher := NewPublisherWithDependencies(cfg, store, logging.NewNop(), factoryFor(uploader))

	ctx := context.Background()
	if _, err := publisher.Execute(ctx, item); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	// Simulate the stage failing after the checkpoint and being retried.
	if _, err := publisher.Execute(ctx, item); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if uploader.calls != 1 {
		t.Fatalf("retry must not re-upload, got %d calls", uploader.calls)
	}
}

func TestDryRunSkipsUpload(t *testing.T) {
	cfg, store, item := newFixture(t, true)
	uploader := &fakeUploader{}
	publisher := NewPublisherWithDependencies(cfg, store, logging.NewNop(), factoryFor(uploader))

	delta, err := publisher.Execute(context.Background(), item)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if delta.Publish == nil || !delta.Publish.Skipped {
		t.Fatalf("dry run should record a skipped publish, got %+v", delta.Publish)
	}
	if delta.Publish.PublishID != "dry-run-"+item.UUID {
		t.Fatalf("dry run should record a placeholder id, got %q", delta.Publish.PublishID)
	}
	if uploader.calls != 0 {
		t.Fatalf("dry run must not upload, got %d calls", uploader.calls)
	}
}

func TestBannedTermBlocksUpload(t *testing.T) {
	cfg, store, item := newFixture(t, false)
	cfg.Channels[0].BannedTerms = []string{"explained"}
	uploader := &fakeUploader{publishID: "vid-999"}
	publisher := NewPublisherWithDependencies(cfg, store, logging.NewNop(), factoryFor(uploader))

	_, err := publisher.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected a safety rejection")
	}
	if !services.IsSafetyRejection(err) {
		t.Fatalf("banned metadata should be a safety rejection, got %v", err)
	}
	if uploader.calls != 0 {
		t.Fatalf("screened item must not upload, got %d calls", uploader.calls)
	}
}

func TestUploadErrorPropagates(t *testing.T) {
	cfg, store, item := newFixture(t, false)
	uploader := &fakeUploader{err: services.Wrap(services.ErrRateLimited, "youtube", "upload",
		"quota exceeded", errors.New("quotaExceeded"))}
	publisher := NewPublisherWithDependencies(cfg, store, logging.NewNop(), factoryFor(uploader))

	_, err := publisher.Execute(context.Background(), item)
	if err == nil {
		t.Fatal("expected upload error")
	}
	if !services.IsRetryable(err) {
		t.Fatalf("rate limit should stay retryable, got %v", err)
	}
}

func TestDescriptionCarriesHashtags(t *testing.T) {
	script := &queue.ScriptResult{
		Description: "A quick tour.",
		Hashtags:    []string{"golang", "#shorts"},
	}
	got := buildDescription(script)
	want := "A quick tour.\n\n#golang #shorts"
	if got != want {
		t.Fatalf("buildDescription = %q, want %q", got, want)
	}
}
