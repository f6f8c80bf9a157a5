// Package publish uploads the composed video to the channel's platform
// account. The platform video id is checkpointed into the payload the
// moment the upload succeeds, so a crash or stop after that point can
// never lead to a second upload.
package publish

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"log/slog"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/services"
	"shortreel/internal/services/youtube"
	"shortreel/internal/stage"
)

const platformYouTube = "youtube"

type uploader interface {
	Upload(ctx context.Context, req youtube.UploadRequest) (string, string, error)
}

type uploaderFactory func(ctx context.Context, tokenFile string) (uploader, error)

// Publisher produces the publish section of the payload.
type Publisher struct {
	cfg         *config.Config
	store       *queue.Store
	newUploader uploaderFactory
	logger      *slog.Logger
}

// NewPublisher constructs the publish handler.
func NewPublisher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Publisher {
	return NewPublisherWithDependencies(cfg, store, logger,
		func(ctx context.Context, tokenFile string) (uploader, error) {
			return youtube.NewClient(ctx, tokenFile)
		})
}

// NewPublisherWithDependencies allows injecting custom dependencies (used for tests).
func NewPublisherWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, factory uploaderFactory) *Publisher {
	p := &Publisher{cfg: cfg, store: store, newUploader: factory}
	p.SetLogger(logger)
	return p
}

// SetLogger updates the publisher's logging destination.
func (p *Publisher) SetLogger(logger *slog.Logger) {
	p.logger = logging.NewComponentLogger(logger, "publish")
}

// Collaborator reports the external service gating this stage.
func (p *Publisher) Collaborator() string {
	return youtube.CollaboratorName
}

func (p *Publisher) Prepare(ctx context.Context, item *queue.Item) error {
	if item.Payload.Publish != nil || item.DryRun {
		return nil
	}
	if item.Payload.Script == nil || item.Payload.Render == nil {
		return services.Wrap(services.ErrValidation, "publish", "validate inputs",
			"script and rendered video must both be present", nil)
	}
	channel, _ := p.cfg.ChannelByID(item.ChannelID)
	if strings.TrimSpace(channel.OAuthTokenFile) == "" {
		return services.Wrap(services.ErrConfiguration, "publish", "validate inputs",
			fmt.Sprintf("channel %q has no oauth_token_file configured", item.ChannelID), nil)
	}
	return nil
}

func (p *Publisher) Execute(ctx context.Context, item *queue.Item) (queue.PayloadDelta, error) {
	logger := logging.WithContext(ctx, p.logger)

	// A recorded publish id means an earlier attempt already uploaded and
	// checkpointed before failing; never upload twice.
	if existing := item.Payload.Publish; existing != nil {
		logger.Info("publish already recorded, skipping upload",
			logging.String("publish_id", existing.PublishID))
		return queue.PayloadDelta{}, nil
	}

	if item.DryRun {
		// The placeholder id is derived from the item so a retried dry run
		// records the same no-op publish.
		placeholder := "dry-run-" + item.UUID
		logger.Info("dry run, skipping upload",
			logging.String("publish_id", placeholder))
		return queue.PayloadDelta{Publish: &queue.PublishResult{
			Platform:    platformYouTube,
			PublishID:   placeholder,
			PublishedAt: time.Now().UTC(),
			Skipped:     true,
		}}, nil
	}

	channel, _ := p.cfg.ChannelByID(item.ChannelID)
	script := item.Payload.Script

	// The script stage screened this content when it was written, but the
	// banned-term list may have changed since; nothing leaves the system
	// unscreened.
	if term := firstBannedTerm(channel.BannedTerms, script); term != "" {
		return queue.PayloadDelta{}, services.Wrap(services.ErrSafety, "publish", "safety gate",
			fmt.Sprintf("upload metadata contains banned term %q", term), nil)
	}

	client, err := p.newUploader(ctx, channel.OAuthTokenFile)
	if err != nil {
		return queue.PayloadDelta{}, err
	}

	publishID, url, err := client.Upload(ctx, youtube.UploadRequest{
		VideoPath:   item.Payload.Render.VideoPath,
		Title:       script.Title,
		Description: buildDescription(script),
		Tags:        script.Hashtags,
	})
	if err != nil {
		return queue.PayloadDelta{}, err
	}

	item.Payload.Publish = &queue.PublishResult{
		Platform:    platformYouTube,
		PublishID:   publishID,
		URL:         url,
		PublishedAt: time.Now().UTC(),
	}
	if err := p.store.CheckpointPayload(ctx, item); err != nil {
		// The upload happened; surfacing the id in the error keeps it
		// recoverable by hand if the row is gone for good.
		return queue.PayloadDelta{}, services.Wrap(services.ErrTransient, "publish", "checkpoint",
			fmt.Sprintf("uploaded as %s but failed to record the publish id", publishID), err)
	}

	logger.Info("video published",
		logging.String("publish_id", publishID),
		logging.String("url", url),
	)
	return queue.PayloadDelta{}, nil
}

// firstBannedTerm scans the metadata that would be uploaded, title and
// description included, and returns the first configured term it finds.
func firstBannedTerm(terms []string, script *queue.ScriptResult) string {
	if len(terms) == 0 {
		return ""
	}
	haystack := strings.ToLower(script.Title + "\n" + buildDescription(script))
	for _, term := range terms {
		needle := strings.ToLower(strings.TrimSpace(term))
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, needle) {
			return strings.TrimSpace(term)
		}
	}
	return ""
}

func buildDescription(script *queue.ScriptResult) string {
	var b strings.Builder
	if desc := strings.TrimSpace(script.Description); desc != "" {
		b.WriteString(desc)
	}
	if len(script.Hashtags) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		for i, tag := range script.Hashtags {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString("#" + strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		}
	}
	return b.String()
}

func (p *Publisher) HealthCheck(ctx context.Context) stage.Health {
	for _, channel := range p.cfg.Channels {
		if strings.TrimSpace(channel.OAuthTokenFile) == "" {
			continue
		}
		if _, err := os.Stat(channel.OAuthTokenFile); err != nil {
			return stage.Unhealthy("publish",
				fmt.Sprintf("channel %s token file unreadable: %v", channel.ID, err))
		}
	}
	return stage.Healthy("publish")
}
