// Package analytics samples platform metrics for a published video once
// the configured soak window has passed, producing the numbers the
// learning model absorbs.
package analytics

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/services"
	"shortreel/internal/services/youtube"
	"shortreel/internal/stage"
)

// neutralRetention stands in for watch-time retention, which the platform
// reporting API does not expose. A mid-scale value keeps the retention
// term of the performance score from rewarding or punishing any item.
const neutralRetention = 0.5

type statsFetcher interface {
	FetchStats(ctx context.Context, videoID string) (youtube.Stats, error)
}

type fetcherFactory func(ctx context.Context, tokenFile string) (statsFetcher, error)

// Collector produces the analytics section of the payload.
type Collector struct {
	cfg        *config.Config
	newFetcher fetcherFactory
	now        func() time.Time
	logger     *slog.Logger
}

// NewCollector constructs the analytics handler.
func NewCollector(cfg *config.Config, logger *slog.Logger) *Collector {
	return NewCollectorWithDependencies(cfg, logger,
		func(ctx context.Context, tokenFile string) (statsFetcher, error) {
			return youtube.NewClient(ctx, tokenFile)
		})
}

// NewCollectorWithDependencies allows injecting custom dependencies (used for tests).
func NewCollectorWithDependencies(cfg *config.Config, logger *slog.Logger, factory fetcherFactory) *Collector {
	c := &Collector{cfg: cfg, newFetcher: factory, now: time.Now}
	c.SetLogger(logger)
	return c
}

// SetLogger updates the collector's logging destination.
func (c *Collector) SetLogger(logger *slog.Logger) {
	c.logger = logging.NewComponentLogger(logger, "analytics")
}

// SetClock overrides the time source for tests.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Collaborator reports the external service gating this stage.
func (c *Collector) Collaborator() string {
	return youtube.CollaboratorName
}

// CollectionDue reports whether the soak window since publication has
// elapsed. Items with a skipped publish are always due; they complete
// with a skipped sample.
func CollectionDue(cfg *config.Config, item *queue.Item, now time.Time) bool {
	publish := item.Payload.Publish
	if publish == nil || publish.Skipped {
		return true
	}
	window := time.Duration(cfg.Analytics.CollectAfterHours) * time.Hour
	return !now.Before(publish.PublishedAt.Add(window))
}

func (c *Collector) Prepare(ctx context.Context, item *queue.Item) error {
	if item.Payload.Publish == nil {
		return services.Wrap(services.ErrValidation, "analytics", "validate inputs",
			"no publish record present; publishing must complete first", nil)
	}
	return nil
}

func (c *Collector) Execute(ctx context.Context, item *queue.Item) (queue.PayloadDelta, error) {
	logger := logging.WithContext(ctx, c.logger)
	publish := item.Payload.Publish
	now := c.now().UTC()

	if publish.Skipped || item.DryRun {
		logger.Info("publish was skipped, recording empty sample")
		return queue.PayloadDelta{Analytics: &queue.AnalyticsResult{
			SampledAt: now,
			Skipped:   true,
		}}, nil
	}

	if !CollectionDue(c.cfg, item, now) {
		due := publish.PublishedAt.Add(time.Duration(c.cfg.Analytics.CollectAfterHours) * time.Hour)
		return queue.PayloadDelta{}, services.Wrap(services.ErrTransient, "analytics", "check window",
			fmt.Sprintf("metrics not yet due, sampling opens %s", due.Format(time.RFC3339)), nil)
	}

	channel, _ := c.cfg.ChannelByID(item.ChannelID)
	client, err := c.newFetcher(ctx, channel.OAuthTokenFile)
	if err != nil {
		return queue.PayloadDelta{}, err
	}
	stats, err := client.FetchStats(ctx, publish.PublishID)
	if err != nil {
		return queue.PayloadDelta{}, err
	}

	result := &queue.AnalyticsResult{
		Views:         stats.Views,
		Likes:         stats.Likes,
		Comments:      stats.Comments,
		VideoDuration: stats.DurationSec,
		Retention:     neutralRetention,
		SampledAt:     now,
	}
	if stats.Views > 0 {
		result.EngagementRate = float64(stats.Likes+stats.Comments) / float64(stats.Views) * 100
	}

	logger.Info("metrics sampled",
		logging.String("publish_id", publish.PublishID),
		logging.Int64("views", result.Views),
		logging.Int64("likes", result.Likes),
		logging.Int64("comments", result.Comments),
		logging.Float64("engagement_rate", result.EngagementRate),
	)
	return queue.PayloadDelta{Analytics: result}, nil
}

func (c *Collector) HealthCheck(ctx context.Context) stage.Health {
	if c.cfg.Analytics.CollectAfterHours <= 0 {
		return stage.Unhealthy("analytics", "collect_after_hours must be positive")
	}
	return stage.Healthy("analytics")
}
