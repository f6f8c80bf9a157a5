// Package assets collects everything composition needs beyond the
// voiceover: stock footage clips for the topic keywords, the subtitle
// file, and the channel's optional background music track.
package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/services"
	"shortreel/internal/services/render"
	"shortreel/internal/services/stock"
	"shortreel/internal/stage"
	"shortreel/internal/stages/voiceover"
)

type clipFetcher interface {
	FetchClips(ctx context.Context, keywords []string, destDir string) ([]string, error)
	HealthCheck(ctx context.Context) error
}

// Gatherer produces the assets section of the payload.
type Gatherer struct {
	cfg    *config.Config
	client clipFetcher
	logger *slog.Logger
}

// NewGatherer constructs the asset gathering handler.
func NewGatherer(cfg *config.Config, logger *slog.Logger) (*Gatherer, error) {
	client, err := stock.NewClient(cfg.Stock)
	if err != nil {
		return nil, err
	}
	return NewGathererWithDependencies(cfg, logger, client), nil
}

// NewGathererWithDependencies allows injecting custom dependencies (used for tests).
func NewGathererWithDependencies(cfg *config.Config, logger *slog.Logger, client clipFetcher) *Gatherer {
	g := &Gatherer{cfg: cfg, client: client}
	g.SetLogger(logger)
	return g
}

// SetLogger updates the gatherer's logging destination.
func (g *Gatherer) SetLogger(logger *slog.Logger) {
	g.logger = logging.NewComponentLogger(logger, "assets")
}

// Collaborator reports the external service gating this stage.
func (g *Gatherer) Collaborator() string {
	return stock.CollaboratorName
}

func (g *Gatherer) Prepare(ctx context.Context, item *queue.Item) error {
	if item.Payload.Topic == nil || item.Payload.Script == nil || item.Payload.Voiceover == nil {
		return services.Wrap(services.ErrValidation, "assets", "validate inputs",
			"topic, script, and voiceover must all be present", nil)
	}
	return nil
}

func (g *Gatherer) Execute(ctx context.Context, item *queue.Item) (queue.PayloadDelta, error) {
	logger := logging.WithContext(ctx, g.logger)
	channel, _ := g.cfg.ChannelByID(item.ChannelID)
	workspace := item.WorkspaceRoot(g.cfg.Paths.WorkDir)

	keywords := item.Payload.Topic.Keywords
	if len(keywords) == 0 {
		keywords = []string{item.Payload.Topic.Title}
	}
	clipDir := filepath.Join(workspace, "clips")
	clips, err := g.client.FetchClips(ctx, keywords, clipDir)
	if err != nil {
		return queue.PayloadDelta{}, err
	}

	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return queue.PayloadDelta{}, services.Wrap(services.ErrConfiguration, "assets", "ensure workspace",
			"failed to create item workspace", err)
	}
	subtitlePath := filepath.Join(workspace, "captions.srt")
	narration := voiceover.NarrationText(item.Payload.Script)
	if err := render.WriteSubtitles(narration, item.Payload.Voiceover.DurationSec, subtitlePath); err != nil {
		return queue.PayloadDelta{}, services.Wrap(services.ErrTransient, "assets", "write subtitles",
			"failed to write subtitle file", err)
	}

	musicPath := g.musicFor(logger, channel)

	logger.Info("assets gathered",
		logging.Int("clips", len(clips)),
		logging.String("subtitle_path", subtitlePath),
		logging.Bool("music", musicPath != ""),
	)
	return queue.PayloadDelta{Assets: &queue.AssetsResult{
		ClipPaths:    clips,
		MusicPath:    musicPath,
		SubtitlePath: subtitlePath,
	}}, nil
}

// musicFor returns the channel's background track when it exists on disk.
// A missing file downgrades to a silent mix instead of failing the item.
func (g *Gatherer) musicFor(logger *slog.Logger, channel config.Channel) string {
	if channel.MusicFile == "" {
		return ""
	}
	if _, err := os.Stat(channel.MusicFile); err != nil {
		logger.Warn("configured music track unavailable, mixing without music",
			logging.String("music_file", channel.MusicFile),
			logging.Error(err))
		return ""
	}
	return channel.MusicFile
}

func (g *Gatherer) HealthCheck(ctx context.Context) stage.Health {
	if err := g.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("assets", fmt.Sprintf("stock footage provider unreachable: %v", err))
	}
	return stage.Healthy("assets")
}
