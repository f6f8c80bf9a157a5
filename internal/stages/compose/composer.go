// Package compose runs the ffmpeg render that turns clips, voiceover,
// subtitles, and music into the final vertical video.
package compose

import (
	"context"
	"path/filepath"

	"log/slog"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/services"
	"shortreel/internal/services/render"
	"shortreel/internal/stage"
)

type videoComposer interface {
	Compose(ctx context.Context, job render.Job) (int64, error)
	HealthCheck(ctx context.Context) error
}

// Composer produces the render section of the payload.
type Composer struct {
	cfg      *config.Config
	renderer videoComposer
	styles   map[string]config.Style
	logger   *slog.Logger
}

// NewComposer constructs the composition handler. Style presets load once
// at startup; edits to the styles file require a restart, matching channel
// configuration.
func NewComposer(cfg *config.Config, logger *slog.Logger) (*Composer, error) {
	styles, err := config.LoadStyles(cfg.Paths.StylesFile)
	if err != nil {
		return nil, err
	}
	return NewComposerWithDependencies(cfg, logger, render.New(cfg.Render), styles), nil
}

// NewComposerWithDependencies allows injecting custom dependencies (used for tests).
func NewComposerWithDependencies(cfg *config.Config, logger *slog.Logger, renderer videoComposer, styles map[string]config.Style) *Composer {
	c := &Composer{cfg: cfg, renderer: renderer, styles: styles}
	c.SetLogger(logger)
	return c
}

// SetLogger updates the composer's logging destination.
func (c *Composer) SetLogger(logger *slog.Logger) {
	c.logger = logging.NewComponentLogger(logger, "compose")
}

// Collaborator reports the external dependency gating this stage.
func (c *Composer) Collaborator() string {
	return render.CollaboratorName
}

func (c *Composer) Prepare(ctx context.Context, item *queue.Item) error {
	if item.Payload.Voiceover == nil || item.Payload.Assets == nil {
		return services.Wrap(services.ErrValidation, "compose", "validate inputs",
			"voiceover and assets must both be present", nil)
	}
	if len(item.Payload.Assets.ClipPaths) == 0 {
		return services.Wrap(services.ErrValidation, "compose", "validate inputs",
			"no footage clips available to compose", nil)
	}
	return nil
}

func (c *Composer) Execute(ctx context.Context, item *queue.Item) (queue.PayloadDelta, error) {
	logger := logging.WithContext(ctx, c.logger)
	channel, _ := c.cfg.ChannelByID(item.ChannelID)
	style := config.StyleFor(c.styles, channel.Style)

	assets := item.Payload.Assets
	voiceover := item.Payload.Voiceover
	outputPath := filepath.Join(item.WorkspaceRoot(c.cfg.Paths.WorkDir), "final.mp4")

	job := render.Job{
		ClipPaths:     assets.ClipPaths,
		VoiceoverPath: voiceover.AudioPath,
		SubtitlePath:  assets.SubtitlePath,
		MusicPath:     assets.MusicPath,
		MusicVolume:   style.MusicVolume,
		DurationSec:   voiceover.DurationSec,
		OutputPath:    outputPath,
	}
	size, err := c.renderer.Compose(ctx, job)
	if err != nil {
		return queue.PayloadDelta{}, err
	}

	logger.Info("video composed",
		logging.String("video_path", outputPath),
		logging.Float64("duration_sec", voiceover.DurationSec),
		logging.Int64("size_bytes", size),
	)
	return queue.PayloadDelta{Render: &queue.RenderResult{
		VideoPath:   outputPath,
		DurationSec: voiceover.DurationSec,
		SizeBytes:   size,
	}}, nil
}

func (c *Composer) HealthCheck(ctx context.Context) stage.Health {
	if err := c.renderer.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("compose", err.Error())
	}
	return stage.Healthy("compose")
}
