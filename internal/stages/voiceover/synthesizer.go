// Package voiceover renders the script narration to an audio file in the
// item's workspace.
package voiceover

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/services"
	"shortreel/internal/services/tts"
	"shortreel/internal/stage"
)

type speechClient interface {
	Synthesize(ctx context.Context, text, voice, destDir string) (tts.Result, error)
	HealthCheck(ctx context.Context) error
}

// Synthesizer produces the voiceover section of the payload.
type Synthesizer struct {
	cfg    *config.Config
	client speechClient
	logger *slog.Logger
}

// NewSynthesizer constructs the voiceover handler.
func NewSynthesizer(cfg *config.Config, logger *slog.Logger) *Synthesizer {
	return NewSynthesizerWithDependencies(cfg, logger, tts.NewClient(cfg.TTS))
}

// NewSynthesizerWithDependencies allows injecting custom dependencies (used for tests).
func NewSynthesizerWithDependencies(cfg *config.Config, logger *slog.Logger, client speechClient) *Synthesizer {
	s := &Synthesizer{cfg: cfg, client: client}
	s.SetLogger(logger)
	return s
}

// SetLogger updates the synthesizer's logging destination.
func (s *Synthesizer) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, "voiceover")
}

// Collaborator reports the external service gating this stage.
func (s *Synthesizer) Collaborator() string {
	return tts.CollaboratorName
}

func (s *Synthesizer) Prepare(ctx context.Context, item *queue.Item) error {
	if item.Payload.Script == nil {
		return services.Wrap(services.ErrValidation, "voiceover", "validate inputs",
			"no script present; script generation must complete first", nil)
	}
	return nil
}

func (s *Synthesizer) Execute(ctx context.Context, item *queue.Item) (queue.PayloadDelta, error) {
	logger := logging.WithContext(ctx, s.logger)
	channel, _ := s.cfg.ChannelByID(item.ChannelID)
	script := item.Payload.Script

	text := NarrationText(script)
	destDir := item.WorkspaceRoot(s.cfg.Paths.WorkDir)
	result, err := s.client.Synthesize(ctx, text, channel.Voice, destDir)
	if err != nil {
		return queue.PayloadDelta{}, err
	}

	logger.Info("voiceover synthesized",
		logging.String("audio_path", result.Path),
		logging.String("voice", result.Voice),
		logging.Float64("duration_sec", result.DurationSec),
	)
	return queue.PayloadDelta{Voiceover: &queue.VoiceoverResult{
		AudioPath:   result.Path,
		DurationSec: result.DurationSec,
		Voice:       result.Voice,
		Provider:    "tts",
	}}, nil
}

// NarrationText joins the spoken parts of a script in delivery order.
func NarrationText(script *queue.ScriptResult) string {
	parts := make([]string, 0, 2)
	if hook := strings.TrimSpace(script.Hook); hook != "" {
		parts = append(parts, hook)
	}
	if body := strings.TrimSpace(script.Body); body != "" {
		parts = append(parts, body)
	}
	return strings.Join(parts, "\n\n")
}

func (s *Synthesizer) HealthCheck(ctx context.Context) stage.Health {
	if err := s.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("voiceover", fmt.Sprintf("tts unreachable: %v", err))
	}
	return stage.Healthy("voiceover")
}
