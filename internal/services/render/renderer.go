// Package render composes the final vertical video with ffmpeg: stock
// clips concatenated to cover the voiceover, the narration overlaid, burnt
// subtitles, and optional background music.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/services"
)

// CollaboratorName keys the circuit breaker for the compose stage.
const CollaboratorName = "render"

var commandContext = exec.CommandContext

// Renderer drives ffmpeg.
type Renderer struct {
	ffmpegBin string
	width     int
	height    int
	fps       int
	timeout   time.Duration
}

// New constructs a renderer from configuration.
func New(cfg config.Render) *Renderer {
	timeout := 15 * time.Minute
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	bin := strings.TrimSpace(cfg.FFmpegBin)
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Renderer{
		ffmpegBin: bin,
		width:     cfg.Width,
		height:    cfg.Height,
		fps:       cfg.FPS,
		timeout:   timeout,
	}
}

// Job describes one composition.
type Job struct {
	ClipPaths     []string
	VoiceoverPath string
	SubtitlePath  string
	MusicPath     string
	MusicVolume   float64
	DurationSec   float64
	OutputPath    string
}

// Compose renders the job to OutputPath and returns the final file size.
func (r *Renderer) Compose(ctx context.Context, job Job) (int64, error) {
	if len(job.ClipPaths) == 0 {
		return 0, services.Wrap(services.ErrValidation, CollaboratorName, "compose",
			"no clips to compose", nil)
	}
	if job.VoiceoverPath == "" {
		return 0, services.Wrap(services.ErrValidation, CollaboratorName, "compose",
			"no voiceover track", nil)
	}
	if job.DurationSec <= 0 {
		return 0, services.Wrap(services.ErrValidation, CollaboratorName, "compose",
			"target duration unknown", nil)
	}
	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return 0, services.Wrap(services.ErrConfiguration, CollaboratorName, "compose",
			"create output dir", err)
	}

	runCtx := ctx
	cancel := func() {}
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	defer cancel()

	args := r.buildArgs(job)
	cmd := commandContext(runCtx, r.ffmpegBin, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, classifyRunError(runCtx, err, output)
	}

	info, err := os.Stat(job.OutputPath)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, CollaboratorName, "compose",
			"output file missing after render", err)
	}
	if info.Size() == 0 {
		return 0, services.Wrap(services.ErrTransient, CollaboratorName, "compose",
			"output file is empty", nil)
	}
	return info.Size(), nil
}

// buildArgs assembles the filter graph: each clip scaled and cropped to the
// target frame, concatenated, trimmed to the voiceover length, narration
// mixed over optional ducked music, subtitles burnt in last.
func (r *Renderer) buildArgs(job Job) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, clip := range job.ClipPaths {
		args = append(args, "-i", clip)
	}
	args = append(args, "-i", job.VoiceoverPath)
	voIndex := len(job.ClipPaths)
	musicIndex := -1
	if job.MusicPath != "" {
		args = append(args, "-i", job.MusicPath)
		musicIndex = voIndex + 1
	}

	var filter strings.Builder
	for i := range job.ClipPaths {
		fmt.Fprintf(&filter,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d,setsar=1[v%d];",
			i, r.width, r.height, r.width, r.height, r.fps, i)
	}
	for i := range job.ClipPaths {
		fmt.Fprintf(&filter, "[v%d]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=0[vcat];", len(job.ClipPaths))
	fmt.Fprintf(&filter, "[vcat]trim=duration=%.2f,setpts=PTS-STARTPTS[vtrim];", job.DurationSec)

	video := "[vtrim]"
	if job.SubtitlePath != "" {
		fmt.Fprintf(&filter, "%ssubtitles=%s[vsub];", video, escapeFilterPath(job.SubtitlePath))
		video = "[vsub]"
	}
	// Drop the trailing semicolon by naming the last video chain output.
	filterStr := strings.TrimSuffix(filter.String(), ";")

	audioMap := fmt.Sprintf("%d:a", voIndex)
	if musicIndex >= 0 {
		volume := job.MusicVolume
		if volume <= 0 {
			volume = 0.12
		}
		filterStr += fmt.Sprintf(
			";[%d:a]volume=%.2f,atrim=duration=%.2f[music];[%d:a][music]amix=inputs=2:duration=first[aout]",
			musicIndex, volume, job.DurationSec, voIndex)
		audioMap = "[aout]"
	}

	args = append(args,
		"-filter_complex", filterStr,
		"-map", video,
		"-map", audioMap,
		"-c:v", "libx264",
		"-preset", "medium",
		"-c:a", "aac",
		"-shortest",
		job.OutputPath,
	)
	return args
}

func classifyRunError(ctx context.Context, err error, output []byte) error {
	detail := strings.TrimSpace(string(output))
	if len(detail) > 400 {
		detail = detail[len(detail)-400:]
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, CollaboratorName, "compose",
			"render timed out", err)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return services.Wrap(services.ErrConfiguration, CollaboratorName, "compose",
			"ffmpeg binary not found", err)
	}
	return services.Wrap(services.ErrTransient, CollaboratorName, "compose",
		"ffmpeg failed: "+detail, err)
}

// escapeFilterPath quotes a path for use inside an ffmpeg filter graph.
func escapeFilterPath(path string) string {
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, ":", `\:`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	return "'" + escaped + "'"
}

// HealthCheck verifies the ffmpeg binary is on PATH.
func (r *Renderer) HealthCheck(ctx context.Context) error {
	if _, err := exec.LookPath(r.ffmpegBin); err != nil {
		return services.Wrap(services.ErrConfiguration, CollaboratorName, "health",
			fmt.Sprintf("binary %q not found", r.ffmpegBin), err)
	}
	return nil
}
