// Package tts wraps an HTTP text-to-speech API that returns rendered audio
// bytes for a script.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/services"
	"shortreel/internal/services/llm"
)

// CollaboratorName keys the circuit breaker for the voiceover stage.
const CollaboratorName = "tts"

const defaultHTTPTimeout = 120 * time.Second

// wordsPerSecond approximates finished speech pacing, used to estimate
// audio duration without decoding the file.
const wordsPerSecond = 2.5

// Client calls the speech synthesis endpoint.
type Client struct {
	apiKey       string
	baseURL      string
	defaultVoice string
	format       string
	httpClient   *http.Client
}

// NewClient constructs a TTS client from configuration.
func NewClient(cfg config.TTS) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	format := strings.TrimSpace(cfg.OutputFormat)
	if format == "" {
		format = "mp3"
	}
	return &Client{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		baseURL:      strings.TrimSpace(cfg.BaseURL),
		defaultVoice: strings.TrimSpace(cfg.DefaultVoice),
		format:       format,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Result describes one synthesized voiceover file.
type Result struct {
	Path        string
	DurationSec float64
	Voice       string
}

type synthesisRequest struct {
	Input  string `json:"input"`
	Voice  string `json:"voice"`
	Format string `json:"response_format"`
}

// Synthesize renders text to speech and writes the audio under destDir.
// An empty voice falls back to the configured default.
func (c *Client) Synthesize(ctx context.Context, text, voice, destDir string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, services.Wrap(services.ErrValidation, CollaboratorName, "synthesize",
			"no text to synthesize", nil)
	}
	if c.apiKey == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, CollaboratorName, "synthesize",
			"TTS api key is not configured", nil)
	}
	if c.baseURL == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, CollaboratorName, "synthesize",
			"TTS base url is not configured", nil)
	}
	if voice == "" {
		voice = c.defaultVoice
	}

	encoded, err := json.Marshal(synthesisRequest{Input: text, Voice: voice, Format: c.format})
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, CollaboratorName, "synthesize",
			"encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(encoded))
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, CollaboratorName, "synthesize",
			"build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Result{}, services.Wrap(services.ErrTimeout, CollaboratorName, "synthesize",
				"request timed out", err)
		}
		return Result{}, services.Wrap(services.ErrUnavailable, CollaboratorName, "synthesize",
			"request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, llm.ClassifyStatus(CollaboratorName, "synthesize", resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, CollaboratorName, "synthesize",
			"create output dir", err)
	}
	path := filepath.Join(destDir, "voiceover."+c.format)
	out, err := os.Create(path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, CollaboratorName, "synthesize",
			"create audio file", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, CollaboratorName, "synthesize",
			"stream audio body", err)
	}
	if written == 0 {
		return Result{}, services.Wrap(services.ErrTransient, CollaboratorName, "synthesize",
			"empty audio response", nil)
	}

	return Result{
		Path:        path,
		DurationSec: EstimateDuration(text),
		Voice:       voice,
	}, nil
}

// EstimateDuration approximates spoken length of a script in seconds.
func EstimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return float64(words) / wordsPerSecond
}

// HealthCheck verifies the synthesis endpoint is configured. The endpoint
// has no cheap ping, so only configuration is checked.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.apiKey == "" || c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, CollaboratorName, "health",
			"TTS is not configured", nil)
	}
	return nil
}
