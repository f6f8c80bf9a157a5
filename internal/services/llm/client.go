package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/services"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
	retryAttempts      = 3
	retryDelay         = 2 * time.Second
)

// CollaboratorName keys the circuit breaker for stages that depend on the
// LLM.
const CollaboratorName = "llm"

// Client wraps the chat completion API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	referer    string
	title      string
	httpClient *http.Client
	sleep      func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how retry waits are performed, useful for tests.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithModel overrides the configured model.
func WithModel(model string) Option {
	return func(c *Client) {
		if strings.TrimSpace(model) != "" {
			c.model = strings.TrimSpace(model)
		}
	}
}

// NewClient constructs an LLM client from configuration.
func NewClient(cfg config.LLM, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		model:      strings.TrimSpace(cfg.Model),
		referer:    strings.TrimSpace(cfg.Referer),
		title:      strings.TrimSpace(cfg.Title),
		httpClient: &http.Client{Timeout: timeout},
		sleep:      sleepWithContext,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// CompleteJSON issues a JSON-only chat completion and returns the raw JSON
// content produced by the model.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" || userPrompt == "" {
		return "", services.Wrap(services.ErrValidation, CollaboratorName, "complete",
			"system and user prompts are required", nil)
	}
	if c.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, CollaboratorName, "complete",
			"LLM api key is not configured", nil)
	}

	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}

	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		content, err := c.sendOnce(ctx, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !services.IsRetryable(err) || services.IsCancellation(err) || attempt == retryAttempts {
			return "", err
		}
		if err := c.sleep(ctx, retryDelay*time.Duration(attempt)); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// HealthCheck issues a fast ping to verify the API key and model respond.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.CompleteJSON(ctx,
		"You must respond with JSON only.",
		`Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeJSON(content, &parsed); err != nil {
		return services.Wrap(services.ErrUnavailable, CollaboratorName, "health",
			"unparseable health response", err)
	}
	if !parsed.OK {
		return services.Wrap(services.ErrUnavailable, CollaboratorName, "health",
			"unexpected health response", nil)
	}
	return nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) sendOnce(ctx context.Context, payload chatCompletionRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, CollaboratorName, "complete",
			"encode request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, CollaboratorName, "complete",
			"build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport("complete", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, CollaboratorName, "complete",
			"read response body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", ClassifyStatus(CollaboratorName, "complete", resp.StatusCode, string(body))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", services.Wrap(services.ErrTransient, CollaboratorName, "complete",
			"decode response", err)
	}
	if completion.Error != nil {
		return "", services.Wrap(services.ErrUnavailable, CollaboratorName, "complete",
			"api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	for _, choice := range completion.Choices {
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			return "", services.Wrap(services.ErrSafety, CollaboratorName, "complete",
				"model refused: "+refusal, nil)
		}
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", services.Wrap(services.ErrTransient, CollaboratorName, "complete",
		"empty completion content", nil)
}

// ClassifyStatus maps an HTTP status onto the services error taxonomy.
// Shared by the other HTTP collaborator clients.
func ClassifyStatus(collaborator, operation string, status int, body string) error {
	snippet := strings.TrimSpace(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	message := fmt.Sprintf("http %d: %s", status, snippet)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, collaborator, operation, message, nil)
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, collaborator, operation, message, nil)
	case status == http.StatusTooManyRequests:
		return services.Wrap(services.ErrRateLimited, collaborator, operation, message, nil)
	case status == http.StatusRequestTimeout || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrUnavailable, collaborator, operation, message, nil)
	default:
		return services.Wrap(services.ErrValidation, collaborator, operation, message, nil)
	}
}

func classifyTransport(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, CollaboratorName, operation,
			"request timed out", err)
	}
	return services.Wrap(services.ErrUnavailable, CollaboratorName, operation,
		"request failed", err)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
