package stock

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/services"
	"shortreel/internal/services/llm"
)

// pexels implements Provider against the Pexels video search API.
type pexels struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newPexels(cfg config.Stock) *pexels {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.pexels.com/videos"
	}
	return &pexels{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *pexels) Name() string { return "pexels" }

type pexelsSearchResponse struct {
	Videos []struct {
		ID         int     `json:"id"`
		Duration   float64 `json:"duration"`
		VideoFiles []struct {
			Link   string `json:"link"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"video_files"`
	} `json:"videos"`
}

// Search queries portrait-orientation videos for the keyword.
func (p *pexels) Search(ctx context.Context, query string, limit int) ([]Clip, error) {
	if p.apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, CollaboratorName, "search",
			"stock api key is not configured", nil)
	}
	if limit <= 0 {
		limit = 1
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("orientation", "portrait")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, CollaboratorName, "search",
			"build search request", err)
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, CollaboratorName, "search",
			"search request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, CollaboratorName, "search",
			"read search response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, llm.ClassifyStatus(CollaboratorName, "search", resp.StatusCode, string(body))
	}

	var parsed pexelsSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, services.Wrap(services.ErrTransient, CollaboratorName, "search",
			"decode search response", err)
	}

	clips := make([]Clip, 0, len(parsed.Videos))
	for _, video := range parsed.Videos {
		link := bestPortraitFile(video.VideoFiles)
		if link == "" {
			continue
		}
		clips = append(clips, Clip{
			ID:          strconv.Itoa(video.ID),
			URL:         link,
			DurationSec: video.Duration,
		})
	}
	return clips, nil
}

// bestPortraitFile picks the highest-resolution vertical rendition.
func bestPortraitFile(files []struct {
	Link   string `json:"link"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}) string {
	best := ""
	bestHeight := 0
	for _, file := range files {
		if file.Height <= file.Width {
			continue
		}
		if file.Height > bestHeight {
			bestHeight = file.Height
			best = file.Link
		}
	}
	return best
}

// HealthCheck verifies the API key is present.
func (p *pexels) HealthCheck(ctx context.Context) error {
	if p.apiKey == "" {
		return services.Wrap(services.ErrConfiguration, CollaboratorName, "health",
			"stock api key is not configured", nil)
	}
	return nil
}
