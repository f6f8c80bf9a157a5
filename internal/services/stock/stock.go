// Package stock retrieves short background clips from a stock footage
// provider. Providers register behind a small interface so the asset stage
// stays independent of any one vendor's API shape.
package stock

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/services"
	"shortreel/internal/services/llm"
)

// CollaboratorName keys the circuit breaker for the asset stage.
const CollaboratorName = "stock"

const defaultHTTPTimeout = 60 * time.Second

// Clip is one downloadable stock video.
type Clip struct {
	ID          string
	URL         string
	DurationSec float64
}

// Provider searches a stock footage catalog.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Clip, error)
}

// providers is the factory registry, keyed by the name used in
// configuration. Registration happens at init time; resolution happens
// once at startup.
var providers = map[string]func(config.Stock) Provider{}

// Register installs a provider factory under the given name, replacing any
// earlier registration.
func Register(name string, factory func(config.Stock) Provider) {
	providers[strings.ToLower(strings.TrimSpace(name))] = factory
}

func init() {
	Register("pexels", func(cfg config.Stock) Provider { return newPexels(cfg) })
}

// NewProvider resolves the configured provider from the registry. An empty
// name falls back to pexels.
func NewProvider(cfg config.Stock) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = "pexels"
	}
	factory, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown stock provider %q", cfg.Provider)
	}
	return factory(cfg), nil
}

// Client pairs a provider with a downloader.
type Client struct {
	provider     Provider
	clipsPerItem int
	httpClient   *http.Client
}

// NewClient constructs a stock footage client from configuration.
func NewClient(cfg config.Stock) (*Client, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	clips := cfg.ClipsPerItem
	if clips <= 0 {
		clips = 6
	}
	return &Client{
		provider:     provider,
		clipsPerItem: clips,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// FetchClips searches using the given keywords and downloads up to the
// configured number of clips into destDir. Keywords are tried in order
// until enough clips accumulate.
func (c *Client) FetchClips(ctx context.Context, keywords []string, destDir string) ([]string, error) {
	if len(keywords) == 0 {
		return nil, services.Wrap(services.ErrValidation, CollaboratorName, "search",
			"no keywords to search with", nil)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, CollaboratorName, "download",
			"create clip dir", err)
	}

	var paths []string
	seen := make(map[string]struct{})
	for _, keyword := range keywords {
		if len(paths) >= c.clipsPerItem {
			break
		}
		clips, err := c.provider.Search(ctx, keyword, c.clipsPerItem-len(paths))
		if err != nil {
			return nil, err
		}
		for _, clip := range clips {
			if len(paths) >= c.clipsPerItem {
				break
			}
			if _, dup := seen[clip.ID]; dup {
				continue
			}
			seen[clip.ID] = struct{}{}
			path, err := c.download(ctx, clip, destDir, len(paths))
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return nil, services.Wrap(services.ErrTransient, CollaboratorName, "search",
			"no stock clips found for any keyword", nil)
	}
	return paths, nil
}

func (c *Client) download(ctx context.Context, clip Clip, destDir string, index int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clip.URL, nil)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, CollaboratorName, "download",
			"build download request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrUnavailable, CollaboratorName, "download",
			"download clip "+clip.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", llm.ClassifyStatus(CollaboratorName, "download", resp.StatusCode, "")
	}

	path := filepath.Join(destDir, fmt.Sprintf("clip_%02d.mp4", index))
	out, err := os.Create(path)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, CollaboratorName, "download",
			"create clip file", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", services.Wrap(services.ErrTransient, CollaboratorName, "download",
			"stream clip body", err)
	}
	return path, nil
}

// HealthCheck verifies the provider is configured.
func (c *Client) HealthCheck(ctx context.Context) error {
	if checker, ok := c.provider.(interface{ HealthCheck(context.Context) error }); ok {
		return checker.HealthCheck(ctx)
	}
	return nil
}
