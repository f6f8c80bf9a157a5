package testsupport

import (
	"path/filepath"
	"testing"

	"shortreel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test
// and a single test channel. It defaults common fields and applies any
// provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StylesFile = filepath.Join(base, "styles.yaml")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Scoring.SnapshotFile = filepath.Join(base, "data", "score_model.json")
	cfgVal.LLM.APIKey = "test"
	cfgVal.TTS.APIKey = "test"
	cfgVal.Stock.APIKey = "test"
	cfgVal.Channels = []config.Channel{
		{
			ID:            "testchan",
			Niche:         "testing",
			Subreddits:    []string{"golang"},
			PublishTime:   "09:00",
			ItemsPerDay:   1,
			MaxConcurrent: 1,
			Style:         "clean-bold",
			Voice:         "test-voice",
		},
	}

	builder := &configBuilder{t: t, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithChannels replaces the default test channel list.
func WithChannels(channels ...config.Channel) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channels = channels
	}
}

// WithScoreScope sets the global score model scope.
func WithScoreScope(scope string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scoring.Scope = scope
	}
}

// WithMaxDailyRuns overrides the global daily item cap.
func WithMaxDailyRuns(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxDailyRuns = limit
	}
}

// Channel returns a channel config with sensible test defaults applied.
func Channel(id string, opts ...func(*config.Channel)) config.Channel {
	channel := config.Channel{
		ID:            id,
		Niche:         "testing",
		PublishTime:   "09:00",
		ItemsPerDay:   1,
		MaxConcurrent: 1,
		Style:         "clean-bold",
		Voice:         "test-voice",
	}
	for _, opt := range opts {
		opt(&channel)
	}
	return channel
}
