package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	WorkDir    string `toml:"work_dir"`
	LogDir     string `toml:"log_dir"`
	StylesFile string `toml:"styles_file"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Channel is one configured publishing channel. The channel list is immutable
// for the lifetime of an orchestrator run; edits require a restart.
type Channel struct {
	ID             string   `toml:"id"`
	Niche          string   `toml:"niche"`
	Subreddits     []string `toml:"subreddits"`
	BannedTerms    []string `toml:"banned_terms"`
	PublishTime    string   `toml:"publish_time"` // local HH:MM cadence anchor
	ItemsPerDay    int      `toml:"items_per_day"`
	MaxConcurrent  int      `toml:"max_concurrent"`
	Style          string   `toml:"style"`
	Voice          string   `toml:"voice"`
	MusicFile      string   `toml:"music_file"`  // optional background track mixed under the voiceover
	ScoreScope     string   `toml:"score_scope"` // "" inherits scoring.scope; "channel" isolates
	OAuthTokenFile string   `toml:"oauth_token_file"`
}

// LLM contains shared LLM connection settings used by research and script
// generation.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTS contains configuration for the voice synthesis collaborator.
type TTS struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	DefaultVoice   string `toml:"default_voice"`
	OutputFormat   string `toml:"output_format"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Stock contains configuration for the stock footage collaborator.
type Stock struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	ClipsPerItem   int    `toml:"clips_per_item"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Render contains configuration for the video composition collaborator.
type Render struct {
	FFmpegBin      string `toml:"ffmpeg_bin"`
	Width          int    `toml:"width"`
	Height         int    `toml:"height"`
	FPS            int    `toml:"fps"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Research contains topic gathering settings.
type Research struct {
	TopicCount     int    `toml:"topic_count"`
	RedditEnabled  bool   `toml:"reddit_enabled"`
	RedditUserName string `toml:"reddit_username"`
	LookbackHours  int    `toml:"lookback_hours"`
}

// Analytics contains metric collection settings.
type Analytics struct {
	CollectAfterHours int `toml:"collect_after_hours"`
}

// Scoring contains learning feedback loop settings.
type Scoring struct {
	Scope          string  `toml:"scope"` // "global" or "channel"
	DecayPerDay    float64 `toml:"decay_per_day"`
	SnapshotFile   string  `toml:"snapshot_file"`
	SaveEverySecs  int     `toml:"save_every_seconds"`
	MinSampleCount int     `toml:"min_sample_count"`
}

// StageTuning controls the retry and timeout envelope of one pipeline stage.
type StageTuning struct {
	MaxAttempts        int `toml:"max_attempts"`
	TimeoutSeconds     int `toml:"timeout_seconds"`
	BackoffBaseSeconds int `toml:"backoff_base_seconds"`
	BackoffMaxSeconds  int `toml:"backoff_max_seconds"`
}

// Stages groups per-stage tuning.
type Stages struct {
	Research  StageTuning `toml:"research"`
	Script    StageTuning `toml:"script"`
	Voiceover StageTuning `toml:"voiceover"`
	Assets    StageTuning `toml:"assets"`
	Compose   StageTuning `toml:"compose"`
	Publish   StageTuning `toml:"publish"`
	Analytics StageTuning `toml:"analytics"`
}

// Breaker contains circuit breaker settings applied per collaborator.
type Breaker struct {
	FailureThreshold int `toml:"failure_threshold"`
	CooldownSeconds  int `toml:"cooldown_seconds"`
}

// Workflow contains orchestrator loop timing and capacity settings.
type Workflow struct {
	TickIntervalSeconds int `toml:"tick_interval_seconds"`
	WorkerPoolSize      int `toml:"worker_pool_size"`
	MaxDailyRuns        int `toml:"max_daily_runs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for shortreel.
//
// Configuration sections by subsystem:
//   - Paths: data/work/log directories, styles file, API bind address
//   - Channels: the per-channel publishing configuration
//   - LLM / TTS / Stock / Render: external collaborator connections
//   - Research / Analytics / Scoring: topic gathering and learning loop
//   - Stages: per-stage retry budgets and timeout ceilings
//   - Breaker: collaborator circuit breaker thresholds
//   - Workflow: tick interval, worker pool, global daily cap
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Channels  []Channel `toml:"channels"`
	LLM       LLM       `toml:"llm"`
	TTS       TTS       `toml:"tts"`
	Stock     Stock     `toml:"stock"`
	Render    Render    `toml:"render"`
	Research  Research  `toml:"research"`
	Analytics Analytics `toml:"analytics"`
	Scoring   Scoring   `toml:"scoring"`
	Stages    Stages    `toml:"stages"`
	Breaker   Breaker   `toml:"breaker"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/shortreel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("shortreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.LogDir}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ChannelByID returns the channel with the given identifier.
func (c *Config) ChannelByID(id string) (Channel, bool) {
	for _, channel := range c.Channels {
		if strings.EqualFold(channel.ID, id) {
			return channel, true
		}
	}
	return Channel{}, false
}

// ScoreScope resolves the effective score model scope for a channel.
func (c *Config) ScoreScope(channel Channel) string {
	if scope := strings.TrimSpace(channel.ScoreScope); scope != "" {
		return scope
	}
	return c.Scoring.Scope
}

// TuningFor returns the stage tuning for the given stage name, falling back to
// research defaults for unknown names.
func (c *Config) TuningFor(stage string) StageTuning {
	switch strings.ToLower(strings.TrimSpace(stage)) {
	case "research":
		return c.Stages.Research
	case "script":
		return c.Stages.Script
	case "voiceover":
		return c.Stages.Voiceover
	case "assets":
		return c.Stages.Assets
	case "compose":
		return c.Stages.Compose
	case "publish":
		return c.Stages.Publish
	case "analytics":
		return c.Stages.Analytics
	default:
		return c.Stages.Research
	}
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// PublishAnchor parses a channel's publish_time into hour and minute.
func PublishAnchor(channel Channel) (hour, minute int, err error) {
	value := strings.TrimSpace(channel.PublishTime)
	if value == "" {
		value = defaultPublishTime
	}
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("channel %s: parse publish_time %q: %w", channel.ID, channel.PublishTime, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}
