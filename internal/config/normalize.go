package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeChannels()
	c.normalizeCollaborators()
	c.normalizeScoring()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StylesFile) != "" {
		if c.Paths.StylesFile, err = expandPath(c.Paths.StylesFile); err != nil {
			return fmt.Errorf("paths.styles_file: %w", err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeChannels() {
	for i := range c.Channels {
		channel := &c.Channels[i]
		channel.ID = strings.TrimSpace(channel.ID)
		channel.Niche = strings.TrimSpace(channel.Niche)
		if strings.TrimSpace(channel.PublishTime) == "" {
			channel.PublishTime = defaultPublishTime
		}
		if channel.ItemsPerDay <= 0 {
			channel.ItemsPerDay = defaultItemsPerDay
		}
		if channel.MaxConcurrent <= 0 {
			channel.MaxConcurrent = defaultMaxConcurrent
		}
		if strings.TrimSpace(channel.Style) == "" {
			channel.Style = defaultStyle
		}
		channel.ScoreScope = strings.ToLower(strings.TrimSpace(channel.ScoreScope))
		terms := make([]string, 0, len(channel.BannedTerms))
		for _, term := range channel.BannedTerms {
			if term = strings.TrimSpace(term); term != "" {
				terms = append(terms, term)
			}
		}
		channel.BannedTerms = terms
		if channel.OAuthTokenFile != "" {
			if expanded, err := expandPath(channel.OAuthTokenFile); err == nil {
				channel.OAuthTokenFile = expanded
			}
		}
		if channel.MusicFile != "" {
			if expanded, err := expandPath(channel.MusicFile); err == nil {
				channel.MusicFile = expanded
			}
		}
	}
}

func (c *Config) normalizeCollaborators() {
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if envKey := os.Getenv("SHORTREEL_LLM_API_KEY"); envKey != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = envKey
	}
	if envKey := os.Getenv("SHORTREEL_TTS_API_KEY"); envKey != "" && c.TTS.APIKey == "" {
		c.TTS.APIKey = envKey
	}
	if envKey := os.Getenv("SHORTREEL_STOCK_API_KEY"); envKey != "" && c.Stock.APIKey == "" {
		c.Stock.APIKey = envKey
	}
	if c.Stock.ClipsPerItem <= 0 {
		c.Stock.ClipsPerItem = defaultStockClips
	}
	if strings.TrimSpace(c.Stock.Provider) == "" {
		c.Stock.Provider = defaultStockProvider
	}
	if strings.TrimSpace(c.Render.FFmpegBin) == "" {
		c.Render.FFmpegBin = defaultFFmpegBin
	}
	if c.Render.Width <= 0 {
		c.Render.Width = defaultRenderWidth
	}
	if c.Render.Height <= 0 {
		c.Render.Height = defaultRenderHeight
	}
	if c.Render.FPS <= 0 {
		c.Render.FPS = defaultRenderFPS
	}
}

func (c *Config) normalizeScoring() {
	c.Scoring.Scope = strings.ToLower(strings.TrimSpace(c.Scoring.Scope))
	if c.Scoring.Scope == "" {
		c.Scoring.Scope = defaultScoreScope
	}
	if c.Scoring.DecayPerDay <= 0 || c.Scoring.DecayPerDay > 1 {
		c.Scoring.DecayPerDay = defaultScoreDecayPerDay
	}
	if strings.TrimSpace(c.Scoring.SnapshotFile) == "" {
		c.Scoring.SnapshotFile = filepath.Join(c.Paths.DataDir, "score_model.json")
	} else if expanded, err := expandPath(c.Scoring.SnapshotFile); err == nil {
		c.Scoring.SnapshotFile = expanded
	}
	if c.Scoring.SaveEverySecs <= 0 {
		c.Scoring.SaveEverySecs = defaultScoreSaveSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.TickIntervalSeconds <= 0 {
		c.Workflow.TickIntervalSeconds = defaultTickSeconds
	}
	if c.Workflow.WorkerPoolSize <= 0 {
		c.Workflow.WorkerPoolSize = defaultWorkerPool
	}
	if c.Workflow.MaxDailyRuns <= 0 {
		c.Workflow.MaxDailyRuns = defaultMaxDailyRuns
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = defaultBreakerThreshold
	}
	if c.Breaker.CooldownSeconds <= 0 {
		c.Breaker.CooldownSeconds = defaultBreakerCooldown
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return filepath.Abs(path)
}
