package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateChannels(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateChannels() error {
	seen := make(map[string]struct{}, len(c.Channels))
	for _, channel := range c.Channels {
		if channel.ID == "" {
			return errors.New("channels: every channel requires an id")
		}
		key := strings.ToLower(channel.ID)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("channels: duplicate channel id %q", channel.ID)
		}
		seen[key] = struct{}{}
		if _, err := time.Parse("15:04", channel.PublishTime); err != nil {
			return fmt.Errorf("channels.%s: publish_time %q must be HH:MM", channel.ID, channel.PublishTime)
		}
		switch channel.ScoreScope {
		case "", "global", "channel":
		default:
			return fmt.Errorf("channels.%s: score_scope must be \"global\" or \"channel\"", channel.ID)
		}
	}
	return nil
}

func (c *Config) validateStages() error {
	tunings := map[string]StageTuning{
		"research":  c.Stages.Research,
		"script":    c.Stages.Script,
		"voiceover": c.Stages.Voiceover,
		"assets":    c.Stages.Assets,
		"compose":   c.Stages.Compose,
		"publish":   c.Stages.Publish,
		"analytics": c.Stages.Analytics,
	}
	for name, tuning := range tunings {
		if tuning.MaxAttempts < 1 {
			return fmt.Errorf("stages.%s: max_attempts must be at least 1", name)
		}
		if tuning.TimeoutSeconds < 1 {
			return fmt.Errorf("stages.%s: timeout_seconds must be at least 1", name)
		}
		if tuning.BackoffBaseSeconds < 0 || tuning.BackoffMaxSeconds < tuning.BackoffBaseSeconds {
			return fmt.Errorf("stages.%s: backoff window is inverted", name)
		}
	}
	return nil
}

func (c *Config) validateScoring() error {
	switch c.Scoring.Scope {
	case "global", "channel":
	default:
		return fmt.Errorf("scoring.scope must be \"global\" or \"channel\", got %q", c.Scoring.Scope)
	}
	if c.Scoring.DecayPerDay <= 0 || c.Scoring.DecayPerDay > 1 {
		return errors.New("scoring.decay_per_day must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}
