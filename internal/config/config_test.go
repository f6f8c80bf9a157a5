package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"shortreel/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[[channels]]
id = "alpha"
niche = "space trivia"
`)
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be detected")
	}
	channel, ok := cfg.ChannelByID("alpha")
	if !ok {
		t.Fatal("channel alpha missing")
	}
	if channel.PublishTime != "09:00" {
		t.Fatalf("expected default publish_time, got %q", channel.PublishTime)
	}
	if channel.ItemsPerDay != 1 || channel.MaxConcurrent != 1 {
		t.Fatalf("expected cadence defaults, got %+v", channel)
	}
	if cfg.Workflow.MaxDailyRuns != 10 {
		t.Fatalf("expected default daily cap, got %d", cfg.Workflow.MaxDailyRuns)
	}
	if cfg.Stages.Publish.MaxAttempts != 4 {
		t.Fatalf("expected publish retry default, got %d", cfg.Stages.Publish.MaxAttempts)
	}
}

func TestLoadRejectsDuplicateChannels(t *testing.T) {
	path := writeConfig(t, `
[[channels]]
id = "alpha"

[[channels]]
id = "Alpha"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected duplicate channel error")
	}
}

func TestLoadRejectsBadPublishTime(t *testing.T) {
	path := writeConfig(t, `
[[channels]]
id = "alpha"
publish_time = "9 o'clock"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected publish_time validation error")
	}
}

func TestScoreScopeResolution(t *testing.T) {
	path := writeConfig(t, `
[scoring]
scope = "global"

[[channels]]
id = "alpha"

[[channels]]
id = "beta"
score_scope = "channel"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	alpha, _ := cfg.ChannelByID("alpha")
	if scope := cfg.ScoreScope(alpha); scope != "global" {
		t.Fatalf("alpha scope = %q, want global", scope)
	}
	beta, _ := cfg.ChannelByID("beta")
	if scope := cfg.ScoreScope(beta); scope != "channel" {
		t.Fatalf("beta scope = %q, want channel", scope)
	}
}

func TestLoadStylesMissingFileIsEmpty(t *testing.T) {
	styles, err := config.LoadStyles(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadStyles: %v", err)
	}
	if len(styles) != 0 {
		t.Fatalf("expected empty style set, got %d", len(styles))
	}
	style := config.StyleFor(styles, "clean-bold")
	if style.FontSize == 0 {
		t.Fatal("expected fallback style defaults")
	}
}

func TestLoadStylesParsesPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "styles.yaml")
	body := `styles:
  - name: clean-bold
    font: Inter-Bold
    font_size: 80
    caption_color: "#FFFFFF"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write styles: %v", err)
	}
	styles, err := config.LoadStyles(path)
	if err != nil {
		t.Fatalf("LoadStyles: %v", err)
	}
	style := config.StyleFor(styles, "Clean-Bold")
	if style.FontSize != 80 {
		t.Fatalf("expected parsed preset, got %+v", style)
	}
}
