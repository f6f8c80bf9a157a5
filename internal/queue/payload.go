package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload accumulates the artifacts produced by each stage. Sections are
// append-only: once a stage writes its section, no later stage may replace
// it. Re-runs of a stage after a retryable failure are the one exception,
// handled by clearing the section before dispatch.
type Payload struct {
	Seed      *TopicSeed       `json:"seed,omitempty"`
	Topic     *TopicResult     `json:"topic,omitempty"`
	Script    *ScriptResult    `json:"script,omitempty"`
	Voiceover *VoiceoverResult `json:"voiceover,omitempty"`
	Assets    *AssetsResult    `json:"assets,omitempty"`
	Render    *RenderResult    `json:"render,omitempty"`
	Publish   *PublishResult   `json:"publish,omitempty"`
	Analytics *AnalyticsResult `json:"analytics,omitempty"`
}

// TopicSeed is an operator-provided topic that short-circuits research
// candidate generation.
type TopicSeed struct {
	Title    string   `json:"title"`
	Angle    string   `json:"angle,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// TopicResult is the research stage output: the chosen topic plus the
// scored alternatives that lost.
type TopicResult struct {
	Title      string   `json:"title"`
	Angle      string   `json:"angle,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Source     string   `json:"source,omitempty"`
	Score      float64  `json:"score"`
	Candidates int      `json:"candidates"`
}

// ScriptResult is the script stage output.
type ScriptResult struct {
	Title       string   `json:"title"`
	Hook        string   `json:"hook"`
	Body        string   `json:"body"`
	Description string   `json:"description,omitempty"`
	Hashtags    []string `json:"hashtags,omitempty"`
	HookPattern string   `json:"hook_pattern,omitempty"`
	Structure   string   `json:"structure,omitempty"`
	WordCount   int      `json:"word_count"`
}

// VoiceoverResult is the voiceover stage output.
type VoiceoverResult struct {
	AudioPath   string  `json:"audio_path"`
	DurationSec float64 `json:"duration_sec"`
	Voice       string  `json:"voice,omitempty"`
	Provider    string  `json:"provider,omitempty"`
}

// AssetsResult is the asset gathering stage output.
type AssetsResult struct {
	ClipPaths    []string `json:"clip_paths"`
	MusicPath    string   `json:"music_path,omitempty"`
	SubtitlePath string   `json:"subtitle_path,omitempty"`
}

// RenderResult is the compose stage output.
type RenderResult struct {
	VideoPath   string  `json:"video_path"`
	DurationSec float64 `json:"duration_sec"`
	SizeBytes   int64   `json:"size_bytes,omitempty"`
}

// PublishResult is the publish stage output. Skipped records a dry run
// that never reached the platform.
type PublishResult struct {
	Platform    string    `json:"platform,omitempty"`
	PublishID   string    `json:"publish_id,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Skipped     bool      `json:"skipped,omitempty"`
}

// AnalyticsResult is the analytics collection output. Skipped records a
// dry run with no real metrics.
type AnalyticsResult struct {
	Views          int64     `json:"views"`
	Likes          int64     `json:"likes"`
	Comments       int64     `json:"comments"`
	AvgViewSec     float64   `json:"avg_view_sec"`
	VideoDuration  float64   `json:"video_duration_sec"`
	EngagementRate float64   `json:"engagement_rate"`
	Retention      float64   `json:"retention"`
	SampledAt      time.Time `json:"sampled_at"`
	Skipped        bool      `json:"skipped,omitempty"`
}

// PayloadDelta carries the section a stage wants appended to an item's
// payload. At most the sections belonging to the executing stage should be
// set; Apply rejects attempts to overwrite a section another stage wrote.
type PayloadDelta struct {
	Topic     *TopicResult
	Script    *ScriptResult
	Voiceover *VoiceoverResult
	Assets    *AssetsResult
	Render    *RenderResult
	Publish   *PublishResult
	Analytics *AnalyticsResult
}

// Empty reports whether the delta carries nothing.
func (d PayloadDelta) Empty() bool {
	return d.Topic == nil && d.Script == nil && d.Voiceover == nil &&
		d.Assets == nil && d.Render == nil && d.Publish == nil && d.Analytics == nil
}

// Apply merges the delta into the payload, enforcing append-only semantics.
func (p *Payload) Apply(delta PayloadDelta) error {
	if delta.Topic != nil {
		if p.Topic != nil {
			return fmt.Errorf("payload section topic already set")
		}
		p.Topic = delta.Topic
	}
	if delta.Script != nil {
		if p.Script != nil {
			return fmt.Errorf("payload section script already set")
		}
		p.Script = delta.Script
	}
	if delta.Voiceover != nil {
		if p.Voiceover != nil {
			return fmt.Errorf("payload section voiceover already set")
		}
		p.Voiceover = delta.Voiceover
	}
	if delta.Assets != nil {
		if p.Assets != nil {
			return fmt.Errorf("payload section assets already set")
		}
		p.Assets = delta.Assets
	}
	if delta.Render != nil {
		if p.Render != nil {
			return fmt.Errorf("payload section render already set")
		}
		p.Render = delta.Render
	}
	if delta.Publish != nil {
		if p.Publish != nil {
			return fmt.Errorf("payload section publish already set")
		}
		p.Publish = delta.Publish
	}
	if delta.Analytics != nil {
		if p.Analytics != nil {
			return fmt.Errorf("payload section analytics already set")
		}
		p.Analytics = delta.Analytics
	}
	return nil
}

// ClearSection drops the payload section owned by the given stage so a
// retry can write a fresh result.
func (p *Payload) ClearSection(stage Stage) {
	switch stage {
	case StageResearch:
		p.Topic = nil
	case StageScript:
		p.Script = nil
	case StageVoiceover:
		p.Voiceover = nil
	case StageAssets:
		p.Assets = nil
	case StageCompose:
		p.Render = nil
	case StageAnalytics:
		p.Analytics = nil
	}
	// Publish is deliberately never cleared: a recorded publish id is the
	// idempotency guard against double uploads.
}

func marshalPayload(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

func unmarshalPayload(raw string) (Payload, error) {
	var p Payload
	if raw == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}

func marshalAttempts(attempts map[Stage]int) (string, error) {
	if attempts == nil {
		attempts = map[Stage]int{}
	}
	data, err := json.Marshal(attempts)
	if err != nil {
		return "", fmt.Errorf("marshal attempts: %w", err)
	}
	return string(data), nil
}

func unmarshalAttempts(raw string) (map[Stage]int, error) {
	attempts := map[Stage]int{}
	if raw == "" {
		return attempts, nil
	}
	if err := json.Unmarshal([]byte(raw), &attempts); err != nil {
		return nil, fmt.Errorf("unmarshal attempts: %w", err)
	}
	return attempts, nil
}
