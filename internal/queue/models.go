package queue

import (
	"fmt"
	"strings"
	"time"
)

// Stage identifies a step in the production pipeline. Stages are strictly
// ordered; an item advances one stage at a time and never moves backwards.
type Stage string

const (
	StageResearch  Stage = "research"
	StageScript    Stage = "script"
	StageVoiceover Stage = "voiceover"
	StageAssets    Stage = "assets"
	StageCompose   Stage = "compose"
	StagePublish   Stage = "publish"
	StageAnalytics Stage = "analytics"
	StageDone      Stage = "done"
)

// stageOrder lists the executable stages in pipeline order. StageDone is a
// terminal marker and never executes.
var stageOrder = []Stage{
	StageResearch,
	StageScript,
	StageVoiceover,
	StageAssets,
	StageCompose,
	StagePublish,
	StageAnalytics,
}

// Stages returns the executable stages in pipeline order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage validates a stage name from user input.
func ParseStage(value string) (Stage, error) {
	candidate := Stage(strings.ToLower(strings.TrimSpace(value)))
	if candidate == StageDone {
		return StageDone, nil
	}
	for _, stage := range stageOrder {
		if stage == candidate {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", value)
}

// Next returns the stage that follows s, or StageDone after the final stage.
func (s Stage) Next() Stage {
	for i, stage := range stageOrder {
		if stage == s {
			if i+1 < len(stageOrder) {
				return stageOrder[i+1]
			}
			return StageDone
		}
	}
	return StageDone
}

// Index returns the position of s in the pipeline, or -1 for StageDone and
// unknown values.
func (s Stage) Index() int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

func (s Stage) String() string { return string(s) }

// Status describes the lifecycle state of an item within its current stage.
type Status string

const (
	// StatusPending marks an item waiting for its current stage to run.
	StatusPending Status = "pending"
	// StatusRunning marks an item currently claimed by a worker.
	StatusRunning Status = "running"
	// StatusFailed marks a retryable failure awaiting its backoff deadline.
	StatusFailed Status = "failed"
	// StatusCancelled marks a terminally abandoned item.
	StatusCancelled Status = "cancelled"
	// StatusSucceeded marks an item whose final stage completed.
	StatusSucceeded Status = "succeeded"
)

// ParseStatus validates a status name from user input.
func ParseStatus(value string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	switch candidate {
	case StatusPending, StatusRunning, StatusFailed, StatusCancelled, StatusSucceeded:
		return candidate, nil
	}
	return "", fmt.Errorf("unknown status %q", value)
}

func (s Status) String() string { return string(s) }

// Terminal reports whether the status ends an item's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusSucceeded
}

// Item is a single scheduled video production run. One item corresponds to
// exactly one (channel, slot) pair; the UNIQUE constraint on that pair makes
// creation idempotent.
type Item struct {
	ID                  int64
	UUID                string
	ChannelID           string
	ScheduledSlot       time.Time
	Stage               Stage
	Status              Status
	Attempts            map[Stage]int
	NextRetryAt         *time.Time
	Payload             Payload
	DryRun              bool
	LastError           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	AnalyticsAbsorbedAt *time.Time
}

// AttemptsFor returns the attempt count recorded for the given stage.
func (i *Item) AttemptsFor(stage Stage) int {
	if i.Attempts == nil {
		return 0
	}
	return i.Attempts[stage]
}

// InFlight reports whether the item still occupies pipeline capacity:
// anything not yet terminal counts against a channel's concurrency limit.
func (i *Item) InFlight() bool {
	return !i.Status.Terminal()
}

// Ready reports whether the item is eligible for dispatch at the given time.
// Pending items are always ready; failed items become ready once their
// retry deadline passes.
func (i *Item) Ready(now time.Time) bool {
	switch i.Status {
	case StatusPending:
		return true
	case StatusFailed:
		return i.NextRetryAt == nil || !now.Before(*i.NextRetryAt)
	default:
		return false
	}
}
