// Package scheduler decides when a channel earns a new work item. It
// enforces the per-channel cadence, the per-channel concurrency ceiling,
// and the global daily run cap, and it computes the deterministic slot
// timestamps that make item creation idempotent.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/queue"
)

// Denial reasons reported in admission decisions.
const (
	ReasonAdmitted      = "admitted"
	ReasonGlobalCap     = "global daily cap reached"
	ReasonCadenceMet    = "channel cadence satisfied"
	ReasonAtConcurrency = "channel at max concurrency"
	ReasonNotDue        = "no slot due yet"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Admit  bool
	Slot   time.Time
	Reason string
}

// Scheduler owns admission policy. It reads counters from the store but
// never writes; creation stays with the caller so a denied decision has no
// side effects.
type Scheduler struct {
	cfg   *config.Config
	store *queue.Store
	now   func() time.Time
}

// New builds a scheduler over the given store.
func New(cfg *config.Config, store *queue.Store) *Scheduler {
	return &Scheduler{cfg: cfg, store: store, now: time.Now}
}

// SetClock overrides the scheduler's clock for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Slots returns the channel's publish slots for the day containing t, in
// local time. The first slot sits at the publish_time anchor and the rest
// divide the day evenly, so slot timestamps are stable across restarts.
func Slots(channel config.Channel, t time.Time) ([]time.Time, error) {
	hour, minute, err := config.PublishAnchor(channel)
	if err != nil {
		return nil, err
	}
	perDay := channel.ItemsPerDay
	if perDay <= 0 {
		perDay = 1
	}

	anchor := time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
	interval := 24 * time.Hour / time.Duration(perDay)
	slots := make([]time.Time, perDay)
	for i := range slots {
		slots[i] = anchor.Add(time.Duration(i) * interval)
	}
	return slots, nil
}

// cadenceWindowStart returns the most recent occurrence of the channel's
// publish anchor. The cadence window rolls with the anchor rather than
// midnight, so an item created late in one window never eats the next
// window's budget.
func cadenceWindowStart(channel config.Channel, now time.Time) (time.Time, error) {
	hour, minute, err := config.PublishAnchor(channel)
	if err != nil {
		return time.Time{}, err
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if start.After(now) {
		start = start.AddDate(0, 0, -1)
	}
	return start, nil
}

// Decide runs the admission checks for one channel. Checks are ordered
// cheapest first and the first failure wins; an admitted decision carries
// the slot the new item should be created for.
func (s *Scheduler) Decide(ctx context.Context, channel config.Channel) (Decision, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if limit := s.cfg.Workflow.MaxDailyRuns; limit > 0 {
		created, err := s.store.CountCreatedSince(ctx, "", dayStart)
		if err != nil {
			return Decision{}, fmt.Errorf("count daily runs: %w", err)
		}
		if created >= limit {
			return Decision{Reason: ReasonGlobalCap}, nil
		}
	}

	cadence := channel.ItemsPerDay
	if cadence <= 0 {
		cadence = 1
	}
	windowStart, err := cadenceWindowStart(channel, now)
	if err != nil {
		return Decision{}, err
	}
	created, err := s.store.CountCreatedSince(ctx, channel.ID, windowStart)
	if err != nil {
		return Decision{}, fmt.Errorf("count channel runs: %w", err)
	}
	if created >= cadence {
		return Decision{Reason: ReasonCadenceMet}, nil
	}

	limit := channel.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	inFlight, err := s.store.InFlightCount(ctx, channel.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("count in-flight items: %w", err)
	}
	if inFlight >= limit {
		return Decision{Reason: ReasonAtConcurrency}, nil
	}

	slots, err := Slots(channel, now)
	if err != nil {
		return Decision{}, err
	}
	for _, slot := range slots {
		if slot.After(now) {
			break
		}
		existing, err := s.store.GetBySlot(ctx, channel.ID, slot)
		if err != nil {
			return Decision{}, err
		}
		if existing == nil {
			return Decision{Admit: true, Slot: slot, Reason: ReasonAdmitted}, nil
		}
	}
	return Decision{Reason: ReasonNotDue}, nil
}
