package stageexec

import (
	"sort"
	"sync"
	"time"

	"shortreel/internal/config"
)

// BreakerSet tracks consecutive retryable failures per external
// collaborator. Once a collaborator accumulates the configured threshold,
// dispatch of stages depending on it pauses for the cooldown window. Only
// retryable failures count: fatal errors say nothing about collaborator
// health.
type BreakerSet struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	states    map[string]*breakerState
}

type breakerState struct {
	consecutive int
	openUntil   time.Time
}

// NewBreakerSet builds a breaker set from configuration. A threshold of
// zero disables breaking entirely.
func NewBreakerSet(cfg config.Breaker) *BreakerSet {
	return &BreakerSet{
		threshold: cfg.FailureThreshold,
		cooldown:  time.Duration(cfg.CooldownSeconds) * time.Second,
		now:       time.Now,
		states:    make(map[string]*breakerState),
	}
}

// Allow reports whether stages depending on the collaborator may dispatch,
// along with the time the breaker reopens when it is tripped. The empty
// collaborator is never broken.
func (b *BreakerSet) Allow(collaborator string) (bool, time.Time) {
	if b == nil || collaborator == "" || b.threshold <= 0 {
		return true, time.Time{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.states[collaborator]
	if state == nil {
		return true, time.Time{}
	}
	if state.openUntil.IsZero() || !b.now().Before(state.openUntil) {
		return true, time.Time{}
	}
	return false, state.openUntil
}

// Failure records a retryable failure against the collaborator and trips
// the breaker when the threshold is reached.
func (b *BreakerSet) Failure(collaborator string) {
	if b == nil || collaborator == "" || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.states[collaborator]
	if state == nil {
		state = &breakerState{}
		b.states[collaborator] = state
	}
	state.consecutive++
	if state.consecutive >= b.threshold {
		state.openUntil = b.now().Add(b.cooldown)
		state.consecutive = 0
	}
}

// Success resets the collaborator's failure streak and closes its breaker.
func (b *BreakerSet) Success(collaborator string) {
	if b == nil || collaborator == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if state := b.states[collaborator]; state != nil {
		state.consecutive = 0
		state.openUntil = time.Time{}
	}
}

// BreakerStatus describes one collaborator's breaker state.
type BreakerStatus struct {
	Collaborator string    `json:"collaborator"`
	Open         bool      `json:"open"`
	ReopensAt    time.Time `json:"reopens_at,omitzero"`
	Consecutive  int       `json:"consecutive_failures"`
}

// Snapshot reports the current state of every tracked collaborator,
// sorted by name.
func (b *BreakerSet) Snapshot() []BreakerStatus {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	statuses := make([]BreakerStatus, 0, len(b.states))
	for name, state := range b.states {
		status := BreakerStatus{Collaborator: name, Consecutive: state.consecutive}
		if !state.openUntil.IsZero() && now.Before(state.openUntil) {
			status.Open = true
			status.ReopensAt = state.openUntil
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Collaborator < statuses[j].Collaborator
	})
	return statuses
}

// SetClock overrides the breaker's clock for tests.
func (b *BreakerSet) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
