package scoring

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/queue"
)

// neutralWeight is returned for features the model has never seen, or has
// seen fewer times than the configured minimum sample count.
const neutralWeight = 0.5

// GlobalScope is the bucket shared by all channels when per-channel
// isolation is off.
const GlobalScope = "global"

// entry holds the decayed aggregate for one feature. WeightedSum and
// WeightSum are both referenced to Ref: each absorbed result contributes
// score*decay^age and decay^age respectively, where age is measured from
// the result's publish time to Ref. The ratio is the decayed average and
// is invariant under re-referencing, which is what makes absorption
// commutative.
type entry struct {
	WeightedSum float64   `json:"weighted_sum"`
	WeightSum   float64   `json:"weight_sum"`
	Count       int       `json:"count"`
	Ref         time.Time `json:"ref"`
}

// Result is one published video's contribution to the model.
type Result struct {
	Features    []string
	Score       float64
	PublishedAt time.Time
}

// Model is the in-memory feature weight model. It is safe for concurrent
// use; the workflow absorbs results while the daemon API reads snapshots.
type Model struct {
	mu          sync.RWMutex
	decayPerDay float64
	minSamples  int
	scopes      map[string]map[string]*entry
	dirty       bool
}

// NewModel builds an empty model tuned from configuration.
func NewModel(cfg *config.Config) *Model {
	decay := cfg.Scoring.DecayPerDay
	if decay <= 0 || decay > 1 {
		decay = 1
	}
	return &Model{
		decayPerDay: decay,
		minSamples:  cfg.Scoring.MinSampleCount,
		scopes:      make(map[string]map[string]*entry),
	}
}

// ScopeFor resolves the bucket key for a channel given the configured
// scope policy.
func ScopeFor(cfg *config.Config, channelID string) string {
	channel, ok := cfg.ChannelByID(channelID)
	if !ok {
		if strings.EqualFold(cfg.Scoring.Scope, "channel") {
			return channelID
		}
		return GlobalScope
	}
	if strings.EqualFold(cfg.ScoreScope(channel), "channel") {
		return channelID
	}
	return GlobalScope
}

// Absorb folds one result into the given scope. Results with no features
// or a zero publish time are ignored.
func (m *Model) Absorb(scope string, result Result) {
	if len(result.Features) == 0 || result.PublishedAt.IsZero() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.scopes[scope]
	if bucket == nil {
		bucket = make(map[string]*entry)
		m.scopes[scope] = bucket
	}

	for _, feature := range result.Features {
		e := bucket[feature]
		if e == nil {
			e = &entry{Ref: result.PublishedAt}
			bucket[feature] = e
		}
		e.absorb(result.Score, result.PublishedAt, m.decayPerDay)
	}
	m.dirty = true
}

func (e *entry) absorb(score float64, publishedAt time.Time, decayPerDay float64) {
	// Advance the reference point before adding so every contribution is
	// expressed at the same reference. Rescaling both sums by the same
	// factor leaves existing ratios untouched.
	if publishedAt.After(e.Ref) {
		factor := decayFactor(decayPerDay, e.Ref, publishedAt)
		e.WeightedSum *= factor
		e.WeightSum *= factor
		e.Ref = publishedAt
	}
	weight := decayFactor(decayPerDay, publishedAt, e.Ref)
	e.WeightedSum += score * weight
	e.WeightSum += weight
	e.Count++
}

func decayFactor(decayPerDay float64, from, to time.Time) float64 {
	if !to.After(from) {
		return 1
	}
	days := to.Sub(from).Hours() / 24
	return math.Pow(decayPerDay, days)
}

// Weight returns the decayed average score for a feature, or the neutral
// weight when the feature is unknown or under-sampled.
func (m *Model) Weight(scope, feature string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.weightLocked(scope, feature)
}

func (m *Model) weightLocked(scope, feature string) float64 {
	bucket := m.scopes[scope]
	if bucket == nil {
		return neutralWeight
	}
	e := bucket[feature]
	if e == nil || e.Count < m.minSamples || e.WeightSum <= 0 {
		return neutralWeight
	}
	return e.WeightedSum / e.WeightSum
}

// Boost averages the weights of the given features. Candidate ranking
// multiplies base research scores by this value, so an unknown feature set
// yields the neutral 0.5 and leaves relative ordering to the base score.
func (m *Model) Boost(scope string, features []string) float64 {
	if len(features) == 0 {
		return neutralWeight
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum float64
	for _, feature := range features {
		sum += m.weightLocked(scope, feature)
	}
	return sum / float64(len(features))
}

// ScopeSnapshot is a frozen read of one scope's effective weights, taken
// under a single lock. A ranking pass scores every candidate against the
// same snapshot, so results absorbed concurrently cannot reorder
// candidates mid-pass.
type ScopeSnapshot struct {
	weights map[string]float64
}

// SnapshotScope captures the scope's current weights for a consistent
// ranking pass.
func (m *Model) SnapshotScope(scope string) *ScopeSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	weights := make(map[string]float64, len(m.scopes[scope]))
	for feature := range m.scopes[scope] {
		weights[feature] = m.weightLocked(scope, feature)
	}
	return &ScopeSnapshot{weights: weights}
}

// Boost averages the frozen weights of the given features, mirroring
// Model.Boost.
func (s *ScopeSnapshot) Boost(features []string) float64 {
	if len(features) == 0 {
		return neutralWeight
	}
	var sum float64
	for _, feature := range features {
		weight, ok := s.weights[feature]
		if !ok {
			weight = neutralWeight
		}
		sum += weight
	}
	return sum / float64(len(features))
}

// FeatureWeight is one row of a model snapshot, ready for display.
type FeatureWeight struct {
	Scope   string  `json:"scope"`
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`
	Samples int     `json:"samples"`
}

// Report returns every tracked feature sorted by scope then descending
// weight. Under-sampled features are included with their raw weight so
// operators can see the model warming up.
func (m *Model) Report() []FeatureWeight {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []FeatureWeight
	for scope, bucket := range m.scopes {
		for feature, e := range bucket {
			weight := neutralWeight
			if e.WeightSum > 0 {
				weight = e.WeightedSum / e.WeightSum
			}
			rows = append(rows, FeatureWeight{
				Scope:   scope,
				Feature: feature,
				Weight:  weight,
				Samples: e.Count,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Scope != rows[j].Scope {
			return rows[i].Scope < rows[j].Scope
		}
		if rows[i].Weight != rows[j].Weight {
			return rows[i].Weight > rows[j].Weight
		}
		return rows[i].Feature < rows[j].Feature
	})
	return rows
}

// AbsorbItem extracts features and score from a completed item and folds
// them into the model. A dry run contributes a neutral sample: its
// features gain confidence without the empty metrics dragging their
// weights down. Returns false when the item carries nothing to learn
// from.
func (m *Model) AbsorbItem(cfg *config.Config, item *queue.Item) bool {
	if item.Payload.Analytics == nil || item.Payload.Publish == nil {
		return false
	}
	features := Features(item.Payload)
	if len(features) == 0 {
		return false
	}
	score := PerformanceScore(*item.Payload.Analytics)
	if item.Payload.Analytics.Skipped || item.Payload.Publish.Skipped {
		score = neutralWeight
	}
	m.Absorb(ScopeFor(cfg, item.ChannelID), Result{
		Features:    features,
		Score:       score,
		PublishedAt: item.Payload.Publish.PublishedAt,
	})
	return true
}
