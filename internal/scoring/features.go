package scoring

import (
	"math"
	"strings"

	"shortreel/internal/queue"
)

// Feature key prefixes. Keywords come from the research topic, hook
// patterns and structure templates from the generated script.
const (
	prefixKeyword  = "kw:"
	prefixHook     = "hook:"
	prefixTemplate = "tmpl:"
)

// Features extracts the scoreable feature keys from an item's payload.
// Missing sections simply contribute no features.
func Features(payload queue.Payload) []string {
	var features []string
	if payload.Topic != nil {
		for _, keyword := range payload.Topic.Keywords {
			normalized := normalizeKeyword(keyword)
			if normalized == "" {
				continue
			}
			features = append(features, prefixKeyword+normalized)
		}
	}
	if payload.Script != nil {
		if pattern := normalizeKeyword(payload.Script.HookPattern); pattern != "" {
			features = append(features, prefixHook+pattern)
		}
		if structure := normalizeKeyword(payload.Script.Structure); structure != "" {
			features = append(features, prefixTemplate+structure)
		}
	}
	return dedupe(features)
}

// KeywordFeatures maps raw candidate keywords to feature keys, used when
// ranking topic candidates before any script exists.
func KeywordFeatures(keywords []string) []string {
	var features []string
	for _, keyword := range keywords {
		normalized := normalizeKeyword(keyword)
		if normalized == "" {
			continue
		}
		features = append(features, prefixKeyword+normalized)
	}
	return dedupe(features)
}

func normalizeKeyword(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// PerformanceScore collapses an analytics sample into a single 0..1 score.
// Views saturate at 10k, engagement rate at 5 percent; retention already
// lands in 0..1.
func PerformanceScore(result queue.AnalyticsResult) float64 {
	views := math.Min(1, float64(result.Views)/10000.0)
	engagement := math.Min(1, result.EngagementRate/5.0)
	retention := clamp01(result.Retention)
	return 0.5*views + 0.3*engagement + 0.2*retention
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
