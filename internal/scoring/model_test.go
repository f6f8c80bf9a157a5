package scoring_test

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/queue"
	"shortreel/internal/scoring"
	"shortreel/internal/testsupport"
)

func TestPerformanceScore(t *testing.T) {
	cases := []struct {
		name   string
		result queue.AnalyticsResult
		want   float64
	}{
		{
			name:   "all saturated",
			result: queue.AnalyticsResult{Views: 50000, EngagementRate: 9, Retention: 1},
			want:   1.0,
		},
		{
			name:   "zero sample",
			result: queue.AnalyticsResult{},
			want:   0.0,
		},
		{
			name:   "mid range",
			result: queue.AnalyticsResult{Views: 5000, EngagementRate: 2.5, Retention: 0.5},
			want:   0.5*0.5 + 0.3*0.5 + 0.2*0.5,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scoring.PerformanceScore(tc.result)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("PerformanceScore = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestAbsorbIsCommutative(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	results := []scoring.Result{
		{Features: []string{"kw:golang"}, Score: 0.9, PublishedAt: base},
		{Features: []string{"kw:golang"}, Score: 0.2, PublishedAt: base.AddDate(0, 0, 10)},
		{Features: []string{"kw:golang"}, Score: 0.6, PublishedAt: base.AddDate(0, 0, 3)},
	}

	forward := scoring.NewModel(cfg)
	for _, result := range results {
		forward.Absorb(scoring.GlobalScope, result)
	}
	backward := scoring.NewModel(cfg)
	for i := len(results) - 1; i >= 0; i-- {
		backward.Absorb(scoring.GlobalScope, results[i])
	}

	a := forward.Weight(scoring.GlobalScope, "kw:golang")
	b := backward.Weight(scoring.GlobalScope, "kw:golang")
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("absorption order changed the weight: %f vs %f", a, b)
	}
}

func TestRecentResultsOutweighOld(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	model := scoring.NewModel(cfg)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	// An old strong result and a recent weak one: decay should pull the
	// weight toward the recent sample.
	model.Absorb(scoring.GlobalScope, scoring.Result{
		Features: []string{"hook:question"}, Score: 1.0, PublishedAt: base,
	})
	model.Absorb(scoring.GlobalScope, scoring.Result{
		Features: []string{"hook:question"}, Score: 0.0, PublishedAt: base.AddDate(0, 0, 60),
	})

	weight := model.Weight(scoring.GlobalScope, "hook:question")
	if weight >= 0.5 {
		t.Fatalf("expected recent weak result to dominate, got %f", weight)
	}
}

func TestUnknownFeatureIsNeutral(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	model := scoring.NewModel(cfg)

	if got := model.Weight(scoring.GlobalScope, "kw:never-seen"); got != 0.5 {
		t.Fatalf("unknown feature weight = %f, want 0.5", got)
	}
	if got := model.Boost(scoring.GlobalScope, nil); got != 0.5 {
		t.Fatalf("empty feature boost = %f, want 0.5", got)
	}
}

func TestMinSampleCountGatesWeights(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Scoring.MinSampleCount = 2
	model := scoring.NewModel(cfg)

	model.Absorb(scoring.GlobalScope, scoring.Result{
		Features: []string{"kw:rust"}, Score: 0.9, PublishedAt: time.Now().UTC(),
	})
	if got := model.Weight(scoring.GlobalScope, "kw:rust"); got != 0.5 {
		t.Fatalf("under-sampled feature should stay neutral, got %f", got)
	}

	model.Absorb(scoring.GlobalScope, scoring.Result{
		Features: []string{"kw:rust"}, Score: 0.9, PublishedAt: time.Now().UTC(),
	})
	if got := model.Weight(scoring.GlobalScope, "kw:rust"); math.Abs(got-0.9) > 1e-9 {
		t.Fatalf("sampled feature weight = %f, want 0.9", got)
	}
}

func TestScopeResolution(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithChannels(
		testsupport.Channel("shared"),
		testsupport.Channel("isolated", func(c *config.Channel) { c.ScoreScope = "channel" }),
	))

	if got := scoring.ScopeFor(cfg, "shared"); got != scoring.GlobalScope {
		t.Fatalf("shared channel scope = %q, want global", got)
	}
	if got := scoring.ScopeFor(cfg, "isolated"); got != "isolated" {
		t.Fatalf("isolated channel scope = %q, want channel id", got)
	}
}

func TestFeatureExtraction(t *testing.T) {
	payload := queue.Payload{
		Topic: &queue.TopicResult{Keywords: []string{"Golang", "golang", " concurrency "}},
		Script: &queue.ScriptResult{
			HookPattern: "Question",
			Structure:   "hook-body-cta",
		},
	}
	features := scoring.Features(payload)

	want := map[string]bool{
		"kw:golang":          true,
		"kw:concurrency":     true,
		"hook:question":      true,
		"tmpl:hook-body-cta": true,
	}
	if len(features) != len(want) {
		t.Fatalf("expected %d features, got %v", len(want), features)
	}
	for _, feature := range features {
		if !want[feature] {
			t.Fatalf("unexpected feature %q", feature)
		}
	}
}

func TestSnapshotUnaffectedByConcurrentAbsorb(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	model := scoring.NewModel(cfg)
	model.Absorb(scoring.GlobalScope, scoring.Result{
		Features: []string{"kw:golang"}, Score: 0.9, PublishedAt: time.Now().UTC(),
	})

	snapshot := model.SnapshotScope(scoring.GlobalScope)
	before := snapshot.Boost([]string{"kw:golang"})

	// A result landing mid-pass moves the live model but not the frozen
	// view a ranking pass holds.
	model.Absorb(scoring.GlobalScope, scoring.Result{
		Features: []string{"kw:golang"}, Score: 0.1, PublishedAt: time.Now().UTC(),
	})

	if got := snapshot.Boost([]string{"kw:golang"}); got != before {
		t.Fatalf("snapshot weight moved from %v to %v", before, got)
	}
	if live := model.Boost(scoring.GlobalScope, []string{"kw:golang"}); live == before {
		t.Fatal("live model should have moved off the snapshot value")
	}
	if got := snapshot.Boost([]string{"kw:unknown"}); got != 0.5 {
		t.Fatalf("unknown feature should stay neutral, got %v", got)
	}
}

func TestAbsorbItemRecordsNeutralDryRunSample(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	model := scoring.NewModel(cfg)

	item := &queue.Item{
		ChannelID: "testchan",
		Payload: queue.Payload{
			Topic:     &queue.TopicResult{Keywords: []string{"golang"}},
			Script:    &queue.ScriptResult{HookPattern: "question"},
			Publish:   &queue.PublishResult{PublishID: "dry-run-abc", Skipped: true, PublishedAt: time.Now().UTC()},
			Analytics: &queue.AnalyticsResult{Skipped: true},
		},
	}
	if !model.AbsorbItem(cfg, item) {
		t.Fatal("dry-run item should still feed the model")
	}

	// The features gained a sample but the empty metrics did not move
	// their weights off neutral.
	var sampled bool
	for _, row := range model.Report() {
		if row.Feature == "kw:golang" {
			sampled = true
			if row.Samples != 1 {
				t.Fatalf("expected one sample, got %d", row.Samples)
			}
			if row.Weight != 0.5 {
				t.Fatalf("dry-run sample must stay neutral, got weight %v", row.Weight)
			}
		}
	}
	if !sampled {
		t.Fatal("kw:golang never entered the model")
	}

	item.Payload.Publish = &queue.PublishResult{PublishID: "vid-1", PublishedAt: time.Now().UTC()}
	item.Payload.Analytics = &queue.AnalyticsResult{Views: 8000, EngagementRate: 3, Retention: 0.6}
	if !model.AbsorbItem(cfg, item) {
		t.Fatal("real result should feed the model")
	}
	if got := model.Weight(scoring.GlobalScope, "kw:golang"); got == 0.5 {
		t.Fatal("expected kw:golang weight to move off neutral")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(t.TempDir(), "scores.json")

	model := scoring.NewModel(cfg)
	model.Absorb(scoring.GlobalScope, scoring.Result{
		Features: []string{"kw:golang", "hook:question"}, Score: 0.8, PublishedAt: time.Now().UTC(),
	})
	if err := model.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := scoring.NewModel(cfg)
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := model.Weight(scoring.GlobalScope, "kw:golang")
	got := restored.Weight(scoring.GlobalScope, "kw:golang")
	if math.Abs(want-got) > 1e-9 {
		t.Fatalf("round-tripped weight = %f, want %f", got, want)
	}

	rows := restored.Report()
	if len(rows) != 2 {
		t.Fatalf("expected 2 report rows, got %d", len(rows))
	}
}

func TestLoadMissingSnapshotIsColdStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	model := scoring.NewModel(cfg)
	if err := model.Load(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("missing snapshot should not error: %v", err)
	}
	if got := model.Weight(scoring.GlobalScope, "kw:anything"); got != 0.5 {
		t.Fatalf("cold model weight = %f, want 0.5", got)
	}
}
