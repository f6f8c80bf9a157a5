// Package research selects the topic a work item will cover. Candidates
// come from trending subreddit posts and LLM brainstorming; the learning
// model's feature weights break the tie.
package research

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/scoring"
	"shortreel/internal/services"
	"shortreel/internal/services/llm"
	"shortreel/internal/services/reddit"
	"shortreel/internal/stage"
)

const maxSourcePosts = 20

// noveltyDiscount halves the score of a candidate whose title the channel
// has already covered, so repeats only win when nothing fresh competes.
const noveltyDiscount = 0.5

const usedTopicLookback = 50

type completionClient interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	HealthCheck(ctx context.Context) error
}

type postFetcher interface {
	TrendingPosts(ctx context.Context, subreddits []string, limit int) ([]reddit.Post, error)
}

type topicHistory interface {
	RecentTopicTitles(ctx context.Context, channelID string, limit int) ([]string, error)
}

// Researcher produces the topic section of the payload.
type Researcher struct {
	cfg     *config.Config
	model   *scoring.Model
	client  completionClient
	posts   postFetcher
	history topicHistory
	logger  *slog.Logger
}

// NewResearcher constructs the research handler.
func NewResearcher(cfg *config.Config, model *scoring.Model, store *queue.Store, logger *slog.Logger) *Researcher {
	var posts postFetcher
	if cfg.Research.RedditEnabled {
		fetcher, err := reddit.NewClient(cfg.Research)
		if err != nil {
			logging.NewComponentLogger(logger, "research").Warn(
				"reddit client unavailable, researching from the niche alone",
				logging.Error(err))
		} else {
			posts = fetcher
		}
	}
	return NewResearcherWithDependencies(cfg, model, logger, llm.NewClient(cfg.LLM), posts, store)
}

// NewResearcherWithDependencies allows injecting custom dependencies (used for tests).
func NewResearcherWithDependencies(cfg *config.Config, model *scoring.Model, logger *slog.Logger, client completionClient, posts postFetcher, history topicHistory) *Researcher {
	r := &Researcher{cfg: cfg, model: model, client: client, posts: posts, history: history}
	r.SetLogger(logger)
	return r
}

// SetLogger updates the researcher's logging destination.
func (r *Researcher) SetLogger(logger *slog.Logger) {
	r.logger = logging.NewComponentLogger(logger, "research")
}

// Collaborator reports the external service gating this stage.
func (r *Researcher) Collaborator() string {
	return llm.CollaboratorName
}

func (r *Researcher) Prepare(ctx context.Context, item *queue.Item) error {
	if _, ok := r.cfg.ChannelByID(item.ChannelID); !ok {
		return services.Wrap(services.ErrConfiguration, "research", "resolve channel",
			fmt.Sprintf("channel %q is not configured", item.ChannelID), nil)
	}
	return nil
}

func (r *Researcher) Execute(ctx context.Context, item *queue.Item) (queue.PayloadDelta, error) {
	logger := logging.WithContext(ctx, r.logger)
	channel, _ := r.cfg.ChannelByID(item.ChannelID)

	// One snapshot per pass: absorption running on the loop goroutine
	// must not reshuffle weights between candidates.
	weights := r.model.SnapshotScope(scoring.ScopeFor(r.cfg, channel.ID))

	if seed := item.Payload.Seed; seed != nil {
		topic := &queue.TopicResult{
			Title:      strings.TrimSpace(seed.Title),
			Angle:      strings.TrimSpace(seed.Angle),
			Keywords:   seed.Keywords,
			Source:     "seed",
			Score:      weights.Boost(scoring.KeywordFeatures(seed.Keywords)),
			Candidates: 1,
		}
		logger.Info("using operator-seeded topic", logging.String("title", topic.Title))
		return queue.PayloadDelta{Topic: topic}, nil
	}

	posts := r.fetchPosts(ctx, logger, channel)
	candidates, err := r.brainstorm(ctx, channel, posts)
	if err != nil {
		return queue.PayloadDelta{}, err
	}
	if len(candidates) == 0 {
		return queue.PayloadDelta{}, services.Wrap(services.ErrTransient, "research", "rank candidates",
			"model returned no usable topic candidates", nil)
	}

	topic := r.pick(ctx, logger, weights, channel.ID, candidates)
	topic.Candidates = len(candidates)
	logger.Info("topic selected",
		logging.String("title", topic.Title),
		logging.String("source", topic.Source),
		logging.Float64("score", topic.Score),
		logging.Int("candidates", topic.Candidates),
	)
	return queue.PayloadDelta{Topic: topic}, nil
}

// fetchPosts gathers trending material. Reddit being down degrades the
// candidate pool rather than failing the stage.
func (r *Researcher) fetchPosts(ctx context.Context, logger *slog.Logger, channel config.Channel) []reddit.Post {
	if r.posts == nil || len(channel.Subreddits) == 0 {
		return nil
	}
	posts, err := r.posts.TrendingPosts(ctx, channel.Subreddits, maxSourcePosts)
	if err != nil {
		logger.Warn("trending post fetch failed, continuing without source material",
			logging.Error(err))
		return nil
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].Score > posts[j].Score })
	if len(posts) > maxSourcePosts {
		posts = posts[:maxSourcePosts]
	}
	return posts
}

type candidate struct {
	Title    string   `json:"title"`
	Angle    string   `json:"angle"`
	Keywords []string `json:"keywords"`
	Source   string   `json:"source"`
}

func (r *Researcher) brainstorm(ctx context.Context, channel config.Channel, posts []reddit.Post) ([]candidate, error) {
	count := r.cfg.Research.TopicCount
	if count <= 0 {
		count = 5
	}
	content, err := r.client.CompleteJSON(ctx, researchSystemPrompt, researchUserPrompt(channel, posts, count))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Topics []candidate `json:"topics"`
	}
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrTransient, "research", "decode candidates",
			"model response was not valid candidate JSON", err)
	}
	candidates := parsed.Topics[:0]
	for _, c := range parsed.Topics {
		c.Title = strings.TrimSpace(c.Title)
		if c.Title == "" {
			continue
		}
		// The prompt already lists banned terms, but models drift;
		// dropping tainted candidates here is cheaper than letting the
		// script stage reject the whole item later.
		if hasBannedTerm(channel.BannedTerms, c) {
			continue
		}
		if strings.TrimSpace(c.Source) == "" {
			c.Source = "llm"
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// usedTitles collects the channel's recent topic titles. History being
// unavailable degrades the novelty check rather than failing the stage.
func (r *Researcher) usedTitles(ctx context.Context, logger *slog.Logger, channelID string) map[string]struct{} {
	if r.history == nil {
		return nil
	}
	titles, err := r.history.RecentTopicTitles(ctx, channelID, usedTopicLookback)
	if err != nil {
		logger.Warn("topic history unavailable, skipping novelty discount", logging.Error(err))
		return nil
	}
	used := make(map[string]struct{}, len(titles))
	for _, title := range titles {
		used[strings.ToLower(title)] = struct{}{}
	}
	return used
}

func hasBannedTerm(banned []string, c candidate) bool {
	if len(banned) == 0 {
		return false
	}
	haystack := strings.ToLower(c.Title + " " + c.Angle + " " + strings.Join(c.Keywords, " "))
	for _, term := range banned {
		if term != "" && strings.Contains(haystack, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// pick scores every candidate against one frozen set of feature weights,
// discounts topics the channel already covered, and returns the best one.
func (r *Researcher) pick(ctx context.Context, logger *slog.Logger, weights *scoring.ScopeSnapshot, channelID string, candidates []candidate) *queue.TopicResult {
	used := r.usedTitles(ctx, logger, channelID)

	score := func(c candidate) float64 {
		s := weights.Boost(scoring.KeywordFeatures(c.Keywords))
		if _, seen := used[strings.ToLower(c.Title)]; seen {
			s *= noveltyDiscount
		}
		return s
	}

	best := candidates[0]
	bestScore := score(best)
	for _, c := range candidates[1:] {
		if s := score(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return &queue.TopicResult{
		Title:    best.Title,
		Angle:    strings.TrimSpace(best.Angle),
		Keywords: best.Keywords,
		Source:   best.Source,
		Score:    bestScore,
	}
}

func (r *Researcher) HealthCheck(ctx context.Context) stage.Health {
	if err := r.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("research", fmt.Sprintf("llm unreachable: %v", err))
	}
	return stage.Healthy("research")
}
