// Package reddit pulls trending posts from a channel's subreddits as raw
// material for topic research.
package reddit

import (
	"context"
	"errors"
	"strings"
	"time"

	graw "github.com/vartanbeno/go-reddit/v2/reddit"

	"shortreel/internal/config"
	"shortreel/internal/services"
)

// CollaboratorName keys the circuit breaker for research.
const CollaboratorName = "reddit"

// Post is one candidate source post.
type Post struct {
	Title     string
	Score     int
	Comments  int
	Subreddit string
	CreatedAt time.Time
}

// Client wraps the read-only Reddit API.
type Client struct {
	inner    *graw.Client
	lookback time.Duration
}

// NewClient builds a read-only client. No credentials are needed; an
// optional username personalizes the user agent per the API guidelines.
func NewClient(cfg config.Research) (*Client, error) {
	var opts []graw.Opt
	agent := "shortreel/1.0"
	if name := strings.TrimSpace(cfg.RedditUserName); name != "" {
		agent += " (by /u/" + name + ")"
	}
	opts = append(opts, graw.WithUserAgent(agent))

	inner, err := graw.NewReadonlyClient(opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, CollaboratorName, "init",
			"build reddit client", err)
	}
	lookback := time.Duration(cfg.LookbackHours) * time.Hour
	if lookback <= 0 {
		lookback = 72 * time.Hour
	}
	return &Client{inner: inner, lookback: lookback}, nil
}

// TrendingPosts returns recent hot posts across the given subreddits,
// filtered to the lookback window. Individual subreddit failures abort the
// whole fetch so the stage's retry budget governs recovery.
func (c *Client) TrendingPosts(ctx context.Context, subreddits []string, limit int) ([]Post, error) {
	if len(subreddits) == 0 {
		return nil, services.Wrap(services.ErrValidation, CollaboratorName, "fetch",
			"no subreddits configured", nil)
	}
	if limit <= 0 {
		limit = 25
	}

	cutoff := time.Now().Add(-c.lookback)
	var posts []Post
	for _, name := range subreddits {
		name = strings.TrimPrefix(strings.TrimSpace(name), "r/")
		if name == "" {
			continue
		}
		fetched, _, err := c.inner.Subreddit.HotPosts(ctx, name, &graw.ListOptions{Limit: limit})
		if err != nil {
			return nil, classifyError("fetch r/"+name, err)
		}
		for _, post := range fetched {
			if post == nil || post.Created == nil || post.Created.Time.Before(cutoff) {
				continue
			}
			posts = append(posts, Post{
				Title:     strings.TrimSpace(post.Title),
				Score:     post.Score,
				Comments:  post.NumberOfComments,
				Subreddit: name,
				CreatedAt: post.Created.Time,
			})
		}
	}
	return posts, nil
}

func classifyError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rateErr *graw.RateLimitError
	if errors.As(err, &rateErr) {
		return services.Wrap(services.ErrRateLimited, CollaboratorName, operation,
			"reddit rate limited", err)
	}
	return services.Wrap(services.ErrUnavailable, CollaboratorName, operation,
		"reddit request failed", err)
}
