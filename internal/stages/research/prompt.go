package research

import (
	"fmt"
	"strings"

	"shortreel/internal/config"
	"shortreel/internal/services/reddit"
)

const researchSystemPrompt = `You are a short-form video producer hunting for topics that perform well as vertical videos under 60 seconds. Respond with JSON only, shaped as {"topics": [{"title": "...", "angle": "...", "keywords": ["..."], "source": "..."}]}. Titles must be specific and concrete, never clickbait that the video cannot pay off. Keywords are 3-6 lowercase search terms describing the visuals and subject.`

func researchUserPrompt(channel config.Channel, posts []reddit.Post, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Channel niche: %s\n", channel.Niche)
	fmt.Fprintf(&b, "Propose %d distinct video topics for this niche.\n", count)
	if len(posts) > 0 {
		b.WriteString("\nCurrently trending posts in related communities. Use them as inspiration where they fit the niche, and set source to \"reddit:<subreddit>\" for topics drawn from one:\n")
		for _, post := range posts {
			fmt.Fprintf(&b, "- [r/%s, score %d] %s\n", post.Subreddit, post.Score, post.Title)
		}
	}
	if len(channel.BannedTerms) > 0 {
		fmt.Fprintf(&b, "\nNever propose topics involving: %s\n", strings.Join(channel.BannedTerms, ", "))
	}
	return b.String()
}
