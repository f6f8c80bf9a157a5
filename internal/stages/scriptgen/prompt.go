package scriptgen

import (
	"fmt"
	"strings"

	"shortreel/internal/config"
	"shortreel/internal/queue"
)

const scriptSystemPrompt = `You write narration scripts for vertical short-form videos of 45-60 seconds, roughly 130-160 spoken words. Respond with JSON only: {"title": "...", "hook": "...", "body": "...", "description": "...", "hashtags": ["..."], "hook_pattern": "...", "structure": "..."}. The hook is the first 1-2 sentences and must earn the next ten seconds. hook_pattern labels the opening device with a short slug such as "question", "bold-claim", "countdown", or "myth-bust". structure labels the overall shape, for example "listicle", "story-arc", or "before-after". The description is 1-2 sentences for the video page, hashtags are 3-5 entries without the # sign.`

func scriptUserPrompt(channel config.Channel, topic *queue.TopicResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Channel niche: %s\n", channel.Niche)
	fmt.Fprintf(&b, "Topic: %s\n", topic.Title)
	if topic.Angle != "" {
		fmt.Fprintf(&b, "Angle: %s\n", topic.Angle)
	}
	if len(topic.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(topic.Keywords, ", "))
	}
	if len(channel.BannedTerms) > 0 {
		fmt.Fprintf(&b, "\nThe script must not mention: %s\n", strings.Join(channel.BannedTerms, ", "))
	}
	return b.String()
}
