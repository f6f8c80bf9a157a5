// Package scriptgen turns a selected topic into a narration script, title,
// and description, and enforces the channel's banned-term policy on the
// result.
package scriptgen

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/services"
	"shortreel/internal/services/llm"
	"shortreel/internal/stage"
)

type completionClient interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	HealthCheck(ctx context.Context) error
}

// Generator produces the script section of the payload.
type Generator struct {
	cfg    *config.Config
	client completionClient
	logger *slog.Logger
}

// NewGenerator constructs the script generation handler.
func NewGenerator(cfg *config.Config, logger *slog.Logger) *Generator {
	return NewGeneratorWithDependencies(cfg, logger, llm.NewClient(cfg.LLM))
}

// NewGeneratorWithDependencies allows injecting custom dependencies (used for tests).
func NewGeneratorWithDependencies(cfg *config.Config, logger *slog.Logger, client completionClient) *Generator {
	g := &Generator{cfg: cfg, client: client}
	g.SetLogger(logger)
	return g
}

// SetLogger updates the generator's logging destination.
func (g *Generator) SetLogger(logger *slog.Logger) {
	g.logger = logging.NewComponentLogger(logger, "scriptgen")
}

// Collaborator reports the external service gating this stage.
func (g *Generator) Collaborator() string {
	return llm.CollaboratorName
}

func (g *Generator) Prepare(ctx context.Context, item *queue.Item) error {
	if item.Payload.Topic == nil {
		return services.Wrap(services.ErrValidation, "script", "validate inputs",
			"no topic present; research must complete first", nil)
	}
	return nil
}

type scriptResponse struct {
	Title       string   `json:"title"`
	Hook        string   `json:"hook"`
	Body        string   `json:"body"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
	HookPattern string   `json:"hook_pattern"`
	Structure   string   `json:"structure"`
}

func (g *Generator) Execute(ctx context.Context, item *queue.Item) (queue.PayloadDelta, error) {
	logger := logging.WithContext(ctx, g.logger)
	channel, _ := g.cfg.ChannelByID(item.ChannelID)
	topic := item.Payload.Topic

	content, err := g.client.CompleteJSON(ctx, scriptSystemPrompt, scriptUserPrompt(channel, topic))
	if err != nil {
		return queue.PayloadDelta{}, err
	}
	var parsed scriptResponse
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		return queue.PayloadDelta{}, services.Wrap(services.ErrTransient, "script", "decode script",
			"model response was not valid script JSON", err)
	}

	script := &queue.ScriptResult{
		Title:       strings.TrimSpace(parsed.Title),
		Hook:        strings.TrimSpace(parsed.Hook),
		Body:        strings.TrimSpace(parsed.Body),
		Description: strings.TrimSpace(parsed.Description),
		Hashtags:    parsed.Hashtags,
		HookPattern: strings.TrimSpace(parsed.HookPattern),
		Structure:   strings.TrimSpace(parsed.Structure),
	}
	if script.Title == "" || script.Hook == "" || script.Body == "" {
		return queue.PayloadDelta{}, services.Wrap(services.ErrTransient, "script", "validate script",
			"model returned an incomplete script", nil)
	}
	script.WordCount = len(strings.Fields(script.Hook)) + len(strings.Fields(script.Body))

	if term := firstBannedTerm(channel.BannedTerms, script); term != "" {
		return queue.PayloadDelta{}, services.Wrap(services.ErrSafety, "script", "safety gate",
			fmt.Sprintf("script contains banned term %q", term), nil)
	}

	logger.Info("script generated",
		logging.String("title", script.Title),
		logging.String("hook_pattern", script.HookPattern),
		logging.String("structure", script.Structure),
		logging.Int("word_count", script.WordCount),
	)
	return queue.PayloadDelta{Script: script}, nil
}

// firstBannedTerm scans the user-visible script text case-insensitively and
// returns the first configured term it finds.
func firstBannedTerm(terms []string, script *queue.ScriptResult) string {
	if len(terms) == 0 {
		return ""
	}
	haystack := strings.ToLower(strings.Join([]string{
		script.Title, script.Hook, script.Body, script.Description,
		strings.Join(script.Hashtags, " "),
	}, "\n"))
	for _, term := range terms {
		needle := strings.ToLower(strings.TrimSpace(term))
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, needle) {
			return strings.TrimSpace(term)
		}
	}
	return ""
}

func (g *Generator) HealthCheck(ctx context.Context) stage.Health {
	if err := g.client.HealthCheck(ctx); err != nil {
		return stage.Unhealthy("scriptgen", fmt.Sprintf("llm unreachable: %v", err))
	}
	return stage.Healthy("scriptgen")
}
