// Package generate formats prompts, invokes the text-generation service, and
// validates the result before it can be published.
package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/duskmoth/replybot/pkg/knowledge"
	"github.com/duskmoth/replybot/pkg/mention"
)

// Config tunes the generator and its post-processing.
type Config struct {
	APIKey            string         `yaml:"api_key"`
	BaseURL           string         `yaml:"base_url"`
	Model             string         `yaml:"model"`
	Persona           string         `yaml:"persona"`
	MaxOutputTokens   int            `yaml:"max_output_tokens"`
	PromptTokenBudget int            `yaml:"prompt_token_budget"`
	ReplyLimit        int            `yaml:"reply_limit"`
	QuestionPolicy    QuestionPolicy `yaml:"question_policy"`
	Temperature       float64        `yaml:"temperature"`
	TimeoutSecs       int            `yaml:"timeout_seconds"`
}

func (c Config) WithDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = 120
	}
	if c.PromptTokenBudget <= 0 {
		c.PromptTokenBudget = 2000
	}
	if c.ReplyLimit <= 0 {
		c.ReplyLimit = DefaultReplyLimit
	}
	if c.QuestionPolicy == "" {
		c.QuestionPolicy = QuestionReject
	}
	if c.TimeoutSecs <= 0 {
		c.TimeoutSecs = 30
	}
	return c
}

// Generator turns a mention plus knowledge into a publishable reply.
type Generator struct {
	client openai.Client
	cfg    Config
	log    zerolog.Logger
}

// NewGenerator creates a generator backed by the OpenAI-compatible API.
func NewGenerator(cfg Config, log zerolog.Logger) *Generator {
	cfg = cfg.WithDefaults()
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Generator{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		log:    log.With().Str("component", "generate").Logger(),
	}
}

// Generate produces the finished reply text for the mention. Model failures
// and empty output resolve to deterministic fallback text; only the question
// policy (under reject) can refuse a reply once eligibility has passed.
func (g *Generator) Generate(ctx context.Context, m mention.Mention, k *knowledge.Knowledge) (string, error) {
	system, user := BuildPrompt(m, k, g.cfg.Persona)
	user = TrimToTokenBudget(user, g.cfg.PromptTokenBudget)

	raw, err := g.complete(ctx, system, user)
	if err != nil {
		g.log.Warn().Err(err).Str("mention_id", m.ID).Msg("Generation call failed, using fallback text")
		raw = ""
	}

	reply, err := Postprocess(raw, k, g.cfg.ReplyLimit, g.cfg.QuestionPolicy)
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (g *Generator) complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.cfg.TimeoutSecs)*time.Second)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(int64(g.cfg.MaxOutputTokens)),
	}
	if g.cfg.Temperature > 0 {
		params.Temperature = openai.Float(g.cfg.Temperature)
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	g.log.Debug().
		Str("model", g.cfg.Model).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Generation completed")
	return resp.Choices[0].Message.Content, nil
}
