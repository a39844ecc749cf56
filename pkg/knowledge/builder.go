// Package knowledge assembles the contextual knowledge passed to the reply
// generator: thread reconstruction, topic identification, and per-topic web
// research. Every stage degrades gracefully; the pipeline never blocks reply
// generation on research availability.
package knowledge

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/duskmoth/replybot/pkg/mention"
	"github.com/duskmoth/replybot/pkg/platform"
	"github.com/duskmoth/replybot/pkg/preview"
	"github.com/duskmoth/replybot/pkg/research"
	"github.com/duskmoth/replybot/pkg/search"
)

// Snippet is a single researched item about a topic.
type Snippet struct {
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	URL       string    `json:"url"`
	Sentiment Sentiment `json:"sentiment"`
}

// TopicResearch bundles a topic with its collected snippets.
type TopicResearch struct {
	Topic       Topic     `json:"topic"`
	Snippets    []Snippet `json:"snippets"`
	SourceCount int       `json:"source_count"`
}

// Knowledge is the ephemeral context built for one mention. It is rebuilt
// from scratch each time and never persisted.
type Knowledge struct {
	Summary     string          `json:"summary"`
	RootPurpose RootPurpose     `json:"root_purpose"`
	Topics      []TopicResearch `json:"topics"`
	// Degraded marks that every stage failed and Summary is just the raw
	// mention text.
	Degraded bool `json:"degraded"`
	// PriorReply and FollowUp are filled by the orchestrator from the
	// tracking memory for this conversation/author pair, so the generator
	// can avoid repeating its earlier point.
	PriorReply string `json:"prior_reply,omitempty"`
	FollowUp   bool   `json:"follow_up,omitempty"`
}

// HasTopics reports whether any topic gathered at least one snippet.
func (k *Knowledge) HasTopics() bool {
	if k == nil {
		return false
	}
	return len(k.Topics) > 0
}

// ThreadFetcher fetches all messages of a conversation.
type ThreadFetcher interface {
	ConversationMessages(ctx context.Context, conversationID string, limit int) ([]platform.ThreadMessage, error)
}

// Searcher runs a web search. Satisfied by a closure over search.Search.
type Searcher interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

// Request, Response and Result alias the search package types so callers of
// the builder do not need to import it.
type (
	Request  = search.Request
	Response = search.Response
	Result   = search.Result
)

// Config tunes the pipeline.
type Config struct {
	Enabled          *bool `yaml:"enabled"`
	MaxTopics        int   `yaml:"max_topics"`
	SnippetsPerTopic int   `yaml:"snippets_per_topic"`
	ThreadPageSize   int   `yaml:"thread_page_size"`
	// LookupDelayMs is the fixed delay between external lookups, a
	// deliberate throughput cap to respect third-party rate limits.
	LookupDelayMs  int  `yaml:"lookup_delay_ms"`
	EnrichPreviews bool `yaml:"enrich_previews"`
}

func (c Config) WithDefaults() Config {
	if c.MaxTopics <= 0 {
		c.MaxTopics = DefaultMaxTopics
	}
	if c.SnippetsPerTopic <= 0 {
		c.SnippetsPerTopic = 3
	}
	if c.ThreadPageSize <= 0 {
		c.ThreadPageSize = 100
	}
	if c.LookupDelayMs <= 0 {
		c.LookupDelayMs = 1000
	}
	return c
}

// Builder runs the four pipeline stages for one mention at a time.
type Builder struct {
	threads    ThreadFetcher
	searcher   Searcher
	cache      *research.Cache
	previews   *preview.Fetcher
	classifier Classifier
	cfg        Config
	log        zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration)
}

// NewBuilder wires the pipeline. cache and previews may be nil; the
// corresponding steps are then skipped.
func NewBuilder(threads ThreadFetcher, searcher Searcher, cache *research.Cache, previews *preview.Fetcher, classifier Classifier, cfg Config, log zerolog.Logger) *Builder {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	return &Builder{
		threads:    threads,
		searcher:   searcher,
		cache:      cache,
		previews:   previews,
		classifier: classifier,
		cfg:        cfg.WithDefaults(),
		log:        log.With().Str("component", "knowledge").Logger(),
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Build assembles knowledge for the mention. It never returns an error: when
// every stage fails the raw mention text alone becomes the context.
func (b *Builder) Build(ctx context.Context, m mention.Mention) *Knowledge {
	if !isEnabled(b.cfg.Enabled, true) {
		return fallbackKnowledge(m)
	}

	thread := b.buildThread(ctx, m)
	if thread == nil {
		b.log.Debug().Str("mention_id", m.ID).Msg("Thread stage yielded nothing, using mention text only")
		return fallbackKnowledge(m)
	}

	topics := ExtractTopics(thread.Text(), []string{m.AuthorHandle}, b.cfg.MaxTopics)
	researched := b.researchTopics(ctx, topics)

	return &Knowledge{
		Summary:     thread.Summary,
		RootPurpose: thread.Purpose,
		Topics:      researched,
	}
}

func fallbackKnowledge(m mention.Mention) *Knowledge {
	return &Knowledge{
		Summary:     strings.TrimSpace(m.Text),
		RootPurpose: PurposeOther,
		Degraded:    true,
	}
}

func (b *Builder) buildThread(ctx context.Context, m mention.Mention) *Thread {
	if b.threads == nil || m.ConversationID == "" {
		return nil
	}
	messages, err := b.threads.ConversationMessages(ctx, m.ConversationID, b.cfg.ThreadPageSize)
	if err != nil {
		b.log.Warn().Err(err).Str("conversation_id", m.ConversationID).Msg("Failed to fetch conversation thread")
		return nil
	}
	return BuildThread(messages)
}

func (b *Builder) researchTopics(ctx context.Context, topics []Topic) []TopicResearch {
	if b.searcher == nil || len(topics) == 0 {
		return nil
	}
	out := make([]TopicResearch, 0, len(topics))
	externalCalls := 0
	for _, topic := range topics {
		if ctx.Err() != nil {
			break
		}
		tr := b.researchTopic(ctx, topic, &externalCalls)
		if tr != nil {
			out = append(out, *tr)
		}
	}
	return out
}

func (b *Builder) researchTopic(ctx context.Context, topic Topic, externalCalls *int) *TopicResearch {
	query := topic.Name
	if topic.Kind == KindProject {
		query = "@" + topic.Name
	}

	resp := b.lookup(ctx, query, externalCalls)
	if resp == nil || len(resp.Results) == 0 {
		// Missing research degrades to "no research for this topic".
		return nil
	}

	limit := b.cfg.SnippetsPerTopic
	snippets := make([]Snippet, 0, limit)
	for _, result := range resp.Results {
		if len(snippets) >= limit {
			break
		}
		text := strings.TrimSpace(result.Description)
		title := strings.TrimSpace(result.Title)
		if text == "" && title == "" {
			continue
		}
		if b.cfg.EnrichPreviews && b.previews != nil && text == "" && result.URL != "" {
			if page, err := b.previews.Fetch(ctx, result.URL); err == nil {
				if page.Description != "" {
					text = page.Description
				}
				if title == "" {
					title = page.Title
				}
			}
		}
		if text == "" {
			text = title
		}
		snippets = append(snippets, Snippet{
			Title:     title,
			Text:      text,
			URL:       result.URL,
			Sentiment: b.classifier.Classify(title + " " + text),
		})
	}
	if len(snippets) == 0 {
		return nil
	}
	return &TopicResearch{Topic: topic, Snippets: snippets, SourceCount: len(resp.Results)}
}

// lookup serves the query from the cache when possible. The inter-lookup
// delay exists to respect external rate limits, so it is paid only when a
// real search follows a previous one; cache hits skip it entirely.
func (b *Builder) lookup(ctx context.Context, query string, externalCalls *int) *Response {
	if b.cache != nil {
		if cached, ok, err := b.cache.Get(ctx, query); err == nil && ok {
			return cached
		}
	}
	if *externalCalls > 0 {
		b.sleep(ctx, time.Duration(b.cfg.LookupDelayMs)*time.Millisecond)
	}
	*externalCalls++
	resp, err := b.searcher.Search(ctx, Request{Query: query, Count: b.cfg.SnippetsPerTopic * 2})
	if err != nil {
		b.log.Debug().Err(err).Str("query", query).Msg("Research lookup failed")
		return nil
	}
	if b.cache != nil && resp != nil {
		if err := b.cache.Put(ctx, query, resp); err != nil {
			b.log.Debug().Err(err).Str("query", query).Msg("Failed to cache research response")
		}
	}
	return resp
}

func isEnabled(flag *bool, fallback bool) bool {
	if flag == nil {
		return fallback
	}
	return *flag
}
