// Package engine runs the reply cycle: fetch → filter → research → generate
// → publish → persist. One cycle runs to completion before the next starts;
// all mutable tracking state is owned here and touched only between cycles.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/duskmoth/replybot/pkg/filter"
	"github.com/duskmoth/replybot/pkg/health"
	"github.com/duskmoth/replybot/pkg/knowledge"
	"github.com/duskmoth/replybot/pkg/mention"
	"github.com/duskmoth/replybot/pkg/platform"
	"github.com/duskmoth/replybot/pkg/source"
	"github.com/duskmoth/replybot/pkg/tracking"
)

// Generator is the reply-generation stage contract.
type Generator interface {
	Generate(ctx context.Context, m mention.Mention, k *knowledge.Knowledge) (string, error)
}

// Publisher is the publish stage contract.
type Publisher interface {
	Post(ctx context.Context, m mention.Mention, text string) (string, error)
}

// KnowledgeBuilder is the research stage contract.
type KnowledgeBuilder interface {
	Build(ctx context.Context, m mention.Mention) *knowledge.Knowledge
}

// CursorSource is implemented by sources that keep a since-id cursor the
// engine should persist across restarts.
type CursorSource interface {
	Cursor() string
}

// Config tunes the orchestrator.
type Config struct {
	// CooldownSecs suppresses fetches after an upstream rate-limit signal.
	CooldownSecs int `yaml:"cooldown_seconds"`
	// FollowUpWindowMins bounds follow-up detection against the tracking
	// memory. Mirrored from the tracking config at load time.
	FollowUpWindowMins int `yaml:"-"`
}

func (c Config) WithDefaults() Config {
	if c.CooldownSecs <= 0 {
		c.CooldownSecs = 60
	}
	if c.FollowUpWindowMins <= 0 {
		c.FollowUpWindowMins = 30
	}
	return c
}

// Engine ties the pipeline stages together, once per mention batch.
type Engine struct {
	cfg       Config
	filterCfg filter.Config
	src       source.Source
	state     *tracking.State
	storePath string
	builder   KnowledgeBuilder
	gen       Generator
	pub       Publisher
	counters  *health.Counters
	log       zerolog.Logger

	now           func() time.Time
	cooldownUntil time.Time
}

// New creates an engine. The tracking state must already be loaded; the
// engine takes exclusive ownership of it.
func New(cfg Config, filterCfg filter.Config, src source.Source, state *tracking.State, storePath string, builder KnowledgeBuilder, gen Generator, pub Publisher, counters *health.Counters, log zerolog.Logger) *Engine {
	if counters == nil {
		counters = health.NewCounters()
	}
	return &Engine{
		cfg:       cfg.WithDefaults(),
		filterCfg: filterCfg.WithDefaults(),
		src:       src,
		state:     state,
		storePath: storePath,
		builder:   builder,
		gen:       gen,
		pub:       pub,
		counters:  counters,
		log:       log.With().Str("component", "engine").Logger(),
		now:       time.Now,
	}
}

// RunCycle executes one full cycle. Stage failures are logged and end the
// cycle without persisting partial state; they are never fatal.
func (e *Engine) RunCycle(ctx context.Context) {
	cycleID := xid.New().String()
	log := e.log.With().Str("cycle_id", cycleID).Logger()
	ctx = log.WithContext(ctx)
	e.counters.CycleRun()

	if until := e.cooldownUntil; e.now().Before(until) {
		log.Debug().Time("until", until).Msg("In rate-limit cooldown, skipping fetch")
		return
	}

	log.Debug().Msg("Fetching mentions")
	batch, err := e.src.Next(ctx)
	if err != nil {
		var rateLimited *platform.RateLimitError
		if errors.As(err, &rateLimited) {
			cooldown := time.Duration(e.cfg.CooldownSecs) * time.Second
			if rateLimited.RetryAfter > cooldown {
				cooldown = rateLimited.RetryAfter
			}
			e.cooldownUntil = e.now().Add(cooldown)
			log.Warn().Dur("cooldown", cooldown).Msg("Fetch rate limited, backing off")
			return
		}
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("Fetch failed")
		}
		return
	}

	e.processBatch(ctx, batch, log)
}

// processBatch runs filter → research → generate → publish → persist over
// the batch. At most one reply is produced per cycle; every denial just
// skips to the next candidate.
func (e *Engine) processBatch(ctx context.Context, batch []mention.Mention, log zerolog.Logger) {
	repliesThisCycle := 0
	for _, m := range batch {
		e.counters.MentionSeen()
		decision := filter.Decide(m, e.state, repliesThisCycle, e.filterCfg)
		if !decision.Allow {
			e.counters.Skip(decision.Reason)
			log.Debug().Str("mention_id", m.ID).Str("reason", decision.Reason).Msg("Mention skipped")
			continue
		}

		log.Info().Str("mention_id", m.ID).Str("author_id", m.AuthorID).Msg("Mention eligible, building context")
		k := e.builder.Build(ctx, m)
		e.attachMemory(m, k)

		reply, err := e.gen.Generate(ctx, m, k)
		if err != nil {
			// Validation failures skip the mention, not the cycle.
			e.counters.Skip("generation rejected")
			log.Info().Err(err).Str("mention_id", m.ID).Msg("Candidate reply rejected")
			continue
		}

		externalID, err := e.pub.Post(ctx, m, reply)
		if err != nil {
			// Tracking stays untouched so a later cycle may retry.
			log.Warn().Err(err).Str("mention_id", m.ID).Msg("Publish failed")
			continue
		}

		e.state.MarkReplied(m, reply, e.now())
		e.persist(log)
		e.counters.ReplySent()
		repliesThisCycle++
		log.Info().Str("mention_id", m.ID).Str("reply_id", externalID).Msg("Cycle produced a reply")
	}
}

// attachMemory surfaces the remembered exchange with this pair so the
// generator can avoid repeating its earlier point, and flags follow-ups
// arriving within the detection window.
func (e *Engine) attachMemory(m mention.Mention, k *knowledge.Knowledge) {
	if k == nil || e.state == nil {
		return
	}
	mem := e.state.LastReply(m)
	if mem == nil || mem.LastReplyText == "" {
		return
	}
	k.PriorReply = mem.LastReplyText
	window := time.Duration(e.cfg.FollowUpWindowMins) * time.Minute
	k.FollowUp = e.state.IsFollowUp(m, window, e.now())
}

// persist flushes tracking state synchronously before the cycle proceeds.
// Failures are logged and swallowed: the in-memory state stays authoritative
// and a restart risks at most a bounded number of duplicate replies.
func (e *Engine) persist(log zerolog.Logger) {
	if cursorSrc, ok := e.src.(CursorSource); ok {
		e.state.Cursor = cursorSrc.Cursor()
	}
	if err := tracking.Save(e.storePath, e.state); err != nil {
		log.Error().Err(err).Msg("Failed to persist tracking state")
	}
}
