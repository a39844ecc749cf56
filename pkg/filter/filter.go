package filter

import (
	"github.com/duskmoth/replybot/pkg/mention"
	"github.com/duskmoth/replybot/pkg/tracking"
)

// Stable denial reasons, used in logs and skip counters.
const (
	ReasonAllowed        = "allowed"
	ReasonUntrusted      = "author does not satisfy trust predicate"
	ReasonNoMention      = "text does not mention the bot handle"
	ReasonRepost         = "mention is a repost"
	ReasonNotFresh       = "mention is itself a reply"
	ReasonAlreadyReplied = "already replied to this mention"
	ReasonPairCeiling    = "reply ceiling reached for this conversation/author"
	ReasonCycleBudget    = "per-cycle reply budget exhausted"
)

// Config carries the filter toggles and ceilings. Different deployment
// profiles flip these rather than forking the decision logic.
type Config struct {
	// Handle is the bot's own handle, without the @ prefix.
	Handle string `yaml:"handle"`
	// RequireVerified requires platform-verified authors when true.
	RequireVerified *bool `yaml:"require_verified"`
	// MinFollowers is an additional trust floor, 0 to disable.
	MinFollowers int `yaml:"min_followers"`
	// FreshOnly rejects mentions that are themselves replies when true.
	FreshOnly *bool `yaml:"fresh_only"`
	// PairCeiling caps replies per (conversation, author) pair.
	PairCeiling int `yaml:"pair_ceiling"`
	// PerCycleLimit caps replies within a single cycle.
	PerCycleLimit int `yaml:"per_cycle_limit"`
}

const (
	DefaultPairCeiling   = 2
	DefaultPerCycleLimit = 1
)

func (c Config) WithDefaults() Config {
	if c.PairCeiling <= 0 {
		c.PairCeiling = DefaultPairCeiling
	}
	if c.PerCycleLimit <= 0 {
		c.PerCycleLimit = DefaultPerCycleLimit
	}
	return c
}

// Decision is the outcome of the eligibility check.
type Decision struct {
	Allow  bool
	Reason string
}

func deny(reason string) Decision {
	return Decision{Allow: false, Reason: reason}
}

// Decide is a pure function over the mention and tracking state: it never
// mutates either, so re-running it yields the same decision. Checks run in
// order and the first failing check short-circuits.
func Decide(m mention.Mention, state *tracking.State, repliesThisCycle int, cfg Config) Decision {
	cfg = cfg.WithDefaults()

	if isEnabled(cfg.RequireVerified, true) && !m.AuthorVerified {
		return deny(ReasonUntrusted)
	}
	if cfg.MinFollowers > 0 && m.AuthorFollowerCount < cfg.MinFollowers {
		return deny(ReasonUntrusted)
	}
	if !mention.MentionsHandle(m.Text, cfg.Handle) {
		return deny(ReasonNoMention)
	}
	if mention.IsRepost(m.Text) {
		return deny(ReasonRepost)
	}
	if isEnabled(cfg.FreshOnly, false) && m.IsReply() {
		return deny(ReasonNotFresh)
	}
	if state != nil && state.HasReplied(m.ID) {
		return deny(ReasonAlreadyReplied)
	}
	if state != nil && state.PairCount(m.ConversationID, m.AuthorID) >= cfg.PairCeiling {
		return deny(ReasonPairCeiling)
	}
	if repliesThisCycle >= cfg.PerCycleLimit {
		return deny(ReasonCycleBudget)
	}
	return Decision{Allow: true, Reason: ReasonAllowed}
}

func isEnabled(flag *bool, fallback bool) bool {
	if flag == nil {
		return fallback
	}
	return *flag
}
