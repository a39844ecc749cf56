package mention

import (
	"regexp"
	"strings"
	"time"
)

// Mention is a normalized inbound message referencing the bot's handle.
// It is immutable once observed; every downstream stage consumes it read-only.
type Mention struct {
	ID                  string    `json:"id"`
	AuthorID            string    `json:"author_id"`
	AuthorHandle        string    `json:"author_handle"`
	ConversationID      string    `json:"conversation_id"`
	Text                string    `json:"text"`
	CreatedAt           time.Time `json:"created_at"`
	AuthorVerified      bool      `json:"author_verified"`
	AuthorFollowerCount int       `json:"author_follower_count"`
	// InReplyToID is the id of the message this mention replies to,
	// empty for fresh mentions.
	InReplyToID string `json:"in_reply_to_id,omitempty"`
}

var repostPrefixRE = regexp.MustCompile(`^\s*RT\s+@`)

// MentionsHandle reports whether text references the given bot handle.
// Matching is case-insensitive and tolerates a missing @ prefix in config.
func MentionsHandle(text, handle string) bool {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" || text == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(handle))
}

// IsRepost reports whether text carries a repost/retweet marker.
func IsRepost(text string) bool {
	return repostPrefixRE.MatchString(text)
}

// IsReply reports whether the mention is itself a reply to a third party.
func (m Mention) IsReply() bool {
	return m.InReplyToID != ""
}
