package tracking

import (
	"strings"
	"time"

	"github.com/duskmoth/replybot/pkg/mention"
)

// PairEntry records prior replies to one (conversation, author) pair.
type PairEntry struct {
	ReplyCount  int   `json:"reply_count"`
	LastReplyAt int64 `json:"last_reply_at"`
}

// MemoryEntry remembers the last exchange with a pair, used to detect
// follow-ups and to avoid repeating the same point.
type MemoryEntry struct {
	LastReplyText   string `json:"last_reply_text"`
	LastMentionText string `json:"last_mention_text"`
	UpdatedAt       int64  `json:"updated_at"`
	ReplyCount      int    `json:"reply_count"`
}

// State holds every tracking record. It is owned exclusively by the
// orchestrator and mutated only between cycles.
type State struct {
	Version int                     `json:"version"`
	Pairs   map[string]*PairEntry   `json:"pairs"`
	Replied map[string]bool         `json:"replied_mentions"`
	Memory  map[string]*MemoryEntry `json:"conversation_memory"`
	// Cursor is the since-id cursor for the poll source, persisted so a
	// restart does not re-fetch already seen mentions.
	Cursor string `json:"cursor,omitempty"`
}

// NewState returns an empty state with all maps initialized.
func NewState() *State {
	return &State{
		Version: 1,
		Pairs:   map[string]*PairEntry{},
		Replied: map[string]bool{},
		Memory:  map[string]*MemoryEntry{},
	}
}

func (s *State) normalize() {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Pairs == nil {
		s.Pairs = map[string]*PairEntry{}
	}
	if s.Replied == nil {
		s.Replied = map[string]bool{}
	}
	if s.Memory == nil {
		s.Memory = map[string]*MemoryEntry{}
	}
}

// PairKey builds the composite key for a (conversation, author) pair.
func PairKey(conversationID, authorID string) string {
	return conversationID + "|" + authorID
}

// HasReplied reports whether the mention id has ever received a reply.
// Once a mention id enters the set it never leaves.
func (s *State) HasReplied(mentionID string) bool {
	return s.Replied[mentionID]
}

// PairCount returns the number of replies sent to the pair so far.
func (s *State) PairCount(conversationID, authorID string) int {
	if entry := s.Pairs[PairKey(conversationID, authorID)]; entry != nil {
		return entry.ReplyCount
	}
	return 0
}

// MarkReplied records a successful publish for the mention. It must be
// called only after the platform confirmed the reply.
func (s *State) MarkReplied(m mention.Mention, replyText string, now time.Time) {
	s.normalize()
	key := PairKey(m.ConversationID, m.AuthorID)
	entry := s.Pairs[key]
	if entry == nil {
		entry = &PairEntry{}
		s.Pairs[key] = entry
	}
	entry.ReplyCount++
	entry.LastReplyAt = now.UnixMilli()

	s.Replied[m.ID] = true

	mem := s.Memory[key]
	if mem == nil {
		mem = &MemoryEntry{}
		s.Memory[key] = mem
	}
	mem.LastReplyText = replyText
	mem.LastMentionText = m.Text
	mem.UpdatedAt = now.UnixMilli()
	mem.ReplyCount++
}

// LastReply returns the remembered exchange for the mention's pair, if any.
func (s *State) LastReply(m mention.Mention) *MemoryEntry {
	return s.Memory[PairKey(m.ConversationID, m.AuthorID)]
}

// IsFollowUp reports whether the mention looks like a follow-up: same pair,
// within the window, with materially different mention text.
func (s *State) IsFollowUp(m mention.Mention, window time.Duration, now time.Time) bool {
	mem := s.Memory[PairKey(m.ConversationID, m.AuthorID)]
	if mem == nil || mem.UpdatedAt == 0 {
		return false
	}
	if now.Sub(time.UnixMilli(mem.UpdatedAt)) > window {
		return false
	}
	return !sameText(mem.LastMentionText, m.Text)
}

func sameText(a, b string) bool {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return norm(a) == norm(b)
}

// Prune evicts pair and memory entries older than maxAge. Replied mention ids
// are kept forever; only the throttling bookkeeping is subject to retention.
// A maxAge of zero disables pruning.
func (s *State) Prune(maxAge time.Duration, now time.Time) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := now.Add(-maxAge).UnixMilli()
	removed := 0
	for key, entry := range s.Pairs {
		if entry == nil || entry.LastReplyAt < cutoff {
			delete(s.Pairs, key)
			removed++
		}
	}
	for key, mem := range s.Memory {
		if mem == nil || mem.UpdatedAt < cutoff {
			delete(s.Memory, key)
		}
	}
	return removed
}
