package source

import (
	"strconv"
	"time"

	"github.com/duskmoth/replybot/pkg/mention"
)

// envelope is the "tweet create events" payload shape shared by the webhook
// and stream transports.
type envelope struct {
	ForUserID         string        `json:"for_user_id"`
	TweetCreateEvents []tweetCreate `json:"tweet_create_events"`
}

type tweetCreate struct {
	IDStr                string `json:"id_str"`
	Text                 string `json:"text"`
	InReplyToStatusIDStr string `json:"in_reply_to_status_id_str"`
	ConversationIDStr    string `json:"conversation_id_str"`
	TimestampMs          string `json:"timestamp_ms"`
	User                 struct {
		IDStr          string `json:"id_str"`
		ScreenName     string `json:"screen_name"`
		Verified       bool   `json:"verified"`
		FollowersCount int    `json:"followers_count"`
	} `json:"user"`
}

func (e envelope) mentions() []mention.Mention {
	out := make([]mention.Mention, 0, len(e.TweetCreateEvents))
	for _, ev := range e.TweetCreateEvents {
		if ev.IDStr == "" {
			continue
		}
		m := mention.Mention{
			ID:                  ev.IDStr,
			AuthorID:            ev.User.IDStr,
			AuthorHandle:        ev.User.ScreenName,
			ConversationID:      ev.ConversationIDStr,
			Text:                ev.Text,
			AuthorVerified:      ev.User.Verified,
			AuthorFollowerCount: ev.User.FollowersCount,
			InReplyToID:         ev.InReplyToStatusIDStr,
		}
		// Events without an explicit conversation id start their own thread.
		if m.ConversationID == "" {
			m.ConversationID = ev.IDStr
		}
		if ms, err := strconv.ParseInt(ev.TimestampMs, 10, 64); err == nil {
			m.CreatedAt = time.UnixMilli(ms)
		} else {
			m.CreatedAt = time.Now()
		}
		out = append(out, m)
	}
	return out
}
