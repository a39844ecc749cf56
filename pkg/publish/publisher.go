// Package publish posts finished replies back to the social platform.
package publish

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/duskmoth/replybot/pkg/mention"
)

// ReplyPoster is the platform operation the publisher needs.
type ReplyPoster interface {
	CreateReply(ctx context.Context, text, inReplyToID string) (string, error)
}

// Publisher posts replies and reports the platform-assigned identifier.
type Publisher struct {
	client ReplyPoster
	log    zerolog.Logger
}

func NewPublisher(client ReplyPoster, log zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		log:    log.With().Str("component", "publish").Logger(),
	}
}

// Post publishes text as a reply to the mention. On failure the caller must
// leave tracking state unmodified so a later cycle may retry.
func (p *Publisher) Post(ctx context.Context, m mention.Mention, text string) (string, error) {
	externalID, err := p.client.CreateReply(ctx, text, m.ID)
	if err != nil {
		return "", err
	}
	p.log.Info().
		Str("mention_id", m.ID).
		Str("reply_id", externalID).
		Int("reply_len", len(text)).
		Msg("Reply published")
	return externalID, nil
}
